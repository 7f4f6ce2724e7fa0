package gateway

import (
	"net/http"
	"time"

	"github.com/haasonsaas/turnstream/pkg/models"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, models.HealthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC(),
		Uptime:    time.Since(s.startTime).Seconds(),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, models.ReadyResponse{
		Status:    "ready",
		Timestamp: time.Now().UTC(),
		Sessions:  s.store.Stats().TotalSessions,
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, models.ServiceStats{
		TotalSessions:  s.store.Stats().TotalSessions,
		ActiveRequests: s.cancels.Active(),
	})
}
