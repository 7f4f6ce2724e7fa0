package gateway

import (
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/haasonsaas/turnstream/internal/observability"
	"github.com/haasonsaas/turnstream/internal/sessions"
	"github.com/haasonsaas/turnstream/pkg/models"
)

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req models.CreateSessionRequest
	if !s.decode(w, r, schemaCreateSession, &req) {
		return
	}
	sess, err := s.store.Create(r.Context(), req.UserID, sessions.Options{
		WorkspaceRoot: req.WorkspaceRoot,
		Model:         req.Model,
		Metadata:      req.Metadata,
	})
	if err != nil {
		s.logger.ErrorContext(r.Context(), "session creation failed", "error", err)
		s.recordError("bind")
		jsonError(w, "Failed to create session", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, models.CreateSessionResponse{SessionID: sess.ID, CreatedAt: sess.CreatedAt})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	sess, ok := s.store.Peek(id)
	if !ok {
		writeJSON(w, http.StatusNotFound, models.ErrorResponse{Error: "Session not found", SessionID: id})
		return
	}
	writeJSON(w, http.StatusOK, sess.Stats(time.Now()))
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if !s.store.Delete(id) {
		writeJSON(w, http.StatusNotFound, models.ErrorResponse{Error: "Session not found", SessionID: id})
		return
	}
	writeJSON(w, http.StatusOK, models.SuccessResponse{Success: true})
}

func (s *Server) handleRebindSession(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var req models.RebindRequest
	if !s.decode(w, r, schemaRebind, &req) {
		return
	}

	ctx := observability.AddSessionID(r.Context(), id)
	err := s.store.Rebind(ctx, id, req.WorkspaceRoot)
	var bindErr *sessions.BindError
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, models.SuccessResponse{Success: true})
	case errors.Is(err, sessions.ErrNotFound):
		writeJSON(w, http.StatusNotFound, models.ErrorResponse{Error: "Session not found", SessionID: id})
	case errors.As(err, &bindErr):
		s.logger.WarnContext(ctx, "workspace rebind failed", "error", err)
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "Invalid workspace root", Message: bindErr.Error()})
	default:
		s.logger.ErrorContext(ctx, "workspace rebind failed", "error", err)
		jsonError(w, "Internal Server Error", http.StatusInternalServerError)
	}
}

// handleListSessions lists the sessions of the userId query parameter, or
// of the default owner when it is absent.
func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	owner := r.URL.Query().Get("userId")
	if owner == "" {
		owner = s.store.Config().DefaultOwner
	}
	list := s.store.ListByOwner(owner)
	out := models.SessionListResponse{
		Sessions: make([]models.SessionSummary, 0, len(list)),
		Total:    len(list),
	}
	for _, sess := range list {
		out.Sessions = append(out.Sessions, sess.Summary())
	}
	writeJSON(w, http.StatusOK, out)
}
