package gateway

import (
	"errors"
	"net/http"

	"github.com/haasonsaas/turnstream/internal/agent"
	"github.com/haasonsaas/turnstream/internal/cancellation"
	"github.com/haasonsaas/turnstream/internal/sessions"
	"github.com/haasonsaas/turnstream/internal/stream"
	"github.com/haasonsaas/turnstream/pkg/models"
)

// handleChatStream runs one turn stream. Errors found before the stream
// opens are plain JSON responses; after that they travel as stream frames.
func (s *Server) handleChatStream(w http.ResponseWriter, r *http.Request) {
	var req models.ChatRequest
	if !s.decode(w, r, schemaChat, &req) {
		return
	}

	mode := models.ResponseMode("")
	if req.ResponseMode != "" {
		mode = models.ParseResponseMode(string(req.ResponseMode))
	}
	turn, err := s.orchestrator.Begin(r.Context(), agent.Request{
		RequestID:     r.Header.Get(requestIDHeader),
		SessionID:     req.SessionID,
		MessageID:     req.MessageID,
		WorkspaceRoot: req.WorkspaceRoot,
		Model:         req.Model,
		Message:       req.Message,
		ResponseMode:  mode,
	})
	if err != nil {
		s.beginFailed(w, r, req, err)
		return
	}

	sw, err := stream.NewWriter(w)
	if err != nil {
		turn.Close()
		s.logger.ErrorContext(r.Context(), "response writer cannot stream", "error", err)
		jsonError(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}
	sw.Prepare()

	result, err := turn.Run(sw)
	if err != nil {
		s.logger.WarnContext(r.Context(), "turn stream ended with error",
			"request_id", turn.RequestID(),
			"session_id", turn.SessionID(),
			"error", err,
		)
		return
	}
	s.logger.DebugContext(r.Context(), "turn stream complete",
		"request_id", result.RequestID,
		"session_id", result.SessionID,
		"frames", sw.Frames(),
		"cancelled", result.Cancelled,
	)
}

func (s *Server) beginFailed(w http.ResponseWriter, r *http.Request, req models.ChatRequest, err error) {
	var bindErr *sessions.BindError
	switch {
	case errors.Is(err, agent.ErrSessionNotFound):
		writeJSON(w, http.StatusNotFound, models.ErrorResponse{Error: "Session not found", SessionID: req.SessionID})
	case errors.Is(err, agent.ErrEmptyMessage):
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "Validation Error", Message: err.Error()})
	case errors.Is(err, cancellation.ErrDuplicate):
		jsonError(w, "Request id already in use", http.StatusConflict)
	case errors.As(err, &bindErr):
		s.logger.ErrorContext(r.Context(), "session creation failed", "error", err)
		s.recordError("bind")
		jsonError(w, "Failed to create session", http.StatusInternalServerError)
	default:
		s.logger.ErrorContext(r.Context(), "chat request failed", "error", err)
		s.recordError("chat")
		jsonError(w, "Internal Server Error", http.StatusInternalServerError)
	}
}

// handleCancel always reports success; cancelling an unknown or finished
// request is a no-op.
func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	var req models.CancelRequest
	if !s.decode(w, r, schemaCancel, &req) {
		return
	}
	if s.cancels.Cancel(req.RequestID) {
		s.logger.InfoContext(r.Context(), "request cancelled", "request_id", req.RequestID)
	}
	writeJSON(w, http.StatusOK, models.CancelResponse{Success: true, RequestID: req.RequestID})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	var req models.HistoryRequest
	if !s.decode(w, r, schemaHistory, &req) {
		return
	}
	limit, offset := sessions.ClampPage(req.Limit, req.Offset)
	items, total, err := s.store.History(req.SessionID, limit, offset)
	if err != nil {
		writeJSON(w, http.StatusNotFound, models.ErrorResponse{Error: "Session not found", SessionID: req.SessionID})
		return
	}
	writeJSON(w, http.StatusOK, models.HistoryResponse{
		History: items,
		Total:   total,
		Limit:   limit,
		Offset:  offset,
	})
}

// decode parses and validates the body, writing a 400 on failure.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, schemaName string, out any) bool {
	err := decodeBody(r, schemaName, out)
	if err == nil {
		return true
	}
	var verr *validationError
	if errors.As(err, &verr) {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "Validation Error", Message: verr.Error()})
		return false
	}
	s.logger.ErrorContext(r.Context(), "request schema unavailable", "error", err)
	jsonError(w, "Internal Server Error", http.StatusInternalServerError)
	return false
}

func (s *Server) recordError(kind string) {
	if s.metrics != nil {
		s.metrics.RecordError("gateway", kind)
	}
}
