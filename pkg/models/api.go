package models

import "time"

// ChatRequest starts a streaming turn.
type ChatRequest struct {
	SessionID     string       `json:"sessionId,omitempty"`
	MessageID     string       `json:"messageId,omitempty"`
	Message       string       `json:"message"`
	WorkspaceRoot string       `json:"workspaceRoot,omitempty"`
	Model         string       `json:"model,omitempty"`
	ResponseMode  ResponseMode `json:"responseMode,omitempty"`
}

// CancelRequest cancels an in-flight turn stream.
type CancelRequest struct {
	RequestID string `json:"requestId"`
}

// CancelResponse is always reported as a success.
type CancelResponse struct {
	Success   bool   `json:"success"`
	RequestID string `json:"requestId"`
}

// Default and maximum page sizes for history requests.
const (
	DefaultHistoryLimit = 50
	MaxHistoryLimit     = 500
)

// HistoryRequest asks for a page of a session's history.
type HistoryRequest struct {
	SessionID string `json:"sessionId"`
	Limit     int    `json:"limit,omitempty"`
	Offset    int    `json:"offset,omitempty"`
}

// HistoryResponse is one page of history.
type HistoryResponse struct {
	History []HistoryItem `json:"history"`
	Total   int           `json:"total"`
	Limit   int           `json:"limit"`
	Offset  int           `json:"offset"`
}

// CreateSessionRequest explicitly creates a session.
type CreateSessionRequest struct {
	UserID        string         `json:"userId,omitempty"`
	WorkspaceRoot string         `json:"workspaceRoot,omitempty"`
	Model         string         `json:"model,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

// CreateSessionResponse reports the id of a newly created session.
type CreateSessionResponse struct {
	SessionID string    `json:"sessionId"`
	CreatedAt time.Time `json:"createdAt"`
}

// RebindRequest moves a session to a different workspace root.
type RebindRequest struct {
	WorkspaceRoot string `json:"workspaceRoot"`
}

// SessionStats describes one session.
type SessionStats struct {
	ID            string         `json:"id"`
	UserID        string         `json:"userId"`
	WorkspaceRoot string         `json:"workspaceRoot"`
	Model         string         `json:"model,omitempty"`
	CreatedAt     time.Time      `json:"createdAt"`
	LastActivity  time.Time      `json:"lastActivity"`
	Duration      int64          `json:"duration"`
	MessageCount  int            `json:"messageCount"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

// SessionSummary is the list view of a session.
type SessionSummary struct {
	ID           string         `json:"id"`
	UserID       string         `json:"userId"`
	CreatedAt    time.Time      `json:"createdAt"`
	LastActivity time.Time      `json:"lastActivity"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// SessionListResponse lists sessions.
type SessionListResponse struct {
	Sessions []SessionSummary `json:"sessions"`
	Total    int              `json:"total"`
}

// ServiceStats summarizes server state.
type ServiceStats struct {
	TotalSessions  int `json:"totalSessions"`
	ActiveRequests int `json:"activeRequests"`
}

// SuccessResponse is the body of operations that only report success.
type SuccessResponse struct {
	Success bool `json:"success"`
}

// ErrorResponse is the body of failed API calls.
type ErrorResponse struct {
	Error     string `json:"error"`
	Message   string `json:"message,omitempty"`
	SessionID string `json:"sessionId,omitempty"`
}

// HealthResponse is the liveness report.
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	// Uptime is in seconds.
	Uptime float64 `json:"uptime"`
}

// ReadyResponse is the readiness report.
type ReadyResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Sessions  int       `json:"sessions"`
}
