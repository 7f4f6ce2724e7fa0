package gateway

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/haasonsaas/turnstream/internal/observability"
	"github.com/haasonsaas/turnstream/internal/workspace"
	"github.com/haasonsaas/turnstream/pkg/models"
)

func (s *Server) handleFileRead(w http.ResponseWriter, r *http.Request) {
	var req models.FileReadRequest
	if !s.decode(w, r, schemaFileRead, &req) {
		return
	}
	args := map[string]any{"path": req.Path}
	if req.Offset > 0 {
		args["offset"] = req.Offset
	}
	if req.Limit > 0 {
		args["limit"] = req.Limit
	}
	var out struct {
		Path      string `json:"path"`
		Content   string `json:"content"`
		Offset    int64  `json:"offset"`
		Size      int64  `json:"size"`
		Truncated bool   `json:"truncated"`
	}
	if !s.runWorkspaceTool(w, r, req.SessionID, req.Path, "read_file", args, &out, "Failed to read file") {
		return
	}
	writeJSON(w, http.StatusOK, models.FileReadResponse{
		Success:   true,
		Path:      out.Path,
		Content:   out.Content,
		Offset:    out.Offset,
		Size:      out.Size,
		Truncated: out.Truncated,
	})
}

func (s *Server) handleFileList(w http.ResponseWriter, r *http.Request) {
	var req models.FileListRequest
	if !s.decode(w, r, schemaFileList, &req) {
		return
	}
	path := req.Path
	if path == "" {
		path = "."
	}
	args := map[string]any{"path": path, "show_hidden": req.ShowHidden}
	var out struct {
		Path    string            `json:"path"`
		Entries []models.DirEntry `json:"entries"`
	}
	if !s.runWorkspaceTool(w, r, req.SessionID, path, "list_directory", args, &out, "Failed to list directory") {
		return
	}
	writeJSON(w, http.StatusOK, models.FileListResponse{Success: true, Path: out.Path, Entries: out.Entries})
}

func (s *Server) handleFileSearch(w http.ResponseWriter, r *http.Request) {
	var req models.FileSearchRequest
	if !s.decode(w, r, schemaFileSearch, &req) {
		return
	}
	path := req.Path
	if path == "" {
		path = "."
	}
	args := map[string]any{"pattern": req.Pattern, "path": path}
	if req.Include != "" {
		args["include"] = req.Include
	}
	if req.MaxMatches > 0 {
		args["max_matches"] = req.MaxMatches
	}
	var out models.FileSearchResult
	if !s.runWorkspaceTool(w, r, req.SessionID, path, "search_file_content", args, &out, "Failed to search files") {
		return
	}
	writeJSON(w, http.StatusOK, models.FileSearchResponse{
		Success:   true,
		Pattern:   out.Pattern,
		Path:      out.Path,
		Matches:   out.Matches,
		Total:     len(out.Matches),
		Truncated: out.Truncated,
	})
}

// runWorkspaceTool runs one of the session's workspace tools and decodes its
// JSON output into out. Unknown sessions are 404, paths outside the
// workspace and tool-level failures are 400, and executor failures are 500.
// It writes the error response and reports false on any failure.
func (s *Server) runWorkspaceTool(w http.ResponseWriter, r *http.Request, sessionID, path, tool string, args map[string]any, out any, failure string) bool {
	sess, ok := s.store.Get(sessionID)
	if !ok || sess.Handle == nil || sess.Handle.Tools == nil {
		writeJSON(w, http.StatusNotFound, models.ErrorResponse{Error: "Session not found", SessionID: sessionID})
		return false
	}
	ctx := observability.AddSessionID(r.Context(), sessionID)

	if _, err := (workspace.Resolver{Root: sess.WorkspaceRoot}).Resolve(path); errors.Is(err, workspace.ErrPathEscapes) {
		s.logger.WarnContext(ctx, "workspace path rejected", "tool", tool, "path", path)
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "Invalid path", Message: err.Error()})
		return false
	}

	resp, err := sess.Handle.Tools.Execute(ctx, models.ToolCall{
		CallID: "http_" + uuid.NewString(),
		Name:   tool,
		Args:   args,
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "workspace tool failed", "tool", tool, "error", err)
		s.recordError("tool")
		jsonError(w, failure, http.StatusInternalServerError)
		return false
	}
	if resp.Error != "" {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: failure, Message: resp.Error})
		return false
	}
	if len(resp.Parts) == 0 || resp.Parts[0].ToolResult == nil {
		s.logger.ErrorContext(ctx, "workspace tool returned no result", "tool", tool)
		jsonError(w, failure, http.StatusInternalServerError)
		return false
	}
	if err := json.Unmarshal([]byte(resp.Parts[0].ToolResult.Output), out); err != nil {
		s.logger.ErrorContext(ctx, "decode tool output", "tool", tool, "error", err)
		jsonError(w, failure, http.StatusInternalServerError)
		return false
	}
	return true
}
