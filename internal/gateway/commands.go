package gateway

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/haasonsaas/turnstream/internal/commands"
	"github.com/haasonsaas/turnstream/internal/observability"
	"github.com/haasonsaas/turnstream/internal/sessions"
	"github.com/haasonsaas/turnstream/pkg/models"
)

// sessionCommands loads the command registry of a session's workspace. File
// commands are read on every call, so edits apply without a restart.
func (s *Server) sessionCommands(w http.ResponseWriter, sessionID string) (sessions.Session, *commands.Registry, bool) {
	sess, ok := s.store.Get(sessionID)
	if !ok {
		writeJSON(w, http.StatusNotFound, models.ErrorResponse{Error: "Session not found", SessionID: sessionID})
		return sessions.Session{}, nil, false
	}
	return sess, commands.ForWorkspace(sess.WorkspaceRoot, s.cfg.CommandsDir, s.logger), true
}

func commandInfos(list []*commands.Command) []models.CommandInfo {
	out := make([]models.CommandInfo, 0, len(list))
	for _, cmd := range list {
		out = append(out, cmd.Info())
	}
	return out
}

func (s *Server) handleCommandList(w http.ResponseWriter, r *http.Request) {
	var req models.CommandListRequest
	if !s.decode(w, r, schemaCommandList, &req) {
		return
	}
	_, registry, ok := s.sessionCommands(w, req.SessionID)
	if !ok {
		return
	}
	infos := commandInfos(registry.List())
	writeJSON(w, http.StatusOK, models.CommandListResponse{Success: true, Commands: infos, Total: len(infos)})
}

// handleCommandExecute runs one command. The command field may carry the
// arguments too ("/review main.go") when args is empty.
func (s *Server) handleCommandExecute(w http.ResponseWriter, r *http.Request) {
	var req models.CommandExecuteRequest
	if !s.decode(w, r, schemaCommandExecute, &req) {
		return
	}
	name, inline, ok := commands.Parse(req.Command)
	if !ok {
		writeJSON(w, http.StatusBadRequest, models.CommandExecuteResponse{Error: fmt.Sprintf("Invalid command: %s", req.Command)})
		return
	}
	args := strings.TrimSpace(req.Args)
	if args == "" {
		args = inline
	}

	sess, registry, ok := s.sessionCommands(w, req.SessionID)
	if !ok {
		return
	}
	ctx := observability.AddSessionID(r.Context(), sess.ID)
	res, err := registry.Execute(ctx, name, args, commands.Env{
		Session: sess,
		History: s.store,
		Now:     time.Now,
	})
	switch {
	case errors.Is(err, commands.ErrNotFound):
		writeJSON(w, http.StatusNotFound, models.CommandExecuteResponse{Command: name, Error: "Command not found: /" + name})
		return
	case err != nil:
		s.logger.ErrorContext(ctx, "command failed", "command", name, "error", err)
		s.recordError("command")
		writeJSON(w, http.StatusInternalServerError, models.CommandExecuteResponse{Command: name, Error: "Command execution failed"})
		return
	}
	if res.Error != "" {
		writeJSON(w, http.StatusBadRequest, models.CommandExecuteResponse{Command: name, Error: res.Error})
		return
	}
	s.logger.DebugContext(ctx, "command executed", "command", name, "action", res.Action)
	writeJSON(w, http.StatusOK, models.CommandExecuteResponse{
		Success: true,
		Command: name,
		Output:  res.Text,
		Action:  res.Action,
	})
}

func (s *Server) handleCommandHelp(w http.ResponseWriter, r *http.Request) {
	var req models.CommandHelpRequest
	if !s.decode(w, r, schemaCommandHelp, &req) {
		return
	}
	_, registry, ok := s.sessionCommands(w, req.SessionID)
	if !ok {
		return
	}
	if name := strings.TrimSpace(req.Command); name != "" {
		cmd, found := registry.Get(name)
		if !found {
			writeJSON(w, http.StatusNotFound, models.CommandHelpResponse{Error: "Command not found: /" + strings.TrimPrefix(name, "/")})
			return
		}
		info := cmd.Info()
		writeJSON(w, http.StatusOK, models.CommandHelpResponse{Success: true, Command: &info})
		return
	}
	writeJSON(w, http.StatusOK, models.CommandHelpResponse{Success: true, Commands: commandInfos(registry.List())})
}
