package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/haasonsaas/turnstream/internal/client"
	"github.com/haasonsaas/turnstream/pkg/models"
)

type chatOptions struct {
	server    string
	sessionID string
	workspace string
	model     string
	mode      string
	jsonOut   bool
}

type createSessionOptions struct {
	userID    string
	workspace string
	model     string
}

// runChat sends the argument message, or every stdin line when there is
// none. An interrupt cancels the in-flight turn on the server, or exits
// when no turn is running.
func runChat(cmd *cobra.Command, server string, opts chatOptions, args []string) error {
	c := client.New(server)
	ctx := cmd.Context()

	var (
		mu        sync.Mutex
		requestID string
	)
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT)
	defer signal.Stop(sigCh)
	done := make(chan struct{})
	defer close(done)
	go func() {
		for {
			select {
			case <-done:
				return
			case <-sigCh:
				mu.Lock()
				id := requestID
				mu.Unlock()
				if id == "" {
					os.Exit(130)
				}
				cancelCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				if _, err := c.Cancel(cancelCtx, id); err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "cancel failed: %v\n", err)
				}
				cancel()
			}
		}
	}()

	sessionID := opts.sessionID
	send := func(message string) error {
		out := newTranscript(cmd.OutOrStdout())
		var onUpdate func([]client.FrontendMessage)
		if !opts.jsonOut {
			onUpdate = out.update
		}
		result, err := c.Chat(ctx, models.ChatRequest{
			SessionID:     sessionID,
			Message:       message,
			WorkspaceRoot: opts.workspace,
			Model:         opts.model,
			ResponseMode:  models.ResponseMode(opts.mode),
		}, func(id string) {
			mu.Lock()
			requestID = id
			mu.Unlock()
		}, onUpdate)

		mu.Lock()
		requestID = ""
		mu.Unlock()
		if err != nil {
			return err
		}
		sessionID = result.SessionID
		if opts.jsonOut {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(result)
		}
		out.finish()
		if result.Cancelled {
			fmt.Fprintln(cmd.ErrOrStderr(), "(cancelled)")
		}
		return nil
	}

	// Lines starting with "/" run a slash command in the session. A command
	// that expands to a prompt is sent as the next message.
	handle := func(line string) error {
		if !strings.HasPrefix(line, "/") {
			return send(line)
		}
		if sessionID == "" {
			created, err := c.CreateSession(ctx, models.CreateSessionRequest{
				WorkspaceRoot: opts.workspace,
				Model:         opts.model,
			})
			if err != nil {
				return err
			}
			sessionID = created.SessionID
		}
		res, err := c.ExecuteCommand(ctx, models.CommandExecuteRequest{SessionID: sessionID, Command: line})
		if err != nil {
			return err
		}
		if res.Action == models.CommandActionSubmitPrompt {
			return send(res.Output)
		}
		fmt.Fprintln(cmd.OutOrStdout(), res.Output)
		return nil
	}

	if len(args) > 0 {
		if err := handle(strings.Join(args, " ")); err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "session: %s\n", sessionID)
		return nil
	}

	scanner := bufio.NewScanner(cmd.InOrStdin())
	for {
		fmt.Fprint(cmd.ErrOrStderr(), "> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if err := handle(line); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "error: %v\n", err)
		}
	}
	if sessionID != "" {
		fmt.Fprintf(cmd.ErrOrStderr(), "session: %s\n", sessionID)
	}
	return scanner.Err()
}

// transcript prints a streaming message list as plain text. Content
// messages are printed as their text grows; every other message is printed
// once as a bracketed line.
type transcript struct {
	w       io.Writer
	printed map[string]int
	shown   map[string]bool
	open    bool
}

func newTranscript(w io.Writer) *transcript {
	return &transcript{w: w, printed: make(map[string]int), shown: make(map[string]bool)}
}

func (t *transcript) update(msgs []client.FrontendMessage) {
	for _, msg := range msgs {
		if msg.Type == models.MessageContent {
			done := t.printed[msg.ID]
			if len(msg.Content) > done {
				fmt.Fprint(t.w, msg.Content[done:])
				t.printed[msg.ID] = len(msg.Content)
				t.open = true
			}
			continue
		}
		if t.shown[msg.ID] {
			continue
		}
		t.shown[msg.ID] = true
		t.finish()
		fmt.Fprintf(t.w, "[%s]\n", msg.Content)
	}
}

// finish terminates a partially printed content line.
func (t *transcript) finish() {
	if t.open {
		fmt.Fprintln(t.w)
		t.open = false
	}
}

func runHistory(cmd *cobra.Command, server, sessionID string, limit, offset int) error {
	resp, err := client.New(server).History(cmd.Context(), models.HistoryRequest{
		SessionID: sessionID,
		Limit:     limit,
		Offset:    offset,
	})
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	for _, item := range resp.History {
		ts := time.UnixMilli(item.Timestamp).Format(time.RFC3339)
		fmt.Fprintf(out, "#%d %s %s\n%s\n\n", item.ID, ts, item.Role, item.Content)
	}
	fmt.Fprintf(out, "showing %d of %d (offset %d)\n", len(resp.History), resp.Total, resp.Offset)
	return nil
}

func runSessionsList(cmd *cobra.Command, server, userID string) error {
	resp, err := client.New(server).ListSessions(cmd.Context(), userID)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tUSER\tCREATED\tLAST ACTIVITY")
	for _, s := range resp.Sessions {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", s.ID, s.UserID,
			s.CreatedAt.Format(time.RFC3339), s.LastActivity.Format(time.RFC3339))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%d session(s)\n", resp.Total)
	return nil
}

func runSessionsCreate(cmd *cobra.Command, server string, opts createSessionOptions) error {
	resp, err := client.New(server).CreateSession(cmd.Context(), models.CreateSessionRequest{
		UserID:        opts.userID,
		WorkspaceRoot: opts.workspace,
		Model:         opts.model,
	})
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), resp.SessionID)
	return nil
}

func runSessionsShow(cmd *cobra.Command, server, sessionID string) error {
	stats, err := client.New(server).GetSession(cmd.Context(), sessionID)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(stats)
}

func runSessionsDelete(cmd *cobra.Command, server, sessionID string) error {
	if err := client.New(server).DeleteSession(cmd.Context(), sessionID); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", sessionID)
	return nil
}

func runSessionsRebind(cmd *cobra.Command, server, sessionID, root string) error {
	if err := client.New(server).RebindSession(cmd.Context(), sessionID, root); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s now bound to %s\n", sessionID, root)
	return nil
}

func runSessionsStats(cmd *cobra.Command, server string) error {
	stats, err := client.New(server).Stats(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "sessions: %d\nactive requests: %d\n", stats.TotalSessions, stats.ActiveRequests)
	return nil
}
