// Package client talks to a turnstream server: it streams chat turns over
// server-sent events and calls the session API. Adapter folds the streamed
// snapshots into the message list a UI renders.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/haasonsaas/turnstream/internal/stream"
	"github.com/haasonsaas/turnstream/pkg/models"
)

// DefaultBaseURL is the address of a locally running server.
const DefaultBaseURL = "http://localhost:3001"

// APIError is a non-2xx response from the server.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server returned %d", e.Status)
	}
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
}

// IsNotFound reports whether err is a 404 from the server.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}

// Frame is one decoded stream frame. Exactly one field is set.
type Frame struct {
	Event    *models.Event
	Response *models.StreamResponse
}

// Client calls the turnstream HTTP API.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// New creates a client for baseURL. An empty baseURL selects
// DefaultBaseURL.
func New(baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		// No overall timeout: turn streams stay open until the model is done.
		HTTPClient: &http.Client{},
		Logger:     slog.Default().With("component", "client"),
	}
}

// Stream posts req to /api/chat/stream and calls fn for every frame until
// the stream ends, fn returns an error, or ctx is done. Cancelling ctx
// disconnects, which the server treats like a cancel.
func (c *Client) Stream(ctx context.Context, req models.ChatRequest, fn func(Frame) error) error {
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal chat request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url("/api/chat/stream"), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient().Do(httpReq)
	if err != nil {
		return fmt.Errorf("open stream: %w", err)
	}
	defer resp.Body.Close()
	if err := checkResponse(resp); err != nil {
		return err
	}

	reader := stream.NewReader(resp.Body)
	for {
		raw, err := reader.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		frame, err := DecodeFrame(raw)
		if err != nil {
			c.logger().Warn("skipping undecodable frame", "error", err)
			continue
		}
		if err := fn(frame); err != nil {
			return err
		}
	}
}

// DecodeFrame decodes one SSE payload. Payloads with msgStatus and messages
// are snapshots; everything else is a discrete event.
func DecodeFrame(raw json.RawMessage) (Frame, error) {
	var probe struct {
		MsgStatus *string         `json:"msgStatus"`
		Messages  json.RawMessage `json:"messages"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return Frame{}, fmt.Errorf("decode frame: %w", err)
	}
	if probe.MsgStatus != nil && probe.Messages != nil {
		var resp models.StreamResponse
		if err := json.Unmarshal(raw, &resp); err != nil {
			return Frame{}, fmt.Errorf("decode snapshot: %w", err)
		}
		return Frame{Response: &resp}, nil
	}
	var ev models.Event
	if err := json.Unmarshal(raw, &ev); err != nil {
		return Frame{}, fmt.Errorf("decode event: %w", err)
	}
	if ev.Type == "" {
		return Frame{}, errors.New("decode event: missing type")
	}
	return Frame{Event: &ev}, nil
}

// Cancel asks the server to cancel requestID. The server reports success for
// unknown ids too.
func (c *Client) Cancel(ctx context.Context, requestID string) (*models.CancelResponse, error) {
	var out models.CancelResponse
	err := c.do(ctx, http.MethodPost, "/api/chat/cancel", models.CancelRequest{RequestID: requestID}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// History returns one page of a session's history.
func (c *Client) History(ctx context.Context, req models.HistoryRequest) (*models.HistoryResponse, error) {
	var out models.HistoryResponse
	if err := c.do(ctx, http.MethodPost, "/api/chat/history", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateSession creates a session.
func (c *Client) CreateSession(ctx context.Context, req models.CreateSessionRequest) (*models.CreateSessionResponse, error) {
	var out models.CreateSessionResponse
	if err := c.do(ctx, http.MethodPost, "/api/session", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetSession returns the stats of one session.
func (c *Client) GetSession(ctx context.Context, id string) (*models.SessionStats, error) {
	var out models.SessionStats
	if err := c.do(ctx, http.MethodGet, "/api/session/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteSession deletes a session.
func (c *Client) DeleteSession(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/session/"+url.PathEscape(id), nil, nil)
}

// RebindSession moves a session to another workspace root.
func (c *Client) RebindSession(ctx context.Context, id, workspaceRoot string) error {
	path := "/api/session/" + url.PathEscape(id) + "/workspace"
	return c.do(ctx, http.MethodPut, path, models.RebindRequest{WorkspaceRoot: workspaceRoot}, nil)
}

// ListSessions lists sessions, optionally only those of userID.
func (c *Client) ListSessions(ctx context.Context, userID string) (*models.SessionListResponse, error) {
	path := "/api/sessions"
	if userID != "" {
		path += "?userId=" + url.QueryEscape(userID)
	}
	var out models.SessionListResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Stats returns service statistics.
func (c *Client) Stats(ctx context.Context) (*models.ServiceStats, error) {
	var out models.ServiceStats
	if err := c.do(ctx, http.MethodGet, "/api/stats", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ReadFile reads a file from a session's workspace.
func (c *Client) ReadFile(ctx context.Context, req models.FileReadRequest) (*models.FileReadResponse, error) {
	var out models.FileReadResponse
	if err := c.do(ctx, http.MethodPost, "/api/files/read", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListFiles lists a directory of a session's workspace.
func (c *Client) ListFiles(ctx context.Context, req models.FileListRequest) (*models.FileListResponse, error) {
	var out models.FileListResponse
	if err := c.do(ctx, http.MethodPost, "/api/files/list", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SearchFiles searches file contents in a session's workspace.
func (c *Client) SearchFiles(ctx context.Context, req models.FileSearchRequest) (*models.FileSearchResponse, error) {
	var out models.FileSearchResponse
	if err := c.do(ctx, http.MethodPost, "/api/files/search", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListCommands lists the slash commands available to a session.
func (c *Client) ListCommands(ctx context.Context, sessionID string) (*models.CommandListResponse, error) {
	var out models.CommandListResponse
	if err := c.do(ctx, http.MethodPost, "/api/commands/list", models.CommandListRequest{SessionID: sessionID}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ExecuteCommand runs a slash command in a session.
func (c *Client) ExecuteCommand(ctx context.Context, req models.CommandExecuteRequest) (*models.CommandExecuteResponse, error) {
	var out models.CommandExecuteResponse
	if err := c.do(ctx, http.MethodPost, "/api/commands/execute", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CommandHelp describes one command, or all of them when command is empty.
func (c *Client) CommandHelp(ctx context.Context, sessionID, command string) (*models.CommandHelpResponse, error) {
	var out models.CommandHelpResponse
	req := models.CommandHelpRequest{SessionID: sessionID, Command: command}
	if err := c.do(ctx, http.MethodPost, "/api/commands/help", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, method, c.url(path), body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	if err := checkResponse(resp); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func checkResponse(resp *http.Response) error {
	if resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusMultipleChoices {
		return nil
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, 8<<10))
	if err != nil {
		return &APIError{Status: resp.StatusCode, Message: fmt.Sprintf("read body: %v", err)}
	}
	var body models.ErrorResponse
	if json.Unmarshal(data, &body) == nil && body.Error != "" {
		msg := body.Error
		if body.Message != "" {
			msg += ": " + body.Message
		}
		return &APIError{Status: resp.StatusCode, Message: msg}
	}
	return &APIError{Status: resp.StatusCode, Message: strings.TrimSpace(string(data))}
}

func (c *Client) url(path string) string {
	base := c.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	return strings.TrimRight(base, "/") + path
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

func (c *Client) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}
