package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haasonsaas/turnstream/internal/agent"
	"github.com/haasonsaas/turnstream/internal/cancellation"
	"github.com/haasonsaas/turnstream/internal/client"
	"github.com/haasonsaas/turnstream/internal/engine/providers"
	"github.com/haasonsaas/turnstream/internal/observability"
	"github.com/haasonsaas/turnstream/internal/sessions"
	"github.com/haasonsaas/turnstream/pkg/models"
)

type testEnv struct {
	server  *Server
	http    *httptest.Server
	client  *client.Client
	store   *sessions.Store
	cancels *cancellation.Registry
	metrics *observability.Metrics
	root    string
}

func newTestEnv(t *testing.T, echoDelay time.Duration) *testEnv {
	t.Helper()
	factory, err := providers.NewFactory(providers.FactoryConfig{Provider: providers.ProviderEcho, EchoDelay: echoDelay}, nil)
	require.NoError(t, err)

	metrics := observability.NewMetrics(prometheus.NewRegistry())
	root := t.TempDir()
	cancels := cancellation.NewRegistry()
	store := sessions.NewStore(factory, sessions.Config{DefaultWorkspace: root},
		sessions.WithObserver(SessionObserver(metrics)),
		sessions.WithBusyFunc(cancels.SessionBusy),
	)
	orch := agent.NewOrchestrator(store, cancels, agent.DefaultLoopConfig(), agent.WithMetrics(metrics))
	server := NewServer(Config{CORSOrigins: []string{"http://ui.test"}}, store, cancels, orch, WithMetrics(metrics))

	ts := httptest.NewServer(server.Handler())
	t.Cleanup(ts.Close)
	return &testEnv{
		server:  server,
		http:    ts,
		client:  client.New(ts.URL),
		store:   store,
		cancels: cancels,
		metrics: metrics,
		root:    root,
	}
}

func (e *testEnv) post(t *testing.T, path, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(e.http.URL+path, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeJSON(t *testing.T, r io.Reader, out any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(r).Decode(out))
}

func TestChatStreamCreatesSession(t *testing.T) {
	env := newTestEnv(t, 0)

	resp := env.post(t, "/api/chat/stream", `{"message":"hello streaming world"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	assert.Equal(t, "no-cache", resp.Header.Get("Cache-Control"))

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	frames := strings.Split(strings.TrimSpace(string(body)), "\n\n")
	require.GreaterOrEqual(t, len(frames), 3)

	first, err := client.DecodeFrame(json.RawMessage(strings.TrimPrefix(frames[0], "data: ")))
	require.NoError(t, err)
	require.NotNil(t, first.Event)
	assert.Equal(t, models.EventConnected, first.Event.Type)
	assert.NotEmpty(t, first.Event.RequestID)

	last, err := client.DecodeFrame(json.RawMessage(strings.TrimPrefix(frames[len(frames)-1], "data: ")))
	require.NoError(t, err)
	require.NotNil(t, last.Event)
	assert.Equal(t, models.EventStreamEnd, last.Event.Type)

	history, err := env.client.History(context.Background(), models.HistoryRequest{SessionID: first.Event.SessionID})
	require.NoError(t, err)
	require.Equal(t, 2, history.Total)
	assert.Equal(t, "hello streaming world", history.History[1].Content)
	assert.Equal(t, 0, env.cancels.Active())
}

func TestChatStreamThroughClient(t *testing.T) {
	env := newTestEnv(t, 0)
	ctx := context.Background()

	created, err := env.client.CreateSession(ctx, models.CreateSessionRequest{})
	require.NoError(t, err)

	result, err := env.client.Chat(ctx, models.ChatRequest{SessionID: created.SessionID, Message: "one two three"}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, created.SessionID, result.SessionID)
	require.Len(t, result.Messages, 1)
	assert.Equal(t, "one two three", result.Messages[0].Content)
	assert.True(t, result.Messages[0].Complete())
}

func TestChatStreamUnknownSession(t *testing.T) {
	env := newTestEnv(t, 0)

	resp := env.post(t, "/api/chat/stream", `{"sessionId":"missing","message":"hi"}`)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	var body models.ErrorResponse
	decodeJSON(t, resp.Body, &body)
	assert.Equal(t, "Session not found", body.Error)
	assert.Equal(t, "missing", body.SessionID)
}

func TestChatStreamValidation(t *testing.T) {
	env := newTestEnv(t, 0)

	for _, body := range []string{`{}`, `{"message":""}`, `{"message":42}`, `not json`} {
		resp := env.post(t, "/api/chat/stream", body)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, body)
		var errBody models.ErrorResponse
		decodeJSON(t, resp.Body, &errBody)
		assert.Equal(t, "Validation Error", errBody.Error, body)
	}
}

func TestChatStreamBindFailure(t *testing.T) {
	env := newTestEnv(t, 0)

	resp := env.post(t, "/api/chat/stream", `{"message":"hi","workspaceRoot":"/definitely/not/here"}`)
	require.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	var body models.ErrorResponse
	decodeJSON(t, resp.Body, &body)
	assert.Equal(t, "Failed to create session", body.Error)
}

func TestCancelInFlight(t *testing.T) {
	env := newTestEnv(t, 50*time.Millisecond)
	ctx := context.Background()

	message := strings.Repeat("word ", 200)
	result, err := env.client.Chat(ctx, models.ChatRequest{Message: message},
		func(requestID string) {
			go func() {
				_, err := env.client.Cancel(ctx, requestID)
				assert.NoError(t, err)
			}()
		},
		nil,
	)
	require.NoError(t, err)
	assert.True(t, result.Cancelled)

	history, err := env.client.History(ctx, models.HistoryRequest{SessionID: result.SessionID})
	require.NoError(t, err)
	assert.Equal(t, 0, history.Total)
	assert.Equal(t, float64(1), testutil.ToFloat64(env.metrics.TurnCounter.WithLabelValues(observability.OutcomeCancelled)))
}

func TestCancelUnknownRequest(t *testing.T) {
	env := newTestEnv(t, 0)

	resp, err := env.client.Cancel(context.Background(), "req_unknown")
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, "req_unknown", resp.RequestID)

	bad := env.post(t, "/api/chat/cancel", `{}`)
	assert.Equal(t, http.StatusBadRequest, bad.StatusCode)
}

func TestChatStreamRequestIDHeader(t *testing.T) {
	env := newTestEnv(t, 0)

	req, err := http.NewRequest(http.MethodPost, env.http.URL+"/api/chat/stream", strings.NewReader(`{"message":"hi"}`))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(requestIDHeader, "req-from-header")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `"requestId":"req-from-header"`)
}

func TestHistoryPagination(t *testing.T) {
	env := newTestEnv(t, 0)
	ctx := context.Background()

	created, err := env.client.CreateSession(ctx, models.CreateSessionRequest{})
	require.NoError(t, err)
	for _, msg := range []string{"a", "b", "c"} {
		_, err := env.client.Chat(ctx, models.ChatRequest{SessionID: created.SessionID, Message: msg}, nil, nil)
		require.NoError(t, err)
	}

	page, err := env.client.History(ctx, models.HistoryRequest{SessionID: created.SessionID, Limit: 2, Offset: 1})
	require.NoError(t, err)
	assert.Equal(t, 6, page.Total)
	assert.Equal(t, 2, page.Limit)
	assert.Equal(t, 1, page.Offset)
	require.Len(t, page.History, 2)
	assert.Equal(t, int64(2), page.History[0].ID)

	_, err = env.client.History(ctx, models.HistoryRequest{SessionID: "missing"})
	assert.True(t, client.IsNotFound(err))
}

func TestSessionLifecycle(t *testing.T) {
	env := newTestEnv(t, 0)
	ctx := context.Background()

	created, err := env.client.CreateSession(ctx, models.CreateSessionRequest{
		UserID:   "alice",
		Metadata: map[string]any{"title": "notes"},
	})
	require.NoError(t, err)
	assert.Equal(t, float64(1), testutil.ToFloat64(env.metrics.ActiveSessions))

	stats, err := env.client.GetSession(ctx, created.SessionID)
	require.NoError(t, err)
	assert.Equal(t, "alice", stats.UserID)
	assert.Equal(t, env.root, stats.WorkspaceRoot)
	assert.Equal(t, "notes", stats.Metadata["title"])

	list, err := env.client.ListSessions(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 1, list.Total)

	others, err := env.client.ListSessions(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 0, others.Total)

	newRoot := t.TempDir()
	require.NoError(t, env.client.RebindSession(ctx, created.SessionID, newRoot))
	stats, err = env.client.GetSession(ctx, created.SessionID)
	require.NoError(t, err)
	assert.Equal(t, newRoot, stats.WorkspaceRoot)

	err = env.client.RebindSession(ctx, created.SessionID, "/definitely/not/here")
	var apiErr *client.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)

	require.NoError(t, env.client.DeleteSession(ctx, created.SessionID))
	assert.True(t, client.IsNotFound(env.client.DeleteSession(ctx, created.SessionID)))
	_, err = env.client.GetSession(ctx, created.SessionID)
	assert.True(t, client.IsNotFound(err))
	assert.True(t, client.IsNotFound(env.client.RebindSession(ctx, created.SessionID, newRoot)))
	assert.Equal(t, float64(0), testutil.ToFloat64(env.metrics.ActiveSessions))
}

func TestHealthReadyStats(t *testing.T) {
	env := newTestEnv(t, 0)
	ctx := context.Background()

	resp, err := http.Get(env.http.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	var health models.HealthResponse
	decodeJSON(t, resp.Body, &health)
	assert.Equal(t, "ok", health.Status)

	_, err = env.client.CreateSession(ctx, models.CreateSessionRequest{})
	require.NoError(t, err)

	ready, err := http.Get(env.http.URL + "/ready")
	require.NoError(t, err)
	defer ready.Body.Close()
	var readyBody models.ReadyResponse
	decodeJSON(t, ready.Body, &readyBody)
	assert.Equal(t, "ready", readyBody.Status)
	assert.Equal(t, 1, readyBody.Sessions)

	stats, err := env.client.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalSessions)
	assert.Equal(t, 0, stats.ActiveRequests)
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t, 0)

	_, err := env.client.GetSession(context.Background(), "abc")
	require.Error(t, err)

	resp, err := http.Get(env.http.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "turnstream_http_requests_total")
	// Route templates, not raw paths, are used as labels.
	assert.Contains(t, string(body), `path="/api/session/{id}"`)
}

func TestCORS(t *testing.T) {
	env := newTestEnv(t, 0)

	req, err := http.NewRequest(http.MethodOptions, env.http.URL+"/api/chat/stream", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://ui.test")
	req.Header.Set("Access-Control-Request-Method", "POST")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "http://ui.test", resp.Header.Get("Access-Control-Allow-Origin"))

	req.Header.Set("Origin", "http://evil.test")
	resp2, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp2.Body.Close()
	assert.Empty(t, resp2.Header.Get("Access-Control-Allow-Origin"))
}

func TestNotFoundIsJSON(t *testing.T) {
	env := newTestEnv(t, 0)

	resp, err := http.Get(env.http.URL + "/nope")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
}

func TestStartStop(t *testing.T) {
	factory, err := providers.NewFactory(providers.FactoryConfig{}, nil)
	require.NoError(t, err)
	store := sessions.NewStore(factory, sessions.Config{DefaultWorkspace: t.TempDir()})
	cancels := cancellation.NewRegistry()
	orch := agent.NewOrchestrator(store, cancels, agent.DefaultLoopConfig())
	server := NewServer(Config{Addr: "127.0.0.1:0"}, store, cancels, orch)

	ctx := context.Background()
	require.NoError(t, server.Start(ctx))
	assert.Error(t, server.Start(ctx))

	c := client.New("http://" + server.Addr())
	created, err := c.CreateSession(ctx, models.CreateSessionRequest{})
	require.NoError(t, err)

	stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	require.NoError(t, server.Stop(stopCtx))

	_, ok := store.Peek(created.SessionID)
	assert.False(t, ok, "sessions are released on stop")
}

func TestDecodeBodyTooLarge(t *testing.T) {
	body := `{"message":"` + strings.Repeat("x", maxBodyBytes) + `"}`
	req := httptest.NewRequest(http.MethodPost, "/api/chat/stream", bytes.NewBufferString(body))

	var out models.ChatRequest
	err := decodeBody(req, schemaChat, &out)
	var verr *validationError
	require.ErrorAs(t, err, &verr)
}
