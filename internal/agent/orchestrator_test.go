package agent

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/haasonsaas/turnstream/internal/cancellation"
	"github.com/haasonsaas/turnstream/internal/engine"
	"github.com/haasonsaas/turnstream/internal/engine/providers"
	"github.com/haasonsaas/turnstream/internal/observability"
	"github.com/haasonsaas/turnstream/internal/sessions"
	"github.com/haasonsaas/turnstream/pkg/models"
)

// scriptedEngine replays one scripted turn per Stream call and records the
// parts it was given.
type scriptedEngine struct {
	mu     sync.Mutex
	turns  [][]engine.Event
	inputs [][]engine.Part
	labels []string

	// block makes every stream wait for cancellation after its events.
	block bool
}

func (e *scriptedEngine) Stream(ctx context.Context, parts []engine.Part, label string) (<-chan engine.Event, error) {
	e.mu.Lock()
	idx := len(e.inputs)
	e.inputs = append(e.inputs, parts)
	e.labels = append(e.labels, label)
	var script []engine.Event
	if idx < len(e.turns) {
		script = e.turns[idx]
	} else if len(e.turns) > 0 {
		script = e.turns[len(e.turns)-1]
	}
	block := e.block
	e.mu.Unlock()

	ch := make(chan engine.Event)
	go func() {
		defer close(ch)
		for _, ev := range script {
			select {
			case ch <- ev:
			case <-ctx.Done():
				return
			}
		}
		if block {
			<-ctx.Done()
		}
	}()
	return ch, nil
}

func (e *scriptedEngine) calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.inputs)
}

func (e *scriptedEngine) input(i int) []engine.Part {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.inputs[i]
}

type fakeTools struct {
	mu       sync.Mutex
	executed []models.ToolCall
	execute  func(call models.ToolCall) (engine.ToolResponse, error)
}

func (f *fakeTools) Execute(_ context.Context, call models.ToolCall) (engine.ToolResponse, error) {
	f.mu.Lock()
	f.executed = append(f.executed, call)
	fn := f.execute
	f.mu.Unlock()
	if fn == nil {
		return engine.ToolResponse{}, nil
	}
	return fn(call)
}

func (f *fakeTools) Definitions() []engine.ToolDefinition { return nil }

// recordingSink records frames and can run a hook on each one.
type recordingSink struct {
	mu     sync.Mutex
	frames []any
	onSend func(v any)
}

func (s *recordingSink) Send(v any) error {
	s.mu.Lock()
	s.frames = append(s.frames, v)
	hook := s.onSend
	s.mu.Unlock()
	if hook != nil {
		hook(v)
	}
	return nil
}

// kinds returns the frame sequence with snapshots rendered as "snapshot".
func (s *recordingSink) kinds() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.frames))
	for _, f := range s.frames {
		switch v := f.(type) {
		case models.Event:
			out = append(out, string(v.Type))
		case models.StreamResponse:
			out = append(out, "snapshot")
		default:
			out = append(out, "unknown")
		}
	}
	return out
}

func (s *recordingSink) events(typ models.EventType) []models.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Event
	for _, f := range s.frames {
		if ev, ok := f.(models.Event); ok && ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}

func (s *recordingSink) snapshots() []models.StreamResponse {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.StreamResponse
	for _, f := range s.frames {
		if resp, ok := f.(models.StreamResponse); ok {
			out = append(out, resp)
		}
	}
	return out
}

func (s *recordingSink) messagesOfType(typ models.MessageType) []models.StreamMessage {
	var out []models.StreamMessage
	for _, snap := range s.snapshots() {
		for _, msg := range snap.Messages {
			if msg.Type == typ {
				out = append(out, msg)
			}
		}
	}
	return out
}

type harness struct {
	store   *sessions.Store
	cancels *cancellation.Registry
	orch    *Orchestrator
	root    string
}

func newHarness(t *testing.T, eng engine.Engine, tools engine.ToolExecutor, cfg LoopConfig, opts ...Option) *harness {
	t.Helper()
	factory := engine.FactoryFunc(func(_ context.Context, bind engine.BindOptions) (*engine.Handle, error) {
		return engine.NewHandle(eng, tools, bind.WorkspaceRoot, "test-model", nil), nil
	})
	root := t.TempDir()
	store := sessions.NewStore(factory, sessions.Config{DefaultWorkspace: root})
	cancels := cancellation.NewRegistry()
	return &harness{
		store:   store,
		cancels: cancels,
		orch:    NewOrchestrator(store, cancels, cfg, opts...),
		root:    root,
	}
}

func (h *harness) session(t *testing.T) sessions.Session {
	t.Helper()
	sess, err := h.store.Create(context.Background(), "tester", sessions.Options{WorkspaceRoot: h.root})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	return sess
}

func joinKinds(kinds []string) string {
	return strings.Join(kinds, ",")
}

func TestRunStreamsContentAndRecordsHistory(t *testing.T) {
	h := newHarness(t, providers.NewEchoEngine(providers.EchoConfig{}), &fakeTools{}, DefaultLoopConfig())
	sess := h.session(t)
	sink := &recordingSink{}

	result, err := h.orch.Run(context.Background(), sink, Request{SessionID: sess.ID, Message: "hello there world"})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.Turns != 1 || result.Cancelled {
		t.Fatalf("result = %+v", result)
	}

	kinds := sink.kinds()
	if kinds[0] != "connected" || kinds[len(kinds)-1] != "stream_end" {
		t.Fatalf("frames = %s", joinKinds(kinds))
	}
	snaps := sink.snapshots()
	final := snaps[len(snaps)-1]
	if !final.Finished() {
		t.Fatalf("final snapshot status = %s", final.MsgStatus)
	}

	var text strings.Builder
	for _, msg := range sink.messagesOfType(models.MessageContent) {
		text.WriteString(msg.Value.(string))
	}
	if text.String() != "hello there world" {
		t.Fatalf("streamed content = %q", text.String())
	}

	history, total, err := h.store.History(sess.ID, 0, 0)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if total != 2 {
		t.Fatalf("history total = %d, want 2", total)
	}
	if history[0].Role != models.RoleUser || history[0].Content != "hello there world" {
		t.Fatalf("user item = %+v", history[0])
	}
	if history[1].Role != models.RoleAssistant || history[1].Content != "hello there world" {
		t.Fatalf("assistant item = %+v", history[1])
	}
	if h.cancels.Has(result.RequestID) {
		t.Fatal("token still registered after run")
	}
}

func TestRunFullModeSendsCumulativeContent(t *testing.T) {
	h := newHarness(t, providers.NewEchoEngine(providers.EchoConfig{}), &fakeTools{}, DefaultLoopConfig())
	sess := h.session(t)
	sink := &recordingSink{}

	_, err := h.orch.Run(context.Background(), sink, Request{
		SessionID:    sess.ID,
		Message:      "one two",
		ResponseMode: models.ModeFull,
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	snaps := sink.snapshots()
	final := snaps[len(snaps)-1]
	if len(final.Messages) != 1 || final.Messages[0].Value != "one two" {
		t.Fatalf("final snapshot = %+v", final)
	}
}

func TestRunCreatesSessionWhenMissing(t *testing.T) {
	h := newHarness(t, providers.NewEchoEngine(providers.EchoConfig{}), &fakeTools{}, DefaultLoopConfig())
	sink := &recordingSink{}

	result, err := h.orch.Run(context.Background(), sink, Request{Message: "hi"})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	sess, ok := h.store.Peek(result.SessionID)
	if !ok {
		t.Fatalf("session %s not stored", result.SessionID)
	}
	if sess.OwnerID != sessions.DefaultOwner {
		t.Fatalf("OwnerID = %q, want %q", sess.OwnerID, sessions.DefaultOwner)
	}
	connected := sink.events(models.EventConnected)
	if len(connected) != 1 || connected[0].SessionID != result.SessionID {
		t.Fatalf("connected = %+v", connected)
	}
}

func TestBeginUnknownSession(t *testing.T) {
	h := newHarness(t, providers.NewEchoEngine(providers.EchoConfig{}), &fakeTools{}, DefaultLoopConfig())

	_, err := h.orch.Begin(context.Background(), Request{SessionID: "missing", Message: "hi"})
	if !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("Begin() error = %v, want ErrSessionNotFound", err)
	}
	if h.cancels.Active() != 0 {
		t.Fatalf("Active() = %d, want 0", h.cancels.Active())
	}
}

func TestBeginEmptyMessage(t *testing.T) {
	h := newHarness(t, providers.NewEchoEngine(providers.EchoConfig{}), &fakeTools{}, DefaultLoopConfig())

	if _, err := h.orch.Begin(context.Background(), Request{Message: "  "}); !errors.Is(err, ErrEmptyMessage) {
		t.Fatalf("Begin() error = %v, want ErrEmptyMessage", err)
	}
}

func TestBeginDuplicateRequestID(t *testing.T) {
	h := newHarness(t, providers.NewEchoEngine(providers.EchoConfig{}), &fakeTools{}, DefaultLoopConfig())
	sess := h.session(t)

	turn, err := h.orch.Begin(context.Background(), Request{RequestID: "req-1", SessionID: sess.ID, Message: "a"})
	if err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	defer turn.Close()

	_, err = h.orch.Begin(context.Background(), Request{RequestID: "req-1", SessionID: sess.ID, Message: "b"})
	if !errors.Is(err, cancellation.ErrDuplicate) {
		t.Fatalf("Begin() error = %v, want ErrDuplicate", err)
	}
}

func TestTurnRunTwice(t *testing.T) {
	h := newHarness(t, providers.NewEchoEngine(providers.EchoConfig{}), &fakeTools{}, DefaultLoopConfig())
	sess := h.session(t)

	turn, err := h.orch.Begin(context.Background(), Request{SessionID: sess.ID, Message: "a"})
	if err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	if _, err := turn.Run(&recordingSink{}); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if _, err := turn.Run(&recordingSink{}); !errors.Is(err, ErrTurnStarted) {
		t.Fatalf("second Run() error = %v, want ErrTurnStarted", err)
	}
}

func TestRunExpandsFileReferences(t *testing.T) {
	eng := &scriptedEngine{turns: [][]engine.Event{{
		engine.ContentEvent("ok"),
		engine.FinishedEvent("stop"),
	}}}
	h := newHarness(t, eng, &fakeTools{}, DefaultLoopConfig())
	if err := os.WriteFile(filepath.Join(h.root, "notes.txt"), []byte("remember the milk"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	sess := h.session(t)
	sink := &recordingSink{}

	_, err := h.orch.Run(context.Background(), sink, Request{SessionID: sess.ID, Message: "summarize @notes.txt"})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	refs := sink.events(models.EventFileReferences)
	if len(refs) != 1 || len(refs[0].Files) != 1 || refs[0].Files[0].Path != "notes.txt" {
		t.Fatalf("file_references = %+v", refs)
	}
	if got := sink.messagesOfType(models.MessageFileReferences); len(got) == 0 {
		t.Fatal("expected a file_references message in a snapshot")
	}
	input := eng.input(0)
	if len(input) != 1 || !strings.Contains(input[0].Text, "remember the milk") {
		t.Fatalf("model input = %+v", input)
	}

	history, _, _ := h.store.History(sess.ID, 0, 0)
	if history[0].Content != "summarize @notes.txt" {
		t.Fatalf("history stores expanded query: %q", history[0].Content)
	}
}

func TestRunWarnsOnBadReference(t *testing.T) {
	eng := &scriptedEngine{turns: [][]engine.Event{{engine.FinishedEvent("stop")}}}
	h := newHarness(t, eng, &fakeTools{}, LoopConfig{})
	sess := h.session(t)
	sink := &recordingSink{}

	_, err := h.orch.Run(context.Background(), sink, Request{SessionID: sess.ID, Message: "read @../outside.txt"})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	warnings := sink.events(models.EventWarning)
	if len(warnings) != 1 || !strings.HasPrefix(warnings[0].Message, "Failed to process file references") {
		t.Fatalf("warnings = %+v", warnings)
	}
	if input := eng.input(0); input[0].Text != "read @../outside.txt" {
		t.Fatalf("model input = %q, want original message", input[0].Text)
	}
}

func TestRunExecutesToolsAndFeedsResults(t *testing.T) {
	call := models.ToolCall{CallID: "call_1", Name: "read_file", Args: map[string]any{"path": "a.txt"}}
	eng := &scriptedEngine{turns: [][]engine.Event{
		{engine.ToolCallEvent(call), engine.FinishedEvent("tool_calls")},
		{engine.ContentEvent("done"), engine.FinishedEvent("stop")},
	}}
	tools := &fakeTools{execute: func(c models.ToolCall) (engine.ToolResponse, error) {
		return engine.ToolResponse{Parts: []engine.Part{{
			ToolResult: &engine.ToolResult{CallID: c.CallID, Name: c.Name, Output: "file body"},
		}}}, nil
	}}
	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)
	h := newHarness(t, eng, tools, DefaultLoopConfig(), WithMetrics(metrics))
	sess := h.session(t)
	sink := &recordingSink{}

	result, err := h.orch.Run(context.Background(), sink, Request{SessionID: sess.ID, MessageID: "m1", Message: "read it"})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.Turns != 2 || result.ToolCalls != 1 {
		t.Fatalf("result = %+v", result)
	}
	if eng.calls() != 2 {
		t.Fatalf("engine calls = %d, want 2", eng.calls())
	}
	second := eng.input(1)
	if len(second) != 1 || second[0].ToolResult == nil || second[0].ToolResult.Output != "file body" {
		t.Fatalf("second turn input = %+v", second)
	}
	if eng.labels[1] != "m1-turn-2" {
		t.Fatalf("turn label = %q", eng.labels[1])
	}

	for _, typ := range []models.MessageType{
		models.MessageToolCallRequest,
		models.MessageToolExecutionStart,
		models.MessageToolExecutionComplete,
	} {
		if len(sink.messagesOfType(typ)) == 0 {
			t.Fatalf("no %s message streamed", typ)
		}
	}
	complete := sink.messagesOfType(models.MessageToolExecutionComplete)[0]
	exec, ok := complete.Value.(models.ToolExecution)
	if !ok {
		t.Fatalf("complete value = %T", complete.Value)
	}
	payload, ok := exec.Result.(models.ToolResultPayload)
	if !ok || payload.Output != "file body" || payload.CallID != "call_1" {
		t.Fatalf("result payload = %+v", exec.Result)
	}

	if got := testutil.ToFloat64(metrics.ToolExecutionCounter.WithLabelValues("read_file", "success")); got != 1 {
		t.Fatalf("tool executions = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.TurnCounter.WithLabelValues(observability.OutcomeCompleted)); got != 1 {
		t.Fatalf("completed turns = %v, want 1", got)
	}
}

func TestRunStopsWhenToolsReturnNothing(t *testing.T) {
	call := models.ToolCall{CallID: "call_1", Name: "noop"}
	eng := &scriptedEngine{turns: [][]engine.Event{
		{engine.ToolCallEvent(call), engine.FinishedEvent("tool_calls")},
	}}
	h := newHarness(t, eng, &fakeTools{}, DefaultLoopConfig())
	sess := h.session(t)

	result, err := h.orch.Run(context.Background(), &recordingSink{}, Request{SessionID: sess.ID, Message: "go"})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if eng.calls() != 1 || result.ToolCalls != 1 {
		t.Fatalf("engine calls = %d, tool calls = %d", eng.calls(), result.ToolCalls)
	}
}

func TestRunFoldsToolFailuresIntoNextTurn(t *testing.T) {
	calls := []models.ToolCall{
		{CallID: "call_1", Name: "broken"},
		{CallID: "call_2", Name: "grumpy"},
	}
	eng := &scriptedEngine{turns: [][]engine.Event{
		{engine.ToolCallEvent(calls[0]), engine.ToolCallEvent(calls[1]), engine.FinishedEvent("tool_calls")},
		{engine.ContentEvent("sorry"), engine.FinishedEvent("stop")},
	}}
	tools := &fakeTools{execute: func(c models.ToolCall) (engine.ToolResponse, error) {
		if c.Name == "broken" {
			return engine.ToolResponse{}, errors.New("executor exploded")
		}
		return engine.ToolResponse{Error: "permission denied"}, nil
	}}
	h := newHarness(t, eng, tools, DefaultLoopConfig())
	sess := h.session(t)
	sink := &recordingSink{}

	if _, err := h.orch.Run(context.Background(), sink, Request{SessionID: sess.ID, Message: "go"}); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	second := eng.input(1)
	if len(second) != 2 {
		t.Fatalf("second turn input = %+v", second)
	}
	if second[0].Text != "Failed to execute tool broken: executor exploded" {
		t.Fatalf("first part = %q", second[0].Text)
	}
	if second[1].Text != "Tool execution error: permission denied" {
		t.Fatalf("second part = %q", second[1].Text)
	}
	if got := sink.messagesOfType(models.MessageToolExecutionError); len(got) != 2 {
		t.Fatalf("tool_execution_error messages = %d, want 2", len(got))
	}
	if len(sink.events(models.EventError)) != 0 {
		t.Fatal("tool failures must not end the stream with an error event")
	}
}

func TestRunStopsAtTurnCeiling(t *testing.T) {
	call := models.ToolCall{CallID: "call_1", Name: "again"}
	eng := &scriptedEngine{turns: [][]engine.Event{
		{engine.ToolCallEvent(call), engine.FinishedEvent("tool_calls")},
	}}
	tools := &fakeTools{execute: func(c models.ToolCall) (engine.ToolResponse, error) {
		return engine.ToolResponse{Parts: []engine.Part{engine.TextPart("more")}}, nil
	}}
	h := newHarness(t, eng, tools, LoopConfig{MaxTurns: 3})
	sess := h.session(t)
	sink := &recordingSink{}

	result, err := h.orch.Run(context.Background(), sink, Request{SessionID: sess.ID, Message: "loop"})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if eng.calls() != 3 || result.Turns != 3 {
		t.Fatalf("engine calls = %d, turns = %d, want 3", eng.calls(), result.Turns)
	}
	kinds := sink.kinds()
	if kinds[len(kinds)-1] != "stream_end" {
		t.Fatalf("frames = %s", joinKinds(kinds))
	}
	if len(sink.events(models.EventError)) != 0 {
		t.Fatal("reaching the ceiling is not an error")
	}
}

func TestRunCancel(t *testing.T) {
	eng := &scriptedEngine{
		turns: [][]engine.Event{{engine.ContentEvent("partial")}},
		block: true,
	}
	h := newHarness(t, eng, &fakeTools{}, DefaultLoopConfig())
	sess := h.session(t)

	sink := &recordingSink{}
	sink.onSend = func(v any) {
		if _, ok := v.(models.StreamResponse); ok {
			h.cancels.Cancel("req-cancel")
		}
	}

	result, err := h.orch.Run(context.Background(), sink, Request{
		RequestID: "req-cancel",
		SessionID: sess.ID,
		Message:   "long answer",
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !result.Cancelled {
		t.Fatal("expected cancelled result")
	}
	if got := sink.events(models.EventCancelled); len(got) != 1 {
		t.Fatalf("cancelled events = %d, want 1", len(got))
	}
	kinds := sink.kinds()
	if kinds[len(kinds)-1] != "stream_end" {
		t.Fatalf("frames = %s", joinKinds(kinds))
	}
	if _, total, _ := h.store.History(sess.ID, 0, 0); total != 0 {
		t.Fatalf("history total = %d, want 0 after cancel", total)
	}
}

func TestRunCancelDuringTool(t *testing.T) {
	call := models.ToolCall{CallID: "call_1", Name: "slow"}
	eng := &scriptedEngine{turns: [][]engine.Event{
		{engine.ToolCallEvent(call), engine.FinishedEvent("tool_calls")},
	}}
	tools := &fakeTools{}
	h := newHarness(t, eng, tools, DefaultLoopConfig())
	tools.execute = func(models.ToolCall) (engine.ToolResponse, error) {
		h.cancels.Cancel("req-tool")
		return engine.ToolResponse{Parts: []engine.Part{engine.TextPart("late")}}, nil
	}
	sess := h.session(t)
	sink := &recordingSink{}

	result, err := h.orch.Run(context.Background(), sink, Request{RequestID: "req-tool", SessionID: sess.ID, Message: "go"})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !result.Cancelled || eng.calls() != 1 {
		t.Fatalf("result = %+v, engine calls = %d", result, eng.calls())
	}
	if got := sink.messagesOfType(models.MessageToolExecutionComplete); len(got) != 0 {
		t.Fatal("result of a cancelled tool must be discarded")
	}
}

func TestRunEngineError(t *testing.T) {
	h := newHarness(t, providers.NewEchoEngine(providers.EchoConfig{}), &fakeTools{}, DefaultLoopConfig())
	sess := h.session(t)
	sink := &recordingSink{}

	_, err := h.orch.Run(context.Background(), sink, Request{SessionID: sess.ID, Message: "/fail upstream went away"})
	var loopErr *LoopError
	if !errors.As(err, &loopErr) {
		t.Fatalf("Run() error = %v, want *LoopError", err)
	}
	if loopErr.Phase != PhaseStream || loopErr.Turn != 1 {
		t.Fatalf("LoopError = %+v", loopErr)
	}

	failed := sink.events(models.EventError)
	if len(failed) != 1 || !strings.Contains(failed[0].Error, "upstream went away") {
		t.Fatalf("error events = %+v", failed)
	}
	kinds := sink.kinds()
	n := len(kinds)
	if n < 3 || kinds[n-3] != "error" || kinds[n-2] != "snapshot" || kinds[n-1] != "stream_end" {
		t.Fatalf("failed turn must end with error, snapshot, stream_end; frames = %s", joinKinds(kinds))
	}
	if _, total, _ := h.store.History(sess.ID, 0, 0); total != 0 {
		t.Fatalf("history total = %d, want 0 after failure", total)
	}
}

func TestRunForwardsUnmappedEngineEvents(t *testing.T) {
	eng := &scriptedEngine{turns: [][]engine.Event{{
		{Kind: engine.KindOther, Type: "thought", Raw: map[string]any{"subject": "planning"}},
		engine.FinishedEvent("stop"),
	}}}
	h := newHarness(t, eng, &fakeTools{}, DefaultLoopConfig())
	sess := h.session(t)
	sink := &recordingSink{}

	if _, err := h.orch.Run(context.Background(), sink, Request{SessionID: sess.ID, Message: "think"}); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	thoughts := sink.events("thought")
	if len(thoughts) != 1 {
		t.Fatalf("thought events = %+v", thoughts)
	}
	if raw, ok := thoughts[0].Value.(map[string]any); !ok || raw["subject"] != "planning" {
		t.Fatalf("thought value = %+v", thoughts[0].Value)
	}
}

func TestSanitizeLoopConfig(t *testing.T) {
	cfg := sanitizeLoopConfig(LoopConfig{MaxTurns: 1000})
	if cfg.MaxTurns != MaxMaxTurns {
		t.Fatalf("MaxTurns = %d, want %d", cfg.MaxTurns, MaxMaxTurns)
	}
	if cfg.ResponseMode != models.ModeIncremental {
		t.Fatalf("ResponseMode = %q", cfg.ResponseMode)
	}
	if sanitizeLoopConfig(LoopConfig{}).MaxTurns != DefaultMaxTurns {
		t.Fatal("zero MaxTurns should use the default")
	}
}
