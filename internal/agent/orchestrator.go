// Package agent runs turn streams: one user message driven through the
// model and its tool calls until the model stops asking for tools, the
// client cancels, or the turn ceiling is reached. Progress is reported to a
// Sink as discrete events and collector snapshots.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/haasonsaas/turnstream/internal/cancellation"
	"github.com/haasonsaas/turnstream/internal/engine"
	"github.com/haasonsaas/turnstream/internal/observability"
	"github.com/haasonsaas/turnstream/internal/sessions"
	"github.com/haasonsaas/turnstream/internal/stream"
	"github.com/haasonsaas/turnstream/internal/workspace"
	"github.com/haasonsaas/turnstream/pkg/models"
)

// Sink receives the frames of one turn stream in order. *stream.Writer is
// the production sink.
type Sink interface {
	Send(v any) error
}

// Request is one chat request.
type Request struct {
	// RequestID identifies the turn stream for cancellation. Generated when
	// empty.
	RequestID string

	// SessionID selects an existing session. When empty a session is created
	// for OwnerID with WorkspaceRoot and Model.
	SessionID     string
	OwnerID       string
	WorkspaceRoot string
	Model         string

	// MessageID prefixes the ids of collected messages. Generated when empty.
	MessageID string

	Message      string
	ResponseMode models.ResponseMode
}

// Result summarizes a finished turn stream.
type Result struct {
	RequestID string
	SessionID string
	MessageID string

	// Turns is the number of model round trips started.
	Turns int

	// ToolCalls is the number of tool calls executed.
	ToolCalls int

	Cancelled bool
	Duration  time.Duration
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithMetrics records turn and tool metrics.
func WithMetrics(m *observability.Metrics) Option {
	return func(o *Orchestrator) {
		o.metrics = m
	}
}

// WithTracer records turn, model and tool spans.
func WithTracer(t *observability.Tracer) Option {
	return func(o *Orchestrator) {
		if t != nil {
			o.tracer = t
		}
	}
}

// WithClock overrides the time source of collector timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

// Orchestrator drives turn streams against the session store.
type Orchestrator struct {
	store   *sessions.Store
	cancels *cancellation.Registry
	cfg     LoopConfig
	logger  *slog.Logger
	metrics *observability.Metrics
	tracer  *observability.Tracer
	now     func() time.Time
}

// NewOrchestrator creates an orchestrator.
func NewOrchestrator(store *sessions.Store, cancels *cancellation.Registry, cfg LoopConfig, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:   store,
		cancels: cancels,
		cfg:     sanitizeLoopConfig(cfg),
		logger:  slog.Default(),
		tracer:  observability.NoopTracer(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	o.logger = o.logger.With("component", "agent")
	return o
}

// Config returns the effective configuration.
func (o *Orchestrator) Config() LoopConfig {
	return o.cfg
}

// Run resolves the session and streams the turn to sink. Errors returned
// before anything was sent to sink are ErrSessionNotFound, ErrEmptyMessage,
// a *sessions.BindError or a cancellation.ErrDuplicate; those are also
// returned by Begin. A failure during streaming is reported to sink as an
// error event and returned as a *LoopError.
func (o *Orchestrator) Run(ctx context.Context, sink Sink, req Request) (*Result, error) {
	turn, err := o.Begin(ctx, req)
	if err != nil {
		return nil, err
	}
	return turn.Run(sink)
}

// Begin resolves the session and registers the cancellation token without
// sending anything, so transport-level errors can still be reported with a
// status code. The returned Turn must be Run or Closed.
func (o *Orchestrator) Begin(ctx context.Context, req Request) (*Turn, error) {
	if strings.TrimSpace(req.Message) == "" {
		return nil, ErrEmptyMessage
	}

	sess, err := o.resolveSession(ctx, req)
	if err != nil {
		return nil, err
	}
	if sess.Handle == nil || sess.Handle.Engine == nil {
		return nil, &LoopError{Phase: PhaseResolve, Cause: engine.ErrNoEngine}
	}

	if req.RequestID == "" {
		req.RequestID = cancellation.NewRequestID()
	}
	if req.MessageID == "" {
		req.MessageID = "msg_" + uuid.NewString()
	}
	mode := req.ResponseMode
	if mode == "" {
		mode = o.cfg.ResponseMode
	}

	token, err := o.cancels.Open(ctx, req.RequestID, sess.ID)
	if err != nil {
		return nil, err
	}
	token = observability.AddRequestID(token, req.RequestID)
	token = observability.AddSessionID(token, sess.ID)

	return &Turn{
		o:         o,
		ctx:       token,
		req:       req,
		session:   sess,
		collector: stream.NewCollector(req.MessageID, mode, stream.WithClock(o.now)),
		phase:     PhaseResolve,
		result: &Result{
			RequestID: req.RequestID,
			SessionID: sess.ID,
			MessageID: req.MessageID,
		},
	}, nil
}

func (o *Orchestrator) resolveSession(ctx context.Context, req Request) (sessions.Session, error) {
	if req.SessionID != "" {
		sess, ok := o.store.Get(req.SessionID)
		if !ok {
			return sessions.Session{}, ErrSessionNotFound
		}
		return sess, nil
	}
	owner := req.OwnerID
	if owner == "" {
		owner = o.cfg.DefaultOwner
	}
	sess, err := o.store.Create(ctx, owner, sessions.Options{
		WorkspaceRoot: req.WorkspaceRoot,
		Model:         req.Model,
	})
	if err != nil {
		return sessions.Session{}, err
	}
	o.logger.InfoContext(ctx, "session created for chat request", "session_id", sess.ID, "workspace_root", sess.WorkspaceRoot)
	return sess, nil
}

// Turn is one registered turn stream.
type Turn struct {
	o         *Orchestrator
	ctx       context.Context
	req       Request
	session   sessions.Session
	collector *stream.Collector
	sink      Sink

	phase     LoopPhase
	cancelled bool
	sinkErr   error
	result    *Result

	startOnce sync.Once
	closeOnce sync.Once
}

// RequestID returns the id the turn is registered under.
func (t *Turn) RequestID() string { return t.req.RequestID }

// SessionID returns the session the turn runs in.
func (t *Turn) SessionID() string { return t.session.ID }

// Close releases the cancellation token of a turn that will not be run.
func (t *Turn) Close() {
	t.closeOnce.Do(func() {
		t.o.cancels.Close(t.req.RequestID)
		t.phase = PhaseClosed
	})
}

// Run streams the turn to sink and releases the turn when done.
func (t *Turn) Run(sink Sink) (*Result, error) {
	started := false
	t.startOnce.Do(func() { started = true })
	if !started {
		return nil, ErrTurnStarted
	}
	defer t.Close()

	o := t.o
	t.sink = sink
	start := time.Now()

	ctx, span := o.tracer.TraceTurnStream(t.ctx, t.req.RequestID, t.session.ID)
	t.ctx = ctx
	defer span.End()
	if o.metrics != nil {
		o.metrics.TurnStarted()
	}

	err := t.loop()
	o.store.Touch(t.session.ID)

	t.result.Cancelled = t.cancelled
	t.result.Duration = time.Since(start)
	outcome := observability.OutcomeCompleted
	switch {
	case err != nil:
		outcome = observability.OutcomeFailed
		observability.RecordError(span, err)
	case t.cancelled:
		outcome = observability.OutcomeCancelled
	}
	observability.SetAttributes(span,
		"turns", t.result.Turns,
		"tool_calls", t.result.ToolCalls,
		"outcome", outcome,
	)
	if o.metrics != nil {
		o.metrics.TurnFinished(outcome, t.result.Turns, t.result.Duration)
		if err != nil {
			o.metrics.RecordError("agent", string(phaseOf(err)))
		}
	}
	o.logger.InfoContext(t.ctx, "turn stream finished",
		"outcome", outcome,
		"turns", t.result.Turns,
		"tool_calls", t.result.ToolCalls,
		"duration_ms", t.result.Duration.Milliseconds(),
	)
	return t.result, err
}

func (t *Turn) loop() error {
	connected := t.event(models.EventConnected)
	t.send(connected)

	query := t.expandReferences()
	parts := []engine.Part{engine.TextPart(query)}

	var loopErr error
	for turn := 1; ; turn++ {
		if turn > t.o.cfg.MaxTurns {
			t.o.logger.WarnContext(t.ctx, "turn ceiling reached", "max_turns", t.o.cfg.MaxTurns)
			break
		}
		t.result.Turns = turn

		calls, err := t.streamModel(turn, parts)
		if err != nil {
			loopErr = err
			break
		}
		if t.cancelled || len(calls) == 0 {
			break
		}

		parts = t.executeTools(turn, calls)
		if t.cancelled || len(parts) == 0 {
			break
		}
	}

	if loopErr != nil {
		t.o.logger.ErrorContext(t.ctx, "turn stream failed", "error", loopErr)
		failed := t.event(models.EventError)
		failed.Error = loopErr.Error()
		t.send(failed)
	}
	t.finalize(loopErr == nil)
	return loopErr
}

// expandReferences inlines @path references. A failure is reported as a
// warning and the original message is used.
func (t *Turn) expandReferences() string {
	message := t.req.Message
	if !strings.Contains(message, "@") {
		return message
	}

	processor := workspace.NewProcessor(t.session.WorkspaceRoot, t.o.cfg.References)
	processed, err := processor.Process(t.ctx, message)
	if err != nil {
		t.o.logger.WarnContext(t.ctx, "file reference expansion failed", "error", err)
		warning := t.event(models.EventWarning)
		warning.Message = fmt.Sprintf("Failed to process file references: %v", err)
		t.send(warning)
		return message
	}
	if len(processed.Files) == 0 {
		return message
	}

	refs := t.event(models.EventFileReferences)
	refs.Files = processed.Files
	t.send(refs)
	t.collector.AddMessage(models.MessageFileReferences, processed.Files, models.StatusGenerated)
	t.snapshot()
	return processed.Query
}

// streamModel consumes one model stream and returns the tool calls it
// requested.
func (t *Turn) streamModel(turn int, parts []engine.Part) ([]models.ToolCall, error) {
	t.phase = PhaseStream
	handle := t.session.Handle

	ctx, span := t.o.tracer.TraceModelStream(t.ctx, handle.Model, turn)
	defer span.End()

	events, err := handle.Engine.Stream(ctx, parts, fmt.Sprintf("%s-turn-%d", t.req.MessageID, turn))
	if err != nil {
		if t.checkCancelled() {
			return nil, nil
		}
		observability.RecordError(span, err)
		return nil, &LoopError{Phase: PhaseStream, Turn: turn, Cause: err}
	}

	var calls []models.ToolCall
	for ev := range events {
		if t.checkCancelled() {
			return nil, nil
		}
		switch ev.Kind {
		case engine.KindContent:
			t.collector.AppendContent(ev.Text, false)
			t.snapshot()

		case engine.KindToolCallRequest:
			if ev.ToolCall == nil {
				continue
			}
			calls = append(calls, *ev.ToolCall)
			t.collector.AddMessage(models.MessageToolCallRequest, *ev.ToolCall, models.StatusGenerated)
			t.snapshot()

		case engine.KindFinished:
			t.collector.CompleteContentMessage()
			t.snapshot()

		case engine.KindError:
			if t.checkCancelled() {
				return nil, nil
			}
			observability.RecordError(span, ev.Err)
			return nil, &LoopError{Phase: PhaseStream, Turn: turn, Cause: ev.Err}

		default:
			passthrough := models.Event{
				Type:      models.EventType(ev.Type),
				Value:     ev.Raw,
				Timestamp: t.o.now().UnixMilli(),
			}
			t.send(passthrough)
		}
	}
	if t.checkCancelled() {
		return nil, nil
	}
	observability.SetAttributes(span, "tool_calls", len(calls))
	return calls, nil
}

// executeTools runs calls in order and returns the parts for the next model
// turn. Tool failures are reported and fed back to the model; they never
// abort the remaining calls.
func (t *Turn) executeTools(turn int, calls []models.ToolCall) []engine.Part {
	t.phase = PhaseExecuteTools
	tools := t.session.Handle.Tools

	var parts []engine.Part
	for _, call := range calls {
		if t.checkCancelled() {
			return nil
		}

		t.collector.AddMessage(models.MessageToolExecutionStart, call, models.StatusGenerating)
		t.snapshot()

		resp, err := t.executeTool(tools, call)
		if t.checkCancelled() {
			// The tool ran to completion but its result is discarded.
			t.o.logger.DebugContext(t.ctx, "tool result discarded after cancel", "tool", call.Name, "turn", turn)
			return nil
		}
		t.collector.UpdateLastMessageStatus(models.StatusGenerated)
		t.result.ToolCalls++

		switch {
		case err != nil:
			t.o.logger.WarnContext(t.ctx, "tool executor failed", "tool", call.Name, "error", err)
			t.collector.AddMessage(models.MessageToolExecutionError, models.ToolExecution{
				ToolCall: call,
				Error:    err.Error(),
			}, models.StatusGenerated)
			parts = append(parts, engine.TextPart(fmt.Sprintf("Failed to execute tool %s: %v", call.Name, err)))

		case resp.Error != "":
			t.collector.AddMessage(models.MessageToolExecutionError, models.ToolExecution{
				ToolCall: call,
				Error:    resp.Error,
			}, models.StatusGenerated)
			parts = append(parts, resp.Parts...)
			parts = append(parts, engine.TextPart("Tool execution error: "+resp.Error))

		default:
			t.collector.AddMessage(models.MessageToolExecutionComplete, models.ToolExecution{
				ToolCall: call,
				Result:   resultPayload(call, resp),
			}, models.StatusGenerated)
			parts = append(parts, resp.Parts...)
		}
		t.snapshot()
	}
	return parts
}

func (t *Turn) executeTool(tools engine.ToolExecutor, call models.ToolCall) (engine.ToolResponse, error) {
	ctx, span := t.o.tracer.TraceToolExecution(t.ctx, call.Name, call.CallID)
	defer span.End()

	if tools == nil {
		err := fmt.Errorf("no tools bound for %s", call.Name)
		observability.RecordError(span, err)
		return engine.ToolResponse{}, err
	}

	start := time.Now()
	resp, err := tools.Execute(ctx, call)
	status := "success"
	if err != nil || resp.Error != "" {
		status = "error"
	}
	if err != nil {
		observability.RecordError(span, err)
	} else if resp.Error != "" {
		observability.RecordError(span, errors.New(resp.Error))
	}
	if t.o.metrics != nil {
		t.o.metrics.RecordToolExecution(call.Name, status, time.Since(start))
	}
	return resp, err
}

func resultPayload(call models.ToolCall, resp engine.ToolResponse) models.ToolResultPayload {
	var outputs []string
	for _, part := range resp.Parts {
		if part.ToolResult != nil {
			outputs = append(outputs, part.ToolResult.Output)
		} else if part.Text != "" {
			outputs = append(outputs, part.Text)
		}
	}
	return models.ToolResultPayload{CallID: call.CallID, Output: strings.Join(outputs, "\n")}
}

// finalize commits history for a completed turn stream and sends the final
// snapshot and stream_end.
func (t *Turn) finalize(succeeded bool) {
	t.phase = PhaseFinalize
	t.collector.Seal()

	if succeeded && !t.cancelled {
		items := []models.HistoryItem{{Role: models.RoleUser, Content: t.req.Message}}
		if text := t.collector.ContentText(); text != "" {
			items = append(items, models.HistoryItem{Role: models.RoleAssistant, Content: text})
		}
		if _, err := t.o.store.AppendHistory(t.session.ID, items...); err != nil {
			t.o.logger.WarnContext(t.ctx, "history not recorded", "error", err)
		}
	}

	t.send(t.collector.BuildResponse(t.session.ID, t.req.MessageID))
	end := t.event(models.EventStreamEnd)
	t.send(end)
	t.phase = PhaseClosed
}

// checkCancelled reports whether the token is done, emitting the cancelled
// event the first time.
func (t *Turn) checkCancelled() bool {
	if t.cancelled {
		return true
	}
	if t.ctx.Err() == nil {
		return false
	}
	t.cancelled = true
	cause := context.Cause(t.ctx)
	t.o.logger.InfoContext(t.ctx, "turn stream cancelled", "phase", t.phase, "cause", cause)
	ev := t.event(models.EventCancelled)
	ev.Message = "Request cancelled"
	t.send(ev)
	return true
}

// snapshot sends the collector state. Empty incremental snapshots are
// skipped.
func (t *Turn) snapshot() {
	resp := t.collector.BuildResponse(t.session.ID, t.req.MessageID)
	if len(resp.Messages) == 0 {
		return
	}
	t.send(resp)
}

func (t *Turn) event(typ models.EventType) models.Event {
	return models.Event{
		Type:      typ,
		RequestID: t.req.RequestID,
		SessionID: t.session.ID,
		MessageID: t.req.MessageID,
		Timestamp: t.o.now().UnixMilli(),
	}
}

// send writes one frame. Write failures mean the client is gone; the turn
// observes that through its context, so they are only logged once.
func (t *Turn) send(v any) {
	if t.sink == nil || t.sinkErr != nil {
		return
	}
	if err := t.sink.Send(v); err != nil {
		t.sinkErr = err
		t.o.logger.DebugContext(t.ctx, "stream write failed", "error", err)
	}
}

func phaseOf(err error) LoopPhase {
	var loopErr *LoopError
	if errors.As(err, &loopErr) {
		return loopErr.Phase
	}
	return PhaseClosed
}

var _ Sink = (*stream.Writer)(nil)
