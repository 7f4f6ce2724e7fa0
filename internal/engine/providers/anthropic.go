package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"

	"github.com/haasonsaas/turnstream/internal/engine"
	"github.com/haasonsaas/turnstream/pkg/models"
)

// AnthropicConfig configures an Anthropic Messages engine.
type AnthropicConfig struct {
	APIKey       string
	BaseURL      string
	Model        string
	SystemPrompt string
	MaxTokens    int
	Retry        RetryConfig
}

// AnthropicEngine streams replies from the Anthropic Messages API and keeps
// the conversation transcript between turns. Turns on one engine are
// serialized.
type AnthropicEngine struct {
	client anthropic.Client
	cfg    AnthropicConfig
	tools  engine.ToolExecutor

	turn     sync.Mutex
	messages []anthropic.MessageParam
	pending  []string
}

// NewAnthropicEngine creates an engine. tools may be nil.
func NewAnthropicEngine(cfg AnthropicConfig, tools engine.ToolExecutor) (*AnthropicEngine, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("anthropic: API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = "claude-sonnet-4-20250514"
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 4096
	}
	cfg.Retry = cfg.Retry.withDefaults()

	options := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if strings.TrimSpace(cfg.BaseURL) != "" {
		options = append(options, option.WithBaseURL(cfg.BaseURL))
	}
	return &AnthropicEngine{
		client: anthropic.NewClient(options...),
		cfg:    cfg,
		tools:  tools,
	}, nil
}

// Stream sends parts as the next user message and streams the reply.
func (e *AnthropicEngine) Stream(ctx context.Context, parts []engine.Part, _ string) (<-chan engine.Event, error) {
	e.turn.Lock()

	input, ok := e.inputMessage(parts)
	messages := make([]anthropic.MessageParam, 0, len(e.messages)+1)
	messages = append(messages, e.messages...)
	if ok {
		messages = append(messages, input)
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(e.cfg.Model),
		Messages:  messages,
		MaxTokens: int64(e.cfg.MaxTokens),
	}
	if e.cfg.SystemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Type: "text", Text: e.cfg.SystemPrompt}}
	}
	if e.tools != nil {
		tools, err := convertToAnthropicTools(e.tools.Definitions())
		if err != nil {
			e.turn.Unlock()
			return nil, err
		}
		params.Tools = tools
	}

	// The SDK reports connection failures through the first Next call, so
	// the first event is read here to allow retries.
	type opened struct {
		stream *ssestream.Stream[anthropic.MessageStreamEventUnion]
		first  bool
	}
	result, err := withRetry(ctx, e.cfg.Retry, func() (opened, error) {
		stream := e.client.Messages.NewStreaming(ctx, params)
		if stream.Next() {
			return opened{stream: stream, first: true}, nil
		}
		if err := stream.Err(); err != nil {
			_ = stream.Close()
			return opened{}, err
		}
		return opened{stream: stream}, nil
	})
	if err != nil {
		e.turn.Unlock()
		return nil, NewProviderError("anthropic", e.cfg.Model, err)
	}

	if ok {
		e.messages = append(e.messages, input)
	}
	e.pending = nil

	events := make(chan engine.Event)
	go func() {
		defer e.turn.Unlock()
		defer close(events)
		defer result.stream.Close()
		e.processStream(ctx, result.stream, result.first, events)
	}()
	return events, nil
}

// inputMessage builds one user message from parts. Pending tool_use blocks
// that received no result are answered with an error result.
func (e *AnthropicEngine) inputMessage(parts []engine.Part) (anthropic.MessageParam, bool) {
	text, results := splitParts(parts)

	var content []anthropic.ContentBlockParamUnion
	answered := make(map[string]bool, len(results))
	for _, r := range results {
		answered[r.CallID] = true
		content = append(content, anthropic.NewToolResultBlock(r.CallID, r.Output, r.IsError))
	}
	for _, id := range e.pending {
		if !answered[id] {
			content = append(content, anthropic.NewToolResultBlock(id, missingResultText, true))
		}
	}
	if text != "" {
		content = append(content, anthropic.NewTextBlock(text))
	}
	if len(content) == 0 {
		return anthropic.MessageParam{}, false
	}
	return anthropic.NewUserMessage(content...), true
}

type anthropicToolUse struct {
	id    string
	name  string
	input strings.Builder
}

func (e *AnthropicEngine) processStream(ctx context.Context, stream *ssestream.Stream[anthropic.MessageStreamEventUnion], haveEvent bool, events chan<- engine.Event) {
	var (
		text       strings.Builder
		current    *anthropicToolUse
		calls      []*anthropicToolUse
		stopReason string
		stopped    bool
	)

	next := func() bool {
		if haveEvent {
			haveEvent = false
			return true
		}
		return stream.Next()
	}

	for !stopped && next() {
		event := stream.Current()
		switch event.Type {
		case "content_block_start":
			block := event.AsContentBlockStart().ContentBlock
			if block.Type == "tool_use" {
				toolUse := block.AsToolUse()
				current = &anthropicToolUse{id: toolUse.ID, name: toolUse.Name}
			}

		case "content_block_delta":
			delta := event.AsContentBlockDelta().Delta
			switch delta.Type {
			case "text_delta":
				if delta.Text != "" {
					text.WriteString(delta.Text)
					if !emit(ctx, events, engine.ContentEvent(delta.Text)) {
						return
					}
				}
			case "input_json_delta":
				if current != nil {
					current.input.WriteString(delta.PartialJSON)
				}
			}

		case "content_block_stop":
			if current != nil {
				calls = append(calls, current)
				current = nil
			}

		case "message_delta":
			if reason := event.AsMessageDelta().Delta.StopReason; reason != "" {
				stopReason = string(reason)
			}

		case "message_stop":
			stopped = true

		case "error":
			emit(ctx, events, engine.ErrorEvent(NewProviderError("anthropic", e.cfg.Model, errors.New("stream error event"))))
			return
		}
	}
	if err := stream.Err(); err != nil {
		emit(ctx, events, engine.ErrorEvent(NewProviderError("anthropic", e.cfg.Model, err)))
		return
	}

	var (
		assistant []anthropic.ContentBlockParamUnion
		pending   []string
	)
	if text.Len() > 0 {
		assistant = append(assistant, anthropic.NewTextBlock(text.String()))
	}
	for _, call := range calls {
		args := decodeArgs(call.input.String())
		assistant = append(assistant, anthropic.NewToolUseBlock(call.id, args, call.name))
		pending = append(pending, call.id)
		if !emit(ctx, events, engine.ToolCallEvent(models.ToolCall{
			CallID: call.id,
			Name:   call.name,
			Args:   args,
		})) {
			return
		}
	}
	if len(assistant) > 0 {
		e.messages = append(e.messages, anthropic.NewAssistantMessage(assistant...))
	}
	e.pending = pending

	if stopReason == "" {
		stopReason = "end_turn"
	}
	emit(ctx, events, engine.FinishedEvent(stopReason))
}

func convertToAnthropicTools(defs []engine.ToolDefinition) ([]anthropic.ToolUnionParam, error) {
	var result []anthropic.ToolUnionParam
	for _, def := range defs {
		var schema anthropic.ToolInputSchemaParam
		if err := json.Unmarshal(def.Schema, &schema); err != nil {
			return nil, fmt.Errorf("invalid tool schema for %s: %w", def.Name, err)
		}
		toolParam := anthropic.ToolUnionParamOfTool(schema, def.Name)
		if toolParam.OfTool == nil {
			return nil, fmt.Errorf("invalid tool schema for %s: missing tool definition", def.Name)
		}
		toolParam.OfTool.Description = anthropic.String(def.Description)
		result = append(result, toolParam)
	}
	return result, nil
}
