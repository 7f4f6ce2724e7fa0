package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	openai "github.com/sashabaranov/go-openai"

	"github.com/haasonsaas/turnstream/internal/engine"
	"github.com/haasonsaas/turnstream/pkg/models"
)

// OpenAIConfig configures an OpenAI-compatible engine.
type OpenAIConfig struct {
	APIKey       string
	BaseURL      string
	Model        string
	SystemPrompt string
	MaxTokens    int
	Retry        RetryConfig
}

// OpenAIEngine streams chat completions from any OpenAI-compatible endpoint.
// It keeps the conversation transcript, so consecutive Stream calls continue
// one conversation. Turns on one engine are serialized.
type OpenAIEngine struct {
	client *openai.Client
	cfg    OpenAIConfig
	tools  engine.ToolExecutor

	// turn is held from Stream until the stream goroutine finishes.
	turn     sync.Mutex
	messages []openai.ChatCompletionMessage
	// pending holds the tool call ids of the last assistant message that
	// have not been answered yet.
	pending []string
}

// NewOpenAIEngine creates an engine. tools may be nil.
func NewOpenAIEngine(cfg OpenAIConfig, tools engine.ToolExecutor) (*OpenAIEngine, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("openai: API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = openai.GPT4o
	}
	cfg.Retry = cfg.Retry.withDefaults()

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if strings.TrimSpace(cfg.BaseURL) != "" {
		clientCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	return &OpenAIEngine{
		client: openai.NewClientWithConfig(clientCfg),
		cfg:    cfg,
		tools:  tools,
	}, nil
}

// Stream sends parts as the next conversation input and streams the reply.
func (e *OpenAIEngine) Stream(ctx context.Context, parts []engine.Part, _ string) (<-chan engine.Event, error) {
	e.turn.Lock()

	input := e.inputMessages(parts)
	messages := make([]openai.ChatCompletionMessage, 0, len(e.messages)+len(input)+1)
	if e.cfg.SystemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: e.cfg.SystemPrompt,
		})
	}
	messages = append(messages, e.messages...)
	messages = append(messages, input...)

	req := openai.ChatCompletionRequest{
		Model:    e.cfg.Model,
		Messages: messages,
		Stream:   true,
	}
	if e.cfg.MaxTokens > 0 {
		req.MaxTokens = e.cfg.MaxTokens
	}
	if e.tools != nil {
		req.Tools = convertToOpenAITools(e.tools.Definitions())
	}

	stream, err := withRetry(ctx, e.cfg.Retry, func() (*openai.ChatCompletionStream, error) {
		return e.client.CreateChatCompletionStream(ctx, req)
	})
	if err != nil {
		e.turn.Unlock()
		return nil, NewProviderError("openai", e.cfg.Model, err)
	}

	// Input is committed once the request was accepted.
	e.messages = append(e.messages, input...)
	e.pending = nil

	events := make(chan engine.Event)
	go func() {
		defer e.turn.Unlock()
		defer close(events)
		defer stream.Close()
		e.processStream(ctx, stream, events)
	}()
	return events, nil
}

// inputMessages converts parts into transcript messages. Every pending tool
// call gets a tool message, as the API requires.
func (e *OpenAIEngine) inputMessages(parts []engine.Part) []openai.ChatCompletionMessage {
	text, results := splitParts(parts)

	var out []openai.ChatCompletionMessage
	answered := make(map[string]bool, len(results))
	for _, r := range results {
		answered[r.CallID] = true
		out = append(out, openai.ChatCompletionMessage{
			Role:       openai.ChatMessageRoleTool,
			Content:    r.Output,
			ToolCallID: r.CallID,
		})
	}
	for _, id := range e.pending {
		if answered[id] {
			continue
		}
		out = append(out, openai.ChatCompletionMessage{
			Role:       openai.ChatMessageRoleTool,
			Content:    missingResultText,
			ToolCallID: id,
		})
	}
	if text != "" {
		out = append(out, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleUser,
			Content: text,
		})
	}
	return out
}

type openAIToolCall struct {
	id   string
	name string
	args strings.Builder
}

func (e *OpenAIEngine) processStream(ctx context.Context, stream *openai.ChatCompletionStream, events chan<- engine.Event) {
	var (
		text         strings.Builder
		calls        = make(map[int]*openAIToolCall)
		finishReason string
	)

	for {
		response, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			emit(ctx, events, engine.ErrorEvent(NewProviderError("openai", e.cfg.Model, err)))
			return
		}
		if len(response.Choices) == 0 {
			continue
		}

		choice := response.Choices[0]
		if choice.Delta.Content != "" {
			text.WriteString(choice.Delta.Content)
			if !emit(ctx, events, engine.ContentEvent(choice.Delta.Content)) {
				return
			}
		}
		for _, tc := range choice.Delta.ToolCalls {
			index := 0
			if tc.Index != nil {
				index = *tc.Index
			}
			call := calls[index]
			if call == nil {
				call = &openAIToolCall{}
				calls[index] = call
			}
			if tc.ID != "" {
				call.id = tc.ID
			}
			if tc.Function.Name != "" {
				call.name = tc.Function.Name
			}
			call.args.WriteString(tc.Function.Arguments)
		}
		if choice.FinishReason != "" {
			finishReason = string(choice.FinishReason)
		}
	}

	indexes := make([]int, 0, len(calls))
	for i := range calls {
		indexes = append(indexes, i)
	}
	sort.Ints(indexes)

	assistant := openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleAssistant,
		Content: text.String(),
	}
	var pending []string
	for _, i := range indexes {
		call := calls[i]
		if call.id == "" || call.name == "" {
			continue
		}
		raw := call.args.String()
		assistant.ToolCalls = append(assistant.ToolCalls, openai.ToolCall{
			ID:       call.id,
			Type:     openai.ToolTypeFunction,
			Function: openai.FunctionCall{Name: call.name, Arguments: raw},
		})
		pending = append(pending, call.id)
		if !emit(ctx, events, engine.ToolCallEvent(models.ToolCall{
			CallID: call.id,
			Name:   call.name,
			Args:   decodeArgs(raw),
		})) {
			return
		}
	}
	e.messages = append(e.messages, assistant)
	e.pending = pending

	if finishReason == "" {
		finishReason = string(openai.FinishReasonStop)
	}
	emit(ctx, events, engine.FinishedEvent(finishReason))
}

func convertToOpenAITools(defs []engine.ToolDefinition) []openai.Tool {
	if len(defs) == 0 {
		return nil
	}
	result := make([]openai.Tool, len(defs))
	for i, def := range defs {
		var schemaMap map[string]any
		if err := json.Unmarshal(def.Schema, &schemaMap); err != nil {
			schemaMap = map[string]any{
				"type":       "object",
				"properties": map[string]any{},
			}
		}
		result[i] = openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        def.Name,
				Description: def.Description,
				Parameters:  schemaMap,
			},
		}
	}
	return result
}

func (e *OpenAIEngine) String() string {
	return fmt.Sprintf("openai(%s)", e.cfg.Model)
}
