// Package providers implements model engines over hosted LLM APIs and a
// deterministic local engine, plus the factory that binds them to a
// session's workspace.
package providers

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/haasonsaas/turnstream/internal/engine"
)

// RetryConfig controls stream-creation retries.
type RetryConfig struct {
	// MaxRetries is the number of attempts for retryable failures.
	// Default: 3
	MaxRetries int

	// RetryDelay is the base delay; attempt n waits RetryDelay*n.
	// Default: 1 second
	RetryDelay time.Duration
}

func (c RetryConfig) withDefaults() RetryConfig {
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = time.Second
	}
	return c
}

// withRetry calls open until it succeeds, fails with a non-retryable error
// or the attempts run out. Delays grow linearly.
func withRetry[T any](ctx context.Context, cfg RetryConfig, open func() (T, error)) (T, error) {
	var (
		result  T
		lastErr error
	)
	for attempt := 0; attempt < cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return result, ctx.Err()
			case <-time.After(cfg.RetryDelay * time.Duration(attempt)):
			}
		}
		result, lastErr = open()
		if lastErr == nil {
			return result, nil
		}
		if !IsRetryable(lastErr) {
			return result, lastErr
		}
	}
	return result, lastErr
}

// emit delivers ev unless ctx is done first.
func emit(ctx context.Context, ch chan<- engine.Event, ev engine.Event) bool {
	select {
	case ch <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

// splitParts separates text parts from tool results.
func splitParts(parts []engine.Part) (string, []engine.ToolResult) {
	var (
		texts   []string
		results []engine.ToolResult
	)
	for _, p := range parts {
		if p.ToolResult != nil {
			results = append(results, *p.ToolResult)
			continue
		}
		if p.Text != "" {
			texts = append(texts, p.Text)
		}
	}
	return strings.Join(texts, "\n"), results
}

// decodeArgs parses streamed tool arguments. Malformed JSON yields an empty
// map so the executor's schema validation reports the problem.
func decodeArgs(raw string) map[string]any {
	args := map[string]any{}
	if strings.TrimSpace(raw) == "" {
		return args
	}
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return map[string]any{}
	}
	return args
}

// missingResultText is fed back for tool calls that produced no result part.
const missingResultText = "Tool execution failed before producing a result."
