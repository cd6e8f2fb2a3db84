// Package llm defines the language-model client contract used by the
// extraction stages, together with the default OpenAI-compatible
// implementation and a deterministic fake for tests.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"golang.org/x/time/rate"
)

// Client is the single operation the pipeline needs from a language
// model: structured completion with an optional JSON schema. Rate-limit
// and transient network errors are retried internally; only permanent
// failures surface to the caller.
type Client interface {
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
}

// CompletionRequest describes one completion call.
type CompletionRequest struct {
	SystemPrompt string
	UserPrompt   string

	// Schema, when non-nil, instructs the model to emit a JSON object.
	// The response's JSON field is populated from the salvaged object.
	Schema json.RawMessage

	Temperature float32
	MaxTokens   int
}

// CompletionResponse is the result of a completion call.
type CompletionResponse struct {
	Text string
	// JSON holds the salvaged JSON object when the request carried a
	// schema and the response contained one; nil otherwise.
	JSON json.RawMessage

	Model            string
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Config configures the default client.
type Config struct {
	Model   string
	BaseURL string
	APIKey  string

	// RequestsPerMinute bounds the shared token bucket. Zero disables
	// client-side rate limiting.
	RequestsPerMinute int
}

// NewLimiter builds the shared token bucket for a provider rate limit.
// Concurrent documents contending for the bucket block in Wait without
// busy-spinning.
func NewLimiter(requestsPerMinute int) *rate.Limiter {
	if requestsPerMinute <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Limit(float64(requestsPerMinute)/60.0), requestsPerMinute)
}

// codeBlockPrefixes are the markdown code-fence openers stripped from
// LLM output.
var codeBlockPrefixes = []string{"```json", "```"}

// ExtractJSON attempts to find a valid JSON object in raw LLM response
// text. It handles common quirks: markdown code fences, prose before or
// after the object.
func ExtractJSON(raw string) (json.RawMessage, error) {
	raw = strings.TrimSpace(raw)
	for _, p := range codeBlockPrefixes {
		if strings.HasPrefix(raw, p) {
			raw = strings.TrimPrefix(raw, p)
			if i := strings.LastIndex(raw, "```"); i >= 0 {
				raw = raw[:i]
			}
			raw = strings.TrimSpace(raw)
			break
		}
	}

	start := strings.IndexAny(raw, "{[")
	if start < 0 {
		return nil, fmt.Errorf("no JSON object found in response")
	}
	var end int
	if raw[start] == '{' {
		end = strings.LastIndex(raw, "}")
	} else {
		end = strings.LastIndex(raw, "]")
	}
	if end <= start {
		return nil, fmt.Errorf("no JSON object found in response")
	}

	candidate := raw[start : end+1]
	if !json.Valid([]byte(candidate)) {
		return nil, fmt.Errorf("response JSON is malformed")
	}
	return json.RawMessage(candidate), nil
}
