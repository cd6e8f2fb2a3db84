package llm

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
)

// Fake is a deterministic Client for tests. Responses are matched by
// substring against the user prompt; the first match wins. When no rule
// matches, Default is returned.
type Fake struct {
	mu      sync.Mutex
	Rules   []FakeRule
	Default string

	// Calls records every request, in order.
	Calls []CompletionRequest

	// Err, when non-nil, fails every call.
	Err error
}

// FakeRule maps a prompt substring to a canned response.
type FakeRule struct {
	Contains string
	Respond  string
}

// Complete implements Client.
func (f *Fake) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.Calls = append(f.Calls, req)
	rules := f.Rules
	errOut := f.Err
	f.mu.Unlock()

	if errOut != nil {
		return nil, errOut
	}

	text := f.Default
	for _, r := range rules {
		if strings.Contains(req.UserPrompt, r.Contains) {
			text = r.Respond
			break
		}
	}

	resp := &CompletionResponse{Text: text, Model: "fake"}
	if req.Schema != nil {
		if obj, err := ExtractJSON(text); err == nil {
			resp.JSON = obj
		}
	}
	return resp, nil
}

// CallCount returns the number of calls made, including failed ones.
func (f *Fake) CallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Calls)
}

var _ Client = (*Fake)(nil)

// MarshalSchema is a test helper that panics on marshal failure.
func MarshalSchema(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}
