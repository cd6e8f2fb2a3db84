package llm

import (
	"context"
	"encoding/json"
	"testing"
	"time"
)

func TestExtractJSONPlain(t *testing.T) {
	raw := `{"nodes": [{"title": "Chapter 1"}]}`
	obj, err := ExtractJSON(raw)
	if err != nil {
		t.Fatalf("ExtractJSON: %v", err)
	}
	var parsed map[string]any
	if err := json.Unmarshal(obj, &parsed); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if _, ok := parsed["nodes"]; !ok {
		t.Error("expected nodes key in parsed object")
	}
}

func TestExtractJSONCodeFence(t *testing.T) {
	raw := "Here is the structure:\n```json\n{\"nodes\": []}\n```\nDone."
	obj, err := ExtractJSON(raw)
	if err != nil {
		t.Fatalf("ExtractJSON: %v", err)
	}
	if string(obj) != `{"nodes": []}` {
		t.Errorf("ExtractJSON = %q, want %q", obj, `{"nodes": []}`)
	}
}

func TestExtractJSONSurroundingProse(t *testing.T) {
	raw := `Sure! {"a": 1} Hope that helps.`
	obj, err := ExtractJSON(raw)
	if err != nil {
		t.Fatalf("ExtractJSON: %v", err)
	}
	if string(obj) != `{"a": 1}` {
		t.Errorf("ExtractJSON = %q", obj)
	}
}

func TestExtractJSONNoObject(t *testing.T) {
	if _, err := ExtractJSON("no structure here"); err == nil {
		t.Error("expected error for prose-only response")
	}
}

func TestExtractJSONMalformed(t *testing.T) {
	if _, err := ExtractJSON(`{"a": `); err == nil {
		t.Error("expected error for truncated JSON")
	}
}

func TestFakeRuleMatching(t *testing.T) {
	f := &Fake{
		Rules: []FakeRule{
			{Contains: "navigation", Respond: `{"nodes": []}`},
		},
		Default: "fallback",
	}

	resp, err := f.Complete(context.Background(), CompletionRequest{
		UserPrompt: "extract navigation structure",
		Schema:     json.RawMessage(`{}`),
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.JSON == nil {
		t.Error("expected salvaged JSON for matching rule")
	}

	resp, err = f.Complete(context.Background(), CompletionRequest{UserPrompt: "something else"})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Text != "fallback" {
		t.Errorf("Text = %q, want fallback", resp.Text)
	}
	if f.CallCount() != 2 {
		t.Errorf("CallCount = %d, want 2", f.CallCount())
	}
}

func TestLimiterUnbounded(t *testing.T) {
	l := NewLimiter(0)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	for i := 0; i < 100; i++ {
		if err := l.Wait(ctx); err != nil {
			t.Fatalf("unbounded limiter blocked: %v", err)
		}
	}
}
