package llmprovider

import (
	"context"
	"encoding/json"
	"testing"
)

type fakeProvider struct {
	text    string
	err     error
	lastReq *CompletionRequest
}

func (f *fakeProvider) Complete(ctx context.Context, req *CompletionRequest) (*CompletionResult, error) {
	f.lastReq = req
	if f.err != nil {
		return nil, f.err
	}
	return &CompletionResult{Text: f.text}, nil
}

func (f *fakeProvider) Name() string          { return "fake" }
func (f *fakeProvider) Models() []Model       { return nil }
func (f *fakeProvider) SupportsTools() bool   { return false }

func TestCognitionAdapterReturnsParsedJSON(t *testing.T) {
	fake := &fakeProvider{text: `{"verdict":"pass"}`}
	adapter := NewCognitionAdapter(fake, "claude-sonnet-4-20250514", 512)

	schema := json.RawMessage(`{"type":"object","properties":{"verdict":{"type":"string"}}}`)
	out, err := adapter.Reason(context.Background(), "does the page show a success banner?", schema)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(out) != `{"verdict":"pass"}` {
		t.Fatalf("expected raw JSON passthrough, got %q", out)
	}
	if fake.lastReq.System != cognitionSystemPrompt {
		t.Fatal("expected the cognition system prompt to be set on the request")
	}
}

func TestCognitionAdapterStripsMarkdownFence(t *testing.T) {
	fake := &fakeProvider{text: "```json\n{\"ok\":true}\n```"}
	adapter := NewCognitionAdapter(fake, "claude-sonnet-4-20250514", 512)

	out, err := adapter.Reason(context.Background(), "instruction", json.RawMessage(`{"type":"object"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(out) != `{"ok":true}` {
		t.Fatalf("expected fence-stripped JSON, got %q", out)
	}
}

func TestCognitionAdapterRejectsNonJSON(t *testing.T) {
	fake := &fakeProvider{text: "I cannot determine this."}
	adapter := NewCognitionAdapter(fake, "claude-sonnet-4-20250514", 512)

	_, err := adapter.Reason(context.Background(), "instruction", nil)
	if err == nil {
		t.Fatal("expected an error for a non-JSON response")
	}
}

func TestCognitionAdapterPropagatesProviderError(t *testing.T) {
	fake := &fakeProvider{err: NewProviderError("fake", "m", context.DeadlineExceeded)}
	adapter := NewCognitionAdapter(fake, "claude-sonnet-4-20250514", 512)

	_, err := adapter.Reason(context.Background(), "instruction", nil)
	if err == nil {
		t.Fatal("expected the provider error to propagate")
	}
}
