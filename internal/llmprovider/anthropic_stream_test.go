package llmprovider

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

// sseServer spins up an httptest server that replies to every request
// with the given pre-scripted SSE event lines (each already including
// its own trailing blank-line separator).
func sseServer(t *testing.T, lines []string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		flusher, ok := w.(http.Flusher)
		if !ok {
			t.Fatal("expected http.Flusher")
		}
		for _, line := range lines {
			fmt.Fprintln(w, line)
			flusher.Flush()
		}
	}))
}

func TestCompleteDrainsTextStreamIntoOneResult(t *testing.T) {
	server := sseServer(t, []string{
		`event: message_start`,
		`data: {"type":"message_start","message":{"id":"msg_1","type":"message","role":"assistant","usage":{"input_tokens":12}}}`,
		``,
		`event: content_block_start`,
		`data: {"type":"content_block_start","index":0,"content_block":{"type":"text","text":""}}`,
		``,
		`event: content_block_delta`,
		`data: {"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"Hello"}}`,
		``,
		`event: content_block_delta`,
		`data: {"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":" world"}}`,
		``,
		`event: content_block_stop`,
		`data: {"type":"content_block_stop","index":0}`,
		``,
		`event: message_delta`,
		`data: {"type":"message_delta","delta":{"stop_reason":"end_turn"},"usage":{"output_tokens":7}}`,
		``,
		`event: message_stop`,
		`data: {"type":"message_stop"}`,
		``,
	})
	defer server.Close()

	provider, err := NewAnthropicProvider(AnthropicConfig{APIKey: "test-key", BaseURL: server.URL})
	if err != nil {
		t.Fatalf("failed to create provider: %v", err)
	}

	result, err := provider.Complete(context.Background(), &CompletionRequest{
		Messages: []CompletionMessage{{Role: "user", Content: "hi"}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Text != "Hello world" {
		t.Fatalf("expected accumulated text %q, got %q", "Hello world", result.Text)
	}
	if result.StopReason != "end_turn" {
		t.Fatalf("expected stop_reason end_turn, got %q", result.StopReason)
	}
	if result.Usage.Input != 12 || result.Usage.Output != 7 {
		t.Fatalf("expected usage input=12 output=7, got %+v", result.Usage)
	}
	if len(result.ToolCalls) != 0 {
		t.Fatalf("expected no tool calls, got %+v", result.ToolCalls)
	}
}

func TestCompleteAccumulatesToolCallAcrossDeltas(t *testing.T) {
	server := sseServer(t, []string{
		`event: message_start`,
		`data: {"type":"message_start","message":{"id":"msg_1","type":"message","role":"assistant","usage":{"input_tokens":5}}}`,
		``,
		`event: content_block_start`,
		`data: {"type":"content_block_start","index":0,"content_block":{"type":"tool_use","id":"tool_123","name":"get_weather","input":{}}}`,
		``,
		`event: content_block_delta`,
		`data: {"type":"content_block_delta","index":0,"delta":{"type":"input_json_delta","partial_json":"{\"city\":"}}`,
		``,
		`event: content_block_delta`,
		`data: {"type":"content_block_delta","index":0,"delta":{"type":"input_json_delta","partial_json":"\"London\"}"}}`,
		``,
		`event: content_block_stop`,
		`data: {"type":"content_block_stop","index":0}`,
		``,
		`event: message_stop`,
		`data: {"type":"message_stop"}`,
		``,
	})
	defer server.Close()

	provider, err := NewAnthropicProvider(AnthropicConfig{APIKey: "test-key", BaseURL: server.URL})
	if err != nil {
		t.Fatalf("failed to create provider: %v", err)
	}

	result, err := provider.Complete(context.Background(), &CompletionRequest{
		Messages: []CompletionMessage{{Role: "user", Content: "what's the weather in London?"}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.ToolCalls) != 1 {
		t.Fatalf("expected 1 accumulated tool call, got %d", len(result.ToolCalls))
	}
	call := result.ToolCalls[0]
	if call.ID != "tool_123" || call.Name != "get_weather" {
		t.Fatalf("unexpected tool call identity: %+v", call)
	}
	if string(call.Input) != `{"city":"London"}` {
		t.Fatalf("expected accumulated tool input %q, got %q", `{"city":"London"}`, call.Input)
	}
}

func TestCompleteCapturesThinkingAndSignature(t *testing.T) {
	server := sseServer(t, []string{
		`event: message_start`,
		`data: {"type":"message_start","message":{"id":"msg_1","type":"message","role":"assistant","usage":{"input_tokens":3}}}`,
		``,
		`event: content_block_start`,
		`data: {"type":"content_block_start","index":0,"content_block":{"type":"thinking","thinking":""}}`,
		``,
		`event: content_block_delta`,
		`data: {"type":"content_block_delta","index":0,"delta":{"type":"thinking_delta","thinking":"Let me check the DOM first."}}`,
		``,
		`event: content_block_delta`,
		`data: {"type":"content_block_delta","index":0,"delta":{"type":"signature_delta","signature":"sig-abc123"}}`,
		``,
		`event: content_block_stop`,
		`data: {"type":"content_block_stop","index":0}`,
		``,
		`event: content_block_start`,
		`data: {"type":"content_block_start","index":1,"content_block":{"type":"text","text":""}}`,
		``,
		`event: content_block_delta`,
		`data: {"type":"content_block_delta","index":1,"delta":{"type":"text_delta","text":"Done."}}`,
		``,
		`event: content_block_stop`,
		`data: {"type":"content_block_stop","index":1}`,
		``,
		`event: message_stop`,
		`data: {"type":"message_stop"}`,
		``,
	})
	defer server.Close()

	provider, err := NewAnthropicProvider(AnthropicConfig{APIKey: "test-key", BaseURL: server.URL})
	if err != nil {
		t.Fatalf("failed to create provider: %v", err)
	}

	result, err := provider.Complete(context.Background(), &CompletionRequest{
		Messages:       []CompletionMessage{{Role: "user", Content: "inspect the page"}},
		EnableThinking: true,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Thinking != "Let me check the DOM first." {
		t.Fatalf("expected accumulated thinking text, got %q", result.Thinking)
	}
	if string(result.ReasoningEncrypted) != "sig-abc123" {
		t.Fatalf("expected captured signature, got %q", result.ReasoningEncrypted)
	}
	if result.Text != "Done." {
		t.Fatalf("expected final text block, got %q", result.Text)
	}
}

func TestCompletePropagatesStreamError(t *testing.T) {
	server := sseServer(t, []string{
		`event: error`,
		`data: {"type":"error","error":{"type":"overloaded_error","message":"overloaded"}}`,
		``,
	})
	defer server.Close()

	provider, err := NewAnthropicProvider(AnthropicConfig{APIKey: "test-key", BaseURL: server.URL, MaxRetries: 0})
	if err != nil {
		t.Fatalf("failed to create provider: %v", err)
	}

	_, err = provider.Complete(context.Background(), &CompletionRequest{
		Messages: []CompletionMessage{{Role: "user", Content: "hi"}},
	})
	if err == nil {
		t.Fatal("expected an error from a stream that emits an error event")
	}
}
