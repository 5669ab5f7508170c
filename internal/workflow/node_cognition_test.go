package workflow

import (
	"context"
	"encoding/json"
	"testing"
)

type fakeCognition struct {
	reason func(ctx context.Context, instruction string, schema json.RawMessage) (json.RawMessage, error)
}

func (f *fakeCognition) Reason(ctx context.Context, instruction string, schema json.RawMessage) (json.RawMessage, error) {
	return f.reason(ctx, instruction, schema)
}

func TestExecCognitionValidatesAgainstSchema(t *testing.T) {
	rt, _, _ := newTestRuntime(t)
	rt.Cognition = &fakeCognition{
		reason: func(ctx context.Context, instruction string, schema json.RawMessage) (json.RawMessage, error) {
			if instruction != "classify the sentiment" {
				t.Fatalf("unexpected instruction: %q", instruction)
			}
			return rawMsg(t, map[string]any{"sentiment": "positive"}), nil
		},
	}

	out, err := rt.execCognition(context.Background(), "n1", rawMsg(t, map[string]any{
		"instruction": "classify the sentiment",
		"schema":      json.RawMessage(`{"type":"object","properties":{"sentiment":{"type":"string"}},"required":["sentiment"]}`),
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(out, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded["sentiment"] != "positive" {
		t.Fatalf("expected sentiment=positive, got %v", decoded)
	}
}

func TestExecCognitionRequiresProvider(t *testing.T) {
	rt, _, _ := newTestRuntime(t)
	rt.Cognition = nil
	_, err := rt.execCognition(context.Background(), "n1", rawMsg(t, map[string]any{
		"instruction": "do something",
	}))
	if err == nil {
		t.Fatal("expected error when no CognitionProvider is configured")
	}
}
