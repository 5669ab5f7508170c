package workflow

import (
	"encoding/json"
	"testing"
)

func TestExecTransformEvaluatesExpressionOverInput(t *testing.T) {
	rt, _, _ := newTestRuntime(t)
	resolver := NewResolver(nil, nil)

	out, err := rt.execTransform(rawMsg(t, map[string]any{
		"input": []int{1, 2, 3, 4},
		"expr":  "input.filter(x => x % 2 === 0).length",
	}), resolver)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var n int
	if err := json.Unmarshal(out, &n); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 even numbers, got %d", n)
	}
}

func TestExecTransformCanUseRouteHostFunctions(t *testing.T) {
	rt, _, _ := newTestRuntime(t)
	resolver := NewResolver(nil, nil)

	out, err := rt.execTransform(rawMsg(t, map[string]any{
		"input": "hello world",
		"expr":  "contains(input, 'world')",
	}), resolver)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var b bool
	if err := json.Unmarshal(out, &b); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !b {
		t.Fatal("expected contains(input, 'world') to be true")
	}
}
