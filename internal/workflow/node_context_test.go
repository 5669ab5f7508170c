package workflow

import (
	"context"
	"testing"
)

func TestExecContextWritesVariables(t *testing.T) {
	rt, _, store := newTestRuntime(t)
	ctx := context.Background()

	_, err := rt.execContext(ctx, "wf-1", rawMsg(t, map[string]any{
		"variables": map[string]any{
			"username": "ada",
			"retries":  3,
		},
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := store.GetVariable(ctx, "wf-1", "username")
	if err != nil {
		t.Fatalf("get variable: %v", err)
	}
	if string(got) != `"ada"` {
		t.Fatalf("expected username=ada, got %s", got)
	}

	got, err = store.GetVariable(ctx, "wf-1", "retries")
	if err != nil {
		t.Fatalf("get variable: %v", err)
	}
	if string(got) != "3" {
		t.Fatalf("expected retries=3, got %s", got)
	}
}
