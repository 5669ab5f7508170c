package workflow

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/dirworks/director/internal/models"
)

func TestExecHandleRecoversFromChildFailure(t *testing.T) {
	rt, _, _ := newTestRuntime(t)
	rt.BodyRunner = func(ctx context.Context, workflowID string, positions []int, resolver *Resolver) []NodeOutcome {
		return []NodeOutcome{
			{
				NodeID: "child-1",
				Status: models.NodeStatusFailed,
				Failure: &models.StepFailure{
					NodeID:  "child-1",
					Type:    "element_not_found",
					Message: "selector did not match",
				},
			},
		}
	}

	node := &models.Node{ID: "handle-1", Type: models.NodeHandle}
	out, err := rt.execHandle(context.Background(), "wf-1", node, rawMsg(t, map[string]any{
		"children": 2,
	}), NewResolver(nil, nil))
	if err != nil {
		t.Fatalf("execHandle should never return an error, got %v", err)
	}

	var result handleResult
	if err := json.Unmarshal(out, &result); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if result.Recovered {
		t.Fatal("expected recovered=false when a child failed")
	}
	if result.Failure == nil || result.Failure.Type != "element_not_found" {
		t.Fatalf("expected captured child failure, got %+v", result.Failure)
	}
}

func TestExecHandleSucceedsWhenChildrenSucceed(t *testing.T) {
	rt, _, _ := newTestRuntime(t)
	rt.BodyRunner = func(ctx context.Context, workflowID string, positions []int, resolver *Resolver) []NodeOutcome {
		return []NodeOutcome{
			{NodeID: "child-1", Status: models.NodeStatusSucceeded, Result: rawMsg(t, "ok")},
		}
	}

	node := &models.Node{ID: "handle-1", Type: models.NodeHandle}
	out, err := rt.execHandle(context.Background(), "wf-1", node, rawMsg(t, map[string]any{
		"children": []int{2, 3},
	}), NewResolver(nil, nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var result handleResult
	if err := json.Unmarshal(out, &result); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !result.Recovered {
		t.Fatal("expected recovered=true")
	}
	if len(result.Results) != 1 {
		t.Fatalf("expected 1 captured result, got %d", len(result.Results))
	}
}
