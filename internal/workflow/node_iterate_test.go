package workflow

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/dirworks/director/internal/models"
)

func bodyRunnerEchoingItem(failOn string) func(ctx context.Context, workflowID string, positions []int, resolver *Resolver) []NodeOutcome {
	return func(ctx context.Context, workflowID string, positions []int, resolver *Resolver) []NodeOutcome {
		item, _ := resolver.Resolve("row")
		var s string
		json.Unmarshal(item, &s)
		if s == failOn {
			return []NodeOutcome{{
				NodeID: "body-1",
				Status: models.NodeStatusFailed,
				Failure: &models.StepFailure{NodeID: "body-1", Type: "runtime_error", Message: "boom"},
			}}
		}
		return []NodeOutcome{{NodeID: "body-1", Status: models.NodeStatusSucceeded, Result: item}}
	}
}

func TestExecIterateProcessesAllItems(t *testing.T) {
	rt, _, _ := newTestRuntime(t)
	rt.BodyRunner = bodyRunnerEchoingItem("")

	node := &models.Node{ID: "iter-1", Position: 1}
	resolver := NewResolver(nil, nil)

	out, err := rt.execIterate(context.Background(), "wf-1", node, rawMsg(t, map[string]any{
		"over":     []string{"a", "b", "c"},
		"variable": "row",
		"body":     []int{2},
	}), resolver)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var summary iterateSummary
	if err := json.Unmarshal(out, &summary); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if summary.Processed != 3 || summary.Total != 3 {
		t.Fatalf("expected 3 processed of 3 total, got %+v", summary)
	}
	if len(summary.Errors) != 0 {
		t.Fatalf("expected no errors, got %v", summary.Errors)
	}
}

func TestExecIterateStopsOnErrorWhenNotContinuing(t *testing.T) {
	rt, _, _ := newTestRuntime(t)
	rt.BodyRunner = bodyRunnerEchoingItem("b")

	node := &models.Node{ID: "iter-1", Position: 1}
	resolver := NewResolver(nil, nil)

	out, err := rt.execIterate(context.Background(), "wf-1", node, rawMsg(t, map[string]any{
		"over":            []string{"a", "b", "c"},
		"variable":        "row",
		"body":            []int{2},
		"continueOnError": false,
	}), resolver)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var summary iterateSummary
	if err := json.Unmarshal(out, &summary); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if summary.Processed != 2 {
		t.Fatalf("expected loop to stop after the failing second item, processed=%d", summary.Processed)
	}
	if len(summary.Errors) != 1 {
		t.Fatalf("expected 1 recorded error, got %v", summary.Errors)
	}
}

func TestExecIterateContinuesOnErrorWhenConfigured(t *testing.T) {
	rt, _, _ := newTestRuntime(t)
	rt.BodyRunner = bodyRunnerEchoingItem("b")

	node := &models.Node{ID: "iter-1", Position: 1}
	resolver := NewResolver(nil, nil)

	out, err := rt.execIterate(context.Background(), "wf-1", node, rawMsg(t, map[string]any{
		"over":            []string{"a", "b", "c"},
		"variable":        "row",
		"body":            []int{2},
		"continueOnError": true,
	}), resolver)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var summary iterateSummary
	if err := json.Unmarshal(out, &summary); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if summary.Processed != 3 {
		t.Fatalf("expected all 3 items processed despite the error, processed=%d", summary.Processed)
	}
	if len(summary.Errors) != 1 {
		t.Fatalf("expected 1 recorded error, got %v", summary.Errors)
	}
}

func TestExecIterateRejectsNonArrayOver(t *testing.T) {
	rt, _, _ := newTestRuntime(t)
	node := &models.Node{ID: "iter-1", Position: 1}
	resolver := NewResolver(nil, nil)

	_, err := rt.execIterate(context.Background(), "wf-1", node, rawMsg(t, map[string]any{
		"over":     "not-an-array",
		"variable": "row",
		"body":     2,
	}), resolver)
	if err == nil {
		t.Fatal("expected error for non-array over")
	}
	if _, ok := err.(*ErrNotArray); !ok {
		t.Fatalf("expected *ErrNotArray, got %T", err)
	}
}

func TestExecIterateRespectsLimit(t *testing.T) {
	rt, _, _ := newTestRuntime(t)
	rt.BodyRunner = bodyRunnerEchoingItem("")

	node := &models.Node{ID: "iter-1", Position: 1}
	resolver := NewResolver(nil, nil)

	out, err := rt.execIterate(context.Background(), "wf-1", node, rawMsg(t, map[string]any{
		"over":     []string{"a", "b", "c", "d"},
		"variable": "row",
		"body":     2,
		"limit":    2,
	}), resolver)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var summary iterateSummary
	if err := json.Unmarshal(out, &summary); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if summary.Total != 2 || summary.Processed != 2 {
		t.Fatalf("expected limit=2 to cap processing, got %+v", summary)
	}
}

func TestExecIterateCoercesNumericKeyedObject(t *testing.T) {
	rt, _, _ := newTestRuntime(t)
	rt.BodyRunner = bodyRunnerEchoingItem("")

	node := &models.Node{ID: "iter-1", Position: 1}
	resolver := NewResolver(nil, nil)

	out, err := rt.execIterate(context.Background(), "wf-1", node, rawMsg(t, map[string]any{
		"over":     map[string]any{"0": "a", "1": "b", "2": "c"},
		"variable": "row",
		"body":     2,
	}), resolver)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var summary iterateSummary
	if err := json.Unmarshal(out, &summary); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if summary.Processed != 3 || summary.Total != 3 {
		t.Fatalf("expected the numeric-keyed object to iterate as 3 items, got %+v", summary)
	}
	want := []string{`"a"`, `"b"`, `"c"`}
	if len(summary.Results) != len(want) {
		t.Fatalf("expected key-sorted results %v, got %v", want, summary.Results)
	}
	for i, r := range summary.Results {
		if string(r) != want[i] {
			t.Fatalf("expected key-sorted results %v, got %v", want, summary.Results)
		}
	}
}

func TestExecIterateEmptyArrayYieldsEmptySummary(t *testing.T) {
	rt, _, _ := newTestRuntime(t)
	bodyRuns := 0
	rt.BodyRunner = func(ctx context.Context, workflowID string, positions []int, resolver *Resolver) []NodeOutcome {
		bodyRuns++
		return nil
	}

	node := &models.Node{ID: "iter-1", Position: 1}
	resolver := NewResolver(nil, nil)

	out, err := rt.execIterate(context.Background(), "wf-1", node, rawMsg(t, map[string]any{
		"over":     []string{},
		"variable": "row",
		"body":     2,
	}), resolver)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if bodyRuns != 0 {
		t.Fatalf("expected no body execution for an empty array, got %d runs", bodyRuns)
	}
	want := `{"results":[],"errors":[],"processed":0,"total":0}`
	if string(out) != want {
		t.Fatalf("expected %s, got %s", want, out)
	}
}
