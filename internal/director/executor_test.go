package director

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/dirworks/director/internal/models"
)

type orderTrackingTool struct {
	name  string
	delay time.Duration
	order *[]string
	mu    *sync.Mutex
}

func (o *orderTrackingTool) Name() string           { return o.name }
func (o *orderTrackingTool) Description() string    { return "" }
func (o *orderTrackingTool) Schema() json.RawMessage { return json.RawMessage(`{"type":"object"}`) }
func (o *orderTrackingTool) Execute(ctx context.Context, _ string, _ json.RawMessage) (*models.ToolResult, error) {
	if o.delay > 0 {
		select {
		case <-time.After(o.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	o.mu.Lock()
	*o.order = append(*o.order, o.name)
	o.mu.Unlock()
	return &models.ToolResult{Content: o.name}, nil
}

type hangingTool struct{}

func (hangingTool) Name() string           { return "hang" }
func (hangingTool) Description() string    { return "" }
func (hangingTool) Schema() json.RawMessage { return json.RawMessage(`{"type":"object"}`) }
func (hangingTool) Execute(ctx context.Context, _ string, _ json.RawMessage) (*models.ToolResult, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestExecutorExecuteAllRunsSerially(t *testing.T) {
	var order []string
	var mu sync.Mutex

	registry := NewToolRegistry()
	registry.Register(&orderTrackingTool{name: "slow", delay: 20 * time.Millisecond, order: &order, mu: &mu})
	registry.Register(&orderTrackingTool{name: "fast", order: &order, mu: &mu})

	executor := NewExecutor(registry, DefaultExecutorConfig())
	calls := []models.ToolCall{
		{ID: "1", Name: "slow"},
		{ID: "2", Name: "fast"},
	}

	results := executor.ExecuteAll(context.Background(), "wf-1", calls, nil)
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if order[0] != "slow" || order[1] != "fast" {
		t.Fatalf("expected slow to finish before fast starts (serial execution), got order %v", order)
	}
}

func TestExecutorTimesOutSlowTool(t *testing.T) {
	registry := NewToolRegistry()
	registry.Register(hangingTool{})

	executor := NewExecutor(registry, ExecutorConfig{PerToolTimeout: 10 * time.Millisecond, MaxAttempts: 1})
	results := executor.ExecuteAll(context.Background(), "wf-1", []models.ToolCall{{ID: "1", Name: "hang"}}, nil)

	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if !results[0].TimedOut {
		t.Fatalf("expected the call to be marked as timed out")
	}
	if !results[0].Result.IsError {
		t.Fatalf("expected a timeout to produce an error result")
	}
}

func TestExecutorEmitsLifecycleEvents(t *testing.T) {
	registry := NewToolRegistry()
	var order []string
	var mu sync.Mutex
	registry.Register(&orderTrackingTool{name: "echo", order: &order, mu: &mu})

	executor := NewExecutor(registry, DefaultExecutorConfig())
	var events []*models.ToolEvent
	executor.ExecuteAll(context.Background(), "wf-1", []models.ToolCall{{ID: "1", Name: "echo"}}, func(e *models.ToolEvent) {
		events = append(events, e)
	})

	if len(events) != 2 {
		t.Fatalf("expected start+result events, got %d", len(events))
	}
	if events[0].Event != models.ToolEventStart {
		t.Fatalf("expected first event to be start, got %v", events[0].Event)
	}
	if events[1].Event != models.ToolEventResult {
		t.Fatalf("expected second event to be result, got %v", events[1].Event)
	}
}

func TestExecutorSkipsRemainingCallsAfterCancellation(t *testing.T) {
	registry := NewToolRegistry()
	var order []string
	var mu sync.Mutex
	registry.Register(&orderTrackingTool{name: "echo", order: &order, mu: &mu})

	executor := NewExecutor(registry, DefaultExecutorConfig())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results := executor.ExecuteAll(ctx, "wf-1", []models.ToolCall{{ID: "1", Name: "echo"}, {ID: "2", Name: "echo"}}, nil)
	for _, r := range results {
		if !r.Result.IsError {
			t.Fatalf("expected every call after cancellation to fail, got %+v", r)
		}
	}
}
