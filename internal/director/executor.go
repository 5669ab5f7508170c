package director

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dirworks/director/internal/models"
)

// ExecutorConfig configures per-tool-call timeout and retry behavior.
// There is deliberately no concurrency knob: tool calls within one turn
// run serially so the turn sees a single consistent view of workflow
// state.
type ExecutorConfig struct {
	// PerToolTimeout bounds a single tool call. Default: 10s.
	PerToolTimeout time.Duration

	// MaxAttempts is the number of attempts per tool call. Default: 1.
	MaxAttempts int

	// RetryBackoff waits between attempts of the same call.
	RetryBackoff time.Duration
}

// DefaultExecutorConfig returns the Director's default tool execution
// settings.
func DefaultExecutorConfig() ExecutorConfig {
	return ExecutorConfig{
		PerToolTimeout: 10 * time.Second,
		MaxAttempts:    1,
		RetryBackoff:   0,
	}
}

// Executor runs tool calls one at a time, each under its own timeout,
// against a ToolRegistry. Serial by construction; a turn's tool calls
// never run bounded-parallel.
type Executor struct {
	registry *ToolRegistry
	config   ExecutorConfig
}

// NewExecutor creates a tool executor bound to registry, applying default
// config values where config is zero.
func NewExecutor(registry *ToolRegistry, config ExecutorConfig) *Executor {
	if config.PerToolTimeout <= 0 {
		config.PerToolTimeout = 10 * time.Second
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 1
	}
	return &Executor{registry: registry, config: config}
}

// ExecResult is the outcome of one tool call, with timing for event
// emission.
type ExecResult struct {
	ToolCall  models.ToolCall
	Result    models.ToolResult
	StartedAt time.Time
	EndedAt   time.Time
	TimedOut  bool
}

// ExecuteAll runs each tool call in toolCalls in order, waiting for one to
// finish (or time out) before starting the next. emit, if non-nil, is
// called for start/result/error lifecycle events as they occur.
func (e *Executor) ExecuteAll(ctx context.Context, workflowID string, toolCalls []models.ToolCall, emit func(*models.ToolEvent)) []ExecResult {
	results := make([]ExecResult, len(toolCalls))
	for i, tc := range toolCalls {
		select {
		case <-ctx.Done():
			results[i] = ExecResult{
				ToolCall: tc,
				Result: models.ToolResult{
					ToolCallID: tc.ID,
					Content:    "turn canceled before tool call executed",
					IsError:    true,
				},
			}
			continue
		default:
		}
		results[i] = e.executeOne(ctx, workflowID, tc, emit)
	}
	return results
}

func (e *Executor) executeOne(ctx context.Context, workflowID string, tc models.ToolCall, emit func(*models.ToolEvent)) ExecResult {
	if emit != nil {
		emit(&models.ToolEvent{Event: models.ToolEventStart, Name: tc.Name, Args: tc.Input, At: nowMillis()})
	}

	maxAttempts := e.config.MaxAttempts
	started := time.Now()
	var result models.ToolResult
	var timedOut bool

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		result, timedOut = e.executeWithTimeout(ctx, workflowID, tc)
		if !result.IsError {
			break
		}
		if attempt < maxAttempts && e.config.RetryBackoff > 0 {
			select {
			case <-time.After(e.config.RetryBackoff):
			case <-ctx.Done():
				result = models.ToolResult{ToolCallID: tc.ID, Content: "tool execution canceled", IsError: true}
			}
		}
	}
	ended := time.Now()

	if emit != nil {
		if result.IsError {
			emit(&models.ToolEvent{Event: models.ToolEventError, Name: tc.Name, Args: tc.Input, Error: result.Content, At: nowMillis()})
		} else {
			emit(&models.ToolEvent{Event: models.ToolEventResult, Name: tc.Name, Args: tc.Input, Result: result.Content, At: nowMillis()})
		}
	}

	return ExecResult{ToolCall: tc, Result: result, StartedAt: started, EndedAt: ended, TimedOut: timedOut}
}

func (e *Executor) executeWithTimeout(ctx context.Context, workflowID string, tc models.ToolCall) (models.ToolResult, bool) {
	type outcome struct {
		result *models.ToolResult
		err    error
	}

	toolCtx, cancel := context.WithTimeout(ctx, e.config.PerToolTimeout)
	defer cancel()

	resultCh := make(chan outcome, 1)
	go func() {
		res, err := e.registry.Execute(toolCtx, workflowID, tc.Name, tc.Input)
		select {
		case resultCh <- outcome{result: res, err: err}:
		default:
		}
	}()

	select {
	case <-toolCtx.Done():
		content := "tool execution canceled"
		timedOut := errors.Is(toolCtx.Err(), context.DeadlineExceeded)
		if timedOut {
			content = fmt.Sprintf("tool execution timed out after %v", e.config.PerToolTimeout)
		}
		return models.ToolResult{ToolCallID: tc.ID, Content: content, IsError: true}, timedOut
	case out := <-resultCh:
		if out.err != nil {
			return models.ToolResult{ToolCallID: tc.ID, Content: out.err.Error(), IsError: true}, false
		}
		if out.result == nil {
			return models.ToolResult{ToolCallID: tc.ID, Content: "tool execution failed", IsError: true}, false
		}
		res := *out.result
		res.ToolCallID = tc.ID
		return res, false
	}
}

func nowMillis() int64 {
	return time.Now().UnixMilli()
}
