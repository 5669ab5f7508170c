package director

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/dirworks/director/internal/browser"
	"github.com/dirworks/director/internal/llmprovider"
	"github.com/dirworks/director/internal/models"
	"github.com/dirworks/director/internal/state"
)

// LoopPhase names the stage of a single turn's phase machine
// (Init -> Stream -> ExecuteTools -> Continue -> Complete); Stream is
// one blocking provider call rather than a channel of incremental
// chunks.
type LoopPhase string

const (
	PhaseInit         LoopPhase = "init"
	PhaseStream       LoopPhase = "stream"
	PhaseExecuteTools LoopPhase = "execute_tools"
	PhaseContinue     LoopPhase = "continue"
	PhaseComplete     LoopPhase = "complete"
)

// variablePreviewChars bounds how much of a variable's value is inlined
// into context assembly before a caller must use get_workflow_variables
// to fetch it in full.
const variablePreviewChars = 200

// LoopConfig configures a Loop's turn behavior.
type LoopConfig struct {
	// DefaultModel is used when a turn doesn't specify one.
	DefaultModel string

	// SystemPrompt is prefixed to every assembled turn context.
	SystemPrompt string

	// MaxTokens bounds the provider's response length.
	MaxTokens int

	// EnableThinking requests extended reasoning from the provider.
	EnableThinking bool

	// ThinkingBudgetTokens bounds EnableThinking's reasoning length.
	ThinkingBudgetTokens int

	// MaxToolIterations bounds the number of tool-call round trips within
	// one turn before the turn fails with ErrMaxIterations.
	MaxToolIterations int

	// RecentMessageLimit bounds how many past conversation messages are
	// included verbatim in context assembly.
	RecentMessageLimit int
}

// DefaultLoopConfig returns conservative defaults for a new Loop.
func DefaultLoopConfig() LoopConfig {
	return LoopConfig{
		MaxTokens:          4096,
		MaxToolIterations:  25,
		RecentMessageLimit: 20,
	}
}

func sanitizeLoopConfig(cfg LoopConfig) LoopConfig {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 4096
	}
	if cfg.MaxToolIterations <= 0 {
		cfg.MaxToolIterations = 25
	}
	if cfg.RecentMessageLimit <= 0 {
		cfg.RecentMessageLimit = 20
	}
	return cfg
}

// LoopState tracks one turn's progress through the phase machine, for
// diagnostics and for attaching to a LoopError.
type LoopState struct {
	Phase     LoopPhase
	Iteration int
}

// TurnResult is the outcome of one Loop.Run call.
type TurnResult struct {
	Text       string
	ToolCalls  []ExecResult
	Usage      models.TokenUsage
	Iterations int
}

// Loop is the Director Control Loop: it assembles a workflow's state into
// an LLM prompt, runs one blocking completion, executes any requested
// tool calls serially, and repeats until the model replies with no
// further tool calls or the turn's iteration budget is exhausted.
type Loop struct {
	Provider llmprovider.Provider
	Store    state.Store
	Registry *ToolRegistry
	Executor *Executor
	Usage    *UsageTracker
	Events   *EventBus

	// Facade, if set, lets context assembly report the current tab set
	// without a round trip through a perception tool call.
	Facade *browser.Facade

	Config LoopConfig
}

// NewLoop constructs a Loop, applying default config values where cfg is
// zero and defaulting Executor/Usage/Events to fresh instances if nil.
func NewLoop(provider llmprovider.Provider, store state.Store, registry *ToolRegistry, cfg LoopConfig) *Loop {
	return &Loop{
		Provider: provider,
		Store:    store,
		Registry: registry,
		Executor: NewExecutor(registry, DefaultExecutorConfig()),
		Usage:    NewUsageTracker(),
		Events:   NewEventBus(),
		Config:   sanitizeLoopConfig(cfg),
	}
}

// Run executes one turn for workflowID: persists userMessage, assembles
// context, and drives the Init -> Stream -> ExecuteTools -> Continue ->
// Complete phase machine until the model stops requesting tools.
func (l *Loop) Run(ctx context.Context, workflowID, userMessage string) (*TurnResult, error) {
	if l.Provider == nil {
		return nil, ErrNoProvider
	}
	if l.Store == nil {
		return nil, ErrNoStore
	}

	state := &LoopState{Phase: PhaseInit}

	if err := l.Store.AppendConversationMessage(ctx, workflowID, &models.ConversationMessage{
		WorkflowID: workflowID,
		Role:       models.RoleUser,
		Content:    userMessage,
		CreatedAt:  time.Now(),
	}); err != nil {
		return nil, &LoopError{Phase: state.Phase, Cause: fmt.Errorf("persist inbound message: %w", err)}
	}

	system, history, err := l.buildContext(ctx, workflowID)
	if err != nil {
		return nil, &LoopError{Phase: state.Phase, Cause: fmt.Errorf("assemble context: %w", err)}
	}
	history = append(history, llmprovider.CompletionMessage{Role: string(models.RoleUser), Content: userMessage})

	model := l.Config.DefaultModel
	tools := l.Registry.AsLLMTools()

	var finalText string
	var allResults []ExecResult
	var lastUsage models.TokenUsage

	for iteration := 1; iteration <= l.Config.MaxToolIterations; iteration++ {
		state.Iteration = iteration

		select {
		case <-ctx.Done():
			return nil, &LoopError{Phase: state.Phase, Iteration: iteration, Cause: ctx.Err()}
		default:
		}

		state.Phase = PhaseStream
		result, err := l.Provider.Complete(ctx, &llmprovider.CompletionRequest{
			Model:                model,
			System:               system,
			Messages:             history,
			Tools:                tools,
			MaxTokens:            l.Config.MaxTokens,
			EnableThinking:       l.Config.EnableThinking,
			ThinkingBudgetTokens: l.Config.ThinkingBudgetTokens,
		})
		if err != nil {
			return nil, &LoopError{Phase: state.Phase, Iteration: iteration, Cause: err}
		}

		turnUsage := result.Usage
		if l.Usage != nil {
			turnUsage = l.Usage.Record(workflowID, model, result.Usage.Input, result.Usage.Output, result.Usage.Reasoning)
		}
		lastUsage = turnUsage

		assistantMsg := &models.ConversationMessage{
			WorkflowID:         workflowID,
			Role:               models.RoleAssistant,
			Content:            result.Text,
			ToolCalls:          result.ToolCalls,
			ReasoningEncrypted: result.ReasoningEncrypted,
			ReasoningSummary:   result.Thinking,
			Tokens:             &turnUsage,
			CreatedAt:          time.Now(),
		}
		if err := l.Store.AppendConversationMessage(ctx, workflowID, assistantMsg); err != nil {
			return nil, &LoopError{Phase: state.Phase, Iteration: iteration, Cause: fmt.Errorf("persist assistant message: %w", err)}
		}
		history = append(history, llmprovider.CompletionMessage{
			Role:      string(models.RoleAssistant),
			Content:   result.Text,
			ToolCalls: result.ToolCalls,
		})

		if len(result.ToolCalls) == 0 {
			finalText = result.Text
			state.Phase = PhaseComplete
			return &TurnResult{Text: finalText, ToolCalls: allResults, Usage: lastUsage, Iterations: iteration}, nil
		}

		state.Phase = PhaseExecuteTools
		execResults := l.Executor.ExecuteAll(ctx, workflowID, result.ToolCalls, func(ev *models.ToolEvent) {
			if l.Events != nil {
				l.Events.Publish(workflowID, ev)
			}
		})
		allResults = append(allResults, execResults...)

		toolResults := make([]models.ToolResult, 0, len(execResults))
		for _, r := range execResults {
			toolResults = append(toolResults, r.Result)
		}

		if err := l.Store.AppendConversationMessage(ctx, workflowID, &models.ConversationMessage{
			WorkflowID:  workflowID,
			Role:        models.RoleTool,
			ToolResults: toolResults,
			CreatedAt:   time.Now(),
		}); err != nil {
			return nil, &LoopError{Phase: state.Phase, Iteration: iteration, Cause: fmt.Errorf("persist tool results: %w", err)}
		}
		history = append(history, llmprovider.CompletionMessage{
			Role:        string(models.RoleTool),
			ToolResults: toolResults,
		})

		state.Phase = PhaseContinue
	}

	return nil, &LoopError{Phase: state.Phase, Iteration: state.Iteration, Cause: ErrMaxIterations}
}

// buildContext assembles the system prompt and seed message history for a
// turn: workflow description, plan, node list, browser state, a chunked
// variable summary, and recent conversation history. A prior turn's
// ReasoningSummary (never the raw ReasoningEncrypted signature, which has
// no verified wire format to replay as a provider-specific content block)
// is surfaced as plain context text.
func (l *Loop) buildContext(ctx context.Context, workflowID string) (string, []llmprovider.CompletionMessage, error) {
	var sb strings.Builder
	if l.Config.SystemPrompt != "" {
		sb.WriteString(l.Config.SystemPrompt)
		sb.WriteString("\n\n")
	}

	if desc, err := l.Store.GetLatestDescription(ctx, workflowID); err == nil && desc != nil {
		sb.WriteString("## Workflow description (v" + strconv.Itoa(desc.Version) + ")\n")
		sb.WriteString(desc.Data)
		sb.WriteString("\n\n")
	}

	if plan, err := l.Store.GetPlan(ctx, workflowID); err == nil && plan != nil {
		if data, err := json.Marshal(plan); err == nil {
			sb.WriteString("## Current plan\n")
			sb.Write(data)
			sb.WriteString("\n\n")
		}
	}

	if nodes, err := l.Store.GetNodes(ctx, workflowID); err == nil {
		sb.WriteString(fmt.Sprintf("## Workflow nodes (%d)\n", len(nodes)))
		for _, n := range nodes {
			sb.WriteString(fmt.Sprintf("%d. [%s] %s (%s)", n.Position, n.ID, n.Alias, n.Type))
			if n.Description != "" {
				sb.WriteString(" — " + n.Description)
			}
			sb.WriteString("\n")
		}
		sb.WriteString("\n")
	}

	if l.Facade != nil {
		active := l.Facade.GetCurrentTab(ctx)
		tabs := l.Facade.ListTabs(ctx)
		sb.WriteString("## Browser state\n")
		sb.WriteString("active tab: " + active + "\n")
		sb.WriteString("tabs: " + strings.Join(tabs, ", ") + "\n\n")
	}

	if vars, err := l.Store.GetAllVariables(ctx, workflowID); err == nil && len(vars) > 0 {
		keys := make([]string, 0, len(vars))
		for k := range vars {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		sb.WriteString("## Variables (truncated; use get_workflow_variables for full values)\n")
		for _, k := range keys {
			preview := string(vars[k])
			if len(preview) > variablePreviewChars {
				preview = preview[:variablePreviewChars] + "..."
			}
			sb.WriteString("- " + k + ": " + preview + "\n")
		}
		sb.WriteString("\n")
	}

	limit := l.Config.RecentMessageLimit
	recent, err := l.Store.GetConversationHistory(ctx, workflowID, limit)
	if err != nil {
		return "", nil, err
	}

	var lastReasoning string
	messages := make([]llmprovider.CompletionMessage, 0, len(recent))
	for _, m := range recent {
		if m.ReasoningSummary != "" {
			lastReasoning = m.ReasoningSummary
		}
		messages = append(messages, llmprovider.CompletionMessage{
			Role:        string(m.Role),
			Content:     m.Content,
			ToolCalls:   m.ToolCalls,
			ToolResults: m.ToolResults,
			Attachments: m.Attachments,
		})
	}

	if lastReasoning != "" {
		sb.WriteString("## Prior reasoning summary\n")
		sb.WriteString(lastReasoning)
		sb.WriteString("\n\n")
	}

	return sb.String(), messages, nil
}
