// Package llmprovider adapts LLM backends to the Director Control Loop's
// blocking completion contract: one call in, one fully-materialized result
// out, no channel of incremental chunks exposed to the caller.
package llmprovider

import (
	"context"
	"encoding/json"

	"github.com/dirworks/director/internal/models"
)

// Provider is the narrow surface the Director needs from an LLM backend.
// Unlike the streaming provider interfaces common in chat-UI agent
// frameworks, Complete blocks until the underlying response (and any
// provider-side streaming transport used to fetch it) has been fully
// consumed, because reasoning-token counts and tool-call argument JSON
// are only reliable once a turn has completed.
type Provider interface {
	// Complete sends a prompt and returns the fully materialized result.
	Complete(ctx context.Context, req *CompletionRequest) (*CompletionResult, error)

	// Name returns the provider name.
	Name() string

	// Models returns available models.
	Models() []Model

	// SupportsTools returns whether the provider supports tool use.
	SupportsTools() bool
}

// CompletionRequest contains all parameters for an LLM completion request.
type CompletionRequest struct {
	// Model specifies which LLM model to use. If empty, the provider's
	// default model is used.
	Model string `json:"model"`

	// System is the system prompt.
	System string `json:"system,omitempty"`

	// Messages contains the conversation history in chronological order.
	Messages []CompletionMessage `json:"messages"`

	// Tools defines available tools the LLM can request to execute.
	Tools []Tool `json:"tools,omitempty"`

	// MaxTokens limits the maximum length of the generated response.
	// If 0 or negative, the provider's default is used.
	MaxTokens int `json:"max_tokens,omitempty"`

	// EnableThinking enables extended reasoning mode for supported models.
	EnableThinking bool `json:"enable_thinking,omitempty"`

	// ThinkingBudgetTokens sets the token budget for extended thinking.
	// Only used when EnableThinking is true.
	ThinkingBudgetTokens int `json:"thinking_budget_tokens,omitempty"`
}

// CompletionMessage represents a single message in a conversation.
type CompletionMessage struct {
	// Role is "user", "assistant", or "tool".
	Role string `json:"role"`

	// Content is the text content of the message.
	Content string `json:"content,omitempty"`

	// ToolCalls contains tool execution requests from a prior assistant turn.
	ToolCalls []models.ToolCall `json:"tool_calls,omitempty"`

	// ToolResults contains responses from previously executed tools.
	ToolResults []models.ToolResult `json:"tool_results,omitempty"`

	// Attachments contains images for vision-capable models (e.g. a
	// screenshot returned by the get_screenshot perception tool).
	Attachments []models.Attachment `json:"attachments,omitempty"`
}

// CompletionResult is the fully-materialized response to a completion
// request: the response text, any tool calls the model requested, and
// the token accounting persisted alongside it.
type CompletionResult struct {
	// Text is the assistant's response text, if any.
	Text string `json:"text,omitempty"`

	// ToolCalls contains complete tool execution requests.
	ToolCalls []models.ToolCall `json:"tool_calls,omitempty"`

	// Thinking is the model's extended-reasoning text, if EnableThinking
	// was set and the model produced a thinking block.
	Thinking string `json:"thinking,omitempty"`

	// ReasoningEncrypted is the provider's opaque signature over the
	// thinking block. The Director persists it verbatim on the assistant
	// message; it is not sent back to the provider on later turns.
	ReasoningEncrypted []byte `json:"reasoning_encrypted,omitempty"`

	// StopReason is the provider's reason the turn ended
	// ("end_turn", "tool_use", "max_tokens", ...).
	StopReason string `json:"stop_reason,omitempty"`

	// Usage is this turn's token accounting.
	Usage models.TokenUsage `json:"usage"`
}

// Model describes an available LLM model and its capabilities.
type Model struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	ContextSize    int    `json:"context_size"`
	SupportsVision bool   `json:"supports_vision"`
}

// Tool is the LLM-facing shape of a registered tool: enough for the
// provider to describe it to the model. Execution itself is the
// Director Control Loop's ToolRegistry's responsibility, not the
// provider's, so this interface carries no Execute method.
type Tool interface {
	// Name returns the tool name for LLM function calling.
	Name() string

	// Description returns a natural language description of the tool.
	Description() string

	// Schema returns the JSON Schema defining the tool's parameters.
	Schema() json.RawMessage
}
