// Package director implements the Director Control Loop: a tool-using LLM
// agent that turns a user message plus a workflow's state into a sequence
// of tool calls and a final assistant message.
package director

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/dirworks/director/internal/llmprovider"
	"github.com/dirworks/director/internal/models"
)

// Tool is one function the Director's LLM may call. It satisfies
// llmprovider.Tool (Name/Description/Schema) so a ToolRegistry's contents
// can be handed straight to a CompletionRequest, and adds the Execute
// step that llmprovider deliberately has no opinion about.
type Tool interface {
	llmprovider.Tool
	Execute(ctx context.Context, workflowID string, params json.RawMessage) (*models.ToolResult, error)
}

// Tool parameter limits, guarding against resource exhaustion from
// malformed model output.
const (
	MaxToolNameLength  = 256
	MaxToolParamsSize  = 10 << 20
)

// ToolRegistry manages the Director's mutation and perception tools with
// thread-safe registration and lookup.
type ToolRegistry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewToolRegistry creates an empty registry.
func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{tools: make(map[string]Tool)}
}

// Register adds a tool, replacing any existing tool registered under the
// same name.
func (r *ToolRegistry) Register(tool Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[tool.Name()] = tool
}

// Get returns a tool by name.
func (r *ToolRegistry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, ok := r.tools[name]
	return tool, ok
}

// AsLLMTools returns every registered tool as the narrower llmprovider.Tool
// view, for attaching to a CompletionRequest.
func (r *ToolRegistry) AsLLMTools() []llmprovider.Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tools := make([]llmprovider.Tool, 0, len(r.tools))
	for _, t := range r.tools {
		tools = append(tools, t)
	}
	return tools
}

// Execute runs a tool by name with the given JSON parameters, after
// validating the name and parameter size against the registry's
// resource guards.
func (r *ToolRegistry) Execute(ctx context.Context, workflowID, name string, params json.RawMessage) (*models.ToolResult, error) {
	if len(name) > MaxToolNameLength {
		return &models.ToolResult{
			Content: fmt.Sprintf("tool name exceeds maximum length of %d characters", MaxToolNameLength),
			IsError: true,
		}, nil
	}
	if len(params) > MaxToolParamsSize {
		return &models.ToolResult{
			Content: fmt.Sprintf("tool parameters exceed maximum size of %d bytes", MaxToolParamsSize),
			IsError: true,
		}, nil
	}

	r.mu.RLock()
	tool, ok := r.tools[name]
	r.mu.RUnlock()
	if !ok {
		return &models.ToolResult{Content: "tool not found: " + name, IsError: true}, nil
	}
	return tool.Execute(ctx, workflowID, params)
}
