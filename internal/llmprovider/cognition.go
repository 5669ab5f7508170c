package llmprovider

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// CognitionAdapter satisfies internal/workflow.CognitionProvider by
// wrapping a blocking Provider: it asks the model for JSON matching the
// node's declared schema and hands the raw text back for the workflow
// package's own SchemaRegistry to validate and coerce. This package does
// not duplicate that validation — it only has to get the model to
// produce something in the right shape.
type CognitionAdapter struct {
	Provider  Provider
	Model     string
	MaxTokens int
}

// NewCognitionAdapter builds a CognitionAdapter over the given provider.
func NewCognitionAdapter(provider Provider, model string, maxTokens int) *CognitionAdapter {
	return &CognitionAdapter{Provider: provider, Model: model, MaxTokens: maxTokens}
}

const cognitionSystemPrompt = `You are a reasoning step inside an automated browser workflow.
Respond with a single JSON value that satisfies the given JSON Schema, and nothing else:
no prose, no markdown code fences, no explanation before or after the JSON.`

// Reason sends the instruction plus its required schema to the model
// and returns whatever JSON text it produced, stripped of any
// markdown-fence wrapping a model might still add despite instructions.
func (a *CognitionAdapter) Reason(ctx context.Context, instruction string, schema json.RawMessage) (json.RawMessage, error) {
	var prompt strings.Builder
	prompt.WriteString(instruction)
	if len(schema) > 0 {
		prompt.WriteString("\n\nJSON Schema for your response:\n")
		prompt.Write(schema)
	}

	result, err := a.Provider.Complete(ctx, &CompletionRequest{
		Model:     a.Model,
		System:    cognitionSystemPrompt,
		Messages:  []CompletionMessage{{Role: "user", Content: prompt.String()}},
		MaxTokens: a.MaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("llmprovider: cognition request failed: %w", err)
	}

	text := stripCodeFence(strings.TrimSpace(result.Text))
	if text == "" {
		return nil, fmt.Errorf("llmprovider: cognition response was empty")
	}
	if !json.Valid([]byte(text)) {
		return nil, fmt.Errorf("llmprovider: cognition response was not valid JSON: %s", truncate(text, 200))
	}
	return json.RawMessage(text), nil
}

// stripCodeFence removes a leading/trailing ```json ... ``` or ``` ...
// ``` wrapper, in case the model ignores the no-markdown instruction.
func stripCodeFence(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
