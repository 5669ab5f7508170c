package workflow

import (
	"context"
	"encoding/json"
	"fmt"
)

// cognitionConfig is the "cognition" node's config: a
// template-interpolated instruction plus a required output schema.
type cognitionConfig struct {
	Instruction string          `json:"instruction"`
	Schema      json.RawMessage `json:"schema"`
}

func (rt *Runtime) execCognition(ctx context.Context, nodeID string, configRaw json.RawMessage) (json.RawMessage, error) {
	var cfg cognitionConfig
	if err := json.Unmarshal(configRaw, &cfg); err != nil {
		return nil, fmt.Errorf("workflow: invalid cognition config: %w", err)
	}
	if rt.Cognition == nil {
		return nil, fmt.Errorf("workflow: cognition node requires a CognitionProvider")
	}
	raw, err := rt.Cognition.Reason(ctx, cfg.Instruction, cfg.Schema)
	if err != nil {
		return nil, err
	}
	if len(cfg.Schema) == 0 {
		return raw, nil
	}
	coerced, _, err := rt.Schemas.ValidateAndCoerce(nodeID, raw, cfg.Schema)
	if err != nil {
		return nil, err
	}
	return coerced, nil
}
