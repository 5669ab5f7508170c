package workflow

import (
	"context"
	"encoding/json"
	"fmt"
)

// contextConfig is the "context" node's config: a flat map written into
// the variable store. References inside values are
// resolved before storage.
type contextConfig struct {
	Variables map[string]json.RawMessage `json:"variables"`
}

// execContext stores cfg.Variables into the workflow variable store.
// configRaw has already had its templates resolved by ExecuteNode, so
// each value is used as-is.
func (rt *Runtime) execContext(ctx context.Context, workflowID string, configRaw json.RawMessage) (json.RawMessage, error) {
	var cfg contextConfig
	if err := json.Unmarshal(configRaw, &cfg); err != nil {
		return nil, fmt.Errorf("workflow: invalid context config: %w", err)
	}
	written := make(map[string]json.RawMessage, len(cfg.Variables))
	for key, raw := range cfg.Variables {
		if err := rt.Store.SetVariable(ctx, workflowID, key, raw); err != nil {
			return nil, err
		}
		written[key] = raw
	}
	return json.Marshal(written)
}
