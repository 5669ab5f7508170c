package workflow

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dirworks/director/internal/models"
)

// handleConfig is the "handle" node's config: a list of child node
// positions to run; any failure among them is downgraded to a
// tool-visible result on this node instead of halting the run.
type handleConfig struct {
	Children json.RawMessage `json:"children"` // position or array of positions
}

// handleResult is handle's node-level output: whether its children
// succeeded, and the captured failure (if any) instead of a propagated
// error.
type handleResult struct {
	Recovered bool                `json:"recovered"`
	Failure   *models.StepFailure `json:"failure,omitempty"`
	Results   []json.RawMessage   `json:"results,omitempty"`
}

func (rt *Runtime) execHandle(ctx context.Context, workflowID string, node *models.Node, configRaw json.RawMessage, resolver *Resolver) (json.RawMessage, error) {
	var cfg handleConfig
	if err := json.Unmarshal(configRaw, &cfg); err != nil {
		return nil, fmt.Errorf("workflow: invalid handle config: %w", err)
	}
	positions, err := parseBranchPositions(cfg.Children)
	if err != nil {
		return nil, err
	}
	if rt.BodyRunner == nil {
		return nil, fmt.Errorf("workflow: handle node requires a body runner")
	}

	outcomes := rt.BodyRunner(ctx, workflowID, positions, resolver)

	result := handleResult{Recovered: true}
	for _, outcome := range outcomes {
		if outcome.Failure != nil {
			result.Recovered = false
			result.Failure = outcome.Failure
			break
		}
		if outcome.Result != nil {
			result.Results = append(result.Results, outcome.Result)
		}
	}
	return json.Marshal(result)
}
