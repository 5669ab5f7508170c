package workflow

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dirworks/director/internal/models"
)

// iterateConfig is the "iterate" node's config.
type iterateConfig struct {
	Over            json.RawMessage `json:"over"`
	Variable        string          `json:"variable"`
	Body            json.RawMessage `json:"body"` // position or array of positions
	Limit           int             `json:"limit,omitempty"`
	ContinueOnError bool            `json:"continueOnError,omitempty"`
	Index           int             `json:"index,omitempty"`
}

// iterateSummary is stored under the iterate node's alias when
// store_variable is set.
type iterateSummary struct {
	Results   []json.RawMessage `json:"results"`
	Errors    []string          `json:"errors"`
	Processed int               `json:"processed"`
	Total     int               `json:"total"`
}

// execIterate resolves Over to an array, clears stale iteration
// variables for this node's position, then runs body for each item via
// rt.BodyRunner (supplied by the selection executor, which knows how to
// dispatch a set of node positions in flow mode). Positions in Body are
// parsed here; BodyRunner receives the already-parsed slice.
func (rt *Runtime) execIterate(ctx context.Context, workflowID string, node *models.Node, configRaw json.RawMessage, resolver *Resolver) (json.RawMessage, error) {
	var cfg iterateConfig
	if err := json.Unmarshal(configRaw, &cfg); err != nil {
		return nil, fmt.Errorf("workflow: invalid iterate config: %w", err)
	}

	items, err := resolveIterationItems(cfg.Over)
	if err != nil {
		return nil, err
	}

	if err := rt.Store.ClearIterationFor(ctx, workflowID, node.Position); err != nil {
		return nil, fmt.Errorf("workflow: clear iteration state: %w", err)
	}

	bodyPositions, err := parseBranchPositions(cfg.Body)
	if err != nil {
		return nil, err
	}

	limit := len(items)
	if cfg.Limit > 0 && cfg.Limit < limit {
		limit = cfg.Limit
	}

	summary := iterateSummary{
		Results: []json.RawMessage{},
		Errors:  []string{},
		Total:   limit,
	}
	for idx := 0; idx < limit; idx++ {
		item := items[idx]
		vars := map[string]json.RawMessage{
			cfg.Variable:                    item,
			cfg.Variable + "Index":          mustMarshal(idx),
			cfg.Variable + "Total":          mustMarshal(limit),
		}
		resolver.PushIteration(vars)

		if err := rt.Store.SetVariable(ctx, workflowID,
			models.IterationKey(cfg.Variable, node.Position, idx), item); err != nil {
			resolver.PopIteration()
			return nil, err
		}

		outcomes := rt.runIterationBody(ctx, workflowID, bodyPositions, resolver)
		resolver.PopIteration()

		bodyFailed := false
		for _, outcome := range outcomes {
			if outcome.Failure != nil {
				bodyFailed = true
				summary.Errors = append(summary.Errors, outcome.Failure.Error())
			}
		}
		summary.Processed++
		if resultRaw, ok := lastNonNilResult(outcomes); ok {
			summary.Results = append(summary.Results, resultRaw)
		}

		if bodyFailed && !cfg.ContinueOnError {
			break
		}
	}

	return json.Marshal(summary)
}

// resolveIterationItems turns the resolved "over" value into the item
// list to iterate. A numeric-keyed object ({"0":…,"1":…}) is coerced to
// an array sorted by key, the same rule the schema validator applies to
// AI-produced output; anything else that isn't an array fails with
// ErrNotArray.
func resolveIterationItems(over json.RawMessage) ([]json.RawMessage, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(over, &items); err == nil {
		return items, nil
	}

	var obj map[string]any
	if err := json.Unmarshal(over, &obj); err == nil {
		if arr, ok := numericKeyedObjectToArray(obj); ok {
			items = make([]json.RawMessage, len(arr))
			for i, v := range arr {
				items[i] = mustMarshal(v)
			}
			return items, nil
		}
	}
	return nil, &ErrNotArray{Variable: string(over)}
}

// runIterationBody calls rt.BodyRunner, which the selection executor
// sets so iterate can dispatch its body nodes using the same flow-mode
// logic ExecuteSelection uses, without this file depending on
// selection.go's node-list loading. With no BodyRunner it runs nothing.
func (rt *Runtime) runIterationBody(ctx context.Context, workflowID string, positions []int, resolver *Resolver) []NodeOutcome {
	if rt.BodyRunner == nil {
		return nil
	}
	return rt.BodyRunner(ctx, workflowID, positions, resolver)
}

func lastNonNilResult(outcomes []NodeOutcome) (json.RawMessage, bool) {
	for i := len(outcomes) - 1; i >= 0; i-- {
		if outcomes[i].Result != nil {
			return outcomes[i].Result, true
		}
	}
	return nil, false
}

func mustMarshal(v any) json.RawMessage {
	raw, _ := json.Marshal(v)
	return raw
}
