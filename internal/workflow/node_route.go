package workflow

import (
	"encoding/json"
	"fmt"
)

// routeResult is route's node-level result: which branch (if any)
// matched, for observability. The actual jump to that branch's
// positions is performed by the selection executor, which has access
// to the full node list.
type routeResult struct {
	Matched   string `json:"matched,omitempty"`
	Positions []int  `json:"positions,omitempty"`
}

// execRoute parses the route node's config, a bare array of branches
// (the same shape the state store's reference rewriting reads), and
// evaluates them in order, first truthy wins. Multi-match routing (more
// than one branch firing per evaluation) was considered and rejected;
// only the first match is ever taken.
func (rt *Runtime) execRoute(configRaw json.RawMessage, resolver *Resolver) (json.RawMessage, error) {
	var branches []RouteBranch
	if err := json.Unmarshal(configRaw, &branches); err != nil {
		return nil, fmt.Errorf("workflow: invalid route config: %w", err)
	}
	vars := flattenResolverSnapshot(resolver)
	positions, name, matched := SelectBranch(rt.Logger, branches, vars)
	if !matched {
		return json.Marshal(routeResult{})
	}
	return json.Marshal(routeResult{Matched: name, Positions: positions})
}

// flattenResolverSnapshot exposes the resolver's node results, workflow
// variables and iteration scopes as a flat map for the goja route
// evaluator, which only understands plain globals, not the Resolver's
// tiered path resolution. On a name clash the same tier wins as in
// Resolver.lookupRoot: innermost iteration scope, then workflow
// variables, then node results.
func flattenResolverSnapshot(resolver *Resolver) map[string]json.RawMessage {
	flat := make(map[string]json.RawMessage, len(resolver.workflowVars)+len(resolver.nodeResults))
	for k, v := range resolver.nodeResults {
		flat[k] = v
	}
	for k, v := range resolver.workflowVars {
		flat[k] = v
	}
	for _, scope := range resolver.iterationStack {
		for k, v := range scope {
			flat[k] = v
		}
	}
	return flat
}
