package workflow

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/dirworks/director/internal/models"
)

// ExecutionMode selects how ExecuteSelection interprets the selection
// string.
type ExecutionMode string

const (
	ModeIsolated ExecutionMode = "isolated"
	ModeFlow     ExecutionMode = "flow"
)

// ParseSelection parses a selection string ("5", "3-5", "1-3,10,15-17",
// "all") into the set of 1-based positions it names. "all" requires
// totalNodes so it can enumerate every position.
func ParseSelection(selection string, totalNodes int) ([]int, error) {
	selection = strings.TrimSpace(selection)
	if selection == "all" {
		positions := make([]int, totalNodes)
		for i := range positions {
			positions[i] = i + 1
		}
		return positions, nil
	}

	var positions []int
	for _, part := range strings.Split(selection, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if dash := strings.Index(part, "-"); dash > 0 {
			start, err1 := strconv.Atoi(strings.TrimSpace(part[:dash]))
			end, err2 := strconv.Atoi(strings.TrimSpace(part[dash+1:]))
			if err1 != nil || err2 != nil || start > end {
				return nil, &ErrInvalidSelection{Selection: selection}
			}
			for p := start; p <= end; p++ {
				positions = append(positions, p)
			}
			continue
		}
		p, err := strconv.Atoi(part)
		if err != nil {
			return nil, &ErrInvalidSelection{Selection: selection}
		}
		positions = append(positions, p)
	}
	if len(positions) == 0 {
		return nil, &ErrInvalidSelection{Selection: selection}
	}
	return positions, nil
}

// ExecuteSelection runs selection against workflowID's node list under
// mode. In isolated mode, each selected node runs in positional order,
// ignoring iterate.body/route.branch containment. In flow mode,
// execution begins at the first selected node and follows the
// workflow's control-flow semantics: iterate dispatches its body, route
// follows the matched branch, and nodes not reached by flow from a
// selected node are skipped.
func (rt *Runtime) ExecuteSelection(ctx context.Context, workflowID, selection string, mode ExecutionMode) ([]NodeOutcome, error) {
	nodes, err := rt.Store.GetNodes(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	byPosition := make(map[int]*models.Node, len(nodes))
	for _, n := range nodes {
		byPosition[n.Position] = n
	}

	positions, err := ParseSelection(selection, len(nodes))
	if err != nil {
		return nil, err
	}

	resolver, err := rt.buildResolver(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	// runPositions dispatches a set of positions; in flow mode it
	// follows iterate/route containment, in isolated mode it simply
	// runs each position once in order with no branching.
	var runPositions func(positions []int, r *Resolver) []NodeOutcome
	runPositions = func(positions []int, r *Resolver) []NodeOutcome {
		var outcomes []NodeOutcome
		for _, pos := range positions {
			node, ok := byPosition[pos]
			if !ok {
				continue
			}
			outcome := rt.ExecuteNode(ctx, workflowID, node, r)
			outcomes = append(outcomes, outcome)

			// A "handle" node's own execHandle never returns an error —
			// it always downgrades a child failure into its result — so
			// any outcome.Failure reaching here is a genuine, unhandled
			// failure that halts the run.
			if outcome.Failure != nil {
				return outcomes
			}

			if mode == ModeFlow && node.Type == models.NodeRoute && outcome.Result != nil {
				var rr routeResult
				if unmarshalInto(outcome.Result, &rr) && len(rr.Positions) > 0 {
					outcomes = append(outcomes, runPositions(rr.Positions, r)...)
				}
			}
		}
		return outcomes
	}

	rt.BodyRunner = func(ctx context.Context, workflowID string, bodyPositions []int, r *Resolver) []NodeOutcome {
		return runPositions(bodyPositions, r)
	}

	if mode == ModeIsolated {
		return runPositions(positions, resolver), nil
	}

	// Flow mode begins at the first selected node and lets iterate/route
	// dispatch their own continuations via BodyRunner/runPositions; we
	// only need to kick off the first selected position here.
	if len(positions) == 0 {
		return nil, nil
	}
	return runPositions([]int{positions[0]}, resolver), nil
}

func unmarshalInto(raw []byte, target any) bool {
	return json.Unmarshal(raw, target) == nil
}
