package state

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/dirworks/director/internal/models"
)

// positionShifter maps an old 1-based node position to its new position.
// ok=false means the reference no longer designates a surviving node and
// must be dropped by the caller.
type positionShifter func(oldPos int) (newPos int, ok bool)

// insertShifter returns the positionShifter for inserting count new nodes
// immediately before insertPos: every existing position >= insertPos moves
// up by count, nothing is dropped.
func insertShifter(insertPos, count int) positionShifter {
	return func(oldPos int) (int, bool) {
		if oldPos >= insertPos {
			return oldPos + count, true
		}
		return oldPos, true
	}
}

// deleteShifter returns the positionShifter for removing the given
// (1-based) positions: references to a removed position are dropped,
// surviving references are shifted down by the number of removed
// positions that preceded them.
func deleteShifter(removed []int) positionShifter {
	sorted := append([]int(nil), removed...)
	sort.Ints(sorted)
	removedSet := make(map[int]bool, len(sorted))
	for _, p := range sorted {
		removedSet[p] = true
	}
	return func(oldPos int) (int, bool) {
		if removedSet[oldPos] {
			return 0, false
		}
		shift := 0
		for _, r := range sorted {
			if r >= oldPos {
				break
			}
			shift++
		}
		return oldPos - shift, true
	}
}

// rewriteNodeReferences rewrites the positional references embedded in a
// node's config (iterate.body, route[].branch) through shift, returning the
// rewritten config and the count of references changed or dropped. Node
// types that carry no positional references pass their config through
// unchanged.
func rewriteNodeReferences(nodeType models.NodeType, config json.RawMessage, shift positionShifter) (json.RawMessage, int, error) {
	switch nodeType {
	case models.NodeIterate:
		return rewriteIterateBody(config, shift)
	case models.NodeRoute:
		return rewriteRouteBranches(config, shift)
	default:
		return config, 0, nil
	}
}

func rewriteIterateBody(config json.RawMessage, shift positionShifter) (json.RawMessage, int, error) {
	if len(config) == 0 {
		return config, 0, nil
	}
	var raw map[string]any
	if err := json.Unmarshal(config, &raw); err != nil {
		return config, 0, fmt.Errorf("decode iterate config: %w", err)
	}
	bodyAny, ok := raw["body"]
	if !ok {
		return config, 0, nil
	}
	bodyList, ok := bodyAny.([]any)
	if !ok {
		return config, 0, nil
	}
	changed := 0
	newBody := make([]int, 0, len(bodyList))
	for _, v := range bodyList {
		pos, ok := toInt(v)
		if !ok {
			continue
		}
		newPos, keep := shift(pos)
		if !keep {
			changed++
			continue
		}
		if newPos != pos {
			changed++
		}
		newBody = append(newBody, newPos)
	}
	raw["body"] = newBody
	out, err := json.Marshal(raw)
	if err != nil {
		return config, 0, fmt.Errorf("encode iterate config: %w", err)
	}
	return out, changed, nil
}

func rewriteRouteBranches(config json.RawMessage, shift positionShifter) (json.RawMessage, int, error) {
	if len(config) == 0 {
		return config, 0, nil
	}
	var raw []map[string]any
	if err := json.Unmarshal(config, &raw); err != nil {
		return config, 0, fmt.Errorf("decode route config: %w", err)
	}
	changed := 0
	for _, entry := range raw {
		branchAny, ok := entry["branch"]
		if !ok {
			continue
		}
		switch b := branchAny.(type) {
		case float64:
			pos, _ := toInt(b)
			newPos, keep := shift(pos)
			if !keep {
				entry["branch"] = []int{}
				changed++
				continue
			}
			if newPos != pos {
				changed++
			}
			entry["branch"] = newPos
		case []any:
			newBranch := make([]int, 0, len(b))
			for _, v := range b {
				pos, ok := toInt(v)
				if !ok {
					continue
				}
				newPos, keep := shift(pos)
				if !keep {
					changed++
					continue
				}
				if newPos != pos {
					changed++
				}
				newBranch = append(newBranch, newPos)
			}
			entry["branch"] = newBranch
		}
	}
	out, err := json.Marshal(raw)
	if err != nil {
		return config, 0, fmt.Errorf("encode route config: %w", err)
	}
	return out, changed, nil
}

// referencedPositions returns the set of node positions a control-flow
// node's config points to, used by deleteChildren to recursively collect
// the bodies of removed iterate/route nodes.
func referencedPositions(nodeType models.NodeType, config json.RawMessage) []int {
	switch nodeType {
	case models.NodeIterate:
		var raw struct {
			Body []int `json:"body"`
		}
		if err := json.Unmarshal(config, &raw); err != nil {
			return nil
		}
		return raw.Body
	case models.NodeRoute:
		var raw []struct {
			Branch json.RawMessage `json:"branch"`
		}
		if err := json.Unmarshal(config, &raw); err != nil {
			return nil
		}
		var out []int
		for _, entry := range raw {
			var single int
			if err := json.Unmarshal(entry.Branch, &single); err == nil {
				out = append(out, single)
				continue
			}
			var many []int
			if err := json.Unmarshal(entry.Branch, &many); err == nil {
				out = append(out, many...)
			}
		}
		return out
	default:
		return nil
	}
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case float64:
		return int(n), true
	case int:
		return n, true
	default:
		return 0, false
	}
}
