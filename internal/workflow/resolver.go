package workflow

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
)

// placeholderPattern matches a {{...}} reference anywhere in a string.
var placeholderPattern = regexp.MustCompile(`\{\{\s*([^{}]+?)\s*\}\}`)

// exactPlaceholderPattern matches a string that is *only* one {{...}}
// reference, with nothing else around it — the "non-string context"
// case where the resolved value's own JSON type should be preserved
// instead of being stringified into a template.
var exactPlaceholderPattern = regexp.MustCompile(`^\{\{\s*([^{}]+?)\s*\}\}$`)

// Resolver resolves {{path}} references against the four-tier lookup
// order: innermost active iteration scope,
// workflow (context-node) variables, aliased node results, then
// environment variables via the env: prefix.
type Resolver struct {
	iterationStack []map[string]json.RawMessage
	workflowVars   map[string]json.RawMessage
	nodeResults    map[string]json.RawMessage
	envLookup      func(string) (string, bool)
}

// NewResolver builds a Resolver over workflowVars (keyed flat, as the
// state store returns them) and nodeResults (keyed by node alias, for
// nodes with store_variable=true).
func NewResolver(workflowVars, nodeResults map[string]json.RawMessage) *Resolver {
	return &Resolver{
		workflowVars: workflowVars,
		nodeResults:  nodeResults,
		envLookup:    os.LookupEnv,
	}
}

// PushIteration introduces a new innermost iteration scope; the caller
// pops it with PopIteration once the iterate node's body finishes one
// pass.
func (r *Resolver) PushIteration(vars map[string]json.RawMessage) {
	r.iterationStack = append(r.iterationStack, vars)
}

// PopIteration removes the innermost iteration scope.
func (r *Resolver) PopIteration() {
	if len(r.iterationStack) == 0 {
		return
	}
	r.iterationStack = r.iterationStack[:len(r.iterationStack)-1]
}

// lookupRoot resolves just the first path segment's name to a JSON
// value, following the resolution order. ok is false if no tier has it.
func (r *Resolver) lookupRoot(name string) (json.RawMessage, bool) {
	if env, ok := strings.CutPrefix(name, "env:"); ok {
		val, found := r.envLookup(env)
		if !found {
			return nil, false
		}
		encoded, _ := json.Marshal(val)
		return encoded, true
	}
	for i := len(r.iterationStack) - 1; i >= 0; i-- {
		if v, ok := r.iterationStack[i][name]; ok {
			return v, true
		}
	}
	if v, ok := r.workflowVars[name]; ok {
		return v, true
	}
	if v, ok := r.nodeResults[name]; ok {
		return v, true
	}
	return nil, false
}

// Resolve resolves a dotted/bracketed path ("name", "name.a.b[0]")
// against the lookup tiers, returning the raw JSON at that path.
func (r *Resolver) Resolve(path string) (json.RawMessage, bool) {
	segments, err := parsePath(path)
	if err != nil || len(segments) == 0 {
		return nil, false
	}
	current, ok := r.lookupRoot(segments[0].name)
	if !ok {
		return nil, false
	}
	for _, seg := range segments[1:] {
		current, ok = navigate(current, seg)
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// pathSegment is one step of a resolved path: either a field name or
// (when index is non-nil) an array index applied to the prior value.
type pathSegment struct {
	name  string
	index *int
}

// parsePath splits "a.b[0].c" into [{a} {b} {index:0} {c}].
func parsePath(path string) ([]pathSegment, error) {
	var segments []pathSegment
	for _, part := range strings.Split(path, ".") {
		if part == "" {
			continue
		}
		name := part
		var indices []int
		for {
			open := strings.Index(name, "[")
			if open < 0 {
				break
			}
			close := strings.Index(name[open:], "]")
			if close < 0 {
				return nil, fmt.Errorf("workflow: malformed path segment %q", part)
			}
			close += open
			idxStr := name[open+1 : close]
			idx, err := strconv.Atoi(idxStr)
			if err != nil {
				return nil, fmt.Errorf("workflow: non-numeric index in %q", part)
			}
			indices = append(indices, idx)
			name = name[:open] + name[close+1:]
		}
		segments = append(segments, pathSegment{name: name})
		for _, idx := range indices {
			i := idx
			segments = append(segments, pathSegment{index: &i})
		}
	}
	return segments, nil
}

func navigate(value json.RawMessage, seg pathSegment) (json.RawMessage, bool) {
	if seg.index != nil {
		var arr []json.RawMessage
		if err := json.Unmarshal(value, &arr); err != nil {
			return nil, false
		}
		idx := *seg.index
		if idx < 0 || idx >= len(arr) {
			return nil, false
		}
		return arr[idx], true
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(value, &obj); err != nil {
		return nil, false
	}
	v, ok := obj[seg.name]
	return v, ok
}

// ResolveValue resolves raw when it is a JSON string that is *exactly*
// one {{path}} reference, preserving the resolved value's own JSON
// type (object/array/number/bool/string). Any other raw value,
// including strings with embedded template text, is returned through
// ResolveTemplates instead. Unresolved references return raw verbatim.
func (r *Resolver) ResolveValue(raw json.RawMessage) json.RawMessage {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return r.ResolveTemplates(raw)
	}
	if m := exactPlaceholderPattern.FindStringSubmatch(s); m != nil {
		if resolved, ok := r.Resolve(strings.TrimSpace(m[1])); ok {
			return resolved
		}
		return raw
	}
	return r.ResolveTemplates(raw)
}

// ResolveTemplates walks any JSON value (recursing into objects and
// arrays) and replaces {{path}} references: a string leaf that is
// *exactly* one reference is replaced with the resolved value's own
// JSON type (so a node's "over": "{{items}}" field ends up an array,
// not a stringified one); a string leaf with embedded reference text
// has each reference stringified and spliced in. Unresolved references
// are left as literal {{...}} text.
func (r *Resolver) ResolveTemplates(raw json.RawMessage) json.RawMessage {
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return raw
	}
	resolved := r.resolveAny(generic)
	out, err := json.Marshal(resolved)
	if err != nil {
		return raw
	}
	return out
}

func (r *Resolver) resolveAny(v any) any {
	switch val := v.(type) {
	case string:
		if m := exactPlaceholderPattern.FindStringSubmatch(val); m != nil {
			if resolved, ok := r.Resolve(strings.TrimSpace(m[1])); ok {
				var decoded any
				if err := json.Unmarshal(resolved, &decoded); err == nil {
					return decoded
				}
			}
			return val
		}
		return r.resolveString(val)
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, sub := range val {
			out[k] = r.resolveAny(sub)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, sub := range val {
			out[i] = r.resolveAny(sub)
		}
		return out
	default:
		return val
	}
}

func (r *Resolver) resolveString(s string) string {
	return placeholderPattern.ReplaceAllStringFunc(s, func(match string) string {
		sub := placeholderPattern.FindStringSubmatch(match)
		path := strings.TrimSpace(sub[1])
		resolved, ok := r.Resolve(path)
		if !ok {
			return match
		}
		return stringify(resolved)
	})
}

// stringify renders a resolved JSON value for interpolation into a
// larger string: unquoted for strings, compact JSON otherwise.
func stringify(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}
