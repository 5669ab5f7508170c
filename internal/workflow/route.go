package workflow

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"github.com/dop251/goja"
)

// RouteBranch is one entry of a route node's config: a condition
// evaluated in order, and the node position(s) to execute if it's the
// first truthy one.
type RouteBranch struct {
	Name      string          `json:"name"`
	Condition string          `json:"condition"`
	Branch    json.RawMessage `json:"branch"`
}

// routeEvalDeadline bounds a single condition's evaluation; a
// script that runs past this is treated as malformed and evaluates to
// false.
const routeEvalDeadline = 50 * time.Millisecond

// EvaluateCondition resolves condition as a goja expression over vars
// (already-resolved template variables, injected as globals) plus the
// equals/contains/matches/exists host functions.
// Malformed expressions and expressions that exceed the evaluation
// deadline evaluate to false and are logged.
func EvaluateCondition(logger *slog.Logger, condition string, vars map[string]json.RawMessage) bool {
	vm := goja.New()
	vm.SetFieldNameMapper(goja.TagFieldNameMapper("json", true))

	for name, raw := range vars {
		var v any
		if err := json.Unmarshal(raw, &v); err != nil {
			v = nil
		}
		if err := vm.Set(name, v); err != nil {
			logAndFalse(logger, condition, err)
			return false
		}
	}
	registerRouteHostFunctions(vm)

	done := make(chan struct{})
	var value goja.Value
	var runErr error
	go func() {
		defer close(done)
		value, runErr = vm.RunString(condition)
	}()

	select {
	case <-done:
	case <-time.After(routeEvalDeadline):
		vm.Interrupt("workflow: route condition exceeded evaluation deadline")
		<-done
	}

	if runErr != nil {
		logAndFalse(logger, condition, runErr)
		return false
	}
	return toBoolean(value.Export())
}

func logAndFalse(logger *slog.Logger, condition string, err error) {
	if logger != nil {
		logger.Warn("route condition failed to evaluate, defaulting to false", "condition", condition, "error", err)
	}
}

func registerRouteHostFunctions(vm *goja.Runtime) {
	must := func(name string, fn func(goja.FunctionCall) goja.Value) {
		if err := vm.Set(name, fn); err != nil {
			panic(fmt.Sprintf("workflow: register host function %s: %v", name, err))
		}
	}
	must("equals", func(call goja.FunctionCall) goja.Value {
		a := call.Argument(0).Export()
		b := call.Argument(1).Export()
		return vm.ToValue(fmt.Sprint(a) == fmt.Sprint(b))
	})
	must("contains", func(call goja.FunctionCall) goja.Value {
		haystack := fmt.Sprint(call.Argument(0).Export())
		needle := fmt.Sprint(call.Argument(1).Export())
		return vm.ToValue(regexp.QuoteMeta(needle) != "" && stringContains(haystack, needle))
	})
	must("matches", func(call goja.FunctionCall) goja.Value {
		s := fmt.Sprint(call.Argument(0).Export())
		pattern := fmt.Sprint(call.Argument(1).Export())
		re, err := regexp.Compile(pattern)
		if err != nil {
			return vm.ToValue(false)
		}
		return vm.ToValue(re.MatchString(s))
	})
	must("exists", func(call goja.FunctionCall) goja.Value {
		v := call.Argument(0).Export()
		return vm.ToValue(toBoolean(v))
	})
}

func stringContains(haystack, needle string) bool {
	return len(needle) == 0 || indexOf(haystack, needle) >= 0
}

func indexOf(haystack, needle string) int {
	n, m := len(haystack), len(needle)
	if m == 0 {
		return 0
	}
	for i := 0; i+m <= n; i++ {
		if haystack[i:i+m] == needle {
			return i
		}
	}
	return -1
}

// toBoolean follows the route-expression coercion rules: empty string, 0, null,
// undefined, empty array are false; everything else is true.
func toBoolean(v any) bool {
	switch val := v.(type) {
	case nil:
		return false
	case bool:
		return val
	case string:
		return val != ""
	case int64:
		return val != 0
	case float64:
		return val != 0
	case []any:
		return len(val) > 0
	default:
		return true
	}
}

// SelectBranch evaluates branches in order and returns the first
// truthy one's positions, or nil if none match.
func SelectBranch(logger *slog.Logger, branches []RouteBranch, vars map[string]json.RawMessage) ([]int, string, bool) {
	for _, b := range branches {
		if EvaluateCondition(logger, b.Condition, vars) {
			positions, err := parseBranchPositions(b.Branch)
			if err != nil {
				logAndFalse(logger, b.Condition, err)
				continue
			}
			return positions, b.Name, true
		}
	}
	return nil, "", false
}

func parseBranchPositions(raw json.RawMessage) ([]int, error) {
	var single int
	if err := json.Unmarshal(raw, &single); err == nil {
		return []int{single}, nil
	}
	var multi []int
	if err := json.Unmarshal(raw, &multi); err != nil {
		return nil, fmt.Errorf("workflow: route branch must be a position or array of positions: %w", err)
	}
	return multi, nil
}
