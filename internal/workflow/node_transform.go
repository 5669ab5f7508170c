package workflow

import (
	"encoding/json"
	"fmt"

	"github.com/dop251/goja"
)

// transformConfig is the "transform" node's config: an input value and
// a goja expression evaluated with that input bound as `input`, in a
// fresh goja runtime that has the route evaluator's host functions. No
// evaluation deadline is applied.
type transformConfig struct {
	Input json.RawMessage `json:"input"`
	Expr  string          `json:"expr"`
}

func (rt *Runtime) execTransform(configRaw json.RawMessage, resolver *Resolver) (json.RawMessage, error) {
	var cfg transformConfig
	if err := json.Unmarshal(configRaw, &cfg); err != nil {
		return nil, fmt.Errorf("workflow: invalid transform config: %w", err)
	}

	var input any
	if len(cfg.Input) > 0 {
		if err := json.Unmarshal(cfg.Input, &input); err != nil {
			input = nil
		}
	}

	vm := goja.New()
	if err := vm.Set("input", input); err != nil {
		return nil, fmt.Errorf("workflow: bind transform input: %w", err)
	}
	registerRouteHostFunctions(vm)

	value, err := vm.RunString(cfg.Expr)
	if err != nil {
		return nil, fmt.Errorf("workflow: transform expression failed: %w", err)
	}
	return json.Marshal(value.Export())
}
