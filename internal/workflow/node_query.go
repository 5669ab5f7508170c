package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dirworks/director/internal/models"
)

// browserQueryConfig is browser_query's config, selected by Method:
// "validate" reads Rules and OnFailure; "deterministic_extract" reads
// Selector, Fields and Limit.
type browserQueryConfig struct {
	Method              string               `json:"method"`
	Rules               []validateRule       `json:"rules,omitempty"`
	OnFailure           string               `json:"onFailure,omitempty"`
	Selector            string               `json:"selector,omitempty"`
	Fields              map[string]fieldSpec `json:"fields,omitempty"`
	Limit               int                  `json:"limit,omitempty"`
}

type validateRule struct {
	Selector     string `json:"selector"`
	UseShadowDOM bool   `json:"useShadowDOM,omitempty"`
	Expect       string `json:"expect"` // element_exists | element_absent
}

type fieldSpec struct {
	Selector      string `json:"selector,omitempty"`
	Attribute     string `json:"attribute,omitempty"`      // "@attribute" form, without the @
	ContainsValue string `json:"containsValue,omitempty"`  // "@attribute~value" contains-check
}

type extractedRow map[string]json.RawMessage

func (rt *Runtime) execBrowserQuery(ctx context.Context, configRaw json.RawMessage) (json.RawMessage, error) {
	var cfg browserQueryConfig
	if err := json.Unmarshal(configRaw, &cfg); err != nil {
		return nil, fmt.Errorf("workflow: invalid browser_query config: %w", err)
	}
	if rt.Facade == nil {
		return nil, fmt.Errorf("workflow: browser_query requires a Browser Facade")
	}

	switch cfg.Method {
	case "validate":
		return rt.execValidate(ctx, cfg)
	case "deterministic_extract":
		return rt.execDeterministicExtract(ctx, cfg)
	default:
		return nil, fmt.Errorf("workflow: unknown browser_query method %q", cfg.Method)
	}
}

type validateResult struct {
	Passed bool     `json:"passed"`
	Failed []string `json:"failed,omitempty"`
}

func (rt *Runtime) execValidate(ctx context.Context, cfg browserQueryConfig) (json.RawMessage, error) {
	var failed []string
	for _, rule := range cfg.Rules {
		exists, err := rt.elementExists(ctx, rule.Selector)
		if err != nil {
			return nil, err
		}
		satisfied := (rule.Expect == "element_exists" && exists) || (rule.Expect == "element_absent" && !exists)
		if !satisfied {
			failed = append(failed, fmt.Sprintf("%s: expected %s", rule.Selector, rule.Expect))
		}
	}
	result := validateResult{Passed: len(failed) == 0, Failed: failed}
	raw, err := json.Marshal(result)
	if err != nil {
		return nil, err
	}
	if len(failed) == 0 {
		return raw, nil
	}
	if cfg.OnFailure == "continue_with_error" {
		return raw, nil
	}
	return raw, &models.StepFailure{
		Type:      "validation_failed",
		Message:   strings.Join(failed, "; "),
		Retriable: false,
	}
}

func (rt *Runtime) elementExists(ctx context.Context, selector string) (bool, error) {
	script := fmt.Sprintf(`(() => !!document.querySelector(%q))()`, selector)
	result, err := rt.evaluateOnCurrentPage(ctx, script)
	if err != nil {
		return false, err
	}
	b, _ := result.(bool)
	return b, nil
}

// evaluateOnCurrentPage runs script against the Facade's current tab
// through Facade.Evaluate.
func (rt *Runtime) evaluateOnCurrentPage(ctx context.Context, script string) (any, error) {
	return rt.Facade.Evaluate(ctx, script)
}

func (rt *Runtime) execDeterministicExtract(ctx context.Context, cfg browserQueryConfig) (json.RawMessage, error) {
	script := buildExtractScript(cfg)
	raw, err := rt.evaluateOnCurrentPage(ctx, script)
	if err != nil {
		return nil, err
	}
	return json.Marshal(raw)
}

// buildExtractScript composes a DOM-walking extraction script: for each
// row matching cfg.Selector, collects cfg.Fields via sub-selector plus
// optional @attribute / @attribute~value contains-check semantics.
func buildExtractScript(cfg browserQueryConfig) string {
	var b strings.Builder
	b.WriteString("(() => {\n")
	fmt.Fprintf(&b, "  const rows = Array.from(document.querySelectorAll(%q));\n", cfg.Selector)
	if cfg.Limit > 0 {
		fmt.Fprintf(&b, "  const limited = rows.slice(0, %d);\n", cfg.Limit)
	} else {
		b.WriteString("  const limited = rows;\n")
	}
	b.WriteString("  return limited.map(row => {\n")
	b.WriteString("    const out = {};\n")
	for name, field := range cfg.Fields {
		target := "row"
		if field.Selector != "" {
			target = fmt.Sprintf("row.querySelector(%q)", field.Selector)
		}
		switch {
		case field.Attribute != "":
			fmt.Fprintf(&b, "    { const el = %s; out[%q] = el ? el.getAttribute(%q) : null; }\n", target, name, field.Attribute)
		case field.ContainsValue != "":
			fmt.Fprintf(&b, "    { const el = %s; out[%q] = el ? (el.getAttribute(%q) || '').includes(%q) : false; }\n",
				target, name, strings.Split(field.ContainsValue, "~")[0], attrContainsValue(field.ContainsValue))
		default:
			fmt.Fprintf(&b, "    { const el = %s; out[%q] = el ? el.textContent.trim() : null; }\n", target, name)
		}
	}
	b.WriteString("    return out;\n")
	b.WriteString("  });\n")
	b.WriteString("})()")
	return b.String()
}

func attrContainsValue(spec string) string {
	parts := strings.SplitN(spec, "~", 2)
	if len(parts) == 2 {
		return parts[1]
	}
	return spec
}
