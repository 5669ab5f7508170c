package workflow

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dirworks/director/internal/browser"
)

// browserActionConfig is the union of fields any deterministic
// browser_action may use; only the fields relevant to Action are read.
type browserActionConfig struct {
	Action       string   `json:"action"`
	Selector     string   `json:"selector"`
	Text         string   `json:"text"`
	Nth          string   `json:"nth"`
	UseShadowDOM bool     `json:"useShadowDOM"`
	URL          string   `json:"url"`
	Tab          string   `json:"tab"`
	WaitUntil    string   `json:"waitUntil"`
	Key          string   `json:"key"`
	Modifiers    []string `json:"modifiers"`
	FullPage     bool     `json:"fullPage"`
	Name         string   `json:"name"`
	Index        int      `json:"index"`
	RowHeight    int      `json:"rowHeight"`
	Container    string   `json:"container"`
	MaxAttempts  int      `json:"maxAttempts"`
	Wait         *struct {
		Time       int    `json:"time"`
		Selector   string `json:"selector"`
		Navigation bool   `json:"navigation"`
	} `json:"wait"`
}

func (rt *Runtime) execBrowserAction(ctx context.Context, configRaw json.RawMessage) (json.RawMessage, error) {
	var cfg browserActionConfig
	if err := json.Unmarshal(configRaw, &cfg); err != nil {
		return nil, fmt.Errorf("workflow: invalid browser_action config: %w", err)
	}
	if rt.Facade == nil {
		return nil, fmt.Errorf("workflow: browser_action requires a Browser Facade")
	}
	f := rt.Facade

	switch cfg.Action {
	case "navigate":
		return nil, f.Navigate(ctx, cfg.URL, cfg.Tab, cfg.WaitUntil)
	case "back":
		return nil, f.Back(ctx)
	case "forward":
		return nil, f.Forward(ctx)
	case "refresh":
		return nil, f.Refresh(ctx)
	case "openTab":
		return nil, f.OpenTab(ctx, cfg.Name, cfg.URL)
	case "closeTab":
		return nil, f.CloseTab(ctx, cfg.Name)
	case "switchTab":
		return nil, f.SwitchTab(ctx, cfg.Name)
	case "listTabs":
		tabs := f.ListTabs(ctx)
		return json.Marshal(tabs)
	case "getCurrentTab":
		return json.Marshal(f.GetCurrentTab(ctx))
	case "wait":
		return nil, execWait(ctx, f, cfg)
	case "click":
		return nil, f.Click(ctx, cfg.Selector, cfg.Nth)
	case "type":
		return nil, f.Type(ctx, cfg.Selector, cfg.Text, cfg.Nth)
	case "keypress":
		return nil, f.Keypress(ctx, cfg.Key, cfg.Modifiers)
	case "scrollIntoView":
		return nil, f.ScrollIntoView(ctx, cfg.Selector, browser.ScrollIntoViewOptions{MaxAttempts: cfg.MaxAttempts})
	case "scrollToRow":
		return nil, f.ScrollToRow(ctx, cfg.Index, browser.ScrollToRowOptions{RowHeight: cfg.RowHeight, Container: cfg.Container})
	case "screenshot":
		data, err := f.Screenshot(ctx, cfg.FullPage)
		if err != nil {
			return nil, err
		}
		return json.Marshal(data)
	case "getCurrentUrl":
		url, err := f.GetCurrentURL(ctx)
		if err != nil {
			return nil, err
		}
		return json.Marshal(url)
	case "getTitle":
		title, err := f.GetTitle(ctx)
		if err != nil {
			return nil, err
		}
		return json.Marshal(title)
	default:
		return nil, fmt.Errorf("workflow: unknown browser_action action %q", cfg.Action)
	}
}

func execWait(ctx context.Context, f *browser.Facade, cfg browserActionConfig) error {
	if cfg.Wait == nil {
		return fmt.Errorf("workflow: wait action requires a wait config")
	}
	return f.Wait(ctx, browser.WaitCondition{
		TimeMillis: cfg.Wait.Time,
		Selector:   cfg.Wait.Selector,
		Navigation: cfg.Wait.Navigation,
	})
}

// browserAIActionConfig is browser_ai_action's config:
// one of click|type|act with a natural-language instruction.
type browserAIActionConfig struct {
	Action      string   `json:"action"`
	Instruction string   `json:"instruction"`
	Constraints []string `json:"constraints"`
	Tab         string   `json:"tab"`
}

func (rt *Runtime) execBrowserAIAction(ctx context.Context, configRaw json.RawMessage) (json.RawMessage, error) {
	var cfg browserAIActionConfig
	if err := json.Unmarshal(configRaw, &cfg); err != nil {
		return nil, fmt.Errorf("workflow: invalid browser_ai_action config: %w", err)
	}
	if rt.Facade == nil {
		return nil, fmt.Errorf("workflow: browser_ai_action requires a Browser Facade")
	}
	instruction := cfg.Instruction
	if cfg.Action != "" && cfg.Action != "act" {
		instruction = fmt.Sprintf("%s: %s", cfg.Action, cfg.Instruction)
	}
	return nil, rt.Facade.AIAct(ctx, instruction, cfg.Constraints, cfg.Tab)
}

// browserAIExtractConfig is browser_ai_extract's config: a
// natural-language instruction plus a required output schema.
type browserAIExtractConfig struct {
	Instruction string          `json:"instruction"`
	Schema      json.RawMessage `json:"schema"`
	Tab         string          `json:"tab"`
}

func (rt *Runtime) execBrowserAIExtract(ctx context.Context, nodeID string, configRaw json.RawMessage) (json.RawMessage, error) {
	var cfg browserAIExtractConfig
	if err := json.Unmarshal(configRaw, &cfg); err != nil {
		return nil, fmt.Errorf("workflow: invalid browser_ai_extract config: %w", err)
	}
	if rt.Facade == nil {
		return nil, fmt.Errorf("workflow: browser_ai_extract requires a Browser Facade")
	}
	raw, err := rt.Facade.AIExtract(ctx, cfg.Instruction, cfg.Schema, cfg.Tab)
	if err != nil {
		return nil, err
	}
	if len(cfg.Schema) == 0 {
		return raw, nil
	}
	coerced, _, err := rt.Schemas.ValidateAndCoerce(nodeID, raw, cfg.Schema)
	if err != nil {
		return nil, err
	}
	return coerced, nil
}
