package workflow

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/dirworks/director/internal/browser"
	"github.com/dirworks/director/internal/state"
)

func newTestRuntime(t *testing.T) (*Runtime, *browser.FakeDriver, *state.MemoryStore) {
	t.Helper()
	driver := browser.NewFakeDriver()
	store := state.NewMemoryStore()
	facade := browser.NewFacadeWithDriver(driver, store, "wf-1", time.Second)
	rt := NewRuntime(store, facade, nil, nil)
	return rt, driver, store
}

func TestExecBrowserActionNavigateAndClick(t *testing.T) {
	rt, driver, _ := newTestRuntime(t)
	ctx := context.Background()

	_, err := rt.execBrowserAction(ctx, rawMsg(t, map[string]any{
		"action": "navigate",
		"url":    "https://example.com",
	}))
	if err != nil {
		t.Fatalf("navigate: %v", err)
	}
	page, _ := driver.Page("default")
	if page.URL() != "https://example.com" {
		t.Fatalf("expected navigation to apply, got %s", page.URL())
	}

	_, err = rt.execBrowserAction(ctx, rawMsg(t, map[string]any{
		"action":   "click",
		"selector": "#submit",
		"nth":      "0",
	}))
	if err != nil {
		t.Fatalf("click: %v", err)
	}
	fp := page.(*browser.FakePage)
	clicks := fp.Clicks()
	if len(clicks) != 1 || clicks[0] != "#submit#0" {
		t.Fatalf("expected click recorded, got %v", clicks)
	}
}

func TestExecBrowserActionUnknownAction(t *testing.T) {
	rt, _, _ := newTestRuntime(t)
	_, err := rt.execBrowserAction(context.Background(), rawMsg(t, map[string]any{"action": "teleport"}))
	if err == nil {
		t.Fatal("expected error for unknown action")
	}
}

func TestExecBrowserAIActionUsesActuator(t *testing.T) {
	rt, driver, _ := newTestRuntime(t)
	page, _ := driver.Page("default")
	fp := page.(*browser.FakePage)
	called := false
	fp.ActFunc = func(ctx context.Context, instruction string, constraints []string) error {
		called = true
		if instruction != "click the login button" {
			t.Fatalf("unexpected instruction: %q", instruction)
		}
		return nil
	}

	_, err := rt.execBrowserAIAction(context.Background(), rawMsg(t, map[string]any{
		"action":      "act",
		"instruction": "click the login button",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called {
		t.Fatal("expected ActFunc to be invoked")
	}
}

func TestExecBrowserAIExtractValidatesSchema(t *testing.T) {
	rt, driver, _ := newTestRuntime(t)
	page, _ := driver.Page("default")
	fp := page.(*browser.FakePage)
	fp.ExtractFunc = func(ctx context.Context, instruction string, schema json.RawMessage) (json.RawMessage, error) {
		return rawMsg(t, map[string]any{"price": "19.99"}), nil
	}

	out, err := rt.execBrowserAIExtract(context.Background(), "n1", rawMsg(t, map[string]any{
		"instruction": "extract the price",
		"schema":      json.RawMessage(`{"type":"object","properties":{"price":{"type":"number"}}}`),
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(out, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded["price"].(float64) != 19.99 {
		t.Fatalf("expected coerced numeric price, got %v", decoded["price"])
	}
}
