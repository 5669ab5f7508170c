package browser

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/dirworks/director/internal/state"
)

func newTestFacade(t *testing.T) (*Facade, *FakeDriver) {
	t.Helper()
	driver := NewFakeDriver()
	store := state.NewMemoryStore()
	facade := NewFacadeWithDriver(driver, store, "wf1", 5*time.Second)
	return facade, driver
}

func TestFacadeTabLifecycle(t *testing.T) {
	facade, _ := newTestFacade(t)
	ctx := context.Background()

	if err := facade.OpenTab(ctx, "popup", "https://example.com/popup"); err != nil {
		t.Fatalf("OpenTab() error = %v", err)
	}
	tabs := facade.ListTabs(ctx)
	if len(tabs) != 2 {
		t.Fatalf("expected 2 tabs, got %v", tabs)
	}
	if err := facade.SwitchTab(ctx, "popup"); err != nil {
		t.Fatalf("SwitchTab() error = %v", err)
	}
	if got := facade.GetCurrentTab(ctx); got != "popup" {
		t.Fatalf("expected current tab %q, got %q", "popup", got)
	}
	url, err := facade.GetCurrentURL(ctx)
	if err != nil {
		t.Fatalf("GetCurrentURL() error = %v", err)
	}
	if url != "https://example.com/popup" {
		t.Fatalf("expected popup url, got %q", url)
	}

	if err := facade.SwitchTab(ctx, "does-not-exist"); err == nil {
		t.Fatalf("expected UnknownTabError, got nil")
	}
}

func TestFacadeClickAndType(t *testing.T) {
	facade, driver := newTestFacade(t)
	ctx := context.Background()

	if err := facade.Click(ctx, "#submit", "0"); err != nil {
		t.Fatalf("Click() error = %v", err)
	}
	if err := facade.Type(ctx, "#email", "user@example.com", ""); err != nil {
		t.Fatalf("Type() error = %v", err)
	}

	page, _ := driver.Page("default")
	fake := page.(*FakePage)
	if got := fake.TypedValue("#email"); got != "user@example.com" {
		t.Fatalf("expected typed value, got %q", got)
	}
	if clicks := fake.Clicks(); len(clicks) != 1 || clicks[0] != "#submit#0" {
		t.Fatalf("expected one recorded click, got %v", clicks)
	}
}

func TestFacadeProfileLifecycle(t *testing.T) {
	facade, driver := newTestFacade(t)
	ctx := context.Background()

	driver.state = json.RawMessage(`{"cookies":[{"name":"sid","value":"abc"}]}`)

	if err := facade.SaveProfile(ctx, "work"); err != nil {
		t.Fatalf("SaveProfile() error = %v", err)
	}
	names, err := facade.ListProfiles(ctx)
	if err != nil {
		t.Fatalf("ListProfiles() error = %v", err)
	}
	if len(names) != 1 || names[0] != "work" {
		t.Fatalf("expected [work], got %v", names)
	}

	driver.state = nil
	if err := facade.RestoreProfile(ctx, "work"); err != nil {
		t.Fatalf("RestoreProfile() error = %v", err)
	}
	if string(driver.state) != `{"cookies":[{"name":"sid","value":"abc"}]}` {
		t.Fatalf("expected restored state, got %s", driver.state)
	}
}

func TestFacadeAIExtractUsesConfiguredExtractor(t *testing.T) {
	facade, driver := newTestFacade(t)
	ctx := context.Background()

	page, _ := driver.Page("default")
	fake := page.(*FakePage)
	fake.ExtractFunc = func(ctx context.Context, instruction string, schema json.RawMessage) (json.RawMessage, error) {
		return json.RawMessage(`{"price": 9.99}`), nil
	}

	result, err := facade.AIExtract(ctx, "extract the price", json.RawMessage(`{"type":"object"}`), "")
	if err != nil {
		t.Fatalf("AIExtract() error = %v", err)
	}
	if string(result) != `{"price": 9.99}` {
		t.Fatalf("unexpected extract result: %s", result)
	}
}

func TestFacadeAIActWithoutActuatorFails(t *testing.T) {
	facade, _ := newTestFacade(t)
	err := facade.AIAct(context.Background(), "click checkout", nil, "")
	if err == nil {
		t.Fatalf("expected AIActionFailedError, got nil")
	}
}
