// Package browser implements the Browser Facade: a uniform, multi-tab
// wrapper around a driver that can act deterministically via CSS
// selectors and cooperatively via an LLM-guided action/extraction model.
package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// ProfileStore is the narrow persistence surface Facade needs for browser
// profile lifecycle management. A *state.MemoryStore or *state.PostgresStore
// satisfies this without any adapter, since Go interface satisfaction is
// structural.
type ProfileStore interface {
	SetVariable(ctx context.Context, workflowID, key string, value json.RawMessage) error
	GetVariable(ctx context.Context, workflowID, key string) (json.RawMessage, error)
	GetAllVariables(ctx context.Context, workflowID string) (map[string]json.RawMessage, error)
	ClearVariable(ctx context.Context, workflowID, key string) error
}

const (
	profileKeyPrefix = "__browser_profile__:"
	activeProfileKey = "__browser_profile__active"
)

// Facade is the Browser Facade for one workflow execution: one
// pool-acquired browser instance, a driver layering named tabs on top of
// it, and the currently active tab.
type Facade struct {
	pool       *Pool
	instance   *BrowserInstance
	driver     Driver
	profiles   ProfileStore
	workflowID string
	currentTab string
	timeout    time.Duration
}

// NewFacade acquires a browser instance from pool and wraps it in a
// PlaywrightDriver. Release must be called when the workflow execution
// finishes to return the instance to pool.
func NewFacade(ctx context.Context, pool *Pool, profiles ProfileStore, workflowID string, actuator AIActuator, extractor AIExtractor) (*Facade, error) {
	instance, err := pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire browser instance: %w", err)
	}
	driver := NewPlaywrightDriver(instance, pool.config.Timeout, actuator, extractor)
	return &Facade{
		pool:       pool,
		instance:   instance,
		driver:     driver,
		profiles:   profiles,
		workflowID: workflowID,
		currentTab: "default",
		timeout:    pool.config.Timeout,
	}, nil
}

// NewFacadeWithDriver builds a Facade around an already-constructed
// driver, bypassing pool acquisition. Used by tests (with a FakeDriver)
// and by callers that manage the underlying browser instance themselves.
func NewFacadeWithDriver(driver Driver, profiles ProfileStore, workflowID string, timeout time.Duration) *Facade {
	return &Facade{driver: driver, profiles: profiles, workflowID: workflowID, currentTab: "default", timeout: timeout}
}

// Release returns the underlying browser instance to the pool.
func (f *Facade) Release() {
	f.driver.Close()
	if f.pool != nil {
		f.pool.Release(f.instance)
	}
}

func (f *Facade) page(tab string) (Page, error) {
	if tab == "" {
		tab = f.currentTab
	}
	p, ok := f.driver.Page(tab)
	if !ok {
		return nil, &UnknownTabError{Name: tab}
	}
	return p, nil
}

// Navigate navigates tab (or the current tab if empty) to url.
func (f *Facade) Navigate(ctx context.Context, url, tab, waitUntil string) error {
	p, err := f.page(tab)
	if err != nil {
		return err
	}
	return p.Goto(ctx, url, waitUntil)
}

func (f *Facade) Back(ctx context.Context) error    { return withCurrent(f, func(p Page) error { return p.Back(ctx) }) }
func (f *Facade) Forward(ctx context.Context) error { return withCurrent(f, func(p Page) error { return p.Forward(ctx) }) }
func (f *Facade) Refresh(ctx context.Context) error  { return withCurrent(f, func(p Page) error { return p.Reload(ctx) }) }

func withCurrent(f *Facade, fn func(Page) error) error {
	p, err := f.page("")
	if err != nil {
		return err
	}
	return fn(p)
}

// OpenTab opens a new named tab, optionally navigating it immediately.
func (f *Facade) OpenTab(ctx context.Context, name, url string) error {
	_, err := f.driver.NewPage(ctx, name, url)
	return err
}

// CloseTab closes a named tab. Closing the current tab leaves
// currentTab pointed at a closed name until SwitchTab is called again.
func (f *Facade) CloseTab(ctx context.Context, name string) error {
	return f.driver.ClosePage(name)
}

// SwitchTab makes name the current tab for subsequent deterministic
// operations that don't specify a tab explicitly.
func (f *Facade) SwitchTab(ctx context.Context, name string) error {
	if _, ok := f.driver.Page(name); !ok {
		return &UnknownTabError{Name: name}
	}
	f.currentTab = name
	return nil
}

// ListTabs returns all open tab names.
func (f *Facade) ListTabs(ctx context.Context) []string {
	return f.driver.PageNames()
}

// GetCurrentTab returns the name of the active tab.
func (f *Facade) GetCurrentTab(ctx context.Context) string {
	return f.currentTab
}

// Wait blocks on exactly one of cond's conditions against the current tab.
func (f *Facade) Wait(ctx context.Context, cond WaitCondition) error {
	return withCurrent(f, func(p Page) error { return p.WaitFor(ctx, cond) })
}

// Click performs a deterministic click, resolving shadow-DOM `>>`
// selectors and nth selection.
func (f *Facade) Click(ctx context.Context, selector, nth string) error {
	return withCurrent(f, func(p Page) error { return p.Click(ctx, selector, nth) })
}

// Type fills text into selector.
func (f *Facade) Type(ctx context.Context, selector, text, nth string) error {
	return withCurrent(f, func(p Page) error { return p.Type(ctx, selector, text, nth) })
}

// Keypress sends a key, optionally combined with modifiers.
func (f *Facade) Keypress(ctx context.Context, key string, modifiers []string) error {
	return withCurrent(f, func(p Page) error { return p.Keypress(ctx, key, modifiers) })
}

// ScrollIntoView progressively scrolls until selector appears, handling
// virtualized lists.
func (f *Facade) ScrollIntoView(ctx context.Context, selector string, opts ScrollIntoViewOptions) error {
	return withCurrent(f, func(p Page) error { return p.ScrollIntoView(ctx, selector, opts) })
}

// ScrollToRow jumps to a known row offset in a fixed-row-height list.
func (f *Facade) ScrollToRow(ctx context.Context, index int, opts ScrollToRowOptions) error {
	return withCurrent(f, func(p Page) error { return p.ScrollToRow(ctx, index, opts) })
}

// AIAct performs an AI-instructed action, optionally against targetTab
// instead of the current tab.
func (f *Facade) AIAct(ctx context.Context, instruction string, constraints []string, targetTab string) error {
	p, err := f.page(targetTab)
	if err != nil {
		return err
	}
	return p.Act(ctx, instruction, constraints)
}

// AIExtract performs an AI-instructed, schema-validated extraction.
func (f *Facade) AIExtract(ctx context.Context, instruction string, schema json.RawMessage, targetTab string) (json.RawMessage, error) {
	p, err := f.page(targetTab)
	if err != nil {
		return nil, err
	}
	return p.Extract(ctx, instruction, schema)
}

// Evaluate runs script against the current tab and returns its result,
// the low-level escape hatch browser_query's deterministic_extract
// method is built on.
func (f *Facade) Evaluate(ctx context.Context, script string) (any, error) {
	p, err := f.page("")
	if err != nil {
		return nil, err
	}
	return p.Evaluate(ctx, script)
}

// Screenshot captures the current tab.
func (f *Facade) Screenshot(ctx context.Context, fullPage bool) ([]byte, error) {
	p, err := f.page("")
	if err != nil {
		return nil, err
	}
	return p.Screenshot(ctx, fullPage)
}

// GetCurrentURL returns the current tab's URL.
func (f *Facade) GetCurrentURL(ctx context.Context) (string, error) {
	p, err := f.page("")
	if err != nil {
		return "", err
	}
	return p.URL(), nil
}

// GetTitle returns the current tab's document title.
func (f *Facade) GetTitle(ctx context.Context) (string, error) {
	p, err := f.page("")
	if err != nil {
		return "", err
	}
	return p.Title(ctx)
}

// SaveProfile persists the driver's current storage state (cookies, local
// storage) under name.
func (f *Facade) SaveProfile(ctx context.Context, name string) error {
	state, err := f.driver.StorageState(ctx)
	if err != nil {
		return err
	}
	return f.profiles.SetVariable(ctx, f.workflowID, profileKeyPrefix+name, state)
}

// LoadProfile returns a saved profile's raw storage state without applying
// it to the live browser.
func (f *Facade) LoadProfile(ctx context.Context, name string) (json.RawMessage, error) {
	return f.profiles.GetVariable(ctx, f.workflowID, profileKeyPrefix+name)
}

// ListProfiles returns the names of saved profiles for this workflow.
func (f *Facade) ListProfiles(ctx context.Context) ([]string, error) {
	all, err := f.profiles.GetAllVariables(ctx, f.workflowID)
	if err != nil {
		return nil, err
	}
	var names []string
	for key := range all {
		if name, ok := trimProfilePrefix(key); ok {
			names = append(names, name)
		}
	}
	return names, nil
}

// SetProfile marks name as the workflow's active profile without applying
// it, so a later restore (or a fresh execution) knows which one to load.
func (f *Facade) SetProfile(ctx context.Context, name string) error {
	return f.profiles.SetVariable(ctx, f.workflowID, activeProfileKey, json.RawMessage(`"`+name+`"`))
}

// RestoreProfile loads name's storage state and applies it to the live
// browser context.
func (f *Facade) RestoreProfile(ctx context.Context, name string) error {
	state, err := f.LoadProfile(ctx, name)
	if err != nil {
		return err
	}
	return f.driver.RestoreStorageState(ctx, state)
}

// CDPDebugURL returns the underlying instance's Chrome DevTools HTTP
// endpoint, or "" when the pool launched without a debug port (or the
// facade wraps a fake driver). The DOM Toolkit attaches through it.
func (f *Facade) CDPDebugURL() string {
	if f.instance == nil {
		return ""
	}
	return f.instance.CDPDebugURL
}

func trimProfilePrefix(key string) (string, bool) {
	if len(key) <= len(profileKeyPrefix) || key[:len(profileKeyPrefix)] != profileKeyPrefix {
		return "", false
	}
	return key[len(profileKeyPrefix):], true
}
