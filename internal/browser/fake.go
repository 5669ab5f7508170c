package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// FakePage is an in-memory Page used by the Workflow Runtime and Director
// test suites so they can exercise node dispatch without a real browser.
type FakePage struct {
	mu        sync.Mutex
	url       string
	title     string
	clicks    []string
	typed     map[string]string
	evaluated []string
	ActFunc   func(ctx context.Context, instruction string, constraints []string) error
	ExtractFunc func(ctx context.Context, instruction string, schema json.RawMessage) (json.RawMessage, error)
}

// NewFakePage returns an empty FakePage at about:blank.
func NewFakePage() *FakePage {
	return &FakePage{url: "about:blank", typed: map[string]string{}}
}

func (p *FakePage) Goto(ctx context.Context, url, waitUntil string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.url = url
	return nil
}

func (p *FakePage) Back(ctx context.Context) error    { return nil }
func (p *FakePage) Forward(ctx context.Context) error { return nil }
func (p *FakePage) Reload(ctx context.Context) error  { return nil }

func (p *FakePage) Click(ctx context.Context, selector string, nth string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clicks = append(p.clicks, fmt.Sprintf("%s#%s", selector, nth))
	return nil
}

func (p *FakePage) Type(ctx context.Context, selector, text string, nth string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.typed[selector] = text
	return nil
}

func (p *FakePage) Keypress(ctx context.Context, key string, modifiers []string) error {
	return nil
}

func (p *FakePage) WaitFor(ctx context.Context, cond WaitCondition) error {
	return nil
}

func (p *FakePage) ScrollIntoView(ctx context.Context, selector string, opts ScrollIntoViewOptions) error {
	return nil
}

func (p *FakePage) ScrollToRow(ctx context.Context, index int, opts ScrollToRowOptions) error {
	return nil
}

func (p *FakePage) Screenshot(ctx context.Context, fullPage bool) ([]byte, error) {
	return []byte("fake-screenshot"), nil
}

func (p *FakePage) Evaluate(ctx context.Context, script string) (any, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.evaluated = append(p.evaluated, script)
	return true, nil
}

func (p *FakePage) Act(ctx context.Context, instruction string, constraints []string) error {
	if p.ActFunc != nil {
		return p.ActFunc(ctx, instruction, constraints)
	}
	return &AIActionFailedError{Instruction: instruction, Reason: "no ActFunc configured on FakePage"}
}

func (p *FakePage) Extract(ctx context.Context, instruction string, schema json.RawMessage) (json.RawMessage, error) {
	if p.ExtractFunc != nil {
		return p.ExtractFunc(ctx, instruction, schema)
	}
	return nil, &AIActionFailedError{Instruction: instruction, Reason: "no ExtractFunc configured on FakePage"}
}

func (p *FakePage) URL() string { p.mu.Lock(); defer p.mu.Unlock(); return p.url }

func (p *FakePage) Title(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.title, nil
}

func (p *FakePage) Close() error { return nil }

// TypedValue returns what Type last wrote to selector, for test assertions.
func (p *FakePage) TypedValue(selector string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.typed[selector]
}

// Clicks returns the recorded "selector#nth" click log, for test assertions.
func (p *FakePage) Clicks() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.clicks...)
}

// FakeDriver is an in-memory Driver backing FakePage tabs.
type FakeDriver struct {
	mu    sync.Mutex
	pages map[string]*FakePage
	state json.RawMessage
}

// NewFakeDriver returns a driver with one "default" tab already open.
func NewFakeDriver() *FakeDriver {
	return &FakeDriver{pages: map[string]*FakePage{"default": NewFakePage()}}
}

func (d *FakeDriver) NewPage(ctx context.Context, name, url string) (Page, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, exists := d.pages[name]; exists {
		return nil, fmt.Errorf("tab %q already open", name)
	}
	p := NewFakePage()
	if url != "" {
		p.url = url
	}
	d.pages[name] = p
	return p, nil
}

func (d *FakeDriver) Page(name string) (Page, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := d.pages[name]
	return p, ok
}

func (d *FakeDriver) ClosePage(name string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.pages[name]; !ok {
		return &UnknownTabError{Name: name}
	}
	delete(d.pages, name)
	return nil
}

func (d *FakeDriver) PageNames() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	names := make([]string, 0, len(d.pages))
	for name := range d.pages {
		names = append(names, name)
	}
	return names
}

func (d *FakeDriver) StorageState(ctx context.Context) (json.RawMessage, error) {
	if d.state == nil {
		return json.RawMessage(`{"cookies":[]}`), nil
	}
	return d.state, nil
}

func (d *FakeDriver) RestoreStorageState(ctx context.Context, state json.RawMessage) error {
	d.state = state
	return nil
}

func (d *FakeDriver) Close() error { return nil }
