package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"
)

// AIActuator performs an AI-instructed action against the current page,
// e.g. "click the blue checkout button". The Director wires a concrete
// implementation backed by the LLM provider and an in-page element
// catalog probe (llmprovider.NewAIActuator); a
// PlaywrightDriver with no actuator configured fails every aiAct call with
// AIActionFailedError.
type AIActuator func(ctx context.Context, page Page, instruction string, constraints []string) error

// AIExtractor performs an AI-instructed, schema-validated extraction
// against the current page.
type AIExtractor func(ctx context.Context, page Page, instruction string, schema json.RawMessage) (json.RawMessage, error)

// PlaywrightDriver implements Driver over one pool-acquired BrowserInstance,
// layering named tabs (one playwright.Page per name) on top of the
// instance's single BrowserContext.
type PlaywrightDriver struct {
	mu        sync.RWMutex
	instance  *BrowserInstance
	pages     map[string]*playwrightPage
	actuator  AIActuator
	extractor AIExtractor
	timeout   time.Duration
}

// NewPlaywrightDriver wraps instance with named-tab bookkeeping. The
// instance's default Page is registered under the name "default".
func NewPlaywrightDriver(instance *BrowserInstance, timeout time.Duration, actuator AIActuator, extractor AIExtractor) *PlaywrightDriver {
	d := &PlaywrightDriver{
		instance:  instance,
		pages:     map[string]*playwrightPage{},
		actuator:  actuator,
		extractor: extractor,
		timeout:   timeout,
	}
	d.pages["default"] = &playwrightPage{page: instance.Page, driver: d}
	return d
}

func (d *PlaywrightDriver) NewPage(ctx context.Context, name, url string) (Page, error) {
	if name == "" {
		return nil, fmt.Errorf("tab name is required")
	}
	d.mu.Lock()
	if _, exists := d.pages[name]; exists {
		d.mu.Unlock()
		return nil, fmt.Errorf("tab %q already open", name)
	}
	page, err := d.instance.Context.NewPage()
	if err != nil {
		d.mu.Unlock()
		return nil, fmt.Errorf("open tab %q: %w", name, err)
	}
	wrapped := &playwrightPage{page: page, driver: d}
	d.pages[name] = wrapped
	d.mu.Unlock()

	if url != "" {
		if err := wrapped.Goto(ctx, url, "load"); err != nil {
			return nil, err
		}
	}
	return wrapped, nil
}

func (d *PlaywrightDriver) Page(name string) (Page, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	p, ok := d.pages[name]
	return p, ok
}

func (d *PlaywrightDriver) ClosePage(name string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := d.pages[name]
	if !ok {
		return &UnknownTabError{Name: name}
	}
	delete(d.pages, name)
	return p.page.Close()
}

func (d *PlaywrightDriver) PageNames() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	names := make([]string, 0, len(d.pages))
	for name := range d.pages {
		names = append(names, name)
	}
	return names
}

func (d *PlaywrightDriver) StorageState(ctx context.Context) (json.RawMessage, error) {
	state, err := d.instance.Context.StorageState()
	if err != nil {
		return nil, fmt.Errorf("capture storage state: %w", err)
	}
	raw, err := json.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("encode storage state: %w", err)
	}
	return raw, nil
}

func (d *PlaywrightDriver) RestoreStorageState(ctx context.Context, state json.RawMessage) error {
	var cookies []playwright.OptionalCookie
	var parsed struct {
		Cookies []playwright.OptionalCookie `json:"cookies"`
	}
	if err := json.Unmarshal(state, &parsed); err != nil {
		return fmt.Errorf("decode storage state: %w", err)
	}
	cookies = parsed.Cookies
	if len(cookies) == 0 {
		return nil
	}
	if err := d.instance.Context.AddCookies(cookies); err != nil {
		return fmt.Errorf("restore cookies: %w", err)
	}
	return nil
}

func (d *PlaywrightDriver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	var firstErr error
	for name, p := range d.pages {
		if name == "default" {
			continue
		}
		if err := p.page.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	d.pages = map[string]*playwrightPage{}
	return firstErr
}

// playwrightPage adapts a playwright.Page to the Page interface, handling
// the `host >> inner` shadow-DOM selector grammar and the nth selection
// semantics before delegating to Playwright locators.
type playwrightPage struct {
	page   playwright.Page
	driver *PlaywrightDriver
}

func (p *playwrightPage) locator(selector string) playwright.Locator {
	if host, inner, ok := splitShadowSelector(selector); ok {
		return p.page.Locator(host).Locator(inner)
	}
	return p.page.Locator(selector)
}

func (p *playwrightPage) Goto(ctx context.Context, url, waitUntil string) error {
	opts := playwright.PageGotoOptions{}
	if waitUntil != "" {
		wu := playwright.WaitUntilState(waitUntil)
		opts.WaitUntil = &wu
	}
	if _, err := p.page.Goto(url, opts); err != nil {
		return &NavigationTimeoutError{URL: url, Timeout: p.driver.timeout.String()}
	}
	return nil
}

func (p *playwrightPage) Back(ctx context.Context) error {
	_, err := p.page.GoBack()
	return err
}

func (p *playwrightPage) Forward(ctx context.Context) error {
	_, err := p.page.GoForward()
	return err
}

func (p *playwrightPage) Reload(ctx context.Context) error {
	_, err := p.page.Reload()
	return err
}

func (p *playwrightPage) Click(ctx context.Context, selector string, nth string) error {
	loc := p.locator(selector)
	idx, fromEnd, err := resolveNth(nth)
	if err != nil {
		return err
	}
	if fromEnd {
		count, cerr := loc.Count()
		if cerr != nil {
			return &ElementNotFoundError{Selector: selector, Timeout: p.driver.timeout.String()}
		}
		idx = count - 1 - idx
	}
	if err := loc.Nth(idx).Click(); err != nil {
		return &ElementNotFoundError{Selector: selector, Timeout: p.driver.timeout.String()}
	}
	return nil
}

func (p *playwrightPage) Type(ctx context.Context, selector, text string, nth string) error {
	loc := p.locator(selector)
	idx, fromEnd, err := resolveNth(nth)
	if err != nil {
		return err
	}
	if fromEnd {
		count, cerr := loc.Count()
		if cerr != nil {
			return &ElementNotFoundError{Selector: selector, Timeout: p.driver.timeout.String()}
		}
		idx = count - 1 - idx
	}
	if err := loc.Nth(idx).Fill(text); err != nil {
		return &ElementNotFoundError{Selector: selector, Timeout: p.driver.timeout.String()}
	}
	return nil
}

func (p *playwrightPage) Keypress(ctx context.Context, key string, modifiers []string) error {
	combo := key
	if len(modifiers) > 0 {
		combo = strings.Join(modifiers, "+") + "+" + key
	}
	return p.page.Keyboard().Press(combo)
}

func (p *playwrightPage) WaitFor(ctx context.Context, cond WaitCondition) error {
	switch {
	case cond.Selector != "":
		if _, err := p.page.WaitForSelector(cond.Selector); err != nil {
			return &ElementNotFoundError{Selector: cond.Selector, Timeout: p.driver.timeout.String()}
		}
		return nil
	case cond.Navigation:
		if err := p.page.WaitForLoadState(); err != nil {
			return &NavigationTimeoutError{URL: p.page.URL(), Timeout: p.driver.timeout.String()}
		}
		return nil
	case cond.TimeMillis > 0:
		time.Sleep(time.Duration(cond.TimeMillis) * time.Millisecond)
		return nil
	default:
		return nil
	}
}

func (p *playwrightPage) ScrollIntoView(ctx context.Context, selector string, opts ScrollIntoViewOptions) error {
	return scrollIntoViewLoop(ctx, p, selector, opts)
}

func (p *playwrightPage) ScrollToRow(ctx context.Context, index int, opts ScrollToRowOptions) error {
	return scrollToRowOnce(ctx, p, index, opts)
}

func (p *playwrightPage) Screenshot(ctx context.Context, fullPage bool) ([]byte, error) {
	return p.page.Screenshot(playwright.PageScreenshotOptions{FullPage: playwright.Bool(fullPage)})
}

func (p *playwrightPage) Evaluate(ctx context.Context, script string) (any, error) {
	return p.page.Evaluate(script)
}

func (p *playwrightPage) Act(ctx context.Context, instruction string, constraints []string) error {
	if p.driver.actuator == nil {
		return &AIActionFailedError{Instruction: instruction, Reason: "no AI actuator configured"}
	}
	return p.driver.actuator(ctx, p, instruction, constraints)
}

func (p *playwrightPage) Extract(ctx context.Context, instruction string, schema json.RawMessage) (json.RawMessage, error) {
	if p.driver.extractor == nil {
		return nil, &AIActionFailedError{Instruction: instruction, Reason: "no AI extractor configured"}
	}
	return p.driver.extractor(ctx, p, instruction, schema)
}

func (p *playwrightPage) URL() string {
	return p.page.URL()
}

func (p *playwrightPage) Title(ctx context.Context) (string, error) {
	return p.page.Title()
}

func (p *playwrightPage) Close() error {
	return p.page.Close()
}
