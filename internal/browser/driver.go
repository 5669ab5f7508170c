package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// WaitCondition selects exactly one of its fields: a fixed duration, a
// selector to appear, or a pending navigation to settle.
type WaitCondition struct {
	TimeMillis int
	Selector   string
	Navigation bool
}

// Page is the per-tab surface the Browser Facade drives. It mirrors the
// driver contract's page(name).goto/click/type/keypress/waitFor/
// screenshot/evaluate plus the AI-assisted act/extract pair.
type Page interface {
	Goto(ctx context.Context, url, waitUntil string) error
	Back(ctx context.Context) error
	Forward(ctx context.Context) error
	Reload(ctx context.Context) error
	Click(ctx context.Context, selector string, nth string) error
	Type(ctx context.Context, selector, text string, nth string) error
	Keypress(ctx context.Context, key string, modifiers []string) error
	WaitFor(ctx context.Context, cond WaitCondition) error
	ScrollIntoView(ctx context.Context, selector string, opts ScrollIntoViewOptions) error
	ScrollToRow(ctx context.Context, index int, opts ScrollToRowOptions) error
	Screenshot(ctx context.Context, fullPage bool) ([]byte, error)
	Evaluate(ctx context.Context, script string) (any, error)
	Act(ctx context.Context, instruction string, constraints []string) error
	Extract(ctx context.Context, instruction string, schema json.RawMessage) (json.RawMessage, error)
	URL() string
	Title(ctx context.Context) (string, error)
	Close() error
}

// Driver is the multi-tab browser driver the Browser Facade wraps. A
// concrete implementation (PlaywrightDriver) backs this with a real
// browser; tests use a fake.
type Driver interface {
	NewPage(ctx context.Context, name, url string) (Page, error)
	Page(name string) (Page, bool)
	ClosePage(name string) error
	PageNames() []string
	StorageState(ctx context.Context) (json.RawMessage, error)
	RestoreStorageState(ctx context.Context, state json.RawMessage) error
	Close() error
}

// resolveNth turns the nth grammar (non-negative int, negative
// "from end", "first", "last", or a pre-resolved template string) into a
// 0-based Playwright-style locator index plus a fromEnd flag for -1-style
// references.
func resolveNth(nth string) (index int, fromEnd bool, err error) {
	switch strings.TrimSpace(nth) {
	case "", "first":
		return 0, false, nil
	case "last":
		return 0, true, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(nth))
	if err != nil {
		return 0, false, fmt.Errorf("invalid nth %q: %w", nth, err)
	}
	if n < 0 {
		return -n - 1, true, nil
	}
	return n, false, nil
}

// splitShadowSelector splits a `host >> inner` selector into its shadow
// host and inner parts. Plain selectors (no `>>`) return ok=false.
func splitShadowSelector(selector string) (host, inner string, ok bool) {
	idx := strings.Index(selector, ">>")
	if idx < 0 {
		return "", "", false
	}
	return strings.TrimSpace(selector[:idx]), strings.TrimSpace(selector[idx+2:]), true
}
