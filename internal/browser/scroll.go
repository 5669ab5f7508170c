package browser

import (
	"context"
	"fmt"
)

// ScrollIntoViewOptions configures ScrollIntoView's progressive search for
// an element inside a (possibly virtualized) scroll container.
type ScrollIntoViewOptions struct {
	Container   string // selector of the scrolling container; "" means the window
	Block       string // "start", "center", "end", "nearest"; default "center"
	Direction   string // "down" (default) or "up"
	MaxAttempts int    // default 20
}

// ScrollToRowOptions configures ScrollToRow's jump to a known row offset in
// a fixed-row-height virtualized list.
type ScrollToRowOptions struct {
	RowHeight int // pixels per row; default 40
	Container string
}

func (o ScrollIntoViewOptions) withDefaults() ScrollIntoViewOptions {
	if o.Block == "" {
		o.Block = "center"
	}
	if o.Direction == "" {
		o.Direction = "down"
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 20
	}
	return o
}

func (o ScrollToRowOptions) withDefaults() ScrollToRowOptions {
	if o.RowHeight <= 0 {
		o.RowHeight = 40
	}
	return o
}

// scrollEvaluator is the narrow surface scrollIntoViewLoop/scrollToRowOnce
// need from a Page, so the progressive-scroll algorithm can be unit tested
// against a fake without pulling in the whole Driver interface.
type scrollEvaluator interface {
	Evaluate(ctx context.Context, script string) (any, error)
}

// scrollIntoViewLoop repeatedly scrolls the container (or window) and
// checks for the selector, handling virtualized lists that only render
// nearby rows. It gives up with ElementNotFoundError after MaxAttempts.
func scrollIntoViewLoop(ctx context.Context, page scrollEvaluator, selector string, opts ScrollIntoViewOptions) error {
	opts = opts.withDefaults()
	step := 400
	if opts.Direction == "up" {
		step = -step
	}

	for attempt := 0; attempt < opts.MaxAttempts; attempt++ {
		found, err := page.Evaluate(ctx, fmt.Sprintf(
			`(() => { const el = document.querySelector(%q); if (!el) return false; el.scrollIntoView({block: %q}); return true; })()`,
			selector, opts.Block))
		if err != nil {
			return fmt.Errorf("scrollIntoView probe: %w", err)
		}
		if b, ok := found.(bool); ok && b {
			return nil
		}
		scrollScript := fmt.Sprintf(`(() => { const c = %s; c.scrollBy(0, %d); return true; })()`,
			containerExpr(opts.Container), step)
		if _, err := page.Evaluate(ctx, scrollScript); err != nil {
			return fmt.Errorf("scrollIntoView advance: %w", err)
		}
	}
	return &ElementNotFoundError{Selector: selector, Timeout: "scroll exhausted"}
}

// scrollToRowOnce jumps directly to the pixel offset of a known row index,
// the fast path for lists whose row height is constant and known.
func scrollToRowOnce(ctx context.Context, page scrollEvaluator, index int, opts ScrollToRowOptions) error {
	opts = opts.withDefaults()
	offset := index * opts.RowHeight
	script := fmt.Sprintf(`(() => { const c = %s; c.scrollTo(0, %d); return true; })()`, containerExpr(opts.Container), offset)
	if _, err := page.Evaluate(ctx, script); err != nil {
		return fmt.Errorf("scrollToRow: %w", err)
	}
	return nil
}

func containerExpr(container string) string {
	if container == "" {
		return "window"
	}
	return fmt.Sprintf("document.querySelector(%q)", container)
}
