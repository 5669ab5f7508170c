package domtoolkit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
)

// Toolkit attaches to one already-running Chromium tab over CDP and
// answers read-only structural queries against it. One Toolkit is scoped
// to one tab; callers hold one per open tab.
type Toolkit struct {
	allocCtx    context.Context
	allocCancel context.CancelFunc
	taskCtx     context.Context
	taskCancel  context.CancelFunc

	cache *snapshotCache
}

// Attach connects to debugURL (a Chrome DevTools HTTP endpoint, e.g. a
// BrowserInstance's CDPDebugURL) and attaches to the tab whose chromedp
// target id is targetID.
func Attach(ctx context.Context, debugURL, targetID string, ttl time.Duration) (*Toolkit, error) {
	allocCtx, allocCancel := chromedp.NewRemoteAllocator(ctx, debugURL)
	taskCtx, taskCancel := chromedp.NewContext(allocCtx, chromedp.WithTargetID(target.ID(targetID)))
	if err := chromedp.Run(taskCtx, dom.Enable()); err != nil {
		taskCancel()
		allocCancel()
		return nil, fmt.Errorf("attach to target %s: %w", targetID, err)
	}
	tk := &Toolkit{
		allocCtx:    allocCtx,
		allocCancel: allocCancel,
		taskCtx:     taskCtx,
		taskCancel:  taskCancel,
		cache:       newSnapshotCache(ttl),
	}
	tk.InvalidateOnMutation()
	return tk, nil
}

// AttachByURL connects to debugURL, lists the browser's page targets,
// and attaches to the first one whose URL contains urlSubstring (or the
// first page target at all when urlSubstring is empty). Used when the
// caller knows which page it wants but not its target id — the same
// match-then-attach shape as Attach, with the lookup folded in.
func AttachByURL(ctx context.Context, debugURL, urlSubstring string, ttl time.Duration) (*Toolkit, error) {
	allocCtx, allocCancel := chromedp.NewRemoteAllocator(ctx, debugURL)
	listCtx, listCancel := chromedp.NewContext(allocCtx)
	targets, err := chromedp.Targets(listCtx)
	listCancel()
	if err != nil {
		allocCancel()
		return nil, fmt.Errorf("list targets at %s: %w", debugURL, err)
	}

	var targetID string
	for _, info := range targets {
		if info.Type != "page" {
			continue
		}
		if urlSubstring == "" || strings.Contains(info.URL, urlSubstring) {
			targetID = string(info.TargetID)
			break
		}
	}
	allocCancel()
	if targetID == "" {
		return nil, fmt.Errorf("no page target matching %q at %s", urlSubstring, debugURL)
	}
	return Attach(ctx, debugURL, targetID, ttl)
}

// Close detaches from the tab and releases the remote allocator.
func (t *Toolkit) Close() {
	t.taskCancel()
	t.allocCancel()
}

// InvalidateOnMutation registers a CDP event listener that clears the
// snapshot cache whenever the document changes (DOM.documentUpdated) or
// a subtree's child count changes (DOM.childNodeCountUpdated), so a
// stale snapshot is never served past the next DOM mutation even within
// its TTL window.
func (t *Toolkit) InvalidateOnMutation() {
	chromedp.ListenTarget(t.taskCtx, func(ev any) {
		switch ev.(type) {
		case *dom.EventDocumentUpdated, *dom.EventChildNodeCountUpdated,
			*dom.EventChildNodeInserted, *dom.EventChildNodeRemoved:
			t.cache.invalidate()
		}
	})
}

func (t *Toolkit) evaluate(ctx context.Context, script string, out any) error {
	runCtx, cancel := context.WithTimeout(t.taskCtx, 10*time.Second)
	defer cancel()
	return chromedp.Run(runCtx, chromedp.Evaluate(script, out))
}

// snapshot returns the current element index, building and caching it
// via the buildSnapshotScript probe if the cached one is stale or absent.
func (t *Toolkit) snapshot(ctx context.Context) (*snapshotEntry, error) {
	if entry, ok := t.cache.get(); ok {
		return entry, nil
	}
	var raw rawSnapshot
	if err := t.evaluate(ctx, buildSnapshotScript, &raw); err != nil {
		return nil, fmt.Errorf("build snapshot: %w", err)
	}
	entry := t.cache.put(raw)
	return entry, nil
}

// Overview returns the outline/interactives/headings lists the caller
// asked for, plus summary counts and viewport info, optionally diffed
// against a prior snapshot.
func (t *Toolkit) Overview(ctx context.Context, opts OverviewOptions) (*OverviewResult, error) {
	entry, err := t.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	result := &OverviewResult{
		SnapshotID: entry.id,
		Summary: OverviewSummary{
			Viewport: entry.viewport,
		},
	}
	if opts.Filters.Outline {
		result.Outline = filterElements(entry.elements, opts, isOutlineElement)
		result.Summary.OutlineCount = len(result.Outline)
	}
	if opts.Filters.Interactives {
		result.Interactives = filterElements(entry.elements, opts, isInteractiveElement)
		result.Summary.InteractivesCount = len(result.Interactives)
	}
	if opts.Filters.Headings {
		result.Headings = filterElements(entry.elements, opts, isHeadingElement)
		result.Summary.HeadingsCount = len(result.Headings)
	}
	if opts.MaxRows > 0 {
		result.Outline = capElements(result.Outline, opts.MaxRows)
		result.Interactives = capElements(result.Interactives, opts.MaxRows)
		result.Headings = capElements(result.Headings, opts.MaxRows)
	}
	if opts.DiffFrom != "" {
		if prior, ok := t.cache.getByID(opts.DiffFrom); ok {
			result.Diff = diffSnapshots(prior, entry)
		}
	}
	return result, nil
}

// Structure returns the page's hierarchical outline as a pure tree,
// ignoring leaf text nodes below the configured depth.
func (t *Toolkit) Structure(ctx context.Context, maxDepth int) (*StructureNode, error) {
	var root StructureNode
	script := fmt.Sprintf(structureScriptTemplate, maxDepth)
	if err := t.evaluate(ctx, script, &root); err != nil {
		return nil, fmt.Errorf("structure: %w", err)
	}
	return &root, nil
}

// Search finds elements in the current snapshot matching the query.
func (t *Toolkit) Search(ctx context.Context, opts SearchOptions) ([]Element, error) {
	entry, err := t.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	matches := make([]Element, 0, 8)
	for _, el := range entry.elements {
		if opts.Visible && !el.Visible {
			continue
		}
		if !matchesQuery(el, opts.Query) {
			continue
		}
		matches = append(matches, el)
		if opts.Limit > 0 && len(matches) >= opts.Limit {
			break
		}
	}
	return matches, nil
}

// Inspect returns full detail for one element, addressed by the
// snapshot-scoped id Overview/Search returned.
func (t *Toolkit) Inspect(ctx context.Context, elementID string, opts InspectOptions) (*InspectResult, error) {
	entry, err := t.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	el, ok := entry.byID[elementID]
	if !ok {
		return nil, &UnknownElementError{ElementID: elementID}
	}
	result := &InspectResult{Element: el}
	if opts.Parents {
		result.Parents = resolveAncestry(entry, el)
	}
	if opts.Children {
		result.Children = childrenOf(entry, elementID)
	}
	if opts.Siblings {
		result.Siblings = siblingsOf(entry, el)
	}
	if opts.Styles {
		var styles map[string]string
		script := fmt.Sprintf(computedStyleScriptTemplate, jsStringLiteral(elementID))
		if err := t.evaluate(ctx, script, &styles); err == nil {
			result.Styles = styles
		}
	}
	return result, nil
}

// CheckPortals reports body-level elements, where modal, dropdown, and
// overlay portals mount. Without a comparison snapshot (or when that
// snapshot is no longer cached) it returns every direct child of body
// that is fixed/absolute positioned or has a z-index above 100. With one,
// it returns the direct children of body added, removed, or modified
// between that snapshot and the current one.
func (t *Toolkit) CheckPortals(ctx context.Context, opts CheckPortalsOptions) (*PortalDiff, error) {
	entry, err := t.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	var portals []Element
	if err := t.evaluate(ctx, portalDetectionScript, &portals); err != nil {
		return nil, fmt.Errorf("check portals: %w", err)
	}
	if opts.SinceSnapshotID == "" {
		return &PortalDiff{Added: portals}, nil
	}
	prior, ok := t.cache.getByID(opts.SinceSnapshotID)
	if !ok {
		return &PortalDiff{Added: portals}, nil
	}
	diff := diffSnapshots(prior, entry)
	// buildSnapshotScript roots ancestry at body, so a direct child of
	// body has exactly one ancestor.
	bodyLevel := func(els []Element) []Element {
		out := make([]Element, 0, len(els))
		for _, el := range els {
			if len(el.Ancestry) == 1 {
				out = append(out, el)
			}
		}
		return out
	}
	return &PortalDiff{
		Added:    bodyLevel(diff.Added),
		Removed:  bodyLevel(diff.Removed),
		Modified: bodyLevel(diff.Modified),
	}, nil
}

// ClickInspect resolves the element at viewport coordinates (x, y) and
// returns its actionability verdict plus ranked selector candidates,
// matching what a click dispatched at that point would actually hit.
func (t *Toolkit) ClickInspect(ctx context.Context, x, y float64, opts ClickInspectOptions) (*ClickInspectResult, error) {
	var raw rawClickInspect
	script := fmt.Sprintf(clickInspectScriptTemplate, x, y, opts.IncludeNearby, opts.NearbyRadius)
	if err := t.evaluate(ctx, script, &raw); err != nil {
		return nil, fmt.Errorf("click inspect: %w", err)
	}
	signals := evaluateActionability(raw.Element)
	return &ClickInspectResult{
		Element:       raw.Element,
		Actionability: signals,
		Candidates:    rankSelectorCandidates(raw.Element),
		Nearby:        raw.Nearby,
	}, nil
}

