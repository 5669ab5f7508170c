// Package domtoolkit gives the Director cheap, read-only perception of a
// page: an outline/interactive/heading overview, hierarchical structure,
// text/attribute search, single-element inspection, portal detection, and
// click-coordinate-to-selector resolution, all backed by a per-tab,
// mutation-invalidated snapshot cache.
package domtoolkit

// Element is one entry of a snapshot's element index, addressable by a
// snapshot-scoped id.
type Element struct {
	ID       string            `json:"id"`
	Tag      string            `json:"tag"`
	Role     string            `json:"role,omitempty"`
	Text     string            `json:"text,omitempty"`
	Attrs    map[string]string `json:"attrs,omitempty"`
	Bounds   Bounds            `json:"bounds"`
	Visible  bool              `json:"visible"`
	Ancestry []string          `json:"ancestry,omitempty"` // element ids, root-first
}

// Bounds is an element's viewport-relative bounding box.
type Bounds struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Filters selects which lists Overview populates.
type Filters struct {
	Outline      bool `json:"outline"`
	Interactives bool `json:"interactives"`
	Headings     bool `json:"headings"`
}

// OverviewOptions configures Overview.
type OverviewOptions struct {
	Filters    Filters `json:"filters"`
	Visible    bool    `json:"visible"`
	Viewport   bool    `json:"viewport"`
	MaxRows    int     `json:"max_rows"`
	AutoScroll bool    `json:"auto_scroll,omitempty"`
	DiffFrom   string  `json:"diff_from,omitempty"` // prior snapshot id
}

// ViewportInfo summarizes the tab's current viewport for Overview's
// summary block.
type ViewportInfo struct {
	Width          int `json:"width"`
	Height         int `json:"height"`
	ScrollX        int `json:"scroll_x"`
	ScrollY        int `json:"scroll_y"`
	DocumentHeight int `json:"document_height"`
}

// OverviewSummary reports counts alongside Overview's filtered lists.
type OverviewSummary struct {
	OutlineCount      int          `json:"outline_count"`
	InteractivesCount int          `json:"interactives_count"`
	HeadingsCount     int          `json:"headings_count"`
	Viewport          ViewportInfo `json:"viewport"`
}

// OverviewResult is Overview's return value. SnapshotID names the cache
// entry these element ids are scoped to.
type OverviewResult struct {
	SnapshotID   string     `json:"snapshot_id"`
	Outline      []Element  `json:"outline,omitempty"`
	Interactives []Element  `json:"interactives,omitempty"`
	Headings     []Element  `json:"headings,omitempty"`
	Summary      OverviewSummary `json:"summary"`
	Diff         *SnapshotDiff   `json:"diff,omitempty"`
}

// SnapshotDiff reports elements added, removed, or modified between two
// snapshots of the same tab. It covers every element of both snapshots,
// not only the lists Overview requested.
type SnapshotDiff struct {
	Added    []Element `json:"added"`
	Removed  []Element `json:"removed"`
	Modified []Element `json:"modified"`
}

// PortalDiff reports body-level elements added, removed, or modified
// between two snapshots; it shares the SnapshotDiff shape.
type PortalDiff = SnapshotDiff

// StructureNode is one node of the pure hierarchical outline Structure
// returns.
type StructureNode struct {
	Tag      string          `json:"tag"`
	Role     string          `json:"role,omitempty"`
	Text     string          `json:"text,omitempty"`
	Children []StructureNode `json:"children,omitempty"`
}

// SearchQuery selects elements by any combination of text, attribute,
// role, or tag match. Selector is accepted but not matched: Search
// ignores it.
type SearchQuery struct {
	Text       string            `json:"text,omitempty"`
	Selector   string            `json:"selector,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
	Role       string            `json:"role,omitempty"`
	Tag        string            `json:"tag,omitempty"`
}

// SearchOptions configures Search.
type SearchOptions struct {
	Query      SearchQuery `json:"query"`
	Limit      int         `json:"limit"`
	Context    int         `json:"context,omitempty"` // surrounding characters of text to include
	Visible    bool        `json:"visible,omitempty"`
	AutoScroll bool        `json:"auto_scroll,omitempty"`
}

// InspectOptions selects which detail groups Inspect returns.
type InspectOptions struct {
	Attributes bool `json:"attributes"`
	Text       bool `json:"text"`
	Parents    bool `json:"parents"`
	Children   bool `json:"children"`
	Siblings   bool `json:"siblings"`
	Styles     bool `json:"styles"`
}

// InspectResult is Inspect's return value.
type InspectResult struct {
	Element  Element           `json:"element"`
	Parents  []Element         `json:"parents,omitempty"`
	Children []Element         `json:"children,omitempty"`
	Siblings []Element         `json:"siblings,omitempty"`
	Styles   map[string]string `json:"styles,omitempty"`
}

// CheckPortalsOptions configures CheckPortals.
type CheckPortalsOptions struct {
	SinceSnapshotID string `json:"since_snapshot_id,omitempty"`
	IncludeAll      bool   `json:"include_all,omitempty"`
}

// ClickInspectOptions configures ClickInspect.
type ClickInspectOptions struct {
	IncludeNearby bool `json:"include_nearby,omitempty"`
	NearbyRadius  int  `json:"nearby_radius,omitempty"`
}

// CandidateSelector is one ranked selector guess for an element hit by
// ClickInspect, most stable first.
type CandidateSelector struct {
	Selector string `json:"selector"`
	Strategy string `json:"strategy"` // data-testid, stable-id, role-attrs, class-tag, text
	Score    int    `json:"score"`
}

// ActionabilitySignals is the actionability evaluator's verdict plus the
// individual signals that contributed to it, for debugging.
type ActionabilitySignals struct {
	Actionable        bool     `json:"actionable"`
	Visible           bool     `json:"visible"`
	HitTestable       bool     `json:"hit_testable"`
	InteractiveTag    bool     `json:"interactive_tag"`
	InteractiveRole   bool     `json:"interactive_role"`
	TabIndexNonNeg    bool     `json:"tabindex_non_negative"`
	HasClickHandler   bool     `json:"has_click_handler"`
	FrameworkIndicator bool    `json:"framework_indicator"`
	MatchedSignals    []string `json:"matched_signals"`
}

// ClickInspectResult is ClickInspect's return value.
type ClickInspectResult struct {
	Element      Element              `json:"element"`
	Actionability ActionabilitySignals `json:"actionability"`
	Candidates   []CandidateSelector  `json:"candidates"`
	Parents      []Element            `json:"parents,omitempty"`
	Nearby       []Element            `json:"nearby,omitempty"`
}
