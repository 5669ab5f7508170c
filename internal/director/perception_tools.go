package director

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dirworks/director/internal/browser"
	"github.com/dirworks/director/internal/domtoolkit"
	"github.com/dirworks/director/internal/models"
	"github.com/dirworks/director/internal/state"
)

// GetWorkflowVariablesTool fetches variables by key, or every variable
// when keys is empty. Pairs with the truncated variable
// summary in context assembly as the on-demand full fetch.
type GetWorkflowVariablesTool struct {
	Store state.Store
}

func (t *GetWorkflowVariablesTool) Name() string { return "get_workflow_variables" }

func (t *GetWorkflowVariablesTool) Description() string {
	return "Fetch the full value of one or more workflow variables by key, or every variable if no keys are given."
}

func (t *GetWorkflowVariablesTool) Schema() json.RawMessage {
	return json.RawMessage(`{"type": "object", "properties": {"keys": {"type": "array", "items": {"type": "string"}}}}`)
}

func (t *GetWorkflowVariablesTool) Execute(ctx context.Context, workflowID string, params json.RawMessage) (*models.ToolResult, error) {
	var input struct {
		Keys []string `json:"keys"`
	}
	_ = json.Unmarshal(params, &input)

	if len(input.Keys) == 0 {
		vars, err := t.Store.GetAllVariables(ctx, workflowID)
		if err != nil {
			return errResult(err), nil
		}
		return jsonResult(vars)
	}

	out := make(map[string]json.RawMessage, len(input.Keys))
	for _, key := range input.Keys {
		value, err := t.Store.GetVariable(ctx, workflowID, key)
		if err != nil {
			return errResult(err), nil
		}
		out[key] = value
	}
	return jsonResult(out)
}

// GetCurrentPlanTool returns the Director's current plan.
type GetCurrentPlanTool struct {
	Store state.Store
}

func (t *GetCurrentPlanTool) Name() string        { return "get_current_plan" }
func (t *GetCurrentPlanTool) Description() string { return "Return the workflow's current working plan." }
func (t *GetCurrentPlanTool) Schema() json.RawMessage {
	return json.RawMessage(`{"type": "object", "properties": {}}`)
}

func (t *GetCurrentPlanTool) Execute(ctx context.Context, workflowID string, _ json.RawMessage) (*models.ToolResult, error) {
	plan, err := t.Store.GetPlan(ctx, workflowID)
	if err != nil {
		return errResult(err), nil
	}
	return jsonResult(plan)
}

// GetWorkflowNodesTool returns the full node list.
type GetWorkflowNodesTool struct {
	Store state.Store
}

func (t *GetWorkflowNodesTool) Name() string        { return "get_workflow_nodes" }
func (t *GetWorkflowNodesTool) Description() string { return "Return every node in the workflow, in position order." }
func (t *GetWorkflowNodesTool) Schema() json.RawMessage {
	return json.RawMessage(`{"type": "object", "properties": {}}`)
}

func (t *GetWorkflowNodesTool) Execute(ctx context.Context, workflowID string, _ json.RawMessage) (*models.ToolResult, error) {
	nodes, err := t.Store.GetNodes(ctx, workflowID)
	if err != nil {
		return errResult(err), nil
	}
	return jsonResult(nodes)
}

// GetWorkflowDescriptionTool returns the latest description version.
type GetWorkflowDescriptionTool struct {
	Store state.Store
}

func (t *GetWorkflowDescriptionTool) Name() string { return "get_workflow_description" }
func (t *GetWorkflowDescriptionTool) Description() string {
	return "Return the latest version of the workflow's human-readable description."
}
func (t *GetWorkflowDescriptionTool) Schema() json.RawMessage {
	return json.RawMessage(`{"type": "object", "properties": {}}`)
}

func (t *GetWorkflowDescriptionTool) Execute(ctx context.Context, workflowID string, _ json.RawMessage) (*models.ToolResult, error) {
	desc, err := t.Store.GetLatestDescription(ctx, workflowID)
	if err != nil {
		return errResult(err), nil
	}
	return jsonResult(desc)
}

// GetBrowserStateTool reports the current tab set and active tab, without
// a screenshot.
type GetBrowserStateTool struct {
	Facade *browser.Facade
}

func (t *GetBrowserStateTool) Name() string        { return "get_browser_state" }
func (t *GetBrowserStateTool) Description() string { return "Return the current open tabs and the active tab." }
func (t *GetBrowserStateTool) Schema() json.RawMessage {
	return json.RawMessage(`{"type": "object", "properties": {}}`)
}

func (t *GetBrowserStateTool) Execute(ctx context.Context, _ string, _ json.RawMessage) (*models.ToolResult, error) {
	if t.Facade == nil {
		return errResult(fmt.Errorf("no browser session is active for this workflow")), nil
	}
	active := t.Facade.GetCurrentTab(ctx)
	names := t.Facade.ListTabs(ctx)
	tabs := make([]models.Tab, 0, len(names))
	for _, name := range names {
		tabs = append(tabs, models.Tab{Name: name, Active: name == active})
	}
	return jsonResult(models.BrowserState{Tabs: tabs, ActiveTab: active})
}

// GetScreenshotTool captures the active tab and returns it as an image
// attachment so the Director's LLM provider can see the page.
type GetScreenshotTool struct {
	Facade *browser.Facade
}

func (t *GetScreenshotTool) Name() string        { return "get_screenshot" }
func (t *GetScreenshotTool) Description() string { return "Capture a screenshot of the active browser tab." }
func (t *GetScreenshotTool) Schema() json.RawMessage {
	return json.RawMessage(`{"type": "object", "properties": {"full_page": {"type": "boolean"}}}`)
}

func (t *GetScreenshotTool) Execute(ctx context.Context, _ string, params json.RawMessage) (*models.ToolResult, error) {
	if t.Facade == nil {
		return errResult(fmt.Errorf("no browser session is active for this workflow")), nil
	}
	var input struct {
		FullPage bool `json:"full_page"`
	}
	_ = json.Unmarshal(params, &input)

	data, err := t.Facade.Screenshot(ctx, input.FullPage)
	if err != nil {
		return errResult(err), nil
	}
	return &models.ToolResult{
		Content: "screenshot captured",
		Attachments: []models.Attachment{
			{Type: "image", MimeType: "image/png", Data: data},
		},
	}, nil
}

// BrowserActionTool dispatches one imperative browser operation by name:
// a snake_case subset of the Workflow Runtime's browser_action node
// operations, plus ai_act. wait, listTabs, getCurrentTab, scrollToRow,
// screenshot, getCurrentUrl and getTitle are not offered here.
type BrowserActionTool struct {
	Facade *browser.Facade
}

func (t *BrowserActionTool) Name() string { return "browser_action" }

func (t *BrowserActionTool) Description() string {
	return "Perform a single browser operation: navigate, click, type, keypress, scroll_into_view, back, forward, refresh, open_tab, close_tab, switch_tab, or ai_act."
}

func (t *BrowserActionTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"action": {"type": "string", "enum": ["navigate","click","type","keypress","scroll_into_view","back","forward","refresh","open_tab","close_tab","switch_tab","ai_act"]},
			"url": {"type": "string"},
			"tab": {"type": "string"},
			"selector": {"type": "string"},
			"nth": {"type": "string"},
			"text": {"type": "string"},
			"key": {"type": "string"},
			"modifiers": {"type": "array", "items": {"type": "string"}},
			"instruction": {"type": "string"},
			"constraints": {"type": "array", "items": {"type": "string"}},
			"wait_until": {"type": "string"}
		},
		"required": ["action"]
	}`)
}

type browserActionInput struct {
	Action      string   `json:"action"`
	URL         string   `json:"url"`
	Tab         string   `json:"tab"`
	Selector    string   `json:"selector"`
	Nth         string   `json:"nth"`
	Text        string   `json:"text"`
	Key         string   `json:"key"`
	Modifiers   []string `json:"modifiers"`
	Instruction string   `json:"instruction"`
	Constraints []string `json:"constraints"`
	WaitUntil   string   `json:"wait_until"`
}

func (t *BrowserActionTool) Execute(ctx context.Context, _ string, params json.RawMessage) (*models.ToolResult, error) {
	if t.Facade == nil {
		return errResult(fmt.Errorf("no browser session is active for this workflow")), nil
	}
	var in browserActionInput
	if err := json.Unmarshal(params, &in); err != nil {
		return errResult(fmt.Errorf("parse action: %w", err)), nil
	}

	var err error
	switch in.Action {
	case "navigate":
		err = t.Facade.Navigate(ctx, in.URL, in.Tab, in.WaitUntil)
	case "click":
		err = t.Facade.Click(ctx, in.Selector, in.Nth)
	case "type":
		err = t.Facade.Type(ctx, in.Selector, in.Text, in.Nth)
	case "keypress":
		err = t.Facade.Keypress(ctx, in.Key, in.Modifiers)
	case "scroll_into_view":
		err = t.Facade.ScrollIntoView(ctx, in.Selector, browser.ScrollIntoViewOptions{})
	case "back":
		err = t.Facade.Back(ctx)
	case "forward":
		err = t.Facade.Forward(ctx)
	case "refresh":
		err = t.Facade.Refresh(ctx)
	case "open_tab":
		err = t.Facade.OpenTab(ctx, in.Tab, in.URL)
	case "close_tab":
		err = t.Facade.CloseTab(ctx, in.Tab)
	case "switch_tab":
		err = t.Facade.SwitchTab(ctx, in.Tab)
	case "ai_act":
		err = t.Facade.AIAct(ctx, in.Instruction, in.Constraints, in.Tab)
	default:
		return errResult(fmt.Errorf("unknown browser action: %s", in.Action)), nil
	}
	if err != nil {
		return errResult(err), nil
	}
	return &models.ToolResult{Content: fmt.Sprintf("%s succeeded", in.Action)}, nil
}

// DOMOverviewTool returns the DOM Toolkit's outline/interactives/headings
// view of the currently attached tab.
type DOMOverviewTool struct {
	Toolkit *domtoolkit.Toolkit
}

func (t *DOMOverviewTool) Name() string        { return "dom_overview" }
func (t *DOMOverviewTool) Description() string { return "Return a structural overview (outline, interactive elements, headings) of the current page." }
func (t *DOMOverviewTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"filters": {"type": "object", "properties": {"outline": {"type": "boolean"}, "interactives": {"type": "boolean"}, "headings": {"type": "boolean"}}},
			"visible": {"type": "boolean"},
			"max_rows": {"type": "integer"}
		}
	}`)
}

func (t *DOMOverviewTool) Execute(ctx context.Context, _ string, params json.RawMessage) (*models.ToolResult, error) {
	if t.Toolkit == nil {
		return errResult(fmt.Errorf("DOM toolkit is not attached to a tab")), nil
	}
	var opts domtoolkit.OverviewOptions
	_ = json.Unmarshal(params, &opts)
	result, err := t.Toolkit.Overview(ctx, opts)
	if err != nil {
		return errResult(err), nil
	}
	return jsonResult(result)
}

// DOMSearchTool finds elements in the current page matching a query.
type DOMSearchTool struct {
	Toolkit *domtoolkit.Toolkit
}

func (t *DOMSearchTool) Name() string        { return "dom_search" }
func (t *DOMSearchTool) Description() string { return "Search the current page's elements by text, attribute, role, or tag." }
func (t *DOMSearchTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"query": {"type": "object", "properties": {"text": {"type": "string"}, "selector": {"type": "string"}, "role": {"type": "string"}, "tag": {"type": "string"}}},
			"limit": {"type": "integer"},
			"visible": {"type": "boolean"}
		},
		"required": ["query"]
	}`)
}

func (t *DOMSearchTool) Execute(ctx context.Context, _ string, params json.RawMessage) (*models.ToolResult, error) {
	if t.Toolkit == nil {
		return errResult(fmt.Errorf("DOM toolkit is not attached to a tab")), nil
	}
	var opts domtoolkit.SearchOptions
	if err := json.Unmarshal(params, &opts); err != nil {
		return errResult(fmt.Errorf("parse query: %w", err)), nil
	}
	elements, err := t.Toolkit.Search(ctx, opts)
	if err != nil {
		return errResult(err), nil
	}
	return jsonResult(elements)
}

// DOMInspectTool returns full detail for one element addressed by the
// snapshot-scoped id a prior dom_overview/dom_search call returned.
type DOMInspectTool struct {
	Toolkit *domtoolkit.Toolkit
}

func (t *DOMInspectTool) Name() string        { return "dom_inspect" }
func (t *DOMInspectTool) Description() string { return "Return full detail (parents, children, siblings, computed styles) for one element by its snapshot-scoped id." }
func (t *DOMInspectTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"element_id": {"type": "string"},
			"parents": {"type": "boolean"},
			"children": {"type": "boolean"},
			"siblings": {"type": "boolean"},
			"styles": {"type": "boolean"}
		},
		"required": ["element_id"]
	}`)
}

func (t *DOMInspectTool) Execute(ctx context.Context, _ string, params json.RawMessage) (*models.ToolResult, error) {
	if t.Toolkit == nil {
		return errResult(fmt.Errorf("DOM toolkit is not attached to a tab")), nil
	}
	var input struct {
		ElementID string `json:"element_id"`
		domtoolkit.InspectOptions
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return errResult(fmt.Errorf("parse element_id: %w", err)), nil
	}
	result, err := t.Toolkit.Inspect(ctx, input.ElementID, input.InspectOptions)
	if err != nil {
		return errResult(err), nil
	}
	return jsonResult(result)
}

// DOMStructureTool returns a pure hierarchical outline of the current
// page, without the interactive/heading catalogs dom_overview carries.
type DOMStructureTool struct {
	Toolkit *domtoolkit.Toolkit
}

func (t *DOMStructureTool) Name() string        { return "dom_structure" }
func (t *DOMStructureTool) Description() string { return "Return a hierarchical outline of the current page down to a given depth." }
func (t *DOMStructureTool) Schema() json.RawMessage {
	return json.RawMessage(`{"type": "object", "properties": {"depth": {"type": "integer"}}}`)
}

func (t *DOMStructureTool) Execute(ctx context.Context, _ string, params json.RawMessage) (*models.ToolResult, error) {
	if t.Toolkit == nil {
		return errResult(fmt.Errorf("DOM toolkit is not attached to a tab")), nil
	}
	var input struct {
		Depth int `json:"depth"`
	}
	_ = json.Unmarshal(params, &input)
	result, err := t.Toolkit.Structure(ctx, input.Depth)
	if err != nil {
		return errResult(err), nil
	}
	return jsonResult(result)
}

// DOMCheckPortalsTool diffs the page's body-level children against a
// baseline snapshot, surfacing modals, dropdowns, and other
// portal-rendered UI that appeared after an action.
type DOMCheckPortalsTool struct {
	Toolkit *domtoolkit.Toolkit
}

func (t *DOMCheckPortalsTool) Name() string { return "dom_check_portals" }
func (t *DOMCheckPortalsTool) Description() string {
	return "Return new top-level body-mounted elements (modals, dropdowns, overlays) that appeared since a baseline snapshot."
}
func (t *DOMCheckPortalsTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"since_snapshot_id": {"type": "string"},
			"include_all": {"type": "boolean"}
		}
	}`)
}

func (t *DOMCheckPortalsTool) Execute(ctx context.Context, _ string, params json.RawMessage) (*models.ToolResult, error) {
	if t.Toolkit == nil {
		return errResult(fmt.Errorf("DOM toolkit is not attached to a tab")), nil
	}
	var opts domtoolkit.CheckPortalsOptions
	_ = json.Unmarshal(params, &opts)
	result, err := t.Toolkit.CheckPortals(ctx, opts)
	if err != nil {
		return errResult(err), nil
	}
	return jsonResult(result)
}

// DOMClickInspectTool maps screenshot coordinates to the element under
// them, with ranked candidate selectors for addressing it.
type DOMClickInspectTool struct {
	Toolkit *domtoolkit.Toolkit
}

func (t *DOMClickInspectTool) Name() string { return "dom_click_inspect" }
func (t *DOMClickInspectTool) Description() string {
	return "Identify the element at screen coordinates (from a screenshot), with actionability signals and candidate selectors ranked by stability."
}
func (t *DOMClickInspectTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"x": {"type": "number"},
			"y": {"type": "number"},
			"include_nearby": {"type": "boolean"},
			"nearby_radius": {"type": "integer"}
		},
		"required": ["x", "y"]
	}`)
}

func (t *DOMClickInspectTool) Execute(ctx context.Context, _ string, params json.RawMessage) (*models.ToolResult, error) {
	if t.Toolkit == nil {
		return errResult(fmt.Errorf("DOM toolkit is not attached to a tab")), nil
	}
	var input struct {
		X float64 `json:"x"`
		Y float64 `json:"y"`
		domtoolkit.ClickInspectOptions
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return errResult(fmt.Errorf("parse coordinates: %w", err)), nil
	}
	result, err := t.Toolkit.ClickInspect(ctx, input.X, input.Y, input.ClickInspectOptions)
	if err != nil {
		return errResult(err), nil
	}
	return jsonResult(result)
}
