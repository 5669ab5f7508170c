package director

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dirworks/director/internal/models"
	"github.com/dirworks/director/internal/state"
	"github.com/dirworks/director/internal/workflow"
)

// nodeSpec is one entry of add_or_replace_nodes's input array: a node's
// content plus where to place it.
type nodeSpec struct {
	ID            string          `json:"id,omitempty"`
	Alias         string          `json:"alias"`
	Type          models.NodeType `json:"type"`
	Config        json.RawMessage `json:"config"`
	Description   string          `json:"description,omitempty"`
	StoreVariable bool            `json:"store_variable,omitempty"`
	Position      *int            `json:"position,omitempty"`
	ReplaceAlias  string          `json:"replace_alias,omitempty"`
	ReplaceID     string          `json:"replace_id,omitempty"`
}

// AddOrReplaceNodesTool inserts, appends, or in-place replaces workflow
// nodes. Grounded on state.Store.UpsertNodes's placement contract.
type AddOrReplaceNodesTool struct {
	Store state.Store
}

func (t *AddOrReplaceNodesTool) Name() string { return "add_or_replace_nodes" }

func (t *AddOrReplaceNodesTool) Description() string {
	return "Insert new workflow nodes, append nodes to the end, or replace an existing node's content in place by alias or id."
}

func (t *AddOrReplaceNodesTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"nodes": {
				"type": "array",
				"items": {
					"type": "object",
					"properties": {
						"alias": {"type": "string"},
						"type": {"type": "string", "enum": ["browser_action","browser_ai_extract","browser_ai_action","browser_query","cognition","context","iterate","route","transform","handle"]},
						"config": {"type": ["object", "array"]},
						"description": {"type": "string"},
						"store_variable": {"type": "boolean"},
						"position": {"type": "integer"},
						"replace_alias": {"type": "string"},
						"replace_id": {"type": "string"}
					},
					"required": ["alias", "type", "config"]
				}
			}
		},
		"required": ["nodes"]
	}`)
}

func (t *AddOrReplaceNodesTool) Execute(ctx context.Context, workflowID string, params json.RawMessage) (*models.ToolResult, error) {
	var input struct {
		Nodes []nodeSpec `json:"nodes"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return errResult(fmt.Errorf("parse nodes: %w", err)), nil
	}

	items := make([]state.UpsertItem, 0, len(input.Nodes))
	for _, spec := range input.Nodes {
		items = append(items, state.UpsertItem{
			Node: &models.Node{
				ID:            spec.ID,
				WorkflowID:    workflowID,
				Type:          spec.Type,
				Alias:         spec.Alias,
				Config:        spec.Config,
				Description:   spec.Description,
				StoreVariable: spec.StoreVariable,
			},
			Position:     spec.Position,
			ReplaceAlias: spec.ReplaceAlias,
			ReplaceID:    spec.ReplaceID,
		})
	}

	nodes, err := t.Store.UpsertNodes(ctx, workflowID, items)
	if err != nil {
		return errResult(err), nil
	}
	return jsonResult(map[string]any{"nodes": nodes})
}

// DeleteNodesTool removes workflow nodes by id, optionally repairing
// iterate/route references that pointed at them.
type DeleteNodesTool struct {
	Store state.Store
}

func (t *DeleteNodesTool) Name() string { return "delete_nodes" }

func (t *DeleteNodesTool) Description() string {
	return "Delete one or more workflow nodes by id, optionally repairing iterate/route references to the removed nodes."
}

func (t *DeleteNodesTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"ids": {"type": "array", "items": {"type": "string"}},
			"handle_dependencies": {"type": "boolean"},
			"delete_children": {"type": "boolean"}
		},
		"required": ["ids"]
	}`)
}

func (t *DeleteNodesTool) Execute(ctx context.Context, workflowID string, params json.RawMessage) (*models.ToolResult, error) {
	var input struct {
		IDs                []string `json:"ids"`
		HandleDependencies bool     `json:"handle_dependencies"`
		DeleteChildren     bool     `json:"delete_children"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return errResult(fmt.Errorf("parse ids: %w", err)), nil
	}

	result, err := t.Store.DeleteNodes(ctx, workflowID, input.IDs, state.DeleteOptions{
		HandleDependencies: input.HandleDependencies,
		DeleteChildren:     input.DeleteChildren,
	})
	if err != nil {
		return errResult(err), nil
	}
	return jsonResult(result)
}

// UpdatePlanTool replaces the Director's working plan for a workflow.
type UpdatePlanTool struct {
	Store state.Store
}

func (t *UpdatePlanTool) Name() string { return "update_plan" }

func (t *UpdatePlanTool) Description() string {
	return "Replace the current working plan: overall goal, phases, tasks, next actions, and blockers."
}

func (t *UpdatePlanTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"overall_goal": {"type": "string"},
			"current_phase": {"type": "string"},
			"phases": {"type": "array"},
			"next_actions": {"type": "array", "items": {"type": "string"}},
			"blockers": {"type": "array", "items": {"type": "string"}},
			"notes": {"type": "string"}
		},
		"required": ["overall_goal", "phases"]
	}`)
}

func (t *UpdatePlanTool) Execute(ctx context.Context, workflowID string, params json.RawMessage) (*models.ToolResult, error) {
	var plan models.Plan
	if err := json.Unmarshal(params, &plan); err != nil {
		return errResult(fmt.Errorf("parse plan: %w", err)), nil
	}
	if err := t.Store.SetPlan(ctx, workflowID, &plan); err != nil {
		return errResult(err), nil
	}
	return jsonResult(plan)
}

// UpdateWorkflowDescriptionTool appends a new version to a workflow's
// description history.
type UpdateWorkflowDescriptionTool struct {
	Store state.Store
}

func (t *UpdateWorkflowDescriptionTool) Name() string { return "update_workflow_description" }

func (t *UpdateWorkflowDescriptionTool) Description() string {
	return "Append a new version of the workflow's human-readable description, with a short reason for the change."
}

func (t *UpdateWorkflowDescriptionTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"data": {"type": "string"},
			"reason": {"type": "string"}
		},
		"required": ["data"]
	}`)
}

func (t *UpdateWorkflowDescriptionTool) Execute(ctx context.Context, workflowID string, params json.RawMessage) (*models.ToolResult, error) {
	var input struct {
		Data   string `json:"data"`
		Reason string `json:"reason"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return errResult(fmt.Errorf("parse description: %w", err)), nil
	}
	desc, err := t.Store.AppendDescriptionVersion(ctx, workflowID, input.Data, input.Reason)
	if err != nil {
		return errResult(err), nil
	}
	return jsonResult(desc)
}

// SetVariableTool sets one workflow variable.
type SetVariableTool struct {
	Store state.Store
}

func (t *SetVariableTool) Name() string        { return "set_variable" }
func (t *SetVariableTool) Description() string { return "Set a workflow variable to a JSON value." }
func (t *SetVariableTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {"key": {"type": "string"}, "value": {}},
		"required": ["key", "value"]
	}`)
}

func (t *SetVariableTool) Execute(ctx context.Context, workflowID string, params json.RawMessage) (*models.ToolResult, error) {
	var input struct {
		Key   string          `json:"key"`
		Value json.RawMessage `json:"value"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return errResult(fmt.Errorf("parse variable: %w", err)), nil
	}
	if input.Key == "" {
		return errResult(fmt.Errorf("key is required")), nil
	}
	if err := t.Store.SetVariable(ctx, workflowID, input.Key, input.Value); err != nil {
		return errResult(err), nil
	}
	return &models.ToolResult{Content: fmt.Sprintf("set %s", input.Key)}, nil
}

// ClearVariableTool removes one workflow variable.
type ClearVariableTool struct {
	Store state.Store
}

func (t *ClearVariableTool) Name() string        { return "clear_variable" }
func (t *ClearVariableTool) Description() string { return "Clear a single workflow variable by key." }
func (t *ClearVariableTool) Schema() json.RawMessage {
	return json.RawMessage(`{"type": "object", "properties": {"key": {"type": "string"}}, "required": ["key"]}`)
}

func (t *ClearVariableTool) Execute(ctx context.Context, workflowID string, params json.RawMessage) (*models.ToolResult, error) {
	var input struct {
		Key string `json:"key"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return errResult(fmt.Errorf("parse key: %w", err)), nil
	}
	if err := t.Store.ClearVariable(ctx, workflowID, input.Key); err != nil {
		return errResult(err), nil
	}
	return &models.ToolResult{Content: fmt.Sprintf("cleared %s", input.Key)}, nil
}

// ClearAllVariablesTool removes every variable for a workflow.
type ClearAllVariablesTool struct {
	Store state.Store
}

func (t *ClearAllVariablesTool) Name() string        { return "clear_all_variables" }
func (t *ClearAllVariablesTool) Description() string { return "Clear every variable in the workflow." }
func (t *ClearAllVariablesTool) Schema() json.RawMessage {
	return json.RawMessage(`{"type": "object", "properties": {}}`)
}

func (t *ClearAllVariablesTool) Execute(ctx context.Context, workflowID string, _ json.RawMessage) (*models.ToolResult, error) {
	if err := t.Store.ClearAllVariables(ctx, workflowID); err != nil {
		return errResult(err), nil
	}
	return &models.ToolResult{Content: "cleared all variables"}, nil
}

// ExecuteNodesTool runs a selection of workflow nodes in isolated or flow
// mode, via the Workflow Runtime.
type ExecuteNodesTool struct {
	Runtime *workflow.Runtime
}

func (t *ExecuteNodesTool) Name() string { return "execute_nodes" }

func (t *ExecuteNodesTool) Description() string {
	return "Execute a selection of workflow nodes (e.g. \"3\", \"1-3,10\", \"all\") in isolated or flow mode, and return each node's result."
}

func (t *ExecuteNodesTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"selection": {"type": "string"},
			"mode": {"type": "string", "enum": ["isolated", "flow"]}
		},
		"required": ["selection"]
	}`)
}

func (t *ExecuteNodesTool) Execute(ctx context.Context, workflowID string, params json.RawMessage) (*models.ToolResult, error) {
	if t.Runtime == nil {
		return errResult(fmt.Errorf("no execution session is active for this workflow")), nil
	}
	var input struct {
		Selection string `json:"selection"`
		Mode      string `json:"mode"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return errResult(fmt.Errorf("parse selection: %w", err)), nil
	}
	mode := workflow.ModeIsolated
	if input.Mode == string(workflow.ModeFlow) {
		mode = workflow.ModeFlow
	}

	outcomes, err := t.Runtime.ExecuteSelection(ctx, workflowID, input.Selection, mode)
	if err != nil {
		return errResult(err), nil
	}
	return jsonResult(map[string]any{"outcomes": outcomes})
}

func errResult(err error) *models.ToolResult {
	return &models.ToolResult{Content: err.Error(), IsError: true}
}

func jsonResult(v any) (*models.ToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return errResult(fmt.Errorf("encode result: %w", err)), nil
	}
	return &models.ToolResult{Content: string(data)}, nil
}
