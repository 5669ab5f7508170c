package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/dirworks/director/internal/models"
	"github.com/dirworks/director/internal/state"
	"github.com/dirworks/director/internal/workflow"
)

type processRequest struct {
	WorkflowID string `json:"workflowId"`
	Message    string `json:"message"`
}

type toolCallSummary struct {
	Name    string          `json:"name"`
	Args    json.RawMessage `json:"args,omitempty"`
	Result  string          `json:"result,omitempty"`
	IsError bool            `json:"isError,omitempty"`
}

type processResponse struct {
	Message   string            `json:"message"`
	ToolCalls []toolCallSummary `json:"toolCalls"`
	Usage     models.TokenUsage `json:"usage"`
}

// handleProcess runs one Director turn and returns the final assistant
// message, the tool calls it executed, and the turn's token usage.
func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	var req processRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	if req.WorkflowID == "" || req.Message == "" {
		s.writeError(w, http.StatusBadRequest, errors.New("workflowId and message are required"))
		return
	}

	turn, err := s.Manager.Process(r.Context(), req.WorkflowID, req.Message)
	if err != nil {
		s.Logger.Error("director turn failed", "workflow_id", req.WorkflowID, "error", err)
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}

	calls := make([]toolCallSummary, 0, len(turn.ToolCalls))
	for _, exec := range turn.ToolCalls {
		calls = append(calls, toolCallSummary{
			Name:    exec.ToolCall.Name,
			Args:    exec.ToolCall.Input,
			Result:  exec.Result.Content,
			IsError: exec.Result.IsError,
		})
	}
	s.writeJSON(w, http.StatusOK, processResponse{
		Message:   turn.Text,
		ToolCalls: calls,
		Usage:     turn.Usage,
	})
}

type executeNodesRequest struct {
	WorkflowID string `json:"workflowId"`
	Selection  string `json:"selection"`
	Mode       string `json:"mode"`
}

type nodeResult struct {
	NodeID  string              `json:"nodeId"`
	Status  models.NodeStatus   `json:"status"`
	Result  json.RawMessage     `json:"result,omitempty"`
	Failure *models.StepFailure `json:"failure,omitempty"`
}

type executeNodesResponse struct {
	Results []nodeResult `json:"results"`
}

// handleExecuteNodes runs a selection of nodes through the workflow's
// live runtime. Requires an execution session (POST /execution/start).
func (s *Server) handleExecuteNodes(w http.ResponseWriter, r *http.Request) {
	var req executeNodesRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	if req.WorkflowID == "" || req.Selection == "" {
		s.writeError(w, http.StatusBadRequest, errors.New("workflowId and selection are required"))
		return
	}
	mode := workflow.ExecutionMode(req.Mode)
	switch mode {
	case "":
		mode = workflow.ModeIsolated
	case workflow.ModeIsolated, workflow.ModeFlow:
	default:
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("unknown mode %q", req.Mode))
		return
	}

	rt, ok := s.Sessions.Runtime(req.WorkflowID)
	if !ok {
		s.writeError(w, http.StatusConflict, errors.New("no execution session; call POST /execution/start first"))
		return
	}

	outcomes, err := rt.ExecuteSelection(r.Context(), req.WorkflowID, req.Selection, mode)
	if err != nil {
		var invalid *workflow.ErrInvalidSelection
		if errors.As(err, &invalid) {
			s.writeError(w, http.StatusBadRequest, err)
			return
		}
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}

	results := make([]nodeResult, 0, len(outcomes))
	for _, o := range outcomes {
		results = append(results, nodeResult{
			NodeID:  o.NodeID,
			Status:  o.Status,
			Result:  o.Result,
			Failure: o.Failure,
		})
	}
	s.writeJSON(w, http.StatusOK, executeNodesResponse{Results: results})
}

type executionRequest struct {
	WorkflowID string `json:"workflowId"`
}

func (s *Server) handleExecutionStart(w http.ResponseWriter, r *http.Request) {
	var req executionRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	if req.WorkflowID == "" {
		s.writeError(w, http.StatusBadRequest, errors.New("workflowId is required"))
		return
	}
	if err := s.Sessions.Start(r.Context(), req.WorkflowID); err != nil {
		s.writeError(w, http.StatusConflict, err)
		return
	}
	// The Director instance rebinds its browser tools to the fresh
	// session on its next turn.
	s.Manager.Drop(req.WorkflowID)
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "started"})
}

func (s *Server) handleExecutionStop(w http.ResponseWriter, r *http.Request) {
	var req executionRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	if req.WorkflowID == "" {
		s.writeError(w, http.StatusBadRequest, errors.New("workflowId is required"))
		return
	}
	s.Sessions.Stop(req.WorkflowID)
	s.Manager.Drop(req.WorkflowID)
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "stopped"})
}

type workflowSnapshot struct {
	ID           string                      `json:"id"`
	Nodes        []*models.Node              `json:"nodes"`
	Plan         *models.Plan                `json:"plan,omitempty"`
	Description  *models.WorkflowDescription `json:"description,omitempty"`
	Variables    map[string]json.RawMessage  `json:"variables"`
	BrowserState *models.BrowserState        `json:"browserState,omitempty"`
}

// handleGetWorkflow returns the current snapshot for UI rendering:
// nodes, plan, latest description, variables, and (when an execution
// session is live) the browser's tab set.
func (s *Server) handleGetWorkflow(w http.ResponseWriter, r *http.Request) {
	workflowID := r.PathValue("id")

	nodes, err := s.Store.GetNodes(r.Context(), workflowID)
	if err != nil {
		if errors.Is(err, state.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, err)
			return
		}
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}

	snapshot := workflowSnapshot{ID: workflowID, Nodes: nodes}

	if plan, err := s.Store.GetPlan(r.Context(), workflowID); err == nil {
		snapshot.Plan = plan
	}
	if desc, err := s.Store.GetLatestDescription(r.Context(), workflowID); err == nil {
		snapshot.Description = desc
	}
	vars, err := s.Store.GetAllVariables(r.Context(), workflowID)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	snapshot.Variables = vars

	if facade, ok := s.Sessions.Facade(workflowID); ok {
		bs := &models.BrowserState{ActiveTab: facade.GetCurrentTab(r.Context())}
		for _, name := range facade.ListTabs(r.Context()) {
			bs.Tabs = append(bs.Tabs, models.Tab{Name: name, Active: name == bs.ActiveTab})
		}
		snapshot.BrowserState = bs
	}

	s.writeJSON(w, http.StatusOK, snapshot)
}
