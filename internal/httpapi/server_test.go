package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dirworks/director/internal/browser"
	"github.com/dirworks/director/internal/director"
	"github.com/dirworks/director/internal/llmprovider"
	"github.com/dirworks/director/internal/models"
	"github.com/dirworks/director/internal/state"
	"github.com/dirworks/director/internal/workflow"
)

// scriptedProvider returns its canned results in order, one per
// Complete call, so a test can drive a multi-iteration turn.
type scriptedProvider struct {
	results []*llmprovider.CompletionResult
	calls   int
}

func (p *scriptedProvider) Complete(ctx context.Context, req *llmprovider.CompletionRequest) (*llmprovider.CompletionResult, error) {
	if p.calls >= len(p.results) {
		return &llmprovider.CompletionResult{Text: "done"}, nil
	}
	r := p.results[p.calls]
	p.calls++
	return r, nil
}

func (p *scriptedProvider) Name() string               { return "scripted" }
func (p *scriptedProvider) Models() []llmprovider.Model { return nil }
func (p *scriptedProvider) SupportsTools() bool        { return true }

func newTestServer(t *testing.T, provider llmprovider.Provider) (*Server, *state.MemoryStore) {
	t.Helper()
	store := state.NewMemoryStore()

	registry := director.NewToolRegistry()
	registry.Register(&director.SetVariableTool{Store: store})
	registry.Register(&director.GetWorkflowVariablesTool{Store: store})

	loop := director.NewLoop(provider, store, registry, director.DefaultLoopConfig())
	manager := director.NewManager(loop)

	sessions := NewSessions(
		func(ctx context.Context, workflowID string) (*browser.Facade, error) {
			return browser.NewFacadeWithDriver(browser.NewFakeDriver(), store, workflowID, time.Second), nil
		},
		func(workflowID string, facade *browser.Facade) *workflow.Runtime {
			return workflow.NewRuntime(store, facade, nil, nil)
		},
	)
	t.Cleanup(sessions.StopAll)

	return NewServer(manager, store, loop.Events, sessions, nil), store
}

func postJSON(t *testing.T, handler http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestProcessReturnsFinalMessageAndUsage(t *testing.T) {
	provider := &scriptedProvider{results: []*llmprovider.CompletionResult{
		{
			ToolCalls: []models.ToolCall{{ID: "tc1", Name: "set_variable", Input: json.RawMessage(`{"key":"score","value":7}`)}},
			Usage:     models.TokenUsage{Input: 100, Output: 20, Total: 120},
		},
		{
			Text:  "Stored the score.",
			Usage: models.TokenUsage{Input: 140, Output: 10, Total: 150},
		},
	}}
	server, store := newTestServer(t, provider)
	handler := server.Routes()

	rec := postJSON(t, handler, "/director/process", processRequest{WorkflowID: "wf-1", Message: "save score 7"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp processResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "Stored the score.", resp.Message)
	require.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, "set_variable", resp.ToolCalls[0].Name)
	assert.False(t, resp.ToolCalls[0].IsError)
	assert.Equal(t, 150, resp.Usage.Total)

	value, err := store.GetVariable(context.Background(), "wf-1", "score")
	require.NoError(t, err)
	assert.JSONEq(t, `7`, string(value))
}

func TestProcessRejectsMissingFields(t *testing.T) {
	server, _ := newTestServer(t, &scriptedProvider{})
	rec := postJSON(t, server.Routes(), "/director/process", processRequest{WorkflowID: "wf-1"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestExecutionLifecycleAndNodeExecution(t *testing.T) {
	server, store := newTestServer(t, &scriptedProvider{})
	handler := server.Routes()

	// Executing before start is a conflict.
	rec := postJSON(t, handler, "/nodes/execute", executeNodesRequest{WorkflowID: "wf-1", Selection: "1", Mode: "isolated"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = postJSON(t, handler, "/execution/start", executionRequest{WorkflowID: "wf-1"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// A second start without a stop is rejected.
	rec = postJSON(t, handler, "/execution/start", executionRequest{WorkflowID: "wf-1"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	_, err := store.UpsertNodes(context.Background(), "wf-1", []state.UpsertItem{{
		Node: &models.Node{
			Alias:         "set_greeting",
			Type:          models.NodeContext,
			Config:        json.RawMessage(`{"variables":{"greeting":"hello"}}`),
			StoreVariable: false,
		},
	}})
	require.NoError(t, err)

	rec = postJSON(t, handler, "/nodes/execute", executeNodesRequest{WorkflowID: "wf-1", Selection: "1", Mode: "isolated"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp executeNodesResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Results, 1)
	assert.Equal(t, models.NodeStatusSucceeded, resp.Results[0].Status)

	value, err := store.GetVariable(context.Background(), "wf-1", "greeting")
	require.NoError(t, err)
	assert.JSONEq(t, `"hello"`, string(value))

	rec = postJSON(t, handler, "/execution/stop", executionRequest{WorkflowID: "wf-1"})
	assert.Equal(t, http.StatusOK, rec.Code)

	// Stop is idempotent.
	rec = postJSON(t, handler, "/execution/stop", executionRequest{WorkflowID: "wf-1"})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestExecuteNodesRejectsBadSelection(t *testing.T) {
	server, _ := newTestServer(t, &scriptedProvider{})
	handler := server.Routes()

	rec := postJSON(t, handler, "/execution/start", executionRequest{WorkflowID: "wf-1"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = postJSON(t, handler, "/nodes/execute", executeNodesRequest{WorkflowID: "wf-1", Selection: "not-a-selection", Mode: "isolated"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = postJSON(t, handler, "/nodes/execute", executeNodesRequest{WorkflowID: "wf-1", Selection: "1", Mode: "sideways"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetWorkflowSnapshot(t *testing.T) {
	server, store := newTestServer(t, &scriptedProvider{})
	handler := server.Routes()
	ctx := context.Background()

	_, err := store.UpsertNodes(ctx, "wf-1", []state.UpsertItem{{
		Node: &models.Node{Alias: "open_page", Type: models.NodeBrowserAction, Config: json.RawMessage(`{"action":"navigate","url":"https://example.com"}`)},
	}})
	require.NoError(t, err)
	require.NoError(t, store.SetVariable(ctx, "wf-1", "greeting", json.RawMessage(`"hello"`)))
	_, err = store.AppendDescriptionVersion(ctx, "wf-1", "Scrapes example.com", "initial")
	require.NoError(t, err)

	rec := postJSON(t, handler, "/execution/start", executionRequest{WorkflowID: "wf-1"})
	require.Equal(t, http.StatusOK, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/workflows/wf-1", nil)
	getRec := httptest.NewRecorder()
	handler.ServeHTTP(getRec, req)
	require.Equal(t, http.StatusOK, getRec.Code, getRec.Body.String())

	var snap workflowSnapshot
	require.NoError(t, json.Unmarshal(getRec.Body.Bytes(), &snap))
	assert.Equal(t, "wf-1", snap.ID)
	require.Len(t, snap.Nodes, 1)
	assert.Equal(t, "open_page", snap.Nodes[0].Alias)
	assert.Contains(t, snap.Variables, "greeting")
	require.NotNil(t, snap.Description)
	assert.Equal(t, 1, snap.Description.Version)
	require.NotNil(t, snap.BrowserState)
	assert.Equal(t, "default", snap.BrowserState.ActiveTab)
}
