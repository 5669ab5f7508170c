package workflow

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/dirworks/director/internal/browser"
	"github.com/dirworks/director/internal/credentials"
	"github.com/dirworks/director/internal/models"
	"github.com/dirworks/director/internal/state"
)

// CognitionProvider is the narrow LLM surface the "cognition" node
// needs: a template-interpolated instruction plus a required schema,
// returning a validated-shape (but not yet schema-validated by this
// package) JSON result. internal/llmprovider's Provider satisfies this
// through a thin adapter.
type CognitionProvider interface {
	Reason(ctx context.Context, instruction string, schema json.RawMessage) (json.RawMessage, error)
}

// Runtime executes workflow nodes against a Store, a Browser Facade,
// and (optionally) a cognition provider and a credential store.
type Runtime struct {
	Store     state.Store
	Facade    *browser.Facade
	Cognition CognitionProvider
	Schemas   *SchemaRegistry
	Logger    *slog.Logger

	// Credentials, if set, resolves {{credential:name}} references at
	// dispatch time. Values are substituted into the dispatched payload
	// only and zeroed when the node returns; they are never written back
	// to node config, node results, or the variable store.
	Credentials credentials.Store

	// BodyRunner dispatches a set of node positions in flow mode,
	// following route/iterate semantics recursively. Set by the
	// selection executor (ExecuteSelection's owner) so the iterate node
	// handler can run its body without this package's node_iterate.go
	// depending on selection.go's node-list loading directly.
	BodyRunner func(ctx context.Context, workflowID string, positions []int, resolver *Resolver) []NodeOutcome
}

// NewRuntime wires a Runtime with a fresh schema registry.
func NewRuntime(store state.Store, facade *browser.Facade, cognition CognitionProvider, logger *slog.Logger) *Runtime {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runtime{
		Store:     store,
		Facade:    facade,
		Cognition: cognition,
		Schemas:   NewSchemaRegistry(),
		Logger:    logger,
	}
}

// NodeOutcome is one node's execution result: either a stored result
// value or a StepFailure.
type NodeOutcome struct {
	NodeID  string
	Status  models.NodeStatus
	Result  json.RawMessage
	Failure *models.StepFailure
}

// buildResolver loads the workflow's current variables and the
// store_variable-bearing node results (by alias) and constructs a
// Resolver scoped to the current iteration stack.
func (rt *Runtime) buildResolver(ctx context.Context, workflowID string) (*Resolver, error) {
	vars, err := rt.Store.GetAllVariables(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	nodes, err := rt.Store.GetNodes(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	results := make(map[string]json.RawMessage)
	for _, n := range nodes {
		if n.StoreVariable && n.Alias != "" && n.Result != nil {
			results[n.Alias] = n.Result
		}
	}
	return NewResolver(vars, results), nil
}

// ExecuteNode dispatches a single node by its type, resolving template
// references in its config first. It does not recurse into iterate/route
// children — callers needing flow-mode semantics use ExecuteSelection.
func (rt *Runtime) ExecuteNode(ctx context.Context, workflowID string, node *models.Node, resolver *Resolver) NodeOutcome {
	config := resolver.ResolveTemplates(node.Config)

	if rt.Credentials != nil && credentials.HasPlaceholders(config) {
		values, err := rt.Credentials.GetForStep(ctx, node.ID, workflowID)
		if err != nil {
			return rt.failureOutcome(node.ID, err)
		}
		dispatch := credentials.Substitute(config, values)
		credentials.Zero(values)
		defer credentials.ZeroBytes(dispatch)
		config = dispatch
	}

	var (
		result json.RawMessage
		err    error
	)
	switch node.Type {
	case models.NodeBrowserAction:
		result, err = rt.execBrowserAction(ctx, config)
	case models.NodeBrowserAIAction:
		result, err = rt.execBrowserAIAction(ctx, config)
	case models.NodeBrowserQuery:
		result, err = rt.execBrowserQuery(ctx, config)
	case models.NodeBrowserAIExtract:
		result, err = rt.execBrowserAIExtract(ctx, node.ID, config)
	case models.NodeCognition:
		result, err = rt.execCognition(ctx, node.ID, config)
	case models.NodeContext:
		result, err = rt.execContext(ctx, workflowID, config)
	case models.NodeIterate:
		result, err = rt.execIterate(ctx, workflowID, node, config, resolver)
	case models.NodeRoute:
		result, err = rt.execRoute(config, resolver)
	case models.NodeTransform:
		result, err = rt.execTransform(config, resolver)
	case models.NodeHandle:
		result, err = rt.execHandle(ctx, workflowID, node, config, resolver)
	default:
		err = &ErrUnknownNodeType{Type: string(node.Type)}
	}

	if err != nil {
		return rt.failureOutcome(node.ID, err)
	}

	if node.StoreVariable && node.Alias != "" {
		if setErr := rt.Store.SetVariable(ctx, workflowID, node.Alias, result); setErr != nil {
			return rt.failureOutcome(node.ID, setErr)
		}
	}

	return NodeOutcome{NodeID: node.ID, Status: models.NodeStatusSucceeded, Result: result}
}

func (rt *Runtime) failureOutcome(nodeID string, err error) NodeOutcome {
	if sf, ok := err.(*models.StepFailure); ok {
		return NodeOutcome{NodeID: nodeID, Status: models.NodeStatusFailed, Failure: sf}
	}
	return NodeOutcome{
		NodeID: nodeID,
		Status: models.NodeStatusFailed,
		Failure: &models.StepFailure{
			NodeID:    nodeID,
			Type:      failureType(err),
			Message:   err.Error(),
			Retriable: false,
		},
	}
}

// failureType classifies an error into the node-semantics-facing type
// string the Director sees, falling back to "runtime_error" for
// anything this package doesn't have a named category for.
func failureType(err error) string {
	switch err.(type) {
	case *ErrNotArray:
		return "not_array"
	case *ErrUnknownNodeType:
		return "unknown_node_type"
	case *ErrValidationFailed:
		return "validation_failed"
	case *ErrInvalidSelection:
		return "invalid_selection"
	case *browser.ElementNotFoundError:
		return "element_not_found"
	case *browser.NavigationTimeoutError:
		return "navigation_timeout"
	case *browser.AIActionFailedError:
		return "ai_action_failed"
	case *browser.UnknownTabError:
		return "unknown_tab"
	default:
		return "runtime_error"
	}
}
