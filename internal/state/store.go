// Package state implements the workflow State Store: nodes, variables,
// plan, description history, and the append-only conversation log.
package state

import (
	"context"
	"encoding/json"

	"github.com/dirworks/director/internal/models"
)

// UpsertItem is one node to insert or replace via Store.UpsertNodes.
//
// Exactly one placement mode applies, chosen by which fields are set:
//   - Position nil, ReplaceAlias/ReplaceID empty: append to the end.
//   - Position non-nil: insert at that 1-based position, shifting existing
//     nodes at positions >= Position.
//   - ReplaceAlias or ReplaceID set: replace the matching node's content in
//     place, keeping its id and position.
type UpsertItem struct {
	Node         *models.Node
	Position     *int
	ReplaceAlias string
	ReplaceID    string
}

// DeleteOptions controls DeleteNodes's reference-repair behavior.
type DeleteOptions struct {
	// HandleDependencies rewrites surviving iterate.body/route[].branch
	// references so they continue to designate the same logical nodes,
	// and drops references that pointed at a removed position.
	HandleDependencies bool
	// DeleteChildren recursively removes the bodies/branches of removed
	// control-flow nodes (iterate, route) before applying the delete.
	DeleteChildren bool
	// DryRun computes the result without mutating the store.
	DryRun bool
}

// DeleteResult reports what DeleteNodes did (or, under DryRun, would do).
type DeleteResult struct {
	RemovedIDs    []string
	RewrittenRefs int
}

// Store is the workflow State Store contract: node CRUD with alias/position
// bookkeeping, variable CRUD, plan get/set, the description version log,
// and the append-only conversation log. Implementations must enforce alias
// uniqueness and dense 1-based positions themselves.
type Store interface {
	UpsertNodes(ctx context.Context, workflowID string, items []UpsertItem) ([]*models.Node, error)
	DeleteNodes(ctx context.Context, workflowID string, ids []string, opts DeleteOptions) (*DeleteResult, error)
	GetNodes(ctx context.Context, workflowID string) ([]*models.Node, error)
	GetNode(ctx context.Context, workflowID, idOrAlias string) (*models.Node, error)

	SetVariable(ctx context.Context, workflowID, key string, value json.RawMessage) error
	GetVariable(ctx context.Context, workflowID, key string) (json.RawMessage, error)
	GetAllVariables(ctx context.Context, workflowID string) (map[string]json.RawMessage, error)
	ClearVariable(ctx context.Context, workflowID, key string) error
	ClearAllVariables(ctx context.Context, workflowID string) error
	ClearIterationFor(ctx context.Context, workflowID string, iteratePosition int) error

	GetPlan(ctx context.Context, workflowID string) (*models.Plan, error)
	SetPlan(ctx context.Context, workflowID string, plan *models.Plan) error

	GetLatestDescription(ctx context.Context, workflowID string) (*models.WorkflowDescription, error)
	AppendDescriptionVersion(ctx context.Context, workflowID, data, reason string) (*models.WorkflowDescription, error)
	ListDescriptionHistory(ctx context.Context, workflowID string) ([]*models.WorkflowDescription, error)

	AppendConversationMessage(ctx context.Context, workflowID string, msg *models.ConversationMessage) error
	GetConversationHistory(ctx context.Context, workflowID string, limit int) ([]*models.ConversationMessage, error)
}
