package state

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dirworks/director/internal/models"
)

// MemoryStore is an in-memory Store implementation for the Workflow Runtime
// and Director test suites, and the fallback when no database is
// configured.
type MemoryStore struct {
	mu sync.RWMutex

	nodes        map[string][]*models.Node
	variables    map[string]map[string]json.RawMessage
	plans        map[string]*models.Plan
	descriptions map[string][]*models.WorkflowDescription
	conversation map[string][]*models.ConversationMessage
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		nodes:        map[string][]*models.Node{},
		variables:    map[string]map[string]json.RawMessage{},
		plans:        map[string]*models.Plan{},
		descriptions: map[string][]*models.WorkflowDescription{},
		conversation: map[string][]*models.ConversationMessage{},
	}
}

func (m *MemoryStore) UpsertNodes(ctx context.Context, workflowID string, items []UpsertItem) ([]*models.Node, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing := m.nodes[workflowID]
	result := make([]*models.Node, 0, len(items))
	now := time.Now()

	for _, item := range items {
		if item.Node == nil {
			return nil, fmt.Errorf("%w: item.Node is nil", ErrInvalidConfig)
		}
		if len(item.Node.Config) == 0 {
			return nil, ErrInvalidConfig
		}

		switch {
		case item.ReplaceAlias != "" || item.ReplaceID != "":
			target := findNode(existing, item.ReplaceID, item.ReplaceAlias)
			if target == nil {
				return nil, fmt.Errorf("%w: node %q", ErrNotFound, firstNonEmpty(item.ReplaceID, item.ReplaceAlias))
			}
			newAlias := item.Node.Alias
			if newAlias == "" {
				newAlias = target.Alias
			}
			if err := checkAliasUnique(existing, newAlias, target.ID); err != nil {
				return nil, err
			}
			target.Alias = newAlias
			target.Type = item.Node.Type
			target.Config = item.Node.Config
			target.Description = item.Node.Description
			target.StoreVariable = item.Node.StoreVariable
			target.Status = models.NodeStatusPending
			target.Result = nil
			target.UpdatedAt = now
			result = append(result, target.Clone())

		case item.Position != nil:
			pos := *item.Position
			if pos < 1 || pos > len(existing)+1 {
				return nil, fmt.Errorf("%w: position %d (have %d nodes)", ErrRangeError, pos, len(existing))
			}
			if err := checkAliasUnique(existing, item.Node.Alias, ""); err != nil {
				return nil, err
			}
			shift := insertShifter(pos, 1)
			for _, n := range existing {
				if n.Position >= pos {
					n.Position++
				}
				rewritten, _, err := rewriteNodeReferences(n.Type, n.Config, shift)
				if err != nil {
					return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
				}
				n.Config = rewritten
			}
			fresh := item.Node.Clone()
			fresh.WorkflowID = workflowID
			fresh.Position = pos
			if fresh.ID == "" {
				fresh.ID = uuid.NewString()
			}
			fresh.Status = models.NodeStatusPending
			fresh.CreatedAt, fresh.UpdatedAt = now, now
			existing = insertAt(existing, pos-1, fresh)
			result = append(result, fresh.Clone())

		default:
			if err := checkAliasUnique(existing, item.Node.Alias, ""); err != nil {
				return nil, err
			}
			fresh := item.Node.Clone()
			fresh.WorkflowID = workflowID
			fresh.Position = len(existing) + 1
			if fresh.ID == "" {
				fresh.ID = uuid.NewString()
			}
			fresh.Status = models.NodeStatusPending
			fresh.CreatedAt, fresh.UpdatedAt = now, now
			existing = append(existing, fresh)
			result = append(result, fresh.Clone())
		}
	}

	m.nodes[workflowID] = existing
	return result, nil
}

func (m *MemoryStore) DeleteNodes(ctx context.Context, workflowID string, ids []string, opts DeleteOptions) (*DeleteResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing := m.nodes[workflowID]
	removeSet := make(map[string]bool, len(ids))
	for _, id := range ids {
		removeSet[id] = true
	}

	if opts.DeleteChildren {
		growRemoveSetWithChildren(existing, removeSet)
	}

	removedPositions := make([]int, 0, len(removeSet))
	removedIDs := make([]string, 0, len(removeSet))
	for _, n := range existing {
		if removeSet[n.ID] {
			removedPositions = append(removedPositions, n.Position)
			removedIDs = append(removedIDs, n.ID)
		}
	}

	result := &DeleteResult{RemovedIDs: removedIDs}
	if opts.DryRun {
		return result, nil
	}

	survivors := make([]*models.Node, 0, len(existing)-len(removedIDs))
	for _, n := range existing {
		if !removeSet[n.ID] {
			survivors = append(survivors, n)
		}
	}

	shift := deleteShifter(removedPositions)
	rewritten := 0
	for _, n := range survivors {
		newPos, keep := shift(n.Position)
		if !keep {
			// Surviving node can never map to a removed position; keep is
			// always true here, but guard defensively.
			continue
		}
		n.Position = newPos
		if opts.HandleDependencies {
			cfg, changed, err := rewriteNodeReferences(n.Type, n.Config, shift)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
			}
			n.Config = cfg
			rewritten += changed
		}
	}

	m.nodes[workflowID] = survivors
	result.RewrittenRefs = rewritten
	return result, nil
}

func (m *MemoryStore) GetNodes(ctx context.Context, workflowID string) ([]*models.Node, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	nodes := m.nodes[workflowID]
	out := make([]*models.Node, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, n.Clone())
	}
	return out, nil
}

func (m *MemoryStore) GetNode(ctx context.Context, workflowID, idOrAlias string) (*models.Node, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := findNode(m.nodes[workflowID], idOrAlias, idOrAlias)
	if n == nil {
		return nil, ErrNotFound
	}
	return n.Clone(), nil
}

func (m *MemoryStore) SetVariable(ctx context.Context, workflowID, key string, value json.RawMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	bucket, ok := m.variables[workflowID]
	if !ok {
		bucket = map[string]json.RawMessage{}
		m.variables[workflowID] = bucket
	}
	cloned := make(json.RawMessage, len(value))
	copy(cloned, value)
	bucket[key] = cloned
	return nil
}

func (m *MemoryStore) GetVariable(ctx context.Context, workflowID, key string) (json.RawMessage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	bucket, ok := m.variables[workflowID]
	if !ok {
		return nil, ErrNotFound
	}
	v, ok := bucket[key]
	if !ok {
		return nil, ErrNotFound
	}
	return v, nil
}

func (m *MemoryStore) GetAllVariables(ctx context.Context, workflowID string) (map[string]json.RawMessage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	bucket := m.variables[workflowID]
	out := make(map[string]json.RawMessage, len(bucket))
	for k, v := range bucket {
		out[k] = v
	}
	return out, nil
}

func (m *MemoryStore) ClearVariable(ctx context.Context, workflowID, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.variables[workflowID], key)
	return nil
}

func (m *MemoryStore) ClearAllVariables(ctx context.Context, workflowID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.variables, workflowID)
	return nil
}

func (m *MemoryStore) ClearIterationFor(ctx context.Context, workflowID string, iteratePosition int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	bucket := m.variables[workflowID]
	if bucket == nil {
		return nil
	}
	suffix := fmt.Sprintf("@iter:%d:", iteratePosition)
	for k := range bucket {
		if strings.Contains(k, suffix) {
			delete(bucket, k)
		}
	}
	return nil
}

func (m *MemoryStore) GetPlan(ctx context.Context, workflowID string) (*models.Plan, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.plans[workflowID]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *p
	return &clone, nil
}

func (m *MemoryStore) SetPlan(ctx context.Context, workflowID string, plan *models.Plan) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := *plan
	m.plans[workflowID] = &clone
	return nil
}

func (m *MemoryStore) GetLatestDescription(ctx context.Context, workflowID string) (*models.WorkflowDescription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	history := m.descriptions[workflowID]
	if len(history) == 0 {
		return nil, ErrNotFound
	}
	latest := *history[len(history)-1]
	return &latest, nil
}

func (m *MemoryStore) AppendDescriptionVersion(ctx context.Context, workflowID, data, reason string) (*models.WorkflowDescription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	history := m.descriptions[workflowID]
	version := 1
	if len(history) > 0 {
		version = history[len(history)-1].Version + 1
	}
	entry := &models.WorkflowDescription{
		WorkflowID: workflowID,
		Version:    version,
		Data:       data,
		Reason:     reason,
		CreatedAt:  time.Now(),
	}
	m.descriptions[workflowID] = append(history, entry)
	out := *entry
	return &out, nil
}

func (m *MemoryStore) ListDescriptionHistory(ctx context.Context, workflowID string) ([]*models.WorkflowDescription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	history := m.descriptions[workflowID]
	out := make([]*models.WorkflowDescription, len(history))
	for i, d := range history {
		clone := *d
		out[i] = &clone
	}
	return out, nil
}

func (m *MemoryStore) AppendConversationMessage(ctx context.Context, workflowID string, msg *models.ConversationMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	log := m.conversation[workflowID]
	clone := *msg
	clone.WorkflowID = workflowID
	clone.Seq = int64(len(log)) + 1
	if clone.CreatedAt.IsZero() {
		clone.CreatedAt = time.Now()
	}
	m.conversation[workflowID] = append(log, &clone)
	return nil
}

func (m *MemoryStore) GetConversationHistory(ctx context.Context, workflowID string, limit int) ([]*models.ConversationMessage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	log := m.conversation[workflowID]
	start := 0
	if limit > 0 && len(log) > limit {
		start = len(log) - limit
	}
	out := make([]*models.ConversationMessage, 0, len(log)-start)
	for _, msg := range log[start:] {
		clone := *msg
		out = append(out, &clone)
	}
	return out, nil
}

func findNode(nodes []*models.Node, id, alias string) *models.Node {
	for _, n := range nodes {
		if id != "" && n.ID == id {
			return n
		}
		if alias != "" && n.Alias == alias {
			return n
		}
	}
	return nil
}

func checkAliasUnique(nodes []*models.Node, alias, excludeID string) error {
	if alias == "" {
		return nil
	}
	for _, n := range nodes {
		if n.ID == excludeID {
			continue
		}
		if n.Alias == alias {
			return fmt.Errorf("%w: %q", ErrAliasConflict, alias)
		}
	}
	return nil
}

func insertAt(nodes []*models.Node, idx int, n *models.Node) []*models.Node {
	out := make([]*models.Node, 0, len(nodes)+1)
	out = append(out, nodes[:idx]...)
	out = append(out, n)
	out = append(out, nodes[idx:]...)
	return out
}

// growRemoveSetWithChildren recursively adds the node ids referenced by
// each removed control-flow node's body/branch, so deleting an iterate or
// route node also deletes the nodes it exclusively governs.
func growRemoveSetWithChildren(nodes []*models.Node, removeSet map[string]bool) {
	byPosition := make(map[int]*models.Node, len(nodes))
	for _, n := range nodes {
		byPosition[n.Position] = n
	}

	frontier := make([]string, 0, len(removeSet))
	for id := range removeSet {
		frontier = append(frontier, id)
	}

	for len(frontier) > 0 {
		id := frontier[len(frontier)-1]
		frontier = frontier[:len(frontier)-1]
		n := findNode(nodes, id, "")
		if n == nil {
			continue
		}
		for _, pos := range referencedPositions(n.Type, n.Config) {
			child, ok := byPosition[pos]
			if !ok || removeSet[child.ID] {
				continue
			}
			removeSet[child.ID] = true
			frontier = append(frontier, child.ID)
		}
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
