package state

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/dirworks/director/internal/models"
)

func mustNode(alias string, typ models.NodeType, config string) *models.Node {
	return &models.Node{
		Alias:  alias,
		Type:   typ,
		Config: json.RawMessage(config),
	}
}

func TestMemoryStoreUpsertAppendsDensePositions(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	nodes, err := store.UpsertNodes(ctx, "wf1", []UpsertItem{
		{Node: mustNode("open_page", models.NodeBrowserAction, `{"action":"navigate"}`)},
		{Node: mustNode("get_title", models.NodeBrowserQuery, `{"query":"title"}`)},
	})
	if err != nil {
		t.Fatalf("UpsertNodes() error = %v", err)
	}
	if len(nodes) != 2 || nodes[0].Position != 1 || nodes[1].Position != 2 {
		t.Fatalf("expected dense positions 1,2, got %+v", nodes)
	}
}

func TestMemoryStoreUpsertRejectsDuplicateAlias(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if _, err := store.UpsertNodes(ctx, "wf1", []UpsertItem{
		{Node: mustNode("step_one", models.NodeBrowserAction, `{}`)},
	}); err != nil {
		t.Fatalf("UpsertNodes() error = %v", err)
	}

	_, err := store.UpsertNodes(ctx, "wf1", []UpsertItem{
		{Node: mustNode("step_one", models.NodeBrowserAction, `{}`)},
	})
	if !errors.Is(err, ErrAliasConflict) {
		t.Fatalf("expected ErrAliasConflict, got %v", err)
	}
}

func TestMemoryStoreUpsertRejectsEmptyConfig(t *testing.T) {
	store := NewMemoryStore()
	_, err := store.UpsertNodes(context.Background(), "wf1", []UpsertItem{
		{Node: &models.Node{Alias: "bad"}},
	})
	if !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
}

// TestMemoryStoreInsertionShiftPreservesReferences covers a 5-node workflow with an iterate at position 3 whose body
// is [4,5]; inserting one node at position 4 must leave the iterate body
// pointing at the same logical nodes, now at [5,6].
func TestMemoryStoreInsertionShiftPreservesReferences(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := store.UpsertNodes(ctx, "wf1", []UpsertItem{
			{Node: mustNode(aliasFor(i), models.NodeBrowserAction, `{"action":"noop"}`)},
		}); err != nil {
			t.Fatalf("seed node %d: %v", i, err)
		}
	}
	if _, err := store.UpsertNodes(ctx, "wf1", []UpsertItem{
		{Node: mustNode("loop_items", models.NodeIterate, `{"over":"items","variable":"item","body":[4,5]}`)},
	}); err != nil {
		t.Fatalf("seed iterate: %v", err)
	}
	for i := 3; i < 5; i++ {
		if _, err := store.UpsertNodes(ctx, "wf1", []UpsertItem{
			{Node: mustNode(aliasFor(i), models.NodeBrowserAction, `{"action":"noop"}`)},
		}); err != nil {
			t.Fatalf("seed node %d: %v", i, err)
		}
	}

	insertPos := 4
	if _, err := store.UpsertNodes(ctx, "wf1", []UpsertItem{
		{Node: mustNode("new_step", models.NodeBrowserAction, `{"action":"noop"}`), Position: &insertPos},
	}); err != nil {
		t.Fatalf("insert at position 4: %v", err)
	}

	nodes, err := store.GetNodes(ctx, "wf1")
	if err != nil {
		t.Fatalf("GetNodes() error = %v", err)
	}
	var iterate *models.Node
	for _, n := range nodes {
		if n.Type == models.NodeIterate {
			iterate = n
		}
	}
	if iterate == nil {
		t.Fatalf("expected to find iterate node")
	}
	var cfg struct {
		Body []int `json:"body"`
	}
	if err := json.Unmarshal(iterate.Config, &cfg); err != nil {
		t.Fatalf("decode iterate config: %v", err)
	}
	if len(cfg.Body) != 2 || cfg.Body[0] != 5 || cfg.Body[1] != 6 {
		t.Fatalf("expected body [5 6], got %v", cfg.Body)
	}
}

func TestMemoryStoreDeleteNodesRewritesReferences(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	created, err := store.UpsertNodes(ctx, "wf1", []UpsertItem{
		{Node: mustNode("a", models.NodeBrowserAction, `{}`)},
		{Node: mustNode("b", models.NodeBrowserAction, `{}`)},
		{Node: mustNode("c", models.NodeBrowserAction, `{}`)},
		{Node: mustNode("route_it", models.NodeRoute, `[{"name":"to_b","condition":"true","branch":2}]`)},
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	result, err := store.DeleteNodes(ctx, "wf1", []string{created[1].ID}, DeleteOptions{HandleDependencies: true})
	if err != nil {
		t.Fatalf("DeleteNodes() error = %v", err)
	}
	if len(result.RemovedIDs) != 1 {
		t.Fatalf("expected 1 removed id, got %d", len(result.RemovedIDs))
	}

	nodes, err := store.GetNodes(ctx, "wf1")
	if err != nil {
		t.Fatalf("GetNodes() error = %v", err)
	}
	for i, n := range nodes {
		if n.Position != i+1 {
			t.Fatalf("expected dense positions after delete, got %+v", nodes)
		}
	}
	var route *models.Node
	for _, n := range nodes {
		if n.Type == models.NodeRoute {
			route = n
		}
	}
	var cfg []struct {
		Branch json.RawMessage `json:"branch"`
	}
	if err := json.Unmarshal(route.Config, &cfg); err != nil {
		t.Fatalf("decode route config: %v", err)
	}
	if len(cfg) != 1 || string(cfg[0].Branch) != `[]` {
		t.Fatalf("expected dangling branch dropped to empty, got %+v", cfg)
	}
}

func TestMemoryStoreVariableCRUDAndIterationScope(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if err := store.SetVariable(ctx, "wf1", "count", json.RawMessage(`3`)); err != nil {
		t.Fatalf("SetVariable() error = %v", err)
	}
	if err := store.SetVariable(ctx, "wf1", models.IterationKey("item", 3, 0), json.RawMessage(`"a"`)); err != nil {
		t.Fatalf("SetVariable(iter) error = %v", err)
	}
	if err := store.SetVariable(ctx, "wf1", models.IterationKey("item", 3, 1), json.RawMessage(`"b"`)); err != nil {
		t.Fatalf("SetVariable(iter) error = %v", err)
	}

	if err := store.ClearIterationFor(ctx, "wf1", 3); err != nil {
		t.Fatalf("ClearIterationFor() error = %v", err)
	}

	all, err := store.GetAllVariables(ctx, "wf1")
	if err != nil {
		t.Fatalf("GetAllVariables() error = %v", err)
	}
	if _, ok := all["count"]; !ok {
		t.Fatalf("expected non-iteration variable to survive clear")
	}
	for k := range all {
		if k != "count" {
			t.Fatalf("expected iteration variables cleared, found %q", k)
		}
	}
}

func TestMemoryStoreDescriptionVersionsAppendOnly(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if _, err := store.AppendDescriptionVersion(ctx, "wf1", "first", "initial"); err != nil {
		t.Fatalf("AppendDescriptionVersion() error = %v", err)
	}
	second, err := store.AppendDescriptionVersion(ctx, "wf1", "second", "revision")
	if err != nil {
		t.Fatalf("AppendDescriptionVersion() error = %v", err)
	}
	if second.Version != 2 {
		t.Fatalf("expected version 2, got %d", second.Version)
	}

	latest, err := store.GetLatestDescription(ctx, "wf1")
	if err != nil {
		t.Fatalf("GetLatestDescription() error = %v", err)
	}
	if latest.Data != "second" {
		t.Fatalf("expected latest data %q, got %q", "second", latest.Data)
	}

	history, err := store.ListDescriptionHistory(ctx, "wf1")
	if err != nil {
		t.Fatalf("ListDescriptionHistory() error = %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected 2 versions, got %d", len(history))
	}
}

func TestMemoryStoreConversationAppendOnly(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if err := store.AppendConversationMessage(ctx, "wf1", &models.ConversationMessage{Role: models.RoleUser, Content: "go to example.com"}); err != nil {
		t.Fatalf("AppendConversationMessage() error = %v", err)
	}
	if err := store.AppendConversationMessage(ctx, "wf1", &models.ConversationMessage{Role: models.RoleAssistant, Content: "done"}); err != nil {
		t.Fatalf("AppendConversationMessage() error = %v", err)
	}

	history, err := store.GetConversationHistory(ctx, "wf1", 10)
	if err != nil {
		t.Fatalf("GetConversationHistory() error = %v", err)
	}
	if len(history) != 2 || history[0].Seq != 1 || history[1].Seq != 2 {
		t.Fatalf("expected sequential seq 1,2, got %+v", history)
	}
}

func aliasFor(i int) string {
	return []string{"n0", "n1", "n2", "n3", "n4", "n5"}[i]
}
