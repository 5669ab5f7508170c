package workflow

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/dirworks/director/internal/browser"
	"github.com/dirworks/director/internal/credentials"
	"github.com/dirworks/director/internal/models"
	"github.com/dirworks/director/internal/state"
)

func TestCredentialSubstitutionReachesDriverOnly(t *testing.T) {
	const password = "s3cret-hunter2"

	driver := browser.NewFakeDriver()
	store := state.NewMemoryStore()
	facade := browser.NewFacadeWithDriver(driver, store, "wf-1", time.Second)
	rt := NewRuntime(store, facade, nil, nil)

	creds := credentials.NewMemoryStore()
	creds.Set("wf-1", "gmail_password", password)
	rt.Credentials = creds

	ctx := context.Background()
	nodes, err := store.UpsertNodes(ctx, "wf-1", []state.UpsertItem{{
		Node: &models.Node{
			Alias:  "enter_password",
			Type:   models.NodeBrowserAction,
			Config: rawMsg(t, map[string]any{"action": "type", "selector": "#pw", "text": "{{credential:gmail_password}}"}),
		},
	}})
	if err != nil {
		t.Fatalf("UpsertNodes: %v", err)
	}

	resolver := NewResolver(nil, nil)
	outcome := rt.ExecuteNode(ctx, "wf-1", nodes[0], resolver)
	if outcome.Failure != nil {
		t.Fatalf("ExecuteNode failed: %v", outcome.Failure)
	}

	// The dispatched driver call saw the real password.
	page, _ := driver.Page("default")
	if got := page.(*browser.FakePage).TypedValue("#pw"); got != password {
		t.Fatalf("driver saw %q, want the real password", got)
	}

	// Stored node config still holds the placeholder, not the secret.
	stored, err := store.GetNode(ctx, "wf-1", "enter_password")
	if err != nil {
		t.Fatalf("GetNode: %v", err)
	}
	if strings.Contains(string(stored.Config), password) {
		t.Fatal("node config leaked the credential value")
	}
	if !strings.Contains(string(stored.Config), "{{credential:gmail_password}}") {
		t.Fatalf("node config lost its placeholder: %s", stored.Config)
	}
	if stored.Result != nil && strings.Contains(string(stored.Result), password) {
		t.Fatal("node result leaked the credential value")
	}

	// No variable contains the secret either.
	vars, err := store.GetAllVariables(ctx, "wf-1")
	if err != nil {
		t.Fatalf("GetAllVariables: %v", err)
	}
	for key, value := range vars {
		if strings.Contains(string(value), password) {
			t.Fatalf("variable %q leaked the credential value", key)
		}
	}
}

func TestCredentialSubstitutionSkippedWithoutPlaceholder(t *testing.T) {
	driver := browser.NewFakeDriver()
	store := state.NewMemoryStore()
	facade := browser.NewFacadeWithDriver(driver, store, "wf-1", time.Second)
	rt := NewRuntime(store, facade, nil, nil)
	rt.Credentials = failingCredentialStore{}

	node := &models.Node{
		ID:     "n1",
		Alias:  "plain_click",
		Type:   models.NodeBrowserAction,
		Config: rawMsg(t, map[string]any{"action": "click", "selector": "#ok"}),
	}
	outcome := rt.ExecuteNode(context.Background(), "wf-1", node, NewResolver(nil, nil))
	if outcome.Failure != nil {
		t.Fatalf("secret-free node must not touch the credential store: %v", outcome.Failure)
	}
}

type failingCredentialStore struct{}

func (failingCredentialStore) GetForStep(ctx context.Context, stepID, workflowID string) (map[string]string, error) {
	return nil, context.DeadlineExceeded
}
