// Package credentials defines the contract boundary to an external
// credential store and the in-payload-only substitution the Workflow
// Runtime performs with it. Secrets flow into a dispatched browser
// operation's payload and nowhere else: never into node config, node
// results, or the variable store.
package credentials

import (
	"context"
	"encoding/json"
	"regexp"
	"sync"
)

// Store is the external credential store's surface. GetForStep returns
// the key→value secrets a single workflow step is allowed to see.
type Store interface {
	GetForStep(ctx context.Context, stepID, workflowID string) (map[string]string, error)
}

// placeholderPattern matches {{credential:<name>}} references in a
// dispatched payload. Names follow the same snake_case convention as
// node aliases.
var placeholderPattern = regexp.MustCompile(`\{\{credential:([a-zA-Z0-9_.-]+)\}\}`)

// HasPlaceholders reports whether payload contains at least one
// {{credential:...}} reference, so callers can skip the store round
// trip for the common secret-free case.
func HasPlaceholders(payload []byte) bool {
	return placeholderPattern.Match(payload)
}

// Names returns the distinct credential names referenced by payload, in
// first-appearance order.
func Names(payload []byte) []string {
	seen := make(map[string]struct{})
	var names []string
	for _, m := range placeholderPattern.FindAllSubmatch(payload, -1) {
		name := string(m[1])
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}
	return names
}

// Substitute returns a copy of payload with every {{credential:name}}
// reference replaced by its value from values. Payloads are JSON
// documents and placeholders live inside JSON strings, so values are
// escaped as JSON string content before insertion. References with no
// matching value are left verbatim so the failure is visible downstream
// instead of silently dispatching an empty secret. The input payload is
// never modified.
func Substitute(payload []byte, values map[string]string) []byte {
	return placeholderPattern.ReplaceAllFunc(append([]byte(nil), payload...), func(match []byte) []byte {
		name := string(placeholderPattern.FindSubmatch(match)[1])
		if v, ok := values[name]; ok {
			return escapeJSONString(v)
		}
		return match
	})
}

func escapeJSONString(v string) []byte {
	quoted, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return quoted[1 : len(quoted)-1]
}

// Zero overwrites every value in values byte-by-byte and clears the map,
// so a step's secrets do not outlive its dispatch in this process's
// memory. Go strings are immutable, so the backing array of the string
// header handed out by the store cannot itself be scrubbed — Zero
// replaces each entry with an empty string and deletes the key, which
// drops the only reference this package retains.
func Zero(values map[string]string) {
	for k := range values {
		values[k] = ""
		delete(values, k)
	}
}

// ZeroBytes overwrites a substituted payload copy in place.
func ZeroBytes(payload []byte) {
	for i := range payload {
		payload[i] = 0
	}
}

// MemoryStore is a reference Store for tests and single-process runs:
// per-workflow key→value maps behind a mutex. Production deployments
// implement Store against their secret manager instead.
type MemoryStore struct {
	mu    sync.RWMutex
	creds map[string]map[string]string
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{creds: make(map[string]map[string]string)}
}

// Set stores a credential value for a workflow.
func (s *MemoryStore) Set(workflowID, name, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.creds[workflowID] == nil {
		s.creds[workflowID] = make(map[string]string)
	}
	s.creds[workflowID][name] = value
}

// Delete removes a credential.
func (s *MemoryStore) Delete(workflowID, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.creds[workflowID], name)
}

// GetForStep returns a fresh copy of the workflow's credentials; the
// caller owns the copy and is expected to Zero it after dispatch.
func (s *MemoryStore) GetForStep(ctx context.Context, stepID, workflowID string) (map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]string, len(s.creds[workflowID]))
	for k, v := range s.creds[workflowID] {
		out[k] = v
	}
	return out, nil
}
