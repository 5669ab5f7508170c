package credentials

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNamesDeduplicatesInOrder(t *testing.T) {
	payload := []byte(`{"user":"{{credential:gmail_user}}","pass":"{{credential:gmail_password}}","again":"{{credential:gmail_user}}"}`)
	assert.Equal(t, []string{"gmail_user", "gmail_password"}, Names(payload))
}

func TestHasPlaceholders(t *testing.T) {
	assert.True(t, HasPlaceholders([]byte(`{"text":"{{credential:key}}"}`)))
	assert.False(t, HasPlaceholders([]byte(`{"text":"{{variable}}"}`)))
	assert.False(t, HasPlaceholders([]byte(`{"text":"plain"}`)))
}

func TestSubstituteReplacesOnlyKnownNames(t *testing.T) {
	payload := []byte(`{"pass":"{{credential:gmail_password}}","other":"{{credential:missing}}"}`)
	out := Substitute(payload, map[string]string{"gmail_password": "hunter2"})

	assert.Equal(t, `{"pass":"hunter2","other":"{{credential:missing}}"}`, string(out))
	// input untouched
	assert.Contains(t, string(payload), "{{credential:gmail_password}}")
}

func TestSubstituteEscapesJSONMetaCharacters(t *testing.T) {
	payload := []byte(`{"pass":"{{credential:tricky}}"}`)
	out := Substitute(payload, map[string]string{"tricky": `a"b\c`})

	assert.Equal(t, `{"pass":"a\"b\\c"}`, string(out))
}

func TestZeroClearsTheMap(t *testing.T) {
	values := map[string]string{"a": "secret", "b": "other"}
	Zero(values)
	assert.Empty(t, values)
}

func TestZeroBytesOverwritesInPlace(t *testing.T) {
	payload := []byte("hunter2")
	ZeroBytes(payload)
	assert.Equal(t, make([]byte, 7), payload)
}

func TestMemoryStoreReturnsACopy(t *testing.T) {
	store := NewMemoryStore()
	store.Set("wf1", "gmail_password", "hunter2")

	got, err := store.GetForStep(context.Background(), "node-1", "wf1")
	require.NoError(t, err)
	require.Equal(t, "hunter2", got["gmail_password"])

	// Zeroing the caller's copy must not reach the store.
	Zero(got)
	again, err := store.GetForStep(context.Background(), "node-1", "wf1")
	require.NoError(t, err)
	assert.Equal(t, "hunter2", again["gmail_password"])
}

func TestMemoryStoreScopesByWorkflow(t *testing.T) {
	store := NewMemoryStore()
	store.Set("wf1", "key", "v1")

	got, err := store.GetForStep(context.Background(), "n", "wf2")
	require.NoError(t, err)
	assert.Empty(t, got)
}
