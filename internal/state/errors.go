package state

import "errors"

// Sentinel errors returned by Store implementations. Callers should use
// errors.Is against these rather than matching strings.
var (
	// ErrNotFound is returned when a workflow, node, alias, or variable key
	// does not exist.
	ErrNotFound = errors.New("state: not found")

	// ErrAliasConflict is returned by UpsertNodes when a node's alias
	// collides with another node already in the workflow.
	ErrAliasConflict = errors.New("state: alias already in use")

	// ErrRangeError is returned when a requested position is outside
	// 1..len(nodes)+1.
	ErrRangeError = errors.New("state: position out of range")

	// ErrInvalidConfig is returned when a node's config is empty or
	// otherwise malformed for its type.
	ErrInvalidConfig = errors.New("state: node config is required")

	// ErrStorageUnavailable wraps underlying storage-layer failures
	// (connection errors, transaction failures) that are not classified
	// as one of the above.
	ErrStorageUnavailable = errors.New("state: storage unavailable")
)
