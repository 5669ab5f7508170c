package models

import (
	"encoding/json"
	"fmt"
)

// Variable is a single key/value entry in a workflow's variable store.
// Value is arbitrary JSON. Iteration variables use the key suffix
// "@iter:<iterate-position>:<index>".
type Variable struct {
	WorkflowID string          `json:"workflow_id"`
	Key        string          `json:"key"`
	Value      json.RawMessage `json:"value"`
}

// IterationKey builds the scoped key for an iteration variable at the given
// iterate node position and iteration index.
func IterationKey(name string, iteratePosition, index int) string {
	return fmt.Sprintf("%s@iter:%d:%d", name, iteratePosition, index)
}
