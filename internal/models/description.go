package models

import "time"

// WorkflowDescription is one immutable entry in a workflow's description
// version log. History is never mutated; appendVersion always inserts
// version = max(existing)+1.
type WorkflowDescription struct {
	WorkflowID string    `json:"workflow_id"`
	Version    int       `json:"version"`
	Data       string    `json:"data"`
	Reason     string    `json:"reason,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}
