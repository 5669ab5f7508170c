// Package workflow implements the Workflow Runtime: variable resolution
// and templating, JSON-Schema validation with coercion, node-type
// dispatch, the route expression evaluator, and execution selection over
// a workflow's node list.
package workflow

import "fmt"

// ErrNotArray is returned when an iterate node's "over" expression
// resolves to something other than a JSON array.
type ErrNotArray struct {
	Variable string
}

func (e *ErrNotArray) Error() string {
	return fmt.Sprintf("workflow: %q did not resolve to an array", e.Variable)
}

// ErrUnknownNodeType is returned for a node whose Type the runtime has
// no handler for.
type ErrUnknownNodeType struct {
	Type string
}

func (e *ErrUnknownNodeType) Error() string {
	return fmt.Sprintf("workflow: unknown node type %q", e.Type)
}

// ErrValidationFailed reports a schema-validated node output that
// failed even after coercion.
type ErrValidationFailed struct {
	NodeID   string
	Expected string
	Received string
	Detail   string
}

func (e *ErrValidationFailed) Error() string {
	return fmt.Sprintf("workflow: node %s output failed schema validation: expected %s, got %s (%s)",
		e.NodeID, e.Expected, e.Received, e.Detail)
}

// ErrInvalidSelection is returned when an execution-selection string
// doesn't parse as a position, a range, a comma list of those, or "all".
type ErrInvalidSelection struct {
	Selection string
}

func (e *ErrInvalidSelection) Error() string {
	return fmt.Sprintf("workflow: invalid execution selection %q", e.Selection)
}
