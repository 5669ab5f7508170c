package domtoolkit

import "fmt"

// UnknownElementError is returned when an elementID from a prior
// Overview/Search call no longer resolves in the current (or any
// cached) snapshot — the page likely navigated or the element was
// removed.
type UnknownElementError struct {
	ElementID string
}

func (e *UnknownElementError) Error() string {
	return fmt.Sprintf("domtoolkit: unknown element id %q", e.ElementID)
}
