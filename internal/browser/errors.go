package browser

import "fmt"

// ElementNotFoundError is returned when a selector could not be resolved
// within a wait's timeout.
type ElementNotFoundError struct {
	Selector string
	Timeout  string
}

func (e *ElementNotFoundError) Error() string {
	return fmt.Sprintf("element not found: %s (timeout %s)", e.Selector, e.Timeout)
}

// NavigationTimeoutError is returned when navigate/back/forward/refresh
// does not settle before the configured timeout.
type NavigationTimeoutError struct {
	URL     string
	Timeout string
}

func (e *NavigationTimeoutError) Error() string {
	return fmt.Sprintf("navigation timed out: %s (timeout %s)", e.URL, e.Timeout)
}

// AIActionFailedError is returned when an AI-assisted action or extraction
// could not identify a target element or produce a schema-conformant
// result.
type AIActionFailedError struct {
	Instruction string
	Reason      string
}

func (e *AIActionFailedError) Error() string {
	return fmt.Sprintf("ai action failed: %s: %s", e.Instruction, e.Reason)
}

// UnknownTabError is returned when a tab name does not exist in the
// facade's tab set.
type UnknownTabError struct {
	Name string
}

func (e *UnknownTabError) Error() string {
	return fmt.Sprintf("unknown tab: %s", e.Name)
}
