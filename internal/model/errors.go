package model

import "fmt"

// ValidationError reports malformed or insufficient planning input.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation: " + e.Reason
	}
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Reason)
}

// Invalid is shorthand for a *ValidationError.
func Invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// ProviderError wraps a failure of an external place, suggestion or vibe provider.
// Callers in the planning core recover from it with a fallback.
type ProviderError struct {
	Provider string
	Op       string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %s %s: %v", e.Provider, e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// StateTransitionError is returned when a lifecycle event is not legal from
// the current state. It must reach the caller.
type StateTransitionError struct {
	Entity string // trip, day
	From   string
	Event  string
}

func (e *StateTransitionError) Error() string {
	return fmt.Sprintf("%s: cannot %s from %s", e.Entity, e.Event, e.From)
}
