package domain

import (
	"errors"
	"fmt"
)

// ValidationError lists every field-level or semantic violation found by
// the validator. It never short-circuits on the first violation.
type ValidationError struct {
	Violations []string
}

func (e *ValidationError) Error() string {
	if len(e.Violations) == 1 {
		return fmt.Sprintf("validation failed: %s", e.Violations[0])
	}
	return fmt.Sprintf("validation failed: %d violations", len(e.Violations))
}

// FxError indicates a currency could not be converted to USD.
type FxError struct {
	Currency string
	Reason   string
}

func (e *FxError) Error() string {
	return fmt.Sprintf("fx conversion failed for %s: %s", e.Currency, e.Reason)
}

// SegregationError is raised when the same user attempts both the request
// and the authorize/reject side of an approval.
type SegregationError struct {
	UserID string
}

func (e *SegregationError) Error() string {
	return fmt.Sprintf("authorizer %s must differ from the requesting user", e.UserID)
}

// InvalidTransitionError is raised when a workflow transition is attempted
// from a state that does not permit it (including repeating a transition
// into its own target state).
type InvalidTransitionError struct {
	From WorkflowState
	To   WorkflowState
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition from %s to %s", e.From, e.To)
}

// NotFoundError is raised when a settlement, group, or workflow record
// cannot be located.
type NotFoundError struct {
	Resource string
	Key      string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.Key)
}

// TransientError wraps a retryable infrastructure failure (e.g. a
// momentary database error). Callers typically retry once before
// surfacing it.
type TransientError struct {
	Cause error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient error: %v", e.Cause)
}

func (e *TransientError) Unwrap() error {
	return e.Cause
}

// RetryTransientOnce runs fn, and if it fails with a *TransientError,
// runs it exactly once more before returning whatever the second attempt
// produced (§7 "TransientDbError: retried once within request; then
// 503"). Any other error is returned immediately without a retry.
func RetryTransientOnce(fn func() error) error {
	err := fn()
	var transient *TransientError
	if errors.As(err, &transient) {
		return fn()
	}
	return err
}
