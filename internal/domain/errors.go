package domain

import (
	"errors"
	"fmt"
)

// Error kinds surfaced by the engine. Wrap them with fmt.Errorf("...: %w", Err...)
// so callers can classify failures with errors.Is.
var (
	// ErrInvalidProblemSpec covers malformed cost-operator inputs: dimension
	// mismatch, negative size, pattern length mismatch.
	ErrInvalidProblemSpec = errors.New("invalid problem spec")

	// ErrDegenerateInitialization covers hot starts that cannot produce a usable
	// phase vector (constant Fiedler vector in strict mode, zero-norm vectors).
	ErrDegenerateInitialization = errors.New("degenerate initialization")

	// ErrNumericInstability covers non-finite or non-Hermitian intermediates and
	// trace drift beyond tolerance.
	ErrNumericInstability = errors.New("numeric instability")

	// ErrCanceled is reported when the caller's context stops a run early.
	ErrCanceled = errors.New("run canceled")
)

// RunError records which error kind stopped a run and at which iteration.
// Iteration is -1 when the run failed before the first iteration.
type RunError struct {
	Kind      error
	Iteration int
	Err       error
}

// NewRunError wraps err with its kind and iteration.
func NewRunError(kind error, iteration int, err error) *RunError {
	return &RunError{Kind: kind, Iteration: iteration, Err: err}
}

func (e *RunError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%v at iteration %d", e.Kind, e.Iteration)
	}
	return fmt.Sprintf("%v at iteration %d: %v", e.Kind, e.Iteration, e.Err)
}

// Unwrap exposes both the kind and the underlying cause to errors.Is/As.
func (e *RunError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// KindName returns a stable identifier for an error kind, used for persistence
// and HTTP responses.
func KindName(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidProblemSpec):
		return "invalid_problem_spec"
	case errors.Is(err, ErrDegenerateInitialization):
		return "degenerate_initialization"
	case errors.Is(err, ErrNumericInstability):
		return "numeric_instability"
	case errors.Is(err, ErrCanceled):
		return "canceled"
	default:
		return "internal"
	}
}
