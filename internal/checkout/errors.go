package checkout

import (
	"errors"
	"fmt"
)

var (
	ErrAttemptNotFound  = errors.New("checkout attempt not found")
	ErrMissingAttemptID = errors.New("attempt id is required")
	ErrPaymentDeclined  = errors.New("payment declined")
)

// DuplicateAttemptError means the attempt id is being placed right now or
// belongs to another user.
type DuplicateAttemptError struct {
	AttemptID string
}

func (e *DuplicateAttemptError) Error() string {
	return fmt.Sprintf("duplicate checkout attempt %s", e.AttemptID)
}

// StepError is a state machine precondition violation.
type StepError struct {
	State  State
	Reason string
}

func (e *StepError) Error() string {
	return fmt.Sprintf("checkout step not allowed in state %s: %s", e.State, e.Reason)
}

// FailedError is a placement that ended in StateFailed. Cause keeps the
// typed error from the failing component.
type FailedError struct {
	Failure Failure
	Cause   error
}

func (e *FailedError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("checkout failed (%s): %v", e.Failure.Reason, e.Cause)
	}
	return "checkout failed: " + e.Failure.Reason
}

func (e *FailedError) Unwrap() error { return e.Cause }
