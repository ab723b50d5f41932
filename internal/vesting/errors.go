package vesting

import (
	"errors"
	"fmt"
)

// Stable error codes, reported per item in batch results and mapped to HTTP
// statuses by the gateway.
const (
	CodeNotInitialized          = "not_initialized"
	CodeAlreadyInitialized      = "already_initialized"
	CodeUnauthorized            = "unauthorized"
	CodePaused                  = "paused"
	CodeInstanceNotFound        = "instance_not_found"
	CodeInstanceInactive        = "instance_inactive"
	CodeInstanceAlreadyInactive = "instance_already_inactive"
	CodeValidation              = "validation_error"
	CodeNothingClaimable        = "nothing_claimable"
	CodeConditionUnauthorized   = "condition_unauthorized"
	// Never returned: re-applying evidence to a satisfied trigger is an
	// idempotent no-op. The code exists only for wire compatibility.
	CodeConditionAlreadySatisfied = "condition_already_satisfied"

	CodeInternal = "internal"
)

// Error is a domain error with a stable code.
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string { return e.Message }

// Is matches on code so wrapped and detail-carrying instances compare equal
// to their sentinel.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

var (
	ErrNotInitialized          = &Error{CodeNotInitialized, "contract not initialized"}
	ErrAlreadyInitialized      = &Error{CodeAlreadyInitialized, "contract already initialized"}
	ErrUnauthorized            = &Error{CodeUnauthorized, "unauthorized"}
	ErrPaused                  = &Error{CodePaused, "contract is paused"}
	ErrInstanceNotFound        = &Error{CodeInstanceNotFound, "schedule not found"}
	ErrInstanceInactive        = &Error{CodeInstanceInactive, "schedule is inactive"}
	ErrInstanceAlreadyInactive = &Error{CodeInstanceAlreadyInactive, "schedule already inactive"}
	ErrValidation              = &Error{CodeValidation, "validation error"}
	ErrNothingClaimable        = &Error{CodeNothingClaimable, "nothing claimable"}
	ErrConditionUnauthorized   = &Error{CodeConditionUnauthorized, "caller is not an authorized attester"}
)

func validationErrorf(format string, args ...interface{}) *Error {
	return &Error{CodeValidation, fmt.Sprintf(format, args...)}
}

// CodeOf extracts the stable code from err, or CodeInternal for anything
// outside the taxonomy.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// CorruptionError marks an accounting invariant violation (negative
// claimable, vested beyond total). It is a logic error, never a user error:
// it aborts the whole call and is never captured per item by the batch
// processor.
type CorruptionError struct {
	ID     ScheduleID
	Detail string
}

func (e *CorruptionError) Error() string {
	return fmt.Sprintf("accounting corruption on schedule %s: %s", e.ID, e.Detail)
}
