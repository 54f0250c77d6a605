package model

import "errors"

// Domain-level failures. Everything else coming out of the store is a
// transient StoreError and stays wrapped.
var (
	// ErrOverAllocation: the submission would push an assignment past its target.
	ErrOverAllocation = errors.New("report exceeds assignment target")
	// ErrNotFound: a referenced user/task/assignment does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrAccessDenied: the user is inactive or lacks the required role.
	ErrAccessDenied = errors.New("access denied")
)

// ValidationError carries a bad field value at a conversation step.
// Msg is safe to show to the user as-is.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

// Invalid builds a ValidationError with a user-facing message.
func Invalid(msg string) error { return &ValidationError{Msg: msg} }

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
