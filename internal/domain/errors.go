package domain

import (
	"errors"
	"fmt"
)

// ErrorClass classifies a business error for the caller.
type ErrorClass int

const (
	ClassNotFound ErrorClass = iota + 1
	ClassValidation
	ClassRuleViolation
)

func (c ErrorClass) String() string {
	switch c {
	case ClassNotFound:
		return "not_found"
	case ClassValidation:
		return "validation"
	case ClassRuleViolation:
		return "rule_violation"
	default:
		return fmt.Sprintf("class(%d)", int(c))
	}
}

// BusinessError is an expected, caller-correctable outcome. Message is safe
// to return to the caller verbatim.
type BusinessError struct {
	Message string
	Class   ErrorClass
}

func (e *BusinessError) Error() string {
	return e.Message
}

// InternalError wraps an unexpected failure. The cause is propagated for
// logging only and is never shown to the caller.
type InternalError struct {
	Cause error
}

func (e *InternalError) Error() string {
	if e.Cause == nil {
		return "internal error"
	}
	return e.Cause.Error()
}

func (e *InternalError) Unwrap() error {
	return e.Cause
}

var (
	ErrAccountNotFound      = &BusinessError{Message: "not found", Class: ClassNotFound}
	ErrInsufficientFunds    = &BusinessError{Message: "insufficient funds", Class: ClassRuleViolation}
	ErrAccountAlreadyExists = &BusinessError{Message: "account already exists", Class: ClassRuleViolation}
	// ErrCommandAlreadyApplied reports a redelivered adjustment command. The
	// balance already reflects it.
	ErrCommandAlreadyApplied = &BusinessError{Message: "command already applied", Class: ClassRuleViolation}
)

func Validation(message string) error {
	return &BusinessError{Message: message, Class: ClassValidation}
}

// Internal classifies err as an internal failure. Errors that are already
// classified are returned unchanged.
func Internal(err error) error {
	if err == nil {
		return nil
	}
	var ie *InternalError
	if errors.As(err, &ie) {
		return err
	}
	return &InternalError{Cause: err}
}

// AsBusiness reports whether err is a business error and returns it.
func AsBusiness(err error) (*BusinessError, bool) {
	var be *BusinessError
	if errors.As(err, &be) {
		return be, true
	}
	return nil, false
}
