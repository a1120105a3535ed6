package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies operator-correctable failures.
type ErrorKind string

const (
	KindValidation   ErrorKind = "validation_failed"
	KindPrecondition ErrorKind = "precondition_failed"
	KindNotFound     ErrorKind = "not_found"
	KindConflict     ErrorKind = "conflict"
	KindForbidden    ErrorKind = "forbidden"
)

// UserError is a failure the operator can fix (bad input, missing prerequisite,
// missing record). It is surfaced verbatim and never mutates state.
type UserError struct {
	Kind    ErrorKind
	Message string
}

func (e *UserError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

// Validationf builds a KindValidation UserError.
func Validationf(format string, args ...any) error {
	return &UserError{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// Preconditionf builds a KindPrecondition UserError.
func Preconditionf(format string, args ...any) error {
	return &UserError{Kind: KindPrecondition, Message: fmt.Sprintf(format, args...)}
}

// NotFoundf builds a KindNotFound UserError.
func NotFoundf(format string, args ...any) error {
	return &UserError{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

// Conflictf builds a KindConflict UserError.
func Conflictf(format string, args ...any) error {
	return &UserError{Kind: KindConflict, Message: fmt.Sprintf(format, args...)}
}

// Forbiddenf builds a KindForbidden UserError.
func Forbiddenf(format string, args ...any) error {
	return &UserError{Kind: KindForbidden, Message: fmt.Sprintf(format, args...)}
}

// AsUserError unwraps err into a *UserError if it contains one.
func AsUserError(err error) (*UserError, bool) {
	var ue *UserError
	if errors.As(err, &ue) {
		return ue, true
	}
	return nil, false
}

// IsKind reports whether err is a UserError of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	ue, ok := AsUserError(err)
	return ok && ue.Kind == kind
}
