package usecase

import (
	"errors"
	"fmt"

	"support-agent/internal/repository"
)

type ErrorCode string

const (
	ErrorInvalidInput ErrorCode = "INVALID_INPUT"
	// ErrorConflict means another writer committed the conversation first.
	ErrorConflict ErrorCode = "CONFLICT"
	ErrorInternal ErrorCode = "INTERNAL_ERROR"
)

type Error struct {
	Code   ErrorCode
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return fmt.Sprintf("usecase: %s (%s)", e.Code, e.Reason)
	}
	return fmt.Sprintf("usecase: %s (%s): %v", e.Code, e.Reason, e.Err)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Code returns the code carried by err, or ErrorInternal for anything that
// is not a use case error.
func Code(err error) ErrorCode {
	var ucErr *Error
	if errors.As(err, &ucErr) {
		return ucErr.Code
	}
	return ErrorInternal
}

func newError(code ErrorCode, reason string, err error) *Error {
	return &Error{Code: code, Reason: reason, Err: err}
}

func stateWriteError(err error) *Error {
	if errors.Is(err, repository.ErrStateConflict) {
		return newError(ErrorConflict, "state_conflict", err)
	}
	return newError(ErrorInternal, "state_write_error", err)
}
