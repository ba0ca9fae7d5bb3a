// Package errors defines the error kinds of spec.md §7 and a small
// functional-options constructor, following the shape of the teacher
// repo's internal/errors package.
package errors

import (
	"errors"
	"fmt"
)

// Code is one of the client-observable error kinds. BackendUnavailable
// is deliberately not representable here: spec.md §7 says it must
// never be surfaced to the client.
type Code string

const (
	CodeInvalidInput  Code = "INVALID_INPUT"
	CodeRateLimited   Code = "RATE_LIMITED"
	CodeNotInRoom     Code = "NOT_IN_ROOM"
	CodeInternalFault Code = "INTERNAL_FAULT"
)

type Error struct {
	Code    Code
	Message string
	err     error
}

func New(code Code, opts ...Option) *Error {
	e := &Error{
		Code:    code,
		Message: string(code),
	}

	for _, opt := range opts {
		opt.apply(e)
	}

	return e
}

func (e *Error) Error() string {
	s := fmt.Sprintf("code: %s, message: %s", e.Code, e.Message)
	if e.err != nil {
		s += fmt.Sprintf(", err: %s", e.err)
	}
	return s
}

func (e *Error) Unwrap() error {
	return e.err
}

// Reason is the string placed in the ERROR{reason} outbound frame.
func (e *Error) Reason() string {
	return e.Message
}

func Convert(err error) *Error {
	var e *Error
	if !errors.As(err, &e) {
		return Internal(err)
	}
	return e
}

func Internal(err error) *Error {
	return New(CodeInternalFault, WithMessagef("internal error"), WithCause(err))
}

func InvalidInput(format string, args ...any) *Error {
	return New(CodeInvalidInput, WithMessagef(format, args...))
}

func RateLimited() *Error {
	return New(CodeRateLimited, WithMessagef("rate limit exceeded"))
}

func NotInRoom(quizID string) *Error {
	return New(CodeNotInRoom, WithMessagef("not in quiz %s", quizID))
}

type Option interface {
	apply(*Error)
}

type optionFunc func(*Error)

func (f optionFunc) apply(e *Error) { f(e) }

func WithCause(err error) Option {
	return optionFunc(func(e *Error) {
		e.err = err
	})
}

func WithMessagef(format string, args ...any) Option {
	return optionFunc(func(e *Error) {
		e.Message = fmt.Sprintf(format, args...)
	})
}
