package errors

import (
	stdErrors "errors"
	"strings"
)

// Error carries a Code alongside the message and cause so the HTTP layer can
// pick a status without string matching.
type Error struct {
	code    Code
	message string
	details any
	cause   error
}

func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

// Wrap is New with a cause kept for errors.Is and errors.As.
func Wrap(code Code, err error, message string) *Error {
	e := New(code, message)
	e.cause = err
	return e
}

// WithDetails attaches structured details and returns e.
func (e *Error) WithDetails(details any) *Error {
	if e != nil {
		e.details = details
	}
	return e
}

func (e *Error) Code() Code {
	if e == nil {
		return CodeInternal
	}
	return e.code
}

func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

func (e *Error) Details() any {
	if e == nil {
		return nil
	}
	return e.details
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	var b strings.Builder
	b.WriteString(string(e.code))
	if e.message != "" {
		b.WriteString(": ")
		b.WriteString(e.message)
	}
	if e.cause != nil {
		b.WriteString(": ")
		b.WriteString(e.cause.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// As finds the outermost *Error wrapped anywhere in err.
func As(err error) *Error {
	var typed *Error
	if err == nil || !stdErrors.As(err, &typed) {
		return nil
	}
	return typed
}

func IsCode(err error, code Code) bool {
	return As(err).codeIs(code)
}

// IsPermanent reports whether err carries a code that retrying cannot fix.
// Untyped errors are assumed transient.
func IsPermanent(err error) bool {
	typed := As(err)
	return typed != nil && !typed.code.Policy().Retryable
}

func (e *Error) codeIs(code Code) bool {
	return e != nil && e.code == code
}
