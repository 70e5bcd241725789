package errors

import (
	stderrors "errors"
	"fmt"
	"runtime"
	"strconv"
	"strings"
)

// stackDepth bounds how many frames are recorded per error.
const stackDepth = 10

// Error is a coded application error.
// Message overrides the code's default text; Err keeps the cause for errors.Is and errors.As.
type Error struct {
	Code    ErrorCode
	Message string
	Details map[string]interface{}
	Err     error
	Stack   string
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Code.Message()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// newError records the caller's stack; skip counts frames above newError.
func newError(code ErrorCode, msg string, cause error, skip int) *Error {
	return &Error{
		Code:    code,
		Message: msg,
		Details: make(map[string]interface{}),
		Err:     cause,
		Stack:   callers(skip + 1),
	}
}

// New creates an error carrying the code's default message.
func New(code ErrorCode) *Error {
	return newError(code, code.Message(), nil, 2)
}

// Newf creates an error with a formatted message.
func Newf(code ErrorCode, format string, args ...interface{}) *Error {
	return newError(code, fmt.Sprintf(format, args...), nil, 2)
}

// Wrap attaches code to err, keeping err's text. Wrap(nil, ...) is nil.
func Wrap(err error, code ErrorCode) *Error {
	if err == nil {
		return nil
	}
	return newError(code, err.Error(), err, 2)
}

// Wrapf attaches code and a new message to err. Wrapf(nil, ...) is nil.
func Wrapf(err error, code ErrorCode, format string, args ...interface{}) *Error {
	if err == nil {
		return nil
	}
	return newError(code, fmt.Sprintf(format, args...), err, 2)
}

// WithMessage replaces the message.
func (e *Error) WithMessage(msg string) *Error {
	e.Message = msg
	return e
}

// WithDetail adds a key-value detail to the error.
func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// ValidationError reports an invalid input field.
func ValidationError(field, reason string) *Error {
	return newError(ValidationFailed, ValidationFailed.Message(), nil, 2).
		WithDetail("field", field).
		WithDetail("reason", reason)
}

// GetCode extracts the error code from any error in the chain.
// Errors that carry no code map to InternalServerError.
func GetCode(err error) ErrorCode {
	if err == nil {
		return Success
	}
	var e *Error
	if stderrors.As(err, &e) {
		return e.Code
	}
	return InternalServerError
}

// GetError returns the first *Error in the chain, wrapping uncoded errors as InternalServerError.
func GetError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if stderrors.As(err, &e) {
		return e
	}
	return newError(InternalServerError, err.Error(), err, 2)
}

// Is reports whether err carries code.
func Is(err error, code ErrorCode) bool {
	return err != nil && GetCode(err) == code
}

// IsRetryable reports whether err carries a code the caller may retry.
func IsRetryable(err error) bool {
	return err != nil && GetCode(err).Retryable()
}

func callers(skip int) string {
	pcs := make([]uintptr, stackDepth)
	n := runtime.Callers(skip+1, pcs)
	if n == 0 {
		return ""
	}
	frames := runtime.CallersFrames(pcs[:n])
	var b strings.Builder
	for {
		frame, more := frames.Next()
		if !strings.HasPrefix(frame.Function, "runtime.") {
			b.WriteString("\n\t")
			b.WriteString(frame.File)
			b.WriteByte(':')
			b.WriteString(strconv.Itoa(frame.Line))
			b.WriteByte(' ')
			b.WriteString(frame.Function)
		}
		if !more {
			return b.String()
		}
	}
}
