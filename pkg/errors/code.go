package errors

import "net/http"

// ErrorCode represents a unique error identifier
type ErrorCode int

// Error code ranges allocation:
// 10000-10999: System & Common errors
// 13000-13099: Submission errors
// 13100-13199: Judge & sandbox errors

const (
	// ========== System & Common Errors (10000-10999) ==========

	Success ErrorCode = 10000

	// Generic errors (10000-10099)
	InternalServerError ErrorCode = 10001
	InvalidParams       ErrorCode = 10002
	NotFound            ErrorCode = 10003
	TooManyRequests     ErrorCode = 10006
	ServiceUnavailable  ErrorCode = 10007
	Timeout             ErrorCode = 10008

	// Cache errors (10200-10299)
	CacheError ErrorCode = 10200
	CacheMiss  ErrorCode = 10201

	// Validation errors (10300-10399)
	ValidationFailed   ErrorCode = 10300
	InvalidFormat      ErrorCode = 10301
	InvalidValue       ErrorCode = 10302
	RequiredFieldEmpty ErrorCode = 10303

	// ========== Submission Errors (13000-13099) ==========

	SubmissionNotFound   ErrorCode = 13000
	CodeTooLarge         ErrorCode = 13002
	LanguageNotSupported ErrorCode = 13003

	// ========== Judge & Sandbox Errors (13100-13199) ==========

	JudgeQueueFull   ErrorCode = 13100
	JudgeSystemError ErrorCode = 13101

	// EnvironmentUnavailable means one isolated environment could not be created.
	// It is charged to the affected test case as a runtime fault.
	EnvironmentUnavailable ErrorCode = 13110
	// SandboxUnavailable means the isolation runtime itself is down.
	// It is never charged to a submission; callers may retry.
	SandboxUnavailable ErrorCode = 13111
)

// errorMessages maps error codes to their default English messages
var errorMessages = map[ErrorCode]string{
	Success:             "Success",
	InternalServerError: "Internal server error",
	InvalidParams:       "Invalid parameters",
	NotFound:            "Resource not found",
	TooManyRequests:     "Too many requests, please try again later",
	ServiceUnavailable:  "Service temporarily unavailable",
	Timeout:             "Request timeout",

	CacheError: "Cache operation failed",
	CacheMiss:  "Cache miss",

	ValidationFailed:   "Validation failed",
	InvalidFormat:      "Invalid format",
	InvalidValue:       "Invalid value",
	RequiredFieldEmpty: "Required field is empty",

	SubmissionNotFound:   "Submission not found",
	CodeTooLarge:         "Source code is too large",
	LanguageNotSupported: "Language not supported",

	JudgeQueueFull:         "Judge capacity exhausted, please retry later",
	JudgeSystemError:       "Judge system error",
	EnvironmentUnavailable: "Execution environment unavailable",
	SandboxUnavailable:     "Sandbox runtime unavailable",
}

// Message returns the default message for the error code
func (c ErrorCode) Message() string {
	if msg, ok := errorMessages[c]; ok {
		return msg
	}
	return "Unknown error"
}

// HTTPStatus returns the recommended HTTP status code for the error code
func (c ErrorCode) HTTPStatus() int {
	switch {
	case c == Success:
		return http.StatusOK
	case c == NotFound, c == SubmissionNotFound:
		return http.StatusNotFound
	case c == TooManyRequests, c == JudgeQueueFull:
		return http.StatusTooManyRequests
	case c == ServiceUnavailable, c == SandboxUnavailable:
		return http.StatusServiceUnavailable
	case c == Timeout:
		return http.StatusGatewayTimeout
	case c >= 10300 && c < 10400: // Validation errors
		return http.StatusBadRequest
	case c == InvalidParams, c == LanguageNotSupported, c == CodeTooLarge:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// Retryable reports whether a caller may retry the failed operation unchanged.
func (c ErrorCode) Retryable() bool {
	switch c {
	case JudgeQueueFull, SandboxUnavailable, ServiceUnavailable, Timeout:
		return true
	default:
		return false
	}
}
