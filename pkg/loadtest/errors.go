package loadtest

import (
	"errors"
	"fmt"
)

// ErrorCode allows us to encapsulate specific failure codes for the load
// testing process. Codes double as process exit codes.
type ErrorCode int

// Error/exit codes for load testing-related errors.
const (
	NoError ErrorCode = iota
	ErrFailedToReadConfigFile
	ErrFailedToDecodeConfig
	ErrInvalidConfig
	ErrFailedToBuildRequest
	ErrFailedToOpenResultsLog
	ErrFailedToWriteResults
	ErrFailedToCreatePool
	ErrFailedToWriteStats
	ErrFailedToStartMetricsServer
	ErrKilled
)

// Error is a way of wrapping the meaningful exit code we want to provide on
// failure.
type Error struct {
	Code     ErrorCode
	Message  string
	Upstream error
}

var _ error = (*Error)(nil)

// NewError allows us to create new Error structures from the given code and
// upstream error (can be nil).
func NewError(code ErrorCode, upstream error, additionalInfo ...string) *Error {
	return &Error{
		Code:     code,
		Message:  ErrorMessageForCode(code, additionalInfo...),
		Upstream: upstream,
	}
}

// Error implements error.
func (e *Error) Error() string {
	if e.Upstream != nil {
		return fmt.Sprintf("%s. Caused by: %s", e.Message, e.Upstream.Error())
	}
	return e.Message
}

// Unwrap gives errors.Is and errors.As access to the upstream error.
func (e *Error) Unwrap() error {
	return e.Upstream
}

// ErrorMessageForCode translates the given error code into a human-readable,
// English message.
func ErrorMessageForCode(code ErrorCode, additionalInfo ...string) string {
	var result string
	switch code {
	case NoError:
		result = "No error"
	case ErrFailedToReadConfigFile:
		result = "Failed to read configuration file"
	case ErrFailedToDecodeConfig:
		result = "Failed to decode YAML configuration"
	case ErrInvalidConfig:
		result = "Invalid configuration"
	case ErrFailedToBuildRequest:
		result = "Failed to build CoAP request"
	case ErrFailedToOpenResultsLog:
		result = "Failed to open results log"
	case ErrFailedToWriteResults:
		result = "Failed to write results"
	case ErrFailedToCreatePool:
		result = "Failed to create worker pool"
	case ErrFailedToWriteStats:
		result = "Failed to write summary statistics"
	case ErrFailedToStartMetricsServer:
		result = "Failed to start metrics server"
	case ErrKilled:
		result = "Process killed"
	default:
		return "Unrecognized error"
	}
	if len(additionalInfo) > 0 {
		result = fmt.Sprintf("%s: %s", result, additionalInfo[0])
	}
	return result
}

// IsErrorCode is a convenience function that checks whether the given error
// (or any error it wraps) is an Error with the given code.
func IsErrorCode(err error, code ErrorCode) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// ExitCode maps an error returned from the load test to a process exit code.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var e *Error
	if errors.As(err, &e) {
		return int(e.Code)
	}
	return 1
}
