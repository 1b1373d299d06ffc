package core

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes protocol failures. Codes are part of the wire
// contract: they appear in pre-stream JSON error responses and in-band
// error events, so renaming one is a breaking change.
type ErrorCode string

const (
	// CodeInvalidRequest marks malformed or out-of-range request fields.
	// Always reported before streaming begins.
	CodeInvalidRequest ErrorCode = "invalid_request"
	// CodeUnauthorized marks a session ownership mismatch. Always reported
	// before streaming begins; the session is never silently substituted.
	CodeUnauthorized ErrorCode = "unauthorized"
	// CodeUnknownTool marks a tool call whose name resolves to nothing in
	// the session's catalog. In-band and recoverable.
	CodeUnknownTool ErrorCode = "unknown_tool"
	// CodeInvalidArguments marks a sanitizer rejection. In-band and
	// recoverable: the model is told its call was rejected and may retry.
	CodeInvalidArguments ErrorCode = "invalid_arguments"
	// CodeExecutionFailed marks a backend failure during a valid call.
	// In-band and recoverable.
	CodeExecutionFailed ErrorCode = "execution_failed"
	// CodeUpstreamTransport marks a model API failure. Fatal to the single
	// conversation, reported in-band, then the stream terminates.
	CodeUpstreamTransport ErrorCode = "upstream_transport"
	// CodeBackendUnavailable marks a tool-use request arriving for a
	// request that has no execution session configured.
	CodeBackendUnavailable ErrorCode = "backend_unavailable"
)

// Error is the typed failure carried across the protocol. Field names the
// offending request field for validation errors; Detail carries optional
// context safe to show a caller (never internal state).
type Error struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Field   string    `json:"field,omitempty"`
	Detail  string    `json:"detail,omitempty"`
}

func (e *Error) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s (field %q)", e.Code, e.Message, e.Field)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewError creates a typed error with the given code.
func NewError(code ErrorCode, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// NewFieldError creates an invalid_request error naming the offending field.
func NewFieldError(field, format string, args ...any) *Error {
	return &Error{Code: CodeInvalidRequest, Field: field, Message: fmt.Sprintf(format, args...)}
}

// CodeOf extracts the ErrorCode from err, unwrapping as needed. Errors that
// are not *Error report CodeExecutionFailed: by the time an untyped error
// reaches a reporting edge it is a failure of the work, not of the protocol.
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeExecutionFailed
}

// IsRecoverable reports whether an in-band failure leaves the conversation
// loop able to continue to the next model turn.
func IsRecoverable(err error) bool {
	switch CodeOf(err) {
	case CodeUnknownTool, CodeInvalidArguments, CodeExecutionFailed:
		return true
	}
	return false
}
