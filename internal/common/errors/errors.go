// Package errors provides the standardized error kinds surfaced by the entry
// listener and the cash-payment confirmation workflow.
package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	// Listener side; recovered locally and never shown to the operator.
	ErrCodeDecodeError     ErrorCode = "DECODE_ERROR"
	ErrCodeConnectionError ErrorCode = "CONNECTION_ERROR"

	// Confirmation side.
	ErrCodeCodeFormat        ErrorCode = "CODE_FORMAT_ERROR"
	ErrCodeNotFound          ErrorCode = "NOT_FOUND"
	ErrCodeAlreadyAnswered   ErrorCode = "ALREADY_ANSWERED"
	ErrCodeRemoteUnavailable ErrorCode = "REMOTE_UNAVAILABLE"
	ErrCodePartialFailure    ErrorCode = "PARTIAL_FAILURE"
	ErrCodeStoreFailure      ErrorCode = "STORE_FAILURE"
	ErrCodeRemoteRejected    ErrorCode = "REMOTE_REJECTED"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`

	cause error
}

func (e *StandardError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("StandardError[%s]: %s: %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

func (e *StandardError) Unwrap() error {
	return e.cause
}

// WithMetadata attaches a key/value pair and returns the same error.
func (e *StandardError) WithMetadata(key string, value interface{}) *StandardError {
	if e.Metadata == nil {
		e.Metadata = make(map[string]interface{})
	}
	e.Metadata[key] = value
	return e
}

// ==========================
// 2. Error Constructors
// ==========================

// NewDecodeError reports a channel payload that could not be decoded.
func NewDecodeError(channel string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeDecodeError,
		Message:   "Channel payload could not be decoded",
		Details:   fmt.Sprintf("channel: %s, error: %v", channel, err),
		Retryable: false,
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

// NewConnectionError reports a lost or failed channel subscription.
func NewConnectionError(channel string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeConnectionError,
		Message:   "Channel subscription lost",
		Details:   fmt.Sprintf("channel: %s, error: %v", channel, err),
		Retryable: true,
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

// NewCodeFormatError reports scanned text that does not look like a payment code.
func NewCodeFormatError(scanned string) *StandardError {
	return &StandardError{
		Code:      ErrCodeCodeFormat,
		Message:   "Scanned text is not a payment code",
		Details:   fmt.Sprintf("scanned: %q", scanned),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewNotFoundError reports a well-formed code that matches no notification.
func NewNotFoundError(code string) *StandardError {
	return &StandardError{
		Code:      ErrCodeNotFound,
		Message:   "Code not found, rescan",
		Details:   fmt.Sprintf("code: %s", code),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewAlreadyAnsweredError is informational: the payment was confirmed before.
func NewAlreadyAnsweredError(notificationID int64) *StandardError {
	return &StandardError{
		Code:      ErrCodeAlreadyAnswered,
		Message:   "Payment already confirmed",
		Details:   fmt.Sprintf("notificationId: %d", notificationID),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewRemoteUnavailableError triggers the client-driven fallback path.
func NewRemoteUnavailableError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeRemoteUnavailable,
		Message:   "Remote confirmation unavailable",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

// NewPartialFailureError is fatal and requires manual reconciliation.
func NewPartialFailureError(notificationID int64, completed []string, failed string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodePartialFailure,
		Message:   "Confirmation partially applied, manual reconciliation required",
		Details:   fmt.Sprintf("notificationId: %d, completed: [%s], failed: %s, error: %v", notificationID, strings.Join(completed, ","), failed, err),
		Retryable: false,
		Metadata: map[string]interface{}{
			"notificationId": notificationID,
			"completedSteps": completed,
			"failedStep":     failed,
		},
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

// NewStoreFailureError reports a store that failed before anything was written.
func NewStoreFailureError(op string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeStoreFailure,
		Message:   "Store unavailable, nothing was written",
		Details:   fmt.Sprintf("op: %s, error: %v", op, err),
		Retryable: true,
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

// NewRemoteRejectedError reports a business error raised by the remote routine.
func NewRemoteRejectedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeRemoteRejected,
		Message:   "Remote confirmation rejected",
		Details:   err.Error(),
		Retryable: false,
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

// ==========================
// 3. Utility Functions
// ==========================

// AsStandard extracts a *StandardError from an error chain.
func AsStandard(err error) (*StandardError, bool) {
	var se *StandardError
	if stderrors.As(err, &se) {
		return se, true
	}
	return nil, false
}

// IsRetryableErrorCode reports whether an operator may simply try again.
func IsRetryableErrorCode(code ErrorCode) bool {
	switch code {
	case ErrCodeConnectionError,
		ErrCodeCodeFormat,
		ErrCodeNotFound,
		ErrCodeRemoteUnavailable,
		ErrCodeStoreFailure:
		return true
	default:
		return false
	}
}

// GetErrorCategory returns the category of the error code.
func GetErrorCategory(code ErrorCode) string {
	switch code {
	case ErrCodeDecodeError, ErrCodeConnectionError:
		return "LISTENER"
	case ErrCodeCodeFormat, ErrCodeNotFound, ErrCodeAlreadyAnswered:
		return "OPERATOR"
	case ErrCodeRemoteUnavailable, ErrCodeRemoteRejected:
		return "REMOTE"
	case ErrCodePartialFailure, ErrCodeStoreFailure:
		return "STORE"
	default:
		return "OTHER"
	}
}
