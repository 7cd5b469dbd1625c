// Package errors provides custom error types for the perch client.
package errors

import (
	"errors"
	"fmt"
)

// Error codes as constants
const (
	ErrCodeTransport   = "TRANSPORT"
	ErrCodeAuth        = "AUTH"
	ErrCodeProtocol    = "PROTOCOL"
	ErrCodeApplication = "APPLICATION"
	ErrCodeStopped     = "STOPPED"
)

// Sentinel errors for common client states.
var (
	// ErrNotConnected is returned when a request is issued while the
	// transport is not open. The request is never enqueued.
	ErrNotConnected = &AppError{Code: ErrCodeTransport, Message: "not connected"}

	// ErrClientStopped is the rejection used for pending requests when the
	// client is stopped explicitly.
	ErrClientStopped = &AppError{Code: ErrCodeStopped, Message: "client stopped"}
)

// AppError represents a client error with a machine-readable code.
type AppError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the wrapped error for use with errors.Is and errors.As.
func (e *AppError) Unwrap() error {
	return e.Err
}

// Is matches AppErrors by code so the sentinels above work with errors.Is.
func (e *AppError) Is(target error) bool {
	var other *AppError
	if !errors.As(target, &other) {
		return false
	}
	return e.Code == other.Code && (other.Message == "" || e.Message == other.Message)
}

// Transport creates a transport-level error (socket closed, dial failed).
// Transport errors reject in-flight requests and drive reconnection; they
// are never fatal to the client.
func Transport(message string, err error) *AppError {
	return &AppError{
		Code:    ErrCodeTransport,
		Message: message,
		Err:     err,
	}
}

// Auth creates a handshake rejection error.
func Auth(message string) *AppError {
	return &AppError{
		Code:    ErrCodeAuth,
		Message: message,
	}
}

// Application creates an error for an ok:false response. It affects only
// the caller of the specific request, never the connection.
func Application(code, message string) *AppError {
	if code == "" {
		code = ErrCodeApplication
	}
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// CloseError describes a connection loss with the close code/reason the
// transport reported. Pending requests are rejected with it.
type CloseError struct {
	StatusCode int
	Reason     string
}

// Error implements the error interface.
func (e *CloseError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("connection closed (code %d)", e.StatusCode)
	}
	return fmt.Sprintf("connection closed (code %d): %s", e.StatusCode, e.Reason)
}

// Wrap wraps an existing error with additional context, returning an AppError.
func Wrap(err error, message string) *AppError {
	if err == nil {
		return nil
	}

	// If the error is already an AppError, preserve its code
	var appErr *AppError
	if errors.As(err, &appErr) {
		return &AppError{
			Code:    appErr.Code,
			Message: fmt.Sprintf("%s: %s", message, appErr.Message),
			Err:     err,
		}
	}

	return &AppError{
		Code:    ErrCodeTransport,
		Message: message,
		Err:     err,
	}
}
