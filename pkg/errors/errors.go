// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package errors defines the error taxonomy shared by the ledger sources,
// the task cache and the HTTP API.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error types
const (
	// ErrInvalidArgument is returned when an invalid argument is provided
	ErrInvalidArgument = "invalid_argument"

	// ErrSourceUnavailable is returned when the transaction source is unreachable or timed out
	ErrSourceUnavailable = "source_unavailable"

	// ErrDecodeFailure is returned when a raw transaction is malformed
	ErrDecodeFailure = "decode_failure"

	// ErrSyncFailure is returned when a backfill could not complete
	ErrSyncFailure = "sync_failure"

	// ErrNotInitialized is returned when a query needs a backfill and the backfill failed
	ErrNotInitialized = "not_initialized"

	// ErrSessionNotFound is returned when an operation requires a session that does not exist
	ErrSessionNotFound = "session_not_found"

	// ErrInternal is returned when there is an internal error
	ErrInternal = "internal"
)

// Error represents an error in the application
type Error struct {
	// Type is the error type
	Type string

	// Message is the error message
	Message string

	// Cause is the underlying error
	Cause error
}

// Error returns the error message
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %s", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new error
func NewError(errorType, message string, cause error) *Error {
	return &Error{
		Type:    errorType,
		Message: message,
		Cause:   cause,
	}
}

// NewInvalidArgumentError creates a new invalid argument error
func NewInvalidArgumentError(message string, cause error) *Error {
	return NewError(ErrInvalidArgument, message, cause)
}

// NewSourceUnavailableError creates a new source unavailable error
func NewSourceUnavailableError(message string, cause error) *Error {
	return NewError(ErrSourceUnavailable, message, cause)
}

// NewDecodeFailureError creates a new decode failure error
func NewDecodeFailureError(message string, cause error) *Error {
	return NewError(ErrDecodeFailure, message, cause)
}

// NewSyncFailureError creates a new sync failure error
func NewSyncFailureError(message string, cause error) *Error {
	return NewError(ErrSyncFailure, message, cause)
}

// NewNotInitializedError creates a new not initialized error
func NewNotInitializedError(message string, cause error) *Error {
	return NewError(ErrNotInitialized, message, cause)
}

// NewSessionNotFoundError creates a new session not found error
func NewSessionNotFoundError(message string, cause error) *Error {
	return NewError(ErrSessionNotFound, message, cause)
}

// NewInternalError creates a new internal error
func NewInternalError(message string, cause error) *Error {
	return NewError(ErrInternal, message, cause)
}

// hasType reports whether any *Error in err's chain has the given type.
func hasType(err error, errorType string) bool {
	for err != nil {
		var e *Error
		if !errors.As(err, &e) {
			return false
		}
		if e.Type == errorType {
			return true
		}
		err = e.Cause
	}
	return false
}

// IsInvalidArgument checks if the error is an invalid argument error
func IsInvalidArgument(err error) bool {
	return hasType(err, ErrInvalidArgument)
}

// IsSourceUnavailable checks if the error is a source unavailable error
func IsSourceUnavailable(err error) bool {
	return hasType(err, ErrSourceUnavailable)
}

// IsDecodeFailure checks if the error is a decode failure error
func IsDecodeFailure(err error) bool {
	return hasType(err, ErrDecodeFailure)
}

// IsSyncFailure checks if the error is a sync failure error
func IsSyncFailure(err error) bool {
	return hasType(err, ErrSyncFailure)
}

// IsNotInitialized checks if the error is a not initialized error
func IsNotInitialized(err error) bool {
	return hasType(err, ErrNotInitialized)
}

// IsSessionNotFound checks if the error is a session not found error
func IsSessionNotFound(err error) bool {
	return hasType(err, ErrSessionNotFound)
}

// IsInternal checks if the error is an internal error
func IsInternal(err error) bool {
	return hasType(err, ErrInternal)
}

// Code returns the HTTP status code that best describes err.
// Only the outermost *Error decides the code; anything else is a 500.
func Code(err error) int {
	var e *Error
	if !errors.As(err, &e) {
		return http.StatusInternalServerError
	}
	switch e.Type {
	case ErrInvalidArgument:
		return http.StatusBadRequest
	case ErrSessionNotFound:
		return http.StatusNotFound
	case ErrSourceUnavailable:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
