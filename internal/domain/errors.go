package domain

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrInFlight is returned when the same action is already outstanding.
	ErrInFlight = errors.New("request already in flight")
	// ErrUnmounted is returned when a result arrives after its view was closed.
	ErrUnmounted = errors.New("view closed before the request completed")
	// ErrNotFound is returned when the backend has no such resource.
	ErrNotFound = errors.New("not found")
)

// ValidationError collects client-side field failures. No network call is made
// when one is returned.
type ValidationError struct {
	Fields map[string]string `json:"fields"`
}

// Add records a failure for field.
func (e *ValidationError) Add(field, message string) {
	if e.Fields == nil {
		e.Fields = map[string]string{}
	}
	e.Fields[field] = message
}

// OrNil returns e as an error when it has at least one field, nil otherwise.
func (e *ValidationError) OrNil() error {
	if e == nil || len(e.Fields) == 0 {
		return nil
	}
	return e
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+" "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// ConflictError means the backend reported the entity is not in the expected state.
type ConflictError struct {
	Message string
}

func (e *ConflictError) Error() string {
	if e.Message == "" {
		return "conflict"
	}
	return "conflict: " + e.Message
}

// AuthorizationError is a gate denial. It is resolved to a redirect, never shown.
type AuthorizationError struct {
	Reason string
}

func (e *AuthorizationError) Error() string {
	return "not authorized: " + e.Reason
}

// TransportError is a network or backend failure unrelated to business state.
type TransportError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: backend returned status %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// RateLimitError means the caller has to wait before repeating the request.
type RateLimitError struct {
	RetryAfterSeconds int
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("too many requests; retry in %ds", e.RetryAfterSeconds)
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var verr *ValidationError
	return errors.As(err, &verr)
}

// IsConflict reports whether err is (or wraps) a ConflictError.
func IsConflict(err error) bool {
	var cerr *ConflictError
	return errors.As(err, &cerr)
}
