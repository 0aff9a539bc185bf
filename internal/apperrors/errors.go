// Package apperrors defines the failure taxonomy shared by the catalog, library,
// auth and playback layers. None of these errors is fatal to the process.
package apperrors

import (
	"fmt"
	"sort"
	"strings"
)

// NetworkError reports a failed catalog request or an unexpected response shape.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network: %s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// PlaybackError reports that the media subsystem could not load or start a source.
type PlaybackError struct {
	TrackID int
	Err     error
}

func (e *PlaybackError) Error() string {
	return fmt.Sprintf("playback of track %d: %v", e.TrackID, e.Err)
}

func (e *PlaybackError) Unwrap() error { return e.Err }

// NotFoundError reports a reference to a playlist, track or account that does not exist.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	if e.ID == "" {
		return e.Resource + " not found"
	}
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
}

// NotFound builds a NotFoundError, formatting id with %v.
func NotFound(resource string, id any) *NotFoundError {
	if id == nil {
		return &NotFoundError{Resource: resource}
	}
	return &NotFoundError{Resource: resource, ID: fmt.Sprint(id)}
}

// ValidationError carries one message per offending field.
type ValidationError struct {
	Fields map[string]string `json:"fields"`
}

// NewValidationError returns an empty error map ready for Add.
func NewValidationError() *ValidationError {
	return &ValidationError{Fields: make(map[string]string)}
}

// Invalid builds a single-field ValidationError.
func Invalid(field, message string) *ValidationError {
	v := NewValidationError()
	v.Add(field, message)
	return v
}

// Add records message for field. The first message recorded for a field wins.
func (e *ValidationError) Add(field, message string) {
	if _, exists := e.Fields[field]; !exists {
		e.Fields[field] = message
	}
}

// HasErrors reports whether any field failed.
func (e *ValidationError) HasErrors() bool {
	return len(e.Fields) > 0
}

// Err returns e when it holds at least one field error, nil otherwise.
func (e *ValidationError) Err() error {
	if !e.HasErrors() {
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
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}
