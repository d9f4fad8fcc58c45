package engine

import (
	"errors"
	"fmt"
)

// ReplicationError represents a per-event failure detected while applying
// a remote batch.
//
// Replication errors include:
//   - Event ID conflict: the event_id is already recorded with different content
//   - Invalid event: the event is malformed (bad op, mismatched IDs, missing payload)
//
// A ReplicationError fails the single event; the rest of the batch is
// still applied.
type ReplicationError struct {
	// Code identifies the error category.
	Code ReplicationErrorCode

	// Message is a human-readable description.
	Message string

	// EventID identifies the offending event.
	EventID string

	// Table and RowID identify the target row, when known.
	Table string
	RowID string
}

// ReplicationErrorCode categorizes replication errors.
type ReplicationErrorCode string

const (
	// ErrCodeEventIDConflict indicates an event_id reused for different content.
	ErrCodeEventIDConflict ReplicationErrorCode = "EVENT_ID_CONFLICT"

	// ErrCodeInvalidEvent indicates a structurally invalid event.
	ErrCodeInvalidEvent ReplicationErrorCode = "INVALID_EVENT"
)

// Error implements the error interface.
func (e *ReplicationError) Error() string {
	if e.Table != "" {
		return fmt.Sprintf("%s: %s (event=%s, row=%s/%s)", e.Code, e.Message, e.EventID, e.Table, e.RowID)
	}
	return fmt.Sprintf("%s: %s (event=%s)", e.Code, e.Message, e.EventID)
}

// IsConflictError returns true if the error is an event ID conflict.
// Uses errors.As to handle wrapped errors.
func IsConflictError(err error) bool {
	var re *ReplicationError
	if errors.As(err, &re) {
		return re.Code == ErrCodeEventIDConflict
	}
	return false
}

// IsInvalidEventError returns true if the error is an invalid event error.
// Uses errors.As to handle wrapped errors.
func IsInvalidEventError(err error) bool {
	var re *ReplicationError
	if errors.As(err, &re) {
		return re.Code == ErrCodeInvalidEvent
	}
	return false
}

// NewConflictError creates a ReplicationError for event ID reuse.
func NewConflictError(eventID, table, rowID string) *ReplicationError {
	return &ReplicationError{
		Code:    ErrCodeEventIDConflict,
		Message: "event id already recorded with different content",
		EventID: eventID,
		Table:   table,
		RowID:   rowID,
	}
}

// NewInvalidEventError creates a ReplicationError for a malformed event.
func NewInvalidEventError(eventID, reason string) *ReplicationError {
	return &ReplicationError{
		Code:    ErrCodeInvalidEvent,
		Message: reason,
		EventID: eventID,
	}
}
