// Package errors defines the belief-graph engine's error taxonomy as a
// small hierarchy of concrete types: one exported struct per failure class
// instead of bare errors.New/sentinel values, each carrying the context a
// caller needs to decide what to do.
package errors

import "fmt"

// ValidationError reports a precondition ingestion pipeline
// rejects before touching storage: missing required fields, malformed
// resolves_by, or a source outside the known vocabulary.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Message)
}

func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// NotFoundError reports that a referenced memory, edge, or event does not
// exist in storage — e.g. a derived_from ID that resolves to nothing.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.ID)
}

func NewNotFoundError(kind, id string) *NotFoundError {
	return &NotFoundError{Kind: kind, ID: id}
}

// ConflictError reports that ingestion found an existing memory the new
// content collides with — a hard duplicate, or a judge-confirmed duplicate
// within the dedup band.
type ConflictError struct {
	Reason        string
	DuplicateID   string
	CurrentState  string
	DuplicateText string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("conflict: %s (duplicate of %s, state=%s)", e.Reason, e.DuplicateID, e.CurrentState)
}

func NewConflictError(reason, duplicateID, currentState, duplicateText string) *ConflictError {
	return &ConflictError{
		Reason:        reason,
		DuplicateID:   duplicateID,
		CurrentState:  currentState,
		DuplicateText: duplicateText,
	}
}

// StorageTransientError wraps a storage-layer failure expected to clear on
// retry: a dropped connection, a statement timeout, a deadlock abort.
type StorageTransientError struct {
	Op    string
	Cause error
}

func (e *StorageTransientError) Error() string {
	return fmt.Sprintf("storage transient error during %s: %v", e.Op, e.Cause)
}

func (e *StorageTransientError) Unwrap() error { return e.Cause }

func NewStorageTransientError(op string, cause error) *StorageTransientError {
	return &StorageTransientError{Op: op, Cause: cause}
}

// OracleUnavailableError reports that the embedding/judge gateway could not
// be reached or exhausted its retry budget.
type OracleUnavailableError struct {
	Op    string
	Cause error
}

func (e *OracleUnavailableError) Error() string {
	return fmt.Sprintf("oracle unavailable during %s: %v", e.Op, e.Cause)
}

func (e *OracleUnavailableError) Unwrap() error { return e.Cause }

func NewOracleUnavailableError(op string, cause error) *OracleUnavailableError {
	return &OracleUnavailableError{Op: op, Cause: cause}
}

// InconsistencyError reports a belief-graph invariant violation detected at
// read or write time — e.g. a memory whose propagated confidence
// fell outside [0,1], or an edge referencing a memory that no longer exists.
type InconsistencyError struct {
	MemoryID string
	Detail   string
}

func (e *InconsistencyError) Error() string {
	return fmt.Sprintf("inconsistency on memory %s: %s", e.MemoryID, e.Detail)
}

func NewInconsistencyError(memoryID, detail string) *InconsistencyError {
	return &InconsistencyError{MemoryID: memoryID, Detail: detail}
}

// Retryable reports whether err is a class of failure worth retrying.
// Only StorageTransientError qualifies; a dropped OracleUnavailableError
// already exhausted its own retry budget before reaching the caller.
func Retryable(err error) bool {
	var t *StorageTransientError
	return asStorageTransient(err, &t)
}

func asStorageTransient(err error, target **StorageTransientError) bool {
	for err != nil {
		if t, ok := err.(*StorageTransientError); ok {
			*target = t
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
