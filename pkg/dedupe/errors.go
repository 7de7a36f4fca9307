package dedupe

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Error types
var (
	// ErrNotFound indicates the referenced record is absent or already deleted
	ErrNotFound = errors.New("file record not found")

	// ErrDuplicateHash indicates a create lost the race on the content-hash
	// uniqueness constraint
	ErrDuplicateHash = errors.New("duplicate content hash")

	// ErrIntegrity indicates a hash collision with mismatched sizes, or a
	// creation race whose fallback read found no active record
	ErrIntegrity = errors.New("content integrity conflict")

	// ErrConflictExhausted indicates optimistic-lock retries were exceeded
	ErrConflictExhausted = errors.New("concurrent modification retries exhausted")

	// ErrValidation indicates malformed search or pagination parameters
	ErrValidation = errors.New("invalid search parameters")

	// ErrDependencyUnavailable indicates the external search index is down or
	// its circuit breaker is open
	ErrDependencyUnavailable = errors.New("search index unavailable")
)

// FileError represents an error from an operation on a file record.
// It carries the record id and operation name for diagnosis; internal
// lock and version state never appear in the message.
type FileError struct {
	ID  uuid.UUID
	Op  string
	Err error
}

func (e *FileError) Error() string {
	if e.ID == uuid.Nil {
		return fmt.Sprintf("file operation %s failed: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("file operation %s failed for record %s: %v", e.Op, e.ID, e.Err)
}

func (e *FileError) Unwrap() error {
	return e.Err
}
