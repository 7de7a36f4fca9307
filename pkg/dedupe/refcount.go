package dedupe

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// defaultAttachRetries bounds the optimistic read-then-update cycle for
// attach. Contention on a single record is short-lived (each cycle is one
// read plus one conditional write), so a small budget keeps
// ErrConflictExhausted meaningful. Configurable with WithAttachRetries.
const defaultAttachRetries = 3

// attach adds one reference to the record, linearized by the version
// counter: read the current version, then conditionally update. A version
// mismatch means a concurrent writer got there first; the cycle is retried
// up to the configured budget before surfacing ErrConflictExhausted.
func (s *service) attach(ctx context.Context, id uuid.UUID) (*FileRecord, error) {
	for attempt := 1; attempt <= s.attachRetries; attempt++ {
		record, err := s.repository.GetActiveRecord(ctx, id)
		if err != nil {
			return nil, &FileError{ID: id, Op: "attach", Err: err}
		}

		applied, err := s.repository.UpdateRecordCAS(ctx, id, record.Version, RecordUpdate{
			RefCount:  record.RefCount + 1,
			IsDeleted: false,
		})
		if err != nil {
			return nil, &FileError{ID: id, Op: "attach", Err: fmt.Errorf("conditional update: %w", err)}
		}
		if applied {
			record.RefCount++
			record.Version++
			return record, nil
		}

		s.logger.Debug("version conflict on attach, retrying",
			"record_id", id, "attempt", attempt, "budget", s.attachRetries)
	}

	return nil, &FileError{ID: id, Op: "attach", Err: ErrConflictExhausted}
}

// detach removes one reference under an exclusive row lock. The lock makes
// the branch (decrement vs soft-delete) atomic with the read that decides
// it: a record at one reference flips to RefCount 0 and IsDeleted true in a
// single update. Reports whether the record became deleted.
func (s *service) detach(ctx context.Context, id uuid.UUID) (bool, error) {
	var deleted bool
	err := s.repository.WithLock(ctx, id, func(record *FileRecord) (RecordUpdate, error) {
		if record.RefCount > 1 {
			return RecordUpdate{RefCount: record.RefCount - 1}, nil
		}
		deleted = true
		return RecordUpdate{RefCount: 0, IsDeleted: true}, nil
	})
	if err != nil {
		return false, &FileError{ID: id, Op: "detach", Err: err}
	}
	return deleted, nil
}
