package dedupe

import (
	"context"
	"io"
	"time"

	"github.com/google/uuid"
)

// Repository defines the interface for durable file-record persistence.
//
// The content-hash uniqueness constraint enforced by implementations is the
// single source of truth for "does this content already exist"; caches are
// never authoritative. The constraint covers deleted rows too (see the
// package documentation for the consequences).
type Repository interface {
	// CreateRecord inserts a new record. It returns ErrDuplicateHash when
	// the uniqueness constraint on ContentHash is violated, meaning a
	// concurrent writer created the record first.
	CreateRecord(ctx context.Context, record *FileRecord) error

	// GetActiveRecord returns the non-deleted record with the given id,
	// or ErrNotFound.
	GetActiveRecord(ctx context.Context, id uuid.UUID) (*FileRecord, error)

	// FindActiveByHash returns the non-deleted record matching the content
	// hash, or ErrNotFound.
	FindActiveByHash(ctx context.Context, hash string) (*FileRecord, error)

	// UpdateRecordCAS applies the update iff the stored version equals
	// expectedVersion, bumping the version on success. It reports whether
	// the update was applied.
	UpdateRecordCAS(ctx context.Context, id uuid.UUID, expectedVersion int64, update RecordUpdate) (bool, error)

	// WithLock runs fn with an exclusive lock on the active record with the
	// given id and applies the returned update with a version bump before
	// releasing the lock. Returns ErrNotFound when the record is absent or
	// deleted; an error from fn aborts without applying anything.
	WithLock(ctx context.Context, id uuid.UUID, fn func(record *FileRecord) (RecordUpdate, error)) error

	// AggregateSummary computes storage totals over active records:
	// TotalBytes as sum(size*ref_count) and DedupedBytes as sum(size).
	// SavedBytes and SavingsPercent are left for the caller to derive.
	AggregateSummary(ctx context.Context) (StorageSummary, error)

	// SearchRecords returns the filtered, paginated listing of active
	// records, most recently uploaded first. Filters are assumed already
	// validated and normalized.
	SearchRecords(ctx context.Context, filters SearchFilters) (*SearchResult, error)
}

// BlobStore defines the interface for the physical byte-storage backends.
// Keys are derived from the content hash plus file extension; the store
// makes no assumptions about layout beyond the opaque key.
type BlobStore interface {
	// Put stores the bytes read from r under the given key
	Put(ctx context.Context, key string, r io.Reader) error

	// Exists reports whether an object is stored under the key
	Exists(ctx context.Context, key string) (bool, error)

	// Open returns a reader over the stored bytes
	Open(ctx context.Context, key string) (io.ReadCloser, error)

	// Delete removes the stored bytes
	Delete(ctx context.Context, key string) error
}

// Cache defines the get/set/invalidate primitives used for derived state
// (storage summary, search pages). Implementations are injected, never
// package-level singletons, so tests can substitute a fake.
type Cache interface {
	Get(key string) (any, bool)
	Set(key string, value any, ttl time.Duration)
	Delete(key string)

	// DeletePrefix removes every entry whose key starts with prefix.
	// Used to invalidate all search pages wholesale on any mutation.
	DeletePrefix(prefix string)
}

// EventSink defines the fire-and-forget notification interface for the
// external indexing pipeline. Failures are logged by the service and never
// fail the mutation that triggered them.
type EventSink interface {
	// RecordCreated is fired when a new record is created
	RecordCreated(ctx context.Context, record *FileRecord) error

	// RecordDeleted is fired when a record becomes fully deleted or loses
	// a reference
	RecordDeleted(ctx context.Context, id uuid.UUID) error
}

// SearchIndex defines the optional external search accelerator. Its
// unavailability degrades to the direct repository query and is never
// surfaced to callers.
type SearchIndex interface {
	Search(ctx context.Context, filters SearchFilters) (*SearchResult, error)
}
