package dedupe

import (
	"context"
	"io"

	"github.com/google/uuid"
)

// Service is the main interface of the deduplicated content store.
type Service interface {
	// Upload stores the stream's content, reusing an existing record when
	// byte-identical content is already stored. It reports whether a new
	// record was created (true) or a reference was attached to an existing
	// one (false).
	Upload(ctx context.Context, req UploadRequest) (*FileRecord, bool, error)

	// Delete detaches one reference from the record, soft-deleting it when
	// the count reaches zero. It reports whether the record became fully
	// deleted. Returns ErrNotFound for absent or already-deleted records.
	Delete(ctx context.Context, id uuid.UUID) (bool, error)

	// GetRecord returns the active record with the given id, or ErrNotFound.
	GetRecord(ctx context.Context, id uuid.UUID) (*FileRecord, error)

	// Download opens the stored bytes of an active record.
	Download(ctx context.Context, id uuid.UUID) (io.ReadCloser, *FileRecord, error)

	// StorageSummary computes the deduplication savings over active records.
	// With useCache, a cached summary is returned when present; the fresh
	// result is always written back to the cache.
	StorageSummary(ctx context.Context, useCache bool) (*StorageSummary, error)

	// Search returns a filtered, paginated listing of active records, most
	// recently uploaded first. Results are cached per distinct query and
	// served from the external index when one is configured and healthy.
	Search(ctx context.Context, filters SearchFilters) (*SearchResult, error)
}

// UploadRequest contains parameters for uploading content.
//
// Content must be seekable so its digest can be computed without consuming
// the stream. Filename and ContentType are display metadata only and do not
// participate in content identity; the upstream validation layer is assumed
// to have checked filename length, extension and size ceilings already.
type UploadRequest struct {
	Content     io.ReadSeeker
	Filename    string
	ContentType string
}
