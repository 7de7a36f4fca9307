package dedupe

import (
	"time"

	"github.com/google/uuid"
)

// SearchSource identifies which backend produced a search result.
type SearchSource string

// Search source constants (typed).
const (
	SearchSourceDatabase SearchSource = "database"
	SearchSourceIndex    SearchSource = "index"
)

// FileRecord represents one unit of stored content. Byte-identical uploads
// share a single record; RefCount tracks how many logical owners it has.
type FileRecord struct {
	ID               uuid.UUID `json:"id"`
	ContentHash      string    `json:"content_hash"`
	Size             int64     `json:"size"`
	RefCount         int64     `json:"ref_count"`
	Version          int64     `json:"version"`
	IsDeleted        bool      `json:"is_deleted"`
	OriginalFilename string    `json:"original_filename"`
	ContentType      string    `json:"content_type"`
	UploadedAt       time.Time `json:"uploaded_at"`
	StorageKey       string    `json:"storage_key"`
}

// RecordUpdate holds the new values for the mutable fields of a record.
// Repositories apply it together with a version bump; Size, ContentHash and
// UploadedAt are immutable after creation and have no place here.
type RecordUpdate struct {
	RefCount  int64
	IsDeleted bool
}

// SearchFilters describes a filtered, paginated listing over active records.
// All filter fields are optional and combined with AND; nil or zero means
// the filter is absent.
type SearchFilters struct {
	Filename  string     `json:"filename,omitempty"`
	Extension string     `json:"extension,omitempty"`
	MinSize   *int64     `json:"min_size,omitempty"`
	MaxSize   *int64     `json:"max_size,omitempty"`
	StartDate *time.Time `json:"start_date,omitempty"`
	EndDate   *time.Time `json:"end_date,omitempty"`
	Page      int        `json:"page,omitempty"`
	PageSize  int        `json:"page_size,omitempty"`
}

// SearchItem is one row of a search result.
type SearchItem struct {
	ID               uuid.UUID `json:"id"`
	OriginalFilename string    `json:"original_filename"`
	ContentType      string    `json:"content_type"`
	Size             int64     `json:"size"`
	UploadedAt       time.Time `json:"uploaded_at"`
	RefCount         int64     `json:"ref_count"`
}

// SearchResult is a page of matching records plus pagination bookkeeping.
// Source reports which backend produced the page; FromCache is set when the
// payload was served verbatim from the cache coordinator.
type SearchResult struct {
	Items     []SearchItem `json:"items"`
	Total     int          `json:"total"`
	Page      int          `json:"page"`
	PageSize  int          `json:"page_size"`
	Source    SearchSource `json:"source"`
	FromCache bool         `json:"from_cache,omitempty"`
}

// StorageSummary reports the savings achieved by deduplication.
// TotalBytes is what storage would cost if every upload were kept;
// DedupedBytes is what is actually stored.
type StorageSummary struct {
	TotalBytes     int64   `json:"total_file_size"`
	DedupedBytes   int64   `json:"deduplicated_storage"`
	SavedBytes     int64   `json:"storage_saved"`
	SavingsPercent float64 `json:"savings_percentage"`
}
