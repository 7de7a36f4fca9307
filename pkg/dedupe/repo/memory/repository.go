package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/fileforge/dedupe/pkg/dedupe"
)

// Repository implements dedupe.Repository using in-memory storage.
// Intended for tests and development; a single mutex stands in for the
// row locks and transactions a durable store provides.
type Repository struct {
	mu      sync.RWMutex
	records map[uuid.UUID]*dedupe.FileRecord
	byHash  map[string]uuid.UUID // uniqueness constraint, deleted rows included
}

// New creates a new in-memory repository
func New() dedupe.Repository {
	return &Repository{
		records: make(map[uuid.UUID]*dedupe.FileRecord),
		byHash:  make(map[string]uuid.UUID),
	}
}

func (r *Repository) CreateRecord(ctx context.Context, record *dedupe.FileRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	// The hash map mirrors the durable unique constraint: it keeps deleted
	// rows, so their hashes still block new inserts.
	if _, exists := r.byHash[record.ContentHash]; exists {
		return dedupe.ErrDuplicateHash
	}

	recordCopy := *record
	r.records[record.ID] = &recordCopy
	r.byHash[record.ContentHash] = record.ID

	return nil
}

func (r *Repository) GetActiveRecord(ctx context.Context, id uuid.UUID) (*dedupe.FileRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	record, exists := r.records[id]
	if !exists || record.IsDeleted {
		return nil, dedupe.ErrNotFound
	}

	recordCopy := *record
	return &recordCopy, nil
}

func (r *Repository) FindActiveByHash(ctx context.Context, hash string) (*dedupe.FileRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, exists := r.byHash[hash]
	if !exists {
		return nil, dedupe.ErrNotFound
	}
	record := r.records[id]
	if record == nil || record.IsDeleted {
		return nil, dedupe.ErrNotFound
	}

	recordCopy := *record
	return &recordCopy, nil
}

func (r *Repository) UpdateRecordCAS(ctx context.Context, id uuid.UUID, expectedVersion int64, update dedupe.RecordUpdate) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	record, exists := r.records[id]
	if !exists {
		return false, dedupe.ErrNotFound
	}
	if record.Version != expectedVersion {
		return false, nil
	}

	record.RefCount = update.RefCount
	record.IsDeleted = update.IsDeleted
	record.Version++
	return true, nil
}

func (r *Repository) WithLock(ctx context.Context, id uuid.UUID, fn func(record *dedupe.FileRecord) (dedupe.RecordUpdate, error)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	record, exists := r.records[id]
	if !exists || record.IsDeleted {
		return dedupe.ErrNotFound
	}

	recordCopy := *record
	update, err := fn(&recordCopy)
	if err != nil {
		return err
	}

	record.RefCount = update.RefCount
	record.IsDeleted = update.IsDeleted
	record.Version++
	return nil
}

func (r *Repository) AggregateSummary(ctx context.Context) (dedupe.StorageSummary, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var summary dedupe.StorageSummary
	for _, record := range r.records {
		if record.IsDeleted {
			continue
		}
		summary.TotalBytes += record.Size * record.RefCount
		summary.DedupedBytes += record.Size
	}
	return summary, nil
}

func (r *Repository) SearchRecords(ctx context.Context, filters dedupe.SearchFilters) (*dedupe.SearchResult, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var matched []*dedupe.FileRecord
	for _, record := range r.records {
		if record.IsDeleted || !matches(record, filters) {
			continue
		}
		matched = append(matched, record)
	}

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].UploadedAt.After(matched[j].UploadedAt)
	})

	total := len(matched)
	offset := (filters.Page - 1) * filters.PageSize
	if offset > total {
		offset = total
	}
	end := offset + filters.PageSize
	if end > total {
		end = total
	}

	items := make([]dedupe.SearchItem, 0, end-offset)
	for _, record := range matched[offset:end] {
		items = append(items, dedupe.SearchItem{
			ID:               record.ID,
			OriginalFilename: record.OriginalFilename,
			ContentType:      record.ContentType,
			Size:             record.Size,
			UploadedAt:       record.UploadedAt,
			RefCount:         record.RefCount,
		})
	}

	return &dedupe.SearchResult{
		Items:    items,
		Total:    total,
		Page:     filters.Page,
		PageSize: filters.PageSize,
	}, nil
}

func matches(record *dedupe.FileRecord, filters dedupe.SearchFilters) bool {
	if filters.Filename != "" &&
		!strings.Contains(strings.ToLower(record.OriginalFilename), strings.ToLower(filters.Filename)) {
		return false
	}
	if filters.Extension != "" &&
		!strings.HasSuffix(strings.ToLower(record.OriginalFilename), "."+filters.Extension) {
		return false
	}
	if filters.MinSize != nil && record.Size < *filters.MinSize {
		return false
	}
	if filters.MaxSize != nil && record.Size > *filters.MaxSize {
		return false
	}
	if filters.StartDate != nil && record.UploadedAt.Before(*filters.StartDate) {
		return false
	}
	if filters.EndDate != nil && record.UploadedAt.After(*filters.EndDate) {
		return false
	}
	return true
}
