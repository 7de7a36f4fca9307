package dedupe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Pagination defaults for search.
const (
	defaultPageSize    = 20
	defaultMaxPageSize = 100
)

// defaultCacheTTL bounds how stale cached derived state may get when an
// invalidation is missed (e.g. process crash between commit and invalidate).
const defaultCacheTTL = 5 * time.Minute

// service implements the Service interface
type service struct {
	repository Repository
	blobStore  BlobStore
	cache      Cache
	events     EventSink
	index      SearchIndex
	breaker    *breaker
	hasher     *Hasher
	logger     *slog.Logger

	attachRetries int
	cacheTTL      time.Duration
	maxPageSize   int
}

// Option represents a functional option for configuring the service
type Option func(*service) error

// WithRepository sets the record repository for the service
func WithRepository(repo Repository) Option {
	return func(s *service) error {
		s.repository = repo
		return nil
	}
}

// WithBlobStore sets the byte-storage backend for the service
func WithBlobStore(store BlobStore) Option {
	return func(s *service) error {
		s.blobStore = store
		return nil
	}
}

// WithCache sets the cache coordinator used for derived state
func WithCache(cache Cache) Option {
	return func(s *service) error {
		s.cache = cache
		return nil
	}
}

// WithEventSink sets the notification sink for record lifecycle events
func WithEventSink(sink EventSink) Option {
	return func(s *service) error {
		s.events = sink
		return nil
	}
}

// WithSearchIndex sets the optional external search index
func WithSearchIndex(index SearchIndex) Option {
	return func(s *service) error {
		s.index = index
		return nil
	}
}

// WithBreakerPolicy tunes the circuit breaker guarding the search index.
// Zero values keep the defaults.
func WithBreakerPolicy(threshold int, window, cooldown time.Duration) Option {
	return func(s *service) error {
		s.breaker = newBreaker(threshold, window, cooldown)
		return nil
	}
}

// WithHashAlgorithm selects the content-hash algorithm ("sha256" or "md5")
func WithHashAlgorithm(algorithm string) Option {
	return func(s *service) error {
		hasher, err := NewHasher(algorithm)
		if err != nil {
			return err
		}
		s.hasher = hasher
		return nil
	}
}

// WithLogger sets the structured logger for the service
func WithLogger(logger *slog.Logger) Option {
	return func(s *service) error {
		if logger != nil {
			s.logger = logger
		}
		return nil
	}
}

// WithAttachRetries sets the retry budget for the optimistic attach cycle
func WithAttachRetries(n int) Option {
	return func(s *service) error {
		if n < 1 {
			return fmt.Errorf("attach retry budget must be at least 1, got %d", n)
		}
		s.attachRetries = n
		return nil
	}
}

// WithCacheTTL sets the time-to-live for cached summaries and search pages
func WithCacheTTL(ttl time.Duration) Option {
	return func(s *service) error {
		if ttl > 0 {
			s.cacheTTL = ttl
		}
		return nil
	}
}

// WithMaxPageSize caps the page size accepted by Search
func WithMaxPageSize(n int) Option {
	return func(s *service) error {
		if n < 1 {
			return fmt.Errorf("max page size must be at least 1, got %d", n)
		}
		s.maxPageSize = n
		return nil
	}
}

// New creates a new service instance with the given options
func New(options ...Option) (Service, error) {
	hasher, _ := NewHasher("sha256")
	s := &service{
		events:        NewNoopEventSink(),
		breaker:       newBreaker(0, 0, 0),
		hasher:        hasher,
		logger:        slog.Default(),
		attachRetries: defaultAttachRetries,
		cacheTTL:      defaultCacheTTL,
		maxPageSize:   defaultMaxPageSize,
	}

	for _, option := range options {
		if err := option(s); err != nil {
			return nil, err
		}
	}

	if s.repository == nil {
		return nil, errors.New("repository is required")
	}
	if s.blobStore == nil {
		return nil, errors.New("blob store is required")
	}
	if s.cache == nil {
		return nil, errors.New("cache is required")
	}

	return s, nil
}

// Upload stores content with deduplication: identical bytes become one
// record shared by reference count. The uniqueness constraint on the
// content hash is the single source of truth for existence; the lookup
// before create is an optimization, and losing the create race falls back
// to attaching to whichever record won.
func (s *service) Upload(ctx context.Context, req UploadRequest) (*FileRecord, bool, error) {
	hash, size, err := s.hasher.Hash(req.Content)
	if err != nil {
		return nil, false, &FileError{Op: "upload", Err: fmt.Errorf("hash content: %w", err)}
	}
	s.logger.Info("upload requested",
		"filename", req.Filename, "size", size, "content_hash", hash)

	existing, err := s.repository.FindActiveByHash(ctx, hash)
	switch {
	case err == nil:
		record, err := s.attachExisting(ctx, existing, size, hash)
		if err != nil {
			return nil, false, err
		}
		s.invalidateDerived()
		return record, false, nil
	case !errors.Is(err, ErrNotFound):
		return nil, false, &FileError{Op: "upload", Err: fmt.Errorf("lookup by hash: %w", err)}
	}

	key := StorageKey(hash, req.Filename)
	if _, err := req.Content.Seek(0, io.SeekStart); err != nil {
		return nil, false, &FileError{Op: "upload", Err: fmt.Errorf("rewind stream: %w", err)}
	}
	if err := s.blobStore.Put(ctx, key, req.Content); err != nil {
		return nil, false, &FileError{Op: "upload", Err: fmt.Errorf("store bytes: %w", err)}
	}

	record := &FileRecord{
		ID:               uuid.New(),
		ContentHash:      hash,
		Size:             size,
		RefCount:         1,
		OriginalFilename: req.Filename,
		ContentType:      req.ContentType,
		UploadedAt:       time.Now().UTC(),
		StorageKey:       key,
	}

	err = s.repository.CreateRecord(ctx, record)
	if err == nil {
		s.logger.Info("created new file record", "record_id", record.ID, "content_hash", hash)
		s.invalidateDerived()
		s.notifyCreated(ctx, record)
		return record, true, nil
	}
	if !errors.Is(err, ErrDuplicateHash) {
		return nil, false, &FileError{Op: "upload", Err: fmt.Errorf("create record: %w", err)}
	}

	// A concurrent writer created the record between lookup and create; the
	// blob write is idempotent (same key for same bytes), so fall back to
	// attaching to the winner.
	s.logger.Warn("duplicate hash on create, attaching to concurrent record", "content_hash", hash)
	winner, err := s.repository.FindActiveByHash(ctx, hash)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			// The winner was deleted in the interim, or the hash belongs to a
			// soft-deleted row that still occupies the uniqueness constraint.
			return nil, false, &FileError{Op: "upload",
				Err: fmt.Errorf("%w: no active record for hash %s after duplicate conflict", ErrIntegrity, hash)}
		}
		return nil, false, &FileError{Op: "upload", Err: fmt.Errorf("lookup after conflict: %w", err)}
	}

	attached, err := s.attachExisting(ctx, winner, size, hash)
	if err != nil {
		return nil, false, err
	}
	s.invalidateDerived()
	return attached, false, nil
}

// attachExisting verifies the size of a record discovered by hash before
// attaching to it. Equal hashes with different sizes mean a broken hash
// function or a corrupted record; fail fast rather than trust either.
func (s *service) attachExisting(ctx context.Context, existing *FileRecord, size int64, hash string) (*FileRecord, error) {
	if existing.Size != size {
		return nil, &FileError{ID: existing.ID, Op: "upload",
			Err: fmt.Errorf("%w: uploaded size %d does not match stored size %d for hash %s",
				ErrIntegrity, size, existing.Size, hash)}
	}

	record, err := s.attach(ctx, existing.ID)
	if err != nil {
		return nil, err
	}
	s.logger.Info("attached reference to existing record",
		"record_id", record.ID, "ref_count", record.RefCount)
	return record, nil
}

// Delete detaches one reference, soft-deleting the record when the count
// reaches zero. The stored bytes are never removed here; physical blob
// cleanup belongs to an external garbage-collection job.
func (s *service) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	if _, err := s.repository.GetActiveRecord(ctx, id); err != nil {
		return false, &FileError{ID: id, Op: "delete", Err: err}
	}

	deleted, err := s.detach(ctx, id)
	if err != nil {
		return false, err
	}

	s.logger.Info("detached reference", "record_id", id, "fully_deleted", deleted)
	s.invalidateDerived()
	s.notifyDeleted(ctx, id)
	return deleted, nil
}

func (s *service) GetRecord(ctx context.Context, id uuid.UUID) (*FileRecord, error) {
	record, err := s.repository.GetActiveRecord(ctx, id)
	if err != nil {
		return nil, &FileError{ID: id, Op: "get", Err: err}
	}
	return record, nil
}

func (s *service) Download(ctx context.Context, id uuid.UUID) (io.ReadCloser, *FileRecord, error) {
	record, err := s.repository.GetActiveRecord(ctx, id)
	if err != nil {
		return nil, nil, &FileError{ID: id, Op: "download", Err: err}
	}

	rc, err := s.blobStore.Open(ctx, record.StorageKey)
	if err != nil {
		return nil, nil, &FileError{ID: id, Op: "download", Err: fmt.Errorf("open stored bytes: %w", err)}
	}
	return rc, record, nil
}

// StorageSummary reports total bytes if undeduplicated vs actually stored.
func (s *service) StorageSummary(ctx context.Context, useCache bool) (*StorageSummary, error) {
	if useCache {
		if v, ok := s.cache.Get(summaryCacheKey); ok {
			if cached, ok := v.(*StorageSummary); ok {
				hit := *cached
				return &hit, nil
			}
		}
	}

	summary, err := s.repository.AggregateSummary(ctx)
	if err != nil {
		return nil, &FileError{Op: "summary", Err: err}
	}

	summary.SavedBytes = summary.TotalBytes - summary.DedupedBytes
	if summary.TotalBytes > 0 {
		pct := float64(summary.SavedBytes) / float64(summary.TotalBytes) * 100
		summary.SavingsPercent = math.Round(pct*100) / 100
	}

	// Cache a copy so callers mutating the returned struct cannot poison
	// the cached entry.
	entry := summary
	s.cache.Set(summaryCacheKey, &entry, s.cacheTTL)
	return &summary, nil
}

// Search serves filtered listings through the cache coordinator. On a miss
// the external index is tried first when configured and its breaker allows;
// index failures degrade to the direct repository query, marked with the
// database source, and the fallback result is still cached.
func (s *service) Search(ctx context.Context, filters SearchFilters) (*SearchResult, error) {
	normalized, err := normalizeFilters(filters, s.maxPageSize)
	if err != nil {
		return nil, err
	}

	key := searchCacheKey(normalized)
	if v, ok := s.cache.Get(key); ok {
		if cached, ok := v.(*SearchResult); ok {
			hit := *cached
			hit.FromCache = true
			return &hit, nil
		}
	}

	result, err := s.searchBackend(ctx, normalized)
	if err != nil {
		return nil, &FileError{Op: "search", Err: err}
	}

	entry := *result
	s.cache.Set(key, &entry, s.cacheTTL)
	return result, nil
}

func (s *service) searchBackend(ctx context.Context, filters SearchFilters) (*SearchResult, error) {
	if s.index != nil {
		if !s.breaker.Allow() {
			s.logger.Debug("search index circuit open, using database", "error", ErrDependencyUnavailable)
		} else {
			result, err := s.index.Search(ctx, filters)
			if err == nil {
				s.breaker.RecordSuccess()
				result.Source = SearchSourceIndex
				return result, nil
			}
			s.breaker.RecordFailure()
			s.logger.Warn("search index failed, falling back to database", "error", err)
		}
	}

	result, err := s.repository.SearchRecords(ctx, filters)
	if err != nil {
		return nil, err
	}
	result.Source = SearchSourceDatabase
	return result, nil
}

// normalizeFilters validates filter parameters and applies pagination
// defaults and bounds. The returned filters are what cache keys and backend
// queries see, so equivalent queries normalize identically.
func normalizeFilters(f SearchFilters, maxPageSize int) (SearchFilters, error) {
	if f.Page < 0 || f.PageSize < 0 {
		return f, fmt.Errorf("%w: page and page_size must be positive", ErrValidation)
	}
	if f.MinSize != nil && *f.MinSize < 0 {
		return f, fmt.Errorf("%w: min_size must not be negative", ErrValidation)
	}
	if f.MinSize != nil && f.MaxSize != nil && *f.MinSize > *f.MaxSize {
		return f, fmt.Errorf("%w: min_size %d greater than max_size %d", ErrValidation, *f.MinSize, *f.MaxSize)
	}
	if f.StartDate != nil && f.EndDate != nil && f.StartDate.After(*f.EndDate) {
		return f, fmt.Errorf("%w: start_date after end_date", ErrValidation)
	}

	if f.Page == 0 {
		f.Page = 1
	}
	if f.PageSize == 0 {
		f.PageSize = defaultPageSize
	}
	if f.PageSize > maxPageSize {
		f.PageSize = maxPageSize
	}
	f.Extension = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(f.Extension), "."))
	return f, nil
}

// invalidateDerived drops all derived state after a successful mutation:
// the summary key and every cached search page, since any mutation can
// change any filtered result set.
func (s *service) invalidateDerived() {
	s.cache.Delete(summaryCacheKey)
	s.cache.DeletePrefix(searchKeyPrefix)
}

// Notification failures never fail the mutation that triggered them.

func (s *service) notifyCreated(ctx context.Context, record *FileRecord) {
	if err := s.events.RecordCreated(ctx, record); err != nil {
		s.logger.Warn("record-created notification failed", "record_id", record.ID, "error", err)
	}
}

func (s *service) notifyDeleted(ctx context.Context, id uuid.UUID) {
	if err := s.events.RecordDeleted(ctx, id); err != nil {
		s.logger.Warn("record-deleted notification failed", "record_id", id, "error", err)
	}
}
