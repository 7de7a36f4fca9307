package memory

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fileforge/dedupe/pkg/dedupe"
)

func newRecord(hash string, size int64) *dedupe.FileRecord {
	return &dedupe.FileRecord{
		ID:               uuid.New(),
		ContentHash:      hash,
		Size:             size,
		RefCount:         1,
		OriginalFilename: hash + ".bin",
		ContentType:      "application/octet-stream",
		UploadedAt:       time.Now().UTC(),
		StorageKey:       hash + ".bin",
	}
}

func TestCreateAndGetRecord(t *testing.T) {
	repo := New()
	ctx := context.Background()

	record := newRecord("hash-a", 100)
	require.NoError(t, repo.CreateRecord(ctx, record))

	got, err := repo.GetActiveRecord(ctx, record.ID)
	require.NoError(t, err)
	assert.Equal(t, record.ContentHash, got.ContentHash)
	assert.Equal(t, record.Size, got.Size)

	// Returned records are copies, not aliases of stored state.
	got.RefCount = 99
	again, err := repo.GetActiveRecord(ctx, record.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), again.RefCount)
}

func TestCreateRecordDuplicateHash(t *testing.T) {
	repo := New()
	ctx := context.Background()

	require.NoError(t, repo.CreateRecord(ctx, newRecord("hash-dup", 10)))

	err := repo.CreateRecord(ctx, newRecord("hash-dup", 10))
	assert.ErrorIs(t, err, dedupe.ErrDuplicateHash)
}

func TestDuplicateHashCoversDeletedRows(t *testing.T) {
	repo := New()
	ctx := context.Background()

	record := newRecord("hash-deleted", 10)
	require.NoError(t, repo.CreateRecord(ctx, record))

	err := repo.WithLock(ctx, record.ID, func(r *dedupe.FileRecord) (dedupe.RecordUpdate, error) {
		return dedupe.RecordUpdate{RefCount: 0, IsDeleted: true}, nil
	})
	require.NoError(t, err)

	// The uniqueness constraint is not scoped to active rows.
	err = repo.CreateRecord(ctx, newRecord("hash-deleted", 10))
	assert.ErrorIs(t, err, dedupe.ErrDuplicateHash)
}

func TestFindActiveByHash(t *testing.T) {
	repo := New()
	ctx := context.Background()

	record := newRecord("hash-find", 10)
	require.NoError(t, repo.CreateRecord(ctx, record))

	got, err := repo.FindActiveByHash(ctx, "hash-find")
	require.NoError(t, err)
	assert.Equal(t, record.ID, got.ID)

	_, err = repo.FindActiveByHash(ctx, "hash-missing")
	assert.ErrorIs(t, err, dedupe.ErrNotFound)
}

func TestFindActiveByHashExcludesDeleted(t *testing.T) {
	repo := New()
	ctx := context.Background()

	record := newRecord("hash-soft", 10)
	require.NoError(t, repo.CreateRecord(ctx, record))
	err := repo.WithLock(ctx, record.ID, func(r *dedupe.FileRecord) (dedupe.RecordUpdate, error) {
		return dedupe.RecordUpdate{RefCount: 0, IsDeleted: true}, nil
	})
	require.NoError(t, err)

	_, err = repo.FindActiveByHash(ctx, "hash-soft")
	assert.ErrorIs(t, err, dedupe.ErrNotFound)
}

func TestUpdateRecordCAS(t *testing.T) {
	repo := New()
	ctx := context.Background()

	record := newRecord("hash-cas", 10)
	require.NoError(t, repo.CreateRecord(ctx, record))

	ok, err := repo.UpdateRecordCAS(ctx, record.ID, record.Version, dedupe.RecordUpdate{RefCount: 2})
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := repo.GetActiveRecord(ctx, record.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.RefCount)
	assert.Equal(t, record.Version+1, got.Version)

	// A stale version must not apply and must not error.
	ok, err = repo.UpdateRecordCAS(ctx, record.ID, record.Version, dedupe.RecordUpdate{RefCount: 7})
	require.NoError(t, err)
	assert.False(t, ok)

	got, err = repo.GetActiveRecord(ctx, record.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.RefCount)
}

func TestUpdateRecordCASUnknownID(t *testing.T) {
	repo := New()

	_, err := repo.UpdateRecordCAS(context.Background(), uuid.New(), 0, dedupe.RecordUpdate{RefCount: 1})
	assert.ErrorIs(t, err, dedupe.ErrNotFound)
}

func TestWithLockAppliesUpdate(t *testing.T) {
	repo := New()
	ctx := context.Background()

	record := newRecord("hash-lock", 10)
	record.RefCount = 3
	require.NoError(t, repo.CreateRecord(ctx, record))

	err := repo.WithLock(ctx, record.ID, func(r *dedupe.FileRecord) (dedupe.RecordUpdate, error) {
		assert.Equal(t, int64(3), r.RefCount)
		return dedupe.RecordUpdate{RefCount: r.RefCount - 1}, nil
	})
	require.NoError(t, err)

	got, err := repo.GetActiveRecord(ctx, record.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.RefCount)
}

func TestWithLockPropagatesCallbackError(t *testing.T) {
	repo := New()
	ctx := context.Background()

	record := newRecord("hash-lock-err", 10)
	require.NoError(t, repo.CreateRecord(ctx, record))

	wantErr := fmt.Errorf("callback failed")
	err := repo.WithLock(ctx, record.ID, func(r *dedupe.FileRecord) (dedupe.RecordUpdate, error) {
		return dedupe.RecordUpdate{}, wantErr
	})
	assert.ErrorIs(t, err, wantErr)

	// Failed callbacks leave the record untouched.
	got, err := repo.GetActiveRecord(ctx, record.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.RefCount)
}

func TestWithLockUnknownOrDeleted(t *testing.T) {
	repo := New()
	ctx := context.Background()

	err := repo.WithLock(ctx, uuid.New(), func(r *dedupe.FileRecord) (dedupe.RecordUpdate, error) {
		return dedupe.RecordUpdate{}, nil
	})
	assert.ErrorIs(t, err, dedupe.ErrNotFound)

	record := newRecord("hash-lock-gone", 10)
	require.NoError(t, repo.CreateRecord(ctx, record))
	require.NoError(t, repo.WithLock(ctx, record.ID, func(r *dedupe.FileRecord) (dedupe.RecordUpdate, error) {
		return dedupe.RecordUpdate{RefCount: 0, IsDeleted: true}, nil
	}))

	err = repo.WithLock(ctx, record.ID, func(r *dedupe.FileRecord) (dedupe.RecordUpdate, error) {
		return dedupe.RecordUpdate{}, nil
	})
	assert.ErrorIs(t, err, dedupe.ErrNotFound)
}

func TestAggregateSummary(t *testing.T) {
	repo := New()
	ctx := context.Background()

	shared := newRecord("hash-shared", 1000)
	shared.RefCount = 3
	require.NoError(t, repo.CreateRecord(ctx, shared))

	single := newRecord("hash-single", 500)
	require.NoError(t, repo.CreateRecord(ctx, single))

	gone := newRecord("hash-gone", 9999)
	require.NoError(t, repo.CreateRecord(ctx, gone))
	require.NoError(t, repo.WithLock(ctx, gone.ID, func(r *dedupe.FileRecord) (dedupe.RecordUpdate, error) {
		return dedupe.RecordUpdate{RefCount: 0, IsDeleted: true}, nil
	}))

	summary, err := repo.AggregateSummary(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3500), summary.TotalBytes)
	assert.Equal(t, int64(1500), summary.DedupedBytes)
}

func TestSearchRecordsPaginationAndOrder(t *testing.T) {
	repo := New()
	ctx := context.Background()
	base := time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		record := newRecord(fmt.Sprintf("hash-page-%d", i), int64(100+i))
		record.OriginalFilename = fmt.Sprintf("file-%d.txt", i)
		record.UploadedAt = base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, repo.CreateRecord(ctx, record))
	}

	result, err := repo.SearchRecords(ctx, dedupe.SearchFilters{Page: 1, PageSize: 2})
	require.NoError(t, err)
	assert.Equal(t, 5, result.Total)
	require.Len(t, result.Items, 2)
	assert.Equal(t, "file-4.txt", result.Items[0].OriginalFilename)
	assert.Equal(t, "file-3.txt", result.Items[1].OriginalFilename)

	result, err = repo.SearchRecords(ctx, dedupe.SearchFilters{Page: 3, PageSize: 2})
	require.NoError(t, err)
	require.Len(t, result.Items, 1)
	assert.Equal(t, "file-0.txt", result.Items[0].OriginalFilename)

	// A page past the end is empty, not an error.
	result, err = repo.SearchRecords(ctx, dedupe.SearchFilters{Page: 9, PageSize: 2})
	require.NoError(t, err)
	assert.Empty(t, result.Items)
	assert.Equal(t, 5, result.Total)
}

func TestSearchRecordsDateRange(t *testing.T) {
	repo := New()
	ctx := context.Background()

	old := newRecord("hash-old", 10)
	old.UploadedAt = time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)
	require.NoError(t, repo.CreateRecord(ctx, old))

	recent := newRecord("hash-recent", 10)
	recent.UploadedAt = time.Date(2026, 5, 10, 0, 0, 0, 0, time.UTC)
	require.NoError(t, repo.CreateRecord(ctx, recent))

	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	result, err := repo.SearchRecords(ctx, dedupe.SearchFilters{StartDate: &start, Page: 1, PageSize: 20})
	require.NoError(t, err)
	require.Equal(t, 1, result.Total)
	assert.Equal(t, recent.ID, result.Items[0].ID)
}
