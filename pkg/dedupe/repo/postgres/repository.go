package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fileforge/dedupe/pkg/dedupe"
)

// DB is the connection surface the repository needs: plain statements plus
// the ability to open a transaction for row-locked updates. Both *pgxpool.Pool
// and *pgx.Conn satisfy it.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Repository implements dedupe.Repository using PostgreSQL.
//
// Expected schema (see migrations/0001_file_records.sql): table file_records
// with a plain UNIQUE constraint on content_hash. The constraint is not
// scoped to is_deleted = FALSE, so soft-deleted rows keep occupying their
// hash; CreateRecord maps that violation to ErrDuplicateHash either way.
type Repository struct {
	db DB
}

// New creates a new PostgreSQL repository
func New(db DB) dedupe.Repository {
	return &Repository{db: db}
}

// NewWithPool creates a new PostgreSQL repository backed by a connection pool
func NewWithPool(pool *pgxpool.Pool) dedupe.Repository {
	return &Repository{db: pool}
}

const recordColumns = `id, content_hash, size_bytes, ref_count, version, is_deleted,
	original_filename, content_type, uploaded_at, storage_key`

func scanRecord(row pgx.Row) (*dedupe.FileRecord, error) {
	var record dedupe.FileRecord
	err := row.Scan(
		&record.ID, &record.ContentHash, &record.Size, &record.RefCount,
		&record.Version, &record.IsDeleted, &record.OriginalFilename,
		&record.ContentType, &record.UploadedAt, &record.StorageKey)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, dedupe.ErrNotFound
		}
		return nil, err
	}
	return &record, nil
}

func (r *Repository) CreateRecord(ctx context.Context, record *dedupe.FileRecord) error {
	query := `
		INSERT INTO file_records (
			id, content_hash, size_bytes, ref_count, version, is_deleted,
			original_filename, content_type, uploaded_at, storage_key
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := r.db.Exec(ctx, query,
		record.ID, record.ContentHash, record.Size, record.RefCount,
		record.Version, record.IsDeleted, record.OriginalFilename,
		record.ContentType, record.UploadedAt, record.StorageKey)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" &&
			strings.Contains(pgErr.ConstraintName, "content_hash") {
			return dedupe.ErrDuplicateHash
		}
		return fmt.Errorf("create record: %w", err)
	}

	return nil
}

func (r *Repository) GetActiveRecord(ctx context.Context, id uuid.UUID) (*dedupe.FileRecord, error) {
	query := `SELECT ` + recordColumns + `
		FROM file_records WHERE id = $1 AND is_deleted = FALSE`
	return scanRecord(r.db.QueryRow(ctx, query, id))
}

func (r *Repository) FindActiveByHash(ctx context.Context, hash string) (*dedupe.FileRecord, error) {
	query := `SELECT ` + recordColumns + `
		FROM file_records WHERE content_hash = $1 AND is_deleted = FALSE`
	return scanRecord(r.db.QueryRow(ctx, query, hash))
}

func (r *Repository) UpdateRecordCAS(ctx context.Context, id uuid.UUID, expectedVersion int64, update dedupe.RecordUpdate) (bool, error) {
	query := `
		UPDATE file_records
		SET ref_count = $3, is_deleted = $4, version = version + 1
		WHERE id = $1 AND version = $2`

	tag, err := r.db.Exec(ctx, query, id, expectedVersion, update.RefCount, update.IsDeleted)
	if err != nil {
		return false, fmt.Errorf("conditional update: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *Repository) WithLock(ctx context.Context, id uuid.UUID, fn func(record *dedupe.FileRecord) (dedupe.RecordUpdate, error)) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `SELECT ` + recordColumns + `
		FROM file_records WHERE id = $1 AND is_deleted = FALSE FOR UPDATE`
	record, err := scanRecord(tx.QueryRow(ctx, query, id))
	if err != nil {
		return err
	}

	update, err := fn(record)
	if err != nil {
		return err
	}

	_, err = tx.Exec(ctx, `
		UPDATE file_records
		SET ref_count = $2, is_deleted = $3, version = version + 1
		WHERE id = $1`,
		id, update.RefCount, update.IsDeleted)
	if err != nil {
		return fmt.Errorf("locked update: %w", err)
	}

	return tx.Commit(ctx)
}

func (r *Repository) AggregateSummary(ctx context.Context) (dedupe.StorageSummary, error) {
	query := `
		SELECT COALESCE(SUM(size_bytes * ref_count), 0),
		       COALESCE(SUM(size_bytes), 0)
		FROM file_records WHERE is_deleted = FALSE`

	var summary dedupe.StorageSummary
	err := r.db.QueryRow(ctx, query).Scan(&summary.TotalBytes, &summary.DedupedBytes)
	if err != nil {
		return dedupe.StorageSummary{}, fmt.Errorf("aggregate summary: %w", err)
	}
	return summary, nil
}

// likeEscaper escapes the LIKE/ILIKE metacharacters so filter values match
// as literal substrings, the same semantics the in-memory repository gives.
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

func (r *Repository) SearchRecords(ctx context.Context, filters dedupe.SearchFilters) (*dedupe.SearchResult, error) {
	where := []string{"is_deleted = FALSE"}
	args := []any{}

	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filters.Filename != "" {
		where = append(where, "original_filename ILIKE "+arg("%"+escapeLike(filters.Filename)+"%"))
	}
	if filters.Extension != "" {
		where = append(where, "original_filename ILIKE "+arg("%."+escapeLike(filters.Extension)))
	}
	if filters.MinSize != nil {
		where = append(where, "size_bytes >= "+arg(*filters.MinSize))
	}
	if filters.MaxSize != nil {
		where = append(where, "size_bytes <= "+arg(*filters.MaxSize))
	}
	if filters.StartDate != nil {
		where = append(where, "uploaded_at >= "+arg(*filters.StartDate))
	}
	if filters.EndDate != nil {
		where = append(where, "uploaded_at <= "+arg(*filters.EndDate))
	}
	cond := strings.Join(where, " AND ")

	var total int
	err := r.db.QueryRow(ctx, "SELECT COUNT(*) FROM file_records WHERE "+cond, args...).Scan(&total)
	if err != nil {
		return nil, fmt.Errorf("count records: %w", err)
	}

	query := fmt.Sprintf(`
		SELECT id, original_filename, content_type, size_bytes, uploaded_at, ref_count
		FROM file_records WHERE %s
		ORDER BY uploaded_at DESC
		LIMIT %s OFFSET %s`,
		cond, arg(filters.PageSize), arg((filters.Page-1)*filters.PageSize))

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("search records: %w", err)
	}
	defer rows.Close()

	items := make([]dedupe.SearchItem, 0, filters.PageSize)
	for rows.Next() {
		var item dedupe.SearchItem
		err := rows.Scan(&item.ID, &item.OriginalFilename, &item.ContentType,
			&item.Size, &item.UploadedAt, &item.RefCount)
		if err != nil {
			return nil, fmt.Errorf("scan search row: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate search rows: %w", err)
	}

	return &dedupe.SearchResult{
		Items:    items,
		Total:    total,
		Page:     filters.Page,
		PageSize: filters.PageSize,
	}, nil
}
