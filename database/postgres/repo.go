// Package postgres implements filekeep.MetaDataRepo on PostgreSQL using pgx.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sagarc03/filekeep"
)

const tableName = "file_records"

const recordColumns = `id, owner_id, name, content_type, declared_size, size, checksum, blob_key,
	state, version, created_at, updated_at, finalized_at, delete_requested_at`

const uniqueViolation = "23505"

type Repo struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) *Repo {
	return &Repo{pool: pool}
}

// Ping verifies database connectivity
func (r *Repo) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

func scanRecord(row pgx.Row) (filekeep.FileRecord, error) {
	var m filekeep.FileRecord
	var state string

	err := row.Scan(
		&m.ID, &m.OwnerID, &m.Name, &m.ContentType, &m.DeclaredSize, &m.Size, &m.Checksum, &m.BlobKey,
		&state, &m.Version, &m.CreatedAt, &m.UpdatedAt, &m.FinalizedAt, &m.DeleteRequestedAt,
	)
	if err != nil {
		return filekeep.FileRecord{}, err
	}

	m.State = filekeep.State(state)
	return m, nil
}

func (r *Repo) Allocate(ctx context.Context, p filekeep.AllocateParams) (filekeep.FileRecord, error) {
	query := fmt.Sprintf(`
		INSERT INTO %s (id, owner_id, name, content_type, declared_size, blob_key, state, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 1)
		RETURNING %s
	`, tableName, recordColumns)

	m, err := scanRecord(r.pool.QueryRow(ctx, query,
		uuid.New(), p.OwnerID, p.Name, p.ContentType, p.DeclaredSize, p.BlobKey, string(filekeep.StatePending),
	))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return filekeep.FileRecord{}, fmt.Errorf("allocate: %w: blob key %s already used", filekeep.ErrConflict, p.BlobKey)
		}
		return filekeep.FileRecord{}, fmt.Errorf("allocate: %w", err)
	}

	return m, nil
}

func (r *Repo) Finalize(ctx context.Context, id uuid.UUID, expectedVersion int64, checksum string, size int64) (filekeep.FileRecord, error) {
	return r.update(ctx, "finalize", id, expectedVersion,
		"state = 'FINALIZED', checksum = $3, size = $4, finalized_at = NOW()",
		"state = 'PENDING'",
		checksum, size,
	)
}

func (r *Repo) MarkFailed(ctx context.Context, id uuid.UUID, expectedVersion int64) (filekeep.FileRecord, error) {
	return r.update(ctx, "mark failed", id, expectedVersion,
		"state = 'FAILED'",
		"state = 'PENDING'",
	)
}

func (r *Repo) MarkDeleted(ctx context.Context, id uuid.UUID, expectedVersion int64) (filekeep.FileRecord, error) {
	return r.update(ctx, "mark deleted", id, expectedVersion,
		"state = 'DELETED'",
		"state IN ('FINALIZED', 'FAILED')",
	)
}

func (r *Repo) Rename(ctx context.Context, id uuid.UUID, expectedVersion int64, name string) (filekeep.FileRecord, error) {
	return r.update(ctx, "rename", id, expectedVersion,
		"name = $3",
		"state = 'FINALIZED' AND delete_requested_at IS NULL",
		name,
	)
}

func (r *Repo) RequestDelete(ctx context.Context, id uuid.UUID, expectedVersion int64) (filekeep.FileRecord, error) {
	return r.update(ctx, "request delete", id, expectedVersion,
		"delete_requested_at = NOW()",
		"state = 'FINALIZED' AND delete_requested_at IS NULL",
	)
}

// update runs one versioned UPDATE. When no row matches, a follow-up read
// tells a missing record apart from a version or state conflict.
func (r *Repo) update(ctx context.Context, opName string, id uuid.UUID, expectedVersion int64, set, allowed string, args ...any) (filekeep.FileRecord, error) {
	query := fmt.Sprintf(`
		UPDATE %s
		SET %s, updated_at = NOW(), version = version + 1
		WHERE id = $1 AND version = $2 AND %s
		RETURNING %s
	`, tableName, set, allowed, recordColumns)

	m, err := scanRecord(r.pool.QueryRow(ctx, query, append([]any{id, expectedVersion}, args...)...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return filekeep.FileRecord{}, r.missOrConflict(ctx, opName, id, expectedVersion)
		}
		return filekeep.FileRecord{}, fmt.Errorf("%s: %w", opName, err)
	}

	return m, nil
}

func (r *Repo) missOrConflict(ctx context.Context, opName string, id uuid.UUID, expectedVersion int64) error {
	current, err := r.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("%s: %w", opName, err)
	}
	return fmt.Errorf("%s: %w: expected version %d, have version %d in state %s",
		opName, filekeep.ErrConflict, expectedVersion, current.Version, current.State)
}

func (r *Repo) Get(ctx context.Context, id uuid.UUID) (filekeep.FileRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1`, recordColumns, tableName)

	m, err := scanRecord(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return filekeep.FileRecord{}, filekeep.ErrNotFound
		}
		return filekeep.FileRecord{}, fmt.Errorf("get: %w", err)
	}

	return m, nil
}

func (r *Repo) GetByBlobKey(ctx context.Context, key string) (filekeep.FileRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE blob_key = $1`, recordColumns, tableName)

	m, err := scanRecord(r.pool.QueryRow(ctx, query, key))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return filekeep.FileRecord{}, filekeep.ErrNotFound
		}
		return filekeep.FileRecord{}, fmt.Errorf("get by blob key: %w", err)
	}

	return m, nil
}

func (r *Repo) ListStale(ctx context.Context, olderThan time.Time, q filekeep.ListQuery) (filekeep.ListResult, error) {
	return r.listWithCondition(ctx, q, "state = 'PENDING' AND created_at < $1", []any{olderThan}, "list stale")
}

func (r *Repo) ListByState(ctx context.Context, state filekeep.State, q filekeep.ListQuery) (filekeep.ListResult, error) {
	return r.listWithCondition(ctx, q, "state = $1", []any{string(state)}, "list by state")
}

func (r *Repo) ListPendingPurge(ctx context.Context, q filekeep.ListQuery) (filekeep.ListResult, error) {
	return r.listWithCondition(ctx, q, "state = 'FINALIZED' AND delete_requested_at IS NOT NULL", nil, "list pending purge")
}

func (r *Repo) ListByOwner(ctx context.Context, ownerID string, q filekeep.ListQuery) (filekeep.ListResult, error) {
	if ownerID == "" {
		return r.listWithCondition(ctx, q, "state <> 'DELETED' AND delete_requested_at IS NULL", nil, "list by owner")
	}
	return r.listWithCondition(ctx, q, "owner_id = $1 AND state <> 'DELETED' AND delete_requested_at IS NULL", []any{ownerID}, "list by owner")
}

func (r *Repo) listWithCondition(ctx context.Context, q filekeep.ListQuery, whereCondition string, args []any, opName string) (filekeep.ListResult, error) {
	cursor, err := filekeep.DecodeCursor(q.Cursor)
	if err != nil {
		return filekeep.ListResult{}, fmt.Errorf("%s: %w", opName, err)
	}

	limit := filekeep.NormalizeLimit(q.Limit)

	if q.Cursor != "" {
		whereCondition += fmt.Sprintf(" AND (created_at, id) > ($%d, $%d)", len(args)+1, len(args)+2)
		args = append(args, cursor.CreatedAt, cursor.ID)
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM %s
		WHERE %s
		ORDER BY created_at, id
		LIMIT $%d
	`, recordColumns, tableName, whereCondition, len(args)+1)
	args = append(args, limit+1)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return filekeep.ListResult{}, fmt.Errorf("%s: %w", opName, err)
	}
	defer rows.Close()

	items := make([]filekeep.FileRecord, 0, limit)
	for rows.Next() {
		m, err := scanRecord(rows)
		if err != nil {
			return filekeep.ListResult{}, fmt.Errorf("%s: scan: %w", opName, err)
		}
		items = append(items, m)
	}

	if err := rows.Err(); err != nil {
		return filekeep.ListResult{}, fmt.Errorf("%s: rows: %w", opName, err)
	}

	return filekeep.PageResult(items, limit), nil
}
