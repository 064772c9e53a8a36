// Package sqlite implements filekeep.MetaDataRepo on SQLite.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sagarc03/filekeep"
)

const tableName = "file_records"

// timeFormat is fixed width so that text comparison orders timestamps.
const timeFormat = "2006-01-02T15:04:05.000000000Z"

const recordColumns = `id, owner_id, name, content_type, declared_size, size, checksum, blob_key,
	state, version, created_at, updated_at, finalized_at, delete_requested_at`

type Repo struct {
	db  *sql.DB
	now func() time.Time
}

func NewRepo(db *sql.DB) *Repo {
	return &Repo{db: db, now: time.Now}
}

// Ping verifies database connectivity
func (r *Repo) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeFormat)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (filekeep.FileRecord, error) {
	var m filekeep.FileRecord
	var id, state, createdAt, updatedAt string
	var finalizedAt, deleteRequestedAt sql.NullString

	err := row.Scan(
		&id, &m.OwnerID, &m.Name, &m.ContentType, &m.DeclaredSize, &m.Size, &m.Checksum, &m.BlobKey,
		&state, &m.Version, &createdAt, &updatedAt, &finalizedAt, &deleteRequestedAt,
	)
	if err != nil {
		return filekeep.FileRecord{}, err
	}

	if m.ID, err = uuid.Parse(id); err != nil {
		return filekeep.FileRecord{}, fmt.Errorf("parse id: %w", err)
	}
	m.State = filekeep.State(state)

	if m.CreatedAt, err = time.Parse(timeFormat, createdAt); err != nil {
		return filekeep.FileRecord{}, fmt.Errorf("parse created_at: %w", err)
	}
	if m.UpdatedAt, err = time.Parse(timeFormat, updatedAt); err != nil {
		return filekeep.FileRecord{}, fmt.Errorf("parse updated_at: %w", err)
	}
	if m.FinalizedAt, err = parseNullTime(finalizedAt); err != nil {
		return filekeep.FileRecord{}, fmt.Errorf("parse finalized_at: %w", err)
	}
	if m.DeleteRequestedAt, err = parseNullTime(deleteRequestedAt); err != nil {
		return filekeep.FileRecord{}, fmt.Errorf("parse delete_requested_at: %w", err)
	}

	return m, nil
}

func parseNullTime(s sql.NullString) (*time.Time, error) {
	if !s.Valid {
		return nil, nil
	}
	t, err := time.Parse(timeFormat, s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func (r *Repo) Allocate(ctx context.Context, p filekeep.AllocateParams) (filekeep.FileRecord, error) {
	query := fmt.Sprintf(`
		INSERT INTO %s (id, owner_id, name, content_type, declared_size, blob_key, state, version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, 1, ?, ?)
		RETURNING %s
	`, tableName, recordColumns)

	now := formatTime(r.now())
	m, err := scanRecord(r.db.QueryRowContext(ctx, query,
		uuid.New().String(), p.OwnerID, p.Name, p.ContentType, p.DeclaredSize, p.BlobKey,
		string(filekeep.StatePending), now, now,
	))
	if err != nil {
		if isUniqueViolation(err) {
			return filekeep.FileRecord{}, fmt.Errorf("allocate: %w: blob key %s already used", filekeep.ErrConflict, p.BlobKey)
		}
		return filekeep.FileRecord{}, fmt.Errorf("allocate: %w", err)
	}

	return m, nil
}

func (r *Repo) Finalize(ctx context.Context, id uuid.UUID, expectedVersion int64, checksum string, size int64) (filekeep.FileRecord, error) {
	now := formatTime(r.now())
	return r.update(ctx, "finalize", id, expectedVersion,
		"state = 'FINALIZED', checksum = ?, size = ?, finalized_at = ?",
		"state = 'PENDING'",
		checksum, size, now,
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
		"name = ?",
		"state = 'FINALIZED' AND delete_requested_at IS NULL",
		name,
	)
}

func (r *Repo) RequestDelete(ctx context.Context, id uuid.UUID, expectedVersion int64) (filekeep.FileRecord, error) {
	return r.update(ctx, "request delete", id, expectedVersion,
		"delete_requested_at = ?",
		"state = 'FINALIZED' AND delete_requested_at IS NULL",
		formatTime(r.now()),
	)
}

// update runs one versioned UPDATE. The set arguments come first because
// their placeholders precede the WHERE clause.
func (r *Repo) update(ctx context.Context, opName string, id uuid.UUID, expectedVersion int64, set, allowed string, setArgs ...any) (filekeep.FileRecord, error) {
	query := fmt.Sprintf(`
		UPDATE %s
		SET %s, updated_at = ?, version = version + 1
		WHERE id = ? AND version = ? AND %s
		RETURNING %s
	`, tableName, set, allowed, recordColumns)

	args := append(setArgs, formatTime(r.now()), id.String(), expectedVersion)

	m, err := scanRecord(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
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
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = ?`, recordColumns, tableName)

	m, err := scanRecord(r.db.QueryRowContext(ctx, query, id.String()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return filekeep.FileRecord{}, filekeep.ErrNotFound
		}
		return filekeep.FileRecord{}, fmt.Errorf("get: %w", err)
	}

	return m, nil
}

func (r *Repo) GetByBlobKey(ctx context.Context, key string) (filekeep.FileRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE blob_key = ?`, recordColumns, tableName)

	m, err := scanRecord(r.db.QueryRowContext(ctx, query, key))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return filekeep.FileRecord{}, filekeep.ErrNotFound
		}
		return filekeep.FileRecord{}, fmt.Errorf("get by blob key: %w", err)
	}

	return m, nil
}

func (r *Repo) ListStale(ctx context.Context, olderThan time.Time, q filekeep.ListQuery) (filekeep.ListResult, error) {
	return r.listWithCondition(ctx, q, "state = 'PENDING' AND created_at < ?", []any{formatTime(olderThan)}, "list stale")
}

func (r *Repo) ListByState(ctx context.Context, state filekeep.State, q filekeep.ListQuery) (filekeep.ListResult, error) {
	return r.listWithCondition(ctx, q, "state = ?", []any{string(state)}, "list by state")
}

func (r *Repo) ListPendingPurge(ctx context.Context, q filekeep.ListQuery) (filekeep.ListResult, error) {
	return r.listWithCondition(ctx, q, "state = 'FINALIZED' AND delete_requested_at IS NOT NULL", nil, "list pending purge")
}

func (r *Repo) ListByOwner(ctx context.Context, ownerID string, q filekeep.ListQuery) (filekeep.ListResult, error) {
	if ownerID == "" {
		return r.listWithCondition(ctx, q, "state <> 'DELETED' AND delete_requested_at IS NULL", nil, "list by owner")
	}
	return r.listWithCondition(ctx, q, "owner_id = ? AND state <> 'DELETED' AND delete_requested_at IS NULL", []any{ownerID}, "list by owner")
}

func (r *Repo) listWithCondition(ctx context.Context, q filekeep.ListQuery, whereCondition string, args []any, opName string) (filekeep.ListResult, error) {
	cursor, err := filekeep.DecodeCursor(q.Cursor)
	if err != nil {
		return filekeep.ListResult{}, fmt.Errorf("%s: %w", opName, err)
	}

	limit := filekeep.NormalizeLimit(q.Limit)

	if q.Cursor != "" {
		whereCondition += " AND (created_at > ? OR (created_at = ? AND id > ?))"
		ts := formatTime(cursor.CreatedAt)
		args = append(args, ts, ts, cursor.ID.String())
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM %s
		WHERE %s
		ORDER BY created_at, id
		LIMIT ?
	`, recordColumns, tableName, whereCondition)
	args = append(args, limit+1)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return filekeep.ListResult{}, fmt.Errorf("%s: %w", opName, err)
	}
	defer func() { _ = rows.Close() }()

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
