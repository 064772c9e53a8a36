package filekeep

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	// DefaultListLimit is applied when a ListQuery has no limit.
	DefaultListLimit = 100
	// MaxListLimit caps the page size of any list call.
	MaxListLimit = 1000
)

// Cursor represents pagination cursor data for list operations.
// Records are ordered by (created_at, id).
type Cursor struct {
	CreatedAt time.Time
	ID        uuid.UUID
}

// EncodeCursor encodes cursor data to a base64 string for pagination.
func EncodeCursor(createdAt time.Time, id uuid.UUID) string {
	data := createdAt.UTC().Format(time.RFC3339Nano) + "|" + id.String()
	return base64.URLEncoding.EncodeToString([]byte(data))
}

// DecodeCursor decodes a pagination cursor string back to cursor data.
// An empty string decodes to the zero Cursor.
func DecodeCursor(cursor string) (Cursor, error) {
	if cursor == "" {
		return Cursor{}, nil
	}

	decoded, err := base64.URLEncoding.DecodeString(cursor)
	if err != nil {
		return Cursor{}, fmt.Errorf("decode cursor: %w: invalid encoding", ErrInvalidInput)
	}

	parts := strings.SplitN(string(decoded), "|", 2)
	if len(parts) != 2 {
		return Cursor{}, fmt.Errorf("decode cursor: %w: invalid format", ErrInvalidInput)
	}

	createdAt, err := time.Parse(time.RFC3339Nano, parts[0])
	if err != nil {
		return Cursor{}, fmt.Errorf("decode cursor: %w: invalid timestamp", ErrInvalidInput)
	}

	id, err := uuid.Parse(parts[1])
	if err != nil {
		return Cursor{}, fmt.Errorf("decode cursor: %w: invalid id", ErrInvalidInput)
	}

	return Cursor{CreatedAt: createdAt, ID: id}, nil
}

// NormalizeLimit clamps a requested page size into [1, MaxListLimit].
func NormalizeLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultListLimit
	case limit > MaxListLimit:
		return MaxListLimit
	default:
		return limit
	}
}

// PageResult trims a page fetched with limit+1 rows and computes the next cursor.
func PageResult(items []FileRecord, limit int) ListResult {
	var nextCursor string
	if len(items) > limit {
		last := items[limit-1]
		nextCursor = EncodeCursor(last.CreatedAt, last.ID)
		items = items[:limit]
	}
	return ListResult{Items: items, NextCursor: nextCursor}
}
