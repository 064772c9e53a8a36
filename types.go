package filekeep

import (
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
)

// State is the lifecycle state of a FileRecord.
type State string

const (
	StatePending   State = "PENDING"
	StateFinalized State = "FINALIZED"
	StateFailed    State = "FAILED"
	StateDeleted   State = "DELETED"
)

func (s State) IsValid() bool {
	switch s {
	case StatePending, StateFinalized, StateFailed, StateDeleted:
		return true
	default:
		return false
	}
}

// CanTransition reports whether the lifecycle allows moving from s to next.
func (s State) CanTransition(next State) bool {
	switch s {
	case StatePending:
		return next == StateFinalized || next == StateFailed
	case StateFinalized, StateFailed:
		return next == StateDeleted
	default:
		return false
	}
}

func ParseState(s string) (State, error) {
	state := State(s)
	if !state.IsValid() {
		return "", fmt.Errorf("invalid state: %s (valid states: PENDING, FINALIZED, FAILED, DELETED)", s)
	}
	return state, nil
}

// FileRecord is the metadata row describing one stored file.
type FileRecord struct {
	ID                uuid.UUID  `json:"id"`
	OwnerID           string     `json:"owner_id"`
	Name              string     `json:"name"`
	ContentType       string     `json:"content_type"`
	DeclaredSize      int64      `json:"declared_size"`
	Size              int64      `json:"size"`
	Checksum          string     `json:"checksum,omitempty"`
	BlobKey           string     `json:"-"`
	State             State      `json:"state"`
	Version           int64      `json:"version"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
	FinalizedAt       *time.Time `json:"finalized_at,omitempty"`
	DeleteRequestedAt *time.Time `json:"delete_requested_at,omitempty"`
}

// Readable reports whether the record's bytes may be served.
func (r FileRecord) Readable() bool {
	return r.State == StateFinalized && r.DeleteRequestedAt == nil
}

// AllocateParams describes a new PENDING record.
type AllocateParams struct {
	OwnerID      string
	Name         string
	ContentType  string
	DeclaredSize int64
	BlobKey      string
}

type ListQuery struct {
	Limit  int
	Cursor string
}

type ListResult struct {
	Items      []FileRecord `json:"items"`
	NextCursor string       `json:"next_cursor,omitempty"`
}

// PutResult is what a blob store reports after a successful streamed write.
type PutResult struct {
	Size   int64
	Digest string
}

// UploadRequest carries the client supplied attributes of an upload.
type UploadRequest struct {
	Name         string
	ContentType  string
	DeclaredSize int64
}

// RangeSpec selects a byte range of a download. A zero value means the whole file.
// Length < 0 reads to the end.
type RangeSpec struct {
	Offset int64
	Length int64
}

func (r RangeSpec) IsZero() bool {
	return r.Offset == 0 && r.Length <= 0
}

// Download is an open stream over a finalized file. Callers must close Body.
type Download struct {
	Record FileRecord
	Body   io.ReadCloser
	Offset int64
	Length int64
}

// FileStatus is the lifecycle view of a record returned by Status.
type FileStatus struct {
	ID          uuid.UUID  `json:"id"`
	Name        string     `json:"name"`
	State       State      `json:"state"`
	Size        int64      `json:"size"`
	Checksum    string     `json:"checksum,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	FinalizedAt *time.Time `json:"finalized_at,omitempty"`
}

func statusOf(r FileRecord) FileStatus {
	return FileStatus{
		ID:          r.ID,
		Name:        r.Name,
		State:       r.State,
		Size:        r.Size,
		Checksum:    r.Checksum,
		CreatedAt:   r.CreatedAt,
		FinalizedAt: r.FinalizedAt,
	}
}

// ReconcileReport summarises one reconciler pass.
type ReconcileReport struct {
	Purged        int `json:"purged"`
	FailedCleaned int `json:"failed_cleaned"`
	OrphansFound  int `json:"orphans_found"`
	StaleFailed   int `json:"stale_failed"`
	Dangling      int `json:"dangling"`
	Skipped       int `json:"skipped"`
	Errors        int `json:"errors"`
}
