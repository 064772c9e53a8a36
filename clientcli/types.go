package clientcli

import (
	"time"

	"github.com/google/uuid"
)

// UploadOptions configures an upload operation.
type UploadOptions struct {
	Paths []string
	// Name overrides the stored name. Only valid with a single path.
	Name        string
	ContentType string // optional, auto-detect if empty
}

// UploadResult represents the result of uploading a single file.
type UploadResult struct {
	LocalPath string   `json:"local_path"`
	File      FileInfo `json:"file"`
	Err       error    `json:"-"` // nil on success
}

// DownloadOptions configures a download operation.
type DownloadOptions struct {
	ID        uuid.UUID
	LocalPath string // empty = stored name, "-" = stdout
	// Range is sent verbatim as the Range header, e.g. "bytes=0-99".
	Range string
}

// DownloadResult represents the result of downloading a file.
type DownloadResult struct {
	ID           uuid.UUID `json:"id"`
	Name         string    `json:"name"`
	LocalPath    string    `json:"local_path"`
	ETag         string    `json:"etag"`
	ContentType  string    `json:"content_type"`
	ContentRange string    `json:"content_range,omitempty"`
	Size         int64     `json:"size_bytes"`
}

// DeleteOptions configures a delete operation.
type DeleteOptions struct {
	IDs []uuid.UUID
}

// DeleteResult represents the result of deleting a single file.
type DeleteResult struct {
	ID      uuid.UUID `json:"id"`
	Deleted bool      `json:"deleted"`
	Err     error     `json:"-"` // nil on success
}

// ListOptions configures a list operation.
type ListOptions struct {
	Limit  int
	Cursor string
	All    bool // auto-paginate through all results
}

// ListResult contains paginated list results.
type ListResult struct {
	Items      []FileInfo `json:"items"`
	NextCursor string     `json:"next_cursor,omitempty"`
}

// FileInfo mirrors the file record returned by the server.
type FileInfo struct {
	ID           uuid.UUID  `json:"id"`
	OwnerID      string     `json:"owner_id"`
	Name         string     `json:"name"`
	ContentType  string     `json:"content_type"`
	DeclaredSize int64      `json:"declared_size"`
	Size         int64      `json:"size"`
	Checksum     string     `json:"checksum,omitempty"`
	State        string     `json:"state"`
	Version      int64      `json:"version"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	FinalizedAt  *time.Time `json:"finalized_at,omitempty"`
}

// FileStatus mirrors the status response of the server.
type FileStatus struct {
	ID          uuid.UUID  `json:"id"`
	Name        string     `json:"name"`
	State       string     `json:"state"`
	Size        int64      `json:"size"`
	Checksum    string     `json:"checksum,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	FinalizedAt *time.Time `json:"finalized_at,omitempty"`
}

// ReconcileReport mirrors the admin reconcile response.
type ReconcileReport struct {
	Purged        int `json:"purged"`
	FailedCleaned int `json:"failed_cleaned"`
	OrphansFound  int `json:"orphans_found"`
	StaleFailed   int `json:"stale_failed"`
	Dangling      int `json:"dangling"`
	Skipped       int `json:"skipped"`
	Errors        int `json:"errors"`
}

// serverError is the JSON error body written by the server.
type serverError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}
