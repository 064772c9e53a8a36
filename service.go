package filekeep

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// MetaDataRepo defines the interface for file record persistence.
// Implementations must be safe for concurrent use. Every mutation is a single
// versioned update: it succeeds only when the stored version equals
// expectedVersion and the stored state allows the transition, and it
// increments the version on success.
//
// All methods accept a context for cancellation and timeout control.
type MetaDataRepo interface {
	// Allocate inserts a new PENDING record with version 1.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeout
	//   - p: Owner, name, content type, declared size and blob key
	//
	// Returns:
	//   - FileRecord: The stored record with ID and timestamps
	//   - error: Any database error. A duplicate blob key is an error.
	Allocate(ctx context.Context, p AllocateParams) (FileRecord, error)

	// Finalize moves a PENDING record to FINALIZED and stores its checksum and size.
	//
	// Returns:
	//   - FileRecord: The updated record
	//   - error: ErrNotFound if the record doesn't exist, ErrConflict if the
	//     version or state doesn't match
	Finalize(ctx context.Context, id uuid.UUID, expectedVersion int64, checksum string, size int64) (FileRecord, error)

	// MarkFailed moves a PENDING record to FAILED.
	//
	// Returns:
	//   - error: ErrNotFound or ErrConflict as for Finalize
	MarkFailed(ctx context.Context, id uuid.UUID, expectedVersion int64) (FileRecord, error)

	// MarkDeleted moves a FINALIZED or FAILED record to DELETED.
	MarkDeleted(ctx context.Context, id uuid.UUID, expectedVersion int64) (FileRecord, error)

	// Rename changes the display name of a non-DELETED record.
	Rename(ctx context.Context, id uuid.UUID, expectedVersion int64, name string) (FileRecord, error)

	// RequestDelete stamps delete_requested_at on a FINALIZED record.
	// The state is left alone; the reconciler performs the transition.
	RequestDelete(ctx context.Context, id uuid.UUID, expectedVersion int64) (FileRecord, error)

	// Get retrieves a record by id in any state.
	//
	// Returns:
	//   - error: ErrNotFound if the id doesn't exist
	Get(ctx context.Context, id uuid.UUID) (FileRecord, error)

	// GetByBlobKey retrieves the record owning a blob key.
	GetByBlobKey(ctx context.Context, key string) (FileRecord, error)

	// ListStale returns PENDING records created before olderThan, ordered by
	// (created_at, id) ascending. The cursor in ListResult resumes the scan.
	ListStale(ctx context.Context, olderThan time.Time, q ListQuery) (ListResult, error)

	// ListByState returns records in state, ordered as ListStale.
	ListByState(ctx context.Context, state State, q ListQuery) (ListResult, error)

	// ListPendingPurge returns FINALIZED records whose deletion was requested.
	ListPendingPurge(ctx context.Context, q ListQuery) (ListResult, error)

	// ListByOwner returns the non-DELETED records of ownerID. An empty ownerID
	// lists every owner.
	ListByOwner(ctx context.Context, ownerID string, q ListQuery) (ListResult, error)
}

// BlobStore defines the interface for object byte storage.
// Implementations can use the local filesystem, S3 or any object store.
//
// All methods accept a context for cancellation and timeout control.
// Implementations should respect context cancellation during long-running
// transfers.
type BlobStore interface {
	// Put streams content into key.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeout
	//   - key: Destination key, never reused by callers
	//   - content: Reader consumed incrementally until EOF
	//
	// Returns:
	//   - PutResult: Bytes stored and the digest reported by the store
	//   - error: ErrBlobWrite wrapped around the cause. Any read error from
	//     content is returned in the chain so callers can inspect it.
	//
	// Success means the object is durably stored. On failure the object may
	// or may not exist; callers clean up with Delete.
	Put(ctx context.Context, key string, content io.Reader) (PutResult, error)

	// Get opens a lazy stream over the object. Nothing is read before the
	// first Read call on the returned reader. The caller closes it.
	//
	// Returns:
	//   - error: ErrNotFound if the key doesn't exist, ErrBlobRead otherwise
	Get(ctx context.Context, key string) (io.ReadCloser, error)

	// GetRange opens a stream over length bytes starting at offset.
	// length < 0 reads to the end of the object.
	GetRange(ctx context.Context, key string, offset, length int64) (io.ReadCloser, error)

	// Delete removes the object. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Exists reports whether key holds an object.
	Exists(ctx context.Context, key string) (bool, error)
}

// BlobLister is implemented by blob stores that can walk their namespace.
type BlobLister interface {
	ListKeys(ctx context.Context, fn func(key string) error) error
}

// Presigner is implemented by blob stores that can hand out direct download URLs.
type Presigner interface {
	PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error)
}

// Service coordinates the metadata repository and the blob store.
type Service struct {
	repo           MetaDataRepo
	blobs          BlobStore
	policy         AccessPolicy
	sizeTolerance  float64
	maxUploadSize  int64
	cleanupTimeout time.Duration
	presignTTL     time.Duration
	logger         *slog.Logger
	metrics        *Metrics
	now            func() time.Time
}

// ServiceConfig holds configuration options for Service.
type ServiceConfig struct {
	// SizeTolerance is the accepted relative difference between the declared
	// and the streamed size. 0 requires an exact match.
	SizeTolerance float64
	// MaxUploadSize caps a single upload in bytes. 0 means unlimited.
	MaxUploadSize  int64
	CleanupTimeout time.Duration // Timeout for cleanup operations (default: 30s)
	PresignTTL     time.Duration // Lifetime of presigned download URLs (default: 15m)
	Policy         AccessPolicy
	Logger         *slog.Logger
	Metrics        *Metrics
	Now            func() time.Time
}

func NewService(repo MetaDataRepo, blobs BlobStore, cfg ServiceConfig) *Service {
	cleanupTimeout := cfg.CleanupTimeout
	if cleanupTimeout <= 0 {
		cleanupTimeout = 30 * time.Second
	}

	presignTTL := cfg.PresignTTL
	if presignTTL <= 0 {
		presignTTL = 15 * time.Minute
	}

	policy := cfg.Policy
	if policy == nil {
		policy = OwnerOrAdmin{}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	metrics := cfg.Metrics
	if metrics == nil {
		metrics = NewMetrics(nil)
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Service{
		repo:           repo,
		blobs:          blobs,
		policy:         policy,
		sizeTolerance:  cfg.SizeTolerance,
		maxUploadSize:  cfg.MaxUploadSize,
		cleanupTimeout: cleanupTimeout,
		presignTTL:     presignTTL,
		logger:         logger.With(slog.String("component", "service")),
		metrics:        metrics,
		now:            now,
	}
}
