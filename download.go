package filekeep

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/google/uuid"
)

// Download opens the bytes of a finalized file for the caller.
//
// The returned Body is the blob store stream itself; memory use is bounded by
// the store's chunk size, not the file size. Closing Body early releases the
// blob read handle and touches no metadata.
//
// Error types returned:
//   - ErrUnauthenticated / ErrUnauthorized: no identity or no files:read scope
//   - ErrNotFound: no such record, DELETED, or deletion requested
//   - ErrNotReady: the record is PENDING or FAILED
//   - ErrForbidden: the caller is neither the owner nor an admin
//   - ErrInvalidInput: the range starts past the end of the file
//   - ErrInconsistent: the record is FINALIZED but its blob is missing
//   - ErrBlobRead: the blob store failed to open the object
func (s *Service) Download(ctx context.Context, id uuid.UUID, rng RangeSpec) (Download, error) {
	rec, err := s.resolveReadable(ctx, OpDownload, id)
	if err != nil {
		return Download{}, fmt.Errorf("download %s: %w", id, err)
	}

	offset, length, err := clampRange(rng, rec.Size)
	if err != nil {
		return Download{}, fmt.Errorf("download %s: %w", id, err)
	}

	var body io.ReadCloser
	if offset == 0 && length == rec.Size {
		body, err = s.blobs.Get(ctx, rec.BlobKey)
	} else {
		body, err = s.blobs.GetRange(ctx, rec.BlobKey, offset, length)
	}
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			s.metrics.inconsistentReads.Inc()
			s.logger.Error("finalized record has no blob",
				slog.String("file_id", rec.ID.String()),
				slog.String("blob_key", rec.BlobKey),
			)
			return Download{}, fmt.Errorf("download %s: %w", id, ErrInconsistent)
		}
		if !errors.Is(err, ErrBlobRead) {
			err = fmt.Errorf("%w: %w", ErrBlobRead, err)
		}
		return Download{}, fmt.Errorf("download %s: %w", id, err)
	}

	s.metrics.downloadsTotal.Inc()

	return Download{Record: rec, Body: body, Offset: offset, Length: length}, nil
}

// PresignDownload returns a time limited direct URL for a finalized file when
// the blob store supports it, and ErrNotSupported otherwise.
func (s *Service) PresignDownload(ctx context.Context, id uuid.UUID) (string, error) {
	presigner, ok := s.blobs.(Presigner)
	if !ok {
		return "", fmt.Errorf("presign %s: %w", id, ErrNotSupported)
	}

	rec, err := s.resolveReadable(ctx, OpDownload, id)
	if err != nil {
		return "", fmt.Errorf("presign %s: %w", id, err)
	}

	url, err := presigner.PresignGet(ctx, rec.BlobKey, s.presignTTL)
	if err != nil {
		return "", fmt.Errorf("presign %s: %w", id, err)
	}

	return url, nil
}

// Status returns the lifecycle view of a record. Unlike Download it does not
// require the record to be FINALIZED.
func (s *Service) Status(ctx context.Context, id uuid.UUID) (FileStatus, error) {
	ident, err := Authorize(ctx, OpStatus)
	if err != nil {
		return FileStatus{}, fmt.Errorf("status %s: %w", id, err)
	}

	rec, err := s.repo.Get(ctx, id)
	if err != nil {
		return FileStatus{}, fmt.Errorf("status %s: %w", id, err)
	}

	if rec.State == StateDeleted || rec.DeleteRequestedAt != nil {
		return FileStatus{}, fmt.Errorf("status %s: %w", id, ErrNotFound)
	}

	if !s.policy.CanAccess(ident, rec) {
		return FileStatus{}, fmt.Errorf("status %s: %w", id, ErrForbidden)
	}

	return statusOf(rec), nil
}

// Info returns the full record of a readable file.
func (s *Service) Info(ctx context.Context, id uuid.UUID) (FileRecord, error) {
	rec, err := s.resolveReadable(ctx, OpStatus, id)
	if err != nil {
		return FileRecord{}, fmt.Errorf("info %s: %w", id, err)
	}
	return rec, nil
}

func (s *Service) resolveReadable(ctx context.Context, op Operation, id uuid.UUID) (FileRecord, error) {
	ident, err := Authorize(ctx, op)
	if err != nil {
		return FileRecord{}, err
	}

	rec, err := s.repo.Get(ctx, id)
	if err != nil {
		return FileRecord{}, err
	}

	switch rec.State {
	case StateDeleted:
		return FileRecord{}, ErrNotFound
	case StatePending, StateFailed:
		return FileRecord{}, fmt.Errorf("%w: state %s", ErrNotReady, rec.State)
	}

	if !s.policy.CanAccess(ident, rec) {
		return FileRecord{}, ErrForbidden
	}

	if rec.DeleteRequestedAt != nil {
		return FileRecord{}, ErrNotFound
	}

	return rec, nil
}

// clampRange resolves rng against a file of size bytes.
func clampRange(rng RangeSpec, size int64) (int64, int64, error) {
	if rng.IsZero() {
		return 0, size, nil
	}

	if rng.Offset < 0 || rng.Offset >= size {
		return 0, 0, fmt.Errorf("%w: range start %d outside file of %d bytes", ErrInvalidInput, rng.Offset, size)
	}

	length := rng.Length
	if length <= 0 || rng.Offset+length > size {
		length = size - rng.Offset
	}

	return rng.Offset, length, nil
}
