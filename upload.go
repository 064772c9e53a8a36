package filekeep

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
)

const defaultContentType = "application/octet-stream"

// Upload stores content as a new file owned by the caller.
//
// The record is allocated as PENDING before any byte reaches the blob store,
// so a crash at any later point leaves a record the reconciler can find. The
// content is streamed through a SHA-256 and byte counting reader straight
// into the blob store; nothing is buffered here and no database transaction
// is held open while streaming.
//
// When the declared size is positive the stream is cut off as soon as it
// grows past the declared size plus tolerance. A declared size of 0 means the
// size is unknown and only MaxUploadSize applies.
//
// Returns:
//   - FileRecord: The FINALIZED record
//   - error: ErrUnauthenticated, ErrUnauthorized, ErrInvalidInput, ErrTooLarge,
//     or an *UploadFailedError once a record has been allocated
//
// On failure the record is marked FAILED and the blob deleted, both best
// effort on a background context bounded by the cleanup timeout. Cleanup
// errors are logged and left to the reconciler.
func (s *Service) Upload(ctx context.Context, req UploadRequest, content io.Reader) (FileRecord, error) {
	id, err := Authorize(ctx, OpUpload)
	if err != nil {
		return FileRecord{}, fmt.Errorf("upload: %w", err)
	}

	if err = ctx.Err(); err != nil {
		return FileRecord{}, fmt.Errorf("upload: %w", err)
	}

	if !IsValidName(req.Name) {
		return FileRecord{}, fmt.Errorf("upload: %w: invalid name %q", ErrInvalidInput, req.Name)
	}

	if req.DeclaredSize < 0 {
		return FileRecord{}, fmt.Errorf("upload: %w: negative declared size", ErrInvalidInput)
	}

	if s.maxUploadSize > 0 && req.DeclaredSize > s.maxUploadSize {
		return FileRecord{}, fmt.Errorf("upload: %w: declared %d bytes, limit is %d", ErrTooLarge, req.DeclaredSize, s.maxUploadSize)
	}

	contentType := req.ContentType
	if contentType == "" {
		contentType = defaultContentType
	}

	rec, err := s.repo.Allocate(ctx, AllocateParams{
		OwnerID:      id.Subject,
		Name:         req.Name,
		ContentType:  contentType,
		DeclaredSize: req.DeclaredSize,
		BlobKey:      NewBlobKey(id.Subject, s.now()),
	})
	if err != nil {
		return FileRecord{}, fmt.Errorf("upload: allocate: %w", err)
	}

	log := s.logger.With(slog.String("file_id", rec.ID.String()), slog.String("owner", rec.OwnerID))

	limit, fromDeclared := s.readLimit(req.DeclaredSize)
	dr := newDigestReader(content, limit)

	result, putErr := s.blobs.Put(ctx, rec.BlobKey, dr)
	if putErr != nil {
		cause := putErr
		switch {
		case dr.Exceeded() && fromDeclared:
			cause = fmt.Errorf("%w: declared %d bytes, stream exceeded %d: %w", ErrSizeMismatch, req.DeclaredSize, limit, putErr)
		case !errors.Is(putErr, ErrBlobWrite):
			cause = fmt.Errorf("%w: %w", ErrBlobWrite, putErr)
		}
		log.Warn("upload stream failed", slog.Int64("bytes_read", dr.Size()), slog.Any("error", putErr))
		return s.failUpload(rec, cause)
	}

	if result.Size != dr.Size() || (result.Digest != "" && result.Digest != dr.Digest()) {
		cause := fmt.Errorf("%w: store reported %d bytes (%s), streamed %d bytes (%s)",
			ErrBlobWrite, result.Size, result.Digest, dr.Size(), dr.Digest())
		return s.failUpload(rec, cause)
	}

	if !s.sizeAcceptable(req.DeclaredSize, dr.Size()) {
		cause := fmt.Errorf("%w: declared %d bytes, got %d", ErrSizeMismatch, req.DeclaredSize, dr.Size())
		log.Warn("upload size mismatch", slog.Int64("declared", req.DeclaredSize), slog.Int64("actual", dr.Size()))
		return s.failUpload(rec, cause)
	}

	finalized, err := s.repo.Finalize(ctx, rec.ID, rec.Version, dr.Digest(), dr.Size())
	if err != nil {
		log.Warn("finalize failed", slog.Any("error", err))
		return s.failUpload(rec, fmt.Errorf("finalize: %w", err))
	}

	s.metrics.uploadsTotal.WithLabelValues("finalized").Inc()
	s.metrics.uploadBytesTotal.Add(float64(finalized.Size))
	log.Info("upload finalized", slog.Int64("size", finalized.Size), slog.String("checksum", finalized.Checksum))

	return finalized, nil
}

// failUpload undoes an allocated upload. A Conflict from MarkFailed means the
// record moved on without us; if it turns out FINALIZED the earlier finalize
// committed despite reporting an error, and the blob must be kept.
func (s *Service) failUpload(rec FileRecord, cause error) (FileRecord, error) {
	cleanupCtx, cancel := context.WithTimeout(context.Background(), s.cleanupTimeout)
	defer cancel()

	log := s.logger.With(slog.String("file_id", rec.ID.String()), slog.String("blob_key", rec.BlobKey))

	_, markErr := s.repo.MarkFailed(cleanupCtx, rec.ID, rec.Version)
	switch {
	case markErr == nil:
	case errors.Is(markErr, ErrConflict):
		current, getErr := s.repo.Get(cleanupCtx, rec.ID)
		if getErr == nil && current.State == StateFinalized {
			log.Warn("record finalized despite error, keeping blob", slog.Any("error", cause))
			s.metrics.uploadsTotal.WithLabelValues("finalized").Inc()
			return current, nil
		}
	default:
		s.metrics.cleanupErrorsTotal.WithLabelValues("mark_failed").Inc()
		log.Error("mark failed during cleanup", slog.Any("error", markErr))
	}

	if delErr := s.blobs.Delete(cleanupCtx, rec.BlobKey); delErr != nil {
		s.metrics.cleanupErrorsTotal.WithLabelValues("delete_blob").Inc()
		log.Error("delete blob during cleanup", slog.Any("error", delErr))
	}

	s.metrics.uploadsTotal.WithLabelValues("failed").Inc()

	return FileRecord{}, &UploadFailedError{RecordID: rec.ID, Cause: cause}
}

// readLimit returns the byte count past which the stream is cut off, and
// whether that limit comes from the declared size.
func (s *Service) readLimit(declared int64) (int64, bool) {
	var limit int64
	fromDeclared := false

	if declared > 0 {
		limit = declared + int64(float64(declared)*s.sizeTolerance)
		fromDeclared = true
	}

	if s.maxUploadSize > 0 && (limit == 0 || s.maxUploadSize < limit) {
		limit = s.maxUploadSize
		fromDeclared = false
	}

	return limit, fromDeclared
}

func (s *Service) sizeAcceptable(declared, actual int64) bool {
	if declared == 0 {
		return true
	}

	diff := actual - declared
	if diff < 0 {
		diff = -diff
	}

	return float64(diff) <= float64(declared)*s.sizeTolerance
}
