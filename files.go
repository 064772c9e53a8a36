package filekeep

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
)

// List returns the caller's files, newest last. Admins see every owner.
func (s *Service) List(ctx context.Context, q ListQuery) (ListResult, error) {
	ident, err := Authorize(ctx, OpList)
	if err != nil {
		return ListResult{}, fmt.Errorf("list files: %w", err)
	}

	if _, err = DecodeCursor(q.Cursor); err != nil {
		return ListResult{}, fmt.Errorf("list files: %w", err)
	}

	owner := ident.Subject
	if ident.IsAdmin() {
		owner = ""
	}

	result, err := s.repo.ListByOwner(ctx, owner, ListQuery{Limit: NormalizeLimit(q.Limit), Cursor: q.Cursor})
	if err != nil {
		return ListResult{}, fmt.Errorf("list files: %w", err)
	}

	return result, nil
}

// Rename changes the display name of a finalized file the caller owns.
// PENDING records belong to their upload until it finishes.
func (s *Service) Rename(ctx context.Context, id uuid.UUID, name string) (FileRecord, error) {
	if !IsValidName(name) {
		return FileRecord{}, fmt.Errorf("rename %s: %w: invalid name %q", id, ErrInvalidInput, name)
	}

	rec, err := s.resolveOwned(ctx, OpRename, id)
	if err != nil {
		return FileRecord{}, fmt.Errorf("rename %s: %w", id, err)
	}

	if rec.State != StateFinalized {
		return FileRecord{}, fmt.Errorf("rename %s: %w: state %s", id, ErrNotReady, rec.State)
	}

	updated, err := s.repo.Rename(ctx, rec.ID, rec.Version, name)
	if err != nil {
		return FileRecord{}, fmt.Errorf("rename %s: %w", id, err)
	}

	return updated, nil
}

// Delete requests removal of a finalized file. The file stops being readable
// immediately; the reconciler removes the blob and marks the record DELETED.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	rec, err := s.resolveOwned(ctx, OpDelete, id)
	if err != nil {
		return fmt.Errorf("delete %s: %w", id, err)
	}

	if rec.State != StateFinalized {
		return fmt.Errorf("delete %s: %w: state %s", id, ErrNotReady, rec.State)
	}

	if _, err = s.repo.RequestDelete(ctx, rec.ID, rec.Version); err != nil {
		return fmt.Errorf("delete %s: %w", id, err)
	}

	s.logger.Info("delete requested", slog.String("file_id", id.String()))

	return nil
}

// resolveOwned loads a live record the caller may modify.
func (s *Service) resolveOwned(ctx context.Context, op Operation, id uuid.UUID) (FileRecord, error) {
	ident, err := Authorize(ctx, op)
	if err != nil {
		return FileRecord{}, err
	}

	rec, err := s.repo.Get(ctx, id)
	if err != nil {
		return FileRecord{}, err
	}

	if rec.State == StateDeleted || rec.DeleteRequestedAt != nil {
		return FileRecord{}, ErrNotFound
	}

	if !s.policy.CanAccess(ident, rec) {
		return FileRecord{}, ErrForbidden
	}

	return rec, nil
}
