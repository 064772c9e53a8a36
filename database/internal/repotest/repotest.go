// Package repotest holds behaviour tests shared by every MetaDataRepo backend.
package repotest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sagarc03/filekeep"
)

// Factory returns an empty, migrated repo. It is called once per subtest.
type Factory func(t *testing.T) filekeep.MetaDataRepo

// Run exercises the full MetaDataRepo contract against the backend built by newRepo.
func Run(t *testing.T, newRepo Factory) {
	t.Helper()

	t.Run("Allocate", func(t *testing.T) { testAllocate(t, newRepo(t)) })
	t.Run("Finalize", func(t *testing.T) { testFinalize(t, newRepo(t)) })
	t.Run("MarkFailed", func(t *testing.T) { testMarkFailed(t, newRepo(t)) })
	t.Run("FinalizeRacesMarkFailed", func(t *testing.T) { testFinalizeRace(t, newRepo(t)) })
	t.Run("MarkDeleted", func(t *testing.T) { testMarkDeleted(t, newRepo(t)) })
	t.Run("Rename", func(t *testing.T) { testRename(t, newRepo(t)) })
	t.Run("RequestDelete", func(t *testing.T) { testRequestDelete(t, newRepo(t)) })
	t.Run("Get", func(t *testing.T) { testGet(t, newRepo(t)) })
	t.Run("ListStale", func(t *testing.T) { testListStale(t, newRepo(t)) })
	t.Run("ListByState", func(t *testing.T) { testListByState(t, newRepo(t)) })
	t.Run("ListPendingPurge", func(t *testing.T) { testListPendingPurge(t, newRepo(t)) })
	t.Run("ListByOwner", func(t *testing.T) { testListByOwner(t, newRepo(t)) })
}

func allocate(t *testing.T, repo filekeep.MetaDataRepo, owner string) filekeep.FileRecord {
	t.Helper()
	rec, err := repo.Allocate(context.Background(), filekeep.AllocateParams{
		OwnerID:      owner,
		Name:         "report.pdf",
		ContentType:  "application/pdf",
		DeclaredSize: 42,
		BlobKey:      filekeep.NewBlobKey(owner, time.Now()),
	})
	require.NoError(t, err)
	return rec
}

func finalize(t *testing.T, repo filekeep.MetaDataRepo, rec filekeep.FileRecord) filekeep.FileRecord {
	t.Helper()
	out, err := repo.Finalize(context.Background(), rec.ID, rec.Version, "deadbeef", 42)
	require.NoError(t, err)
	return out
}

func testAllocate(t *testing.T, repo filekeep.MetaDataRepo) {
	ctx := context.Background()
	key := filekeep.NewBlobKey("alice", time.Now())

	rec, err := repo.Allocate(ctx, filekeep.AllocateParams{
		OwnerID:      "alice",
		Name:         "a.txt",
		ContentType:  "text/plain",
		DeclaredSize: 10,
		BlobKey:      key,
	})
	require.NoError(t, err)

	assert.NotEqual(t, uuid.Nil, rec.ID)
	assert.Equal(t, "alice", rec.OwnerID)
	assert.Equal(t, "a.txt", rec.Name)
	assert.Equal(t, "text/plain", rec.ContentType)
	assert.Equal(t, int64(10), rec.DeclaredSize)
	assert.Equal(t, key, rec.BlobKey)
	assert.Equal(t, filekeep.StatePending, rec.State)
	assert.Equal(t, int64(1), rec.Version)
	assert.False(t, rec.CreatedAt.IsZero())
	assert.Nil(t, rec.FinalizedAt)
	assert.Nil(t, rec.DeleteRequestedAt)

	_, err = repo.Allocate(ctx, filekeep.AllocateParams{OwnerID: "bob", Name: "b", ContentType: "text/plain", BlobKey: key})
	assert.ErrorIs(t, err, filekeep.ErrConflict, "blob keys are unique")
}

func testFinalize(t *testing.T, repo filekeep.MetaDataRepo) {
	ctx := context.Background()
	rec := allocate(t, repo, "alice")

	out, err := repo.Finalize(ctx, rec.ID, rec.Version, "abc123", 7)
	require.NoError(t, err)
	assert.Equal(t, filekeep.StateFinalized, out.State)
	assert.Equal(t, int64(2), out.Version)
	assert.Equal(t, "abc123", out.Checksum)
	assert.Equal(t, int64(7), out.Size)
	require.NotNil(t, out.FinalizedAt)

	t.Run("stale version", func(t *testing.T) {
		_, err := repo.Finalize(ctx, rec.ID, rec.Version, "abc123", 7)
		assert.ErrorIs(t, err, filekeep.ErrConflict)
	})

	t.Run("already finalized", func(t *testing.T) {
		_, err := repo.Finalize(ctx, out.ID, out.Version, "abc123", 7)
		assert.ErrorIs(t, err, filekeep.ErrConflict)
	})

	t.Run("missing record", func(t *testing.T) {
		_, err := repo.Finalize(ctx, uuid.New(), 1, "abc123", 7)
		assert.ErrorIs(t, err, filekeep.ErrNotFound)
	})
}

func testMarkFailed(t *testing.T, repo filekeep.MetaDataRepo) {
	ctx := context.Background()

	rec := allocate(t, repo, "alice")
	out, err := repo.MarkFailed(ctx, rec.ID, rec.Version)
	require.NoError(t, err)
	assert.Equal(t, filekeep.StateFailed, out.State)
	assert.Equal(t, int64(2), out.Version)

	done := finalize(t, repo, allocate(t, repo, "alice"))
	_, err = repo.MarkFailed(ctx, done.ID, done.Version)
	assert.ErrorIs(t, err, filekeep.ErrConflict, "finalized records never fail")

	got, err := repo.Get(ctx, done.ID)
	require.NoError(t, err)
	assert.Equal(t, filekeep.StateFinalized, got.State)
}

func testFinalizeRace(t *testing.T, repo filekeep.MetaDataRepo) {
	ctx := context.Background()

	for i := range 10 {
		rec := allocate(t, repo, fmt.Sprintf("racer-%d", i))

		var wg sync.WaitGroup
		var finalizeErr, failErr error
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, finalizeErr = repo.Finalize(ctx, rec.ID, rec.Version, "abc", 1)
		}()
		go func() {
			defer wg.Done()
			_, failErr = repo.MarkFailed(ctx, rec.ID, rec.Version)
		}()
		wg.Wait()

		got, err := repo.Get(ctx, rec.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(2), got.Version)

		switch got.State {
		case filekeep.StateFinalized:
			assert.NoError(t, finalizeErr)
			assert.ErrorIs(t, failErr, filekeep.ErrConflict)
		case filekeep.StateFailed:
			assert.NoError(t, failErr)
			assert.ErrorIs(t, finalizeErr, filekeep.ErrConflict)
		default:
			t.Fatalf("unexpected state %s", got.State)
		}
	}
}

func testMarkDeleted(t *testing.T, repo filekeep.MetaDataRepo) {
	ctx := context.Background()

	done := finalize(t, repo, allocate(t, repo, "alice"))
	out, err := repo.MarkDeleted(ctx, done.ID, done.Version)
	require.NoError(t, err)
	assert.Equal(t, filekeep.StateDeleted, out.State)

	failed, err := repo.MarkFailed(ctx, allocate(t, repo, "alice").ID, 1)
	require.NoError(t, err)
	out, err = repo.MarkDeleted(ctx, failed.ID, failed.Version)
	require.NoError(t, err)
	assert.Equal(t, filekeep.StateDeleted, out.State)

	pending := allocate(t, repo, "alice")
	_, err = repo.MarkDeleted(ctx, pending.ID, pending.Version)
	assert.ErrorIs(t, err, filekeep.ErrConflict)

	_, err = repo.MarkDeleted(ctx, out.ID, out.Version)
	assert.ErrorIs(t, err, filekeep.ErrConflict, "deleted is terminal")
}

func testRename(t *testing.T, repo filekeep.MetaDataRepo) {
	ctx := context.Background()
	pending := allocate(t, repo, "alice")

	_, err := repo.Rename(ctx, pending.ID, pending.Version, "early.pdf")
	assert.ErrorIs(t, err, filekeep.ErrConflict, "pending records cannot be renamed")

	rec := finalize(t, repo, pending)
	out, err := repo.Rename(ctx, rec.ID, rec.Version, "renamed.pdf")
	require.NoError(t, err)
	assert.Equal(t, "renamed.pdf", out.Name)
	assert.Equal(t, filekeep.StateFinalized, out.State)
	assert.Equal(t, rec.Version+1, out.Version)

	_, err = repo.Rename(ctx, rec.ID, rec.Version, "again.pdf")
	assert.ErrorIs(t, err, filekeep.ErrConflict)

	failed, err := repo.MarkFailed(ctx, allocate(t, repo, "alice").ID, 1)
	require.NoError(t, err)
	_, err = repo.Rename(ctx, failed.ID, failed.Version, "dead.pdf")
	assert.ErrorIs(t, err, filekeep.ErrConflict)

	_, err = repo.Rename(ctx, uuid.New(), 1, "x")
	assert.ErrorIs(t, err, filekeep.ErrNotFound)
}

func testRequestDelete(t *testing.T, repo filekeep.MetaDataRepo) {
	ctx := context.Background()

	done := finalize(t, repo, allocate(t, repo, "alice"))
	out, err := repo.RequestDelete(ctx, done.ID, done.Version)
	require.NoError(t, err)
	assert.Equal(t, filekeep.StateFinalized, out.State)
	require.NotNil(t, out.DeleteRequestedAt)
	assert.False(t, out.Readable())

	_, err = repo.RequestDelete(ctx, out.ID, out.Version)
	assert.ErrorIs(t, err, filekeep.ErrConflict, "delete is requested once")

	_, err = repo.Rename(ctx, out.ID, out.Version, "late.pdf")
	assert.ErrorIs(t, err, filekeep.ErrConflict)

	pending := allocate(t, repo, "alice")
	_, err = repo.RequestDelete(ctx, pending.ID, pending.Version)
	assert.ErrorIs(t, err, filekeep.ErrConflict)
}

func testGet(t *testing.T, repo filekeep.MetaDataRepo) {
	ctx := context.Background()
	rec := allocate(t, repo, "alice")

	got, err := repo.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, got.ID)
	assert.Equal(t, rec.BlobKey, got.BlobKey)

	got, err = repo.GetByBlobKey(ctx, rec.BlobKey)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, got.ID)

	_, err = repo.Get(ctx, uuid.New())
	assert.ErrorIs(t, err, filekeep.ErrNotFound)

	_, err = repo.GetByBlobKey(ctx, "nope/nope")
	assert.ErrorIs(t, err, filekeep.ErrNotFound)
}

func testListStale(t *testing.T, repo filekeep.MetaDataRepo) {
	ctx := context.Background()

	stale := allocate(t, repo, "alice")
	finalize(t, repo, allocate(t, repo, "alice"))

	res, err := repo.ListStale(ctx, time.Now().Add(time.Hour), filekeep.ListQuery{})
	require.NoError(t, err)
	require.Len(t, res.Items, 1)
	assert.Equal(t, stale.ID, res.Items[0].ID)

	res, err = repo.ListStale(ctx, time.Now().Add(-time.Hour), filekeep.ListQuery{})
	require.NoError(t, err)
	assert.Empty(t, res.Items, "fresh uploads are not stale")
}

func testListByState(t *testing.T, repo filekeep.MetaDataRepo) {
	ctx := context.Background()

	want := map[uuid.UUID]bool{}
	for range 5 {
		want[finalize(t, repo, allocate(t, repo, "alice")).ID] = true
	}
	allocate(t, repo, "alice")

	seen := map[uuid.UUID]bool{}
	cursor := ""
	pages := 0
	for {
		res, err := repo.ListByState(ctx, filekeep.StateFinalized, filekeep.ListQuery{Limit: 2, Cursor: cursor})
		require.NoError(t, err)
		pages++
		for _, item := range res.Items {
			assert.Equal(t, filekeep.StateFinalized, item.State)
			assert.False(t, seen[item.ID], "record listed twice")
			seen[item.ID] = true
		}
		if res.NextCursor == "" {
			break
		}
		cursor = res.NextCursor
	}

	assert.Equal(t, 3, pages)
	assert.Equal(t, want, seen)

	_, err := repo.ListByState(ctx, filekeep.StateFinalized, filekeep.ListQuery{Cursor: "%%%"})
	assert.ErrorIs(t, err, filekeep.ErrInvalidInput)
}

func testListPendingPurge(t *testing.T, repo filekeep.MetaDataRepo) {
	ctx := context.Background()

	kept := finalize(t, repo, allocate(t, repo, "alice"))
	doomed := finalize(t, repo, allocate(t, repo, "alice"))
	_, err := repo.RequestDelete(ctx, doomed.ID, doomed.Version)
	require.NoError(t, err)

	res, err := repo.ListPendingPurge(ctx, filekeep.ListQuery{})
	require.NoError(t, err)
	require.Len(t, res.Items, 1)
	assert.Equal(t, doomed.ID, res.Items[0].ID)
	assert.NotEqual(t, kept.ID, res.Items[0].ID)
}

func testListByOwner(t *testing.T, repo filekeep.MetaDataRepo) {
	ctx := context.Background()

	a1 := allocate(t, repo, "alice")
	a2 := finalize(t, repo, allocate(t, repo, "alice"))
	gone := finalize(t, repo, allocate(t, repo, "alice"))
	_, err := repo.MarkDeleted(ctx, gone.ID, gone.Version)
	require.NoError(t, err)
	purging := finalize(t, repo, allocate(t, repo, "alice"))
	_, err = repo.RequestDelete(ctx, purging.ID, purging.Version)
	require.NoError(t, err)
	b1 := allocate(t, repo, "bob")

	res, err := repo.ListByOwner(ctx, "alice", filekeep.ListQuery{})
	require.NoError(t, err)
	ids := make([]uuid.UUID, 0, len(res.Items))
	for _, item := range res.Items {
		ids = append(ids, item.ID)
	}
	assert.ElementsMatch(t, []uuid.UUID{a1.ID, a2.ID}, ids)

	res, err = repo.ListByOwner(ctx, "", filekeep.ListQuery{})
	require.NoError(t, err)
	assert.Len(t, res.Items, 3)
	assert.Contains(t, []uuid.UUID{res.Items[0].ID, res.Items[1].ID, res.Items[2].ID}, b1.ID)
}
