package sqlite_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sagarc03/filekeep"
	"github.com/sagarc03/filekeep/database/internal/repotest"
)

func TestRepo(t *testing.T) {
	repotest.Run(t, setupTestRepo)
}

func TestRepo_TimestampsSurviveRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := setupTestRepo(t)

	rec, err := repo.Allocate(ctx, filekeep.AllocateParams{
		OwnerID: "alice", Name: "a", ContentType: "text/plain", BlobKey: "k/ts",
	})
	require.NoError(t, err)

	got, err := repo.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.True(t, rec.CreatedAt.Equal(got.CreatedAt))
	assert.Equal(t, "UTC", got.CreatedAt.Location().String())
}
