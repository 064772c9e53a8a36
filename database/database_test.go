package database_test

import (
	"context"
	"testing"

	"github.com/sagarc03/filekeep"
	"github.com/sagarc03/filekeep/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestConfig() database.Config {
	return database.Config{Type: "sqlite", DSN: ":memory:"}
}

func setupTestDB(t *testing.T) database.Database {
	t.Helper()

	db, err := database.Connect(context.Background(), newTestConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	return db
}

func TestConnect_SQLite(t *testing.T) {
	t.Parallel()

	db := setupTestDB(t)
	assert.NoError(t, db.Ping(context.Background()))
}

func TestConnect_UnsupportedType(t *testing.T) {
	t.Parallel()

	for _, typ := range []string{"", "mysql"} {
		_, err := database.Connect(context.Background(), database.Config{Type: typ, DSN: ":memory:"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unsupported database type")
	}
}

func TestDatabase_Migrate_Idempotent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	db := setupTestDB(t)
	require.NoError(t, db.Migrate(ctx))
	assert.NoError(t, db.Migrate(ctx), "migrate should be idempotent")

	version, dirty, err := db.MigrationVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint(2), version)
	assert.False(t, dirty)
}

func TestDatabase_Validate(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	db := setupTestDB(t)
	assert.Error(t, db.Validate(ctx), "validate should fail without tables")

	require.NoError(t, db.Migrate(ctx))
	assert.NoError(t, db.Validate(ctx))
}

func TestDatabase_MigrateDown(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	db := setupTestDB(t)
	require.NoError(t, db.Migrate(ctx))
	require.NoError(t, db.MigrateDown(ctx))

	version, _, err := db.MigrationVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint(0), version)
	assert.Error(t, db.Validate(ctx))
}

func TestDatabase_Close(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	db, err := database.Connect(ctx, newTestConfig())
	require.NoError(t, err)

	require.NoError(t, db.Close())
	assert.Error(t, db.Ping(ctx), "ping should fail after close")
}

func TestOpen(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("auto migrate", func(t *testing.T) {
		cfg := newTestConfig()
		cfg.AutoMigrate = true

		db, err := database.Open(ctx, cfg)
		require.NoError(t, err)
		t.Cleanup(func() { _ = db.Close() })

		repo := db.GetRepo()
		rec, err := repo.Allocate(ctx, filekeep.AllocateParams{
			OwnerID:     "alice",
			Name:        "a.txt",
			ContentType: "text/plain",
			BlobKey:     "k/1",
		})
		require.NoError(t, err)
		assert.Equal(t, filekeep.StatePending, rec.State)
	})

	t.Run("schema missing without auto migrate", func(t *testing.T) {
		_, err := database.Open(ctx, newTestConfig())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "validate database schema")
	})
}
