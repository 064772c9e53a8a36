package postgres_test

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sagarc03/filekeep/database/internal/repotest"
	"github.com/sagarc03/filekeep/database/postgres"
)

func TestConnect(t *testing.T) {
	db := setupTestDB(t)
	assert.NoError(t, db.Ping(context.Background()), "ping should succeed after connect")
}

func TestConnect_InvalidDSN(t *testing.T) {
	_, err := postgres.Connect(context.Background(), "postgres://%zz")
	assert.Error(t, err)
}

func TestDatabase_MigrateValidate(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)

	assert.Error(t, db.Validate(ctx), "validate should fail before migration")

	require.NoError(t, db.Migrate(ctx))
	require.NoError(t, db.Migrate(ctx), "migrate should be idempotent")
	assert.NoError(t, db.Validate(ctx))

	version, dirty, err := db.MigrationVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint(2), version)
	assert.False(t, dirty)
}

func TestDatabase_MigrateDown(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)

	require.NoError(t, db.Migrate(ctx))
	require.NoError(t, db.MigrateDown(ctx))

	version, _, err := db.MigrationVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint(0), version)
	assert.Error(t, db.Validate(ctx))
}

func TestDatabase_Validate_MissingColumn(t *testing.T) {
	ctx := context.Background()
	dsn := isolatedDSN(t)

	db, err := postgres.Connect(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.Migrate(ctx))

	conn, err := pgx.Connect(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close(context.Background()) })

	_, err = conn.Exec(ctx, `ALTER TABLE file_records DROP COLUMN checksum`)
	require.NoError(t, err)

	err = db.Validate(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing columns: checksum")
}

func TestRepo(t *testing.T) {
	repotest.Run(t, setupTestRepo)
}
