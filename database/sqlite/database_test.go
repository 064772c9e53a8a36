package sqlite_test

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/sagarc03/filekeep/database/sqlite"
)

func TestDatabase_MigrateValidate(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)

	require.Error(t, db.Validate(ctx), "no table before migration")

	require.NoError(t, db.Migrate(ctx))
	require.NoError(t, db.Migrate(ctx), "migrate is idempotent")
	assert.NoError(t, db.Validate(ctx))

	version, dirty, err := db.MigrationVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint(2), version)
	assert.False(t, dirty)

	require.NoError(t, db.MigrateDown(ctx))
	assert.Error(t, db.Validate(ctx))
}

func TestDatabase_Validate_WrongSchema(t *testing.T) {
	ctx := context.Background()
	dsn := "file:" + t.TempDir() + "/wrong.db"

	raw, err := sql.Open("sqlite", dsn)
	require.NoError(t, err)
	_, err = raw.ExecContext(ctx, `CREATE TABLE file_records (id TEXT NOT NULL PRIMARY KEY, name INTEGER)`)
	require.NoError(t, err)
	require.NoError(t, raw.Close())

	db, err := sqlite.Connect(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	err = db.Validate(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing columns")
	assert.Contains(t, err.Error(), "name: expected text, got integer")
}
