package sqlite_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sagarc03/filekeep"
	"github.com/sagarc03/filekeep/database/sqlite"
)

// setupTestDB opens a private in-memory database.
func setupTestDB(t *testing.T) *sqlite.Database {
	t.Helper()

	db, err := sqlite.Connect(context.Background(), ":memory:")
	require.NoError(t, err, "failed to connect")
	t.Cleanup(func() { _ = db.Close() })

	return db
}

// setupTestRepo returns a repo over a freshly migrated database.
func setupTestRepo(t *testing.T) filekeep.MetaDataRepo {
	t.Helper()

	db := setupTestDB(t)
	require.NoError(t, db.Migrate(context.Background()), "failed to migrate")

	return db.GetRepo()
}
