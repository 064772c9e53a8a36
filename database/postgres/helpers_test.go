package postgres_test

import (
	"context"
	"crypto/rand"
	"fmt"
	"math"
	"math/big"
	"strings"
	"sync"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	pgcontainer "github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/sagarc03/filekeep"
	"github.com/sagarc03/filekeep/database/postgres"
)

var (
	testPool     *pgxpool.Pool
	testDSN      string
	testPoolOnce sync.Once
)

// getSharedTestDatabase returns a pool on a container shared by every test
// in the package.
func getSharedTestDatabase(t *testing.T) *pgxpool.Pool {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping postgres container test in short mode")
	}

	testPoolOnce.Do(func() {
		ctx := context.Background()

		pgContainer, err := pgcontainer.Run(ctx,
			"postgres:18-alpine",
			pgcontainer.WithDatabase("testdb"),
			pgcontainer.WithUsername("testuser"),
			pgcontainer.WithPassword("testpass"),
			pgcontainer.BasicWaitStrategies(),
		)
		if err != nil {
			t.Fatalf("failed to start postgres container: %v", err)
		}

		connectionStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
		if err != nil {
			_ = testcontainers.TerminateContainer(pgContainer)
			t.Fatalf("failed to get connection string: %v", err)
		}

		pool, err := pgxpool.New(ctx, connectionStr)
		if err != nil {
			_ = testcontainers.TerminateContainer(pgContainer)
			t.Fatalf("could not connect to database: %v", err)
		}

		testPool = pool
		testDSN = connectionStr
	})

	if testPool == nil {
		t.Fatal("shared postgres container is unavailable")
	}

	return testPool
}

// getRandomString generates a random string for unique test identifiers.
func getRandomString(t *testing.T) string {
	t.Helper()
	n, err := rand.Int(rand.Reader, big.NewInt(math.MaxInt64))
	require.NoError(t, err, "random string")
	return fmt.Sprintf("test%x", n.Int64())
}

// isolatedDSN creates a fresh schema and returns a DSN whose search_path
// points at it. The schema is dropped when the test ends.
func isolatedDSN(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	pool := getSharedTestDatabase(t)
	schema := getRandomString(t)
	ident := pgx.Identifier{schema}.Sanitize()

	_, err := pool.Exec(ctx, "CREATE SCHEMA "+ident)
	require.NoError(t, err, "create schema")

	t.Cleanup(func() {
		_, _ = pool.Exec(context.Background(), "DROP SCHEMA IF EXISTS "+ident+" CASCADE")
	})

	sep := "?"
	if strings.Contains(testDSN, "?") {
		sep = "&"
	}
	return testDSN + sep + "search_path=" + schema
}

// setupTestDB connects to an isolated schema.
func setupTestDB(t *testing.T) *postgres.Database {
	t.Helper()

	db, err := postgres.Connect(context.Background(), isolatedDSN(t))
	require.NoError(t, err, "failed to connect")
	t.Cleanup(func() { _ = db.Close() })

	return db
}

// setupTestRepo returns a repo over a freshly migrated schema.
func setupTestRepo(t *testing.T) filekeep.MetaDataRepo {
	t.Helper()

	db := setupTestDB(t)
	require.NoError(t, db.Migrate(context.Background()), "failed to migrate")

	return db.GetRepo()
}
