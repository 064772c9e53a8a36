package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/sagarc03/filekeep"

	_ "modernc.org/sqlite" // SQLite driver
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Database provides SQLite database operations.
type Database struct {
	db *sql.DB
}

// Connect opens a SQLite database. SQLite serialises writers, so the pool is
// limited to one connection; this also keeps a ":memory:" database shared by
// every caller.
func Connect(ctx context.Context, dsn string) (*Database, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err = db.ExecContext(ctx, `PRAGMA foreign_keys = ON; PRAGMA busy_timeout = 5000;`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connect sqlite: pragmas: %w", err)
	}

	return &Database{db: db}, nil
}

// Ping verifies the database connection is alive.
func (d *Database) Ping(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

// Migrate applies all pending migrations.
func (d *Database) Migrate(ctx context.Context) error {
	return d.withMigrator(ctx, func(m *migrate.Migrate) error {
		if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return fmt.Errorf("migrate up: %w", err)
		}
		return nil
	})
}

// MigrateDown reverts every applied migration.
func (d *Database) MigrateDown(ctx context.Context) error {
	return d.withMigrator(ctx, func(m *migrate.Migrate) error {
		if err := m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return fmt.Errorf("migrate down: %w", err)
		}
		return nil
	})
}

// MigrationVersion reports the applied schema version.
func (d *Database) MigrationVersion(ctx context.Context) (uint, bool, error) {
	var version uint
	var dirty bool

	err := d.withMigrator(ctx, func(m *migrate.Migrate) error {
		v, dt, err := m.Version()
		if errors.Is(err, migrate.ErrNilVersion) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("migration version: %w", err)
		}
		version, dirty = v, dt
		return nil
	})

	return version, dirty, err
}

// withMigrator runs fn against the shared handle. The migrate instance is not
// closed, since closing its driver would close d.db.
func (d *Database) withMigrator(ctx context.Context, fn func(m *migrate.Migrate) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	driver, err := migratesqlite.WithInstance(d.db, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("migration driver: %w", err)
	}

	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("init migrations: %w", err)
	}

	return fn(m)
}

// Validate checks that the database schema matches the expected structure.
func (d *Database) Validate(ctx context.Context) error {
	if err := validateTableSchema(ctx, d.db, tableName, fileRecordsSchema); err != nil {
		return fmt.Errorf("validate schema %s: %w", tableName, err)
	}
	return nil
}

// GetRepo returns the MetaDataRepo for database operations.
func (d *Database) GetRepo() filekeep.MetaDataRepo {
	return NewRepo(d.db)
}

// Close closes the database connection.
func (d *Database) Close() error {
	return d.db.Close()
}
