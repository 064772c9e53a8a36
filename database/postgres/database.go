package postgres

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	migratepgx "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib" // database/sql driver used by migrations

	"github.com/sagarc03/filekeep"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Database wraps a PostgreSQL connection pool.
type Database struct {
	pool *pgxpool.Pool
	dsn  string
}

// Connect establishes a connection pool to PostgreSQL.
func Connect(ctx context.Context, dsn string) (*Database, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	return &Database{pool: pool, dsn: dsn}, nil
}

// Ping verifies the database connection is alive.
func (d *Database) Ping(ctx context.Context) error {
	return d.pool.Ping(ctx)
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

// MigrationVersion reports the applied schema version. A database without
// any migration reports version 0.
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

func (d *Database) withMigrator(ctx context.Context, fn func(m *migrate.Migrate) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	db, err := sql.Open("pgx", d.dsn)
	if err != nil {
		return fmt.Errorf("open migration connection: %w", err)
	}
	defer func() { _ = db.Close() }()

	driver, err := migratepgx.WithInstance(db, &migratepgx.Config{})
	if err != nil {
		return fmt.Errorf("migration driver: %w", err)
	}

	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "pgx5", driver)
	if err != nil {
		return fmt.Errorf("init migrations: %w", err)
	}
	defer func() { _, _ = m.Close() }()

	return fn(m)
}

// Validate checks that the database schema matches the expected structure.
func (d *Database) Validate(ctx context.Context) error {
	if err := validateTableSchema(ctx, d.pool, tableName, fileRecordsSchema); err != nil {
		return fmt.Errorf("validate schema %s: %w", tableName, err)
	}
	return nil
}

// GetRepo returns the MetaDataRepo for database operations.
func (d *Database) GetRepo() filekeep.MetaDataRepo {
	return NewRepo(d.pool)
}

// Close closes the database connection pool.
func (d *Database) Close() error {
	d.pool.Close()
	return nil
}
