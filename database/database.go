package database

import (
	"context"
	"fmt"

	"github.com/sagarc03/filekeep"
	"github.com/sagarc03/filekeep/database/postgres"
	"github.com/sagarc03/filekeep/database/sqlite"
)

// Database is a connected metadata backend.
type Database interface {
	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	MigrateDown(ctx context.Context) error
	// MigrationVersion returns the applied version and whether the last
	// migration left the schema dirty.
	MigrationVersion(ctx context.Context) (uint, bool, error)
	Validate(ctx context.Context) error
	GetRepo() filekeep.MetaDataRepo
	Close() error
}

// Config holds the configuration for connecting to a metadata backend.
type Config struct {
	// Type specifies the database type: "sqlite" or "postgres"
	Type string `mapstructure:"type" validate:"required,oneof=sqlite postgres"`
	// DSN is the data source name (connection string)
	DSN string `mapstructure:"dsn" validate:"required"`
	// AutoMigrate applies pending migrations on Open.
	AutoMigrate bool `mapstructure:"auto_migrate"`
}

// Connect opens the configured backend without touching its schema.
func Connect(ctx context.Context, cfg Config) (Database, error) {
	switch cfg.Type {
	case "sqlite":
		return sqlite.Connect(ctx, cfg.DSN)
	case "postgres":
		return postgres.Connect(ctx, cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported database type: %q", cfg.Type)
	}
}

// Open connects, optionally migrates, and validates the schema. A backend
// whose schema does not match is closed and reported as an error.
func Open(ctx context.Context, cfg Config) (Database, error) {
	db, err := Connect(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	if err = db.Ping(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if cfg.AutoMigrate {
		if err = db.Migrate(ctx); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("migrate database: %w", err)
		}
	}

	if err = db.Validate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("validate database schema: %w", err)
	}

	return db, nil
}
