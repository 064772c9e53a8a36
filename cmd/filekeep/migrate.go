package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/sagarc03/filekeep/config"
	"github.com/sagarc03/filekeep/database"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage the metadata schema",
	Long: `Apply or revert the embedded schema migrations of the configured
database. The server validates the schema at startup and refuses to run
against an unmigrated database unless database.auto_migrate is set.`,
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	Args:  cobra.NoArgs,
	RunE: withDatabase(func(cmd *cobra.Command, db database.Database) error {
		if err := db.Migrate(cmd.Context()); err != nil {
			return err
		}
		if err := db.Validate(cmd.Context()); err != nil {
			return fmt.Errorf("validate database schema: %w", err)
		}
		return printVersion(cmd, db)
	}),
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Revert every migration (drops all file records)",
	Args:  cobra.NoArgs,
	RunE: withDatabase(func(cmd *cobra.Command, db database.Database) error {
		if !migrateForce {
			return fmt.Errorf("refusing to drop the schema without --force")
		}
		if err := db.MigrateDown(cmd.Context()); err != nil {
			return err
		}
		return printVersion(cmd, db)
	}),
}

var migrateVersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the applied schema version",
	Args:  cobra.NoArgs,
	RunE: withDatabase(func(cmd *cobra.Command, db database.Database) error {
		return printVersion(cmd, db)
	}),
}

var migrateForce bool

func init() {
	migrateDownCmd.Flags().BoolVar(&migrateForce, "force", false, "confirm dropping the schema")

	migrateCmd.AddCommand(migrateUpCmd, migrateDownCmd, migrateVersionCmd)
	rootCmd.AddCommand(migrateCmd)
}

// withDatabase connects without validating the schema, since migrate is the
// command that fixes it.
func withDatabase(fn func(cmd *cobra.Command, db database.Database) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cfg, err := config.FromContext(cmd.Context())
		if err != nil {
			return err
		}

		db, err := database.Connect(cmd.Context(), cfg.Database)
		if err != nil {
			return fmt.Errorf("connect database: %w", err)
		}
		defer func() { _ = db.Close() }()

		if err = db.Ping(cmd.Context()); err != nil {
			return fmt.Errorf("ping database: %w", err)
		}

		slog.Debug("connected to database", "type", cfg.Database.Type)
		return fn(cmd, db)
	}
}

func printVersion(cmd *cobra.Command, db database.Database) error {
	v, dirty, err := db.MigrationVersion(cmd.Context())
	if err != nil {
		return err
	}

	if dirty {
		fmt.Fprintf(cmd.OutOrStdout(), "version %d (dirty)\n", v)
		return nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "version %d\n", v)
	return nil
}
