package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sagarc03/filekeep/config"
)

var version = "dev"

var rootCmd = &cobra.Command{
	Version: version,
	Use:     "filekeep",
	Short:   "File storage server with a consistent metadata and blob store",
	Long: `filekeep stores files in a blob store (local directory or S3) and
tracks them in a relational metadata store (SQLite or PostgreSQL). Uploads are
streamed, and a reconciler repairs anything a crash leaves behind.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		configFiles, _ := cmd.Flags().GetStringSlice("config")

		cfg, err := config.Load(configFiles, cmd.Flags())
		if err != nil {
			return err
		}

		setupLogging(cfg)
		cmd.SetContext(config.WithContext(cmd.Context(), cfg))
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the filekeep version",
	Args:  cobra.NoArgs,
	PersistentPreRunE: func(*cobra.Command, []string) error {
		return nil
	},
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringSlice("config", nil, "config file paths, merged left to right (default: ./config.yaml)")
	rootCmd.PersistentFlags().String("db-type", "", "database type: sqlite, postgres (default: sqlite, env: FILEKEEP_DATABASE_TYPE)")
	rootCmd.PersistentFlags().String("db-dsn", "", "database connection string (default: filekeep.db, env: FILEKEEP_DATABASE_DSN)")
	rootCmd.PersistentFlags().String("storage-backend", "", "blob store: filesystem, s3 (default: filesystem, env: FILEKEEP_STORAGE_BACKEND)")
	rootCmd.PersistentFlags().String("storage-path", "", "storage directory path (default: ./data, env: FILEKEEP_STORAGE_PATH)")
	rootCmd.PersistentFlags().String("log-level", "", "log level: debug, info, warn, error (env: FILEKEEP_LOG_LEVEL)")

	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
