package main

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/sagarc03/filekeep"
	"github.com/sagarc03/filekeep/config"
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Run one reconcile pass and exit",
	Long: `Run a single reconcile pass against the configured stores.

The pass:
  1. Purges files whose deletion was requested
  2. Removes the blobs of FAILED uploads
  3. Deletes orphan blobs with no live record (--list-blobs)
  4. Marks PENDING uploads older than reconcile.stale_after as FAILED
  5. Retires FINALIZED records whose blob is missing (--verify)

Use this from cron when the server runs with reconcile.enabled=false.`,
	Args: cobra.NoArgs,
	RunE: runReconcile,
}

var (
	reconcileListBlobs bool
	reconcileVerify    bool
	reconcileJSON      bool
)

func init() {
	reconcileCmd.Flags().BoolVar(&reconcileListBlobs, "list-blobs", false, "sweep the blob namespace for orphans")
	reconcileCmd.Flags().BoolVar(&reconcileVerify, "verify", false, "check every finalized record still has its blob")
	reconcileCmd.Flags().BoolVar(&reconcileJSON, "json", false, "print the report as JSON")
	rootCmd.AddCommand(reconcileCmd)
}

func runReconcile(cmd *cobra.Command, args []string) error {
	cfg, err := config.FromContext(cmd.Context())
	if err != nil {
		return err
	}

	ctx, stop := signalContext(cmd.Context())
	defer stop()

	b, err := openBackends(ctx, cfg)
	if err != nil {
		return err
	}
	defer b.Close()

	rcfg := reconcilerConfig(cfg, filekeep.NewMetrics(nil))
	rcfg.ListBlobs = rcfg.ListBlobs || reconcileListBlobs
	rcfg.VerifyFinalized = rcfg.VerifyFinalized || reconcileVerify

	reconciler := filekeep.NewReconciler(b.db.GetRepo(), b.blobs, rcfg)

	slog.Info("starting reconcile", "stale_after", rcfg.StaleAfter, "list_blobs", rcfg.ListBlobs, "verify", rcfg.VerifyFinalized)

	report, err := reconciler.RunOnce(ctx)
	if err != nil {
		return err
	}

	if reconcileJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}

	fmt.Fprintf(cmd.OutOrStdout(),
		"purged=%d failed_cleaned=%d orphans=%d stale_failed=%d dangling=%d skipped=%d errors=%d\n",
		report.Purged, report.FailedCleaned, report.OrphansFound, report.StaleFailed,
		report.Dangling, report.Skipped, report.Errors,
	)
	return nil
}
