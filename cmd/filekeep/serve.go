package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/sagarc03/filekeep"
	"github.com/sagarc03/filekeep/config"
	filekeephttp "github.com/sagarc03/filekeep/http"
	"github.com/sagarc03/filekeep/keybackend"
	"github.com/sagarc03/filekeep/token"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Long: `Start the filekeep HTTP server and, unless reconcile.enabled is false,
the background reconciler.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().Int("port", 5708, "HTTP server port (env: FILEKEEP_SERVER_PORT)")
	serveCmd.Flags().Bool("auto-migrate", false, "apply pending migrations at startup (env: FILEKEEP_DATABASE_AUTO_MIGRATE)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
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

	secrets, err := keybackend.NewSecretStore(cfg.Auth.Keys)
	if err != nil {
		return fmt.Errorf("load signing keys: %w", err)
	}

	var secretStore filekeep.SecretStore
	if secrets.Len() > 0 {
		secretStore = secrets
	}

	verifier, err := token.NewVerifier(cfg.Auth.Token, secretStore, slog.Default())
	if err != nil {
		return fmt.Errorf("create token verifier: %w", err)
	}

	reg, metrics := newRegistry()

	repo := b.db.GetRepo()
	service := filekeep.NewService(repo, b.blobs, serviceConfig(cfg, metrics))
	reconciler := filekeep.NewReconciler(repo, b.blobs, reconcilerConfig(cfg, metrics))

	if cfg.Reconcile.Enabled {
		reconciler.Start(ctx)
		defer reconciler.Stop()
	}

	handler := filekeephttp.NewHandler(&filekeephttp.HandlerConfig{
		Verifier:   verifier,
		Reconciler: reconciler,
		CORS:       cfg.CORS,
		Health:     b.db.Ping,
		Metrics:    promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}),
		Logger:     slog.Default(),
	}, service)

	server := newServer(cfg, handler.Router())
	addr := server.Addr

	errCh := make(chan error, 1)
	go func() {
		slog.Info("starting server", "addr", addr, "storage", cfg.Storage.Backend, "database", cfg.Database.Type)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "err", err)
	}

	return nil
}

// uploadDeadline is how long a request body may stream. It ends before the
// reconciler's staleness window so no upload is failed while still in flight.
func uploadDeadline(staleAfter time.Duration) time.Duration {
	if staleAfter <= 0 {
		staleAfter = time.Hour
	}
	return staleAfter - staleAfter/10
}

func newServer(cfg *config.Config, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           h,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		ReadTimeout:       uploadDeadline(cfg.Reconcile.StaleAfter),
		IdleTimeout:       120 * time.Second,
	}
}
