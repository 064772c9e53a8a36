package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/sagarc03/filekeep"
	"github.com/sagarc03/filekeep/config"
	"github.com/sagarc03/filekeep/database"
	"github.com/sagarc03/filekeep/filesystem"
	"github.com/sagarc03/filekeep/s3store"
)

// backends holds the opened metadata and blob stores.
type backends struct {
	db      database.Database
	blobs   filekeep.BlobStore
	closers []func() error
}

func (b *backends) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](); err != nil {
			slog.Warn("close backend", "err", err)
		}
	}
}

// openBackends connects the database (migrating it when auto_migrate is set,
// then validating its schema) and the configured blob store.
func openBackends(ctx context.Context, cfg *config.Config) (*backends, error) {
	db, err := database.Open(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	slog.Info("connected to database", "type", cfg.Database.Type)

	b := &backends{db: db, closers: []func() error{db.Close}}

	blobs, closeBlobs, err := openBlobStore(ctx, cfg)
	if err != nil {
		b.Close()
		return nil, err
	}
	b.blobs = blobs
	if closeBlobs != nil {
		b.closers = append(b.closers, closeBlobs)
	}

	return b, nil
}

func openBlobStore(ctx context.Context, cfg *config.Config) (filekeep.BlobStore, func() error, error) {
	switch cfg.Storage.Backend {
	case "filesystem":
		if err := os.MkdirAll(cfg.Storage.Path, 0o750); err != nil {
			return nil, nil, fmt.Errorf("create storage directory: %w", err)
		}

		root, err := os.OpenRoot(cfg.Storage.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("open storage root: %w", err)
		}

		slog.Info("using filesystem blob store", "path", cfg.Storage.Path)
		return filesystem.NewFileStorage(root), root.Close, nil

	case "s3":
		s3cfg := cfg.Storage.S3
		if s3cfg.PartSize == 0 {
			s3cfg.PartSize = cfg.Upload.ChunkSize
		}

		store, err := s3store.New(ctx, s3cfg)
		if err != nil {
			return nil, nil, fmt.Errorf("open s3 store: %w", err)
		}

		slog.Info("using s3 blob store", "bucket", s3cfg.Bucket, "region", s3cfg.Region, "endpoint", s3cfg.Endpoint)
		return store, nil, nil
	}

	return nil, nil, errors.New("unsupported storage backend: " + cfg.Storage.Backend)
}

func serviceConfig(cfg *config.Config, metrics *filekeep.Metrics) filekeep.ServiceConfig {
	return filekeep.ServiceConfig{
		SizeTolerance:  cfg.Upload.SizeTolerance,
		MaxUploadSize:  cfg.Upload.MaxSize,
		CleanupTimeout: cfg.Upload.CleanupTimeout,
		PresignTTL:     cfg.Upload.PresignTTL,
		Logger:         slog.Default(),
		Metrics:        metrics,
	}
}

func reconcilerConfig(cfg *config.Config, metrics *filekeep.Metrics) filekeep.ReconcilerConfig {
	return filekeep.ReconcilerConfig{
		Interval:        cfg.Reconcile.Interval,
		StaleAfter:      cfg.Reconcile.StaleAfter,
		PageSize:        cfg.Reconcile.PageSize,
		ListBlobs:       cfg.Reconcile.ListBlobs,
		VerifyFinalized: cfg.Reconcile.VerifyFinalized,
		Logger:          slog.Default(),
		Metrics:         metrics,
	}
}

// newRegistry returns a registry with the Go runtime and process collectors
// and the filekeep metrics.
func newRegistry() (*prometheus.Registry, *filekeep.Metrics) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)
	return reg, filekeep.NewMetrics(reg)
}
