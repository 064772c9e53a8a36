package filekeep

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ReconcilerConfig holds configuration options for Reconciler.
type ReconcilerConfig struct {
	Interval   time.Duration // Time between runs (default: 5m)
	StaleAfter time.Duration // Age after which a PENDING record is abandoned (default: 1h)
	PageSize   int           // Records per list call (default: 100)
	// ListBlobs enables the namespace sweep over every blob key. It needs a
	// blob store implementing BlobLister.
	ListBlobs bool
	// VerifyFinalized checks that every FINALIZED record still has its blob.
	VerifyFinalized bool
	Logger          *slog.Logger
	Metrics         *Metrics
	Now             func() time.Time
}

// Reconciler repairs divergence between the metadata store and the blob
// store left behind by crashes and failed cleanups. Every pass only acts on
// records no live request owns: PENDING past the staleness window, FAILED,
// or FINALIZED with a delete request.
type Reconciler struct {
	repo  MetaDataRepo
	blobs BlobStore
	cfg   ReconcilerConfig

	logger  *slog.Logger
	metrics *Metrics
	now     func() time.Time

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

func NewReconciler(repo MetaDataRepo, blobs BlobStore, cfg ReconcilerConfig) *Reconciler {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Minute
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = time.Hour
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultListLimit
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	metrics := cfg.Metrics
	if metrics == nil {
		metrics = NewMetrics(nil)
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Reconciler{
		repo:    repo,
		blobs:   blobs,
		cfg:     cfg,
		logger:  logger.With(slog.String("component", "reconciler")),
		metrics: metrics,
		now:     now,
	}
}

// Start runs the reconciler every Interval until ctx is cancelled or Stop is
// called. Starting a running reconciler does nothing.
func (r *Reconciler) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cancel != nil {
		return
	}

	runCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.done = make(chan struct{})

	go r.run(runCtx, r.done)

	r.logger.Info("reconciler started",
		slog.Duration("interval", r.cfg.Interval),
		slog.Duration("stale_after", r.cfg.StaleAfter),
	)
}

// Stop cancels the loop and waits for an active run to return.
func (r *Reconciler) Stop() {
	r.mu.Lock()
	cancel, done := r.cancel, r.done
	r.cancel, r.done = nil, nil
	r.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	r.logger.Info("reconciler stopped")
}

func (r *Reconciler) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := r.RunOnce(ctx); err != nil && !errors.Is(err, ErrReconcileInProgress) {
				r.logger.Error("reconcile run failed", slog.Any("error", err))
			}
		}
	}
}

// Trigger runs one pass on behalf of an admin caller.
func (r *Reconciler) Trigger(ctx context.Context) (ReconcileReport, error) {
	if _, err := Authorize(ctx, OpReconcile); err != nil {
		return ReconcileReport{}, fmt.Errorf("reconcile: %w", err)
	}
	return r.RunOnce(ctx)
}

// RunOnce performs one reconciliation pass. It returns ErrReconcileInProgress
// when another pass is active.
//
// Passes, in order:
//  1. purge: FINALIZED records with a delete request lose their blob and become DELETED
//  2. failed: FAILED records lose their blob and become DELETED
//  3. namespace (ListBlobs): blob keys with no live record are deleted
//  4. stale: PENDING records older than StaleAfter become FAILED and lose their blob
//  5. verify (VerifyFinalized): FINALIZED records without a blob become DELETED
//
// A record failed by the stale pass stays FAILED until the next run.
// Conflicts are skipped. Other per-record errors are logged and counted; list
// errors abort the run.
func (r *Reconciler) RunOnce(ctx context.Context) (ReconcileReport, error) {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		r.logger.Warn("reconcile already running, skipping")
		return ReconcileReport{}, ErrReconcileInProgress
	}
	r.running = true
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		r.running = false
		r.mu.Unlock()
	}()

	started := time.Now()
	var report ReconcileReport

	err := r.runPasses(ctx, &report)

	r.metrics.reconcileDuration.Observe(time.Since(started).Seconds())
	if err != nil {
		r.metrics.reconcileRunsTotal.WithLabelValues("error").Inc()
		return report, fmt.Errorf("reconcile: %w", err)
	}
	r.metrics.reconcileRunsTotal.WithLabelValues("ok").Inc()

	r.logger.Info("reconcile finished",
		slog.Int("purged", report.Purged),
		slog.Int("failed_cleaned", report.FailedCleaned),
		slog.Int("orphans", report.OrphansFound),
		slog.Int("stale_failed", report.StaleFailed),
		slog.Int("dangling", report.Dangling),
		slog.Int("skipped", report.Skipped),
		slog.Int("errors", report.Errors),
		slog.Duration("duration", time.Since(started)),
	)

	return report, nil
}

func (r *Reconciler) runPasses(ctx context.Context, report *ReconcileReport) error {
	if err := r.sweep(ctx, "purge", r.repo.ListPendingPurge, func(rec FileRecord) error {
		return r.retire(ctx, rec, &report.Purged, "purged")
	}, report); err != nil {
		return err
	}

	listFailed := func(ctx context.Context, q ListQuery) (ListResult, error) {
		return r.repo.ListByState(ctx, StateFailed, q)
	}
	if err := r.sweep(ctx, "failed", listFailed, func(rec FileRecord) error {
		return r.retire(ctx, rec, &report.FailedCleaned, "failed_cleaned")
	}, report); err != nil {
		return err
	}

	if r.cfg.ListBlobs {
		if err := r.sweepNamespace(ctx, report); err != nil {
			return err
		}
	}

	olderThan := r.now().Add(-r.cfg.StaleAfter)
	listStale := func(ctx context.Context, q ListQuery) (ListResult, error) {
		return r.repo.ListStale(ctx, olderThan, q)
	}
	if err := r.sweep(ctx, "stale", listStale, func(rec FileRecord) error {
		return r.failStale(ctx, rec, report)
	}, report); err != nil {
		return err
	}

	if r.cfg.VerifyFinalized {
		listFinalized := func(ctx context.Context, q ListQuery) (ListResult, error) {
			return r.repo.ListByState(ctx, StateFinalized, q)
		}
		if err := r.sweep(ctx, "verify", listFinalized, func(rec FileRecord) error {
			return r.verifyFinalized(ctx, rec, report)
		}, report); err != nil {
			return err
		}
	}

	return nil
}

type listFunc func(ctx context.Context, q ListQuery) (ListResult, error)

// sweep pages through list and applies fn to every record. A Conflict from fn
// counts as skipped; other errors are logged and counted.
func (r *Reconciler) sweep(ctx context.Context, pass string, list listFunc, fn func(FileRecord) error, report *ReconcileReport) error {
	cursor := ""

	for {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%s: %w", pass, err)
		}

		result, err := list(ctx, ListQuery{Limit: r.cfg.PageSize, Cursor: cursor})
		if err != nil {
			return fmt.Errorf("%s: %w", pass, err)
		}

		for _, rec := range result.Items {
			err = fn(rec)
			switch {
			case err == nil:
			case errors.Is(err, ErrConflict):
				report.Skipped++
			default:
				report.Errors++
				r.logger.Error("reconcile record failed",
					slog.String("pass", pass),
					slog.String("file_id", rec.ID.String()),
					slog.Any("error", err),
				)
			}
		}

		if result.NextCursor == "" {
			return nil
		}
		cursor = result.NextCursor
	}
}

// retire deletes the blob of a FAILED or delete-requested record and marks it DELETED.
func (r *Reconciler) retire(ctx context.Context, rec FileRecord, counter *int, action string) error {
	if err := r.blobs.Delete(ctx, rec.BlobKey); err != nil {
		return fmt.Errorf("delete blob %s: %w", rec.BlobKey, err)
	}

	if _, err := r.repo.MarkDeleted(ctx, rec.ID, rec.Version); err != nil {
		return fmt.Errorf("mark deleted: %w", err)
	}

	*counter++
	r.metrics.reconcileActionsTotal.WithLabelValues(action).Inc()
	return nil
}

func (r *Reconciler) failStale(ctx context.Context, rec FileRecord, report *ReconcileReport) error {
	if _, err := r.repo.MarkFailed(ctx, rec.ID, rec.Version); err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}

	report.StaleFailed++
	r.metrics.reconcileActionsTotal.WithLabelValues("stale_failed").Inc()
	r.logger.Warn("abandoned upload marked failed",
		slog.String("file_id", rec.ID.String()),
		slog.Time("created_at", rec.CreatedAt),
	)

	if err := r.blobs.Delete(ctx, rec.BlobKey); err != nil {
		return fmt.Errorf("delete blob %s: %w", rec.BlobKey, err)
	}

	return nil
}

func (r *Reconciler) verifyFinalized(ctx context.Context, rec FileRecord, report *ReconcileReport) error {
	exists, err := r.blobs.Exists(ctx, rec.BlobKey)
	if err != nil {
		return fmt.Errorf("exists %s: %w", rec.BlobKey, err)
	}
	if exists {
		return nil
	}

	r.logger.Error("finalized record has no blob, retiring",
		slog.String("file_id", rec.ID.String()),
		slog.String("blob_key", rec.BlobKey),
	)

	if _, err = r.repo.MarkDeleted(ctx, rec.ID, rec.Version); err != nil {
		return fmt.Errorf("mark deleted: %w", err)
	}

	report.Dangling++
	r.metrics.reconcileActionsTotal.WithLabelValues("dangling").Inc()
	return nil
}

// sweepNamespace deletes every blob whose key has no PENDING or FINALIZED record.
func (r *Reconciler) sweepNamespace(ctx context.Context, report *ReconcileReport) error {
	lister, ok := r.blobs.(BlobLister)
	if !ok {
		r.logger.Warn("blob store cannot list keys, namespace sweep skipped")
		return nil
	}

	err := lister.ListKeys(ctx, func(key string) error {
		rec, err := r.repo.GetByBlobKey(ctx, key)
		switch {
		case errors.Is(err, ErrNotFound):
		case err != nil:
			report.Errors++
			r.logger.Error("lookup blob key", slog.String("blob_key", key), slog.Any("error", err))
			return nil
		case rec.State == StatePending || rec.State == StateFinalized:
			return nil
		}

		if delErr := r.blobs.Delete(ctx, key); delErr != nil {
			report.Errors++
			r.logger.Error("delete orphan blob", slog.String("blob_key", key), slog.Any("error", delErr))
			return nil
		}

		report.OrphansFound++
		r.metrics.reconcileActionsTotal.WithLabelValues("orphan_deleted").Inc()
		r.logger.Info("orphan blob deleted", slog.String("blob_key", key))
		return nil
	})
	if err != nil {
		return fmt.Errorf("namespace: %w", err)
	}

	return nil
}
