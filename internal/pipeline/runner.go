package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/fleetops/telemetry-trainer/internal/cache"
	"github.com/fleetops/telemetry-trainer/internal/metrics"
	"github.com/fleetops/telemetry-trainer/internal/partition"
	"github.com/fleetops/telemetry-trainer/internal/storage"
	"github.com/fleetops/telemetry-trainer/internal/training"
	"github.com/fleetops/telemetry-trainer/pkg/logger"
)

// Runner executes training runs: it lists one daily partition and hands
// the keys to the trainer, recording run state along the way.
type Runner struct {
	store   storage.ObjectStorage
	trainer training.Trainer
	repo    Repository
	cache   cache.PartitionCache
	cfg     RunnerConfig
	log     zerolog.Logger

	// mu serializes run-record creation so concurrent triggers for the
	// same date share one record instead of racing to create two.
	mu sync.Mutex

	bucketMu    sync.Mutex
	bucketReady bool
}

// NewRunner creates a new Runner.
func NewRunner(store storage.ObjectStorage, trainer training.Trainer, repo Repository, pc cache.PartitionCache, cfg RunnerConfig) *Runner {
	if cfg.RetryAttempts < 1 {
		cfg.RetryAttempts = 1
	}
	return &Runner{
		store:   store,
		trainer: trainer,
		repo:    repo,
		cache:   pc,
		cfg:     cfg,
		log:     logger.With("runner"),
	}
}

// Run executes the training pipeline for one partition date.
func (r *Runner) Run(ctx context.Context, date time.Time) (*TrainingRun, error) {
	started := time.Now()
	prefix := partition.Prefix(r.cfg.TruckID, date)

	run, err := r.getOrCreateRun(ctx, date)
	if err != nil {
		return nil, fmt.Errorf("create training run: %w", err)
	}

	r.log.Info().
		Str("truck_id", r.cfg.TruckID).
		Str("ds", partition.DS(date)).
		Str("prefix", prefix).
		Msg("starting training run")

	run.Status = StatusRunning
	if err := r.repo.UpdateRun(ctx, run); err != nil {
		return nil, fmt.Errorf("update training run: %w", err)
	}

	if err := r.ensureBucket(ctx); err != nil {
		return run, r.failRun(ctx, run, started, fmt.Errorf("ensure bucket %s: %w", r.store.Bucket(), err))
	}

	keys, attempts, err := r.listWithRetry(ctx, prefix)
	run.Attempts = attempts
	if err != nil {
		return run, r.failRun(ctx, run, started, fmt.Errorf("list partition %s: %w", prefix, err))
	}

	// Best effort; a stale or missing cache entry never fails the run.
	listing := &cache.Listing{
		Prefix:    prefix,
		Keys:      keys,
		Count:     len(keys),
		FetchedAt: time.Now().UTC(),
	}
	if err := r.cache.SetListing(ctx, listing); err != nil {
		r.log.Warn().Err(err).Str("prefix", prefix).Msg("failed to cache partition listing")
	}

	trainCtx := training.RunContext{
		TruckID: r.cfg.TruckID,
		Date:    date,
		Prefix:  prefix,
	}
	if err := r.trainer.Train(ctx, trainCtx, keys); err != nil {
		return run, r.failRun(ctx, run, started, fmt.Errorf("train on %s: %w", prefix, err))
	}

	run.Status = StatusCompleted
	run.KeyCount = len(keys)
	run.ErrorMessage = ""
	now := time.Now()
	run.CompletedAt = &now
	if err := r.repo.UpdateRun(ctx, run); err != nil {
		return run, fmt.Errorf("complete training run: %w", err)
	}

	metrics.RunsTotal.WithLabelValues(string(StatusCompleted)).Inc()
	metrics.KeysFetched.Add(float64(len(keys)))
	metrics.RunDuration.Observe(time.Since(started).Seconds())

	r.log.Info().
		Str("ds", partition.DS(date)).
		Int("keys", len(keys)).
		Dur("duration", time.Since(started)).
		Msg("training run completed")

	return run, nil
}

// listWithRetry lists the partition, retrying per the configured attempts
// and backoff. It returns the attempts used alongside the keys.
func (r *Runner) listWithRetry(ctx context.Context, prefix string) ([]string, int, error) {
	var lastErr error

	for attempt := 1; attempt <= r.cfg.RetryAttempts; attempt++ {
		keys, err := r.store.ListKeys(ctx, prefix)
		if err == nil {
			if keys == nil {
				keys = []string{}
			}
			return keys, attempt, nil
		}
		lastErr = err

		r.log.Warn().
			Err(err).
			Str("prefix", prefix).
			Int("attempt", attempt).
			Int("max_attempts", r.cfg.RetryAttempts).
			Msg("partition listing failed")

		if attempt == r.cfg.RetryAttempts {
			break
		}
		metrics.ListRetries.Inc()

		select {
		case <-ctx.Done():
			return nil, attempt, ctx.Err()
		case <-time.After(r.cfg.RetryBackoff):
		}
	}

	return nil, r.cfg.RetryAttempts, lastErr
}

// ensureBucket checks the bucket once per Runner, retrying on later runs
// only if the first check failed.
func (r *Runner) ensureBucket(ctx context.Context) error {
	r.bucketMu.Lock()
	defer r.bucketMu.Unlock()

	if r.bucketReady {
		return nil
	}
	if err := r.store.EnsureBucket(ctx); err != nil {
		return err
	}
	r.bucketReady = true
	return nil
}

func (r *Runner) failRun(ctx context.Context, run *TrainingRun, started time.Time, cause error) error {
	run.Status = StatusFailed
	run.KeyCount = 0
	run.ErrorMessage = cause.Error()
	now := time.Now()
	run.CompletedAt = &now

	if err := r.repo.UpdateRun(ctx, run); err != nil {
		r.log.Error().Err(err).Int64("run_id", run.ID).Msg("failed to record run failure")
	}

	metrics.RunsTotal.WithLabelValues(string(StatusFailed)).Inc()
	metrics.RunDuration.Observe(time.Since(started).Seconds())

	return cause
}

// getOrCreateRun returns the existing run for the date or creates a fresh
// pending one. Re-running a date resets its previous outcome.
func (r *Runner) getOrCreateRun(ctx context.Context, date time.Time) (*TrainingRun, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	run, err := r.repo.GetRunByDate(ctx, r.cfg.TruckID, date)
	if err != nil {
		return nil, err
	}

	if run != nil {
		run.Status = StatusPending
		run.KeyCount = 0
		run.Attempts = 0
		run.ErrorMessage = ""
		run.CompletedAt = nil
		run.StartedAt = time.Now()
		if err := r.repo.UpdateRun(ctx, run); err != nil {
			return nil, err
		}
		return run, nil
	}

	run = &TrainingRun{
		TruckID:   r.cfg.TruckID,
		Date:      date,
		Status:    StatusPending,
		StartedAt: time.Now(),
	}
	if err := r.repo.CreateRun(ctx, run); err != nil {
		return nil, err
	}

	return run, nil
}
