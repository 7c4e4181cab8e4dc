package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetops/telemetry-trainer/internal/cache"
	"github.com/fleetops/telemetry-trainer/internal/config"
	"github.com/fleetops/telemetry-trainer/internal/storage"
	"github.com/fleetops/telemetry-trainer/internal/training"
)

// fakeStorage serves canned listings and can fail the first N calls.
type fakeStorage struct {
	mu           sync.Mutex
	keysByPrefix map[string][]string
	failCalls    int
	calls        int
	ensureCalls  int
	ensureErr    error
}

func (f *fakeStorage) ListKeys(ctx context.Context, prefix string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls <= f.failCalls {
		return nil, errors.New("connection refused")
	}
	return f.keysByPrefix[prefix], nil
}

func (f *fakeStorage) ListObjects(ctx context.Context, prefix string) ([]storage.ObjectInfo, error) {
	keys, err := f.ListKeys(ctx, prefix)
	if err != nil {
		return nil, err
	}
	infos := make([]storage.ObjectInfo, 0, len(keys))
	for _, k := range keys {
		infos = append(infos, storage.ObjectInfo{Key: k})
	}
	return infos, nil
}

func (f *fakeStorage) EnsureBucket(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ensureCalls++
	return f.ensureErr
}

func (f *fakeStorage) Bucket() string { return "truck-telemetry" }

// recordingTrainer captures what the runner hands to the training step.
type recordingTrainer struct {
	lastRun  training.RunContext
	lastKeys []string
	called   int
	err      error
}

func (r *recordingTrainer) Train(ctx context.Context, run training.RunContext, keys []string) error {
	r.called++
	r.lastRun = run
	r.lastKeys = keys
	return r.err
}

func noopCache(t *testing.T) cache.PartitionCache {
	t.Helper()
	pc, err := cache.NewPartitionCache(config.CacheConfig{Enabled: false})
	require.NoError(t, err)
	return pc
}

func testRunnerConfig() RunnerConfig {
	return RunnerConfig{
		TruckID:       "TRUCK-001",
		RetryAttempts: 3,
		RetryBackoff:  time.Millisecond,
	}
}

func TestRunnerHappyPath(t *testing.T) {
	date := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	store := &fakeStorage{keysByPrefix: map[string][]string{
		"TRUCK-001/2025-01-01/": {
			"TRUCK-001/2025-01-01/chunk-000.parquet",
			"TRUCK-001/2025-01-01/chunk-001.parquet",
		},
	}}
	trainer := &recordingTrainer{}
	repo := NewMemoryRepository()

	runner := NewRunner(store, trainer, repo, noopCache(t), testRunnerConfig())
	run, err := runner.Run(context.Background(), date)
	require.NoError(t, err)

	assert.Equal(t, StatusCompleted, run.Status)
	assert.Equal(t, 2, run.KeyCount)
	assert.Equal(t, 1, run.Attempts)
	assert.NotNil(t, run.CompletedAt)

	assert.Equal(t, 1, trainer.called)
	assert.Equal(t, "TRUCK-001/2025-01-01/", trainer.lastRun.Prefix)
	assert.Len(t, trainer.lastKeys, 2)

	persisted, err := repo.GetRunByDate(context.Background(), "TRUCK-001", date)
	require.NoError(t, err)
	require.NotNil(t, persisted)
	assert.Equal(t, StatusCompleted, persisted.Status)
}

func TestRunnerEmptyPartitionCompletes(t *testing.T) {
	date := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	store := &fakeStorage{keysByPrefix: map[string][]string{}}
	trainer := &recordingTrainer{}
	repo := NewMemoryRepository()

	runner := NewRunner(store, trainer, repo, noopCache(t), testRunnerConfig())
	run, err := runner.Run(context.Background(), date)
	require.NoError(t, err)

	assert.Equal(t, StatusCompleted, run.Status)
	assert.Equal(t, 0, run.KeyCount)

	// The trainer still runs, with a non-nil empty key list.
	assert.Equal(t, 1, trainer.called)
	assert.NotNil(t, trainer.lastKeys)
	assert.Empty(t, trainer.lastKeys)
}

func TestRunnerRetriesListing(t *testing.T) {
	date := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	store := &fakeStorage{
		failCalls: 2,
		keysByPrefix: map[string][]string{
			"TRUCK-001/2025-01-01/": {"TRUCK-001/2025-01-01/chunk-000.parquet"},
		},
	}
	trainer := &recordingTrainer{}
	repo := NewMemoryRepository()

	runner := NewRunner(store, trainer, repo, noopCache(t), testRunnerConfig())
	run, err := runner.Run(context.Background(), date)
	require.NoError(t, err)

	assert.Equal(t, StatusCompleted, run.Status)
	assert.Equal(t, 3, run.Attempts)
	assert.Equal(t, 1, run.KeyCount)
}

func TestRunnerFailsAfterRetriesExhausted(t *testing.T) {
	date := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	store := &fakeStorage{failCalls: 10}
	trainer := &recordingTrainer{}
	repo := NewMemoryRepository()

	runner := NewRunner(store, trainer, repo, noopCache(t), testRunnerConfig())
	run, err := runner.Run(context.Background(), date)
	require.Error(t, err)

	assert.Equal(t, StatusFailed, run.Status)
	assert.Equal(t, 3, run.Attempts)
	assert.Contains(t, run.ErrorMessage, "connection refused")
	assert.Zero(t, trainer.called)

	// Only the failing attempts were made, no more.
	assert.Equal(t, 3, store.calls)
}

func TestRunnerTrainerFailureMarksRunFailed(t *testing.T) {
	date := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	store := &fakeStorage{keysByPrefix: map[string][]string{}}
	trainer := &recordingTrainer{err: errors.New("gpu on fire")}
	repo := NewMemoryRepository()

	runner := NewRunner(store, trainer, repo, noopCache(t), testRunnerConfig())
	run, err := runner.Run(context.Background(), date)
	require.Error(t, err)

	assert.Equal(t, StatusFailed, run.Status)
	assert.Contains(t, run.ErrorMessage, "gpu on fire")
}

func TestRunnerRerunReusesRunRecord(t *testing.T) {
	date := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	store := &fakeStorage{keysByPrefix: map[string][]string{}}
	repo := NewMemoryRepository()

	runner := NewRunner(store, &recordingTrainer{}, repo, noopCache(t), testRunnerConfig())

	first, err := runner.Run(context.Background(), date)
	require.NoError(t, err)
	second, err := runner.Run(context.Background(), date)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)

	runs, err := repo.ListRuns(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}

func TestRunnerEnsuresBucketOnce(t *testing.T) {
	store := &fakeStorage{keysByPrefix: map[string][]string{}}
	repo := NewMemoryRepository()
	runner := NewRunner(store, &recordingTrainer{}, repo, noopCache(t), testRunnerConfig())

	_, err := runner.Run(context.Background(), time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	_, err = runner.Run(context.Background(), time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	assert.Equal(t, 1, store.ensureCalls)
}

func TestRunnerBucketFailureMarksRunFailed(t *testing.T) {
	store := &fakeStorage{ensureErr: errors.New("access denied")}
	trainer := &recordingTrainer{}
	repo := NewMemoryRepository()
	runner := NewRunner(store, trainer, repo, noopCache(t), testRunnerConfig())

	run, err := runner.Run(context.Background(), time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	require.Error(t, err)

	assert.Equal(t, StatusFailed, run.Status)
	assert.Contains(t, run.ErrorMessage, "access denied")
	assert.Zero(t, trainer.called)

	// The bucket check is retried on the next run once the store recovers.
	store.ensureErr = nil
	run, err = runner.Run(context.Background(), time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, run.Status)
	assert.Equal(t, 2, store.ensureCalls)
}

func TestRunnerRerunResetsStartedAtAndKeyCount(t *testing.T) {
	date := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	store := &fakeStorage{keysByPrefix: map[string][]string{
		"TRUCK-001/2025-01-01/": {
			"TRUCK-001/2025-01-01/chunk-000.parquet",
			"TRUCK-001/2025-01-01/chunk-001.parquet",
		},
	}}
	repo := NewMemoryRepository()
	runner := NewRunner(store, &recordingTrainer{}, repo, noopCache(t), testRunnerConfig())

	first, err := runner.Run(context.Background(), date)
	require.NoError(t, err)
	assert.Equal(t, 2, first.KeyCount)

	time.Sleep(5 * time.Millisecond)

	// Storage goes dark; the re-run must fail without stale numbers.
	store.mu.Lock()
	store.failCalls = 1000
	store.mu.Unlock()

	second, err := runner.Run(context.Background(), date)
	require.Error(t, err)
	assert.Equal(t, StatusFailed, second.Status)
	assert.Zero(t, second.KeyCount)
	assert.True(t, second.StartedAt.After(first.StartedAt),
		"re-run must report its own start time, not the first run's")

	persisted, err := repo.GetRunByDate(context.Background(), "TRUCK-001", date)
	require.NoError(t, err)
	require.NotNil(t, persisted)
	assert.Zero(t, persisted.KeyCount)
	assert.True(t, persisted.StartedAt.After(first.StartedAt))
}

func TestConcurrentTriggersShareRunRecord(t *testing.T) {
	date := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	store := &fakeStorage{keysByPrefix: map[string][]string{}}
	repo := NewMemoryRepository()
	runner := NewRunner(store, &recordingTrainer{}, repo, noopCache(t), testRunnerConfig())

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = runner.Run(context.Background(), date)
		}()
	}
	wg.Wait()

	runs, err := repo.ListRuns(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}
