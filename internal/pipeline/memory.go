package pipeline

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemoryRepository keeps training runs in memory. It backs db-less daemon
// mode and the test suite.
type MemoryRepository struct {
	mu     sync.Mutex
	nextID int64
	runs   map[int64]*TrainingRun
}

// NewMemoryRepository creates an empty MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		nextID: 1,
		runs:   make(map[int64]*TrainingRun),
	}
}

func (r *MemoryRepository) CreateRun(ctx context.Context, run *TrainingRun) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	run.ID = r.nextID
	r.nextID++

	clone := *run
	r.runs[run.ID] = &clone
	return nil
}

func (r *MemoryRepository) UpdateRun(ctx context.Context, run *TrainingRun) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.runs[run.ID]; !ok {
		return fmt.Errorf("training run %d not found", run.ID)
	}

	clone := *run
	r.runs[run.ID] = &clone
	return nil
}

func (r *MemoryRepository) GetRun(ctx context.Context, id int64) (*TrainingRun, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	run, ok := r.runs[id]
	if !ok {
		return nil, fmt.Errorf("training run %d not found", id)
	}

	clone := *run
	return &clone, nil
}

func (r *MemoryRepository) GetRunByDate(ctx context.Context, truckID string, date time.Time) (*TrainingRun, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, run := range r.runs {
		if run.TruckID == truckID && sameDay(run.Date, date) {
			clone := *run
			return &clone, nil
		}
	}
	return nil, nil
}

func (r *MemoryRepository) ListRuns(ctx context.Context, limit int) ([]*TrainingRun, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if limit < 1 {
		limit = 50
	}

	runs := make([]*TrainingRun, 0, len(r.runs))
	for _, run := range r.runs {
		clone := *run
		runs = append(runs, &clone)
	}
	sort.Slice(runs, func(i, j int) bool {
		return runs[i].Date.After(runs[j].Date)
	})

	if len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}

var _ Repository = (*MemoryRepository)(nil)
