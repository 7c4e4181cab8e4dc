package pipeline

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/fleetops/telemetry-trainer/internal/partition"
	"github.com/fleetops/telemetry-trainer/pkg/logger"
)

// Orchestrator coordinates Runner executions over a range of partition dates.
type Orchestrator struct {
	runner *Runner
}

// NewOrchestrator creates a new Orchestrator.
func NewOrchestrator(runner *Runner) *Orchestrator {
	return &Orchestrator{runner: runner}
}

// Backfill runs every partition date in [from, to] with at most concurrency
// runs in flight. The first failure cancels the remaining dates.
func (o *Orchestrator) Backfill(ctx context.Context, from, to time.Time, concurrency int) error {
	from = truncateDay(from)
	to = truncateDay(to)
	if to.Before(from) {
		return fmt.Errorf("backfill range is inverted: %s after %s", partition.DS(from), partition.DS(to))
	}
	if concurrency < 1 {
		concurrency = 1
	}

	log := logger.With("orchestrator")
	log.Info().
		Str("from", partition.DS(from)).
		Str("to", partition.DS(to)).
		Int("concurrency", concurrency).
		Msg("starting backfill")

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for date := from; !date.After(to); date = date.AddDate(0, 0, 1) {
		g.Go(func() error {
			if _, err := o.runner.Run(ctx, date); err != nil {
				return fmt.Errorf("backfill %s: %w", partition.DS(date), err)
			}
			return nil
		})
	}

	return g.Wait()
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
