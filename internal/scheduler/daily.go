package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/fleetops/telemetry-trainer/internal/partition"
	"github.com/fleetops/telemetry-trainer/pkg/logger"
)

// RunFunc executes the training pipeline for one partition date.
type RunFunc func(ctx context.Context, date time.Time) error

// Daily fires once per day at midnight UTC and invokes the run function
// with the date of the partition that just closed, i.e. the previous day.
// Days missed while the process was down are not caught up; the backfill
// command covers those explicitly.
type Daily struct {
	clock Clock
	fn    RunFunc
	log   zerolog.Logger
}

// NewDaily creates a Daily trigger around fn.
func NewDaily(clock Clock, fn RunFunc) *Daily {
	if clock == nil {
		clock = RealClock{}
	}
	return &Daily{
		clock: clock,
		fn:    fn,
		log:   logger.With("scheduler"),
	}
}

// NextFire returns the next midnight UTC strictly after now.
func NextFire(now time.Time) time.Time {
	y, m, d := now.UTC().Date()
	midnight := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return midnight.AddDate(0, 0, 1)
}

// RunDate returns the partition date a firing at fire covers: the day
// whose interval just closed.
func RunDate(fire time.Time) time.Time {
	return fire.UTC().AddDate(0, 0, -1).Truncate(24 * time.Hour)
}

// Start blocks, firing daily until ctx is cancelled. Run errors are logged
// and do not stop the loop.
func (d *Daily) Start(ctx context.Context) error {
	for {
		now := d.clock.Now()
		fire := NextFire(now)
		wait := fire.Sub(now)

		d.log.Info().
			Str("next_fire", fire.Format(time.RFC3339)).
			Str("ds", partition.DS(RunDate(fire))).
			Msg("waiting for next daily trigger")

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		date := RunDate(fire)
		if err := d.fn(ctx, date); err != nil {
			d.log.Error().Err(err).Str("ds", partition.DS(date)).Msg("daily run failed")
		}
	}
}
