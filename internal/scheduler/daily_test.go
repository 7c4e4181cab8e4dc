package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNextFire(t *testing.T) {
	tests := []struct {
		name string
		now  time.Time
		want time.Time
	}{
		{
			name: "mid-day fires next midnight",
			now:  time.Date(2025, 1, 1, 14, 30, 0, 0, time.UTC),
			want: time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC),
		},
		{
			name: "exactly midnight fires the following midnight",
			now:  time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
			want: time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC),
		},
		{
			name: "one second before midnight",
			now:  time.Date(2025, 1, 1, 23, 59, 59, 0, time.UTC),
			want: time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC),
		},
		{
			name: "month rollover",
			now:  time.Date(2025, 1, 31, 6, 0, 0, 0, time.UTC),
			want: time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			name: "local time is normalized to utc",
			now:  time.Date(2025, 1, 1, 22, 0, 0, 0, time.FixedZone("UTC-5", -5*3600)),
			want: time.Date(2025, 1, 3, 0, 0, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, NextFire(tt.now).Equal(tt.want),
				"NextFire(%v) = %v, want %v", tt.now, NextFire(tt.now), tt.want)
		})
	}
}

func TestRunDateIsPreviousDay(t *testing.T) {
	fire := time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)
	assert.True(t, RunDate(fire).Equal(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)))

	// Year rollover
	fire = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	assert.True(t, RunDate(fire).Equal(time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC)))
}

func TestDailyStartStopsOnCancel(t *testing.T) {
	clock := MockClock{MockTime: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
	d := NewDaily(clock, func(ctx context.Context, date time.Time) error {
		t.Fatal("run func should not fire before midnight")
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- d.Start(ctx)
	}()

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop on cancel")
	}
}
