package training

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/fleetops/telemetry-trainer/pkg/logger"
)

// RunContext identifies the partition a training invocation covers.
type RunContext struct {
	TruckID string
	Date    time.Time
	Prefix  string
}

// Trainer consumes the object keys of one daily partition.
type Trainer interface {
	Train(ctx context.Context, run RunContext, keys []string) error
}

const defaultPreviewKeys = 5

// StubTrainer is a placeholder for the real model-training step. It only
// reports how many objects the partition holds plus a short key preview,
// and it succeeds for any input including an empty partition.
type StubTrainer struct {
	previewKeys int
	log         zerolog.Logger
}

// NewStubTrainer creates a StubTrainer. previewKeys caps how many keys are
// echoed in the summary; values < 1 fall back to the default of 5.
func NewStubTrainer(previewKeys int) *StubTrainer {
	if previewKeys < 1 {
		previewKeys = defaultPreviewKeys
	}
	return &StubTrainer{
		previewKeys: previewKeys,
		log:         logger.With("trainer"),
	}
}

func (t *StubTrainer) Train(ctx context.Context, run RunContext, keys []string) error {
	t.log.Info().
		Str("truck_id", run.TruckID).
		Str("prefix", run.Prefix).
		Int("count", len(keys)).
		Strs("preview", Preview(keys, t.previewKeys)).
		Msg("training on partition objects")
	return nil
}

// Preview returns at most n leading keys without copying the backing array.
func Preview(keys []string, n int) []string {
	if n < 0 {
		n = 0
	}
	if n > len(keys) {
		n = len(keys)
	}
	return keys[:n]
}

var _ Trainer = (*StubTrainer)(nil)
