package pipeline

import (
	"time"
)

// RunStatus represents the current state of a training run
type RunStatus string

const (
	StatusPending   RunStatus = "pending"
	StatusRunning   RunStatus = "running"
	StatusCompleted RunStatus = "completed"
	StatusFailed    RunStatus = "failed"
)

// TrainingRun tracks a single execution of the training pipeline for one
// truck and one partition date.
type TrainingRun struct {
	ID           int64      `db:"id"`
	TruckID      string     `db:"truck_id"`
	Date         time.Time  `db:"run_date"`
	Status       RunStatus  `db:"status"`
	KeyCount     int        `db:"key_count"`
	Attempts     int        `db:"attempts"`
	StartedAt    time.Time  `db:"started_at"`
	CompletedAt  *time.Time `db:"completed_at"`
	ErrorMessage string     `db:"error_message"`
}

// RunnerConfig holds configuration for a Runner instance
type RunnerConfig struct {
	TruckID       string        // Truck whose partitions are consumed
	RetryAttempts int           // Listing attempts before a run fails
	RetryBackoff  time.Duration // Backoff between listing attempts
}

// DefaultRunnerConfig returns sensible defaults
func DefaultRunnerConfig(truckID string) RunnerConfig {
	return RunnerConfig{
		TruckID:       truckID,
		RetryAttempts: 3,
		RetryBackoff:  30 * time.Second,
	}
}
