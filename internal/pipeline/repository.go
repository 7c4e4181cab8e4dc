package pipeline

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/fleetops/telemetry-trainer/internal/repository/postgres"
)

// Repository persists training run state between executions.
type Repository interface {
	CreateRun(ctx context.Context, run *TrainingRun) error
	UpdateRun(ctx context.Context, run *TrainingRun) error
	GetRun(ctx context.Context, id int64) (*TrainingRun, error)
	// GetRunByDate returns nil without error when no run exists yet.
	GetRunByDate(ctx context.Context, truckID string, date time.Time) (*TrainingRun, error)
	ListRuns(ctx context.Context, limit int) ([]*TrainingRun, error)
}

// PostgresRepository stores training runs in Postgres via sqlx.
type PostgresRepository struct {
	db *postgres.DB
}

// NewPostgresRepository creates a new PostgresRepository
func NewPostgresRepository(db *postgres.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) CreateRun(ctx context.Context, run *TrainingRun) error {
	query := `
		INSERT INTO training_runs (
			truck_id, run_date, status, key_count, attempts, started_at, error_message
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`

	err := r.db.QueryRowContext(
		ctx, query,
		run.TruckID, run.Date, run.Status, run.KeyCount,
		run.Attempts, run.StartedAt, run.ErrorMessage,
	).Scan(&run.ID)
	if err != nil {
		return fmt.Errorf("insert training run: %w", err)
	}

	return nil
}

func (r *PostgresRepository) UpdateRun(ctx context.Context, run *TrainingRun) error {
	query := `
		UPDATE training_runs
		SET status = $1, key_count = $2, attempts = $3, started_at = $4,
		    completed_at = $5, error_message = $6
		WHERE id = $7
	`

	_, err := r.db.ExecContext(
		ctx, query,
		run.Status, run.KeyCount, run.Attempts, run.StartedAt,
		run.CompletedAt, run.ErrorMessage, run.ID,
	)
	if err != nil {
		return fmt.Errorf("update training run %d: %w", run.ID, err)
	}

	return nil
}

func (r *PostgresRepository) GetRun(ctx context.Context, id int64) (*TrainingRun, error) {
	query := `
		SELECT id, truck_id, run_date, status, key_count, attempts,
		       started_at, completed_at, error_message
		FROM training_runs
		WHERE id = $1
	`

	run := &TrainingRun{}
	if err := r.db.GetContext(ctx, run, query, id); err != nil {
		return nil, fmt.Errorf("get training run %d: %w", id, err)
	}

	return run, nil
}

func (r *PostgresRepository) GetRunByDate(ctx context.Context, truckID string, date time.Time) (*TrainingRun, error) {
	query := `
		SELECT id, truck_id, run_date, status, key_count, attempts,
		       started_at, completed_at, error_message
		FROM training_runs
		WHERE truck_id = $1 AND run_date = $2
	`

	run := &TrainingRun{}
	err := r.db.GetContext(ctx, run, query, truckID, date)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get training run for %s/%s: %w", truckID, date.Format("2006-01-02"), err)
	}

	return run, nil
}

func (r *PostgresRepository) ListRuns(ctx context.Context, limit int) ([]*TrainingRun, error) {
	if limit < 1 {
		limit = 50
	}

	query := `
		SELECT id, truck_id, run_date, status, key_count, attempts,
		       started_at, completed_at, error_message
		FROM training_runs
		ORDER BY run_date DESC
		LIMIT $1
	`

	runs := make([]*TrainingRun, 0)
	if err := r.db.SelectContext(ctx, &runs, query, limit); err != nil {
		return nil, fmt.Errorf("list training runs: %w", err)
	}

	return runs, nil
}

var _ Repository = (*PostgresRepository)(nil)
