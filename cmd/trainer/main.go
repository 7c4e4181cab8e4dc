package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"

	"github.com/fleetops/telemetry-trainer/internal/api"
	"github.com/fleetops/telemetry-trainer/internal/cache"
	"github.com/fleetops/telemetry-trainer/internal/config"
	"github.com/fleetops/telemetry-trainer/internal/metrics"
	"github.com/fleetops/telemetry-trainer/internal/partition"
	"github.com/fleetops/telemetry-trainer/internal/pipeline"
	"github.com/fleetops/telemetry-trainer/internal/repository/postgres"
	"github.com/fleetops/telemetry-trainer/internal/scheduler"
	"github.com/fleetops/telemetry-trainer/internal/storage"
	"github.com/fleetops/telemetry-trainer/internal/training"
	"github.com/fleetops/telemetry-trainer/pkg/logger"
)

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	app := &cli.App{
		Name:  "trainer",
		Usage: "Daily model training over date-partitioned truck telemetry in MinIO",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (trace, debug, info, warn, error)",
				Value:   "info",
				EnvVars: []string{"LOG_LEVEL"},
			},
		},
		Before: func(c *cli.Context) error {
			logger.SetLevel(c.String("log-level"))
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:  "run",
				Usage: "Execute a single training run for one partition date",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "ds",
						Usage: "Partition date (YYYY-MM-DD), defaults to yesterday UTC",
					},
				},
				Action: runOnce,
			},
			{
				Name:   "daemon",
				Usage:  "Run the daily trigger loop with the admin API and metrics",
				Action: runDaemon,
			},
			{
				Name:  "backfill",
				Usage: "Run training for a range of partition dates",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "from",
						Usage:    "First partition date (YYYY-MM-DD)",
						Required: true,
					},
					&cli.StringFlag{
						Name:     "to",
						Usage:    "Last partition date (YYYY-MM-DD)",
						Required: true,
					},
					&cli.IntFlag{
						Name:  "concurrency",
						Usage: "Dates processed in parallel",
						Value: 2,
					},
				},
				Action: runBackfill,
			},
			{
				Name:  "migrate",
				Usage: "Create the training run schema",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "db-url",
						Usage:    "Database connection string",
						Required: true,
						EnvVars:  []string{"DATABASE_URL"},
					},
				},
				Action: runMigrate,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		logger.Log.Fatal().Err(err).Msg("trainer exited with error")
	}
}

// buildRunner wires storage, trainer, state repository, and cache together.
func buildRunner(cfg *config.Config) (*pipeline.Runner, pipeline.Repository, cache.PartitionCache, *storage.MinioClient, error) {
	store, err := storage.NewMinioClient(cfg.Minio)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("init object storage: %w", err)
	}

	var repo pipeline.Repository
	if cfg.Database.Enabled {
		db, err := postgres.NewDB(&cfg.Database)
		if err != nil {
			return nil, nil, nil, nil, fmt.Errorf("init database: %w", err)
		}
		repo = pipeline.NewPostgresRepository(db)
	} else {
		logger.Log.Warn().Msg("database disabled, run state is kept in memory only")
		repo = pipeline.NewMemoryRepository()
	}

	pc, err := cache.NewPartitionCache(cfg.Cache)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("init cache: %w", err)
	}

	trainer := training.NewStubTrainer(cfg.Run.PreviewKeys)
	runnerCfg := pipeline.RunnerConfig{
		TruckID:       cfg.Run.TruckID,
		RetryAttempts: cfg.Run.RetryAttempts,
		RetryBackoff:  time.Duration(cfg.Run.RetryBackoffSeconds) * time.Second,
	}

	return pipeline.NewRunner(store, trainer, repo, pc, runnerCfg), repo, pc, store, nil
}

func runOnce(c *cli.Context) error {
	cfg := config.Load()

	date := time.Now().UTC().AddDate(0, 0, -1)
	if ds := c.String("ds"); ds != "" {
		parsed, err := partition.ParseDS(ds)
		if err != nil {
			return fmt.Errorf("invalid --ds %q: %w", ds, err)
		}
		date = parsed
	}

	runner, _, _, _, err := buildRunner(cfg)
	if err != nil {
		return err
	}

	if _, err := runner.Run(c.Context, date); err != nil {
		return fmt.Errorf("training run for %s: %w", partition.DS(date), err)
	}
	return nil
}

func runBackfill(c *cli.Context) error {
	cfg := config.Load()

	from, err := partition.ParseDS(c.String("from"))
	if err != nil {
		return fmt.Errorf("invalid --from: %w", err)
	}
	to, err := partition.ParseDS(c.String("to"))
	if err != nil {
		return fmt.Errorf("invalid --to: %w", err)
	}

	runner, _, _, _, err := buildRunner(cfg)
	if err != nil {
		return err
	}

	return pipeline.NewOrchestrator(runner).Backfill(c.Context, from, to, c.Int("concurrency"))
}

func runDaemon(c *cli.Context) error {
	cfg := config.Load()

	if cfg.Server.Mode == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	runner, repo, pc, store, err := buildRunner(cfg)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(c.Context)
	defer cancel()

	// Daily trigger
	daily := scheduler.NewDaily(scheduler.RealClock{}, func(ctx context.Context, date time.Time) error {
		_, err := runner.Run(ctx, date)
		return err
	})
	go func() {
		if err := daily.Start(ctx); err != nil && ctx.Err() == nil {
			logger.Log.Error().Err(err).Msg("scheduler stopped")
		}
	}()

	// Admin API
	handler := api.NewHandler(repo, pc, store, runner.Run, cfg.Run.TruckID)
	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      api.Router(cfg.Server, handler),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}
	go func() {
		logger.Log.Info().Str("port", cfg.Server.Port).Msg("starting admin API")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.Fatal().Err(err).Msg("failed to start admin API")
		}
	}()

	// Ops listener: /metrics and /healthz
	ops := metrics.NewOpsServer(cfg.Server.OpsPort)
	go func() {
		logger.Log.Info().Str("port", cfg.Server.OpsPort).Msg("starting ops listener")
		if err := ops.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.Fatal().Err(err).Msg("failed to start ops listener")
		}
	}()

	// Wait for interrupt signal to gracefully shut everything down
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Log.Info().Msg("shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Log.Error().Err(err).Msg("admin API forced to shutdown")
	}
	if err := ops.Shutdown(shutdownCtx); err != nil {
		logger.Log.Error().Err(err).Msg("ops listener forced to shutdown")
	}

	logger.Log.Info().Msg("trainer exiting")
	return nil
}

const schema = `
CREATE TABLE IF NOT EXISTS training_runs (
	id BIGSERIAL PRIMARY KEY,
	truck_id TEXT NOT NULL,
	run_date DATE NOT NULL,
	status TEXT NOT NULL,
	key_count INT NOT NULL DEFAULT 0,
	attempts INT NOT NULL DEFAULT 0,
	started_at TIMESTAMPTZ NOT NULL,
	completed_at TIMESTAMPTZ,
	error_message TEXT NOT NULL DEFAULT '',
	UNIQUE (truck_id, run_date)
);

CREATE INDEX IF NOT EXISTS idx_training_runs_date ON training_runs (run_date DESC);
`

func runMigrate(c *cli.Context) error {
	db, err := sql.Open("pgx", c.String("db-url"))
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	if err := db.PingContext(c.Context); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := db.ExecContext(c.Context, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}

	logger.Log.Info().Msg("schema applied")
	return nil
}
