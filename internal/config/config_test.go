package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBucketDefaultsToTruckTelemetry(t *testing.T) {
	os.Unsetenv("MINIO_BUCKET")

	cfg := newConfig()
	assert.Equal(t, "truck-telemetry", cfg.Minio.Bucket)
}

func TestBucketEnvOverrideWins(t *testing.T) {
	t.Setenv("MINIO_BUCKET", "staging-telemetry")

	cfg := newConfig()
	assert.Equal(t, "staging-telemetry", cfg.Minio.Bucket)
}

func TestDefaults(t *testing.T) {
	os.Unsetenv("TRUCK_ID")
	os.Unsetenv("RUN_RETRY_ATTEMPTS")

	cfg := newConfig()
	assert.Equal(t, "TRUCK-001", cfg.Run.TruckID)
	assert.Equal(t, 3, cfg.Run.RetryAttempts)
	assert.Equal(t, "8080", cfg.Server.Port)
	assert.False(t, cfg.Database.Enabled)
	assert.False(t, cfg.Cache.Enabled)
}

func TestTruckIDOverride(t *testing.T) {
	t.Setenv("TRUCK_ID", "TRUCK-099")

	cfg := newConfig()
	assert.Equal(t, "TRUCK-099", cfg.Run.TruckID)
}

func TestLoadReturnsSameInstance(t *testing.T) {
	assert.Same(t, Load(), Load())
}
