package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	var cfg Config
	require.NoError(t, Load(&cfg, filepath.Join(t.TempDir(), "missing.env")))

	assert.Equal(t, ":50051", cfg.GRPCAddr)
	assert.Equal(t, 100, cfg.Pipeline.MaxCascadeDepth)
	assert.Equal(t, time.Hour, cfg.Pipeline.MidPriceWindow)
	assert.Equal(t, 250*time.Millisecond, cfg.Kafka.BroadcastInterval)
	assert.False(t, cfg.Kafka.Enabled())
	assert.Equal(t, filepath.Join("data", "entry"), filepath.Clean(cfg.EntryWALDir()))
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("DATA_DIR", "/var/lib/matchd")
	t.Setenv("MAX_CASCADE_DEPTH", "7")
	t.Setenv("WAL_SEGMENT_DURATION", "30s")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("LOG_LEVEL", "debug")

	var cfg Config
	require.NoError(t, Load(&cfg, filepath.Join(t.TempDir(), "missing.env")))

	assert.Equal(t, "/var/lib/matchd/state", cfg.StateDir())
	assert.Equal(t, 7, cfg.Pipeline.MaxCascadeDepth)
	assert.Equal(t, 30*time.Second, cfg.WAL.SegmentDuration)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.True(t, cfg.Kafka.Enabled())

	log, err := cfg.Log.Logger()
	require.NoError(t, err)
	assert.True(t, log.Core().Enabled(-1))
}

func TestEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("QUEUE_SIZE=12\nGRPC_ADDR=:7000\n"), 0o600))
	// Variables loaded from the file stay in the process environment.
	t.Setenv("QUEUE_SIZE", "")
	require.NoError(t, os.Unsetenv("QUEUE_SIZE"))
	t.Setenv("GRPC_ADDR", ":8000")

	var cfg Config
	require.NoError(t, Load(&cfg, path))

	assert.Equal(t, 12, cfg.Pipeline.QueueSize)
	assert.Equal(t, ":8000", cfg.GRPCAddr, "environment wins over the file")
}

func TestBadValue(t *testing.T) {
	t.Setenv("QUEUE_SIZE", "many")
	var cfg Config
	assert.Error(t, Load(&cfg, filepath.Join(t.TempDir(), "missing.env")))
}

func TestBadLogLevel(t *testing.T) {
	_, err := LogConfig{Level: "loud"}.Logger()
	assert.Error(t, err)
}
