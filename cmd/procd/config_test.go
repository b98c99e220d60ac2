package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 4, cfg.Workers)
	assert.Equal(t, 10, cfg.BatchSize)

	poll, err := cfg.pollInterval()
	require.NoError(t, err)
	assert.Equal(t, 500*time.Millisecond, poll)

	lease, err := cfg.leaseDuration()
	require.NoError(t, err)
	assert.Equal(t, 5*time.Minute, lease)
}

func TestLoadConfigOverlaysFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "procd.yaml")
	content := `
db_path: /var/lib/procd/procd.db
log_level: debug
worker_id: worker-7
workers: 8
poll_interval: 250ms
definitions:
  - defs/order.yaml
  - defs/billing.yaml
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/procd/procd.db", cfg.DBPath)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "worker-7", cfg.WorkerID)
	assert.Equal(t, 8, cfg.Workers)

	// fields absent from the file keep their defaults
	assert.Equal(t, 10, cfg.BatchSize)
	assert.Equal(t, "5m", cfg.LeaseDuration)

	poll, err := cfg.pollInterval()
	require.NoError(t, err)
	assert.Equal(t, 250*time.Millisecond, poll)

	require.Len(t, cfg.Definitions, 2)
	assert.Equal(t, "defs/order.yaml", cfg.Definitions[0])
}

func TestLoadConfigErrors(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("workers: [not a number"), 0o644))
	_, err = LoadConfig(path)
	assert.Error(t, err)
}

func TestConfigRejectsBadDurations(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PollInterval = "soon"
	_, err := cfg.pollInterval()
	assert.Error(t, err)

	cfg.LeaseDuration = ""
	lease, err := cfg.leaseDuration()
	require.NoError(t, err)
	assert.Equal(t, time.Duration(0), lease)
}
