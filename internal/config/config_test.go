package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigMissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, 0.70, cfg.ML.Toxicity)
	assert.Equal(t, 0.6, cfg.Orchestrator.EscalationThreshold)
	assert.Equal(t, 10*time.Second, cfg.Stream.AllowedLateness)
	assert.Equal(t, 10000, cfg.Triage.DuplicateCacheSize)
}

func TestLoadConfigOverridesSelectively(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
server:
  port: "9090"
ml:
  toxicity: 0.5
stream:
  rate_limit_per_minute: 25
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, 0.5, cfg.ML.Toxicity)
	assert.Equal(t, 25, cfg.Stream.RateLimitPerMinute)

	// Untouched values keep their defaults.
	assert.Equal(t, 0.80, cfg.ML.Spam)
	assert.Equal(t, 100, cfg.Stream.RecentHashCapacity)
	assert.Equal(t, 500*time.Millisecond, cfg.Orchestrator.MLTimeout)
}

func TestLoadConfigRejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [not a map"), 0o644))

	_, err := LoadConfig(path)
	assert.Error(t, err)
}
