package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "swarmfuzz", cfg.Name)
	assert.Equal(t, 5, cfg.Swarm.MemberCount)
	assert.Equal(t, 3, cfg.Swarm.MaxAuthFailures)
	assert.Equal(t, 2*time.Second, cfg.Swarm.Delay())
	assert.Equal(t, 30*time.Minute, cfg.Detect.TTL())
	assert.True(t, cfg.Chaos.Enabled)
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Swarm.MemberCount, cfg.Swarm.MemberCount)
}

func TestLoadMergesOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte("swarm:\n  member_count: 12\n  cycle_delay: 500ms\ndetect:\n  cooldown_ttl: 5m\n")
	require.NoError(t, os.WriteFile(path, data, 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 12, cfg.Swarm.MemberCount)
	assert.Equal(t, 500*time.Millisecond, cfg.Swarm.Delay())
	assert.Equal(t, 5*time.Minute, cfg.Detect.TTL())
	// Untouched sections keep defaults.
	assert.Equal(t, "swarmfuzz", cfg.Report.MarkerLabel)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("SWARMFUZZ_TARGET_URL", "http://world:9999")
	t.Setenv("SWARMFUZZ_MEMBERS", "8")
	t.Setenv("SWARMFUZZ_DRY_RUN", "true")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "http://world:9999", cfg.Target.BaseURL)
	assert.Equal(t, 8, cfg.Swarm.MemberCount)
	assert.True(t, cfg.Report.DryRun)
}

func TestBadDurationFallsBack(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Swarm.CycleDelay = "not-a-duration"
	assert.Equal(t, 2*time.Second, cfg.Swarm.Delay())
}
