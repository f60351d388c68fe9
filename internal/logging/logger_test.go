package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDisabledWritesNothing(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, Initialize(dir, Settings{DebugMode: false}))
	defer Close()

	Trace(CategorySwarm, "member %d cycled", 1)

	_, err := os.Stat(filepath.Join(dir, ".swarmfuzz", "logs", "swarm.log"))
	assert.True(t, os.IsNotExist(err))
}

func TestEnabledWritesCategoryFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, Initialize(dir, Settings{DebugMode: true}))
	defer Close()

	Trace(CategoryDetect, "streak=%d", 2)
	Close()

	data, err := os.ReadFile(filepath.Join(dir, ".swarmfuzz", "logs", "detect.log"))
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), "streak=2"))
}

func TestCategoryToggle(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, Initialize(dir, Settings{
		DebugMode:  true,
		Categories: map[string]bool{"chaos": false},
	}))
	defer Close()

	Trace(CategoryChaos, "rung advanced")
	Close()

	_, err := os.Stat(filepath.Join(dir, ".swarmfuzz", "logs", "chaos.log"))
	assert.True(t, os.IsNotExist(err))
}
