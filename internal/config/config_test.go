package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()
	assert.Equal(t, "smart", cfg.Buffer.TriggerMode)
	assert.Equal(t, 30, cfg.Store.SpeculativeTTLDays)
	assert.Equal(t, 0.35, cfg.Box.TopicShiftThreshold)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "engram.yaml")
	require.NoError(t, os.WriteFile(path, []byte("buffer:\n  max_turns: 5\n"), 0o644))

	t.Setenv("ENGRAM_BUFFER_MAX_TURNS", "9")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9, cfg.Buffer.MaxTurns)
}

func TestLoadMissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Defaults().Store.DefaultNamespace, cfg.Store.DefaultNamespace)
}
