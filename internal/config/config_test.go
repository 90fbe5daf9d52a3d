package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.Equal(t, 30.0, cfg.UpdateFrequency)
	assert.Equal(t, 0.1, cfg.InterpolationDelay)
	assert.Equal(t, 0.5, cfg.ExtrapolationLimit)
	assert.Equal(t, 2.5, cfg.TimeSnapThreshold)
	assert.Equal(t, 0.7, cfg.MinTimeDilation)
	assert.Equal(t, 1.5, cfg.MaxTimeDilation)

	assert.Equal(t, 150, cfg.ServerTraceFrames())
	assert.Equal(t, 90, cfg.ClientTraceFrames())
	assert.Equal(t, 15, cfg.MaxExtrapolationFrames())
}

func TestLoadWithConfigFile(t *testing.T) {
	dir := t.TempDir()
	raw := `{
		"listenAddr": ":9999",
		"updateFrequency": 60,
		"clientTracing": 1.0
	}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "replicast.cfg.json"), []byte(raw), 0644))

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, ":9999", cfg.ListenAddr)
	assert.Equal(t, 60.0, cfg.UpdateFrequency)
	assert.Equal(t, 60, cfg.ClientTraceFrames())
	// Untouched keys keep their defaults.
	assert.Equal(t, 5.0, cfg.ServerTracing)
}

func TestLoadRejectsInvalidSettings(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "replicast.cfg.json"), []byte(`{"updateFrequency": 0}`), 0644))
	_, err := Load(dir)
	assert.Error(t, err)
}

func TestDefaultIsValid(t *testing.T) {
	assert.NoError(t, Default().Validate())
}
