package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cassowary-ai/sidekick/pkg/chat"
)

func TestLoadMissingFileYieldsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "chat", cfg.Mode)
	assert.Equal(t, 20, cfg.HistoryWindow)
	require.NoError(t, cfg.Validate())
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
mode: web
compute_level: high
backend: fast
model: sidekick-large
endpoints:
  fast: http://fast.local/v1/chat
limits:
  web: 10
persona: "You are terse."
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "web", cfg.Mode)
	assert.Equal(t, "fast", cfg.Backend)
	assert.Equal(t, 10, cfg.Limits.Web)
	// Keys absent from the file keep their default values, nested ones
	// included: unmarshal goes over the populated default struct.
	assert.Equal(t, 5, cfg.Limits.Page)
	assert.Equal(t, 5, cfg.Limits.Scrape)
	assert.Equal(t, 20, cfg.HistoryWindow)

	opts := cfg.ChatOptions()
	assert.Equal(t, chat.ModeWeb, opts.Mode)
	assert.Equal(t, chat.ComputeHigh, opts.ComputeLevel)
	assert.Equal(t, "You are terse.", opts.Persona)
}

func TestLoadEnvAPIKeyWins(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("api_key: from-file\n"), 0o644))
	t.Setenv("SIDEKICK_API_KEY", "from-env")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.APIKey)
}

func TestValidateRejectsUnknownMode(t *testing.T) {
	cfg := Default()
	cfg.Mode = "voice"
	err := cfg.Validate()
	require.Error(t, err)
	assert.True(t, errors.Is(err, chat.ErrConfig))
}

func TestValidateRejectsUnknownComputeLevel(t *testing.T) {
	cfg := Default()
	cfg.ComputeLevel = "ultra"
	err := cfg.Validate()
	require.Error(t, err)
	assert.True(t, errors.Is(err, chat.ErrConfig))
}
