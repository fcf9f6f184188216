package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 9280, cfg.Server.Port)
	assert.Equal(t, 50, cfg.Cache.Capacity)
	assert.Equal(t, 5*time.Minute, cfg.Cache.TTL)
	assert.False(t, cfg.NATS.Enabled)
	assert.Equal(t, "mfeshell", cfg.Observability.ServiceName)
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default().Server.Port, cfg.Server.Port)
}

func TestLoad_YAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := []byte(`
server:
  port: 8081
manifest:
  source: /etc/mfeshell/manifest.json
  strict_routes: true
cache:
  capacity: 100
  ttl: 1m
`)
	require.NoError(t, os.WriteFile(path, content, 0600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8081, cfg.Server.Port)
	assert.Equal(t, "/etc/mfeshell/manifest.json", cfg.Manifest.Source)
	assert.True(t, cfg.Manifest.StrictRoutes)
	assert.Equal(t, 100, cfg.Cache.Capacity)
	assert.Equal(t, time.Minute, cfg.Cache.TTL)
	// Untouched sections keep defaults.
	assert.Equal(t, "light", cfg.Shell.Theme)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 8081\n"), 0600))

	t.Setenv("MFESHELL_SERVER_PORT", "9999")
	t.Setenv("MFESHELL_SHELL_THEME", "dark")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, "dark", cfg.Shell.Theme)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		errIs  error
	}{
		{
			name:   "zero port",
			mutate: func(c *Config) { c.Server.Port = 0 },
			errIs:  ErrInvalidPort,
		},
		{
			name:   "empty manifest source",
			mutate: func(c *Config) { c.Manifest.Source = "" },
			errIs:  ErrMissingManifest,
		},
		{
			name:   "zero cache capacity",
			mutate: func(c *Config) { c.Cache.Capacity = 0 },
			errIs:  ErrInvalidCapacity,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.errIs)
		})
	}
}

func TestValidate_BadOTLPProtocol(t *testing.T) {
	cfg := Default()
	cfg.Observability.OTLPProtocol = "carrier-pigeon"
	assert.Error(t, cfg.Validate())
}
