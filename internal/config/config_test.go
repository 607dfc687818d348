package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, 300, cfg.Signals.TTLSeconds)
	assert.Equal(t, 10, cfg.Signals.IdempotencyWindowSeconds)
	assert.Equal(t, 50, cfg.Signals.MaxPendingPerAccount)
	assert.Equal(t, 12, cfg.Auth.BcryptCost)
	assert.Equal(t, 100, cfg.RateLimit.WebhookPerMinute)
}

func TestLoadConfigAppliesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	partial := &Config{}
	partial.Server.Port = "9000"
	partial.Auth.JWTSecret = "s3cret"
	partial.Signals.TTLSeconds = 120
	require.NoError(t, SaveConfig(partial, path))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	// Explicit values survive, gaps are filled.
	assert.Equal(t, "9000", cfg.Server.Port)
	assert.Equal(t, "s3cret", cfg.Auth.JWTSecret)
	assert.Equal(t, 120, cfg.Signals.TTLSeconds)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 15, cfg.Signals.SweepIntervalSeconds)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadConfigEndpoints(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	cfg := Default()
	cfg.Endpoints = []EndpointConfig{
		{Name: "ops", Type: "telegram", Token: "bot-token", ChatID: "-100", IsActive: true},
		{Name: "audit", Type: "webhook", URL: "https://example.com/hook", IsActive: false},
	}
	require.NoError(t, SaveConfig(cfg, path))

	loaded, err := LoadConfig(path)
	require.NoError(t, err)
	require.Len(t, loaded.Endpoints, 2)
	assert.Equal(t, "telegram", loaded.Endpoints[0].Type)
	assert.False(t, loaded.Endpoints[1].IsActive)
}
