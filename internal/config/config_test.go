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
	cfg := Decode(New())

	assert.Equal(t, "http://localhost:8080/hub", cfg.Client.HubURL)
	assert.Equal(t, time.Second, cfg.Client.BackoffBase)
	assert.Equal(t, 30*time.Second, cfg.Client.BackoffMax)
	assert.Equal(t, 5, cfg.Client.MaxAttempts)
	assert.Equal(t, 30*time.Second, cfg.Client.HeartbeatInterval)
	assert.Zero(t, cfg.Client.HeartbeatFailureLimit)
	assert.Zero(t, cfg.Client.QueueCapacity)
	assert.Equal(t, "localhost:8080", cfg.Hub.Addr())
	assert.NoError(t, cfg.Validate())
}

func TestLoadFileAndEnvironment(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "taskhub.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
client:
  hub_url: https://hub.example.com/hub
  max_attempts: 8
  backoff_base: 500ms
hub:
  port: 9090
`), 0o600))

	t.Setenv("TASKHUB_CLIENT_TOKEN", "secret")
	t.Setenv("TASKHUB_HUB_PORT", "9191")

	cfg, err := Load(New(), path)
	require.NoError(t, err)

	assert.Equal(t, "https://hub.example.com/hub", cfg.Client.HubURL)
	assert.Equal(t, 8, cfg.Client.MaxAttempts)
	assert.Equal(t, 500*time.Millisecond, cfg.Client.BackoffBase)
	assert.Equal(t, "secret", cfg.Client.Token)
	assert.Equal(t, 9191, cfg.Hub.Port, "environment overrides the file")
	assert.Equal(t, path, cfg.ConfigFile)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(New(), filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadEnvFiles(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("TASKHUB_CLIENT_QUEUE_CAPACITY=64\n"), 0o600))
	t.Setenv("TASKHUB_CLIENT_QUEUE_CAPACITY", "")
	os.Unsetenv("TASKHUB_CLIENT_QUEUE_CAPACITY")

	LoadEnvFiles(path)
	t.Cleanup(func() { os.Unsetenv("TASKHUB_CLIENT_QUEUE_CAPACITY") })

	assert.Equal(t, 64, Decode(New()).Client.QueueCapacity)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty hub url", func(c *Config) { c.Client.HubURL = "" }},
		{"zero backoff", func(c *Config) { c.Client.BackoffBase = 0 }},
		{"max below base", func(c *Config) { c.Client.BackoffMax = time.Millisecond }},
		{"negative attempts", func(c *Config) { c.Client.MaxAttempts = -1 }},
		{"negative queue", func(c *Config) { c.Client.QueueCapacity = -1 }},
		{"bad port", func(c *Config) { c.Hub.Port = 70000 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Decode(New())
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
