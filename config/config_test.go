package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	assert.Equal(t, Default(), cfg)
}

func TestLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
http:
  addr: ":8080"
storage:
  driver: bolt
  bolt_path: /var/lib/fieldmiles.db
photos:
  upload_timeout: 3s
reconcile:
  max_attempts: 5
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, DriverBolt, cfg.Storage.Driver)
	assert.Equal(t, "/var/lib/fieldmiles.db", cfg.Storage.BoltPath)
	assert.Equal(t, 3*time.Second, cfg.Photos.UploadTimeout)
	assert.Equal(t, 5, cfg.Reconcile.MaxAttempts)
	// untouched sections keep their defaults
	assert.Equal(t, "/photos", cfg.Photos.BaseURL)
}

func TestEnvOverridesFile(t *testing.T) {
	t.Setenv("FIELDMILES_HTTP_ADDR", ":9000")
	t.Setenv("FIELDMILES_UPLOAD_TIMEOUT", "250ms")
	t.Setenv("FIELDMILES_RECONCILE_MAX_ATTEMPTS", "not-a-number")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.HTTP.Addr)
	assert.Equal(t, 250*time.Millisecond, cfg.Photos.UploadTimeout)
	assert.Equal(t, 3, cfg.Reconcile.MaxAttempts)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "unknown driver", mutate: func(c *Config) { c.Storage.Driver = "sqlite" }},
		{name: "empty dsn", mutate: func(c *Config) { c.Storage.DSN = "" }},
		{name: "empty bolt path", mutate: func(c *Config) { c.Storage.Driver = DriverBolt; c.Storage.BoltPath = "" }},
		{name: "empty secret", mutate: func(c *Config) { c.Auth.JWTSecret = "" }},
		{name: "zero attempts", mutate: func(c *Config) { c.Reconcile.MaxAttempts = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
