package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "http://127.0.0.1:8000/", cfg.APIBaseURL)
	assert.Equal(t, "https://identitytoolkit.googleapis.com/v1", cfg.Identity.AccountsURL)
	assert.Equal(t, "https://securetoken.googleapis.com/v1/token", cfg.Identity.TokenURL)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.True(t, cfg.Snapshot.Enabled)
}

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	t.Setenv("BRIDGENLP_HOME", t.TempDir())

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().APIBaseURL, cfg.APIBaseURL)
}

func TestLoad_File(t *testing.T) {
	t.Setenv("BRIDGENLP_HOME", t.TempDir())

	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte("api_base_url: https://api.example.com/\nidentity:\n  api_key: k-123\nlogging:\n  level: debug\n")
	require.NoError(t, os.WriteFile(path, data, 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "https://api.example.com/", cfg.APIBaseURL)
	assert.Equal(t, "k-123", cfg.Identity.APIKey)
	assert.Equal(t, "debug", cfg.Logging.Level)
	// Untouched fields keep defaults
	assert.Equal(t, "30s", cfg.Timeout)
}

func TestEnvOverrides(t *testing.T) {
	t.Run("API URL", func(t *testing.T) {
		t.Setenv("BRIDGENLP_API_URL", "https://env.example.com/")
		cfg := DefaultConfig()
		cfg.applyEnvOverrides()
		assert.Equal(t, "https://env.example.com/", cfg.APIBaseURL)
	})

	t.Run("identity key", func(t *testing.T) {
		t.Setenv("BRIDGENLP_IDENTITY_API_KEY", "env-key")
		cfg := DefaultConfig()
		cfg.applyEnvOverrides()
		assert.Equal(t, "env-key", cfg.Identity.APIKey)
	})

	t.Run("home dir wins over resolution", func(t *testing.T) {
		dir := t.TempDir()
		t.Setenv("BRIDGENLP_HOME", dir)
		cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
		require.NoError(t, err)
		assert.Equal(t, dir, cfg.HomeDir)
		assert.Equal(t, filepath.Join(dir, "session.json"), cfg.SessionFile())
		assert.Equal(t, filepath.Join(dir, "bridgenlp.db"), cfg.SnapshotFile())
	})
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg := DefaultConfig()
	cfg.APIBaseURL = "https://saved.example.com/"
	require.NoError(t, cfg.Save(path))

	t.Setenv("BRIDGENLP_HOME", t.TempDir())
	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "https://saved.example.com/", loaded.APIBaseURL)
}
