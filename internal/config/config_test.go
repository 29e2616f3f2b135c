package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mmcdole/catalog/internal/domain"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "@catalog_cache_", cfg.Cache.Namespace)
	assert.Equal(t, 10*time.Minute, cfg.Cache.Expiry)
	assert.Equal(t, 500_000, cfg.Cache.MaxEntrySize)
	assert.Equal(t, int64(50<<20), cfg.Cache.QuotaBytes)
	assert.Equal(t, 30*time.Second, cfg.API.Timeout)
	assert.True(t, cfg.Preferences.UseCellularData)
	assert.False(t, cfg.IsConfigured())
}

func TestLoadConfig_FileAndEnv(t *testing.T) {
	path := writeConfig(t, `
api:
  base_url: https://api.example.com/v1
  app_id: abc
  app_key: def
cache:
  dir: ""
  expiry: 2m
  expiry_overrides:
    shows: 24h
network:
  poll_interval: 1m
preferences:
  use_cellular_data: false
`)
	t.Setenv("CATALOG_API_APP_KEY", "from-env")

	cfg, _, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "https://api.example.com/v1", cfg.API.BaseURL)
	assert.Equal(t, "from-env", cfg.API.AppKey)
	assert.Empty(t, cfg.Cache.Dir)
	assert.Equal(t, 2*time.Minute, cfg.Cache.Expiry)
	assert.Equal(t, time.Minute, cfg.Network.PollInterval)
	assert.False(t, cfg.Preferences.UseCellularData)
	assert.Equal(t, "https://api.example.com/v1", cfg.ProbeURL())
	require.NoError(t, cfg.Validate())

	fresh := cfg.Freshness()
	assert.Equal(t, 24*time.Hour, fresh[domain.EntityShows])
	assert.Equal(t, 2*time.Minute, fresh[domain.EntityEpisodes])
	assert.Equal(t, 2*time.Minute, fresh[domain.EntityStreams])
}

func TestLoadConfig_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "api: [unterminated")
	_, _, err := LoadConfig(path)
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := DefaultConfig()
	require.ErrorContains(t, cfg.Validate(), "api.base_url, api.app_id, api.app_key")

	cfg.API = APIConfig{BaseURL: "http://x", AppID: "a", AppKey: "b"}
	require.NoError(t, cfg.Validate())

	cfg.Cache.ExpiryOverrides = map[string]time.Duration{"podcasts": time.Hour}
	require.ErrorContains(t, cfg.Validate(), "unknown entity type")

	cfg.Cache.ExpiryOverrides = map[string]time.Duration{"shows": 0}
	require.ErrorContains(t, cfg.Validate(), "must be positive")
}

func TestPreferenceStore(t *testing.T) {
	path := writeConfig(t, "api:\n  base_url: http://x\n")
	_, v, err := LoadConfig(path)
	require.NoError(t, err)

	prefs := NewPreferenceStore(v, true)
	allowed, err := prefs.CellularAllowed()
	require.NoError(t, err)
	assert.True(t, allowed, "defaults to allowed")

	require.NoError(t, prefs.SetCellularAllowed(false))

	cfg, _, err := LoadConfig(path)
	require.NoError(t, err)
	assert.False(t, cfg.Preferences.UseCellularData, "persisted to the loaded file")
	assert.Equal(t, "http://x", cfg.API.BaseURL)
}

func TestPreferenceStore_InvalidValue(t *testing.T) {
	v := viper.New()
	v.Set(cellularKey, "sometimes")

	_, err := NewPreferenceStore(v, false).CellularAllowed()
	require.Error(t, err)

	v.Set(cellularKey, "false")
	allowed, err := NewPreferenceStore(v, false).CellularAllowed()
	require.NoError(t, err)
	assert.False(t, allowed)
}

func TestPreferenceStore_WritesOnlyThePreference(t *testing.T) {
	path := writeConfig(t, "api:\n  base_url: http://x\n")
	t.Setenv("CATALOG_API_APP_KEY", "secret-from-env")

	cfg, v, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, "secret-from-env", cfg.API.AppKey)

	require.NoError(t, NewPreferenceStore(v, true).SetCellularAllowed(false))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	written := string(data)
	assert.Contains(t, written, "use_cellular_data: false")
	assert.Contains(t, written, "base_url: http://x")
	assert.NotContains(t, written, "secret-from-env")
	for _, key := range []string{"app_key", "cache:", "logging:", "network:", "metrics:", "expiry"} {
		assert.NotContains(t, written, key)
	}
}

func TestSaveSetting_CreatesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	require.NoError(t, SaveSetting(path, cellularKey, false))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	cfg, _, err := LoadConfig(path)
	require.NoError(t, err)
	assert.False(t, cfg.Preferences.UseCellularData)
	assert.Equal(t, 10*time.Minute, cfg.Cache.Expiry, "defaults still come from code")
}
