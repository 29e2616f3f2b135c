package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/mmcdole/catalog/internal/domain"
	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	API         APIConfig         `mapstructure:"api"`
	Cache       CacheConfig       `mapstructure:"cache"`
	Network     NetworkConfig     `mapstructure:"network"`
	Preferences PreferencesConfig `mapstructure:"preferences"`
	Logging     LoggingConfig     `mapstructure:"logging"`
	Metrics     MetricsConfig     `mapstructure:"metrics"`
}

// APIConfig holds catalog API connection settings
type APIConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	AppID   string        `mapstructure:"app_id"`
	AppKey  string        `mapstructure:"app_key"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// CacheConfig holds persistent cache settings
type CacheConfig struct {
	Dir             string                   `mapstructure:"dir"` // empty = memory only
	Namespace       string                   `mapstructure:"namespace"`
	Expiry          time.Duration            `mapstructure:"expiry"`
	ExpiryOverrides map[string]time.Duration `mapstructure:"expiry_overrides"` // keyed by entity type
	MaxEntrySize    int                      `mapstructure:"max_entry_size"`   // characters
	QuotaBytes      int64                    `mapstructure:"quota_bytes"`
}

// NetworkConfig holds connectivity probe settings
type NetworkConfig struct {
	ProbeURL     string        `mapstructure:"probe_url"` // empty = api.base_url
	ProbeTimeout time.Duration `mapstructure:"probe_timeout"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

// PreferencesConfig holds user preferences
type PreferencesConfig struct {
	UseCellularData bool `mapstructure:"use_cellular_data"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	File   string `mapstructure:"file"`
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // "json" (file) or "text" (stderr)
}

// MetricsConfig holds telemetry exporter settings
type MetricsConfig struct {
	Prometheus   bool   `mapstructure:"prometheus"`
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		API: APIConfig{
			Timeout: 30 * time.Second,
		},
		Cache: CacheConfig{
			Dir:             defaultCachePath(),
			Namespace:       "@catalog_cache_",
			Expiry:          10 * time.Minute,
			ExpiryOverrides: map[string]time.Duration{},
			MaxEntrySize:    500_000,
			QuotaBytes:      50 << 20,
		},
		Network: NetworkConfig{
			ProbeTimeout: 5 * time.Second,
			PollInterval: 15 * time.Second,
		},
		Preferences: PreferencesConfig{
			UseCellularData: true,
		},
		Logging: LoggingConfig{
			File:   defaultLogPath(),
			Level:  "INFO",
			Format: "json",
		},
	}
}

// defaultLogPath returns the default log file path for the current OS
func defaultLogPath() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("APPDATA"), "catalog", "catalog.log")
	default:
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".local", "share", "catalog", "catalog.log")
	}
}

// defaultConfigPath returns the default config directory for the current OS
func defaultConfigPath() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("APPDATA"), "catalog")
	default:
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".config", "catalog")
	}
}

// defaultCachePath returns the default cache directory path for the current OS
func defaultCachePath() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("LOCALAPPDATA"), "catalog", "cache")
	default:
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".local", "share", "catalog", "cache")
	}
}

// DefaultConfigFile is where SaveSetting writes when no file was loaded.
func DefaultConfigFile() string {
	return filepath.Join(defaultConfigPath(), "config.yaml")
}

// setDefaults registers every key so environment overrides reach Unmarshal.
func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("api.base_url", cfg.API.BaseURL)
	v.SetDefault("api.app_id", cfg.API.AppID)
	v.SetDefault("api.app_key", cfg.API.AppKey)
	v.SetDefault("api.timeout", cfg.API.Timeout)

	v.SetDefault("cache.dir", cfg.Cache.Dir)
	v.SetDefault("cache.namespace", cfg.Cache.Namespace)
	v.SetDefault("cache.expiry", cfg.Cache.Expiry)
	v.SetDefault("cache.expiry_overrides", cfg.Cache.ExpiryOverrides)
	v.SetDefault("cache.max_entry_size", cfg.Cache.MaxEntrySize)
	v.SetDefault("cache.quota_bytes", cfg.Cache.QuotaBytes)

	v.SetDefault("network.probe_url", cfg.Network.ProbeURL)
	v.SetDefault("network.probe_timeout", cfg.Network.ProbeTimeout)
	v.SetDefault("network.poll_interval", cfg.Network.PollInterval)

	v.SetDefault(cellularKey, cfg.Preferences.UseCellularData)

	v.SetDefault("logging.file", cfg.Logging.File)
	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.format", cfg.Logging.Format)

	v.SetDefault("metrics.prometheus", cfg.Metrics.Prometheus)
	v.SetDefault("metrics.otlp_endpoint", cfg.Metrics.OTLPEndpoint)
}

// LoadConfig loads configuration from file and environment. An empty file
// searches the OS config dir and the working directory for config.yaml.
// The returned viper instance backs the PreferenceStore.
func LoadConfig(file string) (*Config, *viper.Viper, error) {
	cfg := DefaultConfig()
	v := viper.New()
	setDefaults(v, cfg)

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(defaultConfigPath())
		v.AddConfigPath(".")
	}

	// Environment variable overrides, e.g. CATALOG_API_BASE_URL
	v.SetEnvPrefix("CATALOG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !(file != "" && errors.Is(err, os.ErrNotExist)) {
			return nil, nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK, use defaults
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, nil, fmt.Errorf("error parsing config: %w", err)
	}

	return cfg, v, nil
}

// SaveSetting writes one key into the config file and keeps the rest of
// the file's contents. Defaults and environment overrides are never written.
// An empty file means the default location.
func SaveSetting(file, key string, value any) error {
	if file == "" {
		file = DefaultConfigFile()
	}

	v := viper.New()
	v.SetConfigFile(file)
	v.SetConfigPermissions(0600)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}
	v.Set(key, value)

	// Ensure config directory exists
	if err := os.MkdirAll(filepath.Dir(file), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := v.WriteConfigAs(file); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// IsConfigured returns true if the API location and credentials are set
func (c *Config) IsConfigured() bool {
	return c.API.BaseURL != "" && c.API.AppID != "" && c.API.AppKey != ""
}

// Validate reports settings the client cannot run without.
func (c *Config) Validate() error {
	var missing []string
	if c.API.BaseURL == "" {
		missing = append(missing, "api.base_url")
	}
	if c.API.AppID == "" {
		missing = append(missing, "api.app_id")
	}
	if c.API.AppKey == "" {
		missing = append(missing, "api.app_key")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required settings: %s", strings.Join(missing, ", "))
	}

	for name, d := range c.Cache.ExpiryOverrides {
		if !knownEntity(name) {
			return fmt.Errorf("cache.expiry_overrides: unknown entity type %q", name)
		}
		if d <= 0 {
			return fmt.Errorf("cache.expiry_overrides.%s: must be positive", name)
		}
	}
	return nil
}

// ProbeURL returns the reachability target, falling back to the API root.
func (c *Config) ProbeURL() string {
	if c.Network.ProbeURL != "" {
		return c.Network.ProbeURL
	}
	return c.API.BaseURL
}

// Freshness returns the cache window per entity type: the override where one
// is set, otherwise the default expiry.
func (c *Config) Freshness() map[domain.EntityType]time.Duration {
	out := make(map[domain.EntityType]time.Duration, len(c.Cache.ExpiryOverrides))
	for _, e := range []domain.EntityType{domain.EntityShows, domain.EntityEpisodes, domain.EntityStreams} {
		out[e] = c.Cache.Expiry
		if d, ok := c.Cache.ExpiryOverrides[string(e)]; ok && d > 0 {
			out[e] = d
		}
	}
	return out
}

func knownEntity(name string) bool {
	switch domain.EntityType(name) {
	case domain.EntityShows, domain.EntityEpisodes, domain.EntityStreams, domain.EntityPeople:
		return true
	}
	return false
}
