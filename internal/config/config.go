// Package config loads and watches the almanac client configuration.
//
// Configuration comes from a YAML file, environment variables with an
// ALMANAC_ prefix, or defaults, in the usual viper precedence order.
// The file can be watched at runtime; the daemon uses this to tear down
// and re-establish the push channel when the auth token changes.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Config holds all client settings.
type Config struct {
	// ServerURL is the remote service root, e.g. "https://api.example.com".
	ServerURL string `mapstructure:"server_url"`

	// StreamURL is the push-channel endpoint, e.g. "wss://api.example.com/v1/stream".
	StreamURL string `mapstructure:"stream_url"`

	// AuthToken is the bearer token for both transports.
	AuthToken string `mapstructure:"auth_token"`

	// GuardWindow is how long optimistic writes suppress mismatching deltas.
	GuardWindow time.Duration `mapstructure:"guard_window"`

	// RefreshDebounce is the delay before a fallback full refetch fires.
	RefreshDebounce time.Duration `mapstructure:"refresh_debounce"`

	// RefreshInterval is the periodic full-resync cadence in the daemon.
	RefreshInterval time.Duration `mapstructure:"refresh_interval"`

	// DedupCapacity bounds the push-operation dedup window.
	DedupCapacity int `mapstructure:"dedup_capacity"`

	// CachePath is the warm-start snapshot database; empty disables it.
	CachePath string `mapstructure:"cache_path"`

	// LogFile routes daemon logs to a rotating file; empty means stderr.
	LogFile       string `mapstructure:"log_file"`
	LogMaxSizeMB  int    `mapstructure:"log_max_size_mb"`
	LogMaxBackups int    `mapstructure:"log_max_backups"`
}

// Validate checks required settings.
func (c *Config) Validate() error {
	if c.ServerURL == "" {
		return fmt.Errorf("server_url is required")
	}
	if c.StreamURL == "" {
		return fmt.Errorf("stream_url is required")
	}
	return nil
}

// Manager owns the viper instance so the loaded file can be watched.
type Manager struct {
	v    *viper.Viper
	path string
}

// NewManager prepares a manager for the given config file path.
// An empty path falls back to searching ./almanac.yaml and
// $HOME/.almanac/almanac.yaml.
func NewManager(path string) *Manager {
	v := viper.New()
	v.SetDefault("guard_window", 5*time.Second)
	v.SetDefault("refresh_debounce", 600*time.Millisecond)
	v.SetDefault("refresh_interval", 5*time.Minute)
	v.SetDefault("dedup_capacity", 1000)
	v.SetDefault("cache_path", "")
	v.SetDefault("log_file", "")
	v.SetDefault("log_max_size_mb", 20)
	v.SetDefault("log_max_backups", 3)

	v.SetEnvPrefix("ALMANAC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("almanac")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.almanac")
	}

	return &Manager{v: v, path: path}
}

// Load reads and validates the configuration. A missing config file is
// only an error when a path was given explicitly; otherwise env vars
// and defaults carry the load.
func (m *Manager) Load() (*Config, error) {
	if err := m.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if m.path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := m.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// Watch reloads the config whenever the file changes and hands the new
// config to onChange. Reload failures are reported to onError and the
// previous config stays in effect.
func (m *Manager) Watch(onChange func(*Config), onError func(error)) {
	m.v.OnConfigChange(func(e fsnotify.Event) {
		var cfg Config
		if err := m.v.Unmarshal(&cfg); err != nil {
			onError(fmt.Errorf("failed to parse config after %s: %w", e.Op, err))
			return
		}
		if err := cfg.Validate(); err != nil {
			onError(fmt.Errorf("invalid config after %s: %w", e.Op, err))
			return
		}
		onChange(&cfg)
	})
	m.v.WatchConfig()
}
