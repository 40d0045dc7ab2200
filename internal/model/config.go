package model

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Backend drivers.
const (
	BackendSQLite = "sqlite"
	BackendREST   = "rest"
)

// Realtime transports.
const (
	TransportHub       = "hub"
	TransportRedis     = "redis"
	TransportWebsocket = "websocket"
	TransportNone      = "none"
)

// envPrefix is the prefix of environment variables that override config keys,
// e.g. GUEST_SERVICES_VIEWER_GUEST_ID.
const envPrefix = "GUEST_SERVICES"

// BackendConfig selects and locates the relational backend.
type BackendConfig struct {
	// Driver is "sqlite" (local database) or "rest" (hosted REST API).
	Driver string `mapstructure:"driver" yaml:"driver"`

	// Path is the sqlite database file.
	Path string `mapstructure:"path" yaml:"path"`

	// URL is the root URL of the hosted REST API.
	URL string `mapstructure:"url" yaml:"url"`
}

// RealtimeConfig controls push subscriptions and the polling backstop.
type RealtimeConfig struct {
	Transport       string `mapstructure:"transport" yaml:"transport"`
	PollIntervalSec int    `mapstructure:"poll_interval_sec" yaml:"poll_interval_sec"`
	BackoffMinMs    int    `mapstructure:"backoff_min_ms" yaml:"backoff_min_ms"`
	BackoffMaxSec   int    `mapstructure:"backoff_max_sec" yaml:"backoff_max_sec"`

	// RefreshPerSec bounds how often push events may trigger a refetch.
	RefreshPerSec float64 `mapstructure:"refresh_per_sec" yaml:"refresh_per_sec"`

	RedisAddr   string `mapstructure:"redis_addr" yaml:"redis_addr"`
	RedisDB     int    `mapstructure:"redis_db" yaml:"redis_db"`
	RedisPrefix string `mapstructure:"redis_prefix" yaml:"redis_prefix"`

	WebsocketURL string `mapstructure:"websocket_url" yaml:"websocket_url"`
}

// PollInterval returns the polling period as a duration.
func (c RealtimeConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSec) * time.Second
}

// WatermarkConfig locates the local key-value file holding watermarks.
type WatermarkConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// DisplayConfig holds UI/rendering preferences.
type DisplayConfig struct {
	Theme string `mapstructure:"theme" yaml:"theme"`

	// BadgeCap is the largest count shown before rendering "N+".
	BadgeCap int `mapstructure:"badge_cap" yaml:"badge_cap"`
}

// LogConfig controls the application logger.
type LogConfig struct {
	Level string `mapstructure:"level" yaml:"level"`

	// File enables rotated JSON file logging when set; otherwise logs go to stderr.
	File       string `mapstructure:"file" yaml:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
}

// AppConfig is the top-level application configuration.
type AppConfig struct {
	Viewer     Viewer          `mapstructure:"viewer" yaml:"viewer"`
	Backend    BackendConfig   `mapstructure:"backend" yaml:"backend"`
	Realtime   RealtimeConfig  `mapstructure:"realtime" yaml:"realtime"`
	Watermarks WatermarkConfig `mapstructure:"watermarks" yaml:"watermarks"`
	Display    DisplayConfig   `mapstructure:"display" yaml:"display"`
	Log        LogConfig       `mapstructure:"log" yaml:"log"`
}

// ConfigDir returns ~/.config/guest-services, or the working directory when
// the home directory cannot be resolved.
func ConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "guest-services")
}

// DefaultConfigPath returns the default path for the configuration file.
func DefaultConfigPath() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

// setDefaults registers default values so missing keys resolve sensibly.
func setDefaults(v *viper.Viper) {
	dir := ConfigDir()
	v.SetDefault("viewer.role", string(RoleGuest))
	v.SetDefault("backend.driver", BackendSQLite)
	v.SetDefault("backend.path", filepath.Join(dir, "guest-services.db"))
	v.SetDefault("realtime.transport", TransportHub)
	v.SetDefault("realtime.poll_interval_sec", 5)
	v.SetDefault("realtime.backoff_min_ms", 500)
	v.SetDefault("realtime.backoff_max_sec", 30)
	v.SetDefault("realtime.refresh_per_sec", 2.0)
	v.SetDefault("realtime.redis_addr", "localhost:6379")
	v.SetDefault("realtime.redis_prefix", "guest-services")
	v.SetDefault("watermarks.path", filepath.Join(dir, "watermarks.db"))
	v.SetDefault("display.theme", "default")
	v.SetDefault("display.badge_cap", 9)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.max_size_mb", 10)
	v.SetDefault("log.max_backups", 3)
}

// LoadConfig reads configuration from the given YAML file path using Viper.
// A .env file in the working directory and GUEST_SERVICES_* environment
// variables override file values. A missing file yields the defaults.
func LoadConfig(path string) (*AppConfig, error) {
	// A missing .env is not an error.
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var pathErr *os.PathError
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &pathErr) && !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	// Env-only keys are invisible to Unmarshal unless bound explicitly.
	for _, key := range []string{"viewer.guest_id", "viewer.room_number", "backend.url"} {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("binding env for %s: %w", key, err)
		}
	}

	cfg := &AppConfig{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	return cfg, nil
}

// Validate checks the configuration for values the engine cannot run with.
func (c *AppConfig) Validate() error {
	if c.Viewer.Empty() {
		return errors.New("viewer: guest_id or room_number is required")
	}
	switch c.Viewer.Role {
	case RoleGuest, RoleStaff:
	default:
		return fmt.Errorf("viewer: unknown role %q", c.Viewer.Role)
	}

	switch c.Backend.Driver {
	case BackendSQLite:
		if c.Backend.Path == "" {
			return errors.New("backend: path is required for sqlite")
		}
	case BackendREST:
		if c.Backend.URL == "" {
			return errors.New("backend: url is required for rest")
		}
	default:
		return fmt.Errorf("backend: unknown driver %q", c.Backend.Driver)
	}

	switch c.Realtime.Transport {
	case TransportHub, TransportNone:
	case TransportRedis:
		if c.Realtime.RedisAddr == "" {
			return errors.New("realtime: redis_addr is required for redis")
		}
	case TransportWebsocket:
		if c.Realtime.WebsocketURL == "" {
			return errors.New("realtime: websocket_url is required for websocket")
		}
	default:
		return fmt.Errorf("realtime: unknown transport %q", c.Realtime.Transport)
	}

	if c.Realtime.PollIntervalSec <= 0 {
		return errors.New("realtime: poll_interval_sec must be positive")
	}
	if c.Realtime.BackoffMinMs <= 0 || c.Realtime.BackoffMaxSec <= 0 {
		return errors.New("realtime: backoff bounds must be positive")
	}
	if c.Realtime.RefreshPerSec <= 0 {
		return errors.New("realtime: refresh_per_sec must be positive")
	}

	return nil
}

// SaveConfig writes the given configuration to a YAML file at path,
// creating parent directories if needed.
func SaveConfig(path string, cfg *AppConfig) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.Set("viewer", cfg.Viewer)
	v.Set("backend", cfg.Backend)
	v.Set("realtime", cfg.Realtime)
	v.Set("watermarks", cfg.Watermarks)
	v.Set("display", cfg.Display)
	v.Set("log", cfg.Log)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}

	return nil
}
