package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// ServerConfig holds the ingest endpoint configuration.
type ServerConfig struct {
	ListenAddress   string `yaml:"listen_address" env:"AREAS_LISTEN_ADDRESS"`
	ReadTimeout     string `yaml:"read_timeout" env:"AREAS_READ_TIMEOUT"`
	MaxMessageBytes int64  `yaml:"max_message_bytes" env:"AREAS_MAX_MESSAGE_BYTES"`
	// AllowedOrigins empty accepts any origin; game hosts do not send one.
	AllowedOrigins []string `yaml:"allowed_origins" env:"AREAS_ALLOWED_ORIGINS" envSeparator:","`
}

// StoreConfig selects and tunes the flat property store.
type StoreConfig struct {
	Backend       string `yaml:"backend" env:"AREAS_STORE_BACKEND"` // "memory", "file" or "sqlite"
	Path          string `yaml:"path" env:"AREAS_STORE_PATH"`
	Compression   string `yaml:"compression" env:"AREAS_STORE_COMPRESSION"` // file backend only
	SyncOnWrite   bool   `yaml:"sync_on_write" env:"AREAS_STORE_SYNC_ON_WRITE"`
	FlushInterval string `yaml:"flush_interval" env:"AREAS_STORE_FLUSH_INTERVAL"`
	// MaxBytes of zero means unbounded.
	MaxBytes      int64  `yaml:"max_bytes" env:"AREAS_STORE_MAX_BYTES"`
	LockTimeout   string `yaml:"lock_timeout" env:"AREAS_STORE_LOCK_TIMEOUT"`
	StaleLockTTL  string `yaml:"stale_lock_ttl" env:"AREAS_STORE_STALE_LOCK_TTL"`
	NameCacheSize int    `yaml:"name_cache_size" env:"AREAS_NAME_CACHE_SIZE"`
}

// LoggingConfig holds logging-specific configurations.
type LoggingConfig struct {
	Level  string `yaml:"level" env:"AREAS_LOG_LEVEL"`   // e.g., "debug", "info", "warn", "error"
	Output string `yaml:"output" env:"AREAS_LOG_OUTPUT"` // e.g., "stdout", "file", "none"
	File   string `yaml:"file" env:"AREAS_LOG_FILE"`     // used if output is "file"
}

// DebugConfig holds debugging-related configurations.
type DebugConfig struct {
	Enabled          bool   `yaml:"enabled" env:"AREAS_DEBUG_ENABLED"`
	ListenAddress    string `yaml:"listen_address" env:"AREAS_DEBUG_LISTEN_ADDRESS"`
	PProfEnabled     bool   `yaml:"pprof_enabled" env:"AREAS_DEBUG_PPROF"`
	MetricsEnabled   bool   `yaml:"metrics_enabled" env:"AREAS_DEBUG_METRICS"`
	MonitorUIEnabled bool   `yaml:"monitor_ui_enabled" env:"AREAS_DEBUG_MONITOR_UI"`
	// SystemInterval is how often host CPU and memory are sampled.
	SystemInterval string `yaml:"system_interval" env:"AREAS_DEBUG_SYSTEM_INTERVAL"`
}

// TracingConfig holds configuration for distributed tracing.
type TracingConfig struct {
	Enabled  bool   `yaml:"enabled" env:"AREAS_TRACING_ENABLED"`
	Endpoint string `yaml:"endpoint" env:"AREAS_TRACING_ENDPOINT"` // e.g., "localhost:4317" for gRPC OTLP collector
	Protocol string `yaml:"protocol" env:"AREAS_TRACING_PROTOCOL"` // "grpc" or "http"
}

// RecorderConfig tunes how game events become records.
type RecorderConfig struct {
	// SettleDelay is how long a break waits for its block_settled message
	// before it is confirmed as is.
	SettleDelay  string `yaml:"settle_delay" env:"AREAS_SETTLE_DELAY"`
	TickInterval string `yaml:"tick_interval" env:"AREAS_TICK_INTERVAL"`
}

// Config is the top-level configuration struct.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Store    StoreConfig    `yaml:"store"`
	Logging  LoggingConfig  `yaml:"logging"`
	Debug    DebugConfig    `yaml:"debug"`
	Tracing  TracingConfig  `yaml:"tracing"`
	Recorder RecorderConfig `yaml:"recorder"`
}

// ParseDuration parses a duration string. Returns the default duration if the string is empty or invalid.
// Logs a warning if the string is invalid but not empty.
func ParseDuration(durationStr string, defaultDuration time.Duration, logger *slog.Logger) time.Duration {
	if durationStr == "" || durationStr == "0" {
		return defaultDuration
	}
	d, err := time.ParseDuration(durationStr)
	if err != nil {
		if logger != nil {
			logger.Warn("Invalid duration format, using default", "input", durationStr, "default", defaultDuration.String(), "error", err)
		}
		return defaultDuration
	}
	return d
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddress:   "127.0.0.1:7480",
			ReadTimeout:     "60s",
			MaxMessageBytes: 1 << 20,
		},
		Store: StoreConfig{
			Backend:       "file",
			Path:          "./data/areas.db",
			Compression:   "snappy",
			FlushInterval: "5s",
			LockTimeout:   "5s",
			StaleLockTTL:  "10m",
			NameCacheSize: 1024,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: "stdout",
			File:   "areas.log",
		},
		Debug: DebugConfig{
			Enabled:          false,
			ListenAddress:    "127.0.0.1:6060",
			PProfEnabled:     true,
			MetricsEnabled:   true,
			MonitorUIEnabled: true,
			SystemInterval:   "15s",
		},
		Tracing: TracingConfig{
			Enabled:  false,
			Endpoint: "localhost:4317",
			Protocol: "grpc",
		},
		Recorder: RecorderConfig{
			SettleDelay:  "5s",
			TickInterval: "1s",
		},
	}
}

// Load reads configuration from an io.Reader on top of the defaults, then
// applies AREAS_* environment overrides.
func Load(r io.Reader) (*Config, error) {
	cfg := Default()

	if r != nil {
		data, err := io.ReadAll(r)
		if err != nil {
			return nil, fmt.Errorf("failed to read config data: %w", err)
		}
		if len(data) > 0 {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to unmarshal config yaml: %w", err)
			}
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadConfig reads configuration from a YAML file by path. A missing file
// yields the defaults.
func LoadConfig(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Load(nil)
		}
		return nil, fmt.Errorf("failed to open config file %s: %w", path, err)
	}
	defer file.Close()

	return Load(file)
}

// Validate rejects values no component could start with.
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case "memory", "file", "sqlite":
	default:
		return fmt.Errorf("store.backend: unknown backend %q", c.Store.Backend)
	}
	if c.Store.Backend != "memory" && c.Store.Path == "" {
		return fmt.Errorf("store.path is required for the %s backend", c.Store.Backend)
	}
	switch c.Store.Compression {
	case "", "none", "snappy", "lz4", "zstd":
	default:
		return fmt.Errorf("store.compression: unknown compression %q", c.Store.Compression)
	}
	if c.Store.MaxBytes < 0 {
		return fmt.Errorf("store.max_bytes must not be negative")
	}
	switch c.Tracing.Protocol {
	case "grpc", "http":
	default:
		return fmt.Errorf("tracing.protocol: unknown protocol %q", c.Tracing.Protocol)
	}
	return nil
}
