package shared

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

//go:embed config.example.toml
var exampleConf []byte

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	API      APIConfig      `toml:"api"`
	Database DatabaseConfig `toml:"database"`
	Sync     SyncConfig     `toml:"sync"`
	Server   ServerConfig   `toml:"server"`
	Logging  LoggingConfig  `toml:"logging"`
}

// APIConfig contains the song API endpoint and transport settings.
type APIConfig struct {
	BaseURL           string   `toml:"base_url"`
	Token             string   `toml:"token"`
	Timeout           Duration `toml:"timeout"`
	Attempts          int      `toml:"attempts"`
	RequestsPerSecond float64  `toml:"requests_per_second"`
}

// DatabaseConfig contains local store connection settings.
type DatabaseConfig struct {
	Path         string `toml:"path"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// SyncConfig controls the sync coordinator schedule and backoff.
type SyncConfig struct {
	Interval      Duration `toml:"interval"`
	BaseDelay     Duration `toml:"base_delay"`
	MaxRetries    int      `toml:"max_retries"`
	ProbeInterval Duration `toml:"probe_interval"`
}

// ServerConfig contains settings for the development song API server.
type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// LoggingConfig sets the minimum log level.
type LoggingConfig struct {
	Level string `toml:"level"`
}

// Duration is a [time.Duration] that decodes from strings like "5m" or "250ms".
type Duration struct {
	time.Duration
}

// UnmarshalText implements [encoding.TextUnmarshaler].
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("%w: bad duration %q: %v", ErrInvalidConfig, text, err)
	}
	d.Duration = parsed
	return nil
}

// MarshalText implements [encoding.TextMarshaler].
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Addr returns the host:port listen address of the development server.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
//
// Keys missing from the file keep the embedded defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return config, nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// ApplyEnv overlays values from a .env file (if present) and the process environment.
//
// Recognized variables: SALINEROS_API_URL, SALINEROS_API_TOKEN, SALINEROS_DB_PATH, SALINEROS_LOG_LEVEL.
func ApplyEnv(config *Config, envFiles ...string) {
	_ = godotenv.Load(envFiles...)

	if v := strings.TrimSpace(os.Getenv("SALINEROS_API_URL")); v != "" {
		config.API.BaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv("SALINEROS_API_TOKEN")); v != "" {
		config.API.Token = v
	}
	if v := strings.TrimSpace(os.Getenv("SALINEROS_DB_PATH")); v != "" {
		config.Database.Path = v
	}
	if v := strings.TrimSpace(os.Getenv("SALINEROS_LOG_LEVEL")); v != "" {
		config.Logging.Level = v
	}
}

// Validate checks the settings the sync core depends on.
func (c *Config) Validate() error {
	switch {
	case strings.TrimSpace(c.API.BaseURL) == "":
		return fmt.Errorf("%w: api.base_url is required", ErrInvalidConfig)
	case c.API.Timeout.Duration <= 0:
		return fmt.Errorf("%w: api.timeout must be positive", ErrInvalidConfig)
	case c.API.Attempts < 1:
		return fmt.Errorf("%w: api.attempts must be at least 1", ErrInvalidConfig)
	case c.Sync.Interval.Duration <= 0:
		return fmt.Errorf("%w: sync.interval must be positive", ErrInvalidConfig)
	case c.Sync.BaseDelay.Duration <= 0:
		return fmt.Errorf("%w: sync.base_delay must be positive", ErrInvalidConfig)
	case c.Sync.MaxRetries < 1:
		return fmt.Errorf("%w: sync.max_retries must be at least 1", ErrInvalidConfig)
	case c.Database.Path == "":
		return fmt.Errorf("%w: database.path is required", ErrInvalidConfig)
	}
	return nil
}
