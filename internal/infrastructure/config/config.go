package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration.
type Config struct {
	Server       ServerConfig
	Store        StoreConfig
	Modules      ModulesConfig
	Files        FilesConfig
	AI           AIConfig
	Integrations IntegrationsConfig
	Logging      LogConfig
	RateLimit    RateLimitConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"8000"`
	Host string `envconfig:"HOST" default:"0.0.0.0"`
}

// StoreConfig holds record store configuration.
type StoreConfig struct {
	Driver string `envconfig:"STORE_DRIVER" default:"sqlite"` // "sqlite" or "memory"
	Path   string `envconfig:"STORE_PATH" default:"/var/lib/lattice/lattice.db"`
}

// ModulesConfig holds app module loader configuration.
type ModulesConfig struct {
	Dir         string        `envconfig:"MODULES_DIR" default:"./modules"`
	CallTimeout time.Duration `envconfig:"MODULE_CALL_TIMEOUT" default:"10s"`
}

// FilesConfig holds the per-app file sandbox configuration.
type FilesConfig struct {
	Root string `envconfig:"FILES_ROOT" default:"/var/lib/lattice/files"`
}

// AIConfig holds model inference service configuration.
type AIConfig struct {
	URL     string        `envconfig:"AI_URL" default:"http://localhost:8200"`
	Model   string        `envconfig:"AI_MODEL" default:"default"`
	Timeout time.Duration `envconfig:"AI_TIMEOUT" default:"30s"`
}

// IntegrationsConfig holds outbound third-party HTTP configuration.
type IntegrationsConfig struct {
	RetryMax int           `envconfig:"INTEGRATIONS_RETRY_MAX" default:"3"`
	Timeout  time.Duration `envconfig:"INTEGRATIONS_TIMEOUT" default:"15s"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" default:"100"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" default:"200"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" default:"true"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port: "8000",
			Host: "0.0.0.0",
		},
		Store: StoreConfig{
			Driver: "sqlite",
			Path:   "/var/lib/lattice/lattice.db",
		},
		Modules: ModulesConfig{
			Dir:         "./modules",
			CallTimeout: 10 * time.Second,
		},
		Files: FilesConfig{
			Root: "/var/lib/lattice/files",
		},
		AI: AIConfig{
			URL:     "http://localhost:8200",
			Model:   "default",
			Timeout: 30 * time.Second,
		},
		Integrations: IntegrationsConfig{
			RetryMax: 3,
			Timeout:  15 * time.Second,
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 100,
			Burst:             200,
			Enabled:           true,
		},
	}
}
