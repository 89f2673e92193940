// Package config loads and exposes application configuration (TOML).
package config

import (
	"os"

	"github.com/BurntSushi/toml"
)

// Default configuration values used when a field is missing in TOML.
const (
	DefaultConfigPath    = "config.toml"
	DefaultHTTPAddr      = ":8080"
	DefaultPGHost        = "127.0.0.1"
	DefaultPGPort        = 5432
	DefaultPGUser        = "postgres"
	DefaultPGDatabase    = "chatdesk"
	DefaultPGSSLMode     = "disable"
	DefaultMediaDir      = "public"
	DefaultMediaBaseURL  = "/media"
	DefaultMenuDebounce  = 3000
	DefaultAckDelay      = 500
	DefaultEventBuffer   = 128
)

// Config is the root application configuration loaded from TOML.
type Config struct {
	Log      LogConfig      `toml:"log"`
	Server   ServerConfig   `toml:"server"`
	Postgres PostgresConfig `toml:"postgres"`
	Sentry   SentryConfig   `toml:"sentry"`
	Engine   EngineConfig   `toml:"engine"`
	Media    MediaConfig    `toml:"media"`
}

// LogConfig holds logging level and format (e.g. level=info, format=text).
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// ServerConfig holds the HTTP server listen address.
type ServerConfig struct {
	Addr string `toml:"addr"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	User     string `toml:"user"`
	Password string `toml:"password"`
	Database string `toml:"database"`
	SSLMode  string `toml:"sslmode"`
}

// SentryConfig holds the error tracker DSN; reporting is disabled when empty.
type SentryConfig struct {
	DSN         string `toml:"dsn"`
	Environment string `toml:"environment"`
}

// EngineConfig holds routing engine timing knobs (milliseconds).
type EngineConfig struct {
	MenuDebounceMs int `toml:"menu_debounce_ms"`
	AckDelayMs     int `toml:"ack_delay_ms"`
	EventBuffer    int `toml:"event_buffer"`
}

// MediaConfig holds the local media directory and the URL prefix served to clients.
type MediaConfig struct {
	Dir           string `toml:"dir"`
	PublicBaseURL string `toml:"public_base_url"`
}

// Load reads and parses the TOML config file at path and applies default values for missing fields.
func Load(path string) (Config, error) {
	cfg := Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Server: ServerConfig{
			Addr: DefaultHTTPAddr,
		},
		Postgres: PostgresConfig{
			Host:     DefaultPGHost,
			Port:     DefaultPGPort,
			User:     DefaultPGUser,
			Database: DefaultPGDatabase,
			SSLMode:  DefaultPGSSLMode,
		},
		Engine: EngineConfig{
			MenuDebounceMs: DefaultMenuDebounce,
			AckDelayMs:     DefaultAckDelay,
			EventBuffer:    DefaultEventBuffer,
		},
		Media: MediaConfig{
			Dir:           DefaultMediaDir,
			PublicBaseURL: DefaultMediaBaseURL,
		},
	}

	if path == "" {
		path = DefaultConfigPath
	}

	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, err
	}

	return cfg, nil
}
