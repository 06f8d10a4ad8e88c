package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/CTAG07/Quire/pkg/jinja"
	"github.com/CTAG07/Quire/pkg/site"
	"github.com/natefinch/atomic"
	"gopkg.in/yaml.v3"
)

// ServerConfig holds the settings for the process itself: logging, the
// database and the preview server.
type ServerConfig struct {
	Addr         string `json:"addr" yaml:"addr" toml:"addr"`
	LogLevel     string `json:"log_level" yaml:"log_level" toml:"log_level"`
	LogFormat    string `json:"log_format" yaml:"log_format" toml:"log_format"`
	DatabasePath string `json:"database_path" yaml:"database_path" toml:"database_path"`

	// APIKeyHash is the hex SHA-256 of the key required in the quire-auth
	// header of API requests. Empty leaves the API open.
	APIKeyHash string `json:"api_key_hash" yaml:"api_key_hash" toml:"api_key_hash"`

	// WatchDelayMS is how long the source tree must be quiet before a watch
	// rebuild starts.
	WatchDelayMS int `json:"watch_delay_ms" yaml:"watch_delay_ms" toml:"watch_delay_ms"`
}

// WatchDelay returns WatchDelayMS as a duration, with a floor of 50ms.
func (c ServerConfig) WatchDelay() time.Duration {
	d := time.Duration(c.WatchDelayMS) * time.Millisecond
	if d < 50*time.Millisecond {
		return 50 * time.Millisecond
	}
	return d
}

// Config is the top-level configuration struct that aggregates all other configs.
type Config struct {
	Server ServerConfig `json:"server" yaml:"server" toml:"server"`
	Site   site.Config  `json:"site" yaml:"site" toml:"site"`
	Jinja  jinja.Config `json:"jinja" yaml:"jinja" toml:"jinja"`
}

// DefaultServerConfig creates a server configuration with default values.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Addr:         "127.0.0.1:7280",
		LogLevel:     "info",
		LogFormat:    "text",
		DatabasePath: "./.quire.db?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)",
		WatchDelayMS: 200,
	}
}

// DefaultConfig returns the configuration used when no file exists.
func DefaultConfig() *Config {
	return &Config{
		Server: DefaultServerConfig(),
		Site:   site.DefaultConfig(),
		Jinja:  jinja.DefaultConfig(),
	}
}

type configFormat int

const (
	formatJSON configFormat = iota
	formatYAML
	formatTOML
)

func formatOf(path string) configFormat {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return formatYAML
	case ".toml":
		return formatTOML
	}
	return formatJSON
}

// LoadConfig reads the configuration from a JSON, YAML or TOML file at the
// given path, picking the format from the extension. Missing keys keep their
// defaults. If the file doesn't exist, it is created with default values.
func LoadConfig(path string) (*Config, error) {
	config := DefaultConfig()

	file, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			if err = writeConfig(path, config); err != nil {
				// Not fatal: the build can still run with defaults.
				fmt.Fprintf(os.Stderr, "warning: failed to write default config file: %v\n", err)
			}
			return config, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if len(bytes.TrimSpace(file)) == 0 {
		return config, nil
	}
	switch formatOf(path) {
	case formatYAML:
		err = yaml.Unmarshal(file, config)
	case formatTOML:
		err = toml.Unmarshal(file, config)
	default:
		err = json.Unmarshal(file, config)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return config, nil
}

func writeConfig(path string, config *Config) error {
	var (
		data []byte
		err  error
	)
	switch formatOf(path) {
	case formatYAML:
		data, err = yaml.Marshal(config)
	case formatTOML:
		var buf bytes.Buffer
		err = toml.NewEncoder(&buf).Encode(config)
		data = buf.Bytes()
	default:
		data, err = json.MarshalIndent(config, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err = atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// newLogger builds the process logger from the server config.
func newLogger(cfg ServerConfig) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLogLevel(cfg.LogLevel)}
	if strings.EqualFold(cfg.LogFormat, "json") {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
