// BuffaLogs - Login Anomaly Detection and Alerting
// Copyright 2026 The BuffaLogs Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/buffalogs/buffalogs

// Package config loads the three configuration surfaces of BuffaLogs:
//
//   - the application config (config.yaml + environment), loaded once at
//     startup with Koanf v2 and validated with go-playground/validator;
//   - ingestion.json, the operator-editable log-store configuration, read
//     by the ingestion factory at each window;
//   - alerting.json, the operator-editable channel configuration, read by
//     the dispatcher at each run.
//
// Precedence for the application config: ENV > file > defaults.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/buffalogs/buffalogs/internal/models"
)

// DefaultConfigPaths lists where the application config file is searched,
// in priority order.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/buffalogs/config.yaml",
	"/etc/buffalogs/config.yml",
}

// ConfigPathEnvVar overrides the config file path when set.
const ConfigPathEnvVar = "BUFFALOGS_CONFIG_PATH"

// Config is the application configuration.
type Config struct {
	Database  DatabaseConfig  `koanf:"database"`
	Scheduler SchedulerConfig `koanf:"scheduler"`
	Server    ServerConfig    `koanf:"server"`
	Logging   LoggingConfig   `koanf:"logging"`
	Files     FilesConfig     `koanf:"files"`
}

// DatabaseConfig configures the sqlite store.
type DatabaseConfig struct {
	// Path is the sqlite database file, or ":memory:" for tests.
	Path string `koanf:"path" validate:"required"`

	// BusyTimeout is how long a writer waits on a locked database.
	BusyTimeout time.Duration `koanf:"busy_timeout"`
}

// SchedulerConfig configures the ingestion window policy.
type SchedulerConfig struct {
	// WindowLength is the length of one ProcessLogs window.
	WindowLength time.Duration `koanf:"window_length" validate:"required"`

	// TrailingGap keeps the window end behind wall clock so late events
	// have settled in the log store.
	TrailingGap time.Duration `koanf:"trailing_gap"`

	// MaxCatchupWindows bounds consecutive recovery windows per invocation
	// when the watermark lags by less than RestartThreshold.
	MaxCatchupWindows int `koanf:"max_catchup_windows" validate:"min=1"`

	// RestartThreshold is the lag beyond which the watermark jumps forward
	// instead of replaying windows.
	RestartThreshold time.Duration `koanf:"restart_threshold"`
}

// ServerConfig configures the metrics/health HTTP listener.
type ServerConfig struct {
	Host    string        `koanf:"host"`
	Port    int           `koanf:"port" validate:"min=1,max=65535"`
	Timeout time.Duration `koanf:"timeout"`
}

// LoggingConfig configures the global logger.
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn error fatal disabled"`
	Format string `koanf:"format" validate:"oneof=json console"`
	Caller bool   `koanf:"caller"`
}

// FilesConfig locates the operator-editable files.
type FilesConfig struct {
	Ingestion string `koanf:"ingestion" validate:"required"`
	Alerting  string `koanf:"alerting" validate:"required"`
	Blocklist string `koanf:"blocklist"`
}

// defaultConfig returns the built-in defaults, overridden by file and env.
func defaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path:        "/data/buffalogs.db",
			BusyTimeout: 5 * time.Second,
		},
		Scheduler: SchedulerConfig{
			WindowLength:      30 * time.Minute,
			TrailingGap:       time.Minute,
			MaxCatchupWindows: 6,
			RestartThreshold:  24 * time.Hour,
		},
		Server: ServerConfig{
			Host:    "0.0.0.0",
			Port:    8734,
			Timeout: 30 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Files: FilesConfig{
			Ingestion: "/etc/buffalogs/ingestion.json",
			Alerting:  "/etc/buffalogs/alerting.json",
			Blocklist: "/etc/buffalogs/blocklist.txt",
		},
	}
}

// Load builds the application configuration from defaults, the first config
// file found, and BUFFALOGS_* environment variables, then validates it.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("%w: loading defaults: %v", models.ErrConfig, err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: loading %s: %v", models.ErrConfig, path, err)
		}
	}

	// BUFFALOGS_SCHEDULER_WINDOW_LENGTH -> scheduler.window_length
	envProvider := env.Provider("BUFFALOGS_", ".", func(s string) string {
		return strings.Replace(
			strings.ToLower(strings.TrimPrefix(s, "BUFFALOGS_")), "_", ".", 1)
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: loading environment: %v", models.ErrConfig, err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("%w: unmarshal: %v", models.ErrConfig, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration with struct tags.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("%w: %v", models.ErrConfig, err)
	}
	return nil
}

func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
		return ""
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}
