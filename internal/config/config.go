// Package config provides configuration management for the archive
// downloader. Configuration is loaded from defaults, then an optional JSON
// file, then environment variables, and validated before use.
package config

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"log/slog"
)

// AppConfig represents the complete application configuration.
type AppConfig struct {
	AppName    string `json:"app_name" env:"APP_NAME"`
	ConfigPath string `json:"-" env:"CONFIG_PATH"`

	Download    DownloadConfig    `json:"download"`
	HTTP        HTTPConfig        `json:"http"`
	SymbolDates SymbolDatesConfig `json:"symbol_dates"`
	History     HistoryConfig     `json:"history"`
	Logging     LoggingConfig     `json:"logging"`
}

// DownloadConfig configures planning and execution of download runs.
type DownloadConfig struct {
	DataRoot         string `json:"data_root" env:"DATA_ROOT"`                 // local mirror root; empty keeps the remote data/ prefix
	MaxWorkers       int    `json:"max_workers" env:"MAX_WORKERS"`             // per-symbol download parallelism
	FailureThreshold int    `json:"failure_threshold" env:"FAILURE_THRESHOLD"` // consecutive failures before aborting the run
	DownloadChecksum bool   `json:"download_checksum" env:"DOWNLOAD_CHECKSUM"` // also fetch .CHECKSUM artifacts
	VerifyChecksum   bool   `json:"verify_checksum" env:"VERIFY_CHECKSUM"`     // verify digests after download
	RunTimeout       string `json:"run_timeout" env:"RUN_TIMEOUT"`             // optional deadline for a whole run, e.g. "2h"
}

// HTTPConfig configures the HTTP client used for all remote requests.
type HTTPConfig struct {
	BaseURL        string `json:"base_url" env:"BASE_URL"`
	Timeout        string `json:"timeout" env:"HTTP_TIMEOUT"`
	RequestsPerSec int    `json:"requests_per_sec" env:"REQUESTS_PER_SEC"` // 0 disables rate limiting
	MaxRetries     int    `json:"max_retries" env:"MAX_RETRIES"`
	InitialDelay   string `json:"initial_delay" env:"INITIAL_DELAY"`
}

// SymbolDatesConfig configures the symbol start-date cache.
type SymbolDatesConfig struct {
	Enabled   bool   `json:"enabled" env:"SYMBOL_DATES_ENABLED"`
	CachePath string `json:"cache_path" env:"SYMBOL_DATES_PATH"`
}

// HistoryConfig configures the run-history store.
type HistoryConfig struct {
	Enabled      bool   `json:"enabled" env:"HISTORY_ENABLED"`
	DatabasePath string `json:"database_path" env:"HISTORY_DATABASE_PATH"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	Level      string `json:"level" env:"LOG_LEVEL"`   // debug, info, warn, error
	Format     string `json:"format" env:"LOG_FORMAT"` // json, text
	Output     string `json:"output" env:"LOG_OUTPUT"` // stdout, stderr, file
	FilePath   string `json:"file_path" env:"LOG_FILE_PATH"`
	MaxSize    int    `json:"max_size" env:"LOG_MAX_SIZE"` // MB
	MaxBackups int    `json:"max_backups" env:"LOG_MAX_BACKUPS"`
	MaxAge     int    `json:"max_age" env:"LOG_MAX_AGE"` // days
	Compress   bool   `json:"compress" env:"LOG_COMPRESS"`
}

// Manager loads and holds the application configuration.
type Manager struct {
	configPath string
	logger     *slog.Logger
	config     *AppConfig
}

// NewManager creates a configuration manager. configPath may be empty, in
// which case only defaults and environment variables apply.
func NewManager(configPath string, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{configPath: configPath, logger: logger}
}

// LoadConfig loads configuration with priority order: environment variables
// over the configuration file over defaults.
func (m *Manager) LoadConfig(ctx context.Context) (*AppConfig, error) {
	config := DefaultConfig()

	if m.configPath != "" {
		if err := m.loadFromFile(config); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	m.loadFromEnv(config)

	if err := m.validateConfig(config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	m.config = config
	m.logger.Info("configuration loaded",
		"config_path", m.configPath,
		"data_root", config.Download.DataRoot,
		"max_workers", config.Download.MaxWorkers,
		"log_level", config.Logging.Level)

	return config, nil
}

// GetConfig returns the most recently loaded configuration.
func (m *Manager) GetConfig() *AppConfig {
	return m.config
}

func (m *Manager) loadFromFile(config *AppConfig) error {
	if _, err := os.Stat(m.configPath); os.IsNotExist(err) {
		m.logger.Debug("config file does not exist, using defaults", "path", m.configPath)
		return nil
	}

	data, err := os.ReadFile(m.configPath)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", m.configPath, err)
	}
	if err := json.Unmarshal(data, config); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", m.configPath, err)
	}

	m.logger.Debug("loaded configuration from file", "path", m.configPath)
	return nil
}

func (m *Manager) loadFromEnv(config *AppConfig) {
	if val := os.Getenv("APP_NAME"); val != "" {
		config.AppName = val
	}

	if val := os.Getenv("DATA_ROOT"); val != "" {
		config.Download.DataRoot = val
	}
	if val := os.Getenv("MAX_WORKERS"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			config.Download.MaxWorkers = n
		}
	}
	if val := os.Getenv("FAILURE_THRESHOLD"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			config.Download.FailureThreshold = n
		}
	}
	if val := os.Getenv("DOWNLOAD_CHECKSUM"); val != "" {
		config.Download.DownloadChecksum = val == "true"
	}
	if val := os.Getenv("VERIFY_CHECKSUM"); val != "" {
		config.Download.VerifyChecksum = val == "true"
	}
	if val := os.Getenv("RUN_TIMEOUT"); val != "" {
		config.Download.RunTimeout = val
	}

	if val := os.Getenv("BASE_URL"); val != "" {
		config.HTTP.BaseURL = val
	}
	if val := os.Getenv("HTTP_TIMEOUT"); val != "" {
		config.HTTP.Timeout = val
	}
	if val := os.Getenv("REQUESTS_PER_SEC"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			config.HTTP.RequestsPerSec = n
		}
	}
	if val := os.Getenv("MAX_RETRIES"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			config.HTTP.MaxRetries = n
		}
	}
	if val := os.Getenv("INITIAL_DELAY"); val != "" {
		config.HTTP.InitialDelay = val
	}

	if val := os.Getenv("SYMBOL_DATES_ENABLED"); val != "" {
		config.SymbolDates.Enabled = val == "true"
	}
	if val := os.Getenv("SYMBOL_DATES_PATH"); val != "" {
		config.SymbolDates.CachePath = val
	}

	if val := os.Getenv("HISTORY_ENABLED"); val != "" {
		config.History.Enabled = val == "true"
	}
	if val := os.Getenv("HISTORY_DATABASE_PATH"); val != "" {
		config.History.DatabasePath = val
	}

	if val := os.Getenv("LOG_LEVEL"); val != "" {
		config.Logging.Level = val
	}
	if val := os.Getenv("LOG_FORMAT"); val != "" {
		config.Logging.Format = val
	}
	if val := os.Getenv("LOG_OUTPUT"); val != "" {
		config.Logging.Output = val
	}
	if val := os.Getenv("LOG_FILE_PATH"); val != "" {
		config.Logging.FilePath = val
	}
}

func (m *Manager) validateConfig(config *AppConfig) error {
	var errors []string

	if config.Download.MaxWorkers <= 0 {
		errors = append(errors, "download.max_workers must be greater than 0")
	}
	if config.Download.FailureThreshold < 0 {
		errors = append(errors, "download.failure_threshold must not be negative")
	}
	if config.Download.RunTimeout != "" {
		if _, err := time.ParseDuration(config.Download.RunTimeout); err != nil {
			errors = append(errors, fmt.Sprintf("download.run_timeout is not a valid duration: %v", err))
		}
	}

	if config.HTTP.MaxRetries < 0 {
		errors = append(errors, "http.max_retries must not be negative")
	}
	if config.HTTP.Timeout != "" {
		if _, err := time.ParseDuration(config.HTTP.Timeout); err != nil {
			errors = append(errors, fmt.Sprintf("http.timeout is not a valid duration: %v", err))
		}
	}
	if config.HTTP.InitialDelay != "" {
		if _, err := time.ParseDuration(config.HTTP.InitialDelay); err != nil {
			errors = append(errors, fmt.Sprintf("http.initial_delay is not a valid duration: %v", err))
		}
	}

	if config.History.Enabled && config.History.DatabasePath == "" {
		errors = append(errors, "history.database_path is required when history is enabled")
	}
	if config.SymbolDates.Enabled && config.SymbolDates.CachePath == "" {
		errors = append(errors, "symbol_dates.cache_path is required when symbol dates are enabled")
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[config.Logging.Level] {
		errors = append(errors, "logging.level must be one of: debug, info, warn, error")
	}
	validLogFormats := map[string]bool{"json": true, "text": true}
	if !validLogFormats[config.Logging.Format] {
		errors = append(errors, "logging.format must be one of: json, text")
	}
	if config.Logging.Output == "file" && config.Logging.FilePath == "" {
		errors = append(errors, "logging.file_path is required when output is 'file'")
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation errors:\n- %s", strings.Join(errors, "\n- "))
	}
	return nil
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *AppConfig {
	return &AppConfig{
		AppName: "binance-vision",
		Download: DownloadConfig{
			DataRoot:         "",
			MaxWorkers:       10,
			FailureThreshold: 100,
			DownloadChecksum: false,
			VerifyChecksum:   false,
		},
		HTTP: HTTPConfig{
			BaseURL:        "https://data.binance.vision/",
			Timeout:        "30s",
			RequestsPerSec: 0,
			MaxRetries:     3,
			InitialDelay:   "1s",
		},
		SymbolDates: SymbolDatesConfig{
			Enabled:   true,
			CachePath: "data/symbol_dates.json",
		},
		History: HistoryConfig{
			Enabled:      false,
			DatabasePath: "data/download_history.db",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			Output:     "stdout",
			MaxSize:    100,
			MaxBackups: 3,
			MaxAge:     28,
			Compress:   true,
		},
	}
}

// Duration parses a duration field that has already passed validation,
// returning fallback for the empty string.
func Duration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}
