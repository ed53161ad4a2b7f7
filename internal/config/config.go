package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/afero"

	"airwave.click/internal/buffer"
	"airwave.click/internal/decoder"
	"airwave.click/internal/source"
)

const ConfigFileName = "config.json"

var ErrInvalidConfig = errors.New("invalid config")

// FileLoggingConfig represents file-based logging configuration
type FileLoggingConfig struct {
	Enabled    bool   `json:"enabled"`
	Filename   string `json:"filename"` // empty means the XDG cache path
	MaxSizeMB  int    `json:"max_size_mb"`
	MaxBackups int    `json:"max_backups"`
	MaxAgeDays int    `json:"max_age_days"`
	Compress   bool   `json:"compress"`
}

// Config represents airwave configuration
type Config struct {
	Volume           float64            `json:"volume"`    // 0.0 to 1.0
	LogLevel         string             `json:"log_level"` // debug, info, warn, error
	Sink             string             `json:"sink"`      // auto, malgo, command, wav, discard
	Command          string             `json:"command,omitempty"`
	UserAgent        string             `json:"user_agent"`
	ReconnectTries   int                `json:"reconnect_tries"`
	ReconnectDelayMs int                `json:"reconnect_delay_ms"`
	ReadTimeoutMs    int                `json:"read_timeout_ms"`
	BufferSize       int                `json:"buffer_size"`      // engine staging buffer
	RingBufferSize   int                `json:"ring_buffer_size"` // 0 disables prefetch
	MetricsAddr      string             `json:"metrics_addr,omitempty"`
	Tracking         *TrackingConfig    `json:"tracking,omitempty"`
	FileLogging      *FileLoggingConfig `json:"file_logging,omitempty"`
}

// ReconnectDelay is ReconnectDelayMs as a duration
func (c *Config) ReconnectDelay() time.Duration {
	return time.Duration(c.ReconnectDelayMs) * time.Millisecond
}

// ReadTimeout is ReadTimeoutMs as a duration
func (c *Config) ReadTimeout() time.Duration {
	return time.Duration(c.ReadTimeoutMs) * time.Millisecond
}

// XDGInterface defines the interface for XDG directory operations
type XDGInterface interface {
	GetConfigPaths(filename string) []string
	GetCachePath(purpose string) string
	CreateCacheDir(purpose string) error
}

// ConfigManager handles loading, saving, and validating configuration
type ConfigManager struct {
	xdg XDGInterface
	fs  afero.Fs
}

// NewConfigManager creates a configuration manager on the OS filesystem
func NewConfigManager() *ConfigManager {
	return NewConfigManagerWithFilesystem(afero.NewOsFs())
}

// NewConfigManagerWithFilesystem creates a configuration manager on fs
func NewConfigManagerWithFilesystem(fs afero.Fs) *ConfigManager {
	slog.Debug("creating new config manager")
	return &ConfigManager{xdg: NewXDGDirs(), fs: fs}
}

// GetDefaultConfig returns the default configuration
func (cm *ConfigManager) GetDefaultConfig() *Config {
	cfg := &Config{
		Volume:           1.0,
		LogLevel:         "warn",
		Sink:             "auto",
		UserAgent:        source.DefaultUserAgent,
		ReconnectTries:   source.DefaultReconnectTries,
		ReconnectDelayMs: int(source.DefaultReconnectDelay / time.Millisecond),
		ReadTimeoutMs:    int(source.DefaultReadTimeout / time.Millisecond),
		BufferSize:       decoder.DefaultBufferSize,
		RingBufferSize:   buffer.DefaultCapacity,
		Tracking:         GetDefaultTrackingConfig(),
		FileLogging: &FileLoggingConfig{
			Enabled:    false,
			MaxSizeMB:  10,
			MaxBackups: 5,
			MaxAgeDays: 30,
			Compress:   true,
		},
	}

	slog.Debug("generated default config",
		"volume", cfg.Volume,
		"sink", cfg.Sink,
		"reconnect_tries", cfg.ReconnectTries,
		"ring_buffer_size", cfg.RingBufferSize)
	return cfg
}

// LoadFromFile loads and validates configuration from filePath. Fields missing from
// the file keep their default values.
func (cm *ConfigManager) LoadFromFile(filePath string) (*Config, error) {
	slog.Debug("loading config from file", "file_path", filePath)

	data, err := afero.ReadFile(cm.fs, filePath)
	if err != nil {
		slog.Error("failed to read config file", "file_path", filePath, "error", err)
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := cm.GetDefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		slog.Error("failed to parse config JSON", "file_path", filePath, "error", err)
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cm.ValidateConfig(cfg); err != nil {
		return nil, fmt.Errorf("%s: %w", filePath, err)
	}

	slog.Debug("config loaded successfully", "file_path", filePath, "sink", cfg.Sink, "volume", cfg.Volume)
	return cfg, nil
}

// SaveToFile validates and writes cfg as indented JSON
func (cm *ConfigManager) SaveToFile(cfg *Config, filePath string) error {
	if err := cm.ValidateConfig(cfg); err != nil {
		return fmt.Errorf("cannot save invalid config: %w", err)
	}

	dir := filepath.Dir(filePath)
	if err := cm.fs.MkdirAll(dir, 0755); err != nil {
		slog.Error("failed to create config directory", "directory", dir, "error", err)
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := afero.WriteFile(cm.fs, filePath, data, 0644); err != nil {
		slog.Error("failed to write config file", "file_path", filePath, "error", err)
		return fmt.Errorf("failed to write config file: %w", err)
	}

	slog.Info("config saved successfully", "file_path", filePath)
	return nil
}

// LoadConfig loads the first config file found on the XDG config paths, or the defaults
func (cm *ConfigManager) LoadConfig() (*Config, error) {
	paths := cm.xdg.GetConfigPaths(ConfigFileName)
	slog.Debug("searching for config file", "paths", paths)

	for _, path := range paths {
		if _, err := cm.fs.Stat(path); err == nil {
			slog.Debug("found config file", "path", path)
			return cm.LoadFromFile(path)
		}
	}

	slog.Debug("no config file found, using defaults")
	return cm.GetDefaultConfig(), nil
}

// ValidateConfig reports every invalid field at once
func (cm *ConfigManager) ValidateConfig(cfg *Config) error {
	var problems []string

	if cfg.Volume < 0.0 || cfg.Volume > 1.0 {
		problems = append(problems, fmt.Sprintf("volume must be between 0.0 and 1.0, got %g", cfg.Volume))
	}

	if cfg.LogLevel != "" {
		if _, err := ParseLogLevel(cfg.LogLevel); err != nil {
			problems = append(problems, err.Error())
		}
	}

	if !cm.IsValidSink(cfg.Sink) {
		problems = append(problems, fmt.Sprintf("invalid sink '%s', must be one of: %s",
			cfg.Sink, strings.Join(cm.GetSupportedSinks(), ", ")))
	}

	if cfg.ReconnectTries < 0 {
		problems = append(problems, fmt.Sprintf("reconnect_tries must be >= 0, got %d", cfg.ReconnectTries))
	}
	if cfg.ReconnectDelayMs < 0 {
		problems = append(problems, fmt.Sprintf("reconnect_delay_ms must be >= 0, got %d", cfg.ReconnectDelayMs))
	}
	if cfg.ReadTimeoutMs < 0 {
		problems = append(problems, fmt.Sprintf("read_timeout_ms must be >= 0, got %d", cfg.ReadTimeoutMs))
	}
	if cfg.BufferSize != 0 && cfg.BufferSize < decoder.MinBufferSize {
		problems = append(problems, fmt.Sprintf("buffer_size must be at least %d, got %d", decoder.MinBufferSize, cfg.BufferSize))
	}
	if cfg.RingBufferSize < 0 {
		problems = append(problems, fmt.Sprintf("ring_buffer_size must be >= 0, got %d", cfg.RingBufferSize))
	}

	if cfg.MetricsAddr != "" {
		if _, _, err := net.SplitHostPort(cfg.MetricsAddr); err != nil {
			problems = append(problems, fmt.Sprintf("invalid metrics_addr '%s': %v", cfg.MetricsAddr, err))
		}
	}

	if fl := cfg.FileLogging; fl != nil {
		if fl.MaxSizeMB < 0 {
			problems = append(problems, fmt.Sprintf("file logging max_size_mb must be >= 0, got %d", fl.MaxSizeMB))
		}
		if fl.MaxBackups < 0 {
			problems = append(problems, fmt.Sprintf("file logging max_backups must be >= 0, got %d", fl.MaxBackups))
		}
		if fl.MaxAgeDays < 0 {
			problems = append(problems, fmt.Sprintf("file logging max_age_days must be >= 0, got %d", fl.MaxAgeDays))
		}
	}

	if len(problems) > 0 {
		msg := strings.Join(problems, "; ")
		slog.Error("config validation failed", "errors", msg)
		return fmt.Errorf("%w: %s", ErrInvalidConfig, msg)
	}
	return nil
}

// MergeConfigs returns base with the non-zero fields of override applied
func (cm *ConfigManager) MergeConfigs(base, override *Config) *Config {
	merged := *base

	if override.Volume != 0.0 {
		merged.Volume = override.Volume
	}
	if override.LogLevel != "" {
		merged.LogLevel = override.LogLevel
	}
	if override.Sink != "" {
		merged.Sink = override.Sink
	}
	if override.Command != "" {
		merged.Command = override.Command
	}
	if override.UserAgent != "" {
		merged.UserAgent = override.UserAgent
	}
	if override.ReconnectTries != 0 {
		merged.ReconnectTries = override.ReconnectTries
	}
	if override.ReconnectDelayMs != 0 {
		merged.ReconnectDelayMs = override.ReconnectDelayMs
	}
	if override.ReadTimeoutMs != 0 {
		merged.ReadTimeoutMs = override.ReadTimeoutMs
	}
	if override.BufferSize != 0 {
		merged.BufferSize = override.BufferSize
	}
	if override.RingBufferSize != 0 {
		merged.RingBufferSize = override.RingBufferSize
	}
	if override.MetricsAddr != "" {
		merged.MetricsAddr = override.MetricsAddr
	}
	if override.Tracking != nil {
		t := *override.Tracking
		merged.Tracking = &t
	}
	if override.FileLogging != nil {
		fl := *override.FileLogging
		merged.FileLogging = &fl
	}

	slog.Debug("configurations merged", "sink", merged.Sink, "volume", merged.Volume)
	return &merged
}

// ApplyEnvironmentOverrides returns a copy of cfg with AIRWAVE_* variables applied.
// Unparseable values are logged and ignored.
func (cm *ConfigManager) ApplyEnvironmentOverrides(cfg *Config) *Config {
	result := *cfg

	if v := os.Getenv("AIRWAVE_VOLUME"); v != "" {
		if vol, err := strconv.ParseFloat(v, 64); err == nil {
			result.Volume = vol
			slog.Debug("applied volume override from environment", "value", vol)
		} else {
			slog.Warn("invalid AIRWAVE_VOLUME environment variable", "value", v, "error", err)
		}
	}

	if v := os.Getenv("AIRWAVE_SINK"); v != "" {
		if cm.IsValidSink(v) {
			result.Sink = v
			slog.Debug("applied sink override from environment", "value", v)
		} else {
			slog.Warn("invalid AIRWAVE_SINK environment variable", "value", v)
		}
	}

	if v := os.Getenv("AIRWAVE_LOG_LEVEL"); v != "" {
		result.LogLevel = v
	}

	if v := os.Getenv("AIRWAVE_USER_AGENT"); v != "" {
		result.UserAgent = v
	}

	if v := os.Getenv("AIRWAVE_METRICS_ADDR"); v != "" {
		result.MetricsAddr = v
	}

	if v := os.Getenv("AIRWAVE_RECONNECT_TRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			result.ReconnectTries = n
		} else {
			slog.Warn("invalid AIRWAVE_RECONNECT_TRIES environment variable", "value", v, "error", err)
		}
	}

	if v := os.Getenv("AIRWAVE_RING_BUFFER_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			result.RingBufferSize = n
		} else {
			slog.Warn("invalid AIRWAVE_RING_BUFFER_SIZE environment variable", "value", v, "error", err)
		}
	}

	result.Tracking = ApplyTrackingEnvironmentOverrides(result.Tracking)
	return &result
}

// ParseLogLevel maps a config log level to a slog level
func ParseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("invalid log level '%s', must be one of: debug, info, warn, error", level)
}

// ResolveLogFilePath uses the XDG cache directory when filename is empty
func (cm *ConfigManager) ResolveLogFilePath(filename string) string {
	if filename != "" {
		return filename
	}
	return filepath.Join(cm.xdg.GetCachePath("logs"), "airwave.log")
}

// ResolveDatabasePath uses the XDG cache directory when the tracking path is empty
func (cm *ConfigManager) ResolveDatabasePath(tracking *TrackingConfig) string {
	if tracking != nil && tracking.DatabasePath != "" {
		return tracking.DatabasePath
	}
	return filepath.Join(cm.xdg.GetCachePath(""), "airwave.db")
}

// GetSupportedSinks returns the sink types accepted in the config
func (cm *ConfigManager) GetSupportedSinks() []string {
	return []string{"auto", "malgo", "command", "wav", "discard"}
}

// IsValidSink checks a sink type. Empty means auto.
func (cm *ConfigManager) IsValidSink(sinkType string) bool {
	return sinkType == "" || slices.Contains(cm.GetSupportedSinks(), sinkType)
}
