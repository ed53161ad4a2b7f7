package config

import (
	"log/slog"
	"os"
	"strconv"
)

// TrackingConfig controls the session and event database
type TrackingConfig struct {
	Enabled      bool   `json:"enabled"`
	DatabasePath string `json:"database_path"` // empty means the XDG cache path
}

// GetDefaultTrackingConfig returns tracking enabled on the XDG cache path
func GetDefaultTrackingConfig() *TrackingConfig {
	return &TrackingConfig{Enabled: true}
}

// ApplyTrackingEnvironmentOverrides applies AIRWAVE_TRACKING and AIRWAVE_TRACKING_DB
func ApplyTrackingEnvironmentOverrides(cfg *TrackingConfig) *TrackingConfig {
	if cfg == nil {
		cfg = GetDefaultTrackingConfig()
	}
	result := *cfg

	if v := os.Getenv("AIRWAVE_TRACKING"); v != "" {
		if enabled, err := strconv.ParseBool(v); err == nil {
			result.Enabled = enabled
			slog.Debug("applied tracking override from environment", "value", enabled)
		} else {
			slog.Warn("invalid AIRWAVE_TRACKING environment variable", "value", v, "error", err)
		}
	}
	if v := os.Getenv("AIRWAVE_TRACKING_DB"); v != "" {
		result.DatabasePath = v
	}
	return &result
}
