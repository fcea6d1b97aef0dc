// Package config handles configuration loading, validation, and management
// for bitflipd.
package config

import (
	"fmt"
	"os"
	"strconv"
)

// Version is the current configuration schema version.
const Version = 1

// Config holds the complete daemon configuration.
type Config struct {
	// Version is the configuration schema version.
	Version int `toml:"version" json:"version" yaml:"version"`

	// Detector configuration for the monitored memory mass.
	Detector DetectorConfig `toml:"detector" json:"detector" yaml:"detector"`

	// Sizer configuration for automatic sizing.
	Sizer SizerConfig `toml:"sizer" json:"sizer" yaml:"sizer"`

	// Location metadata recorded with every journal line.
	Location LocationConfig `toml:"location" json:"location" yaml:"location"`

	// Journal configuration for the durable flip log.
	Journal JournalConfig `toml:"journal" json:"journal" yaml:"journal"`

	// Archive configuration for the optional SQLite mirror.
	Archive ArchiveConfig `toml:"archive" json:"archive" yaml:"archive"`

	// Notify configuration for desktop notifications.
	Notify NotifyConfig `toml:"notify" json:"notify" yaml:"notify"`

	// Logging configuration.
	Logging LoggingConfig `toml:"logging" json:"logging" yaml:"logging"`
}

// DetectorConfig holds the detector mass configuration.
type DetectorConfig struct {
	// Memory is the amount of RAM to monitor, as a size string:
	// plain bytes ("200"), SI-prefixed bytes ("5kB", "2GB") or bits
	// ("3Mb"). "0" or "auto" engages the adaptive sizer.
	Memory string `toml:"memory" json:"memory" yaml:"memory"`

	// DelayBetweenChecksMs is the pause between integrity checks in
	// milliseconds. Zero means back-to-back checks.
	DelayBetweenChecksMs int64 `toml:"delay_between_checks_ms" json:"delay_between_checks_ms" yaml:"delay_between_checks_ms"`

	// Parallel fans fills and scans out across one worker per CPU.
	Parallel bool `toml:"parallel" json:"parallel" yaml:"parallel"`

	// SentinelValue is the byte value the mass is armed with.
	SentinelValue byte `toml:"sentinel_value" json:"sentinel_value" yaml:"sentinel_value"`
}

// SizerConfig holds the adaptive sizing thresholds.
type SizerConfig struct {
	// SwapDeltaBytes is the swap-usage growth at which a sizing probe
	// is rejected.
	SwapDeltaBytes uint64 `toml:"swap_delta_bytes" json:"swap_delta_bytes" yaml:"swap_delta_bytes"`

	// FreeFloorBytes is the available-memory floor; it also bounds
	// convergence of the sizing loop.
	FreeFloorBytes uint64 `toml:"free_floor_bytes" json:"free_floor_bytes" yaml:"free_floor_bytes"`
}

// LocationConfig holds the geolocation of the machine running the
// detector. Recorded verbatim in every journal record.
type LocationConfig struct {
	Latitude  string `toml:"latitude" json:"latitude" yaml:"latitude"`
	Longitude string `toml:"longitude" json:"longitude" yaml:"longitude"`
}

// JournalConfig holds the flip log configuration.
type JournalConfig struct {
	// Path is the journal file path. Opened or created at startup; an
	// unusable path fails startup.
	Path string `toml:"path" json:"path" yaml:"path"`
}

// ArchiveConfig holds the optional SQLite archive configuration.
type ArchiveConfig struct {
	Enabled bool   `toml:"enabled" json:"enabled" yaml:"enabled"`
	Path    string `toml:"path" json:"path" yaml:"path"`
}

// NotifyConfig holds desktop notification configuration.
type NotifyConfig struct {
	Enabled bool `toml:"enabled" json:"enabled" yaml:"enabled"`
}

// LoggingConfig holds diagnostic logging configuration.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error.
	Level string `toml:"level" json:"level" yaml:"level"`

	// Format is "text" or "json".
	Format string `toml:"format" json:"format" yaml:"format"`

	// Output is "stderr", "stdout" or "file".
	Output string `toml:"output" json:"output" yaml:"output"`

	// FilePath is the log file path when Output is "file".
	FilePath string `toml:"file_path" json:"file_path" yaml:"file_path"`

	// Verbose lowers the effective level to debug, enabling per-check
	// progress output. Presentation only; no behavioral effect.
	Verbose bool `toml:"verbose" json:"verbose" yaml:"verbose"`
}

// ApplyEnvOverrides applies BITFLIPD_* environment variables on top of
// the loaded configuration.
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("BITFLIPD_MEMORY"); v != "" {
		c.Detector.Memory = v
	}
	if v := os.Getenv("BITFLIPD_DELAY_MS"); v != "" {
		if ms, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.Detector.DelayBetweenChecksMs = ms
		}
	}
	if v := os.Getenv("BITFLIPD_LATITUDE"); v != "" {
		c.Location.Latitude = v
	}
	if v := os.Getenv("BITFLIPD_LONGITUDE"); v != "" {
		c.Location.Longitude = v
	}
	if v := os.Getenv("BITFLIPD_JOURNAL"); v != "" {
		c.Journal.Path = v
	}
	if v := os.Getenv("BITFLIPD_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("BITFLIPD_VERBOSE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Logging.Verbose = b
		}
	}
}

// MemoryBytes resolves the configured memory size string. A result of 0
// means automatic sizing.
func (c *Config) MemoryBytes() (uint64, error) {
	if c.Detector.Memory == "auto" {
		return 0, nil
	}
	n, err := ParseSize(c.Detector.Memory)
	if err != nil {
		return 0, fmt.Errorf("detector.memory: %w", err)
	}
	return n, nil
}
