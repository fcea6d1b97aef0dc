package config

// Defaults mirrored from the CLI surface.
const (
	// DefaultMemory is the detector size used when none is given.
	DefaultMemory = "1GB"

	// DefaultDelayMs is the pause between integrity checks.
	DefaultDelayMs = 30000

	// DefaultJournalPath is the flip log location.
	DefaultJournalPath = "bitflips.csv"
)

// DefaultConfig returns a configuration populated with defaults.
// Latitude and longitude have no sensible default and stay empty; they
// are required and validation rejects a config without them.
func DefaultConfig() *Config {
	return &Config{
		Version: Version,
		Detector: DetectorConfig{
			Memory:               DefaultMemory,
			DelayBetweenChecksMs: DefaultDelayMs,
			Parallel:             false,
			SentinelValue:        0,
		},
		Sizer: SizerConfig{
			SwapDeltaBytes: 10 << 20,
			FreeFloorBytes: 50 << 20,
		},
		Journal: JournalConfig{
			Path: DefaultJournalPath,
		},
		Archive: ArchiveConfig{
			Enabled: false,
			Path:    "bitflips.db",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
	}
}
