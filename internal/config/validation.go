package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Validate checks the configuration for errors. Configuration errors are
// fatal at startup; the detection loop never starts on a bad config.
func (c *Config) Validate() error {
	var errs ValidationErrors

	if c.Version < 1 || c.Version > Version {
		errs = append(errs, ValidationError{
			Field:   "version",
			Message: fmt.Sprintf("unsupported version %d (current: %d)", c.Version, Version),
		})
	}

	if c.Detector.Memory != "auto" {
		if _, err := ParseSize(c.Detector.Memory); err != nil {
			errs = append(errs, ValidationError{
				Field:   "detector.memory",
				Message: err.Error(),
			})
		}
	}

	if c.Detector.DelayBetweenChecksMs < 0 {
		errs = append(errs, ValidationError{
			Field:   "detector.delay_between_checks_ms",
			Message: "must not be negative",
		})
	}

	errs = append(errs, validateCoordinate("location.latitude", c.Location.Latitude, 90)...)
	errs = append(errs, validateCoordinate("location.longitude", c.Location.Longitude, 180)...)

	if c.Journal.Path == "" {
		errs = append(errs, ValidationError{
			Field:   "journal.path",
			Message: "required",
		})
	}

	if c.Archive.Enabled && c.Archive.Path == "" {
		errs = append(errs, ValidationError{
			Field:   "archive.path",
			Message: "required when archive is enabled",
		})
	}

	if c.Sizer.FreeFloorBytes == 0 {
		errs = append(errs, ValidationError{
			Field:   "sizer.free_floor_bytes",
			Message: "must be positive",
		})
	}

	if _, err := parseLevelName(c.Logging.Level); err != nil {
		errs = append(errs, ValidationError{
			Field:   "logging.level",
			Message: err.Error(),
		})
	}

	switch strings.ToLower(c.Logging.Format) {
	case "", "text", "json":
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.format",
			Message: fmt.Sprintf("unknown format %q", c.Logging.Format),
		})
	}

	if strings.ToLower(c.Logging.Output) == "file" && c.Logging.FilePath == "" {
		errs = append(errs, ValidationError{
			Field:   "logging.file_path",
			Message: "required when output is file",
		})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// validateCoordinate checks a latitude or longitude string: required,
// decimal degrees, within ±limit. The value is recorded verbatim in the
// journal, so only its form is checked here.
func validateCoordinate(field, value string, limit float64) ValidationErrors {
	if value == "" {
		return ValidationErrors{{Field: field, Message: "required"}}
	}
	deg, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return ValidationErrors{{Field: field, Message: "not a decimal degree value"}}
	}
	if deg < -limit || deg > limit {
		return ValidationErrors{{
			Field:   field,
			Message: fmt.Sprintf("out of range [-%v, %v]", limit, limit),
		}}
	}
	return nil
}

// parseLevelName validates a log level name without pulling in the
// logging package.
func parseLevelName(s string) (string, error) {
	switch strings.ToLower(s) {
	case "", "debug", "info", "warn", "warning", "error":
		return strings.ToLower(s), nil
	default:
		return "", fmt.Errorf("unknown log level %q", s)
	}
}

// ProbeJournalPath verifies that the journal path is usable before the
// daemon starts: the file is opened if it exists and created otherwise.
func ProbeJournalPath(path string) error {
	f, err := os.Open(path)
	if err == nil {
		return f.Close()
	}

	f, err = os.Create(path)
	if err != nil {
		return fmt.Errorf("journal path %s is not creatable: %w", path, err)
	}
	return f.Close()
}
