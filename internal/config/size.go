package config

import (
	"errors"
	"fmt"
	"strconv"
)

// Size string errors.
var (
	ErrSizeEmpty     = errors.New("config: size string is empty")
	ErrSizeMalformed = errors.New("config: size string is malformed")
	ErrSizeUnit      = errors.New("config: unsupported size unit")
)

// ParseSize parses a human-readable memory size into a byte count.
// Accepted forms: a plain byte count ("200", "0"), SI-prefixed bytes
// ("5kB", "2GB") or SI-prefixed bits ("3Mb" = 375000 bytes). Supported
// prefixes are k, M, G, T and P; a trailing 'B' means bytes and a
// trailing 'b' means bits.
func ParseSize(s string) (uint64, error) {
	if s == "" {
		return 0, ErrSizeEmpty
	}

	if n, err := strconv.ParseUint(s, 10, 64); err == nil {
		return n, nil
	}

	if len(s) < 2 {
		return 0, fmt.Errorf("%w: %q", ErrSizeMalformed, s)
	}

	last := s[len(s)-1]
	if last != 'B' && last != 'b' {
		return 0, fmt.Errorf("%w: %q", ErrSizeMalformed, s)
	}

	var prefixFactor uint64
	switch s[len(s)-2] {
	case 'k':
		prefixFactor = 1e3
	case 'M':
		prefixFactor = 1e6
	case 'G':
		prefixFactor = 1e9
	case 'T':
		prefixFactor = 1e12
	case 'P':
		prefixFactor = 1e15
	default:
		if s[len(s)-2] >= '0' && s[len(s)-2] <= '9' {
			// "12B" style: bytes carry no prefix, bits make no
			// sense without one.
			return 0, fmt.Errorf("%w: %q", ErrSizeMalformed, s)
		}
		return 0, fmt.Errorf("%w: %q", ErrSizeUnit, s)
	}

	// A lowercase 'b' counts bits, so an SI prefix contributes an
	// eighth of its byte factor.
	factor := prefixFactor
	if last == 'b' {
		factor = prefixFactor / 8
	}

	number, err := strconv.ParseUint(s[:len(s)-2], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrSizeMalformed, s)
	}

	return number * factor, nil
}

// FormatBytes pretty-prints a byte count with an SI prefix.
func FormatBytes(n uint64) string {
	switch {
	case n >= 1e12:
		return fmt.Sprintf("%.2f TB", float64(n)/1e12)
	case n >= 1e9:
		return fmt.Sprintf("%.2f GB", float64(n)/1e9)
	case n >= 1e6:
		return fmt.Sprintf("%.2f MB", float64(n)/1e6)
	case n >= 1e3:
		return fmt.Sprintf("%.2f kB", float64(n)/1e3)
	default:
		return fmt.Sprintf("%d B", n)
	}
}
