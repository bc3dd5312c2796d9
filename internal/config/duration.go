package config

import (
	"fmt"
	"strings"
	"time"
)

// ParseDurationField parses an optional Go duration string ("30m", "1h15m").
// Empty means zero; the caller applies its own default. field names the
// config key for error messages.
func ParseDurationField(field, value string) (time.Duration, error) {
	v := strings.TrimSpace(value)
	if v == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: bad duration %q: %w", field, value, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: negative duration %q", field, value)
	}
	return d, nil
}

// ParseDurationOrDefault is ParseDurationField with a fallback for empty or
// zero values.
func ParseDurationOrDefault(field, value string, def time.Duration) (time.Duration, error) {
	d, err := ParseDurationField(field, value)
	if err != nil || d > 0 {
		return d, err
	}
	return def, nil
}
