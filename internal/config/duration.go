package config

import (
	"fmt"
	"time"
)

// Duration wraps time.Duration so the crawl config's timeout/delay/window
// fields can be written as human-readable YAML strings ("250ms", "30s")
// instead of raw nanosecond integers.
type Duration struct {
	time.Duration
}

// DurationFrom creates a Duration from a standard time.Duration.
func DurationFrom(d time.Duration) Duration {
	return Duration{Duration: d}
}

// IsZero reports whether the duration is zero.
func (d Duration) IsZero() bool {
	return d.Duration == 0
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// UnmarshalText parses a Go duration string. Every config.Duration field in
// this package (timeouts, per-domain delays, rate-limit windows) is a
// non-negative quantity — a negative value is almost always a typo'd sign
// and, left unchecked, silently turns into nonsense downstream (a negative
// client timeout cancels the request context before it's even used).
func (d *Duration) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		d.Duration = 0
		return nil
	}

	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(text), err)
	}
	if parsed < 0 {
		return fmt.Errorf("duration %q must not be negative", string(text))
	}
	d.Duration = parsed
	return nil
}

// MarshalYAML allows emitting duration values as strings.
func (d Duration) MarshalYAML() (any, error) {
	return d.Duration.String(), nil
}

// UnmarshalYAML accepts either a string duration or a plain number of
// seconds, mirroring the teacher's config decoder's tolerance for either
// form in hand-edited YAML.
func (d *Duration) UnmarshalYAML(value func(any) error) error {
	var raw any
	if err := value(&raw); err != nil {
		return err
	}
	switch v := raw.(type) {
	case string:
		return d.UnmarshalText([]byte(v))
	case int:
		return d.fromSeconds(float64(v))
	case int64:
		return d.fromSeconds(float64(v))
	case float64:
		return d.fromSeconds(v)
	default:
		return fmt.Errorf("unsupported duration type %T", raw)
	}
}

func (d *Duration) fromSeconds(seconds float64) error {
	if seconds < 0 {
		return fmt.Errorf("duration %gs must not be negative", seconds)
	}
	d.Duration = time.Duration(seconds * float64(time.Second))
	return nil
}
