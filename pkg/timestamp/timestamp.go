// Package timestamp handles the time values that flow through pipelines.
//
// Timestamps travel as int64 milliseconds since the Unix epoch (UTC). Zero means
// "not set" and every function treats it that way.
//
//	now := timestamp.Now()
//	t := timestamp.FromUnixMs(now)
//	s := timestamp.Format(now)                  // RFC3339 in UTC
//	ms := timestamp.Parse("2023-01-01T12:00:00Z")
//	ms = timestamp.Parse(1672574400)            // seconds are promoted to ms
//
// A Clock abstracts the wall clock so that time-driven plugins can be tested
// deterministically; see NewManual.
package timestamp

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Now returns the current time as Unix milliseconds.
func Now() int64 {
	return time.Now().UnixMilli()
}

// ToUnixMs converts a time.Time to Unix milliseconds.
func ToUnixMs(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

// FromUnixMs converts Unix milliseconds to time.Time.
// Returns zero time if timestamp is 0.
func FromUnixMs(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

// Format converts Unix milliseconds to an RFC3339 string in UTC.
// Returns empty string if timestamp is 0.
func Format(ms int64) string {
	if ms == 0 {
		return ""
	}
	return time.UnixMilli(ms).UTC().Format(time.RFC3339)
}

// named layouts accepted by Layout, besides raw Go layouts
var layouts = map[string]string{
	"rfc3339":     time.RFC3339,
	"rfc3339nano": time.RFC3339Nano,
	"rfc1123":     time.RFC1123,
	"kitchen":     time.Kitchen,
	"datetime":    time.DateTime,
	"date":        time.DateOnly,
	"time":        time.TimeOnly,
	"stamp":       time.StampMilli,
}

// Layout resolves a format name ("rfc3339nano", "datetime", ...) to a Go layout.
// Anything else is returned unchanged and used as a Go layout; "" means RFC3339Nano.
func Layout(name string) string {
	if name == "" {
		return time.RFC3339Nano
	}
	if layout, ok := layouts[strings.ToLower(name)]; ok {
		return layout
	}
	return name
}

// Parse converts various timestamp formats to Unix milliseconds.
// Supports:
//   - integers (milliseconds if > 1e12, otherwise seconds)
//   - float64 (same rule, fractional seconds kept)
//   - string (RFC3339 with optional fraction, or a number)
//   - time.Time
//
// Returns 0 for nil, invalid input or parsing errors.
func Parse(input any) int64 {
	switch v := input.(type) {
	case nil:
		return 0

	case int64:
		if v > 1e12 || v == 0 {
			return v
		}
		return v * 1000

	case float64:
		if v > 1e12 {
			return int64(v)
		}
		return int64(v * 1000)

	case int:
		return Parse(int64(v))

	case int32:
		return Parse(int64(v))

	case string:
		if v == "" {
			return 0
		}
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			return ToUnixMs(t)
		}
		if ts, err := strconv.ParseInt(v, 10, 64); err == nil {
			return Parse(ts)
		}
		if ts, err := strconv.ParseFloat(v, 64); err == nil {
			return Parse(ts)
		}
		return 0

	case time.Time:
		return ToUnixMs(v)

	case *time.Time:
		if v == nil {
			return 0
		}
		return ToUnixMs(*v)

	default:
		return 0
	}
}

// Since returns the duration since the given timestamp.
// Returns 0 if timestamp is zero.
func Since(ms int64) time.Duration {
	if ms == 0 {
		return 0
	}
	return time.Since(time.UnixMilli(ms))
}

// Between returns the duration between two timestamps.
// Returns 0 if either timestamp is zero.
func Between(start, end int64) time.Duration {
	if start == 0 || end == 0 {
		return 0
	}
	return time.UnixMilli(end).Sub(time.UnixMilli(start))
}

// NextTick returns the first multiple of period after t, counted from the Unix
// epoch, so that several processes with the same period tick together.
func NextTick(t time.Time, period time.Duration) time.Time {
	if period <= 0 {
		return t
	}
	next := t.Truncate(period)
	if !next.After(t) {
		next = next.Add(period)
	}
	return next
}

// Validate checks if a timestamp is valid (non-negative and reasonable).
func Validate(ms int64) error {
	if ms < 0 {
		return fmt.Errorf("timestamp cannot be negative: %d", ms)
	}
	// year 3000
	if ms > 32503680000000 {
		return fmt.Errorf("timestamp too far in future: %d", ms)
	}
	return nil
}
