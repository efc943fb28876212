package timestamp

import (
	"context"
	"testing"
	"time"
)

var (
	testTime   = time.Date(2023, 1, 15, 12, 30, 45, 123000000, time.UTC)
	testTimeMs = int64(1673785845123)
)

func TestNow(t *testing.T) {
	before := time.Now().UnixMilli()
	ts := Now()
	after := time.Now().UnixMilli()

	if ts < before || ts > after {
		t.Errorf("Now() = %d, expected between %d and %d", ts, before, after)
	}
}

func TestUnixMsConversions(t *testing.T) {
	if got := ToUnixMs(testTime); got != testTimeMs {
		t.Errorf("ToUnixMs() = %d, expected %d", got, testTimeMs)
	}
	if got := ToUnixMs(time.Time{}); got != 0 {
		t.Errorf("ToUnixMs(zero) = %d, expected 0", got)
	}
	if got := FromUnixMs(testTimeMs); !got.Equal(testTime) {
		t.Errorf("FromUnixMs() = %v, expected %v", got, testTime)
	}
	if got := FromUnixMs(0); !got.IsZero() {
		t.Errorf("FromUnixMs(0) = %v, expected zero time", got)
	}
}

func TestFormat(t *testing.T) {
	if got := Format(testTimeMs); got != "2023-01-15T12:30:45Z" {
		t.Errorf("Format() = %q", got)
	}
	if got := Format(0); got != "" {
		t.Errorf("Format(0) = %q, expected empty", got)
	}
}

func TestLayout(t *testing.T) {
	tests := []struct {
		name     string
		expected string
	}{
		{"", time.RFC3339Nano},
		{"rfc3339", time.RFC3339},
		{"RFC3339Nano", time.RFC3339Nano},
		{"datetime", time.DateTime},
		{"kitchen", time.Kitchen},
		{"15:04", "15:04"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Layout(tt.name); got != tt.expected {
				t.Errorf("Layout(%q) = %q, expected %q", tt.name, got, tt.expected)
			}
		})
	}
}

func TestParse(t *testing.T) {
	tests := []struct {
		name     string
		input    any
		expected int64
	}{
		{"int64 milliseconds", int64(1673785845123), 1673785845123},
		{"int64 seconds", int64(1673784645), 1673784645000},
		{"int64 zero", int64(0), 0},
		{"float64 milliseconds", float64(1673785845123), 1673785845123},
		{"float64 seconds", float64(1673784645), 1673784645000},
		{"float64 fractional seconds", 1673784645.5, 1673784645500},
		{"float64 zero", float64(0), 0},
		{"int seconds", int(1673784645), 1673784645000},
		{"int32 seconds", int32(1673784645), 1673784645000},
		{"RFC3339 string", "2023-01-15T12:30:45Z", 1673785845000},
		{"RFC3339 with milliseconds", "2023-01-15T12:30:45.123Z", 1673785845123},
		{"RFC3339 with offset", "2023-01-15T13:30:45+01:00", 1673785845000},
		{"unix string seconds", "1673784645", 1673784645000},
		{"unix string milliseconds", "1673785845123", 1673785845123},
		{"empty string", "", 0},
		{"invalid string", "invalid", 0},
		{"time.Time", time.UnixMilli(1673785845123), 1673785845123},
		{"zero time.Time", time.Time{}, 0},
		{"*time.Time", &testTime, testTimeMs},
		{"nil *time.Time", (*time.Time)(nil), 0},
		{"nil", nil, 0},
		{"unsupported type", []int{1, 2, 3}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Parse(tt.input); got != tt.expected {
				t.Errorf("Parse(%v) = %d, expected %d", tt.input, got, tt.expected)
			}
		})
	}
}

func TestSinceAndBetween(t *testing.T) {
	if Since(0) != 0 {
		t.Error("Since(0) should be 0")
	}
	if d := Since(Now() - 1000); d < time.Second {
		t.Errorf("Since() = %v, expected at least 1s", d)
	}
	if d := Between(testTimeMs, testTimeMs+1500); d != 1500*time.Millisecond {
		t.Errorf("Between() = %v", d)
	}
	if d := Between(0, testTimeMs); d != 0 {
		t.Errorf("Between(0, x) = %v, expected 0", d)
	}
}

func TestNextTick(t *testing.T) {
	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	tests := []struct {
		name     string
		now      time.Time
		period   time.Duration
		expected time.Time
	}{
		{"on boundary moves one period", base, time.Second, base.Add(time.Second)},
		{"inside period rounds up", base.Add(300 * time.Millisecond), time.Second, base.Add(time.Second)},
		{"minute period", base.Add(90 * time.Second), time.Minute, base.Add(2 * time.Minute)},
		{"zero period is now", base.Add(time.Millisecond), 0, base.Add(time.Millisecond)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NextTick(tt.now, tt.period); !got.Equal(tt.expected) {
				t.Errorf("NextTick() = %v, expected %v", got, tt.expected)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	if err := Validate(testTimeMs); err != nil {
		t.Errorf("Validate() unexpected error: %v", err)
	}
	if err := Validate(-1); err == nil {
		t.Error("Validate(-1) expected error")
	}
	if err := Validate(32503680000001); err == nil {
		t.Error("Validate(year 3000+) expected error")
	}
}

func TestManualClock(t *testing.T) {
	clock := NewManual(testTime)
	if !clock.Now().Equal(testTime) {
		t.Fatalf("Now() = %v", clock.Now())
	}

	clock.Advance(time.Minute)
	if err := clock.Sleep(context.Background(), time.Second); err != nil {
		t.Fatalf("Sleep() error: %v", err)
	}
	if want := testTime.Add(time.Minute + time.Second); !clock.Now().Equal(want) {
		t.Errorf("Now() = %v, expected %v", clock.Now(), want)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := clock.Sleep(ctx, time.Hour); err != context.Canceled {
		t.Errorf("Sleep(cancelled) = %v, expected context.Canceled", err)
	}
	if want := testTime.Add(time.Minute + time.Second); !clock.Now().Equal(want) {
		t.Error("cancelled Sleep must not advance the clock")
	}
}

func TestSystemClockSleep(t *testing.T) {
	start := time.Now()
	if err := System.Sleep(context.Background(), 20*time.Millisecond); err != nil {
		t.Fatalf("Sleep() error: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 20*time.Millisecond {
		t.Errorf("Sleep returned after %v", elapsed)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := System.Sleep(ctx, time.Hour); err != context.DeadlineExceeded {
		t.Errorf("Sleep() = %v, expected context.DeadlineExceeded", err)
	}
}

func BenchmarkParseString(b *testing.B) {
	for i := 0; i < b.N; i++ {
		Parse("2023-01-15T12:30:45.123Z")
	}
}
