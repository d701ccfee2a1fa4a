package common

import (
	"testing"
	"time"
)

func TestGetCurrentDateUTC(t *testing.T) {
	result := GetCurrentDateUTC()

	if result.Location() != time.UTC {
		t.Errorf("Expected UTC timezone, got %v", result.Location())
	}

	if result.Hour() != 0 || result.Minute() != 0 || result.Second() != 0 || result.Nanosecond() != 0 {
		t.Errorf("Expected truncated time (00:00:00.000000000), got %02d:%02d:%02d.%09d",
			result.Hour(), result.Minute(), result.Second(), result.Nanosecond())
	}
}

func TestTruncateToDateUTC(t *testing.T) {
	tests := []struct {
		name     string
		input    time.Time
		expected time.Time
	}{
		{
			name:     "truncate afternoon time",
			input:    time.Date(2025, 10, 17, 14, 23, 45, 123456789, time.UTC),
			expected: time.Date(2025, 10, 17, 0, 0, 0, 0, time.UTC),
		},
		{
			name:     "truncate just before midnight",
			input:    time.Date(2025, 10, 17, 23, 59, 59, 999999999, time.UTC),
			expected: time.Date(2025, 10, 17, 0, 0, 0, 0, time.UTC),
		},
		{
			name:     "non-UTC input is converted first",
			input:    time.Date(2025, 10, 17, 1, 0, 0, 0, time.FixedZone("UTC+2", 2*3600)),
			expected: time.Date(2025, 10, 16, 0, 0, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := TruncateToDateUTC(tt.input)
			if !got.Equal(tt.expected) {
				t.Errorf("TruncateToDateUTC() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestTruncateToDate_KeepsLocation(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*3600)
	input := time.Date(2025, 10, 17, 1, 30, 0, 0, loc)

	got := TruncateToDate(input)

	want := time.Date(2025, 10, 17, 0, 0, 0, 0, loc)
	if !got.Equal(want) {
		t.Errorf("TruncateToDate() = %v, want %v", got, want)
	}
	if got.Location() != loc {
		t.Errorf("TruncateToDate() location = %v, want %v", got.Location(), loc)
	}
}

func TestWeekStart(t *testing.T) {
	monday := time.Date(2025, 10, 13, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		input time.Time
	}{
		{name: "monday itself", input: time.Date(2025, 10, 13, 8, 0, 0, 0, time.UTC)},
		{name: "wednesday", input: time.Date(2025, 10, 15, 12, 0, 0, 0, time.UTC)},
		{name: "saturday", input: time.Date(2025, 10, 18, 23, 59, 0, 0, time.UTC)},
		{name: "sunday belongs to previous monday", input: time.Date(2025, 10, 19, 10, 0, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := WeekStart(tt.input)
			if !got.Equal(monday) {
				t.Errorf("WeekStart(%v) = %v, want %v", tt.input, got, monday)
			}
		})
	}
}

func TestDaysBetween(t *testing.T) {
	loc := time.UTC
	base := time.Date(2025, 12, 31, 22, 0, 0, 0, loc)

	tests := []struct {
		name string
		b    time.Time
		want int
	}{
		{name: "same day", b: time.Date(2025, 12, 31, 1, 0, 0, 0, loc), want: 0},
		{name: "next day across year", b: time.Date(2026, 1, 1, 0, 5, 0, 0, loc), want: 1},
		{name: "two days later", b: time.Date(2026, 1, 2, 23, 0, 0, 0, loc), want: 2},
		{name: "day before", b: time.Date(2025, 12, 30, 23, 0, 0, 0, loc), want: -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DaysBetween(base, tt.b, loc); got != tt.want {
				t.Errorf("DaysBetween() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestDateKeyRoundTrip(t *testing.T) {
	d := time.Date(2025, 3, 7, 0, 0, 0, 0, time.UTC)
	key := FormatDateKey(d)
	if key != "2025-03-07" {
		t.Fatalf("FormatDateKey() = %q, want 2025-03-07", key)
	}

	parsed, err := ParseDateKey(key, time.UTC)
	if err != nil {
		t.Fatalf("ParseDateKey() error = %v", err)
	}
	if !parsed.Equal(d) {
		t.Errorf("ParseDateKey() = %v, want %v", parsed, d)
	}

	if _, err := ParseDateKey("2025/03/07", time.UTC); err == nil {
		t.Error("ParseDateKey() expected error for malformed key")
	}
}
