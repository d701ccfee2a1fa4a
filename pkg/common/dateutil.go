package common

import (
	"fmt"
	"time"
)

// DateLayout is the canonical period key format (YYYY-MM-DD).
const DateLayout = "2006-01-02"

// GetCurrentDateUTC returns the current date in UTC, truncated to midnight (00:00:00).
// This matches PostgreSQL's DATE() function behavior for consistency.
func GetCurrentDateUTC() time.Time {
	return TruncateToDateUTC(time.Now())
}

// TruncateToDateUTC truncates the given time to midnight (00:00:00) in UTC.
//
// Example:
//   - Input: 2025-10-17 14:23:45 UTC
//   - Output: 2025-10-17 00:00:00 UTC
func TruncateToDateUTC(t time.Time) time.Time {
	return t.UTC().Truncate(24 * time.Hour)
}

// TruncateToDate truncates t to midnight of its calendar day in t's own location.
// Unlike TruncateToDateUTC it keeps the wall-clock date of non-UTC locations.
func TruncateToDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// WeekStart returns midnight of the Monday of t's week, in t's location.
// Sunday belongs to the week that started six days earlier.
//
// Example:
//   - Input: Sunday 2025-10-19 10:00
//   - Output: Monday 2025-10-13 00:00
func WeekStart(t time.Time) time.Time {
	day := TruncateToDate(t)
	offset := (int(day.Weekday()) + 6) % 7 // Monday = 0 ... Sunday = 6
	return day.AddDate(0, 0, -offset)
}

// IsSameDate reports whether a and b fall on the same calendar day in loc.
func IsSameDate(a, b time.Time, loc *time.Location) bool {
	ay, am, ad := a.In(loc).Date()
	by, bm, bd := b.In(loc).Date()
	return ay == by && am == bm && ad == bd
}

// DaysBetween returns the number of calendar days from a to b in loc.
// The result is negative when b is before a.
func DaysBetween(a, b time.Time, loc *time.Location) int {
	da := TruncateToDate(a.In(loc))
	db := TruncateToDate(b.In(loc))
	// Normalize through UTC so DST transitions do not produce 23h/25h days.
	ua := time.Date(da.Year(), da.Month(), da.Day(), 0, 0, 0, 0, time.UTC)
	ub := time.Date(db.Year(), db.Month(), db.Day(), 0, 0, 0, 0, time.UTC)
	return int(ub.Sub(ua).Hours() / 24)
}

// FormatDateKey formats t as a YYYY-MM-DD period key.
func FormatDateKey(t time.Time) string {
	return t.Format(DateLayout)
}

// ParseDateKey parses a YYYY-MM-DD period key in loc.
func ParseDateKey(s string, loc *time.Location) (time.Time, error) {
	t, err := time.ParseInLocation(DateLayout, s, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date key %q: %w", s, err)
	}
	return t, nil
}
