package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Season is the meteorological season of a completion (northern hemisphere).
type Season string

const (
	SeasonSpring Season = "spring"
	SeasonSummer Season = "summer"
	SeasonAutumn Season = "autumn"
	SeasonWinter Season = "winter"
)

// IsValid returns true if the season is one of the four known seasons.
func (s Season) IsValid() bool {
	switch s {
	case SeasonSpring, SeasonSummer, SeasonAutumn, SeasonWinter:
		return true
	default:
		return false
	}
}

// ParseSeason parses a season name. "fall" is accepted for autumn.
func ParseSeason(s string) (Season, error) {
	v := Season(strings.ToLower(strings.TrimSpace(s)))
	if v == "fall" {
		v = SeasonAutumn
	}
	if !v.IsValid() {
		return "", fmt.Errorf("unknown season %q", s)
	}
	return v, nil
}

// SeasonOf returns the season t's calendar month falls into.
// Dec-Feb winter, Mar-May spring, Jun-Aug summer, Sep-Nov autumn.
func SeasonOf(t time.Time) Season {
	switch t.Month() {
	case time.March, time.April, time.May:
		return SeasonSpring
	case time.June, time.July, time.August:
		return SeasonSummer
	case time.September, time.October, time.November:
		return SeasonAutumn
	default:
		return SeasonWinter
	}
}

// ClockTime is a wall-clock time of day, stored as seconds since midnight.
type ClockTime int

const secondsPerDay = 24 * 60 * 60

// ParseClockTime parses "HH:MM" or "HH:MM:SS".
func ParseClockTime(s string) (ClockTime, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("invalid time of day %q: expected HH:MM[:SS]", s)
	}

	limits := []int{23, 59, 59}
	var fields [3]int
	for i, p := range parts {
		// Postgres TIME columns may carry fractional seconds.
		if i == 2 {
			p, _, _ = strings.Cut(p, ".")
		}
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 || n > limits[i] {
			return 0, fmt.Errorf("invalid time of day %q", s)
		}
		fields[i] = n
	}
	return ClockTime(fields[0]*3600 + fields[1]*60 + fields[2]), nil
}

// ClockTimeOf returns the time of day of t in t's location.
func ClockTimeOf(t time.Time) ClockTime {
	h, m, s := t.Clock()
	return ClockTime(h*3600 + m*60 + s)
}

// String formats the time as HH:MM:SS.
func (c ClockTime) String() string {
	v := int(c) % secondsPerDay
	return fmt.Sprintf("%02d:%02d:%02d", v/3600, (v/60)%60, v%60)
}

// InWindow reports whether c falls in [start, end).
// When start > end the window wraps midnight.
func (c ClockTime) InWindow(start, end ClockTime) bool {
	if start <= end {
		return c >= start && c < end
	}
	return c >= start || c < end
}

// MonthDay is a calendar day independent of year.
type MonthDay struct {
	Month time.Month
	Day   int
}

var daysInMonth = [...]int{0, 31, 29, 31, 30, 31, 30, 31, 31, 30, 31, 30, 31}

// ParseMonthDay parses "MM-DD".
func ParseMonthDay(s string) (MonthDay, error) {
	mm, dd, ok := strings.Cut(strings.TrimSpace(s), "-")
	if !ok {
		return MonthDay{}, fmt.Errorf("invalid month-day %q: expected MM-DD", s)
	}
	m, err := strconv.Atoi(mm)
	if err != nil || m < 1 || m > 12 {
		return MonthDay{}, fmt.Errorf("invalid month in %q", s)
	}
	d, err := strconv.Atoi(dd)
	if err != nil || d < 1 || d > daysInMonth[m] {
		return MonthDay{}, fmt.Errorf("invalid day in %q", s)
	}
	return MonthDay{Month: time.Month(m), Day: d}, nil
}

// MonthDayOf returns the month-day of t in t's location.
func MonthDayOf(t time.Time) MonthDay {
	_, m, d := t.Date()
	return MonthDay{Month: m, Day: d}
}

// String formats the value as MM-DD.
func (md MonthDay) String() string {
	return fmt.Sprintf("%02d-%02d", int(md.Month), md.Day)
}

func (md MonthDay) ordinal() int {
	return int(md.Month)*100 + md.Day
}

// InRange reports whether md falls in the inclusive range [start, end].
// When start is after end the range wraps the year boundary.
func (md MonthDay) InRange(start, end MonthDay) bool {
	v, s, e := md.ordinal(), start.ordinal(), end.ordinal()
	if s <= e {
		return v >= s && v <= e
	}
	return v >= s || v <= e
}

// DaySet selects days of the week.
type DaySet string

const (
	DaySetWeekday DaySet = "weekday"
	DaySetWeekend DaySet = "weekend"
)

// IsValid returns true if the set is weekday or weekend.
func (d DaySet) IsValid() bool {
	return d == DaySetWeekday || d == DaySetWeekend
}

// Contains reports whether wd is part of the set.
func (d DaySet) Contains(wd time.Weekday) bool {
	weekend := wd == time.Saturday || wd == time.Sunday
	switch d {
	case DaySetWeekend:
		return weekend
	case DaySetWeekday:
		return !weekend
	default:
		return false
	}
}
