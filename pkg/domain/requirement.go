package domain

import (
	"fmt"
	"strings"
	"time"
)

// RequirementKind names one variant of the badge requirement union.
type RequirementKind string

const (
	KindCount     RequirementKind = "count"
	KindCategory  RequirementKind = "category"
	KindTimeOfDay RequirementKind = "time_of_day"
	KindDayOfWeek RequirementKind = "day_of_week"
	KindSeasonal  RequirementKind = "seasonal"
	KindHoliday   RequirementKind = "holiday"
)

// Requirement is the closed set of badge unlock conditions.
// Only the variant types in this package implement it.
type Requirement interface {
	Kind() RequirementKind
	// Threshold is the progress value at which the badge is earned.
	Threshold() int
	Validate() error
	isRequirement()
}

// Metric is a UserStats field a CountThreshold compares against.
type Metric string

const (
	MetricQuestsCompleted Metric = "quests_completed"
	MetricTotalPoints     Metric = "total_points"
	MetricCurrentStreak   Metric = "current_streak"
	MetricLongestStreak   Metric = "longest_streak"
)

// IsValid returns true if the metric is a known stats field.
func (m Metric) IsValid() bool {
	switch m {
	case MetricQuestsCompleted, MetricTotalPoints, MetricCurrentStreak, MetricLongestStreak:
		return true
	default:
		return false
	}
}

// Value reads the metric from stats.
func (m Metric) Value(s *UserStats) int {
	if s == nil {
		return 0
	}
	switch m {
	case MetricQuestsCompleted:
		return s.TotalQuestsCompleted
	case MetricTotalPoints:
		return s.TotalPoints
	case MetricCurrentStreak:
		return s.CurrentStreakDays
	case MetricLongestStreak:
		return s.LongestStreakDays
	default:
		return 0
	}
}

// CountThreshold is met when a stats metric reaches Target.
type CountThreshold struct {
	Metric Metric
	Target int
}

// CategoryThreshold is met after Target completions in one quest category.
type CategoryThreshold struct {
	Category string
	Target   int
}

// TimeOfDayThreshold is met after Target completions inside a daily time window.
type TimeOfDayThreshold struct {
	Start  ClockTime
	End    ClockTime
	Target int
}

// DayOfWeekThreshold is met after Target completions on weekdays or weekends.
type DayOfWeekThreshold struct {
	Days   DaySet
	Target int
}

// SeasonalThreshold is met after Target completions during one season.
type SeasonalThreshold struct {
	Season Season
	Target int
}

// HolidayThreshold is met after Target completions inside a calendar window.
// A recurring window counts completions from every year. A non-recurring
// window only counts its most recent occurrence.
type HolidayThreshold struct {
	Start     MonthDay
	End       MonthDay
	Recurring bool
	Target    int
}

func (CountThreshold) isRequirement()     {}
func (CategoryThreshold) isRequirement()  {}
func (TimeOfDayThreshold) isRequirement() {}
func (DayOfWeekThreshold) isRequirement() {}
func (SeasonalThreshold) isRequirement()  {}
func (HolidayThreshold) isRequirement()   {}

func (CountThreshold) Kind() RequirementKind     { return KindCount }
func (CategoryThreshold) Kind() RequirementKind  { return KindCategory }
func (TimeOfDayThreshold) Kind() RequirementKind { return KindTimeOfDay }
func (DayOfWeekThreshold) Kind() RequirementKind { return KindDayOfWeek }
func (SeasonalThreshold) Kind() RequirementKind  { return KindSeasonal }
func (HolidayThreshold) Kind() RequirementKind   { return KindHoliday }

func (r CountThreshold) Threshold() int     { return r.Target }
func (r CategoryThreshold) Threshold() int  { return r.Target }
func (r TimeOfDayThreshold) Threshold() int { return r.Target }
func (r DayOfWeekThreshold) Threshold() int { return r.Target }
func (r SeasonalThreshold) Threshold() int  { return r.Target }
func (r HolidayThreshold) Threshold() int   { return r.Target }

func validateTarget(target int) error {
	if target <= 0 {
		return fmt.Errorf("requirement value must be positive, got %d", target)
	}
	return nil
}

func (r CountThreshold) Validate() error {
	if !r.Metric.IsValid() {
		return fmt.Errorf("unknown metric %q", r.Metric)
	}
	return validateTarget(r.Target)
}

func (r CategoryThreshold) Validate() error {
	if strings.TrimSpace(r.Category) == "" {
		return fmt.Errorf("category requirement needs a category")
	}
	return validateTarget(r.Target)
}

func (r TimeOfDayThreshold) Validate() error {
	if r.Start < 0 || r.Start >= secondsPerDay || r.End < 0 || r.End >= secondsPerDay {
		return fmt.Errorf("time window out of range: %s-%s", r.Start, r.End)
	}
	if r.Start == r.End {
		return fmt.Errorf("time window is empty: %s-%s", r.Start, r.End)
	}
	return validateTarget(r.Target)
}

func (r DayOfWeekThreshold) Validate() error {
	if !r.Days.IsValid() {
		return fmt.Errorf("unknown day set %q", r.Days)
	}
	return validateTarget(r.Target)
}

func (r SeasonalThreshold) Validate() error {
	if !r.Season.IsValid() {
		return fmt.Errorf("unknown season %q", r.Season)
	}
	return validateTarget(r.Target)
}

func (r HolidayThreshold) Validate() error {
	if r.Start.Month < time.January || r.Start.Month > time.December || r.Start.Day < 1 {
		return fmt.Errorf("invalid holiday start %s", r.Start)
	}
	if r.End.Month < time.January || r.End.Month > time.December || r.End.Day < 1 {
		return fmt.Errorf("invalid holiday end %s", r.End)
	}
	return validateTarget(r.Target)
}

// Matches reports whether a completion counts toward the requirement.
// CountThreshold reads stats instead of completions and never matches.
func (r CategoryThreshold) Matches(f CompletionFact) bool {
	return strings.EqualFold(strings.TrimSpace(f.Category), strings.TrimSpace(r.Category))
}

func (r TimeOfDayThreshold) Matches(f CompletionFact) bool {
	return f.Time.InWindow(r.Start, r.End)
}

func (r DayOfWeekThreshold) Matches(f CompletionFact) bool {
	return r.Days.Contains(f.DayOfWeek)
}

func (r SeasonalThreshold) Matches(f CompletionFact) bool {
	return f.Season == r.Season
}

// MatchesAt reports whether a completion counts toward the holiday window,
// evaluated at now.
func (r HolidayThreshold) MatchesAt(f CompletionFact, now time.Time) bool {
	if !MonthDayOf(f.CompletedAt).InRange(r.Start, r.End) {
		return false
	}
	if r.Recurring {
		return true
	}
	from, to := r.LatestWindow(now)
	return !f.CompletedAt.Before(from) && f.CompletedAt.Before(to)
}

// LatestWindow returns [from, to) of the window occurrence that contains now
// or, if now is outside the window, the one that ended most recently.
func (r HolidayThreshold) LatestWindow(now time.Time) (time.Time, time.Time) {
	loc := now.Location()
	year := now.Year()
	wraps := r.Start.ordinal() > r.End.ordinal()

	occurrence := func(startYear int) (time.Time, time.Time) {
		from := time.Date(startYear, r.Start.Month, r.Start.Day, 0, 0, 0, 0, loc)
		endYear := startYear
		if wraps {
			endYear++
		}
		to := time.Date(endYear, r.End.Month, r.End.Day, 0, 0, 0, 0, loc).AddDate(0, 0, 1)
		return from, to
	}

	// Candidate occurrences start this year or the year before; pick the
	// latest one that has already started.
	for _, y := range []int{year, year - 1, year - 2} {
		from, to := occurrence(y)
		if !from.After(now) {
			return from, to
		}
	}
	return occurrence(year - 2)
}
