package domain

import (
	"fmt"
	"strings"
)

// Stored requirement_type values. These match the badge table and catalog files.
const (
	RequirementTypeQuestsCompleted = "quests_completed"
	RequirementTypeTotalPoints     = "total_points"
	RequirementTypeCurrentStreak   = "current_streak"
	RequirementTypeLongestStreak   = "longest_streak"
	RequirementTypeCategory        = "category_quest"
	RequirementTypeTimeOfDay       = "time_of_day_quest"
	RequirementTypeDayOfWeek       = "day_of_week_quest"
	RequirementTypeSeasonal        = "seasonal_quest"
	RequirementTypeHoliday         = "holiday_quest"
)

// legacyMetrics maps historical requirement_type strings to count metrics.
var legacyMetrics = map[string]Metric{
	RequirementTypeQuestsCompleted: MetricQuestsCompleted,
	"quest_count":                  MetricQuestsCompleted,
	RequirementTypeTotalPoints:     MetricTotalPoints,
	"points_earned":                MetricTotalPoints,
	RequirementTypeCurrentStreak:   MetricCurrentStreak,
	RequirementTypeLongestStreak:   MetricLongestStreak,
	"streak_days":                  MetricLongestStreak,
}

// RequirementSpec is the flat, persisted shape of a requirement.
// Only the fields relevant to Type are read.
type RequirementSpec struct {
	Type      string `json:"requirement_type"`
	Value     int    `json:"requirement_value"`
	Category  string `json:"requirement_category,omitempty"`
	TimeStart string `json:"requirement_time_start,omitempty"`
	TimeEnd   string `json:"requirement_time_end,omitempty"`
	Days      string `json:"requirement_days,omitempty"`
	Season    string `json:"requirement_season,omitempty"`
	DateStart string `json:"requirement_date_start,omitempty"`
	DateEnd   string `json:"requirement_date_end,omitempty"`
	Recurring bool   `json:"requirement_recurring,omitempty"`
}

// Build converts the flat spec into a validated Requirement.
func (s RequirementSpec) Build() (Requirement, error) {
	typ := strings.ToLower(strings.TrimSpace(s.Type))

	var req Requirement
	if metric, ok := legacyMetrics[typ]; ok {
		req = CountThreshold{Metric: metric, Target: s.Value}
	} else {
		switch typ {
		case RequirementTypeCategory, string(KindCategory):
			req = CategoryThreshold{Category: strings.TrimSpace(s.Category), Target: s.Value}

		case RequirementTypeTimeOfDay, string(KindTimeOfDay):
			start, err := ParseClockTime(s.TimeStart)
			if err != nil {
				return nil, fmt.Errorf("requirement_time_start: %w", err)
			}
			end, err := ParseClockTime(s.TimeEnd)
			if err != nil {
				return nil, fmt.Errorf("requirement_time_end: %w", err)
			}
			req = TimeOfDayThreshold{Start: start, End: end, Target: s.Value}

		case RequirementTypeDayOfWeek, string(KindDayOfWeek):
			req = DayOfWeekThreshold{Days: DaySet(strings.ToLower(strings.TrimSpace(s.Days))), Target: s.Value}

		case RequirementTypeSeasonal, string(KindSeasonal):
			season, err := ParseSeason(s.Season)
			if err != nil {
				return nil, fmt.Errorf("requirement_season: %w", err)
			}
			req = SeasonalThreshold{Season: season, Target: s.Value}

		case RequirementTypeHoliday, string(KindHoliday):
			start, err := ParseMonthDay(s.DateStart)
			if err != nil {
				return nil, fmt.Errorf("requirement_date_start: %w", err)
			}
			end, err := ParseMonthDay(s.DateEnd)
			if err != nil {
				return nil, fmt.Errorf("requirement_date_end: %w", err)
			}
			req = HolidayThreshold{Start: start, End: end, Recurring: s.Recurring, Target: s.Value}

		default:
			return nil, fmt.Errorf("unknown requirement type %q", s.Type)
		}
	}

	if err := req.Validate(); err != nil {
		return nil, err
	}
	return req, nil
}

// SpecOf flattens a Requirement into its persisted shape.
func SpecOf(req Requirement) RequirementSpec {
	switch r := req.(type) {
	case CountThreshold:
		return RequirementSpec{Type: string(r.Metric), Value: r.Target}
	case CategoryThreshold:
		return RequirementSpec{Type: RequirementTypeCategory, Value: r.Target, Category: r.Category}
	case TimeOfDayThreshold:
		return RequirementSpec{Type: RequirementTypeTimeOfDay, Value: r.Target, TimeStart: r.Start.String(), TimeEnd: r.End.String()}
	case DayOfWeekThreshold:
		return RequirementSpec{Type: RequirementTypeDayOfWeek, Value: r.Target, Days: string(r.Days)}
	case SeasonalThreshold:
		return RequirementSpec{Type: RequirementTypeSeasonal, Value: r.Target, Season: string(r.Season)}
	case HolidayThreshold:
		return RequirementSpec{
			Type:      RequirementTypeHoliday,
			Value:     r.Target,
			DateStart: r.Start.String(),
			DateEnd:   r.End.String(),
			Recurring: r.Recurring,
		}
	default:
		return RequirementSpec{}
	}
}

// TypeName returns the stored requirement_type of req.
func TypeName(req Requirement) string {
	return SpecOf(req).Type
}
