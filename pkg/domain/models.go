package domain

import "time"

// Difficulty is the effort tier of a quest.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// IsValid returns true if the difficulty is a known tier.
func (d Difficulty) IsValid() bool {
	switch d {
	case DifficultyEasy, DifficultyMedium, DifficultyHard:
		return true
	default:
		return false
	}
}

// AssignmentType defines the period a quest assignment is bound to.
type AssignmentType string

const (
	// AssignmentTypeDaily binds one quest to one calendar day.
	AssignmentTypeDaily AssignmentType = "daily"

	// AssignmentTypeWeekly binds a five quest set to a Monday-anchored week.
	AssignmentTypeWeekly AssignmentType = "weekly"
)

// IsValid returns true if the assignment type is a valid type.
func (t AssignmentType) IsValid() bool {
	switch t {
	case AssignmentTypeDaily, AssignmentTypeWeekly:
		return true
	default:
		return false
	}
}

// Slots returns how many quests make up one period set of this type.
func (t AssignmentType) Slots() int {
	if t == AssignmentTypeWeekly {
		return 5
	}
	return 1
}

// PeriodKey returns the period anchor of day: the day itself for daily
// assignments and its Monday for weekly ones, as UTC midnight.
func (t AssignmentType) PeriodKey(day time.Time) time.Time {
	y, m, d := day.Date()
	key := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	if t == AssignmentTypeWeekly {
		offset := (int(key.Weekday()) + 6) % 7
		key = key.AddDate(0, 0, -offset)
	}
	return key
}

// ExpiresAt returns the last instant an assignment of periodKey may be
// completed: the end of the following day for daily assignments and the end
// of the seventh day after the week start for weekly ones, in loc.
func (t AssignmentType) ExpiresAt(periodKey time.Time, loc *time.Location) time.Time {
	days := 1
	if t == AssignmentTypeWeekly {
		days = 7
	}
	y, m, d := periodKey.AddDate(0, 0, days).Date()
	return time.Date(y, m, d, 23, 59, 59, int(999*time.Millisecond), loc)
}

// QuestCategory groups quests (fitness, social, creative, ...).
type QuestCategory struct {
	ID       int64  `json:"id" db:"id"`
	Name     string `json:"name" db:"name"`
	IsActive bool   `json:"is_active" db:"is_active"`
}

// Quest is shared, read-only reference data. Quests referenced by an
// assignment are never deleted; they are retired through IsActive.
type Quest struct {
	ID               int64      `json:"id" db:"id"`
	CategoryID       int64      `json:"category_id" db:"category_id"`
	Category         string     `json:"category" db:"category_name"`
	Title            string     `json:"title" db:"title"`
	Description      string     `json:"description" db:"description"`
	Difficulty       Difficulty `json:"difficulty" db:"difficulty_level"`
	Points           int        `json:"points" db:"points"`
	EstimatedMinutes int        `json:"estimated_duration_minutes" db:"estimated_duration_minutes"`
	IsActive         bool       `json:"is_active" db:"is_active"`
}

// Assignment binds one quest to one user for one period.
// PeriodKey is the day for daily assignments and the Monday for weekly ones.
// Slot identifies the position inside the period set (0 for daily, 0-4 for weekly).
type Assignment struct {
	ID          int64          `json:"id" db:"id"`
	UserID      int64          `json:"user_id" db:"user_id"`
	QuestID     int64          `json:"quest_id" db:"quest_id"`
	Type        AssignmentType `json:"assignment_type" db:"assignment_type"`
	PeriodKey   time.Time      `json:"assigned_date" db:"assigned_date"`
	Slot        int            `json:"slot" db:"slot"`
	IsCompleted bool           `json:"is_completed" db:"is_completed"`
	CompletedAt *time.Time     `json:"completed_at,omitempty" db:"completed_at"`
	ExpiresAt   time.Time      `json:"expires_at" db:"expires_at"`
	CreatedAt   time.Time      `json:"created_at" db:"created_at"`

	// Completion facts captured when the assignment transitions to completed.
	CompletedTime      *ClockTime    `json:"completed_time,omitempty" db:"completed_time"`
	CompletedDayOfWeek *time.Weekday `json:"completed_day_of_week,omitempty" db:"completed_day_of_week"`
	CompletedSeason    Season        `json:"completed_season,omitempty" db:"completed_season"`

	// Quest is populated by read paths that join the quest definition.
	Quest *Quest `json:"quest,omitempty"`
}

// CompletionFacts are the calendar facts recorded on an assignment at completion time.
type CompletionFacts struct {
	CompletedAt time.Time
	Time        ClockTime
	DayOfWeek   time.Weekday
	Season      Season
}

// NewCompletionFacts derives the completion facts from a wall-clock instant.
// The instant must already be expressed in the engine's calendar location.
func NewCompletionFacts(at time.Time) CompletionFacts {
	return CompletionFacts{
		CompletedAt: at,
		Time:        ClockTimeOf(at),
		DayOfWeek:   at.Weekday(),
		Season:      SeasonOf(at),
	}
}

// Completion is the immutable record that an assignment was fulfilled.
// PointsEarned is a snapshot and does not follow later quest point changes.
type Completion struct {
	ID           int64     `json:"id" db:"id"`
	UserID       int64     `json:"user_id" db:"user_id"`
	QuestID      int64     `json:"quest_id" db:"quest_id"`
	AssignmentID int64     `json:"assignment_id" db:"assignment_id"`
	PointsEarned int       `json:"points_earned" db:"points_earned"`
	Notes        string    `json:"completion_notes,omitempty" db:"completion_notes"`
	CompletedAt  time.Time `json:"completed_at" db:"completed_at"`
}

// CompletionFact is the flattened view of one completion used for badge progress.
type CompletionFact struct {
	AssignmentID int64
	QuestID      int64
	Category     string
	CompletedAt  time.Time
	Time         ClockTime
	DayOfWeek    time.Weekday
	Season       Season
}

// UserStats aggregates a user's progress.
// Invariants: LongestStreakDays >= CurrentStreakDays and
// TotalQuestsCompleted equals the number of Completion rows for the user.
type UserStats struct {
	UserID               int64      `json:"user_id" db:"user_id"`
	TotalQuestsCompleted int        `json:"total_quests_completed" db:"total_quests_completed"`
	TotalPoints          int        `json:"total_points" db:"total_points"`
	CurrentStreakDays    int        `json:"current_streak_days" db:"current_streak_days"`
	LongestStreakDays    int        `json:"longest_streak_days" db:"longest_streak_days"`
	LastQuestCompletedAt *time.Time `json:"last_quest_completed_at,omitempty" db:"last_quest_completed_at"`
	UpdatedAt            time.Time  `json:"updated_at" db:"updated_at"`
}

// StatsUpdate describes one mutation of a user's stats row.
// Nil streak fields leave the stored streaks untouched.
type StatsUpdate struct {
	UserID          int64
	PointsDelta     int
	QuestsDelta     int
	CurrentStreak   *int
	LongestStreak   *int
	LastCompletedAt *time.Time
}

// Badge is a named milestone with exactly one requirement.
type Badge struct {
	ID          int64       `json:"id" db:"id"`
	Name        string      `json:"name" db:"name"`
	Description string      `json:"description" db:"description"`
	Icon        string      `json:"icon" db:"icon"`
	Requirement Requirement `json:"-"`
}

// BadgeStatus is the per (user, badge) state.
//
// Transitions: not_started -> in_progress -> earned. Earned is terminal.
type BadgeStatus string

const (
	BadgeStatusNotStarted BadgeStatus = "not_started"
	BadgeStatusInProgress BadgeStatus = "in_progress"
	BadgeStatusEarned     BadgeStatus = "earned"
)

// IsValid returns true if the status is a valid badge status.
func (s BadgeStatus) IsValid() bool {
	switch s {
	case BadgeStatusNotStarted, BadgeStatusInProgress, BadgeStatusEarned:
		return true
	default:
		return false
	}
}

// UserBadge tracks a user's progress toward one badge.
// Once IsCompleted is true it never becomes false.
type UserBadge struct {
	UserID        int64      `json:"user_id" db:"user_id"`
	BadgeID       int64      `json:"badge_id" db:"badge_id"`
	ProgressValue int        `json:"progress_value" db:"progress_value"`
	IsCompleted   bool       `json:"is_completed" db:"is_completed"`
	EarnedAt      *time.Time `json:"earned_at,omitempty" db:"earned_at"`
	UpdatedAt     time.Time  `json:"updated_at" db:"updated_at"`
}

// Status derives the state machine position from the stored row.
func (ub *UserBadge) Status() BadgeStatus {
	switch {
	case ub == nil:
		return BadgeStatusNotStarted
	case ub.IsCompleted:
		return BadgeStatusEarned
	case ub.ProgressValue > 0:
		return BadgeStatusInProgress
	default:
		return BadgeStatusNotStarted
	}
}

// AwardedBadge reports a badge that transitioned to earned during one evaluation.
type AwardedBadge struct {
	BadgeID   int64     `json:"badge_id"`
	Name      string    `json:"name"`
	Icon      string    `json:"icon"`
	Kind      string    `json:"requirement_type"`
	Threshold int       `json:"requirement_value"`
	Progress  int       `json:"progress_value"`
	EarnedAt  time.Time `json:"earned_at"`
}

// BadgeProgress is a badge joined with the user's progress row, if any.
type BadgeProgress struct {
	Badge    *Badge     `json:"badge"`
	Progress int        `json:"progress_value"`
	IsEarned bool       `json:"is_earned"`
	EarnedAt *time.Time `json:"earned_at,omitempty"`
}

// RerollRecord marks the reroll budget of one (user, type, period) as consumed.
type RerollRecord struct {
	UserID    int64          `json:"user_id" db:"user_id"`
	Type      AssignmentType `json:"assignment_type" db:"assignment_type"`
	PeriodKey time.Time      `json:"reroll_date" db:"reroll_date"`
	CreatedAt time.Time      `json:"created_at" db:"created_at"`
}
