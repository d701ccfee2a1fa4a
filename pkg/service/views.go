package service

import (
	"time"

	"github.com/questie/progression-engine/pkg/common"
	"github.com/questie/progression-engine/pkg/domain"
)

// QuestView is one assignment as shown to its user.
type QuestView struct {
	AssignmentID     int64                 `json:"assignment_id"`
	QuestID          int64                 `json:"quest_id"`
	Type             domain.AssignmentType `json:"assignment_type"`
	Slot             int                   `json:"slot"`
	Title            string                `json:"title"`
	Description      string                `json:"description"`
	Category         string                `json:"category"`
	Difficulty       domain.Difficulty     `json:"difficulty"`
	Points           int                   `json:"points"`
	EstimatedMinutes int                   `json:"estimated_duration_minutes"`
	AssignedDate     string                `json:"assigned_date"`
	IsCompleted      bool                  `json:"is_completed"`
	CompletedAt      *time.Time            `json:"completed_at,omitempty"`
	ExpiresAt        time.Time             `json:"expires_at"`
}

// PeriodView is the period set of one assignment type.
type PeriodView struct {
	Type      domain.AssignmentType `json:"assignment_type"`
	PeriodKey string                `json:"period_key"`
	Quests    []QuestView           `json:"quests"`
	CanReroll bool                  `json:"can_reroll"`
}

// CompletionResult is returned by CompleteQuest.
type CompletionResult struct {
	AssignmentID int64                 `json:"assignment_id"`
	QuestID      int64                 `json:"quest_id"`
	Type         domain.AssignmentType `json:"assignment_type"`
	PointsEarned int                   `json:"points_earned"`
	CompletedAt  time.Time             `json:"completed_at"`
	Stats        StatsView             `json:"stats"`
	NewlyEarned  []domain.AwardedBadge `json:"newly_earned_badges"`

	// BadgeWarning is set when the completion committed but badge
	// evaluation failed. EvaluateBadges repairs it later.
	BadgeWarning error `json:"-"`
}

// UncompletionResult is returned by UncompleteQuest.
type UncompletionResult struct {
	AssignmentID   int64                 `json:"assignment_id"`
	QuestID        int64                 `json:"quest_id"`
	Type           domain.AssignmentType `json:"assignment_type"`
	PointsDeducted int                   `json:"points_deducted"`
	Stats          StatsView             `json:"stats"`
}

// StatsView is a user's progression summary.
type StatsView struct {
	TotalQuestsCompleted int        `json:"total_quests_completed"`
	TotalPoints          int        `json:"total_points"`
	CurrentStreakDays    int        `json:"current_streak_days"`
	LongestStreakDays    int        `json:"longest_streak_days"`
	LastQuestCompletedAt *time.Time `json:"last_quest_completed_at,omitempty"`
	BadgesEarned         int        `json:"badges_earned"`
}

// BadgeView is one badge with the user's progress toward it.
type BadgeView struct {
	BadgeID         int64              `json:"badge_id"`
	Name            string             `json:"name"`
	Description     string             `json:"description"`
	Icon            string             `json:"icon"`
	RequirementType string             `json:"requirement_type"`
	Threshold       int                `json:"requirement_value"`
	Progress        int                `json:"progress"`
	Status          domain.BadgeStatus `json:"status"`
	EarnedAt        *time.Time         `json:"earned_at,omitempty"`
}

// AssignmentStatus is the state of a quest's assignment in the current period.
type AssignmentStatus struct {
	AssignmentID int64                 `json:"assignment_id"`
	Type         domain.AssignmentType `json:"assignment_type"`
	IsCompleted  bool                  `json:"is_completed"`
	CompletedAt  *time.Time            `json:"completed_at,omitempty"`
}

// QuestDetail is a quest with the user's current assignment of it, if any.
type QuestDetail struct {
	QuestID          int64             `json:"id"`
	Title            string            `json:"title"`
	Description      string            `json:"description"`
	Category         string            `json:"category"`
	Difficulty       domain.Difficulty `json:"difficulty"`
	Points           int               `json:"points"`
	EstimatedMinutes int               `json:"estimated_duration_minutes"`
	Assignment       *AssignmentStatus `json:"assignment"`
}

// HistoryFilter selects which assignments GetQuestHistory returns.
type HistoryFilter string

const (
	HistoryAll       HistoryFilter = "all"
	HistoryCompleted HistoryFilter = "completed"
)

// HistoryPage is one page of a user's quest history, newest first.
type HistoryPage struct {
	Items   []QuestView `json:"history"`
	Limit   int         `json:"limit"`
	Offset  int         `json:"offset"`
	HasMore bool        `json:"has_more"`
}

func newQuestView(a *domain.Assignment) QuestView {
	v := QuestView{
		AssignmentID: a.ID,
		QuestID:      a.QuestID,
		Type:         a.Type,
		Slot:         a.Slot,
		AssignedDate: common.FormatDateKey(a.PeriodKey),
		IsCompleted:  a.IsCompleted,
		CompletedAt:  a.CompletedAt,
		ExpiresAt:    a.ExpiresAt,
	}
	if q := a.Quest; q != nil {
		v.Title = q.Title
		v.Description = q.Description
		v.Category = q.Category
		v.Difficulty = q.Difficulty
		v.Points = q.Points
		v.EstimatedMinutes = q.EstimatedMinutes
	}
	return v
}

func newPeriodView(assignmentType domain.AssignmentType, periodKey time.Time, set []*domain.Assignment, canReroll bool) *PeriodView {
	v := &PeriodView{
		Type:      assignmentType,
		PeriodKey: common.FormatDateKey(periodKey),
		Quests:    make([]QuestView, 0, len(set)),
		CanReroll: canReroll,
	}
	for _, a := range set {
		v.Quests = append(v.Quests, newQuestView(a))
	}
	return v
}

func newStatsView(s *domain.UserStats, badgesEarned int) StatsView {
	return StatsView{
		TotalQuestsCompleted: s.TotalQuestsCompleted,
		TotalPoints:          s.TotalPoints,
		CurrentStreakDays:    s.CurrentStreakDays,
		LongestStreakDays:    s.LongestStreakDays,
		LastQuestCompletedAt: s.LastQuestCompletedAt,
		BadgesEarned:         badgesEarned,
	}
}

func newQuestDetail(q *domain.Quest, a *domain.Assignment) *QuestDetail {
	d := &QuestDetail{
		QuestID:          q.ID,
		Title:            q.Title,
		Description:      q.Description,
		Category:         q.Category,
		Difficulty:       q.Difficulty,
		Points:           q.Points,
		EstimatedMinutes: q.EstimatedMinutes,
	}
	if a != nil {
		d.Assignment = &AssignmentStatus{
			AssignmentID: a.ID,
			Type:         a.Type,
			IsCompleted:  a.IsCompleted,
			CompletedAt:  a.CompletedAt,
		}
	}
	return d
}
