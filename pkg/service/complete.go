package service

import (
	"context"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/questie/progression-engine/pkg/domain"
	"github.com/questie/progression-engine/pkg/errors"
	"github.com/questie/progression-engine/pkg/repository"
	"github.com/questie/progression-engine/pkg/streak"
)

// CompleteQuest marks an assignment completed, records the completion with
// a points snapshot and advances the user's stats and streak, all in one
// transaction. Badges are evaluated afterwards in their own transaction; a
// failure there is returned as CompletionResult.BadgeWarning and does not
// undo the completion.
func (o *Orchestrator) CompleteQuest(ctx context.Context, userID, assignmentID int64, notes string) (result *CompletionResult, err error) {
	defer func(start time.Time) { o.metrics.ObserveOperation("complete_quest", start, err) }(time.Now())

	if err := validateUserID(userID); err != nil {
		return nil, err
	}
	if err := validateAssignmentID(assignmentID); err != nil {
		return nil, err
	}
	if utf8.RuneCountInString(notes) > o.cfg.NotesMaxLength {
		return nil, errors.ErrValidationFailed("completion_notes",
			fmt.Sprintf("must be %d characters or less", o.cfg.NotesMaxLength))
	}

	loc := o.cfg.Location()
	now := o.now().In(loc)

	err = o.withTx(ctx, "complete_quest", func(tx repository.Tx) error {
		completed, err := tx.MarkAssignmentCompleted(ctx, userID, assignmentID, domain.NewCompletionFacts(now))
		if err != nil {
			return err
		}
		assignment, err := tx.GetAssignment(ctx, userID, assignmentID)
		if err != nil {
			return err
		}
		if assignment == nil {
			return errors.ErrAssignmentNotFound(assignmentID)
		}
		if !completed {
			return errors.ErrQuestAlreadyCompleted(assignmentID)
		}
		if assignment.Quest == nil {
			return errors.ErrQuestNotFound(assignment.QuestID)
		}

		completion := &domain.Completion{
			UserID:       userID,
			QuestID:      assignment.QuestID,
			AssignmentID: assignmentID,
			PointsEarned: assignment.Quest.Points,
			Notes:        notes,
			CompletedAt:  now,
		}
		if err := tx.InsertCompletion(ctx, completion); err != nil {
			return err
		}

		stats, err := tx.GetStatsForUpdate(ctx, userID)
		if err != nil {
			return err
		}
		var last *time.Time
		if stats.LastQuestCompletedAt != nil {
			day := calendarDate(*stats.LastQuestCompletedAt, loc)
			last = &day
		}
		next := streak.Advance(last, calendarDate(now, loc), stats.CurrentStreakDays, stats.LongestStreakDays)

		updated, err := tx.UpdateStats(ctx, domain.StatsUpdate{
			UserID:          userID,
			PointsDelta:     completion.PointsEarned,
			QuestsDelta:     1,
			CurrentStreak:   &next.Current,
			LongestStreak:   &next.Longest,
			LastCompletedAt: &now,
		})
		if err != nil {
			return err
		}

		result = &CompletionResult{
			AssignmentID: assignmentID,
			QuestID:      assignment.QuestID,
			Type:         assignment.Type,
			PointsEarned: completion.PointsEarned,
			CompletedAt:  now,
			Stats:        newStatsView(updated, 0),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	o.metrics.Completed()
	o.logger.Info("quest completed",
		"user_id", userID,
		"assignment_id", assignmentID,
		"quest_id", result.QuestID,
		"points_earned", result.PointsEarned,
		"current_streak", result.Stats.CurrentStreakDays,
	)

	awarded, earned, badgeErr := o.evaluateBadges(ctx, userID, now)
	if badgeErr != nil {
		o.metrics.BadgeEvaluationFailed()
		o.logger.Warn("badge evaluation failed after completion",
			"user_id", userID,
			"assignment_id", assignmentID,
			"error", badgeErr,
		)
		result.BadgeWarning = errors.ErrBadgeEvaluationFailed(userID, badgeErr)
		if earned, err := o.store.CountEarnedBadges(ctx, userID); err == nil {
			result.Stats.BadgesEarned = earned
		}
	} else {
		result.NewlyEarned = awarded
		result.Stats.BadgesEarned = earned
	}

	o.cache.InvalidateUser(ctx, userID)
	return result, nil
}

// UncompleteQuest undoes a completion: the assignment becomes open again,
// the completion row is deleted and the points recorded on it are taken
// back. Streaks are left as they are and earned badges are kept.
func (o *Orchestrator) UncompleteQuest(ctx context.Context, userID, assignmentID int64) (result *UncompletionResult, err error) {
	defer func(start time.Time) { o.metrics.ObserveOperation("uncomplete_quest", start, err) }(time.Now())

	if err := validateUserID(userID); err != nil {
		return nil, err
	}
	if err := validateAssignmentID(assignmentID); err != nil {
		return nil, err
	}

	err = o.withTx(ctx, "uncomplete_quest", func(tx repository.Tx) error {
		reopened, err := tx.MarkAssignmentUncompleted(ctx, userID, assignmentID)
		if err != nil {
			return err
		}
		assignment, err := tx.GetAssignment(ctx, userID, assignmentID)
		if err != nil {
			return err
		}
		if assignment == nil {
			return errors.ErrAssignmentNotFound(assignmentID)
		}
		if !reopened {
			return errors.ErrQuestNotCompleted(assignmentID)
		}

		completion, err := tx.DeleteCompletion(ctx, userID, assignmentID)
		if err != nil {
			return err
		}

		update := domain.StatsUpdate{UserID: userID}
		if completion != nil {
			update.PointsDelta = -completion.PointsEarned
			update.QuestsDelta = -1
		} else {
			o.logger.Warn("completed assignment without completion row",
				"user_id", userID,
				"assignment_id", assignmentID,
			)
		}

		current, err := tx.GetStatsForUpdate(ctx, userID)
		if err != nil {
			return err
		}
		if current.TotalPoints+update.PointsDelta < 0 || current.TotalQuestsCompleted+update.QuestsDelta < 0 {
			o.logger.Warn("stats clamped at zero",
				"user_id", userID,
				"assignment_id", assignmentID,
				"total_points", current.TotalPoints,
				"points_delta", update.PointsDelta,
				"total_quests_completed", current.TotalQuestsCompleted,
				"quests_delta", update.QuestsDelta,
			)
		}
		updated, err := tx.UpdateStats(ctx, update)
		if err != nil {
			return err
		}

		result = &UncompletionResult{
			AssignmentID:   assignmentID,
			QuestID:        assignment.QuestID,
			Type:           assignment.Type,
			PointsDeducted: -update.PointsDelta,
			Stats:          newStatsView(updated, 0),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if earned, err := o.store.CountEarnedBadges(ctx, userID); err == nil {
		result.Stats.BadgesEarned = earned
	}

	o.cache.InvalidateUser(ctx, userID)
	o.metrics.Uncompleted()
	o.logger.Info("quest uncompleted",
		"user_id", userID,
		"assignment_id", assignmentID,
		"points_deducted", result.PointsDeducted,
	)
	return result, nil
}

// EvaluateBadges re-evaluates every pending badge of a user and returns the
// newly earned ones. It is idempotent and repairs a failed post-completion
// evaluation.
func (o *Orchestrator) EvaluateBadges(ctx context.Context, userID int64) (awarded []domain.AwardedBadge, err error) {
	defer func(start time.Time) { o.metrics.ObserveOperation("evaluate_badges", start, err) }(time.Now())

	if err := validateUserID(userID); err != nil {
		return nil, err
	}

	awarded, _, err = o.evaluateBadges(ctx, userID, o.now().In(o.cfg.Location()))
	if err != nil {
		return nil, err
	}
	if len(awarded) > 0 {
		o.cache.InvalidateUser(ctx, userID)
	}
	return awarded, nil
}

// evaluateBadges runs the badge engine in its own transaction and returns
// the awarded badges and the user's earned badge count.
func (o *Orchestrator) evaluateBadges(ctx context.Context, userID int64, now time.Time) ([]domain.AwardedBadge, int, error) {
	var (
		awarded []domain.AwardedBadge
		earned  int
	)
	err := o.withTx(ctx, "evaluate_badges", func(tx repository.Tx) error {
		var err error
		if awarded, err = o.badges.EvaluateAndAward(ctx, tx, userID, now); err != nil {
			return err
		}
		earned, err = tx.CountEarnedBadges(ctx, userID)
		return err
	})
	if err != nil {
		return nil, 0, err
	}

	for _, b := range awarded {
		o.metrics.BadgeAwarded(b.Kind)
	}
	return awarded, earned, nil
}
