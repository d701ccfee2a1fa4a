package service

import (
	"context"
	"time"

	"github.com/questie/progression-engine/pkg/cache"
	"github.com/questie/progression-engine/pkg/common"
	"github.com/questie/progression-engine/pkg/domain"
	"github.com/questie/progression-engine/pkg/errors"
	"github.com/questie/progression-engine/pkg/repository"
)

// AssignDaily returns the user's daily quest for date, selecting and
// persisting one first if the day has none. A zero date means today.
func (o *Orchestrator) AssignDaily(ctx context.Context, userID int64, date time.Time) (view *PeriodView, err error) {
	defer func(start time.Time) { o.metrics.ObserveOperation("assign_daily", start, err) }(time.Now())
	return o.assign(ctx, userID, domain.AssignmentTypeDaily, date)
}

// AssignWeekly returns the user's five weekly quests for the week containing
// weekStart, selecting and persisting them first if the week has none.
// A zero weekStart means the current week.
func (o *Orchestrator) AssignWeekly(ctx context.Context, userID int64, weekStart time.Time) (view *PeriodView, err error) {
	defer func(start time.Time) { o.metrics.ObserveOperation("assign_weekly", start, err) }(time.Now())
	return o.assign(ctx, userID, domain.AssignmentTypeWeekly, weekStart)
}

// Reroll replaces the whole period set of assignmentType with a fresh
// selection that excludes every replaced quest. Each period can be rerolled
// once, and only while none of its quests is completed.
func (o *Orchestrator) Reroll(ctx context.Context, userID int64, assignmentType domain.AssignmentType, period time.Time) (view *PeriodView, err error) {
	defer func(start time.Time) { o.metrics.ObserveOperation("reroll", start, err) }(time.Now())

	if err := validateUserID(userID); err != nil {
		return nil, err
	}
	if !assignmentType.IsValid() {
		return nil, errors.ErrValidationFailed("assignment_type", "must be 'daily' or 'weekly'")
	}
	periodKey := o.periodKey(assignmentType, period)

	err = o.withTx(ctx, "reroll", func(tx repository.Tx) error {
		old, err := o.guard.Check(ctx, tx, userID, assignmentType, periodKey)
		if err != nil {
			return err
		}
		// Consume the budget before replacing anything; a concurrent reroll
		// blocks here and then loses.
		if err := o.guard.Record(ctx, tx, userID, assignmentType, periodKey); err != nil {
			return err
		}

		exclude := make([]int64, 0, len(old))
		for _, a := range old {
			exclude = append(exclude, a.QuestID)
		}
		deleted, err := tx.DeleteAssignments(ctx, userID, assignmentType, periodKey)
		if err != nil {
			return err
		}
		// A quest of the set was completed after the check.
		if deleted != int64(len(old)) {
			o.logger.Warn("reroll raced a completion",
				"user_id", userID,
				"assignment_type", assignmentType,
				"period", common.FormatDateKey(periodKey),
				"expected", len(old),
				"deleted", deleted,
			)
			return errors.ErrRerollLimitExceeded(string(assignmentType), common.FormatDateKey(periodKey))
		}

		set, err := o.newPeriodSet(ctx, tx, userID, assignmentType, periodKey, exclude)
		if err != nil {
			return err
		}
		view = newPeriodView(assignmentType, periodKey, set, false)
		return nil
	})
	if err != nil {
		return nil, err
	}

	o.cache.InvalidateUser(ctx, userID)
	o.metrics.Rerolled(string(assignmentType))
	o.logger.Info("period rerolled",
		"user_id", userID,
		"assignment_type", assignmentType,
		"period", view.PeriodKey,
		"quests", len(view.Quests),
	)
	return view, nil
}

func (o *Orchestrator) assign(ctx context.Context, userID int64, assignmentType domain.AssignmentType, day time.Time) (*PeriodView, error) {
	if err := validateUserID(userID); err != nil {
		return nil, err
	}
	periodKey := o.periodKey(assignmentType, day)

	key := cache.Key{Kind: cacheKind(assignmentType), UserID: userID, Period: common.FormatDateKey(periodKey)}
	return cache.ReadThrough(ctx, o.cache, key, o.cfg.QuestsTTL, func(ctx context.Context) (*PeriodView, error) {
		var (
			view     *PeriodView
			assigned int
		)
		err := o.withTx(ctx, "assign_"+string(assignmentType), func(tx repository.Tx) error {
			assigned = 0

			set, err := tx.GetAssignments(ctx, userID, assignmentType, periodKey)
			if err != nil {
				return err
			}
			if len(set) == 0 {
				if set, err = o.newPeriodSet(ctx, tx, userID, assignmentType, periodKey, nil); err != nil {
					return err
				}
				assigned = len(set)
			}

			canReroll, err := o.guard.CanReroll(ctx, tx, userID, assignmentType, periodKey)
			if err != nil {
				return err
			}
			view = newPeriodView(assignmentType, periodKey, set, canReroll)
			return nil
		})
		if err != nil {
			return nil, err
		}

		if assigned > 0 {
			o.metrics.QuestsAssigned(string(assignmentType), assigned)
			o.logger.Info("quests assigned",
				"user_id", userID,
				"assignment_type", assignmentType,
				"period", view.PeriodKey,
				"quests", assigned,
			)
		}
		return view, nil
	})
}

// newPeriodSet selects and inserts a full period set.
func (o *Orchestrator) newPeriodSet(ctx context.Context, tx repository.Tx, userID int64, assignmentType domain.AssignmentType, periodKey time.Time, exclude []int64) ([]*domain.Assignment, error) {
	var quests []*domain.Quest
	switch assignmentType {
	case domain.AssignmentTypeDaily:
		q, err := o.selector.SelectOne(ctx, tx, userID, o.cfg.DailyDifficulty, exclude, periodKey)
		if err != nil {
			return nil, err
		}
		quests = []*domain.Quest{q}
	case domain.AssignmentTypeWeekly:
		qs, err := o.selector.SelectWeeklySet(ctx, tx, userID, exclude, periodKey)
		if err != nil {
			return nil, err
		}
		quests = qs
	}

	expiresAt := assignmentType.ExpiresAt(periodKey, o.cfg.Location())
	set := make([]*domain.Assignment, len(quests))
	for i, q := range quests {
		set[i] = &domain.Assignment{
			UserID:    userID,
			QuestID:   q.ID,
			Type:      assignmentType,
			PeriodKey: periodKey,
			Slot:      i,
			ExpiresAt: expiresAt,
		}
	}
	if err := tx.InsertAssignments(ctx, set); err != nil {
		return nil, err
	}
	for i, q := range quests {
		set[i].Quest = q
	}
	return set, nil
}

// periodKey anchors day to its period. A zero day means today in the
// configured timezone.
func (o *Orchestrator) periodKey(assignmentType domain.AssignmentType, day time.Time) time.Time {
	if day.IsZero() {
		day = o.today()
	}
	return assignmentType.PeriodKey(day)
}

func cacheKind(assignmentType domain.AssignmentType) cache.Kind {
	if assignmentType == domain.AssignmentTypeWeekly {
		return cache.KindWeekly
	}
	return cache.KindDaily
}
