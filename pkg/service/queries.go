package service

import (
	"context"
	"time"

	"github.com/questie/progression-engine/pkg/cache"
	"github.com/questie/progression-engine/pkg/domain"
	"github.com/questie/progression-engine/pkg/errors"
	"github.com/questie/progression-engine/pkg/repository"
)

// GetStats returns the user's progression summary. It never creates a stats row.
func (o *Orchestrator) GetStats(ctx context.Context, userID int64) (view *StatsView, err error) {
	defer func(start time.Time) { o.metrics.ObserveOperation("get_stats", start, err) }(time.Now())

	if err := validateUserID(userID); err != nil {
		return nil, err
	}

	key := cache.Key{Kind: cache.KindStats, UserID: userID}
	return cache.ReadThrough(ctx, o.cache, key, o.cfg.StatsTTL, func(ctx context.Context) (*StatsView, error) {
		var v StatsView
		err := o.withTx(ctx, "get_stats", func(tx repository.Tx) error {
			stats, err := tx.GetStats(ctx, userID)
			if err != nil {
				return err
			}
			earned, err := tx.CountEarnedBadges(ctx, userID)
			if err != nil {
				return err
			}
			v = newStatsView(stats, earned)
			return nil
		})
		if err != nil {
			return nil, err
		}
		return &v, nil
	})
}

// GetQuest returns a quest, active or not, together with the user's
// assignment of it in today's daily set or, failing that, this week's
// weekly set.
func (o *Orchestrator) GetQuest(ctx context.Context, userID, questID int64) (detail *QuestDetail, err error) {
	defer func(start time.Time) { o.metrics.ObserveOperation("get_quest", start, err) }(time.Now())

	if err := validateUserID(userID); err != nil {
		return nil, err
	}
	if questID <= 0 {
		return nil, errors.ErrValidationFailed("quest_id", "must be positive")
	}

	err = o.withTx(ctx, "get_quest", func(tx repository.Tx) error {
		quest, err := tx.GetQuestByID(ctx, questID)
		if err != nil {
			return err
		}
		if quest == nil {
			return errors.ErrQuestNotFound(questID)
		}

		var current *domain.Assignment
		for _, assignmentType := range []domain.AssignmentType{domain.AssignmentTypeDaily, domain.AssignmentTypeWeekly} {
			set, err := tx.GetAssignments(ctx, userID, assignmentType, o.periodKey(assignmentType, time.Time{}))
			if err != nil {
				return err
			}
			if current = findQuest(set, questID); current != nil {
				break
			}
		}
		detail = newQuestDetail(quest, current)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return detail, nil
}

func findQuest(set []*domain.Assignment, questID int64) *domain.Assignment {
	for _, a := range set {
		if a.QuestID == questID {
			return a
		}
	}
	return nil
}

// GetBadges returns every badge with the user's stored progress, in badge ID order.
func (o *Orchestrator) GetBadges(ctx context.Context, userID int64) (views []BadgeView, err error) {
	defer func(start time.Time) { o.metrics.ObserveOperation("get_badges", start, err) }(time.Now())

	if err := validateUserID(userID); err != nil {
		return nil, err
	}

	key := cache.Key{Kind: cache.KindBadges, UserID: userID}
	return cache.ReadThrough(ctx, o.cache, key, o.cfg.BadgesTTL, func(ctx context.Context) ([]BadgeView, error) {
		var (
			badges []*domain.Badge
			rows   []*domain.UserBadge
		)
		err := o.withTx(ctx, "get_badges", func(tx repository.Tx) error {
			var err error
			if badges, err = tx.ListBadges(ctx); err != nil {
				return err
			}
			rows, err = tx.GetUserBadges(ctx, userID)
			return err
		})
		if err != nil {
			return nil, err
		}

		byBadge := make(map[int64]*domain.UserBadge, len(rows))
		for _, ub := range rows {
			byBadge[ub.BadgeID] = ub
		}

		out := make([]BadgeView, 0, len(badges))
		for _, b := range badges {
			if b.Requirement == nil {
				continue
			}
			ub := byBadge[b.ID]
			v := BadgeView{
				BadgeID:         b.ID,
				Name:            b.Name,
				Description:     b.Description,
				Icon:            b.Icon,
				RequirementType: domain.TypeName(b.Requirement),
				Threshold:       b.Requirement.Threshold(),
				Status:          ub.Status(),
			}
			if ub != nil {
				v.Progress = ub.ProgressValue
				v.EarnedAt = ub.EarnedAt
			}
			out = append(out, v)
		}
		return out, nil
	})
}

// GetQuestHistory returns one page of the user's assignments, newest period
// first. A non-positive limit selects the default page size and larger
// limits are capped.
func (o *Orchestrator) GetQuestHistory(ctx context.Context, userID int64, filter HistoryFilter, limit, offset int) (page *HistoryPage, err error) {
	defer func(start time.Time) { o.metrics.ObserveOperation("get_quest_history", start, err) }(time.Now())

	if err := validateUserID(userID); err != nil {
		return nil, err
	}
	switch filter {
	case "", HistoryAll, HistoryCompleted:
	default:
		return nil, errors.ErrValidationFailed("filter", "must be 'all' or 'completed'")
	}
	if limit <= 0 {
		limit = o.cfg.HistoryDefaultLimit
	}
	if limit > o.cfg.HistoryMaxLimit {
		limit = o.cfg.HistoryMaxLimit
	}
	if offset < 0 {
		offset = 0
	}

	var rows []*domain.Assignment
	err = o.withTx(ctx, "get_quest_history", func(tx repository.Tx) error {
		var err error
		rows, err = tx.GetQuestHistory(ctx, userID, repository.HistoryQuery{
			CompletedOnly: filter == HistoryCompleted,
			Limit:         limit + 1,
			Offset:        offset,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	page = &HistoryPage{
		Items:  make([]QuestView, 0, min(len(rows), limit)),
		Limit:  limit,
		Offset: offset,
	}
	if len(rows) > limit {
		page.HasMore = true
		rows = rows[:limit]
	}
	for _, a := range rows {
		page.Items = append(page.Items, newQuestView(a))
	}
	return page, nil
}
