// Package badge evaluates badge requirements and awards earned badges.
package badge

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/questie/progression-engine/pkg/domain"
)

// Queries is the subset of repository.Queries the engine needs.
type Queries interface {
	ListBadges(ctx context.Context) ([]*domain.Badge, error)
	GetUserBadges(ctx context.Context, userID int64) ([]*domain.UserBadge, error)
	GetStats(ctx context.Context, userID int64) (*domain.UserStats, error)
	GetCompletionFacts(ctx context.Context, userID int64) ([]domain.CompletionFact, error)
	UpsertUserBadge(ctx context.Context, badge *domain.UserBadge) (bool, error)
}

// Snapshot is everything progress is computed from.
type Snapshot struct {
	Stats       *domain.UserStats
	Completions []domain.CompletionFact
	Now         time.Time
}

// Progress returns the current progress value of req for the snapshot.
func Progress(req domain.Requirement, snap Snapshot) int {
	switch r := req.(type) {
	case domain.CountThreshold:
		return r.Metric.Value(snap.Stats)
	case domain.CategoryThreshold:
		return countMatching(snap.Completions, r.Matches)
	case domain.TimeOfDayThreshold:
		return countMatching(snap.Completions, r.Matches)
	case domain.DayOfWeekThreshold:
		return countMatching(snap.Completions, r.Matches)
	case domain.SeasonalThreshold:
		return countMatching(snap.Completions, r.Matches)
	case domain.HolidayThreshold:
		// Dates are read in the location of Now.
		return countMatching(snap.Completions, func(f domain.CompletionFact) bool {
			f.CompletedAt = f.CompletedAt.In(snap.Now.Location())
			return r.MatchesAt(f, snap.Now)
		})
	default:
		return 0
	}
}

func countMatching(facts []domain.CompletionFact, match func(domain.CompletionFact) bool) int {
	n := 0
	for _, f := range facts {
		if match(f) {
			n++
		}
	}
	return n
}

// needsCompletions reports whether req reads completion facts rather than stats.
func needsCompletions(req domain.Requirement) bool {
	_, isCount := req.(domain.CountThreshold)
	return !isCount
}

// Engine evaluates every pending badge of a user and awards the ones met.
type Engine struct {
	logger *slog.Logger
}

// NewEngine creates a badge Engine.
func NewEngine(logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{logger: logger}
}

// EvaluateAndAward computes progress for each badge the user has not earned.
//
// Met requirements are written as earned with earnedAt = now; only rows that
// actually transition to earned are returned, so concurrent evaluations never
// report the same badge twice. Unmet requirements only update progress.
// Earned badges are never re-evaluated.
func (e *Engine) EvaluateAndAward(ctx context.Context, q Queries, userID int64, now time.Time) ([]domain.AwardedBadge, error) {
	badges, err := q.ListBadges(ctx)
	if err != nil {
		return nil, err
	}

	existing, err := q.GetUserBadges(ctx, userID)
	if err != nil {
		return nil, err
	}
	rows := make(map[int64]*domain.UserBadge, len(existing))
	for _, ub := range existing {
		rows[ub.BadgeID] = ub
	}

	var pending []*domain.Badge
	loadFacts := false
	for _, b := range badges {
		if b.Requirement == nil {
			e.logger.Warn("badge without requirement skipped", "badge_id", b.ID)
			continue
		}
		if rows[b.ID].Status() == domain.BadgeStatusEarned {
			continue
		}
		pending = append(pending, b)
		loadFacts = loadFacts || needsCompletions(b.Requirement)
	}
	if len(pending) == 0 {
		return nil, nil
	}

	snap := Snapshot{Now: now}
	if snap.Stats, err = q.GetStats(ctx, userID); err != nil {
		return nil, err
	}
	if loadFacts {
		if snap.Completions, err = q.GetCompletionFacts(ctx, userID); err != nil {
			return nil, err
		}
	}

	var awarded []domain.AwardedBadge
	for _, b := range pending {
		progress := Progress(b.Requirement, snap)
		threshold := b.Requirement.Threshold()

		if progress < threshold {
			prev := rows[b.ID]
			if (prev == nil && progress == 0) || (prev != nil && prev.ProgressValue == progress) {
				continue
			}
			if _, err := q.UpsertUserBadge(ctx, &domain.UserBadge{
				UserID:        userID,
				BadgeID:       b.ID,
				ProgressValue: progress,
			}); err != nil {
				return nil, fmt.Errorf("update progress of badge %d: %w", b.ID, err)
			}
			continue
		}

		earnedAt := now
		written, err := q.UpsertUserBadge(ctx, &domain.UserBadge{
			UserID:        userID,
			BadgeID:       b.ID,
			ProgressValue: progress,
			IsCompleted:   true,
			EarnedAt:      &earnedAt,
		})
		if err != nil {
			return nil, fmt.Errorf("award badge %d: %w", b.ID, err)
		}
		if !written {
			// Another evaluation earned it first.
			continue
		}

		e.logger.Info("badge earned",
			"user_id", userID,
			"badge_id", b.ID,
			"badge_name", b.Name,
			"progress", progress,
		)
		awarded = append(awarded, domain.AwardedBadge{
			BadgeID:   b.ID,
			Name:      b.Name,
			Icon:      b.Icon,
			Kind:      domain.TypeName(b.Requirement),
			Threshold: threshold,
			Progress:  progress,
			EarnedAt:  earnedAt,
		})
	}

	return awarded, nil
}
