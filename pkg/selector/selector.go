// Package selector picks quests for a user deterministically per calendar day.
package selector

import (
	"context"
	"encoding/binary"
	"log/slog"
	"sort"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/questie/progression-engine/pkg/common"
	"github.com/questie/progression-engine/pkg/domain"
	"github.com/questie/progression-engine/pkg/errors"
	"github.com/questie/progression-engine/pkg/repository"
)

// WeeklyMix is the difficulty of each weekly slot, in slot order.
var WeeklyMix = []domain.Difficulty{
	domain.DifficultyEasy,
	domain.DifficultyEasy,
	domain.DifficultyMedium,
	domain.DifficultyMedium,
	domain.DifficultyHard,
}

// QuestSource provides the eligible quest pool. repository.Queries satisfies it,
// so selection can run inside the caller's transaction.
type QuestSource interface {
	GetEligibleQuests(ctx context.Context, filter repository.QuestFilter) ([]*domain.Quest, error)
}

// Selector ranks eligible quests with a seeded hash of (user, day, quest).
// The same user and day always produce the same ranking; different users
// or days produce unrelated rankings. It has no side effects.
type Selector struct {
	logger *slog.Logger
}

// New creates a Selector.
func New(logger *slog.Logger) *Selector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Selector{logger: logger}
}

// SelectOne returns the top-ranked eligible quest of the given difficulty.
// An empty difficulty selects from every tier.
func (s *Selector) SelectOne(ctx context.Context, src QuestSource, userID int64, difficulty domain.Difficulty, excludeIDs []int64, day time.Time) (*domain.Quest, error) {
	picked, err := s.pick(ctx, src, userID, difficulty, excludeIDs, day, 1)
	if err != nil {
		return nil, err
	}
	return picked[0], nil
}

// SelectWeeklySet returns five distinct quests following WeeklyMix, in slot order.
// No returned quest is in excludeIDs.
func (s *Selector) SelectWeeklySet(ctx context.Context, src QuestSource, userID int64, excludeIDs []int64, day time.Time) ([]*domain.Quest, error) {
	need := make(map[domain.Difficulty]int)
	var order []domain.Difficulty
	for _, d := range WeeklyMix {
		if need[d] == 0 {
			order = append(order, d)
		}
		need[d]++
	}

	exclude := append([]int64(nil), excludeIDs...)
	byDifficulty := make(map[domain.Difficulty][]*domain.Quest, len(order))
	for _, d := range order {
		picked, err := s.pick(ctx, src, userID, d, exclude, day, need[d])
		if err != nil {
			return nil, err
		}
		for _, q := range picked {
			exclude = append(exclude, q.ID)
		}
		byDifficulty[d] = picked
	}

	set := make([]*domain.Quest, 0, len(WeeklyMix))
	for _, d := range WeeklyMix {
		set = append(set, byDifficulty[d][0])
		byDifficulty[d] = byDifficulty[d][1:]
	}
	return set, nil
}

func (s *Selector) pick(ctx context.Context, src QuestSource, userID int64, difficulty domain.Difficulty, excludeIDs []int64, day time.Time, n int) ([]*domain.Quest, error) {
	pool, err := src.GetEligibleQuests(ctx, repository.QuestFilter{
		Difficulty: difficulty,
		ExcludeIDs: excludeIDs,
	})
	if err != nil {
		return nil, err
	}

	// The store already filters; repeat the exclusion so a stale or
	// permissive source cannot produce a duplicate.
	excluded := make(map[int64]bool, len(excludeIDs))
	for _, id := range excludeIDs {
		excluded[id] = true
	}
	eligible := pool[:0:0]
	for _, q := range pool {
		if !excluded[q.ID] && (difficulty == "" || q.Difficulty == difficulty) {
			eligible = append(eligible, q)
		}
	}

	if len(eligible) < n {
		tier := string(difficulty)
		if tier == "" {
			tier = "any"
		}
		s.logger.Warn("quest pool insufficient",
			"user_id", userID,
			"difficulty", tier,
			"available", len(eligible),
			"requested", n,
		)
		return nil, errors.ErrQuestPoolInsufficient(tier, len(eligible), n)
	}

	Rank(eligible, userID, day)
	return eligible[:n], nil
}

// Rank orders quests by descending rank key for (userID, day), breaking ties by ID.
func Rank(quests []*domain.Quest, userID int64, day time.Time) {
	dayKey := common.FormatDateKey(day)
	keys := make(map[int64]uint64, len(quests))
	for _, q := range quests {
		keys[q.ID] = RankKey(userID, dayKey, q.ID)
	}

	sort.SliceStable(quests, func(i, j int) bool {
		ki, kj := keys[quests[i].ID], keys[quests[j].ID]
		if ki != kj {
			return ki > kj
		}
		return quests[i].ID < quests[j].ID
	})
}

// RankKey hashes (userID, dayKey, questID) with xxhash64.
func RankKey(userID int64, dayKey string, questID int64) uint64 {
	var buf [8]byte
	d := xxhash.New()

	binary.BigEndian.PutUint64(buf[:], uint64(userID))
	_, _ = d.Write(buf[:])
	_, _ = d.WriteString(dayKey)
	binary.BigEndian.PutUint64(buf[:], uint64(questID))
	_, _ = d.Write(buf[:])

	return d.Sum64()
}
