package selector

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/questie/progression-engine/pkg/domain"
	customerrors "github.com/questie/progression-engine/pkg/errors"
	"github.com/questie/progression-engine/pkg/repository"
)

// poolSource serves a fixed quest pool and honours the filter like a store would.
type poolSource struct {
	quests []*domain.Quest
	err    error
	calls  int
}

func (p *poolSource) GetEligibleQuests(_ context.Context, filter repository.QuestFilter) ([]*domain.Quest, error) {
	p.calls++
	if p.err != nil {
		return nil, p.err
	}

	excluded := make(map[int64]bool)
	for _, id := range filter.ExcludeIDs {
		excluded[id] = true
	}

	var out []*domain.Quest
	for _, q := range p.quests {
		if excluded[q.ID] || (filter.Difficulty != "" && q.Difficulty != filter.Difficulty) {
			continue
		}
		copied := *q
		out = append(out, &copied)
	}
	return out, nil
}

func makePool(easy, medium, hard int) *poolSource {
	var quests []*domain.Quest
	id := int64(1)
	add := func(n int, d domain.Difficulty) {
		for i := 0; i < n; i++ {
			quests = append(quests, &domain.Quest{ID: id, Difficulty: d, Points: 10, IsActive: true})
			id++
		}
	}
	add(easy, domain.DifficultyEasy)
	add(medium, domain.DifficultyMedium)
	add(hard, domain.DifficultyHard)
	return &poolSource{quests: quests}
}

func newTestSelector() *Selector {
	return New(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

var day = time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)

func TestSelectOne_Deterministic(t *testing.T) {
	s := newTestSelector()
	src := makePool(0, 20, 0)
	ctx := context.Background()

	first, err := s.SelectOne(ctx, src, 42, domain.DifficultyMedium, nil, day)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		again, err := s.SelectOne(ctx, src, 42, domain.DifficultyMedium, nil, day.Add(13*time.Hour))
		require.NoError(t, err)
		assert.Equal(t, first.ID, again.ID, "same user and day must select the same quest")
	}
}

func TestSelectOne_VariesAcrossUsersAndDays(t *testing.T) {
	s := newTestSelector()
	src := makePool(0, 50, 0)
	ctx := context.Background()

	byUser := make(map[int64]bool)
	for user := int64(1); user <= 20; user++ {
		q, err := s.SelectOne(ctx, src, user, domain.DifficultyMedium, nil, day)
		require.NoError(t, err)
		byUser[q.ID] = true
	}
	assert.Greater(t, len(byUser), 1, "different users should not all get the same quest")

	byDay := make(map[int64]bool)
	for i := 0; i < 20; i++ {
		q, err := s.SelectOne(ctx, src, 7, domain.DifficultyMedium, nil, day.AddDate(0, 0, i))
		require.NoError(t, err)
		byDay[q.ID] = true
	}
	assert.Greater(t, len(byDay), 1, "different days should not all give the same quest")
}

func TestSelectOne_Exclusions(t *testing.T) {
	s := newTestSelector()
	src := makePool(0, 3, 0)
	ctx := context.Background()

	first, err := s.SelectOne(ctx, src, 1, domain.DifficultyMedium, nil, day)
	require.NoError(t, err)

	next, err := s.SelectOne(ctx, src, 1, domain.DifficultyMedium, []int64{first.ID}, day)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, next.ID)
}

func TestSelectOne_EmptyPool(t *testing.T) {
	s := newTestSelector()
	src := makePool(3, 0, 0)

	q, err := s.SelectOne(context.Background(), src, 1, domain.DifficultyHard, nil, day)

	assert.Nil(t, q)
	require.Error(t, err)
	assert.True(t, customerrors.HasCode(err, customerrors.ErrCodeQuestPoolInsufficient))
	assert.Equal(t, customerrors.KindConflict, customerrors.KindOf(err))
	assert.False(t, customerrors.IsRetryable(err))
}

func TestSelectOne_SourceError(t *testing.T) {
	s := newTestSelector()
	boom := errors.New("connection reset")
	src := &poolSource{err: boom}

	_, err := s.SelectOne(context.Background(), src, 1, domain.DifficultyEasy, nil, day)
	assert.ErrorIs(t, err, boom)
}

func TestSelectWeeklySet(t *testing.T) {
	s := newTestSelector()
	ctx := context.Background()

	tests := []struct {
		name    string
		pool    *poolSource
		exclude []int64
	}{
		{name: "minimal pool", pool: makePool(2, 2, 1)},
		{name: "large pool", pool: makePool(10, 10, 10)},
		{name: "large pool with exclusions", pool: makePool(6, 6, 3), exclude: []int64{1, 2, 3, 7, 8, 13}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for user := int64(1); user <= 10; user++ {
				set, err := s.SelectWeeklySet(ctx, tt.pool, user, tt.exclude, day)
				require.NoError(t, err)
				require.Len(t, set, 5)

				seen := make(map[int64]bool)
				counts := make(map[domain.Difficulty]int)
				for i, q := range set {
					assert.False(t, seen[q.ID], "duplicate quest %d", q.ID)
					seen[q.ID] = true
					counts[q.Difficulty]++
					assert.Equal(t, WeeklyMix[i], q.Difficulty, "slot %d", i)
					assert.NotContains(t, tt.exclude, q.ID)
				}
				assert.Equal(t, 2, counts[domain.DifficultyEasy])
				assert.Equal(t, 2, counts[domain.DifficultyMedium])
				assert.Equal(t, 1, counts[domain.DifficultyHard])
			}
		})
	}
}

func TestSelectWeeklySet_Insufficient(t *testing.T) {
	s := newTestSelector()
	ctx := context.Background()

	tests := []struct {
		name     string
		pool     *poolSource
		exclude  []int64
		wantTier string
	}{
		{name: "one easy quest", pool: makePool(1, 5, 5), wantTier: "easy"},
		{name: "no hard quest", pool: makePool(5, 5, 0), wantTier: "hard"},
		{name: "exclusions drain medium", pool: makePool(2, 2, 1), exclude: []int64{3}, wantTier: "medium"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			set, err := s.SelectWeeklySet(ctx, tt.pool, 1, tt.exclude, day)
			assert.Nil(t, set)
			require.Error(t, err)
			assert.True(t, customerrors.HasCode(err, customerrors.ErrCodeQuestPoolInsufficient))
			assert.Contains(t, err.Error(), tt.wantTier)
		})
	}
}

func TestRank_TiesBrokenByID(t *testing.T) {
	quests := []*domain.Quest{{ID: 3}, {ID: 1}, {ID: 2}}
	Rank(quests, 5, day)

	again := []*domain.Quest{{ID: 2}, {ID: 3}, {ID: 1}}
	Rank(again, 5, day)

	for i := range quests {
		assert.Equal(t, quests[i].ID, again[i].ID, "ranking must not depend on input order")
	}
}

func TestRankKey(t *testing.T) {
	a := RankKey(1, "2025-06-02", 10)
	assert.Equal(t, a, RankKey(1, "2025-06-02", 10))
	assert.NotEqual(t, a, RankKey(2, "2025-06-02", 10))
	assert.NotEqual(t, a, RankKey(1, "2025-06-03", 10))
	assert.NotEqual(t, a, RankKey(1, "2025-06-02", 11))
}
