package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/questie/progression-engine/pkg/cache"
	"github.com/questie/progression-engine/pkg/domain"
	customerrors "github.com/questie/progression-engine/pkg/errors"
	"github.com/questie/progression-engine/pkg/repository"
)

func TestGetStats_NewUser(t *testing.T) {
	o, store := newSeededOrchestrator(t)
	ctx := context.Background()

	stats, err := o.GetStats(ctx, testUser)

	require.NoError(t, err)
	assert.Equal(t, StatsView{}, *stats)

	// Reading does not create a row; the first lock does.
	_, err = store.UpdateStats(ctx, domain.StatsUpdate{UserID: testUser, PointsDelta: 1})
	assert.Error(t, err)
}

func TestGetStats_InvalidatedAfterCompletion(t *testing.T) {
	store := repository.NewMemoryStoreWithClock(func() time.Time { return testNow })
	seedCatalog(t, store, firstSteps)
	lru, err := cache.NewLRUCache(100)
	require.NoError(t, err)
	o := newTestOrchestrator(t, store, WithCache(lru))
	ctx := context.Background()

	before, err := o.GetStats(ctx, testUser)
	require.NoError(t, err)
	assert.Equal(t, 0, before.TotalPoints)
	assert.Equal(t, 1, lru.Len())

	daily, err := o.AssignDaily(ctx, testUser, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, 2, lru.Len())

	_, err = o.CompleteQuest(ctx, testUser, daily.Quests[0].AssignmentID, "")
	require.NoError(t, err)
	assert.Equal(t, 0, lru.Len())

	after, err := o.GetStats(ctx, testUser)
	require.NoError(t, err)
	assert.Equal(t, daily.Quests[0].Points, after.TotalPoints)
	assert.Equal(t, 1, after.TotalQuestsCompleted)
	assert.Equal(t, 1, after.BadgesEarned)

	// The cached daily view reflects the completion after invalidation.
	again, err := o.AssignDaily(ctx, testUser, time.Time{})
	require.NoError(t, err)
	assert.True(t, again.Quests[0].IsCompleted)
	assert.False(t, again.CanReroll)
}

func TestGetStats_ServedFromCache(t *testing.T) {
	store := repository.NewMemoryStoreWithClock(func() time.Time { return testNow })
	seedCatalog(t, store)
	lru, err := cache.NewLRUCache(100)
	require.NoError(t, err)
	o := newTestOrchestrator(t, store, WithCache(lru))
	ctx := context.Background()

	_, err = o.GetStats(ctx, testUser)
	require.NoError(t, err)

	// A write that bypasses the orchestrator stays invisible until the entry expires.
	seedStats(t, store, testUser, 3, 3, testNow)

	cached, err := o.GetStats(ctx, testUser)
	require.NoError(t, err)
	assert.Equal(t, 0, cached.CurrentStreakDays)

	uncached, err := newTestOrchestrator(t, store).GetStats(ctx, testUser)
	require.NoError(t, err)
	assert.Equal(t, 3, uncached.CurrentStreakDays)
}

func TestGetBadges_ReportsStatusPerBadge(t *testing.T) {
	five := &domain.Badge{
		ID:          2,
		Name:        "Getting Serious",
		Requirement: domain.CountThreshold{Metric: domain.MetricQuestsCompleted, Target: 5},
	}
	fitness := &domain.Badge{
		ID:          3,
		Name:        "Athlete",
		Requirement: domain.CategoryThreshold{Category: "Mindfulness", Target: 3},
	}
	o, _ := newSeededOrchestrator(t, firstSteps, five, fitness)
	ctx := context.Background()

	daily, err := o.AssignDaily(ctx, testUser, time.Time{})
	require.NoError(t, err)
	_, err = o.CompleteQuest(ctx, testUser, daily.Quests[0].AssignmentID, "")
	require.NoError(t, err)

	badges, err := o.GetBadges(ctx, testUser)
	require.NoError(t, err)
	require.Len(t, badges, 3)

	assert.Equal(t, domain.BadgeStatusEarned, badges[0].Status)
	assert.Equal(t, 1, badges[0].Progress)
	require.NotNil(t, badges[0].EarnedAt)
	assert.True(t, badges[0].EarnedAt.Equal(testNow))

	assert.Equal(t, domain.BadgeStatusInProgress, badges[1].Status)
	assert.Equal(t, 1, badges[1].Progress)
	assert.Equal(t, 5, badges[1].Threshold)
	assert.Nil(t, badges[1].EarnedAt)

	assert.Equal(t, domain.BadgeStatusNotStarted, badges[2].Status)
	assert.Equal(t, 0, badges[2].Progress)
	assert.Equal(t, domain.RequirementTypeCategory, badges[2].RequirementType)
}

func TestGetQuestHistory(t *testing.T) {
	o, _ := newSeededOrchestrator(t)
	ctx := context.Background()

	_, err := o.AssignDaily(ctx, testUser, time.Time{})
	require.NoError(t, err)
	weekly, err := o.AssignWeekly(ctx, testUser, time.Time{})
	require.NoError(t, err)
	for _, q := range weekly.Quests[:2] {
		_, err := o.CompleteQuest(ctx, testUser, q.AssignmentID, "")
		require.NoError(t, err)
	}

	tests := []struct {
		name        string
		filter      HistoryFilter
		limit       int
		offset      int
		wantItems   int
		wantLimit   int
		wantHasMore bool
	}{
		{name: "first page", filter: HistoryAll, limit: 4, wantItems: 4, wantLimit: 4, wantHasMore: true},
		{name: "last page", filter: HistoryAll, limit: 4, offset: 4, wantItems: 2, wantLimit: 4},
		{name: "completed only", filter: HistoryCompleted, limit: 10, wantItems: 2, wantLimit: 10},
		{name: "default limit", filter: HistoryAll, wantItems: 6, wantLimit: 20},
		{name: "limit capped", filter: "", limit: 500, wantItems: 6, wantLimit: 50},
		{name: "negative offset", filter: HistoryAll, limit: 2, offset: -3, wantItems: 2, wantLimit: 2, wantHasMore: true},
		{name: "past the end", filter: HistoryAll, offset: 10, wantLimit: 20},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page, err := o.GetQuestHistory(ctx, testUser, tt.filter, tt.limit, tt.offset)

			require.NoError(t, err)
			assert.Len(t, page.Items, tt.wantItems)
			assert.Equal(t, tt.wantLimit, page.Limit)
			assert.Equal(t, tt.wantHasMore, page.HasMore)
			assert.GreaterOrEqual(t, page.Offset, 0)
		})
	}

	completed, err := o.GetQuestHistory(ctx, testUser, HistoryCompleted, 0, 0)
	require.NoError(t, err)
	for _, item := range completed.Items {
		assert.True(t, item.IsCompleted)
		assert.Equal(t, domain.AssignmentTypeWeekly, item.Type)
		assert.NotEmpty(t, item.Title)
	}
}

func TestGetQuestHistory_InvalidFilter(t *testing.T) {
	o, _ := newSeededOrchestrator(t)

	_, err := o.GetQuestHistory(context.Background(), testUser, HistoryFilter("skipped"), 10, 0)

	require.Error(t, err)
	assert.True(t, customerrors.HasCode(err, customerrors.ErrCodeValidationFailed))
}

func TestGetQuest_WithCurrentAssignment(t *testing.T) {
	o, _ := newSeededOrchestrator(t)
	ctx := context.Background()

	daily, err := o.AssignDaily(ctx, testUser, time.Time{})
	require.NoError(t, err)
	assigned := daily.Quests[0]

	detail, err := o.GetQuest(ctx, testUser, assigned.QuestID)
	require.NoError(t, err)
	assert.Equal(t, assigned.Title, detail.Title)
	assert.Equal(t, "Fitness", detail.Category)
	require.NotNil(t, detail.Assignment)
	assert.Equal(t, assigned.AssignmentID, detail.Assignment.AssignmentID)
	assert.Equal(t, domain.AssignmentTypeDaily, detail.Assignment.Type)
	assert.False(t, detail.Assignment.IsCompleted)

	_, err = o.CompleteQuest(ctx, testUser, assigned.AssignmentID, "")
	require.NoError(t, err)

	detail, err = o.GetQuest(ctx, testUser, assigned.QuestID)
	require.NoError(t, err)
	require.NotNil(t, detail.Assignment)
	assert.True(t, detail.Assignment.IsCompleted)
	require.NotNil(t, detail.Assignment.CompletedAt)
	assert.True(t, detail.Assignment.CompletedAt.Equal(testNow))
}

func TestGetQuest_FallsBackToWeekly(t *testing.T) {
	o, _ := newSeededOrchestrator(t)
	ctx := context.Background()

	weekly, err := o.AssignWeekly(ctx, testUser, time.Time{})
	require.NoError(t, err)
	assigned := weekly.Quests[4]

	detail, err := o.GetQuest(ctx, testUser, assigned.QuestID)
	require.NoError(t, err)
	require.NotNil(t, detail.Assignment)
	assert.Equal(t, domain.AssignmentTypeWeekly, detail.Assignment.Type)
	assert.Equal(t, assigned.AssignmentID, detail.Assignment.AssignmentID)
}

func TestGetQuest_InactiveWithoutAssignment(t *testing.T) {
	o, _ := newSeededOrchestrator(t)

	detail, err := o.GetQuest(context.Background(), testUser, 11)

	require.NoError(t, err)
	assert.Equal(t, int64(11), detail.QuestID)
	assert.Equal(t, "Retired", detail.Category)
	assert.Nil(t, detail.Assignment)
}

func TestGetQuest_Errors(t *testing.T) {
	o, _ := newSeededOrchestrator(t)

	tests := []struct {
		name     string
		userID   int64
		questID  int64
		wantCode string
	}{
		{name: "missing quest", userID: testUser, questID: 999, wantCode: customerrors.ErrCodeQuestNotFound},
		{name: "invalid quest id", userID: testUser, questID: 0, wantCode: customerrors.ErrCodeValidationFailed},
		{name: "invalid user", userID: -1, questID: 1, wantCode: customerrors.ErrCodeValidationFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			detail, err := o.GetQuest(context.Background(), tt.userID, tt.questID)

			require.Error(t, err)
			assert.True(t, customerrors.HasCode(err, tt.wantCode), err.Error())
			assert.Nil(t, detail)
		})
	}
}
