package service

import (
	"context"
	"database/sql/driver"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/questie/progression-engine/pkg/badge"
	"github.com/questie/progression-engine/pkg/config"
	"github.com/questie/progression-engine/pkg/domain"
	customerrors "github.com/questie/progression-engine/pkg/errors"
	"github.com/questie/progression-engine/pkg/repository"
)

// testNow is a Wednesday morning.
var testNow = time.Date(2025, 3, 12, 9, 0, 0, 0, time.UTC)

const testUser int64 = 42

// MockBadgeEvaluator is a testify mock of BadgeEvaluator.
type MockBadgeEvaluator struct {
	mock.Mock
}

func (m *MockBadgeEvaluator) EvaluateAndAward(ctx context.Context, q badge.Queries, userID int64, now time.Time) ([]domain.AwardedBadge, error) {
	args := m.Called(ctx, q, userID, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.AwardedBadge), args.Error(1)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig(t *testing.T) *config.EngineConfig {
	t.Helper()
	cfg := config.DefaultEngineConfig()
	cfg.RetryInitialInterval = time.Millisecond
	require.NoError(t, cfg.Validate())
	return cfg
}

// seedCatalog loads one active category with four easy, four medium and two
// hard quests, a retired category, and the given badges.
func seedCatalog(t *testing.T, store repository.Queries, badges ...*domain.Badge) {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, store.UpsertCategory(ctx, &domain.QuestCategory{ID: 1, Name: "Fitness", IsActive: true}))
	require.NoError(t, store.UpsertCategory(ctx, &domain.QuestCategory{ID: 2, Name: "Retired", IsActive: false}))

	quests := []*domain.Quest{
		{ID: 1, CategoryID: 1, Title: "Walk", Difficulty: domain.DifficultyEasy, Points: 10},
		{ID: 2, CategoryID: 1, Title: "Stretch", Difficulty: domain.DifficultyEasy, Points: 10},
		{ID: 3, CategoryID: 1, Title: "Hydrate", Difficulty: domain.DifficultyEasy, Points: 10},
		{ID: 4, CategoryID: 1, Title: "Breathe", Difficulty: domain.DifficultyEasy, Points: 10},
		{ID: 5, CategoryID: 1, Title: "Run", Difficulty: domain.DifficultyMedium, Points: 20},
		{ID: 6, CategoryID: 1, Title: "Swim", Difficulty: domain.DifficultyMedium, Points: 20},
		{ID: 7, CategoryID: 1, Title: "Cycle", Difficulty: domain.DifficultyMedium, Points: 20},
		{ID: 8, CategoryID: 1, Title: "Row", Difficulty: domain.DifficultyMedium, Points: 20},
		{ID: 9, CategoryID: 1, Title: "Half Marathon", Difficulty: domain.DifficultyHard, Points: 50},
		{ID: 10, CategoryID: 1, Title: "Triathlon", Difficulty: domain.DifficultyHard, Points: 50},
		{ID: 11, CategoryID: 2, Title: "Jazzercise", Difficulty: domain.DifficultyMedium, Points: 20},
	}
	for _, q := range quests {
		q.IsActive = true
		q.Description = q.Title + " today"
		q.EstimatedMinutes = 30
		require.NoError(t, store.UpsertQuest(ctx, q))
	}
	for _, b := range badges {
		require.NoError(t, store.UpsertBadge(ctx, b))
	}
}

func newTestOrchestrator(t *testing.T, store repository.Store, opts ...Option) *Orchestrator {
	t.Helper()
	opts = append([]Option{WithClock(func() time.Time { return testNow })}, opts...)
	return New(store, testConfig(t), quietLogger(), opts...)
}

func newSeededOrchestrator(t *testing.T, badges ...*domain.Badge) (*Orchestrator, *repository.MemoryStore) {
	t.Helper()
	store := repository.NewMemoryStoreWithClock(func() time.Time { return testNow })
	seedCatalog(t, store, badges...)
	return newTestOrchestrator(t, store), store
}

// flakyStore fails BeginTx with a dropped connection until failures runs out.
type flakyStore struct {
	*repository.MemoryStore
	failures atomic.Int32
	begins   atomic.Int32
}

func (s *flakyStore) BeginTx(ctx context.Context) (repository.Tx, error) {
	s.begins.Add(1)
	if s.failures.Add(-1) >= 0 {
		return nil, customerrors.ErrTransactionFailed("begin transaction", driver.ErrBadConn)
	}
	return s.MemoryStore.BeginTx(ctx)
}

func TestOrchestrator_RetriesTransientFailures(t *testing.T) {
	store := &flakyStore{MemoryStore: repository.NewMemoryStore()}
	seedCatalog(t, store.MemoryStore)
	store.failures.Store(2)
	o := newTestOrchestrator(t, store)

	view, err := o.AssignDaily(context.Background(), testUser, time.Time{})

	require.NoError(t, err)
	assert.Len(t, view.Quests, 1)
	assert.Equal(t, int32(3), store.begins.Load())
}

func TestOrchestrator_GivesUpAfterMaxRetries(t *testing.T) {
	store := &flakyStore{MemoryStore: repository.NewMemoryStore()}
	seedCatalog(t, store.MemoryStore)
	store.failures.Store(100)
	o := newTestOrchestrator(t, store)

	_, err := o.AssignDaily(context.Background(), testUser, time.Time{})

	require.Error(t, err)
	assert.True(t, customerrors.HasCode(err, customerrors.ErrCodeTransactionFailed))
	assert.Equal(t, int32(o.cfg.MaxRetries+1), store.begins.Load())
}

func TestOrchestrator_DoesNotRetryDomainErrors(t *testing.T) {
	store := &flakyStore{MemoryStore: repository.NewMemoryStore()}
	seedCatalog(t, store.MemoryStore)
	o := newTestOrchestrator(t, store)

	_, err := o.CompleteQuest(context.Background(), testUser, 999, "")

	require.Error(t, err)
	assert.True(t, customerrors.HasCode(err, customerrors.ErrCodeAssignmentNotFound))
	assert.Equal(t, int32(1), store.begins.Load())
}

func TestCalendarDate(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	late := time.Date(2025, 3, 12, 3, 30, 0, 0, time.UTC)

	assert.Equal(t, time.Date(2025, 3, 12, 0, 0, 0, 0, time.UTC), calendarDate(late, time.UTC))
	assert.Equal(t, time.Date(2025, 3, 11, 0, 0, 0, 0, time.UTC), calendarDate(late, ny))
}
