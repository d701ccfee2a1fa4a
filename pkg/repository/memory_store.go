package repository

import (
	"context"
	stderrors "errors"
	"fmt"
	"sort"
	"time"

	"github.com/questie/progression-engine/pkg/common"
	"github.com/questie/progression-engine/pkg/domain"
	"github.com/questie/progression-engine/pkg/errors"
)

// errTxDone is returned when a finished MemoryTx is used again.
var errTxDone = stderrors.New("transaction has already been committed or rolled back")

type assignmentSlotKey struct {
	userID int64
	typ    domain.AssignmentType
	period string
	slot   int
}

type userBadgeKey struct {
	userID  int64
	badgeID int64
}

type rerollKey struct {
	userID int64
	typ    domain.AssignmentType
	period string
}

// memState is one consistent snapshot of all tables.
type memState struct {
	categories  map[int64]domain.QuestCategory
	quests      map[int64]domain.Quest
	badges      map[int64]domain.Badge
	assignments map[int64]domain.Assignment
	slots       map[assignmentSlotKey]int64
	completions map[int64]domain.Completion // keyed by assignment ID
	stats       map[int64]domain.UserStats
	userBadges  map[userBadgeKey]domain.UserBadge
	rerolls     map[rerollKey]domain.RerollRecord

	nextAssignmentID int64
	nextCompletionID int64
}

func newMemState() *memState {
	return &memState{
		categories:       make(map[int64]domain.QuestCategory),
		quests:           make(map[int64]domain.Quest),
		badges:           make(map[int64]domain.Badge),
		assignments:      make(map[int64]domain.Assignment),
		slots:            make(map[assignmentSlotKey]int64),
		completions:      make(map[int64]domain.Completion),
		stats:            make(map[int64]domain.UserStats),
		userBadges:       make(map[userBadgeKey]domain.UserBadge),
		rerolls:          make(map[rerollKey]domain.RerollRecord),
		nextAssignmentID: 1,
		nextCompletionID: 1,
	}
}

func cloneMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// clone copies every table. Stored values are never mutated through
// pointers, so copying the maps is enough.
func (s *memState) clone() *memState {
	return &memState{
		categories:       cloneMap(s.categories),
		quests:           cloneMap(s.quests),
		badges:           cloneMap(s.badges),
		assignments:      cloneMap(s.assignments),
		slots:            cloneMap(s.slots),
		completions:      cloneMap(s.completions),
		stats:            cloneMap(s.stats),
		userBadges:       cloneMap(s.userBadges),
		rerolls:          cloneMap(s.rerolls),
		nextAssignmentID: s.nextAssignmentID,
		nextCompletionID: s.nextCompletionID,
	}
}

// memQueries implements Queries against a memState reached through with.
type memQueries struct {
	with func(ctx context.Context, fn func(st *memState) error) error
	now  func() time.Time
}

// MemoryStore is an in-process Store for local development and tests.
//
// Transactions are fully serialized: a Tx holds the store lock from
// BeginTx until Commit or Rollback and works on a private copy that
// Commit swaps in.
type MemoryStore struct {
	memQueries
	sem   chan struct{}
	state *memState
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return NewMemoryStoreWithClock(time.Now)
}

// NewMemoryStoreWithClock creates an empty in-memory store that stamps
// created/updated timestamps with now.
func NewMemoryStoreWithClock(now func() time.Time) *MemoryStore {
	s := &MemoryStore{
		sem:   make(chan struct{}, 1),
		state: newMemState(),
	}
	s.memQueries = memQueries{with: s.locked, now: now}
	return s
}

func (s *MemoryStore) acquire(ctx context.Context) error {
	select {
	case s.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return errors.ErrTransactionFailed("acquire store lock", ctx.Err())
	}
}

func (s *MemoryStore) release() {
	<-s.sem
}

func (s *MemoryStore) locked(ctx context.Context, fn func(st *memState) error) error {
	if err := s.acquire(ctx); err != nil {
		return err
	}
	defer s.release()

	// Statements outside a transaction are atomic on their own.
	st := s.state.clone()
	if err := fn(st); err != nil {
		return err
	}
	s.state = st
	return nil
}

// BeginTx starts a serialized transaction.
func (s *MemoryStore) BeginTx(ctx context.Context) (Tx, error) {
	if err := s.acquire(ctx); err != nil {
		return nil, err
	}

	tx := &MemoryTx{store: s, state: s.state.clone()}
	tx.memQueries = memQueries{with: tx.apply, now: s.now}
	return tx, nil
}

// MemoryTx is a transaction of a MemoryStore.
type MemoryTx struct {
	memQueries
	store *MemoryStore
	state *memState
	done  bool
}

func (t *MemoryTx) apply(ctx context.Context, fn func(st *memState) error) error {
	if t.done {
		return errors.ErrTransactionFailed("use transaction", errTxDone)
	}
	if err := ctx.Err(); err != nil {
		return errors.ErrDatabaseError("use transaction", err)
	}
	return fn(t.state)
}

// Commit publishes the transaction's changes.
func (t *MemoryTx) Commit() error {
	if t.done {
		return errors.ErrTransactionFailed("commit transaction", errTxDone)
	}
	t.done = true
	t.store.state = t.state
	t.store.release()
	return nil
}

// Rollback discards the transaction's changes.
func (t *MemoryTx) Rollback() error {
	if t.done {
		return nil
	}
	t.done = true
	t.store.release()
	return nil
}

func (st *memState) questView(id int64) (*domain.Quest, bool) {
	q, ok := st.quests[id]
	if !ok {
		return nil, false
	}
	if c, ok := st.categories[q.CategoryID]; ok {
		q.Category = c.Name
	}
	return &q, true
}

func (st *memState) assignmentView(a domain.Assignment) *domain.Assignment {
	if q, ok := st.questView(a.QuestID); ok {
		a.Quest = q
	}
	return &a
}

func (r *memQueries) GetEligibleQuests(ctx context.Context, filter QuestFilter) ([]*domain.Quest, error) {
	excluded := make(map[int64]bool, len(filter.ExcludeIDs))
	for _, id := range filter.ExcludeIDs {
		excluded[id] = true
	}

	var quests []*domain.Quest
	err := r.with(ctx, func(st *memState) error {
		for id, q := range st.quests {
			if !q.IsActive || excluded[id] {
				continue
			}
			if filter.Difficulty != "" && q.Difficulty != filter.Difficulty {
				continue
			}
			c, ok := st.categories[q.CategoryID]
			if !ok || !c.IsActive {
				continue
			}
			view, _ := st.questView(id)
			quests = append(quests, view)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(quests, func(i, j int) bool { return quests[i].ID < quests[j].ID })
	return quests, nil
}

func (r *memQueries) GetQuestByID(ctx context.Context, questID int64) (*domain.Quest, error) {
	var quest *domain.Quest
	err := r.with(ctx, func(st *memState) error {
		quest, _ = st.questView(questID)
		return nil
	})
	return quest, err
}

func (r *memQueries) GetAssignments(ctx context.Context, userID int64, assignmentType domain.AssignmentType, periodKey time.Time) ([]*domain.Assignment, error) {
	period := common.FormatDateKey(periodKey)

	var results []*domain.Assignment
	err := r.with(ctx, func(st *memState) error {
		for _, a := range st.assignments {
			if a.UserID == userID && a.Type == assignmentType && common.FormatDateKey(a.PeriodKey) == period {
				results = append(results, st.assignmentView(a))
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(results, func(i, j int) bool { return results[i].Slot < results[j].Slot })
	return results, nil
}

// GetAssignmentsForUpdate needs no row lock; transactions already hold the
// whole store.
func (r *memQueries) GetAssignmentsForUpdate(ctx context.Context, userID int64, assignmentType domain.AssignmentType, periodKey time.Time) ([]*domain.Assignment, error) {
	return r.GetAssignments(ctx, userID, assignmentType, periodKey)
}

func (r *memQueries) GetAssignment(ctx context.Context, userID, assignmentID int64) (*domain.Assignment, error) {
	var result *domain.Assignment
	err := r.with(ctx, func(st *memState) error {
		if a, ok := st.assignments[assignmentID]; ok && a.UserID == userID {
			result = st.assignmentView(a)
		}
		return nil
	})
	return result, err
}

func (r *memQueries) InsertAssignments(ctx context.Context, assignments []*domain.Assignment) error {
	if len(assignments) == 0 {
		return nil
	}

	return r.with(ctx, func(st *memState) error {
		staged := make(map[assignmentSlotKey]bool, len(assignments))
		for _, a := range assignments {
			key := assignmentSlotKey{a.UserID, a.Type, common.FormatDateKey(a.PeriodKey), a.Slot}
			if _, exists := st.slots[key]; exists || staged[key] {
				return errors.ErrAssignmentRace(string(a.Type), key.period,
					fmt.Errorf("slot %d already assigned", a.Slot))
			}
			if _, ok := st.quests[a.QuestID]; !ok {
				return errors.ErrDatabaseError("insert assignments", fmt.Errorf("quest %d does not exist", a.QuestID))
			}
			staged[key] = true
		}

		now := r.now()
		for _, a := range assignments {
			a.ID = st.nextAssignmentID
			st.nextAssignmentID++
			a.CreatedAt = now
			a.PeriodKey = common.TruncateToDateUTC(a.PeriodKey)

			stored := *a
			stored.Quest = nil
			st.assignments[a.ID] = stored
			st.slots[assignmentSlotKey{a.UserID, a.Type, common.FormatDateKey(a.PeriodKey), a.Slot}] = a.ID
		}
		return nil
	})
}

func (r *memQueries) DeleteAssignments(ctx context.Context, userID int64, assignmentType domain.AssignmentType, periodKey time.Time) (int64, error) {
	period := common.FormatDateKey(periodKey)

	var deleted int64
	err := r.with(ctx, func(st *memState) error {
		for id, a := range st.assignments {
			if a.UserID != userID || a.Type != assignmentType || common.FormatDateKey(a.PeriodKey) != period {
				continue
			}
			if a.IsCompleted {
				continue
			}
			delete(st.assignments, id)
			delete(st.slots, assignmentSlotKey{a.UserID, a.Type, period, a.Slot})
			deleted++
		}
		return nil
	})
	return deleted, err
}

func (r *memQueries) MarkAssignmentCompleted(ctx context.Context, userID, assignmentID int64, facts domain.CompletionFacts) (bool, error) {
	var updated bool
	err := r.with(ctx, func(st *memState) error {
		a, ok := st.assignments[assignmentID]
		if !ok || a.UserID != userID || a.IsCompleted {
			return nil
		}

		completedAt := facts.CompletedAt
		clock := facts.Time
		dayOfWeek := facts.DayOfWeek
		a.IsCompleted = true
		a.CompletedAt = &completedAt
		a.CompletedTime = &clock
		a.CompletedDayOfWeek = &dayOfWeek
		a.CompletedSeason = facts.Season
		st.assignments[assignmentID] = a
		updated = true
		return nil
	})
	return updated, err
}

func (r *memQueries) MarkAssignmentUncompleted(ctx context.Context, userID, assignmentID int64) (bool, error) {
	var updated bool
	err := r.with(ctx, func(st *memState) error {
		a, ok := st.assignments[assignmentID]
		if !ok || a.UserID != userID || !a.IsCompleted {
			return nil
		}

		a.IsCompleted = false
		a.CompletedAt = nil
		a.CompletedTime = nil
		a.CompletedDayOfWeek = nil
		a.CompletedSeason = ""
		st.assignments[assignmentID] = a
		updated = true
		return nil
	})
	return updated, err
}

func (r *memQueries) InsertCompletion(ctx context.Context, completion *domain.Completion) error {
	return r.with(ctx, func(st *memState) error {
		if _, exists := st.completions[completion.AssignmentID]; exists {
			return errors.ErrDatabaseError("insert completion",
				fmt.Errorf("assignment %d already has a completion", completion.AssignmentID))
		}
		if _, ok := st.assignments[completion.AssignmentID]; !ok {
			return errors.ErrDatabaseError("insert completion",
				fmt.Errorf("assignment %d does not exist", completion.AssignmentID))
		}

		completion.ID = st.nextCompletionID
		st.nextCompletionID++
		st.completions[completion.AssignmentID] = *completion
		return nil
	})
}

func (r *memQueries) DeleteCompletion(ctx context.Context, userID, assignmentID int64) (*domain.Completion, error) {
	var removed *domain.Completion
	err := r.with(ctx, func(st *memState) error {
		c, ok := st.completions[assignmentID]
		if !ok || c.UserID != userID {
			return nil
		}
		delete(st.completions, assignmentID)
		removed = &c
		return nil
	})
	return removed, err
}

func (r *memQueries) GetStats(ctx context.Context, userID int64) (*domain.UserStats, error) {
	stats := &domain.UserStats{UserID: userID}
	err := r.with(ctx, func(st *memState) error {
		if s, ok := st.stats[userID]; ok {
			stats = &s
		}
		return nil
	})
	return stats, err
}

func (r *memQueries) GetStatsForUpdate(ctx context.Context, userID int64) (*domain.UserStats, error) {
	var stats *domain.UserStats
	err := r.with(ctx, func(st *memState) error {
		s, ok := st.stats[userID]
		if !ok {
			s = domain.UserStats{UserID: userID, UpdatedAt: r.now()}
			st.stats[userID] = s
		}
		stats = &s
		return nil
	})
	return stats, err
}

func (r *memQueries) UpdateStats(ctx context.Context, update domain.StatsUpdate) (*domain.UserStats, error) {
	var stats *domain.UserStats
	err := r.with(ctx, func(st *memState) error {
		s, ok := st.stats[update.UserID]
		if !ok {
			return errors.ErrDatabaseError("update stats", fmt.Errorf("no stats row for user %d", update.UserID))
		}

		s.TotalPoints = max(0, s.TotalPoints+update.PointsDelta)
		s.TotalQuestsCompleted = max(0, s.TotalQuestsCompleted+update.QuestsDelta)
		if update.CurrentStreak != nil {
			s.CurrentStreakDays = *update.CurrentStreak
		}
		if update.LongestStreak != nil {
			s.LongestStreakDays = *update.LongestStreak
		}
		if update.LastCompletedAt != nil {
			last := *update.LastCompletedAt
			s.LastQuestCompletedAt = &last
		}
		if s.LongestStreakDays < s.CurrentStreakDays {
			return errors.ErrDatabaseError("update stats",
				fmt.Errorf("longest streak %d below current streak %d", s.LongestStreakDays, s.CurrentStreakDays))
		}
		s.UpdatedAt = r.now()

		st.stats[update.UserID] = s
		stats = &s
		return nil
	})
	return stats, err
}

func (r *memQueries) HasRerolled(ctx context.Context, userID int64, assignmentType domain.AssignmentType, periodKey time.Time) (bool, error) {
	var exists bool
	err := r.with(ctx, func(st *memState) error {
		_, exists = st.rerolls[rerollKey{userID, assignmentType, common.FormatDateKey(periodKey)}]
		return nil
	})
	return exists, err
}

func (r *memQueries) InsertRerollRecord(ctx context.Context, record *domain.RerollRecord) (bool, error) {
	var inserted bool
	err := r.with(ctx, func(st *memState) error {
		key := rerollKey{record.UserID, record.Type, common.FormatDateKey(record.PeriodKey)}
		if _, exists := st.rerolls[key]; exists {
			return nil
		}
		stored := *record
		stored.CreatedAt = r.now()
		st.rerolls[key] = stored
		inserted = true
		return nil
	})
	return inserted, err
}

func (r *memQueries) ListBadges(ctx context.Context) ([]*domain.Badge, error) {
	var badges []*domain.Badge
	err := r.with(ctx, func(st *memState) error {
		for _, b := range st.badges {
			b := b
			badges = append(badges, &b)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(badges, func(i, j int) bool { return badges[i].ID < badges[j].ID })
	return badges, nil
}

func (r *memQueries) GetUserBadges(ctx context.Context, userID int64) ([]*domain.UserBadge, error) {
	var results []*domain.UserBadge
	err := r.with(ctx, func(st *memState) error {
		for key, ub := range st.userBadges {
			if key.userID == userID {
				ub := ub
				results = append(results, &ub)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(results, func(i, j int) bool { return results[i].BadgeID < results[j].BadgeID })
	return results, nil
}

func (r *memQueries) UpsertUserBadge(ctx context.Context, badge *domain.UserBadge) (bool, error) {
	var written bool
	err := r.with(ctx, func(st *memState) error {
		key := userBadgeKey{badge.UserID, badge.BadgeID}
		if existing, ok := st.userBadges[key]; ok && existing.IsCompleted {
			return nil
		}
		if _, ok := st.badges[badge.BadgeID]; !ok {
			return errors.ErrDatabaseError("upsert user badge", fmt.Errorf("badge %d does not exist", badge.BadgeID))
		}

		stored := *badge
		stored.UpdatedAt = r.now()
		st.userBadges[key] = stored
		written = true
		return nil
	})
	return written, err
}

func (r *memQueries) CountEarnedBadges(ctx context.Context, userID int64) (int, error) {
	var count int
	err := r.with(ctx, func(st *memState) error {
		for key, ub := range st.userBadges {
			if key.userID == userID && ub.IsCompleted {
				count++
			}
		}
		return nil
	})
	return count, err
}

func (r *memQueries) GetCompletionFacts(ctx context.Context, userID int64) ([]domain.CompletionFact, error) {
	var facts []domain.CompletionFact
	err := r.with(ctx, func(st *memState) error {
		for assignmentID, c := range st.completions {
			if c.UserID != userID {
				continue
			}
			a, ok := st.assignments[assignmentID]
			if !ok || !a.IsCompleted || a.CompletedAt == nil {
				continue
			}

			f := domain.CompletionFact{
				AssignmentID: a.ID,
				QuestID:      a.QuestID,
				CompletedAt:  *a.CompletedAt,
			}
			derived := domain.NewCompletionFacts(f.CompletedAt)
			f.Time, f.DayOfWeek, f.Season = derived.Time, derived.DayOfWeek, derived.Season
			if a.CompletedTime != nil {
				f.Time = *a.CompletedTime
			}
			if a.CompletedDayOfWeek != nil {
				f.DayOfWeek = *a.CompletedDayOfWeek
			}
			if a.CompletedSeason != "" {
				f.Season = a.CompletedSeason
			}
			if q, ok := st.questView(a.QuestID); ok {
				f.Category = q.Category
			}
			facts = append(facts, f)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(facts, func(i, j int) bool {
		if !facts[i].CompletedAt.Equal(facts[j].CompletedAt) {
			return facts[i].CompletedAt.Before(facts[j].CompletedAt)
		}
		return facts[i].AssignmentID < facts[j].AssignmentID
	})
	return facts, nil
}

func (r *memQueries) GetQuestHistory(ctx context.Context, userID int64, query HistoryQuery) ([]*domain.Assignment, error) {
	var results []*domain.Assignment
	err := r.with(ctx, func(st *memState) error {
		for _, a := range st.assignments {
			if a.UserID != userID || (query.CompletedOnly && !a.IsCompleted) {
				continue
			}
			results = append(results, st.assignmentView(a))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if !a.PeriodKey.Equal(b.PeriodKey) {
			return a.PeriodKey.After(b.PeriodKey)
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID > b.ID
	})

	if query.Offset >= len(results) {
		return nil, nil
	}
	results = results[query.Offset:]
	if query.Limit > 0 && len(results) > query.Limit {
		results = results[:query.Limit]
	}
	return results, nil
}

func (r *memQueries) UpsertCategory(ctx context.Context, category *domain.QuestCategory) error {
	return r.with(ctx, func(st *memState) error {
		for id, c := range st.categories {
			if id != category.ID && c.Name == category.Name {
				return errors.ErrDatabaseError("upsert category", fmt.Errorf("category name %q already used", category.Name))
			}
		}
		st.categories[category.ID] = *category
		return nil
	})
}

func (r *memQueries) UpsertQuest(ctx context.Context, quest *domain.Quest) error {
	return r.with(ctx, func(st *memState) error {
		if _, ok := st.categories[quest.CategoryID]; !ok {
			return errors.ErrDatabaseError("upsert quest", fmt.Errorf("category %d does not exist", quest.CategoryID))
		}
		stored := *quest
		stored.Category = ""
		st.quests[quest.ID] = stored
		return nil
	})
}

func (r *memQueries) UpsertBadge(ctx context.Context, badge *domain.Badge) error {
	return r.with(ctx, func(st *memState) error {
		st.badges[badge.ID] = *badge
		return nil
	})
}
