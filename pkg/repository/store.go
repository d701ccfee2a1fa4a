package repository

import (
	"context"
	"time"

	"github.com/questie/progression-engine/pkg/domain"
)

// QuestFilter narrows the eligible quest pool.
type QuestFilter struct {
	// Difficulty restricts the pool to one tier. Empty means any tier.
	Difficulty domain.Difficulty
	// ExcludeIDs are quest IDs that must not be returned.
	ExcludeIDs []int64
}

// HistoryQuery pages through a user's assignments, newest first.
type HistoryQuery struct {
	CompletedOnly bool
	Limit         int
	Offset        int
}

// Queries is the persistence contract of the engine.
//
// Period keys are calendar dates represented as UTC midnight. Lookups that
// find nothing return (nil, nil) rather than an error.
type Queries interface {
	// GetEligibleQuests returns active quests of active categories matching the filter,
	// ordered by quest ID.
	GetEligibleQuests(ctx context.Context, filter QuestFilter) ([]*domain.Quest, error)

	// GetQuestByID returns a quest regardless of its active flag.
	GetQuestByID(ctx context.Context, questID int64) (*domain.Quest, error)

	// GetAssignments returns the period set of (user, type, period) ordered by slot,
	// with Quest populated.
	GetAssignments(ctx context.Context, userID int64, assignmentType domain.AssignmentType, periodKey time.Time) ([]*domain.Assignment, error)

	// GetAssignmentsForUpdate is GetAssignments that also locks the set's
	// rows until the transaction ends.
	GetAssignmentsForUpdate(ctx context.Context, userID int64, assignmentType domain.AssignmentType, periodKey time.Time) ([]*domain.Assignment, error)

	// GetAssignment returns one assignment owned by userID, with Quest populated.
	GetAssignment(ctx context.Context, userID, assignmentID int64) (*domain.Assignment, error)

	// InsertAssignments inserts a period set and fills in IDs and CreatedAt.
	// A concurrent insert of the same slots fails with a transient
	// ASSIGNMENT_RACE error.
	InsertAssignments(ctx context.Context, assignments []*domain.Assignment) error

	// DeleteAssignments removes the open assignments of the period set and
	// returns the number of rows removed. Completed assignments stay.
	DeleteAssignments(ctx context.Context, userID int64, assignmentType domain.AssignmentType, periodKey time.Time) (int64, error)

	// MarkAssignmentCompleted flips is_completed false -> true.
	// Returns false if the assignment does not exist or is already completed.
	MarkAssignmentCompleted(ctx context.Context, userID, assignmentID int64, facts domain.CompletionFacts) (bool, error)

	// MarkAssignmentUncompleted flips is_completed true -> false and clears completion facts.
	// Returns false if the assignment does not exist or is not completed.
	MarkAssignmentUncompleted(ctx context.Context, userID, assignmentID int64) (bool, error)

	// InsertCompletion records a completion and fills in its ID.
	InsertCompletion(ctx context.Context, completion *domain.Completion) error

	// DeleteCompletion removes the completion of an assignment and returns the removed row.
	DeleteCompletion(ctx context.Context, userID, assignmentID int64) (*domain.Completion, error)

	// GetStats returns the user's stats, or a zero row if none exists yet. It never writes.
	GetStats(ctx context.Context, userID int64) (*domain.UserStats, error)

	// GetStatsForUpdate returns the user's stats row, creating it if needed,
	// and locks it for the rest of the transaction.
	GetStatsForUpdate(ctx context.Context, userID int64) (*domain.UserStats, error)

	// UpdateStats applies a stats mutation and returns the new row.
	// Totals never drop below zero.
	UpdateStats(ctx context.Context, update domain.StatsUpdate) (*domain.UserStats, error)

	// HasRerolled reports whether a reroll record exists for the period.
	HasRerolled(ctx context.Context, userID int64, assignmentType domain.AssignmentType, periodKey time.Time) (bool, error)

	// InsertRerollRecord inserts the period's reroll record.
	// Returns false when the record already exists.
	InsertRerollRecord(ctx context.Context, record *domain.RerollRecord) (bool, error)

	// ListBadges returns every badge ordered by ID.
	ListBadges(ctx context.Context) ([]*domain.Badge, error)

	// GetUserBadges returns all progress rows of a user.
	GetUserBadges(ctx context.Context, userID int64) ([]*domain.UserBadge, error)

	// UpsertUserBadge writes a progress row unless the stored row is already completed.
	// Returns true when a row was written.
	UpsertUserBadge(ctx context.Context, badge *domain.UserBadge) (bool, error)

	// CountEarnedBadges returns the number of completed badges of a user.
	CountEarnedBadges(ctx context.Context, userID int64) (int, error)

	// GetCompletionFacts returns one fact row per completion of the user.
	GetCompletionFacts(ctx context.Context, userID int64) ([]domain.CompletionFact, error)

	// GetQuestHistory returns a page of the user's assignments, newest period first.
	GetQuestHistory(ctx context.Context, userID int64, query HistoryQuery) ([]*domain.Assignment, error)

	// UpsertCategory inserts or updates a category by ID.
	UpsertCategory(ctx context.Context, category *domain.QuestCategory) error

	// UpsertQuest inserts or updates a quest by ID.
	UpsertQuest(ctx context.Context, quest *domain.Quest) error

	// UpsertBadge inserts or updates a badge by ID.
	UpsertBadge(ctx context.Context, badge *domain.Badge) error
}

// Store is a Queries implementation that can open transactions.
type Store interface {
	Queries

	// BeginTx starts a transaction. All engine mutations run inside one.
	BeginTx(ctx context.Context) (Tx, error)
}

// Tx is a transactional Queries that supports commit/rollback.
type Tx interface {
	Queries

	// Commit commits the transaction.
	Commit() error

	// Rollback rolls back the transaction. Calling it after Commit is a no-op.
	Rollback() error
}
