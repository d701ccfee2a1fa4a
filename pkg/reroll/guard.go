// Package reroll enforces the once-per-period reroll budget.
package reroll

import (
	"context"
	"log/slog"
	"time"

	"github.com/questie/progression-engine/pkg/common"
	"github.com/questie/progression-engine/pkg/domain"
	"github.com/questie/progression-engine/pkg/errors"
)

// Queries is the subset of repository.Queries the guard needs.
type Queries interface {
	GetAssignments(ctx context.Context, userID int64, assignmentType domain.AssignmentType, periodKey time.Time) ([]*domain.Assignment, error)
	GetAssignmentsForUpdate(ctx context.Context, userID int64, assignmentType domain.AssignmentType, periodKey time.Time) ([]*domain.Assignment, error)
	HasRerolled(ctx context.Context, userID int64, assignmentType domain.AssignmentType, periodKey time.Time) (bool, error)
	InsertRerollRecord(ctx context.Context, record *domain.RerollRecord) (bool, error)
}

// Guard decides whether a period set may be rerolled and records rerolls.
type Guard struct {
	logger *slog.Logger
}

// NewGuard creates a Guard.
func NewGuard(logger *slog.Logger) *Guard {
	if logger == nil {
		logger = slog.Default()
	}
	return &Guard{logger: logger}
}

// Allowed reports whether a reroll is permitted given the period's current
// assignments and whether a reroll was already recorded.
func Allowed(assignments []*domain.Assignment, rerolled bool) bool {
	if rerolled {
		return false
	}
	for _, a := range assignments {
		if a.IsCompleted {
			return false
		}
	}
	return true
}

// CanReroll is true iff no reroll record exists for the period and no
// assignment of the period set is completed.
func (g *Guard) CanReroll(ctx context.Context, q Queries, userID int64, assignmentType domain.AssignmentType, periodKey time.Time) (bool, error) {
	assignments, err := q.GetAssignments(ctx, userID, assignmentType, periodKey)
	if err != nil {
		return false, err
	}
	rerolled, err := q.HasRerolled(ctx, userID, assignmentType, periodKey)
	if err != nil {
		return false, err
	}
	return Allowed(assignments, rerolled), nil
}

// Check validates a reroll request and returns the period set it will replace.
// The set is read with row locks, so q must be a transaction.
//
// It fails with NO_ASSIGNMENT_TO_REROLL when the period has no assignments,
// and with REROLL_LIMIT_EXCEEDED when the budget is used or a quest in the
// set is completed.
func (g *Guard) Check(ctx context.Context, q Queries, userID int64, assignmentType domain.AssignmentType, periodKey time.Time) ([]*domain.Assignment, error) {
	period := common.FormatDateKey(periodKey)

	assignments, err := q.GetAssignmentsForUpdate(ctx, userID, assignmentType, periodKey)
	if err != nil {
		return nil, err
	}
	if len(assignments) == 0 {
		return nil, errors.ErrNoAssignmentToReroll(string(assignmentType), period)
	}

	rerolled, err := q.HasRerolled(ctx, userID, assignmentType, periodKey)
	if err != nil {
		return nil, err
	}
	if !Allowed(assignments, rerolled) {
		g.logger.Info("reroll rejected",
			"user_id", userID,
			"assignment_type", assignmentType,
			"period", period,
			"already_rerolled", rerolled,
		)
		return nil, errors.ErrRerollLimitExceeded(string(assignmentType), period)
	}

	return assignments, nil
}

// Record consumes the period's reroll budget. The insert is idempotent on
// conflict; a conflicting insert means another request already rerolled and
// is reported as REROLL_LIMIT_EXCEEDED.
func (g *Guard) Record(ctx context.Context, q Queries, userID int64, assignmentType domain.AssignmentType, periodKey time.Time) error {
	inserted, err := q.InsertRerollRecord(ctx, &domain.RerollRecord{
		UserID:    userID,
		Type:      assignmentType,
		PeriodKey: periodKey,
	})
	if err != nil {
		return err
	}
	if !inserted {
		period := common.FormatDateKey(periodKey)
		g.logger.Info("concurrent reroll lost",
			"user_id", userID,
			"assignment_type", assignmentType,
			"period", period,
		)
		return errors.ErrRerollLimitExceeded(string(assignmentType), period)
	}
	return nil
}
