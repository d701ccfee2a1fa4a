package repository

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/lib/pq" // PostgreSQL driver and array support

	"github.com/questie/progression-engine/pkg/common"
	"github.com/questie/progression-engine/pkg/domain"
	"github.com/questie/progression-engine/pkg/errors"
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// pgQueries implements Queries on top of a querier.
type pgQueries struct {
	q querier
}

// PostgresStore implements Store using PostgreSQL.
type PostgresStore struct {
	pgQueries
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{
		pgQueries: pgQueries{q: db},
		db:        db,
	}
}

// BeginTx starts a database transaction and returns a transactional store.
func (s *PostgresStore) BeginTx(ctx context.Context) (Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, errors.ErrTransactionFailed("begin transaction", err)
	}

	return &PostgresTx{
		pgQueries: pgQueries{q: tx},
		tx:        tx,
	}, nil
}

// PostgresTx implements Tx for transactional operations.
type PostgresTx struct {
	pgQueries
	tx *sql.Tx
}

// Commit commits the transaction.
func (t *PostgresTx) Commit() error {
	if err := t.tx.Commit(); err != nil {
		return errors.ErrTransactionFailed("commit transaction", err)
	}
	return nil
}

// Rollback rolls back the transaction.
func (t *PostgresTx) Rollback() error {
	err := t.tx.Rollback()
	if err != nil && !stderrors.Is(err, sql.ErrTxDone) {
		return errors.ErrTransactionFailed("rollback transaction", err)
	}
	return nil
}

const questColumns = `
	q.id, q.category_id, c.name, q.title, COALESCE(q.description, ''),
	q.difficulty_level, q.points, COALESCE(q.estimated_duration_minutes, 0), q.is_active
`

const assignmentColumns = `
	a.id, a.user_id, a.quest_id, a.assignment_type, a.assigned_date, a.slot,
	a.is_completed, a.completed_at, a.completed_time::text, a.completed_day_of_week,
	a.completed_season, a.expires_at, a.created_at
`

// GetEligibleQuests returns active quests of active categories matching the filter.
func (r *pgQueries) GetEligibleQuests(ctx context.Context, filter QuestFilter) ([]*domain.Quest, error) {
	query := `
		SELECT ` + questColumns + `
		FROM quest q
		JOIN quest_category c ON c.id = q.category_id
		WHERE q.is_active = true
		  AND c.is_active = true
		  AND ($1::text = '' OR q.difficulty_level = $1::text)
		  AND NOT (q.id = ANY($2::bigint[]))
		ORDER BY q.id
	`

	exclude := filter.ExcludeIDs
	if exclude == nil {
		exclude = []int64{}
	}

	rows, err := r.q.QueryContext(ctx, query, string(filter.Difficulty), pq.Array(exclude))
	if err != nil {
		return nil, errors.ErrDatabaseError("get eligible quests", err)
	}
	defer func() { _ = rows.Close() }()

	var quests []*domain.Quest
	for rows.Next() {
		quest, err := scanQuest(rows)
		if err != nil {
			return nil, errors.ErrDatabaseError("scan quest row", err)
		}
		quests = append(quests, quest)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.ErrDatabaseError("iterate quest rows", err)
	}

	return quests, nil
}

// GetQuestByID returns a quest regardless of its active flag.
func (r *pgQueries) GetQuestByID(ctx context.Context, questID int64) (*domain.Quest, error) {
	query := `
		SELECT ` + questColumns + `
		FROM quest q
		JOIN quest_category c ON c.id = q.category_id
		WHERE q.id = $1
	`

	quest, err := scanQuest(r.q.QueryRowContext(ctx, query, questID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.ErrDatabaseError("get quest", err)
	}
	return quest, nil
}

const periodSetQuery = `
	SELECT ` + assignmentColumns + `, ` + questColumns + `
	FROM user_quest_assignment a
	JOIN quest q ON q.id = a.quest_id
	JOIN quest_category c ON c.id = q.category_id
	WHERE a.user_id = $1 AND a.assignment_type = $2 AND a.assigned_date = $3::date
	ORDER BY a.slot
`

// GetAssignments returns the period set of (user, type, period) ordered by slot.
func (r *pgQueries) GetAssignments(ctx context.Context, userID int64, assignmentType domain.AssignmentType, periodKey time.Time) ([]*domain.Assignment, error) {
	return r.getPeriodSet(ctx, "get assignments", periodSetQuery, userID, assignmentType, periodKey)
}

// GetAssignmentsForUpdate returns the period set and row-locks its
// assignments until the transaction ends. A concurrent completion of any
// assignment in the set waits for the lock.
func (r *pgQueries) GetAssignmentsForUpdate(ctx context.Context, userID int64, assignmentType domain.AssignmentType, periodKey time.Time) ([]*domain.Assignment, error) {
	return r.getPeriodSet(ctx, "get assignments for update", periodSetQuery+" FOR UPDATE OF a", userID, assignmentType, periodKey)
}

func (r *pgQueries) getPeriodSet(ctx context.Context, op, query string, userID int64, assignmentType domain.AssignmentType, periodKey time.Time) ([]*domain.Assignment, error) {
	rows, err := r.q.QueryContext(ctx, query, userID, string(assignmentType), common.FormatDateKey(periodKey))
	if err != nil {
		return nil, errors.ErrDatabaseError(op, err)
	}
	defer func() { _ = rows.Close() }()

	return scanAssignmentRows(rows)
}

// GetAssignment returns one assignment owned by userID.
func (r *pgQueries) GetAssignment(ctx context.Context, userID, assignmentID int64) (*domain.Assignment, error) {
	query := `
		SELECT ` + assignmentColumns + `, ` + questColumns + `
		FROM user_quest_assignment a
		JOIN quest q ON q.id = a.quest_id
		JOIN quest_category c ON c.id = q.category_id
		WHERE a.id = $1 AND a.user_id = $2
	`

	rows, err := r.q.QueryContext(ctx, query, assignmentID, userID)
	if err != nil {
		return nil, errors.ErrDatabaseError("get assignment", err)
	}
	defer func() { _ = rows.Close() }()

	assignments, err := scanAssignmentRows(rows)
	if err != nil {
		return nil, err
	}
	if len(assignments) == 0 {
		return nil, nil
	}
	return assignments[0], nil
}

// InsertAssignments inserts a period set in one statement.
func (r *pgQueries) InsertAssignments(ctx context.Context, assignments []*domain.Assignment) error {
	if len(assignments) == 0 {
		return nil
	}

	userIDs := make([]int64, len(assignments))
	questIDs := make([]int64, len(assignments))
	types := make([]string, len(assignments))
	dates := make([]string, len(assignments))
	slots := make([]int64, len(assignments))
	expires := make([]string, len(assignments))
	for i, a := range assignments {
		userIDs[i] = a.UserID
		questIDs[i] = a.QuestID
		types[i] = string(a.Type)
		dates[i] = common.FormatDateKey(a.PeriodKey)
		slots[i] = int64(a.Slot)
		expires[i] = a.ExpiresAt.UTC().Format(time.RFC3339Nano)
	}

	query := `
		INSERT INTO user_quest_assignment (
			user_id, quest_id, assignment_type, assigned_date, slot, expires_at
		)
		SELECT * FROM UNNEST(
			$1::bigint[], $2::bigint[], $3::varchar[], $4::date[], $5::smallint[], $6::timestamptz[]
		)
		RETURNING id, slot, created_at
	`

	rows, err := r.q.QueryContext(ctx, query,
		pq.Array(userIDs),
		pq.Array(questIDs),
		pq.Array(types),
		pq.Array(dates),
		pq.Array(slots),
		pq.Array(expires),
	)
	if err != nil {
		return insertAssignmentsError(assignments[0], err)
	}
	defer func() { _ = rows.Close() }()

	bySlot := make(map[int]*domain.Assignment, len(assignments))
	for _, a := range assignments {
		bySlot[a.Slot] = a
	}
	for rows.Next() {
		var (
			id        int64
			slot      int
			createdAt time.Time
		)
		if err := rows.Scan(&id, &slot, &createdAt); err != nil {
			return errors.ErrDatabaseError("scan inserted assignment", err)
		}
		if a, ok := bySlot[slot]; ok {
			a.ID = id
			a.CreatedAt = createdAt
		}
	}
	if err := rows.Err(); err != nil {
		return insertAssignmentsError(assignments[0], err)
	}

	return nil
}

func insertAssignmentsError(first *domain.Assignment, err error) error {
	if errors.IsUniqueViolation(err) {
		return errors.ErrAssignmentRace(string(first.Type), common.FormatDateKey(first.PeriodKey), err)
	}
	return errors.ErrDatabaseError("insert assignments", err)
}

// DeleteAssignments removes the open assignments of the period set.
// Completed assignments are never deleted.
func (r *pgQueries) DeleteAssignments(ctx context.Context, userID int64, assignmentType domain.AssignmentType, periodKey time.Time) (int64, error) {
	query := `
		DELETE FROM user_quest_assignment
		WHERE user_id = $1 AND assignment_type = $2 AND assigned_date = $3::date
		AND is_completed = false
	`

	result, err := r.q.ExecContext(ctx, query, userID, string(assignmentType), common.FormatDateKey(periodKey))
	if err != nil {
		return 0, errors.ErrDatabaseError("delete assignments", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, errors.ErrDatabaseError("check rows affected", err)
	}
	return rowsAffected, nil
}

// MarkAssignmentCompleted flips is_completed false -> true.
func (r *pgQueries) MarkAssignmentCompleted(ctx context.Context, userID, assignmentID int64, facts domain.CompletionFacts) (bool, error) {
	query := `
		UPDATE user_quest_assignment
		SET is_completed = true,
			completed_at = $3,
			completed_time = $4::time,
			completed_day_of_week = $5,
			completed_season = $6
		WHERE id = $1 AND user_id = $2
		AND is_completed = false
	`

	result, err := r.q.ExecContext(ctx, query,
		assignmentID,
		userID,
		facts.CompletedAt,
		facts.Time.String(),
		int(facts.DayOfWeek),
		string(facts.Season),
	)
	if err != nil {
		return false, errors.ErrDatabaseError("mark assignment completed", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, errors.ErrDatabaseError("check rows affected", err)
	}
	return rowsAffected == 1, nil
}

// MarkAssignmentUncompleted flips is_completed true -> false.
func (r *pgQueries) MarkAssignmentUncompleted(ctx context.Context, userID, assignmentID int64) (bool, error) {
	query := `
		UPDATE user_quest_assignment
		SET is_completed = false,
			completed_at = NULL,
			completed_time = NULL,
			completed_day_of_week = NULL,
			completed_season = NULL
		WHERE id = $1 AND user_id = $2
		AND is_completed = true
	`

	result, err := r.q.ExecContext(ctx, query, assignmentID, userID)
	if err != nil {
		return false, errors.ErrDatabaseError("mark assignment uncompleted", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, errors.ErrDatabaseError("check rows affected", err)
	}
	return rowsAffected == 1, nil
}

// InsertCompletion records a completion.
func (r *pgQueries) InsertCompletion(ctx context.Context, completion *domain.Completion) error {
	query := `
		INSERT INTO quest_completion (
			user_id, quest_id, assignment_id, points_earned, completion_notes, completed_at
		) VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6)
		RETURNING id
	`

	err := r.q.QueryRowContext(ctx, query,
		completion.UserID,
		completion.QuestID,
		completion.AssignmentID,
		completion.PointsEarned,
		completion.Notes,
		completion.CompletedAt,
	).Scan(&completion.ID)
	if err != nil {
		return errors.ErrDatabaseError("insert completion", err)
	}
	return nil
}

// DeleteCompletion removes the completion of an assignment.
func (r *pgQueries) DeleteCompletion(ctx context.Context, userID, assignmentID int64) (*domain.Completion, error) {
	query := `
		DELETE FROM quest_completion
		WHERE assignment_id = $1 AND user_id = $2
		RETURNING id, user_id, quest_id, assignment_id, points_earned,
		          COALESCE(completion_notes, ''), completed_at
	`

	var c domain.Completion
	err := r.q.QueryRowContext(ctx, query, assignmentID, userID).Scan(
		&c.ID,
		&c.UserID,
		&c.QuestID,
		&c.AssignmentID,
		&c.PointsEarned,
		&c.Notes,
		&c.CompletedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.ErrDatabaseError("delete completion", err)
	}
	return &c, nil
}

const statsColumns = `
	user_id, total_quests_completed, total_points, current_streak_days,
	longest_streak_days, last_quest_completed_at, updated_at
`

// GetStats returns the user's stats, or a zero row if none exists yet.
func (r *pgQueries) GetStats(ctx context.Context, userID int64) (*domain.UserStats, error) {
	query := `SELECT ` + statsColumns + ` FROM user_stats WHERE user_id = $1`

	stats, err := scanStats(r.q.QueryRowContext(ctx, query, userID))
	if err == sql.ErrNoRows {
		return &domain.UserStats{UserID: userID}, nil
	}
	if err != nil {
		return nil, errors.ErrDatabaseError("get stats", err)
	}
	return stats, nil
}

// GetStatsForUpdate returns the stats row with SELECT ... FOR UPDATE (row-level lock),
// creating it first if needed.
func (r *pgQueries) GetStatsForUpdate(ctx context.Context, userID int64) (*domain.UserStats, error) {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO user_stats (user_id) VALUES ($1)
		ON CONFLICT (user_id) DO NOTHING
	`, userID)
	if err != nil {
		return nil, errors.ErrDatabaseError("init stats", err)
	}

	query := `SELECT ` + statsColumns + ` FROM user_stats WHERE user_id = $1 FOR UPDATE`

	stats, err := scanStats(r.q.QueryRowContext(ctx, query, userID))
	if err != nil {
		return nil, errors.ErrDatabaseError("get stats for update", err)
	}
	return stats, nil
}

// UpdateStats applies a stats mutation.
func (r *pgQueries) UpdateStats(ctx context.Context, update domain.StatsUpdate) (*domain.UserStats, error) {
	query := `
		UPDATE user_stats
		SET total_points = GREATEST(0, total_points + $2),
			total_quests_completed = GREATEST(0, total_quests_completed + $3),
			current_streak_days = COALESCE($4, current_streak_days),
			longest_streak_days = COALESCE($5, longest_streak_days),
			last_quest_completed_at = COALESCE($6, last_quest_completed_at),
			updated_at = NOW()
		WHERE user_id = $1
		RETURNING ` + statsColumns

	stats, err := scanStats(r.q.QueryRowContext(ctx, query,
		update.UserID,
		update.PointsDelta,
		update.QuestsDelta,
		nullInt(update.CurrentStreak),
		nullInt(update.LongestStreak),
		nullTime(update.LastCompletedAt),
	))
	if err == sql.ErrNoRows {
		return nil, errors.ErrDatabaseError("update stats", fmt.Errorf("no stats row for user %d", update.UserID))
	}
	if err != nil {
		return nil, errors.ErrDatabaseError("update stats", err)
	}
	return stats, nil
}

// HasRerolled reports whether a reroll record exists for the period.
func (r *pgQueries) HasRerolled(ctx context.Context, userID int64, assignmentType domain.AssignmentType, periodKey time.Time) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM user_reroll_log
			WHERE user_id = $1 AND assignment_type = $2 AND reroll_date = $3::date
		)
	`

	var exists bool
	err := r.q.QueryRowContext(ctx, query, userID, string(assignmentType), common.FormatDateKey(periodKey)).Scan(&exists)
	if err != nil {
		return false, errors.ErrDatabaseError("check reroll log", err)
	}
	return exists, nil
}

// InsertRerollRecord inserts the period's reroll record.
func (r *pgQueries) InsertRerollRecord(ctx context.Context, record *domain.RerollRecord) (bool, error) {
	query := `
		INSERT INTO user_reroll_log (user_id, assignment_type, reroll_date)
		VALUES ($1, $2, $3::date)
		ON CONFLICT (user_id, assignment_type, reroll_date) DO NOTHING
	`

	result, err := r.q.ExecContext(ctx, query, record.UserID, string(record.Type), common.FormatDateKey(record.PeriodKey))
	if err != nil {
		return false, errors.ErrDatabaseError("insert reroll record", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, errors.ErrDatabaseError("check rows affected", err)
	}
	return rowsAffected == 1, nil
}

// ListBadges returns every badge ordered by ID.
func (r *pgQueries) ListBadges(ctx context.Context) ([]*domain.Badge, error) {
	query := `
		SELECT id, name, COALESCE(description, ''), COALESCE(icon, ''),
		       requirement_type, requirement_value,
		       COALESCE(requirement_category, ''),
		       COALESCE(requirement_time_start::text, ''),
		       COALESCE(requirement_time_end::text, ''),
		       COALESCE(requirement_days, ''),
		       COALESCE(requirement_season, ''),
		       COALESCE(requirement_date_start, ''),
		       COALESCE(requirement_date_end, ''),
		       requirement_recurring
		FROM badge
		ORDER BY id
	`

	rows, err := r.q.QueryContext(ctx, query)
	if err != nil {
		return nil, errors.ErrDatabaseError("list badges", err)
	}
	defer func() { _ = rows.Close() }()

	var badges []*domain.Badge
	for rows.Next() {
		var (
			b    domain.Badge
			spec domain.RequirementSpec
		)
		err := rows.Scan(
			&b.ID, &b.Name, &b.Description, &b.Icon,
			&spec.Type, &spec.Value,
			&spec.Category,
			&spec.TimeStart,
			&spec.TimeEnd,
			&spec.Days,
			&spec.Season,
			&spec.DateStart,
			&spec.DateEnd,
			&spec.Recurring,
		)
		if err != nil {
			return nil, errors.ErrDatabaseError("scan badge row", err)
		}

		req, err := spec.Build()
		if err != nil {
			return nil, errors.ErrConfigInvalid(fmt.Sprintf("badge %d (%s): %v", b.ID, b.Name, err))
		}
		b.Requirement = req
		badges = append(badges, &b)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.ErrDatabaseError("iterate badge rows", err)
	}

	return badges, nil
}

// GetUserBadges returns all progress rows of a user.
func (r *pgQueries) GetUserBadges(ctx context.Context, userID int64) ([]*domain.UserBadge, error) {
	query := `
		SELECT user_id, badge_id, progress_value, is_completed, earned_at, updated_at
		FROM user_badge
		WHERE user_id = $1
		ORDER BY badge_id
	`

	rows, err := r.q.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, errors.ErrDatabaseError("get user badges", err)
	}
	defer func() { _ = rows.Close() }()

	var results []*domain.UserBadge
	for rows.Next() {
		var ub domain.UserBadge
		if err := rows.Scan(&ub.UserID, &ub.BadgeID, &ub.ProgressValue, &ub.IsCompleted, &ub.EarnedAt, &ub.UpdatedAt); err != nil {
			return nil, errors.ErrDatabaseError("scan user badge row", err)
		}
		results = append(results, &ub)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.ErrDatabaseError("iterate user badge rows", err)
	}

	return results, nil
}

// UpsertUserBadge writes a progress row unless the stored row is already completed.
// The WHERE guard keeps earned badges terminal.
func (r *pgQueries) UpsertUserBadge(ctx context.Context, badge *domain.UserBadge) (bool, error) {
	query := `
		INSERT INTO user_badge (
			user_id, badge_id, progress_value, is_completed, earned_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (user_id, badge_id) DO UPDATE SET
			progress_value = EXCLUDED.progress_value,
			is_completed = EXCLUDED.is_completed,
			earned_at = EXCLUDED.earned_at,
			updated_at = NOW()
		WHERE user_badge.is_completed = false
	`

	result, err := r.q.ExecContext(ctx, query,
		badge.UserID,
		badge.BadgeID,
		badge.ProgressValue,
		badge.IsCompleted,
		nullTime(badge.EarnedAt),
	)
	if err != nil {
		return false, errors.ErrDatabaseError("upsert user badge", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, errors.ErrDatabaseError("check rows affected", err)
	}
	return rowsAffected == 1, nil
}

// CountEarnedBadges returns the number of completed badges of a user.
func (r *pgQueries) CountEarnedBadges(ctx context.Context, userID int64) (int, error) {
	var count int
	err := r.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM user_badge WHERE user_id = $1 AND is_completed = true`,
		userID,
	).Scan(&count)
	if err != nil {
		return 0, errors.ErrDatabaseError("count earned badges", err)
	}
	return count, nil
}

// GetCompletionFacts returns one fact row per completion of the user.
func (r *pgQueries) GetCompletionFacts(ctx context.Context, userID int64) ([]domain.CompletionFact, error) {
	query := `
		SELECT a.id, a.quest_id, c.name, a.completed_at,
		       a.completed_time::text, a.completed_day_of_week, a.completed_season
		FROM quest_completion qc
		JOIN user_quest_assignment a ON a.id = qc.assignment_id
		JOIN quest q ON q.id = a.quest_id
		JOIN quest_category c ON c.id = q.category_id
		WHERE qc.user_id = $1 AND a.is_completed = true
		ORDER BY a.completed_at
	`

	rows, err := r.q.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, errors.ErrDatabaseError("get completion facts", err)
	}
	defer func() { _ = rows.Close() }()

	var facts []domain.CompletionFact
	for rows.Next() {
		var (
			f         domain.CompletionFact
			clock     sql.NullString
			dayOfWeek sql.NullInt64
			season    sql.NullString
		)
		if err := rows.Scan(&f.AssignmentID, &f.QuestID, &f.Category, &f.CompletedAt, &clock, &dayOfWeek, &season); err != nil {
			return nil, errors.ErrDatabaseError("scan completion fact", err)
		}

		// Rows written before completion facts were tracked fall back to the timestamp.
		derived := domain.NewCompletionFacts(f.CompletedAt)
		f.Time, f.DayOfWeek, f.Season = derived.Time, derived.DayOfWeek, derived.Season
		if clock.Valid {
			if ct, err := domain.ParseClockTime(clock.String); err == nil {
				f.Time = ct
			}
		}
		if dayOfWeek.Valid {
			f.DayOfWeek = time.Weekday(dayOfWeek.Int64)
		}
		if season.Valid && domain.Season(season.String).IsValid() {
			f.Season = domain.Season(season.String)
		}
		facts = append(facts, f)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.ErrDatabaseError("iterate completion facts", err)
	}

	return facts, nil
}

// GetQuestHistory returns a page of the user's assignments, newest period first.
func (r *pgQueries) GetQuestHistory(ctx context.Context, userID int64, query HistoryQuery) ([]*domain.Assignment, error) {
	sqlQuery := `
		SELECT ` + assignmentColumns + `, ` + questColumns + `
		FROM user_quest_assignment a
		JOIN quest q ON q.id = a.quest_id
		JOIN quest_category c ON c.id = q.category_id
		WHERE a.user_id = $1
	`

	if query.CompletedOnly {
		sqlQuery += " AND a.is_completed = true"
	}

	sqlQuery += " ORDER BY a.assigned_date DESC, a.created_at DESC, a.id DESC LIMIT $2 OFFSET $3"

	rows, err := r.q.QueryContext(ctx, sqlQuery, userID, query.Limit, query.Offset)
	if err != nil {
		return nil, errors.ErrDatabaseError("get quest history", err)
	}
	defer func() { _ = rows.Close() }()

	return scanAssignmentRows(rows)
}

// UpsertCategory inserts or updates a category by ID.
func (r *pgQueries) UpsertCategory(ctx context.Context, category *domain.QuestCategory) error {
	query := `
		INSERT INTO quest_category (id, name, is_active)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			is_active = EXCLUDED.is_active
	`

	if _, err := r.q.ExecContext(ctx, query, category.ID, category.Name, category.IsActive); err != nil {
		return errors.ErrDatabaseError("upsert category", err)
	}
	return nil
}

// UpsertQuest inserts or updates a quest by ID.
func (r *pgQueries) UpsertQuest(ctx context.Context, quest *domain.Quest) error {
	query := `
		INSERT INTO quest (
			id, category_id, title, description, difficulty_level,
			points, estimated_duration_minutes, is_active
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			category_id = EXCLUDED.category_id,
			title = EXCLUDED.title,
			description = EXCLUDED.description,
			difficulty_level = EXCLUDED.difficulty_level,
			points = EXCLUDED.points,
			estimated_duration_minutes = EXCLUDED.estimated_duration_minutes,
			is_active = EXCLUDED.is_active
	`

	_, err := r.q.ExecContext(ctx, query,
		quest.ID,
		quest.CategoryID,
		quest.Title,
		quest.Description,
		string(quest.Difficulty),
		quest.Points,
		quest.EstimatedMinutes,
		quest.IsActive,
	)
	if err != nil {
		return errors.ErrDatabaseError("upsert quest", err)
	}
	return nil
}

// UpsertBadge inserts or updates a badge by ID.
func (r *pgQueries) UpsertBadge(ctx context.Context, badge *domain.Badge) error {
	spec := domain.SpecOf(badge.Requirement)

	query := `
		INSERT INTO badge (
			id, name, description, icon, requirement_type, requirement_value,
			requirement_category, requirement_time_start, requirement_time_end,
			requirement_days, requirement_season, requirement_date_start,
			requirement_date_end, requirement_recurring
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			NULLIF($7, ''), NULLIF($8, '')::time, NULLIF($9, '')::time,
			NULLIF($10, ''), NULLIF($11, ''), NULLIF($12, ''),
			NULLIF($13, ''), $14
		)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			icon = EXCLUDED.icon,
			requirement_type = EXCLUDED.requirement_type,
			requirement_value = EXCLUDED.requirement_value,
			requirement_category = EXCLUDED.requirement_category,
			requirement_time_start = EXCLUDED.requirement_time_start,
			requirement_time_end = EXCLUDED.requirement_time_end,
			requirement_days = EXCLUDED.requirement_days,
			requirement_season = EXCLUDED.requirement_season,
			requirement_date_start = EXCLUDED.requirement_date_start,
			requirement_date_end = EXCLUDED.requirement_date_end,
			requirement_recurring = EXCLUDED.requirement_recurring
	`

	_, err := r.q.ExecContext(ctx, query,
		badge.ID, badge.Name, badge.Description, badge.Icon, spec.Type, spec.Value,
		spec.Category, spec.TimeStart, spec.TimeEnd,
		spec.Days, spec.Season, spec.DateStart,
		spec.DateEnd, spec.Recurring,
	)
	if err != nil {
		return errors.ErrDatabaseError("upsert badge", err)
	}
	return nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanQuest(row rowScanner) (*domain.Quest, error) {
	var (
		q          domain.Quest
		difficulty string
	)
	err := row.Scan(
		&q.ID,
		&q.CategoryID,
		&q.Category,
		&q.Title,
		&q.Description,
		&difficulty,
		&q.Points,
		&q.EstimatedMinutes,
		&q.IsActive,
	)
	if err != nil {
		return nil, err
	}
	q.Difficulty = domain.Difficulty(difficulty)
	return &q, nil
}

// scanAssignmentRows scans rows of assignmentColumns followed by questColumns.
func scanAssignmentRows(rows *sql.Rows) ([]*domain.Assignment, error) {
	var results []*domain.Assignment

	for rows.Next() {
		var (
			a              domain.Assignment
			q              domain.Quest
			assignmentType string
			clock          sql.NullString
			dayOfWeek      sql.NullInt64
			season         sql.NullString
			difficulty     string
		)
		err := rows.Scan(
			&a.ID,
			&a.UserID,
			&a.QuestID,
			&assignmentType,
			&a.PeriodKey,
			&a.Slot,
			&a.IsCompleted,
			&a.CompletedAt,
			&clock,
			&dayOfWeek,
			&season,
			&a.ExpiresAt,
			&a.CreatedAt,
			&q.ID,
			&q.CategoryID,
			&q.Category,
			&q.Title,
			&q.Description,
			&difficulty,
			&q.Points,
			&q.EstimatedMinutes,
			&q.IsActive,
		)
		if err != nil {
			return nil, errors.ErrDatabaseError("scan assignment row", err)
		}

		a.Type = domain.AssignmentType(assignmentType)
		a.PeriodKey = common.TruncateToDateUTC(a.PeriodKey)
		if clock.Valid {
			if ct, err := domain.ParseClockTime(clock.String); err == nil {
				a.CompletedTime = &ct
			}
		}
		if dayOfWeek.Valid {
			wd := time.Weekday(dayOfWeek.Int64)
			a.CompletedDayOfWeek = &wd
		}
		if season.Valid {
			a.CompletedSeason = domain.Season(season.String)
		}
		q.Difficulty = domain.Difficulty(difficulty)
		a.Quest = &q

		results = append(results, &a)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.ErrDatabaseError("iterate assignment rows", err)
	}

	return results, nil
}

func scanStats(row rowScanner) (*domain.UserStats, error) {
	var s domain.UserStats
	err := row.Scan(
		&s.UserID,
		&s.TotalQuestsCompleted,
		&s.TotalPoints,
		&s.CurrentStreakDays,
		&s.LongestStreakDays,
		&s.LastQuestCompletedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func nullTime(v *time.Time) sql.NullTime {
	if v == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *v, Valid: true}
}
