package db

import (
	"context"
	"database/sql"
	"fmt"
)

// schema is applied in order by Migrate. Every statement is idempotent.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS quest_category (
		id BIGINT PRIMARY KEY,
		name VARCHAR(100) NOT NULL UNIQUE,
		is_active BOOLEAN NOT NULL DEFAULT true
	)`,

	`CREATE TABLE IF NOT EXISTS quest (
		id BIGINT PRIMARY KEY,
		category_id BIGINT NOT NULL REFERENCES quest_category(id),
		title VARCHAR(200) NOT NULL,
		description TEXT,
		difficulty_level VARCHAR(10) NOT NULL,
		points INT NOT NULL,
		estimated_duration_minutes INT,
		is_active BOOLEAN NOT NULL DEFAULT true,
		CONSTRAINT check_quest_difficulty CHECK (difficulty_level IN ('easy', 'medium', 'hard')),
		CONSTRAINT check_quest_points_positive CHECK (points > 0)
	)`,

	`CREATE INDEX IF NOT EXISTS idx_quest_active_difficulty
		ON quest(is_active, difficulty_level)`,

	`CREATE TABLE IF NOT EXISTS user_quest_assignment (
		id BIGSERIAL PRIMARY KEY,
		user_id BIGINT NOT NULL,
		quest_id BIGINT NOT NULL REFERENCES quest(id),
		assignment_type VARCHAR(10) NOT NULL,
		assigned_date DATE NOT NULL,
		slot SMALLINT NOT NULL DEFAULT 0,
		is_completed BOOLEAN NOT NULL DEFAULT false,
		completed_at TIMESTAMPTZ NULL,
		completed_time TIME NULL,
		completed_day_of_week SMALLINT NULL,
		completed_season VARCHAR(10) NULL,
		expires_at TIMESTAMPTZ NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		CONSTRAINT uq_assignment_slot UNIQUE (user_id, assignment_type, assigned_date, slot),
		CONSTRAINT check_assignment_type CHECK (assignment_type IN ('daily', 'weekly')),
		CONSTRAINT check_completed_at CHECK (is_completed = false OR completed_at IS NOT NULL)
	)`,

	`CREATE INDEX IF NOT EXISTS idx_assignment_user_date
		ON user_quest_assignment(user_id, assigned_date DESC)`,

	`CREATE TABLE IF NOT EXISTS quest_completion (
		id BIGSERIAL PRIMARY KEY,
		user_id BIGINT NOT NULL,
		quest_id BIGINT NOT NULL REFERENCES quest(id),
		assignment_id BIGINT NOT NULL UNIQUE REFERENCES user_quest_assignment(id),
		points_earned INT NOT NULL,
		completion_notes TEXT,
		completed_at TIMESTAMPTZ NOT NULL
	)`,

	`CREATE INDEX IF NOT EXISTS idx_completion_user
		ON quest_completion(user_id)`,

	// Completions pin their assignment; earlier schemas cascaded the delete.
	`ALTER TABLE quest_completion
		DROP CONSTRAINT IF EXISTS quest_completion_assignment_id_fkey,
		ADD CONSTRAINT quest_completion_assignment_id_fkey
			FOREIGN KEY (assignment_id) REFERENCES user_quest_assignment(id)`,

	`CREATE TABLE IF NOT EXISTS user_stats (
		user_id BIGINT PRIMARY KEY,
		total_quests_completed INT NOT NULL DEFAULT 0,
		total_points INT NOT NULL DEFAULT 0,
		current_streak_days INT NOT NULL DEFAULT 0,
		longest_streak_days INT NOT NULL DEFAULT 0,
		last_quest_completed_at TIMESTAMPTZ NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		CONSTRAINT check_stats_non_negative CHECK (total_quests_completed >= 0 AND total_points >= 0),
		CONSTRAINT check_longest_streak CHECK (longest_streak_days >= current_streak_days)
	)`,

	`CREATE TABLE IF NOT EXISTS badge (
		id BIGINT PRIMARY KEY,
		name VARCHAR(100) NOT NULL UNIQUE,
		description TEXT,
		icon VARCHAR(50),
		requirement_type VARCHAR(50) NOT NULL,
		requirement_value INT NOT NULL,
		requirement_category VARCHAR(50) NULL,
		requirement_time_start TIME NULL,
		requirement_time_end TIME NULL,
		requirement_days VARCHAR(20) NULL,
		requirement_season VARCHAR(10) NULL,
		requirement_date_start VARCHAR(5) NULL,
		requirement_date_end VARCHAR(5) NULL,
		requirement_recurring BOOLEAN NOT NULL DEFAULT false,
		CONSTRAINT check_badge_value_positive CHECK (requirement_value > 0)
	)`,

	`CREATE TABLE IF NOT EXISTS user_badge (
		user_id BIGINT NOT NULL,
		badge_id BIGINT NOT NULL REFERENCES badge(id),
		progress_value INT NOT NULL DEFAULT 0,
		is_completed BOOLEAN NOT NULL DEFAULT false,
		earned_at TIMESTAMPTZ NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (user_id, badge_id),
		CONSTRAINT check_earned_implies_completed CHECK (is_completed = false OR earned_at IS NOT NULL)
	)`,

	`CREATE TABLE IF NOT EXISTS user_reroll_log (
		id BIGSERIAL PRIMARY KEY,
		user_id BIGINT NOT NULL,
		assignment_type VARCHAR(10) NOT NULL,
		reroll_date DATE NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		CONSTRAINT uq_reroll_period UNIQUE (user_id, assignment_type, reroll_date)
	)`,
}

// Tables lists every engine table, children first.
var Tables = []string{
	"user_reroll_log",
	"user_badge",
	"badge",
	"user_stats",
	"quest_completion",
	"user_quest_assignment",
	"quest",
	"quest_category",
}

// Migrate applies the schema inside one transaction.
func Migrate(ctx context.Context, db *sql.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for i, stmt := range schema {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration statement %d: %w", i+1, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration: %w", err)
	}
	return nil
}
