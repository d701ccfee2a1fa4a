package config

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/questie/progression-engine/pkg/domain"
	"github.com/questie/progression-engine/pkg/errors"
)

const catalogJSON = `{
	"categories": [
		{"id": 1, "name": "Fitness"},
		{"id": 2, "name": "Social", "is_active": false}
	],
	"quests": [
		{"id": 10, "category": "fitness", "title": "Stretch", "difficulty": "easy", "points": 10, "estimated_minutes": 5},
		{"id": 11, "category": "Social", "title": "Call a friend", "difficulty": "medium", "points": 20, "is_active": false}
	],
	"badges": [
		{"id": 1, "name": "Getting Started", "icon": "star", "requirement_type": "quest_count", "requirement_value": 5},
		{"id": 2, "name": "Night Owl", "requirement_type": "time_of_day_quest", "requirement_value": 3,
		 "requirement_time_start": "23:00:00", "requirement_time_end": "02:00:00"},
		{"id": 3, "name": "Holiday Spirit", "requirement_type": "holiday_quest", "requirement_value": 3,
		 "requirement_date_start": "12-20", "requirement_date_end": "01-05", "requirement_recurring": true},
		{"id": 4, "name": "Weekend Warrior", "requirement_type": "day_of_week_quest", "requirement_value": 4,
		 "requirement_days": "weekend"},
		{"id": 5, "name": "Autumn Leaves", "requirement_type": "seasonal_quest", "requirement_value": 2,
		 "requirement_season": "fall"},
		{"id": 6, "name": "Fit", "requirement_type": "category_quest", "requirement_value": 10,
		 "requirement_category": "Fitness"}
	]
}`

func TestConfigLoader_LoadConfig(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	t.Run("successful load", func(t *testing.T) {
		tmpFile := createTempConfigFile(t, catalogJSON)

		config, err := NewConfigLoader(tmpFile, logger).LoadConfig()

		if err != nil {
			t.Fatalf("LoadConfig() unexpected error = %v", err)
		}
		if len(config.Categories) != 2 || len(config.Quests) != 2 || len(config.Badges) != 6 {
			t.Errorf("unexpected catalog sizes: %d categories, %d quests, %d badges",
				len(config.Categories), len(config.Quests), len(config.Badges))
		}
		if config.Badges[1].TimeStart != "23:00:00" {
			t.Errorf("expected flat requirement fields to be parsed, got %+v", config.Badges[1].RequirementSpec)
		}
	})

	t.Run("file not found", func(t *testing.T) {
		_, err := NewConfigLoader("/nonexistent/catalog.json", logger).LoadConfig()

		if err == nil {
			t.Fatal("LoadConfig() expected error, got nil")
		}
		if !strings.Contains(err.Error(), "failed to read config file") {
			t.Errorf("expected 'failed to read config file' error, got %v", err)
		}
		if !errors.HasCode(err, errors.ErrCodeConfigNotFound) {
			t.Errorf("expected CONFIG_NOT_FOUND code, got %v", err)
		}
	})

	t.Run("invalid JSON", func(t *testing.T) {
		tmpFile := createTempConfigFile(t, `{"quests": [}`)

		_, err := NewConfigLoader(tmpFile, logger).LoadConfig()

		if err == nil || !strings.Contains(err.Error(), "failed to parse config JSON") {
			t.Errorf("expected 'failed to parse config JSON' error, got %v", err)
		}
	})

	t.Run("validation failure", func(t *testing.T) {
		tmpFile := createTempConfigFile(t, `{
			"categories": [{"id": 1, "name": "Fitness"}],
			"quests": [{"id": 1, "category": "Fitness", "title": "Run", "difficulty": "epic", "points": 10}]
		}`)

		_, err := NewConfigLoader(tmpFile, logger).LoadConfig()

		if err == nil || !strings.Contains(err.Error(), "config validation failed") {
			t.Fatalf("expected 'config validation failed' error, got %v", err)
		}
		if !errors.HasCode(err, errors.ErrCodeConfigInvalid) {
			t.Errorf("expected CONFIG_INVALID code, got %v", err)
		}
	})
}

func TestConfigLoader_LoadCatalog(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	tmpFile := createTempConfigFile(t, catalogJSON)

	catalog, err := NewConfigLoader(tmpFile, logger).LoadCatalog()
	require.NoError(t, err)

	require.Len(t, catalog.Categories, 2)
	assert.True(t, catalog.Categories[0].IsActive, "is_active defaults to true")
	assert.False(t, catalog.Categories[1].IsActive)

	require.Len(t, catalog.Quests, 2)
	assert.Equal(t, int64(1), catalog.Quests[0].CategoryID, "category resolved by name ignoring case")
	assert.Equal(t, "Fitness", catalog.Quests[0].Category)
	assert.True(t, catalog.Quests[0].IsActive)
	assert.False(t, catalog.Quests[1].IsActive)

	require.Len(t, catalog.Badges, 6)
	assert.Equal(t, domain.CountThreshold{Metric: domain.MetricQuestsCompleted, Target: 5}, catalog.Badges[0].Requirement)
	assert.Equal(t, "star", catalog.Badges[0].Icon)

	nightOwl, ok := catalog.Badges[1].Requirement.(domain.TimeOfDayThreshold)
	require.True(t, ok)
	assert.Equal(t, domain.ClockTime(23*3600), nightOwl.Start)
	assert.Equal(t, domain.ClockTime(2*3600), nightOwl.End)

	holiday, ok := catalog.Badges[2].Requirement.(domain.HolidayThreshold)
	require.True(t, ok)
	assert.Equal(t, domain.MonthDay{Month: time.December, Day: 20}, holiday.Start)
	assert.Equal(t, domain.MonthDay{Month: time.January, Day: 5}, holiday.End)
	assert.True(t, holiday.Recurring)

	assert.Equal(t, domain.DayOfWeekThreshold{Days: domain.DaySetWeekend, Target: 4}, catalog.Badges[3].Requirement)
	assert.Equal(t, domain.SeasonalThreshold{Season: domain.SeasonAutumn, Target: 2}, catalog.Badges[4].Requirement)
	assert.Equal(t, domain.CategoryThreshold{Category: "Fitness", Target: 10}, catalog.Badges[5].Requirement)
}

func createTempConfigFile(t *testing.T, content string) string {
	t.Helper()

	tmpDir := t.TempDir()
	tmpFile := filepath.Join(tmpDir, "catalog.json")

	err := os.WriteFile(tmpFile, []byte(content), 0600)
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}

	return tmpFile
}
