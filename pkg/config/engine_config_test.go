package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/questie/progression-engine/pkg/domain"
	"github.com/questie/progression-engine/pkg/errors"
)

func TestLoadEngineConfig_Defaults(t *testing.T) {
	cfg, err := LoadEngineConfig()
	require.NoError(t, err)

	assert.Equal(t, "UTC", cfg.Timezone)
	assert.Equal(t, time.UTC, cfg.Location())
	assert.Equal(t, domain.DifficultyMedium, cfg.DailyDifficulty)
	assert.Equal(t, uint(3), cfg.MaxRetries)
	assert.Equal(t, 50*time.Millisecond, cfg.RetryInitialInterval)
	assert.Equal(t, 500, cfg.NotesMaxLength)
	assert.Equal(t, 20, cfg.HistoryDefaultLimit)
	assert.Equal(t, 50, cfg.HistoryMaxLimit)
	assert.Equal(t, CacheBackendMemory, cfg.CacheBackend)
	assert.Equal(t, 2*time.Minute, cfg.StatsTTL)
	assert.Equal(t, 5*time.Minute, cfg.BadgesTTL)
	assert.Equal(t, 10*time.Minute, cfg.QuestsTTL)
}

func TestLoadEngineConfig_FromEnv(t *testing.T) {
	t.Setenv("ENGINE_TIMEZONE", "America/New_York")
	t.Setenv("ENGINE_DAILY_DIFFICULTY", "hard")
	t.Setenv("ENGINE_MAX_RETRIES", "5")
	t.Setenv("CACHE_BACKEND", "redis")
	t.Setenv("CACHE_STATS_TTL", "30s")
	t.Setenv("REDIS_ADDR", "redis:6380")

	cfg, err := LoadEngineConfig()
	require.NoError(t, err)

	assert.Equal(t, "America/New_York", cfg.Location().String())
	assert.Equal(t, domain.DifficultyHard, cfg.DailyDifficulty)
	assert.Equal(t, uint(5), cfg.MaxRetries)
	assert.Equal(t, CacheBackendRedis, cfg.CacheBackend)
	assert.Equal(t, 30*time.Second, cfg.StatsTTL)
	assert.Equal(t, "redis:6380", cfg.RedisAddr)
}

func TestLoadEngineConfig_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{name: "unknown timezone", key: "ENGINE_TIMEZONE", value: "Mars/Olympus"},
		{name: "unknown difficulty", key: "ENGINE_DAILY_DIFFICULTY", value: "epic"},
		{name: "unknown cache backend", key: "CACHE_BACKEND", value: "memcached"},
		{name: "malformed duration", key: "CACHE_BADGES_TTL", value: "five minutes"},
		{name: "history default above max", key: "ENGINE_HISTORY_DEFAULT_LIMIT", value: "80"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)

			_, err := LoadEngineConfig()

			require.Error(t, err)
			assert.True(t, errors.HasCode(err, errors.ErrCodeConfigInvalid), err.Error())
		})
	}
}

func TestDefaultEngineConfig_IsValid(t *testing.T) {
	cfg := DefaultEngineConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, time.UTC, cfg.Location())
}
