package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/questie/progression-engine/pkg/domain"
	"github.com/questie/progression-engine/pkg/errors"
)

// Cache backends.
const (
	CacheBackendNone   = "none"
	CacheBackendMemory = "memory"
	CacheBackendRedis  = "redis"
)

// EngineConfig holds the runtime settings of the engine.
type EngineConfig struct {
	// Timezone decides which calendar day a completion falls on.
	Timezone        string            `env:"ENGINE_TIMEZONE" envDefault:"UTC"`
	DailyDifficulty domain.Difficulty `env:"ENGINE_DAILY_DIFFICULTY" envDefault:"medium"`

	MaxRetries           uint          `env:"ENGINE_MAX_RETRIES" envDefault:"3"`
	RetryInitialInterval time.Duration `env:"ENGINE_RETRY_INITIAL_INTERVAL" envDefault:"50ms"`

	NotesMaxLength      int `env:"ENGINE_NOTES_MAX_LENGTH" envDefault:"500"`
	HistoryDefaultLimit int `env:"ENGINE_HISTORY_DEFAULT_LIMIT" envDefault:"20"`
	HistoryMaxLimit     int `env:"ENGINE_HISTORY_MAX_LIMIT" envDefault:"50"`

	CacheBackend   string        `env:"CACHE_BACKEND" envDefault:"memory"`
	CacheSize      int           `env:"CACHE_SIZE" envDefault:"10000"`
	StatsTTL       time.Duration `env:"CACHE_STATS_TTL" envDefault:"2m"`
	BadgesTTL      time.Duration `env:"CACHE_BADGES_TTL" envDefault:"5m"`
	QuestsTTL      time.Duration `env:"CACHE_QUESTS_TTL" envDefault:"10m"`
	RedisAddr      string        `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword  string        `env:"REDIS_PASSWORD"`
	RedisDB        int           `env:"REDIS_DB" envDefault:"0"`
	RedisLocalSize int           `env:"REDIS_LOCAL_CACHE_SIZE" envDefault:"1000"`
	RedisLocalTTL  time.Duration `env:"REDIS_LOCAL_CACHE_TTL" envDefault:"1m"`

	location *time.Location
}

// DefaultEngineConfig returns the settings used when no environment is set.
func DefaultEngineConfig() *EngineConfig {
	return &EngineConfig{
		Timezone:             "UTC",
		DailyDifficulty:      domain.DifficultyMedium,
		MaxRetries:           3,
		RetryInitialInterval: 50 * time.Millisecond,
		NotesMaxLength:       500,
		HistoryDefaultLimit:  20,
		HistoryMaxLimit:      50,
		CacheBackend:         CacheBackendMemory,
		CacheSize:            10000,
		StatsTTL:             2 * time.Minute,
		BadgesTTL:            5 * time.Minute,
		QuestsTTL:            10 * time.Minute,
		RedisAddr:            "localhost:6379",
		RedisLocalSize:       1000,
		RedisLocalTTL:        time.Minute,
		location:             time.UTC,
	}
}

// LoadEngineConfig parses EngineConfig from the environment and validates it.
func LoadEngineConfig() (*EngineConfig, error) {
	var cfg EngineConfig
	if err := env.Parse(&cfg); err != nil {
		return nil, errors.ErrConfigInvalid(err.Error())
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the settings and resolves the timezone.
func (c *EngineConfig) Validate() error {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return errors.ErrConfigInvalid(fmt.Sprintf("unknown timezone %q", c.Timezone))
	}
	c.location = loc

	if !c.DailyDifficulty.IsValid() {
		return errors.ErrConfigInvalid(fmt.Sprintf("invalid daily difficulty %q", c.DailyDifficulty))
	}
	switch c.CacheBackend {
	case CacheBackendNone, CacheBackendMemory, CacheBackendRedis:
	default:
		return errors.ErrConfigInvalid(fmt.Sprintf("unknown cache backend %q", c.CacheBackend))
	}
	if c.CacheBackend == CacheBackendMemory && c.CacheSize <= 0 {
		return errors.ErrConfigInvalid("cache size must be positive")
	}
	if c.NotesMaxLength <= 0 {
		return errors.ErrConfigInvalid("notes max length must be positive")
	}
	if c.HistoryMaxLimit <= 0 || c.HistoryDefaultLimit <= 0 || c.HistoryDefaultLimit > c.HistoryMaxLimit {
		return errors.ErrConfigInvalid("history limits must satisfy 0 < default <= max")
	}
	return nil
}

// Location returns the resolved timezone, UTC if Validate was not called.
func (c *EngineConfig) Location() *time.Location {
	if c.location == nil {
		return time.UTC
	}
	return c.location
}
