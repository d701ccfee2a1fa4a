package db

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/caarlos0/env/v11"
	_ "github.com/lib/pq" // PostgreSQL driver
)

// Config holds PostgreSQL connection settings.
type Config struct {
	Host            string
	Port            int
	Database        string
	User            string
	Password        string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// envConfig is the environment shape of Config. Durations are whole seconds.
type envConfig struct {
	Host                   string `env:"DB_HOST" envDefault:"localhost"`
	Port                   int    `env:"DB_PORT" envDefault:"5432"`
	Database               string `env:"DB_NAME" envDefault:"questie"`
	User                   string `env:"DB_USER" envDefault:"postgres"`
	Password               string `env:"DB_PASSWORD"`
	SSLMode                string `env:"DB_SSLMODE" envDefault:"disable"`
	MaxOpenConns           int    `env:"DB_MAX_OPEN_CONNS" envDefault:"25"`
	MaxIdleConns           int    `env:"DB_MAX_IDLE_CONNS" envDefault:"5"`
	ConnMaxLifetimeSeconds int    `env:"DB_CONN_MAX_LIFETIME" envDefault:"300"`
	ConnMaxIdleTimeSeconds int    `env:"DB_CONN_MAX_IDLE_TIME" envDefault:"300"`
}

// NewConfigFromEnv reads the connection settings from DB_* environment variables.
func NewConfigFromEnv() (*Config, error) {
	var raw envConfig
	if err := env.Parse(&raw); err != nil {
		return nil, fmt.Errorf("parse database config: %w", err)
	}

	return &Config{
		Host:            raw.Host,
		Port:            raw.Port,
		Database:        raw.Database,
		User:            raw.User,
		Password:        raw.Password,
		SSLMode:         raw.SSLMode,
		MaxOpenConns:    raw.MaxOpenConns,
		MaxIdleConns:    raw.MaxIdleConns,
		ConnMaxLifetime: time.Duration(raw.ConnMaxLifetimeSeconds) * time.Second,
		ConnMaxIdleTime: time.Duration(raw.ConnMaxIdleTimeSeconds) * time.Second,
	}, nil
}

// DSN returns the lib/pq connection URL.
func (c *Config) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.User, c.Password),
		Host:   c.Host + ":" + strconv.Itoa(c.Port),
		Path:   "/" + c.Database,
	}
	q := url.Values{}
	q.Set("sslmode", c.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}

// Connect opens a pooled connection and verifies it with a ping.
func Connect(cfg *Config) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	ConfigurePool(db, cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}

// ConfigurePool applies connection pool settings.
func ConfigurePool(db *sql.DB, cfg *Config) {
	// Maximum open connections (includes idle + in-use)
	db.SetMaxOpenConns(cfg.MaxOpenConns)

	// Maximum idle connections in pool
	db.SetMaxIdleConns(cfg.MaxIdleConns)

	// Maximum lifetime of connection
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	// Maximum idle time for connection
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
}

// Health pings the database with a short timeout.
func Health(db *sql.DB) error {
	if db == nil {
		return fmt.Errorf("database unhealthy: no connection")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("database unhealthy: %w", err)
	}
	return nil
}
