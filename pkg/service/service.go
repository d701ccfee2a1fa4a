// Package service composes selection, rerolls, streaks and badges into the
// engine's transactional user operations.
package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/questie/progression-engine/pkg/badge"
	"github.com/questie/progression-engine/pkg/cache"
	"github.com/questie/progression-engine/pkg/config"
	"github.com/questie/progression-engine/pkg/domain"
	"github.com/questie/progression-engine/pkg/errors"
	"github.com/questie/progression-engine/pkg/metrics"
	"github.com/questie/progression-engine/pkg/repository"
	"github.com/questie/progression-engine/pkg/reroll"
	"github.com/questie/progression-engine/pkg/selector"
)

// BadgeEvaluator evaluates and awards a user's pending badges.
// *badge.Engine implements it.
type BadgeEvaluator interface {
	EvaluateAndAward(ctx context.Context, q badge.Queries, userID int64, now time.Time) ([]domain.AwardedBadge, error)
}

// Orchestrator runs every user-facing engine operation.
//
// Each mutation is one transaction, retried as a whole on transient storage
// errors. Badge evaluation after a completion is a separate best-effort
// transaction. Cached views of a user are invalidated after every commit.
type Orchestrator struct {
	store    repository.Store
	selector *selector.Selector
	guard    *reroll.Guard
	badges   BadgeEvaluator
	cache    *cache.Reader
	metrics  *metrics.Collector
	cfg      *config.EngineConfig
	now      func() time.Time
	logger   *slog.Logger
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithCache serves read views through gw.
func WithCache(gw cache.Gateway) Option {
	return func(o *Orchestrator) {
		o.cache = cache.NewReader(gw, o.logger)
	}
}

// WithMetrics records operation metrics on c.
func WithMetrics(c *metrics.Collector) Option {
	return func(o *Orchestrator) {
		o.metrics = c
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		o.now = now
	}
}

// WithBadgeEvaluator replaces the default badge engine.
func WithBadgeEvaluator(e BadgeEvaluator) Option {
	return func(o *Orchestrator) {
		o.badges = e
	}
}

// New creates an Orchestrator. A nil cfg uses config.DefaultEngineConfig.
func New(store repository.Store, cfg *config.EngineConfig, logger *slog.Logger, opts ...Option) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg == nil {
		cfg = config.DefaultEngineConfig()
	}

	o := &Orchestrator{
		store:    store,
		selector: selector.New(logger),
		guard:    reroll.NewGuard(logger),
		badges:   badge.NewEngine(logger),
		cfg:      cfg,
		now:      time.Now,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.cache == nil {
		o.cache = cache.NewReader(nil, logger)
	}
	return o
}

// withTx runs fn in a transaction and commits it. Transient failures retry
// the whole transaction with exponential backoff; other errors return at once.
func (o *Orchestrator) withTx(ctx context.Context, operation string, fn func(tx repository.Tx) error) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = o.cfg.RetryInitialInterval

	attempt := 0
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempt++
		err := o.runTx(ctx, operation, fn)
		if err != nil && !errors.IsRetryable(err) {
			return struct{}{}, backoff.Permanent(err)
		}
		if err != nil {
			o.logger.Warn("transient failure, retrying",
				"operation", operation,
				"attempt", attempt,
				"error", err,
			)
		}
		return struct{}{}, err
	}, backoff.WithBackOff(policy), backoff.WithMaxTries(o.cfg.MaxRetries+1))
	return err
}

func (o *Orchestrator) runTx(ctx context.Context, operation string, fn func(tx repository.Tx) error) error {
	tx, err := o.store.BeginTx(ctx)
	if err != nil {
		if _, ok := errors.As(err); ok {
			return err
		}
		return errors.ErrTransactionFailed(operation, err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		if _, ok := errors.As(err); ok {
			return err
		}
		return errors.ErrTransactionFailed(operation, err)
	}
	return nil
}

// today returns the current calendar date in the configured timezone as UTC midnight.
func (o *Orchestrator) today() time.Time {
	return calendarDate(o.now(), o.cfg.Location())
}

// calendarDate returns t's date in loc as UTC midnight.
func calendarDate(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func validateUserID(userID int64) error {
	if userID <= 0 {
		return errors.ErrValidationFailed("user_id", "must be positive")
	}
	return nil
}

func validateAssignmentID(assignmentID int64) error {
	if assignmentID <= 0 {
		return errors.ErrValidationFailed("assignment_id", "must be positive")
	}
	return nil
}
