package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/urfave/cli/v2"

	"github.com/questie/progression-engine/pkg/cache"
	"github.com/questie/progression-engine/pkg/common"
	"github.com/questie/progression-engine/pkg/config"
	"github.com/questie/progression-engine/pkg/db"
	"github.com/questie/progression-engine/pkg/domain"
	"github.com/questie/progression-engine/pkg/repository"
	"github.com/questie/progression-engine/pkg/service"
)

func init() {
	// for development
	//nolint:errcheck
	godotenv.Load("../../.env")

	// for production
	//nolint:errcheck
	godotenv.Load("./.env")
}

func main() {
	app := &cli.App{
		Name:  "questengine",
		Usage: "operate the quest and badge progression engine",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Value:   "info",
				EnvVars: []string{"LOG_LEVEL"},
			},
			&cli.StringFlag{
				Name:    "pushgateway",
				Usage:   "Pushgateway URL to push engine metrics to when a command ends",
				EnvVars: []string{"PUSHGATEWAY_URL"},
			},
		},
		Before: func(c *cli.Context) error {
			var level slog.Level
			if err := level.UnmarshalText([]byte(c.String("log-level"))); err != nil {
				return fmt.Errorf("invalid log level: %w", err)
			}
			slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
			return nil
		},
		Commands: []*cli.Command{
			commandMigrate(),
			commandSeed(),
			commandAssign(),
			commandEvaluateBadges(),
			commandStats(),
			commandQuest(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func commandMigrate() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "apply the database schema",
		Action: func(c *cli.Context) error {
			ctx, cancel := signalContext(c.Context)
			defer cancel()

			conn, err := openDB()
			if err != nil {
				return err
			}
			defer conn.Close()

			if err := db.Migrate(ctx, conn); err != nil {
				return err
			}
			slog.Info("schema applied", "tables", len(db.Tables))
			return nil
		},
	}
}

func commandSeed() *cli.Command {
	return &cli.Command{
		Name:  "seed",
		Usage: "upsert quest categories, quests and badges from a catalog file",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "file",
				Required: true,
				Usage:    "path to the catalog JSON file",
			},
		},
		Action: func(c *cli.Context) error {
			ctx, cancel := signalContext(c.Context)
			defer cancel()

			catalog, err := config.NewConfigLoader(c.String("file"), slog.Default()).LoadCatalog()
			if err != nil {
				return err
			}

			conn, err := openDB()
			if err != nil {
				return err
			}
			defer conn.Close()

			if err := seedCatalog(ctx, repository.NewPostgresStore(conn), catalog); err != nil {
				return err
			}
			slog.Info("catalog seeded",
				"categories", len(catalog.Categories),
				"quests", len(catalog.Quests),
				"badges", len(catalog.Badges),
			)
			return nil
		},
	}
}

func commandAssign() *cli.Command {
	return &cli.Command{
		Name:  "assign",
		Usage: "show or create a user's quests for a period",
		Flags: []cli.Flag{
			&cli.Int64Flag{Name: "user", Required: true},
			&cli.StringFlag{Name: "type", Value: string(domain.AssignmentTypeDaily), Usage: "daily or weekly"},
			&cli.StringFlag{Name: "date", Usage: "YYYY-MM-DD, defaults to today"},
		},
		Action: func(c *cli.Context) error {
			return withOrchestrator(c, func(ctx context.Context, o *service.Orchestrator, cfg *config.EngineConfig) error {
				var day time.Time
				if s := c.String("date"); s != "" {
					var err error
					if day, err = common.ParseDateKey(s, cfg.Location()); err != nil {
						return fmt.Errorf("invalid date: %w", err)
					}
				}

				var (
					view *service.PeriodView
					err  error
				)
				switch domain.AssignmentType(c.String("type")) {
				case domain.AssignmentTypeDaily:
					view, err = o.AssignDaily(ctx, c.Int64("user"), day)
				case domain.AssignmentTypeWeekly:
					view, err = o.AssignWeekly(ctx, c.Int64("user"), day)
				default:
					return fmt.Errorf("unknown assignment type %q", c.String("type"))
				}
				if err != nil {
					return err
				}
				return printJSON(view)
			})
		},
	}
}

func commandEvaluateBadges() *cli.Command {
	return &cli.Command{
		Name:  "evaluate-badges",
		Usage: "re-evaluate a user's pending badges",
		Flags: []cli.Flag{
			&cli.Int64Flag{Name: "user", Required: true},
		},
		Action: func(c *cli.Context) error {
			return withOrchestrator(c, func(ctx context.Context, o *service.Orchestrator, _ *config.EngineConfig) error {
				awarded, err := o.EvaluateBadges(ctx, c.Int64("user"))
				if err != nil {
					return err
				}
				return printJSON(awarded)
			})
		},
	}
}

func commandStats() *cli.Command {
	return &cli.Command{
		Name:  "stats",
		Usage: "print a user's stats and badges",
		Flags: []cli.Flag{
			&cli.Int64Flag{Name: "user", Required: true},
		},
		Action: func(c *cli.Context) error {
			return withOrchestrator(c, func(ctx context.Context, o *service.Orchestrator, _ *config.EngineConfig) error {
				stats, err := o.GetStats(ctx, c.Int64("user"))
				if err != nil {
					return err
				}
				badges, err := o.GetBadges(ctx, c.Int64("user"))
				if err != nil {
					return err
				}
				return printJSON(map[string]any{"stats": stats, "badges": badges})
			})
		},
	}
}

func commandQuest() *cli.Command {
	return &cli.Command{
		Name:  "quest",
		Usage: "print a quest and the user's current assignment of it",
		Flags: []cli.Flag{
			&cli.Int64Flag{Name: "user", Required: true},
			&cli.Int64Flag{Name: "id", Required: true},
		},
		Action: func(c *cli.Context) error {
			return withOrchestrator(c, func(ctx context.Context, o *service.Orchestrator, _ *config.EngineConfig) error {
				detail, err := o.GetQuest(ctx, c.Int64("user"), c.Int64("id"))
				if err != nil {
					return err
				}
				return printJSON(detail)
			})
		},
	}
}

// seedCatalog upserts the catalog in one transaction.
func seedCatalog(ctx context.Context, store repository.Store, catalog *config.Catalog) error {
	tx, err := store.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, category := range catalog.Categories {
		if err := tx.UpsertCategory(ctx, category); err != nil {
			return fmt.Errorf("seed category %d: %w", category.ID, err)
		}
	}
	for _, quest := range catalog.Quests {
		if err := tx.UpsertQuest(ctx, quest); err != nil {
			return fmt.Errorf("seed quest %d: %w", quest.ID, err)
		}
	}
	for _, badge := range catalog.Badges {
		if err := tx.UpsertBadge(ctx, badge); err != nil {
			return fmt.Errorf("seed badge %d: %w", badge.ID, err)
		}
	}
	return tx.Commit()
}

func withOrchestrator(c *cli.Context, fn func(ctx context.Context, o *service.Orchestrator, cfg *config.EngineConfig) error) error {
	ctx, cancel := signalContext(c.Context)
	defer cancel()

	cfg, err := config.LoadEngineConfig()
	if err != nil {
		return err
	}

	conn, err := openDB()
	if err != nil {
		return err
	}
	defer conn.Close()

	gateway, closeGateway, err := newGateway(cfg)
	if err != nil {
		return err
	}
	defer closeGateway()

	opts := []service.Option{service.WithCache(gateway)}
	pusher := newMetricsPusher(c.String("pushgateway"), c.Command.Name)
	if pusher != nil {
		opts = append(opts, service.WithMetrics(pusher.collector))
	}

	o := service.New(repository.NewPostgresStore(conn), cfg, slog.Default(), opts...)
	err = fn(ctx, o, cfg)

	if pusher != nil {
		if pushErr := pusher.push(ctx); pushErr != nil {
			slog.Warn("metrics not pushed", "error", pushErr)
		}
	}
	return err
}

// newGateway builds the configured cache backend.
func newGateway(cfg *config.EngineConfig) (cache.Gateway, func(), error) {
	switch cfg.CacheBackend {
	case config.CacheBackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		return cache.NewRedisCache(client, cfg.RedisLocalSize, cfg.RedisLocalTTL), func() { _ = client.Close() }, nil
	case config.CacheBackendMemory:
		lru, err := cache.NewLRUCache(cfg.CacheSize)
		if err != nil {
			return nil, nil, err
		}
		return lru, func() {}, nil
	default:
		return cache.Noop{}, func() {}, nil
	}
}

func openDB() (*sql.DB, error) {
	cfg, err := db.NewConfigFromEnv()
	if err != nil {
		return nil, err
	}
	return db.Connect(cfg)
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
