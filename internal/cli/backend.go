package cli

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"exam-flow-service/internal/app"
	"exam-flow-service/internal/config"
	"exam-flow-service/internal/infra/memory"
	"exam-flow-service/internal/infra/postgres"
	infraredis "exam-flow-service/internal/infra/redis"
	"exam-flow-service/internal/logging"
	"exam-flow-service/internal/seed"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"go.uber.org/zap"
)

// runtime is the loaded config plus the logger every command uses.
type runtime struct {
	cfg config.Config
	log *zap.Logger
}

func loadRuntime(configPath string) (runtime, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return runtime{}, err
	}
	log, err := logging.New(logging.Options{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		File:   cfg.Logging.File,
	})
	if err != nil {
		return runtime{}, err
	}
	return runtime{cfg: cfg, log: log}, nil
}

// backend bundles the storage, cache and guard chosen by configuration.
type backend struct {
	store   app.Store
	papers  app.PaperSource
	guard   app.StartGuard
	closers []func()
}

func (b *backend) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
}

func (b *backend) service(log *zap.Logger) *app.ExamService {
	return app.NewExamService(b.store, b.papers, b.guard, log)
}

func openBunDB(dsn string) *bun.DB {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	return bun.NewDB(sqldb, pgdialect.New())
}

// openBackend uses Postgres when a URL is configured and the in-memory store
// otherwise; Redis backs the paper cache and start guard when an address is set.
func openBackend(ctx context.Context, rt runtime) (*backend, error) {
	cfg := rt.cfg
	b := &backend{}
	paperTTL := config.TTLDuration(cfg.Paper.TTL, 10*time.Minute)

	var loader memory.PaperLoader
	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg, rt.log); err != nil {
			return nil, err
		}
		db := openBunDB(cfg.Postgres.URL)
		b.closers = append(b.closers, func() { _ = db.Close() })

		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			b.Close()
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		b.closers = append(b.closers, pool.Close)

		b.store = postgres.NewStore(db)
		loader = postgres.NewPaperLoader(pool)
		rt.log.Info("using postgres store")
	} else {
		store := memory.NewStore()
		if cfg.Exam.SeedFile != "" {
			fixture, err := seed.LoadFile(cfg.Exam.SeedFile)
			if err != nil {
				return nil, err
			}
			stats, err := seed.Apply(ctx, store, fixture)
			if err != nil {
				return nil, err
			}
			rt.log.Info("seeded in-memory store", zap.String("file", cfg.Exam.SeedFile), zap.Stringer("stats", stats))
		}
		b.store = store
		loader = store
		rt.log.Warn("no postgres url configured; using in-memory store")
	}

	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		b.closers = append(b.closers, func() { _ = client.Close() })
		b.papers = infraredis.NewPaperCache(client, loader, paperTTL, rt.log)
		b.guard = infraredis.NewStartGuard(client,
			config.TTLDuration(cfg.Exam.StartLockTTL, 10*time.Second),
			config.TTLDuration(cfg.Exam.StartLockWait, 2*time.Second),
			rt.log,
		)
	} else {
		b.papers = memory.NewPaperCache(loader, paperTTL)
		b.guard = memory.NewStartGuard()
	}
	return b, nil
}
