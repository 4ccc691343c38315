// Package app builds the rollcall components from configuration. The API,
// the worker and the CLI share it.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"rollcall/internal/attendance"
	"rollcall/internal/auth"
	"rollcall/internal/backend"
	"rollcall/internal/config"
	"rollcall/internal/lookupcache"
	"rollcall/internal/normalize"
	"rollcall/internal/queue"
	"rollcall/internal/roster"
	"rollcall/internal/store"
)

// serviceSubject identifies rollcall itself in minted backend tokens.
const serviceSubject = "rollcall"

// Deps holds everything a rollcall process runs on.
type Deps struct {
	Config  config.App
	Logger  *slog.Logger
	Redis   *store.Redis
	DB      *store.DB
	Backend *backend.Client
	Tables  *normalize.Tables
	Cache   *lookupcache.Cache
	Rosters *roster.Service
	// History is nil when DATABASE_URL is empty or Postgres is unreachable.
	History *attendance.Service
	Queue   queue.Queue
}

// Wire connects the stores and builds the services. Postgres is optional: a
// failed connection is logged and the snapshot store is left out.
func Wire(ctx context.Context, cfg config.App, logger *slog.Logger) (*Deps, error) {
	if logger == nil {
		logger = slog.Default()
	}
	d := &Deps{Config: cfg, Logger: logger}
	var err error
	if d.Redis, err = store.NewRedis(cfg.RedisAddr); err != nil {
		return nil, err
	}

	d.Backend = backend.New(cfg.BackendURL, cfg.BackendToken, cfg.BackendTimeout)
	if cfg.BackendToken == "" {
		d.Backend.TokenFunc = auth.NewServiceTokens(serviceSubject, cfg.JWTIssuer, cfg.JWTSigningKey, cfg.AccessTTL).Token
	}

	d.Tables = normalize.DefaultTables()
	if cfg.AliasFile != "" {
		o, err := normalize.LoadOverrides(cfg.AliasFile)
		if err != nil {
			d.Close()
			return nil, err
		}
		if d.Tables, err = d.Tables.With(o); err != nil {
			d.Close()
			return nil, fmt.Errorf("alias overrides: %w", err)
		}
	}

	cacheStore, err := lookupcache.NewStore(cfg.LookupCacheBackend, d.Redis.Client, cfg.LookupCacheKey, cfg.LookupCacheFile)
	if err != nil {
		d.Close()
		return nil, err
	}
	d.Cache = lookupcache.New(cacheStore, logger)
	d.Rosters = roster.NewService(d.Backend, d.Cache, roster.Options{
		Concurrency: cfg.EnrichConcurrency,
		Locale:      cfg.CollationLocale,
		Tables:      d.Tables,
	}, logger)

	switch cfg.QueueBackend {
	case "memory":
		d.Queue = queue.NewInMemory(64)
	default:
		d.Queue = queue.NewRedisQueue(d.Redis.Client, queue.DefaultKey, logger)
	}

	if cfg.DatabaseURL != "" {
		d.History = d.connectHistory(ctx)
	}
	return d, nil
}

func (d *Deps) connectHistory(ctx context.Context) *attendance.Service {
	db, err := store.NewDB(ctx, d.Config.DatabaseURL)
	if err != nil {
		d.Logger.Warn("postgres not reachable, roster history disabled", "err", err)
		_ = db.Close()
		return nil
	}
	repo := attendance.NewRepository(db.Client)
	migrateCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := repo.Migrate(migrateCtx); err != nil {
		d.Logger.Warn("snapshot migration failed, roster history disabled", "err", err)
		_ = db.Close()
		return nil
	}
	d.DB = db
	return attendance.NewService(repo, d.Logger)
}

// UsesRedis reports whether the queue or the lookup cache lives in Redis.
func (d *Deps) UsesRedis() bool {
	return d.Config.QueueBackend == "redis" || d.Config.LookupCacheBackend == "redis"
}

// Health reports the reachability of each configured dependency.
func (d *Deps) Health(ctx context.Context) map[string]bool {
	out := map[string]bool{"backend": d.Backend.Health(ctx) == nil}
	if d.UsesRedis() {
		out["redis"] = d.Redis.Healthy(ctx)
	}
	if d.Config.DatabaseURL != "" {
		out["db"] = d.DB.Healthy(ctx)
	}
	return out
}

// Close releases the store connections.
func (d *Deps) Close() {
	if err := d.DB.Close(); err != nil {
		d.Logger.Warn("close postgres", "err", err)
	}
	if err := d.Redis.Close(); err != nil {
		d.Logger.Warn("close redis", "err", err)
	}
}
