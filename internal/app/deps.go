package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/otogram/backend/internal/auth"
	"github.com/otogram/backend/internal/config"
	"github.com/otogram/backend/internal/db"
	"github.com/otogram/backend/internal/feed"
	"github.com/otogram/backend/internal/handlers"
	"github.com/otogram/backend/internal/lock"
	"github.com/otogram/backend/internal/media"
	"github.com/otogram/backend/internal/middleware"
	"github.com/otogram/backend/internal/repositories"
	"github.com/otogram/backend/internal/storage"
)

// runtime holds the stores shared by every command.
type runtime struct {
	cfg     config.Config
	users   repositories.UserRepository
	videos  repositories.VideoRepository
	blobs   storage.Backend
	locker  lock.Locker
	health  handlers.HealthChecker
	closers []func()
}

type sqlHealth struct {
	db *sql.DB
}

func (h sqlHealth) Ping(ctx context.Context) error {
	return h.db.PingContext(ctx)
}

// buildRuntime opens the record store, blob store and lock selected by cfg.
func buildRuntime(ctx context.Context, cfg config.Config) (*runtime, error) {
	rt := &runtime{cfg: cfg}
	if err := rt.open(ctx); err != nil {
		rt.Close()
		return nil, err
	}
	return rt, nil
}

func (rt *runtime) open(ctx context.Context) error {
	cfg := rt.cfg

	var (
		pool *pgxpool.Pool
		err  error
	)
	switch cfg.Database.Driver {
	case "postgres":
		pool, err = db.Connect(ctx, cfg.Database.URL)
		if err != nil {
			return err
		}
		rt.closers = append(rt.closers, pool.Close)
		rt.users = repositories.NewPostgresUserRepository(pool)
		rt.videos = repositories.NewPostgresVideoRepository(pool)
		rt.health = pool
	case "sqlite":
		conn, openErr := db.OpenSQLite(ctx, cfg.Database.SQLitePath)
		if openErr != nil {
			return openErr
		}
		rt.closers = append(rt.closers, func() { _ = conn.Close() })
		rt.users = repositories.NewSQLiteUserRepository(conn)
		rt.videos = repositories.NewSQLiteVideoRepository(conn)
		rt.health = sqlHealth{db: conn}
	default:
		return fmt.Errorf("unsupported database driver %q", cfg.Database.Driver)
	}

	switch cfg.Storage.Backend {
	case "disk":
		rt.blobs, err = storage.NewDiskBackend(cfg.Storage.DataDir)
	case "s3":
		rt.blobs, err = storage.NewS3Backend(ctx, cfg.Storage.ObjectStore)
	case "database":
		if pool == nil {
			return errors.New("storage backend database requires the postgres driver")
		}
		rt.blobs = storage.NewPostgresBackend(pool)
	default:
		err = fmt.Errorf("unsupported storage backend %q", cfg.Storage.Backend)
	}
	if err != nil {
		return err
	}

	if cfg.Redis.Enabled {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		rt.closers = append(rt.closers, func() { _ = client.Close() })
		if err = client.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("connect to redis at %s: %w", cfg.Redis.Addr, err)
		}
		rt.locker = lock.NewRedisLocker(client)
	} else {
		rt.locker = lock.NewMemoryLocker()
	}

	return nil
}

// Close releases the runtime's connections in reverse order of opening.
func (rt *runtime) Close() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		rt.closers[i]()
	}
	rt.closers = nil
}

func (rt *runtime) sweeper() *media.Sweeper {
	return media.NewSweeper(rt.blobs, rt.locker, rt.cfg.Sweep.GracePeriod, rt.users, rt.videos)
}

// dependencies wires together concrete implementations used by the HTTP handlers.
func (rt *runtime) dependencies(logger *slog.Logger) (handlers.Dependencies, error) {
	cfg := rt.cfg
	ingress := media.NewIngress(rt.blobs)

	proxies, err := middleware.ParseTrustedProxies(cfg.RateLimit.TrustedProxies)
	if err != nil {
		return handlers.Dependencies{}, err
	}

	return handlers.Dependencies{
		Users:             rt.users,
		Tokens:            auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL),
		Feed:              feed.NewService(rt.users, rt.videos, ingress),
		Media:             ingress,
		Health:            rt.health,
		Logger:            logger,
		AllowedOrigins:    cfg.AllowedOrigins,
		StaticDir:         cfg.StaticDir,
		RequestsPerMinute: cfg.RateLimit.RequestsPerMinute,
		AuthLimiter: middleware.NewIPRateLimiter(
			cfg.RateLimit.AuthRequests,
			cfg.RateLimit.AuthWindow,
			cfg.RateLimit.AuthBurst,
			10*time.Minute,
		),
		TrustedProxies: proxies,
	}, nil
}
