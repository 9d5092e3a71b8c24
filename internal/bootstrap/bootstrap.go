// Package bootstrap wires the storage and locking backends selected by config.
package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-appointment-scheduling/internal/appointment"
	"github.com/hackgods/clinic-appointment-scheduling/internal/config"
	"github.com/hackgods/clinic-appointment-scheduling/internal/db"
	redisclient "github.com/hackgods/clinic-appointment-scheduling/internal/redis"
)

// Backends holds the open connections and the repositories built on them. Pool and Redis are
// nil when the corresponding backend is not in use.
type Backends struct {
	Pool    *pgxpool.Pool
	Redis   *redis.Client
	Repo    appointment.Repository
	Doctors appointment.DoctorRepository
	Locker  redisclient.Locker
}

// Open connects the configured store and, if an address is set, Redis. Without Redis the slot
// lock falls back to an in-process lock, which is only correct for a single API instance.
func Open(ctx context.Context, cfg config.Config, log zerolog.Logger) (*Backends, error) {
	b := &Backends{}

	switch cfg.Store {
	case config.StorePostgres:
		pgCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		pool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN, cfg.PostgresMaxConns)
		cancel()
		if err != nil {
			return nil, err
		}
		b.Pool = pool
		log.Info().Msg("connected to Postgres")

		if cfg.AutoMigrate {
			n, err := db.NewMigrator(pool, log).Up(ctx)
			if err != nil {
				b.Close()
				return nil, fmt.Errorf("migrate: %w", err)
			}
			log.Info().Int("applied", n).Msg("migrations up to date")
		}

		b.Repo = appointment.NewPgRepository(pool)
		b.Doctors = appointment.NewPgDoctorRepository(pool)
	case config.StoreMemory:
		store := appointment.NewMemoryStore()
		b.Repo = store
		b.Doctors = store
		log.Warn().Msg("using in-memory store, data is lost on restart")
	default:
		return nil, fmt.Errorf("unknown store %q", cfg.Store)
	}

	if cfg.RedisAddr == "" {
		b.Locker = redisclient.NewLocalLocker()
		log.Warn().Msg("redis not configured, slot locks are process-local")
		return b, nil
	}

	rdb, err := redisclient.Connect(ctx, redisclient.Options{
		Addr:     cfg.RedisAddr,
		Username: cfg.RedisUsername,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err != nil {
		b.Close()
		return nil, err
	}
	b.Redis = rdb
	b.Locker = redisclient.NewRedisLocker(rdb, cfg.LockTTL)
	log.Info().Str("addr", cfg.RedisAddr).Msg("connected to Redis")

	return b, nil
}

func (b *Backends) Close() {
	if b.Redis != nil {
		_ = b.Redis.Close()
	}
	if b.Pool != nil {
		b.Pool.Close()
	}
}
