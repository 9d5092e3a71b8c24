package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MemoryDefaults(t *testing.T) {
	t.Setenv("STORE", "memory")
	t.Setenv("POSTGRES_DSN", "")
	t.Setenv("REDIS_URL", "")
	t.Setenv("REDIS_ADDR", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, StoreMemory, cfg.Store)
	assert.Equal(t, "8080", cfg.HTTPPort)
	assert.Equal(t, 24*time.Hour, cfg.CancellationWindow)
	assert.Equal(t, 5*time.Second, cfg.LockTTL)
	assert.Equal(t, "*/5 * * * *", cfg.ReminderSchedule)
	assert.Equal(t, time.UTC.String(), cfg.Location.String())
	assert.Empty(t, cfg.RedisAddr)
	assert.NotEmpty(t, cfg.JWTSecret)
}

func TestLoad_PostgresRequiresDSN(t *testing.T) {
	t.Setenv("STORE", "postgres")
	t.Setenv("POSTGRES_DSN", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "POSTGRES_DSN")
}

func TestLoad_RejectsUnknownStore(t *testing.T) {
	t.Setenv("STORE", "mongo")

	_, err := Load()
	require.Error(t, err)
}

func TestLoad_DurationsAndRedisURL(t *testing.T) {
	t.Setenv("STORE", "postgres")
	t.Setenv("POSTGRES_DSN", "postgres://localhost/clinic")
	t.Setenv("CANCELLATION_WINDOW", "48h")
	t.Setenv("LOCK_TTL", "3")
	t.Setenv("REDIS_URL", "redis://user:pw@cache:6380/2")
	t.Setenv("CLINIC_TIMEZONE", "Europe/Berlin")
	t.Setenv("POSTGRES_MAX_CONNS", "25")
	t.Setenv("AUTO_MIGRATE", "true")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 48*time.Hour, cfg.CancellationWindow)
	assert.Equal(t, 3*time.Second, cfg.LockTTL)
	assert.Equal(t, "cache:6380", cfg.RedisAddr)
	assert.Equal(t, "user", cfg.RedisUsername)
	assert.Equal(t, "pw", cfg.RedisPassword)
	assert.Equal(t, 2, cfg.RedisDB)
	assert.Equal(t, "Europe/Berlin", cfg.Location.String())
	assert.Equal(t, int32(25), cfg.PostgresMaxConns)
	assert.True(t, cfg.AutoMigrate)
}

func TestLoad_RedisDB(t *testing.T) {
	t.Setenv("STORE", "memory")
	t.Setenv("REDIS_URL", "")
	t.Setenv("REDIS_ADDR", "cache:6379")
	t.Setenv("REDIS_DB", "4")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "cache:6379", cfg.RedisAddr)
	assert.Equal(t, 4, cfg.RedisDB)

	t.Setenv("REDIS_URL", "redis://cache:6379/main")
	_, err = Load()
	assert.ErrorContains(t, err, "invalid REDIS_URL")
}

func TestLoad_ProdRequiresJWTSecret(t *testing.T) {
	t.Setenv("STORE", "memory")
	t.Setenv("APP_ENV", "prod")
	t.Setenv("JWT_SECRET", "")

	_, err := Load()
	require.Error(t, err)
}
