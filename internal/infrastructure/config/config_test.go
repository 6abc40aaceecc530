package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	t.Run("loads default values when env vars not set", func(t *testing.T) {
		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, "setof-commerce", cfg.App.Name)
		assert.Equal(t, "development", cfg.App.Env)
		assert.Equal(t, "postgres", cfg.Database.Driver)
		assert.Equal(t, 5432, cfg.Database.Port)
		assert.Equal(t, 3*time.Second, cfg.Lock.WaitTimeout)
		assert.Equal(t, 15*time.Second, cfg.Lock.LeaseTimeout)
		assert.Equal(t, 3, cfg.Reservation.MaxAttempts)
		assert.Equal(t, 50*time.Millisecond, cfg.Reservation.BackoffBase)
		assert.Equal(t, time.Second, cfg.Reservation.BackoffMax)
		assert.Equal(t, 10*time.Second, cfg.Reservation.Deadline)
		assert.Equal(t, 30*time.Minute, cfg.Checkout.ExpiryWindow)
		assert.False(t, cfg.Sweeper.Enabled)
		assert.Equal(t, time.Minute, cfg.Sweeper.Interval)
		assert.Equal(t, 100, cfg.Sweeper.BatchSize)
	})

	t.Run("loads values from environment variables with SETOF prefix", func(t *testing.T) {
		t.Setenv("SETOF_APP_PORT", "9000")
		t.Setenv("SETOF_DATABASE_DRIVER", "sqlite")
		t.Setenv("SETOF_LOCK_WAIT_TIMEOUT", "500ms")
		t.Setenv("SETOF_RESERVATION_MAX_ATTEMPTS", "5")
		t.Setenv("SETOF_CHECKOUT_EXPIRY_WINDOW", "10m")
		t.Setenv("SETOF_SWEEPER_ENABLED", "true")

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, "9000", cfg.App.Port)
		assert.Equal(t, "sqlite", cfg.Database.Driver)
		assert.Equal(t, 500*time.Millisecond, cfg.Lock.WaitTimeout)
		assert.Equal(t, 5, cfg.Reservation.MaxAttempts)
		assert.Equal(t, 10*time.Minute, cfg.Checkout.ExpiryWindow)
		assert.True(t, cfg.Sweeper.Enabled)
	})

	t.Run("rejects deadline not shorter than lease", func(t *testing.T) {
		t.Setenv("SETOF_RESERVATION_DEADLINE", "20s")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "lock.lease_timeout")
	})

	t.Run("rejects backoff base above max", func(t *testing.T) {
		t.Setenv("SETOF_RESERVATION_BACKOFF_BASE", "2s")

		_, err := Load()
		require.Error(t, err)
	})

	t.Run("rejects unknown driver", func(t *testing.T) {
		t.Setenv("SETOF_DATABASE_DRIVER", "mysql")

		_, err := Load()
		require.Error(t, err)
	})

	t.Run("validates MaxIdleConns cannot exceed MaxOpenConns", func(t *testing.T) {
		t.Setenv("SETOF_DATABASE_MAX_OPEN_CONNS", "5")
		t.Setenv("SETOF_DATABASE_MAX_IDLE_CONNS", "10")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "max_idle_conns")
	})
}

func TestLoad_Production(t *testing.T) {
	t.Run("requires database password", func(t *testing.T) {
		t.Setenv("SETOF_APP_ENV", "production")
		t.Setenv("SETOF_DATABASE_SSLMODE", "require")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "database.password")
	})

	t.Run("rejects sqlite", func(t *testing.T) {
		t.Setenv("SETOF_APP_ENV", "production")
		t.Setenv("SETOF_DATABASE_DRIVER", "sqlite")

		_, err := Load()
		require.Error(t, err)
	})

	t.Run("passes with valid production config", func(t *testing.T) {
		t.Setenv("SETOF_APP_ENV", "production")
		t.Setenv("SETOF_DATABASE_PASSWORD", "secret")
		t.Setenv("SETOF_DATABASE_SSLMODE", "require")

		_, err := Load()
		require.NoError(t, err)
	})
}

func TestDatabaseConfig_DSN(t *testing.T) {
	t.Run("generates valid DSN", func(t *testing.T) {
		d := DatabaseConfig{Host: "db", Port: 5432, User: "u", Password: "p", DBName: "setof", SSLMode: "disable"}
		assert.Equal(t, "postgres://u:p@db:5432/setof?sslmode=disable", d.DSN())
	})

	t.Run("escapes special characters in password", func(t *testing.T) {
		d := DatabaseConfig{Host: "db", Port: 5432, User: "u", Password: "p@ss/w:rd", DBName: "setof", SSLMode: "disable"}
		assert.Contains(t, d.DSN(), "p%40ss%2Fw%3Ard")
	})
}

func TestRedisConfig_Addr(t *testing.T) {
	r := RedisConfig{Host: "cache", Port: 6380}
	assert.Equal(t, "cache:6380", r.Addr())
}
