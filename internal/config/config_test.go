package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"APP_NAME", "APP_ENV", "PORT", "LOG_LEVEL", "DATABASE_URL", "REDIS_URL", "AMQP_URL",
		"JWT_SECRET", "REFRESH_SECRET", "ACCESS_TOKEN_TTL", "REFRESH_TOKEN_TTL",
		shutdownSecondsEnvVar, shutdownDurationEnvVar, idemTTLSecondsEnvVar, idemTTLDurEnvVar,
		"LOCK_TIMEOUT", "LOGIN_ATTEMPTS_PER_MINUTE", "METRICS_PORT",
	} {
		t.Setenv(key, "")
	}
}

func TestFromEnvDevelopmentDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.True(t, cfg.IsDev())
	assert.Equal(t, ":8080", cfg.Address())
	assert.Equal(t, devJWTSecret, cfg.JWTSecret)
	assert.Equal(t, defaultIdempotencyTTL, cfg.IdempotencyTTL)
	assert.Equal(t, defaultLockTimeout, cfg.LockTimeout)
	assert.Equal(t, defaultLoginAttempts, cfg.LoginAttempts)
	assert.True(t, cfg.MetricsEnabled())
	assert.Equal(t, ":9100", cfg.MetricsAddress())
}

func TestFromEnvMetricsPort(t *testing.T) {
	clearEnv(t)

	t.Setenv("METRICS_PORT", ":9200")
	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, ":9200", cfg.MetricsAddress())

	t.Setenv("METRICS_PORT", "OFF")
	cfg, err = FromEnv()
	require.NoError(t, err)
	assert.False(t, cfg.MetricsEnabled())
}

func TestFromEnvProductionRequiresBackends(t *testing.T) {
	clearEnv(t)
	t.Setenv("APP_ENV", "production")

	_, err := FromEnv()
	assert.ErrorContains(t, err, "DATABASE_URL")

	t.Setenv("DATABASE_URL", "postgres://localhost/ledger")
	_, err = FromEnv()
	assert.ErrorContains(t, err, "REDIS_URL")

	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	_, err = FromEnv()
	assert.ErrorContains(t, err, "JWT_SECRET")

	t.Setenv("JWT_SECRET", "s3cret")
	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.False(t, cfg.IsDev())
	assert.NotEqual(t, cfg.JWTSecret, cfg.RefreshSecret)
}

func TestFromEnvDurations(t *testing.T) {
	clearEnv(t)
	t.Setenv(shutdownSecondsEnvVar, "3")
	t.Setenv(shutdownDurationEnvVar, "1m")
	t.Setenv(idemTTLDurEnvVar, "90s")
	t.Setenv("ACCESS_TOKEN_TTL", "5m")
	t.Setenv("LOCK_TIMEOUT", "250ms")
	t.Setenv("PORT", ":9000")

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, 3*time.Second, cfg.ShutdownPeriod)
	assert.Equal(t, 90*time.Second, cfg.IdempotencyTTL)
	assert.Equal(t, 5*time.Minute, cfg.AccessTokenTTL)
	assert.Equal(t, 250*time.Millisecond, cfg.LockTimeout)
	assert.Equal(t, ":9000", cfg.Address())
}

func TestFromEnvRejectsBadValues(t *testing.T) {
	clearEnv(t)
	t.Setenv(idemTTLSecondsEnvVar, "soon")
	_, err := FromEnv()
	assert.Error(t, err)

	clearEnv(t)
	t.Setenv("LOGIN_ATTEMPTS_PER_MINUTE", "0")
	_, err = FromEnv()
	assert.Error(t, err)
}
