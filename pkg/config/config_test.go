package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	v := viper.New()
	setDefaults(v)
	cfg := fromViper(v)

	assert.Equal(t, EnvDevelopment, cfg.Env)
	assert.Equal(t, "/api/v1", cfg.APIPrefix)
	assert.Equal(t, DriverPostgres, cfg.Database.Driver)
	assert.Equal(t, 10.0, cfg.Scoring.StartingPoints)
	assert.Equal(t, 0.5, cfg.Scoring.PointStep)
	assert.Equal(t, 30, cfg.Scoring.StreakBonusPeriod)
	assert.Equal(t, 120, cfg.Scoring.DefaultDailyLimit)
	assert.False(t, cfg.Scoring.ResetStreakOnGap)
	assert.Equal(t, time.Second, cfg.Sweep.RetryDelay)
	assert.Equal(t, 5*time.Minute, cfg.Cache.TTL)
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("DB_DRIVER", "SQLite")
	t.Setenv("SCORING_RESET_STREAK_ON_GAP", "true")
	t.Setenv("CACHE_TTL", "90s")
	t.Setenv("ALLOWED_ORIGINS", "http://a.test, ,http://b.test")

	v := viper.New()
	v.AutomaticEnv()
	setDefaults(v)
	cfg := fromViper(v)

	assert.Equal(t, DriverSQLite, cfg.Database.Driver)
	assert.True(t, cfg.Scoring.ResetStreakOnGap)
	assert.Equal(t, 90*time.Second, cfg.Cache.TTL)
	require.Len(t, cfg.CORS.AllowedOrigins, 2)
	assert.Equal(t, "http://b.test", cfg.CORS.AllowedOrigins[1])
}

func TestParseDurationFallback(t *testing.T) {
	assert.Equal(t, time.Minute, parseDuration("", time.Minute))
	assert.Equal(t, time.Minute, parseDuration("soon", time.Minute))
	assert.Equal(t, 2*time.Hour, parseDuration("2h", time.Minute))
}
