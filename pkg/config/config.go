package config

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database DatabaseConfig
	Redis    RedisConfig
	Cache    CacheConfig
	CORS     CORSConfig
	Log      LogConfig
	Scoring  ScoringConfig
	Sweep    SweepConfig
	Reports  ReportsConfig
}

type DatabaseConfig struct {
	Driver       string
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
	SQLitePath   string
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// CacheConfig governs read-through caching of ledgers and dashboards.
type CacheConfig struct {
	Enabled bool
	TTL     time.Duration
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// ScoringConfig overrides the point rules of the compliance engine.
type ScoringConfig struct {
	StartingPoints        float64
	PointStep             float64
	StreakBonus           float64
	StreakBonusPeriod     int
	UsageToleranceMinutes int
	ResetStreakOnGap      bool
	DefaultDailyLimit     int
}

// SweepConfig configures the asynchronous batch ingest workers.
type SweepConfig struct {
	Enabled    bool
	Workers    int
	BufferSize int
	Retries    int
	RetryDelay time.Duration
}

// ReportsConfig toggles class report exports.
type ReportsConfig struct {
	Enabled bool
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !isMissingFile(err) {
			return nil, err
		}
	}

	return fromViper(v), nil
}

func fromViper(v *viper.Viper) *Config {
	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Driver:       strings.ToLower(v.GetString("DB_DRIVER")),
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
		SQLitePath:   v.GetString("SQLITE_PATH"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.Cache = CacheConfig{
		Enabled: v.GetBool("CACHE_ENABLED"),
		TTL:     parseDuration(v.GetString("CACHE_TTL"), 5*time.Minute),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Scoring = ScoringConfig{
		StartingPoints:        v.GetFloat64("SCORING_STARTING_POINTS"),
		PointStep:             v.GetFloat64("SCORING_POINT_STEP"),
		StreakBonus:           v.GetFloat64("SCORING_STREAK_BONUS"),
		StreakBonusPeriod:     v.GetInt("SCORING_STREAK_BONUS_PERIOD"),
		UsageToleranceMinutes: v.GetInt("SCORING_USAGE_TOLERANCE_MINUTES"),
		ResetStreakOnGap:      v.GetBool("SCORING_RESET_STREAK_ON_GAP"),
		DefaultDailyLimit:     v.GetInt("SCORING_DEFAULT_DAILY_LIMIT"),
	}

	cfg.Sweep = SweepConfig{
		Enabled:    v.GetBool("ENABLE_SWEEP"),
		Workers:    v.GetInt("SWEEP_WORKERS"),
		BufferSize: v.GetInt("SWEEP_BUFFER_SIZE"),
		Retries:    v.GetInt("SWEEP_WORKER_RETRIES"),
		RetryDelay: parseDuration(v.GetString("SWEEP_RETRY_DELAY"), time.Second),
	}

	cfg.Reports = ReportsConfig{
		Enabled: v.GetBool("ENABLE_REPORTS"),
	}

	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_DRIVER", DriverPostgres)
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "screentime")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)
	v.SetDefault("SQLITE_PATH", "./data/screentime.db")

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("CACHE_ENABLED", false)
	v.SetDefault("CACHE_TTL", "5m")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("SCORING_STARTING_POINTS", 10.0)
	v.SetDefault("SCORING_POINT_STEP", 0.5)
	v.SetDefault("SCORING_STREAK_BONUS", 0.5)
	v.SetDefault("SCORING_STREAK_BONUS_PERIOD", 30)
	v.SetDefault("SCORING_USAGE_TOLERANCE_MINUTES", 5)
	v.SetDefault("SCORING_RESET_STREAK_ON_GAP", false)
	v.SetDefault("SCORING_DEFAULT_DAILY_LIMIT", 120)

	v.SetDefault("ENABLE_SWEEP", true)
	v.SetDefault("SWEEP_WORKERS", 4)
	v.SetDefault("SWEEP_BUFFER_SIZE", 256)
	v.SetDefault("SWEEP_WORKER_RETRIES", 3)
	v.SetDefault("SWEEP_RETRY_DELAY", "1s")

	v.SetDefault("ENABLE_REPORTS", true)
}

func isMissingFile(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
