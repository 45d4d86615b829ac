package config

import (
	"database/sql"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	AppEnv         string
	Port           string
	AllowedOrigins string
	JWTSecret      string

	DatabaseURL    string
	DBHost         string
	DBUser         string
	DBPass         string
	DBName         string
	DBPort         string
	DBMaxOpenConns int
	DBTxIsolation  sql.IsolationLevel

	RedisURL        string
	CounterCacheTTL time.Duration

	DailyRewardLocation     *time.Location
	DailyBaseReward         int64
	NotificationDedupWindow time.Duration

	ReconcileSchedule string
}

func Load() (*Config, error) {
	// Don't fail if .env doesn't exist (might be prod env vars)
	_ = godotenv.Load()

	cfg := &Config{
		AppEnv:         getEnv("APP_ENV", "development"),
		Port:           getEnv("PORT", "8080"),
		AllowedOrigins: getEnv("ALLOWED_ORIGINS", "http://localhost:3000"),
		JWTSecret:      os.Getenv("JWT_SECRET"),

		DatabaseURL: os.Getenv("DATABASE_URL"),
		DBHost:      getEnv("DB_HOST", "localhost"),
		DBUser:      getEnv("DB_USER", "postgres"),
		DBPass:      os.Getenv("DB_PASS"),
		DBName:      getEnv("DB_NAME", "promptvault"),
		DBPort:      getEnv("DB_PORT", "5432"),

		RedisURL: os.Getenv("REDIS_URL"),

		ReconcileSchedule: getEnv("RECONCILE_SCHEDULE", "@daily"),
	}

	if cfg.JWTSecret == "" {
		if cfg.AppEnv == "production" {
			return nil, fmt.Errorf("JWT_SECRET is required in production")
		}
		cfg.JWTSecret = "12345"
	}

	var err error
	cfg.DBMaxOpenConns, err = strconv.Atoi(getEnv("DB_MAX_OPEN_CONNS", "25"))
	if err != nil {
		return nil, fmt.Errorf("invalid DB_MAX_OPEN_CONNS: %w", err)
	}
	cfg.DBTxIsolation, err = parseIsolation(getEnv("DB_TX_ISOLATION", "read_committed"))
	if err != nil {
		return nil, err
	}
	cfg.CounterCacheTTL, err = parseDuration(getEnv("COUNTER_CACHE_TTL", "168h"))
	if err != nil {
		return nil, fmt.Errorf("invalid COUNTER_CACHE_TTL: %w", err)
	}
	cfg.NotificationDedupWindow, err = parseDuration(getEnv("NOTIFICATION_DEDUP_WINDOW", "5s"))
	if err != nil {
		return nil, fmt.Errorf("invalid NOTIFICATION_DEDUP_WINDOW: %w", err)
	}
	cfg.DailyBaseReward, err = strconv.ParseInt(getEnv("DAILY_BASE_REWARD", "10"), 10, 64)
	if err != nil || cfg.DailyBaseReward <= 0 {
		return nil, fmt.Errorf("invalid DAILY_BASE_REWARD: must be a positive integer")
	}
	cfg.DailyRewardLocation, err = time.LoadLocation(getEnv("DAILY_REWARD_TZ", "UTC"))
	if err != nil {
		return nil, fmt.Errorf("invalid DAILY_REWARD_TZ: %w", err)
	}

	return cfg, nil
}

// DSN returns DATABASE_URL when set, otherwise a DSN assembled from the DB_* parts.
func (c *Config) DSN() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=disable",
		c.DBHost, c.DBUser, c.DBPass, c.DBName, c.DBPort,
	)
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func parseDuration(s string) (time.Duration, error) {
	return time.ParseDuration(s)
}

func parseIsolation(s string) (sql.IsolationLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "read_committed", "":
		return sql.LevelReadCommitted, nil
	case "repeatable_read":
		return sql.LevelRepeatableRead, nil
	case "serializable":
		return sql.LevelSerializable, nil
	default:
		return sql.LevelDefault, fmt.Errorf("invalid DB_TX_ISOLATION %q", s)
	}
}
