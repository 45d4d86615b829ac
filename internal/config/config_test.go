package config

import (
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("APP_ENV", "test")
	t.Setenv("DATABASE_URL", "")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "8080", cfg.Port)
	require.Equal(t, sql.LevelReadCommitted, cfg.DBTxIsolation)
	require.Equal(t, 5*time.Second, cfg.NotificationDedupWindow)
	require.Equal(t, int64(10), cfg.DailyBaseReward)
	require.Equal(t, "UTC", cfg.DailyRewardLocation.String())
	require.Equal(t, "@daily", cfg.ReconcileSchedule)
	require.Contains(t, cfg.DSN(), "dbname=promptvault")
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("APP_ENV", "test")
	t.Setenv("DATABASE_URL", "postgres://u:p@db:5432/x")
	t.Setenv("DB_TX_ISOLATION", "serializable")
	t.Setenv("DAILY_REWARD_TZ", "Asia/Jakarta")
	t.Setenv("NOTIFICATION_DEDUP_WINDOW", "2s")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "postgres://u:p@db:5432/x", cfg.DSN())
	require.Equal(t, sql.LevelSerializable, cfg.DBTxIsolation)
	require.Equal(t, "Asia/Jakarta", cfg.DailyRewardLocation.String())
	require.Equal(t, 2*time.Second, cfg.NotificationDedupWindow)
}

func TestLoad_Invalid(t *testing.T) {
	t.Setenv("APP_ENV", "test")

	t.Run("isolation", func(t *testing.T) {
		t.Setenv("DB_TX_ISOLATION", "chaos")
		_, err := Load()
		require.Error(t, err)
	})

	t.Run("base_reward", func(t *testing.T) {
		t.Setenv("DAILY_BASE_REWARD", "-3")
		_, err := Load()
		require.Error(t, err)
	})

	t.Run("production_without_secret", func(t *testing.T) {
		t.Setenv("APP_ENV", "production")
		t.Setenv("JWT_SECRET", "")
		_, err := Load()
		require.Error(t, err)
	})
}
