package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"
	"time"

	"anoa.com/promptvault/pkg/apperror"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type counter struct {
	ID    uint   `gorm:"primaryKey"`
	Name  string `gorm:"uniqueIndex"`
	Value int
}

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(&counter{}))
	return db
}

func TestClassify(t *testing.T) {
	require.NoError(t, Classify(nil))

	business := fmt.Errorf("spend: %w", apperror.ErrInsufficientBalance)
	require.Same(t, business, Classify(business))

	serialization := &pgconn.PgError{Code: "40001"}
	require.True(t, apperror.IsRetryable(Classify(serialization)))
	require.ErrorIs(t, Classify(serialization), serialization)

	deadlock := fmt.Errorf("update: %w", &pgconn.PgError{Code: "40P01"})
	require.True(t, apperror.IsRetryable(Classify(deadlock)))

	unique := &pgconn.PgError{Code: "23505"}
	require.True(t, IsUniqueViolation(unique))
	require.True(t, IsUniqueViolation(gorm.ErrDuplicatedKey))
	require.True(t, apperror.IsRetryable(Classify(unique)))

	other := errors.New("syntax error")
	require.Same(t, other, Classify(other))
}

func TestInTx_RollsBackOnError(t *testing.T) {
	db := openTestDB(t)
	tr := NewTransactor(db, sql.LevelDefault)

	err := tr.InTx(context.Background(), func(tx *gorm.DB) error {
		if err := tx.Create(&counter{Name: "a", Value: 1}).Error; err != nil {
			return err
		}
		return apperror.ErrNotFound
	})
	require.ErrorIs(t, err, apperror.ErrNotFound)

	var count int64
	require.NoError(t, db.Model(&counter{}).Count(&count).Error)
	require.Zero(t, count)
}

func TestSavepoint_AbsorbsUniqueViolation(t *testing.T) {
	db := openTestDB(t)
	tr := NewTransactor(db, sql.LevelDefault)
	require.NoError(t, db.Create(&counter{Name: "taken"}).Error)

	err := tr.InTx(context.Background(), func(tx *gorm.DB) error {
		spErr := Savepoint(tx, func(sp *gorm.DB) error {
			return sp.Create(&counter{Name: "taken"}).Error
		})
		require.True(t, IsUniqueViolation(spErr))
		return tx.Create(&counter{Name: "fresh"}).Error
	})
	require.NoError(t, err)

	var count int64
	require.NoError(t, db.Model(&counter{}).Count(&count).Error)
	require.Equal(t, int64(2), count)
}

func TestInTx_LeakedUniqueViolationIsConflict(t *testing.T) {
	db := openTestDB(t)
	tr := NewTransactor(db, sql.LevelDefault)
	require.NoError(t, db.Create(&counter{Name: "taken"}).Error)

	err := tr.InTx(context.Background(), func(tx *gorm.DB) error {
		return tx.Create(&counter{Name: "taken"}).Error
	})
	require.True(t, apperror.IsRetryable(err))
}

func TestRetry(t *testing.T) {
	ctx := context.Background()

	calls := 0
	err := Retry(ctx, 3, time.Millisecond, func() error {
		calls++
		if calls < 3 {
			return apperror.ErrConflict
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 3, calls)

	calls = 0
	err = Retry(ctx, 5, time.Millisecond, func() error {
		calls++
		return apperror.ErrAlreadyClaimed
	})
	require.ErrorIs(t, err, apperror.ErrAlreadyClaimed)
	require.Equal(t, 1, calls)

	calls = 0
	err = Retry(ctx, 3, time.Millisecond, func() error {
		calls++
		return apperror.ErrConflict
	})
	require.ErrorIs(t, err, apperror.ErrConflict)
	require.Equal(t, 3, calls)

	canceled, cancel := context.WithCancel(ctx)
	cancel()
	calls = 0
	err = Retry(canceled, 5, time.Second, func() error {
		calls++
		return apperror.ErrConflict
	})
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 1, calls)
}
