package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"anoa.com/promptvault/pkg/apperror"
	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// SQLSTATE codes the transaction boundary classifies.
const (
	pgUniqueViolation      = "23505"
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
)

// Transactor is the unit-of-work boundary. Everything that must commit atomically
// runs inside one InTx callback and uses only the tx handed to it.
type Transactor struct {
	db   *gorm.DB
	opts *sql.TxOptions
}

// NewTransactor binds the handle to an isolation level. sql.LevelDefault leaves the
// engine default in place (used by engines that reject explicit levels).
func NewTransactor(db *gorm.DB, isolation sql.IsolationLevel) *Transactor {
	t := &Transactor{db: db}
	if isolation != sql.LevelDefault {
		t.opts = &sql.TxOptions{Isolation: isolation}
	}
	return t
}

func (t *Transactor) DB() *gorm.DB {
	return t.db
}

// InTx runs fn in a transaction. Any error rolls everything back. Serialization
// failures, deadlocks and uniqueness races that escaped fn come back wrapped in
// apperror.ErrConflict; business errors are returned untouched.
func (t *Transactor) InTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	var err error
	if t.opts != nil {
		err = t.db.WithContext(ctx).Transaction(fn, t.opts)
	} else {
		err = t.db.WithContext(ctx).Transaction(fn)
	}
	return Classify(err)
}

// Savepoint runs fn in a nested transaction so a failing statement can be rolled
// back without aborting the enclosing one.
func Savepoint(tx *gorm.DB, fn func(sp *gorm.DB) error) error {
	return tx.Transaction(fn)
}

// Classify maps driver failures onto the apperror taxonomy.
func Classify(err error) error {
	if err == nil || apperror.IsBusiness(err) || errors.Is(err, apperror.ErrConflict) {
		return err
	}
	if IsRetryable(err) || IsUniqueViolation(err) {
		return fmt.Errorf("%w: %w", apperror.ErrConflict, err)
	}
	return err
}

func IsUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	return pgCode(err) == pgUniqueViolation
}

func IsRetryable(err error) bool {
	code := pgCode(err)
	return code == pgSerializationFailure || code == pgDeadlockDetected
}

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

// Retry re-runs fn with exponential backoff while it fails with a retryable error,
// at most attempts times in total. Business errors and unexpected failures return
// immediately.
func Retry(ctx context.Context, attempts int, initial time.Duration, fn func() error) error {
	if attempts < 1 {
		attempts = 1
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = initial
	policy.MaxElapsedTime = 0

	op := func() error {
		err := fn()
		if err != nil && !apperror.IsRetryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	return backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(policy, uint64(attempts-1)), ctx))
}
