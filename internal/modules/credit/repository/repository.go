package repository

import (
	"context"
	"errors"
	"time"

	"anoa.com/promptvault/internal/entity"
	"anoa.com/promptvault/pkg/apperror"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type CreditRepository interface {
	WithTx(tx *gorm.DB) CreditRepository

	// EnsureAccount inserts a zero account unless one exists.
	EnsureAccount(ctx context.Context, userID uuid.UUID, now time.Time) error
	LockAccount(ctx context.Context, userID uuid.UUID) (*entity.CreditAccount, error)
	// FindAccount returns nil when the user has no account yet.
	FindAccount(ctx context.Context, userID uuid.UUID) (*entity.CreditAccount, error)
	SaveAccount(ctx context.Context, account *entity.CreditAccount) error
	AccountUserIDs(ctx context.Context) ([]uuid.UUID, error)

	CreateTransaction(ctx context.Context, record *entity.CreditTransaction) error
	ListTransactions(ctx context.Context, userID uuid.UUID, limit, offset int) ([]entity.CreditTransaction, error)
	// Chain returns every transaction of the user, oldest first.
	Chain(ctx context.Context, userID uuid.UUID) ([]entity.CreditTransaction, error)
	// HasSource reports whether the user was ever credited from source.
	HasSource(ctx context.Context, userID uuid.UUID, source string) (bool, error)

	EnsureDailyReward(ctx context.Context, userID uuid.UUID) error
	LockDailyReward(ctx context.Context, userID uuid.UUID) (*entity.DailyReward, error)
	FindDailyReward(ctx context.Context, userID uuid.UUID) (*entity.DailyReward, error)
	SaveDailyReward(ctx context.Context, state *entity.DailyReward) error

	CountPublicPrompts(ctx context.Context, userID uuid.UUID) (int64, error)
	FindUserWithProfile(ctx context.Context, userID uuid.UUID) (*entity.User, error)
}

type creditRepository struct {
	db *gorm.DB
}

func NewCreditRepository(db *gorm.DB) CreditRepository {
	return &creditRepository{db: db}
}

func (r *creditRepository) WithTx(tx *gorm.DB) CreditRepository {
	return &creditRepository{db: tx}
}

func (r *creditRepository) EnsureAccount(ctx context.Context, userID uuid.UUID, now time.Time) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&entity.CreditAccount{UserID: userID, LastActivity: now}).Error
}

func (r *creditRepository) LockAccount(ctx context.Context, userID uuid.UUID) (*entity.CreditAccount, error) {
	var account entity.CreditAccount
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ?", userID).
		First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperror.ErrNotFound
		}
		return nil, err
	}
	return &account, nil
}

func (r *creditRepository) FindAccount(ctx context.Context, userID uuid.UUID) (*entity.CreditAccount, error) {
	var accounts []entity.CreditAccount
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).Limit(1).Find(&accounts).Error; err != nil {
		return nil, err
	}
	if len(accounts) == 0 {
		return nil, nil
	}
	return &accounts[0], nil
}

func (r *creditRepository) SaveAccount(ctx context.Context, account *entity.CreditAccount) error {
	return r.db.WithContext(ctx).Model(account).
		Select("balance", "lifetime_earned", "lifetime_spent", "last_activity").
		Updates(account).Error
}

func (r *creditRepository) AccountUserIDs(ctx context.Context) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.WithContext(ctx).Model(&entity.CreditAccount{}).
		Order("user_id ASC").
		Pluck("user_id", &ids).Error
	return ids, err
}

func (r *creditRepository) CreateTransaction(ctx context.Context, record *entity.CreditTransaction) error {
	return r.db.WithContext(ctx).Create(record).Error
}

func (r *creditRepository) ListTransactions(ctx context.Context, userID uuid.UUID, limit, offset int) ([]entity.CreditTransaction, error) {
	var records []entity.CreditTransaction
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Offset(offset).
		Find(&records).Error
	return records, err
}

func (r *creditRepository) Chain(ctx context.Context, userID uuid.UUID) ([]entity.CreditTransaction, error) {
	var records []entity.CreditTransaction
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at ASC, id ASC").
		Find(&records).Error
	return records, err
}

func (r *creditRepository) HasSource(ctx context.Context, userID uuid.UUID, source string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&entity.CreditTransaction{}).
		Where("user_id = ? AND type = ? AND source = ?", userID, entity.TxEarn, source).
		Limit(1).
		Count(&count).Error
	return count > 0, err
}

func (r *creditRepository) EnsureDailyReward(ctx context.Context, userID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&entity.DailyReward{UserID: userID}).Error
}

func (r *creditRepository) LockDailyReward(ctx context.Context, userID uuid.UUID) (*entity.DailyReward, error) {
	var state entity.DailyReward
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ?", userID).
		First(&state).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperror.ErrNotFound
		}
		return nil, err
	}
	return &state, nil
}

func (r *creditRepository) FindDailyReward(ctx context.Context, userID uuid.UUID) (*entity.DailyReward, error) {
	var states []entity.DailyReward
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).Limit(1).Find(&states).Error; err != nil {
		return nil, err
	}
	if len(states) == 0 {
		return nil, nil
	}
	return &states[0], nil
}

func (r *creditRepository) SaveDailyReward(ctx context.Context, state *entity.DailyReward) error {
	return r.db.WithContext(ctx).Model(state).
		Select("last_claim_date", "current_streak", "longest_streak", "total_days_claimed").
		Updates(state).Error
}

func (r *creditRepository) CountPublicPrompts(ctx context.Context, userID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&entity.Prompt{}).
		Where("user_id = ? AND is_public = ?", userID, true).
		Count(&count).Error
	return count, err
}

func (r *creditRepository) FindUserWithProfile(ctx context.Context, userID uuid.UUID) (*entity.User, error) {
	var user entity.User
	err := r.db.WithContext(ctx).Preload("Profile").Where("id = ?", userID).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperror.ErrNotFound
		}
		return nil, err
	}
	return &user, nil
}
