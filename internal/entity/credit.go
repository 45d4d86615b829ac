package entity

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// TransactionType is the accounting side of a credit mutation.
type TransactionType string

const (
	TxEarn       TransactionType = "earn"
	TxSpend      TransactionType = "spend"
	TxAdjustment TransactionType = "adjustment"
)

// Well-known transaction sources.
const (
	SourceDailyLogin        = "daily_login"
	SourcePurchase          = "purchase"
	SourceAdminAdjustment   = "admin_adjustment"
	SourceFirstPublicPrompt = "first_public_prompt"
	SourceProfileCompletion = "profile_completion"
)

// ReservedSource reports whether source is written only by the platform itself
// (rewards, bonuses, admin adjustments) and may not be chosen by a member.
func ReservedSource(source string) bool {
	switch strings.ToLower(strings.TrimSpace(source)) {
	case SourceDailyLogin, SourceAdminAdjustment, SourceFirstPublicPrompt, SourceProfileCompletion:
		return true
	}
	return false
}

// CreditAccount holds the running balance. Balance == LifetimeEarned - LifetimeSpent
// and Balance >= 0 at every committed state.
type CreditAccount struct {
	UserID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"user_id"`
	Balance        int64     `gorm:"not null;default:0" json:"balance"`
	LifetimeEarned int64     `gorm:"not null;default:0" json:"lifetime_earned"`
	LifetimeSpent  int64     `gorm:"not null;default:0" json:"lifetime_spent"`
	LastActivity   time.Time `json:"last_activity"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (a *CreditAccount) TableName() string {
	return "credit_accounts"
}

// CreditTransaction is append-only. BalanceAfter of one row equals BalanceBefore of
// the next row for the same user.
type CreditTransaction struct {
	ID            uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	UserID        uuid.UUID       `gorm:"type:uuid;not null;index:idx_credit_tx_user_created,priority:1;index:idx_credit_tx_user_source,priority:1;uniqueIndex:idx_credit_tx_once,priority:1" json:"user_id"`
	Type          TransactionType `gorm:"size:20;not null" json:"type"`
	Amount        int64           `gorm:"not null" json:"amount"`
	BalanceBefore int64           `gorm:"not null" json:"balance_before"`
	BalanceAfter  int64           `gorm:"not null" json:"balance_after"`
	Source        string          `gorm:"size:50;not null;index:idx_credit_tx_user_source,priority:2" json:"source"`
	ReferenceID   *string         `gorm:"size:64" json:"reference_id,omitempty"`
	ReferenceType *string         `gorm:"size:50" json:"reference_type,omitempty"`
	Description   *string         `gorm:"type:text" json:"description,omitempty"`
	// OnceKey is set only for bonuses that may be granted at most once per user.
	OnceKey   *string   `gorm:"size:50;uniqueIndex:idx_credit_tx_once,priority:2" json:"-"`
	CreatedAt time.Time `gorm:"index:idx_credit_tx_user_created,priority:2" json:"created_at"`
}

func (t *CreditTransaction) TableName() string {
	return "credit_transactions"
}

func (t *CreditTransaction) BeforeCreate(tx *gorm.DB) (err error) {
	if t.ID == uuid.Nil {
		t.ID, err = uuid.NewV7()
	}
	return
}

// DailyReward is the per-user streak state. LastClaimDate is a calendar date
// (time.DateOnly) in the reward clock's reference timezone, empty before the first claim.
type DailyReward struct {
	UserID           uuid.UUID `gorm:"type:uuid;primaryKey" json:"user_id"`
	LastClaimDate    string    `gorm:"size:10;not null;default:''" json:"last_claim_date"`
	CurrentStreak    int       `gorm:"not null;default:0" json:"current_streak"`
	LongestStreak    int       `gorm:"not null;default:0" json:"longest_streak"`
	TotalDaysClaimed int       `gorm:"not null;default:0" json:"total_days_claimed"`
	UpdatedAt        time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (d *DailyReward) TableName() string {
	return "daily_rewards"
}
