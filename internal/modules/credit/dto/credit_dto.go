package dto

import (
	"anoa.com/promptvault/internal/entity"
	"github.com/google/uuid"
)

// EntryRequest describes one earn or spend. UserID is filled from the token on
// member routes and from the body on admin routes.
type EntryRequest struct {
	UserID        uuid.UUID `json:"user_id"`
	Amount        int64     `json:"amount" binding:"required,gt=0"`
	Source        string    `json:"source" binding:"required,max=50"`
	Description   *string   `json:"description,omitempty" binding:"omitempty,max=500"`
	ReferenceID   *string   `json:"reference_id,omitempty" binding:"omitempty,max=64"`
	ReferenceType *string   `json:"reference_type,omitempty" binding:"omitempty,max=50"`
	// OnceKey marks a grant that may exist at most once per user.
	OnceKey *string `json:"-"`
}

type AdminEarnRequest struct {
	UserID        uuid.UUID `json:"user_id" binding:"required"`
	Amount        int64     `json:"amount" binding:"required,gt=0"`
	Source        string    `json:"source" binding:"required,max=50"`
	Description   *string   `json:"description,omitempty" binding:"omitempty,max=500"`
	ReferenceID   *string   `json:"reference_id,omitempty" binding:"omitempty,max=64"`
	ReferenceType *string   `json:"reference_type,omitempty" binding:"omitempty,max=50"`
}

type AdjustRequest struct {
	UserID uuid.UUID `json:"user_id" binding:"required"`
	Delta  int64     `json:"delta" binding:"required,ne=0"`
	Reason string    `json:"reason" binding:"required,max=500"`
}

type BalanceResponse struct {
	UserID  uuid.UUID `json:"user_id"`
	Balance int64     `json:"balance"`
}

type TransactionListResponse struct {
	Data   []entity.CreditTransaction `json:"data"`
	Limit  int                        `json:"limit"`
	Offset int                        `json:"offset"`
}

// LedgerAudit compares an account against its transaction history.
type LedgerAudit struct {
	UserID         uuid.UUID `json:"user_id"`
	Balance        int64     `json:"balance"`
	LifetimeEarned int64     `json:"lifetime_earned"`
	LifetimeSpent  int64     `json:"lifetime_spent"`
	TransactionSum int64     `json:"transaction_sum"`
	Transactions   int       `json:"transactions"`
	ChainIntact    bool      `json:"chain_intact"`
	Consistent     bool      `json:"consistent"`
}

type DailyRewardResult struct {
	Reward        int64                     `json:"reward"`
	Streak        int                       `json:"streak"`
	StreakBonus   *int64                    `json:"streak_bonus,omitempty"`
	LongestStreak int                       `json:"longest_streak"`
	Transaction   *entity.CreditTransaction `json:"transaction"`
}

type DailyRewardStatus struct {
	CanClaim         bool   `json:"can_claim"`
	CurrentStreak    int    `json:"current_streak"`
	LongestStreak    int    `json:"longest_streak"`
	TotalDaysClaimed int    `json:"total_days_claimed"`
	LastClaimDate    string `json:"last_claim_date,omitempty"`
	NextReward       int64  `json:"next_reward"`
}

type BonusResponse struct {
	Kind    string `json:"kind"`
	Granted bool   `json:"granted"`
}
