package credit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"anoa.com/promptvault/internal/entity"
	"anoa.com/promptvault/internal/metrics"
	creditDto "anoa.com/promptvault/internal/modules/credit/dto"
	creditRepo "anoa.com/promptvault/internal/modules/credit/repository"
	"anoa.com/promptvault/pkg/apperror"
	"anoa.com/promptvault/pkg/database"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Ledger is the only writer of credit balances. Every mutation locks the account
// row, writes the new balance and appends one transaction carrying the
// before/after snapshot, all in the same database transaction.
type Ledger interface {
	Earn(ctx context.Context, req creditDto.EntryRequest) (*entity.CreditTransaction, error)
	Spend(ctx context.Context, req creditDto.EntryRequest) (*entity.CreditTransaction, error)
	// EarnTx and SpendTx join the caller's transaction instead of opening one.
	EarnTx(ctx context.Context, tx *gorm.DB, req creditDto.EntryRequest) (*entity.CreditTransaction, error)
	SpendTx(ctx context.Context, tx *gorm.DB, req creditDto.EntryRequest) (*entity.CreditTransaction, error)
	Adjust(ctx context.Context, req creditDto.AdjustRequest) (*entity.CreditTransaction, error)

	Balance(ctx context.Context, userID uuid.UUID) (int64, error)
	Account(ctx context.Context, userID uuid.UUID) (*entity.CreditAccount, error)
	History(ctx context.Context, userID uuid.UUID, limit, offset int) ([]entity.CreditTransaction, error)
	Audit(ctx context.Context, userID uuid.UUID) (*creditDto.LedgerAudit, error)
}

type ledger struct {
	repo creditRepo.CreditRepository
	tx   *database.Transactor
	now  func() time.Time
}

func NewLedger(repo creditRepo.CreditRepository, tx *database.Transactor, now func() time.Time) Ledger {
	if now == nil {
		now = time.Now
	}
	return &ledger{repo: repo, tx: tx, now: now}
}

type mutation struct {
	txType entity.TransactionType
	delta  int64
	req    creditDto.EntryRequest
}

func validateEntry(req creditDto.EntryRequest) error {
	if req.UserID == uuid.Nil {
		return fmt.Errorf("user id required: %w", apperror.ErrInvalidInput)
	}
	if req.Amount <= 0 {
		return fmt.Errorf("amount must be positive: %w", apperror.ErrInvalidInput)
	}
	if strings.TrimSpace(req.Source) == "" {
		return fmt.Errorf("source required: %w", apperror.ErrInvalidInput)
	}
	return nil
}

func (l *ledger) Earn(ctx context.Context, req creditDto.EntryRequest) (*entity.CreditTransaction, error) {
	return l.inTx(ctx, func(tx *gorm.DB) (*entity.CreditTransaction, error) {
		return l.EarnTx(ctx, tx, req)
	})
}

func (l *ledger) Spend(ctx context.Context, req creditDto.EntryRequest) (*entity.CreditTransaction, error) {
	return l.inTx(ctx, func(tx *gorm.DB) (*entity.CreditTransaction, error) {
		return l.SpendTx(ctx, tx, req)
	})
}

func (l *ledger) EarnTx(ctx context.Context, tx *gorm.DB, req creditDto.EntryRequest) (*entity.CreditTransaction, error) {
	if err := validateEntry(req); err != nil {
		return nil, err
	}
	record, err := l.apply(ctx, tx, mutation{txType: entity.TxEarn, delta: req.Amount, req: req})
	metrics.LedgerOpsTotal.WithLabelValues(string(entity.TxEarn), ledgerOutcome(err)).Inc()
	return record, err
}

func (l *ledger) SpendTx(ctx context.Context, tx *gorm.DB, req creditDto.EntryRequest) (*entity.CreditTransaction, error) {
	if err := validateEntry(req); err != nil {
		return nil, err
	}
	record, err := l.apply(ctx, tx, mutation{txType: entity.TxSpend, delta: -req.Amount, req: req})
	metrics.LedgerOpsTotal.WithLabelValues(string(entity.TxSpend), ledgerOutcome(err)).Inc()
	return record, err
}

func (l *ledger) Adjust(ctx context.Context, req creditDto.AdjustRequest) (*entity.CreditTransaction, error) {
	if req.UserID == uuid.Nil || req.Delta == 0 {
		return nil, fmt.Errorf("adjustment needs a user and a non-zero delta: %w", apperror.ErrInvalidInput)
	}
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		return nil, fmt.Errorf("adjustment reason required: %w", apperror.ErrInvalidInput)
	}

	record, err := l.inTx(ctx, func(tx *gorm.DB) (*entity.CreditTransaction, error) {
		return l.apply(ctx, tx, mutation{
			txType: entity.TxAdjustment,
			delta:  req.Delta,
			req: creditDto.EntryRequest{
				UserID:      req.UserID,
				Source:      entity.SourceAdminAdjustment,
				Description: &reason,
			},
		})
	})
	metrics.LedgerOpsTotal.WithLabelValues(string(entity.TxAdjustment), ledgerOutcome(err)).Inc()
	return record, err
}

func (l *ledger) inTx(ctx context.Context, fn func(tx *gorm.DB) (*entity.CreditTransaction, error)) (*entity.CreditTransaction, error) {
	var record *entity.CreditTransaction
	err := l.tx.InTx(ctx, func(tx *gorm.DB) error {
		var err error
		record, err = fn(tx)
		return err
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}

// apply is the single read-modify-write path behind every ledger mutation.
func (l *ledger) apply(ctx context.Context, tx *gorm.DB, m mutation) (*entity.CreditTransaction, error) {
	repo := l.repo.WithTx(tx)
	userID := m.req.UserID

	if err := repo.EnsureAccount(ctx, userID, l.now().UTC()); err != nil {
		return nil, fmt.Errorf("account init failed: %w", err)
	}
	account, err := repo.LockAccount(ctx, userID)
	if err != nil {
		return nil, err
	}

	before := account.Balance
	after := before + m.delta
	if after < 0 {
		return nil, apperror.ErrInsufficientBalance
	}

	now := l.now().UTC()
	if m.delta > 0 {
		account.LifetimeEarned += m.delta
	} else {
		account.LifetimeSpent += -m.delta
	}
	account.Balance = after
	account.LastActivity = now

	if err := repo.SaveAccount(ctx, account); err != nil {
		return nil, fmt.Errorf("account update failed: %w", err)
	}

	record := &entity.CreditTransaction{
		UserID:        userID,
		Type:          m.txType,
		Amount:        m.delta,
		BalanceBefore: before,
		BalanceAfter:  after,
		Source:        m.req.Source,
		ReferenceID:   m.req.ReferenceID,
		ReferenceType: m.req.ReferenceType,
		Description:   m.req.Description,
		OnceKey:       m.req.OnceKey,
		CreatedAt:     now,
	}
	if err := repo.CreateTransaction(ctx, record); err != nil {
		return nil, fmt.Errorf("transaction insert failed: %w", err)
	}
	return record, nil
}

func ledgerOutcome(err error) string {
	if errors.Is(err, apperror.ErrInsufficientBalance) {
		return "insufficient"
	}
	return metrics.Outcome(err)
}

func (l *ledger) Balance(ctx context.Context, userID uuid.UUID) (int64, error) {
	account, err := l.Account(ctx, userID)
	if err != nil {
		return 0, err
	}
	return account.Balance, nil
}

// Account returns the user's account, creating an empty one on first access.
func (l *ledger) Account(ctx context.Context, userID uuid.UUID) (*entity.CreditAccount, error) {
	if userID == uuid.Nil {
		return nil, apperror.ErrInvalidInput
	}

	account, err := l.repo.FindAccount(ctx, userID)
	if err != nil {
		return nil, err
	}
	if account != nil {
		return account, nil
	}

	err = l.tx.InTx(ctx, func(tx *gorm.DB) error {
		repo := l.repo.WithTx(tx)
		if err := repo.EnsureAccount(ctx, userID, l.now().UTC()); err != nil {
			return err
		}
		account, err = repo.FindAccount(ctx, userID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return account, nil
}

func (l *ledger) History(ctx context.Context, userID uuid.UUID, limit, offset int) ([]entity.CreditTransaction, error) {
	if userID == uuid.Nil {
		return nil, apperror.ErrInvalidInput
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return l.repo.ListTransactions(ctx, userID, limit, offset)
}

// Audit recomputes the balance from the transaction log and walks the
// before/after chain. It never writes.
func (l *ledger) Audit(ctx context.Context, userID uuid.UUID) (*creditDto.LedgerAudit, error) {
	if userID == uuid.Nil {
		return nil, apperror.ErrInvalidInput
	}

	audit := &creditDto.LedgerAudit{UserID: userID, ChainIntact: true}
	err := l.tx.InTx(ctx, func(tx *gorm.DB) error {
		repo := l.repo.WithTx(tx)
		account, err := repo.FindAccount(ctx, userID)
		if err != nil {
			return err
		}
		if account != nil {
			audit.Balance = account.Balance
			audit.LifetimeEarned = account.LifetimeEarned
			audit.LifetimeSpent = account.LifetimeSpent
		}

		chain, err := repo.Chain(ctx, userID)
		if err != nil {
			return err
		}
		audit.Transactions = len(chain)

		var running int64
		for _, record := range chain {
			if record.BalanceBefore != running || record.BalanceAfter != record.BalanceBefore+record.Amount {
				audit.ChainIntact = false
			}
			running = record.BalanceAfter
			audit.TransactionSum += record.Amount
		}
		if running != audit.Balance {
			audit.ChainIntact = false
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	audit.Consistent = audit.ChainIntact &&
		audit.TransactionSum == audit.Balance &&
		audit.Balance == audit.LifetimeEarned-audit.LifetimeSpent
	return audit, nil
}
