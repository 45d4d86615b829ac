package credit

import (
	"context"
	"fmt"
	"strings"

	"anoa.com/promptvault/internal/entity"
	"anoa.com/promptvault/internal/metrics"
	creditDto "anoa.com/promptvault/internal/modules/credit/dto"
	creditRepo "anoa.com/promptvault/internal/modules/credit/repository"
	"anoa.com/promptvault/pkg/apperror"
	"anoa.com/promptvault/pkg/database"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// EligibilityFunc decides whether a user qualifies for a bonus. It runs inside the
// grant's transaction and must read through tx.
type EligibilityFunc func(ctx context.Context, tx *gorm.DB, userID uuid.UUID) (bool, error)

type bonusRule struct {
	amount   int64
	eligible EligibilityFunc
}

type BonusService interface {
	// CheckAndGrant credits amount under source kind unless the user already has a
	// transaction from that source. Returns whether this call granted it.
	CheckAndGrant(ctx context.Context, userID uuid.UUID, kind string, eligible EligibilityFunc, amount int64) (bool, error)
	// GrantOnceIfEligible runs CheckAndGrant with the registered rule for kind.
	GrantOnceIfEligible(ctx context.Context, userID uuid.UUID, kind string) (bool, error)
}

type bonusService struct {
	repo   creditRepo.CreditRepository
	tx     *database.Transactor
	ledger Ledger
	rules  map[string]bonusRule
}

func NewBonusService(repo creditRepo.CreditRepository, tx *database.Transactor, ledger Ledger) BonusService {
	s := &bonusService{repo: repo, tx: tx, ledger: ledger}
	s.rules = map[string]bonusRule{
		entity.SourceFirstPublicPrompt: {amount: 50, eligible: s.hasPublicPrompt},
		entity.SourceProfileCompletion: {amount: 25, eligible: s.hasCompleteProfile},
	}
	return s
}

func (s *bonusService) GrantOnceIfEligible(ctx context.Context, userID uuid.UUID, kind string) (bool, error) {
	rule, ok := s.rules[kind]
	if !ok {
		return false, fmt.Errorf("unknown bonus %q: %w", kind, apperror.ErrInvalidInput)
	}
	return s.CheckAndGrant(ctx, userID, kind, rule.eligible, rule.amount)
}

func (s *bonusService) CheckAndGrant(ctx context.Context, userID uuid.UUID, kind string, eligible EligibilityFunc, amount int64) (bool, error) {
	if userID == uuid.Nil || kind == "" || eligible == nil || amount <= 0 {
		return false, apperror.ErrInvalidInput
	}

	outcome := "granted"
	err := s.tx.InTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		already, err := repo.HasSource(ctx, userID, kind)
		if err != nil {
			return err
		}
		if already {
			outcome = "already_granted"
			return nil
		}

		ok, err := eligible(ctx, tx, userID)
		if err != nil {
			return err
		}
		if !ok {
			outcome = "ineligible"
			return nil
		}

		onceKey := kind
		err = database.Savepoint(tx, func(sp *gorm.DB) error {
			_, err := s.ledger.EarnTx(ctx, sp, creditDto.EntryRequest{
				UserID:  userID,
				Amount:  amount,
				Source:  kind,
				OnceKey: &onceKey,
			})
			return err
		})
		if database.IsUniqueViolation(err) {
			// A concurrent call committed the grant first.
			outcome = "already_granted"
			return nil
		}
		return err
	})
	if err != nil {
		metrics.BonusGrantsTotal.WithLabelValues(kind, "error").Inc()
		return false, err
	}

	metrics.BonusGrantsTotal.WithLabelValues(kind, outcome).Inc()
	return outcome == "granted", nil
}

func (s *bonusService) hasPublicPrompt(ctx context.Context, tx *gorm.DB, userID uuid.UUID) (bool, error) {
	count, err := s.repo.WithTx(tx).CountPublicPrompts(ctx, userID)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (s *bonusService) hasCompleteProfile(ctx context.Context, tx *gorm.DB, userID uuid.UUID) (bool, error) {
	user, err := s.repo.WithTx(tx).FindUserWithProfile(ctx, userID)
	if err != nil {
		return false, err
	}
	if strings.TrimSpace(user.Username) == "" || user.Profile == nil {
		return false, nil
	}
	bio := user.Profile.Bio
	return bio != nil && strings.TrimSpace(*bio) != "" && user.Profile.HasSocialLink(), nil
}
