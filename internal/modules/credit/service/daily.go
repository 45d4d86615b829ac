package credit

import (
	"context"
	"errors"
	"fmt"
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

const DefaultDailyBaseReward int64 = 10

// Streak tiers, highest first. Only the first matching tier pays out.
var streakTiers = []struct {
	minStreak int
	bonus     int64
}{
	{minStreak: 30, bonus: 500},
	{minStreak: 7, bonus: 100},
}

func streakBonus(streak int) int64 {
	for _, tier := range streakTiers {
		if streak >= tier.minStreak {
			return tier.bonus
		}
	}
	return 0
}

type DailyRewardService interface {
	// ClaimDaily credits the daily reward at most once per calendar day in the
	// reward clock's timezone. The streak update and the credit commit together.
	ClaimDaily(ctx context.Context, userID uuid.UUID) (*creditDto.DailyRewardResult, error)
	Status(ctx context.Context, userID uuid.UUID) (*creditDto.DailyRewardStatus, error)
}

type dailyRewardService struct {
	repo       creditRepo.CreditRepository
	tx         *database.Transactor
	ledger     Ledger
	baseReward int64
	loc        *time.Location
	now        func() time.Time
}

func NewDailyRewardService(repo creditRepo.CreditRepository, tx *database.Transactor, ledger Ledger, baseReward int64, loc *time.Location, now func() time.Time) DailyRewardService {
	if baseReward <= 0 {
		baseReward = DefaultDailyBaseReward
	}
	if loc == nil {
		loc = time.UTC
	}
	if now == nil {
		now = time.Now
	}
	return &dailyRewardService{
		repo:       repo,
		tx:         tx,
		ledger:     ledger,
		baseReward: baseReward,
		loc:        loc,
		now:        now,
	}
}

func (s *dailyRewardService) today() string {
	return s.now().In(s.loc).Format(time.DateOnly)
}

// daysSince returns the calendar-day distance from last to today, or -1 when
// there is no previous claim.
func daysSince(last, today string) (int, error) {
	if last == "" {
		return -1, nil
	}
	from, err := time.Parse(time.DateOnly, last)
	if err != nil {
		return 0, fmt.Errorf("bad last claim date %q: %w", last, err)
	}
	to, err := time.Parse(time.DateOnly, today)
	if err != nil {
		return 0, err
	}
	return int(to.Sub(from).Hours() / 24), nil
}

// nextStreak is the streak a claim made today would produce.
func nextStreak(current, days int) int {
	if days == 1 {
		return current + 1
	}
	return 1
}

func (s *dailyRewardService) ClaimDaily(ctx context.Context, userID uuid.UUID) (*creditDto.DailyRewardResult, error) {
	if userID == uuid.Nil {
		return nil, apperror.ErrInvalidInput
	}

	var result *creditDto.DailyRewardResult
	err := s.tx.InTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.EnsureDailyReward(ctx, userID); err != nil {
			return err
		}
		state, err := repo.LockDailyReward(ctx, userID)
		if err != nil {
			return err
		}

		today := s.today()
		days, err := daysSince(state.LastClaimDate, today)
		if err != nil {
			return err
		}
		// A clock running behind the stored date counts as the same day.
		if state.LastClaimDate != "" && days <= 0 {
			return apperror.ErrAlreadyClaimed
		}

		state.CurrentStreak = nextStreak(state.CurrentStreak, days)
		if state.CurrentStreak > state.LongestStreak {
			state.LongestStreak = state.CurrentStreak
		}
		state.TotalDaysClaimed++
		state.LastClaimDate = today

		if err := repo.SaveDailyReward(ctx, state); err != nil {
			return err
		}

		bonus := streakBonus(state.CurrentStreak)
		description := fmt.Sprintf("Daily login reward - day %d streak", state.CurrentStreak)
		record, err := s.ledger.EarnTx(ctx, tx, creditDto.EntryRequest{
			UserID:      userID,
			Amount:      s.baseReward + bonus,
			Source:      entity.SourceDailyLogin,
			Description: &description,
		})
		if err != nil {
			return err
		}

		result = &creditDto.DailyRewardResult{
			Reward:        record.Amount,
			Streak:        state.CurrentStreak,
			LongestStreak: state.LongestStreak,
			Transaction:   record,
		}
		if bonus > 0 {
			result.StreakBonus = &bonus
		}
		return nil
	})

	switch {
	case err == nil:
		metrics.DailyClaimsTotal.WithLabelValues("ok").Inc()
	case errors.Is(err, apperror.ErrAlreadyClaimed):
		metrics.DailyClaimsTotal.WithLabelValues("already_claimed").Inc()
	default:
		metrics.DailyClaimsTotal.WithLabelValues("error").Inc()
	}
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *dailyRewardService) Status(ctx context.Context, userID uuid.UUID) (*creditDto.DailyRewardStatus, error) {
	if userID == uuid.Nil {
		return nil, apperror.ErrInvalidInput
	}

	state, err := s.repo.FindDailyReward(ctx, userID)
	if err != nil {
		return nil, err
	}
	if state == nil {
		state = &entity.DailyReward{UserID: userID}
	}

	days, err := daysSince(state.LastClaimDate, s.today())
	if err != nil {
		return nil, err
	}

	status := &creditDto.DailyRewardStatus{
		CanClaim:         state.LastClaimDate == "" || days > 0,
		CurrentStreak:    state.CurrentStreak,
		LongestStreak:    state.LongestStreak,
		TotalDaysClaimed: state.TotalDaysClaimed,
		LastClaimDate:    state.LastClaimDate,
	}

	// Already claimed today: quote tomorrow's reward for a kept streak.
	next := nextStreak(state.CurrentStreak, days)
	if !status.CanClaim {
		next = state.CurrentStreak + 1
	}
	status.NextReward = s.baseReward + streakBonus(next)
	return status, nil
}
