package credit

import (
	"context"
	"testing"
	"time"

	"anoa.com/promptvault/internal/entity"
	"anoa.com/promptvault/internal/testutil"
	"anoa.com/promptvault/pkg/apperror"
	"github.com/stretchr/testify/require"
)

func (f *fixture) daily(loc *time.Location) DailyRewardService {
	return NewDailyRewardService(f.repo, f.tx, f.ledger, DefaultDailyBaseReward, loc, f.clock.Now)
}

func TestClaimDaily_StreakContinuesAndResets(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	user := testutil.CreateUser(t, f.db, "alice")
	svc := f.daily(time.UTC)

	day1, err := svc.ClaimDaily(ctx, user.ID)
	require.NoError(t, err)
	require.Equal(t, 1, day1.Streak)
	require.Equal(t, int64(10), day1.Reward)
	require.Nil(t, day1.StreakBonus)
	require.Equal(t, entity.SourceDailyLogin, day1.Transaction.Source)

	f.clock.Advance(24 * time.Hour)
	day2, err := svc.ClaimDaily(ctx, user.ID)
	require.NoError(t, err)
	require.Equal(t, 2, day2.Streak)
	require.Equal(t, int64(10), day2.Reward)

	// Day 3 skipped.
	f.clock.Advance(48 * time.Hour)
	day4, err := svc.ClaimDaily(ctx, user.ID)
	require.NoError(t, err)
	require.Equal(t, 1, day4.Streak)
	require.Equal(t, int64(10), day4.Reward)
	require.Equal(t, 2, day4.LongestStreak)

	balance, err := f.ledger.Balance(ctx, user.ID)
	require.NoError(t, err)
	require.Equal(t, int64(30), balance)
}

func TestClaimDaily_SameDayRejected(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	user := testutil.CreateUser(t, f.db, "alice")
	svc := f.daily(time.UTC)

	_, err := svc.ClaimDaily(ctx, user.ID)
	require.NoError(t, err)

	// Still the same calendar day, even though hours have passed.
	f.clock.Advance(14 * time.Hour)
	_, err = svc.ClaimDaily(ctx, user.ID)
	require.ErrorIs(t, err, apperror.ErrAlreadyClaimed)
	require.Equal(t, int64(1), transactionCount(t, f.db, user.ID))

	// Past midnight a fresh claim is allowed even if fewer than 24h elapsed.
	f.clock.Advance(2 * time.Hour)
	res, err := svc.ClaimDaily(ctx, user.ID)
	require.NoError(t, err)
	require.Equal(t, 2, res.Streak)
}

func TestClaimDaily_UsesReferenceTimezone(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	user := testutil.CreateUser(t, f.db, "alice")
	jakarta := time.FixedZone("WIB", 7*3600)
	svc := f.daily(jakarta)

	// 16:30 UTC is 23:30 on Mar 1 in UTC+7; 17:30 UTC is already Mar 2 there.
	f.clock.Set(time.Date(2026, 3, 1, 16, 30, 0, 0, time.UTC))
	_, err := svc.ClaimDaily(ctx, user.ID)
	require.NoError(t, err)

	f.clock.Set(time.Date(2026, 3, 1, 17, 30, 0, 0, time.UTC))
	res, err := svc.ClaimDaily(ctx, user.ID)
	require.NoError(t, err)
	require.Equal(t, 2, res.Streak)

	f.clock.Set(time.Date(2026, 3, 1, 23, 0, 0, 0, time.UTC))
	_, err = svc.ClaimDaily(ctx, user.ID)
	require.ErrorIs(t, err, apperror.ErrAlreadyClaimed)

	status, err := svc.Status(ctx, user.ID)
	require.NoError(t, err)
	require.Equal(t, "2026-03-02", status.LastClaimDate)
}

func TestClaimDaily_StreakBonusTiers(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	user := testutil.CreateUser(t, f.db, "alice")
	svc := f.daily(time.UTC)

	var week, month int64
	for day := 1; day <= 30; day++ {
		res, err := svc.ClaimDaily(ctx, user.ID)
		require.NoError(t, err)
		require.Equal(t, day, res.Streak)
		switch day {
		case 6:
			require.Nil(t, res.StreakBonus)
		case 7:
			week = res.Reward
			require.Equal(t, int64(100), *res.StreakBonus)
		case 30:
			month = res.Reward
			require.Equal(t, int64(500), *res.StreakBonus)
		}
		f.clock.Advance(24 * time.Hour)
	}
	require.Equal(t, int64(110), week)
	require.Equal(t, int64(510), month)

	requireConsistent(t, f.ledger, user.ID)
}

func TestDailyStatus(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	user := testutil.CreateUser(t, f.db, "alice")
	svc := f.daily(time.UTC)

	status, err := svc.Status(ctx, user.ID)
	require.NoError(t, err)
	require.True(t, status.CanClaim)
	require.Equal(t, int64(10), status.NextReward)

	_, err = svc.ClaimDaily(ctx, user.ID)
	require.NoError(t, err)

	status, err = svc.Status(ctx, user.ID)
	require.NoError(t, err)
	require.False(t, status.CanClaim)
	require.Equal(t, 1, status.CurrentStreak)
	require.Equal(t, 1, status.TotalDaysClaimed)
	require.Equal(t, "2026-03-01", status.LastClaimDate)
}
