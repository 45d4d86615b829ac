package credit

import (
	"context"
	"sync"
	"testing"

	"anoa.com/promptvault/internal/entity"
	"anoa.com/promptvault/internal/testutil"
	"anoa.com/promptvault/pkg/apperror"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func (f *fixture) bonuses() BonusService {
	return NewBonusService(f.repo, f.tx, f.ledger)
}

func always(context.Context, *gorm.DB, uuid.UUID) (bool, error) { return true, nil }

func TestGrantOnce_FirstPublicPrompt(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	user := testutil.CreateUser(t, f.db, "alice")
	svc := f.bonuses()

	testutil.CreatePrompt(t, f.db, user.ID, false)
	granted, err := svc.GrantOnceIfEligible(ctx, user.ID, entity.SourceFirstPublicPrompt)
	require.NoError(t, err)
	require.False(t, granted)
	require.Zero(t, transactionCount(t, f.db, user.ID))

	testutil.CreatePrompt(t, f.db, user.ID, true)
	granted, err = svc.GrantOnceIfEligible(ctx, user.ID, entity.SourceFirstPublicPrompt)
	require.NoError(t, err)
	require.True(t, granted)

	granted, err = svc.GrantOnceIfEligible(ctx, user.ID, entity.SourceFirstPublicPrompt)
	require.NoError(t, err)
	require.False(t, granted)

	balance, err := f.ledger.Balance(ctx, user.ID)
	require.NoError(t, err)
	require.Equal(t, int64(50), balance)
}

func TestGrantOnce_IgnoresSpendsUnderBonusSource(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	user := testutil.CreateUser(t, f.db, "alice")
	svc := f.bonuses()

	_, err := f.ledger.Earn(ctx, entry(user.ID, 20, entity.SourcePurchase))
	require.NoError(t, err)
	_, err = f.ledger.Spend(ctx, entry(user.ID, 5, entity.SourceFirstPublicPrompt))
	require.NoError(t, err)

	testutil.CreatePrompt(t, f.db, user.ID, true)
	granted, err := svc.GrantOnceIfEligible(ctx, user.ID, entity.SourceFirstPublicPrompt)
	require.NoError(t, err)
	require.True(t, granted)

	balance, err := f.ledger.Balance(ctx, user.ID)
	require.NoError(t, err)
	require.Equal(t, int64(65), balance)
}

func TestGrantOnce_ProfileCompletion(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	user := testutil.CreateUser(t, f.db, "alice")
	svc := f.bonuses()

	bio := "Prompt engineer"
	profile := &entity.Profile{UserID: user.ID, FullName: "Alice", Bio: &bio}
	require.NoError(t, f.db.Create(profile).Error)

	granted, err := svc.GrantOnceIfEligible(ctx, user.ID, entity.SourceProfileCompletion)
	require.NoError(t, err)
	require.False(t, granted, "no social link yet")

	github := "alice"
	require.NoError(t, f.db.Model(profile).Update("github", github).Error)

	granted, err = svc.GrantOnceIfEligible(ctx, user.ID, entity.SourceProfileCompletion)
	require.NoError(t, err)
	require.True(t, granted)

	balance, err := f.ledger.Balance(ctx, user.ID)
	require.NoError(t, err)
	require.Equal(t, int64(25), balance)
}

func TestGrantOnce_UnknownKind(t *testing.T) {
	f := setup(t)
	_, err := f.bonuses().GrantOnceIfEligible(context.Background(), uuid.New(), "referral")
	require.ErrorIs(t, err, apperror.ErrInvalidInput)
}

func TestCheckAndGrant_SkipsPredicateOnceGranted(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	user := testutil.CreateUser(t, f.db, "alice")
	svc := f.bonuses()

	granted, err := svc.CheckAndGrant(ctx, user.ID, "beta_tester", always, 15)
	require.NoError(t, err)
	require.True(t, granted)

	calls := 0
	counting := func(context.Context, *gorm.DB, uuid.UUID) (bool, error) {
		calls++
		return true, nil
	}
	granted, err = svc.CheckAndGrant(ctx, user.ID, "beta_tester", counting, 15)
	require.NoError(t, err)
	require.False(t, granted)
	require.Zero(t, calls)
}

func TestCheckAndGrant_ConcurrentCallsGrantOnce(t *testing.T) {
	f := setup(t)
	user := testutil.CreateUser(t, f.db, "alice")
	svc := f.bonuses()

	const callers = 6
	var wg sync.WaitGroup
	granted := make(chan bool, callers)
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := svc.CheckAndGrant(context.Background(), user.ID, "launch_week", always, 20)
			granted <- ok
			errs <- err
		}()
	}
	wg.Wait()
	close(granted)
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
	wins := 0
	for ok := range granted {
		if ok {
			wins++
		}
	}
	require.Equal(t, 1, wins)
	require.Equal(t, int64(1), transactionCount(t, f.db, user.ID))
	requireConsistent(t, f.ledger, user.ID)
}

func TestCheckAndGrant_AbsorbsUniqueViolation(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	user := testutil.CreateUser(t, f.db, "alice")

	// A grant recorded under another source still holds the once key, so the
	// history check misses it and the insert hits the unique index.
	key := "launch_week"
	legacy := entry(user.ID, 20, "legacy_import")
	legacy.OnceKey = &key
	_, err := f.ledger.Earn(ctx, legacy)
	require.NoError(t, err)

	granted, err := f.bonuses().CheckAndGrant(ctx, user.ID, "launch_week", always, 20)
	require.NoError(t, err)
	require.False(t, granted)

	balance, err := f.ledger.Balance(ctx, user.ID)
	require.NoError(t, err)
	require.Equal(t, int64(20), balance)
	requireConsistent(t, f.ledger, user.ID)
}
