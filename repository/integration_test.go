package repository

import (
	"context"
	"sync"
	"testing"
	"time"

	"betpoints/events"
	"betpoints/models"
	"betpoints/repository/testutil"
	"betpoints/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupLedger(t *testing.T) (*testutil.TestDatabase, service.UnitOfWorkFactory, *models.PointType) {
	testDB := testutil.SetupTestDatabase(t)
	ctx := context.Background()

	pointType := &models.PointType{
		Slug:   "betcoins",
		Name:   "Betcoins",
		Active: true,
	}
	err := NewPointTypeRepository(testDB.DB).Create(ctx, pointType)
	require.NoError(t, err)

	factory := NewUnitOfWorkFactory(testDB.DB, events.NewBus())
	return testDB, factory, pointType
}

// The balance row is a cache over the transaction log: after any sequence of
// ledger operations, replaying the log from zero must reproduce it.
func TestLedger_ReplayReconciliation(t *testing.T) {
	testDB, factory, pointType := setupLedger(t)
	ctx := context.Background()
	userID := int64(123456)

	ledger := service.NewLedgerService(factory)

	_, err := ledger.Award(ctx, service.LedgerRequest{
		UserID: userID, Amount: 1000, PointTypeSlug: "betcoins", Reason: "initial grant",
	})
	require.NoError(t, err)
	_, err = ledger.Deduct(ctx, service.LedgerRequest{
		UserID: userID, Amount: 300, PointTypeSlug: "betcoins", Reason: "stake",
	})
	require.NoError(t, err)
	_, err = ledger.SetBalance(ctx, service.LedgerRequest{
		UserID: userID, Amount: 500, PointTypeSlug: "betcoins", Reason: "admin fix",
	})
	require.NoError(t, err)

	balance, err := NewBalanceRepository(testDB.DB).Get(ctx, userID, pointType.ID)
	require.NoError(t, err)
	require.NotNil(t, balance)
	assert.Equal(t, int64(500), balance.Balance)
	assert.True(t, balance.Consistent())

	log, err := NewPointTransactionRepository(testDB.DB).ListForReplay(ctx, userID, pointType.ID)
	require.NoError(t, err)
	require.Len(t, log, 3)
	assert.Equal(t, balance.Balance, models.ReplayBalance(log))
	for _, tx := range log {
		assert.True(t, tx.Reconciles())
	}
}

// Two racing deducts against one balance must serialize on the row lock;
// exactly one may succeed when funds only cover one.
func TestLedger_ConcurrentDeducts(t *testing.T) {
	_, factory, _ := setupLedger(t)
	ctx := context.Background()
	userID := int64(222222)

	ledger := service.NewLedgerService(factory)

	_, err := ledger.Award(ctx, service.LedgerRequest{
		UserID: userID, Amount: 1000, PointTypeSlug: "betcoins", Reason: "initial grant",
	})
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make(chan error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := ledger.Deduct(ctx, service.LedgerRequest{
				UserID: userID, Amount: 600, PointTypeSlug: "betcoins", Reason: "race",
			})
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var failures int
	for err := range results {
		if err != nil {
			require.ErrorIs(t, err, service.ErrInsufficientFunds)
			failures++
		}
	}
	assert.Equal(t, 1, failures, "exactly one deduct must lose the race")

	balance, err := ledger.GetBalance(ctx, userID, "betcoins")
	require.NoError(t, err)
	assert.Equal(t, int64(400), balance)
}

func TestBalanceRepository_GetForUpdate_CreatesZeroRow(t *testing.T) {
	testDB, factory, pointType := setupLedger(t)
	ctx := context.Background()

	uow := factory.Create()
	require.NoError(t, uow.Begin(ctx))
	defer uow.Rollback()

	balance, err := uow.BalanceRepository().GetForUpdate(ctx, 999, pointType.ID)
	require.NoError(t, err)
	require.NotNil(t, balance)
	assert.Zero(t, balance.Balance)
	assert.Zero(t, balance.TotalEarned)
	require.NoError(t, uow.Commit())

	// The lazily created row persists.
	again, err := NewBalanceRepository(testDB.DB).Get(ctx, 999, pointType.ID)
	require.NoError(t, err)
	require.NotNil(t, again)
}

// The open -> resolved transition is a compare-and-set; of two claims only
// the first lands.
func TestPredictionRepository_ClaimResolution_CAS(t *testing.T) {
	testDB, _, _ := setupLedger(t)
	ctx := context.Background()

	predictionRepo := NewPredictionRepository(testDB.DB)
	prediction := &models.Prediction{
		Title:     "Will the deployment go smoothly?",
		ClosingAt: time.Now().Add(-time.Minute),
	}
	require.NoError(t, predictionRepo.Create(ctx, prediction))

	claimed, err := predictionRepo.ClaimResolution(ctx, prediction.ID, models.OutcomeYes,
		models.ResolutionMethodAdminManual, time.Now())
	require.NoError(t, err)
	assert.True(t, claimed)

	claimed, err = predictionRepo.ClaimResolution(ctx, prediction.ID, models.OutcomeNo,
		models.ResolutionMethodAutoVolume, time.Now())
	require.NoError(t, err)
	assert.False(t, claimed, "second claim must lose")

	stored, err := predictionRepo.GetByID(ctx, prediction.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.ResolvedChoice)
	assert.Equal(t, models.OutcomeYes, *stored.ResolvedChoice)
}

func TestWagerRepository_GetStats(t *testing.T) {
	testDB, _, _ := setupLedger(t)
	ctx := context.Background()

	predictionRepo := NewPredictionRepository(testDB.DB)
	prediction := &models.Prediction{
		Title:     "Stats aggregation",
		ClosingAt: time.Now().Add(time.Hour),
	}
	require.NoError(t, predictionRepo.Create(ctx, prediction))

	wagerRepo := NewWagerRepository(testDB.DB)
	wagers := []*models.Wager{
		{UserID: 1, PredictionID: prediction.ID, Side: models.WagerSideYes, Amount: 400},
		{UserID: 1, PredictionID: prediction.ID, Side: models.WagerSideYes, Amount: 300},
		{UserID: 2, PredictionID: prediction.ID, Side: models.WagerSideNo, Amount: 300},
	}
	for _, w := range wagers {
		require.NoError(t, wagerRepo.Create(ctx, w))
	}

	stats, err := wagerRepo.GetStats(ctx, prediction.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(700), stats.YesTotal)
	assert.Equal(t, int64(300), stats.NoTotal)
	assert.Equal(t, 2, stats.YesCount)
	assert.Equal(t, 1, stats.NoCount)
	assert.Equal(t, 2, stats.UniqueBettors, "one user with two wagers counts once")
	assert.Equal(t, []int64{1, 2}, stats.Bettors)
	assert.Equal(t, int64(1000), stats.TotalPot())
}

func TestAchievementRepository_InsertUnlock_Idempotent(t *testing.T) {
	testDB, _, _ := setupLedger(t)
	ctx := context.Background()

	achievementRepo := NewAchievementRepository(testDB.DB)
	achievement := &models.Achievement{
		Slug: "first-blood",
		Name: "First Blood",
		Conditions: []models.AchievementCondition{
			{Kind: models.ConditionTotalWagers, Key: "total_wagers", Threshold: 1},
		},
		Active: true,
	}
	require.NoError(t, achievementRepo.Create(ctx, achievement))

	unlock := &models.UserAchievement{
		UserID:        42,
		AchievementID: achievement.ID,
		UnlockedAt:    time.Now(),
	}
	inserted, err := achievementRepo.InsertUnlock(ctx, unlock)
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = achievementRepo.InsertUnlock(ctx, &models.UserAchievement{
		UserID:        42,
		AchievementID: achievement.ID,
		UnlockedAt:    time.Now(),
	})
	require.NoError(t, err)
	assert.False(t, inserted, "an unlock is permanent and unique")
}

// A wager transaction holding the prediction share lock forces resolution
// to wait, so the stake it debits is in the pools by the time resolution
// snapshots them. Without the lock ordering the late stake would be
// escrowed but never redistributed.
func TestResolution_WaitsForInFlightWager(t *testing.T) {
	_, factory, pointType := setupLedger(t)
	ctx := context.Background()

	ledger := service.NewLedgerService(factory)
	wagers := service.NewWagerService(factory, "betcoins")
	resolution := service.NewResolutionService(factory, ledger, "betcoins")

	alice, bob := int64(2001), int64(2002)
	for _, userID := range []int64{alice, bob} {
		_, err := ledger.Award(ctx, service.LedgerRequest{
			UserID: userID, Amount: 1000, PointTypeSlug: "betcoins", Reason: "initial grant",
		})
		require.NoError(t, err)
	}

	prediction, err := wagers.CreatePrediction(ctx, "Is the rollout on time?", time.Now().Add(time.Hour))
	require.NoError(t, err)
	_, err = wagers.PlaceWager(ctx, alice, prediction.ID, models.WagerSideYes, 300)
	require.NoError(t, err)

	// Bob's placement is held open mid-transaction, share lock taken.
	uow := factory.Create()
	require.NoError(t, uow.Begin(ctx))
	defer uow.Rollback()

	locked, err := uow.PredictionRepository().GetByIDForShare(ctx, prediction.ID)
	require.NoError(t, err)
	require.True(t, locked.AcceptsWagers(time.Now().UTC()))

	balance, err := service.DebitBalance(ctx, uow, pointType, service.LedgerRequest{
		UserID: bob, Amount: 300, Kind: models.TransactionKindSpend,
		Reason: "Wager on prediction (no)",
		Ref:    &service.TransactionRef{Type: models.ReferenceTypePrediction, ID: prediction.ID},
	})
	require.NoError(t, err)
	require.NoError(t, uow.WagerRepository().Create(ctx, &models.Wager{
		UserID: bob, PredictionID: prediction.ID, Side: models.WagerSideNo,
		Amount: 300, RemainingBalanceAfter: balance.Balance,
	}))

	type settled struct {
		result *models.ResolutionResult
		err    error
	}
	done := make(chan settled, 1)
	go func() {
		result, err := resolution.Resolve(ctx, prediction.ID, models.WagerSideYes, models.ResolutionMethodAdminManual)
		done <- settled{result, err}
	}()

	select {
	case <-done:
		t.Fatal("resolution completed while a wager transaction held the share lock")
	case <-time.After(300 * time.Millisecond):
	}

	require.NoError(t, uow.Commit())

	var outcome settled
	select {
	case outcome = <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("resolution did not finish after the wager committed")
	}
	require.NoError(t, outcome.err)

	// Bob's late stake was counted: full pot redistributed, none escrowed.
	assert.Equal(t, int64(600), outcome.result.TotalPot)
	assert.Equal(t, int64(600), outcome.result.TotalWinnings)

	aliceBalance, err := ledger.GetBalance(ctx, alice, "betcoins")
	require.NoError(t, err)
	assert.Equal(t, int64(1300), aliceBalance)
	bobBalance, err := ledger.GetBalance(ctx, bob, "betcoins")
	require.NoError(t, err)
	assert.Equal(t, int64(700), bobBalance)
}

// Advisory lock keys must be distinct for (rule, user) pairs that only
// differ beyond 32 bits; truncating keys would make them contend.
func TestEarningRuleRepository_LockUserRule_WideIDs(t *testing.T) {
	_, factory, _ := setupLedger(t)
	ctx := context.Background()

	const ruleID, userID = int64(5), int64(7)
	wideRuleID := ruleID + (1 << 32)

	uow1 := factory.Create()
	require.NoError(t, uow1.Begin(ctx))
	defer uow1.Rollback()
	require.NoError(t, uow1.EarningRuleRepository().LockUserRule(ctx, wideRuleID, userID))

	done := make(chan error, 1)
	go func() {
		uow2 := factory.Create()
		if err := uow2.Begin(ctx); err != nil {
			done <- err
			return
		}
		defer uow2.Rollback()
		done <- uow2.EarningRuleRepository().LockUserRule(ctx, ruleID, userID)
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("distinct (rule, user) pairs contended on one advisory lock")
	}
}

// Full settlement through the services: initial grants, opposing stakes,
// resolution, and conservation of the pot.
func TestResolution_EndToEnd(t *testing.T) {
	_, factory, _ := setupLedger(t)
	ctx := context.Background()

	ledger := service.NewLedgerService(factory)
	wagers := service.NewWagerService(factory, "betcoins")
	resolution := service.NewResolutionService(factory, ledger, "betcoins")

	alice, bob := int64(1001), int64(1002)
	for _, userID := range []int64{alice, bob} {
		_, err := ledger.Award(ctx, service.LedgerRequest{
			UserID: userID, Amount: 1000, PointTypeSlug: "betcoins", Reason: "initial grant",
		})
		require.NoError(t, err)
	}

	prediction, err := wagers.CreatePrediction(ctx, "Does the feature land?", time.Now().Add(time.Hour))
	require.NoError(t, err)

	_, err = wagers.PlaceWager(ctx, alice, prediction.ID, models.WagerSideYes, 300)
	require.NoError(t, err)
	_, err = wagers.PlaceWager(ctx, bob, prediction.ID, models.WagerSideNo, 300)
	require.NoError(t, err)

	result, err := resolution.Resolve(ctx, prediction.ID, models.WagerSideYes, models.ResolutionMethodAdminManual)
	require.NoError(t, err)
	assert.Equal(t, 1, result.WinnersCount)
	assert.Equal(t, int64(600), result.TotalWinnings)
	assert.Empty(t, result.FailedPayouts)

	aliceBalance, err := ledger.GetBalance(ctx, alice, "betcoins")
	require.NoError(t, err)
	assert.Equal(t, int64(1300), aliceBalance)

	bobBalance, err := ledger.GetBalance(ctx, bob, "betcoins")
	require.NoError(t, err)
	assert.Equal(t, int64(700), bobBalance)

	// Stake moved, none created or destroyed.
	assert.Equal(t, int64(2000), aliceBalance+bobBalance)

	// Settlement is final.
	_, err = resolution.Resolve(ctx, prediction.ID, models.WagerSideNo, models.ResolutionMethodAdminManual)
	require.ErrorIs(t, err, service.ErrAlreadyResolved)
}
