package service

import (
	"context"
	"testing"
	"time"

	"betpoints/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func highRollerAchievement() *models.Achievement {
	return &models.Achievement{
		ID:   TestAchievementID,
		Slug: "high-roller",
		Name: "High Roller",
		Conditions: []models.AchievementCondition{
			{Kind: models.ConditionTotalWagers, Key: "total_wagers", Threshold: 10},
			{Kind: models.ConditionCurrentBalance, Key: "current_balance", Threshold: 5000},
		},
		PointsReward: 500,
		Active:       true,
	}
}

func expectStatistics(mocks *TestMocks, balance *models.UserPointBalance, totalWagers, wagersWon int64) {
	mocks.BalanceRepo.On("Get", mock.Anything, int64(TestUser1ID), int64(TestCurrencyID)).
		Return(balance, nil)
	mocks.WagerRepo.On("CountByUser", mock.Anything, int64(TestUser1ID)).
		Return(totalWagers, wagersWon, nil)
}

func TestAchievementService_Evaluate_Unlocks(t *testing.T) {
	ctx := context.Background()
	mocks := NewTestMocks()
	mocks.ExpectPointType()

	service := NewAchievementService(mocks.Factory, NewLedgerService(mocks.Factory), nil, TestCurrency)

	achievement := highRollerAchievement()
	mocks.AchievementRepo.On("ListActive", ctx).Return([]*models.Achievement{achievement}, nil)
	mocks.AchievementRepo.On("ListUnlocked", ctx, int64(TestUser1ID)).Return([]*models.UserAchievement{}, nil)
	expectStatistics(mocks, Balance(TestUser1ID, 6000), 12, 5)

	mocks.AchievementRepo.On("InsertUnlock", ctx, mock.MatchedBy(func(u *models.UserAchievement) bool {
		return u.UserID == TestUser1ID &&
			u.AchievementID == TestAchievementID &&
			u.ProgressSnapshot["total_wagers"] == 12
	})).Return(true, nil)

	// Bonus award after the unlock commits.
	mocks.BalanceRepo.On("GetForUpdate", ctx, int64(TestUser1ID), int64(TestCurrencyID)).
		Return(Balance(TestUser1ID, 6000), nil)
	mocks.BalanceRepo.On("Save", ctx, mock.MatchedBy(func(b *models.UserPointBalance) bool {
		return b.Balance == 6500
	})).Return(nil)
	mocks.TransactionRepo.On("Append", ctx, mock.MatchedBy(func(tx *models.PointTransaction) bool {
		return tx.Kind == models.TransactionKindEarn &&
			tx.Amount == 500 &&
			tx.ReferenceType != nil && *tx.ReferenceType == models.ReferenceTypeAchievement
	})).Return(nil)

	unlocks, err := service.Evaluate(ctx, TestUser1ID, models.TriggerBetWon)

	require.NoError(t, err)
	require.Len(t, unlocks, 1)
	assert.Equal(t, int64(TestAchievementID), unlocks[0].AchievementID)
	mocks.AssertAllExpectations(t)
}

func TestAchievementService_Evaluate_ThresholdNotMet(t *testing.T) {
	ctx := context.Background()
	mocks := NewTestMocks()
	mocks.ExpectPointType()

	service := NewAchievementService(mocks.Factory, NewLedgerService(mocks.Factory), nil, TestCurrency)

	mocks.AchievementRepo.On("ListActive", ctx).Return([]*models.Achievement{highRollerAchievement()}, nil)
	mocks.AchievementRepo.On("ListUnlocked", ctx, int64(TestUser1ID)).Return([]*models.UserAchievement{}, nil)
	// Balance qualifies but the wager count does not; all conditions must hold.
	expectStatistics(mocks, Balance(TestUser1ID, 6000), 9, 5)

	unlocks, err := service.Evaluate(ctx, TestUser1ID, models.TriggerBetWon)

	require.NoError(t, err)
	assert.Empty(t, unlocks)
	mocks.AchievementRepo.AssertNotCalled(t, "InsertUnlock", mock.Anything, mock.Anything)
}

func TestAchievementService_Evaluate_AlreadyUnlocked(t *testing.T) {
	ctx := context.Background()
	mocks := NewTestMocks()
	mocks.ExpectPointType()

	service := NewAchievementService(mocks.Factory, NewLedgerService(mocks.Factory), nil, TestCurrency)

	mocks.AchievementRepo.On("ListActive", ctx).Return([]*models.Achievement{highRollerAchievement()}, nil)
	mocks.AchievementRepo.On("ListUnlocked", ctx, int64(TestUser1ID)).Return([]*models.UserAchievement{
		{UserID: TestUser1ID, AchievementID: TestAchievementID, UnlockedAt: time.Now()},
	}, nil)
	expectStatistics(mocks, Balance(TestUser1ID, 9000), 50, 20)

	unlocks, err := service.Evaluate(ctx, TestUser1ID, models.TriggerBetWon)

	require.NoError(t, err)
	assert.Empty(t, unlocks)
	mocks.AchievementRepo.AssertNotCalled(t, "InsertUnlock", mock.Anything, mock.Anything)
}

// An extension condition with no registered hook must never satisfy, even
// when every built-in condition passes.
func TestAchievementService_Evaluate_ExtensionFailsClosed(t *testing.T) {
	ctx := context.Background()
	mocks := NewTestMocks()
	mocks.ExpectPointType()

	service := NewAchievementService(mocks.Factory, NewLedgerService(mocks.Factory), nil, TestCurrency)

	achievement := &models.Achievement{
		ID:   TestAchievementID,
		Slug: "tournament-champion",
		Conditions: []models.AchievementCondition{
			{Kind: models.ConditionKindExtension, Key: "tournament_wins", Raw: []byte(`3`)},
		},
		Active: true,
	}
	mocks.AchievementRepo.On("ListActive", ctx).Return([]*models.Achievement{achievement}, nil)
	mocks.AchievementRepo.On("ListUnlocked", ctx, int64(TestUser1ID)).Return([]*models.UserAchievement{}, nil)
	expectStatistics(mocks, Balance(TestUser1ID, 100000), 100, 90)

	unlocks, err := service.Evaluate(ctx, TestUser1ID, models.TriggerBetWon)

	require.NoError(t, err)
	assert.Empty(t, unlocks)
}

func TestAchievementService_Evaluate_ExtensionHook(t *testing.T) {
	ctx := context.Background()
	mocks := NewTestMocks()
	mocks.ExpectPointType()

	service := NewAchievementService(mocks.Factory, NewLedgerService(mocks.Factory), nil, TestCurrency)
	service.RegisterConditionHook("tournament_wins", func(ctx context.Context, userID int64, condition models.AchievementCondition, stats *models.UserStatistics) (bool, error) {
		return true, nil
	})

	achievement := &models.Achievement{
		ID:   TestAchievementID,
		Slug: "tournament-champion",
		Conditions: []models.AchievementCondition{
			{Kind: models.ConditionKindExtension, Key: "tournament_wins", Raw: []byte(`3`)},
		},
		Active: true,
	}
	mocks.AchievementRepo.On("ListActive", ctx).Return([]*models.Achievement{achievement}, nil)
	mocks.AchievementRepo.On("ListUnlocked", ctx, int64(TestUser1ID)).Return([]*models.UserAchievement{}, nil)
	expectStatistics(mocks, Balance(TestUser1ID, 0), 0, 0)
	mocks.AchievementRepo.On("InsertUnlock", ctx, mock.Anything).Return(true, nil)

	unlocks, err := service.Evaluate(ctx, TestUser1ID, models.TriggerBetWon)

	require.NoError(t, err)
	require.Len(t, unlocks, 1)
}

func TestAchievementService_Unlock_Idempotent(t *testing.T) {
	ctx := context.Background()
	mocks := NewTestMocks()
	mocks.ExpectPointType()

	service := NewAchievementService(mocks.Factory, NewLedgerService(mocks.Factory), nil, TestCurrency)

	achievement := highRollerAchievement()
	mocks.AchievementRepo.On("GetByID", ctx, int64(TestAchievementID)).Return(achievement, nil)
	expectStatistics(mocks, Balance(TestUser1ID, 6000), 12, 5)

	// The unique constraint already holds a row for this pair.
	mocks.AchievementRepo.On("InsertUnlock", ctx, mock.Anything).Return(false, nil)

	fresh, err := service.Unlock(ctx, TestUser1ID, TestAchievementID)

	require.NoError(t, err)
	assert.False(t, fresh)
	// No second bonus for an achievement already held.
	mocks.BalanceRepo.AssertNotCalled(t, "GetForUpdate", mock.Anything, mock.Anything, mock.Anything)
	assert.Empty(t, mocks.EventPublisher.Events)
}

func TestAchievementService_Progress_HidesLockedSecrets(t *testing.T) {
	ctx := context.Background()
	mocks := NewTestMocks()
	mocks.ExpectPointType()

	service := NewAchievementService(mocks.Factory, NewLedgerService(mocks.Factory), nil, TestCurrency)

	visible := highRollerAchievement()
	secret := &models.Achievement{
		ID:       99,
		Slug:     "hidden-whale",
		IsSecret: true,
		Active:   true,
		Conditions: []models.AchievementCondition{
			{Kind: models.ConditionTotalSpent, Key: "total_spent", Threshold: 1000000},
		},
	}
	mocks.AchievementRepo.On("ListActive", ctx).Return([]*models.Achievement{visible, secret}, nil)
	mocks.AchievementRepo.On("ListUnlocked", ctx, int64(TestUser1ID)).Return([]*models.UserAchievement{}, nil)
	expectStatistics(mocks, Balance(TestUser1ID, 2500), 4, 1)

	progress, err := service.Progress(ctx, TestUser1ID)

	require.NoError(t, err)
	require.Len(t, progress, 1)
	assert.Equal(t, "high-roller", progress[0].Achievement.Slug)
	assert.False(t, progress[0].Unlocked)
	assert.Equal(t, [2]int64{4, 10}, progress[0].Completion["total_wagers"])
	assert.Equal(t, [2]int64{2500, 5000}, progress[0].Completion["current_balance"])
}

func TestAchievementService_ListAchievements_OmitsSecrets(t *testing.T) {
	ctx := context.Background()
	mocks := NewTestMocks()

	service := NewAchievementService(mocks.Factory, NewLedgerService(mocks.Factory), nil, TestCurrency)

	secret := &models.Achievement{ID: 9, Slug: "hidden-gem", Name: "Hidden Gem", IsSecret: true, Active: true}
	mocks.AchievementRepo.On("ListActive", ctx).
		Return([]*models.Achievement{highRollerAchievement(), secret}, nil)

	visible, err := service.ListAchievements(ctx, false)
	require.NoError(t, err)
	require.Len(t, visible, 1)
	assert.Equal(t, "high-roller", visible[0].Slug)

	all, err := service.ListAchievements(ctx, true)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}
