package service

import (
	"context"
	"testing"

	"betpoints/events"
	"betpoints/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func testLadder() []*models.Rank {
	return []*models.Rank{
		{ID: 1, Slug: "bronze", Name: "Bronze", PointsRequired: 0, OrderPosition: 1, Active: true},
		{ID: 2, Slug: "silver", Name: "Silver", PointsRequired: 1000, OrderPosition: 2, Active: true},
		{ID: 3, Slug: "gold", Name: "Gold", PointsRequired: 5000, OrderPosition: 3, Active: true},
	}
}

func TestRankService_Recompute_Promotion(t *testing.T) {
	ctx := context.Background()
	mocks := NewTestMocks()
	mocks.ExpectPointType()

	service := NewRankService(mocks.Factory, TestCurrency)

	mocks.BalanceRepo.On("Get", ctx, int64(TestUser1ID), int64(TestCurrencyID)).
		Return(Balance(TestUser1ID, 1200), nil)
	mocks.RankRepo.On("ListActive", ctx).Return(testLadder(), nil)
	mocks.RankRepo.On("GetCurrentForUpdate", ctx, int64(TestUser1ID)).Return(&models.UserRank{
		UserID:    TestUser1ID,
		RankID:    1,
		IsCurrent: true,
	}, nil)
	mocks.RankRepo.On("ClearCurrent", ctx, int64(TestUser1ID)).Return(nil)
	mocks.RankRepo.On("InsertCurrent", ctx, mock.MatchedBy(func(ur *models.UserRank) bool {
		return ur.UserID == TestUser1ID && ur.RankID == 2 && ur.IsCurrent
	})).Return(nil)

	userRank, err := service.Recompute(ctx, TestUser1ID)

	require.NoError(t, err)
	assert.Equal(t, int64(2), userRank.RankID)

	require.Len(t, mocks.EventPublisher.Events, 1)
	event, ok := mocks.EventPublisher.Events[0].(events.RankChangedEvent)
	require.True(t, ok)
	assert.Equal(t, "silver", event.NewRankSlug)
	require.NotNil(t, event.PreviousRank)
	assert.Equal(t, int64(1), *event.PreviousRank)

	mocks.AssertAllExpectations(t)
}

func TestRankService_Recompute_Unchanged(t *testing.T) {
	ctx := context.Background()
	mocks := NewTestMocks()
	mocks.ExpectPointType()

	service := NewRankService(mocks.Factory, TestCurrency)

	mocks.BalanceRepo.On("Get", ctx, int64(TestUser1ID), int64(TestCurrencyID)).
		Return(Balance(TestUser1ID, 1200), nil)
	mocks.RankRepo.On("ListActive", ctx).Return(testLadder(), nil)
	mocks.RankRepo.On("GetCurrentForUpdate", ctx, int64(TestUser1ID)).Return(&models.UserRank{
		UserID:    TestUser1ID,
		RankID:    2,
		IsCurrent: true,
	}, nil)

	userRank, err := service.Recompute(ctx, TestUser1ID)

	require.NoError(t, err)
	assert.Equal(t, int64(2), userRank.RankID)
	mocks.RankRepo.AssertNotCalled(t, "InsertCurrent", mock.Anything, mock.Anything)
	assert.Empty(t, mocks.EventPublisher.Events)
}

func TestRankService_Recompute_Demotion(t *testing.T) {
	ctx := context.Background()
	mocks := NewTestMocks()
	mocks.ExpectPointType()

	service := NewRankService(mocks.Factory, TestCurrency)

	// Balance fell from silver territory back to bronze.
	mocks.BalanceRepo.On("Get", ctx, int64(TestUser1ID), int64(TestCurrencyID)).
		Return(Balance(TestUser1ID, 400), nil)
	mocks.RankRepo.On("ListActive", ctx).Return(testLadder(), nil)
	mocks.RankRepo.On("GetCurrentForUpdate", ctx, int64(TestUser1ID)).Return(&models.UserRank{
		UserID:    TestUser1ID,
		RankID:    2,
		IsCurrent: true,
	}, nil)
	mocks.RankRepo.On("ClearCurrent", ctx, int64(TestUser1ID)).Return(nil)
	mocks.RankRepo.On("InsertCurrent", ctx, mock.MatchedBy(func(ur *models.UserRank) bool {
		return ur.RankID == 1
	})).Return(nil)

	userRank, err := service.Recompute(ctx, TestUser1ID)

	require.NoError(t, err)
	assert.Equal(t, int64(1), userRank.RankID)
}

func TestRankService_Recompute_DropsOffLadder(t *testing.T) {
	ctx := context.Background()
	mocks := NewTestMocks()
	mocks.ExpectPointType()

	service := NewRankService(mocks.Factory, TestCurrency)

	ladder := []*models.Rank{
		{ID: 2, Slug: "silver", PointsRequired: 1000, Active: true},
	}
	mocks.BalanceRepo.On("Get", ctx, int64(TestUser1ID), int64(TestCurrencyID)).
		Return(Balance(TestUser1ID, 100), nil)
	mocks.RankRepo.On("ListActive", ctx).Return(ladder, nil)
	mocks.RankRepo.On("GetCurrentForUpdate", ctx, int64(TestUser1ID)).Return(&models.UserRank{
		UserID:    TestUser1ID,
		RankID:    2,
		IsCurrent: true,
	}, nil)
	mocks.RankRepo.On("ClearCurrent", ctx, int64(TestUser1ID)).Return(nil)

	userRank, err := service.Recompute(ctx, TestUser1ID)

	require.NoError(t, err)
	assert.Nil(t, userRank)
	// No tier to announce when falling off the ladder entirely.
	assert.Empty(t, mocks.EventPublisher.Events)
}

func TestRankService_Recompute_NeverRanked(t *testing.T) {
	ctx := context.Background()
	mocks := NewTestMocks()
	mocks.ExpectPointType()

	service := NewRankService(mocks.Factory, TestCurrency)

	ladder := []*models.Rank{
		{ID: 2, Slug: "silver", PointsRequired: 1000, Active: true},
	}
	mocks.BalanceRepo.On("Get", ctx, int64(TestUser2ID), int64(TestCurrencyID)).Return(nil, nil)
	mocks.RankRepo.On("ListActive", ctx).Return(ladder, nil)
	mocks.RankRepo.On("GetCurrentForUpdate", ctx, int64(TestUser2ID)).Return(nil, nil)

	userRank, err := service.Recompute(ctx, TestUser2ID)

	require.NoError(t, err)
	assert.Nil(t, userRank)
	mocks.RankRepo.AssertNotCalled(t, "ClearCurrent", mock.Anything, mock.Anything)
}

func TestRankService_Progress(t *testing.T) {
	ctx := context.Background()
	mocks := NewTestMocks()
	mocks.ExpectPointType()

	service := NewRankService(mocks.Factory, TestCurrency)

	mocks.BalanceRepo.On("Get", ctx, int64(TestUser1ID), int64(TestCurrencyID)).
		Return(Balance(TestUser1ID, 3000), nil)
	mocks.RankRepo.On("ListActive", ctx).Return(testLadder(), nil)

	progress, err := service.Progress(ctx, TestUser1ID)

	require.NoError(t, err)
	require.NotNil(t, progress.Current)
	assert.Equal(t, "silver", progress.Current.Slug)
	require.NotNil(t, progress.Next)
	assert.Equal(t, "gold", progress.Next.Slug)
	assert.Equal(t, int64(2000), progress.PointsNeeded)
	assert.Equal(t, "50", progress.PercentComplete.String())
}

func TestRankService_CreateRank_Validation(t *testing.T) {
	ctx := context.Background()
	mocks := NewTestMocks()
	service := NewRankService(mocks.Factory, TestCurrency)

	err := service.CreateRank(ctx, &models.Rank{Slug: "", Name: "Nameless"})
	require.ErrorIs(t, err, ErrValidation)

	err = service.CreateRank(ctx, &models.Rank{Slug: "bad", Name: "Bad", PointsRequired: -1})
	require.ErrorIs(t, err, ErrValidation)
}
