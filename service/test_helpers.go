package service

import (
	"testing"

	"betpoints/models"

	"github.com/stretchr/testify/mock"
)

// Test IDs and amounts shared across service tests
const (
	TestUser1ID       = 111111
	TestUser2ID       = 222222
	TestUser3ID       = 333333
	TestAdminID       = 999999
	TestPredictionID  = 1
	TestCurrency      = "betcoins"
	TestCurrencyID    = 7
	TestStartBalance  = 1000
	TestAchievementID = 5
	TestRuleID        = 3
)

// TestMocks holds all mock repositories for easy access
type TestMocks struct {
	UoW             *MockUnitOfWork
	Factory         *MockUnitOfWorkFactory
	PointTypeRepo   *MockPointTypeRepository
	BalanceRepo     *MockBalanceRepository
	TransactionRepo *MockPointTransactionRepository
	PredictionRepo  *MockPredictionRepository
	WagerRepo       *MockWagerRepository
	RankRepo        *MockRankRepository
	AchievementRepo *MockAchievementRepository
	EarningRuleRepo *MockEarningRuleRepository
	EventPublisher  *MockEventPublisher
}

// NewTestMocks creates a fully wired set of mocks. The factory hands out the
// single unit of work, which begins, commits and rolls back freely; tests
// that care about transaction boundaries override these expectations.
func NewTestMocks() *TestMocks {
	m := &TestMocks{
		UoW:             new(MockUnitOfWork),
		Factory:         new(MockUnitOfWorkFactory),
		PointTypeRepo:   new(MockPointTypeRepository),
		BalanceRepo:     new(MockBalanceRepository),
		TransactionRepo: new(MockPointTransactionRepository),
		PredictionRepo:  new(MockPredictionRepository),
		WagerRepo:       new(MockWagerRepository),
		RankRepo:        new(MockRankRepository),
		AchievementRepo: new(MockAchievementRepository),
		EarningRuleRepo: new(MockEarningRuleRepository),
		EventPublisher:  new(MockEventPublisher),
	}

	m.UoW.SetRepositories(
		m.PointTypeRepo,
		m.BalanceRepo,
		m.TransactionRepo,
		m.PredictionRepo,
		m.WagerRepo,
		m.RankRepo,
		m.AchievementRepo,
		m.EarningRuleRepo,
		m.EventPublisher,
	)

	m.Factory.On("Create").Return(m.UoW).Maybe()
	m.UoW.On("Begin", mock.Anything).Return(nil).Maybe()
	m.UoW.On("Commit").Return(nil).Maybe()
	m.UoW.On("Rollback").Return(nil).Maybe()
	m.EventPublisher.On("Publish", mock.Anything).Return().Maybe()

	return m
}

// ExpectPointType sets up the standard active-currency lookup.
func (m *TestMocks) ExpectPointType() *models.PointType {
	pointType := &models.PointType{
		ID:     TestCurrencyID,
		Slug:   TestCurrency,
		Name:   "Betcoins",
		Active: true,
	}
	m.PointTypeRepo.On("GetBySlug", mock.Anything, TestCurrency).Return(pointType, nil)
	return pointType
}

// Balance builds a consistent balance row for a user.
func Balance(userID, balance int64) *models.UserPointBalance {
	return &models.UserPointBalance{
		UserID:      userID,
		PointTypeID: TestCurrencyID,
		Balance:     balance,
		TotalEarned: balance,
	}
}

// AssertAllExpectations asserts all mock expectations
func (m *TestMocks) AssertAllExpectations(t *testing.T) {
	m.Factory.AssertExpectations(t)
	m.UoW.AssertExpectations(t)
	m.PointTypeRepo.AssertExpectations(t)
	m.BalanceRepo.AssertExpectations(t)
	m.TransactionRepo.AssertExpectations(t)
	m.PredictionRepo.AssertExpectations(t)
	m.WagerRepo.AssertExpectations(t)
	m.RankRepo.AssertExpectations(t)
	m.AchievementRepo.AssertExpectations(t)
	m.EarningRuleRepo.AssertExpectations(t)
	m.EventPublisher.AssertExpectations(t)
}
