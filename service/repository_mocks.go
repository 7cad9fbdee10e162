package service

import (
	"context"
	"time"

	"betpoints/events"
	"betpoints/models"

	"github.com/stretchr/testify/mock"
)

// MockPointTypeRepository is a mock implementation of PointTypeRepository
type MockPointTypeRepository struct {
	mock.Mock
}

func (m *MockPointTypeRepository) Create(ctx context.Context, pointType *models.PointType) error {
	args := m.Called(ctx, pointType)
	return args.Error(0)
}

func (m *MockPointTypeRepository) GetBySlug(ctx context.Context, slug string) (*models.PointType, error) {
	args := m.Called(ctx, slug)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.PointType), args.Error(1)
}

func (m *MockPointTypeRepository) GetByID(ctx context.Context, id int64) (*models.PointType, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.PointType), args.Error(1)
}

func (m *MockPointTypeRepository) List(ctx context.Context, includeInactive bool) ([]*models.PointType, error) {
	args := m.Called(ctx, includeInactive)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.PointType), args.Error(1)
}

func (m *MockPointTypeRepository) Deactivate(ctx context.Context, id int64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// MockBalanceRepository is a mock implementation of BalanceRepository
type MockBalanceRepository struct {
	mock.Mock
}

func (m *MockBalanceRepository) Get(ctx context.Context, userID, pointTypeID int64) (*models.UserPointBalance, error) {
	args := m.Called(ctx, userID, pointTypeID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.UserPointBalance), args.Error(1)
}

func (m *MockBalanceRepository) GetForUpdate(ctx context.Context, userID, pointTypeID int64) (*models.UserPointBalance, error) {
	args := m.Called(ctx, userID, pointTypeID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.UserPointBalance), args.Error(1)
}

func (m *MockBalanceRepository) Save(ctx context.Context, balance *models.UserPointBalance) error {
	args := m.Called(ctx, balance)
	return args.Error(0)
}

func (m *MockBalanceRepository) GetLeaderboard(ctx context.Context, pointTypeID int64, limit int) ([]*models.UserPointBalance, error) {
	args := m.Called(ctx, pointTypeID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.UserPointBalance), args.Error(1)
}

// MockPointTransactionRepository is a mock implementation of PointTransactionRepository
type MockPointTransactionRepository struct {
	mock.Mock
}

func (m *MockPointTransactionRepository) Append(ctx context.Context, transaction *models.PointTransaction) error {
	args := m.Called(ctx, transaction)
	return args.Error(0)
}

func (m *MockPointTransactionRepository) ListByUser(ctx context.Context, userID int64, pointTypeID *int64, limit, offset int) ([]*models.PointTransaction, error) {
	args := m.Called(ctx, userID, pointTypeID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.PointTransaction), args.Error(1)
}

func (m *MockPointTransactionRepository) ListForReplay(ctx context.Context, userID, pointTypeID int64) ([]*models.PointTransaction, error) {
	args := m.Called(ctx, userID, pointTypeID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.PointTransaction), args.Error(1)
}

func (m *MockPointTransactionRepository) SumByUser(ctx context.Context, userID, pointTypeID int64) (int64, int64, error) {
	args := m.Called(ctx, userID, pointTypeID)
	return args.Get(0).(int64), args.Get(1).(int64), args.Error(2)
}

// MockPredictionRepository is a mock implementation of PredictionRepository
type MockPredictionRepository struct {
	mock.Mock
}

func (m *MockPredictionRepository) Create(ctx context.Context, prediction *models.Prediction) error {
	args := m.Called(ctx, prediction)
	return args.Error(0)
}

func (m *MockPredictionRepository) GetByID(ctx context.Context, id int64) (*models.Prediction, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Prediction), args.Error(1)
}

func (m *MockPredictionRepository) GetByIDForShare(ctx context.Context, id int64) (*models.Prediction, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Prediction), args.Error(1)
}

func (m *MockPredictionRepository) GetByIDForUpdate(ctx context.Context, id int64) (*models.Prediction, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Prediction), args.Error(1)
}

func (m *MockPredictionRepository) ListOpen(ctx context.Context, now time.Time) ([]*models.Prediction, error) {
	args := m.Called(ctx, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Prediction), args.Error(1)
}

func (m *MockPredictionRepository) ListDueForResolution(ctx context.Context, now time.Time) ([]*models.Prediction, error) {
	args := m.Called(ctx, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Prediction), args.Error(1)
}

func (m *MockPredictionRepository) ClaimResolution(ctx context.Context, id int64, choice models.Outcome, method models.ResolutionMethod, resolvedAt time.Time) (bool, error) {
	args := m.Called(ctx, id, choice, method, resolvedAt)
	return args.Bool(0), args.Error(1)
}

func (m *MockPredictionRepository) RecordPayoutTotals(ctx context.Context, id int64, winnersCount int, totalWinnings int64) error {
	args := m.Called(ctx, id, winnersCount, totalWinnings)
	return args.Error(0)
}

// MockWagerRepository is a mock implementation of WagerRepository
type MockWagerRepository struct {
	mock.Mock
}

func (m *MockWagerRepository) Create(ctx context.Context, wager *models.Wager) error {
	args := m.Called(ctx, wager)
	return args.Error(0)
}

func (m *MockWagerRepository) GetStats(ctx context.Context, predictionID int64) (*models.PredictionStats, error) {
	args := m.Called(ctx, predictionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.PredictionStats), args.Error(1)
}

func (m *MockWagerRepository) ListByPrediction(ctx context.Context, predictionID int64) ([]*models.Wager, error) {
	args := m.Called(ctx, predictionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Wager), args.Error(1)
}

func (m *MockWagerRepository) ListByUser(ctx context.Context, userID int64, limit int) ([]*models.UserWagerView, error) {
	args := m.Called(ctx, userID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.UserWagerView), args.Error(1)
}

func (m *MockWagerRepository) CountByUser(ctx context.Context, userID int64) (int64, int64, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(int64), args.Get(1).(int64), args.Error(2)
}

// MockRankRepository is a mock implementation of RankRepository
type MockRankRepository struct {
	mock.Mock
}

func (m *MockRankRepository) Create(ctx context.Context, rank *models.Rank) error {
	args := m.Called(ctx, rank)
	return args.Error(0)
}

func (m *MockRankRepository) GetByID(ctx context.Context, id int64) (*models.Rank, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Rank), args.Error(1)
}

func (m *MockRankRepository) ListActive(ctx context.Context) ([]*models.Rank, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Rank), args.Error(1)
}

func (m *MockRankRepository) GetCurrentForUpdate(ctx context.Context, userID int64) (*models.UserRank, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.UserRank), args.Error(1)
}

func (m *MockRankRepository) GetCurrent(ctx context.Context, userID int64) (*models.UserRank, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.UserRank), args.Error(1)
}

func (m *MockRankRepository) ClearCurrent(ctx context.Context, userID int64) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}

func (m *MockRankRepository) InsertCurrent(ctx context.Context, userRank *models.UserRank) error {
	args := m.Called(ctx, userRank)
	return args.Error(0)
}

// MockAchievementRepository is a mock implementation of AchievementRepository
type MockAchievementRepository struct {
	mock.Mock
}

func (m *MockAchievementRepository) Create(ctx context.Context, achievement *models.Achievement) error {
	args := m.Called(ctx, achievement)
	return args.Error(0)
}

func (m *MockAchievementRepository) GetByID(ctx context.Context, id int64) (*models.Achievement, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Achievement), args.Error(1)
}

func (m *MockAchievementRepository) ListActive(ctx context.Context) ([]*models.Achievement, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Achievement), args.Error(1)
}

func (m *MockAchievementRepository) ListUnlocked(ctx context.Context, userID int64) ([]*models.UserAchievement, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.UserAchievement), args.Error(1)
}

func (m *MockAchievementRepository) InsertUnlock(ctx context.Context, unlock *models.UserAchievement) (bool, error) {
	args := m.Called(ctx, unlock)
	return args.Bool(0), args.Error(1)
}

// MockEarningRuleRepository is a mock implementation of EarningRuleRepository
type MockEarningRuleRepository struct {
	mock.Mock
}

func (m *MockEarningRuleRepository) Create(ctx context.Context, rule *models.EarningRule) error {
	args := m.Called(ctx, rule)
	return args.Error(0)
}

func (m *MockEarningRuleRepository) ListActiveByTrigger(ctx context.Context, action models.TriggerAction) ([]*models.EarningRule, error) {
	args := m.Called(ctx, action)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.EarningRule), args.Error(1)
}

func (m *MockEarningRuleRepository) ListActive(ctx context.Context) ([]*models.EarningRule, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.EarningRule), args.Error(1)
}

func (m *MockEarningRuleRepository) LockUserRule(ctx context.Context, ruleID, userID int64) error {
	args := m.Called(ctx, ruleID, userID)
	return args.Error(0)
}

func (m *MockEarningRuleRepository) CountApplications(ctx context.Context, ruleID, userID int64, since *time.Time) (int, error) {
	args := m.Called(ctx, ruleID, userID, since)
	return args.Int(0), args.Error(1)
}

func (m *MockEarningRuleRepository) LastApplication(ctx context.Context, ruleID, userID int64) (*models.EarningRuleApplication, error) {
	args := m.Called(ctx, ruleID, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.EarningRuleApplication), args.Error(1)
}

func (m *MockEarningRuleRepository) RecordApplication(ctx context.Context, application *models.EarningRuleApplication) error {
	args := m.Called(ctx, application)
	return args.Error(0)
}

// MockEventPublisher is a mock implementation of EventPublisher. Published
// events are also recorded for direct inspection.
type MockEventPublisher struct {
	mock.Mock
	Events []events.Event
}

func (m *MockEventPublisher) Publish(event events.Event) {
	m.Events = append(m.Events, event)
	m.Called(event)
}

// MockIdentityProvider is a mock implementation of IdentityProvider
type MockIdentityProvider struct {
	mock.Mock
}

func (m *MockIdentityProvider) UserExists(ctx context.Context, userID int64) (bool, error) {
	args := m.Called(ctx, userID)
	return args.Bool(0), args.Error(1)
}

// MockProfileStore is a mock implementation of ProfileStore
type MockProfileStore struct {
	mock.Mock
}

func (m *MockProfileStore) Field(ctx context.Context, userID int64, key string) (string, bool, error) {
	args := m.Called(ctx, userID, key)
	return args.String(0), args.Bool(1), args.Error(2)
}

func (m *MockProfileStore) ConsecutiveLoginDays(ctx context.Context, userID int64) (int64, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockProfileStore) ProfileCompletion(ctx context.Context, userID int64) (int64, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockProfileStore) ReferralCount(ctx context.Context, userID int64) (int64, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(int64), args.Error(1)
}

// MockUnitOfWork is a mock implementation of UnitOfWork. Repository getters
// return the instances wired via SetRepositories rather than going through
// the expectation machinery.
type MockUnitOfWork struct {
	mock.Mock

	pointTypeRepo   PointTypeRepository
	balanceRepo     BalanceRepository
	transactionRepo PointTransactionRepository
	predictionRepo  PredictionRepository
	wagerRepo       WagerRepository
	rankRepo        RankRepository
	achievementRepo AchievementRepository
	earningRuleRepo EarningRuleRepository
	eventBus        EventPublisher
}

// SetRepositories wires the repository mocks this unit of work hands out.
// A nil repository argument is allowed when the test never touches it.
func (m *MockUnitOfWork) SetRepositories(
	pointTypeRepo PointTypeRepository,
	balanceRepo BalanceRepository,
	transactionRepo PointTransactionRepository,
	predictionRepo PredictionRepository,
	wagerRepo WagerRepository,
	rankRepo RankRepository,
	achievementRepo AchievementRepository,
	earningRuleRepo EarningRuleRepository,
	eventBus EventPublisher,
) {
	m.pointTypeRepo = pointTypeRepo
	m.balanceRepo = balanceRepo
	m.transactionRepo = transactionRepo
	m.predictionRepo = predictionRepo
	m.wagerRepo = wagerRepo
	m.rankRepo = rankRepo
	m.achievementRepo = achievementRepo
	m.earningRuleRepo = earningRuleRepo
	m.eventBus = eventBus
}

func (m *MockUnitOfWork) Begin(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockUnitOfWork) Commit() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockUnitOfWork) Rollback() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockUnitOfWork) PointTypeRepository() PointTypeRepository {
	return m.pointTypeRepo
}

func (m *MockUnitOfWork) BalanceRepository() BalanceRepository {
	return m.balanceRepo
}

func (m *MockUnitOfWork) PointTransactionRepository() PointTransactionRepository {
	return m.transactionRepo
}

func (m *MockUnitOfWork) PredictionRepository() PredictionRepository {
	return m.predictionRepo
}

func (m *MockUnitOfWork) WagerRepository() WagerRepository {
	return m.wagerRepo
}

func (m *MockUnitOfWork) RankRepository() RankRepository {
	return m.rankRepo
}

func (m *MockUnitOfWork) AchievementRepository() AchievementRepository {
	return m.achievementRepo
}

func (m *MockUnitOfWork) EarningRuleRepository() EarningRuleRepository {
	return m.earningRuleRepo
}

func (m *MockUnitOfWork) EventBus() EventPublisher {
	return m.eventBus
}

// MockUnitOfWorkFactory is a mock implementation of UnitOfWorkFactory
type MockUnitOfWorkFactory struct {
	mock.Mock
}

func (m *MockUnitOfWorkFactory) Create() UnitOfWork {
	args := m.Called()
	return args.Get(0).(UnitOfWork)
}
