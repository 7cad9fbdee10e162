package service

import (
	"context"
	"time"

	"betpoints/events"
	"betpoints/models"
)

// PointTypeRepository defines the interface for point type data access
type PointTypeRepository interface {
	// Create inserts a new point type
	Create(ctx context.Context, pointType *models.PointType) error

	// GetBySlug retrieves a point type by its slug, nil if not found
	GetBySlug(ctx context.Context, slug string) (*models.PointType, error)

	// GetByID retrieves a point type by its ID, nil if not found
	GetByID(ctx context.Context, id int64) (*models.PointType, error)

	// List returns all point types, optionally including deactivated ones
	List(ctx context.Context, includeInactive bool) ([]*models.PointType, error)

	// Deactivate soft-deletes a point type
	Deactivate(ctx context.Context, id int64) error
}

// BalanceRepository defines the interface for user point balance data access
type BalanceRepository interface {
	// Get retrieves the balance row for a (user, point type) pair, nil if absent
	Get(ctx context.Context, userID, pointTypeID int64) (*models.UserPointBalance, error)

	// GetForUpdate locks the balance row within the current transaction,
	// creating a zero row first if the pair has never been touched
	GetForUpdate(ctx context.Context, userID, pointTypeID int64) (*models.UserPointBalance, error)

	// Save writes the balance row's new balance and running totals
	Save(ctx context.Context, balance *models.UserPointBalance) error

	// GetLeaderboard returns the top balances for a point type
	GetLeaderboard(ctx context.Context, pointTypeID int64, limit int) ([]*models.UserPointBalance, error)
}

// PointTransactionRepository defines the interface for the append-only
// transaction log. Entries are immutable; there is no update or delete.
type PointTransactionRepository interface {
	// Append writes a new transaction log entry
	Append(ctx context.Context, transaction *models.PointTransaction) error

	// ListByUser returns transactions ordered by recency, optionally
	// filtered to one point type, paginated
	ListByUser(ctx context.Context, userID int64, pointTypeID *int64, limit, offset int) ([]*models.PointTransaction, error)

	// ListForReplay returns every transaction for a (user, point type)
	// pair in creation order
	ListForReplay(ctx context.Context, userID, pointTypeID int64) ([]*models.PointTransaction, error)

	// SumByUser returns lifetime earned and spent totals folded from the log
	SumByUser(ctx context.Context, userID, pointTypeID int64) (earned int64, spent int64, err error)
}

// PredictionRepository defines the interface for prediction data access
type PredictionRepository interface {
	// Create inserts a new open prediction
	Create(ctx context.Context, prediction *models.Prediction) error

	// GetByID retrieves a prediction by its ID, nil if not found
	GetByID(ctx context.Context, id int64) (*models.Prediction, error)

	// GetByIDForShare retrieves a prediction under a share lock; wager
	// placement holds it so resolution cannot claim mid-placement
	GetByIDForShare(ctx context.Context, id int64) (*models.Prediction, error)

	// GetByIDForUpdate retrieves a prediction under an exclusive lock;
	// resolution takes it before snapshotting the pools
	GetByIDForUpdate(ctx context.Context, id int64) (*models.Prediction, error)

	// ListOpen returns unresolved predictions still accepting wagers
	ListOpen(ctx context.Context, now time.Time) ([]*models.Prediction, error)

	// ListDueForResolution returns unresolved predictions past their closing time
	ListDueForResolution(ctx context.Context, now time.Time) ([]*models.Prediction, error)

	// ClaimResolution performs the one-way open -> resolved transition as
	// a compare-and-set; false means another caller already resolved it
	ClaimResolution(ctx context.Context, id int64, choice models.Outcome, method models.ResolutionMethod, resolvedAt time.Time) (bool, error)

	// RecordPayoutTotals persists the settlement summary
	RecordPayoutTotals(ctx context.Context, id int64, winnersCount int, totalWinnings int64) error
}

// WagerRepository defines the interface for wager data access
type WagerRepository interface {
	// Create inserts a new wager row
	Create(ctx context.Context, wager *models.Wager) error

	// GetStats aggregates all wagers for a prediction from the wager log
	GetStats(ctx context.Context, predictionID int64) (*models.PredictionStats, error)

	// ListByPrediction returns every wager placed on a prediction
	ListByPrediction(ctx context.Context, predictionID int64) ([]*models.Wager, error)

	// ListByUser returns a user's wagers annotated with prediction status
	ListByUser(ctx context.Context, userID int64, limit int) ([]*models.UserWagerView, error)

	// CountByUser returns a user's total and won wager counts
	CountByUser(ctx context.Context, userID int64) (total int64, won int64, err error)
}

// RankRepository defines the interface for rank ladder data access
type RankRepository interface {
	// Create inserts a new rank tier
	Create(ctx context.Context, rank *models.Rank) error

	// GetByID retrieves a rank by its ID, nil if not found
	GetByID(ctx context.Context, id int64) (*models.Rank, error)

	// ListActive returns the active rank ladder ordered by threshold
	ListActive(ctx context.Context) ([]*models.Rank, error)

	// GetCurrentForUpdate locks and returns the user's current rank row
	GetCurrentForUpdate(ctx context.Context, userID int64) (*models.UserRank, error)

	// GetCurrent returns the user's current rank row without locking
	GetCurrent(ctx context.Context, userID int64) (*models.UserRank, error)

	// ClearCurrent flips the user's current rank row to historical
	ClearCurrent(ctx context.Context, userID int64) error

	// InsertCurrent appends a new current rank history row
	InsertCurrent(ctx context.Context, userRank *models.UserRank) error
}

// AchievementRepository defines the interface for achievement data access
type AchievementRepository interface {
	// Create inserts a new achievement
	Create(ctx context.Context, achievement *models.Achievement) error

	// GetByID retrieves an achievement by its ID, nil if not found
	GetByID(ctx context.Context, id int64) (*models.Achievement, error)

	// ListActive returns all active achievements with decoded conditions
	ListActive(ctx context.Context) ([]*models.Achievement, error)

	// ListUnlocked returns the user's unlocks
	ListUnlocked(ctx context.Context, userID int64) ([]*models.UserAchievement, error)

	// InsertUnlock records a permanent unlock; false if already unlocked
	InsertUnlock(ctx context.Context, unlock *models.UserAchievement) (bool, error)
}

// EarningRuleRepository defines the interface for earning rule data access
type EarningRuleRepository interface {
	// Create inserts a new earning rule
	Create(ctx context.Context, rule *models.EarningRule) error

	// ListActiveByTrigger returns active rules ordered by priority descending
	ListActiveByTrigger(ctx context.Context, action models.TriggerAction) ([]*models.EarningRule, error)

	// ListActive returns every active rule across all triggers
	ListActive(ctx context.Context) ([]*models.EarningRule, error)

	// LockUserRule serializes concurrent cap checks for one (user, rule) pair
	LockUserRule(ctx context.Context, ruleID, userID int64) error

	// CountApplications counts applications, optionally since a cutoff
	CountApplications(ctx context.Context, ruleID, userID int64, since *time.Time) (int, error)

	// LastApplication returns the most recent application, nil if none
	LastApplication(ctx context.Context, ruleID, userID int64) (*models.EarningRuleApplication, error)

	// RecordApplication logs one grant of a rule to a user
	RecordApplication(ctx context.Context, application *models.EarningRuleApplication) error
}

// TransactionRef ties a ledger transaction to the entity that caused it.
type TransactionRef struct {
	Type models.ReferenceType
	ID   int64
}

// LedgerRequest carries the parameters of one balance mutation.
type LedgerRequest struct {
	UserID        int64
	Amount        int64
	PointTypeSlug string
	Reason        string
	Kind          models.TransactionKind
	Ref           *TransactionRef
	ActingAdminID *int64
}

// LedgerService owns per-user balances and the append-only transaction
// log. Each mutation is a single atomic unit; rank and achievement side
// effects ride on the event bus after commit, best-effort.
type LedgerService interface {
	// Award credits points. Kind defaults to earn; purchase and refund are
	// also accepted for gateway deposits and reversals.
	Award(ctx context.Context, req LedgerRequest) (*models.UserPointBalance, error)

	// Deduct debits points, failing with ErrInsufficientFunds rather than
	// driving the balance negative.
	Deduct(ctx context.Context, req LedgerRequest) (*models.UserPointBalance, error)

	// SetBalance overwrites the balance (admin path), logging the delta as
	// an adjust transaction. Amount is the target balance, >= 0.
	SetBalance(ctx context.Context, req LedgerRequest) (*models.UserPointBalance, error)

	// GetBalance returns the current balance, zero if the pair has never
	// been touched. Never fails on missing rows or unknown slugs.
	GetBalance(ctx context.Context, userID int64, pointTypeSlug string) (int64, error)

	// GetTransactionHistory returns transactions ordered by recency.
	GetTransactionHistory(ctx context.Context, userID int64, pointTypeSlug *string, limit, offset int) ([]*models.PointTransaction, error)

	// GetLeaderboard returns the top balances for a point type.
	GetLeaderboard(ctx context.Context, pointTypeSlug string, limit int) ([]*models.UserPointBalance, error)
}

// PointTypeService manages the currency registry
type PointTypeService interface {
	// CreatePointType registers a new currency
	CreatePointType(ctx context.Context, slug, name string, decimalPlaces int16) (*models.PointType, error)

	// DeactivatePointType soft-deletes a currency
	DeactivatePointType(ctx context.Context, id int64) error

	// GetPointType returns an active currency by slug
	GetPointType(ctx context.Context, slug string) (*models.PointType, error)

	// ListPointTypes returns registered currencies
	ListPointTypes(ctx context.Context, includeInactive bool) ([]*models.PointType, error)
}

// WagerService is the wager book: stake escrow, the immutable wager log
// and aggregates derived from it.
type WagerService interface {
	// CreatePrediction opens a new proposition
	CreatePrediction(ctx context.Context, title string, closingAt time.Time) (*models.Prediction, error)

	// GetPrediction retrieves a prediction by ID
	GetPrediction(ctx context.Context, id int64) (*models.Prediction, error)

	// ListOpenPredictions returns predictions still accepting wagers
	ListOpenPredictions(ctx context.Context) ([]*models.Prediction, error)

	// PlaceWager debits the stake and records the wager atomically
	PlaceWager(ctx context.Context, userID, predictionID int64, side models.WagerSide, amount int64) (*models.Wager, error)

	// GetStats aggregates the wagers on a prediction
	GetStats(ctx context.Context, predictionID int64) (*models.PredictionStats, error)

	// GetUserWagers returns a user's wagers ordered by recency
	GetUserWagers(ctx context.Context, userID int64, limit int) ([]*models.UserWagerView, error)
}

// ResolutionService settles predictions exactly once
type ResolutionService interface {
	// Resolve declares the outcome and settles payouts
	Resolve(ctx context.Context, predictionID int64, winningChoice models.WagerSide, method models.ResolutionMethod) (*models.ResolutionResult, error)

	// AutoResolve picks the winning side by stake volume
	AutoResolve(ctx context.Context, predictionID int64) (*models.ResolutionResult, error)

	// SweepDue auto-resolves every prediction past its closing time
	SweepDue(ctx context.Context) error
}

// RankService maps primary-currency balances onto the rank ladder
type RankService interface {
	// Recompute re-evaluates the user's rank after a balance change
	Recompute(ctx context.Context, userID int64) (*models.UserRank, error)

	// Progress returns the read-side ladder position
	Progress(ctx context.Context, userID int64) (*models.RankProgress, error)

	// CreateRank adds a tier to the ladder
	CreateRank(ctx context.Context, rank *models.Rank) error

	// ListRanks returns the active ladder
	ListRanks(ctx context.Context) ([]*models.Rank, error)
}

// AchievementService evaluates and awards one-time unlocks
type AchievementService interface {
	// Evaluate checks all locked achievements and unlocks those satisfied
	Evaluate(ctx context.Context, userID int64, trigger models.TriggerAction) ([]*models.UserAchievement, error)

	// Unlock records an unlock and awards its bonus; false if already held
	Unlock(ctx context.Context, userID, achievementID int64) (bool, error)

	// Progress returns per-achievement completion for a user
	Progress(ctx context.Context, userID int64) ([]*models.AchievementProgress, error)

	// CreateAchievement registers a new achievement
	CreateAchievement(ctx context.Context, achievement *models.Achievement) error

	// ListAchievements returns active achievements; secret ones are
	// omitted unless includeSecrets is set
	ListAchievements(ctx context.Context, includeSecrets bool) ([]*models.Achievement, error)

	// RegisterConditionHook installs an evaluator for an extension
	// condition key. Unregistered keys never satisfy (fail-closed).
	RegisterConditionHook(key string, hook ExtensionConditionFunc)
}

// EarningRulesService applies automated grant rules on platform triggers
type EarningRulesService interface {
	// Process evaluates all rules for a trigger and applies those that pass
	Process(ctx context.Context, userID int64, action models.TriggerAction, trigCtx *models.TriggerContext) ([]*models.EarningRuleApplication, error)

	// CreateRule registers a new earning rule
	CreateRule(ctx context.Context, rule *models.EarningRule) error

	// ListRules returns every active earning rule
	ListRules(ctx context.Context) ([]*models.EarningRule, error)
}

// ExtensionConditionFunc evaluates an extension achievement condition.
type ExtensionConditionFunc func(ctx context.Context, userID int64, condition models.AchievementCondition, stats *models.UserStatistics) (bool, error)

// IdentityProvider is the external identity collaborator.
type IdentityProvider interface {
	// UserExists reports whether a user ID is known to the platform
	UserExists(ctx context.Context, userID int64) (bool, error)
}

// ProfileStore is the external profile collaborator feeding condition checks.
type ProfileStore interface {
	// Field returns a profile field value and whether it is set
	Field(ctx context.Context, userID int64, key string) (string, bool, error)

	// ConsecutiveLoginDays returns the user's login streak
	ConsecutiveLoginDays(ctx context.Context, userID int64) (int64, error)

	// ProfileCompletion returns the profile completion percentage (0-100)
	ProfileCompletion(ctx context.Context, userID int64) (int64, error)

	// ReferralCount returns the number of users this user referred
	ReferralCount(ctx context.Context, userID int64) (int64, error)
}

// EventPublisher defines the interface for publishing events
type EventPublisher interface {
	Publish(event events.Event)
}

// UnitOfWork defines the interface for transactional repository operations
type UnitOfWork interface {
	// Begin starts a new transaction
	Begin(ctx context.Context) error

	// Commit commits the transaction
	Commit() error

	// Rollback rolls back the transaction
	Rollback() error

	// Repository getters
	PointTypeRepository() PointTypeRepository
	BalanceRepository() BalanceRepository
	PointTransactionRepository() PointTransactionRepository
	PredictionRepository() PredictionRepository
	WagerRepository() WagerRepository
	RankRepository() RankRepository
	AchievementRepository() AchievementRepository
	EarningRuleRepository() EarningRuleRepository
	EventBus() EventPublisher
}

// UnitOfWorkFactory defines the interface for creating UnitOfWork instances
type UnitOfWorkFactory interface {
	// Create creates a new UnitOfWork instance
	Create() UnitOfWork
}
