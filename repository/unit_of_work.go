package repository

import (
	"context"
	"fmt"

	"betpoints/database"
	"betpoints/events"
	"betpoints/service"
	"github.com/jackc/pgx/v5"
)

// unitOfWork implements the UnitOfWork interface
type unitOfWork struct {
	db               *database.DB
	tx               pgx.Tx
	ctx              context.Context
	transactionalBus *events.TransactionalBus
	pointTypeRepo    service.PointTypeRepository
	balanceRepo      service.BalanceRepository
	transactionRepo  service.PointTransactionRepository
	predictionRepo   service.PredictionRepository
	wagerRepo        service.WagerRepository
	rankRepo         service.RankRepository
	achievementRepo  service.AchievementRepository
	earningRuleRepo  service.EarningRuleRepository
}

// NewUnitOfWorkFactory creates a new UnitOfWork factory
func NewUnitOfWorkFactory(db *database.DB, eventBus *events.Bus) service.UnitOfWorkFactory {
	return &unitOfWorkFactory{
		db:       db,
		eventBus: eventBus,
	}
}

type unitOfWorkFactory struct {
	db       *database.DB
	eventBus *events.Bus
}

func (f *unitOfWorkFactory) Create() service.UnitOfWork {
	return &unitOfWork{
		db:               f.db,
		transactionalBus: events.NewTransactionalBus(f.eventBus),
	}
}

// Begin starts a new transaction
func (u *unitOfWork) Begin(ctx context.Context) error {
	if u.tx != nil {
		return fmt.Errorf("transaction already started")
	}

	tx, err := u.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	u.tx = tx
	u.ctx = ctx

	// Create repositories with the transaction
	u.pointTypeRepo = newPointTypeRepositoryWithTx(tx)
	u.balanceRepo = newBalanceRepositoryWithTx(tx)
	u.transactionRepo = newPointTransactionRepositoryWithTx(tx)
	u.predictionRepo = newPredictionRepositoryWithTx(tx)
	u.wagerRepo = newWagerRepositoryWithTx(tx)
	u.rankRepo = newRankRepositoryWithTx(tx)
	u.achievementRepo = newAchievementRepositoryWithTx(tx)
	u.earningRuleRepo = newEarningRuleRepositoryWithTx(tx)

	return nil
}

// Commit commits the transaction
func (u *unitOfWork) Commit() error {
	if u.tx == nil {
		return fmt.Errorf("no transaction to commit")
	}

	err := u.tx.Commit(u.ctx)
	if err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	u.tx = nil

	// Flush pending events after successful commit
	if u.transactionalBus != nil {
		u.transactionalBus.Flush(u.ctx)
	}

	return nil
}

// Rollback rolls back the transaction
func (u *unitOfWork) Rollback() error {
	if u.tx == nil {
		return nil // Nothing to rollback
	}

	err := u.tx.Rollback(u.ctx)
	if err != nil && err != pgx.ErrTxClosed {
		return fmt.Errorf("failed to rollback transaction: %w", err)
	}

	u.tx = nil

	// Discard pending events on rollback
	if u.transactionalBus != nil {
		u.transactionalBus.Discard()
	}

	return nil
}

// PointTypeRepository returns the point type repository for this unit of work
func (u *unitOfWork) PointTypeRepository() service.PointTypeRepository {
	if u.pointTypeRepo == nil {
		panic("unit of work not started - call Begin() first")
	}
	return u.pointTypeRepo
}

// BalanceRepository returns the balance repository for this unit of work
func (u *unitOfWork) BalanceRepository() service.BalanceRepository {
	if u.balanceRepo == nil {
		panic("unit of work not started - call Begin() first")
	}
	return u.balanceRepo
}

// PointTransactionRepository returns the transaction log repository for this unit of work
func (u *unitOfWork) PointTransactionRepository() service.PointTransactionRepository {
	if u.transactionRepo == nil {
		panic("unit of work not started - call Begin() first")
	}
	return u.transactionRepo
}

// PredictionRepository returns the prediction repository for this unit of work
func (u *unitOfWork) PredictionRepository() service.PredictionRepository {
	if u.predictionRepo == nil {
		panic("unit of work not started - call Begin() first")
	}
	return u.predictionRepo
}

// WagerRepository returns the wager repository for this unit of work
func (u *unitOfWork) WagerRepository() service.WagerRepository {
	if u.wagerRepo == nil {
		panic("unit of work not started - call Begin() first")
	}
	return u.wagerRepo
}

// RankRepository returns the rank repository for this unit of work
func (u *unitOfWork) RankRepository() service.RankRepository {
	if u.rankRepo == nil {
		panic("unit of work not started - call Begin() first")
	}
	return u.rankRepo
}

// AchievementRepository returns the achievement repository for this unit of work
func (u *unitOfWork) AchievementRepository() service.AchievementRepository {
	if u.achievementRepo == nil {
		panic("unit of work not started - call Begin() first")
	}
	return u.achievementRepo
}

// EarningRuleRepository returns the earning rule repository for this unit of work
func (u *unitOfWork) EarningRuleRepository() service.EarningRuleRepository {
	if u.earningRuleRepo == nil {
		panic("unit of work not started - call Begin() first")
	}
	return u.earningRuleRepo
}

// EventBus returns the transactional event bus for this unit of work
func (u *unitOfWork) EventBus() service.EventPublisher {
	if u.transactionalBus == nil {
		panic("unit of work not started - call Begin() first")
	}
	return u.transactionalBus
}
