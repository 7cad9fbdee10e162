package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"betpoints/events"
	"betpoints/models"
	log "github.com/sirupsen/logrus"
)

type achievementService struct {
	uowFactory      UnitOfWorkFactory
	ledger          LedgerService
	profiles        ProfileStore
	primaryCurrency string

	hookMu sync.RWMutex
	hooks  map[string]ExtensionConditionFunc
}

// NewAchievementService creates a new achievement service. profiles may be
// nil when no profile backend is wired; profile-sourced statistics then read
// as zero.
func NewAchievementService(uowFactory UnitOfWorkFactory, ledger LedgerService, profiles ProfileStore, primaryCurrency string) AchievementService {
	return &achievementService{
		uowFactory:      uowFactory,
		ledger:          ledger,
		profiles:        profiles,
		primaryCurrency: primaryCurrency,
		hooks:           make(map[string]ExtensionConditionFunc),
	}
}

// RegisterConditionHook installs an evaluator for an extension condition
// key. Conditions with no registered hook never satisfy.
func (s *achievementService) RegisterConditionHook(key string, hook ExtensionConditionFunc) {
	s.hookMu.Lock()
	defer s.hookMu.Unlock()
	s.hooks[key] = hook
}

// Evaluate checks every locked achievement against the user's current
// statistics and unlocks those fully satisfied. Returns the new unlocks.
func (s *achievementService) Evaluate(ctx context.Context, userID int64, trigger models.TriggerAction) ([]*models.UserAchievement, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}

	achievements, err := uow.AchievementRepository().ListActive(ctx)
	if err != nil {
		uow.Rollback()
		return nil, fmt.Errorf("failed to list achievements: %w", err)
	}

	unlocked, err := uow.AchievementRepository().ListUnlocked(ctx, userID)
	if err != nil {
		uow.Rollback()
		return nil, fmt.Errorf("failed to list unlocks: %w", err)
	}

	stats, err := s.collectStatistics(ctx, uow, userID)
	uow.Rollback()
	if err != nil {
		return nil, err
	}

	held := make(map[int64]bool, len(unlocked))
	for _, u := range unlocked {
		held[u.AchievementID] = true
	}

	var newUnlocks []*models.UserAchievement
	for _, achievement := range achievements {
		if held[achievement.ID] {
			continue
		}
		satisfied, err := s.conditionsSatisfied(ctx, userID, achievement, stats)
		if err != nil {
			log.WithFields(log.Fields{
				"userID":      userID,
				"achievement": achievement.Slug,
			}).WithError(err).Error("Failed to evaluate achievement conditions")
			continue
		}
		if !satisfied {
			continue
		}

		unlock, fresh, err := s.unlock(ctx, userID, achievement, stats)
		if err != nil {
			log.WithFields(log.Fields{
				"userID":      userID,
				"achievement": achievement.Slug,
			}).WithError(err).Error("Failed to unlock achievement")
			continue
		}
		if fresh {
			newUnlocks = append(newUnlocks, unlock)
		}
	}

	return newUnlocks, nil
}

// Unlock records an unlock for a specific achievement and awards its bonus.
// Returns false when the user already holds it.
func (s *achievementService) Unlock(ctx context.Context, userID, achievementID int64) (bool, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}

	achievement, err := uow.AchievementRepository().GetByID(ctx, achievementID)
	if err != nil {
		uow.Rollback()
		return false, fmt.Errorf("failed to get achievement: %w", err)
	}
	if achievement == nil {
		uow.Rollback()
		return false, fmt.Errorf("%w: achievement %d not found", ErrValidation, achievementID)
	}

	stats, err := s.collectStatistics(ctx, uow, userID)
	uow.Rollback()
	if err != nil {
		return false, err
	}

	_, fresh, err := s.unlock(ctx, userID, achievement, stats)
	return fresh, err
}

// Progress returns per-achievement completion for a user. Secret
// achievements are included only once unlocked.
func (s *achievementService) Progress(ctx context.Context, userID int64) ([]*models.AchievementProgress, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}

	achievements, err := uow.AchievementRepository().ListActive(ctx)
	if err != nil {
		uow.Rollback()
		return nil, fmt.Errorf("failed to list achievements: %w", err)
	}

	unlocked, err := uow.AchievementRepository().ListUnlocked(ctx, userID)
	if err != nil {
		uow.Rollback()
		return nil, fmt.Errorf("failed to list unlocks: %w", err)
	}

	stats, err := s.collectStatistics(ctx, uow, userID)
	uow.Rollback()
	if err != nil {
		return nil, err
	}

	unlockedAt := make(map[int64]time.Time, len(unlocked))
	for _, u := range unlocked {
		unlockedAt[u.AchievementID] = u.UnlockedAt
	}

	progress := make([]*models.AchievementProgress, 0, len(achievements))
	for _, achievement := range achievements {
		at, isUnlocked := unlockedAt[achievement.ID]
		if achievement.IsSecret && !isUnlocked {
			continue
		}

		entry := &models.AchievementProgress{
			Achievement: achievement,
			Unlocked:    isUnlocked,
			Completion:  make(map[string][2]int64),
		}
		if isUnlocked {
			t := at
			entry.UnlockedAt = &t
		}
		for _, condition := range achievement.Conditions {
			if condition.Kind == models.ConditionKindExtension {
				continue
			}
			value, _ := stats.Value(condition.Kind)
			entry.Completion[condition.Key] = [2]int64{value, condition.Threshold}
		}
		progress = append(progress, entry)
	}
	return progress, nil
}

// CreateAchievement registers a new achievement. Conditions must already be
// decoded on the model.
func (s *achievementService) CreateAchievement(ctx context.Context, achievement *models.Achievement) error {
	if achievement.Slug = strings.TrimSpace(strings.ToLower(achievement.Slug)); achievement.Slug == "" {
		return fmt.Errorf("%w: achievement slug is required", ErrValidation)
	}
	if achievement.Name = strings.TrimSpace(achievement.Name); achievement.Name == "" {
		return fmt.Errorf("%w: achievement name is required", ErrValidation)
	}
	if achievement.PointsReward < 0 {
		return fmt.Errorf("%w: points reward cannot be negative", ErrValidation)
	}

	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	achievement.Active = true
	if err := uow.AchievementRepository().Create(ctx, achievement); err != nil {
		return fmt.Errorf("failed to create achievement: %w", err)
	}

	if err := uow.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	log.WithField("slug", achievement.Slug).Info("Achievement created")
	return nil
}

// ListAchievements returns the active achievements. Secret ones stay
// hidden until unlocked, so listings for regular users omit them.
func (s *achievementService) ListAchievements(ctx context.Context, includeSecrets bool) ([]*models.Achievement, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	achievements, err := uow.AchievementRepository().ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list achievements: %w", err)
	}

	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	if includeSecrets {
		return achievements, nil
	}
	visible := make([]*models.Achievement, 0, len(achievements))
	for _, achievement := range achievements {
		if achievement.IsSecret {
			continue
		}
		visible = append(visible, achievement)
	}
	return visible, nil
}

// unlock records the unlock row and, once committed, awards the bonus in a
// separate ledger transaction. A crash between the two leaves a recorded
// unlock with a missing bonus, which is recoverable; paying before
// recording could double-pay.
func (s *achievementService) unlock(ctx context.Context, userID int64, achievement *models.Achievement, stats *models.UserStatistics) (*models.UserAchievement, bool, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	unlock := &models.UserAchievement{
		UserID:           userID,
		AchievementID:    achievement.ID,
		UnlockedAt:       time.Now().UTC(),
		ProgressSnapshot: stats.Snapshot(),
	}
	inserted, err := uow.AchievementRepository().InsertUnlock(ctx, unlock)
	if err != nil {
		return nil, false, fmt.Errorf("failed to insert unlock: %w", err)
	}
	if !inserted {
		return nil, false, nil
	}

	uow.EventBus().Publish(events.AchievementUnlockedEvent{
		UserID:        userID,
		AchievementID: achievement.ID,
		Slug:          achievement.Slug,
		PointsReward:  achievement.PointsReward,
		UnlockedAt:    unlock.UnlockedAt,
	})

	if err := uow.Commit(); err != nil {
		return nil, false, fmt.Errorf("failed to commit unlock: %w", err)
	}

	if achievement.PointsReward > 0 {
		refType := models.ReferenceTypeAchievement
		_, err := s.ledger.Award(ctx, LedgerRequest{
			UserID:        userID,
			Amount:        achievement.PointsReward,
			PointTypeSlug: s.primaryCurrency,
			Kind:          models.TransactionKindEarn,
			Reason:        fmt.Sprintf("Achievement unlocked: %s", achievement.Name),
			Ref:           &TransactionRef{Type: refType, ID: achievement.ID},
		})
		if err != nil {
			log.WithFields(log.Fields{
				"userID":      userID,
				"achievement": achievement.Slug,
				"reward":      achievement.PointsReward,
			}).WithError(err).Error("Failed to award achievement bonus")
		}
	}

	log.WithFields(log.Fields{
		"userID":      userID,
		"achievement": achievement.Slug,
	}).Info("Achievement unlocked")

	return unlock, true, nil
}

// conditionsSatisfied checks every condition of an achievement. Extension
// conditions delegate to their registered hook and fail closed when no hook
// is registered or the hook errors.
func (s *achievementService) conditionsSatisfied(ctx context.Context, userID int64, achievement *models.Achievement, stats *models.UserStatistics) (bool, error) {
	if len(achievement.Conditions) == 0 {
		// An achievement with no conditions is unlockable only explicitly.
		return false, nil
	}
	for _, condition := range achievement.Conditions {
		if condition.Kind == models.ConditionKindExtension {
			s.hookMu.RLock()
			hook, ok := s.hooks[condition.Key]
			s.hookMu.RUnlock()
			if !ok {
				log.WithFields(log.Fields{
					"achievement": achievement.Slug,
					"condition":   condition.Key,
				}).Warn("No hook registered for extension condition")
				return false, nil
			}
			satisfied, err := hook(ctx, userID, condition, stats)
			if err != nil {
				return false, fmt.Errorf("extension condition %q: %w", condition.Key, err)
			}
			if !satisfied {
				return false, nil
			}
			continue
		}

		value, known := stats.Value(condition.Kind)
		if !known || value < condition.Threshold {
			return false, nil
		}
	}
	return true, nil
}

// collectStatistics assembles the evaluation snapshot from the ledger, the
// wager book and the profile store, all inside the caller's unit of work.
func (s *achievementService) collectStatistics(ctx context.Context, uow UnitOfWork, userID int64) (*models.UserStatistics, error) {
	stats := &models.UserStatistics{}

	pointType, err := uow.PointTypeRepository().GetBySlug(ctx, s.primaryCurrency)
	if err != nil {
		return nil, fmt.Errorf("failed to get point type: %w", err)
	}
	if pointType != nil {
		balance, err := uow.BalanceRepository().Get(ctx, userID, pointType.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to get balance: %w", err)
		}
		if balance != nil {
			stats.CurrentBalance = balance.Balance
			stats.TotalEarned = balance.TotalEarned
			stats.TotalSpent = balance.TotalSpent
		}
	}

	total, won, err := uow.WagerRepository().CountByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to count wagers: %w", err)
	}
	stats.TotalWagers = total
	stats.WagersWon = won

	if s.profiles != nil {
		if stats.ConsecutiveLoginDays, err = s.profiles.ConsecutiveLoginDays(ctx, userID); err != nil {
			return nil, fmt.Errorf("failed to read login streak: %w", err)
		}
		if stats.ProfileCompletion, err = s.profiles.ProfileCompletion(ctx, userID); err != nil {
			return nil, fmt.Errorf("failed to read profile completion: %w", err)
		}
		if stats.ReferralCount, err = s.profiles.ReferralCount(ctx, userID); err != nil {
			return nil, fmt.Errorf("failed to read referral count: %w", err)
		}
	}

	return stats, nil
}
