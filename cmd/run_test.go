package cmd

import (
	"context"
	"testing"
	"time"

	"betpoints/events"
	"betpoints/models"
	"betpoints/service"

	"github.com/stretchr/testify/assert"
)

func TestAwardTrigger(t *testing.T) {
	tests := []struct {
		name         string
		event        events.PointsAwardedEvent
		trigger      models.TriggerAction
		processRules bool
	}{
		{
			name:         "prediction winnings",
			event:        events.PointsAwardedEvent{Kind: models.TransactionKindEarn, ReferenceType: models.ReferenceTypePrediction},
			trigger:      models.TriggerBetWon,
			processRules: true,
		},
		{
			name:         "purchase",
			event:        events.PointsAwardedEvent{Kind: models.TransactionKindPurchase, ReferenceType: models.ReferenceTypeGatewayTransaction},
			trigger:      models.TriggerPurchase,
			processRules: true,
		},
		{
			name:  "earning rule grant",
			event: events.PointsAwardedEvent{Kind: models.TransactionKindEarn, ReferenceType: models.ReferenceTypeEarningRule},
		},
		{
			name:  "achievement bonus",
			event: events.PointsAwardedEvent{Kind: models.TransactionKindEarn, ReferenceType: models.ReferenceTypeAchievement},
		},
		{
			name:  "admin adjustment",
			event: events.PointsAwardedEvent{Kind: models.TransactionKindAdjust},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			trigger, processRules := awardTrigger(tt.event)
			assert.Equal(t, tt.trigger, trigger)
			assert.Equal(t, tt.processRules, processRules)
		})
	}
}

type stubRankService struct{}

func (*stubRankService) Recompute(context.Context, int64) (*models.UserRank, error) {
	return nil, nil
}
func (*stubRankService) Progress(context.Context, int64) (*models.RankProgress, error) {
	return nil, nil
}
func (*stubRankService) CreateRank(context.Context, *models.Rank) error { return nil }
func (*stubRankService) ListRanks(context.Context) ([]*models.Rank, error) {
	return nil, nil
}

type stubAchievementService struct{}

func (*stubAchievementService) Evaluate(context.Context, int64, models.TriggerAction) ([]*models.UserAchievement, error) {
	return nil, nil
}
func (*stubAchievementService) Unlock(context.Context, int64, int64) (bool, error) {
	return false, nil
}
func (*stubAchievementService) Progress(context.Context, int64) ([]*models.AchievementProgress, error) {
	return nil, nil
}
func (*stubAchievementService) CreateAchievement(context.Context, *models.Achievement) error {
	return nil
}
func (*stubAchievementService) ListAchievements(context.Context, bool) ([]*models.Achievement, error) {
	return nil, nil
}
func (*stubAchievementService) RegisterConditionHook(string, service.ExtensionConditionFunc) {}

type processedCall struct {
	trigger models.TriggerAction
	base    int64
}

type stubEarningRulesService struct {
	calls chan processedCall
}

func (s *stubEarningRulesService) Process(_ context.Context, _ int64, action models.TriggerAction, trigCtx *models.TriggerContext) ([]*models.EarningRuleApplication, error) {
	s.calls <- processedCall{trigger: action, base: trigCtx.BaseAmount}
	return nil, nil
}
func (*stubEarningRulesService) CreateRule(context.Context, *models.EarningRule) error { return nil }
func (*stubEarningRulesService) ListRules(context.Context) ([]*models.EarningRule, error) {
	return nil, nil
}

func TestSubscribeSideEffects_WinningsDriveBetWonRules(t *testing.T) {
	bus := events.NewBus()
	rules := &stubEarningRulesService{calls: make(chan processedCall, 4)}
	subscribeSideEffects(bus, &stubRankService{}, &stubAchievementService{}, rules)

	bus.Emit(context.Background(), events.PointsAwardedEvent{
		UserID:        42,
		Kind:          models.TransactionKindEarn,
		Amount:        600,
		ReferenceType: models.ReferenceTypePrediction,
		ReferenceID:   1,
	})

	select {
	case call := <-rules.calls:
		assert.Equal(t, models.TriggerBetWon, call.trigger)
		assert.Equal(t, int64(600), call.base)
	case <-time.After(2 * time.Second):
		t.Fatal("winnings award did not reach the earning rules engine")
	}

	// The engine's own grant must not re-enter rule processing.
	bus.Emit(context.Background(), events.PointsAwardedEvent{
		UserID:        42,
		Kind:          models.TransactionKindEarn,
		Amount:        50,
		ReferenceType: models.ReferenceTypeEarningRule,
		ReferenceID:   3,
	})
	select {
	case call := <-rules.calls:
		t.Fatalf("rule grant re-entered rule processing as %q", call.trigger)
	case <-time.After(300 * time.Millisecond):
	}
}

func TestSubscribeSideEffects_StakeDrivesBetPlacedRules(t *testing.T) {
	bus := events.NewBus()
	rules := &stubEarningRulesService{calls: make(chan processedCall, 4)}
	subscribeSideEffects(bus, &stubRankService{}, &stubAchievementService{}, rules)

	bus.Emit(context.Background(), events.PointsDeductedEvent{
		UserID:        42,
		Kind:          models.TransactionKindSpend,
		Amount:        300,
		ReferenceType: models.ReferenceTypePrediction,
		ReferenceID:   1,
	})

	select {
	case call := <-rules.calls:
		assert.Equal(t, models.TriggerBetPlaced, call.trigger)
		assert.Equal(t, int64(300), call.base)
	case <-time.After(2 * time.Second):
		t.Fatal("stake deduction did not reach the earning rules engine")
	}

	// Admin deductions carry no prediction reference and trigger nothing.
	bus.Emit(context.Background(), events.PointsDeductedEvent{
		UserID: 42,
		Kind:   models.TransactionKindAdjust,
		Amount: 100,
	})
	select {
	case call := <-rules.calls:
		t.Fatalf("admin deduction re-entered rule processing as %q", call.trigger)
	case <-time.After(300 * time.Millisecond):
	}
}
