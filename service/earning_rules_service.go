package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"betpoints/models"
	log "github.com/sirupsen/logrus"
)

type earningRulesService struct {
	uowFactory      UnitOfWorkFactory
	identity        IdentityProvider
	profiles        ProfileStore
	primaryCurrency string
}

// NewEarningRulesService creates a new earning rules service. identity and
// profiles are optional collaborators; when identity is nil every user is
// assumed to exist, and profile-field conditions fail without a profile
// backend.
func NewEarningRulesService(uowFactory UnitOfWorkFactory, identity IdentityProvider, profiles ProfileStore, primaryCurrency string) EarningRulesService {
	return &earningRulesService{
		uowFactory:      uowFactory,
		identity:        identity,
		profiles:        profiles,
		primaryCurrency: primaryCurrency,
	}
}

// Process evaluates every active rule bound to the trigger, in priority
// order, and applies those whose conditions and caps pass. Each rule
// application is its own atomic unit: the cap check, the credit and the
// application record commit or roll back together.
func (s *earningRulesService) Process(ctx context.Context, userID int64, action models.TriggerAction, trigCtx *models.TriggerContext) ([]*models.EarningRuleApplication, error) {
	if s.identity != nil {
		exists, err := s.identity.UserExists(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("failed to check user identity: %w", err)
		}
		if !exists {
			return nil, fmt.Errorf("%w: user %d is not known", ErrValidation, userID)
		}
	}

	listUow := s.uowFactory.Create()
	if err := listUow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	rules, err := listUow.EarningRuleRepository().ListActiveByTrigger(ctx, action)
	listUow.Rollback()
	if err != nil {
		return nil, fmt.Errorf("failed to list earning rules: %w", err)
	}

	var applications []*models.EarningRuleApplication
	for _, rule := range rules {
		application, err := s.applyRule(ctx, userID, rule, action, trigCtx)
		if err != nil {
			log.WithFields(log.Fields{
				"userID": userID,
				"rule":   rule.Name,
			}).WithError(err).Error("Failed to apply earning rule")
			continue
		}
		if application != nil {
			applications = append(applications, application)
		}
	}
	return applications, nil
}

// CreateRule registers a new earning rule. Conditions must already be
// decoded on the model.
func (s *earningRulesService) CreateRule(ctx context.Context, rule *models.EarningRule) error {
	if rule.Name = strings.TrimSpace(rule.Name); rule.Name == "" {
		return fmt.Errorf("%w: rule name is required", ErrValidation)
	}
	if rule.TriggerAction == "" {
		return fmt.Errorf("%w: trigger action is required", ErrValidation)
	}
	if rule.PointsAwarded < 0 {
		return fmt.Errorf("%w: points awarded cannot be negative", ErrValidation)
	}

	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	rule.Active = true
	if err := uow.EarningRuleRepository().Create(ctx, rule); err != nil {
		return fmt.Errorf("failed to create rule: %w", err)
	}

	if err := uow.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	log.WithFields(log.Fields{
		"rule":    rule.Name,
		"trigger": rule.TriggerAction,
	}).Info("Earning rule created")

	return nil
}

// ListRules returns every active rule across all triggers.
func (s *earningRulesService) ListRules(ctx context.Context) ([]*models.EarningRule, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	rules, err := uow.EarningRuleRepository().ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list rules: %w", err)
	}

	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return rules, nil
}

// applyRule runs one rule through its conditions and caps and, on success,
// credits the user and records the application. Returns nil without error
// when the rule simply does not apply.
func (s *earningRulesService) applyRule(ctx context.Context, userID int64, rule *models.EarningRule, action models.TriggerAction, trigCtx *models.TriggerContext) (*models.EarningRuleApplication, error) {
	amount := rule.AwardAmount(trigCtx)
	if amount <= 0 {
		return nil, nil
	}

	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	// Cap checks count application rows, which cannot be row-locked before
	// they exist. The advisory lock serializes concurrent triggers for the
	// same (rule, user) pair for the rest of this transaction.
	if err := uow.EarningRuleRepository().LockUserRule(ctx, rule.ID, userID); err != nil {
		return nil, fmt.Errorf("failed to lock rule application: %w", err)
	}

	passes, err := s.conditionsPass(ctx, uow, userID, rule, trigCtx)
	if err != nil {
		return nil, err
	}
	if !passes {
		return nil, nil
	}

	if rule.MaxDailyAwards != nil {
		midnight := time.Now().UTC().Truncate(24 * time.Hour)
		count, err := uow.EarningRuleRepository().CountApplications(ctx, rule.ID, userID, &midnight)
		if err != nil {
			return nil, fmt.Errorf("failed to count daily applications: %w", err)
		}
		if count >= *rule.MaxDailyAwards {
			return nil, nil
		}
	}
	if rule.MaxTotalAwards != nil {
		count, err := uow.EarningRuleRepository().CountApplications(ctx, rule.ID, userID, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to count applications: %w", err)
		}
		if count >= *rule.MaxTotalAwards {
			return nil, nil
		}
	}

	pointType, err := resolvePointType(ctx, uow, s.primaryCurrency)
	if err != nil {
		return nil, err
	}

	refType := models.ReferenceTypeEarningRule
	if _, err := CreditBalance(ctx, uow, pointType, LedgerRequest{
		UserID: userID,
		Amount: amount,
		Kind:   models.TransactionKindEarn,
		Reason: fmt.Sprintf("Earning rule: %s", rule.Name),
		Ref:    &TransactionRef{Type: refType, ID: rule.ID},
	}); err != nil {
		return nil, err
	}

	application := &models.EarningRuleApplication{
		RuleID:        rule.ID,
		UserID:        userID,
		TriggerAction: action,
		PointsAwarded: amount,
		AppliedAt:     time.Now().UTC(),
	}
	if err := uow.EarningRuleRepository().RecordApplication(ctx, application); err != nil {
		return nil, fmt.Errorf("failed to record application: %w", err)
	}

	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	log.WithFields(log.Fields{
		"userID": userID,
		"rule":   rule.Name,
		"amount": amount,
	}).Info("Earning rule applied")

	return application, nil
}

// conditionsPass evaluates every gating condition of a rule inside the
// caller's transaction. percent_of_base is handled by AwardAmount, not here.
func (s *earningRulesService) conditionsPass(ctx context.Context, uow UnitOfWork, userID int64, rule *models.EarningRule, trigCtx *models.TriggerContext) (bool, error) {
	for _, condition := range rule.Conditions {
		switch condition.Kind {
		case models.RuleConditionPercentOfBase:
			continue

		case models.RuleConditionMinElapsedMinutes:
			last, err := uow.EarningRuleRepository().LastApplication(ctx, rule.ID, userID)
			if err != nil {
				return false, fmt.Errorf("failed to get last application: %w", err)
			}
			if last != nil && time.Since(last.AppliedAt) < time.Duration(condition.Value)*time.Minute {
				return false, nil
			}

		case models.RuleConditionRequiredFields:
			if s.profiles == nil {
				return false, nil
			}
			for _, field := range condition.Fields {
				value, set, err := s.profiles.Field(ctx, userID, field)
				if err != nil {
					return false, fmt.Errorf("failed to read profile field %q: %w", field, err)
				}
				if !set || strings.TrimSpace(value) == "" {
					return false, nil
				}
			}

		case models.RuleConditionMinWagerAmount:
			if trigCtx == nil || trigCtx.WagerAmount < condition.Value {
				return false, nil
			}

		case models.RuleConditionRoleMatch:
			if !trigCtx.HasRole(condition.Match) {
				return false, nil
			}

		case models.RuleConditionCategoryMatch:
			if trigCtx == nil || trigCtx.Category != condition.Match {
				return false, nil
			}

		default:
			// DecodeRuleConditions rejects unknown kinds; reaching here
			// means the rule was built in code with a bad condition.
			return false, fmt.Errorf("unknown rule condition %q", condition.Kind)
		}
	}
	return true, nil
}
