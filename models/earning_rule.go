package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// TriggerAction is a platform action earning rules key on.
type TriggerAction string

const (
	TriggerLogin            TriggerAction = "login"
	TriggerRegistration     TriggerAction = "registration"
	TriggerBetPlaced        TriggerAction = "bet_placed"
	TriggerBetWon           TriggerAction = "bet_won"
	TriggerReferral         TriggerAction = "referral"
	TriggerProfileCompleted TriggerAction = "profile_completed"
	TriggerPurchase         TriggerAction = "purchase"
)

// RuleConditionKind identifies one earning-rule predicate.
type RuleConditionKind string

const (
	RuleConditionMinElapsedMinutes RuleConditionKind = "min_elapsed_minutes"
	RuleConditionRequiredFields    RuleConditionKind = "required_profile_fields"
	RuleConditionMinWagerAmount    RuleConditionKind = "min_wager_amount"
	RuleConditionRoleMatch         RuleConditionKind = "role_match"
	RuleConditionCategoryMatch     RuleConditionKind = "category_match"
	RuleConditionPercentOfBase     RuleConditionKind = "percent_of_base"
)

// RuleCondition is one decoded earning-rule condition. percent_of_base is
// special: rather than gating the rule it replaces the flat award with a
// percentage of the trigger's base amount.
type RuleCondition struct {
	Kind    RuleConditionKind
	Value   int64
	Fields  []string
	Match   string
	Percent decimal.Decimal
}

// DecodeRuleConditions parses the stored conditions JSON object into typed
// conditions, decoded once at rule load time. Unknown keys are rejected:
// rules are admin-authored and a typo must not silently grant points.
func DecodeRuleConditions(raw []byte) ([]RuleCondition, error) {
	if len(raw) == 0 {
		return nil, nil
	}

	var object map[string]json.RawMessage
	if err := json.Unmarshal(raw, &object); err != nil {
		return nil, fmt.Errorf("failed to decode rule conditions: %w", err)
	}

	conditions := make([]RuleCondition, 0, len(object))
	for key, value := range object {
		condition := RuleCondition{Kind: RuleConditionKind(key)}
		switch condition.Kind {
		case RuleConditionMinElapsedMinutes, RuleConditionMinWagerAmount:
			if err := json.Unmarshal(value, &condition.Value); err != nil {
				return nil, fmt.Errorf("condition %q requires an integer value: %w", key, err)
			}
		case RuleConditionRequiredFields:
			if err := json.Unmarshal(value, &condition.Fields); err != nil {
				return nil, fmt.Errorf("condition %q requires a string list: %w", key, err)
			}
		case RuleConditionRoleMatch, RuleConditionCategoryMatch:
			if err := json.Unmarshal(value, &condition.Match); err != nil {
				return nil, fmt.Errorf("condition %q requires a string value: %w", key, err)
			}
		case RuleConditionPercentOfBase:
			if err := json.Unmarshal(value, &condition.Percent); err != nil {
				return nil, fmt.Errorf("condition %q requires a numeric percentage: %w", key, err)
			}
		default:
			return nil, fmt.Errorf("unknown rule condition %q", key)
		}
		conditions = append(conditions, condition)
	}
	return conditions, nil
}

// EarningRule is an automated points grant bound to a trigger action,
// subject to optional daily and lifetime caps.
type EarningRule struct {
	ID             int64           `db:"id"`
	Name           string          `db:"name"`
	TriggerAction  TriggerAction   `db:"trigger_action"`
	PointsAwarded  int64           `db:"points_awarded"`
	MaxDailyAwards *int            `db:"max_daily_awards"`
	MaxTotalAwards *int            `db:"max_total_awards"`
	Conditions     []RuleCondition `db:"-"`
	Priority       int             `db:"priority"`
	Active         bool            `db:"active"`
	CreatedAt      time.Time       `db:"created_at"`
}

// AwardAmount returns the points this rule grants for a trigger. A
// percent_of_base condition overrides the flat amount with a rounded-down
// percentage of the context's base amount.
func (r *EarningRule) AwardAmount(ctx *TriggerContext) int64 {
	for _, c := range r.Conditions {
		if c.Kind == RuleConditionPercentOfBase {
			if ctx == nil || ctx.BaseAmount <= 0 {
				return 0
			}
			return c.Percent.
				Mul(decimal.NewFromInt(ctx.BaseAmount)).
				Div(decimal.NewFromInt(100)).
				IntPart()
		}
	}
	return r.PointsAwarded
}

// EarningRuleApplication logs one grant of a rule to a user; cap checks
// count these rows rather than maintaining a separate counter.
type EarningRuleApplication struct {
	ID            int64         `db:"id"`
	RuleID        int64         `db:"rule_id"`
	UserID        int64         `db:"user_id"`
	TriggerAction TriggerAction `db:"trigger_action"`
	PointsAwarded int64         `db:"points_awarded"`
	AppliedAt     time.Time     `db:"applied_at"`
}

// TriggerContext carries trigger-specific data used by rule conditions.
type TriggerContext struct {
	BaseAmount  int64
	WagerAmount int64
	Category    string
	Roles       []string
}

// HasRole checks whether the acting user carries a role.
func (c *TriggerContext) HasRole(role string) bool {
	if c == nil {
		return false
	}
	for _, r := range c.Roles {
		if r == role {
			return true
		}
	}
	return false
}
