package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"betpoints/database"
	"betpoints/models"
	"github.com/jackc/pgx/v5"
)

// EarningRuleRepository implements earning rule and application-log data access
type EarningRuleRepository struct {
	q queryable
}

// NewEarningRuleRepository creates a new earning rule repository
func NewEarningRuleRepository(db *database.DB) *EarningRuleRepository {
	return &EarningRuleRepository{q: db.Pool}
}

// newEarningRuleRepositoryWithTx creates a new earning rule repository with a transaction
func newEarningRuleRepositoryWithTx(tx queryable) *EarningRuleRepository {
	return &EarningRuleRepository{q: tx}
}

// Create inserts a new earning rule, encoding its conditions once
func (r *EarningRuleRepository) Create(ctx context.Context, rule *models.EarningRule) error {
	conditionsJSON, err := encodeRuleConditions(rule.Conditions)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO earning_rules
		(name, trigger_action, points_awarded, max_daily_awards, max_total_awards, conditions, priority, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at
	`

	err = r.q.QueryRow(ctx, query,
		rule.Name,
		rule.TriggerAction,
		rule.PointsAwarded,
		rule.MaxDailyAwards,
		rule.MaxTotalAwards,
		conditionsJSON,
		rule.Priority,
		rule.Active,
	).Scan(&rule.ID, &rule.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to create earning rule %q: %w", rule.Name, err)
	}

	return nil
}

// ListActiveByTrigger returns active rules for a trigger action ordered by
// priority descending
func (r *EarningRuleRepository) ListActiveByTrigger(ctx context.Context, action models.TriggerAction) ([]*models.EarningRule, error) {
	query := `
		SELECT id, name, trigger_action, points_awarded, max_daily_awards,
		       max_total_awards, conditions, priority, active, created_at
		FROM earning_rules
		WHERE trigger_action = $1 AND active
		ORDER BY priority DESC, id
	`
	return r.listRules(ctx, query, action)
}

// ListActive returns every active rule across all triggers, grouped by
// trigger and ordered by priority descending within each
func (r *EarningRuleRepository) ListActive(ctx context.Context) ([]*models.EarningRule, error) {
	query := `
		SELECT id, name, trigger_action, points_awarded, max_daily_awards,
		       max_total_awards, conditions, priority, active, created_at
		FROM earning_rules
		WHERE active
		ORDER BY trigger_action, priority DESC, id
	`
	return r.listRules(ctx, query)
}

func (r *EarningRuleRepository) listRules(ctx context.Context, query string, args ...any) ([]*models.EarningRule, error) {
	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list earning rules: %w", err)
	}
	defer rows.Close()

	var rules []*models.EarningRule
	for rows.Next() {
		var rule models.EarningRule
		var conditionsJSON []byte
		err := rows.Scan(
			&rule.ID,
			&rule.Name,
			&rule.TriggerAction,
			&rule.PointsAwarded,
			&rule.MaxDailyAwards,
			&rule.MaxTotalAwards,
			&conditionsJSON,
			&rule.Priority,
			&rule.Active,
			&rule.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan earning rule: %w", err)
		}
		rule.Conditions, err = models.DecodeRuleConditions(conditionsJSON)
		if err != nil {
			return nil, fmt.Errorf("rule %d: %w", rule.ID, err)
		}
		rules = append(rules, &rule)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate earning rules: %w", err)
	}

	return rules, nil
}

// LockUserRule serializes concurrent cap checks for one (user, rule) pair
// with a transaction-scoped advisory lock. The cap is a count over the
// application log, which cannot be row-locked, so the lock stands in for
// the missing row. The 64-bit key is hashed from both IDs; the two-int
// lock form would truncate bigserial IDs to 32 bits.
func (r *EarningRuleRepository) LockUserRule(ctx context.Context, ruleID, userID int64) error {
	query := `SELECT pg_advisory_xact_lock(hashtextextended($1::text || ':' || $2::text, 0))`

	if _, err := r.q.Exec(ctx, query, ruleID, userID); err != nil {
		return fmt.Errorf("failed to lock rule %d for user %d: %w", ruleID, userID, err)
	}

	return nil
}

// CountApplications counts how many times a rule has been applied to a
// user, optionally restricted to applications at or after a cutoff
func (r *EarningRuleRepository) CountApplications(ctx context.Context, ruleID, userID int64, since *time.Time) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM earning_rule_applications
		WHERE rule_id = $1 AND user_id = $2 AND ($3::timestamptz IS NULL OR applied_at >= $3)
	`

	var count int
	err := r.q.QueryRow(ctx, query, ruleID, userID, since).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count applications of rule %d for user %d: %w", ruleID, userID, err)
	}

	return count, nil
}

// LastApplication returns the most recent application of a rule to a user,
// nil if the rule has never fired for them
func (r *EarningRuleRepository) LastApplication(ctx context.Context, ruleID, userID int64) (*models.EarningRuleApplication, error) {
	query := `
		SELECT id, rule_id, user_id, trigger_action, points_awarded, applied_at
		FROM earning_rule_applications
		WHERE rule_id = $1 AND user_id = $2
		ORDER BY applied_at DESC, id DESC
		LIMIT 1
	`

	var application models.EarningRuleApplication
	err := r.q.QueryRow(ctx, query, ruleID, userID).Scan(
		&application.ID,
		&application.RuleID,
		&application.UserID,
		&application.TriggerAction,
		&application.PointsAwarded,
		&application.AppliedAt,
	)

	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get last application of rule %d for user %d: %w", ruleID, userID, err)
	}

	return &application, nil
}

// RecordApplication logs one grant of a rule to a user
func (r *EarningRuleRepository) RecordApplication(ctx context.Context, application *models.EarningRuleApplication) error {
	query := `
		INSERT INTO earning_rule_applications (rule_id, user_id, trigger_action, points_awarded)
		VALUES ($1, $2, $3, $4)
		RETURNING id, applied_at
	`

	err := r.q.QueryRow(ctx, query,
		application.RuleID,
		application.UserID,
		application.TriggerAction,
		application.PointsAwarded,
	).Scan(&application.ID, &application.AppliedAt)

	if err != nil {
		return fmt.Errorf("failed to record application of rule %d: %w", application.RuleID, err)
	}

	return nil
}

func encodeRuleConditions(conditions []models.RuleCondition) ([]byte, error) {
	object := make(map[string]any, len(conditions))
	for _, c := range conditions {
		switch c.Kind {
		case models.RuleConditionMinElapsedMinutes, models.RuleConditionMinWagerAmount:
			object[string(c.Kind)] = c.Value
		case models.RuleConditionRequiredFields:
			object[string(c.Kind)] = c.Fields
		case models.RuleConditionRoleMatch, models.RuleConditionCategoryMatch:
			object[string(c.Kind)] = c.Match
		case models.RuleConditionPercentOfBase:
			object[string(c.Kind)] = c.Percent
		default:
			return nil, fmt.Errorf("unknown rule condition kind %q", c.Kind)
		}
	}

	encoded, err := json.Marshal(object)
	if err != nil {
		return nil, fmt.Errorf("failed to encode rule conditions: %w", err)
	}
	return encoded, nil
}
