package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// ConditionKind identifies a statistic an achievement condition is
// evaluated against. Unknown keys decode as ConditionKindExtension and are
// delegated to a registered extension hook at evaluation time.
type ConditionKind string

const (
	ConditionTotalWagers          ConditionKind = "total_wagers"
	ConditionWagersWon            ConditionKind = "wagers_won"
	ConditionTotalSpent           ConditionKind = "total_spent"
	ConditionTotalEarned          ConditionKind = "total_earned"
	ConditionCurrentBalance       ConditionKind = "current_balance"
	ConditionConsecutiveLoginDays ConditionKind = "consecutive_login_days"
	ConditionProfileCompletion    ConditionKind = "profile_completion"
	ConditionReferralCount        ConditionKind = "referral_count"
	ConditionKindExtension        ConditionKind = "extension"
)

var knownConditionKinds = map[ConditionKind]bool{
	ConditionTotalWagers:          true,
	ConditionWagersWon:            true,
	ConditionTotalSpent:           true,
	ConditionTotalEarned:          true,
	ConditionCurrentBalance:       true,
	ConditionConsecutiveLoginDays: true,
	ConditionProfileCompletion:    true,
	ConditionReferralCount:        true,
}

// AchievementCondition is one decoded unlock condition. Known kinds carry a
// numeric threshold compared against the user's statistics snapshot;
// extension conditions keep the original key and raw payload for the hook.
type AchievementCondition struct {
	Kind      ConditionKind
	Key       string
	Threshold int64
	Raw       json.RawMessage
}

// DecodeAchievementConditions parses the stored unlock_conditions JSON
// object (statistic key -> threshold) into typed conditions. The blob is
// decoded once at load time, not re-parsed per evaluation.
func DecodeAchievementConditions(raw []byte) ([]AchievementCondition, error) {
	if len(raw) == 0 {
		return nil, nil
	}

	var object map[string]json.RawMessage
	if err := json.Unmarshal(raw, &object); err != nil {
		return nil, fmt.Errorf("failed to decode unlock conditions: %w", err)
	}

	conditions := make([]AchievementCondition, 0, len(object))
	for key, value := range object {
		kind := ConditionKind(key)
		if !knownConditionKinds[kind] {
			conditions = append(conditions, AchievementCondition{
				Kind: ConditionKindExtension,
				Key:  key,
				Raw:  value,
			})
			continue
		}

		var threshold int64
		if err := json.Unmarshal(value, &threshold); err != nil {
			return nil, fmt.Errorf("condition %q has a non-integer threshold: %w", key, err)
		}
		conditions = append(conditions, AchievementCondition{
			Kind:      kind,
			Key:       key,
			Threshold: threshold,
		})
	}
	return conditions, nil
}

// Achievement is a one-time bonus unlocked when every condition in its set
// is satisfied.
type Achievement struct {
	ID           int64                  `db:"id"`
	Slug         string                 `db:"slug"`
	Name         string                 `db:"name"`
	Conditions   []AchievementCondition `db:"-"`
	PointsReward int64                  `db:"points_reward"`
	IsSecret     bool                   `db:"is_secret"`
	Active       bool                   `db:"active"`
	CreatedAt    time.Time              `db:"created_at"`
}

// UserAchievement records a permanent unlock. Unique per
// (user, achievement); existence means unlocked.
type UserAchievement struct {
	ID               int64            `db:"id"`
	UserID           int64            `db:"user_id"`
	AchievementID    int64            `db:"achievement_id"`
	UnlockedAt       time.Time        `db:"unlocked_at"`
	ProgressSnapshot map[string]int64 `db:"progress_snapshot"`
}

// UserStatistics is the snapshot achievement conditions are evaluated
// against, sourced from the ledger, the wager book and the profile store.
type UserStatistics struct {
	TotalWagers          int64
	WagersWon            int64
	TotalSpent           int64
	TotalEarned          int64
	CurrentBalance       int64
	ConsecutiveLoginDays int64
	ProfileCompletion    int64
	ReferralCount        int64
}

// Value returns the snapshot statistic for a known condition kind.
func (s *UserStatistics) Value(kind ConditionKind) (int64, bool) {
	switch kind {
	case ConditionTotalWagers:
		return s.TotalWagers, true
	case ConditionWagersWon:
		return s.WagersWon, true
	case ConditionTotalSpent:
		return s.TotalSpent, true
	case ConditionTotalEarned:
		return s.TotalEarned, true
	case ConditionCurrentBalance:
		return s.CurrentBalance, true
	case ConditionConsecutiveLoginDays:
		return s.ConsecutiveLoginDays, true
	case ConditionProfileCompletion:
		return s.ProfileCompletion, true
	case ConditionReferralCount:
		return s.ReferralCount, true
	}
	return 0, false
}

// AchievementProgress is the read-side completion view for one achievement.
type AchievementProgress struct {
	Achievement *Achievement
	Unlocked    bool
	UnlockedAt  *time.Time
	// Completion maps each known condition key to current/threshold. Extension
	// conditions are omitted; their evaluators live outside this package.
	Completion map[string][2]int64
}

// Snapshot flattens the statistics into the map persisted alongside an
// unlock for later auditing.
func (s *UserStatistics) Snapshot() map[string]int64 {
	return map[string]int64{
		string(ConditionTotalWagers):          s.TotalWagers,
		string(ConditionWagersWon):            s.WagersWon,
		string(ConditionTotalSpent):           s.TotalSpent,
		string(ConditionTotalEarned):          s.TotalEarned,
		string(ConditionCurrentBalance):       s.CurrentBalance,
		string(ConditionConsecutiveLoginDays): s.ConsecutiveLoginDays,
		string(ConditionProfileCompletion):    s.ProfileCompletion,
		string(ConditionReferralCount):        s.ReferralCount,
	}
}
