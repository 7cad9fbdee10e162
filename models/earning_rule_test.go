package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeRuleConditions(t *testing.T) {
	conditions, err := DecodeRuleConditions([]byte(`{
		"min_elapsed_minutes": 60,
		"required_profile_fields": ["avatar", "bio"],
		"role_match": "premium",
		"percent_of_base": 2.5
	}`))
	require.NoError(t, err)
	require.Len(t, conditions, 4)

	byKind := map[RuleConditionKind]RuleCondition{}
	for _, c := range conditions {
		byKind[c.Kind] = c
	}
	assert.Equal(t, int64(60), byKind[RuleConditionMinElapsedMinutes].Value)
	assert.Equal(t, []string{"avatar", "bio"}, byKind[RuleConditionRequiredFields].Fields)
	assert.Equal(t, "premium", byKind[RuleConditionRoleMatch].Match)
	assert.Equal(t, "2.5", byKind[RuleConditionPercentOfBase].Percent.String())
}

// Rules are admin-authored; a typo must surface as an error, not silently
// grant points.
func TestDecodeRuleConditions_UnknownKeyRejected(t *testing.T) {
	_, err := DecodeRuleConditions([]byte(`{"min_elapsed_minuets": 60}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown rule condition")
}

func TestDecodeRuleConditions_TypeMismatch(t *testing.T) {
	_, err := DecodeRuleConditions([]byte(`{"min_wager_amount": "plenty"}`))
	require.Error(t, err)
}

func TestEarningRule_AwardAmount(t *testing.T) {
	flat := &EarningRule{PointsAwarded: 50}
	assert.Equal(t, int64(50), flat.AwardAmount(nil))

	conditions, err := DecodeRuleConditions([]byte(`{"percent_of_base": 2.5}`))
	require.NoError(t, err)
	percent := &EarningRule{PointsAwarded: 50, Conditions: conditions}

	assert.Equal(t, int64(250), percent.AwardAmount(&TriggerContext{BaseAmount: 10000}))
	assert.Equal(t, int64(2), percent.AwardAmount(&TriggerContext{BaseAmount: 99}), "fractional awards floor")
	assert.Equal(t, int64(0), percent.AwardAmount(nil), "no base amount means nothing to award")
	assert.Equal(t, int64(0), percent.AwardAmount(&TriggerContext{}))
}

func TestTriggerContext_HasRole(t *testing.T) {
	ctx := &TriggerContext{Roles: []string{"premium", "moderator"}}
	assert.True(t, ctx.HasRole("premium"))
	assert.False(t, ctx.HasRole("admin"))

	var nilCtx *TriggerContext
	assert.False(t, nilCtx.HasRole("premium"))
}
