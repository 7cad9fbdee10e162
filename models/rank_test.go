package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ladder() []*Rank {
	return []*Rank{
		{ID: 1, Slug: "bronze", PointsRequired: 0, Active: true},
		{ID: 2, Slug: "silver", PointsRequired: 1000, Active: true},
		{ID: 3, Slug: "gold", PointsRequired: 5000, Active: true},
		{ID: 4, Slug: "retired", PointsRequired: 100, Active: false},
	}
}

func TestHighestQualifiedRank(t *testing.T) {
	tests := []struct {
		name     string
		balance  int64
		expected string
	}{
		{"zero balance still reaches the floor tier", 0, "bronze"},
		{"mid ladder", 1200, "silver"},
		{"exactly at threshold", 1000, "silver"},
		{"top of ladder", 999999, "gold"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rank := HighestQualifiedRank(ladder(), tt.balance)
			require.NotNil(t, rank)
			assert.Equal(t, tt.expected, rank.Slug)
		})
	}
}

func TestHighestQualifiedRank_IgnoresInactive(t *testing.T) {
	ranks := []*Rank{
		{ID: 1, Slug: "retired", PointsRequired: 0, Active: false},
	}
	assert.Nil(t, HighestQualifiedRank(ranks, 1000))
}

func TestNextRank(t *testing.T) {
	next := NextRank(ladder(), 1200)
	require.NotNil(t, next)
	assert.Equal(t, "gold", next.Slug)

	assert.Nil(t, NextRank(ladder(), 5000), "holding the top rank leaves nothing above")
}

func TestComputeRankProgress(t *testing.T) {
	progress := ComputeRankProgress(ladder(), 3000)

	require.NotNil(t, progress.Current)
	assert.Equal(t, "silver", progress.Current.Slug)
	require.NotNil(t, progress.Next)
	assert.Equal(t, "gold", progress.Next.Slug)
	assert.Equal(t, int64(2000), progress.PointsNeeded)
	assert.Equal(t, "50", progress.PercentComplete.String())
}

func TestComputeRankProgress_TopOfLadder(t *testing.T) {
	progress := ComputeRankProgress(ladder(), 10000)

	assert.Equal(t, "gold", progress.Current.Slug)
	assert.Nil(t, progress.Next)
	assert.Equal(t, "100", progress.PercentComplete.String())
}

func TestComputeRankProgress_BelowLadder(t *testing.T) {
	ranks := []*Rank{
		{ID: 2, Slug: "silver", PointsRequired: 1000, Active: true},
	}
	progress := ComputeRankProgress(ranks, 250)

	assert.Nil(t, progress.Current)
	require.NotNil(t, progress.Next)
	assert.Equal(t, int64(750), progress.PointsNeeded)
	assert.Equal(t, "25", progress.PercentComplete.String())
}
