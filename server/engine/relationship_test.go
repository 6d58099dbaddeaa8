package engine

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestApplyScoreDelta(t *testing.T) {
	tests := []struct {
		name     string
		score    int
		delta    int
		expected int
	}{
		{"positive delta", 50, 10, 60},
		{"negative delta", 50, -10, 40},
		{"zero delta", 50, 0, 50},
		{"clamps at max", 95, 20, 100},
		{"clamps at min", 5, -20, 0},
		{"exact max", 90, 10, 100},
		{"exact min", 10, -10, 0},
		{"huge positive delta", 0, 1000, 100},
		{"huge negative delta", 100, -1000, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.expected, ApplyScoreDelta(tt.score, tt.delta))
		})
	}
}

func TestTierFor(t *testing.T) {
	tests := []struct {
		score    int
		expected Tier
	}{
		{0, TierStranger},
		{20, TierStranger},
		{21, TierAcquaintance},
		{40, TierAcquaintance},
		{41, TierFriend},
		{50, TierFriend},
		{60, TierFriend},
		{61, TierCloseFriend},
		{80, TierCloseFriend},
		{81, TierRomanticPartner},
		{100, TierRomanticPartner},
	}
	for _, tt := range tests {
		require.Equal(t, tt.expected, TierFor(tt.score), "score %d", tt.score)
	}
}

// Tier must be monotone in the score: a better score never yields a lower tier.
func TestTierForMonotonic(t *testing.T) {
	order := map[Tier]int{
		TierStranger:        0,
		TierAcquaintance:    1,
		TierFriend:          2,
		TierCloseFriend:     3,
		TierRomanticPartner: 4,
	}
	prev := TierFor(ScoreMin)
	for score := ScoreMin + 1; score <= ScoreMax; score++ {
		current := TierFor(score)
		require.GreaterOrEqual(t, order[current], order[prev], "score %d", score)
		prev = current
	}
}

func TestScoreProgression(t *testing.T) {
	score := InitialScore
	require.Equal(t, TierFriend, TierFor(score))

	score = ApplyScoreDelta(score, 10)
	require.Equal(t, 60, score)
	require.Equal(t, TierFriend, TierFor(score))

	score = ApplyScoreDelta(score, 19)
	require.Equal(t, 79, score)
	require.Equal(t, TierCloseFriend, TierFor(score))

	score = ApplyScoreDelta(score, 5)
	require.Equal(t, 84, score)
	require.Equal(t, TierRomanticPartner, TierFor(score))
}
