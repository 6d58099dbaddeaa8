package engine

const (
	// ScoreMin and ScoreMax bound the relationship score.
	ScoreMin = 0
	ScoreMax = 100
	// InitialScore is the relationship score of a fresh session.
	InitialScore = 50
)

// Tier is the discrete relationship label derived from the numeric score.
// It is always recomputed from the score, never stored.
type Tier string

const (
	TierStranger        Tier = "stranger"
	TierAcquaintance    Tier = "acquaintance"
	TierFriend          Tier = "friend"
	TierCloseFriend     Tier = "close_friend"
	TierRomanticPartner Tier = "romantic_partner"
)

// ApplyScoreDelta returns the score after applying delta, clamped to
// [ScoreMin, ScoreMax]. Out-of-range deltas are silently corrected.
func ApplyScoreDelta(score, delta int) int {
	next := score + delta
	if next < ScoreMin {
		return ScoreMin
	}
	if next > ScoreMax {
		return ScoreMax
	}
	return next
}

// TierFor maps a score to its tier. Thresholds are fixed product values
// surfaced in the client UI (20/40/60/80); keep them in sync with content.
func TierFor(score int) Tier {
	switch {
	case score <= 20:
		return TierStranger
	case score <= 40:
		return TierAcquaintance
	case score <= 60:
		return TierFriend
	case score <= 80:
		return TierCloseFriend
	default:
		return TierRomanticPartner
	}
}
