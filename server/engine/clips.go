package engine

import "github.com/nobadaofficial/noba-da3/store"

// SelectClip picks the pool entry that best matches the current emotional
// state among clips valid for the progress marker. Distance is the sum of
// absolute per-dimension differences; ties resolve to declaration order so
// selection is fully deterministic. Returns nil when no clip covers the
// marker, in which case the turn is text-only. That is not an error.
func SelectClip(state store.EmotionalState, marker string, pool []store.Clip) *store.Clip {
	var best *store.Clip
	bestDistance := 0

	for i := range pool {
		clip := &pool[i]
		if !clipCoversNode(clip, marker) {
			continue
		}
		distance := EmotionDistance(state, clip.Emotion)
		if best == nil || distance < bestDistance {
			best = clip
			bestDistance = distance
		}
	}
	return best
}

func clipCoversNode(clip *store.Clip, marker string) bool {
	for _, node := range clip.Nodes {
		if node == marker {
			return true
		}
	}
	return false
}
