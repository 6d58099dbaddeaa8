package engine

import "github.com/nobadaofficial/noba-da3/store"

const (
	// EmotionMin and EmotionMax bound every emotional dimension.
	EmotionMin = 0
	EmotionMax = 100
)

// EmotionSignal is the structured mood delta emitted by the response
// generator for one exchange. Out-of-range values are legal input; the
// result of applying them is clamped.
type EmotionSignal struct {
	Happiness int `json:"happiness"`
	Interest  int `json:"interest"`
	Trust     int `json:"trust"`
}

// ApplySignal additively applies a signal to the state and clamps every
// dimension to [EmotionMin, EmotionMax]. Clamping is silent: upstream
// generation glitches must not be able to corrupt session state.
func ApplySignal(state store.EmotionalState, signal EmotionSignal) store.EmotionalState {
	return store.EmotionalState{
		Happiness: clampEmotion(state.Happiness + signal.Happiness),
		Interest:  clampEmotion(state.Interest + signal.Interest),
		Trust:     clampEmotion(state.Trust + signal.Trust),
	}
}

// EmotionDistance is the sum of absolute per-dimension differences between
// two emotion vectors. Used by clip selection.
func EmotionDistance(a, b store.EmotionalState) int {
	return abs(a.Happiness-b.Happiness) + abs(a.Interest-b.Interest) + abs(a.Trust-b.Trust)
}

func clampEmotion(v int) int {
	if v < EmotionMin {
		return EmotionMin
	}
	if v > EmotionMax {
		return EmotionMax
	}
	return v
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
