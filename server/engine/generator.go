// Package engine implements the conversation session engine: session
// lifecycle, the append-only message ledger, emotional state, relationship
// score, branch-graph progress, and clip selection.
package engine

import (
	"context"

	"github.com/nobadaofficial/noba-da3/store"
)

// GenerateRequest carries everything the response generator needs to
// produce the character's next line.
type GenerateRequest struct {
	Character         *store.Character
	Episode           *store.Episode
	Transcript        []*store.ChatMessage
	UserMessage       string
	EmotionalState    store.EmotionalState
	RelationshipScore int
	Tier              Tier
}

// Reply is the raw generator output for one exchange. The engine treats it
// as untrusted: signal and delta are clamped on application, and the
// suggested clip tag is only a hint.
type Reply struct {
	Text             string        `json:"text"`
	Signal           EmotionSignal `json:"emotion"`
	ScoreDelta       int           `json:"scoreDelta"`
	SuggestedClipTag string        `json:"suggestedClipTag,omitempty"`
}

// ResponseGenerator produces the character's reply for the latest user
// message. Implementations may call a remote LLM; the orchestrator bounds
// each call with a timeout and treats any error as retryable.
type ResponseGenerator interface {
	Generate(ctx context.Context, req *GenerateRequest) (*Reply, error)
}
