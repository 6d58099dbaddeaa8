package store

// SessionStatus is the lifecycle status of a chat session.
type SessionStatus string

const (
	SessionStatusActive SessionStatus = "ACTIVE"
	SessionStatusEnded  SessionStatus = "ENDED"
)

// EmotionalState is the per-session mood vector. Every dimension is kept
// within [0, 100]; 50 is neutral. The dimensions are fixed by content
// design, not configurable per episode.
type EmotionalState struct {
	Happiness int `json:"happiness"`
	Interest  int `json:"interest"`
	Trust     int `json:"trust"`
}

// NeutralEmotionalState returns the initial mood of a fresh session.
func NeutralEmotionalState() EmotionalState {
	return EmotionalState{Happiness: 50, Interest: 50, Trust: 50}
}

// ChatSession is one continuous interaction between a user and a character
// within one episode. At most one ACTIVE session exists per (user, episode)
// pair; the partial unique index in the schema enforces this.
type ChatSession struct {
	ID                int32
	UID               string
	UserID            int32
	EpisodeID         int32
	RelationshipScore int
	EmotionalState    EmotionalState
	// ProgressMarker is a node ID into the episode's branch graph.
	ProgressMarker string
	// Choices accumulates the labels of branch edges taken, in order.
	Choices   []string
	Status    SessionStatus
	CreatedTs int64
	UpdatedTs int64
}

type FindChatSession struct {
	ID        *int32
	UID       *string
	UserID    *int32
	EpisodeID *int32
	Status    *SessionStatus
	Limit     *int
	Offset    *int
}

type UpdateChatSession struct {
	ID                int32
	RelationshipScore *int
	EmotionalState    *EmotionalState
	ProgressMarker    *string
	Choices           *[]string
	Status            *SessionStatus
	UpdatedTs         *int64
}

// MessageRole identifies the author of a turn.
type MessageRole string

const (
	MessageRoleUser      MessageRole = "USER"
	MessageRoleAssistant MessageRole = "ASSISTANT"
)

// ChatMessage is a single turn in a session's ledger. Rows are append-only
// and immutable; ledger order is the autoincrement ID order.
type ChatMessage struct {
	ID        int32
	UID       string
	SessionID int32
	Role      MessageRole
	Content   string
	// ClipID references the selected clip from the episode pool, empty for
	// user turns and text-only assistant turns.
	ClipID string
	// ScoreDelta is the relationship delta this turn carried, zero for user turns.
	ScoreDelta int
	CreatedTs  int64
}

type FindChatMessage struct {
	ID        *int32
	UID       *string
	SessionID *int32
}
