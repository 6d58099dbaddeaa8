package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lithammer/shortuuid/v4"
	"github.com/pkg/errors"
	"golang.org/x/sync/semaphore"

	apperrors "github.com/nobadaofficial/noba-da3/server/internal/errors"
	"github.com/nobadaofficial/noba-da3/store"
)

const (
	// DefaultGenerationTimeout bounds one generator call.
	DefaultGenerationTimeout = 30 * time.Second
	// DefaultGenerationMaxInflight caps concurrent generator calls.
	DefaultGenerationMaxInflight = 16
	// MaxUserMessageLength bounds one user turn.
	MaxUserMessageLength = 2000
	// transcriptWindow is how many recent turns are handed to the generator.
	transcriptWindow = 20
)

// Orchestrator drives the full session lifecycle: find-or-create, turn
// handling, state application, and explicit session end. One instance
// serves all sessions.
type Orchestrator struct {
	sessions  SessionRepository
	content   ContentRepository
	generator ResponseGenerator

	genTimeout time.Duration
	genSem     *semaphore.Weighted

	// locks serializes turns per (user, episode) pair. The map is keyed by
	// "userID:episodeID" and entries are never removed; the pair space is
	// small and bounded by real users.
	locks sync.Map
	// graphs caches compiled branch graphs keyed by episode ID.
	graphs sync.Map
}

// Config tunes orchestrator limits. Zero values fall back to defaults.
type Config struct {
	GenerationTimeout     time.Duration
	GenerationMaxInflight int64
}

// NewOrchestrator wires the orchestrator with its collaborators.
func NewOrchestrator(sessions SessionRepository, content ContentRepository, generator ResponseGenerator, cfg Config) *Orchestrator {
	if cfg.GenerationTimeout <= 0 {
		cfg.GenerationTimeout = DefaultGenerationTimeout
	}
	if cfg.GenerationMaxInflight <= 0 {
		cfg.GenerationMaxInflight = DefaultGenerationMaxInflight
	}
	return &Orchestrator{
		sessions:   sessions,
		content:    content,
		generator:  generator,
		genTimeout: cfg.GenerationTimeout,
		genSem:     semaphore.NewWeighted(cfg.GenerationMaxInflight),
	}
}

// TurnResult is the outcome of one completed exchange.
type TurnResult struct {
	SessionUID        string               `json:"sessionUid"`
	UserMessage       *store.ChatMessage   `json:"-"`
	AssistantMessage  *store.ChatMessage   `json:"-"`
	Text              string               `json:"text"`
	ClipID            string               `json:"clipId,omitempty"`
	RelationshipScore int                  `json:"relationshipScore"`
	Tier              Tier                 `json:"tier"`
	EmotionalState    store.EmotionalState `json:"emotionalState"`
	ProgressMarker    string               `json:"progressMarker"`
	ChoicesTaken      []string             `json:"choicesTaken,omitempty"`
	SessionCreated    bool                 `json:"sessionCreated"`
}

// SessionSnapshot is the read model for one session, including its ledger.
type SessionSnapshot struct {
	SessionUID        string               `json:"sessionUid"`
	UserID            int32                `json:"userId"`
	EpisodeID         int32                `json:"episodeId"`
	RelationshipScore int                  `json:"relationshipScore"`
	Tier              Tier                 `json:"tier"`
	EmotionalState    store.EmotionalState `json:"emotionalState"`
	ProgressMarker    string               `json:"progressMarker"`
	Choices           []string             `json:"choices"`
	Status            store.SessionStatus  `json:"status"`
	Messages          []*store.ChatMessage `json:"-"`
	CreatedTs         int64                `json:"createdTs"`
	UpdatedTs         int64                `json:"updatedTs"`
}

// HandleUserMessage runs one full exchange: resolve or create the ACTIVE
// session, append the user turn, generate the character's reply, apply the
// emotional and relationship deltas, advance narrative progress, select a
// clip, and commit the assistant turn with the session mutation in one
// transaction.
//
// The user turn is persisted before generation. When generation fails the
// session keeps the user turn and nothing else, so the client can retry
// the same exchange against unchanged state.
func (o *Orchestrator) HandleUserMessage(ctx context.Context, userID, episodeID int32, content string) (*TurnResult, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, apperrors.InvalidArgument("message content must not be empty")
	}
	if len(content) > MaxUserMessageLength {
		return nil, apperrors.InvalidArgument("message content exceeds maximum length")
	}

	unlock := o.lockPair(userID, episodeID)
	defer unlock()

	user, err := o.content.GetUser(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get user")
	}
	if user == nil {
		return nil, apperrors.NotFound("user", userID)
	}
	episode, err := o.content.GetEpisode(ctx, episodeID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get episode")
	}
	if episode == nil {
		return nil, apperrors.NotFound("episode", episodeID)
	}
	character, err := o.content.GetCharacter(ctx, episode.CharacterID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get character")
	}
	if character == nil {
		return nil, apperrors.NotFound("character", episode.CharacterID)
	}

	session, created, err := o.findOrCreateSession(ctx, user, episode)
	if err != nil {
		return nil, err
	}

	transcript, err := o.sessions.ListMessages(ctx, session.ID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list session messages")
	}

	userMsg, err := o.sessions.AppendMessage(ctx, &store.ChatMessage{
		UID:       uuid.NewString(),
		SessionID: session.ID,
		Role:      store.MessageRoleUser,
		Content:   content,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to append user message")
	}

	reply, err := o.generate(ctx, &GenerateRequest{
		Character:         character,
		Episode:           episode,
		Transcript:        tailTranscript(transcript, transcriptWindow),
		UserMessage:       content,
		EmotionalState:    session.EmotionalState,
		RelationshipScore: session.RelationshipScore,
		Tier:              TierFor(session.RelationshipScore),
	})
	if err != nil {
		// The user turn stays in the ledger; the session state is untouched
		// and the exchange is retryable.
		return nil, err
	}

	nextState := ApplySignal(session.EmotionalState, reply.Signal)
	nextScore := ApplyScoreDelta(session.RelationshipScore, reply.ScoreDelta)

	nextMarker := session.ProgressMarker
	var taken []string
	graph, err := o.graphFor(episode)
	if err != nil {
		slog.Error("episode branch graph failed to compile",
			"episode", episode.ID,
			"error", err)
	} else {
		nextMarker, taken, err = graph.Advance(session.ProgressMarker, nextScore, session.Choices)
		if err != nil {
			// The walk aborted on a runtime cycle. Score and emotion still
			// apply; the marker stays where it was.
			slog.Error("branch graph advance failed",
				"episode", episode.ID,
				"marker", session.ProgressMarker,
				"error", err)
			nextMarker = session.ProgressMarker
			taken = nil
		}
	}

	clip := SelectClip(nextState, nextMarker, episode.ClipPool)
	clipID := ""
	if clip != nil {
		clipID = clip.ID
	}

	nextChoices := session.Choices
	if len(taken) > 0 {
		nextChoices = append(append([]string{}, session.Choices...), taken...)
	}

	assistantMsg := &store.ChatMessage{
		UID:        uuid.NewString(),
		SessionID:  session.ID,
		Role:       store.MessageRoleAssistant,
		Content:    reply.Text,
		ClipID:     clipID,
		ScoreDelta: reply.ScoreDelta,
	}
	update := &store.UpdateChatSession{
		ID:                session.ID,
		RelationshipScore: &nextScore,
		EmotionalState:    &nextState,
		ProgressMarker:    &nextMarker,
		Choices:           &nextChoices,
	}
	assistantMsg, session, err = o.sessions.CompleteTurn(ctx, assistantMsg, update)
	if err != nil {
		return nil, errors.Wrap(err, "failed to complete turn")
	}

	return &TurnResult{
		SessionUID:        session.UID,
		UserMessage:       userMsg,
		AssistantMessage:  assistantMsg,
		Text:              reply.Text,
		ClipID:            clipID,
		RelationshipScore: session.RelationshipScore,
		Tier:              TierFor(session.RelationshipScore),
		EmotionalState:    session.EmotionalState,
		ProgressMarker:    session.ProgressMarker,
		ChoicesTaken:      taken,
		SessionCreated:    created,
	}, nil
}

// EndSession moves a session to ENDED. Ending an already ended session is
// idempotent; sessions never end implicitly.
func (o *Orchestrator) EndSession(ctx context.Context, sessionUID string) (*SessionSnapshot, error) {
	session, err := o.sessions.GetSessionByUID(ctx, sessionUID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get session")
	}
	if session == nil {
		return nil, apperrors.NotFound("session", sessionUID)
	}
	if session.Status != store.SessionStatusEnded {
		ended := store.SessionStatusEnded
		session, err = o.sessions.UpdateSession(ctx, &store.UpdateChatSession{
			ID:     session.ID,
			Status: &ended,
		})
		if err != nil {
			return nil, errors.Wrap(err, "failed to end session")
		}
	}
	return o.snapshot(ctx, session)
}

// GetSession returns the full snapshot for one session, ledger included.
func (o *Orchestrator) GetSession(ctx context.Context, sessionUID string) (*SessionSnapshot, error) {
	session, err := o.sessions.GetSessionByUID(ctx, sessionUID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get session")
	}
	if session == nil {
		return nil, apperrors.NotFound("session", sessionUID)
	}
	return o.snapshot(ctx, session)
}

// ListUserSessions returns a user's sessions, newest activity first,
// without their ledgers.
func (o *Orchestrator) ListUserSessions(ctx context.Context, userID int32, limit int) ([]*SessionSnapshot, error) {
	user, err := o.content.GetUser(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get user")
	}
	if user == nil {
		return nil, apperrors.NotFound("user", userID)
	}
	sessions, err := o.sessions.ListUserSessions(ctx, userID, limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list sessions")
	}
	snapshots := make([]*SessionSnapshot, 0, len(sessions))
	for _, session := range sessions {
		snapshots = append(snapshots, snapshotWithoutMessages(session))
	}
	return snapshots, nil
}

func (o *Orchestrator) findOrCreateSession(ctx context.Context, user *store.User, episode *store.Episode) (*store.ChatSession, bool, error) {
	session, err := o.sessions.GetActiveSession(ctx, user.ID, episode.ID)
	if err != nil {
		return nil, false, errors.Wrap(err, "failed to find active session")
	}
	if session != nil {
		return session, false, nil
	}

	session, err = o.sessions.CreateSession(ctx, &store.ChatSession{
		UID:               shortuuid.New(),
		UserID:            user.ID,
		EpisodeID:         episode.ID,
		RelationshipScore: InitialScore,
		EmotionalState:    store.NeutralEmotionalState(),
		ProgressMarker:    episode.StartNode,
		Choices:           []string{},
		Status:            store.SessionStatusActive,
	})
	if err != nil {
		return nil, false, errors.Wrap(err, "failed to create session")
	}
	if err := o.content.IncrementEpisodePlayCount(ctx, episode.ID); err != nil {
		slog.Warn("failed to increment episode play count",
			"episode", episode.ID,
			"error", err)
	}
	slog.Info("chat session created",
		"session", session.UID,
		"user", user.ID,
		"episode", episode.ID)
	return session, true, nil
}

// generate runs the generator under the inflight cap and the per-call
// timeout, mapping failures onto the engine error taxonomy.
func (o *Orchestrator) generate(ctx context.Context, req *GenerateRequest) (*Reply, error) {
	genCtx, cancel := context.WithTimeout(ctx, o.genTimeout)
	defer cancel()

	if err := o.genSem.Acquire(genCtx, 1); err != nil {
		if errors.Is(genCtx.Err(), context.DeadlineExceeded) {
			return nil, apperrors.GenerationTimeout(err)
		}
		return nil, apperrors.GenerationFailed(err)
	}
	defer o.genSem.Release(1)

	reply, err := o.generator.Generate(genCtx, req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(genCtx.Err(), context.DeadlineExceeded) {
			return nil, apperrors.GenerationTimeout(err)
		}
		return nil, apperrors.GenerationFailed(err)
	}
	if reply == nil || strings.TrimSpace(reply.Text) == "" {
		return nil, apperrors.GenerationFailed(errors.New("generator returned an empty reply"))
	}
	return reply, nil
}

// graphFor returns the compiled branch graph for an episode, compiling and
// caching it on first use.
func (o *Orchestrator) graphFor(episode *store.Episode) (*Graph, error) {
	if cached, ok := o.graphs.Load(episode.ID); ok {
		return cached.(*Graph), nil
	}
	graph, err := CompileGraph(episode.BranchPoints)
	if err != nil {
		return nil, err
	}
	actual, _ := o.graphs.LoadOrStore(episode.ID, graph)
	return actual.(*Graph), nil
}

func (o *Orchestrator) lockPair(userID, episodeID int32) func() {
	key := pairKey(userID, episodeID)
	mu, _ := o.locks.LoadOrStore(key, &sync.Mutex{})
	lock := mu.(*sync.Mutex)
	lock.Lock()
	return lock.Unlock
}

func (o *Orchestrator) snapshot(ctx context.Context, session *store.ChatSession) (*SessionSnapshot, error) {
	messages, err := o.sessions.ListMessages(ctx, session.ID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list session messages")
	}
	snap := snapshotWithoutMessages(session)
	snap.Messages = messages
	return snap, nil
}

func snapshotWithoutMessages(session *store.ChatSession) *SessionSnapshot {
	return &SessionSnapshot{
		SessionUID:        session.UID,
		UserID:            session.UserID,
		EpisodeID:         session.EpisodeID,
		RelationshipScore: session.RelationshipScore,
		Tier:              TierFor(session.RelationshipScore),
		EmotionalState:    session.EmotionalState,
		ProgressMarker:    session.ProgressMarker,
		Choices:           session.Choices,
		Status:            session.Status,
		CreatedTs:         session.CreatedTs,
		UpdatedTs:         session.UpdatedTs,
	}
}

func pairKey(userID, episodeID int32) string {
	return fmt.Sprintf("%d:%d", userID, episodeID)
}

func tailTranscript(messages []*store.ChatMessage, n int) []*store.ChatMessage {
	if len(messages) <= n {
		return messages
	}
	return messages[len(messages)-n:]
}
