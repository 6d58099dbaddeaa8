package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	apperrors "github.com/nobadaofficial/noba-da3/server/internal/errors"
	"github.com/nobadaofficial/noba-da3/store"
)

func testEpisode() *store.Episode {
	return &store.Episode{
		ID:          1,
		UID:         "ep-first-meeting",
		CharacterID: 1,
		Title:       "First Meeting",
		StartNode:   "intro",
		IsPublished: true,
		BranchPoints: []store.BranchPoint{
			{Node: "intro", Edges: []store.BranchEdge{
				{Guard: "score >= 55", To: "warming_up", Choice: "opened_up"},
				{Guard: "score <= 35", To: "distant", Choice: "kept_distance"},
			}},
			{Node: "warming_up", Edges: []store.BranchEdge{
				{Guard: "score >= 70", To: "closer", Choice: "shared_secret"},
			}},
			{Node: "closer"},
			{Node: "distant"},
		},
		ClipPool: []store.Clip{
			{ID: "smile", Emotion: store.EmotionalState{Happiness: 80, Interest: 60, Trust: 60}, Nodes: []string{"intro", "warming_up"}},
			{ID: "neutral", Emotion: store.EmotionalState{Happiness: 50, Interest: 50, Trust: 50}, Nodes: []string{"intro", "distant"}},
		},
	}
}

func newTestOrchestrator(t *testing.T, gen ResponseGenerator, cfg Config) (*Orchestrator, *MockRepository) {
	t.Helper()
	repo := NewMockRepository()
	repo.AddUser(&store.User{ID: 1, UID: "user-1", Nickname: "tester"})
	repo.AddCharacter(&store.Character{ID: 1, UID: "char-1", Name: "Jiwoo", IsPublished: true})
	repo.AddEpisode(testEpisode())
	return NewOrchestrator(repo, repo, gen, cfg), repo
}

func TestHandleUserMessageCreatesSession(t *testing.T) {
	ctx := context.Background()
	orch, repo := newTestOrchestrator(t, &MockGenerator{}, Config{})

	result, err := orch.HandleUserMessage(ctx, 1, 1, "hello")
	require.NoError(t, err)
	require.True(t, result.SessionCreated)
	require.NotEmpty(t, result.SessionUID)
	require.Equal(t, InitialScore, result.RelationshipScore)
	require.Equal(t, TierFriend, result.Tier)
	require.Equal(t, store.NeutralEmotionalState(), result.EmotionalState)
	require.Equal(t, "intro", result.ProgressMarker)

	session, err := repo.GetSessionByUID(ctx, result.SessionUID)
	require.NoError(t, err)
	require.NotNil(t, session)
	require.Equal(t, store.SessionStatusActive, session.Status)

	episode, err := repo.GetEpisode(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, int32(1), episode.PlayCount)
}

func TestHandleUserMessageReusesActiveSession(t *testing.T) {
	ctx := context.Background()
	orch, repo := newTestOrchestrator(t, &MockGenerator{}, Config{})

	first, err := orch.HandleUserMessage(ctx, 1, 1, "hello")
	require.NoError(t, err)
	second, err := orch.HandleUserMessage(ctx, 1, 1, "hello again")
	require.NoError(t, err)

	require.True(t, first.SessionCreated)
	require.False(t, second.SessionCreated)
	require.Equal(t, first.SessionUID, second.SessionUID)

	episode, err := repo.GetEpisode(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, int32(1), episode.PlayCount)
}

func TestHandleUserMessageLedgerOrder(t *testing.T) {
	ctx := context.Background()
	orch, repo := newTestOrchestrator(t, &MockGenerator{}, Config{})

	inputs := []string{"one", "two", "three"}
	var sessionUID string
	for _, input := range inputs {
		result, err := orch.HandleUserMessage(ctx, 1, 1, input)
		require.NoError(t, err)
		sessionUID = result.SessionUID
	}

	session, err := repo.GetSessionByUID(ctx, sessionUID)
	require.NoError(t, err)
	messages, err := repo.ListMessages(ctx, session.ID)
	require.NoError(t, err)
	require.Len(t, messages, 6)

	for i, input := range inputs {
		userMsg := messages[i*2]
		assistantMsg := messages[i*2+1]
		require.Equal(t, store.MessageRoleUser, userMsg.Role)
		require.Equal(t, input, userMsg.Content)
		require.Equal(t, store.MessageRoleAssistant, assistantMsg.Role)
		require.Greater(t, assistantMsg.ID, userMsg.ID)
	}
}

func TestHandleUserMessageValidation(t *testing.T) {
	ctx := context.Background()
	orch, _ := newTestOrchestrator(t, &MockGenerator{}, Config{})

	t.Run("empty message", func(t *testing.T) {
		_, err := orch.HandleUserMessage(ctx, 1, 1, "   ")
		require.True(t, apperrors.IsCode(err, apperrors.ErrCodeInvalidArgument))
	})

	t.Run("unknown user", func(t *testing.T) {
		_, err := orch.HandleUserMessage(ctx, 99, 1, "hello")
		require.True(t, apperrors.IsCode(err, apperrors.ErrCodeNotFound))
	})

	t.Run("unknown episode", func(t *testing.T) {
		_, err := orch.HandleUserMessage(ctx, 1, 99, "hello")
		require.True(t, apperrors.IsCode(err, apperrors.ErrCodeNotFound))
	})
}

func TestHandleUserMessageGenerationFailure(t *testing.T) {
	ctx := context.Background()
	gen := &MockGenerator{Err: errors.New("provider unavailable")}
	orch, repo := newTestOrchestrator(t, gen, Config{})

	_, err := orch.HandleUserMessage(ctx, 1, 1, "hello")
	require.True(t, apperrors.IsCode(err, apperrors.ErrCodeGenerationFailed))

	// The user turn is persisted; the session state is untouched.
	session, err := repo.GetActiveSession(ctx, 1, 1)
	require.NoError(t, err)
	require.NotNil(t, session)
	require.Equal(t, InitialScore, session.RelationshipScore)
	require.Equal(t, store.NeutralEmotionalState(), session.EmotionalState)
	require.Equal(t, "intro", session.ProgressMarker)

	messages, err := repo.ListMessages(ctx, session.ID)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	require.Equal(t, store.MessageRoleUser, messages[0].Role)

	// The exchange is retryable once the generator recovers.
	gen.Err = nil
	result, err := orch.HandleUserMessage(ctx, 1, 1, "hello again")
	require.NoError(t, err)
	require.False(t, result.SessionCreated)

	messages, err = repo.ListMessages(ctx, session.ID)
	require.NoError(t, err)
	require.Len(t, messages, 3)
}

func TestHandleUserMessageGenerationTimeout(t *testing.T) {
	ctx := context.Background()
	gen := &MockGenerator{Block: true}
	orch, repo := newTestOrchestrator(t, gen, Config{GenerationTimeout: 50 * time.Millisecond})

	_, err := orch.HandleUserMessage(ctx, 1, 1, "hello")
	require.True(t, apperrors.IsCode(err, apperrors.ErrCodeGenerationTimeout))

	session, err := repo.GetActiveSession(ctx, 1, 1)
	require.NoError(t, err)
	require.NotNil(t, session)
	require.Equal(t, InitialScore, session.RelationshipScore)
	messages, err := repo.ListMessages(ctx, session.ID)
	require.NoError(t, err)
	require.Len(t, messages, 1)
}

func TestHandleUserMessageAppliesStateAndProgress(t *testing.T) {
	ctx := context.Background()
	gen := &MockGenerator{
		Text:       "that makes me happy",
		Signal:     EmotionSignal{Happiness: 20, Interest: 5, Trust: 5},
		ScoreDelta: 5,
	}
	orch, repo := newTestOrchestrator(t, gen, Config{})

	result, err := orch.HandleUserMessage(ctx, 1, 1, "you seem nice")
	require.NoError(t, err)
	require.Equal(t, 55, result.RelationshipScore)
	require.Equal(t, store.EmotionalState{Happiness: 70, Interest: 55, Trust: 55}, result.EmotionalState)
	// score >= 55 moves intro -> warming_up.
	require.Equal(t, "warming_up", result.ProgressMarker)
	require.Equal(t, []string{"opened_up"}, result.ChoicesTaken)
	// smile is closest to the elevated mood and covers warming_up.
	require.Equal(t, "smile", result.ClipID)

	session, err := repo.GetSessionByUID(ctx, result.SessionUID)
	require.NoError(t, err)
	require.Equal(t, []string{"opened_up"}, session.Choices)

	messages, err := repo.ListMessages(ctx, session.ID)
	require.NoError(t, err)
	require.Equal(t, "smile", messages[1].ClipID)
	require.Equal(t, 5, messages[1].ScoreDelta)
}

func TestHandleUserMessageChainedProgress(t *testing.T) {
	ctx := context.Background()
	gen := &MockGenerator{ScoreDelta: 25}
	orch, _ := newTestOrchestrator(t, gen, Config{})

	// 50 + 25 = 75 satisfies intro -> warming_up and warming_up -> closer in
	// a single walk.
	result, err := orch.HandleUserMessage(ctx, 1, 1, "hello")
	require.NoError(t, err)
	require.Equal(t, "closer", result.ProgressMarker)
	require.Equal(t, []string{"opened_up", "shared_secret"}, result.ChoicesTaken)
	// closer has no covering clip; the turn is text-only.
	require.Empty(t, result.ClipID)
}

func TestHandleUserMessageTerminalNodeStillUpdatesState(t *testing.T) {
	ctx := context.Background()
	gen := &MockGenerator{ScoreDelta: 25}
	orch, repo := newTestOrchestrator(t, gen, Config{})

	result, err := orch.HandleUserMessage(ctx, 1, 1, "hello")
	require.NoError(t, err)
	require.Equal(t, "closer", result.ProgressMarker)

	gen.ScoreDelta = 10
	result, err = orch.HandleUserMessage(ctx, 1, 1, "still talking")
	require.NoError(t, err)
	require.Equal(t, "closer", result.ProgressMarker)
	require.Equal(t, 85, result.RelationshipScore)
	require.Empty(t, result.ChoicesTaken)

	session, err := repo.GetSessionByUID(ctx, result.SessionUID)
	require.NoError(t, err)
	require.Equal(t, 85, session.RelationshipScore)
}

func TestHandleUserMessageConcurrentSamePair(t *testing.T) {
	ctx := context.Background()
	orch, repo := newTestOrchestrator(t, &MockGenerator{}, Config{})

	const workers = 16
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = orch.HandleUserMessage(ctx, 1, 1, "hello")
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}

	// Exactly one session exists for the pair.
	sessions, err := repo.ListUserSessions(ctx, 1, 0)
	require.NoError(t, err)
	require.Len(t, sessions, 1)

	session, err := repo.GetSessionByUID(ctx, sessions[0].UID)
	require.NoError(t, err)
	messages, err := repo.ListMessages(ctx, session.ID)
	require.NoError(t, err)
	require.Len(t, messages, workers*2)
}

func TestEndSession(t *testing.T) {
	ctx := context.Background()
	orch, _ := newTestOrchestrator(t, &MockGenerator{}, Config{})

	result, err := orch.HandleUserMessage(ctx, 1, 1, "hello")
	require.NoError(t, err)

	snapshot, err := orch.EndSession(ctx, result.SessionUID)
	require.NoError(t, err)
	require.Equal(t, store.SessionStatusEnded, snapshot.Status)

	// Ending again is a no-op.
	snapshot, err = orch.EndSession(ctx, result.SessionUID)
	require.NoError(t, err)
	require.Equal(t, store.SessionStatusEnded, snapshot.Status)

	// The next message starts a fresh session with default state.
	next, err := orch.HandleUserMessage(ctx, 1, 1, "hello again")
	require.NoError(t, err)
	require.True(t, next.SessionCreated)
	require.NotEqual(t, result.SessionUID, next.SessionUID)
	require.Equal(t, InitialScore, next.RelationshipScore)

	_, err = orch.EndSession(ctx, "no-such-session")
	require.True(t, apperrors.IsCode(err, apperrors.ErrCodeNotFound))
}

func TestGetSession(t *testing.T) {
	ctx := context.Background()
	orch, _ := newTestOrchestrator(t, &MockGenerator{}, Config{})

	result, err := orch.HandleUserMessage(ctx, 1, 1, "hello")
	require.NoError(t, err)

	snapshot, err := orch.GetSession(ctx, result.SessionUID)
	require.NoError(t, err)
	require.Equal(t, result.SessionUID, snapshot.SessionUID)
	require.Equal(t, TierFor(snapshot.RelationshipScore), snapshot.Tier)
	require.Len(t, snapshot.Messages, 2)

	_, err = orch.GetSession(ctx, "no-such-session")
	require.True(t, apperrors.IsCode(err, apperrors.ErrCodeNotFound))
}

func TestListUserSessions(t *testing.T) {
	ctx := context.Background()
	orch, _ := newTestOrchestrator(t, &MockGenerator{}, Config{})

	result, err := orch.HandleUserMessage(ctx, 1, 1, "hello")
	require.NoError(t, err)
	_, err = orch.EndSession(ctx, result.SessionUID)
	require.NoError(t, err)
	second, err := orch.HandleUserMessage(ctx, 1, 1, "round two")
	require.NoError(t, err)

	snapshots, err := orch.ListUserSessions(ctx, 1, 0)
	require.NoError(t, err)
	require.Len(t, snapshots, 2)
	// Most recent activity first; snapshots carry no ledgers.
	require.Equal(t, second.SessionUID, snapshots[0].SessionUID)
	require.Empty(t, snapshots[0].Messages)

	_, err = orch.ListUserSessions(ctx, 99, 0)
	require.True(t, apperrors.IsCode(err, apperrors.ErrCodeNotFound))
}
