package store_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nobadaofficial/noba-da3/internal/profile"
	"github.com/nobadaofficial/noba-da3/store"
	"github.com/nobadaofficial/noba-da3/store/db"
)

func newTestStore(t *testing.T, mode string) *store.Store {
	t.Helper()
	p := &profile.Profile{
		Mode:   mode,
		Driver: "sqlite",
		DSN:    filepath.Join(t.TempDir(), "test.db"),
	}
	driver, err := db.NewDBDriver(p)
	require.NoError(t, err)

	s := store.New(driver, p)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func TestMigrateSeedsDemoContent(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, "demo")

	characters, err := s.ListCharacters(ctx, &store.FindCharacter{})
	require.NoError(t, err)
	require.Len(t, characters, 1)
	require.Equal(t, "지우", characters[0].Name)
	require.True(t, characters[0].IsPublished)
	require.NotEmpty(t, characters[0].Personality.Traits)

	episodes, err := s.ListEpisodes(ctx, &store.FindEpisode{})
	require.NoError(t, err)
	require.Len(t, episodes, 1)

	episode := episodes[0]
	require.Equal(t, "intro", episode.StartNode)
	require.Len(t, episode.BranchPoints, 5)
	require.Len(t, episode.ClipPool, 5)
	require.Equal(t, "jiwoo-smile", episode.ClipPool[0].ID)

	users, err := s.ListUsers(ctx, &store.FindUser{})
	require.NoError(t, err)
	require.Len(t, users, 1)

	// Seeding is idempotent.
	require.NoError(t, s.Migrate(ctx))
	characters, err = s.ListCharacters(ctx, &store.FindCharacter{})
	require.NoError(t, err)
	require.Len(t, characters, 1)
}

func TestMigrateDevModeDoesNotSeed(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, "dev")

	characters, err := s.ListCharacters(ctx, &store.FindCharacter{})
	require.NoError(t, err)
	require.Empty(t, characters)
}

// seedContentFixture creates the user, character, and episode rows session
// tests reference. Foreign keys are enforced by the sqlite driver.
func seedContentFixture(t *testing.T, ctx context.Context, s *store.Store) (*store.User, *store.Episode) {
	t.Helper()
	user, err := s.CreateUser(ctx, &store.User{UID: "u-1", Nickname: "tester"})
	require.NoError(t, err)
	require.NotZero(t, user.ID)

	character, err := s.CreateCharacter(ctx, &store.Character{
		UID:         "c-1",
		Name:        "Jiwoo",
		IsPublished: true,
	})
	require.NoError(t, err)

	episode, err := s.CreateEpisode(ctx, &store.Episode{
		UID:         "e-1",
		CharacterID: character.ID,
		Title:       "First Meeting",
		StartNode:   "intro",
		IsPublished: true,
	})
	require.NoError(t, err)
	return user, episode
}

func TestChatSessionLifecycle(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, "dev")
	user, episode := seedContentFixture(t, ctx, s)

	session, err := s.CreateChatSession(ctx, &store.ChatSession{
		UID:               "s-1",
		UserID:            user.ID,
		EpisodeID:         episode.ID,
		RelationshipScore: 50,
		EmotionalState:    store.NeutralEmotionalState(),
		ProgressMarker:    "intro",
		Choices:           []string{},
		Status:            store.SessionStatusActive,
	})
	require.NoError(t, err)
	require.NotZero(t, session.ID)
	require.NotZero(t, session.CreatedTs)

	t.Run("second active session for the pair is rejected", func(t *testing.T) {
		_, err := s.CreateChatSession(ctx, &store.ChatSession{
			UID:       "s-2",
			UserID:    user.ID,
			EpisodeID: episode.ID,
			Status:    store.SessionStatusActive,
		})
		require.Error(t, err)
	})

	t.Run("lookup by pair and status", func(t *testing.T) {
		status := store.SessionStatusActive
		found, err := s.GetChatSession(ctx, &store.FindChatSession{
			UserID:    &user.ID,
			EpisodeID: &session.EpisodeID,
			Status:    &status,
		})
		require.NoError(t, err)
		require.NotNil(t, found)
		require.Equal(t, session.UID, found.UID)
		require.Equal(t, store.NeutralEmotionalState(), found.EmotionalState)
		require.Empty(t, found.Choices)
	})

	t.Run("complete turn persists message and state together", func(t *testing.T) {
		score := 58
		state := store.EmotionalState{Happiness: 62, Interest: 55, Trust: 53}
		marker := "warming_up"
		choices := []string{"opened_up"}

		msg, updated, err := s.CompleteTurn(ctx, &store.ChatMessage{
			UID:        "m-1",
			SessionID:  session.ID,
			Role:       store.MessageRoleAssistant,
			Content:    "반가워요",
			ClipID:     "jiwoo-smile",
			ScoreDelta: 8,
		}, &store.UpdateChatSession{
			ID:                session.ID,
			RelationshipScore: &score,
			EmotionalState:    &state,
			ProgressMarker:    &marker,
			Choices:           &choices,
		})
		require.NoError(t, err)
		require.NotZero(t, msg.ID)
		require.Equal(t, 58, updated.RelationshipScore)
		require.Equal(t, state, updated.EmotionalState)
		require.Equal(t, "warming_up", updated.ProgressMarker)
		require.Equal(t, []string{"opened_up"}, updated.Choices)

		messages, err := s.ListChatMessages(ctx, &store.FindChatMessage{SessionID: &session.ID})
		require.NoError(t, err)
		require.Len(t, messages, 1)
		require.Equal(t, "jiwoo-smile", messages[0].ClipID)
		require.Equal(t, 8, messages[0].ScoreDelta)
	})

	t.Run("ending the session frees the pair", func(t *testing.T) {
		ended := store.SessionStatusEnded
		_, err := s.UpdateChatSession(ctx, &store.UpdateChatSession{ID: session.ID, Status: &ended})
		require.NoError(t, err)

		fresh, err := s.CreateChatSession(ctx, &store.ChatSession{
			UID:            "s-3",
			UserID:         user.ID,
			EpisodeID:      episode.ID,
			EmotionalState: store.NeutralEmotionalState(),
			Status:         store.SessionStatusActive,
		})
		require.NoError(t, err)
		require.NotEqual(t, session.ID, fresh.ID)
	})
}

func TestChatMessageLedgerOrder(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, "dev")
	user, episode := seedContentFixture(t, ctx, s)

	session, err := s.CreateChatSession(ctx, &store.ChatSession{
		UID:            "s-1",
		UserID:         user.ID,
		EpisodeID:      episode.ID,
		EmotionalState: store.NeutralEmotionalState(),
		Status:         store.SessionStatusActive,
	})
	require.NoError(t, err)

	contents := []string{"first", "second", "third", "fourth"}
	for i, content := range contents {
		role := store.MessageRoleUser
		if i%2 == 1 {
			role = store.MessageRoleAssistant
		}
		_, err := s.CreateChatMessage(ctx, &store.ChatMessage{
			UID:       content,
			SessionID: session.ID,
			Role:      role,
			Content:   content,
		})
		require.NoError(t, err)
	}

	messages, err := s.ListChatMessages(ctx, &store.FindChatMessage{SessionID: &session.ID})
	require.NoError(t, err)
	require.Len(t, messages, len(contents))
	for i, content := range contents {
		require.Equal(t, content, messages[i].Content)
		if i > 0 {
			require.Greater(t, messages[i].ID, messages[i-1].ID)
		}
	}
}

func TestEpisodeRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, "dev")

	character, err := s.CreateCharacter(ctx, &store.Character{UID: "c-ep", Name: "Jiwoo"})
	require.NoError(t, err)

	created, err := s.CreateEpisode(ctx, &store.Episode{
		UID:         "ep-1",
		CharacterID: character.ID,
		Title:       "Test Episode",
		StartNode:   "intro",
		BranchPoints: []store.BranchPoint{
			{Node: "intro", Edges: []store.BranchEdge{{Guard: "score >= 55", To: "next", Choice: "moved"}}},
			{Node: "next"},
		},
		ClipPool: []store.Clip{
			{ID: "c1", VideoURL: "https://cdn.example.com/c1.mp4", Emotion: store.NeutralEmotionalState(), Nodes: []string{"intro"}},
		},
		IsPublished: true,
	})
	require.NoError(t, err)
	require.NotZero(t, created.ID)

	fetched, err := s.GetEpisode(ctx, &store.FindEpisode{ID: &created.ID})
	require.NoError(t, err)
	require.NotNil(t, fetched)
	require.Len(t, fetched.BranchPoints, 2)
	require.Equal(t, "score >= 55", fetched.BranchPoints[0].Edges[0].Guard)
	require.Len(t, fetched.ClipPool, 1)

	require.NoError(t, s.IncrementEpisodePlayCount(ctx, created.ID))
	fetched, err = s.GetEpisode(ctx, &store.FindEpisode{ID: &created.ID})
	require.NoError(t, err)
	require.Equal(t, int32(1), fetched.PlayCount)
}
