package engine

import (
	"context"

	"github.com/nobadaofficial/noba-da3/store"
)

// SessionRepository is the persistence contract for session aggregates.
// The orchestrator only ever talks to this interface; tests substitute an
// in-memory implementation.
type SessionRepository interface {
	// GetActiveSession returns the ACTIVE session for (user, episode), or
	// nil when there is none.
	GetActiveSession(ctx context.Context, userID, episodeID int32) (*store.ChatSession, error)
	// GetSessionByUID returns a session regardless of status, or nil.
	GetSessionByUID(ctx context.Context, uid string) (*store.ChatSession, error)
	CreateSession(ctx context.Context, create *store.ChatSession) (*store.ChatSession, error)
	UpdateSession(ctx context.Context, update *store.UpdateChatSession) (*store.ChatSession, error)
	ListUserSessions(ctx context.Context, userID int32, limit int) ([]*store.ChatSession, error)
	// AppendMessage appends one turn to the session ledger.
	AppendMessage(ctx context.Context, msg *store.ChatMessage) (*store.ChatMessage, error)
	ListMessages(ctx context.Context, sessionID int32) ([]*store.ChatMessage, error)
	// CompleteTurn appends the assistant turn and applies the session
	// mutation atomically.
	CompleteTurn(ctx context.Context, msg *store.ChatMessage, update *store.UpdateChatSession) (*store.ChatMessage, *store.ChatSession, error)
}

// ContentRepository is the read-only contract to the content collaborator.
// The engine never mutates content beyond the play counter.
type ContentRepository interface {
	GetUser(ctx context.Context, id int32) (*store.User, error)
	GetEpisode(ctx context.Context, id int32) (*store.Episode, error)
	GetCharacter(ctx context.Context, id int32) (*store.Character, error)
	IncrementEpisodePlayCount(ctx context.Context, id int32) error
}

// StoreRepository adapts *store.Store to the engine repository contracts.
type StoreRepository struct {
	store *store.Store
}

// NewStoreRepository creates the production repository backed by the store.
func NewStoreRepository(s *store.Store) *StoreRepository {
	return &StoreRepository{store: s}
}

func (r *StoreRepository) GetActiveSession(ctx context.Context, userID, episodeID int32) (*store.ChatSession, error) {
	status := store.SessionStatusActive
	return r.store.GetChatSession(ctx, &store.FindChatSession{
		UserID:    &userID,
		EpisodeID: &episodeID,
		Status:    &status,
	})
}

func (r *StoreRepository) GetSessionByUID(ctx context.Context, uid string) (*store.ChatSession, error) {
	return r.store.GetChatSession(ctx, &store.FindChatSession{UID: &uid})
}

func (r *StoreRepository) CreateSession(ctx context.Context, create *store.ChatSession) (*store.ChatSession, error) {
	return r.store.CreateChatSession(ctx, create)
}

func (r *StoreRepository) UpdateSession(ctx context.Context, update *store.UpdateChatSession) (*store.ChatSession, error) {
	return r.store.UpdateChatSession(ctx, update)
}

func (r *StoreRepository) ListUserSessions(ctx context.Context, userID int32, limit int) ([]*store.ChatSession, error) {
	find := &store.FindChatSession{UserID: &userID}
	if limit > 0 {
		find.Limit = &limit
	}
	return r.store.ListChatSessions(ctx, find)
}

func (r *StoreRepository) AppendMessage(ctx context.Context, msg *store.ChatMessage) (*store.ChatMessage, error) {
	return r.store.CreateChatMessage(ctx, msg)
}

func (r *StoreRepository) ListMessages(ctx context.Context, sessionID int32) ([]*store.ChatMessage, error) {
	return r.store.ListChatMessages(ctx, &store.FindChatMessage{SessionID: &sessionID})
}

func (r *StoreRepository) CompleteTurn(ctx context.Context, msg *store.ChatMessage, update *store.UpdateChatSession) (*store.ChatMessage, *store.ChatSession, error) {
	return r.store.CompleteTurn(ctx, msg, update)
}

func (r *StoreRepository) GetUser(ctx context.Context, id int32) (*store.User, error) {
	return r.store.GetUser(ctx, &store.FindUser{ID: &id})
}

func (r *StoreRepository) GetEpisode(ctx context.Context, id int32) (*store.Episode, error) {
	return r.store.GetEpisode(ctx, &store.FindEpisode{ID: &id})
}

func (r *StoreRepository) GetCharacter(ctx context.Context, id int32) (*store.Character, error) {
	return r.store.GetCharacter(ctx, &store.FindCharacter{ID: &id})
}

func (r *StoreRepository) IncrementEpisodePlayCount(ctx context.Context, id int32) error {
	return r.store.IncrementEpisodePlayCount(ctx, id)
}

var (
	_ SessionRepository = (*StoreRepository)(nil)
	_ ContentRepository = (*StoreRepository)(nil)
)
