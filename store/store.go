package store

import (
	"context"
	"fmt"
	"time"

	"github.com/nobadaofficial/noba-da3/internal/profile"
	"github.com/nobadaofficial/noba-da3/store/cache"
)

// Store provides database access to all raw objects.
type Store struct {
	profile *profile.Profile
	driver  Driver

	// Cache settings
	cacheConfig cache.Config

	// Caches
	episodeCache   *cache.Cache // cache for episode definitions
	characterCache *cache.Cache // cache for character profiles
	sessionCache   *cache.Cache // cache for session rows keyed by UID
}

// New creates a new instance of Store.
func New(driver Driver, profile *profile.Profile) *Store {
	// Default cache settings
	cacheConfig := cache.Config{
		DefaultTTL:      10 * time.Minute,
		CleanupInterval: 5 * time.Minute,
		MaxItems:        1000,
		OnEviction:      nil,
	}

	store := &Store{
		driver:         driver,
		profile:        profile,
		cacheConfig:    cacheConfig,
		episodeCache:   cache.New(cacheConfig),
		characterCache: cache.New(cacheConfig),
		sessionCache:   cache.New(cacheConfig),
	}

	return store
}

func (s *Store) GetDriver() Driver {
	return s.driver
}

func (s *Store) Close() error {
	// Stop all cache cleanup goroutines
	s.episodeCache.Close()
	s.characterCache.Close()
	s.sessionCache.Close()

	return s.driver.Close()
}

func (s *Store) CreateUser(ctx context.Context, create *User) (*User, error) {
	return s.driver.CreateUser(ctx, create)
}

func (s *Store) ListUsers(ctx context.Context, find *FindUser) ([]*User, error) {
	return s.driver.ListUsers(ctx, find)
}

// GetUser returns a single user or nil when absent.
func (s *Store) GetUser(ctx context.Context, find *FindUser) (*User, error) {
	list, err := s.driver.ListUsers(ctx, find)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, nil
	}
	return list[0], nil
}

func (s *Store) CreateChatSession(ctx context.Context, create *ChatSession) (*ChatSession, error) {
	session, err := s.driver.CreateChatSession(ctx, create)
	if err != nil {
		return nil, err
	}
	s.sessionCache.Set(session.UID, session)
	return session, nil
}

func (s *Store) ListChatSessions(ctx context.Context, find *FindChatSession) ([]*ChatSession, error) {
	return s.driver.ListChatSessions(ctx, find)
}

// GetChatSession returns a single session or nil when absent. Lookups by
// UID are served from the session cache when possible.
func (s *Store) GetChatSession(ctx context.Context, find *FindChatSession) (*ChatSession, error) {
	if find.UID != nil && find.ID == nil && find.UserID == nil && find.EpisodeID == nil && find.Status == nil {
		if cached, ok := s.sessionCache.Get(*find.UID); ok {
			if session, ok := cached.(*ChatSession); ok {
				return session, nil
			}
		}
	}
	list, err := s.driver.ListChatSessions(ctx, find)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, nil
	}
	session := list[0]
	s.sessionCache.Set(session.UID, session)
	return session, nil
}

func (s *Store) UpdateChatSession(ctx context.Context, update *UpdateChatSession) (*ChatSession, error) {
	session, err := s.driver.UpdateChatSession(ctx, update)
	if err != nil {
		return nil, err
	}
	s.sessionCache.Set(session.UID, session)
	return session, nil
}

func (s *Store) CreateChatMessage(ctx context.Context, create *ChatMessage) (*ChatMessage, error) {
	return s.driver.CreateChatMessage(ctx, create)
}

func (s *Store) ListChatMessages(ctx context.Context, find *FindChatMessage) ([]*ChatMessage, error) {
	return s.driver.ListChatMessages(ctx, find)
}

// CompleteTurn persists the assistant message and the session mutation
// atomically.
func (s *Store) CompleteTurn(ctx context.Context, msg *ChatMessage, update *UpdateChatSession) (*ChatMessage, *ChatSession, error) {
	created, err := s.driver.CompleteTurn(ctx, msg, update)
	if err != nil {
		return nil, nil, err
	}
	session, err := s.GetChatSessionRefreshed(ctx, update.ID)
	if err != nil {
		return nil, nil, err
	}
	return created, session, nil
}

// GetChatSessionRefreshed bypasses the cache and refreshes it from the database.
func (s *Store) GetChatSessionRefreshed(ctx context.Context, id int32) (*ChatSession, error) {
	list, err := s.driver.ListChatSessions(ctx, &FindChatSession{ID: &id})
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, fmt.Errorf("chat session not found: %d", id)
	}
	session := list[0]
	s.sessionCache.Set(session.UID, session)
	return session, nil
}

func (s *Store) CreateEpisode(ctx context.Context, create *Episode) (*Episode, error) {
	return s.driver.CreateEpisode(ctx, create)
}

func (s *Store) ListEpisodes(ctx context.Context, find *FindEpisode) ([]*Episode, error) {
	return s.driver.ListEpisodes(ctx, find)
}

// GetEpisode returns a single episode or nil when absent. Episodes are
// read-only content, so positive lookups by ID are cached.
func (s *Store) GetEpisode(ctx context.Context, find *FindEpisode) (*Episode, error) {
	if find.ID != nil && find.UID == nil && find.CharacterID == nil && find.IsPublished == nil {
		key := fmt.Sprintf("episode:%d", *find.ID)
		if cached, ok := s.episodeCache.Get(key); ok {
			if episode, ok := cached.(*Episode); ok {
				return episode, nil
			}
		}
	}
	list, err := s.driver.ListEpisodes(ctx, find)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, nil
	}
	episode := list[0]
	s.episodeCache.Set(fmt.Sprintf("episode:%d", episode.ID), episode)
	return episode, nil
}

func (s *Store) IncrementEpisodePlayCount(ctx context.Context, id int32) error {
	if err := s.driver.IncrementEpisodePlayCount(ctx, id); err != nil {
		return err
	}
	s.episodeCache.Delete(fmt.Sprintf("episode:%d", id))
	return nil
}

func (s *Store) CreateCharacter(ctx context.Context, create *Character) (*Character, error) {
	return s.driver.CreateCharacter(ctx, create)
}

func (s *Store) ListCharacters(ctx context.Context, find *FindCharacter) ([]*Character, error) {
	return s.driver.ListCharacters(ctx, find)
}

// GetCharacter returns a single character or nil when absent.
func (s *Store) GetCharacter(ctx context.Context, find *FindCharacter) (*Character, error) {
	if find.ID != nil && find.UID == nil && find.IsPublished == nil {
		key := fmt.Sprintf("character:%d", *find.ID)
		if cached, ok := s.characterCache.Get(key); ok {
			if character, ok := cached.(*Character); ok {
				return character, nil
			}
		}
	}
	list, err := s.driver.ListCharacters(ctx, find)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, nil
	}
	character := list[0]
	s.characterCache.Set(fmt.Sprintf("character:%d", character.ID), character)
	return character, nil
}
