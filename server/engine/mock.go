package engine

import (
	"context"
	"sort"
	"sync"

	"github.com/pkg/errors"

	"github.com/nobadaofficial/noba-da3/store"
)

// MockGenerator is a deterministic ResponseGenerator for tests and demo
// mode. Replies echo the user message; the configurable fields let a test
// script exact score and emotion movements.
type MockGenerator struct {
	mu sync.Mutex

	// Reply fields applied to every generated turn.
	Text       string
	Signal     EmotionSignal
	ScoreDelta int

	// Err, when set, is returned instead of a reply.
	Err error
	// Block, when set, makes Generate wait for ctx cancellation. Used to
	// exercise timeout handling.
	Block bool

	calls int
}

func (g *MockGenerator) Generate(ctx context.Context, req *GenerateRequest) (*Reply, error) {
	g.mu.Lock()
	g.calls++
	text, signal, delta, err, block := g.Text, g.Signal, g.ScoreDelta, g.Err, g.Block
	g.mu.Unlock()

	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if err != nil {
		return nil, err
	}
	if text == "" {
		text = "You said: " + req.UserMessage
	}
	return &Reply{Text: text, Signal: signal, ScoreDelta: delta}, nil
}

// Calls returns how many times Generate has been invoked.
func (g *MockGenerator) Calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

// MockRepository is an in-memory implementation of SessionRepository and
// ContentRepository backed by maps. It mirrors the database semantics the
// engine depends on: autoincrement IDs, append-only messages, and the
// unique ACTIVE session per (user, episode) pair.
type MockRepository struct {
	mu sync.RWMutex

	users      map[int32]*store.User
	episodes   map[int32]*store.Episode
	characters map[int32]*store.Character
	sessions   map[int32]*store.ChatSession
	messages   map[int32]*store.ChatMessage

	sessionSeq int32
	messageSeq int32
	clock      int64

	// FailCompleteTurn, when set, makes CompleteTurn fail without writing.
	FailCompleteTurn error
}

// NewMockRepository creates an empty in-memory repository.
func NewMockRepository() *MockRepository {
	return &MockRepository{
		users:      make(map[int32]*store.User),
		episodes:   make(map[int32]*store.Episode),
		characters: make(map[int32]*store.Character),
		sessions:   make(map[int32]*store.ChatSession),
		messages:   make(map[int32]*store.ChatMessage),
	}
}

// AddUser registers a user for lookup.
func (m *MockRepository) AddUser(user *store.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[user.ID] = user
}

// AddEpisode registers an episode for lookup.
func (m *MockRepository) AddEpisode(episode *store.Episode) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.episodes[episode.ID] = episode
}

// AddCharacter registers a character for lookup.
func (m *MockRepository) AddCharacter(character *store.Character) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.characters[character.ID] = character
}

func (m *MockRepository) GetUser(_ context.Context, id int32) (*store.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.users[id], nil
}

func (m *MockRepository) GetEpisode(_ context.Context, id int32) (*store.Episode, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.episodes[id], nil
}

func (m *MockRepository) GetCharacter(_ context.Context, id int32) (*store.Character, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.characters[id], nil
}

func (m *MockRepository) IncrementEpisodePlayCount(_ context.Context, id int32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if episode, ok := m.episodes[id]; ok {
		episode.PlayCount++
	}
	return nil
}

func (m *MockRepository) GetActiveSession(_ context.Context, userID, episodeID int32) (*store.ChatSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.activeSessionLocked(userID, episodeID), nil
}

func (m *MockRepository) GetSessionByUID(_ context.Context, uid string) (*store.ChatSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, session := range m.sessions {
		if session.UID == uid {
			return copySession(session), nil
		}
	}
	return nil, nil
}

func (m *MockRepository) CreateSession(_ context.Context, create *store.ChatSession) (*store.ChatSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if create.Status == store.SessionStatusActive {
		if existing := m.activeSessionLocked(create.UserID, create.EpisodeID); existing != nil {
			return nil, errors.Errorf("unique constraint violated: active session exists for %d:%d", create.UserID, create.EpisodeID)
		}
	}
	m.sessionSeq++
	m.clock++
	session := copySession(create)
	session.ID = m.sessionSeq
	session.CreatedTs = m.clock
	session.UpdatedTs = m.clock
	m.sessions[session.ID] = session
	return copySession(session), nil
}

func (m *MockRepository) UpdateSession(_ context.Context, update *store.UpdateChatSession) (*store.ChatSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updateSessionLocked(update)
}

func (m *MockRepository) ListUserSessions(_ context.Context, userID int32, limit int) ([]*store.ChatSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var list []*store.ChatSession
	for _, session := range m.sessions {
		if session.UserID == userID {
			list = append(list, copySession(session))
		}
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].UpdatedTs != list[j].UpdatedTs {
			return list[i].UpdatedTs > list[j].UpdatedTs
		}
		return list[i].ID > list[j].ID
	})
	if limit > 0 && len(list) > limit {
		list = list[:limit]
	}
	return list, nil
}

func (m *MockRepository) AppendMessage(_ context.Context, msg *store.ChatMessage) (*store.ChatMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.appendMessageLocked(msg), nil
}

func (m *MockRepository) ListMessages(_ context.Context, sessionID int32) ([]*store.ChatMessage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var list []*store.ChatMessage
	for _, msg := range m.messages {
		if msg.SessionID == sessionID {
			list = append(list, copyMessage(msg))
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	return list, nil
}

func (m *MockRepository) CompleteTurn(_ context.Context, msg *store.ChatMessage, update *store.UpdateChatSession) (*store.ChatMessage, *store.ChatSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailCompleteTurn != nil {
		return nil, nil, m.FailCompleteTurn
	}
	created := m.appendMessageLocked(msg)
	session, err := m.updateSessionLocked(update)
	if err != nil {
		delete(m.messages, created.ID)
		return nil, nil, err
	}
	return created, session, nil
}

func (m *MockRepository) activeSessionLocked(userID, episodeID int32) *store.ChatSession {
	for _, session := range m.sessions {
		if session.UserID == userID && session.EpisodeID == episodeID && session.Status == store.SessionStatusActive {
			return copySession(session)
		}
	}
	return nil
}

func (m *MockRepository) updateSessionLocked(update *store.UpdateChatSession) (*store.ChatSession, error) {
	session, ok := m.sessions[update.ID]
	if !ok {
		return nil, errors.Errorf("chat session not found: %d", update.ID)
	}
	if update.RelationshipScore != nil {
		session.RelationshipScore = *update.RelationshipScore
	}
	if update.EmotionalState != nil {
		session.EmotionalState = *update.EmotionalState
	}
	if update.ProgressMarker != nil {
		session.ProgressMarker = *update.ProgressMarker
	}
	if update.Choices != nil {
		session.Choices = append([]string{}, (*update.Choices)...)
	}
	if update.Status != nil {
		session.Status = *update.Status
	}
	m.clock++
	session.UpdatedTs = m.clock
	return copySession(session), nil
}

func (m *MockRepository) appendMessageLocked(msg *store.ChatMessage) *store.ChatMessage {
	m.messageSeq++
	m.clock++
	created := copyMessage(msg)
	created.ID = m.messageSeq
	created.CreatedTs = m.clock
	m.messages[created.ID] = created
	return copyMessage(created)
}

func copySession(s *store.ChatSession) *store.ChatSession {
	dup := *s
	dup.Choices = append([]string{}, s.Choices...)
	return &dup
}

func copyMessage(msg *store.ChatMessage) *store.ChatMessage {
	dup := *msg
	return &dup
}

var (
	_ ResponseGenerator = (*MockGenerator)(nil)
	_ SessionRepository = (*MockRepository)(nil)
	_ ContentRepository = (*MockRepository)(nil)
)
