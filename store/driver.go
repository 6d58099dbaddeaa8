package store

import (
	"context"
	"database/sql"
)

// Driver is an interface for store driver.
// It contains all methods that store database driver should implement.
type Driver interface {
	GetDB() *sql.DB
	Close() error

	IsInitialized(ctx context.Context) (bool, error)

	// User model related methods.
	CreateUser(ctx context.Context, create *User) (*User, error)
	ListUsers(ctx context.Context, find *FindUser) ([]*User, error)

	// ChatSession model related methods.
	CreateChatSession(ctx context.Context, create *ChatSession) (*ChatSession, error)
	ListChatSessions(ctx context.Context, find *FindChatSession) ([]*ChatSession, error)
	UpdateChatSession(ctx context.Context, update *UpdateChatSession) (*ChatSession, error)

	// ChatMessage model related methods. Messages are append-only; there is
	// deliberately no update or delete.
	CreateChatMessage(ctx context.Context, create *ChatMessage) (*ChatMessage, error)
	ListChatMessages(ctx context.Context, find *FindChatMessage) ([]*ChatMessage, error)

	// CompleteTurn appends an assistant message and applies the session
	// update in a single transaction, so a turn is either fully recorded or
	// not recorded at all.
	CompleteTurn(ctx context.Context, msg *ChatMessage, update *UpdateChatSession) (*ChatMessage, error)

	// Episode model related methods (read side; content is authored elsewhere).
	CreateEpisode(ctx context.Context, create *Episode) (*Episode, error)
	ListEpisodes(ctx context.Context, find *FindEpisode) ([]*Episode, error)
	IncrementEpisodePlayCount(ctx context.Context, id int32) error

	// Character model related methods (read side).
	CreateCharacter(ctx context.Context, create *Character) (*Character, error)
	ListCharacters(ctx context.Context, find *FindCharacter) ([]*Character, error)
}
