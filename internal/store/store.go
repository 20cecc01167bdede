package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/chatrelay/chatrelay/internal/models"
)

// DataStore defines the interface for persistent storage of users, chats and
// messages. Both PostgresStore and SQLiteStore implement this interface.
type DataStore interface {
	// Connection management
	Close()
	Ping(ctx context.Context) error

	// User operations
	CreateUser(ctx context.Context, email, passwordHash, name string) (*models.User, error)
	GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)

	// Chat operations
	CreateChat(ctx context.Context, userID uuid.UUID, name string) (*models.Chat, error)
	GetChat(ctx context.Context, id, userID uuid.UUID) (*models.Chat, error)
	ListChats(ctx context.Context, userID uuid.UUID) ([]models.Chat, error)

	// Message operations
	CreateMessage(ctx context.Context, chatID uuid.UUID, role models.Role, content string) (*models.Message, error)
	ListMessages(ctx context.Context, chatID uuid.UUID) ([]models.Message, error)
}

// SessionStore defines session token storage, implemented by RedisStore.
type SessionStore interface {
	SaveSession(ctx context.Context, token string, userID uuid.UUID, ttl time.Duration) error
	GetSession(ctx context.Context, token string) (uuid.UUID, error)
	DeleteSession(ctx context.Context, token string) error
}

// LockStore defines per-chat stream locks, implemented by RedisStore.
// A chat holds at most one in-flight completion stream at a time.
type LockStore interface {
	AcquireStreamLock(ctx context.Context, chatID uuid.UUID, ttl time.Duration) (bool, error)
	ReleaseStreamLock(ctx context.Context, chatID uuid.UUID) error
}
