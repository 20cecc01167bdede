package store

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/chatrelay/chatrelay/internal/models"
)

// SQLiteStore handles SQLite database operations. It is the development and
// test fallback for PostgresStore and implements the same DataStore interface.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store.
// If dbPath is empty, defaults to "./data/chatrelay.db"
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	if dbPath == "" {
		dbPath = "./data/chatrelay.db"
	}

	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, err
	}

	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}

	store := &SQLiteStore{db: db}

	// Initialize schema
	if err := store.initSchema(ctx); err != nil {
		return nil, err
	}

	return store, nil
}

// initSchema creates tables if they don't exist.
func (s *SQLiteStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		email TEXT UNIQUE NOT NULL,
		password_hash TEXT NOT NULL,
		name TEXT DEFAULT '',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS chats (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES users(id),
		chat_name TEXT NOT NULL DEFAULT 'New Chat',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		chat_id TEXT NOT NULL REFERENCES chats(id),
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		accessed_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_users_email ON users(email);
	CREATE INDEX IF NOT EXISTS idx_chats_user ON chats(user_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_messages_chat ON messages(chat_id, created_at);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Close closes the database.
func (s *SQLiteStore) Close() {
	s.db.Close()
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// CreateUser creates a new user record.
func (s *SQLiteStore) CreateUser(ctx context.Context, email, passwordHash, name string) (*models.User, error) {
	user := &models.User{
		ID:           uuid.New(),
		Email:        email,
		PasswordHash: passwordHash,
		Name:         name,
		CreatedAt:    time.Now().UTC(),
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, email, password_hash, name, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, user.ID.String(), user.Email, user.PasswordHash, user.Name, user.CreatedAt)
	if err != nil {
		return nil, err
	}
	return user, nil
}

func (s *SQLiteStore) scanUser(row *sql.Row) (*models.User, error) {
	user := &models.User{}
	var id string
	err := row.Scan(&id, &user.Email, &user.PasswordHash, &user.Name, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	user.ID, err = uuid.Parse(id)
	if err != nil {
		return nil, err
	}
	return user, nil
}

// GetUserByID retrieves a user by ID.
func (s *SQLiteStore) GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, email, password_hash, name, created_at
		FROM users WHERE id = ?
	`, id.String())
	return s.scanUser(row)
}

// GetUserByEmail retrieves a user by email.
func (s *SQLiteStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, email, password_hash, name, created_at
		FROM users WHERE email = ?
	`, email)
	return s.scanUser(row)
}

// CreateChat creates a new chat owned by the given user.
func (s *SQLiteStore) CreateChat(ctx context.Context, userID uuid.UUID, name string) (*models.Chat, error) {
	chat := &models.Chat{
		ID:        uuid.New(),
		UserID:    userID,
		ChatName:  name,
		CreatedAt: time.Now().UTC(),
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO chats (id, user_id, chat_name, created_at)
		VALUES (?, ?, ?, ?)
	`, chat.ID.String(), chat.UserID.String(), chat.ChatName, chat.CreatedAt)
	if err != nil {
		return nil, err
	}
	return chat, nil
}

func scanChat(id, userID string, chat *models.Chat) error {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return err
	}
	chat.ID = parsed
	parsed, err = uuid.Parse(userID)
	if err != nil {
		return err
	}
	chat.UserID = parsed
	return nil
}

// GetChat retrieves a chat by ID, scoped to its owner. Returns nil when the
// chat does not exist or belongs to another user.
func (s *SQLiteStore) GetChat(ctx context.Context, id, userID uuid.UUID) (*models.Chat, error) {
	chat := &models.Chat{}
	var chatID, ownerID string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, chat_name, created_at
		FROM chats WHERE id = ? AND user_id = ?
	`, id.String(), userID.String()).Scan(&chatID, &ownerID, &chat.ChatName, &chat.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if err := scanChat(chatID, ownerID, chat); err != nil {
		return nil, err
	}
	return chat, nil
}

// ListChats retrieves all chats owned by a user, oldest first.
func (s *SQLiteStore) ListChats(ctx context.Context, userID uuid.UUID) ([]models.Chat, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, chat_name, created_at
		FROM chats
		WHERE user_id = ?
		ORDER BY created_at
	`, userID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chats []models.Chat
	for rows.Next() {
		var chat models.Chat
		var chatID, ownerID string
		if err := rows.Scan(&chatID, &ownerID, &chat.ChatName, &chat.CreatedAt); err != nil {
			return nil, err
		}
		if err := scanChat(chatID, ownerID, &chat); err != nil {
			return nil, err
		}
		chats = append(chats, chat)
	}

	return chats, rows.Err()
}

// CreateMessage inserts a message into a chat.
func (s *SQLiteStore) CreateMessage(ctx context.Context, chatID uuid.UUID, role models.Role, content string) (*models.Message, error) {
	now := time.Now().UTC()
	msg := &models.Message{
		ID:         uuid.New(),
		ChatID:     chatID,
		Content:    content,
		Role:       role,
		CreatedAt:  now,
		AccessedAt: now,
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (id, chat_id, role, content, created_at, accessed_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, msg.ID.String(), msg.ChatID.String(), string(msg.Role), msg.Content, msg.CreatedAt, msg.AccessedAt)
	if err != nil {
		return nil, err
	}
	return msg, nil
}

// ListMessages retrieves the full message history of a chat in creation order.
func (s *SQLiteStore) ListMessages(ctx context.Context, chatID uuid.UUID) ([]models.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, chat_id, role, content, created_at, accessed_at
		FROM messages
		WHERE chat_id = ?
		ORDER BY created_at
	`, chatID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []models.Message
	for rows.Next() {
		var msg models.Message
		var id, chat, roleStr string
		err := rows.Scan(&id, &chat, &roleStr, &msg.Content, &msg.CreatedAt, &msg.AccessedAt)
		if err != nil {
			return nil, err
		}
		if msg.ID, err = uuid.Parse(id); err != nil {
			return nil, err
		}
		if msg.ChatID, err = uuid.Parse(chat); err != nil {
			return nil, err
		}
		msg.Role = models.Role(roleStr)
		msgs = append(msgs, msg)
	}

	return msgs, rows.Err()
}
