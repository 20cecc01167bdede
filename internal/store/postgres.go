package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/chatrelay/chatrelay/internal/models"
)

// PostgresStore handles PostgreSQL database operations.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL store with a connection pool.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

// Close closes the database connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// Ping checks the database connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// CreateUser creates a new user record.
func (s *PostgresStore) CreateUser(ctx context.Context, email, passwordHash, name string) (*models.User, error) {
	user := &models.User{}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO users (email, password_hash, name)
		VALUES ($1, $2, $3)
		RETURNING id, email, password_hash, name, created_at
	`, email, passwordHash, name).Scan(
		&user.ID,
		&user.Email,
		&user.PasswordHash,
		&user.Name,
		&user.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return user, nil
}

// GetUserByID retrieves a user by ID.
func (s *PostgresStore) GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	user := &models.User{}
	err := s.pool.QueryRow(ctx, `
		SELECT id, email, password_hash, name, created_at
		FROM users WHERE id = $1
	`, id).Scan(
		&user.ID,
		&user.Email,
		&user.PasswordHash,
		&user.Name,
		&user.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return user, nil
}

// GetUserByEmail retrieves a user by email.
func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	user := &models.User{}
	err := s.pool.QueryRow(ctx, `
		SELECT id, email, password_hash, name, created_at
		FROM users WHERE email = $1
	`, email).Scan(
		&user.ID,
		&user.Email,
		&user.PasswordHash,
		&user.Name,
		&user.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return user, nil
}

// CreateChat creates a new chat owned by the given user.
func (s *PostgresStore) CreateChat(ctx context.Context, userID uuid.UUID, name string) (*models.Chat, error) {
	chat := &models.Chat{}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO chats (user_id, chat_name)
		VALUES ($1, $2)
		RETURNING id, user_id, chat_name, created_at
	`, userID, name).Scan(
		&chat.ID,
		&chat.UserID,
		&chat.ChatName,
		&chat.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return chat, nil
}

// GetChat retrieves a chat by ID, scoped to its owner. Returns nil when the
// chat does not exist or belongs to another user.
func (s *PostgresStore) GetChat(ctx context.Context, id, userID uuid.UUID) (*models.Chat, error) {
	chat := &models.Chat{}
	err := s.pool.QueryRow(ctx, `
		SELECT id, user_id, chat_name, created_at
		FROM chats WHERE id = $1 AND user_id = $2
	`, id, userID).Scan(
		&chat.ID,
		&chat.UserID,
		&chat.ChatName,
		&chat.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return chat, nil
}

// ListChats retrieves all chats owned by a user, oldest first.
func (s *PostgresStore) ListChats(ctx context.Context, userID uuid.UUID) ([]models.Chat, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, user_id, chat_name, created_at
		FROM chats
		WHERE user_id = $1
		ORDER BY created_at
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chats []models.Chat
	for rows.Next() {
		var chat models.Chat
		err := rows.Scan(
			&chat.ID,
			&chat.UserID,
			&chat.ChatName,
			&chat.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		chats = append(chats, chat)
	}

	return chats, rows.Err()
}

// CreateMessage inserts a message into a chat.
func (s *PostgresStore) CreateMessage(ctx context.Context, chatID uuid.UUID, role models.Role, content string) (*models.Message, error) {
	msg := &models.Message{}
	var roleStr string
	err := s.pool.QueryRow(ctx, `
		INSERT INTO messages (chat_id, role, content)
		VALUES ($1, $2, $3)
		RETURNING id, chat_id, role, content, created_at, accessed_at
	`, chatID, string(role), content).Scan(
		&msg.ID,
		&msg.ChatID,
		&roleStr,
		&msg.Content,
		&msg.CreatedAt,
		&msg.AccessedAt,
	)
	if err != nil {
		return nil, err
	}
	msg.Role = models.Role(roleStr)
	return msg, nil
}

// ListMessages retrieves the full message history of a chat in creation order.
func (s *PostgresStore) ListMessages(ctx context.Context, chatID uuid.UUID) ([]models.Message, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, chat_id, role, content, created_at, accessed_at
		FROM messages
		WHERE chat_id = $1
		ORDER BY created_at
	`, chatID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []models.Message
	for rows.Next() {
		var msg models.Message
		var roleStr string
		err := rows.Scan(
			&msg.ID,
			&msg.ChatID,
			&roleStr,
			&msg.Content,
			&msg.CreatedAt,
			&msg.AccessedAt,
		)
		if err != nil {
			return nil, err
		}
		msg.Role = models.Role(roleStr)
		msgs = append(msgs, msg)
	}

	return msgs, rows.Err()
}
