package models

import (
	"time"

	"github.com/google/uuid"
)

// Chat represents a conversation thread owned by one user.
// Chats are immutable after creation: no rename, no delete.
type Chat struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	ChatName  string    `json:"chat_name"`
	CreatedAt time.Time `json:"created_at"`
}
