package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Role identifies who produced a message. The set is closed: anything
// outside it is rejected at the boundaries, never passed through.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
	RoleSystem    Role = "system"
)

// ParseRole validates a stored role string against the closed enum.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleUser, RoleAssistant, RoleTool, RoleSystem:
		return Role(s), nil
	}
	return "", fmt.Errorf("unknown message role %q", s)
}

// Message represents a single turn in a chat. Within a chat, messages are
// totally ordered by CreatedAt.
type Message struct {
	ID         uuid.UUID `json:"id"`
	ChatID     uuid.UUID `json:"chatId"`
	Content    string    `json:"content"`
	Role       Role      `json:"role"`
	CreatedAt  time.Time `json:"createdAt"`
	AccessedAt time.Time `json:"accessedAt"`
}
