package llm

import (
	"fmt"

	"github.com/chatrelay/chatrelay/internal/models"
)

// BuildHistory maps stored messages to provider-facing turns in creation
// order. The mapping is total over the closed role enum: a row carrying an
// unknown role fails the whole build instead of being passed through.
func BuildHistory(msgs []models.Message) ([]Turn, error) {
	if len(msgs) == 0 {
		return nil, ErrEmptyHistory
	}

	turns := make([]Turn, 0, len(msgs))
	for _, msg := range msgs {
		role, err := models.ParseRole(string(msg.Role))
		if err != nil {
			return nil, fmt.Errorf("message %s: %w", msg.ID, err)
		}
		turns = append(turns, Turn{Role: role, Content: msg.Content})
	}
	return turns, nil
}
