package domain

import (
	"time"

	"github.com/google/uuid"
)

type ConversationID string

// Conversation is a 1:1 chat between exactly two users.
type Conversation struct {
	ID        ConversationID `json:"id"`
	Members   [2]UserID      `json:"members"`
	CreatedAt time.Time      `json:"createdAt"`
}

func NewConversation(a, b UserID) *Conversation {
	return &Conversation{
		ID:        ConversationID(uuid.NewString()),
		Members:   [2]UserID{a, b},
		CreatedAt: time.Now().UTC(),
	}
}

func (c *Conversation) Has(id UserID) bool {
	return c.Members[0] == id || c.Members[1] == id
}

// Other resolves the recipient of a message: membership minus sender.
func (c *Conversation) Other(id UserID) (UserID, bool) {
	switch id {
	case c.Members[0]:
		return c.Members[1], true
	case c.Members[1]:
		return c.Members[0], true
	}
	return "", false
}
