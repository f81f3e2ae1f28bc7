package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrEmptyMessage = errors.New("message needs text or audio")
	ErrTextAndAudio = errors.New("message cannot carry both text and audio")
)

type MessageID string

// Message is the persisted chat entry. Exactly one of Text/Audio is set;
// Audio is an opaque data-URL reference, never decoded here.
type Message struct {
	ID             MessageID      `json:"id"`
	ConversationID ConversationID `json:"conversationId"`
	Text           string         `json:"text,omitempty"`
	Audio          string         `json:"audio,omitempty"`
	SenderID       UserID         `json:"senderId"`
	CreatedAt      time.Time      `json:"timestamp"`
}

func NewMessage(conv ConversationID, sender UserID, text, audio string) (*Message, error) {
	if text == "" && audio == "" {
		return nil, ErrEmptyMessage
	}
	if text != "" && audio != "" {
		return nil, ErrTextAndAudio
	}
	return &Message{
		ID:             MessageID(uuid.NewString()),
		ConversationID: conv,
		Text:           text,
		Audio:          audio,
		SenderID:       sender,
		CreatedAt:      time.Now().UTC(),
	}, nil
}
