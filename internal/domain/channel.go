package domain

import (
	"time"

	"github.com/google/uuid"
)

type ChannelID string

const (
	MessageTypeText   = "text"
	MessageTypeSystem = "system"
)

// TimestampFormat pins the fractional seconds to a fixed width so the
// stored strings sort chronologically under plain string comparison.
const TimestampFormat = "2006-01-02T15:04:05.000000000Z07:00"

// Message is one chat log entry. Timestamps travel as RFC 3339 strings
// so the stored form and the wire form stay identical.
type Message struct {
	ID              string  `json:"id"`
	SenderID        UserID  `json:"sender_id"`
	Content         string  `json:"content"`
	MessageType     string  `json:"message_type"`
	FileReferenceID *string `json:"file_reference_id"`
	CreatedAt       string  `json:"created_at"`
	EditedAt        *string `json:"edited_at"`
	SenderName      string  `json:"sender_name"`
}

// NewMessage stamps a fresh message with its id and creation time.
// An empty messageType falls back to MessageTypeText.
func NewMessage(sender UserID, content, messageType string, fileRef *string) *Message {
	if messageType == "" {
		messageType = MessageTypeText
	}
	return &Message{
		ID:              uuid.NewString(),
		SenderID:        sender,
		Content:         content,
		MessageType:     messageType,
		FileReferenceID: fileRef,
		CreatedAt:       time.Now().UTC().Format(TimestampFormat),
	}
}
