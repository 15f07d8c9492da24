package app

import (
	"context"

	"github.com/imoes/agora/internal/domain"
)

// MessageStore appends to the per-channel chat log.
type MessageStore interface {
	Append(ctx context.Context, channel domain.ChannelID, sender domain.UserID, content, messageType string, fileRef *string) (*domain.Message, error)
}

// StatusStore persists presence status so it survives restarts and is
// visible to the REST side of the platform.
type StatusStore interface {
	SetStatus(ctx context.Context, user domain.UserID, status domain.Status) error
}

// FeedNotifier records feed entries (message previews, mentions) for
// members who are not looking at the channel right now.
type FeedNotifier interface {
	MessagePosted(ctx context.Context, channel domain.ChannelID, sender domain.UserID, content, messageID string) error
}
