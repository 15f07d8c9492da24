// Package feed writes activity events for channel members who are not
// watching the channel live: a preview entry per chat message and a
// dedicated entry for everyone mentioned in it.
package feed

import (
	"context"
	"database/sql"
	"fmt"
	"slices"

	"github.com/google/uuid"

	"github.com/imoes/agora/internal/domain"
)

const (
	eventTypeMessage = "message"
	eventTypeMention = "mention"

	previewLimit        = 200
	mentionPreviewLimit = 150
)

type Notifier struct {
	db *sql.DB
}

func NewNotifier(db *sql.DB) *Notifier {
	return &Notifier{db: db}
}

// MessagePosted records one feed event per channel member other than
// the sender, then resolves @mentions and records a mention event for
// each mentioned member. The sender never appears in its own feed.
func (n *Notifier) MessagePosted(ctx context.Context, channel domain.ChannelID, sender domain.UserID, content, messageID string) error {
	members, err := n.channelMembers(ctx, channel)
	if err != nil {
		return err
	}

	preview := truncateRunes(content, previewLimit)
	for _, member := range members {
		if member == sender {
			continue
		}
		if err := n.insertEvent(ctx, member, channel, sender, eventTypeMessage, preview, messageID); err != nil {
			return err
		}
	}

	names := ExtractMentions(content)
	if len(names) == 0 {
		return nil
	}
	mentioned, err := n.resolveMentions(ctx, channel, names)
	if err != nil {
		return err
	}
	mentionPreview := "@Erwaehnung: " + truncateRunes(content, mentionPreviewLimit)
	for _, member := range mentioned {
		if member == sender {
			continue
		}
		if err := n.insertEvent(ctx, member, channel, sender, eventTypeMention, mentionPreview, messageID); err != nil {
			return err
		}
	}
	return nil
}

func (n *Notifier) channelMembers(ctx context.Context, channel domain.ChannelID) ([]domain.UserID, error) {
	rows, err := n.db.QueryContext(ctx,
		`SELECT user_id FROM channel_members WHERE channel_id = $1`,
		string(channel))
	if err != nil {
		return nil, fmt.Errorf("query channel members %s: %w", channel, err)
	}
	defer rows.Close()

	var out []domain.UserID
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan channel member: %w", err)
		}
		out = append(out, domain.UserID(id))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read channel members: %w", err)
	}
	return out, nil
}

// resolveMentions maps mention texts to members of the channel,
// matching username or display name case-insensitively. Unresolvable
// names are dropped; the result is deduplicated and sorted.
func (n *Notifier) resolveMentions(ctx context.Context, channel domain.ChannelID, names []string) ([]domain.UserID, error) {
	seen := make(map[domain.UserID]struct{})
	for _, name := range names {
		rows, err := n.db.QueryContext(ctx,
			`SELECT u.id FROM users u
			 JOIN channel_members cm ON cm.user_id = u.id
			 WHERE cm.channel_id = $1 AND (lower(u.username) = lower($2) OR lower(u.display_name) = lower($2))`,
			string(channel), name)
		if err != nil {
			return nil, fmt.Errorf("resolve mention %q: %w", name, err)
		}
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return nil, fmt.Errorf("scan mention %q: %w", name, err)
			}
			seen[domain.UserID(id)] = struct{}{}
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, fmt.Errorf("read mention %q: %w", name, err)
		}
		rows.Close()
	}

	out := make([]domain.UserID, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	slices.Sort(out)
	return out, nil
}

func (n *Notifier) insertEvent(ctx context.Context, user domain.UserID, channel domain.ChannelID, sender domain.UserID, eventType, preview, messageID string) error {
	_, err := n.db.ExecContext(ctx,
		`INSERT INTO feed_events (id, user_id, channel_id, sender_id, event_type, preview_text, message_id, is_read, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, false, now())`,
		uuid.NewString(), string(user), string(channel), string(sender), eventType, preview, messageID)
	if err != nil {
		return fmt.Errorf("insert %s feed event for %s: %w", eventType, user, err)
	}
	return nil
}

func truncateRunes(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
