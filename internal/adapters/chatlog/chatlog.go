// Package chatlog persists chat messages. Every channel gets its own
// SQLite database file under one directory, so channels never contend
// on a shared write lock and deleting a channel is deleting a file.
package chatlog

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/imoes/agora/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS messages (
	id TEXT PRIMARY KEY,
	sender_id TEXT NOT NULL,
	content TEXT NOT NULL,
	message_type TEXT NOT NULL DEFAULT 'text',
	file_reference_id TEXT,
	created_at TEXT NOT NULL,
	edited_at TEXT
);
CREATE INDEX IF NOT EXISTS idx_messages_created ON messages(created_at);
CREATE INDEX IF NOT EXISTS idx_messages_sender ON messages(sender_id);
`

const defaultLimit = 50

// Store is the per-channel chat log. Database handles are opened on
// first use and kept for the life of the store.
type Store struct {
	dir string

	mu  sync.Mutex
	dbs map[domain.ChannelID]*sql.DB
}

func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create chat db dir: %w", err)
	}
	return &Store{dir: dir, dbs: make(map[domain.ChannelID]*sql.DB)}, nil
}

func (s *Store) path(channel domain.ChannelID) string {
	return filepath.Join(s.dir, string(channel)+".db")
}

func (s *Store) db(channel domain.ChannelID) (*sql.DB, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if db, ok := s.dbs[channel]; ok {
		return db, nil
	}
	db, err := sql.Open("sqlite", s.path(channel))
	if err != nil {
		return nil, fmt.Errorf("open chat db %s: %w", channel, err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init chat db %s: %w", channel, err)
	}
	s.dbs[channel] = db
	return db, nil
}

// Append stores a new message and returns it with id and timestamp
// stamped.
func (s *Store) Append(ctx context.Context, channel domain.ChannelID, sender domain.UserID, content, messageType string, fileRef *string) (*domain.Message, error) {
	db, err := s.db(channel)
	if err != nil {
		return nil, err
	}
	msg := domain.NewMessage(sender, content, messageType, fileRef)
	_, err = db.ExecContext(ctx,
		`INSERT INTO messages (id, sender_id, content, message_type, file_reference_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		msg.ID, string(msg.SenderID), msg.Content, msg.MessageType, msg.FileReferenceID, msg.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}
	return msg, nil
}

// Recent returns up to limit messages in chronological order. A
// non-empty before acts as an exclusive created_at cursor for paging
// backwards. A channel that never stored anything yields an empty
// slice without creating its database.
func (s *Store) Recent(ctx context.Context, channel domain.ChannelID, limit int, before string) ([]domain.Message, error) {
	if limit <= 0 {
		limit = defaultLimit
	}

	s.mu.Lock()
	_, open := s.dbs[channel]
	s.mu.Unlock()
	if !open {
		if _, err := os.Stat(s.path(channel)); err != nil {
			return []domain.Message{}, nil
		}
	}

	db, err := s.db(channel)
	if err != nil {
		return nil, err
	}

	var rows *sql.Rows
	if before != "" {
		rows, err = db.QueryContext(ctx,
			`SELECT id, sender_id, content, message_type, file_reference_id, created_at, edited_at
			 FROM messages WHERE created_at < ? ORDER BY created_at DESC LIMIT ?`,
			before, limit)
	} else {
		rows, err = db.QueryContext(ctx,
			`SELECT id, sender_id, content, message_type, file_reference_id, created_at, edited_at
			 FROM messages ORDER BY created_at DESC LIMIT ?`,
			limit)
	}
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Message, 0, limit)
	for rows.Next() {
		var (
			m        domain.Message
			sender   string
			fileRef  sql.NullString
			editedAt sql.NullString
		)
		if err := rows.Scan(&m.ID, &sender, &m.Content, &m.MessageType, &fileRef, &m.CreatedAt, &editedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.SenderID = domain.UserID(sender)
		if fileRef.Valid {
			m.FileReferenceID = &fileRef.String
		}
		if editedAt.Valid {
			m.EditedAt = &editedAt.String
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read messages: %w", err)
	}

	// the query walks newest-first, readers want chronological order
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// Close closes every database the store has opened.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var firstErr error
	for channel, db := range s.dbs {
		if err := db.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(s.dbs, channel)
	}
	return firstErr
}
