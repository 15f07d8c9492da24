// Package directory reads and writes the platform's relational user
// data: who exists, who belongs to which channel, and the persisted
// presence status. It also authenticates socket tokens against that
// data.
package directory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/imoes/agora/internal/domain"
)

var ErrUserNotFound = errors.New("user not found")

// Open connects to Postgres and verifies the connection.
func Open(ctx context.Context, url string) (*sql.DB, error) {
	db, err := sql.Open("pgx", url)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) UserByID(ctx context.Context, id domain.UserID) (*domain.User, error) {
	var (
		u      domain.User
		uid    string
		status string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, username, display_name, status FROM users WHERE id = $1`,
		string(id),
	).Scan(&uid, &u.Username, &u.DisplayName, &status)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query user %s: %w", id, err)
	}
	u.ID = domain.UserID(uid)
	u.Status = domain.Status(status)
	return &u, nil
}

func (s *Store) IsChannelMember(ctx context.Context, channel domain.ChannelID, user domain.UserID) (bool, error) {
	var member bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM channel_members WHERE channel_id = $1 AND user_id = $2)`,
		string(channel), string(user),
	).Scan(&member)
	if err != nil {
		return false, fmt.Errorf("query membership %s/%s: %w", channel, user, err)
	}
	return member, nil
}

// SetStatus writes the presence status through to the user record, so
// the REST side of the platform sees it after this process is gone.
func (s *Store) SetStatus(ctx context.Context, user domain.UserID, status domain.Status) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE users SET status = $1, updated_at = now() WHERE id = $2`,
		string(status), string(user),
	)
	if err != nil {
		return fmt.Errorf("persist status %s for %s: %w", status, user, err)
	}
	return nil
}
