package core

import (
	"sync"

	"github.com/imoes/agora/internal/domain"
)

// PresenceStore keeps the live status of connected users. A record
// exists only while the user holds at least one connection; everyone
// else reads as offline.
type PresenceStore struct {
	mu       sync.RWMutex
	statuses map[domain.UserID]domain.Status
}

func NewPresenceStore() *PresenceStore {
	return &PresenceStore{statuses: make(map[domain.UserID]domain.Status)}
}

// Track gives user an online record unless one already exists, so a
// second connection never resets a status the user chose earlier.
func (p *PresenceStore) Track(user domain.UserID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.statuses[user]; !ok {
		p.statuses[user] = domain.StatusOnline
	}
}

// Set stores status for user. Unknown statuses are rejected and leave
// the stored value untouched.
func (p *PresenceStore) Set(user domain.UserID, status domain.Status) bool {
	if !status.Valid() {
		return false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.statuses[user] = status
	return true
}

func (p *PresenceStore) Get(user domain.UserID) domain.Status {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if s, ok := p.statuses[user]; ok {
		return s
	}
	return domain.StatusOffline
}

// Forget drops the record; user reads as offline afterwards.
func (p *PresenceStore) Forget(user domain.UserID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.statuses, user)
}

// Statuses resolves each given user to its current status.
func (p *PresenceStore) Statuses(users []domain.UserID) map[domain.UserID]domain.Status {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make(map[domain.UserID]domain.Status, len(users))
	for _, user := range users {
		if s, ok := p.statuses[user]; ok {
			out[user] = s
		} else {
			out[user] = domain.StatusOffline
		}
	}
	return out
}
