package core

import (
	"slices"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/imoes/agora/internal/domain"
)

// Registry tracks which user is connected to which channel through
// which conn. Both directions live under one lock so they can never
// disagree: every user listed for a channel has that channel in its
// reverse set, and empty inner maps are dropped rather than kept
// around.
type Registry struct {
	mu        sync.RWMutex
	byChannel map[domain.ChannelID]map[domain.UserID]Conn
	byUser    map[domain.UserID]map[domain.ChannelID]struct{}
}

func NewRegistry() *Registry {
	return &Registry{
		byChannel: make(map[domain.ChannelID]map[domain.UserID]Conn),
		byUser:    make(map[domain.UserID]map[domain.ChannelID]struct{}),
	}
}

// Connect registers conn for (channel, user). A second connect for the
// same pair replaces the previous conn without closing it; the replaced
// transport dies on its own and its cleanup is a no-op, see
// DisconnectConn.
func (r *Registry) Connect(channel domain.ChannelID, user domain.UserID, conn Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	chConns, ok := r.byChannel[channel]
	if !ok {
		chConns = make(map[domain.UserID]Conn)
		r.byChannel[channel] = chConns
	}
	chConns[user] = conn

	userChans, ok := r.byUser[user]
	if !ok {
		userChans = make(map[domain.ChannelID]struct{})
		r.byUser[user] = userChans
	}
	userChans[channel] = struct{}{}

	log.Info().Str("module", "core.registry").Str("channel", string(channel)).Str("user", string(user)).Msg("registered")
}

// Disconnect removes (channel, user) unconditionally. It reports
// whether the user now has no channels left at all.
func (r *Registry) Disconnect(channel domain.ChannelID, user domain.UserID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.remove(channel, user)
}

// DisconnectConn removes (channel, user) only while conn is still the
// registered transport for that pair, so the late cleanup of a replaced
// conn cannot evict its replacement. removed reports whether the entry
// was taken out; lastChannel whether the user now has no channels left.
func (r *Registry) DisconnectConn(channel domain.ChannelID, user domain.UserID, conn Conn) (lastChannel, removed bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.byChannel[channel][user]
	if !ok || cur != conn {
		return false, false
	}
	return r.remove(channel, user), true
}

func (r *Registry) remove(channel domain.ChannelID, user domain.UserID) bool {
	if chConns, ok := r.byChannel[channel]; ok {
		delete(chConns, user)
		if len(chConns) == 0 {
			delete(r.byChannel, channel)
		}
	}
	last := false
	if userChans, ok := r.byUser[user]; ok {
		delete(userChans, channel)
		if len(userChans) == 0 {
			delete(r.byUser, user)
			last = true
		}
	}
	log.Info().Str("module", "core.registry").Str("channel", string(channel)).Str("user", string(user)).Bool("last_channel", last).Msg("unregistered")
	return last
}

// Conn returns the transport registered for (channel, user).
func (r *Registry) Conn(channel domain.ChannelID, user domain.UserID) (Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conn, ok := r.byChannel[channel][user]
	return conn, ok
}

// OnlineUsers returns the users connected to channel, sorted for
// stable output.
func (r *Registry) OnlineUsers(channel domain.ChannelID) []domain.UserID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.UserID, 0, len(r.byChannel[channel]))
	for user := range r.byChannel[channel] {
		out = append(out, user)
	}
	slices.Sort(out)
	return out
}

// Channels returns the channels user is connected to, sorted for
// stable output.
func (r *Registry) Channels(user domain.UserID) []domain.ChannelID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.ChannelID, 0, len(r.byUser[user]))
	for channel := range r.byUser[user] {
		out = append(out, channel)
	}
	slices.Sort(out)
	return out
}

type userConn struct {
	user domain.UserID
	conn Conn
}

// channelConns snapshots the conns of one channel for lock-free fan-out.
func (r *Registry) channelConns(channel domain.ChannelID) []userConn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]userConn, 0, len(r.byChannel[channel]))
	for user, conn := range r.byChannel[channel] {
		out = append(out, userConn{user: user, conn: conn})
	}
	return out
}

// userConns snapshots every conn a user holds, one per channel.
func (r *Registry) userConns(user domain.UserID) []userConn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]userConn, 0, len(r.byUser[user]))
	for channel := range r.byUser[user] {
		if conn, ok := r.byChannel[channel][user]; ok {
			out = append(out, userConn{user: user, conn: conn})
		}
	}
	return out
}
