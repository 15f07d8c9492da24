package core

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/imoes/agora/internal/domain"
)

// callSession is one running group call. It exists only while it has
// participants.
type callSession struct {
	startedAt    time.Time
	participants map[domain.UserID]struct{}
}

// CallTracker records per channel who is in the call and since when.
// The first join stamps the start time, the last leave yields the total
// duration.
type CallTracker struct {
	mu    sync.Mutex
	calls map[domain.ChannelID]*callSession
	now   func() time.Time
}

func NewCallTracker() *CallTracker {
	return &CallTracker{
		calls: make(map[domain.ChannelID]*callSession),
		now:   time.Now,
	}
}

// Join adds user to the channel call and reports whether this join
// started it. Joining a call the user is already in changes nothing.
func (t *CallTracker) Join(channel domain.ChannelID, user domain.UserID) (first bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	sess, ok := t.calls[channel]
	if !ok {
		sess = &callSession{
			startedAt:    t.now(),
			participants: make(map[domain.UserID]struct{}),
		}
		t.calls[channel] = sess
		first = true
	}
	sess.participants[user] = struct{}{}
	log.Info().Str("module", "core.call").Str("channel", string(channel)).Str("user", string(user)).Bool("first", first).Msg("joined call")
	return first
}

// Leave removes user from the channel call. When the last participant
// leaves, the session is dropped and its duration returned with
// ended=true. Leaving a call the user is not part of does nothing.
func (t *CallTracker) Leave(channel domain.ChannelID, user domain.UserID) (duration time.Duration, ended bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	sess, ok := t.calls[channel]
	if !ok {
		return 0, false
	}
	if _, in := sess.participants[user]; !in {
		return 0, false
	}
	delete(sess.participants, user)
	if len(sess.participants) > 0 {
		log.Info().Str("module", "core.call").Str("channel", string(channel)).Str("user", string(user)).Int("remaining", len(sess.participants)).Msg("left call")
		return 0, false
	}
	delete(t.calls, channel)
	duration = t.now().Sub(sess.startedAt)
	log.Info().Str("module", "core.call").Str("channel", string(channel)).Str("user", string(user)).Dur("duration", duration).Msg("call ended")
	return duration, true
}

// InCall reports whether user currently participates in the channel
// call.
func (t *CallTracker) InCall(channel domain.ChannelID, user domain.UserID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	sess, ok := t.calls[channel]
	if !ok {
		return false
	}
	_, in := sess.participants[user]
	return in
}

// Active returns the number of running calls.
func (t *CallTracker) Active() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.calls)
}
