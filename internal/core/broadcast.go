package core

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/imoes/agora/internal/domain"
)

// PublishResult reports one fan-out: how many conns took the frame and
// which users did not get it.
type PublishResult struct {
	Sent   int
	Failed []domain.UserID
}

// Merge folds another result into this one.
func (r *PublishResult) Merge(other PublishResult) {
	r.Sent += other.Sent
	r.Failed = append(r.Failed, other.Failed...)
}

// Broadcaster fans events out over registry conns. The event is encoded
// once per fan-out; delivery is fire-and-forget and a failed recipient
// only shows up in the result, it never aborts the loop.
type Broadcaster struct {
	registry *Registry
}

func NewBroadcaster(registry *Registry) *Broadcaster {
	return &Broadcaster{registry: registry}
}

// ToChannel sends event to every user connected to channel, skipping
// exclude when non-empty.
func (b *Broadcaster) ToChannel(channel domain.ChannelID, event any, exclude domain.UserID) PublishResult {
	frame, ok := encode(event)
	if !ok {
		return PublishResult{}
	}
	res := PublishResult{}
	for _, uc := range b.registry.channelConns(channel) {
		if exclude != "" && uc.user == exclude {
			continue
		}
		if err := uc.conn.TrySend(frame); err != nil {
			res.Failed = append(res.Failed, uc.user)
			continue
		}
		res.Sent++
	}
	log.Debug().Str("module", "core.broadcast").Str("channel", string(channel)).Int("sent", res.Sent).Int("failed", len(res.Failed)).Msg("channel fan-out")
	return res
}

// ToUser sends event to every conn the user holds, one per channel it
// is connected to.
func (b *Broadcaster) ToUser(user domain.UserID, event any) PublishResult {
	frame, ok := encode(event)
	if !ok {
		return PublishResult{}
	}
	res := PublishResult{}
	for _, uc := range b.registry.userConns(user) {
		if err := uc.conn.TrySend(frame); err != nil {
			res.Failed = append(res.Failed, uc.user)
			continue
		}
		res.Sent++
	}
	return res
}

// ToUserChannels sends event to every member of every channel the user
// is connected to, the user itself included.
func (b *Broadcaster) ToUserChannels(user domain.UserID, event any) PublishResult {
	res := PublishResult{}
	for _, channel := range b.registry.Channels(user) {
		res.Merge(b.ToChannel(channel, event, ""))
	}
	return res
}

// ToConn sends event to a single conn.
func (b *Broadcaster) ToConn(conn Conn, event any) error {
	frame, ok := encode(event)
	if !ok {
		return nil
	}
	return conn.TrySend(frame)
}

func encode(event any) (Frame, bool) {
	frame, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Str("module", "core.broadcast").Msg("encode event")
		return nil, false
	}
	return frame, true
}
