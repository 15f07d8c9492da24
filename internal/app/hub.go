// Package app wires the realtime stores together: the Hub interprets
// decoded client events, mutates registry/presence/call state and fans
// the resulting server events out. It owns no transport and no storage
// of its own; both arrive injected.
package app

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/imoes/agora/internal/core"
	"github.com/imoes/agora/internal/domain"
	"github.com/imoes/agora/internal/observability"
	"github.com/imoes/agora/internal/protocol"
)

// Session is one authenticated, membership-checked connection to one
// channel. The transport layer builds it after the gate and hands it to
// the Hub for its whole lifetime.
type Session struct {
	User    *domain.User
	Channel domain.ChannelID
	Conn    core.Conn
}

// Hub dispatches client events for all sessions. All fields must be
// set; Metrics may be nil.
type Hub struct {
	Registry *core.Registry
	Presence *core.PresenceStore
	Calls    *core.CallTracker
	Cast     *core.Broadcaster
	Messages MessageStore
	Statuses StatusStore
	Feed     FeedNotifier
	Metrics  *observability.Metrics
}

// Connect registers the session and announces it: the other members get
// a user_joined with the fresh online list, the joiner gets the status
// snapshot of everyone on the channel.
func (h *Hub) Connect(sess *Session) {
	h.Registry.Connect(sess.Channel, sess.User.ID, sess.Conn)
	h.Presence.Track(sess.User.ID)

	online := h.Registry.OnlineUsers(sess.Channel)
	statuses := h.Presence.Statuses(online)

	res := h.Cast.ToChannel(sess.Channel,
		protocol.UserJoined(sess.User, h.Presence.Get(sess.User.ID), online, statuses),
		sess.User.ID)
	h.Metrics.PublishFailed(len(res.Failed))

	if err := h.Cast.ToConn(sess.Conn, protocol.UserStatuses(statuses)); err != nil {
		log.Warn().Err(err).Str("module", "hub").Str("user", string(sess.User.ID)).Msg("joining snapshot not delivered")
	}
}

// HandleEvent applies one inbound event. A malformed or failing event
// never tears the session down; a panicking handler is contained here
// so the connection loop and its deferred cleanup keep running.
func (h *Hub) HandleEvent(ctx context.Context, sess *Session, ev protocol.ClientEvent) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Str("module", "hub").
				Str("user", string(sess.User.ID)).Str("channel", string(sess.Channel)).
				Str("event", ev.Kind()).Msg("event handler panicked")
		}
	}()

	h.Metrics.EventReceived(ev.Kind())

	switch ev := ev.(type) {
	case protocol.MessageEvent:
		h.handleMessage(ctx, sess, ev)
	case protocol.TypingEvent:
		res := h.Cast.ToChannel(sess.Channel, protocol.Typing(sess.User), sess.User.ID)
		h.Metrics.PublishFailed(len(res.Failed))
	case protocol.ReadEvent:
		res := h.Cast.ToChannel(sess.Channel, protocol.Read(sess.User.ID), sess.User.ID)
		h.Metrics.PublishFailed(len(res.Failed))
	case protocol.StatusChangeEvent:
		h.handleStatusChange(ctx, sess, ev)
	case protocol.RelayEvent:
		h.handleRelay(sess, ev)
	case protocol.VideoCallStartEvent:
		h.handleCallStart(ctx, sess, ev)
	case protocol.VideoCallInviteEvent:
		if ev.TargetUserID == "" {
			return
		}
		h.Cast.ToUser(domain.UserID(ev.TargetUserID),
			protocol.VideoCallInvite(sess.User, sess.Channel, ev.AudioOnly))
	case protocol.VideoCallCancelEvent:
		if ev.TargetUserID == "" {
			return
		}
		h.Cast.ToUser(domain.UserID(ev.TargetUserID), protocol.VideoCallCancel(sess.User.ID))
	case protocol.VideoCallEndEvent:
		h.handleCallEnd(ctx, sess)
	case protocol.ScreenShareStartEvent:
		res := h.Cast.ToChannel(sess.Channel, protocol.ScreenShareStart(sess.User), "")
		h.Metrics.PublishFailed(len(res.Failed))
	case protocol.ScreenShareStopEvent:
		res := h.Cast.ToChannel(sess.Channel, protocol.ScreenShareStop(sess.User.ID), "")
		h.Metrics.PublishFailed(len(res.Failed))
	default:
		// Decode only produces the kinds above; a new protocol type
		// without a branch here should be loud, not silent.
		log.Error().Str("module", "hub").Str("event", ev.Kind()).Msg("event kind without handler")
	}
}

// Disconnect runs the full teardown for a closed connection, whether it
// said goodbye or just dropped. Cleanup of a connection that has
// already been replaced by a reconnect is a no-op.
func (h *Hub) Disconnect(ctx context.Context, sess *Session) {
	lastChannel, removed := h.Registry.DisconnectConn(sess.Channel, sess.User.ID, sess.Conn)
	if !removed {
		log.Debug().Str("module", "hub").Str("user", string(sess.User.ID)).
			Str("channel", string(sess.Channel)).Msg("stale connection cleanup, entry already replaced")
		return
	}

	// An abrupt drop must not skip call accounting.
	if dur, ended := h.Calls.Leave(sess.Channel, sess.User.ID); ended {
		h.Metrics.CallEnded(dur.Seconds())
		h.systemMessage(ctx, sess.Channel, sess.User.ID, "", callEndedText(dur))
	}

	if lastChannel {
		h.Presence.Forget(sess.User.ID)
		if err := h.Statuses.SetStatus(ctx, sess.User.ID, domain.StatusOffline); err != nil {
			log.Error().Err(err).Str("module", "hub").Str("user", string(sess.User.ID)).Msg("persist offline status")
		}
	}

	res := h.Cast.ToChannel(sess.Channel,
		protocol.UserLeft(sess.User.ID, h.Presence.Get(sess.User.ID), h.Registry.OnlineUsers(sess.Channel)),
		"")
	h.Metrics.PublishFailed(len(res.Failed))
}

func (h *Hub) handleMessage(ctx context.Context, sess *Session, ev protocol.MessageEvent) {
	msg, err := h.Messages.Append(ctx, sess.Channel, sess.User.ID, ev.Content, ev.MessageType, ev.FileReferenceID)
	if err != nil {
		log.Error().Err(err).Str("module", "hub").Str("channel", string(sess.Channel)).Msg("append message")
		return
	}
	msg.SenderName = sess.User.DisplayName
	h.Metrics.MessageStored(msg.MessageType)

	// The sender gets its own echo back, that is the delivery receipt.
	res := h.Cast.ToChannel(sess.Channel, protocol.NewMessage(msg), "")
	h.Metrics.PublishFailed(len(res.Failed))

	if err := h.Feed.MessagePosted(ctx, sess.Channel, sess.User.ID, ev.Content, msg.ID); err != nil {
		log.Error().Err(err).Str("module", "hub").Str("channel", string(sess.Channel)).Msg("feed events")
	}
}

func (h *Hub) handleStatusChange(ctx context.Context, sess *Session, ev protocol.StatusChangeEvent) {
	status := domain.Status(ev.Status)
	if !h.setStatus(sess.User.ID, status) {
		log.Warn().Str("module", "hub").Str("user", string(sess.User.ID)).Str("status", ev.Status).Msg("ignoring unknown status")
		return
	}
	if err := h.Statuses.SetStatus(ctx, sess.User.ID, status); err != nil {
		log.Error().Err(err).Str("module", "hub").Str("user", string(sess.User.ID)).Msg("persist status")
	}
}

// handleRelay forwards a negotiation payload to one user on the same
// channel. A target that is not connected here is dropped without a
// word, exactly like a closed socket mid-call would behave.
func (h *Hub) handleRelay(sess *Session, ev protocol.RelayEvent) {
	if ev.TargetUserID == "" {
		return
	}
	conn, ok := h.Registry.Conn(sess.Channel, domain.UserID(ev.TargetUserID))
	if !ok {
		log.Debug().Str("module", "hub").Str("kind", ev.Kind()).
			Str("target", ev.TargetUserID).Str("channel", string(sess.Channel)).Msg("relay target not connected")
		return
	}
	if err := h.Cast.ToConn(conn, protocol.Relay(ev, sess.User)); err != nil {
		log.Debug().Err(err).Str("module", "hub").Str("kind", ev.Kind()).Str("target", ev.TargetUserID).Msg("relay not delivered")
	}
}

func (h *Hub) handleCallStart(ctx context.Context, sess *Session, ev protocol.VideoCallStartEvent) {
	h.setStatus(sess.User.ID, domain.StatusBusy)

	first := h.Calls.Join(sess.Channel, sess.User.ID)
	if first {
		h.Metrics.CallStarted()
	}

	res := h.Cast.ToChannel(sess.Channel, protocol.VideoCallStart(sess.User), sess.User.ID)
	h.Metrics.PublishFailed(len(res.Failed))

	// Only the join that opened the call leaves a trace in the chat,
	// later joiners must not repeat it.
	if first {
		h.systemMessage(ctx, sess.Channel, sess.User.ID, sess.User.DisplayName, callStartedText(sess.User, ev.AudioOnly))
	}
}

func (h *Hub) handleCallEnd(ctx context.Context, sess *Session) {
	h.setStatus(sess.User.ID, domain.StatusOnline)

	dur, ended := h.Calls.Leave(sess.Channel, sess.User.ID)

	res := h.Cast.ToChannel(sess.Channel, protocol.VideoCallEnd(sess.User.ID), "")
	h.Metrics.PublishFailed(len(res.Failed))

	if ended {
		h.Metrics.CallEnded(dur.Seconds())
		h.systemMessage(ctx, sess.Channel, sess.User.ID, "", callEndedText(dur))
	}
}

// setStatus stores a presence status and announces it on every channel
// the user is connected to. Unknown statuses change nothing.
func (h *Hub) setStatus(user domain.UserID, status domain.Status) bool {
	if !h.Presence.Set(user, status) {
		return false
	}
	res := h.Cast.ToUserChannels(user, protocol.StatusChange(user, status))
	h.Metrics.PublishFailed(len(res.Failed))
	return true
}

// systemMessage persists a system chat entry and echoes it to the whole
// channel. The call-start entry names the caller, the call-end entry
// carries no sender name.
func (h *Hub) systemMessage(ctx context.Context, channel domain.ChannelID, sender domain.UserID, senderName, content string) {
	msg, err := h.Messages.Append(ctx, channel, sender, content, domain.MessageTypeSystem, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "hub").Str("channel", string(channel)).Msg("append system message")
		return
	}
	msg.SenderName = senderName
	h.Metrics.MessageStored(domain.MessageTypeSystem)

	res := h.Cast.ToChannel(channel, protocol.NewMessage(msg), "")
	h.Metrics.PublishFailed(len(res.Failed))
}
