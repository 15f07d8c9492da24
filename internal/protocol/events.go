// Package protocol defines the JSON wire contract of the realtime
// socket: the closed set of inbound client events and the builders for
// everything the server sends back. Field names are part of the
// contract and must not change.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	ErrMissingType = errors.New("missing event type")
	ErrUnknownType = errors.New("unknown event type")
)

// ClientEvent is one decoded inbound frame. The set is closed: Decode
// only ever returns the types in this file.
type ClientEvent interface {
	Kind() string
}

// MessageEvent posts a chat message to the session's channel.
type MessageEvent struct {
	Content         string  `json:"content"`
	MessageType     string  `json:"message_type"`
	FileReferenceID *string `json:"file_reference_id"`
}

// TypingEvent tells the other channel members the sender is typing.
type TypingEvent struct{}

// ReadEvent marks the channel as read up to now for the sender.
type ReadEvent struct{}

// StatusChangeEvent switches the sender's presence status.
type StatusChangeEvent struct {
	Status string `json:"status"`
}

// RelayEvent carries WebRTC session negotiation (offer, answer,
// ice-candidate) to one target user on the same channel. Extra holds
// every payload field except the routing ones, passed through verbatim.
type RelayEvent struct {
	kind         string
	TargetUserID string
	Extra        map[string]json.RawMessage
}

// VideoCallStartEvent joins (or starts) the channel call.
type VideoCallStartEvent struct {
	AudioOnly bool `json:"audio_only"`
}

// VideoCallInviteEvent rings one user, wherever they are connected.
type VideoCallInviteEvent struct {
	TargetUserID string `json:"target_user_id"`
	AudioOnly    bool   `json:"audio_only"`
}

// VideoCallCancelEvent withdraws a pending invite.
type VideoCallCancelEvent struct {
	TargetUserID string `json:"target_user_id"`
}

// VideoCallEndEvent leaves the channel call.
type VideoCallEndEvent struct{}

type ScreenShareStartEvent struct{}

type ScreenShareStopEvent struct{}

func (MessageEvent) Kind() string          { return "message" }
func (TypingEvent) Kind() string           { return "typing" }
func (ReadEvent) Kind() string             { return "read" }
func (StatusChangeEvent) Kind() string     { return "status_change" }
func (e RelayEvent) Kind() string          { return e.kind }
func (VideoCallStartEvent) Kind() string   { return "video_call_start" }
func (VideoCallInviteEvent) Kind() string  { return "video_call_invite" }
func (VideoCallCancelEvent) Kind() string  { return "video_call_cancel" }
func (VideoCallEndEvent) Kind() string     { return "video_call_end" }
func (ScreenShareStartEvent) Kind() string { return "screen_share_start" }
func (ScreenShareStopEvent) Kind() string  { return "screen_share_stop" }

// Decode parses one inbound frame into its typed event. Unknown or
// missing type tags are errors; dropping such frames is the caller's
// explicit, logged choice.
func Decode(data []byte) (ClientEvent, error) {
	var env struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode event: %w", err)
	}

	switch env.Type {
	case "":
		return nil, ErrMissingType
	case "message":
		var ev MessageEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, fmt.Errorf("decode message: %w", err)
		}
		if ev.MessageType == "" {
			ev.MessageType = "text"
		}
		return ev, nil
	case "typing":
		return TypingEvent{}, nil
	case "read":
		return ReadEvent{}, nil
	case "status_change":
		var ev StatusChangeEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, fmt.Errorf("decode status_change: %w", err)
		}
		if ev.Status == "" {
			ev.Status = "online"
		}
		return ev, nil
	case "offer", "answer", "ice-candidate":
		return decodeRelay(env.Type, data)
	case "video_call_start":
		var ev VideoCallStartEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, fmt.Errorf("decode video_call_start: %w", err)
		}
		return ev, nil
	case "video_call_invite":
		var ev VideoCallInviteEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, fmt.Errorf("decode video_call_invite: %w", err)
		}
		return ev, nil
	case "video_call_cancel":
		var ev VideoCallCancelEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, fmt.Errorf("decode video_call_cancel: %w", err)
		}
		return ev, nil
	case "video_call_end":
		return VideoCallEndEvent{}, nil
	case "screen_share_start":
		return ScreenShareStartEvent{}, nil
	case "screen_share_stop":
		return ScreenShareStopEvent{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
	}
}

func decodeRelay(kind string, data []byte) (ClientEvent, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("decode %s: %w", kind, err)
	}
	ev := RelayEvent{kind: kind, Extra: fields}
	if raw, ok := fields["target_user_id"]; ok {
		if err := json.Unmarshal(raw, &ev.TargetUserID); err != nil {
			return nil, fmt.Errorf("decode %s target: %w", kind, err)
		}
	}
	delete(fields, "type")
	delete(fields, "target_user_id")
	return ev, nil
}
