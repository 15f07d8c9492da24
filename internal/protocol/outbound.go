package protocol

import (
	"github.com/imoes/agora/internal/domain"
)

// Server events. Each builder stamps the type tag so call sites cannot
// mistag a payload.

type UserJoinedEvent struct {
	Type         string                          `json:"type"`
	UserID       domain.UserID                   `json:"user_id"`
	DisplayName  string                          `json:"display_name"`
	Status       domain.Status                   `json:"status"`
	OnlineUsers  []domain.UserID                 `json:"online_users"`
	UserStatuses map[domain.UserID]domain.Status `json:"user_statuses"`
}

// UserJoined announces a new connection to the members already on the
// channel.
func UserJoined(user *domain.User, status domain.Status, online []domain.UserID, statuses map[domain.UserID]domain.Status) UserJoinedEvent {
	return UserJoinedEvent{
		Type:         "user_joined",
		UserID:       user.ID,
		DisplayName:  user.DisplayName,
		Status:       status,
		OnlineUsers:  online,
		UserStatuses: statuses,
	}
}

type UserStatusesEvent struct {
	Type         string                          `json:"type"`
	UserStatuses map[domain.UserID]domain.Status `json:"user_statuses"`
}

// UserStatuses is the presence snapshot handed to a user right after
// joining.
func UserStatuses(statuses map[domain.UserID]domain.Status) UserStatusesEvent {
	return UserStatusesEvent{Type: "user_statuses", UserStatuses: statuses}
}

type NewMessageEvent struct {
	Type    string          `json:"type"`
	Message *domain.Message `json:"message"`
}

// NewMessage wraps a stored chat message for fan-out, sender included.
func NewMessage(msg *domain.Message) NewMessageEvent {
	return NewMessageEvent{Type: "new_message", Message: msg}
}

type TypingEventOut struct {
	Type        string        `json:"type"`
	UserID      domain.UserID `json:"user_id"`
	DisplayName string        `json:"display_name"`
}

func Typing(user *domain.User) TypingEventOut {
	return TypingEventOut{Type: "typing", UserID: user.ID, DisplayName: user.DisplayName}
}

type ReadEventOut struct {
	Type   string        `json:"type"`
	UserID domain.UserID `json:"user_id"`
}

func Read(user domain.UserID) ReadEventOut {
	return ReadEventOut{Type: "read", UserID: user}
}

type StatusChangeEventOut struct {
	Type   string        `json:"type"`
	UserID domain.UserID `json:"user_id"`
	Status domain.Status `json:"status"`
}

func StatusChange(user domain.UserID, status domain.Status) StatusChangeEventOut {
	return StatusChangeEventOut{Type: "status_change", UserID: user, Status: status}
}

// Relay rebuilds a signaling payload for its target: the pass-through
// fields first, then the server-stamped routing fields. The sender
// identity always wins over anything the client put in the payload.
func Relay(ev RelayEvent, from *domain.User) map[string]any {
	out := make(map[string]any, len(ev.Extra)+3)
	for k, v := range ev.Extra {
		out[k] = v
	}
	out["type"] = ev.Kind()
	out["from_user_id"] = from.ID
	out["display_name"] = from.DisplayName
	return out
}

type VideoCallStartEventOut struct {
	Type        string        `json:"type"`
	UserID      domain.UserID `json:"user_id"`
	DisplayName string        `json:"display_name"`
}

func VideoCallStart(user *domain.User) VideoCallStartEventOut {
	return VideoCallStartEventOut{Type: "video_call_start", UserID: user.ID, DisplayName: user.DisplayName}
}

type VideoCallInviteEventOut struct {
	Type        string           `json:"type"`
	FromUserID  domain.UserID    `json:"from_user_id"`
	DisplayName string           `json:"display_name"`
	ChannelID   domain.ChannelID `json:"channel_id"`
	AudioOnly   bool             `json:"audio_only"`
}

func VideoCallInvite(from *domain.User, channel domain.ChannelID, audioOnly bool) VideoCallInviteEventOut {
	return VideoCallInviteEventOut{
		Type:        "video_call_invite",
		FromUserID:  from.ID,
		DisplayName: from.DisplayName,
		ChannelID:   channel,
		AudioOnly:   audioOnly,
	}
}

type VideoCallCancelEventOut struct {
	Type       string        `json:"type"`
	FromUserID domain.UserID `json:"from_user_id"`
}

func VideoCallCancel(from domain.UserID) VideoCallCancelEventOut {
	return VideoCallCancelEventOut{Type: "video_call_cancel", FromUserID: from}
}

type VideoCallEndEventOut struct {
	Type   string        `json:"type"`
	UserID domain.UserID `json:"user_id"`
}

func VideoCallEnd(user domain.UserID) VideoCallEndEventOut {
	return VideoCallEndEventOut{Type: "video_call_end", UserID: user}
}

type ScreenShareStartEventOut struct {
	Type        string        `json:"type"`
	UserID      domain.UserID `json:"user_id"`
	DisplayName string        `json:"display_name"`
}

func ScreenShareStart(user *domain.User) ScreenShareStartEventOut {
	return ScreenShareStartEventOut{Type: "screen_share_start", UserID: user.ID, DisplayName: user.DisplayName}
}

type ScreenShareStopEventOut struct {
	Type   string        `json:"type"`
	UserID domain.UserID `json:"user_id"`
}

func ScreenShareStop(user domain.UserID) ScreenShareStopEventOut {
	return ScreenShareStopEventOut{Type: "screen_share_stop", UserID: user}
}

type UserLeftEvent struct {
	Type        string          `json:"type"`
	UserID      domain.UserID   `json:"user_id"`
	Status      domain.Status   `json:"status"`
	OnlineUsers []domain.UserID `json:"online_users"`
}

// UserLeft announces a closed connection, carrying the refreshed
// online list.
func UserLeft(user domain.UserID, status domain.Status, online []domain.UserID) UserLeftEvent {
	return UserLeftEvent{Type: "user_left", UserID: user, Status: status, OnlineUsers: online}
}
