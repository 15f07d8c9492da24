package core

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imoes/agora/internal/domain"
)

type testEvent struct {
	Type string `json:"type"`
	Body string `json:"body,omitempty"`
}

func decodeFrames(t *testing.T, frames []Frame) []testEvent {
	t.Helper()
	out := make([]testEvent, 0, len(frames))
	for _, f := range frames {
		var ev testEvent
		require.NoError(t, json.Unmarshal(f, &ev))
		out = append(out, ev)
	}
	return out
}

func TestBroadcastToChannelExcludesSender(t *testing.T) {
	r := NewRegistry()
	alice := &fakeConn{}
	bob := &fakeConn{}
	r.Connect("ch1", "alice", alice)
	r.Connect("ch1", "bob", bob)

	b := NewBroadcaster(r)
	res := b.ToChannel("ch1", testEvent{Type: "typing"}, "alice")

	assert.Equal(t, 1, res.Sent)
	assert.Empty(t, res.Failed)
	assert.Empty(t, alice.sent())
	require.Len(t, bob.sent(), 1)
	assert.Equal(t, "typing", decodeFrames(t, bob.sent())[0].Type)
}

func TestBroadcastToChannelNoExclusion(t *testing.T) {
	r := NewRegistry()
	alice := &fakeConn{}
	bob := &fakeConn{}
	r.Connect("ch1", "alice", alice)
	r.Connect("ch1", "bob", bob)

	res := NewBroadcaster(r).ToChannel("ch1", testEvent{Type: "new_message"}, "")

	assert.Equal(t, 2, res.Sent)
	assert.Len(t, alice.sent(), 1)
	assert.Len(t, bob.sent(), 1)
}

func TestBroadcastCollectsFailures(t *testing.T) {
	r := NewRegistry()
	healthy := &fakeConn{}
	stuck := &fakeConn{fail: true}
	r.Connect("ch1", "alice", healthy)
	r.Connect("ch1", "bob", stuck)

	res := NewBroadcaster(r).ToChannel("ch1", testEvent{Type: "read"}, "")

	assert.Equal(t, 1, res.Sent)
	assert.Equal(t, []domain.UserID{"bob"}, res.Failed)
	// the healthy recipient still got the frame
	assert.Len(t, healthy.sent(), 1)
}

func TestBroadcastToUserHitsEveryConnOfUser(t *testing.T) {
	r := NewRegistry()
	c1 := &fakeConn{}
	c2 := &fakeConn{}
	other := &fakeConn{}
	r.Connect("ch1", "alice", c1)
	r.Connect("ch2", "alice", c2)
	r.Connect("ch1", "bob", other)

	res := NewBroadcaster(r).ToUser("alice", testEvent{Type: "video_call_invite"})

	assert.Equal(t, 2, res.Sent)
	assert.Len(t, c1.sent(), 1)
	assert.Len(t, c2.sent(), 1)
	assert.Empty(t, other.sent())
}

func TestBroadcastToUserOffline(t *testing.T) {
	r := NewRegistry()
	res := NewBroadcaster(r).ToUser("ghost", testEvent{Type: "video_call_invite"})
	assert.Equal(t, 0, res.Sent)
	assert.Empty(t, res.Failed)
}

func TestBroadcastToUserChannelsIncludesSelf(t *testing.T) {
	r := NewRegistry()
	alice1 := &fakeConn{}
	alice2 := &fakeConn{}
	bob := &fakeConn{}
	carol := &fakeConn{}
	r.Connect("ch1", "alice", alice1)
	r.Connect("ch2", "alice", alice2)
	r.Connect("ch1", "bob", bob)
	r.Connect("ch3", "carol", carol)

	res := NewBroadcaster(r).ToUserChannels("alice", testEvent{Type: "status_change"})

	// both of alice's channels, everyone in them, alice included
	assert.Equal(t, 3, res.Sent)
	assert.Len(t, alice1.sent(), 1)
	assert.Len(t, alice2.sent(), 1)
	assert.Len(t, bob.sent(), 1)
	assert.Empty(t, carol.sent())
}

func TestBroadcastToConn(t *testing.T) {
	conn := &fakeConn{}
	require.NoError(t, NewBroadcaster(NewRegistry()).ToConn(conn, testEvent{Type: "user_statuses"}))
	require.Len(t, conn.sent(), 1)

	stuck := &fakeConn{fail: true}
	assert.ErrorIs(t, NewBroadcaster(NewRegistry()).ToConn(stuck, testEvent{Type: "x"}), ErrBackpressure)
}
