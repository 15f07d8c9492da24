package signal

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imoes/agora/internal/app"
	"github.com/imoes/agora/internal/config"
	"github.com/imoes/agora/internal/core"
	"github.com/imoes/agora/internal/domain"
)

type fakeAuth struct {
	users map[string]*domain.User
}

func (a *fakeAuth) Authenticate(_ context.Context, token string) (*domain.User, error) {
	u, ok := a.users[token]
	if !ok {
		return nil, errors.New("invalid token")
	}
	return u, nil
}

type fakeMembers struct {
	allowed map[string]bool
}

func (m *fakeMembers) IsChannelMember(_ context.Context, channel domain.ChannelID, user domain.UserID) (bool, error) {
	return m.allowed[string(channel)+"/"+string(user)], nil
}

type memMessages struct {
	mu   sync.Mutex
	msgs []*domain.Message
}

func (m *memMessages) Append(_ context.Context, _ domain.ChannelID, sender domain.UserID, content, messageType string, fileRef *string) (*domain.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg := domain.NewMessage(sender, content, messageType, fileRef)
	m.msgs = append(m.msgs, msg)
	return msg, nil
}

func (m *memMessages) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.msgs)
}

type memStatuses struct {
	mu   sync.Mutex
	last map[domain.UserID]domain.Status
}

func (s *memStatuses) SetStatus(_ context.Context, user domain.UserID, status domain.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		s.last = make(map[domain.UserID]domain.Status)
	}
	s.last[user] = status
	return nil
}

type memFeed struct {
	mu    sync.Mutex
	calls int
}

func (f *memFeed) MessagePosted(_ context.Context, _ domain.ChannelID, _ domain.UserID, _, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return nil
}

func (f *memFeed) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func testConfig() *config.Config {
	return &config.Config{
		ReadLimit:     32768,
		PingPeriod:    54 * time.Second,
		WriteWait:     5 * time.Second,
		SendQueueSize: 16,
		EventRate:     100,
		EventBurst:    100,
	}
}

type testServer struct {
	srv      *httptest.Server
	messages *memMessages
	feed     *memFeed
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	auth := &fakeAuth{users: map[string]*domain.User{
		"tok-alice": {ID: "u-alice", Username: "alice", DisplayName: "Alice", Status: domain.StatusOnline},
		"tok-bob":   {ID: "u-bob", Username: "bob", DisplayName: "Bob", Status: domain.StatusOnline},
	}}
	members := &fakeMembers{allowed: map[string]bool{
		"general/u-alice": true,
		"general/u-bob":   true,
	}}

	messages := &memMessages{}
	feed := &memFeed{}
	registry := core.NewRegistry()
	hub := &app.Hub{
		Registry: registry,
		Presence: core.NewPresenceStore(),
		Calls:    core.NewCallTracker(),
		Cast:     core.NewBroadcaster(registry),
		Messages: messages,
		Statuses: &memStatuses{},
		Feed:     feed,
	}
	ctl := &Controller{Hub: hub, Auth: auth, Members: members, Cfg: testConfig()}

	r := gin.New()
	r.GET("/ws/:channel", ctl.Handle)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return &testServer{srv: srv, messages: messages, feed: feed}
}

func (ts *testServer) dial(t *testing.T, channel, token string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.srv.URL, "http") + "/ws/" + channel + "?token=" + token
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { ws.Close() })
	return ws
}

func readEvent(t *testing.T, ws *websocket.Conn) map[string]any {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(3*time.Second)))
	_, data, err := ws.ReadMessage()
	require.NoError(t, err)
	var out map[string]any
	require.NoError(t, json.Unmarshal(data, &out))
	return out
}

func readClose(t *testing.T, ws *websocket.Conn) *websocket.CloseError {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(3*time.Second)))
	_, _, err := ws.ReadMessage()
	var ce *websocket.CloseError
	require.ErrorAs(t, err, &ce)
	return ce
}

func TestGateRejectsBadToken(t *testing.T) {
	ts := newTestServer(t)

	ws := ts.dial(t, "general", "tok-nobody")
	ce := readClose(t, ws)
	assert.Equal(t, CloseUnauthorized, ce.Code)
	assert.Equal(t, "Unauthorized", ce.Text)
}

func TestGateRejectsNonMember(t *testing.T) {
	ts := newTestServer(t)

	ws := ts.dial(t, "secret-channel", "tok-alice")
	ce := readClose(t, ws)
	assert.Equal(t, CloseNotAMember, ce.Code)
	assert.Equal(t, "Not a channel member", ce.Text)
}

func TestSessionLifecycle(t *testing.T) {
	ts := newTestServer(t)

	alice := ts.dial(t, "general", "tok-alice")
	snapshot := readEvent(t, alice)
	assert.Equal(t, "user_statuses", snapshot["type"])

	bob := ts.dial(t, "general", "tok-bob")
	assert.Equal(t, "user_statuses", readEvent(t, bob)["type"])

	joined := readEvent(t, alice)
	require.Equal(t, "user_joined", joined["type"])
	assert.Equal(t, "u-bob", joined["user_id"])
	assert.ElementsMatch(t, []any{"u-alice", "u-bob"}, joined["online_users"])

	require.NoError(t, bob.WriteJSON(map[string]any{
		"type":    "message",
		"content": "Hallo @alice",
	}))

	for _, ws := range []*websocket.Conn{alice, bob} {
		msg := readEvent(t, ws)
		require.Equal(t, "new_message", msg["type"])
		m, ok := msg["message"].(map[string]any)
		require.True(t, ok)
		assert.Equal(t, "Hallo @alice", m["content"])
		assert.Equal(t, "u-bob", m["sender_id"])
		assert.Equal(t, "Bob", m["sender_name"])
		assert.Equal(t, "text", m["message_type"])
		assert.NotEmpty(t, m["id"])
	}
	assert.Equal(t, 1, ts.messages.count())

	require.NoError(t, bob.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))

	left := readEvent(t, alice)
	require.Equal(t, "user_left", left["type"])
	assert.Equal(t, "u-bob", left["user_id"])
	assert.Equal(t, "offline", left["status"])
	assert.ElementsMatch(t, []any{"u-alice"}, left["online_users"])

	// bob's read loop handled the close only after the message event,
	// so the feed side effect has completed by now
	assert.Equal(t, 1, ts.feed.count())
}

func TestMalformedEventKeepsConnectionAlive(t *testing.T) {
	ts := newTestServer(t)

	alice := ts.dial(t, "general", "tok-alice")
	assert.Equal(t, "user_statuses", readEvent(t, alice)["type"])

	require.NoError(t, alice.WriteMessage(websocket.TextMessage, []byte("not json")))
	require.NoError(t, alice.WriteJSON(map[string]any{"type": "no_such_event"}))

	// The connection must survive both; a typing echo path proves it.
	bob := ts.dial(t, "general", "tok-bob")
	assert.Equal(t, "user_statuses", readEvent(t, bob)["type"])
	assert.Equal(t, "user_joined", readEvent(t, alice)["type"])

	require.NoError(t, bob.WriteJSON(map[string]any{"type": "typing"}))
	typing := readEvent(t, alice)
	assert.Equal(t, "typing", typing["type"])
	assert.Equal(t, "u-bob", typing["user_id"])
}
