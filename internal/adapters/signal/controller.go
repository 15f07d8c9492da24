package signal

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/imoes/agora/internal/app"
	"github.com/imoes/agora/internal/config"
	"github.com/imoes/agora/internal/domain"
	"github.com/imoes/agora/internal/observability"
	"github.com/imoes/agora/internal/protocol"
)

// Close codes sent to clients that fail the gate. The upgrade happens
// first so the refusal arrives as a proper close frame, not an HTTP
// status the browser hides from script.
const (
	CloseUnauthorized = 4001
	CloseNotAMember   = 4003
)

// Authenticator resolves the token query parameter to a user.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*domain.User, error)
}

// Membership answers whether a user may enter a channel.
type Membership interface {
	IsChannelMember(ctx context.Context, channel domain.ChannelID, user domain.UserID) (bool, error)
}

// Controller runs one goroutine pair per socket. All fields must be
// set; Metrics may be nil.
type Controller struct {
	Hub     *app.Hub
	Auth    Authenticator
	Members Membership
	Cfg     *config.Config
	Metrics *observability.Metrics
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handle serves one websocket session end to end: gate, register,
// dispatch, teardown. It returns when the client is gone.
func (ctl *Controller) Handle(c *gin.Context) {
	channel := domain.ChannelID(c.Param("channel"))

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}

	ctx := c.Request.Context()

	user, err := ctl.Auth.Authenticate(ctx, c.Query("token"))
	if err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("channel", string(channel)).Msg("closing socket, bad token")
		ctl.refuse(ws, CloseUnauthorized, "Unauthorized")
		return
	}

	member, err := ctl.Members.IsChannelMember(ctx, channel, user.ID)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Str("channel", string(channel)).Msg("membership lookup")
		ctl.refuse(ws, websocket.CloseInternalServerErr, "internal error")
		return
	}
	if !member {
		log.Warn().Str("module", "signal").Str("channel", string(channel)).Str("user", string(user.ID)).Msg("closing socket, not a member")
		ctl.refuse(ws, CloseNotAMember, "Not a channel member")
		return
	}

	conn := newWSConn(ws, ctl.Cfg.SendQueueSize)
	sess := &app.Session{User: user, Channel: channel, Conn: conn}

	log.Info().Str("module", "signal").Str("channel", string(channel)).Str("user", string(user.ID)).Msg("new WS connection")

	go ctl.writePump(conn)

	ctl.Hub.Connect(sess)
	ctl.Metrics.ConnOpened()
	defer func() {
		// The request context dies with this handler, cleanup must not.
		ctl.Hub.Disconnect(context.Background(), sess)
		conn.Close()
		ctl.Metrics.ConnClosed()
		log.Info().Str("module", "signal").Str("channel", string(channel)).Str("user", string(user.ID)).Msg("WS connection closed")
	}()

	ctl.readLoop(ctx, sess, conn)
}

// refuse closes a just-upgraded socket with a reason the client can
// inspect.
func (ctl *Controller) refuse(ws *websocket.Conn, code int, reason string) {
	deadline := time.Now().Add(ctl.Cfg.WriteWait)
	_ = ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline)
	_ = ws.Close()
}

// readLoop consumes inbound frames until the socket errors out. Frames
// over the rate limit and frames that fail to decode are dropped; the
// connection itself survives both.
func (ctl *Controller) readLoop(ctx context.Context, sess *app.Session, c *wsConn) {
	// The client answers our pings; a pong refreshes the read deadline
	// with a little slack over the ping interval.
	pongWait := ctl.Cfg.PingPeriod * 10 / 9
	c.conn.SetReadLimit(ctl.Cfg.ReadLimit)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	limiter := rate.NewLimiter(rate.Limit(ctl.Cfg.EventRate), ctl.Cfg.EventBurst)

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warn().Err(err).Str("module", "signal").Str("user", string(sess.User.ID)).Msg("read error")
			}
			return
		}
		if !limiter.Allow() {
			log.Warn().Str("module", "signal").Str("user", string(sess.User.ID)).Msg("event rate exceeded, dropping")
			continue
		}
		ev, err := protocol.Decode(data)
		if err != nil {
			log.Warn().Err(err).Str("module", "signal").Str("user", string(sess.User.ID)).Msg("discarding event")
			continue
		}
		ctl.Hub.HandleEvent(ctx, sess, ev)
	}
}

// writePump drains the send queue onto the socket and keeps the
// connection alive with pings. Any write failure closes the conn, which
// in turn unblocks the read loop.
func (ctl *Controller) writePump(c *wsConn) {
	ticker := time.NewTicker(ctl.Cfg.PingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(ctl.Cfg.WriteWait)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump write error")
				return
			}
		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(ctl.Cfg.WriteWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
