// Package http assembles the gin router: the websocket endpoint, the
// small REST surface, health and metrics.
package http

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/imoes/agora/internal/adapters/signal"
	"github.com/imoes/agora/internal/config"
	"github.com/imoes/agora/internal/core"
	"github.com/imoes/agora/internal/domain"
)

// MessageLog is the read side of the chat log, backing the history
// endpoint.
type MessageLog interface {
	Recent(ctx context.Context, channel domain.ChannelID, limit int, before string) ([]domain.Message, error)
}

// API bundles everything the HTTP surface needs.
type API struct {
	Signal   *signal.Controller
	Auth     signal.Authenticator
	Members  signal.Membership
	Registry *core.Registry
	Presence *core.PresenceStore
	Log      MessageLog
}

func SetupRouter(cfg *config.Config, api *API) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/ws/:channel", api.Signal.Handle)

	channels := r.Group("/api/channels/:channel", api.requireUser(), api.requireMembership())
	channels.GET("/online", api.handleOnline)
	channels.GET("/messages", api.handleMessages)

	log.Info().Str("module", "adapters.http").Msg("router setup")
	return r
}

// bearerToken pulls the token from the Authorization header, falling
// back to the query parameter the websocket endpoint uses.
func bearerToken(c *gin.Context) string {
	if after, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer "); ok {
		return after
	}
	return c.Query("token")
}

func (a *API) requireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := a.Auth.Authenticate(c.Request.Context(), bearerToken(c))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		c.Set("user", user)
		c.Next()
	}
}

func (a *API) requireMembership() gin.HandlerFunc {
	return func(c *gin.Context) {
		user := c.MustGet("user").(*domain.User)
		channel := domain.ChannelID(c.Param("channel"))
		member, err := a.Members.IsChannelMember(c.Request.Context(), channel, user.ID)
		if err != nil {
			log.Error().Err(err).Str("module", "adapters.http").Str("channel", string(channel)).Msg("membership lookup")
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}
		if !member {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "not a channel member"})
			return
		}
		c.Next()
	}
}

func (a *API) handleOnline(c *gin.Context) {
	channel := domain.ChannelID(c.Param("channel"))
	online := a.Registry.OnlineUsers(channel)
	c.JSON(http.StatusOK, gin.H{
		"online_users":  online,
		"user_statuses": a.Presence.Statuses(online),
	})
}

func (a *API) handleMessages(c *gin.Context) {
	channel := domain.ChannelID(c.Param("channel"))

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = n
	}

	msgs, err := a.Log.Recent(c.Request.Context(), channel, limit, c.Query("before"))
	if err != nil {
		log.Error().Err(err).Str("module", "adapters.http").Str("channel", string(channel)).Msg("read chat log")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, msgs)
}
