package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/imoes/agora/internal/adapters/chatlog"
	"github.com/imoes/agora/internal/adapters/directory"
	"github.com/imoes/agora/internal/adapters/feed"
	router "github.com/imoes/agora/internal/adapters/http"
	ws "github.com/imoes/agora/internal/adapters/signal"
	"github.com/imoes/agora/internal/app"
	"github.com/imoes/agora/internal/config"
	"github.com/imoes/agora/internal/core"
	"github.com/imoes/agora/internal/observability"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(level)
	}
	if cfg.Mode == "release" {
		// JSON output in production, the console writer is for terminals.
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}

	db, err := directory.Open(ctx, cfg.PostgresURL)
	if err != nil {
		log.Fatal().Err(err).Msg("connect postgres")
	}
	defer db.Close()

	users := directory.NewStore(db)
	auth := directory.NewAuthenticator(cfg.JWTSecret, users)

	chat, err := chatlog.NewStore(cfg.ChatDBDir)
	if err != nil {
		log.Fatal().Err(err).Msg("open chat log")
	}
	defer chat.Close()

	registry := core.NewRegistry()
	presence := core.NewPresenceStore()
	metrics := observability.NewMetrics()

	hub := &app.Hub{
		Registry: registry,
		Presence: presence,
		Calls:    core.NewCallTracker(),
		Cast:     core.NewBroadcaster(registry),
		Messages: chat,
		Statuses: users,
		Feed:     feed.NewNotifier(db),
		Metrics:  metrics,
	}

	ctl := &ws.Controller{
		Hub:     hub,
		Auth:    auth,
		Members: users,
		Cfg:     cfg,
		Metrics: metrics,
	}

	api := &router.API{
		Signal:   ctl,
		Auth:     auth,
		Members:  users,
		Registry: registry,
		Presence: presence,
		Log:      chat,
	}

	r := router.SetupRouter(cfg, api)
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("Agora realtime server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	log.Info().Msg("Server exited gracefully")
}
