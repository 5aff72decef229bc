package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/9thLevelSoftware/vlvt-ephemeral/internal/config"
	"github.com/9thLevelSoftware/vlvt-ephemeral/internal/database"
	"github.com/9thLevelSoftware/vlvt-ephemeral/internal/handler"
	"github.com/9thLevelSoftware/vlvt-ephemeral/internal/jobs"
	"github.com/9thLevelSoftware/vlvt-ephemeral/internal/middleware"
	"github.com/9thLevelSoftware/vlvt-ephemeral/internal/redis"
	"github.com/9thLevelSoftware/vlvt-ephemeral/internal/repository"
	"github.com/9thLevelSoftware/vlvt-ephemeral/internal/service"
	"github.com/9thLevelSoftware/vlvt-ephemeral/internal/sse"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	setLogLevel(cfg.LogLevel)

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), config.DBPingTimeout)
	if err := db.Ping(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to ping database")
	}
	cancel()
	log.Info().Msg("database connected")

	redisClient, err := redis.NewClient(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer redisClient.Close()
	log.Info().Msg("redis connected")

	sessionRepo := repository.NewSessionRepository(db.DB)
	matchRepo := repository.NewMatchRepository(db.DB)
	messageRepo := repository.NewMessageRepository(db.DB)
	declineRepo := repository.NewDeclineRepository(db.DB)
	fingerprintRepo := repository.NewDeviceFingerprintRepository(db.DB)

	broker := sse.NewBroker(redisClient)

	limiter := service.NewRateLimiter(redisClient.Client, map[service.EventType]service.EventLimit{
		service.EventTypeMessageSend: {Limit: cfg.MessageSendPerMin, Window: time.Minute},
		service.EventTypeTyping:      {Limit: cfg.TypingPerMin, Window: time.Minute},
		service.EventTypePresence:    {Limit: cfg.PresencePerMin, Window: time.Minute},
	})

	sessionService := service.NewSessionService(sessionRepo, fingerprintRepo)
	matchService := service.NewMatchService(matchRepo, declineRepo, sessionRepo, broker)
	chatService := service.NewChatService(matchRepo, messageRepo, limiter, broker)

	identityMiddleware := middleware.NewIdentityMiddleware()
	bodyLimitMiddleware := middleware.NewBodyLimitMiddleware(0)

	sessionHandler := handler.NewSessionHandler(sessionService)
	matchHandler := handler.NewMatchHandler(matchService)
	chatHandler := handler.NewChatHandler(chatService)
	eventsHandler := handler.NewEventsHandler(broker)

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(config.ServerRequestTimeout))
	r.Use(bodyLimitMiddleware.Handler)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]any{
			"status":    "ok",
			"timestamp": time.Now().UnixMilli(),
		})
	})

	r.Route("/v1", func(r chi.Router) {
		r.Use(identityMiddleware.Handler)
		r.Get("/events", eventsHandler.ServeHTTP)
		r.Mount("/sessions", sessionHandler.Routes())
		r.Route("/matches", func(r chi.Router) {
			r.Get("/{matchID}", matchHandler.GetMatch)
			r.Post("/{matchID}/decline", matchHandler.Decline)
			r.Post("/{matchID}/messages", chatHandler.SendMessage)
			r.Get("/{matchID}/messages", chatHandler.GetHistory)
			r.Post("/{matchID}/typing", chatHandler.Typing)
			r.Post("/{matchID}/presence", chatHandler.Presence)
		})
	})

	r.Route("/internal", func(r chi.Router) {
		r.Mount("/matches", matchHandler.InternalRoutes())
	})

	var scheduler *jobs.Scheduler
	scheduler, err = jobs.NewScheduler(redisClient)
	if err != nil {
		// Retention is best-effort infrastructure; the request path
		// must come up even when the job backend is unreachable.
		log.Warn().Err(err).Msg("retention scheduler unavailable, continuing without it")
		scheduler = nil
	} else {
		scheduler.Register(jobs.NewMessageCleanupJob(messageRepo, matchRepo), config.MessageCleanupHourUTC, 0)
		scheduler.Register(jobs.NewSessionCleanupJob(sessionRepo, declineRepo, fingerprintRepo), config.SessionCleanupHourUTC, 0)
		scheduler.Start()
	}

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      r,
		ReadTimeout:  config.ServerReadTimeout,
		WriteTimeout: 0,
		IdleTimeout:  config.ServerIdleTimeout,
	}

	go func() {
		log.Info().Str("addr", cfg.Addr()).Msg("starting server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), config.ServerShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	broker.Close()
	if scheduler != nil {
		scheduler.Stop()
	}

	log.Info().Msg("server stopped")
}

func setLogLevel(level string) {
	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
