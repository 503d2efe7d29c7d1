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

	"github.com/ppah/verify-server-go/internal/config"
	"github.com/ppah/verify-server-go/internal/database"
	"github.com/ppah/verify-server-go/internal/handler"
	"github.com/ppah/verify-server-go/internal/jobs"
	"github.com/ppah/verify-server-go/internal/middleware"
	"github.com/ppah/verify-server-go/internal/redis"
	"github.com/ppah/verify-server-go/internal/repository"
	"github.com/ppah/verify-server-go/internal/service"
	"github.com/ppah/verify-server-go/internal/signaling"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	setLogLevel(cfg.LogLevel)

	isProduction := os.Getenv("FLY_APP_NAME") != ""
	if err := cfg.Validate(isProduction); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}

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
	credentialRepo := repository.NewCredentialRepository(db.DB)

	sessionService := service.NewSessionService(
		sessionRepo, credentialRepo, cfg.SessionTimeout(), cfg.EncryptionKey,
	)
	magicLinkService := service.NewMagicLinkService(redisClient, cfg.MagicLinkTTL())

	hub := signaling.NewHub()

	rateLimitMiddleware := middleware.NewIPRateLimitMiddleware(redisClient.Client, cfg.VerifyRateLimitPerMin)

	sessionHandler := handler.NewSessionHandler(sessionService)
	authHandler := handler.NewAuthHandler(magicLinkService, cfg.RelyingPartyID, cfg.RelyingPartyName)
	signalingHandler := handler.NewSignalingHandler(hub)

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger)
	r.Use(chimiddleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]any{
			"status":    "ok",
			"timestamp": time.Now().UnixMilli(),
		})
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(chimiddleware.Timeout(config.ServerRequestTimeout))

		r.Route("/session", func(r chi.Router) {
			r.Mount("/", sessionHandler.Routes())
		})

		r.With(rateLimitMiddleware.Handler).Post("/verify-hash", sessionHandler.VerifyHash)

		r.Route("/auth", func(r chi.Router) {
			r.Mount("/", authHandler.Routes())
		})
	})

	// No chi timeout here: signaling connections are long lived.
	r.Get("/ws/signaling/{roomID}", signalingHandler.ServeWS)

	cleanupJob := jobs.NewCleanupJob(sessionRepo, cfg.SessionTimeout(), config.CleanupJobInterval)
	cleanupJob.Start()
	defer cleanupJob.Stop()

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
