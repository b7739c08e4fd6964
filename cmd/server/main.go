// deckdraft - Conversational Presentation Builder Server
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/deckdraft/deckdraft/internal/api"
	"github.com/deckdraft/deckdraft/internal/config"
	"github.com/deckdraft/deckdraft/internal/conversation"
	"github.com/deckdraft/deckdraft/internal/generate"
	"github.com/deckdraft/deckdraft/internal/identity"
	"github.com/deckdraft/deckdraft/internal/middleware"
	"github.com/deckdraft/deckdraft/internal/store"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("Starting server", "port", cfg.Port, "store", cfg.StoreDriver, "dev", cfg.IsDevelopment())

	// Initialize the session store.
	var repo store.Repository
	switch cfg.StoreDriver {
	case config.StoreSQLite:
		repo, err = store.NewSQLite(cfg.DBPath)
	case config.StoreRedis:
		repo, err = store.NewRedis(cfg.RedisAddr, cfg.SessionTTL)
	case config.StoreMemory:
		repo = store.NewMemory()
	}
	if err != nil {
		slog.Error("Failed to initialize session store", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close session store", "error", closeErr)
		}
	}()

	if err := repo.Ping(context.Background()); err != nil {
		slog.Error("Session store health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Session store connected", "driver", cfg.StoreDriver)

	// Initialize the slide generator (optional).
	var gen generate.Generator
	generationEnabled := false
	if cfg.AnthropicAPIKey != "" {
		ag, err := generate.NewAnthropicFromAPIKey(cfg.AnthropicAPIKey, cfg.AnthropicModel)
		if err != nil {
			slog.Error("Failed to initialize Anthropic generator", "error", err)
			os.Exit(1)
		}
		gen = ag
		generationEnabled = true
		slog.Info("Anthropic generator initialized", "model", cfg.AnthropicModel)
	} else {
		gen = generate.NewCanned()
		slog.Info("Model generation disabled (ANTHROPIC_API_KEY not set), using canned outlines")
	}

	// Initialize services.
	registry := conversation.NewRegistry()
	gateway := conversation.NewGateway(repo, gen, registry, conversation.GatewayConfig{
		AllowedOrigin:     cfg.FrontendURL,
		IsDev:             cfg.IsDevelopment(),
		HeartbeatAck:      cfg.HeartbeatMode == config.HeartbeatAck,
		RequiredAnswers:   cfg.RequiredAnswers,
		GenerationTimeout: cfg.GenerationTimeout,
	})

	// Initialize handlers.
	baseHandler := api.NewHandler(repo)
	healthHandler := api.NewHealthHandler(repo)
	sessionHandler := api.NewSessionHandler(baseHandler, registry, generationEnabled)

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/ping"))
	r.Use(middleware.CORS([]string{"*"}))
	r.Use(identity.Middleware(cfg.IsDevelopment()))

	// Public routes.
	healthHandler.RegisterHealth(r)
	sessionHandler.RegisterRoutes(r)

	// WebSocket endpoint.
	r.Get("/ws/conversation", gateway.ServeHTTP)

	// Create server.
	// Note: WebSocket connections require long timeouts (no WriteTimeout).
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	// Start TTL worker.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	conversation.StartTTLWorker(ctx, repo, gateway, cfg.SessionTTL)

	// Start server.
	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal.
	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("Server stopped successfully")
}
