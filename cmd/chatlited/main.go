// ChatLite widget backend and channel relay server.
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

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"

	"github.com/gamersumit/chatlite-widget/internal/ai"
	"github.com/gamersumit/chatlite-widget/internal/api"
	"github.com/gamersumit/chatlite-widget/internal/config"
	"github.com/gamersumit/chatlite-widget/internal/domain"
	"github.com/gamersumit/chatlite-widget/internal/relay"
	"github.com/gamersumit/chatlite-widget/internal/store"
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

	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment())

	// Initialize dependencies.
	repo, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()

	if err := repo.Ping(context.Background()); err != nil {
		slog.Error("Database health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Database connected")

	if cfg.DemoWidgetID != "" {
		if err := seedDemoWidget(context.Background(), repo, cfg.DemoWidgetID); err != nil {
			slog.Error("Failed to seed demo widget", "error", err)
			os.Exit(1)
		}
		slog.Info("Demo widget ready", "widget_id", cfg.DemoWidgetID)
	}

	// Responder selection: OpenAI when configured, canned otherwise.
	var responder ai.Responder
	if cfg.OpenAIAPIKey != "" {
		responder = ai.NewOpenAIClient(cfg.OpenAIAPIKey, cfg.OpenAIModel)
		slog.Info("AI responder enabled", "model", cfg.OpenAIModel)
	} else {
		responder = ai.NewStaticResponder()
		slog.Info("AI responder disabled (OPENAI_API_KEY not set), using canned replies")
	}

	// Initialize handlers.
	handler := api.NewHandler(repo, responder)
	relayHandler := relay.NewHandler(cfg.FrontendBase, cfg.IsDevelopment())

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
	}))

	api.RegisterRoutes(r, handler)

	// WebSocket channel relay.
	r.Get("/ws/channel", relayHandler.ServeHTTP)

	// Create server.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

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

// seedDemoWidget ensures a widget record exists for local development.
// Existing records are left untouched so verification state survives
// restarts.
func seedDemoWidget(ctx context.Context, repo store.Repository, widgetID string) error {
	existing, err := repo.GetWidget(ctx, widgetID)
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}

	now := time.Now()
	return repo.UpsertWidget(ctx, &domain.Widget{
		WidgetID:           widgetID,
		VerificationStatus: domain.VerificationPending,
		Status:             domain.WidgetInactive,
		Config: domain.WidgetConfig{
			WidgetPosition:  domain.DefaultPosition,
			WidgetColor:     domain.DefaultPrimaryColor,
			WelcomeMessage:  domain.DefaultWelcomeMessage,
			PlaceholderText: domain.DefaultPlaceholder,
			CompanyName:     domain.DefaultTitle,
			OfflineMessage:  domain.DefaultOfflineMessage,
			IsActive:        true,
		},
		CreatedAt: now,
		UpdatedAt: now,
	})
}
