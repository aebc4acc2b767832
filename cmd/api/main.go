package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/aveksana/referrals-api/docs" // Swagger docs
	"github.com/aveksana/referrals-api/internal/app"
	"github.com/aveksana/referrals-api/internal/auth"
	"github.com/aveksana/referrals-api/internal/config"
	httpServer "github.com/aveksana/referrals-api/internal/http"
	"github.com/aveksana/referrals-api/internal/logging"
	"github.com/aveksana/referrals-api/internal/referral"
	"github.com/aveksana/referrals-api/internal/user"
)

// @title           Aveksana Referrals API
// @version         1.0
// @description     Referral attribution, activation tracking and reward granting.

// @contact.name   API Support
// @contact.email  support@example.com

// @license.name  MIT
// @license.url   https://opensource.org/licenses/MIT

// @host      localhost:8080
// @BasePath  /

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and the access token.

func main() {
	if err := run(); err != nil {
		log.Fatalf("Application error: %v", err)
	}
}

func run() error {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Initialize logger
	logger := logging.NewLogger(cfg.Server.IsDevelopment())
	logger.Info("starting application",
		"env", cfg.Server.Env,
		"port", cfg.Server.Port,
		"store", cfg.Store.Driver,
	)

	ctx := context.Background()

	// Initialize user store
	store, err := app.OpenStore(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}

	// Initialize rate limiter
	rateLimiter, closeLimiter := app.OpenRateLimiter(ctx, cfg, logger)
	defer func() {
		if err := app.CloseAll(closeLimiter, store.Close); err != nil {
			logger.Error("failed to release resources", "error", err.Error())
		}
	}()

	// Initialize token service
	tokenService, err := app.NewTokenService(cfg.Auth)
	if err != nil {
		return fmt.Errorf("failed to initialize token service: %w", err)
	}

	// Initialize services
	authService := auth.NewService(
		store.Users,
		tokenService,
		logger,
		cfg.Auth.AccessTokenDuration,
		cfg.Referral.SignupGiftCredits,
	)
	referralService := referral.NewService(store.Users, referral.RulesFromConfig(cfg.Referral), logger)

	// Initialize router
	router := httpServer.NewRouter(cfg, httpServer.Handlers{
		Auth:           auth.NewHandler(authService, rateLimiter),
		AuthMiddleware: auth.NewMiddleware(tokenService),
		Referral:       referral.NewHandler(referralService, auth.UserIDFromRequest),
		User:           user.NewHandler(store.Users),
		Ping:           store.Ping,
	}, logger)

	// Initialize HTTP server
	serverAddr := ":" + cfg.Server.Port
	server := httpServer.NewServer(
		serverAddr,
		router,
		cfg.Server.ReadTimeout,
		cfg.Server.WriteTimeout,
		logger,
	)

	// Start server in a goroutine
	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- server.Start()
	}()

	// Wait for interrupt signal or server error
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)
	case sig := <-shutdown:
		logger.Info("received signal, shutting down", "signal", sig.String())

		// Graceful shutdown with timeout
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
	}

	return nil
}
