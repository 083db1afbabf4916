/**
 * @description
 * Entry point for the storefront-service: the role-gated views of the agent
 * referral program. It wires configuration, the agent-service client, the
 * per-principal workspaces and the HTTP router, then serves until signalled.
 *
 * @dependencies
 * - github.com/joho/godotenv: loads .env files during local development.
 * - github.com/go-chi/chi/v5: HTTP routing (via internal/api).
 */
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/multimart/marketplace/internal/session"
	"github.com/multimart/marketplace/storefront-service/internal/api"
	"github.com/multimart/marketplace/storefront-service/internal/app"
	"github.com/multimart/marketplace/storefront-service/internal/config"
	"github.com/multimart/marketplace/storefront-service/pkg/agentclient"
	"github.com/multimart/marketplace/storefront-service/pkg/middleware"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		logger.Info("no .env file found, relying on environment variables")
	}

	cfg, err := config.LoadConfig(".")
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	if cfg.AllowHeaderAuth {
		logger.Warn("header authentication fallback enabled; do not use outside local environments")
	}

	agentClient := agentclient.NewClient(cfg.AgentServiceURL, cfg.AgentServiceTimeout)

	issuer, err := app.NewReferralIssuer(agentClient, cfg.PublicStorefrontURL, logger)
	if err != nil {
		logger.Error("invalid public storefront URL", "error", err)
		os.Exit(1)
	}

	workspaces := app.NewWorkspaces(agentClient, agentClient, cfg.WorkspaceIdleTTL, logger)
	limiter := middleware.NewRateLimiter(cfg.MutationRatePerSecond, cfg.MutationBurst, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go workspaces.Run(ctx, time.Minute)
	go limiter.Run(ctx, 5*time.Minute)

	handler := api.NewHandler(workspaces, issuer, logger)
	router := api.NewRouter(handler, api.RouterConfig{
		Auth: session.AuthConfig{
			JWKSURL:             cfg.ClerkJWKSURL,
			ExpectedAudience:    cfg.ClerkAudience,
			ExpectedIssuer:      cfg.ClerkIssuer,
			CookieName:          cfg.SessionCookieName,
			AllowHeaderFallback: cfg.AllowHeaderAuth,
		},
		SignInPath:  cfg.SignInPath,
		RateLimiter: limiter,
	}, logger)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.ServerPort),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("storefront-service listening", "addr", server.Addr, "agent_service", cfg.AgentServiceURL)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server stopped unexpectedly", "error", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	logger.Info("shutdown started")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown failed", "error", err)
	}
	logger.Info("shutdown complete")
}
