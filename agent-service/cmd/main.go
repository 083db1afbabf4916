/**
 * @description
 * Entry point for the agent-service: the backend of the agent referral
 * program. It owns the agent_applications table, publishes review events,
 * mirrors commission ledger totals and reminds admins of overdue reviews.
 *
 * @dependencies
 * - github.com/jackc/pgx/v5: PostgreSQL connection pool.
 * - github.com/rabbitmq/amqp091-go: event publishing and ledger consumption (via pkg/rabbitmq).
 * - github.com/redis/go-redis/v9: distributed submission rate limiting.
 * - github.com/joho/godotenv: loads .env files during local development.
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

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/multimart/marketplace/agent-service/internal/api"
	"github.com/multimart/marketplace/agent-service/internal/app"
	"github.com/multimart/marketplace/agent-service/internal/config"
	"github.com/multimart/marketplace/agent-service/internal/store"
	"github.com/multimart/marketplace/agent-service/pkg/rabbitmq"
	"github.com/multimart/marketplace/internal/session"
	"github.com/redis/go-redis/v9"
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

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		logger.Error("unable to parse database URL", "error", err)
		os.Exit(1)
	}
	poolConfig.MaxConns = 100
	poolConfig.MinConns = 20
	poolConfig.MaxConnLifetime = 30 * time.Minute
	poolConfig.MaxConnIdleTime = 5 * time.Minute
	// Disable prepared statement caching to prevent conflicts behind poolers.
	poolConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	dbpool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		logger.Error("unable to connect to database", "error", err)
		os.Exit(1)
	}
	defer dbpool.Close()
	logger.Info("database connection established")

	var publisher rabbitmq.Publisher
	producer, err := rabbitmq.NewEventProducer(cfg.RabbitMQURL)
	if err != nil {
		logger.Warn("rabbitmq producer unavailable; using fallback", "error", err)
		publisher = &rabbitmq.EventProducerFallback{Logger: logger}
	} else {
		publisher = producer
		logger.Info("rabbitmq producer connected")
	}
	defer publisher.Close()

	var limiter app.SubmissionLimiter
	redisClient := connectRedis(ctx, cfg.RedisURL, logger)
	if redisClient != nil {
		defer redisClient.Close()
		limiter = app.NewRedisSubmissionLimiter(redisClient, cfg.RedisRateLimitPrefix, cfg.SubmissionRateLimitPerHour)
	}

	repository := store.NewPostgresRepository(dbpool)
	service := app.NewService(repository, publisher, limiter, logger, app.Options{
		Exchange:    cfg.EventsExchange,
		LinkBaseURL: cfg.LinkBaseURL,
	})

	consumer, err := rabbitmq.NewConsumer(cfg.RabbitMQURL, logger)
	if err != nil {
		logger.Warn("rabbitmq consumer unavailable; ledger totals will not update", "error", err)
	} else {
		defer consumer.Close()
		ledger := app.NewLedgerConsumer(repository, logger)
		bindings := map[string]rabbitmq.MessageHandler{
			app.EventLedgerUpdated: ledger.HandleMessage,
		}
		if err := consumer.ConsumeWithBindings(ctx, cfg.EventsExchange, cfg.LedgerQueue, bindings); err != nil {
			logger.Error("ledger consumer start failed", "error", err)
			os.Exit(1)
		}
		logger.Info("ledger consumer started", "queue", cfg.LedgerQueue)
	}

	jobs := app.NewJobs(repository, publisher, logger, cfg.EventsExchange, cfg.ReviewOverdueAfter)
	scheduler := app.NewScheduler(jobs, logger, cfg.ReviewReminderSchedule)
	if err := scheduler.Start(); err != nil {
		logger.Warn("review reminders disabled", "error", err)
	}

	handlers := api.NewAgentHandlers(service, logger)
	router := api.AgentRoutes(handlers, api.RouterConfig{
		Auth: session.AuthConfig{
			JWKSURL:             cfg.ClerkJWKSURL,
			ExpectedAudience:    cfg.ClerkAudience,
			ExpectedIssuer:      cfg.ClerkIssuer,
			AllowHeaderFallback: cfg.AllowHeaderAuth,
		},
		InternalAPIKey: cfg.InternalAPIKey,
		AllowedOrigins: []string{cfg.LinkBaseURL},
	}, logger)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.ServerPort),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("agent-service listening", "addr", server.Addr)
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
	<-scheduler.Stop().Done()
	logger.Info("shutdown complete")
}

// connectRedis returns nil when Redis is not configured or unreachable; the
// submission limit is then disabled.
func connectRedis(ctx context.Context, redisURL string, logger *slog.Logger) *redis.Client {
	if redisURL == "" {
		logger.Warn("redis url missing; submission rate limiting disabled", "env", "REDIS_URL")
		return nil
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		logger.Warn("redis url parse failed; submission rate limiting disabled", "error", err)
		return nil
	}

	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn("redis ping failed; submission rate limiting disabled", "error", err)
		_ = client.Close()
		return nil
	}

	logger.Info("redis connected")
	return client
}
