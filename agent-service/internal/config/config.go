/**
 * @description
 * Configuration for the agent-service. Values come from environment variables
 * (and an optional .env file) through Viper.
 *
 * @dependencies
 * - github.com/spf13/viper: environment binding and defaults.
 */
package config

import (
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all the configuration variables for the agent-service.
type Config struct {
	ServerPort                 string        `mapstructure:"SERVER_PORT"`
	DatabaseURL                string        `mapstructure:"DATABASE_URL"`
	RabbitMQURL                string        `mapstructure:"RABBITMQ_URL"`
	EventsExchange             string        `mapstructure:"EVENTS_EXCHANGE"`
	LedgerQueue                string        `mapstructure:"LEDGER_QUEUE"`
	RedisURL                   string        `mapstructure:"REDIS_URL"`
	RedisRateLimitPrefix       string        `mapstructure:"REDIS_RATE_LIMIT_PREFIX"`
	SubmissionRateLimitPerHour int           `mapstructure:"SUBMISSION_RATE_LIMIT_PER_HOUR"`
	ClerkJWKSURL               string        `mapstructure:"CLERK_JWKS_URL"`
	ClerkIssuer                string        `mapstructure:"CLERK_ISSUER"`
	ClerkAudience              string        `mapstructure:"CLERK_AUDIENCE"`
	AllowHeaderAuth            bool          `mapstructure:"ALLOW_HEADER_AUTH"`
	InternalAPIKey             string        `mapstructure:"INTERNAL_API_KEY"`
	LinkBaseURL                string        `mapstructure:"LINK_BASE_URL"`
	ReviewReminderSchedule     string        `mapstructure:"REVIEW_REMINDER_SCHEDULE"`
	ReviewOverdueAfter         time.Duration `mapstructure:"REVIEW_OVERDUE_AFTER"`
}

// LoadConfig reads configuration from the environment, with an optional .env in path.
func LoadConfig(path string) (config Config, err error) {
	viper.AddConfigPath(path)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	viper.SetDefault("SERVER_PORT", "8091")
	viper.SetDefault("EVENTS_EXCHANGE", "multimart.events")
	viper.SetDefault("LEDGER_QUEUE", "agent_service.ledger_updates")
	viper.SetDefault("REDIS_RATE_LIMIT_PREFIX", "multimart:agent_submissions")
	viper.SetDefault("SUBMISSION_RATE_LIMIT_PER_HOUR", 10)
	viper.SetDefault("ALLOW_HEADER_AUTH", false)
	viper.SetDefault("LINK_BASE_URL", "https://multimart.co.zw")
	viper.SetDefault("REVIEW_REMINDER_SCHEDULE", "0 8 * * *") // Daily at 08:00.
	viper.SetDefault("REVIEW_OVERDUE_AFTER", "72h")

	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("PORT")
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("EVENTS_EXCHANGE")
	_ = viper.BindEnv("LEDGER_QUEUE")
	_ = viper.BindEnv("REDIS_URL", "REDIS_URL", "AGENT_REDIS_URL")
	_ = viper.BindEnv("REDIS_RATE_LIMIT_PREFIX")
	_ = viper.BindEnv("SUBMISSION_RATE_LIMIT_PER_HOUR")
	_ = viper.BindEnv("CLERK_JWKS_URL")
	_ = viper.BindEnv("CLERK_ISSUER")
	_ = viper.BindEnv("CLERK_AUDIENCE")
	_ = viper.BindEnv("ALLOW_HEADER_AUTH")
	_ = viper.BindEnv("INTERNAL_API_KEY", "INTERNAL_API_KEY", "AGENT_SERVICE_INTERNAL_API_KEY")
	_ = viper.BindEnv("LINK_BASE_URL", "LINK_BASE_URL", "PUBLIC_STOREFRONT_URL")
	_ = viper.BindEnv("REVIEW_REMINDER_SCHEDULE")
	_ = viper.BindEnv("REVIEW_OVERDUE_AFTER")

	if err = viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Warn("failed to read config file; using environment values", "error", err)
		}
	}

	if err = viper.Unmarshal(&config); err != nil {
		return
	}

	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		config.ServerPort = port
	}
	config.RedisURL = strings.TrimSpace(config.RedisURL)
	config.RedisRateLimitPrefix = strings.TrimSpace(config.RedisRateLimitPrefix)
	if config.RedisRateLimitPrefix == "" {
		config.RedisRateLimitPrefix = "multimart:agent_submissions"
	}
	config.InternalAPIKey = strings.TrimSpace(config.InternalAPIKey)
	config.LinkBaseURL = strings.TrimRight(strings.TrimSpace(config.LinkBaseURL), "/")
	if config.SubmissionRateLimitPerHour < 0 {
		slog.Warn("negative submission rate limit configured; disabling", "value", config.SubmissionRateLimitPerHour)
		config.SubmissionRateLimitPerHour = 0
	}
	if config.ReviewOverdueAfter <= 0 {
		config.ReviewOverdueAfter = 72 * time.Hour
	}

	return
}
