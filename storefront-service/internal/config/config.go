/**
 * @description
 * Configuration for the storefront-service, read from environment variables
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

// Config holds all the configuration variables for the storefront-service.
type Config struct {
	ServerPort            string        `mapstructure:"SERVER_PORT"`
	AgentServiceURL       string        `mapstructure:"AGENT_SERVICE_URL"`
	AgentServiceTimeout   time.Duration `mapstructure:"AGENT_SERVICE_TIMEOUT"`
	PublicStorefrontURL   string        `mapstructure:"PUBLIC_STOREFRONT_URL"`
	ClerkJWKSURL          string        `mapstructure:"CLERK_JWKS_URL"`
	ClerkIssuer           string        `mapstructure:"CLERK_ISSUER"`
	ClerkAudience         string        `mapstructure:"CLERK_AUDIENCE"`
	SessionCookieName     string        `mapstructure:"SESSION_COOKIE_NAME"`
	AllowHeaderAuth       bool          `mapstructure:"ALLOW_HEADER_AUTH"`
	SignInPath            string        `mapstructure:"SIGN_IN_PATH"`
	WorkspaceIdleTTL      time.Duration `mapstructure:"WORKSPACE_IDLE_TTL"`
	MutationRatePerSecond float64       `mapstructure:"MUTATION_RATE_PER_SECOND"`
	MutationBurst         int           `mapstructure:"MUTATION_BURST"`
}

// LoadConfig reads configuration from the environment, with an optional .env in path.
func LoadConfig(path string) (config Config, err error) {
	viper.AddConfigPath(path)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	viper.SetDefault("SERVER_PORT", "8090")
	viper.SetDefault("AGENT_SERVICE_URL", "http://localhost:8091")
	viper.SetDefault("AGENT_SERVICE_TIMEOUT", "10s")
	viper.SetDefault("PUBLIC_STOREFRONT_URL", "https://multimart.co.zw")
	viper.SetDefault("SESSION_COOKIE_NAME", "__session")
	viper.SetDefault("ALLOW_HEADER_AUTH", false)
	viper.SetDefault("SIGN_IN_PATH", "/sign-in")
	viper.SetDefault("WORKSPACE_IDLE_TTL", "30m")
	viper.SetDefault("MUTATION_RATE_PER_SECOND", 2.0)
	viper.SetDefault("MUTATION_BURST", 5)

	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("PORT")
	_ = viper.BindEnv("AGENT_SERVICE_URL")
	_ = viper.BindEnv("AGENT_SERVICE_TIMEOUT")
	_ = viper.BindEnv("PUBLIC_STOREFRONT_URL")
	_ = viper.BindEnv("CLERK_JWKS_URL")
	_ = viper.BindEnv("CLERK_ISSUER")
	_ = viper.BindEnv("CLERK_AUDIENCE")
	_ = viper.BindEnv("SESSION_COOKIE_NAME")
	_ = viper.BindEnv("ALLOW_HEADER_AUTH")
	_ = viper.BindEnv("SIGN_IN_PATH")
	_ = viper.BindEnv("WORKSPACE_IDLE_TTL")
	_ = viper.BindEnv("MUTATION_RATE_PER_SECOND")
	_ = viper.BindEnv("MUTATION_BURST")

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
	config.AgentServiceURL = strings.TrimRight(strings.TrimSpace(config.AgentServiceURL), "/")
	config.PublicStorefrontURL = strings.TrimSpace(config.PublicStorefrontURL)
	if config.AgentServiceTimeout <= 0 {
		config.AgentServiceTimeout = 10 * time.Second
	}
	if config.WorkspaceIdleTTL <= 0 {
		config.WorkspaceIdleTTL = 30 * time.Minute
	}
	if config.MutationRatePerSecond <= 0 {
		config.MutationRatePerSecond = 2
	}
	if config.MutationBurst <= 0 {
		config.MutationBurst = 5
	}
	if strings.TrimSpace(config.SignInPath) == "" {
		config.SignInPath = "/sign-in"
	}

	return
}
