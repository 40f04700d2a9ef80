package config

import (
	"fmt"
	"time"

	"archie-shopify-session-store/internal/application"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

// Config is the service configuration read from the environment
type Config struct {
	APIKey           string `env:"SHOPIFY_API_KEY"`
	APISecret        string `env:"SHOPIFY_API_SECRET"`
	Scopes           string `env:"SCOPES"`
	AppURL           string `env:"SHOPIFY_APP_URL"`
	ShopCustomDomain string `env:"SHOP_CUSTOM_DOMAIN"`
	APIVersion       string `env:"SHOPIFY_API_VERSION" envDefault:"2025-10"`
	AuthPathPrefix   string `env:"AUTH_PATH_PREFIX" envDefault:"/auth"`

	Port     string `env:"PORT" envDefault:"8080"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	DatabaseDriver  string        `env:"DATABASE_DRIVER" envDefault:"sqlite"`
	DatabaseURL     string        `env:"DATABASE_URL" envDefault:"file:sessions.db"`
	MongoDatabase   string        `env:"MONGODB_DATABASE" envDefault:"shopify"`
	RetryAttempts   int           `env:"DATABASE_RETRY_ATTEMPTS" envDefault:"3"`
	RetryInterval   time.Duration `env:"DATABASE_RETRY_INTERVAL" envDefault:"2s"`
	RedisURL        string        `env:"REDIS_URL"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// Load reads .env when present and parses the environment
func Load(logger zerolog.Logger) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		logger.Warn().Msg("⚠️  Warning: .env file not found")
	}
	return parse(env.Options{})
}

func parse(opts env.Options) (*Config, error) {
	cfg, err := env.ParseAsWithOptions[Config](opts)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}

// Binding converts the configuration into the environment binding the
// Manager captures. The database handle is attached by the caller.
func (c *Config) Binding() application.Binding {
	return application.Binding{
		APIKey:           c.APIKey,
		APISecret:        c.APISecret,
		Scopes:           c.Scopes,
		AppURL:           c.AppURL,
		ShopCustomDomain: c.ShopCustomDomain,
	}
}

// Level returns the zerolog level named by LogLevel, defaulting to info
func (c *Config) Level() zerolog.Level {
	level, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return level
}
