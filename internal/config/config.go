// Package config loads application configuration from environment variables,
// optionally seeded from a .env file.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/kurosawa-kuro/fullstack-openapi-js-poc/internal/utils"
)

const (
	MinBcryptCost = 10
	MaxBcryptCost = 15
)

// Config holds all runtime configuration values.
type Config struct {
	Env  string `env:"APP_ENV" envDefault:"dev"`
	Port string `env:"APP_PORT" envDefault:"8080"`

	// DataFile is the JSON document backing every store.
	DataFile string `env:"DATA_FILE" envDefault:"data/db.json"`

	JWTSecret        string `env:"JWT_SECRET"`
	AccessTTLSeconds int    `env:"ACCESS_TOKEN_TTL_SECONDS" envDefault:"3600"`
	ResetTTLSeconds  int    `env:"RESET_TOKEN_TTL_SECONDS" envDefault:"3600"`
	BcryptCost       int    `env:"BCRYPT_COST" envDefault:"12"`

	AuthProvider            string        `env:"AUTH_PROVIDER" envDefault:"local"`
	IdentityProviderURL     string        `env:"IDENTITY_PROVIDER_URL"`
	IdentityProviderTimeout time.Duration `env:"IDENTITY_PROVIDER_TIMEOUT" envDefault:"5s"`

	RabbitMQURL         string        `env:"RABBITMQ_URL"`
	MailConsumerEnabled bool          `env:"MAIL_CONSUMER_ENABLED" envDefault:"false"`
	MailLogDir          string        `env:"MAIL_LOG_DIR" envDefault:"logs"`
	SweepInterval       time.Duration `env:"SWEEP_INTERVAL" envDefault:"15m"`

	RateLimit RateLimitConfig
	Redis     RedisConfig
}

// AccessTTL is the access token lifetime.
func (c Config) AccessTTL() time.Duration { return time.Duration(c.AccessTTLSeconds) * time.Second }

// ResetTTL is the password reset token lifetime.
func (c Config) ResetTTL() time.Duration { return time.Duration(c.ResetTTLSeconds) * time.Second }

// Load reads .env when present, parses the environment and validates the
// result. Callers treat an error as fatal.
func Load() (Config, error) {
	_ = godotenv.Load()
	return FromEnv()
}

// FromEnv parses and validates the current environment.
func FromEnv() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	cfg.RateLimit = cfg.RateLimit.normalize()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects settings the service cannot start with.
func (c Config) Validate() error {
	var errs []error
	if len(c.JWTSecret) < utils.MinSecretLen {
		errs = append(errs, fmt.Errorf("JWT_SECRET must be at least %d bytes", utils.MinSecretLen))
	}
	if c.BcryptCost < MinBcryptCost || c.BcryptCost > MaxBcryptCost {
		errs = append(errs, fmt.Errorf("BCRYPT_COST must be within [%d,%d]", MinBcryptCost, MaxBcryptCost))
	}
	if c.AccessTTLSeconds <= 0 {
		errs = append(errs, errors.New("ACCESS_TOKEN_TTL_SECONDS must be positive"))
	}
	if c.ResetTTLSeconds <= 0 {
		errs = append(errs, errors.New("RESET_TOKEN_TTL_SECONDS must be positive"))
	}
	if c.DataFile == "" {
		errs = append(errs, errors.New("DATA_FILE must not be empty"))
	}
	switch c.AuthProvider {
	case "local":
	case "federated":
		if c.IdentityProviderURL == "" {
			errs = append(errs, errors.New("IDENTITY_PROVIDER_URL is required when AUTH_PROVIDER=federated"))
		}
	default:
		errs = append(errs, fmt.Errorf("AUTH_PROVIDER %q is not one of local, federated", c.AuthProvider))
	}
	if c.MailConsumerEnabled && c.RabbitMQURL == "" {
		errs = append(errs, errors.New("MAIL_CONSUMER_ENABLED requires RABBITMQ_URL"))
	}
	return errors.Join(errs...)
}
