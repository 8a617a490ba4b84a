package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go-simpler.org/env"
)

const minAdminAPIKeyLength = 16

var (
	appEnvs   = []string{"development", "staging", "production"}
	logLevels = []string{"debug", "info", "warn", "error"}
)

type Config struct {
	AppEnv         string `env:"APP_ENV" default:"development"`
	Port           string `env:"PORT" default:"8080"`
	AppURL         string `env:"APP_URL" default:"http://localhost:8080"`
	AllowedOrigins string `env:"ALLOWED_ORIGINS"`
	DatabaseURL    string `env:"DATABASE_URL"`
	RedisURL       string `env:"REDIS_URL"`
	AdminAPIKey    string `env:"ADMIN_API_KEY"`
	LogLevel       string `env:"LOG_LEVEL" default:"info"`
	LogFormat      string `env:"LOG_FORMAT" default:"text"`

	BindingCacheTTL      time.Duration `env:"BINDING_CACHE_TTL" default:"10s"`
	PublicRateLimit      float64       `env:"PUBLIC_RATE_LIMIT" default:"10"`
	PublicRateBurst      int           `env:"PUBLIC_RATE_BURST" default:"20"`
	MaxClientsPerChannel int           `env:"MAX_CLIENTS_PER_CHANNEL" default:"500"`
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	var cfg Config
	if err := env.Load(&cfg, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// IsDevelopment reports whether the app runs with development defaults.
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

// ExtraOrigins returns the comma-separated ALLOWED_ORIGINS as a list.
func (c *Config) ExtraOrigins() []string {
	var origins []string
	for o := range strings.SplitSeq(c.AllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}

// validate reports every problem at once, so a misconfigured deployment
// is fixed in one round trip.
func validate(cfg *Config) error {
	var errs []error
	fail := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	for _, r := range []struct{ name, value string }{
		{"DATABASE_URL", cfg.DatabaseURL},
		{"REDIS_URL", cfg.RedisURL},
		{"ADMIN_API_KEY", cfg.AdminAPIKey},
	} {
		if r.value == "" {
			fail("%s is required", r.name)
		}
	}
	if cfg.AdminAPIKey != "" && len(cfg.AdminAPIKey) < minAdminAPIKeyLength {
		fail("ADMIN_API_KEY must be at least %d characters", minAdminAPIKeyLength)
	}

	if !slices.Contains(appEnvs, cfg.AppEnv) {
		fail("APP_ENV must be one of %s, got %q", strings.Join(appEnvs, ", "), cfg.AppEnv)
	}
	if !slices.Contains(logLevels, strings.ToLower(cfg.LogLevel)) {
		fail("LOG_LEVEL must be one of %s, got %q", strings.Join(logLevels, ", "), cfg.LogLevel)
	}
	if f := strings.ToLower(cfg.LogFormat); f != "text" && f != "json" {
		fail("LOG_FORMAT must be text or json, got %q", cfg.LogFormat)
	}
	if u, err := url.Parse(cfg.AppURL); err != nil || u.Scheme == "" || u.Host == "" {
		fail("APP_URL must be an absolute URL, got %q", cfg.AppURL)
	}

	if cfg.BindingCacheTTL <= 0 {
		fail("BINDING_CACHE_TTL must be positive")
	}
	if cfg.PublicRateLimit <= 0 {
		fail("PUBLIC_RATE_LIMIT must be positive")
	}
	if cfg.PublicRateBurst <= 0 {
		fail("PUBLIC_RATE_BURST must be positive")
	}
	if cfg.MaxClientsPerChannel < 0 {
		fail("MAX_CLIENTS_PER_CHANNEL must not be negative")
	}

	if cfg.AppEnv == "production" {
		if mode := sslMode(cfg.DatabaseURL); mode == "disable" || mode == "allow" {
			fail("DATABASE_URL uses sslmode=%s which is not allowed in production", mode)
		}
	}

	return errors.Join(errs...)
}

func sslMode(databaseURL string) string {
	u, err := url.Parse(databaseURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Query().Get("sslmode"))
}
