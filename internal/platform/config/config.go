package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go-simpler.org/env"
)

type Config struct {
	AppEnv      string `env:"APP_ENV" default:"development"`
	Port        string `env:"PORT" default:"8080"`
	DatabaseURL string `env:"DATABASE_URL"`
	RedisURL    string `env:"REDIS_URL"`
	LogLevel    string `env:"LOG_LEVEL" default:"info"`
	LogFormat   string `env:"LOG_FORMAT" default:"text"`

	// Optional secrets. An empty value disables the feature that needs it.
	WebhookSecret      string `env:"WEBHOOK_SECRET"`
	TokenEncryptionKey string `env:"TOKEN_ENCRYPTION_KEY"`
	TelegramBotToken   string `env:"TELEGRAM_BOT_TOKEN"`

	IdentityAPIBase string        `env:"IDENTITY_API_BASE"`
	IdentityTimeout time.Duration `env:"IDENTITY_TIMEOUT" default:"10s"`

	AuthCookieName     string        `env:"AUTH_COOKIE_NAME" default:"token"`
	ProfileCacheTTL    time.Duration `env:"PROFILE_CACHE_TTL" default:"5m"`
	ProfileCachePrefix string        `env:"PROFILE_CACHE_PREFIX" default:"auth:profile:"`
	ProfileDigestKey   string        `env:"PROFILE_DIGEST_KEY"`

	QueuePrefix       string        `env:"QUEUE_PREFIX" default:"queue:stream-events"`
	WorkerID          string        `env:"WORKER_ID"`
	WorkerConcurrency int           `env:"WORKER_CONCURRENCY" default:"3"`
	JobAttempts       int           `env:"JOB_ATTEMPTS" default:"3"`
	JobBackoff        time.Duration `env:"JOB_BACKOFF" default:"5s"`
	JobBackoffMax     time.Duration `env:"JOB_BACKOFF_MAX" default:"5m"`
	DeliveryTimeout   time.Duration `env:"DELIVERY_TIMEOUT" default:"15s"`

	TelegramAPIEndpoint string `env:"TELEGRAM_API_ENDPOINT" default:"https://api.telegram.org/bot%s/%s"`
	StreamURLTemplate   string `env:"STREAM_URL_TEMPLATE" default:"https://twitch.tv/{channel_slug}"`
	ProfileURLTemplate  string `env:"PROFILE_URL_TEMPLATE" default:"https://memelab.ru/{channel_slug}"`

	APIRateLimit float64 `env:"API_RATE_LIMIT" default:"10"`
	APIRateBurst int     `env:"API_RATE_BURST" default:"20"`
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
		return nil, err
	}

	return &cfg, nil
}

// IsProduction reports whether APP_ENV is production.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.AppEnv, "production")
}

func validate(cfg *Config) error {
	required := []struct{ name, value string }{
		{"DATABASE_URL", cfg.DatabaseURL},
		{"REDIS_URL", cfg.RedisURL},
		{"IDENTITY_API_BASE", cfg.IdentityAPIBase},
	}
	for _, r := range required {
		if r.value == "" {
			return fmt.Errorf("%s is required", r.name)
		}
	}

	base, err := url.Parse(cfg.IdentityAPIBase)
	if err != nil || (base.Scheme != "http" && base.Scheme != "https") || base.Host == "" {
		return errors.New("IDENTITY_API_BASE must be an absolute http(s) URL")
	}

	if cfg.WorkerConcurrency < 1 {
		return errors.New("WORKER_CONCURRENCY must be at least 1")
	}
	if cfg.JobAttempts < 1 {
		return errors.New("JOB_ATTEMPTS must be at least 1")
	}
	if cfg.JobBackoff <= 0 || cfg.JobBackoffMax < cfg.JobBackoff {
		return errors.New("JOB_BACKOFF must be positive and not exceed JOB_BACKOFF_MAX")
	}
	if cfg.IdentityTimeout <= 0 || cfg.DeliveryTimeout <= 0 {
		return errors.New("IDENTITY_TIMEOUT and DELIVERY_TIMEOUT must be positive")
	}
	if cfg.ProfileCacheTTL <= 0 {
		return errors.New("PROFILE_CACHE_TTL must be positive")
	}
	if cfg.AuthCookieName == "" {
		return errors.New("AUTH_COOKIE_NAME must not be empty")
	}
	if strings.Count(cfg.TelegramAPIEndpoint, "%s") != 2 {
		return errors.New("TELEGRAM_API_ENDPOINT must contain two %s verbs (token, method)")
	}

	if cfg.IsProduction() {
		if err := checkSSLMode(cfg.DatabaseURL); err != nil {
			return err
		}
	}

	return nil
}

func checkSSLMode(databaseURL string) error {
	u, err := url.Parse(databaseURL)
	if err != nil {
		return fmt.Errorf("DATABASE_URL is not a valid URL: %w", err)
	}
	mode := strings.ToLower(u.Query().Get("sslmode"))
	if mode == "disable" || mode == "allow" {
		return fmt.Errorf("DATABASE_URL uses sslmode=%s which is not allowed in production", mode)
	}
	return nil
}
