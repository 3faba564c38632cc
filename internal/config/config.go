package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	Env  string `env:"APP_ENV" envDefault:"production"`
	Port string `env:"PORT" envDefault:"3333"`

	DatabaseURL string `env:"DATABASE_URL"`
	StoreDriver string `env:"STORE_DRIVER" envDefault:"postgres"`

	Redis   RedisConfig
	Fetch   FetchConfig
	Ranking RankingConfig
	Refresh RefreshConfig
	Report  ReportConfig
	Email   EmailConfig
	Auth    AuthConfig
	Metrics MetricsConfig
	API     APIConfig

	OTLPEndpoint string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	PprofSecret  string `env:"PPROF_SECRET"`
}

// APIConfig throttles inbound requests per client address.
type APIConfig struct {
	RPS   float64 `env:"API_RATE_LIMIT_RPS" envDefault:"5"`
	Burst int     `env:"API_RATE_LIMIT_BURST" envDefault:"30"`
}

type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB" envDefault:"0"`
}

type FetchConfig struct {
	Workers     int           `env:"FETCH_WORKERS" envDefault:"10"`
	TaskTimeout time.Duration `env:"FETCH_TASK_TIMEOUT" envDefault:"60s"`
	MaxRetries  int           `env:"FETCH_MAX_RETRIES" envDefault:"3"`
	BackoffBase int           `env:"FETCH_BACKOFF_BASE" envDefault:"2"`
	BackoffUnit time.Duration `env:"FETCH_BACKOFF_UNIT" envDefault:"1s"`
	CallTimeout time.Duration `env:"FETCH_CALL_TIMEOUT" envDefault:"10s"`

	// Outbound requests per second allowed against each platform.
	PlatformRPS   float64 `env:"FETCH_PLATFORM_RPS" envDefault:"4"`
	PlatformBurst int     `env:"FETCH_PLATFORM_BURST" envDefault:"4"`
}

type RankingConfig struct {
	TTL      time.Duration `env:"RANKING_TTL" envDefault:"3600s"`
	PageSize int           `env:"LEADERBOARD_PAGE_SIZE" envDefault:"10"`
}

type RefreshConfig struct {
	Window   time.Duration `env:"REFRESH_WINDOW" envDefault:"60s"`
	FailOpen bool          `env:"REFRESH_LIMITER_FAIL_OPEN" envDefault:"false"`
}

type ReportConfig struct {
	Workers     int           `env:"EMAIL_WORKERS" envDefault:"4"`
	TaskTimeout time.Duration `env:"EMAIL_TASK_TIMEOUT" envDefault:"30s"`
	JobSecret   string        `env:"JOB_SECRET"`
	JobTimeout  time.Duration `env:"JOB_TIMEOUT" envDefault:"15m"`
}

type EmailConfig struct {
	Host     string `env:"EMAIL_HOST"`
	Port     int    `env:"EMAIL_PORT" envDefault:"587"`
	Username string `env:"EMAIL_HOST_USER"`
	Password string `env:"EMAIL_HOST_PASSWORD"`
	From     string `env:"DEFAULT_FROM_EMAIL" envDefault:"Skill Tracker <noreply@skilltracker.local>"`
}

type AuthConfig struct {
	ClerkSecretKey     string `env:"CLERK_SECRET_KEY"`
	ClerkWebhookSecret string `env:"CLERK_WEBHOOK_SECRET"`
	FCMCredentialsFile string `env:"FCM_CREDENTIALS_FILE" envDefault:"./serviceAccountKey.json"`
}

type MetricsConfig struct {
	User     string `env:"METRICS_USER"`
	Password string `env:"METRICS_PASS"`
}

// Load reads an optional .env file and then the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects unusable settings and fills defaults for zero values.
func (c *Config) Validate() error {
	switch c.StoreDriver {
	case "postgres":
		if c.DatabaseURL == "" {
			return errors.New("DATABASE_URL is required when STORE_DRIVER=postgres")
		}
	case "memory":
	default:
		return fmt.Errorf("STORE_DRIVER must be postgres or memory, got %q", c.StoreDriver)
	}

	if c.Fetch.Workers <= 0 {
		c.Fetch.Workers = 10
	}
	if c.Fetch.MaxRetries <= 0 {
		return errors.New("FETCH_MAX_RETRIES must be positive")
	}
	if c.Fetch.BackoffBase < 1 {
		c.Fetch.BackoffBase = 2
	}
	if c.Fetch.CallTimeout <= 0 {
		c.Fetch.CallTimeout = 10 * time.Second
	}
	if c.Report.Workers <= 0 {
		c.Report.Workers = 4
	}
	if c.Ranking.TTL <= 0 {
		c.Ranking.TTL = time.Hour
	}
	if c.Ranking.PageSize <= 0 {
		c.Ranking.PageSize = 10
	}
	if c.API.RPS <= 0 {
		c.API.RPS = 5
	}
	if c.API.Burst <= 0 {
		c.API.Burst = 30
	}
	if c.Refresh.Window < time.Second {
		return errors.New("REFRESH_WINDOW must be at least one second")
	}
	return nil
}

func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}
