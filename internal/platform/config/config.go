package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

type Config struct {
	Addr        string `env:"APP_ADDR"    envDefault:":8080"`
	Environment string `env:"APP_ENV"     envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL"   envDefault:"info"`
	LogFormat   string `env:"LOG_FORMAT"  envDefault:"json"`

	JWTSecret         string        `env:"JWT_SECRET"`
	SessionTTL        time.Duration `env:"SESSION_TTL"          envDefault:"8h"`
	CookieName        string        `env:"SESSION_COOKIE_NAME"  envDefault:"hrportal_session"`
	CookieSecure      bool          `env:"SESSION_COOKIE_SECURE" envDefault:"false"`
	DataEncryptionKey string        `env:"DATA_ENCRYPTION_KEY"`
	AccessPolicyFile  string        `env:"ACCESS_POLICY_FILE"`

	DirectoryBackend string `env:"DIRECTORY_BACKEND" envDefault:"memory"`
	SessionBackend   string `env:"SESSION_BACKEND"   envDefault:"memory"`
	AuditBackend     string `env:"AUDIT_BACKEND"     envDefault:"log"`
	DatabaseURL      string `env:"DATABASE_URL"`
	RedisURL         string `env:"REDIS_URL"`
	RedisKeyPrefix   string `env:"REDIS_KEY_PREFIX"  envDefault:"hrportal:session:"`
	MigrationsDir    string `env:"MIGRATIONS_DIR"`
	RunMigrations    bool   `env:"RUN_MIGRATIONS"    envDefault:"true"`
	SeedDemoAccounts bool   `env:"SEED_DEMO_ACCOUNTS" envDefault:"true"`
	DemoAdminMFA     string `env:"DEMO_ADMIN_MFA_SECRET"`

	MaxBodyBytes         int64         `env:"MAX_BODY_BYTES"         envDefault:"1048576"`
	RateLimitPerMinute   int           `env:"RATE_LIMIT_PER_MINUTE"  envDefault:"60"`
	LoginLimitPerMinute  int           `env:"LOGIN_LIMIT_PER_MINUTE" envDefault:"10"`
	SessionSweepInterval time.Duration `env:"SESSION_SWEEP_INTERVAL" envDefault:"15m"`
	ShutdownTimeout      time.Duration `env:"SHUTDOWN_TIMEOUT"       envDefault:"10s"`
	MetricsEnabled       bool          `env:"METRICS_ENABLED"        envDefault:"true"`
}

// Load reads an optional .env file and then the process environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil {
		var pathErr *os.PathError
		if !errors.As(err, &pathErr) {
			return Config{}, fmt.Errorf("load .env file: %w", err)
		}
	}
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	cfg.normalize()
	return cfg, nil
}

func (c *Config) normalize() {
	c.Environment = strings.ToLower(strings.TrimSpace(c.Environment))
	c.DirectoryBackend = strings.ToLower(strings.TrimSpace(c.DirectoryBackend))
	c.SessionBackend = strings.ToLower(strings.TrimSpace(c.SessionBackend))
	c.AuditBackend = strings.ToLower(strings.TrimSpace(c.AuditBackend))
}

func (c Config) IsProduction() bool {
	return c.Environment == "production"
}

func (c Config) NeedsDatabase() bool {
	return c.DirectoryBackend == BackendPostgres || c.SessionBackend == BackendPostgres || c.AuditBackend == BackendPostgres
}

func (c Config) Validate() error {
	switch c.DirectoryBackend {
	case BackendMemory, BackendPostgres:
	default:
		return fmt.Errorf("DIRECTORY_BACKEND must be memory or postgres, got %q", c.DirectoryBackend)
	}
	switch c.SessionBackend {
	case BackendMemory, BackendPostgres, BackendRedis:
	default:
		return fmt.Errorf("SESSION_BACKEND must be memory, postgres or redis, got %q", c.SessionBackend)
	}
	switch c.AuditBackend {
	case "log", BackendPostgres:
	default:
		return fmt.Errorf("AUDIT_BACKEND must be log or postgres, got %q", c.AuditBackend)
	}
	if c.NeedsDatabase() && strings.TrimSpace(c.DatabaseURL) == "" {
		return fmt.Errorf("DATABASE_URL is required for postgres backends")
	}
	if c.SessionBackend == BackendRedis && strings.TrimSpace(c.RedisURL) == "" {
		return fmt.Errorf("REDIS_URL is required when SESSION_BACKEND is redis")
	}
	if c.IsProduction() {
		if len(strings.TrimSpace(c.JWTSecret)) < 32 {
			return fmt.Errorf("JWT_SECRET must be set to at least 32 characters in production")
		}
		if !c.CookieSecure {
			return fmt.Errorf("SESSION_COOKIE_SECURE must be true in production")
		}
		if c.DirectoryBackend == BackendMemory {
			return fmt.Errorf("DIRECTORY_BACKEND=memory is not allowed in production")
		}
	}
	if strings.TrimSpace(c.CookieName) == "" {
		return fmt.Errorf("SESSION_COOKIE_NAME must not be empty")
	}
	if c.SessionTTL < time.Minute {
		return fmt.Errorf("SESSION_TTL must be at least 1m")
	}
	if c.MaxBodyBytes < 1024 {
		return fmt.Errorf("MAX_BODY_BYTES must be at least 1024")
	}
	if c.RateLimitPerMinute <= 0 || c.LoginLimitPerMinute <= 0 {
		return fmt.Errorf("RATE_LIMIT_PER_MINUTE and LOGIN_LIMIT_PER_MINUTE must be positive")
	}
	if c.SessionSweepInterval <= 0 {
		return fmt.Errorf("SESSION_SWEEP_INTERVAL must be positive")
	}
	return nil
}
