package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the policy administration server.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Cache    CacheConfig
	Auth     AuthConfig
}

type ServerConfig struct {
	Port          int
	Env           string
	MigrationsDir string
}

type DatabaseConfig struct {
	URL              string
	MaxOpenConns     int
	MaxIdleConns     int
	ConnMaxLifetime  time.Duration
	StatementTimeout time.Duration
	// Isolation is the transaction isolation of every unit of work:
	// serializable, repeatable_read or read_committed.
	Isolation string
}

type RedisConfig struct {
	URL string
}

type CacheConfig struct {
	AuthorizedGroupsTTL time.Duration
	CompiledPolicyTTL   time.Duration
	DeletionTicketTTL   time.Duration
}

type AuthConfig struct {
	RateLimitPerMinute int
	BcryptCost         int
}

var validIsolation = map[string]bool{
	"serializable":    true,
	"repeatable_read": true,
	"read_committed":  true,
}

// Load reads configuration from environment variables and returns a validated Config.
// A .env file (POLICYADMIN_ENV_FILE, default ".env") is loaded first when present;
// variables already set in the environment win.
func Load() (*Config, error) {
	envFile := envString("POLICYADMIN_ENV_FILE", ".env")
	_ = godotenv.Load(envFile)

	cfg := &Config{
		Server: ServerConfig{
			Port:          envInt("POLICYADMIN_PORT", 8080),
			Env:           envString("POLICYADMIN_ENV", "development"),
			MigrationsDir: envString("POLICYADMIN_MIGRATIONS_DIR", "migrations"),
		},
		Database: DatabaseConfig{
			URL:              os.Getenv("DATABASE_URL"),
			MaxOpenConns:     envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:     envInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime:  envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
			StatementTimeout: envDuration("DATABASE_STATEMENT_TIMEOUT", 30*time.Second),
			Isolation:        envString("DATABASE_ISOLATION", "serializable"),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		Cache: CacheConfig{
			AuthorizedGroupsTTL: envDuration("POLICYADMIN_GROUPS_CACHE_TTL", 5*time.Minute),
			CompiledPolicyTTL:   envDuration("POLICYADMIN_POLICY_CACHE_TTL", 10*time.Minute),
			DeletionTicketTTL:   envDuration("POLICYADMIN_DELETION_TICKET_TTL", 15*time.Minute),
		},
		Auth: AuthConfig{
			RateLimitPerMinute: envInt("POLICYADMIN_RATE_LIMIT_PER_MINUTE", 120),
			BcryptCost:         envInt("POLICYADMIN_BCRYPT_COST", 12),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if !validIsolation[c.Database.Isolation] {
		return fmt.Errorf("DATABASE_ISOLATION must be one of serializable, repeatable_read, read_committed; got %q", c.Database.Isolation)
	}

	if c.Cache.AuthorizedGroupsTTL <= 0 {
		return fmt.Errorf("POLICYADMIN_GROUPS_CACHE_TTL must be positive")
	}
	if c.Cache.CompiledPolicyTTL <= 0 {
		return fmt.Errorf("POLICYADMIN_POLICY_CACHE_TTL must be positive")
	}
	if c.Cache.DeletionTicketTTL <= 0 {
		return fmt.Errorf("POLICYADMIN_DELETION_TICKET_TTL must be positive")
	}

	if c.Auth.RateLimitPerMinute <= 0 {
		return fmt.Errorf("POLICYADMIN_RATE_LIMIT_PER_MINUTE must be positive, got %d", c.Auth.RateLimitPerMinute)
	}
	if c.Auth.BcryptCost < 4 || c.Auth.BcryptCost > 31 {
		return fmt.Errorf("POLICYADMIN_BCRYPT_COST must be between 4 and 31, got %d", c.Auth.BcryptCost)
	}

	return nil
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
