// Package config provides application configuration loading.
// This is part of the platform layer and contains no business logic.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// =============================================================================
// Module-Specific Config Interfaces (Principle of Least Privilege)
// =============================================================================

// DatabaseConfig provides database connection settings.
type DatabaseConfig interface {
	GetDatabaseURL() string
}

// MigrationConfig provides the location of SQL migrations.
type MigrationConfig interface {
	DatabaseConfig
	GetMigrationsDir() string
}

// JWTConfig provides JWT validation settings for middleware.
type JWTConfig interface {
	GetJWTAccessSecret() string
}

// HTTPConfig provides settings for the HTTP server.
type HTTPConfig interface {
	GetHTTPAddr() string
	GetCORSAllowAll() bool
	GetCORSOrigins() []string
	GetCORSAllowCreds() bool
}

// RedisConfig provides the Redis connection used for sync status.
type RedisConfig interface {
	GetRedisURL() string
	GetRedisTLSInsecure() bool
}

// SchedulerConfig provides settings for the asynq task queue.
type SchedulerConfig interface {
	RedisConfig
	GetAsynqQueueName() string
	GetAsynqConcurrency() int
}

// Processes that can own scheduled provider sync (PROVIDER_SYNC_OWNER).
const (
	SyncOwnerAPI       = "api"
	SyncOwnerScheduler = "scheduler"
)

// SyncConfig provides settings for provider catalog synchronization.
type SyncConfig interface {
	IsProviderSyncEnabled() bool
	GetProviderSyncOwner() string
	OwnsProviderSync(process string) bool
	GetProviderSyncInterval() time.Duration
	GetProviderSyncOnStart() bool
	GetProviderFetchTimeout() time.Duration
	GetProviderSyncParallelism() int
	GetPricingMarginsFile() string
}

// DigiflazzConfig provides credentials for the Digiflazz price list API.
type DigiflazzConfig interface {
	GetDigiflazzUsername() string
	GetDigiflazzAPIKey() string
	GetDigiflazzBaseURL() string
	GetDigiflazzRatePerMinute() int
	IsDigiflazzEnabled() bool
}

// =============================================================================
// Main Config Struct
// =============================================================================

// Config holds all application configuration values.
type Config struct {
	Env                     string
	HTTPAddr                string
	DatabaseURL             string
	MigrationsDir           string
	JWTAccessSecret         string
	CORSAllowAll            bool
	CORSOrigins             []string
	CORSAllowCreds          bool
	RedisURL                string
	RedisTLSInsecure        bool
	AsynqQueueName          string
	AsynqConcurrency        int
	ProviderSyncEnabled     bool
	ProviderSyncOwner       string
	ProviderSyncInterval    time.Duration
	ProviderSyncOnStart     bool
	ProviderFetchTimeout    time.Duration
	ProviderSyncParallelism int
	PricingMarginsFile      string
	DigiflazzUsername       string
	DigiflazzAPIKey         string
	DigiflazzBaseURL        string
	DigiflazzRatePerMinute  int
}

// =============================================================================
// Interface Implementations
// =============================================================================

// DatabaseConfig implementation
func (c *Config) GetDatabaseURL() string   { return c.DatabaseURL }
func (c *Config) GetMigrationsDir() string { return c.MigrationsDir }

// JWTConfig implementation
func (c *Config) GetJWTAccessSecret() string { return c.JWTAccessSecret }

// HTTPConfig implementation
func (c *Config) GetHTTPAddr() string      { return c.HTTPAddr }
func (c *Config) GetCORSAllowAll() bool    { return c.CORSAllowAll }
func (c *Config) GetCORSOrigins() []string { return c.CORSOrigins }
func (c *Config) GetCORSAllowCreds() bool  { return c.CORSAllowCreds }

// RedisConfig / SchedulerConfig implementation
func (c *Config) GetRedisURL() string       { return c.RedisURL }
func (c *Config) GetRedisTLSInsecure() bool { return c.RedisTLSInsecure }
func (c *Config) GetAsynqQueueName() string { return c.AsynqQueueName }
func (c *Config) GetAsynqConcurrency() int  { return c.AsynqConcurrency }

// SyncConfig implementation
func (c *Config) IsProviderSyncEnabled() bool            { return c.ProviderSyncEnabled }
func (c *Config) GetProviderSyncOwner() string           { return c.ProviderSyncOwner }
func (c *Config) GetProviderSyncInterval() time.Duration { return c.ProviderSyncInterval }
func (c *Config) GetProviderSyncOnStart() bool           { return c.ProviderSyncOnStart }
func (c *Config) GetProviderFetchTimeout() time.Duration { return c.ProviderFetchTimeout }
func (c *Config) GetProviderSyncParallelism() int        { return c.ProviderSyncParallelism }
func (c *Config) GetPricingMarginsFile() string          { return c.PricingMarginsFile }

// DigiflazzConfig implementation
func (c *Config) GetDigiflazzUsername() string   { return c.DigiflazzUsername }
func (c *Config) GetDigiflazzAPIKey() string     { return c.DigiflazzAPIKey }
func (c *Config) GetDigiflazzBaseURL() string    { return c.DigiflazzBaseURL }
func (c *Config) GetDigiflazzRatePerMinute() int { return c.DigiflazzRatePerMinute }

// OwnsProviderSync reports whether process runs the sync loop and the queue
// worker. Exactly one process kind owns them.
func (c *Config) OwnsProviderSync(process string) bool {
	return c.ProviderSyncEnabled && c.ProviderSyncOwner == process
}

func (c *Config) IsDigiflazzEnabled() bool {
	return c.DigiflazzUsername != "" && c.DigiflazzAPIKey != ""
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	_ = godotenv.Load()

	corsOrigins := splitCSV(getEnv("CORS_ORIGINS", "http://localhost:4200"))
	corsAllowAll := strings.EqualFold(getEnv("CORS_ALLOW_ALL", "false"), "true")
	if containsWildcard(corsOrigins) {
		corsAllowAll = true
	}

	var env envParser
	cfg := &Config{
		Env:                     getEnv("APP_ENV", "development"),
		HTTPAddr:                getEnv("HTTP_ADDR", ":8080"),
		DatabaseURL:             getEnv("DATABASE_URL", ""),
		MigrationsDir:           getEnv("MIGRATIONS_DIR", "migrations"),
		JWTAccessSecret:         getEnv("JWT_ACCESS_SECRET", ""),
		CORSAllowAll:            corsAllowAll,
		CORSOrigins:             corsOrigins,
		CORSAllowCreds:          strings.EqualFold(getEnv("CORS_ALLOW_CREDENTIALS", "true"), "true"),
		RedisURL:                getEnv("REDIS_URL", ""),
		RedisTLSInsecure:        strings.EqualFold(getEnv("REDIS_TLS_INSECURE", "false"), "true"),
		AsynqQueueName:          getEnv("ASYNQ_QUEUE", "default"),
		AsynqConcurrency:        env.integer("ASYNQ_CONCURRENCY", "10"),
		ProviderSyncEnabled:     strings.EqualFold(getEnv("PROVIDER_SYNC_ENABLED", "true"), "true"),
		ProviderSyncOwner:       strings.ToLower(strings.TrimSpace(getEnv("PROVIDER_SYNC_OWNER", SyncOwnerAPI))),
		ProviderSyncInterval:    env.duration("PROVIDER_SYNC_INTERVAL", "2m"),
		ProviderSyncOnStart:     strings.EqualFold(getEnv("PROVIDER_SYNC_ON_START", "false"), "true"),
		ProviderFetchTimeout:    env.duration("PROVIDER_FETCH_TIMEOUT", "30s"),
		ProviderSyncParallelism: env.integer("PROVIDER_SYNC_PARALLELISM", "4"),
		PricingMarginsFile:      getEnv("PRICING_MARGINS_FILE", ""),
		DigiflazzUsername:       getEnv("DIGIFLAZZ_USERNAME", ""),
		DigiflazzAPIKey:         getEnv("DIGIFLAZZ_API_KEY", ""),
		DigiflazzBaseURL:        getEnv("DIGIFLAZZ_BASE_URL", "https://api.digiflazz.com"),
		DigiflazzRatePerMinute:  env.integer("DIGIFLAZZ_RATE_PER_MINUTE", "6"),
	}

	if err := errors.Join(env.errs...); err != nil {
		return nil, err
	}
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.JWTAccessSecret == "" {
		return nil, fmt.Errorf("JWT_ACCESS_SECRET is required")
	}
	if cfg.CORSAllowAll && cfg.CORSAllowCreds {
		return nil, fmt.Errorf("CORS_ALLOW_CREDENTIALS cannot be true when CORS_ALLOW_ALL is true")
	}
	if cfg.ProviderSyncEnabled && cfg.ProviderSyncInterval <= 0 {
		return nil, fmt.Errorf("PROVIDER_SYNC_INTERVAL must be a positive duration")
	}
	if cfg.ProviderSyncOwner != SyncOwnerAPI && cfg.ProviderSyncOwner != SyncOwnerScheduler {
		return nil, fmt.Errorf("PROVIDER_SYNC_OWNER must be %q or %q", SyncOwnerAPI, SyncOwnerScheduler)
	}
	if cfg.ProviderFetchTimeout <= 0 {
		return nil, fmt.Errorf("PROVIDER_FETCH_TIMEOUT must be a positive duration")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

// envParser reads typed values and collects every malformed one.
type envParser struct {
	errs []error
}

func (p *envParser) duration(key, fallback string) time.Duration {
	raw := strings.TrimSpace(getEnv(key, fallback))
	d, err := time.ParseDuration(raw)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: invalid duration %q", key, raw))
		return 0
	}
	return d
}

func (p *envParser) integer(key, fallback string) int {
	raw := strings.TrimSpace(getEnv(key, fallback))
	n, err := strconv.Atoi(raw)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: invalid integer %q", key, raw))
		return 0
	}
	return n
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	results := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			results = append(results, trimmed)
		}
	}
	return results
}

func containsWildcard(values []string) bool {
	for _, value := range values {
		if value == "*" {
			return true
		}
	}
	return false
}
