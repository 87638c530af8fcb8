// Package config reads service settings from the environment and an optional .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"task-tracker/tasks-service/services"

	"github.com/joho/godotenv"
)

const (
	StoreMongo  = "mongo"
	StoreMemory = "memory"
)

type Config struct {
	ServerPort           string
	StoreKind            string
	MongoURI             string
	MongoDBName          string
	MongoCollection      string
	MongoUsersDB         string
	MongoUsersCollection string
	JWTSecret            string
	RedisURL             string
	UserCacheTTL         time.Duration
	RateLimitPerMinute   int64
	StatsScope           services.StatsScope
	CORSOrigin           string
	LogFile              string
	LogLevel             string
	AppEnv               string
	ShutdownTimeout      time.Duration
}

// Development reports whether internal error details may be returned to clients.
func (c *Config) Development() bool {
	return c.AppEnv == "development"
}

// Load reads envFile if it exists, then the process environment. Variables already set in
// the environment take precedence over the file.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
		}
	}
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from getenv, applying defaults and validating every value.
func FromEnv(getenv func(string) string) (*Config, error) {
	get := func(key, def string) string {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			return v
		}
		return def
	}

	cfg := &Config{
		ServerPort:           get("SERVER_PORT", "8002"),
		StoreKind:            strings.ToLower(get("STORE", StoreMongo)),
		MongoURI:             get("MONGO_URI", ""),
		MongoDBName:          get("MONGO_DB_NAME", "tasks_db"),
		MongoCollection:      get("MONGO_COLLECTION", "tasks"),
		MongoUsersDB:         get("MONGO_USERS_DB", "users"),
		MongoUsersCollection: get("MONGO_USERS_COLLECTION", "users"),
		JWTSecret:            getenv("JWT_SECRET"),
		RedisURL:             get("REDIS_URL", ""),
		CORSOrigin:           get("CORS_ORIGIN", "*"),
		LogFile:              get("LOG_FILE", ""),
		LogLevel:             strings.ToLower(get("LOG_LEVEL", "info")),
		AppEnv:               strings.ToLower(get("APP_ENV", "production")),
	}

	var errs []error
	var err error

	if _, err := strconv.Atoi(cfg.ServerPort); err != nil {
		errs = append(errs, fmt.Errorf("SERVER_PORT must be a number, got %q", cfg.ServerPort))
	}
	switch cfg.StoreKind {
	case StoreMongo:
		if cfg.MongoURI == "" {
			errs = append(errs, errors.New("MONGO_URI is required when STORE=mongo"))
		}
	case StoreMemory:
	default:
		errs = append(errs, fmt.Errorf("STORE must be %q or %q, got %q", StoreMongo, StoreMemory, cfg.StoreKind))
	}
	if cfg.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}

	if cfg.UserCacheTTL, err = time.ParseDuration(get("USER_CACHE_TTL", "5m")); err != nil || cfg.UserCacheTTL <= 0 {
		errs = append(errs, fmt.Errorf("USER_CACHE_TTL must be a positive duration, got %q", getenv("USER_CACHE_TTL")))
	}
	if cfg.ShutdownTimeout, err = time.ParseDuration(get("SHUTDOWN_TIMEOUT", "30s")); err != nil || cfg.ShutdownTimeout <= 0 {
		errs = append(errs, fmt.Errorf("SHUTDOWN_TIMEOUT must be a positive duration, got %q", getenv("SHUTDOWN_TIMEOUT")))
	}
	if cfg.RateLimitPerMinute, err = strconv.ParseInt(get("RATE_LIMIT_PER_MINUTE", "120"), 10, 64); err != nil || cfg.RateLimitPerMinute < 0 {
		errs = append(errs, fmt.Errorf("RATE_LIMIT_PER_MINUTE must be a non-negative integer, got %q", getenv("RATE_LIMIT_PER_MINUTE")))
	}
	if cfg.StatsScope, err = services.ParseStatsScope(strings.ToLower(get("STATS_SCOPE", string(services.StatsScopeGlobal)))); err != nil {
		errs = append(errs, fmt.Errorf("STATS_SCOPE: %w", err))
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return cfg, nil
}
