package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

type AppConfig struct {
	Port               string
	DatabaseURL        string
	StoreDriver        string
	ClerkSecretKey     string
	ClerkWebhookSecret string
	RedisAddr          string
	StreakLocation     *time.Location
	SweepInterval      time.Duration
	SweepConcurrency   int
	FCMCredentialsJSON string
	FCMKeyFile         string
	MetricsUser        string
	MetricsPass        string
	PprofSecret        string
}

// Load reads .env (if present) and the process environment.
func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}
	return FromEnv()
}

// FromEnv builds the config from the current environment only.
func FromEnv() (*AppConfig, error) {
	cfg := &AppConfig{
		Port:               getEnv("PORT", "3333"),
		DatabaseURL:        getEnv("DATABASE_URL", ""),
		StoreDriver:        strings.ToLower(getEnv("STORE_DRIVER", DriverPostgres)),
		ClerkSecretKey:     getEnv("CLERK_SECRET_KEY", ""),
		ClerkWebhookSecret: getEnv("CLERK_WEBHOOK_SECRET", ""),
		RedisAddr:          getEnv("REDIS_ADDR", ""),
		FCMCredentialsJSON: getEnv("FCM_SERVICE_ACCOUNT_JSON", ""),
		FCMKeyFile:         getEnv("FCM_KEY_FILE", "./serviceAccountKey.json"),
		MetricsUser:        getEnv("METRICS_USER", ""),
		MetricsPass:        getEnv("METRICS_PASS", ""),
		PprofSecret:        getEnv("PPROF_SECRET", ""),
	}

	switch cfg.StoreDriver {
	case DriverPostgres:
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL environment variable is not set")
		}
	case DriverMemory:
	default:
		return nil, fmt.Errorf("STORE_DRIVER must be %q or %q, got %q", DriverPostgres, DriverMemory, cfg.StoreDriver)
	}

	loc, err := time.LoadLocation(getEnv("STREAK_TIMEZONE", "UTC"))
	if err != nil {
		return nil, fmt.Errorf("invalid STREAK_TIMEZONE: %w", err)
	}
	cfg.StreakLocation = loc

	interval, err := time.ParseDuration(getEnv("SWEEP_INTERVAL", "1m"))
	if err != nil {
		return nil, fmt.Errorf("invalid SWEEP_INTERVAL: %w", err)
	}
	if interval <= 0 {
		return nil, fmt.Errorf("SWEEP_INTERVAL must be positive, got %s", interval)
	}
	cfg.SweepInterval = interval

	concurrency, err := strconv.Atoi(getEnv("SWEEP_CONCURRENCY", "8"))
	if err != nil {
		return nil, fmt.Errorf("invalid SWEEP_CONCURRENCY: %w", err)
	}
	if concurrency < 1 {
		return nil, fmt.Errorf("SWEEP_CONCURRENCY must be at least 1, got %d", concurrency)
	}
	cfg.SweepConcurrency = concurrency

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}
