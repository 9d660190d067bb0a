package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Storage drivers understood by Load.
const (
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
	DriverMemory   = "memory"
)

// Config contains application configuration.
type Config struct {
	HTTPPort        string
	StorageDriver   string
	DatabaseURL     string
	DBAttempts      int
	DBDelay         time.Duration
	TokenSecret     string
	TokenTTL        time.Duration
	LogLevel        string
	ShutdownTimeout time.Duration
}

// Load reads configuration from environment variables and .env.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		HTTPPort:      getenv("HTTP_PORT", "8080"),
		StorageDriver: strings.ToLower(getenv("STORAGE_DRIVER", DriverPostgres)),
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		TokenSecret:   os.Getenv("TOKEN_SECRET"),
		LogLevel:      getenv("LOG_LEVEL", "info"),
	}
	if cfg.TokenSecret == "" {
		cfg.TokenSecret = os.Getenv("JWT_SECRET")
	}

	var err error
	if cfg.DBAttempts, err = intEnv("DB_CONNECT_ATTEMPTS", 10); err != nil {
		return Config{}, err
	}
	if cfg.DBDelay, err = durationEnv("DB_CONNECT_DELAY", 2*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.TokenTTL, err = durationEnv("TOKEN_TTL", 0); err != nil {
		return Config{}, err
	}
	if cfg.ShutdownTimeout, err = durationEnv("SHUTDOWN_TIMEOUT", 10*time.Second); err != nil {
		return Config{}, err
	}

	switch cfg.StorageDriver {
	case DriverPostgres, DriverMySQL:
		if cfg.DatabaseURL == "" {
			return Config{}, fmt.Errorf("DATABASE_URL is required for storage driver %q", cfg.StorageDriver)
		}
	case DriverMemory:
	default:
		return Config{}, fmt.Errorf("unknown STORAGE_DRIVER %q", cfg.StorageDriver)
	}
	if cfg.TokenSecret == "" {
		return Config{}, fmt.Errorf("TOKEN_SECRET is required")
	}
	if cfg.TokenTTL < 0 {
		return Config{}, fmt.Errorf("TOKEN_TTL must not be negative")
	}

	return cfg, nil
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func intEnv(key string, def int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%s must be a positive integer", key)
	}
	return n, nil
}

func durationEnv(key string, def time.Duration) (time.Duration, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}
