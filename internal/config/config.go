package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config contains all runtime settings for the memory service.
type Config struct {
	AppName          string
	Debug            bool
	Host             string
	Port             int
	BindAddr         string
	ShutdownTimeout  time.Duration
	MetricsNamespace string

	AllowAnyOrigin bool

	DatabaseURL             string
	DatabaseConnectAttempts int

	WatchBuffer    int
	PerfWindowSize int
	LogRedactPII   bool
}

// Load reads environment variables and applies safe defaults. Values from
// the dotenv file named by APP_ENV_FILE (default ".env") fill in keys that
// are not already set in the environment.
func Load() (Config, error) {
	if err := loadDotEnv(envOrDefault("APP_ENV_FILE", ".env")); err != nil {
		return Config{}, err
	}

	cfg := Config{
		AppName:                 envOrDefault("APP_NAME", "MCP Server"),
		Debug:                   true,
		Host:                    envOrDefault("APP_HOST", "0.0.0.0"),
		Port:                    8000,
		MetricsNamespace:        envOrDefault("APP_METRICS_NAMESPACE", "memoryd"),
		AllowAnyOrigin:          false,
		DatabaseURL:             stringsTrimSpace("DATABASE_URL"),
		DatabaseConnectAttempts: 3,
		ShutdownTimeout:         15 * time.Second,
		WatchBuffer:             64,
		PerfWindowSize:          256,
		LogRedactPII:            true,
	}
	var err error
	cfg.Debug, err = boolFromEnv("APP_DEBUG", cfg.Debug)
	if err != nil {
		return Config{}, err
	}
	cfg.Port, err = intFromEnv("APP_PORT", cfg.Port)
	if err != nil {
		return Config{}, err
	}
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin)
	if err != nil {
		return Config{}, err
	}
	cfg.DatabaseConnectAttempts, err = intFromEnv("DATABASE_CONNECT_ATTEMPTS", cfg.DatabaseConnectAttempts)
	if err != nil {
		return Config{}, err
	}
	cfg.WatchBuffer, err = intFromEnv("MEMORY_WATCH_BUFFER", cfg.WatchBuffer)
	if err != nil {
		return Config{}, err
	}
	cfg.PerfWindowSize, err = intFromEnv("PERF_WINDOW_SIZE", cfg.PerfWindowSize)
	if err != nil {
		return Config{}, err
	}
	cfg.LogRedactPII, err = boolFromEnv("LOG_REDACT_PII", cfg.LogRedactPII)
	if err != nil {
		return Config{}, err
	}

	if cfg.Port <= 0 || cfg.Port > 65535 {
		return Config{}, fmt.Errorf("APP_PORT must be between 1 and 65535")
	}
	if cfg.DatabaseConnectAttempts < 1 {
		return Config{}, fmt.Errorf("DATABASE_CONNECT_ATTEMPTS must be at least 1")
	}
	if cfg.WatchBuffer <= 0 {
		return Config{}, fmt.Errorf("MEMORY_WATCH_BUFFER must be positive")
	}
	if cfg.PerfWindowSize <= 0 {
		return Config{}, fmt.Errorf("PERF_WINDOW_SIZE must be positive")
	}

	cfg.BindAddr = stringsTrimSpace("APP_BIND_ADDR")
	if cfg.BindAddr == "" {
		cfg.BindAddr = net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	}

	return cfg, nil
}

// loadDotEnv fills keys absent from the environment with values from path.
// A missing file is not an error.
func loadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

func envOrDefault(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func stringsTrimSpace(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(stringsTrimSpace(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}
