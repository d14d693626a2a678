package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/crypto/bcrypt"
)

type ServerConfig struct {
	Addr           string
	InitDataPath   string
	TickInterval   time.Duration
	PublishTimeout time.Duration
	RedisURL       string
	DatabaseURL    string
	BcryptCost     int
	LogLevel       slog.Level
}

type SimulateConfig struct {
	InitDataPath string
	TickInterval time.Duration
	LogLevel     slog.Level
}

// LoadDotEnv preloads variables from an env file. Variables already set in
// the environment win. A missing file is not an error.
func LoadDotEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func LoadServerFromEnv() (ServerConfig, error) {
	if err := LoadDotEnv(os.Getenv("ENV_FILE")); err != nil {
		return ServerConfig{}, err
	}

	addr := envDefault("PORT", "8080")
	if !strings.HasPrefix(addr, ":") {
		addr = ":" + addr
	}
	level, err := ParseLogLevel(os.Getenv("LOG_LEVEL"))
	if err != nil {
		return ServerConfig{}, err
	}

	cfg := ServerConfig{
		Addr:           addr,
		InitDataPath:   envDefault("INIT_DATA_PATH", "config/initData.json"),
		TickInterval:   envDurationDefault("TICK_INTERVAL", time.Second),
		PublishTimeout: envDurationDefault("PUBLISH_TIMEOUT", 500*time.Millisecond),
		RedisURL:       strings.TrimSpace(os.Getenv("REDIS_URL")),
		DatabaseURL:    strings.TrimSpace(os.Getenv("DATABASE_URL")),
		BcryptCost:     envIntDefault("BCRYPT_COST", bcrypt.DefaultCost),
		LogLevel:       level,
	}
	if cfg.TickInterval <= 0 {
		return cfg, fmt.Errorf("TICK_INTERVAL must be positive, got %s", cfg.TickInterval)
	}
	if cfg.PublishTimeout <= 0 {
		return cfg, fmt.Errorf("PUBLISH_TIMEOUT must be positive, got %s", cfg.PublishTimeout)
	}
	if cfg.BcryptCost < bcrypt.MinCost || cfg.BcryptCost > bcrypt.MaxCost {
		return cfg, fmt.Errorf("BCRYPT_COST must be within [%d, %d], got %d", bcrypt.MinCost, bcrypt.MaxCost, cfg.BcryptCost)
	}
	return cfg, nil
}

func LoadSimulateFromEnv() (SimulateConfig, error) {
	if err := LoadDotEnv(os.Getenv("ENV_FILE")); err != nil {
		return SimulateConfig{}, err
	}
	level, err := ParseLogLevel(os.Getenv("LOG_LEVEL"))
	if err != nil {
		return SimulateConfig{}, err
	}
	cfg := SimulateConfig{
		InitDataPath: envDefault("INIT_DATA_PATH", "config/initData.json"),
		TickInterval: envDurationDefault("SIMULATE_TICK_INTERVAL", 10*time.Millisecond),
		LogLevel:     level,
	}
	if cfg.TickInterval <= 0 {
		return cfg, fmt.Errorf("SIMULATE_TICK_INTERVAL must be positive, got %s", cfg.TickInterval)
	}
	return cfg, nil
}

// ParseLogLevel accepts debug, info, warn or error. Empty means info.
func ParseLogLevel(raw string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown LOG_LEVEL %q", raw)
	}
}

func envDefault(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func envDurationDefault(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func envIntDefault(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
