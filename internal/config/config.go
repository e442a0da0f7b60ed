package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	SimpleBackendFile  = "file"
	SimpleBackendRedis = "redis"

	RichBackendSQLite   = "sqlite"
	RichBackendPostgres = "postgres"
	RichBackendOff      = "off"
)

type Config struct {
	Server  ServerConfig
	Storage StorageConfig
	Redis   RedisConfig
	LLM     LLMConfig
}

type ServerConfig struct {
	Host           string
	Port           int
	AllowedOrigins []string
}

type StorageConfig struct {
	Simple      string // "file" or "redis"
	Rich        string // "sqlite", "postgres", or "off"
	DataDir     string
	SQLitePath  string
	DatabaseURL string
	StateKey    string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type LLMConfig struct {
	Timeout time.Duration
}

func Load() (*Config, error) {
	port, err := getEnvInt("SERVER_PORT", 8080)
	if err != nil {
		return nil, fmt.Errorf("invalid SERVER_PORT: %w", err)
	}

	redisDB, err := getEnvInt("REDIS_DB", 0)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	llmTimeout, err := getEnvInt("LLM_TIMEOUT_SECONDS", 300)
	if err != nil {
		return nil, fmt.Errorf("invalid LLM_TIMEOUT_SECONDS: %w", err)
	}

	dataDir := getEnv("DATA_DIR", "data")

	cfg := &Config{
		Server: ServerConfig{
			Host:           getEnv("SERVER_HOST", "0.0.0.0"),
			Port:           port,
			AllowedOrigins: strings.Split(getEnv("CORS_ORIGINS", "*"), ","),
		},
		Storage: StorageConfig{
			Simple:      getEnv("STORAGE_SIMPLE", SimpleBackendFile),
			Rich:        getEnv("STORAGE_RICH", RichBackendSQLite),
			DataDir:     dataDir,
			SQLitePath:  getEnv("SQLITE_PATH", dataDir+"/prompt-refinery.db"),
			DatabaseURL: getEnv("DATABASE_URL", ""),
			StateKey:    getEnv("STATE_KEY", "prompt-refinery-store"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       redisDB,
		},
		LLM: LLMConfig{
			Timeout: time.Duration(llmTimeout) * time.Second,
		},
	}

	return cfg, nil
}

func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

func (c *Config) Validate() error {
	switch c.Storage.Simple {
	case SimpleBackendFile, SimpleBackendRedis:
	default:
		return fmt.Errorf("invalid STORAGE_SIMPLE %q", c.Storage.Simple)
	}

	switch c.Storage.Rich {
	case RichBackendSQLite, RichBackendOff:
	case RichBackendPostgres:
		if c.Storage.DatabaseURL == "" {
			return fmt.Errorf("missing required env vars: DATABASE_URL")
		}
	default:
		return fmt.Errorf("invalid STORAGE_RICH %q", c.Storage.Rich)
	}

	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	return strconv.Atoi(v)
}
