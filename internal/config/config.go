// Package config loads runtime configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds every runtime setting the server needs. Each field maps to
// one environment variable.
type Config struct {
	Env   string // "dev" or "prod"
	Port  string // HTTP port to listen on
	Debug bool

	DBUser string
	DBPass string
	DBHost string
	DBPort string
	DBName string

	JWTSecret string

	RedisAddr     string // empty disables rate limiting
	RedisPassword string

	RabbitURL string // empty falls back to the log event sink

	Currency string // currency tag the marketplace ledger is bound to
}

// Load reads .env if present, then the environment. DSN pieces and the JWT
// secret are required; everything else has a dev default.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		Env:           getEnv("APP_ENV", "dev"),
		Port:          getEnv("PORT", "8080"),
		Debug:         getBool("DEBUG", false),
		DBUser:        os.Getenv("DB_USER"),
		DBPass:        os.Getenv("DB_PASSWORD"),
		DBHost:        getEnv("DB_HOST", "localhost"),
		DBPort:        getEnv("DB_PORT", "5432"),
		DBName:        os.Getenv("DB_NAME"),
		JWTSecret:     os.Getenv("JWT_SECRET"),
		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RabbitURL:     os.Getenv("RABBITMQ_URL"),
		Currency:      getEnv("MARKET_CURRENCY", "credits"),
	}

	for _, req := range []struct{ key, val string }{
		{"DB_USER", cfg.DBUser},
		{"DB_NAME", cfg.DBName},
		{"JWT_SECRET", cfg.JWTSecret},
	} {
		if req.val == "" {
			return Config{}, fmt.Errorf("missing required env var: %s", req.key)
		}
	}
	return cfg, nil
}

// DSN builds the Postgres connection string.
func (c Config) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s",
		c.DBUser, c.DBPass, c.DBHost, c.DBPort, c.DBName)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}
