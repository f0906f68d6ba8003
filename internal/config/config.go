package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
)

const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

// Config holds service configuration.
type Config struct {
	Store           string
	DatabaseURL     string
	ServerAddr      string
	JWTSecret       string
	JWTTTL          time.Duration
	RedisAddr       string
	RedisChannel    string
	AuditSigningKey []byte
	LogLevel        zerolog.Level
}

// Load reads configuration. Priority, highest first: MARKET_ environment
// variables, config.yaml, the unprefixed DATABASE_URL / POSTGRES_* variables
// for the DSN, built-in defaults.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/marketplace")

	v.SetDefault("store", StorePostgres)
	v.SetDefault("server_addr", "0.0.0.0:8080")
	v.SetDefault("jwt_ttl", "24h")
	v.SetDefault("redis_channel", "marketplace.events")
	v.SetDefault("log_level", "info")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvPrefix("MARKET")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{
		Store:        strings.ToLower(strings.TrimSpace(v.GetString("store"))),
		DatabaseURL:  v.GetString("database_url"),
		ServerAddr:   v.GetString("server_addr"),
		JWTSecret:    v.GetString("jwt_secret"),
		JWTTTL:       v.GetDuration("jwt_ttl"),
		RedisAddr:    v.GetString("redis_addr"),
		RedisChannel: v.GetString("redis_channel"),
	}
	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = fallbackDSN()
	}

	level, err := zerolog.ParseLevel(v.GetString("log_level"))
	if err != nil {
		return nil, fmt.Errorf("invalid log_level: %w", err)
	}
	cfg.LogLevel = level

	if key := v.GetString("audit_signing_key"); key != "" {
		raw, err := hex.DecodeString(key)
		if err != nil {
			return nil, fmt.Errorf("audit_signing_key must be hex: %w", err)
		}
		cfg.AuditSigningKey = raw
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Store {
	case StorePostgres, StoreMemory:
	default:
		return fmt.Errorf("store must be %q or %q, got %q", StorePostgres, StoreMemory, c.Store)
	}
	if len(c.JWTSecret) < 16 {
		return errors.New("jwt_secret must be at least 16 characters")
	}
	if c.JWTTTL <= 0 {
		return errors.New("jwt_ttl must be positive")
	}
	return nil
}

func fallbackDSN() string {
	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		return dsn
	}
	user := getenv("POSTGRES_USER", "marketplace")
	pass := getenv("POSTGRES_PASSWORD", "marketplace_pass")
	db := getenv("POSTGRES_DB", "marketplace")
	host := getenv("POSTGRES_HOST", "localhost")
	port := getenv("POSTGRES_PORT", "5432")
	sslmode := getenv("DATABASE_SSLMODE", "disable")
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", user, pass, host, port, db, sslmode)
}

func getenv(key, def string) string {
	val := os.Getenv(key)
	if val == "" {
		return def
	}
	return val
}
