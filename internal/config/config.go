package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Addr        string
	LogLevel    string
	DatabaseURL string
	RedisURL    string

	// Upstream call bounds for the relay engine.
	UpstreamTimeout       time.Duration
	ResponseHeaderTimeout time.Duration

	// Catalog cache TTL for the endpoint registry.
	CatalogCacheTTL time.Duration

	// Default per-endpoint requests-per-minute bound on /generate/text.
	RateLimitRPM int

	// Credential-at-rest encryption. When SecretName is set the key is
	// loaded from AWS Secrets Manager instead of the environment.
	EncryptionKey        string
	EncryptionSecretName string
	AWSRegion            string

	OTLPEndpoint string

	AdminAuthEnabled bool

	ShutdownTimeout time.Duration
}

func Load() (*Config, error) {
	cfg := &Config{
		Addr:                  getEnv("ADDR", ":8080"),
		LogLevel:              getEnv("LOG_LEVEL", "info"),
		DatabaseURL:           getEnv("DATABASE_URL", ""),
		RedisURL:              getEnv("REDIS_URL", ""),
		UpstreamTimeout:       getDurationEnv("UPSTREAM_TIMEOUT", 120*time.Second),
		ResponseHeaderTimeout: getDurationEnv("UPSTREAM_HEADER_TIMEOUT", 30*time.Second),
		CatalogCacheTTL:       getDurationEnv("CATALOG_CACHE_TTL", 30*time.Second),
		RateLimitRPM:          getIntEnv("RATE_LIMIT_RPM", 60),
		EncryptionKey:         getEnv("ENCRYPTION_KEY", ""),
		EncryptionSecretName:  getEnv("ENCRYPTION_SECRET_NAME", ""),
		AWSRegion:             getEnv("AWS_REGION", ""),
		OTLPEndpoint:          getEnv("OTLP_ENDPOINT", ""),
		AdminAuthEnabled:      getEnv("ADMIN_AUTH_ENABLED", "false") == "true",
		ShutdownTimeout:       getDurationEnv("SHUTDOWN_TIMEOUT", 30*time.Second),
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if seconds, err := strconv.Atoi(value); err == nil {
			return time.Duration(seconds) * time.Second
		}
	}
	return defaultValue
}
