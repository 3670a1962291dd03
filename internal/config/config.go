package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	Port      int
	Env       string
	Version   string
	LogLevel  string
	LogFormat string

	// Redis (empty disables the async audit trail)
	RedisAddr string

	// Host/credential store (external collaborator)
	HostStoreURL   string
	HostStoreToken string

	// CORS
	CORSAllowedOrigins []string

	// Bridge tunables
	SSHDialTimeout  time.Duration
	AuthWaitTimeout time.Duration
	IdleTimeout     time.Duration

	// AllowLocalShell enables the PTY-backed loopback connector.
	// Development only; the gateway host's own shell is exposed when set.
	AllowLocalShell bool
}

func Load() (*Config, error) {
	// Load .env file if exists
	_ = godotenv.Load()

	cfg := &Config{
		Port:               getEnvAsInt("PORT", 8080),
		Env:                getEnv("ENV", "development"),
		Version:            getEnv("VERSION", "0.1.0"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		LogFormat:          getEnv("LOG_FORMAT", "json"),
		RedisAddr:          getEnv("REDIS_ADDR", ""),
		HostStoreURL:       getEnv("HOSTSTORE_URL", "http://127.0.0.1:8090"),
		HostStoreToken:     getEnv("HOSTSTORE_TOKEN", ""),
		CORSAllowedOrigins: getEnvAsSlice("CORS_ALLOWED_ORIGINS", []string{"http://localhost:5173"}),
		SSHDialTimeout:     getEnvAsDuration("SSH_DIAL_TIMEOUT", 10*time.Second),
		AuthWaitTimeout:    getEnvAsDuration("AUTH_WAIT_TIMEOUT", 2*time.Minute),
		IdleTimeout:        getEnvAsDuration("IDLE_TIMEOUT", 30*time.Minute),
		AllowLocalShell:    getEnvAsBool("ALLOW_LOCAL_SHELL", false),
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	switch strings.ToLower(getEnv(key, "")) {
	case "1", "true", "yes":
		return true
	case "0", "false", "no":
		return false
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if value, err := time.ParseDuration(valueStr); err == nil && value > 0 {
		return value
	}
	return defaultValue
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	var result []string
	for _, part := range strings.Split(valueStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			result = append(result, part)
		}
	}
	if len(result) == 0 {
		return defaultValue
	}
	return result
}
