package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig
	Redis         RedisConfig
	Upstream      UpstreamConfig
	Session       SessionConfig
	Policy        PolicyConfig
	Audit         AuditConfig
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	AllowedOrigins  []string
	MaxBodyBytes    int64
}

// RedisConfig holds session store configuration
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// UpstreamConfig holds remote identity service configuration
type UpstreamConfig struct {
	BaseURL      string
	ClientID     string
	ClientSecret string
	TokenURL     string
	Timeout      time.Duration
}

// SessionConfig holds session lifecycle settings
type SessionConfig struct {
	Lifetime time.Duration
}

// PolicyConfig holds authorization policy settings
type PolicyConfig struct {
	// File is an optional YAML policy override; empty means built-in
	// defaults. The file is hot-reloaded on change.
	File string
}

// AuditConfig holds audit trail settings
type AuditConfig struct {
	Enabled bool
	Dir     string
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel  string
	LogFormat string

	MetricsEnabled bool

	OTelEnabled        bool
	OTelEndpoint       string
	OTelServiceName    string
	OTelServiceVersion string
	OTelInsecure       bool
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:            getEnv("GATEHOUSE_HOST", "0.0.0.0"),
			Port:            getEnv("GATEHOUSE_PORT", "8080"),
			ReadTimeout:     getEnvDuration("GATEHOUSE_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvDuration("GATEHOUSE_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:     getEnvDuration("GATEHOUSE_IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getEnvDuration("GATEHOUSE_SHUTDOWN_TIMEOUT", 30*time.Second),
			AllowedOrigins:  getEnvList("GATEHOUSE_ALLOWED_ORIGINS", nil),
			MaxBodyBytes:    getEnvInt64("GATEHOUSE_MAX_BODY_BYTES", 1<<20),
		},
		Redis: RedisConfig{
			Addr:     getEnv("GATEHOUSE_REDIS_ADDR", "localhost:6379"),
			Password: getEnv("GATEHOUSE_REDIS_PASSWORD", ""),
			DB:       getEnvInt("GATEHOUSE_REDIS_DB", 0),
		},
		Upstream: UpstreamConfig{
			BaseURL:      getEnv("GATEHOUSE_UPSTREAM_URL", ""),
			ClientID:     getEnv("GATEHOUSE_UPSTREAM_CLIENT_ID", ""),
			ClientSecret: getEnv("GATEHOUSE_UPSTREAM_CLIENT_SECRET", ""),
			TokenURL:     getEnv("GATEHOUSE_UPSTREAM_TOKEN_URL", ""),
			Timeout:      getEnvDuration("GATEHOUSE_UPSTREAM_TIMEOUT", 10*time.Second),
		},
		Session: SessionConfig{
			Lifetime: getEnvDuration("GATEHOUSE_SESSION_LIFETIME", time.Hour),
		},
		Policy: PolicyConfig{
			File: getEnv("GATEHOUSE_POLICY_FILE", ""),
		},
		Audit: AuditConfig{
			Enabled: getEnvBool("GATEHOUSE_AUDIT_ENABLED", false),
			Dir:     getEnv("GATEHOUSE_AUDIT_DIR", "/var/log/gatehouse/audit"),
		},
		Observability: ObservabilityConfig{
			LogLevel:           getEnv("GATEHOUSE_LOG_LEVEL", "info"),
			LogFormat:          getEnv("GATEHOUSE_LOG_FORMAT", "json"),
			MetricsEnabled:     getEnvBool("GATEHOUSE_METRICS_ENABLED", true),
			OTelEnabled:        getEnvBool("GATEHOUSE_OTEL_ENABLED", false),
			OTelEndpoint:       getEnv("GATEHOUSE_OTEL_ENDPOINT", "localhost:4317"),
			OTelServiceName:    getEnv("GATEHOUSE_OTEL_SERVICE_NAME", "gatehouse"),
			OTelServiceVersion: getEnv("GATEHOUSE_OTEL_SERVICE_VERSION", "dev"),
			OTelInsecure:       getEnvBool("GATEHOUSE_OTEL_INSECURE", true),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// Validate checks the configuration for missing or inconsistent values
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Upstream.BaseURL == "" {
		return fmt.Errorf("upstream URL is required")
	}
	if c.Upstream.ClientID == "" || c.Upstream.ClientSecret == "" {
		return fmt.Errorf("upstream client credentials are required")
	}
	if c.Upstream.TokenURL == "" {
		return fmt.Errorf("upstream token URL is required")
	}
	if c.Session.Lifetime <= 0 {
		return fmt.Errorf("session lifetime must be positive")
	}
	if c.Policy.File != "" {
		if _, err := os.Stat(c.Policy.File); err != nil {
			return fmt.Errorf("policy file: %w", err)
		}
	}
	if c.Observability.OTelEnabled && c.Observability.OTelEndpoint == "" {
		return fmt.Errorf("otel endpoint is required when otel is enabled")
	}
	return nil
}

// getEnv returns an environment variable or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvInt64 returns an int64 environment variable or a default
func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// getEnvList returns a comma-separated environment variable or a default
func getEnvList(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				out = append(out, trimmed)
			}
		}
		return out
	}
	return defaultValue
}
