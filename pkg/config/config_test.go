package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Setenv("GATEHOUSE_UPSTREAM_URL", "https://identity.example.com")
	t.Setenv("GATEHOUSE_UPSTREAM_CLIENT_ID", "client-1")
	t.Setenv("GATEHOUSE_UPSTREAM_CLIENT_SECRET", "secret-1")
	t.Setenv("GATEHOUSE_UPSTREAM_TOKEN_URL", "https://identity.example.com/oauth/token")
}

func TestLoadConfigDefaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, int64(1<<20), cfg.Server.MaxBodyBytes)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, 0, cfg.Redis.DB)
	assert.Equal(t, time.Hour, cfg.Session.Lifetime)
	assert.Empty(t, cfg.Policy.File)
	assert.False(t, cfg.Audit.Enabled)
	assert.Equal(t, "info", cfg.Observability.LogLevel)
	assert.Equal(t, "json", cfg.Observability.LogFormat)
	assert.True(t, cfg.Observability.MetricsEnabled)
	assert.False(t, cfg.Observability.OTelEnabled)
}

func TestLoadConfigOverrides(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("GATEHOUSE_PORT", "9090")
	t.Setenv("GATEHOUSE_REDIS_ADDR", "redis.internal:6380")
	t.Setenv("GATEHOUSE_REDIS_DB", "3")
	t.Setenv("GATEHOUSE_SESSION_LIFETIME", "8h")
	t.Setenv("GATEHOUSE_ALLOWED_ORIGINS", "https://app.example.com, https://admin.example.com")
	t.Setenv("GATEHOUSE_AUDIT_ENABLED", "true")
	t.Setenv("GATEHOUSE_LOG_FORMAT", "text")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, "redis.internal:6380", cfg.Redis.Addr)
	assert.Equal(t, 3, cfg.Redis.DB)
	assert.Equal(t, 8*time.Hour, cfg.Session.Lifetime)
	assert.Equal(t, []string{"https://app.example.com", "https://admin.example.com"}, cfg.Server.AllowedOrigins)
	assert.True(t, cfg.Audit.Enabled)
	assert.Equal(t, "text", cfg.Observability.LogFormat)
}

func TestLoadConfigInvalidValuesFallBack(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("GATEHOUSE_REDIS_DB", "not-a-number")
	t.Setenv("GATEHOUSE_SESSION_LIFETIME", "soon")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 0, cfg.Redis.DB)
	assert.Equal(t, time.Hour, cfg.Session.Lifetime)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "missing port",
			mutate:  func(c *Config) { c.Server.Port = "" },
			wantErr: "server port is required",
		},
		{
			name:    "missing upstream url",
			mutate:  func(c *Config) { c.Upstream.BaseURL = "" },
			wantErr: "upstream URL is required",
		},
		{
			name:    "missing client secret",
			mutate:  func(c *Config) { c.Upstream.ClientSecret = "" },
			wantErr: "client credentials",
		},
		{
			name:    "missing token url",
			mutate:  func(c *Config) { c.Upstream.TokenURL = "" },
			wantErr: "token URL",
		},
		{
			name:    "zero session lifetime",
			mutate:  func(c *Config) { c.Session.Lifetime = 0 },
			wantErr: "session lifetime",
		},
		{
			name:    "missing policy file",
			mutate:  func(c *Config) { c.Policy.File = "/nonexistent/policy.yaml" },
			wantErr: "policy file",
		},
		{
			name: "otel enabled without endpoint",
			mutate: func(c *Config) {
				c.Observability.OTelEnabled = true
				c.Observability.OTelEndpoint = ""
			},
			wantErr: "otel endpoint",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidateAcceptsExistingPolicyFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte("roles: []\n"), 0o644))

	cfg := validConfig()
	cfg.Policy.File = path
	assert.NoError(t, cfg.Validate())
}

func validConfig() *Config {
	return &Config{
		Server: ServerConfig{Port: "8080"},
		Upstream: UpstreamConfig{
			BaseURL:      "https://identity.example.com",
			ClientID:     "client-1",
			ClientSecret: "secret-1",
			TokenURL:     "https://identity.example.com/oauth/token",
		},
		Session:       SessionConfig{Lifetime: time.Hour},
		Observability: ObservabilityConfig{OTelEndpoint: "localhost:4317"},
	}
}
