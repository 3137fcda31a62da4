package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edugatenow/edugate/pkg/observability"
	"github.com/edugatenow/edugate/pkg/storage"
)

func storageConfig(kind string) storage.Config {
	cfg := storage.DefaultConfig()
	cfg.Type = kind
	return cfg
}

func TestGetEnvHelpers(t *testing.T) {
	t.Setenv("EDUGATE_TEST_STR", "custom")
	t.Setenv("EDUGATE_TEST_BOOL", "1")
	t.Setenv("EDUGATE_TEST_INT", "42")
	t.Setenv("EDUGATE_TEST_BAD_INT", "forty")
	t.Setenv("EDUGATE_TEST_DUR", "90s")
	t.Setenv("EDUGATE_TEST_LIST", " 10.0.0.0/8, ,192.0.2.1 ")

	assert.Equal(t, "custom", getEnv("EDUGATE_TEST_STR", "default"))
	assert.Equal(t, "default", getEnv("EDUGATE_TEST_UNSET", "default"))
	assert.True(t, getEnvBool("EDUGATE_TEST_BOOL", false))
	assert.Equal(t, 42, getEnvInt("EDUGATE_TEST_INT", 7))
	assert.Equal(t, 7, getEnvInt("EDUGATE_TEST_BAD_INT", 7))
	assert.Equal(t, 90*time.Second, getEnvDuration("EDUGATE_TEST_DUR", time.Second))
	assert.Equal(t, []string{"10.0.0.0/8", "192.0.2.1"}, getEnvList("EDUGATE_TEST_LIST"))
	assert.Nil(t, getEnvList("EDUGATE_TEST_UNSET"))
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, Development, cfg.Environment)
	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Empty(t, cfg.Server.TrustedProxies)
	assert.Equal(t, "memory", cfg.Storage.Type)
	assert.Equal(t, 30*time.Second, cfg.Auth.VersionCacheTTL)
	assert.Equal(t, observability.InfoLevel, cfg.Observability.LogLevel)
	assert.Empty(t, cfg.Observability.OTelEndpoint)
	assert.Equal(t, 1.0, cfg.Observability.OTelSampleRatio)
	assert.Equal(t, 100, cfg.Policy.RateLimits.API.Limit)
	assert.True(t, cfg.Policy.CSRF.StrictFor(cfg.Environment))
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("EDUGATE_ENV", "production")
	t.Setenv("EDUGATE_STORAGE_TYPE", "mongo")
	t.Setenv("EDUGATE_MONGO_URI", "mongodb://localhost:27017")
	t.Setenv("EDUGATE_POSTGRES_URL", "postgres://localhost/audit")
	t.Setenv("EDUGATE_SESSION_SECRET", "0123456789abcdef0123456789abcdef")
	t.Setenv("EDUGATE_LOG_LEVEL", "debug")
	t.Setenv("EDUGATE_REDIS_DB", "2")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.True(t, cfg.Environment.IsProduction())
	assert.Equal(t, "mongodb://localhost:27017", cfg.Storage.MongoURI)
	assert.Equal(t, 2, cfg.Storage.RedisDB)
	assert.Equal(t, observability.DebugLevel, cfg.Observability.LogLevel)
	assert.False(t, cfg.Policy.CSRF.StrictFor(cfg.Environment))
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Environment: Development,
			Server:      ServerConfig{Port: "8080", HealthPort: "9090"},
			Storage:     storageConfig("memory"),
			Auth:        AuthConfig{SessionTTL: time.Hour},
			Audit:       AuditConfig{RetentionDays: 30},
			Policy:      DefaultPolicy(),

			Observability: ObservabilityConfig{OTelServiceName: "edugate", OTelSampleRatio: 1},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"bad environment", func(c *Config) { c.Environment = "staging" }, "invalid environment"},
		{"same ports", func(c *Config) { c.Server.HealthPort = "8080" }, "must be different"},
		{"bad trusted proxy", func(c *Config) { c.Server.TrustedProxies = []string{"10.0.0.0/40"} }, "invalid trusted proxy"},
		{"mongo without uri", func(c *Config) { c.Storage.Type = "mongo" }, "mongo URI is required"},
		{"unknown storage", func(c *Config) { c.Storage.Type = "sqlite" }, "invalid storage type"},
		{"memory in production", func(c *Config) { c.Environment = Production }, "memory storage"},
		{"short secret in production", func(c *Config) {
			c.Environment = Production
			c.Storage.Type = "mongo"
			c.Storage.MongoURI = "mongodb://x"
			c.Auth.SessionSecret = "short"
		}, "session secret"},
		{"zero retention", func(c *Config) { c.Audit.RetentionDays = 0 }, "retention"},
		{"otel without service name", func(c *Config) { c.Observability.OTelServiceName = "" }, "service name is required"},
		{"otel sample ratio", func(c *Config) { c.Observability.OTelSampleRatio = 1.5 }, "sample ratio"},
		{"insecure otel in production", func(c *Config) {
			c.Environment = Production
			c.Storage.Type = "mongo"
			c.Storage.MongoURI = "mongodb://x"
			c.Auth.SessionSecret = "0123456789abcdef0123456789abcdef"
			c.Observability.OTelEndpoint = "collector:4317"
			c.Observability.OTelInsecure = true
		}, "insecure OpenTelemetry"},
		{"bad policy", func(c *Config) { c.Policy.RateLimits.Auth.Limit = 0 }, `rate limit "auth"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			err := c.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadPolicyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
rateLimits:
  auth:
    limit: 5
    window: 10m
csrf:
  strict: false
  sameSite: strict
`), 0o600))

	t.Setenv("EDUGATE_POLICY_FILE", path)
	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, RateLimitRule{Limit: 5, Window: 10 * time.Minute}, cfg.Policy.RateLimits.Auth)
	assert.Equal(t, 100, cfg.Policy.RateLimits.API.Limit, "unset presets keep defaults")
	assert.Equal(t, "strict", cfg.Policy.CSRF.SameSite)
	assert.Equal(t, time.Hour, cfg.Policy.CSRF.TokenTTL)
	assert.False(t, cfg.Policy.CSRF.StrictFor(Development))
}

func TestParsePolicyErrors(t *testing.T) {
	_, err := ParsePolicy([]byte("rateLimits: [unclosed"))
	assert.Error(t, err)

	_, err = ParsePolicy([]byte("roleMultipliers:\n  admin: 0\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "admin")

	_, err = LoadPolicy(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
