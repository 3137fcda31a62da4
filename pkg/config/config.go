package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/edugatenow/edugate/pkg/httputil"
	"github.com/edugatenow/edugate/pkg/observability"
	"github.com/edugatenow/edugate/pkg/storage"
)

// Environment selects development or production behaviour
type Environment string

const (
	Development Environment = "development"
	Production  Environment = "production"
)

// IsProduction reports whether e is the production environment
func (e Environment) IsProduction() bool {
	return e == Production
}

// Config holds all application configuration
type Config struct {
	Environment Environment

	// Server configuration
	Server ServerConfig

	// Storage configuration
	Storage storage.Config

	Auth  AuthConfig
	Audit AuditConfig

	// Observability configuration
	Observability ObservabilityConfig

	// Policy is loaded from EDUGATE_POLICY_FILE, or defaults when unset
	Policy Policy
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// Health/metrics server (separate port for k8s probes)
	HealthPort string

	// TrustedProxies lists CIDRs or IPs whose X-Forwarded-For and X-Real-IP
	// headers are honoured. Empty means client addresses come from the socket.
	TrustedProxies []string
}

// AuthConfig holds session settings
type AuthConfig struct {
	SessionSecret   string
	SessionTTL      time.Duration
	VersionCacheTTL time.Duration
	VersionCacheMax int
}

// AuditConfig holds audit storage and retention settings
type AuditConfig struct {
	PostgresReplicaURLs string
	RetentionDays       int
	RetentionSchedule   string
	ArchivePrefix       string
	ArchiveDir          string
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel observability.LogLevel

	MetricsEnabled bool

	// OTelEndpoint is the OTLP gRPC collector; empty keeps traces in-process
	OTelEndpoint       string
	OTelServiceName    string
	OTelServiceVersion string
	OTelInsecure       bool
	OTelSampleRatio    float64

	// InstanceID names this replica in traces; defaults to the host name
	InstanceID string
}

// LoadConfig loads configuration from environment variables and the optional policy file
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Environment:   Environment(strings.ToLower(getEnv("EDUGATE_ENV", string(Development)))),
		Server:        loadServerConfig(),
		Storage:       loadStorageConfig(),
		Auth:          loadAuthConfig(),
		Audit:         loadAuditConfig(),
		Observability: loadObservabilityConfig(),
		Policy:        DefaultPolicy(),
	}

	if path := getEnv("EDUGATE_POLICY_FILE", ""); path != "" {
		policy, err := LoadPolicy(path)
		if err != nil {
			return nil, err
		}
		cfg.Policy = policy
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:            getEnv("EDUGATE_HOST", "0.0.0.0"),
		Port:            getEnv("EDUGATE_PORT", "8080"),
		ReadTimeout:     getEnvDuration("EDUGATE_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("EDUGATE_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:     getEnvDuration("EDUGATE_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("EDUGATE_SHUTDOWN_TIMEOUT", 30*time.Second),
		HealthPort:      getEnv("EDUGATE_HEALTH_PORT", "9090"),
		TrustedProxies:  getEnvList("EDUGATE_TRUSTED_PROXIES"),
	}
}

func loadStorageConfig() storage.Config {
	cfg := storage.DefaultConfig()

	if storageType := getEnv("EDUGATE_STORAGE_TYPE", ""); storageType != "" {
		cfg.Type = storageType
	}

	// MongoDB config
	cfg.MongoURI = getEnv("EDUGATE_MONGO_URI", cfg.MongoURI)
	cfg.MongoDatabase = getEnv("EDUGATE_MONGO_DATABASE", cfg.MongoDatabase)
	cfg.MongoTimeout = getEnvDuration("EDUGATE_MONGO_TIMEOUT", cfg.MongoTimeout)

	// PostgreSQL config
	cfg.PostgresURL = getEnv("EDUGATE_POSTGRES_URL", cfg.PostgresURL)
	if maxConns := getEnvInt("EDUGATE_POSTGRES_MAX_CONNS", 0); maxConns > 0 {
		cfg.PostgresMaxConns = maxConns
	}
	if minConns := getEnvInt("EDUGATE_POSTGRES_MIN_CONNS", 0); minConns > 0 {
		cfg.PostgresMinConns = minConns
	}
	cfg.PostgresTimeout = getEnvDuration("EDUGATE_POSTGRES_TIMEOUT", cfg.PostgresTimeout)

	// S3 config
	cfg.S3Endpoint = getEnv("EDUGATE_S3_ENDPOINT", cfg.S3Endpoint)
	cfg.S3Region = getEnv("EDUGATE_S3_REGION", cfg.S3Region)
	cfg.S3Bucket = getEnv("EDUGATE_S3_BUCKET", cfg.S3Bucket)
	cfg.S3AccessKey = getEnv("EDUGATE_S3_ACCESS_KEY", cfg.S3AccessKey)
	cfg.S3SecretKey = getEnv("EDUGATE_S3_SECRET_KEY", cfg.S3SecretKey)
	cfg.S3UsePathStyle = getEnvBool("EDUGATE_S3_USE_PATH_STYLE", cfg.S3UsePathStyle)

	// Redis config
	cfg.RedisURL = getEnv("EDUGATE_REDIS_URL", cfg.RedisURL)
	cfg.RedisPassword = getEnv("EDUGATE_REDIS_PASSWORD", cfg.RedisPassword)
	if redisDB := getEnvInt("EDUGATE_REDIS_DB", -1); redisDB >= 0 {
		cfg.RedisDB = redisDB
	}
	if redisMaxRetries := getEnvInt("EDUGATE_REDIS_MAX_RETRIES", 0); redisMaxRetries > 0 {
		cfg.RedisMaxRetries = redisMaxRetries
	}
	if redisPoolSize := getEnvInt("EDUGATE_REDIS_POOL_SIZE", 0); redisPoolSize > 0 {
		cfg.RedisPoolSize = redisPoolSize
	}

	return cfg
}

func loadAuthConfig() AuthConfig {
	return AuthConfig{
		SessionSecret:   getEnv("EDUGATE_SESSION_SECRET", ""),
		SessionTTL:      getEnvDuration("EDUGATE_SESSION_TTL", 12*time.Hour),
		VersionCacheTTL: getEnvDuration("EDUGATE_SESSION_VERSION_CACHE_TTL", 30*time.Second),
		VersionCacheMax: getEnvInt("EDUGATE_SESSION_VERSION_CACHE_SIZE", 10000),
	}
}

func loadAuditConfig() AuditConfig {
	return AuditConfig{
		PostgresReplicaURLs: getEnv("EDUGATE_POSTGRES_REPLICA_URLS", ""),
		RetentionDays:       getEnvInt("EDUGATE_AUDIT_RETENTION_DAYS", 365),
		RetentionSchedule:   getEnv("EDUGATE_AUDIT_RETENTION_SCHEDULE", "@daily"),
		ArchivePrefix:       getEnv("EDUGATE_AUDIT_ARCHIVE_PREFIX", "audit-archive"),
		ArchiveDir:          getEnv("EDUGATE_AUDIT_ARCHIVE_DIR", "./audit-archive"),
	}
}

func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:           observability.ParseLevel(getEnv("EDUGATE_LOG_LEVEL", "info")),
		MetricsEnabled:     getEnvBool("EDUGATE_METRICS_ENABLED", true),
		OTelEndpoint:       getEnv("EDUGATE_OTEL_ENDPOINT", ""),
		OTelServiceName:    getEnv("EDUGATE_OTEL_SERVICE_NAME", "edugate"),
		OTelServiceVersion: getEnv("EDUGATE_OTEL_SERVICE_VERSION", "1.0.0"),
		OTelInsecure:       getEnvBool("EDUGATE_OTEL_INSECURE", true),
		OTelSampleRatio:    getEnvFloat("EDUGATE_OTEL_SAMPLE_RATIO", 1),
		InstanceID:         getEnv("EDUGATE_INSTANCE_ID", ""),
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	switch c.Environment {
	case Development, Production:
	default:
		return fmt.Errorf("invalid environment: %s (must be development or production)", c.Environment)
	}

	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}
	if _, err := httputil.ParseTrustedProxies(c.Server.TrustedProxies); err != nil {
		return err
	}

	switch c.Storage.Type {
	case "memory":
		if c.Environment.IsProduction() {
			return fmt.Errorf("memory storage is not allowed in production")
		}
	case "mongo":
		if c.Storage.MongoURI == "" {
			return fmt.Errorf("mongo URI is required for mongo storage")
		}
	default:
		return fmt.Errorf("invalid storage type: %s (must be memory or mongo)", c.Storage.Type)
	}

	if c.Environment.IsProduction() {
		if len(c.Auth.SessionSecret) < 32 {
			return fmt.Errorf("session secret must be at least 32 bytes in production")
		}
		if c.Storage.PostgresURL == "" {
			return fmt.Errorf("postgres URL is required in production for the audit log")
		}
	}
	if c.Auth.SessionTTL <= 0 {
		return fmt.Errorf("session TTL must be positive")
	}
	if c.Audit.RetentionDays < 1 {
		return fmt.Errorf("audit retention must be at least one day")
	}

	if c.Observability.OTelServiceName == "" {
		return fmt.Errorf("OpenTelemetry service name is required")
	}
	if r := c.Observability.OTelSampleRatio; r < 0 || r > 1 {
		return fmt.Errorf("OpenTelemetry sample ratio must be within [0, 1], got %v", r)
	}
	if c.Environment.IsProduction() && c.Observability.OTelEndpoint != "" && c.Observability.OTelInsecure {
		return fmt.Errorf("insecure OpenTelemetry export is not allowed in production")
	}

	return c.Policy.Validate()
}

// getEnv returns an environment variable value or a default
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

// getEnvList splits a comma separated environment variable, dropping blanks
func getEnvList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// getEnvFloat returns a float environment variable or a default
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
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
