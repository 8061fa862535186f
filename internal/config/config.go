// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	// MinSecretLength is the minimum byte length of JWT_SECRET and JWT_REFRESH_SECRET.
	MinSecretLength = 32
	maxCacheShards  = 4096

	// BlacklistBackendPostgres stores revoked fingerprints in the token_blacklist table.
	BlacklistBackendPostgres = "postgres"
	// BlacklistBackendRedis stores revoked fingerprints as expiring Redis keys.
	BlacklistBackendRedis = "redis"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	// GRPCAddr is the address the gRPC server listens on (e.g. :8080).
	GRPCAddr string `mapstructure:"GRPC_ADDR"`
	// DatabaseURL is the Postgres DSN. When empty the server keeps sessions and the blacklist in memory.
	DatabaseURL string `mapstructure:"DATABASE_URL"`

	// JWTSecret is the master secret the access (and by default refresh) signing keys are derived from.
	JWTSecret string `mapstructure:"JWT_SECRET"`
	// JWTRefreshSecret, when set, derives the refresh signing key independently of JWTSecret.
	JWTRefreshSecret string `mapstructure:"JWT_REFRESH_SECRET"`
	// JWTIssuer is the iss claim (e.g. "lms-auth").
	JWTIssuer string `mapstructure:"JWT_ISSUER"`
	// JWTAudience is the aud claim (e.g. "lms-api").
	JWTAudience string `mapstructure:"JWT_AUDIENCE"`
	// JWTAccessTTL is the access token lifetime (e.g. "12h").
	JWTAccessTTL string `mapstructure:"JWT_ACCESS_TTL"`
	// JWTRefreshTTL is the refresh token and session lifetime (e.g. "168h").
	JWTRefreshTTL string `mapstructure:"JWT_REFRESH_TTL"`

	// ReaperIntervalRaw is how often expired cache entries are swept (e.g. "1h").
	ReaperIntervalRaw string `mapstructure:"REAPER_INTERVAL"`
	// StoreTimeoutRaw bounds each durable lookup (e.g. "2s").
	StoreTimeoutRaw string `mapstructure:"STORE_TIMEOUT"`
	// CacheShards is the number of shards per in-memory cache; a power of two from 1 to 4096.
	CacheShards int `mapstructure:"CACHE_SHARDS"`

	// BlacklistBackend is "postgres" or "redis".
	BlacklistBackend string `mapstructure:"BLACKLIST_BACKEND"`
	// RedisAddr is the Redis address; required when BlacklistBackend is redis.
	RedisAddr string `mapstructure:"REDIS_ADDR"`
	// RedisPassword is the optional Redis password.
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	// RedisKeyPrefix namespaces blacklist keys.
	RedisKeyPrefix string `mapstructure:"REDIS_KEY_PREFIX"`

	// UserCacheTTLRaw enables caching of active-account answers for this long. "0s" disables it.
	UserCacheTTLRaw string `mapstructure:"USER_CACHE_TTL"`
	// UserCacheMaxEntries caps the account cache.
	UserCacheMaxEntries int64 `mapstructure:"USER_CACHE_MAX_ENTRIES"`

	// DevActiveUsers is a comma-separated list of user ids treated as active when DATABASE_URL is empty.
	// Rejected when APP_ENV=production.
	DevActiveUsers string `mapstructure:"DEV_ACTIVE_USERS"`

	// Env is the application environment (e.g. "development", "production").
	Env string `mapstructure:"APP_ENV"`

	// Telemetry (optional). When Kafka brokers are set, lifecycle events are also written to Kafka.
	// LifecycleKafkaBrokers is a comma-separated list of Kafka broker addresses (e.g. "localhost:9092").
	LifecycleKafkaBrokers string `mapstructure:"KAFKA_BROKERS"`
	// LifecycleKafkaTopic is the Kafka topic for lifecycle events.
	LifecycleKafkaTopic string `mapstructure:"LIFECYCLE_KAFKA_TOPIC"`
	// OTLPEndpoint is the OTLP gRPC collector address. Empty disables export.
	OTLPEndpoint string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	// OTLPInsecure disables TLS to the collector.
	OTLPInsecure bool `mapstructure:"OTEL_EXPORTER_OTLP_INSECURE"`
	// ServiceName is the OpenTelemetry service.name.
	ServiceName string `mapstructure:"OTEL_SERVICE_NAME"`
}

func newViper() *viper.Viper {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()
	return v
}

// LoadDatabaseURL returns DATABASE_URL from the environment or .env without
// validating the rest of the configuration. Used by cmd/migrate.
func LoadDatabaseURL() string {
	v := newViper()
	v.SetDefault("DATABASE_URL", "")
	return strings.TrimSpace(v.GetString("DATABASE_URL"))
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env. Returns an error if required fields are invalid.
func Load() (*Config, error) {
	v := newViper()

	v.SetDefault("GRPC_ADDR", ":8080")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("JWT_SECRET", "")
	v.SetDefault("JWT_REFRESH_SECRET", "")
	v.SetDefault("JWT_ISSUER", "lms-auth")
	v.SetDefault("JWT_AUDIENCE", "lms-api")
	v.SetDefault("JWT_ACCESS_TTL", "12h")
	v.SetDefault("JWT_REFRESH_TTL", "168h") // 7d
	v.SetDefault("REAPER_INTERVAL", "1h")
	v.SetDefault("STORE_TIMEOUT", "2s")
	v.SetDefault("CACHE_SHARDS", 64)
	v.SetDefault("BLACKLIST_BACKEND", BlacklistBackendPostgres)
	v.SetDefault("REDIS_ADDR", "")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_KEY_PREFIX", "bl")
	v.SetDefault("USER_CACHE_TTL", "0s")
	v.SetDefault("USER_CACHE_MAX_ENTRIES", 10000)
	v.SetDefault("DEV_ACTIVE_USERS", "")
	v.SetDefault("APP_ENV", "")
	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("LIFECYCLE_KAFKA_TOPIC", "lms-token-lifecycle")
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_INSECURE", false)
	v.SetDefault("OTEL_SERVICE_NAME", "lms-session-manager")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	cfg.BlacklistBackend = strings.ToLower(strings.TrimSpace(cfg.BlacklistBackend))

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.GRPCAddr == "" {
		return errors.New("config: GRPC_ADDR must be set")
	}
	if len(strings.TrimSpace(c.JWTSecret)) < MinSecretLength {
		return errors.New("config: JWT_SECRET must be set and at least 32 bytes")
	}
	if s := strings.TrimSpace(c.JWTRefreshSecret); s != "" && len(s) < MinSecretLength {
		return errors.New("config: JWT_REFRESH_SECRET must be at least 32 bytes when set")
	}
	if strings.TrimSpace(c.JWTIssuer) == "" || strings.TrimSpace(c.JWTAudience) == "" {
		return errors.New("config: JWT_ISSUER and JWT_AUDIENCE must be set")
	}
	if c.CacheShards < 1 || c.CacheShards > maxCacheShards || c.CacheShards&(c.CacheShards-1) != 0 {
		return errors.New("config: CACHE_SHARDS must be a power of two between 1 and 4096")
	}
	switch c.BlacklistBackend {
	case BlacklistBackendPostgres:
	case BlacklistBackendRedis:
		if strings.TrimSpace(c.RedisAddr) == "" {
			return errors.New("config: REDIS_ADDR must be set when BLACKLIST_BACKEND=redis")
		}
	default:
		return errors.New("config: BLACKLIST_BACKEND must be postgres or redis")
	}
	if c.DevActiveUsers != "" && c.Env == "production" {
		return errors.New("config: DEV_ACTIVE_USERS must not be set when APP_ENV=production")
	}
	if c.UserCacheTTL() > 0 && c.UserCacheMaxEntries <= 0 {
		return errors.New("config: USER_CACHE_MAX_ENTRIES must be positive when USER_CACHE_TTL is set")
	}
	return nil
}

// AccessTTL parses JWTAccessTTL as a time.Duration. Returns 12h if unset or invalid.
func (c *Config) AccessTTL() time.Duration {
	return parseDuration(c.JWTAccessTTL, 12*time.Hour)
}

// RefreshTTL parses JWTRefreshTTL as a time.Duration. Returns 168h if unset or invalid.
func (c *Config) RefreshTTL() time.Duration {
	return parseDuration(c.JWTRefreshTTL, 168*time.Hour)
}

// ReaperInterval returns the sweep period. Returns 1h if unset or invalid.
func (c *Config) ReaperInterval() time.Duration {
	return parseDuration(c.ReaperIntervalRaw, time.Hour)
}

// StoreTimeout returns the durable lookup bound. Returns 2s if unset or invalid.
func (c *Config) StoreTimeout() time.Duration {
	return parseDuration(c.StoreTimeoutRaw, 2*time.Second)
}

// UserCacheTTL returns the account cache lifetime; 0 means disabled, as does an invalid value.
func (c *Config) UserCacheTTL() time.Duration {
	d, err := time.ParseDuration(c.UserCacheTTLRaw)
	if err != nil || d < 0 {
		return 0
	}
	return d
}

func parseDuration(raw string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

// LifecycleKafkaBrokersList returns Kafka broker addresses from the comma-separated config.
// Used to decide if the Kafka sink is enabled (non-empty list) and to create the producer.
func (c *Config) LifecycleKafkaBrokersList() []string {
	if c == nil {
		return nil
	}
	return splitList(c.LifecycleKafkaBrokers)
}

// DevActiveUsersList returns the user ids from DEV_ACTIVE_USERS.
func (c *Config) DevActiveUsersList() []string {
	if c == nil {
		return nil
	}
	return splitList(c.DevActiveUsers)
}

func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
