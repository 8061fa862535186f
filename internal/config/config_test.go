package config

import (
	"os"
	"strings"
	"testing"
	"time"
)

const testSecret = "0123456789abcdef0123456789abcdef"

// setEnv clears the environment and sets kv plus a valid JWT secret unless overridden.
func setEnv(t *testing.T, kv map[string]string) {
	t.Helper()
	os.Clearenv()
	if _, ok := kv["JWT_SECRET"]; !ok {
		os.Setenv("JWT_SECRET", testSecret)
	}
	for k, v := range kv {
		os.Setenv(k, v)
	}
}

func TestLoad_Defaults(t *testing.T) {
	setEnv(t, nil)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.GRPCAddr != ":8080" {
		t.Errorf("GRPCAddr = %q, want %q", cfg.GRPCAddr, ":8080")
	}
	if cfg.JWTIssuer != "lms-auth" || cfg.JWTAudience != "lms-api" {
		t.Errorf("issuer/audience = %q/%q", cfg.JWTIssuer, cfg.JWTAudience)
	}
	if cfg.AccessTTL() != 12*time.Hour {
		t.Errorf("AccessTTL = %v, want 12h", cfg.AccessTTL())
	}
	if cfg.RefreshTTL() != 168*time.Hour {
		t.Errorf("RefreshTTL = %v, want 168h", cfg.RefreshTTL())
	}
	if cfg.ReaperInterval() != time.Hour {
		t.Errorf("ReaperInterval = %v, want 1h", cfg.ReaperInterval())
	}
	if cfg.StoreTimeout() != 2*time.Second {
		t.Errorf("StoreTimeout = %v, want 2s", cfg.StoreTimeout())
	}
	if cfg.CacheShards != 64 {
		t.Errorf("CacheShards = %d, want 64", cfg.CacheShards)
	}
	if cfg.BlacklistBackend != BlacklistBackendPostgres {
		t.Errorf("BlacklistBackend = %q", cfg.BlacklistBackend)
	}
	if cfg.RedisKeyPrefix != "bl" {
		t.Errorf("RedisKeyPrefix = %q", cfg.RedisKeyPrefix)
	}
	if cfg.UserCacheTTL() != 0 {
		t.Errorf("UserCacheTTL = %v, want disabled", cfg.UserCacheTTL())
	}
	if cfg.LifecycleKafkaTopic != "lms-token-lifecycle" {
		t.Errorf("LifecycleKafkaTopic = %q", cfg.LifecycleKafkaTopic)
	}
	if cfg.LifecycleKafkaBrokersList() != nil {
		t.Errorf("brokers = %v, want nil", cfg.LifecycleKafkaBrokersList())
	}
	if cfg.OTLPEndpoint != "" || cfg.OTLPInsecure {
		t.Errorf("OTLP = %q insecure=%v", cfg.OTLPEndpoint, cfg.OTLPInsecure)
	}
	if cfg.ServiceName != "lms-session-manager" {
		t.Errorf("ServiceName = %q", cfg.ServiceName)
	}
}

func TestLoad_EnvVarOverride(t *testing.T) {
	setEnv(t, map[string]string{
		"GRPC_ADDR":                   ":9090",
		"JWT_ISSUER":                  "custom-issuer",
		"JWT_ACCESS_TTL":              "30m",
		"REAPER_INTERVAL":             "5m",
		"STORE_TIMEOUT":               "750ms",
		"CACHE_SHARDS":                "128",
		"BLACKLIST_BACKEND":           "Redis",
		"REDIS_ADDR":                  "localhost:6379",
		"USER_CACHE_TTL":              "30s",
		"KAFKA_BROKERS":               " k1:9092, ,k2:9092 ",
		"OTEL_EXPORTER_OTLP_ENDPOINT": "collector:4317",
		"OTEL_EXPORTER_OTLP_INSECURE": "true",
	})

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.GRPCAddr != ":9090" || cfg.JWTIssuer != "custom-issuer" {
		t.Errorf("GRPCAddr/JWTIssuer = %q/%q", cfg.GRPCAddr, cfg.JWTIssuer)
	}
	if cfg.AccessTTL() != 30*time.Minute {
		t.Errorf("AccessTTL = %v", cfg.AccessTTL())
	}
	if cfg.ReaperInterval() != 5*time.Minute {
		t.Errorf("ReaperInterval = %v", cfg.ReaperInterval())
	}
	if cfg.StoreTimeout() != 750*time.Millisecond {
		t.Errorf("StoreTimeout = %v", cfg.StoreTimeout())
	}
	if cfg.CacheShards != 128 {
		t.Errorf("CacheShards = %d", cfg.CacheShards)
	}
	if cfg.BlacklistBackend != BlacklistBackendRedis {
		t.Errorf("BlacklistBackend = %q, want normalized redis", cfg.BlacklistBackend)
	}
	if cfg.UserCacheTTL() != 30*time.Second {
		t.Errorf("UserCacheTTL = %v", cfg.UserCacheTTL())
	}
	brokers := cfg.LifecycleKafkaBrokersList()
	if len(brokers) != 2 || brokers[0] != "k1:9092" || brokers[1] != "k2:9092" {
		t.Errorf("brokers = %v", brokers)
	}
	if cfg.OTLPEndpoint != "collector:4317" || !cfg.OTLPInsecure {
		t.Errorf("OTLP = %q insecure=%v", cfg.OTLPEndpoint, cfg.OTLPInsecure)
	}
}

func TestLoad_ValidationErrors(t *testing.T) {
	cases := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"missing secret", map[string]string{"JWT_SECRET": ""}, "JWT_SECRET"},
		{"short secret", map[string]string{"JWT_SECRET": "too-short"}, "JWT_SECRET"},
		{"short refresh secret", map[string]string{"JWT_REFRESH_SECRET": "short"}, "JWT_REFRESH_SECRET"},
		{"shards not power of two", map[string]string{"CACHE_SHARDS": "100"}, "CACHE_SHARDS"},
		{"too many shards", map[string]string{"CACHE_SHARDS": "8192"}, "CACHE_SHARDS"},
		{"negative shards", map[string]string{"CACHE_SHARDS": "-4"}, "CACHE_SHARDS"},
		{"unknown backend", map[string]string{"BLACKLIST_BACKEND": "memcached"}, "BLACKLIST_BACKEND"},
		{"redis without addr", map[string]string{"BLACKLIST_BACKEND": "redis"}, "REDIS_ADDR"},
		{"dev users in production", map[string]string{"DEV_ACTIVE_USERS": "42", "APP_ENV": "production"}, "DEV_ACTIVE_USERS"},
		{"user cache without capacity", map[string]string{"USER_CACHE_TTL": "1m", "USER_CACHE_MAX_ENTRIES": "0"}, "USER_CACHE_MAX_ENTRIES"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			setEnv(t, tc.env)
			_, err := Load()
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.HasPrefix(err.Error(), "config: ") || !strings.Contains(err.Error(), tc.want) {
				t.Errorf("err = %q, want config error naming %s", err, tc.want)
			}
		})
	}
}

func TestLoad_RefreshSecretAccepted(t *testing.T) {
	setEnv(t, map[string]string{"JWT_REFRESH_SECRET": "fedcba9876543210fedcba9876543210"})
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.JWTRefreshSecret == "" {
		t.Error("JWTRefreshSecret not loaded")
	}
}

func TestDurationAccessors_FallBack(t *testing.T) {
	cases := []struct {
		name string
		raw  string
	}{
		{"empty", ""},
		{"invalid", "soon"},
		{"zero", "0s"},
		{"negative", "-5m"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := &Config{JWTAccessTTL: tc.raw, JWTRefreshTTL: tc.raw, ReaperIntervalRaw: tc.raw, StoreTimeoutRaw: tc.raw, UserCacheTTLRaw: tc.raw}
			if c.AccessTTL() != 12*time.Hour {
				t.Errorf("AccessTTL = %v", c.AccessTTL())
			}
			if c.RefreshTTL() != 168*time.Hour {
				t.Errorf("RefreshTTL = %v", c.RefreshTTL())
			}
			if c.ReaperInterval() != time.Hour {
				t.Errorf("ReaperInterval = %v", c.ReaperInterval())
			}
			if c.StoreTimeout() != 2*time.Second {
				t.Errorf("StoreTimeout = %v", c.StoreTimeout())
			}
			if c.UserCacheTTL() != 0 {
				t.Errorf("UserCacheTTL = %v", c.UserCacheTTL())
			}
		})
	}
}

func TestLifecycleKafkaBrokersList_Nil(t *testing.T) {
	var c *Config
	if c.LifecycleKafkaBrokersList() != nil {
		t.Error("nil config returned brokers")
	}
}

func TestLoadDatabaseURL_IgnoresOtherValidation(t *testing.T) {
	os.Clearenv()
	os.Setenv("DATABASE_URL", " postgres://localhost/lms ")
	if got := LoadDatabaseURL(); got != "postgres://localhost/lms" {
		t.Errorf("LoadDatabaseURL = %q", got)
	}
	os.Clearenv()
	if got := LoadDatabaseURL(); got != "" {
		t.Errorf("LoadDatabaseURL = %q, want empty", got)
	}
}

func TestDevActiveUsersList(t *testing.T) {
	setEnv(t, map[string]string{"DEV_ACTIVE_USERS": "42, 7,,8", "APP_ENV": "development"})
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	got := cfg.DevActiveUsersList()
	if len(got) != 3 || got[0] != "42" || got[1] != "7" || got[2] != "8" {
		t.Errorf("DevActiveUsersList = %v", got)
	}
}
