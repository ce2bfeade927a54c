package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_WithDefaults(t *testing.T) {
	envVars := []string{
		"APP_NAME", "APP_ENVIRONMENT", "SERVER_PORT",
		"DATABASE_DRIVER", "DATABASE_HOST", "DATABASE_PORT",
		"REDIS_HOST", "REDIS_PORT", "SESSION_CACHE_BACKEND", "SESSION_CACHE_TTL",
		"SUBSCRIPTION_PERIOD", "SUBSCRIPTION_DEFAULT_MAX_USERS", "LLM_MODELS",
		"MASTER_ENABLED", "JWT_ENABLED",
	}
	for _, v := range envVars {
		os.Unsetenv(v)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.App.Name != "botfleet" {
		t.Errorf("App.Name = %q, want %q", cfg.App.Name, "botfleet")
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %d, want %d", cfg.Server.Port, 8080)
	}
	if cfg.Database.Driver != "postgres" {
		t.Errorf("Database.Driver = %q, want postgres", cfg.Database.Driver)
	}
	if cfg.Session.CacheTTL != 5*time.Minute {
		t.Errorf("Session.CacheTTL = %v, want 5m", cfg.Session.CacheTTL)
	}
	if cfg.Subscription.Period != 30*24*time.Hour {
		t.Errorf("Subscription.Period = %v, want 720h", cfg.Subscription.Period)
	}
	if cfg.Subscription.DefaultMaxUsers != 10 {
		t.Errorf("Subscription.DefaultMaxUsers = %d, want 10", cfg.Subscription.DefaultMaxUsers)
	}
	if len(cfg.LLM.Models) != 3 || cfg.LLM.Models[0] != "gpt-4o-mini" {
		t.Errorf("LLM.Models = %v", cfg.LLM.Models)
	}
	if cfg.LLM.KeyPrefix != "sk-" {
		t.Errorf("LLM.KeyPrefix = %q, want sk-", cfg.LLM.KeyPrefix)
	}
	if cfg.Payment.ExternalIDPrefix != "tenant_" {
		t.Errorf("Payment.ExternalIDPrefix = %q, want tenant_", cfg.Payment.ExternalIDPrefix)
	}
}

func TestLoad_WithEnvOverride(t *testing.T) {
	t.Setenv("APP_NAME", "fleet-test")
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("DATABASE_DRIVER", "memory")
	t.Setenv("SESSION_CACHE_BACKEND", "redis")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.App.Name != "fleet-test" {
		t.Errorf("App.Name = %q, want %q", cfg.App.Name, "fleet-test")
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("Server.Port = %d, want %d", cfg.Server.Port, 9090)
	}
	if !cfg.Database.IsMemory() {
		t.Error("expected memory driver")
	}
	if cfg.Session.CacheBackend != "redis" {
		t.Errorf("Session.CacheBackend = %q, want redis", cfg.Session.CacheBackend)
	}
	if len(cfg.Kafka.Brokers) != 2 || cfg.Kafka.Brokers[1] != "k2:9092" {
		t.Errorf("Kafka.Brokers = %v", cfg.Kafka.Brokers)
	}
}

func TestLoadWithPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	content := "APP_NAME=from-file\nSERVER_PORT=7070\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}

	cfg, err := LoadWithPath(path)
	if err != nil {
		t.Fatalf("LoadWithPath() failed: %v", err)
	}
	if cfg.App.Name != "from-file" {
		t.Errorf("App.Name = %q, want from-file", cfg.App.Name)
	}
	if cfg.Server.Port != 7070 {
		t.Errorf("Server.Port = %d, want 7070", cfg.Server.Port)
	}
}

func TestLoadWithPath_Missing(t *testing.T) {
	if _, err := LoadWithPath(filepath.Join(t.TempDir(), "nope.env")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestDatabaseConfig_DSN(t *testing.T) {
	cfg := DatabaseConfig{
		Host:     "localhost",
		Port:     5432,
		User:     "testuser",
		Password: "testpass",
		DBName:   "testdb",
		SSLMode:  "disable",
	}

	expected := "host=localhost port=5432 user=testuser password=testpass dbname=testdb sslmode=disable"
	if dsn := cfg.DSN(); dsn != expected {
		t.Errorf("DSN() = %q, want %q", dsn, expected)
	}
}

func TestRedisConfig_Addr(t *testing.T) {
	cfg := RedisConfig{Host: "redis.example.com", Port: 6380}
	if addr := cfg.Addr(); addr != "redis.example.com:6380" {
		t.Errorf("Addr() = %q", addr)
	}
}

func validConfig() *Config {
	return &Config{
		App:          AppConfig{Name: "botfleet", Environment: "development"},
		Server:       ServerConfig{Port: 8080},
		Database:     DatabaseConfig{Driver: "postgres", Host: "localhost", DBName: "botfleet"},
		Session:      SessionConfig{CacheBackend: "memory", CacheTTL: 5 * time.Minute},
		Subscription: SubscriptionConfig{Period: 720 * time.Hour, DefaultMaxUsers: 10},
		JWT:          JWTConfig{Secret: defaultJWTSecret},
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"missing app name", func(c *Config) { c.App.Name = "" }, true},
		{"bad port", func(c *Config) { c.Server.Port = 70000 }, true},
		{"unknown driver", func(c *Config) { c.Database.Driver = "sqlite" }, true},
		{"memory driver ignores host", func(c *Config) { c.Database.Driver = "memory"; c.Database.Host = "" }, false},
		{"postgres requires host", func(c *Config) { c.Database.Host = "" }, true},
		{"unknown cache", func(c *Config) { c.Session.CacheBackend = "memcached" }, true},
		{"zero ttl", func(c *Config) { c.Session.CacheTTL = 0 }, true},
		{"zero max users", func(c *Config) { c.Subscription.DefaultMaxUsers = 0 }, true},
		{"master without operator", func(c *Config) { c.Master = MasterConfig{Enabled: true, BotCredential: "x"} }, true},
		{"default secret in production", func(c *Config) { c.App.Environment = "production"; c.JWT.Enabled = true }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
