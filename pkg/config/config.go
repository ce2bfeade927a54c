package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const defaultJWTSecret = "change-me-admin-secret"

// Config holds all application configuration
type Config struct {
	App          AppConfig          `mapstructure:"app"`
	Server       ServerConfig       `mapstructure:"server"`
	Log          LogConfig          `mapstructure:"log"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Redis        RedisConfig        `mapstructure:"redis"`
	Kafka        KafkaConfig        `mapstructure:"kafka"`
	JWT          JWTConfig          `mapstructure:"jwt"`
	OTel         OTelConfig         `mapstructure:"otel"`
	Bot          BotConfig          `mapstructure:"bot"`
	Master       MasterConfig       `mapstructure:"master"`
	Messaging    MessagingConfig    `mapstructure:"messaging"`
	LLM          LLMConfig          `mapstructure:"llm"`
	Payment      PaymentConfig      `mapstructure:"payment"`
	Session      SessionConfig      `mapstructure:"session"`
	Subscription SubscriptionConfig `mapstructure:"subscription"`
}

// AppConfig holds application-level settings
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"` // development, staging, production
	Debug       bool   `mapstructure:"debug"`
	Version     string `mapstructure:"version"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	// WebhookRate is the per-client request rate on /webhook; zero disables it
	WebhookRate  float64 `mapstructure:"webhook_rate"`
	WebhookBurst int     `mapstructure:"webhook_burst"`
}

// Addr returns the listen address
func (s *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// LogConfig holds logger settings
type LogConfig struct {
	Level      string `mapstructure:"level"`
	OutputPath string `mapstructure:"output_path"`
}

// DatabaseConfig holds PostgreSQL connection settings
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"` // postgres or memory
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// DSN returns the PostgreSQL connection string
func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode,
	)
}

// IsMemory reports whether the in-process storage driver is selected
func (d *DatabaseConfig) IsMemory() bool {
	return d.Driver == "memory"
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// Addr returns the Redis address
func (r *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// KafkaConfig holds Kafka/Redpanda producer settings
type KafkaConfig struct {
	Enabled     bool     `mapstructure:"enabled"`
	Brokers     []string `mapstructure:"brokers"`
	ClientID    string   `mapstructure:"client_id"`
	TopicPrefix string   `mapstructure:"topic_prefix"`
}

// JWTConfig holds admin token settings
type JWTConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Secret   string        `mapstructure:"secret"`
	TokenTTL time.Duration `mapstructure:"token_ttl"`
	Issuer   string        `mapstructure:"issuer"`
}

// OTelConfig holds OpenTelemetry settings
type OTelConfig struct {
	Enabled       bool    `mapstructure:"enabled"`
	ServiceName   string  `mapstructure:"service_name"`
	CollectorAddr string  `mapstructure:"collector_addr"`
	SampleRatio   float64 `mapstructure:"sample_ratio"`
}

// BotConfig holds settings for the chat transport shared by every instance
type BotConfig struct {
	APIBaseURL     string        `mapstructure:"api_base_url"`
	PollTimeout    time.Duration `mapstructure:"poll_timeout"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	SendRate       float64       `mapstructure:"send_rate"` // messages per second per instance
	SendBurst      int           `mapstructure:"send_burst"`
	StopTimeout    time.Duration `mapstructure:"stop_timeout"`
}

// MasterConfig holds the control plane bot settings
type MasterConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	BotCredential string `mapstructure:"bot_credential"`
	OperatorID    string `mapstructure:"operator_id"`
}

// MessagingConfig holds the outbound messaging gateway settings
type MessagingConfig struct {
	BaseURL    string        `mapstructure:"base_url"`
	AdminToken string        `mapstructure:"admin_token"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

// LLMConfig holds the completion API settings
type LLMConfig struct {
	BaseURL      string        `mapstructure:"base_url"`
	DefaultModel string        `mapstructure:"default_model"`
	Models       []string      `mapstructure:"models"`
	KeyPrefix    string        `mapstructure:"key_prefix"`
	Timeout      time.Duration `mapstructure:"timeout"`
	MaxTokens    int           `mapstructure:"max_tokens"`
}

// PaymentConfig holds the subscription payment gateway settings
type PaymentConfig struct {
	SecretKey        string `mapstructure:"secret_key"`
	WebhookSecret    string `mapstructure:"webhook_secret"`
	Currency         string `mapstructure:"currency"`
	SuccessURL       string `mapstructure:"success_url"`
	CancelURL        string `mapstructure:"cancel_url"`
	ExternalIDPrefix string `mapstructure:"external_id_prefix"`
	EmailDomain      string `mapstructure:"email_domain"`
}

// SessionConfig holds session cache settings
type SessionConfig struct {
	CacheBackend  string        `mapstructure:"cache_backend"` // memory or redis
	CacheTTL      time.Duration `mapstructure:"cache_ttl"`
	PruneInterval time.Duration `mapstructure:"prune_interval"`
}

// SubscriptionConfig holds plan defaults
type SubscriptionConfig struct {
	Period          time.Duration `mapstructure:"period"`
	DefaultMaxUsers int           `mapstructure:"default_max_users"`
	DefaultPrice    float64       `mapstructure:"default_price"`
}

// Load loads configuration from environment variables and .env file
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")

	// A missing .env is fine; environment variables still apply.
	_ = v.ReadInConfig()

	return load(v)
}

// LoadWithPath loads configuration from a specific path
func LoadWithPath(path string) (*Config, error) {
	v := viper.New()

	v.SetConfigFile(path)
	v.SetConfigType("env")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return load(v)
}

func load(v *viper.Viper) (*Config, error) {
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	cfg := &Config{}
	if err := bindConfig(v, cfg); err != nil {
		return nil, fmt.Errorf("failed to bind config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	// App defaults
	v.SetDefault("APP_NAME", "botfleet")
	v.SetDefault("APP_ENVIRONMENT", "development")
	v.SetDefault("APP_DEBUG", true)
	v.SetDefault("APP_VERSION", "1.0.0")

	// Server defaults
	v.SetDefault("SERVER_HOST", "0.0.0.0")
	v.SetDefault("SERVER_PORT", 8080)
	v.SetDefault("SERVER_READ_TIMEOUT", "30s")
	v.SetDefault("SERVER_WRITE_TIMEOUT", "30s")
	v.SetDefault("SERVER_IDLE_TIMEOUT", "120s")
	v.SetDefault("SERVER_SHUTDOWN_TIMEOUT", "15s")
	v.SetDefault("SERVER_WEBHOOK_RATE", 20.0)
	v.SetDefault("SERVER_WEBHOOK_BURST", 40)

	// Log defaults
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_OUTPUT_PATH", "stdout")

	// Database defaults
	v.SetDefault("DATABASE_DRIVER", "postgres")
	v.SetDefault("DATABASE_HOST", "localhost")
	v.SetDefault("DATABASE_PORT", 5432)
	v.SetDefault("DATABASE_USER", "postgres")
	v.SetDefault("DATABASE_PASSWORD", "postgres")
	v.SetDefault("DATABASE_DBNAME", "botfleet")
	v.SetDefault("DATABASE_SSLMODE", "disable")
	v.SetDefault("DATABASE_MAX_OPEN_CONNS", 25)
	v.SetDefault("DATABASE_MAX_IDLE_CONNS", 5)
	v.SetDefault("DATABASE_CONN_MAX_LIFETIME", "1h")
	v.SetDefault("DATABASE_CONN_MAX_IDLE_TIME", "30m")
	v.SetDefault("DATABASE_AUTO_MIGRATE", true)

	// Redis defaults
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("REDIS_POOL_SIZE", 20)
	v.SetDefault("REDIS_MIN_IDLE_CONNS", 2)
	v.SetDefault("REDIS_DIAL_TIMEOUT", "5s")
	v.SetDefault("REDIS_READ_TIMEOUT", "3s")
	v.SetDefault("REDIS_WRITE_TIMEOUT", "3s")

	// Kafka defaults
	v.SetDefault("KAFKA_ENABLED", false)
	v.SetDefault("KAFKA_BROKERS", "localhost:9092")
	v.SetDefault("KAFKA_CLIENT_ID", "botfleet")
	v.SetDefault("KAFKA_TOPIC_PREFIX", "botfleet.")

	// JWT defaults
	v.SetDefault("JWT_ENABLED", false)
	v.SetDefault("JWT_SECRET", defaultJWTSecret)
	v.SetDefault("JWT_TOKEN_TTL", "24h")
	v.SetDefault("JWT_ISSUER", "botfleet")

	// OTel defaults
	v.SetDefault("OTEL_ENABLED", false)
	v.SetDefault("OTEL_SERVICE_NAME", "botfleet")
	v.SetDefault("OTEL_COLLECTOR_ADDR", "localhost:4317")
	v.SetDefault("OTEL_SAMPLE_RATIO", 1.0)

	// Bot transport defaults
	v.SetDefault("BOT_API_BASE_URL", "https://api.telegram.org")
	v.SetDefault("BOT_POLL_TIMEOUT", "30s")
	v.SetDefault("BOT_REQUEST_TIMEOUT", "10s")
	v.SetDefault("BOT_SEND_RATE", 25.0)
	v.SetDefault("BOT_SEND_BURST", 5)
	v.SetDefault("BOT_STOP_TIMEOUT", "10s")

	// Master control plane defaults
	v.SetDefault("MASTER_ENABLED", false)
	v.SetDefault("MASTER_BOT_CREDENTIAL", "")
	v.SetDefault("MASTER_OPERATOR_ID", "")

	// Messaging gateway defaults
	v.SetDefault("MESSAGING_BASE_URL", "http://localhost:8081")
	v.SetDefault("MESSAGING_ADMIN_TOKEN", "")
	v.SetDefault("MESSAGING_TIMEOUT", "15s")

	// LLM defaults
	v.SetDefault("LLM_BASE_URL", "https://api.openai.com/v1")
	v.SetDefault("LLM_DEFAULT_MODEL", "gpt-4o-mini")
	v.SetDefault("LLM_MODELS", "gpt-4o-mini,gpt-4o,gpt-3.5-turbo")
	v.SetDefault("LLM_KEY_PREFIX", "sk-")
	v.SetDefault("LLM_TIMEOUT", "60s")
	v.SetDefault("LLM_MAX_TOKENS", 512)

	// Payment defaults
	v.SetDefault("PAYMENT_SECRET_KEY", "")
	v.SetDefault("PAYMENT_WEBHOOK_SECRET", "")
	v.SetDefault("PAYMENT_CURRENCY", "brl")
	v.SetDefault("PAYMENT_SUCCESS_URL", "https://example.com/paid")
	v.SetDefault("PAYMENT_CANCEL_URL", "https://example.com/cancelled")
	v.SetDefault("PAYMENT_EXTERNAL_ID_PREFIX", "tenant_")
	v.SetDefault("PAYMENT_EMAIL_DOMAIN", "botfleet.local")

	// Session defaults
	v.SetDefault("SESSION_CACHE_BACKEND", "memory")
	v.SetDefault("SESSION_CACHE_TTL", "5m")
	v.SetDefault("SESSION_PRUNE_INTERVAL", "1m")

	// Subscription defaults
	v.SetDefault("SUBSCRIPTION_PERIOD", "720h") // 30 days
	v.SetDefault("SUBSCRIPTION_DEFAULT_MAX_USERS", 10)
	v.SetDefault("SUBSCRIPTION_DEFAULT_PRICE", 49.90)
}

func bindConfig(v *viper.Viper, cfg *Config) error {
	// App
	cfg.App.Name = v.GetString("APP_NAME")
	cfg.App.Environment = v.GetString("APP_ENVIRONMENT")
	cfg.App.Debug = v.GetBool("APP_DEBUG")
	cfg.App.Version = v.GetString("APP_VERSION")

	// Server
	cfg.Server.Host = v.GetString("SERVER_HOST")
	cfg.Server.Port = v.GetInt("SERVER_PORT")
	cfg.Server.ReadTimeout = v.GetDuration("SERVER_READ_TIMEOUT")
	cfg.Server.WriteTimeout = v.GetDuration("SERVER_WRITE_TIMEOUT")
	cfg.Server.IdleTimeout = v.GetDuration("SERVER_IDLE_TIMEOUT")
	cfg.Server.ShutdownTimeout = v.GetDuration("SERVER_SHUTDOWN_TIMEOUT")
	cfg.Server.WebhookRate = v.GetFloat64("SERVER_WEBHOOK_RATE")
	cfg.Server.WebhookBurst = v.GetInt("SERVER_WEBHOOK_BURST")

	// Log
	cfg.Log.Level = v.GetString("LOG_LEVEL")
	cfg.Log.OutputPath = v.GetString("LOG_OUTPUT_PATH")

	// Database
	cfg.Database.Driver = v.GetString("DATABASE_DRIVER")
	cfg.Database.Host = v.GetString("DATABASE_HOST")
	cfg.Database.Port = v.GetInt("DATABASE_PORT")
	cfg.Database.User = v.GetString("DATABASE_USER")
	cfg.Database.Password = v.GetString("DATABASE_PASSWORD")
	cfg.Database.DBName = v.GetString("DATABASE_DBNAME")
	cfg.Database.SSLMode = v.GetString("DATABASE_SSLMODE")
	cfg.Database.MaxOpenConns = v.GetInt("DATABASE_MAX_OPEN_CONNS")
	cfg.Database.MaxIdleConns = v.GetInt("DATABASE_MAX_IDLE_CONNS")
	cfg.Database.ConnMaxLifetime = v.GetDuration("DATABASE_CONN_MAX_LIFETIME")
	cfg.Database.ConnMaxIdleTime = v.GetDuration("DATABASE_CONN_MAX_IDLE_TIME")
	cfg.Database.AutoMigrate = v.GetBool("DATABASE_AUTO_MIGRATE")

	// Redis
	cfg.Redis.Host = v.GetString("REDIS_HOST")
	cfg.Redis.Port = v.GetInt("REDIS_PORT")
	cfg.Redis.Password = v.GetString("REDIS_PASSWORD")
	cfg.Redis.DB = v.GetInt("REDIS_DB")
	cfg.Redis.PoolSize = v.GetInt("REDIS_POOL_SIZE")
	cfg.Redis.MinIdleConns = v.GetInt("REDIS_MIN_IDLE_CONNS")
	cfg.Redis.DialTimeout = v.GetDuration("REDIS_DIAL_TIMEOUT")
	cfg.Redis.ReadTimeout = v.GetDuration("REDIS_READ_TIMEOUT")
	cfg.Redis.WriteTimeout = v.GetDuration("REDIS_WRITE_TIMEOUT")

	// Kafka
	cfg.Kafka.Enabled = v.GetBool("KAFKA_ENABLED")
	cfg.Kafka.Brokers = splitList(v.GetString("KAFKA_BROKERS"))
	cfg.Kafka.ClientID = v.GetString("KAFKA_CLIENT_ID")
	cfg.Kafka.TopicPrefix = v.GetString("KAFKA_TOPIC_PREFIX")

	// JWT
	cfg.JWT.Enabled = v.GetBool("JWT_ENABLED")
	cfg.JWT.Secret = v.GetString("JWT_SECRET")
	cfg.JWT.TokenTTL = v.GetDuration("JWT_TOKEN_TTL")
	cfg.JWT.Issuer = v.GetString("JWT_ISSUER")

	// OTel
	cfg.OTel.Enabled = v.GetBool("OTEL_ENABLED")
	cfg.OTel.ServiceName = v.GetString("OTEL_SERVICE_NAME")
	cfg.OTel.CollectorAddr = v.GetString("OTEL_COLLECTOR_ADDR")
	cfg.OTel.SampleRatio = v.GetFloat64("OTEL_SAMPLE_RATIO")

	// Bot
	cfg.Bot.APIBaseURL = strings.TrimRight(v.GetString("BOT_API_BASE_URL"), "/")
	cfg.Bot.PollTimeout = v.GetDuration("BOT_POLL_TIMEOUT")
	cfg.Bot.RequestTimeout = v.GetDuration("BOT_REQUEST_TIMEOUT")
	cfg.Bot.SendRate = v.GetFloat64("BOT_SEND_RATE")
	cfg.Bot.SendBurst = v.GetInt("BOT_SEND_BURST")
	cfg.Bot.StopTimeout = v.GetDuration("BOT_STOP_TIMEOUT")

	// Master
	cfg.Master.Enabled = v.GetBool("MASTER_ENABLED")
	cfg.Master.BotCredential = v.GetString("MASTER_BOT_CREDENTIAL")
	cfg.Master.OperatorID = v.GetString("MASTER_OPERATOR_ID")

	// Messaging
	cfg.Messaging.BaseURL = strings.TrimRight(v.GetString("MESSAGING_BASE_URL"), "/")
	cfg.Messaging.AdminToken = v.GetString("MESSAGING_ADMIN_TOKEN")
	cfg.Messaging.Timeout = v.GetDuration("MESSAGING_TIMEOUT")

	// LLM
	cfg.LLM.BaseURL = strings.TrimRight(v.GetString("LLM_BASE_URL"), "/")
	cfg.LLM.DefaultModel = v.GetString("LLM_DEFAULT_MODEL")
	cfg.LLM.Models = splitList(v.GetString("LLM_MODELS"))
	cfg.LLM.KeyPrefix = v.GetString("LLM_KEY_PREFIX")
	cfg.LLM.Timeout = v.GetDuration("LLM_TIMEOUT")
	cfg.LLM.MaxTokens = v.GetInt("LLM_MAX_TOKENS")

	// Payment
	cfg.Payment.SecretKey = v.GetString("PAYMENT_SECRET_KEY")
	cfg.Payment.WebhookSecret = v.GetString("PAYMENT_WEBHOOK_SECRET")
	cfg.Payment.Currency = v.GetString("PAYMENT_CURRENCY")
	cfg.Payment.SuccessURL = v.GetString("PAYMENT_SUCCESS_URL")
	cfg.Payment.CancelURL = v.GetString("PAYMENT_CANCEL_URL")
	cfg.Payment.ExternalIDPrefix = v.GetString("PAYMENT_EXTERNAL_ID_PREFIX")
	cfg.Payment.EmailDomain = v.GetString("PAYMENT_EMAIL_DOMAIN")

	// Session
	cfg.Session.CacheBackend = v.GetString("SESSION_CACHE_BACKEND")
	cfg.Session.CacheTTL = v.GetDuration("SESSION_CACHE_TTL")
	cfg.Session.PruneInterval = v.GetDuration("SESSION_PRUNE_INTERVAL")

	// Subscription
	cfg.Subscription.Period = v.GetDuration("SUBSCRIPTION_PERIOD")
	cfg.Subscription.DefaultMaxUsers = v.GetInt("SUBSCRIPTION_DEFAULT_MAX_USERS")
	cfg.Subscription.DefaultPrice = v.GetFloat64("SUBSCRIPTION_DEFAULT_PRICE")

	return nil
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.App.Name == "" {
		return fmt.Errorf("app name is required")
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	switch c.Database.Driver {
	case "postgres":
		if c.Database.Host == "" {
			return fmt.Errorf("database host is required")
		}
		if c.Database.DBName == "" {
			return fmt.Errorf("database name is required")
		}
	case "memory":
	default:
		return fmt.Errorf("unsupported database driver: %q", c.Database.Driver)
	}

	switch c.Session.CacheBackend {
	case "memory", "redis":
	default:
		return fmt.Errorf("unsupported session cache backend: %q", c.Session.CacheBackend)
	}

	if c.Session.CacheTTL <= 0 {
		return fmt.Errorf("session cache ttl must be positive")
	}

	if c.Subscription.Period <= 0 {
		return fmt.Errorf("subscription period must be positive")
	}

	if c.Subscription.DefaultMaxUsers <= 0 {
		return fmt.Errorf("default max users must be positive")
	}

	if c.Master.Enabled && (c.Master.BotCredential == "" || c.Master.OperatorID == "") {
		return fmt.Errorf("master bot requires MASTER_BOT_CREDENTIAL and MASTER_OPERATOR_ID")
	}

	if c.JWT.Enabled && c.JWT.Secret == "" {
		return fmt.Errorf("JWT secret is required")
	}

	if c.IsProduction() && c.JWT.Enabled && c.JWT.Secret == defaultJWTSecret {
		return fmt.Errorf("JWT secret must be changed in production")
	}

	return nil
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.App.Environment == "development"
}
