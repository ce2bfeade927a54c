package di

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/prohmpiriya/botfleet/internal/billing"
	"github.com/prohmpiriya/botfleet/internal/client/botapi"
	"github.com/prohmpiriya/botfleet/internal/client/llm"
	"github.com/prohmpiriya/botfleet/internal/client/messaging"
	"github.com/prohmpiriya/botfleet/internal/gate"
	"github.com/prohmpiriya/botfleet/internal/gateway"
	"github.com/prohmpiriya/botfleet/internal/handler"
	"github.com/prohmpiriya/botfleet/internal/lifecycle"
	"github.com/prohmpiriya/botfleet/internal/master"
	"github.com/prohmpiriya/botfleet/internal/metrics"
	"github.com/prohmpiriya/botfleet/internal/repository"
	"github.com/prohmpiriya/botfleet/internal/service"
	"github.com/prohmpiriya/botfleet/internal/session"
	"github.com/prohmpiriya/botfleet/internal/tenantbot"
	"github.com/prohmpiriya/botfleet/pkg/config"
	"github.com/prohmpiriya/botfleet/pkg/database"
	"github.com/prohmpiriya/botfleet/pkg/kafka"
	"github.com/prohmpiriya/botfleet/pkg/logger"
	"github.com/prohmpiriya/botfleet/pkg/middleware"
	"github.com/prohmpiriya/botfleet/pkg/redis"
)

// Container holds all dependencies of the fleet runtime
type Container struct {
	Config *config.Config
	Log    *logger.Logger

	// Infrastructure
	DB        *database.PostgresDB
	Redis     *redis.Client
	Publisher kafka.Publisher
	Registry  *prometheus.Registry
	Metrics   *metrics.Metrics

	// Repositories
	TenantRepo       repository.TenantRepository
	SessionRepo      repository.SessionRepository
	SettingsRepo     repository.SettingsRepository
	PaymentEventRepo repository.PaymentEventRepository

	// Runtime
	SessionCache session.Cache
	Sessions     *session.Store
	Gate         *gate.Gate
	Handlers     *tenantbot.Handlers
	Manager      *lifecycle.Manager
	Reconciler   *billing.Reconciler
	Master       *master.ControlPlane
	BotConfig    botapi.Config

	// Services
	TenantService   service.TenantService
	SettingsService service.SettingsService

	// HTTP
	Audit          *middleware.AuditLogger
	WebhookLimiter *middleware.ClientRateLimiter
	AdminHandler   *handler.AdminHandler
	WebhookHandler *handler.WebhookHandler
	HealthHandler  *handler.HealthHandler
}

// ContainerConfig contains configuration for building the container
type ContainerConfig struct {
	Config *config.Config
	Log    *logger.Logger
	// Connect overrides the bot transport factory; nil dials the bot API
	Connect lifecycle.TransportFactory
}

// NewContainer connects the infrastructure selected by the config and wires
// every component. Close releases what was opened.
func NewContainer(ctx context.Context, cfg *ContainerConfig) (*Container, error) {
	if cfg == nil || cfg.Config == nil {
		return nil, errors.New("container requires a config")
	}
	log := cfg.Log
	if log == nil {
		log = logger.Nop()
	}
	c := &Container{Config: cfg.Config, Log: log}

	if err := c.initInfrastructure(ctx); err != nil {
		c.Close()
		return nil, err
	}
	c.initRepositories()
	c.initRuntime(cfg.Connect)
	c.initHTTP()
	return c, nil
}

func (c *Container) initInfrastructure(ctx context.Context) error {
	cfg := c.Config

	c.Registry = prometheus.NewRegistry()
	c.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	c.Metrics = metrics.New(c.Registry)

	if !cfg.Database.IsMemory() {
		db, err := database.NewPostgres(ctx, &database.PostgresConfig{
			Host:            cfg.Database.Host,
			Port:            cfg.Database.Port,
			User:            cfg.Database.User,
			Password:        cfg.Database.Password,
			Database:        cfg.Database.DBName,
			SSLMode:         cfg.Database.SSLMode,
			MaxConns:        int32(cfg.Database.MaxOpenConns),
			MinConns:        int32(cfg.Database.MaxIdleConns),
			MaxConnLifetime: cfg.Database.ConnMaxLifetime,
			MaxConnIdleTime: cfg.Database.ConnMaxIdleTime,
			MaxRetries:      3,
		})
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		c.DB = db
		c.Log.Info("Connected to PostgreSQL", zap.String("host", cfg.Database.Host), zap.String("database", cfg.Database.DBName))

		if cfg.Database.AutoMigrate {
			if err := repository.Migrate(ctx, db.Pool()); err != nil {
				return fmt.Errorf("failed to migrate schema: %w", err)
			}
		}
	}

	if cfg.Session.CacheBackend == "redis" {
		client, err := redis.NewClient(ctx, &redis.Config{
			Addr:         cfg.Redis.Addr(),
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			PoolSize:     cfg.Redis.PoolSize,
			MinIdleConns: cfg.Redis.MinIdleConns,
			DialTimeout:  cfg.Redis.DialTimeout,
			ReadTimeout:  cfg.Redis.ReadTimeout,
			WriteTimeout: cfg.Redis.WriteTimeout,
		})
		if err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		c.Redis = client
		c.Log.Info("Connected to Redis", zap.String("addr", cfg.Redis.Addr()))
	}

	c.Publisher = kafka.NewNoopPublisher()
	if cfg.Kafka.Enabled {
		producer, err := kafka.NewProducer(ctx, &kafka.ProducerConfig{
			Brokers:     cfg.Kafka.Brokers,
			ClientID:    cfg.Kafka.ClientID,
			TopicPrefix: cfg.Kafka.TopicPrefix,
		})
		if err != nil {
			// lifecycle events are best effort; the fleet runs without them
			c.Log.Warn("Kafka unavailable, lifecycle events disabled", zap.Error(err))
		} else {
			c.Publisher = producer
		}
	}
	return nil
}

func (c *Container) initRepositories() {
	if c.DB == nil {
		c.TenantRepo = repository.NewMemoryTenantRepository()
		c.SessionRepo = repository.NewMemorySessionRepository()
		c.SettingsRepo = repository.NewMemorySettingsRepository()
		c.PaymentEventRepo = repository.NewMemoryPaymentEventRepository()
		c.Log.Warn("Using in-memory storage, data is lost on restart")
		return
	}
	pool := c.DB.Pool()
	c.TenantRepo = repository.NewPostgresTenantRepository(pool)
	c.SessionRepo = repository.NewPostgresSessionRepository(pool)
	c.SettingsRepo = repository.NewPostgresSettingsRepository(pool)
	c.PaymentEventRepo = repository.NewPostgresPaymentEventRepository(pool)
}

func (c *Container) initRuntime(connect lifecycle.TransportFactory) {
	cfg := c.Config

	if c.Redis != nil {
		c.SessionCache = session.NewRedisCache(c.Redis, cfg.Session.CacheTTL)
	} else {
		c.SessionCache = session.NewMemoryCache(cfg.Session.CacheTTL)
	}
	c.Sessions = session.NewStore(c.SessionCache, c.SessionRepo, c.Log, c.Metrics)
	c.Gate = gate.New(c.Sessions, c.Log, c.Metrics)

	payments := gateway.PaymentGateway(gateway.NewNoopGateway())
	stripeGW, err := gateway.NewStripeGateway(gateway.GatewayConfig{
		SecretKey:        cfg.Payment.SecretKey,
		Currency:         cfg.Payment.Currency,
		SuccessURL:       cfg.Payment.SuccessURL,
		CancelURL:        cfg.Payment.CancelURL,
		ExternalIDPrefix: cfg.Payment.ExternalIDPrefix,
		EmailDomain:      cfg.Payment.EmailDomain,
	})
	if err == nil {
		payments = stripeGW
	} else {
		c.Log.Info("Payment gateway not configured, online renewal disabled")
	}

	c.Handlers = tenantbot.NewHandlers(
		tenantbot.Config{
			Models:       cfg.LLM.Models,
			DefaultModel: cfg.LLM.DefaultModel,
			KeyPrefix:    cfg.LLM.KeyPrefix,
		},
		messaging.NewClient(cfg.Messaging.BaseURL, cfg.Messaging.AdminToken, cfg.Messaging.Timeout),
		llm.NewClient(cfg.LLM.BaseURL, cfg.LLM.DefaultModel, cfg.LLM.MaxTokens, cfg.LLM.Timeout),
		payments,
		c.Log,
	)

	c.BotConfig = botapi.Config{
		BaseURL:        cfg.Bot.APIBaseURL,
		RequestTimeout: cfg.Bot.RequestTimeout,
		PollTimeout:    cfg.Bot.PollTimeout,
		SendRate:       cfg.Bot.SendRate,
		SendBurst:      cfg.Bot.SendBurst,
	}
	if connect == nil {
		connect = c.DialBot
	}
	c.Manager = lifecycle.NewManager(
		c.TenantRepo,
		c.Sessions,
		c.Gate,
		c.Handlers,
		connect,
		lifecycle.Config{StopTimeout: cfg.Bot.StopTimeout},
		c.Log,
		c.Metrics,
	)

	c.SettingsService = service.NewSettingsService(c.SettingsRepo, cfg.Subscription.DefaultPrice)
	c.TenantService = service.NewTenantService(
		service.TenantConfig{
			Period:          cfg.Subscription.Period,
			DefaultMaxUsers: cfg.Subscription.DefaultMaxUsers,
			DefaultModel:    cfg.LLM.DefaultModel,
			Models:          cfg.LLM.Models,
			KeyPrefix:       cfg.LLM.KeyPrefix,
		},
		c.TenantRepo,
		c.Manager,
		c.SettingsService,
		c.Publisher,
		c.Log,
	)
	c.Handlers.SetTenantService(c.TenantService)

	c.Reconciler = billing.NewReconciler(
		billing.Config{
			Period:           cfg.Subscription.Period,
			ExternalIDPrefix: cfg.Payment.ExternalIDPrefix,
			WebhookSecret:    cfg.Payment.WebhookSecret,
		},
		c.TenantRepo,
		c.PaymentEventRepo,
		c.Manager,
		c.Publisher,
		c.Log,
		c.Metrics,
	)

	if cfg.Master.Enabled {
		c.Master = master.New(
			master.Config{OperatorID: cfg.Master.OperatorID},
			c.TenantService,
			c.SettingsService,
			c.Manager,
			c.Sessions,
			c.Log,
			c.Metrics,
		)
	}
}

func (c *Container) initHTTP() {
	cfg := c.Config

	// a nil *PostgresDB must not reach the Execer interface
	var auditCfg *middleware.AuditConfig
	if c.DB != nil {
		auditCfg = middleware.DefaultAuditConfig(c.DB)
	} else {
		auditCfg = middleware.DefaultAuditConfig(nil)
	}
	auditCfg.OnError = func(err error) {
		c.Log.Warn("Failed to write audit entry", zap.Error(err))
	}
	c.Audit = middleware.NewAuditLogger(auditCfg)

	if cfg.Server.WebhookRate > 0 {
		limits := middleware.DefaultRateLimitConfig()
		limits.RequestsPerSecond = cfg.Server.WebhookRate
		if cfg.Server.WebhookBurst > 0 {
			limits.BurstSize = cfg.Server.WebhookBurst
		}
		c.WebhookLimiter = middleware.NewClientRateLimiter(limits)
	}

	checks := map[string]handler.HealthChecker{}
	if c.DB != nil {
		checks["database"] = c.DB
	}
	if c.Redis != nil {
		checks["redis"] = c.Redis
	}

	c.AdminHandler = handler.NewAdminHandler(c.TenantService, c.Manager)
	c.WebhookHandler = handler.NewWebhookHandler(c.Reconciler, c.Log)
	c.HealthHandler = handler.NewHealthHandler(c.Manager, checks)
}

// DialBot connects a bot credential to the chat API
func (c *Container) DialBot(ctx context.Context, credential string) (lifecycle.Transport, error) {
	client, err := botapi.Dial(ctx, c.BotConfig, credential)
	if err != nil {
		return nil, err
	}
	return client, nil
}

// RouterConfig returns the HTTP surface wired to the container
func (c *Container) RouterConfig() handler.RouterConfig {
	rc := handler.RouterConfig{
		Admin:          c.AdminHandler,
		Webhook:        c.WebhookHandler,
		Health:         c.HealthHandler,
		Audit:          c.Audit,
		WebhookLimiter: c.WebhookLimiter,
		Gatherer:       c.Registry,
		Log:            c.Log,
	}
	if c.Config.JWT.Enabled {
		rc.JWT = &middleware.JWTConfig{Secret: c.Config.JWT.Secret, Issuer: c.Config.JWT.Issuer}
	}
	return rc
}

// Close releases the infrastructure in reverse order of creation
func (c *Container) Close() {
	if c.Audit != nil {
		_ = c.Audit.Close()
	}
	if c.Publisher != nil {
		c.Publisher.Close()
	}
	if c.Redis != nil {
		_ = c.Redis.Close()
	}
	if c.DB != nil {
		c.DB.Close()
	}
}
