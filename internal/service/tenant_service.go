package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/prohmpiriya/botfleet/internal/domain"
	"github.com/prohmpiriya/botfleet/internal/dto"
	"github.com/prohmpiriya/botfleet/internal/lifecycle"
	"github.com/prohmpiriya/botfleet/internal/repository"
	"github.com/prohmpiriya/botfleet/pkg/kafka"
	"github.com/prohmpiriya/botfleet/pkg/logger"
)

var (
	ErrTenantNotFound   = errors.New("tenant not found")
	ErrInvalidInput     = errors.New("invalid input")
	ErrInstanceStart    = errors.New("tenant saved but its bot failed to start")
	ErrInvalidQuota     = errors.New("max users must be at least 1")
	ErrInvalidPrice     = errors.New("price must be a finite, non-negative number")
	ErrInvalidAIKey     = errors.New("AI key must start with sk-")
	ErrUnsupportedModel = errors.New("unsupported AI model")
)

// Lifecycle is the part of lifecycle.Manager the service drives
type Lifecycle interface {
	Start(ctx context.Context, tenant *domain.Tenant) (*lifecycle.Instance, error)
	Stop(ctx context.Context, tenantID int64) error
	Reload(ctx context.Context, tenantID int64) error
	IsRunning(tenantID int64) bool
}

// TenantService defines tenant provisioning and mutation operations
type TenantService interface {
	// Provision inserts a tenant with a fresh subscription and starts its bot
	Provision(ctx context.Context, req *dto.CreateTenantRequest) (*domain.Tenant, error)
	// Get retrieves a tenant by id
	Get(ctx context.Context, id int64) (*domain.Tenant, error)
	// List retrieves every tenant
	List(ctx context.Context) ([]*domain.Tenant, error)
	// SetActive flips is_active and synchronously stops or starts the bot
	SetActive(ctx context.Context, id int64, active bool) (*domain.Tenant, error)
	// Toggle inverts is_active
	Toggle(ctx context.Context, id int64) (*domain.Tenant, error)
	// Renew extends the subscription by one period
	Renew(ctx context.Context, id int64) (time.Time, error)
	// SetMaxUsers changes the user quota
	SetMaxUsers(ctx context.Context, id int64, maxUsers int) (*domain.Tenant, error)
	// SetPrice sets the price override; nil falls back to the default price
	SetPrice(ctx context.Context, id int64, price *float64) (*domain.Tenant, error)
	// UpdatePaymentCredentials stores the tenant's own payment gateway credentials
	UpdatePaymentCredentials(ctx context.Context, id int64, gatewayID, secret string) (*domain.Tenant, error)
	// UpdateAISettings stores the AI key and model
	UpdateAISettings(ctx context.Context, id int64, key, model string) (*domain.Tenant, error)
	// UpdateSystemPrompt stores the system prompt
	UpdateSystemPrompt(ctx context.Context, id int64, prompt string) (*domain.Tenant, error)
	// EffectivePrice returns the override, or the global default when unset
	EffectivePrice(ctx context.Context, tenant *domain.Tenant) (float64, error)
}

// TenantConfig holds provisioning defaults
type TenantConfig struct {
	Period          time.Duration
	DefaultMaxUsers int
	DefaultModel    string
	Models          []string
	KeyPrefix       string
}

// tenantService implements TenantService
type tenantService struct {
	cfg       TenantConfig
	repo      repository.TenantRepository
	lifecycle Lifecycle
	settings  SettingsService
	publisher kafka.Publisher
	log       *logger.Logger
	now       func() time.Time
}

// NewTenantService creates a new TenantService
func NewTenantService(
	cfg TenantConfig,
	repo repository.TenantRepository,
	lc Lifecycle,
	settings SettingsService,
	publisher kafka.Publisher,
	log *logger.Logger,
) TenantService {
	if cfg.Period <= 0 {
		cfg.Period = domain.SubscriptionPeriod
	}
	if cfg.DefaultMaxUsers <= 0 {
		cfg.DefaultMaxUsers = domain.DefaultMaxUsers
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = domain.DefaultAIModel
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "sk-"
	}
	if publisher == nil {
		publisher = kafka.NewNoopPublisher()
	}
	if log == nil {
		log = logger.Nop()
	}
	return &tenantService{
		cfg:       cfg,
		repo:      repo,
		lifecycle: lc,
		settings:  settings,
		publisher: publisher,
		log:       log.Named("tenant-service"),
		now:       time.Now,
	}
}

// Provision inserts a tenant with a fresh subscription and starts its bot.
// When the start fails the inserted tenant is returned with ErrInstanceStart.
func (s *tenantService) Provision(ctx context.Context, req *dto.CreateTenantRequest) (*domain.Tenant, error) {
	name := strings.TrimSpace(req.Name)
	credential := strings.TrimSpace(req.BotCredential)
	if name == "" || credential == "" {
		return nil, fmt.Errorf("%w: name and bot_credential are required", ErrInvalidInput)
	}
	maxUsers := req.MaxUsers
	if maxUsers <= 0 {
		maxUsers = s.cfg.DefaultMaxUsers
	}

	now := s.now()
	exp := now.Add(s.cfg.Period)
	tenant := &domain.Tenant{
		Name:                 name,
		BotCredential:        credential,
		OwnerID:              strings.TrimSpace(req.OwnerID),
		IsActive:             true,
		ExpirationDate:       &exp,
		MaxUsers:             maxUsers,
		AIModel:              s.cfg.DefaultModel,
		PaymentGatewayID:     strings.TrimSpace(req.PaymentGatewayID),
		PaymentGatewaySecret: strings.TrimSpace(req.PaymentGatewaySecret),
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	if err := s.repo.Create(ctx, tenant); err != nil {
		return nil, fmt.Errorf("failed to create tenant: %w", err)
	}
	log := s.log.ForTenant(tenant.ID)

	_, startErr := s.lifecycle.Start(ctx, tenant)
	s.publish(ctx, dto.TopicTenantProvisioned, &dto.TenantProvisionedEvent{
		EventID:   uuid.New().String(),
		EventType: dto.TopicTenantProvisioned,
		TenantID:  tenant.ID,
		Name:      tenant.Name,
		Started:   startErr == nil,
		Timestamp: now,
	})
	if startErr != nil {
		log.Error("Tenant provisioned but instance failed to start", zap.Error(startErr))
		return tenant, fmt.Errorf("%w (tenant %d): %w", ErrInstanceStart, tenant.ID, startErr)
	}
	log.Info("Tenant provisioned", zap.String("tenant_name", tenant.Name))
	return tenant, nil
}

// Get retrieves a tenant by id
func (s *tenantService) Get(ctx context.Context, id int64) (*domain.Tenant, error) {
	tenant, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if tenant == nil {
		return nil, ErrTenantNotFound
	}
	return tenant, nil
}

// List retrieves every tenant
func (s *tenantService) List(ctx context.Context) ([]*domain.Tenant, error) {
	return s.repo.List(ctx)
}

func (s *tenantService) SetActive(ctx context.Context, id int64, active bool) (*domain.Tenant, error) {
	tenant, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.repo.SetActive(ctx, id, active); err != nil {
		return nil, mapNotFound(err)
	}
	tenant.IsActive = active
	s.publish(ctx, dto.TopicTenantStatusChange, &dto.TenantStatusChangedEvent{
		EventID:   uuid.New().String(),
		EventType: dto.TopicTenantStatusChange,
		TenantID:  id,
		IsActive:  active,
		Timestamp: s.now(),
	})

	if !active {
		if err := s.lifecycle.Stop(ctx, id); err != nil && !errors.Is(err, lifecycle.ErrNotRunning) {
			return tenant, fmt.Errorf("tenant deactivated but bot did not stop: %w", err)
		}
		return tenant, nil
	}
	if _, err := s.lifecycle.Start(ctx, tenant); err != nil {
		return tenant, fmt.Errorf("%w (tenant %d): %w", ErrInstanceStart, id, err)
	}
	return tenant, nil
}

func (s *tenantService) Toggle(ctx context.Context, id int64) (*domain.Tenant, error) {
	tenant, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.SetActive(ctx, id, !tenant.IsActive)
}

// Renew applies the same arithmetic as a paid notification. A tenant
// whose bot is not running is started, since the renewal reactivates it.
func (s *tenantService) Renew(ctx context.Context, id int64) (time.Time, error) {
	exp, err := s.repo.Renew(ctx, id, s.now(), s.cfg.Period)
	if err != nil {
		return time.Time{}, mapNotFound(err)
	}
	s.publish(ctx, dto.TopicTenantRenewed, &dto.TenantRenewedEvent{
		EventID:       uuid.New().String(),
		EventType:     dto.TopicTenantRenewed,
		TenantID:      id,
		Source:        dto.RenewalSourceManual,
		NewExpiration: exp,
		Timestamp:     s.now(),
	})

	if s.lifecycle.IsRunning(id) {
		s.reload(ctx, id)
		return exp, nil
	}
	tenant, err := s.Get(ctx, id)
	if err != nil {
		return exp, err
	}
	if _, err := s.lifecycle.Start(ctx, tenant); err != nil {
		return exp, fmt.Errorf("%w (tenant %d): %w", ErrInstanceStart, id, err)
	}
	return exp, nil
}

func (s *tenantService) SetMaxUsers(ctx context.Context, id int64, maxUsers int) (*domain.Tenant, error) {
	if maxUsers < 1 {
		return nil, ErrInvalidQuota
	}
	return s.mutate(ctx, id, func(t *domain.Tenant) { t.MaxUsers = maxUsers })
}

func (s *tenantService) SetPrice(ctx context.Context, id int64, price *float64) (*domain.Tenant, error) {
	if price != nil && !validPrice(*price) {
		return nil, ErrInvalidPrice
	}
	return s.mutate(ctx, id, func(t *domain.Tenant) {
		if price == nil {
			t.SubscriptionPrice = nil
			return
		}
		v := *price
		t.SubscriptionPrice = &v
	})
}

func (s *tenantService) UpdatePaymentCredentials(ctx context.Context, id int64, gatewayID, secret string) (*domain.Tenant, error) {
	gatewayID, secret = strings.TrimSpace(gatewayID), strings.TrimSpace(secret)
	if gatewayID == "" || secret == "" {
		return nil, fmt.Errorf("%w: gateway id and secret are required", ErrInvalidInput)
	}
	return s.mutate(ctx, id, func(t *domain.Tenant) {
		t.PaymentGatewayID = gatewayID
		t.PaymentGatewaySecret = secret
	})
}

func (s *tenantService) UpdateAISettings(ctx context.Context, id int64, key, model string) (*domain.Tenant, error) {
	key = strings.TrimSpace(key)
	if !strings.HasPrefix(key, s.cfg.KeyPrefix) || len(key) == len(s.cfg.KeyPrefix) {
		return nil, ErrInvalidAIKey
	}
	if model == "" {
		model = s.cfg.DefaultModel
	}
	if len(s.cfg.Models) > 0 && !contains(s.cfg.Models, model) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedModel, model)
	}
	return s.mutate(ctx, id, func(t *domain.Tenant) {
		t.AICredential = key
		t.AIModel = model
	})
}

func (s *tenantService) UpdateSystemPrompt(ctx context.Context, id int64, prompt string) (*domain.Tenant, error) {
	prompt = strings.TrimSpace(prompt)
	return s.mutate(ctx, id, func(t *domain.Tenant) { t.SystemPrompt = prompt })
}

func (s *tenantService) EffectivePrice(ctx context.Context, tenant *domain.Tenant) (float64, error) {
	if tenant.SubscriptionPrice != nil {
		return *tenant.SubscriptionPrice, nil
	}
	return s.settings.DefaultPrice(ctx)
}

// mutate loads, changes, stores and reloads the running bot.
// Update leaves activation and expiration alone, so a renewal
// landing between the read and the write survives.
func (s *tenantService) mutate(ctx context.Context, id int64, change func(*domain.Tenant)) (*domain.Tenant, error) {
	tenant, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	change(tenant)
	tenant.UpdatedAt = s.now()
	if err := s.repo.Update(ctx, tenant); err != nil {
		return nil, mapNotFound(err)
	}
	s.reload(ctx, id)
	return s.Get(ctx, id)
}

func (s *tenantService) reload(ctx context.Context, id int64) {
	if !s.lifecycle.IsRunning(id) {
		return
	}
	if err := s.lifecycle.Reload(ctx, id); err != nil && !errors.Is(err, lifecycle.ErrNotRunning) {
		s.log.ForTenant(id).Warn("Failed to reload instance", zap.Error(err))
	}
}

type keyed interface {
	Key() string
}

func (s *tenantService) publish(ctx context.Context, topic string, event keyed) {
	if err := s.publisher.Publish(ctx, topic, event.Key(), event); err != nil {
		s.log.Warn("Failed to publish tenant event", zap.String("topic", topic), zap.Error(err))
	}
}

func mapNotFound(err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return ErrTenantNotFound
	}
	return err
}

func validPrice(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v >= 0
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
