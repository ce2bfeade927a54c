package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/prohmpiriya/botfleet/internal/bot"
	"github.com/prohmpiriya/botfleet/internal/domain"
	"github.com/prohmpiriya/botfleet/internal/gate"
	"github.com/prohmpiriya/botfleet/internal/metrics"
	"github.com/prohmpiriya/botfleet/internal/repository"
	"github.com/prohmpiriya/botfleet/internal/wizard"
	"github.com/prohmpiriya/botfleet/pkg/logger"
	"github.com/prohmpiriya/botfleet/pkg/telemetry"
	"go.uber.org/zap"
)

var (
	// ErrNotRunning is returned for tenants without a registered instance
	ErrNotRunning = errors.New("instance not running")
	// ErrTenantNotFound is returned by Reload for unknown tenants
	ErrTenantNotFound = errors.New("tenant not found")
)

// UserCounts is the part of session.Store used to seed the user counter
type UserCounts interface {
	CountUsers(ctx context.Context, tenantID int64, exceptUserID string) (int, error)
}

// Registrar installs the tenant bot handlers on a fresh router
type Registrar interface {
	Engine() *wizard.Engine
	Register(r *bot.Router, inst *Instance)
}

// Config holds lifecycle settings
type Config struct {
	StopTimeout time.Duration
}

// Manager owns the registry of running tenant instances
type Manager struct {
	mu        sync.RWMutex
	instances map[int64]*Instance
	// serializes start/stop so a restart never races itself
	opMu sync.Mutex

	tenants   repository.TenantRepository
	counts    UserCounts
	gate      *gate.Gate
	registrar Registrar
	connect   TransportFactory
	cfg       Config
	log       *logger.Logger
	metrics   *metrics.Metrics
}

// NewManager creates a manager with an empty registry
func NewManager(
	tenants repository.TenantRepository,
	counts UserCounts,
	g *gate.Gate,
	registrar Registrar,
	connect TransportFactory,
	cfg Config,
	log *logger.Logger,
	m *metrics.Metrics,
) *Manager {
	if log == nil {
		log = logger.Nop()
	}
	if m == nil {
		m = metrics.NewNop()
	}
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = 10 * time.Second
	}
	return &Manager{
		instances: make(map[int64]*Instance),
		tenants:   tenants,
		counts:    counts,
		gate:      g,
		registrar: registrar,
		connect:   connect,
		cfg:       cfg,
		log:       log.Named("lifecycle"),
		metrics:   m,
	}
}

// Start launches the tenant's bot. A running instance of the same tenant is
// stopped first, so calling Start twice leaves exactly one instance.
func (m *Manager) Start(ctx context.Context, tenant *domain.Tenant) (*Instance, error) {
	ctx, span := telemetry.StartSpan(ctx, "lifecycle.start")
	defer span.End()
	span.SetAttributes(telemetry.TenantIDAttr(tenant.ID))

	m.opMu.Lock()
	defer m.opMu.Unlock()

	log := m.log.ForTenant(tenant.ID)
	if err := m.stopLocked(ctx, tenant.ID); err != nil && !errors.Is(err, ErrNotRunning) {
		log.Warn("Failed to stop previous instance", zap.Error(err))
	}

	inst, err := m.build(ctx, tenant, log)
	if err != nil {
		m.metrics.InstanceStarts.WithLabelValues("error").Inc()
		telemetry.RecordError(span, err)
		return nil, err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	inst.cancel = cancel
	go inst.run(runCtx, log, m.metrics)

	m.mu.Lock()
	m.instances[tenant.ID] = inst
	running := len(m.instances)
	m.mu.Unlock()

	m.metrics.InstanceStarts.WithLabelValues("ok").Inc()
	m.metrics.InstancesRunning.Set(float64(running))
	log.Info("Instance started", zap.String("tenant_name", tenant.Name), zap.Int("users", inst.counter.Load()))
	return inst, nil
}

func (m *Manager) build(ctx context.Context, tenant *domain.Tenant, log *logger.Logger) (*Instance, error) {
	transport, err := m.connect(ctx, tenant.BotCredential)
	if err != nil {
		return nil, fmt.Errorf("failed to connect bot for tenant %d: %w", tenant.ID, err)
	}

	users, err := m.counts.CountUsers(ctx, tenant.ID, tenant.OwnerID)
	if err != nil {
		return nil, fmt.Errorf("failed to count users of tenant %d: %w", tenant.ID, err)
	}

	inst := newInstance(tenant, transport, users)
	router := bot.NewRouter()
	router.Use(
		bot.Recover(log),
		bot.Logging(log),
		m.gate.Middleware(inst),
		m.registrar.Engine().Middleware(log),
	)
	m.registrar.Register(router, inst)
	inst.router = router
	return inst, nil
}

// Stop cancels the tenant's transport loop and waits for it to finish
func (m *Manager) Stop(ctx context.Context, tenantID int64) error {
	ctx, span := telemetry.StartSpan(ctx, "lifecycle.stop")
	defer span.End()
	span.SetAttributes(telemetry.TenantIDAttr(tenantID))

	m.opMu.Lock()
	defer m.opMu.Unlock()
	err := m.stopLocked(ctx, tenantID)
	telemetry.RecordError(span, err)
	return err
}

func (m *Manager) stopLocked(ctx context.Context, tenantID int64) error {
	m.mu.Lock()
	inst, ok := m.instances[tenantID]
	delete(m.instances, tenantID)
	running := len(m.instances)
	m.mu.Unlock()
	if !ok {
		return ErrNotRunning
	}
	m.metrics.InstancesRunning.Set(float64(running))

	inst.cancel()
	ctx, cancel := context.WithTimeout(ctx, m.cfg.StopTimeout)
	defer cancel()
	select {
	case <-inst.done:
		m.log.ForTenant(tenantID).Info("Instance stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("instance %d did not stop in time: %w", tenantID, ctx.Err())
	}
}

// Reload re-reads the tenant and merges it into the running instance
func (m *Manager) Reload(ctx context.Context, tenantID int64) error {
	inst, ok := m.Get(tenantID)
	if !ok {
		return ErrNotRunning
	}
	fresh, err := m.tenants.GetByID(ctx, tenantID)
	if err != nil {
		return fmt.Errorf("failed to reload tenant %d: %w", tenantID, err)
	}
	if fresh == nil {
		return ErrTenantNotFound
	}
	inst.Apply(fresh)
	m.log.ForTenant(tenantID).Debug("Instance reloaded")
	return nil
}

// LoadAll starts every active tenant. Failures are logged per tenant and
// never stop the others; the number of started instances is returned.
func (m *Manager) LoadAll(ctx context.Context) (int, error) {
	tenants, err := m.tenants.ListActive(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list active tenants: %w", err)
	}

	started := 0
	for _, t := range tenants {
		if _, err := m.Start(ctx, t); err != nil {
			m.log.ForTenant(t.ID).Error("Failed to start instance", zap.Error(err))
			continue
		}
		started++
	}
	m.log.Info("Tenant instances loaded", zap.Int("started", started), zap.Int("failed", len(tenants)-started))
	return started, nil
}

// Notify sends text to the owner of a running tenant
func (m *Manager) Notify(ctx context.Context, tenantID int64, text string) error {
	inst, ok := m.Get(tenantID)
	if !ok {
		return ErrNotRunning
	}
	return inst.Notify(ctx, text)
}

// Get returns the running instance of a tenant
func (m *Manager) Get(tenantID int64) (*Instance, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	inst, ok := m.instances[tenantID]
	return inst, ok
}

// IsRunning reports whether the tenant has a registered instance
func (m *Manager) IsRunning(tenantID int64) bool {
	_, ok := m.Get(tenantID)
	return ok
}

// Running returns the ids of registered instances in ascending order
func (m *Manager) Running() []int64 {
	m.mu.RLock()
	ids := make([]int64, 0, len(m.instances))
	for id := range m.instances {
		ids = append(ids, id)
	}
	m.mu.RUnlock()
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Count returns the number of registered instances
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.instances)
}

// Shutdown stops every instance
func (m *Manager) Shutdown(ctx context.Context) {
	for _, id := range m.Running() {
		if err := m.Stop(ctx, id); err != nil && !errors.Is(err, ErrNotRunning) {
			m.log.ForTenant(id).Warn("Failed to stop instance", zap.Error(err))
		}
	}
}
