package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/prohmpiriya/botfleet/internal/domain"
)

type sessionKey struct {
	tenantID int64
	userID   string
}

// MemoryTenantRepository is an in-memory TenantRepository used by the memory driver and tests
type MemoryTenantRepository struct {
	mu      sync.RWMutex
	tenants map[int64]*domain.Tenant
	nextID  int64
}

// NewMemoryTenantRepository creates an empty tenant store
func NewMemoryTenantRepository() *MemoryTenantRepository {
	return &MemoryTenantRepository{tenants: make(map[int64]*domain.Tenant), nextID: 1}
}

func (r *MemoryTenantRepository) Create(ctx context.Context, tenant *domain.Tenant) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	tenant.ID = r.nextID
	r.nextID++
	r.tenants[tenant.ID] = tenant.Clone()
	return nil
}

func (r *MemoryTenantRepository) GetByID(ctx context.Context, id int64) (*domain.Tenant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.tenants[id]
	if !ok {
		return nil, nil
	}
	return t.Clone(), nil
}

func (r *MemoryTenantRepository) List(ctx context.Context) ([]*domain.Tenant, error) {
	return r.filter(func(*domain.Tenant) bool { return true }), nil
}

func (r *MemoryTenantRepository) ListActive(ctx context.Context) ([]*domain.Tenant, error) {
	return r.filter(func(t *domain.Tenant) bool { return t.IsActive }), nil
}

func (r *MemoryTenantRepository) filter(keep func(*domain.Tenant) bool) []*domain.Tenant {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*domain.Tenant, 0, len(r.tenants))
	for _, t := range r.tenants {
		if keep(t) {
			out = append(out, t.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *MemoryTenantRepository) Update(ctx context.Context, tenant *domain.Tenant) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.tenants[tenant.ID]
	if !ok {
		return ErrNotFound
	}
	tenant.UpdatedAt = time.Now()
	next := tenant.Clone()
	next.IsActive = current.IsActive
	next.ExpirationDate = current.ExpirationDate
	r.tenants[tenant.ID] = next
	return nil
}

func (r *MemoryTenantRepository) SetActive(ctx context.Context, id int64, active bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tenants[id]
	if !ok {
		return ErrNotFound
	}
	t.IsActive = active
	t.UpdatedAt = time.Now()
	return nil
}

func (r *MemoryTenantRepository) Renew(ctx context.Context, id int64, now time.Time, period time.Duration) (time.Time, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tenants[id]
	if !ok {
		return time.Time{}, ErrNotFound
	}
	next := domain.NextExpiration(now, t.ExpirationDate, time.Duration(periodDays(period))*24*time.Hour)
	t.ExpirationDate = &next
	t.IsActive = true
	t.UpdatedAt = now
	return next, nil
}

// MemorySessionRepository is an in-memory SessionRepository
type MemorySessionRepository struct {
	mu   sync.RWMutex
	rows map[sessionKey]*domain.SessionRecord
}

// NewMemorySessionRepository creates an empty session store
func NewMemorySessionRepository() *MemorySessionRepository {
	return &MemorySessionRepository{rows: make(map[sessionKey]*domain.SessionRecord)}
}

func (r *MemorySessionRepository) Get(ctx context.Context, tenantID int64, userID string) (*domain.SessionRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.rows[sessionKey{tenantID, userID}]
	if !ok {
		return nil, nil
	}
	return copyRecord(rec), nil
}

func (r *MemorySessionRepository) Upsert(ctx context.Context, record *domain.SessionRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.rows[sessionKey{record.TenantID, record.UserID}] = copyRecord(record)
	return nil
}

func (r *MemorySessionRepository) Exists(ctx context.Context, tenantID int64, userID string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.rows[sessionKey{tenantID, userID}]
	return ok, nil
}

func (r *MemorySessionRepository) CountByTenant(ctx context.Context, tenantID int64, exceptUserID string) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	count := 0
	for k := range r.rows {
		if k.tenantID == tenantID && (exceptUserID == "" || k.userID != exceptUserID) {
			count++
		}
	}
	return count, nil
}

func copyRecord(rec *domain.SessionRecord) *domain.SessionRecord {
	c := *rec
	c.Data = append([]byte(nil), rec.Data...)
	return &c
}

// MemorySettingsRepository is an in-memory SettingsRepository
type MemorySettingsRepository struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewMemorySettingsRepository creates an empty settings store
func NewMemorySettingsRepository() *MemorySettingsRepository {
	return &MemorySettingsRepository{values: make(map[string]string)}
}

func (r *MemorySettingsRepository) Get(ctx context.Context, key string) (string, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	v, ok := r.values[key]
	return v, ok, nil
}

func (r *MemorySettingsRepository) Set(ctx context.Context, key, value string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.values[key] = value
	return nil
}

// MemoryPaymentEventRepository is an in-memory PaymentEventRepository
type MemoryPaymentEventRepository struct {
	mu     sync.Mutex
	events map[string]int64
}

// NewMemoryPaymentEventRepository creates an empty event ledger
func NewMemoryPaymentEventRepository() *MemoryPaymentEventRepository {
	return &MemoryPaymentEventRepository{events: make(map[string]int64)}
}

func (r *MemoryPaymentEventRepository) Record(ctx context.Context, eventID string, tenantID int64, status string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.events[eventID]; ok {
		return false, nil
	}
	r.events[eventID] = tenantID
	return true, nil
}

func (r *MemoryPaymentEventRepository) Release(ctx context.Context, eventID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.events, eventID)
	return nil
}
