package repository

import (
	"context"
	"errors"
	"time"

	"github.com/prohmpiriya/botfleet/internal/domain"
)

// ErrNotFound is returned by mutations that matched no row
var ErrNotFound = errors.New("record not found")

// TenantRepository defines the interface for tenant data access.
// Getters return (nil, nil) when no row exists.
type TenantRepository interface {
	Create(ctx context.Context, tenant *domain.Tenant) error
	GetByID(ctx context.Context, id int64) (*domain.Tenant, error)
	List(ctx context.Context) ([]*domain.Tenant, error)
	ListActive(ctx context.Context) ([]*domain.Tenant, error)
	Update(ctx context.Context, tenant *domain.Tenant) error
	SetActive(ctx context.Context, id int64, active bool) error
	// Renew atomically sets expiration to max(now, current) + period and reactivates the tenant
	Renew(ctx context.Context, id int64, now time.Time, period time.Duration) (time.Time, error)
}

// SessionRepository defines the interface for durable session rows
type SessionRepository interface {
	Get(ctx context.Context, tenantID int64, userID string) (*domain.SessionRecord, error)
	Upsert(ctx context.Context, record *domain.SessionRecord) error
	Exists(ctx context.Context, tenantID int64, userID string) (bool, error)
	// CountByTenant skips exceptUserID, which may be empty
	CountByTenant(ctx context.Context, tenantID int64, exceptUserID string) (int, error)
}

// SettingsRepository stores global scalar settings
type SettingsRepository interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
}

// PaymentEventRepository records processed payment notifications
type PaymentEventRepository interface {
	// Record returns false when the event id was already recorded
	Record(ctx context.Context, eventID string, tenantID int64, status string) (bool, error)
	// Release forgets an event whose processing failed so a retry is not ignored
	Release(ctx context.Context, eventID string) error
}

// periodDays rounds a period to whole days for interval arithmetic
func periodDays(period time.Duration) int {
	return int(period / (24 * time.Hour))
}
