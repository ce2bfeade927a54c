package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prohmpiriya/botfleet/internal/domain"
)

// PostgresTenantRepository implements TenantRepository using PostgreSQL
type PostgresTenantRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresTenantRepository creates a new PostgresTenantRepository
func NewPostgresTenantRepository(pool *pgxpool.Pool) *PostgresTenantRepository {
	return &PostgresTenantRepository{pool: pool}
}

const tenantColumns = `
	id, name, bot_credential, COALESCE(owner_id, '') as owner_id, is_active, expiration_date,
	max_users, subscription_price::float8, COALESCE(ai_credential, '') as ai_credential, ai_model,
	COALESCE(system_prompt, '') as system_prompt, COALESCE(payment_gateway_id, '') as payment_gateway_id,
	COALESCE(payment_gateway_secret, '') as payment_gateway_secret, created_at, updated_at
`

func scanTenant(row pgx.Row) (*domain.Tenant, error) {
	tenant := &domain.Tenant{}
	err := row.Scan(
		&tenant.ID,
		&tenant.Name,
		&tenant.BotCredential,
		&tenant.OwnerID,
		&tenant.IsActive,
		&tenant.ExpirationDate,
		&tenant.MaxUsers,
		&tenant.SubscriptionPrice,
		&tenant.AICredential,
		&tenant.AIModel,
		&tenant.SystemPrompt,
		&tenant.PaymentGatewayID,
		&tenant.PaymentGatewaySecret,
		&tenant.CreatedAt,
		&tenant.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return tenant, nil
}

// Create inserts a tenant and sets its generated ID
func (r *PostgresTenantRepository) Create(ctx context.Context, tenant *domain.Tenant) error {
	query := `
		INSERT INTO tenants (
			name, bot_credential, owner_id, is_active, expiration_date, max_users, subscription_price,
			ai_credential, ai_model, system_prompt, payment_gateway_id, payment_gateway_secret,
			created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING id
	`
	return r.pool.QueryRow(ctx, query,
		tenant.Name,
		tenant.BotCredential,
		nullStringOrValue(tenant.OwnerID),
		tenant.MaxUsers,
		tenant.SubscriptionPrice,
		nullStringOrValue(tenant.AICredential),
		tenant.AIModel,
		nullStringOrValue(tenant.SystemPrompt),
		nullStringOrValue(tenant.PaymentGatewayID),
		nullStringOrValue(tenant.PaymentGatewaySecret),
		tenant.CreatedAt,
		tenant.UpdatedAt,
	).Scan(&tenant.ID)
}

// GetByID retrieves a tenant by ID
func (r *PostgresTenantRepository) GetByID(ctx context.Context, id int64) (*domain.Tenant, error) {
	query := `SELECT ` + tenantColumns + ` FROM tenants WHERE id = $1`
	tenant, err := scanTenant(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return tenant, nil
}

// List retrieves all tenants ordered by id
func (r *PostgresTenantRepository) List(ctx context.Context) ([]*domain.Tenant, error) {
	return r.list(ctx, `SELECT `+tenantColumns+` FROM tenants ORDER BY id`)
}

// ListActive retrieves tenants flagged active
func (r *PostgresTenantRepository) ListActive(ctx context.Context) ([]*domain.Tenant, error) {
	return r.list(ctx, `SELECT `+tenantColumns+` FROM tenants WHERE is_active = TRUE ORDER BY id`)
}

func (r *PostgresTenantRepository) list(ctx context.Context, query string) ([]*domain.Tenant, error) {
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tenants := make([]*domain.Tenant, 0)
	for rows.Next() {
		tenant, err := scanTenant(rows)
		if err != nil {
			return nil, err
		}
		tenants = append(tenants, tenant)
	}
	return tenants, rows.Err()
}

// Update writes the settings columns of a tenant.
// is_active and expiration_date are owned by SetActive and Renew.
func (r *PostgresTenantRepository) Update(ctx context.Context, tenant *domain.Tenant) error {
	query := `
		UPDATE tenants
		SET name = $2, bot_credential = $3, owner_id = $4,
		    max_users = $5, subscription_price = $6, ai_credential = $7, ai_model = $8,
		    system_prompt = $9, payment_gateway_id = $10, payment_gateway_secret = $11, updated_at = $12
		WHERE id = $1
	`
	tenant.UpdatedAt = time.Now()
	result, err := r.pool.Exec(ctx, query,
		tenant.ID,
		tenant.Name,
		tenant.BotCredential,
		nullStringOrValue(tenant.OwnerID),
		tenant.MaxUsers,
		tenant.SubscriptionPrice,
		nullStringOrValue(tenant.AICredential),
		tenant.AIModel,
		nullStringOrValue(tenant.SystemPrompt),
		nullStringOrValue(tenant.PaymentGatewayID),
		nullStringOrValue(tenant.PaymentGatewaySecret),
		tenant.UpdatedAt,
	)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetActive flips the is_active flag
func (r *PostgresTenantRepository) SetActive(ctx context.Context, id int64, active bool) error {
	query := `UPDATE tenants SET is_active = $2, updated_at = $3 WHERE id = $1`
	result, err := r.pool.Exec(ctx, query, id, active, time.Now())
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Renew extends the expiration in one statement so concurrent renewals never read a stale value
func (r *PostgresTenantRepository) Renew(ctx context.Context, id int64, now time.Time, period time.Duration) (time.Time, error) {
	query := `
		UPDATE tenants
		SET expiration_date = GREATEST(COALESCE(expiration_date, $2::timestamptz), $2::timestamptz) + make_interval(days => $3),
		    is_active = TRUE,
		    updated_at = $2
		WHERE id = $1
		RETURNING expiration_date
	`
	var expiration time.Time
	err := r.pool.QueryRow(ctx, query, id, now, periodDays(period)).Scan(&expiration)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return time.Time{}, ErrNotFound
		}
		return time.Time{}, err
	}
	return expiration, nil
}

// nullStringOrValue returns nil for empty strings, otherwise returns the value
func nullStringOrValue(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
