package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prohmpiriya/botfleet/internal/domain"
)

// PostgresSessionRepository implements SessionRepository using PostgreSQL
type PostgresSessionRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresSessionRepository creates a new PostgresSessionRepository
func NewPostgresSessionRepository(pool *pgxpool.Pool) *PostgresSessionRepository {
	return &PostgresSessionRepository{pool: pool}
}

// Get returns the raw session row, or nil when absent
func (r *PostgresSessionRepository) Get(ctx context.Context, tenantID int64, userID string) (*domain.SessionRecord, error) {
	query := `SELECT tenant_id, user_id, data, updated_at FROM sessions WHERE tenant_id = $1 AND user_id = $2`
	rec := &domain.SessionRecord{}
	err := r.pool.QueryRow(ctx, query, tenantID, userID).Scan(&rec.TenantID, &rec.UserID, &rec.Data, &rec.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return rec, nil
}

// Upsert inserts or replaces the session row
func (r *PostgresSessionRepository) Upsert(ctx context.Context, record *domain.SessionRecord) error {
	query := `
		INSERT INTO sessions (tenant_id, user_id, data, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (tenant_id, user_id) DO UPDATE SET data = EXCLUDED.data, updated_at = EXCLUDED.updated_at
	`
	_, err := r.pool.Exec(ctx, query, record.TenantID, record.UserID, record.Data, record.UpdatedAt)
	return err
}

// Exists checks whether a session row exists for the pair
func (r *PostgresSessionRepository) Exists(ctx context.Context, tenantID int64, userID string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM sessions WHERE tenant_id = $1 AND user_id = $2)`
	var exists bool
	err := r.pool.QueryRow(ctx, query, tenantID, userID).Scan(&exists)
	return exists, err
}

// CountByTenant counts stored users of one tenant other than exceptUserID
func (r *PostgresSessionRepository) CountByTenant(ctx context.Context, tenantID int64, exceptUserID string) (int, error) {
	query := `SELECT COUNT(*) FROM sessions WHERE tenant_id = $1 AND ($2 = '' OR user_id <> $2)`
	var count int
	err := r.pool.QueryRow(ctx, query, tenantID, exceptUserID).Scan(&count)
	return count, err
}
