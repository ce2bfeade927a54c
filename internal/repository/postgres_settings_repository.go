package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresSettingsRepository implements SettingsRepository over system_config
type PostgresSettingsRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresSettingsRepository creates a new PostgresSettingsRepository
func NewPostgresSettingsRepository(pool *pgxpool.Pool) *PostgresSettingsRepository {
	return &PostgresSettingsRepository{pool: pool}
}

// Get returns the value of key and whether it was set
func (r *PostgresSettingsRepository) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := r.pool.QueryRow(ctx, `SELECT value FROM system_config WHERE key = $1`, key).Scan(&value)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", false, nil
		}
		return "", false, err
	}
	return value, true, nil
}

// Set stores value under key
func (r *PostgresSettingsRepository) Set(ctx context.Context, key, value string) error {
	query := `
		INSERT INTO system_config (key, value, updated_at) VALUES ($1, $2, $3)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at
	`
	_, err := r.pool.Exec(ctx, query, key, value, time.Now())
	return err
}

// PostgresPaymentEventRepository implements PaymentEventRepository
type PostgresPaymentEventRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresPaymentEventRepository creates a new PostgresPaymentEventRepository
func NewPostgresPaymentEventRepository(pool *pgxpool.Pool) *PostgresPaymentEventRepository {
	return &PostgresPaymentEventRepository{pool: pool}
}

// Record inserts the event id; a conflict means it was already processed
func (r *PostgresPaymentEventRepository) Record(ctx context.Context, eventID string, tenantID int64, status string) (bool, error) {
	query := `
		INSERT INTO payment_events (event_id, tenant_id, status, processed_at) VALUES ($1, $2, $3, $4)
		ON CONFLICT (event_id) DO NOTHING
	`
	result, err := r.pool.Exec(ctx, query, eventID, tenantID, status, time.Now())
	if err != nil {
		return false, err
	}
	return result.RowsAffected() == 1, nil
}

// Release deletes the event id
func (r *PostgresPaymentEventRepository) Release(ctx context.Context, eventID string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM payment_events WHERE event_id = $1`, eventID)
	return err
}
