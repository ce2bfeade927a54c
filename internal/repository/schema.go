package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS tenants (
		id BIGSERIAL PRIMARY KEY,
		name VARCHAR(255) NOT NULL,
		bot_credential TEXT NOT NULL,
		owner_id VARCHAR(64),
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		expiration_date TIMESTAMPTZ,
		max_users INTEGER NOT NULL DEFAULT 10,
		subscription_price NUMERIC(12,2),
		ai_credential TEXT,
		ai_model VARCHAR(100) NOT NULL DEFAULT 'gpt-4o-mini',
		system_prompt TEXT,
		payment_gateway_id TEXT,
		payment_gateway_secret TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_tenants_active ON tenants (is_active)`,
	`CREATE TABLE IF NOT EXISTS sessions (
		tenant_id BIGINT NOT NULL,
		user_id VARCHAR(64) NOT NULL,
		data JSONB NOT NULL DEFAULT '{}'::jsonb,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (tenant_id, user_id)
	)`,
	`CREATE TABLE IF NOT EXISTS system_config (
		key VARCHAR(100) PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS payment_events (
		event_id VARCHAR(255) PRIMARY KEY,
		tenant_id BIGINT NOT NULL,
		status VARCHAR(50) NOT NULL,
		processed_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS audit_logs (
		id UUID PRIMARY KEY,
		subject VARCHAR(255),
		role VARCHAR(50),
		action VARCHAR(50) NOT NULL,
		method VARCHAR(10) NOT NULL,
		path TEXT NOT NULL,
		status INTEGER NOT NULL,
		resource_type VARCHAR(100),
		resource_id VARCHAR(255),
		ip_address VARCHAR(64),
		user_agent TEXT,
		request_id VARCHAR(255),
		body JSONB,
		metadata JSONB NOT NULL DEFAULT '{}'::jsonb,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
}

// Migrate creates every table the service needs
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	for i, stmt := range schema {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migration step %d failed: %w", i+1, err)
		}
	}
	return nil
}
