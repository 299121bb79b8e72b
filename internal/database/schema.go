package database

import (
	"database/sql"
	"fmt"
	"log"
)

// schema is applied in order; every statement is idempotent.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id BIGSERIAL PRIMARY KEY,
		name VARCHAR(120) NOT NULL,
		email VARCHAR(255) UNIQUE,
		phone VARCHAR(32) NOT NULL UNIQUE,
		password TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS shop (
		id BIGSERIAL PRIMARY KEY,
		name VARCHAR(120) NOT NULL,
		address TEXT NOT NULL DEFAULT '',
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS shop_users (
		id BIGSERIAL PRIMARY KEY,
		shop_id BIGINT NOT NULL REFERENCES shop(id),
		user_id BIGINT NOT NULL REFERENCES users(id),
		role VARCHAR(16) NOT NULL,
		status VARCHAR(16) NOT NULL DEFAULT 'ACTIVE',
		joined_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (shop_id, user_id)
	)`,
	`CREATE TABLE IF NOT EXISTS customer (
		id BIGSERIAL PRIMARY KEY,
		shop_id BIGINT NOT NULL REFERENCES shop(id),
		name VARCHAR(120) NOT NULL,
		entity_name VARCHAR(120) NOT NULL DEFAULT '',
		phone VARCHAR(32) NOT NULL,
		opening_balance BIGINT NOT NULL DEFAULT 0,
		current_balance BIGINT NOT NULL DEFAULT 0,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		version INT NOT NULL DEFAULT 1,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (shop_id, phone)
	)`,
	`CREATE TABLE IF NOT EXISTS customer_ledger (
		id BIGSERIAL PRIMARY KEY,
		customer_id BIGINT NOT NULL REFERENCES customer(id),
		shop_id BIGINT NOT NULL REFERENCES shop(id),
		created_by_user_id BIGINT NOT NULL REFERENCES users(id),
		entry_type VARCHAR(16) NOT NULL CHECK (entry_type IN ('BAKI', 'PAID', 'REVERSAL')),
		amount BIGINT NOT NULL CHECK (amount > 0),
		balance_after BIGINT NOT NULL,
		reference_entry_id BIGINT REFERENCES customer_ledger(id),
		notes TEXT NOT NULL DEFAULT '',
		entry_date DATE NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		CHECK ((entry_type = 'REVERSAL') = (reference_entry_id IS NOT NULL))
	)`,
	`CREATE INDEX IF NOT EXISTS idx_customer_ledger_shop_date ON customer_ledger (shop_id, entry_date)`,
	`CREATE INDEX IF NOT EXISTS idx_customer_ledger_customer ON customer_ledger (customer_id)`,
	`CREATE INDEX IF NOT EXISTS idx_customer_ledger_reference ON customer_ledger (reference_entry_id)`,
	`CREATE TABLE IF NOT EXISTS audit_log (
		id UUID PRIMARY KEY,
		shop_id BIGINT NOT NULL,
		entity_type VARCHAR(32) NOT NULL,
		entity_id BIGINT NOT NULL,
		action VARCHAR(64) NOT NULL,
		performed_by BIGINT NOT NULL,
		old_value JSONB,
		new_value JSONB,
		performed_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_audit_log_shop ON audit_log (shop_id, performed_at DESC)`,
}

// Migrate creates the tables used by the service.
func Migrate(db *sql.DB) error {
	for i, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("schema statement %d: %w", i, err)
		}
	}
	log.Printf("Database schema ready (%d statements)", len(schema))
	return nil
}
