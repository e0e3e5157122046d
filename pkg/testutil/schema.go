package testutil

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// StockMigrations returns the stock service schema for tests. It mirrors the
// production migrations: the products cache, lots, the append-only movement
// ledger, and alerts with the open-alert uniqueness key.
func StockMigrations() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS products (
			id UUID PRIMARY KEY,
			name VARCHAR(255) NOT NULL,
			barcode VARCHAR(100) NOT NULL DEFAULT '',
			category VARCHAR(100) NOT NULL DEFAULT '',
			price_usd NUMERIC(12,2) NOT NULL DEFAULT 0,
			price_fc NUMERIC(14,2) NOT NULL DEFAULT 0,
			is_active BOOLEAN NOT NULL DEFAULT true,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_products_barcode ON products (barcode) WHERE barcode <> ''`,

		`CREATE TABLE IF NOT EXISTS lots (
			id UUID PRIMARY KEY,
			product_id UUID NOT NULL REFERENCES products(id),
			lot_number VARCHAR(100) NOT NULL,
			initial_quantity INTEGER NOT NULL,
			current_quantity INTEGER NOT NULL,
			expiry_date DATE NOT NULL,
			unit_cost NUMERIC(12,2) NOT NULL DEFAULT 0,
			received_date DATE NOT NULL DEFAULT CURRENT_DATE,
			status VARCHAR(20) NOT NULL DEFAULT 'in_stock',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			CONSTRAINT initial_quantity_positive CHECK (initial_quantity > 0),
			CONSTRAINT quantity_range CHECK (current_quantity >= 0 AND current_quantity <= initial_quantity),
			CONSTRAINT status_valid CHECK (status IN ('in_stock', 'exhausted', 'expired', 'withdrawn')),
			CONSTRAINT lot_number_per_product UNIQUE (product_id, lot_number)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_lots_product_expiry ON lots (product_id, expiry_date) WHERE status = 'in_stock'`,

		`CREATE TABLE IF NOT EXISTS movements (
			id UUID PRIMARY KEY,
			lot_id UUID NOT NULL REFERENCES lots(id),
			product_id UUID NOT NULL REFERENCES products(id),
			movement_type VARCHAR(20) NOT NULL,
			delta INTEGER NOT NULL,
			reason VARCHAR(255) NOT NULL DEFAULT '',
			performed_by VARCHAR(100) NOT NULL DEFAULT '',
			performed_by_name VARCHAR(255),
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			CONSTRAINT movement_type_valid CHECK (movement_type IN ('entree', 'sortie', 'ajustement')),
			CONSTRAINT delta_nonzero CHECK (delta <> 0)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_movements_product_created ON movements (product_id, created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_movements_lot ON movements (lot_id)`,

		`CREATE TABLE IF NOT EXISTS alerts (
			id UUID PRIMARY KEY,
			alert_type VARCHAR(20) NOT NULL,
			product_id UUID NOT NULL REFERENCES products(id),
			product_name VARCHAR(255) NOT NULL,
			lot_id UUID REFERENCES lots(id),
			lot_number VARCHAR(100),
			severity VARCHAR(20) NOT NULL,
			message TEXT NOT NULL,
			current_stock INTEGER,
			threshold INTEGER,
			expiry_date DATE,
			days_until_expiry INTEGER,
			status VARCHAR(20) NOT NULL DEFAULT 'non_lu',
			read_by VARCHAR(100),
			read_at TIMESTAMPTZ,
			resolved_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			CONSTRAINT alert_type_valid CHECK (alert_type IN ('rupture', 'stock_bas', 'peremption')),
			CONSTRAINT severity_valid CHECK (severity IN ('critique', 'moyen', 'faible')),
			CONSTRAINT alert_status_valid CHECK (status IN ('non_lu', 'lu', 'resolu'))
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS open_alert_key ON alerts
			(product_id, alert_type, COALESCE(lot_id, '00000000-0000-0000-0000-000000000000'::uuid))
			WHERE status <> 'resolu'`,
	}
}

// ApplyStockSchema applies the stock schema to the test database
func ApplyStockSchema(ctx context.Context, db *sqlx.DB) error {
	for _, migration := range StockMigrations() {
		if _, err := db.ExecContext(ctx, migration); err != nil {
			return fmt.Errorf("failed to apply migration: %w", err)
		}
	}
	return nil
}

// ResetStockTables truncates all stock tables so each test starts clean
func ResetStockTables(ctx context.Context, db *sqlx.DB) error {
	_, err := db.ExecContext(ctx, `TRUNCATE alerts, movements, lots, products CASCADE`)
	if err != nil {
		return fmt.Errorf("failed to reset stock tables: %w", err)
	}
	return nil
}
