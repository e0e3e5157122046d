package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/gestipharm/gestipharm-backend/pkg/database"
	"github.com/gestipharm/gestipharm-backend/pkg/errors"
)

// Lot lifecycle statuses.
const (
	LotStatusInStock   = "in_stock"
	LotStatusExhausted = "exhausted"
	LotStatusExpired   = "expired"
	LotStatusWithdrawn = "withdrawn"
)

// Lot is a physical batch of a product received in one delivery. Stock is
// never stored per product; every unit on hand belongs to exactly one lot.
type Lot struct {
	ID              string    `db:"id" json:"id"`
	ProductID       string    `db:"product_id" json:"product_id"`
	LotNumber       string    `db:"lot_number" json:"lot_number"`
	InitialQuantity int       `db:"initial_quantity" json:"initial_quantity"`
	CurrentQuantity int       `db:"current_quantity" json:"current_quantity"`
	ExpiryDate      time.Time `db:"expiry_date" json:"expiry_date"`
	UnitCost        float64   `db:"unit_cost" json:"unit_cost"`
	ReceivedDate    time.Time `db:"received_date" json:"received_date"`
	Status          string    `db:"status" json:"status"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time `db:"updated_at" json:"updated_at"`
}

// LotAvailability is the per-lot availability breakdown for a product.
type LotAvailability struct {
	LotID      string    `db:"lot_id" json:"lot_id"`
	LotNumber  string    `db:"lot_number" json:"lot_number"`
	ExpiryDate time.Time `db:"expiry_date" json:"expiry_date"`
	Available  int       `db:"available" json:"available"`
}

// LotRepository handles lot persistence
type LotRepository struct {
	db *database.DB
}

// NewLotRepository creates a new lot repository
func NewLotRepository(db *database.DB) *LotRepository {
	return &LotRepository{db: db}
}

// Create inserts a new lot inside the given transaction
func (r *LotRepository) Create(ctx context.Context, tx *sqlx.Tx, lot *Lot) error {
	if lot.ID == "" {
		lot.ID = uuid.New().String()
	}
	if lot.Status == "" {
		lot.Status = LotStatusInStock
	}

	query := `
		INSERT INTO lots (id, product_id, lot_number, initial_quantity, current_quantity,
			expiry_date, unit_cost, received_date, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at, updated_at
	`

	err := tx.QueryRowxContext(ctx, query,
		lot.ID, lot.ProductID, lot.LotNumber, lot.InitialQuantity, lot.CurrentQuantity,
		lot.ExpiryDate, lot.UnitCost, lot.ReceivedDate, lot.Status,
	).Scan(&lot.CreatedAt, &lot.UpdatedAt)
	if err != nil {
		if mapped := database.MapPQError(err); mapped != nil {
			return mapped
		}
		return err
	}
	return nil
}

// GetByID gets a lot by ID
func (r *LotRepository) GetByID(ctx context.Context, id string) (*Lot, error) {
	var lot Lot
	query := `SELECT * FROM lots WHERE id = $1`
	if err := r.db.GetContext(ctx, &lot, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("lot")
		}
		return nil, err
	}
	return &lot, nil
}

// GetByIDForUpdate locks a lot row inside the given transaction
func (r *LotRepository) GetByIDForUpdate(ctx context.Context, tx *sqlx.Tx, id string) (*Lot, error) {
	var lot Lot
	query := `SELECT * FROM lots WHERE id = $1 FOR UPDATE`
	if err := tx.GetContext(ctx, &lot, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("lot")
		}
		if mapped := database.MapPQError(err); mapped != nil {
			return nil, mapped
		}
		return nil, err
	}
	return &lot, nil
}

// ListActiveByProduct lists sellable lots for a product ordered by expiry
// date ascending, receipt order breaking ties. This ordering is the consume
// order: earliest expiry first.
func (r *LotRepository) ListActiveByProduct(ctx context.Context, productID string) ([]*Lot, error) {
	var lots []*Lot
	query := `
		SELECT * FROM lots
		WHERE product_id = $1 AND status = $2 AND current_quantity > 0 AND expiry_date >= CURRENT_DATE
		ORDER BY expiry_date ASC, created_at ASC
	`
	if err := r.db.SelectContext(ctx, &lots, query, productID, LotStatusInStock); err != nil {
		return nil, err
	}
	return lots, nil
}

// LockActiveByProduct locks the sellable lots of a product inside the given
// transaction, in consume order. Row locks are taken in a deterministic order
// so concurrent commits on the same product serialize instead of deadlocking.
func (r *LotRepository) LockActiveByProduct(ctx context.Context, tx *sqlx.Tx, productID string) ([]*Lot, error) {
	var lots []*Lot
	query := `
		SELECT * FROM lots
		WHERE product_id = $1 AND status = $2 AND current_quantity > 0 AND expiry_date >= CURRENT_DATE
		ORDER BY expiry_date ASC, created_at ASC
		FOR UPDATE
	`
	if err := tx.SelectContext(ctx, &lots, query, productID, LotStatusInStock); err != nil {
		if mapped := database.MapPQError(err); mapped != nil {
			return nil, mapped
		}
		return nil, err
	}
	return lots, nil
}

// ListByProduct lists all lots of a product regardless of status
func (r *LotRepository) ListByProduct(ctx context.Context, productID string) ([]*Lot, error) {
	var lots []*Lot
	query := `SELECT * FROM lots WHERE product_id = $1 ORDER BY expiry_date ASC, created_at ASC`
	if err := r.db.SelectContext(ctx, &lots, query, productID); err != nil {
		return nil, err
	}
	return lots, nil
}

// SetQuantity updates a lot's current quantity and status inside the given
// transaction. Callers must hold the row lock and have validated bounds; the
// quantity_range check constraint is the final guard.
func (r *LotRepository) SetQuantity(ctx context.Context, tx *sqlx.Tx, lotID string, quantity int, status string) error {
	query := `UPDATE lots SET current_quantity = $2, status = $3, updated_at = NOW() WHERE id = $1`
	result, err := tx.ExecContext(ctx, query, lotID, quantity, status)
	if err != nil {
		if mapped := database.MapPQError(err); mapped != nil {
			return mapped
		}
		return err
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.NotFound("lot")
	}

	return nil
}

// SetStatus updates a lot's status inside the given transaction
func (r *LotRepository) SetStatus(ctx context.Context, tx *sqlx.Tx, lotID, status string) error {
	query := `UPDATE lots SET status = $2, updated_at = NOW() WHERE id = $1`
	result, err := tx.ExecContext(ctx, query, lotID, status)
	if err != nil {
		if mapped := database.MapPQError(err); mapped != nil {
			return mapped
		}
		return err
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.NotFound("lot")
	}

	return nil
}

// TotalAvailable sums the sellable quantity of a product across its lots
func (r *LotRepository) TotalAvailable(ctx context.Context, productID string) (int, error) {
	var total int
	query := `
		SELECT COALESCE(SUM(current_quantity), 0) FROM lots
		WHERE product_id = $1 AND status = $2 AND expiry_date >= CURRENT_DATE
	`
	if err := r.db.GetContext(ctx, &total, query, productID, LotStatusInStock); err != nil {
		return 0, err
	}
	return total, nil
}

// AvailableByLot returns the per-lot availability of a product in consume order
func (r *LotRepository) AvailableByLot(ctx context.Context, productID string) ([]*LotAvailability, error) {
	var rows []*LotAvailability
	query := `
		SELECT id AS lot_id, lot_number, expiry_date, current_quantity AS available
		FROM lots
		WHERE product_id = $1 AND status = $2 AND current_quantity > 0 AND expiry_date >= CURRENT_DATE
		ORDER BY expiry_date ASC, created_at ASC
	`
	if err := r.db.SelectContext(ctx, &rows, query, productID, LotStatusInStock); err != nil {
		return nil, err
	}
	return rows, nil
}

// ListExpiringWithin lists in-stock lots with remaining quantity whose expiry
// falls inside the next windowDays days, soonest first
func (r *LotRepository) ListExpiringWithin(ctx context.Context, windowDays int) ([]*Lot, error) {
	var lots []*Lot
	query := `
		SELECT * FROM lots
		WHERE status = $1 AND current_quantity > 0
			AND expiry_date >= CURRENT_DATE
			AND expiry_date < CURRENT_DATE + $2::int
		ORDER BY expiry_date ASC
	`
	if err := r.db.SelectContext(ctx, &lots, query, LotStatusInStock, windowDays); err != nil {
		return nil, err
	}
	return lots, nil
}

// MarkExpired flips every in-stock lot past its expiry date to expired and
// returns the affected lots. Their remaining units leave the sellable pool
// without a movement; the ledger only records physical quantity changes.
func (r *LotRepository) MarkExpired(ctx context.Context) ([]*Lot, error) {
	var lots []*Lot
	query := `
		UPDATE lots SET status = $1, updated_at = NOW()
		WHERE status = $2 AND expiry_date < CURRENT_DATE
		RETURNING *
	`
	if err := r.db.SelectContext(ctx, &lots, query, LotStatusExpired, LotStatusInStock); err != nil {
		return nil, err
	}
	return lots, nil
}

// ListProductIDsWithLots returns the distinct product IDs that have at least
// one lot, used by the alert sweep
func (r *LotRepository) ListProductIDsWithLots(ctx context.Context) ([]string, error) {
	var ids []string
	query := `SELECT DISTINCT product_id FROM lots ORDER BY product_id`
	if err := r.db.SelectContext(ctx, &ids, query); err != nil {
		return nil, err
	}
	return ids, nil
}
