package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/gestipharm/gestipharm-backend/pkg/database"
	"github.com/gestipharm/gestipharm-backend/pkg/errors"
)

// Alert types.
const (
	AlertRupture    = "rupture"
	AlertStockBas   = "stock_bas"
	AlertPeremption = "peremption"
)

// Alert severities.
const (
	SeverityCritique = "critique"
	SeverityMoyen    = "moyen"
	SeverityFaible   = "faible"
)

// Alert statuses. An alert is open while non_lu or lu; resolu is terminal
// and the row stays as history.
const (
	AlertStatusUnread   = "non_lu"
	AlertStatusRead     = "lu"
	AlertStatusResolved = "resolu"
)

// Alert is a derived warning raised by the alert engine. At most one open
// alert exists per (product, type, lot) key; re-evaluations refresh that row
// in place instead of stacking duplicates.
type Alert struct {
	ID              string     `db:"id" json:"id"`
	AlertType       string     `db:"alert_type" json:"alert_type"`
	ProductID       string     `db:"product_id" json:"product_id"`
	ProductName     string     `db:"product_name" json:"product_name"`
	LotID           *string    `db:"lot_id" json:"lot_id,omitempty"`
	LotNumber       *string    `db:"lot_number" json:"lot_number,omitempty"`
	Severity        string     `db:"severity" json:"severity"`
	Message         string     `db:"message" json:"message"`
	CurrentStock    *int       `db:"current_stock" json:"current_stock,omitempty"`
	Threshold       *int       `db:"threshold" json:"threshold,omitempty"`
	ExpiryDate      *time.Time `db:"expiry_date" json:"expiry_date,omitempty"`
	DaysUntilExpiry *int       `db:"days_until_expiry" json:"days_until_expiry,omitempty"`
	Status          string     `db:"status" json:"status"`
	ReadBy          *string    `db:"read_by" json:"read_by,omitempty"`
	ReadAt          *time.Time `db:"read_at" json:"read_at,omitempty"`
	ResolvedAt      *time.Time `db:"resolved_at" json:"resolved_at,omitempty"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time  `db:"updated_at" json:"updated_at"`
}

// AlertFilter narrows an alert listing.
type AlertFilter struct {
	Status    string
	AlertType string
	ProductID string
	Limit     int
	Offset    int
}

// AlertRepository handles alert persistence
type AlertRepository struct {
	db *database.DB
}

// NewAlertRepository creates a new alert repository
func NewAlertRepository(db *database.DB) *AlertRepository {
	return &AlertRepository{db: db}
}

// UpsertOpen inserts an open alert or refreshes the existing open row for the
// same (product, type, lot) key. The refresh keeps created_at and the read
// state: a lu alert that worsens does not flip back to non_lu.
func (r *AlertRepository) UpsertOpen(ctx context.Context, a *Alert) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	if a.Status == "" {
		a.Status = AlertStatusUnread
	}

	query := `
		INSERT INTO alerts (id, alert_type, product_id, product_name, lot_id, lot_number,
			severity, message, current_stock, threshold, expiry_date, days_until_expiry, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (product_id, alert_type, COALESCE(lot_id, '00000000-0000-0000-0000-000000000000'::uuid))
			WHERE status <> 'resolu'
		DO UPDATE SET
			product_name = EXCLUDED.product_name, lot_number = EXCLUDED.lot_number,
			severity = EXCLUDED.severity, message = EXCLUDED.message,
			current_stock = EXCLUDED.current_stock, threshold = EXCLUDED.threshold,
			expiry_date = EXCLUDED.expiry_date, days_until_expiry = EXCLUDED.days_until_expiry,
			updated_at = NOW()
		RETURNING id, status, created_at, updated_at
	`

	err := r.db.QueryRowxContext(ctx, query,
		a.ID, a.AlertType, a.ProductID, a.ProductName, a.LotID, a.LotNumber,
		a.Severity, a.Message, a.CurrentStock, a.Threshold, a.ExpiryDate, a.DaysUntilExpiry, a.Status,
	).Scan(&a.ID, &a.Status, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if mapped := database.MapPQError(err); mapped != nil {
			return mapped
		}
		return err
	}
	return nil
}

// GetByID gets an alert by ID
func (r *AlertRepository) GetByID(ctx context.Context, id string) (*Alert, error) {
	var a Alert
	query := `SELECT * FROM alerts WHERE id = $1`
	if err := r.db.GetContext(ctx, &a, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("alert")
		}
		return nil, err
	}
	return &a, nil
}

// List lists alerts matching the filter, most recently updated first
func (r *AlertRepository) List(ctx context.Context, filter AlertFilter) ([]*Alert, int, error) {
	conditions := []string{}
	args := []interface{}{}
	argIndex := 1

	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argIndex))
		args = append(args, filter.Status)
		argIndex++
	}
	if filter.AlertType != "" {
		conditions = append(conditions, fmt.Sprintf("alert_type = $%d", argIndex))
		args = append(args, filter.AlertType)
		argIndex++
	}
	if filter.ProductID != "" {
		conditions = append(conditions, fmt.Sprintf("product_id = $%d", argIndex))
		args = append(args, filter.ProductID)
		argIndex++
	}

	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	countQuery := "SELECT COUNT(*) FROM alerts" + where
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, err
	}

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query := fmt.Sprintf(
		"SELECT * FROM alerts%s ORDER BY updated_at DESC, id LIMIT $%d OFFSET $%d",
		where, argIndex, argIndex+1,
	)
	args = append(args, limit, offset)

	var alerts []*Alert
	if err := r.db.SelectContext(ctx, &alerts, query, args...); err != nil {
		return nil, 0, err
	}
	return alerts, total, nil
}

// ListOpenByProduct lists the non-resolved alerts of a product
func (r *AlertRepository) ListOpenByProduct(ctx context.Context, productID string) ([]*Alert, error) {
	var alerts []*Alert
	query := `SELECT * FROM alerts WHERE product_id = $1 AND status <> $2`
	if err := r.db.SelectContext(ctx, &alerts, query, productID, AlertStatusResolved); err != nil {
		return nil, err
	}
	return alerts, nil
}

// MarkRead flips an unread alert to lu. Marking an already read or resolved
// alert is rejected so the read trail stays truthful.
func (r *AlertRepository) MarkRead(ctx context.Context, id, readBy string) (*Alert, error) {
	var a Alert
	query := `
		UPDATE alerts SET status = $2, read_by = $3, read_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status = $4
		RETURNING *
	`
	err := r.db.QueryRowxContext(ctx, query, id, AlertStatusRead, readBy, AlertStatusUnread).StructScan(&a)
	if err != nil {
		if err != sql.ErrNoRows {
			return nil, err
		}
		existing, getErr := r.GetByID(ctx, id)
		if getErr != nil {
			return nil, getErr
		}
		return nil, errors.Conflict(fmt.Sprintf("alert is already %s", existing.Status))
	}
	return &a, nil
}

// MarkAllRead flips every unread alert to lu and returns how many changed
func (r *AlertRepository) MarkAllRead(ctx context.Context, readBy string) (int, error) {
	query := `
		UPDATE alerts SET status = $1, read_by = $2, read_at = NOW(), updated_at = NOW()
		WHERE status = $3
	`
	result, err := r.db.ExecContext(ctx, query, AlertStatusRead, readBy, AlertStatusUnread)
	if err != nil {
		return 0, err
	}
	affected, _ := result.RowsAffected()
	return int(affected), nil
}

// Resolve closes the open alert for a (product, type, lot) key if one exists.
// The row is kept as history with a resolution timestamp.
func (r *AlertRepository) Resolve(ctx context.Context, productID, alertType string, lotID *string) error {
	query := `
		UPDATE alerts SET status = $1, resolved_at = NOW(), updated_at = NOW()
		WHERE product_id = $2 AND alert_type = $3 AND status <> $1
			AND COALESCE(lot_id, '00000000-0000-0000-0000-000000000000'::uuid) =
				COALESCE($4, '00000000-0000-0000-0000-000000000000'::uuid)
	`
	if _, err := r.db.ExecContext(ctx, query, AlertStatusResolved, productID, alertType, lotID); err != nil {
		return err
	}
	return nil
}

// UnreadCount counts the alerts still in non_lu
func (r *AlertRepository) UnreadCount(ctx context.Context) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM alerts WHERE status = $1`
	if err := r.db.GetContext(ctx, &count, query, AlertStatusUnread); err != nil {
		return 0, err
	}
	return count, nil
}
