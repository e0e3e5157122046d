package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/gestipharm/gestipharm-backend/pkg/database"
)

// Movement types.
const (
	MovementEntree     = "entree"
	MovementSortie     = "sortie"
	MovementAjustement = "ajustement"
)

// Movement is one append-only ledger entry. Rows are only ever inserted;
// correcting a mistake means recording a compensating ajustement, never
// editing history.
type Movement struct {
	ID              string    `db:"id" json:"id"`
	LotID           string    `db:"lot_id" json:"lot_id"`
	ProductID       string    `db:"product_id" json:"product_id"`
	MovementType    string    `db:"movement_type" json:"movement_type"`
	Delta           int       `db:"delta" json:"delta"`
	Reason          string    `db:"reason" json:"reason"`
	PerformedBy     string    `db:"performed_by" json:"performed_by"`
	PerformedByName *string   `db:"performed_by_name" json:"performed_by_name,omitempty"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
}

// MovementFilter narrows a ledger listing.
type MovementFilter struct {
	ProductID    string
	LotID        string
	MovementType string
	From         *time.Time
	To           *time.Time
	Limit        int
	Offset       int
}

// MovementRepository handles movement persistence
type MovementRepository struct {
	db *database.DB
}

// NewMovementRepository creates a new movement repository
func NewMovementRepository(db *database.DB) *MovementRepository {
	return &MovementRepository{db: db}
}

// Record inserts a movement inside the given transaction so the ledger entry
// commits or rolls back with the lot quantity change it describes
func (r *MovementRepository) Record(ctx context.Context, tx *sqlx.Tx, m *Movement) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}

	query := `
		INSERT INTO movements (id, lot_id, product_id, movement_type, delta, reason, performed_by, performed_by_name)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at
	`

	err := tx.QueryRowxContext(ctx, query,
		m.ID, m.LotID, m.ProductID, m.MovementType, m.Delta, m.Reason, m.PerformedBy, m.PerformedByName,
	).Scan(&m.CreatedAt)
	if err != nil {
		if mapped := database.MapPQError(err); mapped != nil {
			return mapped
		}
		return err
	}
	return nil
}

// List lists ledger entries matching the filter, newest first
func (r *MovementRepository) List(ctx context.Context, filter MovementFilter) ([]*Movement, int, error) {
	conditions := []string{}
	args := []interface{}{}
	argIndex := 1

	if filter.ProductID != "" {
		conditions = append(conditions, fmt.Sprintf("product_id = $%d", argIndex))
		args = append(args, filter.ProductID)
		argIndex++
	}
	if filter.LotID != "" {
		conditions = append(conditions, fmt.Sprintf("lot_id = $%d", argIndex))
		args = append(args, filter.LotID)
		argIndex++
	}
	if filter.MovementType != "" {
		conditions = append(conditions, fmt.Sprintf("movement_type = $%d", argIndex))
		args = append(args, filter.MovementType)
		argIndex++
	}
	if filter.From != nil {
		conditions = append(conditions, fmt.Sprintf("created_at >= $%d", argIndex))
		args = append(args, *filter.From)
		argIndex++
	}
	if filter.To != nil {
		conditions = append(conditions, fmt.Sprintf("created_at < $%d", argIndex))
		args = append(args, *filter.To)
		argIndex++
	}

	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	countQuery := "SELECT COUNT(*) FROM movements" + where
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
		"SELECT * FROM movements%s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d",
		where, argIndex, argIndex+1,
	)
	args = append(args, limit, offset)

	var movements []*Movement
	if err := r.db.SelectContext(ctx, &movements, query, args...); err != nil {
		return nil, 0, err
	}
	return movements, total, nil
}

// SumDeltasByLot returns the signed sum of all ledger entries for a lot. For
// a consistent ledger this equals the lot's current quantity.
func (r *MovementRepository) SumDeltasByLot(ctx context.Context, lotID string) (int, error) {
	var sum int
	query := `SELECT COALESCE(SUM(delta), 0) FROM movements WHERE lot_id = $1`
	if err := r.db.GetContext(ctx, &sum, query, lotID); err != nil {
		return 0, err
	}
	return sum, nil
}
