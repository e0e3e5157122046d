package service

import (
	"context"
	"time"

	"github.com/gestipharm/gestipharm-backend/internal/stock/repository"
	"github.com/gestipharm/gestipharm-backend/pkg/errors"
)

// PlanLine is one lot allocation inside a consumption plan
type PlanLine struct {
	LotID      string    `json:"lot_id"`
	LotNumber  string    `json:"lot_number"`
	Quantity   int       `json:"quantity"`
	ExpiryDate time.Time `json:"expiry_date"`
}

// ConsumptionPlan maps a requested quantity onto concrete lots
type ConsumptionPlan struct {
	ProductID string     `json:"product_id"`
	Requested int        `json:"requested"`
	Lines     []PlanLine `json:"lines"`
}

// allocate walks lots in their given order and drains each one before
// touching the next. Lots must already be sorted earliest expiry first;
// the second return value is how much could be covered.
func allocate(lots []*repository.Lot, quantity int) ([]PlanLine, int) {
	lines := make([]PlanLine, 0, len(lots))
	remaining := quantity

	for _, lot := range lots {
		if remaining == 0 {
			break
		}
		if lot.CurrentQuantity <= 0 {
			continue
		}

		take := lot.CurrentQuantity
		if take > remaining {
			take = remaining
		}

		lines = append(lines, PlanLine{
			LotID:      lot.ID,
			LotNumber:  lot.LotNumber,
			Quantity:   take,
			ExpiryDate: lot.ExpiryDate,
		})
		remaining -= take
	}

	return lines, quantity - remaining
}

// Plan computes which lots a sale of the given quantity would draw from,
// earliest expiry first. The plan is advisory: it holds no locks and a
// concurrent commit can invalidate it, so Commit re-plans under row locks.
func (s *StockService) Plan(ctx context.Context, productID string, quantity int) (*ConsumptionPlan, error) {
	if quantity <= 0 {
		return nil, errors.InvalidInput("quantity must be positive")
	}
	if _, err := s.productRepo.GetByID(ctx, productID); err != nil {
		return nil, err
	}

	lots, err := s.lotRepo.ListActiveByProduct(ctx, productID)
	if err != nil {
		return nil, err
	}

	lines, allocated := allocate(lots, quantity)
	if allocated < quantity {
		return nil, errors.InsufficientStock(productID, quantity, allocated)
	}

	return &ConsumptionPlan{
		ProductID: productID,
		Requested: quantity,
		Lines:     lines,
	}, nil
}
