package service

import (
	"context"
	"sort"

	"github.com/jmoiron/sqlx"

	"github.com/gestipharm/gestipharm-backend/internal/stock/repository"
	"github.com/gestipharm/gestipharm-backend/pkg/database"
	"github.com/gestipharm/gestipharm-backend/pkg/errors"
)

// OrderLine is one product and quantity in an order to commit
type OrderLine struct {
	ProductID string `json:"product_id" validate:"required,uuid"`
	Quantity  int    `json:"quantity" validate:"required,gt=0"`
}

// CommitResult reports what an order commit wrote to the ledger
type CommitResult struct {
	Movements []*repository.Movement `json:"movements"`
	Lines     map[string]int         `json:"lines"`
}

// Commit reserves stock for an order atomically. Either every line is
// covered and decremented, or nothing changes.
//
// The consumption is planned twice: once without locks to fail fast on
// obviously short stock, then again inside the transaction on rows held
// under FOR UPDATE, which is the plan that actually commits. Products are
// processed in sorted order so two overlapping orders acquire their locks
// in the same sequence. Serialization failures are retried a bounded number
// of times before surfacing as a concurrency conflict.
func (s *StockService) Commit(ctx context.Context, lines []OrderLine) (*CommitResult, error) {
	merged, err := mergeLines(lines)
	if err != nil {
		return nil, err
	}

	productIDs := make([]string, 0, len(merged))
	for id := range merged {
		productIDs = append(productIDs, id)
	}
	sort.Strings(productIDs)

	// Fail fast before taking any locks
	for _, id := range productIDs {
		if _, err := s.Plan(ctx, id, merged[id]); err != nil {
			return nil, err
		}
	}

	act := actingUser(ctx)

	maxAttempts := s.cfg.CommitMaxRetries
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var result *CommitResult
	for attempt := 1; ; attempt++ {
		result, err = s.commitOnce(ctx, productIDs, merged, act.ID, act.Name)
		if err == nil {
			break
		}
		if !database.IsRetryable(err) || attempt >= maxAttempts {
			return nil, err
		}
		s.logger.Warn().
			Int("attempt", attempt).
			Msg("order commit hit a serialization conflict, retrying")
	}

	movementIDs := make([]string, len(result.Movements))
	for i, m := range result.Movements {
		movementIDs[i] = m.ID
	}

	s.logger.Info().
		Int("products", len(merged)).
		Int("movements", len(result.Movements)).
		Str("performed_by", act.ID).
		Msg("order committed")

	s.publisher.PublishOrderCommitted(ctx, movementIDs, result.Lines, act.ID)
	for _, id := range productIDs {
		s.reconcile(ctx, id)
	}

	return result, nil
}

// commitOnce runs one commit attempt in a single transaction
func (s *StockService) commitOnce(ctx context.Context, productIDs []string, quantities map[string]int, actorID, actorName string) (*CommitResult, error) {
	result := &CommitResult{Lines: quantities}

	err := s.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		for _, productID := range productIDs {
			requested := quantities[productID]

			lots, err := s.lotRepo.LockActiveByProduct(ctx, tx, productID)
			if err != nil {
				return err
			}

			planned, allocated := allocate(lots, requested)
			if allocated < requested {
				return errors.InsufficientStock(productID, requested, allocated)
			}

			lotsByID := make(map[string]*repository.Lot, len(lots))
			for _, lot := range lots {
				lotsByID[lot.ID] = lot
			}

			for _, line := range planned {
				lot := lotsByID[line.LotID]
				newQuantity := lot.CurrentQuantity - line.Quantity
				status := lot.Status
				if newQuantity == 0 {
					status = repository.LotStatusExhausted
				}
				if err := s.lotRepo.SetQuantity(ctx, tx, lot.ID, newQuantity, status); err != nil {
					return err
				}

				movement := &repository.Movement{
					LotID:        lot.ID,
					ProductID:    productID,
					MovementType: repository.MovementSortie,
					Delta:        -line.Quantity,
					Reason:       "commande",
					PerformedBy:  actorID,
				}
				if actorName != "" {
					movement.PerformedByName = &actorName
				}
				if err := s.movementRepo.Record(ctx, tx, movement); err != nil {
					return err
				}
				result.Movements = append(result.Movements, movement)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// mergeLines validates order lines and collapses repeated products
func mergeLines(lines []OrderLine) (map[string]int, error) {
	if len(lines) == 0 {
		return nil, errors.InvalidInput("order has no lines")
	}

	merged := make(map[string]int, len(lines))
	for _, line := range lines {
		if line.ProductID == "" {
			return nil, errors.InvalidInput("order line is missing a product")
		}
		if line.Quantity <= 0 {
			return nil, errors.InvalidInput("order line quantity must be positive")
		}
		merged[line.ProductID] += line.Quantity
	}
	return merged, nil
}
