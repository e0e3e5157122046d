package service

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/gestipharm/gestipharm-backend/internal/stock/events"
	"github.com/gestipharm/gestipharm-backend/internal/stock/repository"
	"github.com/gestipharm/gestipharm-backend/pkg/actor"
	"github.com/gestipharm/gestipharm-backend/pkg/config"
	"github.com/gestipharm/gestipharm-backend/pkg/database"
	"github.com/gestipharm/gestipharm-backend/pkg/errors"
	"github.com/gestipharm/gestipharm-backend/pkg/logger"
)

// StockService handles the lot store and the movement ledger. Every quantity
// change goes through here so the lot row and its ledger entry always commit
// in the same transaction.
type StockService struct {
	db           *database.DB
	productRepo  *repository.ProductRepository
	lotRepo      *repository.LotRepository
	movementRepo *repository.MovementRepository
	alerts       *AlertEngine
	publisher    *events.StockEventPublisher
	cfg          config.StockConfig
	logger       *logger.Logger
}

// NewStockService creates a new stock service
func NewStockService(
	db *database.DB,
	productRepo *repository.ProductRepository,
	lotRepo *repository.LotRepository,
	movementRepo *repository.MovementRepository,
	alerts *AlertEngine,
	publisher *events.StockEventPublisher,
	cfg config.StockConfig,
	log *logger.Logger,
) *StockService {
	return &StockService{
		db:           db,
		productRepo:  productRepo,
		lotRepo:      lotRepo,
		movementRepo: movementRepo,
		alerts:       alerts,
		publisher:    publisher,
		cfg:          cfg,
		logger:       log,
	}
}

// actingUser resolves the actor from context, falling back to the system
// actor for background and unauthenticated callers
func actingUser(ctx context.Context) *actor.Actor {
	if a := actor.FromContext(ctx); a != nil {
		return a
	}
	return actor.System()
}

// ReceiveLotInput carries a delivery receipt
type ReceiveLotInput struct {
	ProductID  string    `json:"product_id" validate:"required,uuid"`
	LotNumber  string    `json:"lot_number" validate:"required,max=100"`
	Quantity   int       `json:"quantity" validate:"required,gt=0"`
	ExpiryDate time.Time `json:"expiry_date" validate:"required"`
	UnitCost   float64   `json:"unit_cost" validate:"gte=0"`
}

// ReceiveLot registers a delivered lot and its entree ledger entry
func (s *StockService) ReceiveLot(ctx context.Context, input ReceiveLotInput) (*repository.Lot, error) {
	if input.Quantity <= 0 {
		return nil, errors.InvalidInput("quantity must be positive")
	}
	if !input.ExpiryDate.After(time.Now()) {
		return nil, errors.InvalidInput("expiry date must be in the future")
	}

	product, err := s.productRepo.GetByID(ctx, input.ProductID)
	if err != nil {
		return nil, err
	}
	if !product.IsActive {
		return nil, errors.InvalidInput("product is deactivated")
	}

	act := actingUser(ctx)
	lot := &repository.Lot{
		ProductID:       input.ProductID,
		LotNumber:       input.LotNumber,
		InitialQuantity: input.Quantity,
		CurrentQuantity: input.Quantity,
		ExpiryDate:      input.ExpiryDate,
		UnitCost:        input.UnitCost,
		ReceivedDate:    time.Now(),
		Status:          repository.LotStatusInStock,
	}

	err = s.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		if err := s.lotRepo.Create(ctx, tx, lot); err != nil {
			return err
		}
		movement := &repository.Movement{
			LotID:        lot.ID,
			ProductID:    lot.ProductID,
			MovementType: repository.MovementEntree,
			Delta:        input.Quantity,
			Reason:       "reception",
			PerformedBy:  act.ID,
		}
		if act.Name != "" {
			movement.PerformedByName = &act.Name
		}
		return s.movementRepo.Record(ctx, tx, movement)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("lot_id", lot.ID).
		Str("product_id", lot.ProductID).
		Int("quantity", lot.InitialQuantity).
		Msg("lot received")

	s.publisher.PublishLotReceived(ctx, lot, act.ID)
	s.reconcile(ctx, lot.ProductID)

	return lot, nil
}

// GetLot gets a lot by ID
func (s *StockService) GetLot(ctx context.Context, id string) (*repository.Lot, error) {
	return s.lotRepo.GetByID(ctx, id)
}

// ListLots lists a product's lots. With activeOnly the result is the
// sellable set in consume order; otherwise all lots regardless of status.
func (s *StockService) ListLots(ctx context.Context, productID string, activeOnly bool) ([]*repository.Lot, error) {
	if _, err := s.productRepo.GetByID(ctx, productID); err != nil {
		return nil, err
	}
	if activeOnly {
		return s.lotRepo.ListActiveByProduct(ctx, productID)
	}
	return s.lotRepo.ListByProduct(ctx, productID)
}

// AdjustLotInput carries an inventory correction
type AdjustLotInput struct {
	NewQuantity int    `json:"new_quantity" validate:"gte=0"`
	Reason      string `json:"reason" validate:"required,max=255"`
}

// AdjustLot corrects a lot's physical quantity after a count. The signed
// difference lands in the ledger as an ajustement; adjusting to the current
// quantity is rejected since a zero delta would record nothing.
func (s *StockService) AdjustLot(ctx context.Context, lotID string, input AdjustLotInput) (*repository.Lot, error) {
	if input.NewQuantity < 0 {
		return nil, errors.InvalidInput("quantity cannot be negative")
	}
	if input.Reason == "" {
		return nil, errors.InvalidInput("adjustment reason is required")
	}

	act := actingUser(ctx)
	var lot *repository.Lot
	var previous int

	err := s.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		var err error
		lot, err = s.lotRepo.GetByIDForUpdate(ctx, tx, lotID)
		if err != nil {
			return err
		}
		if lot.Status == repository.LotStatusWithdrawn {
			return errors.InvalidInput("cannot adjust a withdrawn lot")
		}
		if input.NewQuantity > lot.InitialQuantity {
			return errors.InvalidInput("quantity cannot exceed the initial lot quantity")
		}
		if input.NewQuantity == lot.CurrentQuantity {
			return errors.InvalidInput("new quantity equals the current quantity")
		}

		previous = lot.CurrentQuantity
		status := lot.Status
		if input.NewQuantity == 0 {
			status = repository.LotStatusExhausted
		} else if status == repository.LotStatusExhausted {
			status = repository.LotStatusInStock
		}

		if err := s.lotRepo.SetQuantity(ctx, tx, lot.ID, input.NewQuantity, status); err != nil {
			return err
		}
		lot.CurrentQuantity = input.NewQuantity
		lot.Status = status

		movement := &repository.Movement{
			LotID:        lot.ID,
			ProductID:    lot.ProductID,
			MovementType: repository.MovementAjustement,
			Delta:        input.NewQuantity - previous,
			Reason:       input.Reason,
			PerformedBy:  act.ID,
		}
		if act.Name != "" {
			movement.PerformedByName = &act.Name
		}
		return s.movementRepo.Record(ctx, tx, movement)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("lot_id", lot.ID).
		Int("previous", previous).
		Int("new", lot.CurrentQuantity).
		Str("reason", input.Reason).
		Msg("lot adjusted")

	s.publisher.PublishLotAdjusted(ctx, lot, previous, input.Reason, act.ID)
	s.reconcile(ctx, lot.ProductID)

	return lot, nil
}

// WithdrawLotInput carries a recall or write-off
type WithdrawLotInput struct {
	Reason string `json:"reason" validate:"required,max=255"`
}

// WithdrawLot pulls a lot from the sellable pool, recording the removal of
// any remaining units as an ajustement. Used for recalls and write-offs.
func (s *StockService) WithdrawLot(ctx context.Context, lotID string, input WithdrawLotInput) (*repository.Lot, error) {
	if input.Reason == "" {
		return nil, errors.InvalidInput("withdrawal reason is required")
	}

	act := actingUser(ctx)
	var lot *repository.Lot
	var remaining int

	err := s.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		var err error
		lot, err = s.lotRepo.GetByIDForUpdate(ctx, tx, lotID)
		if err != nil {
			return err
		}
		if lot.Status == repository.LotStatusWithdrawn {
			return errors.Conflict("lot is already withdrawn")
		}

		remaining = lot.CurrentQuantity
		if err := s.lotRepo.SetQuantity(ctx, tx, lot.ID, 0, repository.LotStatusWithdrawn); err != nil {
			return err
		}
		lot.CurrentQuantity = 0
		lot.Status = repository.LotStatusWithdrawn

		if remaining == 0 {
			return nil
		}
		movement := &repository.Movement{
			LotID:        lot.ID,
			ProductID:    lot.ProductID,
			MovementType: repository.MovementAjustement,
			Delta:        -remaining,
			Reason:       input.Reason,
			PerformedBy:  act.ID,
		}
		if act.Name != "" {
			movement.PerformedByName = &act.Name
		}
		return s.movementRepo.Record(ctx, tx, movement)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Warn().
		Str("lot_id", lot.ID).
		Int("withdrawn_quantity", remaining).
		Str("reason", input.Reason).
		Msg("lot withdrawn")

	s.publisher.PublishLotWithdrawn(ctx, lot, input.Reason, act.ID)
	s.reconcile(ctx, lot.ProductID)

	return lot, nil
}

// GetProduct returns one cached catalog product
func (s *StockService) GetProduct(ctx context.Context, productID string) (*repository.Product, error) {
	return s.productRepo.GetByID(ctx, productID)
}

// ListProducts lists the active cached catalog products
func (s *StockService) ListProducts(ctx context.Context) ([]*repository.Product, error) {
	return s.productRepo.List(ctx)
}

// AvailableQuantity returns the total sellable quantity of a product
func (s *StockService) AvailableQuantity(ctx context.Context, productID string) (int, error) {
	if _, err := s.productRepo.GetByID(ctx, productID); err != nil {
		return 0, err
	}
	return s.lotRepo.TotalAvailable(ctx, productID)
}

// AvailableByLot returns the sellable quantity broken down by lot in
// consume order
func (s *StockService) AvailableByLot(ctx context.Context, productID string) ([]*repository.LotAvailability, error) {
	if _, err := s.productRepo.GetByID(ctx, productID); err != nil {
		return nil, err
	}
	return s.lotRepo.AvailableByLot(ctx, productID)
}

// ListMovements lists ledger entries matching the filter
func (s *StockService) ListMovements(ctx context.Context, filter repository.MovementFilter) ([]*repository.Movement, int, error) {
	return s.movementRepo.List(ctx, filter)
}

// ProductStock summarizes one product's stock position
type ProductStock struct {
	Product       *repository.Product `json:"product"`
	Available     int                 `json:"available"`
	LotCount      int                 `json:"lot_count"`
	NearestExpiry *time.Time          `json:"nearest_expiry,omitempty"`
}

// Overview summarizes the stock position of every active product
func (s *StockService) Overview(ctx context.Context) ([]*ProductStock, error) {
	products, err := s.productRepo.List(ctx)
	if err != nil {
		return nil, err
	}

	result := make([]*ProductStock, 0, len(products))
	for _, product := range products {
		lots, err := s.lotRepo.ListActiveByProduct(ctx, product.ID)
		if err != nil {
			return nil, err
		}
		available := 0
		for _, lot := range lots {
			available += lot.CurrentQuantity
		}
		entry := &ProductStock{
			Product:   product,
			Available: available,
			LotCount:  len(lots),
		}
		if len(lots) > 0 {
			// Lots come back soonest-expiry first
			expiry := lots[0].ExpiryDate
			entry.NearestExpiry = &expiry
		}
		result = append(result, entry)
	}
	return result, nil
}

// reconcile re-evaluates a product's alerts after a stock change. Alerting
// is derived state; a failure here must not fail the stock operation.
func (s *StockService) reconcile(ctx context.Context, productID string) {
	if s.alerts == nil {
		return
	}
	if err := s.alerts.ReconcileProduct(ctx, productID); err != nil {
		s.logger.Error().Err(err).Str("product_id", productID).Msg("alert reconciliation failed")
	}
}
