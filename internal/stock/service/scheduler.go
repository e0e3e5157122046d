package service

import (
	"context"
	"time"

	"github.com/gestipharm/gestipharm-backend/internal/stock/repository"
	"github.com/gestipharm/gestipharm-backend/pkg/logger"
)

// ExpirySweeper periodically marks overdue lots expired and re-runs the
// alert engine over the whole store. Expiry is time-driven, so it cannot
// rely on stock operations alone to keep lot statuses and alerts current.
type ExpirySweeper struct {
	lotRepo  *repository.LotRepository
	alerts   *AlertEngine
	interval time.Duration
	logger   *logger.Logger
	cancel   context.CancelFunc
}

// NewExpirySweeper creates a new expiry sweeper
func NewExpirySweeper(lotRepo *repository.LotRepository, alerts *AlertEngine, interval time.Duration, log *logger.Logger) *ExpirySweeper {
	return &ExpirySweeper{
		lotRepo:  lotRepo,
		alerts:   alerts,
		interval: interval,
		logger:   log,
	}
}

// Start starts the sweeper in a background goroutine
func (s *ExpirySweeper) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)

	go func() {
		s.logger.Info().Dur("interval", s.interval).Msg("expiry sweeper started")

		// Run an initial sweep immediately
		s.runSweep(ctx)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				s.logger.Info().Msg("expiry sweeper stopped")
				return
			case <-ticker.C:
				s.runSweep(ctx)
			}
		}
	}()
}

// Stop stops the sweeper goroutine
func (s *ExpirySweeper) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
}

// runSweep flips overdue lots to expired, then reconciles alerts for every
// product with lots
func (s *ExpirySweeper) runSweep(ctx context.Context) {
	start := time.Now()

	expired, err := s.lotRepo.MarkExpired(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("expiry sweep failed")
		return
	}

	for _, lot := range expired {
		s.logger.Warn().
			Str("lot_id", lot.ID).
			Str("product_id", lot.ProductID).
			Int("remaining_quantity", lot.CurrentQuantity).
			Msg("lot expired")
	}

	if err := s.alerts.ReconcileAll(ctx); err != nil {
		s.logger.Error().Err(err).Msg("alert sweep failed")
		return
	}

	s.logger.Info().
		Dur("duration", time.Since(start)).
		Int("expired_lots", len(expired)).
		Msg("expiry sweep completed")
}
