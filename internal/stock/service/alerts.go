package service

import (
	"context"
	"fmt"
	"time"

	"github.com/gestipharm/gestipharm-backend/internal/stock/events"
	"github.com/gestipharm/gestipharm-backend/internal/stock/repository"
	"github.com/gestipharm/gestipharm-backend/pkg/config"
	"github.com/gestipharm/gestipharm-backend/pkg/logger"
)

// AlertEngine derives alerts from the current stock state. It never decides
// stock changes; it only observes them, so re-running it against an
// unchanged store is a no-op.
type AlertEngine struct {
	productRepo *repository.ProductRepository
	lotRepo     *repository.LotRepository
	alertRepo   *repository.AlertRepository
	publisher   *events.StockEventPublisher
	cfg         config.StockConfig
	logger      *logger.Logger
}

// NewAlertEngine creates a new alert engine
func NewAlertEngine(
	productRepo *repository.ProductRepository,
	lotRepo *repository.LotRepository,
	alertRepo *repository.AlertRepository,
	publisher *events.StockEventPublisher,
	cfg config.StockConfig,
	log *logger.Logger,
) *AlertEngine {
	return &AlertEngine{
		productRepo: productRepo,
		lotRepo:     lotRepo,
		alertRepo:   alertRepo,
		publisher:   publisher,
		cfg:         cfg,
		logger:      log,
	}
}

// stockSeverity grades a low stock condition. Availability at or below half
// the threshold is moyen, otherwise faible; rupture is graded separately.
func stockSeverity(available, threshold int) string {
	if available*2 <= threshold {
		return repository.SeverityMoyen
	}
	return repository.SeverityFaible
}

// expirySeverity grades how close a lot is to expiring
func expirySeverity(daysLeft int) string {
	switch {
	case daysLeft <= 7:
		return repository.SeverityCritique
	case daysLeft <= 15:
		return repository.SeverityMoyen
	default:
		return repository.SeverityFaible
	}
}

// daysUntil counts whole days from today to the given date, by calendar day
func daysUntil(date time.Time) int {
	now := time.Now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, date.Location())
	day := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location())
	return int(day.Sub(today).Hours() / 24)
}

// ReconcileProduct re-evaluates every alert condition for one product and
// converges the alerts table: open alerts whose condition holds are
// refreshed, missing ones are created, cleared ones are resolved.
func (e *AlertEngine) ReconcileProduct(ctx context.Context, productID string) error {
	product, err := e.productRepo.GetByID(ctx, productID)
	if err != nil {
		return err
	}

	lots, err := e.lotRepo.ListActiveByProduct(ctx, productID)
	if err != nil {
		return err
	}

	available := 0
	for _, lot := range lots {
		available += lot.CurrentQuantity
	}

	threshold := e.cfg.LowStockThreshold

	// Stock level alerts. Rupture and stock_bas are mutually exclusive.
	wantRupture := available == 0
	wantLow := available > 0 && available <= threshold

	if wantRupture {
		if err := e.raise(ctx, &repository.Alert{
			AlertType:    repository.AlertRupture,
			ProductID:    product.ID,
			ProductName:  product.Name,
			Severity:     repository.SeverityCritique,
			Message:      fmt.Sprintf("%s est en rupture de stock", product.Name),
			CurrentStock: &available,
			Threshold:    &threshold,
		}); err != nil {
			return err
		}
	} else if err := e.alertRepo.Resolve(ctx, product.ID, repository.AlertRupture, nil); err != nil {
		return err
	}

	if wantLow {
		if err := e.raise(ctx, &repository.Alert{
			AlertType:    repository.AlertStockBas,
			ProductID:    product.ID,
			ProductName:  product.Name,
			Severity:     stockSeverity(available, threshold),
			Message:      fmt.Sprintf("%s est presque en rupture (%d restants)", product.Name, available),
			CurrentStock: &available,
			Threshold:    &threshold,
		}); err != nil {
			return err
		}
	} else if err := e.alertRepo.Resolve(ctx, product.ID, repository.AlertStockBas, nil); err != nil {
		return err
	}

	// Expiry alerts are per lot, keyed on the lot ID
	expiring := make(map[string]bool, len(lots))
	for _, lot := range lots {
		daysLeft := daysUntil(lot.ExpiryDate)
		if daysLeft < 0 || daysLeft > e.cfg.ExpiryWindowDays {
			continue
		}
		expiring[lot.ID] = true

		lotID := lot.ID
		lotNumber := lot.LotNumber
		expiryDate := lot.ExpiryDate
		if err := e.raise(ctx, &repository.Alert{
			AlertType:       repository.AlertPeremption,
			ProductID:       product.ID,
			ProductName:     product.Name,
			LotID:           &lotID,
			LotNumber:       &lotNumber,
			Severity:        expirySeverity(daysLeft),
			Message:         fmt.Sprintf("%s lot %s expire dans %d jours", product.Name, lot.LotNumber, daysLeft),
			CurrentStock:    &lot.CurrentQuantity,
			ExpiryDate:      &expiryDate,
			DaysUntilExpiry: &daysLeft,
		}); err != nil {
			return err
		}
	}

	// Resolve peremption alerts whose lot left the expiring window or the
	// sellable pool entirely
	open, err := e.alertRepo.ListOpenByProduct(ctx, productID)
	if err != nil {
		return err
	}
	for _, a := range open {
		if a.AlertType != repository.AlertPeremption || a.LotID == nil {
			continue
		}
		if !expiring[*a.LotID] {
			if err := e.alertRepo.Resolve(ctx, productID, repository.AlertPeremption, a.LotID); err != nil {
				return err
			}
		}
	}

	return nil
}

// raise upserts an open alert and publishes it if the upsert created a new
// unread row
func (e *AlertEngine) raise(ctx context.Context, alert *repository.Alert) error {
	if err := e.alertRepo.UpsertOpen(ctx, alert); err != nil {
		return err
	}

	e.logger.Debug().
		Str("alert_type", alert.AlertType).
		Str("product_id", alert.ProductID).
		Str("severity", alert.Severity).
		Msg("alert active")

	e.publisher.PublishAlertRaised(ctx, alert)
	return nil
}

// ReconcileAll re-evaluates alerts for every product that has lots. Used by
// the background sweep.
func (e *AlertEngine) ReconcileAll(ctx context.Context) error {
	ids, err := e.lotRepo.ListProductIDsWithLots(ctx)
	if err != nil {
		return err
	}

	for _, id := range ids {
		if err := e.ReconcileProduct(ctx, id); err != nil {
			e.logger.Error().Err(err).Str("product_id", id).Msg("alert reconciliation failed")
		}
	}
	return nil
}

// ListAlerts lists alerts matching the filter
func (e *AlertEngine) ListAlerts(ctx context.Context, filter repository.AlertFilter) ([]*repository.Alert, int, error) {
	return e.alertRepo.List(ctx, filter)
}

// MarkRead marks a single unread alert as read by the acting user
func (e *AlertEngine) MarkRead(ctx context.Context, alertID string) (*repository.Alert, error) {
	act := actingUser(ctx)
	alert, err := e.alertRepo.MarkRead(ctx, alertID, act.ID)
	if err != nil {
		return nil, err
	}

	e.logger.Info().Str("alert_id", alertID).Str("read_by", act.ID).Msg("alert marked read")
	return alert, nil
}

// MarkAllRead marks every unread alert as read and returns the count
func (e *AlertEngine) MarkAllRead(ctx context.Context) (int, error) {
	act := actingUser(ctx)
	count, err := e.alertRepo.MarkAllRead(ctx, act.ID)
	if err != nil {
		return 0, err
	}

	if count > 0 {
		e.logger.Info().Int("count", count).Str("read_by", act.ID).Msg("all alerts marked read")
	}
	return count, nil
}

// UnreadCount counts the unread alerts
func (e *AlertEngine) UnreadCount(ctx context.Context) (int, error) {
	return e.alertRepo.UnreadCount(ctx)
}
