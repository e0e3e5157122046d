package events

import (
	"context"

	"github.com/gestipharm/gestipharm-backend/internal/stock/repository"
	"github.com/gestipharm/gestipharm-backend/pkg/logger"
	"github.com/gestipharm/gestipharm-backend/pkg/messaging"
)

// Sink abstracts the event transport so tests can capture published events
type Sink interface {
	Publish(ctx context.Context, eventType string, data interface{}) error
}

// StockEventPublisher publishes stock ledger events. Publishing is best
// effort: a broker outage must never roll back a committed stock change, so
// failures are logged and swallowed.
type StockEventPublisher struct {
	sink   Sink
	logger *logger.Logger
}

// NewStockEventPublisher creates a publisher bound to the stock events exchange
func NewStockEventPublisher(rmq *messaging.RabbitMQ, log *logger.Logger) (*StockEventPublisher, error) {
	publisher, err := messaging.NewPublisher(rmq, messaging.ExchangeStockEvents, "stock-service", log)
	if err != nil {
		return nil, err
	}

	return &StockEventPublisher{
		sink:   publisher,
		logger: log,
	}, nil
}

// NewStockEventPublisherWithSink creates a publisher over a custom sink
func NewStockEventPublisherWithSink(sink Sink, log *logger.Logger) *StockEventPublisher {
	return &StockEventPublisher{
		sink:   sink,
		logger: log,
	}
}

// PublishLotReceived publishes a lot received event
func (p *StockEventPublisher) PublishLotReceived(ctx context.Context, lot *repository.Lot, receivedBy string) {
	if p == nil {
		return
	}

	data := messaging.LotReceivedEvent{
		LotID:           lot.ID,
		ProductID:       lot.ProductID,
		LotNumber:       lot.LotNumber,
		InitialQuantity: lot.InitialQuantity,
		ExpiryDate:      lot.ExpiryDate,
		ReceivedBy:      receivedBy,
	}

	if err := p.sink.Publish(ctx, messaging.EventLotReceived, data); err != nil {
		p.logger.Error().Err(err).Str("lot_id", lot.ID).Msg("failed to publish lot received event")
	}
}

// PublishLotAdjusted publishes a lot adjusted event
func (p *StockEventPublisher) PublishLotAdjusted(ctx context.Context, lot *repository.Lot, previous int, reason, performedBy string) {
	if p == nil {
		return
	}

	data := messaging.LotAdjustedEvent{
		LotID:            lot.ID,
		ProductID:        lot.ProductID,
		PreviousQuantity: previous,
		NewQuantity:      lot.CurrentQuantity,
		Reason:           reason,
		PerformedBy:      performedBy,
	}

	if err := p.sink.Publish(ctx, messaging.EventLotAdjusted, data); err != nil {
		p.logger.Error().Err(err).Str("lot_id", lot.ID).Msg("failed to publish lot adjusted event")
	}
}

// PublishLotWithdrawn publishes a lot withdrawn event
func (p *StockEventPublisher) PublishLotWithdrawn(ctx context.Context, lot *repository.Lot, reason, performedBy string) {
	if p == nil {
		return
	}

	data := messaging.LotWithdrawnEvent{
		LotID:             lot.ID,
		ProductID:         lot.ProductID,
		RemainingQuantity: lot.CurrentQuantity,
		Reason:            reason,
		PerformedBy:       performedBy,
	}

	if err := p.sink.Publish(ctx, messaging.EventLotWithdrawn, data); err != nil {
		p.logger.Error().Err(err).Str("lot_id", lot.ID).Msg("failed to publish lot withdrawn event")
	}
}

// PublishOrderCommitted publishes an order committed event
func (p *StockEventPublisher) PublishOrderCommitted(ctx context.Context, movementIDs []string, lines map[string]int, performedBy string) {
	if p == nil {
		return
	}

	data := messaging.OrderCommittedEvent{
		MovementIDs: movementIDs,
		Lines:       lines,
		PerformedBy: performedBy,
	}

	if err := p.sink.Publish(ctx, messaging.EventOrderCommitted, data); err != nil {
		p.logger.Error().Err(err).Int("lines", len(lines)).Msg("failed to publish order committed event")
	}
}

// PublishAlertRaised publishes an alert raised event
func (p *StockEventPublisher) PublishAlertRaised(ctx context.Context, alert *repository.Alert) {
	if p == nil {
		return
	}

	lotID := ""
	if alert.LotID != nil {
		lotID = *alert.LotID
	}

	data := messaging.AlertRaisedEvent{
		AlertID:   alert.ID,
		AlertType: alert.AlertType,
		Severity:  alert.Severity,
		Message:   alert.Message,
		ProductID: alert.ProductID,
		LotID:     lotID,
	}

	if err := p.sink.Publish(ctx, messaging.EventAlertRaised, data); err != nil {
		p.logger.Error().Err(err).Str("alert_id", alert.ID).Msg("failed to publish alert raised event")
	}
}
