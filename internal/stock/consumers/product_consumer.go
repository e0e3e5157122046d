package consumers

import (
	"context"

	"github.com/gestipharm/gestipharm-backend/internal/stock/repository"
	"github.com/gestipharm/gestipharm-backend/pkg/logger"
	"github.com/gestipharm/gestipharm-backend/pkg/messaging"
)

// ProductEventHandler applies catalog events to the local product cache
// (testable without RabbitMQ)
type ProductEventHandler struct {
	productRepo *repository.ProductRepository
	logger      *logger.Logger
}

// NewProductEventHandler creates a new handler for testing purposes
func NewProductEventHandler(productRepo *repository.ProductRepository, log *logger.Logger) *ProductEventHandler {
	return &ProductEventHandler{
		productRepo: productRepo,
		logger:      log,
	}
}

// HandleEvent processes a catalog event and updates the product cache
func (h *ProductEventHandler) HandleEvent(ctx context.Context, event *messaging.Event) error {
	switch event.Type {
	case messaging.EventProductCreated, messaging.EventProductUpdated:
		return h.handleProductUpserted(ctx, event)
	case messaging.EventProductDeactivated:
		return h.handleProductDeactivated(ctx, event)
	default:
		h.logger.Warn().Str("event_type", event.Type).Msg("unknown event type received")
		return nil
	}
}

// ProductEventConsumer consumes catalog events to keep the product cache in sync
type ProductEventConsumer struct {
	consumer *messaging.Consumer
	handler  *ProductEventHandler
	logger   *logger.Logger
}

// NewProductEventConsumer creates a new catalog event consumer
func NewProductEventConsumer(rmq *messaging.RabbitMQ, productRepo *repository.ProductRepository, log *logger.Logger) (*ProductEventConsumer, error) {
	consumer, err := messaging.NewConsumer(rmq, "stock-service.catalog-events", log)
	if err != nil {
		return nil, err
	}

	if err := consumer.Subscribe(messaging.ExchangeCatalogEvents, "catalog.product.#"); err != nil {
		return nil, err
	}

	handler := NewProductEventHandler(productRepo, log)

	c := &ProductEventConsumer{
		consumer: consumer,
		handler:  handler,
		logger:   log,
	}

	consumer.RegisterHandler(messaging.EventProductCreated, handler.handleProductUpserted)
	consumer.RegisterHandler(messaging.EventProductUpdated, handler.handleProductUpserted)
	consumer.RegisterHandler(messaging.EventProductDeactivated, handler.handleProductDeactivated)

	return c, nil
}

// Start starts consuming messages
func (c *ProductEventConsumer) Start(ctx context.Context) error {
	return c.consumer.Start(ctx)
}

// handleProductUpserted refreshes the cached product row
func (h *ProductEventHandler) handleProductUpserted(ctx context.Context, event *messaging.Event) error {
	var data messaging.ProductEvent
	if err := event.UnmarshalData(&data); err != nil {
		h.logger.Error().Err(err).Msg("failed to unmarshal ProductEvent")
		return err
	}

	product := &repository.Product{
		ID:       data.ProductID,
		Name:     data.Name,
		Barcode:  data.Barcode,
		Category: data.Category,
		PriceUSD: data.PriceUSD,
		PriceFC:  data.PriceFC,
		IsActive: data.IsActive,
	}
	if err := h.productRepo.Upsert(ctx, product); err != nil {
		h.logger.Error().Err(err).Str("product_id", data.ProductID).Msg("failed to upsert cached product")
		return err
	}

	h.logger.Debug().Str("product_id", data.ProductID).Msg("product cache updated")
	return nil
}

// handleProductDeactivated marks the cached product inactive. Existing lots
// and history stay untouched; the product just stops accepting new receipts.
func (h *ProductEventHandler) handleProductDeactivated(ctx context.Context, event *messaging.Event) error {
	var data messaging.ProductEvent
	if err := event.UnmarshalData(&data); err != nil {
		h.logger.Error().Err(err).Msg("failed to unmarshal ProductEvent")
		return err
	}

	if err := h.productRepo.Deactivate(ctx, data.ProductID); err != nil {
		h.logger.Error().Err(err).Str("product_id", data.ProductID).Msg("failed to deactivate cached product")
		return err
	}

	h.logger.Info().Str("product_id", data.ProductID).Msg("product deactivated in cache")
	return nil
}
