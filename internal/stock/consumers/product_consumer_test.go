package consumers

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gestipharm/gestipharm-backend/internal/stock/repository"
	"github.com/gestipharm/gestipharm-backend/pkg/database"
	"github.com/gestipharm/gestipharm-backend/pkg/errors"
	"github.com/gestipharm/gestipharm-backend/pkg/logger"
	"github.com/gestipharm/gestipharm-backend/pkg/messaging"
	"github.com/gestipharm/gestipharm-backend/pkg/testutil"
)

func newHandler(t *testing.T) (*ProductEventHandler, *testutil.MockDB) {
	t.Helper()
	mockDB := testutil.NewMockDB(t)
	t.Cleanup(func() { mockDB.Close() })

	log := logger.New("stock-service-test", "test")
	repo := repository.NewProductRepository(database.Wrap(mockDB.DB, log))
	return NewProductEventHandler(repo, log), mockDB
}

func catalogEvent(t *testing.T, eventType string, data messaging.ProductEvent) *messaging.Event {
	t.Helper()
	event, err := messaging.NewEvent(eventType, "catalog-service", "corr-1", data)
	require.NoError(t, err)
	return event
}

func TestHandleProductCreatedUpsertsCache(t *testing.T) {
	handler, mockDB := newHandler(t)

	event := catalogEvent(t, messaging.EventProductCreated, messaging.ProductEvent{
		ProductID: "0d2c1f9e-4b1a-4a77-9c3e-9f6e1a2b0001",
		Name:      "Amoxicilline 500mg",
		Barcode:   "615010000042",
		Category:  "antibiotique",
		PriceUSD:  3.20,
		PriceFC:   8960,
		IsActive:  true,
	})

	mockDB.ExpectQuery("INSERT INTO products").
		WithArgs("0d2c1f9e-4b1a-4a77-9c3e-9f6e1a2b0001", "Amoxicilline 500mg",
			"615010000042", "antibiotique", 3.20, 8960.0, true).
		WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).
			AddRow(time.Now(), time.Now()))

	err := handler.HandleEvent(context.Background(), event)
	require.NoError(t, err)
	mockDB.ExpectationsWereMet(t)
}

func TestHandleProductDeactivated(t *testing.T) {
	handler, mockDB := newHandler(t)

	event := catalogEvent(t, messaging.EventProductDeactivated, messaging.ProductEvent{
		ProductID: "0d2c1f9e-4b1a-4a77-9c3e-9f6e1a2b0002",
	})

	mockDB.ExpectExec("UPDATE products SET is_active = false").
		WithArgs("0d2c1f9e-4b1a-4a77-9c3e-9f6e1a2b0002").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := handler.HandleEvent(context.Background(), event)
	require.NoError(t, err)
	mockDB.ExpectationsWereMet(t)
}

func TestHandleProductDeactivatedUnknownProduct(t *testing.T) {
	handler, mockDB := newHandler(t)

	event := catalogEvent(t, messaging.EventProductDeactivated, messaging.ProductEvent{
		ProductID: "0d2c1f9e-4b1a-4a77-9c3e-9f6e1a2b0003",
	})

	mockDB.ExpectExec("UPDATE products SET is_active = false").
		WithArgs("0d2c1f9e-4b1a-4a77-9c3e-9f6e1a2b0003").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := handler.HandleEvent(context.Background(), event)
	assert.True(t, errors.Is(err, errors.ErrNotFound))
	mockDB.ExpectationsWereMet(t)
}

func TestHandleEventIgnoresUnknownType(t *testing.T) {
	handler, mockDB := newHandler(t)

	event := catalogEvent(t, "catalog.product.price_checked", messaging.ProductEvent{})

	// No database calls expected
	err := handler.HandleEvent(context.Background(), event)
	require.NoError(t, err)
	mockDB.ExpectationsWereMet(t)
}

func TestHandleEventMalformedPayload(t *testing.T) {
	handler, mockDB := newHandler(t)

	event := &messaging.Event{
		Type: messaging.EventProductUpdated,
		Data: json.RawMessage(`{"product_id": 42}`),
	}

	err := handler.HandleEvent(context.Background(), event)
	require.Error(t, err)
	mockDB.ExpectationsWereMet(t)
}
