package handler_test

import (
	"context"
	"encoding/json"
	"flag"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gestipharm/gestipharm-backend/internal/stock/handler"
	"github.com/gestipharm/gestipharm-backend/internal/stock/repository"
	"github.com/gestipharm/gestipharm-backend/internal/stock/service"
	"github.com/gestipharm/gestipharm-backend/pkg/config"
	"github.com/gestipharm/gestipharm-backend/pkg/httputil"
	"github.com/gestipharm/gestipharm-backend/pkg/logger"
	"github.com/gestipharm/gestipharm-backend/pkg/testutil"
)

var suite *testutil.IntegrationSuite

func TestMain(m *testing.M) {
	flag.Parse()
	if testing.Short() {
		os.Exit(m.Run())
	}

	ctx := context.Background()
	var err error

	suite, err = testutil.NewIntegrationSuite(ctx)
	if err != nil {
		panic("failed to create integration suite: " + err.Error())
	}

	code := m.Run()
	testutil.TerminateContainer(ctx)
	os.Exit(code)
}

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	suite.Reset(t)

	log := logger.New("test", "test")
	productRepo := repository.NewProductRepository(suite.DB)
	lotRepo := repository.NewLotRepository(suite.DB)
	movementRepo := repository.NewMovementRepository(suite.DB)
	alertRepo := repository.NewAlertRepository(suite.DB)

	cfg := config.StockConfig{LowStockThreshold: 10, ExpiryWindowDays: 30, CommitMaxRetries: 3}
	engine := service.NewAlertEngine(productRepo, lotRepo, alertRepo, nil, cfg, log)
	svc := service.NewStockService(suite.DB, productRepo, lotRepo, movementRepo, engine, nil, cfg, log)

	lotHandler := handler.NewLotHandler(svc, log)
	stockHandler := handler.NewStockHandler(svc, log)
	orderHandler := handler.NewOrderHandler(svc, log)

	r := chi.NewRouter()
	r.Use(httputil.ActorMiddleware)
	r.Route("/lots", func(r chi.Router) {
		r.Post("/", lotHandler.Receive)
		r.Get("/{id}", lotHandler.Get)
		r.Post("/{id}/adjust", lotHandler.Adjust)
		r.Post("/{id}/withdraw", lotHandler.Withdraw)
	})
	r.Route("/products/{id}", func(r chi.Router) {
		r.Get("/lots", lotHandler.ListByProduct)
		r.Get("/availability", stockHandler.Availability)
		r.Get("/plan", stockHandler.Plan)
	})
	r.Post("/orders", orderHandler.Commit)
	return r
}

type lotResponse struct {
	Success bool           `json:"success"`
	Data    repository.Lot `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func receiveBody(productID string) map[string]interface{} {
	return map[string]interface{}{
		"product_id":  productID,
		"lot_number":  "LOT-2026-001",
		"quantity":    25,
		"expiry_date": time.Now().AddDate(1, 0, 0).Format(time.RFC3339),
		"unit_cost":   2.5,
	}
}

func TestReceiveLotEndpoint(t *testing.T) {
	testutil.SkipIfShort(t)
	router := newTestRouter(t)

	product := suite.Fixtures.Product()
	testutil.InsertProduct(t, suite.RawDB, product)

	req := testutil.NewHTTPRequest(http.MethodPost, "/lots", receiveBody(product.ID))
	req = testutil.WithUserHeaders(req, uuid.New().String(), "Awa")
	rr := testutil.ExecuteRequest(router, req)

	testutil.AssertStatus(t, rr, http.StatusCreated)

	var resp lotResponse
	testutil.ParseJSONBody(t, rr, &resp)
	assert.True(t, resp.Success)
	assert.Equal(t, product.ID, resp.Data.ProductID)
	assert.Equal(t, 25, resp.Data.CurrentQuantity)
	assert.Equal(t, repository.LotStatusInStock, resp.Data.Status)

	// Round trip through GET
	getReq := testutil.NewHTTPRequest(http.MethodGet, "/lots/"+resp.Data.ID, nil)
	getRR := testutil.ExecuteRequest(router, getReq)
	testutil.AssertStatus(t, getRR, http.StatusOK)
}

func TestReceiveLotEndpointValidation(t *testing.T) {
	testutil.SkipIfShort(t)
	router := newTestRouter(t)

	product := suite.Fixtures.Product()
	testutil.InsertProduct(t, suite.RawDB, product)

	body := receiveBody(product.ID)
	body["quantity"] = 0

	req := testutil.NewHTTPRequest(http.MethodPost, "/lots", body)
	rr := testutil.ExecuteRequest(router, req)

	testutil.AssertStatus(t, rr, http.StatusBadRequest)
	testutil.AssertBodyContains(t, rr, "VALIDATION_ERROR")
}

func TestReceiveLotEndpointDuplicateLotNumber(t *testing.T) {
	testutil.SkipIfShort(t)
	router := newTestRouter(t)

	product := suite.Fixtures.Product()
	testutil.InsertProduct(t, suite.RawDB, product)

	first := testutil.ExecuteRequest(router, testutil.NewHTTPRequest(http.MethodPost, "/lots", receiveBody(product.ID)))
	testutil.AssertStatus(t, first, http.StatusCreated)

	second := testutil.ExecuteRequest(router, testutil.NewHTTPRequest(http.MethodPost, "/lots", receiveBody(product.ID)))
	testutil.AssertStatus(t, second, http.StatusConflict)
}

func TestListLotsEndpointViews(t *testing.T) {
	testutil.SkipIfShort(t)
	router := newTestRouter(t)

	product := suite.Fixtures.Product()
	testutil.InsertProduct(t, suite.RawDB, product)

	lot := suite.Fixtures.Lot(product.ID)
	testutil.InsertLot(t, suite.RawDB, lot)

	withdrawn := suite.Fixtures.Lot(product.ID)
	withdrawn.CurrentQuantity = 0
	withdrawn.Status = repository.LotStatusWithdrawn
	testutil.InsertLot(t, suite.RawDB, withdrawn)

	// Default view: sellable lots only
	rr := testutil.ExecuteRequest(router, testutil.NewHTTPRequest(
		http.MethodGet, "/products/"+product.ID+"/lots", nil))
	testutil.AssertStatus(t, rr, http.StatusOK)

	var active struct {
		Data []repository.Lot `json:"data"`
	}
	testutil.ParseJSONBody(t, rr, &active)
	require.Len(t, active.Data, 1)
	assert.Equal(t, lot.ID, active.Data[0].ID)

	// Operational view includes the withdrawn lot
	rr = testutil.ExecuteRequest(router, testutil.NewHTTPRequest(
		http.MethodGet, "/products/"+product.ID+"/lots?all=true", nil))
	testutil.AssertStatus(t, rr, http.StatusOK)

	var all struct {
		Data []repository.Lot `json:"data"`
	}
	testutil.ParseJSONBody(t, rr, &all)
	assert.Len(t, all.Data, 2)
}

func TestPlanEndpoint(t *testing.T) {
	testutil.SkipIfShort(t)
	router := newTestRouter(t)

	product := suite.Fixtures.Product()
	testutil.InsertProduct(t, suite.RawDB, product)
	testutil.InsertLot(t, suite.RawDB, suite.Fixtures.Lot(product.ID, testutil.WithQuantity(10)))

	rr := testutil.ExecuteRequest(router, testutil.NewHTTPRequest(
		http.MethodGet, "/products/"+product.ID+"/plan?quantity=4", nil))
	testutil.AssertStatus(t, rr, http.StatusOK)

	var resp struct {
		Data service.ConsumptionPlan `json:"data"`
	}
	testutil.ParseJSONBody(t, rr, &resp)
	assert.Equal(t, 4, resp.Data.Requested)
	require.Len(t, resp.Data.Lines, 1)
	assert.Equal(t, 4, resp.Data.Lines[0].Quantity)

	// Missing quantity parameter
	rr = testutil.ExecuteRequest(router, testutil.NewHTTPRequest(
		http.MethodGet, "/products/"+product.ID+"/plan", nil))
	testutil.AssertStatus(t, rr, http.StatusBadRequest)

	// More than available
	rr = testutil.ExecuteRequest(router, testutil.NewHTTPRequest(
		http.MethodGet, "/products/"+product.ID+"/plan?quantity=11", nil))
	testutil.AssertStatus(t, rr, http.StatusConflict)
	testutil.AssertBodyContains(t, rr, "INSUFFICIENT_STOCK")
}

func TestCommitOrderEndpoint(t *testing.T) {
	testutil.SkipIfShort(t)
	router := newTestRouter(t)

	product := suite.Fixtures.Product()
	testutil.InsertProduct(t, suite.RawDB, product)
	testutil.InsertLot(t, suite.RawDB, suite.Fixtures.Lot(product.ID, testutil.WithQuantity(20)))

	body := map[string]interface{}{
		"lines": []map[string]interface{}{
			{"product_id": product.ID, "quantity": 8},
		},
	}
	req := testutil.NewHTTPRequest(http.MethodPost, "/orders", body)
	req = testutil.WithUserHeaders(req, uuid.New().String(), "Awa")
	rr := testutil.ExecuteRequest(router, req)

	testutil.AssertStatus(t, rr, http.StatusCreated)

	var resp struct {
		Data service.CommitResult `json:"data"`
	}
	testutil.ParseJSONBody(t, rr, &resp)
	require.Len(t, resp.Data.Movements, 1)
	assert.Equal(t, -8, resp.Data.Movements[0].Delta)

	availRR := testutil.ExecuteRequest(router, testutil.NewHTTPRequest(
		http.MethodGet, "/products/"+product.ID+"/availability", nil))
	testutil.AssertStatus(t, availRR, http.StatusOK)

	var avail struct {
		Data map[string]json.RawMessage `json:"data"`
	}
	testutil.ParseJSONBody(t, availRR, &avail)
	assert.JSONEq(t, "12", string(avail.Data["available"]))

	// An empty order is rejected before touching anything
	empty := testutil.NewHTTPRequest(http.MethodPost, "/orders", map[string]interface{}{
		"lines": []map[string]interface{}{},
	})
	testutil.AssertStatus(t, testutil.ExecuteRequest(router, empty), http.StatusBadRequest)
}
