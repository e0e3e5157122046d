package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/gestipharm/gestipharm-backend/internal/stock/service"
	"github.com/gestipharm/gestipharm-backend/pkg/errors"
	"github.com/gestipharm/gestipharm-backend/pkg/httputil"
	"github.com/gestipharm/gestipharm-backend/pkg/logger"
)

// StockHandler handles availability and planning endpoints
type StockHandler struct {
	service *service.StockService
	logger  *logger.Logger
}

// NewStockHandler creates a new stock handler
func NewStockHandler(svc *service.StockService, log *logger.Logger) *StockHandler {
	return &StockHandler{
		service: svc,
		logger:  log,
	}
}

// Availability returns the total sellable quantity of a product
func (h *StockHandler) Availability(w http.ResponseWriter, r *http.Request) {
	productID := chi.URLParam(r, "id")

	available, err := h.service.AvailableQuantity(r.Context(), productID)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, map[string]interface{}{
		"product_id": productID,
		"available":  available,
	})
}

// AvailabilityByLot returns the per-lot availability of a product
func (h *StockHandler) AvailabilityByLot(w http.ResponseWriter, r *http.Request) {
	productID := chi.URLParam(r, "id")

	lots, err := h.service.AvailableByLot(r.Context(), productID)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, lots)
}

// Plan previews which lots a sale would consume, without reserving anything
func (h *StockHandler) Plan(w http.ResponseWriter, r *http.Request) {
	productID := chi.URLParam(r, "id")

	quantity, err := strconv.Atoi(r.URL.Query().Get("quantity"))
	if err != nil {
		httputil.Error(w, errors.InvalidInput("quantity must be an integer"))
		return
	}

	plan, err := h.service.Plan(r.Context(), productID, quantity)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, plan)
}

// Overview summarizes the stock position of every active product
func (h *StockHandler) Overview(w http.ResponseWriter, r *http.Request) {
	overview, err := h.service.Overview(r.Context())
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, overview)
}
