package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/gestipharm/gestipharm-backend/internal/stock/service"
	"github.com/gestipharm/gestipharm-backend/pkg/httputil"
	"github.com/gestipharm/gestipharm-backend/pkg/logger"
)

// LotHandler handles lot endpoints
type LotHandler struct {
	service *service.StockService
	logger  *logger.Logger
}

// NewLotHandler creates a new lot handler
func NewLotHandler(svc *service.StockService, log *logger.Logger) *LotHandler {
	return &LotHandler{
		service: svc,
		logger:  log,
	}
}

// Receive registers a delivered lot
func (h *LotHandler) Receive(w http.ResponseWriter, r *http.Request) {
	var input service.ReceiveLotInput
	if err := httputil.DecodeJSON(r, &input); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(&input); err != nil {
		httputil.Error(w, err)
		return
	}

	lot, err := h.service.ReceiveLot(r.Context(), input)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.Created(w, lot)
}

// Get gets a lot by ID
func (h *LotHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	lot, err := h.service.GetLot(r.Context(), id)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, lot)
}

// ListByProduct lists a product's sellable lots in consume order. ?all=true
// widens the view to every lot, including exhausted, expired and withdrawn
// ones.
func (h *LotHandler) ListByProduct(w http.ResponseWriter, r *http.Request) {
	productID := chi.URLParam(r, "id")
	activeOnly := r.URL.Query().Get("all") != "true"

	lots, err := h.service.ListLots(r.Context(), productID, activeOnly)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, lots)
}

// Adjust corrects a lot's quantity after a physical count
func (h *LotHandler) Adjust(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var input service.AdjustLotInput
	if err := httputil.DecodeJSON(r, &input); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(&input); err != nil {
		httputil.Error(w, err)
		return
	}

	lot, err := h.service.AdjustLot(r.Context(), id, input)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, lot)
}

// Withdraw pulls a lot from the sellable pool (recall, write-off)
func (h *LotHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var input service.WithdrawLotInput
	if err := httputil.DecodeJSON(r, &input); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(&input); err != nil {
		httputil.Error(w, err)
		return
	}

	lot, err := h.service.WithdrawLot(r.Context(), id, input)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, lot)
}
