package handler

import (
	"net/http"

	"github.com/gestipharm/gestipharm-backend/internal/stock/service"
	"github.com/gestipharm/gestipharm-backend/pkg/httputil"
	"github.com/gestipharm/gestipharm-backend/pkg/logger"
)

// OrderHandler handles order reservation endpoints
type OrderHandler struct {
	service *service.StockService
	logger  *logger.Logger
}

// NewOrderHandler creates a new order handler
func NewOrderHandler(svc *service.StockService, log *logger.Logger) *OrderHandler {
	return &OrderHandler{
		service: svc,
		logger:  log,
	}
}

// CommitRequest is the body of a commit call
type CommitRequest struct {
	Lines []service.OrderLine `json:"lines" validate:"required,min=1,dive"`
}

// Commit atomically reserves stock for an order
func (h *OrderHandler) Commit(w http.ResponseWriter, r *http.Request) {
	var req CommitRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	result, err := h.service.Commit(r.Context(), req.Lines)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.Created(w, result)
}
