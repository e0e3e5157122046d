package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gestipharm/gestipharm-backend/internal/stock/repository"
	"github.com/gestipharm/gestipharm-backend/internal/stock/service"
	"github.com/gestipharm/gestipharm-backend/pkg/errors"
	"github.com/gestipharm/gestipharm-backend/pkg/httputil"
	"github.com/gestipharm/gestipharm-backend/pkg/logger"
)

// MovementHandler handles ledger endpoints
type MovementHandler struct {
	service *service.StockService
	logger  *logger.Logger
}

// NewMovementHandler creates a new movement handler
func NewMovementHandler(svc *service.StockService, log *logger.Logger) *MovementHandler {
	return &MovementHandler{
		service: svc,
		logger:  log,
	}
}

// List lists ledger entries, newest first. Supports product_id, lot_id,
// type, from, to, page and per_page query parameters.
func (h *MovementHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filter := repository.MovementFilter{
		ProductID:    q.Get("product_id"),
		LotID:        q.Get("lot_id"),
		MovementType: q.Get("type"),
	}

	if from := q.Get("from"); from != "" {
		t, err := time.Parse(time.RFC3339, from)
		if err != nil {
			httputil.Error(w, errors.InvalidInput("from must be an RFC3339 timestamp"))
			return
		}
		filter.From = &t
	}
	if to := q.Get("to"); to != "" {
		t, err := time.Parse(time.RFC3339, to)
		if err != nil {
			httputil.Error(w, errors.InvalidInput("to must be an RFC3339 timestamp"))
			return
		}
		filter.To = &t
	}

	page, _ := strconv.Atoi(q.Get("page"))
	if page < 1 {
		page = 1
	}
	perPage, _ := strconv.Atoi(q.Get("per_page"))
	if perPage < 1 {
		perPage = 50
	}
	filter.Limit = perPage
	filter.Offset = (page - 1) * perPage

	movements, total, err := h.service.ListMovements(r.Context(), filter)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	totalPages := (total + perPage - 1) / perPage
	httputil.JSONWithMeta(w, http.StatusOK, movements, &httputil.Meta{
		Page:       page,
		PerPage:    perPage,
		Total:      int64(total),
		TotalPages: totalPages,
	})
}
