package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/gestipharm/gestipharm-backend/internal/stock/repository"
	"github.com/gestipharm/gestipharm-backend/internal/stock/service"
	"github.com/gestipharm/gestipharm-backend/pkg/httputil"
	"github.com/gestipharm/gestipharm-backend/pkg/logger"
)

// AlertHandler handles alert endpoints
type AlertHandler struct {
	engine *service.AlertEngine
	logger *logger.Logger
}

// NewAlertHandler creates a new alert handler
func NewAlertHandler(engine *service.AlertEngine, log *logger.Logger) *AlertHandler {
	return &AlertHandler{
		engine: engine,
		logger: log,
	}
}

// List lists alerts. Supports status, type, product_id, page and per_page
// query parameters.
func (h *AlertHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filter := repository.AlertFilter{
		Status:    q.Get("status"),
		AlertType: q.Get("type"),
		ProductID: q.Get("product_id"),
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

	alerts, total, err := h.engine.ListAlerts(r.Context(), filter)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	totalPages := (total + perPage - 1) / perPage
	httputil.JSONWithMeta(w, http.StatusOK, alerts, &httputil.Meta{
		Page:       page,
		PerPage:    perPage,
		Total:      int64(total),
		TotalPages: totalPages,
	})
}

// MarkRead marks one alert as read
func (h *AlertHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	alert, err := h.engine.MarkRead(r.Context(), id)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, alert)
}

// MarkAllRead marks every unread alert as read
func (h *AlertHandler) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	count, err := h.engine.MarkAllRead(r.Context())
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, map[string]int{"marked_read": count})
}

// UnreadCount returns the number of unread alerts, for the badge in the UI
func (h *AlertHandler) UnreadCount(w http.ResponseWriter, r *http.Request) {
	count, err := h.engine.UnreadCount(r.Context())
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, map[string]int{"unread": count})
}
