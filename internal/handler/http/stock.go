package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/manojdandy/orders-inventory/internal/service"
	"github.com/manojdandy/orders-inventory/pkg/httputil"
	"github.com/manojdandy/orders-inventory/pkg/pagination"
)

// StockHandler handles HTTP requests for stock reporting endpoints.
type StockHandler struct {
	service           *service.ProductService
	lowStockThreshold int
	logger            *slog.Logger
}

// NewStockHandler creates a new stock HTTP handler.
func NewStockHandler(svc *service.ProductService, lowStockThreshold int, logger *slog.Logger) *StockHandler {
	return &StockHandler{
		service:           svc,
		lowStockThreshold: lowStockThreshold,
		logger:            logger,
	}
}

// Get handles GET /api/v1/stock/{productId}
func (h *StockHandler) Get(w http.ResponseWriter, r *http.Request) {
	productID, ok := httputil.ParseUUID(w, chi.URLParam(r, "productId"), "product_id")
	if !ok {
		return
	}

	level, err := h.service.GetStock(r.Context(), productID.String())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, level)
}

// LowStock handles GET /api/v1/stock/low-stock
func (h *StockHandler) LowStock(w http.ResponseWriter, r *http.Request) {
	params := pagination.FromRequest(r)

	snapshots, total, err := h.service.ListLowStock(r.Context(), h.lowStockThreshold, params.PerPage, params.Offset)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, pagination.NewResult(snapshots, total, params))
}
