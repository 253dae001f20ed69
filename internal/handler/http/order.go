package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/manojdandy/orders-inventory/internal/service"
	"github.com/manojdandy/orders-inventory/pkg/httputil"
	"github.com/manojdandy/orders-inventory/pkg/validator"
)

// OrderHandler handles HTTP requests for order endpoints.
type OrderHandler struct {
	service *service.OrderService
	logger  *slog.Logger
}

// NewOrderHandler creates a new order HTTP handler.
func NewOrderHandler(svc *service.OrderService, logger *slog.Logger) *OrderHandler {
	return &OrderHandler{
		service: svc,
		logger:  logger,
	}
}

// CreateOrderRequest is the JSON request body for placing an order.
type CreateOrderRequest struct {
	ProductID string `json:"product_id" validate:"required,uuid"`
	Quantity  int    `json:"quantity" validate:"required,gte=1"`
}

// Create handles POST /api/v1/orders
func (h *OrderHandler) Create(w http.ResponseWriter, r *http.Request) {
	// Limit request body to 1MB to prevent DoS via large payloads.
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)

	var req CreateOrderRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	order, err := h.service.CreateOrder(r.Context(), req.ProductID, req.Quantity)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, order)
}

// Get handles GET /api/v1/orders/{orderId}
func (h *OrderHandler) Get(w http.ResponseWriter, r *http.Request) {
	orderID, ok := httputil.ParseUUID(w, chi.URLParam(r, "orderId"), "order_id")
	if !ok {
		return
	}

	order, err := h.service.GetOrder(r.Context(), orderID.String())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, order)
}

// Pay handles POST /api/v1/orders/{orderId}/pay
func (h *OrderHandler) Pay(w http.ResponseWriter, r *http.Request) {
	orderID, ok := httputil.ParseUUID(w, chi.URLParam(r, "orderId"), "order_id")
	if !ok {
		return
	}

	order, err := h.service.PayOrder(r.Context(), orderID.String())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, order)
}

// Ship handles POST /api/v1/orders/{orderId}/ship
func (h *OrderHandler) Ship(w http.ResponseWriter, r *http.Request) {
	orderID, ok := httputil.ParseUUID(w, chi.URLParam(r, "orderId"), "order_id")
	if !ok {
		return
	}

	order, err := h.service.ShipOrder(r.Context(), orderID.String())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, order)
}

// Cancel handles POST /api/v1/orders/{orderId}/cancel
func (h *OrderHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	orderID, ok := httputil.ParseUUID(w, chi.URLParam(r, "orderId"), "order_id")
	if !ok {
		return
	}

	order, err := h.service.CancelOrder(r.Context(), orderID.String())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, order)
}
