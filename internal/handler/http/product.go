package http

import (
	"log/slog"
	"net/http"

	"github.com/manojdandy/orders-inventory/internal/service"
	"github.com/manojdandy/orders-inventory/pkg/httputil"
	"github.com/manojdandy/orders-inventory/pkg/validator"
)

// ProductHandler handles HTTP requests for product endpoints.
type ProductHandler struct {
	service *service.ProductService
	logger  *slog.Logger
}

// NewProductHandler creates a new product HTTP handler.
func NewProductHandler(svc *service.ProductService, logger *slog.Logger) *ProductHandler {
	return &ProductHandler{
		service: svc,
		logger:  logger,
	}
}

// CreateProductRequest is the JSON request body for registering a product
// with its initial stock.
type CreateProductRequest struct {
	SKU   string `json:"sku" validate:"required,min=1,max=64"`
	Name  string `json:"name" validate:"required,min=1,max=255"`
	Price int64  `json:"price" validate:"required,gte=0"`
	Stock int    `json:"stock" validate:"gte=0"`
}

// Create handles POST /api/v1/products
func (h *ProductHandler) Create(w http.ResponseWriter, r *http.Request) {
	// Limit request body to 1MB to prevent DoS via large payloads.
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)

	var req CreateProductRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	product, err := h.service.CreateProduct(r.Context(), req.SKU, req.Name, req.Price, req.Stock)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, product)
}
