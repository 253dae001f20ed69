package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/manojdandy/orders-inventory/internal/service"
	"github.com/manojdandy/orders-inventory/pkg/health"
	"github.com/manojdandy/orders-inventory/pkg/middleware"
)

// RouterConfig carries the handler-level knobs the router needs beyond the
// services themselves.
type RouterConfig struct {
	ServiceName       string
	LowStockThreshold int
	PprofAllowedCIDRs []string
}

// NewRouter creates a chi router with all API routes registered.
func NewRouter(
	orderService *service.OrderService,
	productService *service.ProductService,
	healthHandler *health.Handler,
	cfg RouterConfig,
	logger *slog.Logger,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.CORS(middleware.DefaultCORSConfig()))
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.Tracing(cfg.ServiceName))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.RequestLogger(logger))
	r.Use(middleware.PrometheusMetrics(cfg.ServiceName))

	// Health check endpoints
	r.Get("/health/live", healthHandler.LivenessHandler())
	r.Get("/health/ready", healthHandler.ReadinessHandler())
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		promhttp.Handler().ServeHTTP(w, r)
	})

	// Pprof debug endpoints, restricted to the allowlisted CIDRs.
	if len(cfg.PprofAllowedCIDRs) > 0 {
		middleware.RegisterPprof(r, cfg.PprofAllowedCIDRs, logger)
	}

	orderHandler := NewOrderHandler(orderService, logger)
	productHandler := NewProductHandler(productService, logger)
	stockHandler := NewStockHandler(productService, cfg.LowStockThreshold, logger)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(ContentTypeJSON)

		r.Route("/orders", func(r chi.Router) {
			r.Post("/", orderHandler.Create)
			r.Get("/{orderId}", orderHandler.Get)
			r.Post("/{orderId}/pay", orderHandler.Pay)
			r.Post("/{orderId}/ship", orderHandler.Ship)
			r.Post("/{orderId}/cancel", orderHandler.Cancel)
		})

		r.Route("/products", func(r chi.Router) {
			r.Post("/", productHandler.Create)
		})

		r.Route("/stock", func(r chi.Router) {
			r.Get("/low-stock", stockHandler.LowStock)
			r.Get("/{productId}", stockHandler.Get)
		})
	})

	return r
}

// ContentTypeJSON sets the response Content-Type header to application/json.
func ContentTypeJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}
