package http

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/manojdandy/orders-inventory/internal/domain"
	"github.com/manojdandy/orders-inventory/internal/event"
	"github.com/manojdandy/orders-inventory/internal/ledger"
	"github.com/manojdandy/orders-inventory/internal/repository"
	"github.com/manojdandy/orders-inventory/internal/service"
	"github.com/manojdandy/orders-inventory/internal/strategy"
	apperrors "github.com/manojdandy/orders-inventory/pkg/errors"
	"github.com/manojdandy/orders-inventory/pkg/health"
	"github.com/manojdandy/orders-inventory/pkg/httputil"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	led := ledger.NewMemoryLedger()
	reserver := strategy.NewPessimistic(led, 500*time.Millisecond, logger)

	orderSvc := service.NewOrderService(repository.NewMemoryOrderRepository(), reserver, event.NewProducer(nil, logger), logger)
	productSvc := service.NewProductService(repository.NewMemoryProductRepository(), led, logger)

	router := NewRouter(orderSvc, productSvc, health.NewHandler(), RouterConfig{
		ServiceName:       "orders",
		LowStockThreshold: 10,
	}, logger)

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv
}

func doJSON(t *testing.T, srv *httptest.Server, method, path string, body any) (*http.Response, []byte) {
	t.Helper()

	var buf io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		buf = bytes.NewReader(b)
	}

	req, err := http.NewRequest(method, srv.URL+path, buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, raw
}

func createProduct(t *testing.T, srv *httptest.Server, sku string, stock int) domain.Product {
	t.Helper()

	resp, raw := doJSON(t, srv, http.MethodPost, "/api/v1/products", map[string]any{
		"sku":   sku,
		"name":  "Widget " + sku,
		"price": 1999,
		"stock": stock,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(raw))

	var p domain.Product
	require.NoError(t, json.Unmarshal(raw, &p))
	return p
}

func decodeErrorPayload(t *testing.T, raw []byte) httputil.ErrorPayload {
	t.Helper()

	var payload httputil.ErrorPayload
	require.NoError(t, json.Unmarshal(raw, &payload))
	assert.False(t, payload.Timestamp.IsZero())
	require.NotEmpty(t, payload.Details)
	return payload
}

func TestCreateOrder(t *testing.T) {
	srv := newTestServer(t)
	product := createProduct(t, srv, "SKU-001", 5)

	resp, raw := doJSON(t, srv, http.MethodPost, "/api/v1/orders", map[string]any{
		"product_id": product.ID,
		"quantity":   2,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(raw))

	var order domain.Order
	require.NoError(t, json.Unmarshal(raw, &order))
	assert.NotEmpty(t, order.ID)
	assert.Equal(t, product.ID, order.ProductID)
	assert.Equal(t, 2, order.Quantity)
	assert.Equal(t, domain.OrderStatusPending, order.Status)

	// Stock was decremented exactly once.
	resp, raw = doJSON(t, srv, http.MethodGet, "/api/v1/stock/"+product.ID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var level domain.StockLevel
	require.NoError(t, json.Unmarshal(raw, &level))
	assert.Equal(t, 3, level.Quantity)
	assert.Equal(t, int64(2), level.Version)
}

func TestCreateOrder_InsufficientStock(t *testing.T) {
	srv := newTestServer(t)
	product := createProduct(t, srv, "SKU-002", 1)

	resp, raw := doJSON(t, srv, http.MethodPost, "/api/v1/orders", map[string]any{
		"product_id": product.ID,
		"quantity":   3,
	})
	require.Equal(t, http.StatusConflict, resp.StatusCode)

	payload := decodeErrorPayload(t, raw)
	assert.Equal(t, apperrors.TypeInsufficientStock, payload.Error)
	assert.Equal(t, apperrors.TypeInsufficientStock, payload.Details[0].Type)
	assert.Contains(t, payload.Details[0].Message, "available 1")

	// The failed attempt left the ledger untouched.
	resp, raw = doJSON(t, srv, http.MethodGet, "/api/v1/stock/"+product.ID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var level domain.StockLevel
	require.NoError(t, json.Unmarshal(raw, &level))
	assert.Equal(t, 1, level.Quantity)
	assert.Equal(t, int64(1), level.Version)
}

func TestCreateOrder_MalformedBody(t *testing.T) {
	srv := newTestServer(t)

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/api/v1/orders", bytes.NewBufferString("{not json"))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	payload := decodeErrorPayload(t, raw)
	assert.Equal(t, apperrors.TypeValidation, payload.Error)
}

func TestCreateOrder_ValidationDetails(t *testing.T) {
	srv := newTestServer(t)

	resp, raw := doJSON(t, srv, http.MethodPost, "/api/v1/orders", map[string]any{
		"product_id": "not-a-uuid",
	})
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	payload := decodeErrorPayload(t, raw)
	assert.Equal(t, apperrors.TypeValidation, payload.Error)
	require.Len(t, payload.Details, 2)

	fields := make(map[string]string)
	for _, d := range payload.Details {
		assert.Equal(t, apperrors.TypeValidation, d.Type)
		require.NotNil(t, d.Field)
		fields[*d.Field] = d.Message
	}
	assert.Contains(t, fields, "ProductID")
	assert.Contains(t, fields, "Quantity")
}

func TestGetOrder_NotFound(t *testing.T) {
	srv := newTestServer(t)

	resp, raw := doJSON(t, srv, http.MethodGet, "/api/v1/orders/9f3cbf2e-8df5-4b4a-9f6e-0d6a6f3f1c11", nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	payload := decodeErrorPayload(t, raw)
	assert.Equal(t, apperrors.TypeNotFound, payload.Error)
}

func TestGetOrder_InvalidID(t *testing.T) {
	srv := newTestServer(t)

	resp, raw := doJSON(t, srv, http.MethodGet, "/api/v1/orders/abc", nil)
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	payload := decodeErrorPayload(t, raw)
	assert.Equal(t, apperrors.TypeValidation, payload.Error)
	require.NotNil(t, payload.Details[0].Field)
	assert.Equal(t, "order_id", *payload.Details[0].Field)
}

func TestOrderLifecycle(t *testing.T) {
	srv := newTestServer(t)
	product := createProduct(t, srv, "SKU-003", 10)

	resp, raw := doJSON(t, srv, http.MethodPost, "/api/v1/orders", map[string]any{
		"product_id": product.ID,
		"quantity":   1,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var order domain.Order
	require.NoError(t, json.Unmarshal(raw, &order))

	resp, raw = doJSON(t, srv, http.MethodPost, "/api/v1/orders/"+order.ID+"/pay", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(raw))
	require.NoError(t, json.Unmarshal(raw, &order))
	assert.Equal(t, domain.OrderStatusPaid, order.Status)

	resp, raw = doJSON(t, srv, http.MethodPost, "/api/v1/orders/"+order.ID+"/ship", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(raw))
	require.NoError(t, json.Unmarshal(raw, &order))
	assert.Equal(t, domain.OrderStatusShipped, order.Status)

	// Shipped orders cannot be cancelled.
	resp, raw = doJSON(t, srv, http.MethodPost, "/api/v1/orders/"+order.ID+"/cancel", nil)
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	payload := decodeErrorPayload(t, raw)
	assert.Equal(t, apperrors.TypeValidation, payload.Error)
}

func TestCancelOrder_RestoresStock(t *testing.T) {
	srv := newTestServer(t)
	product := createProduct(t, srv, "SKU-004", 5)

	resp, raw := doJSON(t, srv, http.MethodPost, "/api/v1/orders", map[string]any{
		"product_id": product.ID,
		"quantity":   4,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var order domain.Order
	require.NoError(t, json.Unmarshal(raw, &order))

	resp, raw = doJSON(t, srv, http.MethodPost, "/api/v1/orders/"+order.ID+"/cancel", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(raw))
	require.NoError(t, json.Unmarshal(raw, &order))
	assert.Equal(t, domain.OrderStatusCancelled, order.Status)

	resp, raw = doJSON(t, srv, http.MethodGet, "/api/v1/stock/"+product.ID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var level domain.StockLevel
	require.NoError(t, json.Unmarshal(raw, &level))
	assert.Equal(t, 5, level.Quantity)
	assert.Equal(t, int64(3), level.Version)
}

func TestCreateProduct_DuplicateSKU(t *testing.T) {
	srv := newTestServer(t)
	createProduct(t, srv, "SKU-005", 3)

	resp, raw := doJSON(t, srv, http.MethodPost, "/api/v1/products", map[string]any{
		"sku":   "SKU-005",
		"name":  "Another widget",
		"price": 999,
		"stock": 1,
	})
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	payload := decodeErrorPayload(t, raw)
	assert.Equal(t, apperrors.TypeValidation, payload.Error)
	require.NotNil(t, payload.Details[0].Field)
	assert.Equal(t, "sku", *payload.Details[0].Field)
}

func TestGetStock_NotFound(t *testing.T) {
	srv := newTestServer(t)

	resp, raw := doJSON(t, srv, http.MethodGet, "/api/v1/stock/9f3cbf2e-8df5-4b4a-9f6e-0d6a6f3f1c11", nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	payload := decodeErrorPayload(t, raw)
	assert.Equal(t, apperrors.TypeNotFound, payload.Error)
}

func TestLowStock(t *testing.T) {
	srv := newTestServer(t)
	for i := 0; i < 3; i++ {
		createProduct(t, srv, fmt.Sprintf("LOW-%03d", i), i+1)
	}
	createProduct(t, srv, "HIGH-001", 100)

	resp, raw := doJSON(t, srv, http.MethodGet, "/api/v1/stock/low-stock?page=1&per_page=2", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(raw))

	var result struct {
		Data []struct {
			ProductID string `json:"product_id"`
			Quantity  int    `json:"quantity"`
		} `json:"data"`
		TotalCount int  `json:"total_count"`
		Page       int  `json:"page"`
		PerPage    int  `json:"per_page"`
		TotalPages int  `json:"total_pages"`
		HasNext    bool `json:"has_next"`
	}
	require.NoError(t, json.Unmarshal(raw, &result))

	assert.Equal(t, 3, result.TotalCount)
	assert.Equal(t, 2, result.TotalPages)
	assert.True(t, result.HasNext)
	require.Len(t, result.Data, 2)
	assert.Equal(t, 1, result.Data[0].Quantity)
	assert.Equal(t, 2, result.Data[1].Quantity)
}

func TestHealthEndpoints(t *testing.T) {
	srv := newTestServer(t)

	resp, _ := doJSON(t, srv, http.MethodGet, "/health/live", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = doJSON(t, srv, http.MethodGet, "/health/ready", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
