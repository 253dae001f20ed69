package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/manojdandy/orders-inventory/internal/domain"
	"github.com/manojdandy/orders-inventory/internal/event"
	"github.com/manojdandy/orders-inventory/internal/repository"
	"github.com/manojdandy/orders-inventory/internal/strategy"
	apperrors "github.com/manojdandy/orders-inventory/pkg/errors"
)

// OrderService coordinates order intake: validate, reserve stock through the
// active concurrency strategy, persist the order, and drive its status
// transitions. An order and a debited stock count never exist without each
// other: a failed persistence compensates the reservation before the error
// returns, and cancellation always releases the held quantity.
type OrderService struct {
	orders   repository.OrderRepository
	reserver strategy.Reserver
	producer *event.Producer
	logger   *slog.Logger
}

// NewOrderService creates the order intake coordinator.
func NewOrderService(orders repository.OrderRepository, reserver strategy.Reserver, producer *event.Producer, logger *slog.Logger) *OrderService {
	return &OrderService{
		orders:   orders,
		reserver: reserver,
		producer: producer,
		logger:   logger,
	}
}

// CreateOrder reserves qty units of the product and persists a PENDING order
// bound to the reservation. Any failure leaves no partial state behind.
func (s *OrderService) CreateOrder(ctx context.Context, productID string, qty int) (*domain.Order, error) {
	if qty <= 0 {
		return nil, apperrors.Validation("quantity", "quantity must be greater than zero")
	}

	snap, err := s.reserver.TryReserve(ctx, productID, qty)
	if err != nil {
		return nil, fmt.Errorf("reserve stock: %w", err)
	}

	now := time.Now().UTC()
	order := &domain.Order{
		ID:        uuid.New().String(),
		ProductID: productID,
		Quantity:  qty,
		Status:    domain.OrderStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.orders.Create(ctx, order); err != nil {
		// The reservation is already debited; give it back before failing.
		if _, relErr := s.reserver.Release(ctx, productID, qty); relErr != nil {
			s.producer.PublishStockDiscrepancy(ctx, event.StockDiscrepancyData{
				ProductID: productID,
				Delta:     qty,
				Reason:    "release after failed order persistence failed: " + relErr.Error(),
				OrderID:   order.ID,
			})
		}
		return nil, fmt.Errorf("persist order: %w", err)
	}

	if err := s.producer.PublishOrderEvent(ctx, event.TopicOrderCreated, order); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish order.created event",
			slog.String("order_id", order.ID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "order created",
		slog.String("order_id", order.ID),
		slog.String("product_id", productID),
		slog.Int("quantity", qty),
		slog.Int("remaining_stock", snap.Quantity),
		slog.String("strategy", s.reserver.Name()),
	)
	return order, nil
}

// GetOrder retrieves an order by ID.
func (s *OrderService) GetOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}
	return order, nil
}

// PayOrder transitions PENDING → PAID. It does not touch the ledger.
func (s *OrderService) PayOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	return s.transition(ctx, orderID, domain.OrderStatusPaid, event.TopicOrderPaid)
}

// ShipOrder transitions PAID → SHIPPED. It does not touch the ledger.
func (s *OrderService) ShipOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	return s.transition(ctx, orderID, domain.OrderStatusShipped, event.TopicOrderShipped)
}

// transition applies a pure status change after validating it against the
// order state machine.
func (s *OrderService) transition(ctx context.Context, orderID, target, topic string) (*domain.Order, error) {
	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}

	if !order.CanTransitionTo(target) {
		return nil, apperrors.Validation("status",
			fmt.Sprintf("cannot transition order from %s to %s", order.Status, target))
	}

	// The repository re-checks the source status atomically with the write,
	// so a concurrent transition cannot be applied twice.
	if err := s.orders.UpdateStatus(ctx, orderID, target, domain.TransitionSources(target)...); err != nil {
		return nil, fmt.Errorf("update order status: %w", err)
	}
	order.Status = target
	order.UpdatedAt = time.Now().UTC()

	if err := s.producer.PublishOrderEvent(ctx, topic, order); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish order event",
			slog.String("order_id", orderID),
			slog.String("topic", topic),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "order status updated",
		slog.String("order_id", orderID),
		slog.String("status", target),
	)
	return order, nil
}

// CancelOrder transitions a PENDING or PAID order to CANCELLED and releases
// its reserved quantity back to the ledger. When the release fails the
// cancellation is still recorded, and the discrepancy goes to the audit path
// instead of being swallowed.
func (s *OrderService) CancelOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}

	if !order.CanTransitionTo(domain.OrderStatusCancelled) {
		return nil, apperrors.Validation("status",
			fmt.Sprintf("cannot cancel order in status %s", order.Status))
	}

	// Win the CANCELLED transition before touching the ledger. The atomic
	// status check makes this caller the only one holding the release
	// responsibility, so the quantity goes back at most once even when
	// cancels race.
	if err := s.orders.UpdateStatus(ctx, orderID, domain.OrderStatusCancelled,
		domain.TransitionSources(domain.OrderStatusCancelled)...); err != nil {
		return nil, fmt.Errorf("update order status: %w", err)
	}

	if _, err := s.reserver.Release(ctx, order.ProductID, order.Quantity); err != nil {
		s.producer.PublishStockDiscrepancy(ctx, event.StockDiscrepancyData{
			ProductID: order.ProductID,
			Delta:     order.Quantity,
			Reason:    "compensating release on cancellation failed: " + err.Error(),
			OrderID:   order.ID,
		})
	}
	order.Status = domain.OrderStatusCancelled
	order.UpdatedAt = time.Now().UTC()

	if err := s.producer.PublishOrderEvent(ctx, event.TopicOrderCancelled, order); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish order.cancelled event",
			slog.String("order_id", orderID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "order cancelled",
		slog.String("order_id", orderID),
		slog.String("product_id", order.ProductID),
		slog.Int("released_quantity", order.Quantity),
	)
	return order, nil
}
