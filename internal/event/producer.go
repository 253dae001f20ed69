package event

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/manojdandy/orders-inventory/internal/domain"
	pkgkafka "github.com/manojdandy/orders-inventory/pkg/kafka"
)

// Kafka topics for order lifecycle and stock audit events.
var (
	TopicOrderCreated     = pkgkafka.Topic("order", "created")
	TopicOrderPaid        = pkgkafka.Topic("order", "paid")
	TopicOrderShipped     = pkgkafka.Topic("order", "shipped")
	TopicOrderCancelled   = pkgkafka.Topic("order", "cancelled")
	TopicStockDiscrepancy = pkgkafka.Topic("stock", "discrepancy")
)

// Aggregate type constants.
const (
	AggregateTypeOrder = "order"
	AggregateTypeStock = "stock"
)

// Source identifier for events originating from this service.
const Source = "orders-inventory"

// OrderEventData is the payload for order lifecycle events.
type OrderEventData struct {
	OrderID   string `json:"order_id"`
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
	Status    string `json:"status"`
}

// StockDiscrepancyData is the audit payload emitted when a compensating
// release or a journaled reconciliation delta could not be applied to the
// durable ledger.
type StockDiscrepancyData struct {
	ProductID string `json:"product_id"`
	Delta     int    `json:"delta"`
	Reason    string `json:"reason"`
	OrderID   string `json:"order_id,omitempty"`
}

// Producer publishes domain events to Kafka. A nil inner producer disables
// publishing, which keeps infra-free runs working.
type Producer struct {
	kafka  *pkgkafka.Producer
	logger *slog.Logger
}

// NewProducer creates a domain event producer. kafka may be nil.
func NewProducer(kafka *pkgkafka.Producer, logger *slog.Logger) *Producer {
	return &Producer{kafka: kafka, logger: logger}
}

// PublishOrderEvent publishes one order lifecycle event to the given topic.
func (p *Producer) PublishOrderEvent(ctx context.Context, topic string, order *domain.Order) error {
	if p.kafka == nil {
		return nil
	}

	data := OrderEventData{
		OrderID:   order.ID,
		ProductID: order.ProductID,
		Quantity:  order.Quantity,
		Status:    order.Status,
	}

	event, err := pkgkafka.NewEvent(topic, order.ID, AggregateTypeOrder, Source, data)
	if err != nil {
		return fmt.Errorf("create %s event: %w", topic, err)
	}

	if err := p.kafka.Publish(ctx, topic, event); err != nil {
		return fmt.Errorf("publish %s event: %w", topic, err)
	}
	return nil
}

// PublishStockDiscrepancy publishes the audit event for a stock delta that
// could not be applied. Publish failures are logged, not returned: the audit
// path must never mask the original failure.
func (p *Producer) PublishStockDiscrepancy(ctx context.Context, data StockDiscrepancyData) {
	p.logger.ErrorContext(ctx, "stock discrepancy",
		slog.String("product_id", data.ProductID),
		slog.Int("delta", data.Delta),
		slog.String("reason", data.Reason),
		slog.String("order_id", data.OrderID),
	)

	if p.kafka == nil {
		return
	}

	event, err := pkgkafka.NewEvent(TopicStockDiscrepancy, data.ProductID, AggregateTypeStock, Source, data)
	if err != nil {
		p.logger.ErrorContext(ctx, "failed to create stock.discrepancy event", slog.String("error", err.Error()))
		return
	}
	if err := p.kafka.Publish(ctx, TopicStockDiscrepancy, event); err != nil {
		p.logger.ErrorContext(ctx, "failed to publish stock.discrepancy event", slog.String("error", err.Error()))
	}
}
