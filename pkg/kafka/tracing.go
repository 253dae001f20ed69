package kafka

import (
	"context"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
)

// KafkaHeaderCarrier adapts a kafka.Message header slice to the OpenTelemetry
// propagation.TextMapCarrier interface so trace context can be injected into
// published messages.
type KafkaHeaderCarrier struct {
	headers *[]kafka.Header
}

// Get returns the value of the header with the given key, or "" if absent.
func (c *KafkaHeaderCarrier) Get(key string) string {
	for _, h := range *c.headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

// Set stores the key-value pair, overwriting an existing header with the same key.
func (c *KafkaHeaderCarrier) Set(key, value string) {
	for i, h := range *c.headers {
		if h.Key == key {
			(*c.headers)[i].Value = []byte(value)
			return
		}
	}
	*c.headers = append(*c.headers, kafka.Header{Key: key, Value: []byte(value)})
}

// Keys lists the keys stored in the carrier.
func (c *KafkaHeaderCarrier) Keys() []string {
	keys := make([]string, 0, len(*c.headers))
	for _, h := range *c.headers {
		keys = append(keys, h.Key)
	}
	return keys
}

// injectTraceContext writes the current trace context from ctx into the
// message headers using the globally configured propagator.
func injectTraceContext(ctx context.Context, msg *kafka.Message) {
	otel.GetTextMapPropagator().Inject(ctx, &KafkaHeaderCarrier{headers: &msg.Headers})
}
