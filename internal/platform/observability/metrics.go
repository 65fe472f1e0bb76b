package observability

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/Gautam0104/jupi-diamond-sub005/internal/services"
)

const meterName = "github.com/Gautam0104/jupi-diamond-sub005/internal/platform/observability"

// OrderMetrics counts order notifications as OpenTelemetry instruments. It satisfies
// services.NotificationSink so it can be fanned out next to the real publisher.
type OrderMetrics struct {
	events   metric.Int64Counter
	value    metric.Int64Histogram
	refunds  metric.Int64Counter
	lowStock metric.Int64Counter
}

// NewOrderMetrics registers the order instruments on the supplied meter, falling back to the
// global meter provider when nil.
func NewOrderMetrics(meter metric.Meter) (*OrderMetrics, error) {
	if meter == nil {
		meter = otel.Meter(meterName)
	}
	events, err := meter.Int64Counter("orders.events",
		metric.WithDescription("Order notifications by event type"))
	if err != nil {
		return nil, fmt.Errorf("observability: register orders.events: %w", err)
	}
	value, err := meter.Int64Histogram("orders.final_amount",
		metric.WithDescription("Final amount of created orders in minor units"),
		metric.WithUnit("{minor_unit}"))
	if err != nil {
		return nil, fmt.Errorf("observability: register orders.final_amount: %w", err)
	}
	refunds, err := meter.Int64Counter("orders.refunded_amount",
		metric.WithDescription("Refunded amount in minor units"),
		metric.WithUnit("{minor_unit}"))
	if err != nil {
		return nil, fmt.Errorf("observability: register orders.refunded_amount: %w", err)
	}
	lowStock, err := meter.Int64Counter("inventory.low_stock",
		metric.WithDescription("Low stock alerts raised by reservations"))
	if err != nil {
		return nil, fmt.Errorf("observability: register inventory.low_stock: %w", err)
	}
	return &OrderMetrics{events: events, value: value, refunds: refunds, lowStock: lowStock}, nil
}

// Notify records the event. It never fails.
func (m *OrderMetrics) Notify(ctx context.Context, event services.NotificationEvent) error {
	if m == nil {
		return nil
	}
	attrs := []attribute.KeyValue{attribute.String("event.type", event.Type)}
	if event.CurrentStatus != "" {
		attrs = append(attrs, attribute.String("order.status", event.CurrentStatus))
	}
	m.events.Add(ctx, 1, metric.WithAttributes(attrs...))

	switch event.Type {
	case services.EventOrderCreated:
		if amount, ok := int64Metadata(event.Metadata, "finalAmount"); ok {
			m.value.Record(ctx, amount, metric.WithAttributes(currencyAttr(event.Metadata)))
		}
	case services.EventOrderRefunded:
		if amount, ok := int64Metadata(event.Metadata, "amount"); ok {
			m.refunds.Add(ctx, amount, metric.WithAttributes(currencyAttr(event.Metadata)))
		}
	case services.EventLowStock:
		m.lowStock.Add(ctx, 1, metric.WithAttributes(attribute.String("variant.id", event.VariantID)))
	}
	return nil
}

func currencyAttr(metadata map[string]any) attribute.KeyValue {
	currency, _ := metadata["currency"].(string)
	if currency == "" {
		currency = "INR"
	}
	return attribute.String("currency", strings.ToUpper(currency))
}

func int64Metadata(metadata map[string]any, key string) (int64, bool) {
	switch v := metadata[key].(type) {
	case int64:
		return v, true
	case int:
		return int64(v), true
	case float64:
		return int64(v), true
	default:
		return 0, false
	}
}
