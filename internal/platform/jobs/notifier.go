package jobs

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/Gautam0104/jupi-diamond-sub005/internal/services"
)

// LogNotifier writes notifications to the structured log. It is the default sink when no
// broker is configured.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier constructs a LogNotifier.
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogNotifier{logger: logger.Named("notifications")}
}

// Notify logs the event.
func (n *LogNotifier) Notify(_ context.Context, event services.NotificationEvent) error {
	fields := []zap.Field{
		zap.String("order_id", event.OrderID),
		zap.String("order_number", event.OrderNumber),
		zap.String("customer_id", event.CustomerID),
		zap.Time("occurred_at", event.OccurredAt),
	}
	if event.PreviousStatus != "" || event.CurrentStatus != "" {
		fields = append(fields, zap.String("previous_status", event.PreviousStatus), zap.String("current_status", event.CurrentStatus))
	}
	if event.VariantID != "" {
		fields = append(fields, zap.String("variant_id", event.VariantID))
	}
	if event.Stock != nil {
		fields = append(fields, zap.Int("stock", *event.Stock))
	}
	if len(event.Metadata) > 0 {
		fields = append(fields, zap.Any("metadata", event.Metadata))
	}
	n.logger.Info(event.Type, fields...)
	return nil
}

// FanOut delivers each event to every sink and joins their errors.
type FanOut []services.NotificationSink

// Notify forwards the event to every non-nil sink.
func (f FanOut) Notify(ctx context.Context, event services.NotificationEvent) error {
	var errs []error
	for _, sink := range f {
		if sink == nil {
			continue
		}
		if err := sink.Notify(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// eventAttributes flattens the routing fields of an event into string attributes shared by the
// broker notifiers.
func eventAttributes(event services.NotificationEvent) map[string]string {
	attrs := make(map[string]string)
	setAttr(attrs, "eventType", event.Type)
	setAttr(attrs, "orderId", event.OrderID)
	setAttr(attrs, "orderNumber", event.OrderNumber)
	setAttr(attrs, "customerId", event.CustomerID)
	setAttr(attrs, "status", event.CurrentStatus)
	setAttr(attrs, "variantId", event.VariantID)
	if event.Stock != nil {
		attrs["stock"] = strconv.Itoa(*event.Stock)
	}
	return attrs
}

// eventKey keeps every event of one order on the same partition or ordering key.
func eventKey(event services.NotificationEvent) string {
	if event.OrderID != "" {
		return event.OrderID
	}
	return event.VariantID
}

func setAttr(attrs map[string]string, key string, value string) {
	if v := strings.TrimSpace(value); v != "" {
		attrs[key] = v
	}
}
