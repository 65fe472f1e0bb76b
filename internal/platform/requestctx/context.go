// Package requestctx carries per-request state shared by the HTTP middleware and the order
// handlers: the scoped logger, trace identifiers and the order a request ended up touching.
package requestctx

import (
	"context"
	"strings"
	"sync"

	"go.uber.org/zap"
)

type (
	loggerKey struct{}
	traceKey  struct{}
	orderKey  struct{}
)

var noopLogger = zap.NewNop()

// TraceInfo captures trace metadata propagated through request context.
type TraceInfo struct {
	TraceID   string
	SpanID    string
	Sampled   bool
	ProjectID string
}

// OrderTags names the order and customer a request acted on.
type OrderTags struct {
	OrderID     string
	OrderNumber string
	CustomerID  string
}

// Empty reports whether nothing has been tagged.
func (t OrderTags) Empty() bool {
	return t.OrderID == "" && t.OrderNumber == "" && t.CustomerID == ""
}

// orderHolder is installed once per request by the middleware; handlers further down fill it
// in through the same pointer so the outer middleware can read the result after next returns.
type orderHolder struct {
	mu   sync.Mutex
	tags OrderTags
}

// WithLogger stores the logger in context for downstream consumers.
func WithLogger(ctx context.Context, logger *zap.Logger) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if logger == nil {
		logger = noopLogger
	}
	return context.WithValue(ctx, loggerKey{}, logger)
}

// Logger retrieves the zap logger from context or returns a no-op logger.
func Logger(ctx context.Context) *zap.Logger {
	if logger, ok := LoggerOK(ctx); ok {
		return logger
	}
	return noopLogger
}

// LoggerOK returns the request logger and whether one was installed.
func LoggerOK(ctx context.Context) (*zap.Logger, bool) {
	if ctx == nil {
		return nil, false
	}
	logger, ok := ctx.Value(loggerKey{}).(*zap.Logger)
	return logger, ok && logger != nil
}

// WithTrace stores the trace metadata on the context for downstream usage.
func WithTrace(ctx context.Context, info TraceInfo) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, traceKey{}, info)
}

// Trace retrieves the trace metadata from context when available.
func Trace(ctx context.Context) (TraceInfo, bool) {
	if ctx == nil {
		return TraceInfo{}, false
	}
	info, ok := ctx.Value(traceKey{}).(TraceInfo)
	return info, ok
}

// TraceID extracts the trace identifier from context when present.
func TraceID(ctx context.Context) string {
	info, _ := Trace(ctx)
	return info.TraceID
}

// WithOrderTags installs an empty order tag holder. Calling it again on a context that already
// has one keeps the existing holder.
func WithOrderTags(ctx context.Context) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if _, ok := ctx.Value(orderKey{}).(*orderHolder); ok {
		return ctx
	}
	return context.WithValue(ctx, orderKey{}, &orderHolder{})
}

// TagOrder records the order a request touched. Blank values never overwrite earlier ones, so a
// later tag with only the id keeps the order number already seen.
func TagOrder(ctx context.Context, orderID, orderNumber string) {
	holder := holderFrom(ctx)
	if holder == nil {
		return
	}
	holder.mu.Lock()
	defer holder.mu.Unlock()
	if id := strings.TrimSpace(orderID); id != "" {
		if holder.tags.OrderID != "" && holder.tags.OrderID != id {
			holder.tags.OrderNumber = ""
		}
		holder.tags.OrderID = id
	}
	if number := strings.TrimSpace(orderNumber); number != "" {
		holder.tags.OrderNumber = number
	}
}

// TagCustomer records the customer a request acted for.
func TagCustomer(ctx context.Context, customerID string) {
	holder := holderFrom(ctx)
	if holder == nil {
		return
	}
	if id := strings.TrimSpace(customerID); id != "" {
		holder.mu.Lock()
		holder.tags.CustomerID = id
		holder.mu.Unlock()
	}
}

// Order returns a snapshot of the tagged order attributes.
func Order(ctx context.Context) OrderTags {
	holder := holderFrom(ctx)
	if holder == nil {
		return OrderTags{}
	}
	holder.mu.Lock()
	defer holder.mu.Unlock()
	return holder.tags
}

func holderFrom(ctx context.Context) *orderHolder {
	if ctx == nil {
		return nil
	}
	holder, _ := ctx.Value(orderKey{}).(*orderHolder)
	return holder
}
