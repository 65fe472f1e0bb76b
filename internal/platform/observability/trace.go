package observability

import (
	"encoding/binary"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/Gautam0104/jupi-diamond-sub005/internal/platform/requestctx"
)

const cloudTraceHeader = "X-Cloud-Trace-Context"

// Span attributes naming the order a request touched.
const (
	attrOrderID     = attribute.Key("order.id")
	attrOrderNumber = attribute.Key("order.number")
	attrCustomerID  = attribute.Key("enduser.id")
)

var tracer = otel.Tracer("github.com/Gautam0104/jupi-diamond-sub005/internal/platform/observability")

// TraceMiddleware continues a Cloud Trace context when the load balancer sent one, starts the
// server span and installs the order tag holder that handlers fill in. The span is named by
// method only here; RequestLoggerMiddleware renames it to the matched route once chi resolved it.
func TraceMiddleware(projectID string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := requestctx.WithOrderTags(r.Context())
			if remote, ok := parseCloudTraceContext(r.Header.Get(cloudTraceHeader)); ok {
				ctx = trace.ContextWithRemoteSpanContext(ctx, remote)
			}

			ctx, span := tracer.Start(ctx, "HTTP "+r.Method,
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(requestSpanAttributes(r)...),
			)
			defer span.End()

			sc := span.SpanContext()
			info := requestctx.TraceInfo{
				TraceID:   sc.TraceID().String(),
				SpanID:    sc.SpanID().String(),
				Sampled:   sc.IsSampled(),
				ProjectID: projectID,
			}
			if sc.IsValid() {
				w.Header().Set(cloudTraceHeader, formatCloudTraceHeader(sc))
			}

			next.ServeHTTP(w, r.WithContext(requestctx.WithTrace(ctx, info)))
		})
	}
}

// parseCloudTraceContext reads "TRACE_ID/SPAN_ID;o=OPTIONS". The span id is decimal on the wire;
// short hex ids are accepted as well since some proxies forward them that way.
func parseCloudTraceContext(header string) (trace.SpanContext, bool) {
	traceHex, rest, ok := strings.Cut(strings.TrimSpace(header), "/")
	if !ok || len(traceHex) != 32 {
		return trace.SpanContext{}, false
	}
	traceID, err := trace.TraceIDFromHex(traceHex)
	if err != nil {
		return trace.SpanContext{}, false
	}
	spanPart, options, _ := strings.Cut(rest, ";")
	spanID, ok := parseSpanID(strings.TrimSpace(spanPart))
	if !ok {
		return trace.SpanContext{}, false
	}

	var flags trace.TraceFlags
	for _, option := range strings.Split(options, ";") {
		if strings.TrimSpace(option) == "o=1" {
			flags = trace.FlagsSampled
		}
	}
	return trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: flags,
		Remote:     true,
	}), true
}

func parseSpanID(value string) (trace.SpanID, bool) {
	var spanID trace.SpanID
	if num, err := strconv.ParseUint(value, 10, 64); err == nil {
		binary.BigEndian.PutUint64(spanID[:], num)
		return spanID, spanID.IsValid()
	}
	if value == "" || len(value) > 16 {
		return spanID, false
	}
	spanID, err := trace.SpanIDFromHex(strings.Repeat("0", 16-len(value)) + value)
	if err != nil {
		return trace.SpanID{}, false
	}
	return spanID, spanID.IsValid()
}

func formatCloudTraceHeader(sc trace.SpanContext) string {
	sid := sc.SpanID()
	option := 0
	if sc.IsSampled() {
		option = 1
	}
	return fmt.Sprintf("%s/%d;o=%d", sc.TraceID(), binary.BigEndian.Uint64(sid[:]), option)
}

func requestSpanAttributes(r *http.Request) []attribute.KeyValue {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	attrs := []attribute.KeyValue{
		attribute.String("http.request.method", r.Method),
		attribute.String("url.scheme", scheme),
		attribute.String("url.path", r.URL.Path),
	}
	if r.Host != "" {
		attrs = append(attrs, attribute.String("server.address", r.Host))
	}
	if ua := r.UserAgent(); ua != "" {
		attrs = append(attrs, attribute.String("user_agent.original", clean(ua, 256)))
	}
	return attrs
}

// orderSpanAttributes turns tagged order attributes into span attributes, skipping blanks.
func orderSpanAttributes(tags requestctx.OrderTags) []attribute.KeyValue {
	var attrs []attribute.KeyValue
	if tags.OrderID != "" {
		attrs = append(attrs, attrOrderID.String(tags.OrderID))
	}
	if tags.OrderNumber != "" {
		attrs = append(attrs, attrOrderNumber.String(tags.OrderNumber))
	}
	if tags.CustomerID != "" {
		attrs = append(attrs, attrCustomerID.String(tags.CustomerID))
	}
	return attrs
}
