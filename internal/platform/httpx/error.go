// Package httpx holds the JSON error envelope shared by the order API handlers and middleware.
package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/Gautam0104/jupi-diamond-sub005/internal/platform/requestctx"
	"github.com/Gautam0104/jupi-diamond-sub005/internal/services"
)

// Error is the envelope every failed order API call answers with:
//
//	{"error": "insufficient_stock", "message": "...", "status": 409,
//	 "request_id": "...", "trace_id": "...", "order_id": "...", ...details}
type Error struct {
	Code    string
	Message string
	Status  int
	Details map[string]any
}

// NewError constructs a new Error with the provided parameters.
func NewError(code, message string, status int) Error {
	if status == 0 {
		status = http.StatusInternalServerError
	}
	return Error{
		Code:    oneLine(code, 80),
		Message: oneLine(message, 512),
		Status:  status,
	}
}

// WithDetails attaches additional JSON-serialisable metadata. Later keys win.
func (e Error) WithDetails(details map[string]any) Error {
	if len(details) == 0 {
		return e
	}
	merged := make(map[string]any, len(e.Details)+len(details))
	for k, v := range e.Details {
		merged[k] = v
	}
	for k, v := range details {
		merged[k] = v
	}
	e.Details = merged
	return e
}

// StatusForKind maps a service error kind onto its HTTP status.
func StatusForKind(kind services.ErrorKind) int {
	switch kind {
	case services.KindValidation:
		return http.StatusBadRequest
	case services.KindNotFound:
		return http.StatusNotFound
	case services.KindConflict:
		return http.StatusConflict
	case services.KindGateway:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// FromServiceError converts an order service error into the envelope. Internal failures keep a
// generic message; stock shortfalls carry the variant and the quantities involved.
func FromServiceError(err error) Error {
	status := StatusForKind(services.KindOf(err))
	message := "failed to process request"
	if status != http.StatusInternalServerError {
		message = err.Error()
	}
	apiErr := NewError(services.CodeOf(err), message, status)

	var stockErr *services.StockError
	if errors.As(err, &stockErr) {
		apiErr = apiErr.WithDetails(map[string]any{
			"variantId": stockErr.VariantID,
			"requested": stockErr.Requested,
			"available": stockErr.Available,
		})
	}
	return apiErr
}

// WriteServiceError writes err mapped through FromServiceError. A nil err writes nothing.
func WriteServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	WriteError(ctx, w, FromServiceError(err))
}

// WriteError writes the envelope, stamping the request and trace ids plus the order tagged on
// the request so a customer quoting an error can be matched to the order.
func WriteError(ctx context.Context, w http.ResponseWriter, err Error) {
	status := err.Status
	if status == 0 {
		status = http.StatusInternalServerError
	}

	payload := map[string]any{
		"error":   err.Code,
		"message": err.Message,
		"status":  status,
	}
	if id := oneLine(middleware.GetReqID(ctx), 80); id != "" {
		payload["request_id"] = id
	}
	if id := oneLine(requestctx.TraceID(ctx), 64); id != "" {
		payload["trace_id"] = id
	}
	tags := requestctx.Order(ctx)
	if tags.OrderID != "" {
		payload["order_id"] = tags.OrderID
	}
	if tags.OrderNumber != "" {
		payload["order_number"] = tags.OrderNumber
	}
	for k, v := range err.Details {
		payload[k] = v
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func oneLine(value string, limit int) string {
	value = strings.TrimSpace(strings.NewReplacer("\n", " ", "\r", " ").Replace(value))
	if len(value) > limit {
		value = value[:limit]
	}
	return value
}
