package handlers

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/Gautam0104/jupi-diamond-sub005/internal/platform/httpx"
	"github.com/Gautam0104/jupi-diamond-sub005/internal/services"
)

const (
	razorpaySignatureHeader = "X-Razorpay-Signature"
	maxWebhookBodySize      = 64 * 1024
)

// WebhookHandlers receives gateway callbacks. Authentication is the payload signature.
type WebhookHandlers struct {
	payments services.PaymentService
}

// NewWebhookHandlers constructs the webhook handlers.
func NewWebhookHandlers(payments services.PaymentService) *WebhookHandlers {
	return &WebhookHandlers{payments: payments}
}

// Routes registers the /webhooks endpoints.
func (h *WebhookHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/razorpay", h.razorpay)
}

func (h *WebhookHandlers) razorpay(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.payments == nil {
		writeUnavailable(ctx, w, "payment")
		return
	}
	signature := strings.TrimSpace(r.Header.Get(razorpaySignatureHeader))
	if signature == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_signature", "missing webhook signature", http.StatusUnauthorized))
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBodySize))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "webhook body exceeds allowed size", http.StatusRequestEntityTooLarge))
			return
		}
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "failed to read webhook body", http.StatusBadRequest))
		return
	}

	if err := h.payments.HandleRazorpayWebhook(ctx, body, signature); err != nil {
		if errors.Is(err, services.ErrInvalidSignature) {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_signature", "webhook signature verification failed", http.StatusUnauthorized))
			return
		}
		writeServiceError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
