package handlers

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/Gautam0104/jupi-diamond-sub005/internal/services"
)

func newWebhookRouter(h *WebhookHandlers) http.Handler {
	router := chi.NewRouter()
	router.Route("/webhooks", h.Routes)
	return router
}

func TestWebhookHandlersRazorpay(t *testing.T) {
	const payload = `{"event":"payment.captured","payload":{"payment":{"entity":{"id":"pay_1","order_id":"order_rzp_1"}}}}`

	var gotBody, gotSignature string
	svc := &stubPaymentService{
		webhookFn: func(_ context.Context, body []byte, signature string) error {
			gotBody = string(body)
			gotSignature = signature
			switch signature {
			case "forged":
				return fmt.Errorf("%w: mismatch", services.ErrInvalidSignature)
			case "broken":
				return fmt.Errorf("%w: malformed webhook body", services.ErrInvalidInput)
			}
			return nil
		},
	}
	router := newWebhookRouter(NewWebhookHandlers(svc))

	cases := map[string]int{
		"good":   http.StatusNoContent,
		"forged": http.StatusUnauthorized,
		"broken": http.StatusBadRequest,
		"":       http.StatusUnauthorized,
	}
	for signature, want := range cases {
		req := httptest.NewRequest(http.MethodPost, "/webhooks/razorpay", strings.NewReader(payload))
		if signature != "" {
			req.Header.Set("X-Razorpay-Signature", signature)
		}
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		if rr.Code != want {
			t.Fatalf("signature %q: expected %d, got %d", signature, want, rr.Code)
		}
	}
	if gotBody != payload {
		t.Fatalf("expected raw body passed through, got %q", gotBody)
	}
	if gotSignature == "" {
		t.Fatalf("expected signature passed through")
	}
}

func TestWebhookHandlersRejectOversizedBody(t *testing.T) {
	called := false
	svc := &stubPaymentService{webhookFn: func(context.Context, []byte, string) error {
		called = true
		return nil
	}}
	router := newWebhookRouter(NewWebhookHandlers(svc))

	req := httptest.NewRequest(http.MethodPost, "/webhooks/razorpay", strings.NewReader(strings.Repeat("x", maxWebhookBodySize+1)))
	req.Header.Set("X-Razorpay-Signature", "sig")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusRequestEntityTooLarge || called {
		t.Fatalf("expected 413 without service call, got %d (called=%v)", rr.Code, called)
	}
}
