package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	razorpay "github.com/razorpay/razorpay-go"
	"github.com/razorpay/razorpay-go/utils"
)

// Logger defines the logging contract for gateway operations.
type Logger func(ctx context.Context, event string, fields map[string]any)

type razorpayOrderAPI interface {
	Create(data map[string]interface{}, extraHeaders map[string]string) (map[string]interface{}, error)
}

type razorpayPaymentAPI interface {
	Fetch(paymentID string, queryParams map[string]interface{}, extraHeaders map[string]string) (map[string]interface{}, error)
	Refund(paymentID string, amount int, data map[string]interface{}, extraHeaders map[string]string) (map[string]interface{}, error)
}

// RazorpayClients allows tests to inject fakes for the SDK resources.
type RazorpayClients struct {
	Orders   razorpayOrderAPI
	Payments razorpayPaymentAPI
}

// RazorpayProviderConfig configures the RazorpayProvider.
type RazorpayProviderConfig struct {
	KeyID         string
	KeySecret     string
	WebhookSecret string
	Logger        Logger
	Clock         func() time.Time
	Clients       *RazorpayClients
}

// RazorpayProvider implements Provider against the Razorpay Orders and Payments APIs.
// Amounts are sent in minor units (paise).
type RazorpayProvider struct {
	orders        razorpayOrderAPI
	payments      razorpayPaymentAPI
	keyID         string
	keySecret     string
	webhookSecret string
	clock         func() time.Time
	logger        Logger
}

var _ Provider = (*RazorpayProvider)(nil)

// NewRazorpayProvider constructs the provider.
func NewRazorpayProvider(cfg RazorpayProviderConfig) (*RazorpayProvider, error) {
	keyID := strings.TrimSpace(cfg.KeyID)
	secret := strings.TrimSpace(cfg.KeySecret)
	if secret == "" {
		return nil, errors.New("razorpay: key secret is required")
	}

	var clients RazorpayClients
	if cfg.Clients != nil {
		clients = *cfg.Clients
	} else {
		if keyID == "" {
			return nil, errors.New("razorpay: key id is required")
		}
		client := razorpay.NewClient(keyID, secret)
		clients = RazorpayClients{Orders: client.Order, Payments: client.Payment}
	}
	if clients.Orders == nil || clients.Payments == nil {
		return nil, errors.New("razorpay: incomplete client configuration")
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &RazorpayProvider{
		orders:        clients.Orders,
		payments:      clients.Payments,
		keyID:         keyID,
		keySecret:     secret,
		webhookSecret: strings.TrimSpace(cfg.WebhookSecret),
		clock: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

// CreateCharge opens a Razorpay order with auto-capture.
func (p *RazorpayProvider) CreateCharge(ctx context.Context, req ChargeRequest) (Charge, error) {
	if req.Amount <= 0 {
		return Charge{}, errors.New("razorpay: amount must be positive")
	}
	notes := map[string]interface{}{
		"order_id":       req.OrderID,
		"transaction_id": req.TransactionID,
	}
	for k, v := range req.Notes {
		notes[k] = v
	}
	data := map[string]interface{}{
		"amount":          req.Amount,
		"currency":        strings.ToUpper(req.Currency),
		"receipt":         req.OrderNumber,
		"payment_capture": 1,
		"notes":           notes,
	}

	start := p.clock()
	resp, err := p.orders.Create(data, nil)
	if err != nil {
		p.logger(ctx, "payments.razorpay.order.failed", map[string]any{
			"order":    req.OrderID,
			"error":    err.Error(),
			"duration": p.clock().Sub(start).String(),
		})
		return Charge{}, &GatewayError{Provider: ProviderRazorpay, Op: "create order", Err: err}
	}

	id := stringField(resp, "id")
	if id == "" {
		return Charge{}, &GatewayError{Provider: ProviderRazorpay, Op: "create order", Err: errors.New("response missing order id")}
	}
	p.logger(ctx, "payments.razorpay.order.created", map[string]any{
		"order":         req.OrderID,
		"gatewayOrder":  id,
		"amount":        req.Amount,
		"currency":      req.Currency,
		"gatewayStatus": stringField(resp, "status"),
	})

	resp["key_id"] = p.keyID
	return Charge{
		Provider:       ProviderRazorpay,
		GatewayOrderID: id,
		Status:         StatusPending,
		Amount:         req.Amount,
		Currency:       strings.ToUpper(req.Currency),
		Raw:            resp,
	}, nil
}

// ConfirmPayment verifies the checkout signature and reads back the payment.
func (p *RazorpayProvider) ConfirmPayment(ctx context.Context, req ConfirmRequest) (PaymentDetails, error) {
	if req.GatewayOrderID == "" || req.GatewayPaymentID == "" || req.Signature == "" {
		return PaymentDetails{}, fmt.Errorf("%w: order id, payment id and signature are required", ErrSignatureMismatch)
	}
	attrs := map[string]interface{}{
		"razorpay_order_id":   req.GatewayOrderID,
		"razorpay_payment_id": req.GatewayPaymentID,
	}
	if !utils.VerifyPaymentSignature(attrs, req.Signature, p.keySecret) {
		p.logger(ctx, "payments.razorpay.signature.invalid", map[string]any{"gatewayOrder": req.GatewayOrderID})
		return PaymentDetails{}, ErrSignatureMismatch
	}

	resp, err := p.payments.Fetch(req.GatewayPaymentID, nil, nil)
	if err != nil {
		return PaymentDetails{}, &GatewayError{Provider: ProviderRazorpay, Op: "fetch payment", Err: err}
	}
	return PaymentDetails{
		Provider:         ProviderRazorpay,
		GatewayOrderID:   req.GatewayOrderID,
		GatewayPaymentID: req.GatewayPaymentID,
		Status:           razorpayStatus(stringField(resp, "status")),
		Amount:           int64Field(resp, "amount"),
		Currency:         stringField(resp, "currency"),
		Raw:              resp,
	}, nil
}

// Refund issues a (partial) refund against a captured payment.
func (p *RazorpayProvider) Refund(ctx context.Context, req RefundRequest) (RefundResult, error) {
	if req.GatewayPaymentID == "" {
		return RefundResult{}, errors.New("razorpay: payment id is required for refund")
	}
	data := map[string]interface{}{
		"notes": map[string]interface{}{
			"reason":  req.Reason,
			"receipt": req.OrderNumber,
		},
	}
	resp, err := p.payments.Refund(req.GatewayPaymentID, int(req.Amount), data, nil)
	if err != nil {
		p.logger(ctx, "payments.razorpay.refund.failed", map[string]any{
			"payment": req.GatewayPaymentID,
			"error":   err.Error(),
		})
		return RefundResult{}, &GatewayError{Provider: ProviderRazorpay, Op: "refund", Err: err}
	}
	return RefundResult{
		RefundID: stringField(resp, "id"),
		Status:   StatusRefunded,
		Amount:   int64Field(resp, "amount"),
		Raw:      resp,
	}, nil
}

// VerifyWebhook checks the X-Razorpay-Signature header against the raw body.
func (p *RazorpayProvider) VerifyWebhook(body []byte, signature string) error {
	if p.webhookSecret == "" {
		return errors.New("razorpay: webhook secret not configured")
	}
	if signature == "" || !utils.VerifyWebhookSignature(string(body), signature, p.webhookSecret) {
		return ErrSignatureMismatch
	}
	return nil
}

func razorpayStatus(status string) Status {
	switch status {
	case "captured", "authorized":
		return StatusSucceeded
	case "refunded":
		return StatusRefunded
	case "failed":
		return StatusFailed
	default:
		return StatusPending
	}
}

func stringField(m map[string]interface{}, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

// int64Field reads numeric JSON fields, which the SDK decodes as float64.
func int64Field(m map[string]interface{}, key string) int64 {
	switch v := m[key].(type) {
	case float64:
		return int64(v)
	case int64:
		return v
	case int:
		return int64(v)
	default:
		return 0
	}
}
