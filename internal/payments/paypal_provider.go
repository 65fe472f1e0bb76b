package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/plutov/paypal/v4"
	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
)

type paypalAPI interface {
	CreateOrder(ctx context.Context, intent string, purchaseUnits []paypal.PurchaseUnitRequest, paymentSource *paypal.PaymentSource, appContext *paypal.ApplicationContext) (*paypal.Order, error)
	CaptureOrder(ctx context.Context, orderID string, captureOrderRequest paypal.CaptureOrderRequest) (*paypal.CaptureOrderResponse, error)
	RefundCapture(ctx context.Context, captureID string, refundCaptureRequest paypal.RefundCaptureRequest) (*paypal.RefundResponse, error)
}

// PayPalProviderConfig configures the PayPalProvider.
type PayPalProviderConfig struct {
	ClientID    string
	Secret      string
	Environment string
	ReturnURL   string
	CancelURL   string
	Logger      Logger
	Clock       func() time.Time
	Client      paypalAPI
}

// PayPalProvider implements Provider against the PayPal Orders v2 API. Amounts are sent as
// two-place decimal strings such as "2100.00".
type PayPalProvider struct {
	api       paypalAPI
	returnURL string
	cancelURL string
	clock     func() time.Time
	logger    Logger
}

var _ Provider = (*PayPalProvider)(nil)

// NewPayPalProvider constructs the provider.
func NewPayPalProvider(cfg PayPalProviderConfig) (*PayPalProvider, error) {
	api := cfg.Client
	if api == nil {
		clientID := strings.TrimSpace(cfg.ClientID)
		secret := strings.TrimSpace(cfg.Secret)
		if clientID == "" || secret == "" {
			return nil, errors.New("paypal: client id and secret are required")
		}
		base := paypal.APIBaseSandBox
		if strings.EqualFold(strings.TrimSpace(cfg.Environment), "live") {
			base = paypal.APIBaseLive
		}
		client, err := paypal.NewClient(clientID, secret, base)
		if err != nil {
			return nil, err
		}
		api = client
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &PayPalProvider{
		api:       api,
		returnURL: strings.TrimSpace(cfg.ReturnURL),
		cancelURL: strings.TrimSpace(cfg.CancelURL),
		clock: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

// CreateCharge creates a PayPal order with CAPTURE intent.
func (p *PayPalProvider) CreateCharge(ctx context.Context, req ChargeRequest) (Charge, error) {
	if req.Amount <= 0 {
		return Charge{}, errors.New("paypal: amount must be positive")
	}
	code := strings.ToUpper(req.Currency)
	value, err := FormatAmount(req.Amount, code)
	if err != nil {
		return Charge{}, err
	}
	units := []paypal.PurchaseUnitRequest{{
		ReferenceID: req.OrderNumber,
		InvoiceID:   req.TransactionID,
		CustomID:    req.OrderID,
		Amount: &paypal.PurchaseUnitAmount{
			Currency: code,
			Value:    value,
		},
	}}
	var app *paypal.ApplicationContext
	if p.returnURL != "" || p.cancelURL != "" {
		app = &paypal.ApplicationContext{ReturnURL: p.returnURL, CancelURL: p.cancelURL}
	}

	order, err := p.api.CreateOrder(ctx, paypal.OrderIntentCapture, units, nil, app)
	if err != nil {
		p.logger(ctx, "payments.paypal.order.failed", map[string]any{"order": req.OrderID, "error": err.Error()})
		return Charge{}, &GatewayError{Provider: ProviderPayPal, Op: "create order", Err: err}
	}
	if order == nil || order.ID == "" {
		return Charge{}, &GatewayError{Provider: ProviderPayPal, Op: "create order", Err: errors.New("response missing order id")}
	}

	charge := Charge{
		Provider:       ProviderPayPal,
		GatewayOrderID: order.ID,
		Status:         StatusPending,
		Amount:         req.Amount,
		Currency:       code,
		Raw:            map[string]any{"id": order.ID, "status": order.Status},
	}
	for _, link := range order.Links {
		if link.Rel == "approve" || link.Rel == "payer-action" {
			charge.ApprovalURL = link.Href
			break
		}
	}
	p.logger(ctx, "payments.paypal.order.created", map[string]any{
		"order":        req.OrderID,
		"gatewayOrder": order.ID,
		"amount":       units[0].Amount.Value,
		"currency":     code,
	})
	return charge, nil
}

// ConfirmPayment captures the approved PayPal order. The capture id becomes the gateway payment id.
func (p *PayPalProvider) ConfirmPayment(ctx context.Context, req ConfirmRequest) (PaymentDetails, error) {
	if req.GatewayOrderID == "" {
		return PaymentDetails{}, errors.New("paypal: order id is required")
	}
	resp, err := p.api.CaptureOrder(ctx, req.GatewayOrderID, paypal.CaptureOrderRequest{})
	if err != nil {
		return PaymentDetails{}, &GatewayError{Provider: ProviderPayPal, Op: "capture order", Err: err}
	}

	details := PaymentDetails{
		Provider:       ProviderPayPal,
		GatewayOrderID: req.GatewayOrderID,
		Status:         paypalStatus(resp.Status),
		Raw:            map[string]any{"id": resp.ID, "status": resp.Status},
	}
	for _, unit := range resp.PurchaseUnits {
		if unit.Payments == nil {
			continue
		}
		for _, capture := range unit.Payments.Captures {
			details.GatewayPaymentID = capture.ID
			if capture.Amount != nil {
				details.Currency = capture.Amount.Currency
				if amount, err := ParseAmount(capture.Amount.Value); err == nil {
					details.Amount = amount
				}
			}
			break
		}
	}
	if details.GatewayPaymentID == "" {
		details.GatewayPaymentID = req.GatewayPaymentID
	}
	return details, nil
}

// Refund refunds a capture, fully or partially.
func (p *PayPalProvider) Refund(ctx context.Context, req RefundRequest) (RefundResult, error) {
	if req.GatewayPaymentID == "" {
		return RefundResult{}, errors.New("paypal: capture id is required for refund")
	}
	refundReq := paypal.RefundCaptureRequest{
		NoteToPayer: req.Reason,
		InvoiceID:   req.OrderNumber,
	}
	if req.Amount > 0 {
		code := strings.ToUpper(req.Currency)
		value, err := FormatAmount(req.Amount, code)
		if err != nil {
			return RefundResult{}, err
		}
		refundReq.Amount = &paypal.Money{Currency: code, Value: value}
	}
	resp, err := p.api.RefundCapture(ctx, req.GatewayPaymentID, refundReq)
	if err != nil {
		p.logger(ctx, "payments.paypal.refund.failed", map[string]any{"capture": req.GatewayPaymentID, "error": err.Error()})
		return RefundResult{}, &GatewayError{Provider: ProviderPayPal, Op: "refund", Err: err}
	}
	result := RefundResult{
		RefundID: resp.ID,
		Status:   StatusRefunded,
		Amount:   req.Amount,
		Raw:      map[string]any{"id": resp.ID, "status": resp.Status},
	}
	if resp.Amount != nil {
		if amount, err := ParseAmount(resp.Amount.Value); err == nil {
			result.Amount = amount
		}
	}
	return result, nil
}

// FormatAmount renders hundredths of a unit in the ISO 4217 scale of the currency. PayPal rejects
// decimals on zero-decimal currencies such as JPY, so an amount that cannot be expressed at that
// scale is an error rather than a silent rounding.
func FormatAmount(minor int64, code string) (string, error) {
	unit, err := currency.ParseISO(code)
	if err != nil {
		return "", fmt.Errorf("paypal: unsupported currency %q", code)
	}
	scale, _ := currency.Standard.Rounding(unit)
	amount := decimal.New(minor, -2)
	if !amount.Equal(amount.Round(int32(scale))) {
		return "", fmt.Errorf("paypal: %s %s does not fit %d decimal places", amount.String(), unit.String(), scale)
	}
	return amount.StringFixed(int32(scale)), nil
}

// ParseAmount parses a PayPal decimal string into minor units.
func ParseAmount(value string) (int64, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(value))
	if err != nil {
		return 0, err
	}
	return d.Round(2).Shift(2).IntPart(), nil
}

func paypalStatus(status string) Status {
	switch strings.ToUpper(status) {
	case "COMPLETED":
		return StatusSucceeded
	case "VOIDED", "DECLINED":
		return StatusFailed
	default:
		return StatusPending
	}
}
