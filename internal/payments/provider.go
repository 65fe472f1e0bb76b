package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Status enumerates the normalised payment states shared across providers.
type Status string

const (
	// StatusPending indicates the gateway order exists and awaits customer action.
	StatusPending Status = "pending"
	// StatusSucceeded indicates the gateway reports the payment as captured.
	StatusSucceeded Status = "succeeded"
	// StatusFailed indicates the gateway rejected the payment.
	StatusFailed Status = "failed"
	// StatusRefunded indicates the payment has been refunded (partially or fully).
	StatusRefunded Status = "refunded"
)

const (
	ProviderRazorpay = "razorpay"
	ProviderPayPal   = "paypal"
)

var (
	// ErrUnsupportedProvider is returned when the manager cannot locate a provider.
	ErrUnsupportedProvider = errors.New("payments: unsupported provider")
	// ErrSignatureMismatch is returned when a client or webhook signature does not verify.
	ErrSignatureMismatch = errors.New("payments: signature mismatch")
)

// ChargeRequest asks a gateway to open an order that the customer then pays against.
type ChargeRequest struct {
	OrderID       string
	OrderNumber   string
	TransactionID string
	CustomerID    string
	// Amount is in minor units of Currency.
	Amount   int64
	Currency string
	Notes    map[string]string
}

// Charge is the gateway's view of a created order. It is returned to the client as orderDetail.
type Charge struct {
	Provider       string         `json:"provider"`
	GatewayOrderID string         `json:"gatewayOrderId"`
	Status         Status         `json:"status"`
	Amount         int64          `json:"amount"`
	Currency       string         `json:"currency"`
	ApprovalURL    string         `json:"approvalUrl,omitempty"`
	Raw            map[string]any `json:"raw,omitempty"`
}

// ConfirmRequest carries what the client received from the gateway checkout.
type ConfirmRequest struct {
	GatewayOrderID   string
	GatewayPaymentID string
	Signature        string
}

// PaymentDetails normalises gateway payment fields for storage.
type PaymentDetails struct {
	Provider         string
	GatewayOrderID   string
	GatewayPaymentID string
	Status           Status
	Amount           int64
	Currency         string
	Raw              map[string]any
}

// RefundRequest defines a gateway refund attempt. GatewayPaymentID is the Razorpay payment id
// or the PayPal capture id.
type RefundRequest struct {
	GatewayPaymentID string
	Amount           int64
	Currency         string
	Reason           string
	OrderNumber      string
}

// RefundResult is the gateway refund outcome.
type RefundResult struct {
	RefundID string
	Status   Status
	Amount   int64
	Raw      map[string]any
}

// Provider defines the contract gateway adapters implement.
type Provider interface {
	CreateCharge(ctx context.Context, req ChargeRequest) (Charge, error)
	ConfirmPayment(ctx context.Context, req ConfirmRequest) (PaymentDetails, error)
	Refund(ctx context.Context, req RefundRequest) (RefundResult, error)
}

// GatewayError wraps a failed gateway call with the provider and operation.
type GatewayError struct {
	Provider string
	Op       string
	Err      error
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Provider, e.Op, e.Err)
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}

func normaliseKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}
