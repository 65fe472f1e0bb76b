package payments

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeRazorpayOrders struct {
	data map[string]interface{}
	resp map[string]interface{}
	err  error
}

func (f *fakeRazorpayOrders) Create(data map[string]interface{}, _ map[string]string) (map[string]interface{}, error) {
	f.data = data
	return f.resp, f.err
}

type fakeRazorpayPayments struct {
	fetched      string
	refundedID   string
	refundAmount int
	fetchResp    map[string]interface{}
	refundResp   map[string]interface{}
	err          error
}

func (f *fakeRazorpayPayments) Fetch(paymentID string, _ map[string]interface{}, _ map[string]string) (map[string]interface{}, error) {
	f.fetched = paymentID
	return f.fetchResp, f.err
}

func (f *fakeRazorpayPayments) Refund(paymentID string, amount int, _ map[string]interface{}, _ map[string]string) (map[string]interface{}, error) {
	f.refundedID = paymentID
	f.refundAmount = amount
	return f.refundResp, f.err
}

func sign(secret, payload string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

func newTestRazorpay(t *testing.T, orders *fakeRazorpayOrders, payments *fakeRazorpayPayments) *RazorpayProvider {
	t.Helper()
	provider, err := NewRazorpayProvider(RazorpayProviderConfig{
		KeyID:         "rzp_test_key",
		KeySecret:     "secret",
		WebhookSecret: "whsec",
		Clients:       &RazorpayClients{Orders: orders, Payments: payments},
	})
	require.NoError(t, err)
	return provider
}

func TestRazorpayCreateChargeSendsMinorUnits(t *testing.T) {
	orders := &fakeRazorpayOrders{resp: map[string]interface{}{"id": "order_123", "status": "created"}}
	provider := newTestRazorpay(t, orders, &fakeRazorpayPayments{})

	charge, err := provider.CreateCharge(context.Background(), ChargeRequest{
		OrderID:     "ord_1",
		OrderNumber: "ORD-1",
		Amount:      210000,
		Currency:    "inr",
	})
	require.NoError(t, err)
	require.Equal(t, "order_123", charge.GatewayOrderID)
	require.Equal(t, StatusPending, charge.Status)
	require.Equal(t, int64(210000), orders.data["amount"])
	require.Equal(t, "INR", orders.data["currency"])
	require.Equal(t, "ORD-1", orders.data["receipt"])
	require.Equal(t, "rzp_test_key", charge.Raw["key_id"])
}

func TestRazorpayCreateChargeWrapsGatewayError(t *testing.T) {
	provider := newTestRazorpay(t, &fakeRazorpayOrders{err: errors.New("bad request")}, &fakeRazorpayPayments{})

	_, err := provider.CreateCharge(context.Background(), ChargeRequest{Amount: 100, Currency: "INR"})
	var gwErr *GatewayError
	require.ErrorAs(t, err, &gwErr)
	require.Equal(t, ProviderRazorpay, gwErr.Provider)
}

func TestRazorpayConfirmPaymentVerifiesSignature(t *testing.T) {
	payments := &fakeRazorpayPayments{fetchResp: map[string]interface{}{
		"status":   "captured",
		"amount":   float64(210000),
		"currency": "INR",
	}}
	provider := newTestRazorpay(t, &fakeRazorpayOrders{}, payments)

	_, err := provider.ConfirmPayment(context.Background(), ConfirmRequest{
		GatewayOrderID:   "order_123",
		GatewayPaymentID: "pay_456",
		Signature:        "deadbeef",
	})
	require.ErrorIs(t, err, ErrSignatureMismatch)
	require.Empty(t, payments.fetched)

	details, err := provider.ConfirmPayment(context.Background(), ConfirmRequest{
		GatewayOrderID:   "order_123",
		GatewayPaymentID: "pay_456",
		Signature:        sign("secret", "order_123|pay_456"),
	})
	require.NoError(t, err)
	require.Equal(t, StatusSucceeded, details.Status)
	require.Equal(t, int64(210000), details.Amount)
	require.Equal(t, "pay_456", payments.fetched)
}

func TestRazorpayRefund(t *testing.T) {
	payments := &fakeRazorpayPayments{refundResp: map[string]interface{}{"id": "rfnd_1", "amount": float64(5000)}}
	provider := newTestRazorpay(t, &fakeRazorpayOrders{}, payments)

	result, err := provider.Refund(context.Background(), RefundRequest{GatewayPaymentID: "pay_456", Amount: 5000})
	require.NoError(t, err)
	require.Equal(t, "rfnd_1", result.RefundID)
	require.Equal(t, int64(5000), result.Amount)
	require.Equal(t, 5000, payments.refundAmount)
	require.Equal(t, "pay_456", payments.refundedID)
}

func TestRazorpayVerifyWebhook(t *testing.T) {
	provider := newTestRazorpay(t, &fakeRazorpayOrders{}, &fakeRazorpayPayments{})
	body := []byte(`{"event":"payment.captured"}`)

	require.NoError(t, provider.VerifyWebhook(body, sign("whsec", string(body))))
	require.ErrorIs(t, provider.VerifyWebhook(body, sign("other", string(body))), ErrSignatureMismatch)
}
