package payments

import (
	"context"
	"errors"
	"testing"

	"github.com/plutov/paypal/v4"
	"github.com/stretchr/testify/require"
)

type fakePayPal struct {
	units      []paypal.PurchaseUnitRequest
	captureID  string
	refundReq  paypal.RefundCaptureRequest
	order      *paypal.Order
	capture    *paypal.CaptureOrderResponse
	refundResp *paypal.RefundResponse
	err        error
}

func (f *fakePayPal) CreateOrder(_ context.Context, _ string, units []paypal.PurchaseUnitRequest, _ *paypal.PaymentSource, _ *paypal.ApplicationContext) (*paypal.Order, error) {
	f.units = units
	return f.order, f.err
}

func (f *fakePayPal) CaptureOrder(_ context.Context, _ string, _ paypal.CaptureOrderRequest) (*paypal.CaptureOrderResponse, error) {
	return f.capture, f.err
}

func (f *fakePayPal) RefundCapture(_ context.Context, captureID string, req paypal.RefundCaptureRequest) (*paypal.RefundResponse, error) {
	f.captureID = captureID
	f.refundReq = req
	return f.refundResp, f.err
}

func TestPayPalCreateChargeFormatsDecimalAmount(t *testing.T) {
	api := &fakePayPal{order: &paypal.Order{
		ID:     "PAYPAL-ORDER",
		Status: "CREATED",
		Links:  []paypal.Link{{Rel: "approve", Href: "https://paypal.example/approve"}},
	}}
	provider, err := NewPayPalProvider(PayPalProviderConfig{Client: api})
	require.NoError(t, err)

	charge, err := provider.CreateCharge(context.Background(), ChargeRequest{OrderNumber: "ORD-1", Amount: 210000, Currency: "usd"})
	require.NoError(t, err)
	require.Equal(t, "PAYPAL-ORDER", charge.GatewayOrderID)
	require.Equal(t, "https://paypal.example/approve", charge.ApprovalURL)
	require.Len(t, api.units, 1)
	require.Equal(t, "2100.00", api.units[0].Amount.Value)
	require.Equal(t, "USD", api.units[0].Amount.Currency)
}

func TestPayPalConfirmPaymentReturnsCaptureID(t *testing.T) {
	api := &fakePayPal{capture: &paypal.CaptureOrderResponse{
		ID:     "PAYPAL-ORDER",
		Status: "COMPLETED",
		PurchaseUnits: []paypal.CapturedPurchaseUnit{{
			Payments: &paypal.CapturedPayments{Captures: []paypal.CaptureAmount{{
				ID:     "CAPTURE-1",
				Amount: &paypal.PurchaseUnitAmount{Currency: "USD", Value: "25.50"},
			}}},
		}},
	}}
	provider, err := NewPayPalProvider(PayPalProviderConfig{Client: api})
	require.NoError(t, err)

	details, err := provider.ConfirmPayment(context.Background(), ConfirmRequest{GatewayOrderID: "PAYPAL-ORDER"})
	require.NoError(t, err)
	require.Equal(t, StatusSucceeded, details.Status)
	require.Equal(t, "CAPTURE-1", details.GatewayPaymentID)
	require.Equal(t, int64(2550), details.Amount)
}

func TestPayPalRefund(t *testing.T) {
	api := &fakePayPal{refundResp: &paypal.RefundResponse{ID: "REFUND-1", Status: "COMPLETED"}}
	provider, err := NewPayPalProvider(PayPalProviderConfig{Client: api})
	require.NoError(t, err)

	result, err := provider.Refund(context.Background(), RefundRequest{GatewayPaymentID: "CAPTURE-1", Amount: 1999, Currency: "USD"})
	require.NoError(t, err)
	require.Equal(t, "REFUND-1", result.RefundID)
	require.Equal(t, int64(1999), result.Amount)
	require.Equal(t, "CAPTURE-1", api.captureID)
	require.Equal(t, "19.99", api.refundReq.Amount.Value)
}

func TestPayPalGatewayFailure(t *testing.T) {
	provider, err := NewPayPalProvider(PayPalProviderConfig{Client: &fakePayPal{err: errors.New("503")}})
	require.NoError(t, err)

	_, err = provider.CreateCharge(context.Background(), ChargeRequest{Amount: 100, Currency: "USD"})
	var gwErr *GatewayError
	require.ErrorAs(t, err, &gwErr)
	require.Equal(t, ProviderPayPal, gwErr.Provider)
}

func TestAmountHelpers(t *testing.T) {
	cases := map[string]struct {
		minor    int64
		currency string
		want     string
	}{
		"cents":         {minor: 5, currency: "USD", want: "0.05"},
		"whole dollars": {minor: 210000, currency: "USD", want: "2100.00"},
		"zero decimal":  {minor: 210000, currency: "JPY", want: "2100"},
		"three decimal": {minor: 1250, currency: "KWD", want: "12.500"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			got, err := FormatAmount(tc.minor, tc.currency)
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}

	_, err := FormatAmount(210050, "JPY")
	require.Error(t, err, "fractional yen cannot be sent to paypal")
	_, err = FormatAmount(100, "ZZZ")
	require.Error(t, err)

	amount, err := ParseAmount("99.99")
	require.NoError(t, err)
	require.Equal(t, int64(9999), amount)
}
