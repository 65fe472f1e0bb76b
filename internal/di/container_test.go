package di

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	domain "github.com/Gautam0104/jupi-diamond-sub005/internal/domain"
	"github.com/Gautam0104/jupi-diamond-sub005/internal/payments"
	"github.com/Gautam0104/jupi-diamond-sub005/internal/platform/config"
	"github.com/Gautam0104/jupi-diamond-sub005/internal/repositories"
)

// fakeStore satisfies repositories.Store for wiring checks; no repository is called.
type fakeStore struct {
	repositories.Registry
	closed bool
}

func (s *fakeStore) RunInTx(ctx context.Context, fn func(context.Context, repositories.Registry) error) error {
	return fn(ctx, s)
}

type fakeOrders struct {
	repositories.OrderRepository
}

func (s *fakeStore) Orders() repositories.OrderRepository { return fakeOrders{} }

func (s *fakeStore) Health() repositories.HealthRepository {
	return staticHealth{}
}

func (s *fakeStore) Close(context.Context) error {
	s.closed = true
	return nil
}

type staticHealth struct{}

func (staticHealth) Collect(context.Context) (domain.SystemHealthReport, error) {
	return domain.SystemHealthReport{Status: "ok"}, nil
}

func testConfig() config.Config {
	return config.Config{
		Orders: config.OrdersConfig{
			LowStockThreshold: 5,
			MaxItemQuantity:   10,
			PendingTTL:        30 * time.Minute,
			SweepBatchSize:    100,
		},
		Security: config.SecurityConfig{Environment: "test"},
	}
}

func TestNewContainerRequiresStore(t *testing.T) {
	_, err := NewContainer(context.Background(), testConfig(), nil)
	require.Error(t, err)
}

func TestNewContainerRequiresGatewayCredentials(t *testing.T) {
	_, err := NewContainer(context.Background(), testConfig(), &fakeStore{})
	require.ErrorContains(t, err, "no gateway credentials")
}

func TestNewPaymentGatewayRegistersConfiguredProviders(t *testing.T) {
	manager, razorpay, err := NewPaymentGateway(config.PaymentsConfig{
		RazorpayKeyID:         "rzp_test",
		RazorpayKeySecret:     "secret",
		RazorpayWebhookSecret: "whsec",
	}, nil)
	require.NoError(t, err)
	require.NotNil(t, razorpay)
	require.True(t, manager.Has("razorpay"))
	require.False(t, manager.Has("paypal"))
}

func TestNewContainerWiresServices(t *testing.T) {
	store := &fakeStore{}
	manager, err := payments.NewManager(map[string]payments.Provider{"razorpay": noopProvider{}})
	require.NoError(t, err)

	container, err := NewContainer(context.Background(), testConfig(), store, WithGateway(manager, nil))
	require.NoError(t, err)
	require.NotNil(t, container.Services.Orders)
	require.NotNil(t, container.Services.Carts)
	require.NotNil(t, container.Services.Payments)
	require.NotNil(t, container.Services.Returns)
	require.NotNil(t, container.Services.Inventory)
	require.NotNil(t, container.Services.Reconciliation)
	require.NotNil(t, container.Services.System)

	report, err := container.Services.System.HealthReport(context.Background())
	require.NoError(t, err)
	require.Equal(t, "ok", report.Status)
	require.Equal(t, "test", report.Environment)

	require.NoError(t, container.Close(context.Background()))
	require.True(t, store.closed)
}

type noopProvider struct{}

func (noopProvider) CreateCharge(context.Context, payments.ChargeRequest) (payments.Charge, error) {
	return payments.Charge{}, nil
}

func (noopProvider) ConfirmPayment(context.Context, payments.ConfirmRequest) (payments.PaymentDetails, error) {
	return payments.PaymentDetails{}, nil
}

func (noopProvider) Refund(context.Context, payments.RefundRequest) (payments.RefundResult, error) {
	return payments.RefundResult{}, nil
}
