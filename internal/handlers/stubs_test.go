package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	domain "github.com/Gautam0104/jupi-diamond-sub005/internal/domain"
	"github.com/Gautam0104/jupi-diamond-sub005/internal/payments"
	"github.com/Gautam0104/jupi-diamond-sub005/internal/platform/auth"
	"github.com/Gautam0104/jupi-diamond-sub005/internal/services"
)

type stubOrderService struct {
	createFn     func(context.Context, services.CreateOrderCommand) (services.CreateOrderResult, error)
	getFn        func(context.Context, services.GetOrderQuery) (services.Order, error)
	listFn       func(context.Context, services.OrderListFilter) (domain.CursorPage[services.Order], error)
	transitionFn func(context.Context, services.TransitionStatusCommand) (services.Order, error)
	cancelFn     func(context.Context, services.CancelOrderCommand) (services.Order, error)
}

var _ services.OrderService = (*stubOrderService)(nil)

func (s *stubOrderService) CreateOrder(ctx context.Context, cmd services.CreateOrderCommand) (services.CreateOrderResult, error) {
	if s.createFn == nil {
		return services.CreateOrderResult{}, nil
	}
	return s.createFn(ctx, cmd)
}

func (s *stubOrderService) GetOrder(ctx context.Context, query services.GetOrderQuery) (services.Order, error) {
	if s.getFn == nil {
		return services.Order{}, services.ErrNotFound
	}
	return s.getFn(ctx, query)
}

func (s *stubOrderService) ListOrders(ctx context.Context, filter services.OrderListFilter) (domain.CursorPage[services.Order], error) {
	if s.listFn == nil {
		return domain.CursorPage[services.Order]{}, nil
	}
	return s.listFn(ctx, filter)
}

func (s *stubOrderService) TransitionStatus(ctx context.Context, cmd services.TransitionStatusCommand) (services.Order, error) {
	if s.transitionFn == nil {
		return services.Order{}, nil
	}
	return s.transitionFn(ctx, cmd)
}

func (s *stubOrderService) Cancel(ctx context.Context, cmd services.CancelOrderCommand) (services.Order, error) {
	if s.cancelFn == nil {
		return services.Order{}, nil
	}
	return s.cancelFn(ctx, cmd)
}

type stubPaymentService struct {
	retryFn   func(context.Context, services.RetryChargeCommand) (services.CreateOrderResult, error)
	confirmFn func(context.Context, services.ConfirmPaymentCommand) (services.Order, error)
	webhookFn func(context.Context, []byte, string) error
}

var _ services.PaymentService = (*stubPaymentService)(nil)

func (s *stubPaymentService) CreateCharge(context.Context, services.Order) (payments.Charge, error) {
	return payments.Charge{}, nil
}

func (s *stubPaymentService) RetryCharge(ctx context.Context, cmd services.RetryChargeCommand) (services.CreateOrderResult, error) {
	if s.retryFn == nil {
		return services.CreateOrderResult{}, nil
	}
	return s.retryFn(ctx, cmd)
}

func (s *stubPaymentService) ConfirmPayment(ctx context.Context, cmd services.ConfirmPaymentCommand) (services.Order, error) {
	if s.confirmFn == nil {
		return services.Order{}, nil
	}
	return s.confirmFn(ctx, cmd)
}

func (s *stubPaymentService) HandleRazorpayWebhook(ctx context.Context, body []byte, signature string) error {
	if s.webhookFn == nil {
		return nil
	}
	return s.webhookFn(ctx, body, signature)
}

type stubReturnService struct {
	refundFn   func(context.Context, services.RefundOrderCommand) (services.RefundOutcome, error)
	requestFn  func(context.Context, services.RequestReturnCommand) (services.ReturnRequest, error)
	approveFn  func(context.Context, services.ApproveReturnCommand) (services.ReturnRequest, error)
	completeFn func(context.Context, string) (services.Order, error)
}

var _ services.ReturnService = (*stubReturnService)(nil)

func (s *stubReturnService) RefundOrder(ctx context.Context, cmd services.RefundOrderCommand) (services.RefundOutcome, error) {
	if s.refundFn == nil {
		return services.RefundOutcome{}, nil
	}
	return s.refundFn(ctx, cmd)
}

func (s *stubReturnService) RequestReturn(ctx context.Context, cmd services.RequestReturnCommand) (services.ReturnRequest, error) {
	if s.requestFn == nil {
		return services.ReturnRequest{}, nil
	}
	return s.requestFn(ctx, cmd)
}

func (s *stubReturnService) ApproveReturn(ctx context.Context, cmd services.ApproveReturnCommand) (services.ReturnRequest, error) {
	if s.approveFn == nil {
		return services.ReturnRequest{}, nil
	}
	return s.approveFn(ctx, cmd)
}

func (s *stubReturnService) CompleteReturn(ctx context.Context, orderID string) (services.Order, error) {
	if s.completeFn == nil {
		return services.Order{}, nil
	}
	return s.completeFn(ctx, orderID)
}

type stubSystemService struct {
	report services.SystemHealthReport
	err    error
}

func (s *stubSystemService) HealthReport(context.Context) (services.SystemHealthReport, error) {
	return s.report, s.err
}

var _ services.SystemService = (*stubSystemService)(nil)

func jsonRequest(method, target, body string) *http.Request {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	return req
}

func asCustomer(req *http.Request, uid string) *http.Request {
	return req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: uid, Roles: []string{auth.RoleCustomer}}))
}

func decodeResponse(t *testing.T, rr *httptest.ResponseRecorder, dst any) {
	t.Helper()
	if err := json.Unmarshal(rr.Body.Bytes(), dst); err != nil {
		t.Fatalf("failed to parse response %q: %v", rr.Body.String(), err)
	}
}

func responseErrorCode(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]any
	decodeResponse(t, rr, &body)
	code, _ := body["error"].(string)
	return code
}
