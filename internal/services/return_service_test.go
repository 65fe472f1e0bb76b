package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	domain "github.com/Gautam0104/jupi-diamond-sub005/internal/domain"
	"github.com/Gautam0104/jupi-diamond-sub005/internal/payments"
)

func TestReturnService_RefundRequiresPaidOrder(t *testing.T) {
	store := seededStore()
	store.putOrder(placedOrder("ord_unpaid", domain.OrderStatusConfirmed, domain.PaymentMethodRazorpay, 1))
	svc := newTestServices(t, store)

	_, err := svc.returns.RefundOrder(context.Background(), RefundOrderCommand{OrderID: "ord_unpaid", Amount: 1000})
	if !errors.Is(err, ErrNotPaid) {
		t.Fatalf("expected not paid, got %v", err)
	}
	if svc.gateway.refundCount() != 0 {
		t.Fatalf("expected gateway untouched")
	}
}

func TestReturnService_RefundValidatesAmount(t *testing.T) {
	store := seededStore()
	store.putOrder(paidOrder("ord_a", domain.OrderStatusDelivered, domain.PaymentMethodRazorpay))
	svc := newTestServices(t, store)

	cases := map[string]struct {
		amount int64
		want   error
	}{
		"zero":         {amount: 0, want: ErrInvalidInput},
		"negative":     {amount: -5, want: ErrInvalidInput},
		"exceeds paid": {amount: 105001, want: ErrAmountExceedsPaid},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := svc.returns.RefundOrder(context.Background(), RefundOrderCommand{OrderID: "ord_a", Amount: tc.amount})
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
	if svc.gateway.refundCount() != 0 {
		t.Fatalf("expected gateway untouched")
	}
}

func TestReturnService_RefundPaidOrder(t *testing.T) {
	store := seededStore()
	store.putOrder(paidOrder("ord_a", domain.OrderStatusDelivered, domain.PaymentMethodRazorpay))
	store.putPayment(domain.PaymentHistory{ID: "pay_1", OrderID: "ord_a", AttemptNumber: 1, Status: domain.PaymentAttemptSuccess})
	svc := newTestServices(t, store)

	outcome, err := svc.returns.RefundOrder(context.Background(), RefundOrderCommand{
		OrderID: "ord_a", Amount: 105000, Reason: "damaged clasp",
	})
	if err != nil {
		t.Fatalf("refund: %v", err)
	}
	if !outcome.Success || outcome.Message != "Refund processed successfully" {
		t.Fatalf("unexpected outcome %+v", outcome)
	}
	if len(svc.gateway.refunds) != 1 {
		t.Fatalf("expected one gateway refund, got %d", len(svc.gateway.refunds))
	}
	req := svc.gateway.refunds[0]
	if req.GatewayPaymentID != "pay_gw_ord_a" || req.Amount != 105000 || req.Currency != "INR" {
		t.Fatalf("unexpected refund request %+v", req)
	}

	stored := store.order("ord_a")
	if stored.Status != domain.OrderStatusRefunded || stored.PaymentStatus != domain.PaymentStatusRefunded {
		t.Fatalf("unexpected refunded order %+v", stored)
	}
	if stored.Refund == nil || stored.Refund.RefundID != "rfnd_1" || stored.Refund.Amount != 105000 || stored.Refund.Reason != "damaged clasp" {
		t.Fatalf("unexpected refund record %+v", stored.Refund)
	}
	attempts := store.paymentsFor("ord_a")
	if !attempts[0].Refunded || attempts[0].RefundedAt == nil {
		t.Fatalf("expected payment attempt marked refunded, got %+v", attempts[0])
	}
	if len(svc.notifier.ofType(EventOrderRefunded)) != 1 {
		t.Fatalf("expected order.refunded event")
	}

	_, err = svc.returns.RefundOrder(context.Background(), RefundOrderCommand{OrderID: "ord_a", Amount: 100})
	if !errors.Is(err, ErrNotPaid) {
		t.Fatalf("expected second refund rejected, got %v", err)
	}
}

func TestReturnService_RefundCODSkipsGateway(t *testing.T) {
	store := seededStore()
	store.putOrder(paidOrder("ord_cod", domain.OrderStatusDelivered, domain.PaymentMethodCOD))
	svc := newTestServices(t, store)

	if _, err := svc.returns.RefundOrder(context.Background(), RefundOrderCommand{OrderID: "ord_cod", Amount: 5000}); err != nil {
		t.Fatalf("refund: %v", err)
	}
	if svc.gateway.refundCount() != 0 {
		t.Fatalf("expected no gateway refund for COD")
	}
	if got := store.order("ord_cod").Status; got != domain.OrderStatusRefunded {
		t.Fatalf("expected REFUNDED, got %s", got)
	}
}

func TestReturnService_RefundGatewayFailureLeavesOrder(t *testing.T) {
	store := seededStore()
	store.putOrder(paidOrder("ord_a", domain.OrderStatusShipped, domain.PaymentMethodPayPal))
	svc := newTestServices(t, store)
	svc.gateway.refundFn = func(payments.PaymentContext, payments.RefundRequest) (payments.RefundResult, error) {
		return payments.RefundResult{}, errors.New("paypal: capture already refunded")
	}

	_, err := svc.returns.RefundOrder(context.Background(), RefundOrderCommand{OrderID: "ord_a", Amount: 1000})
	if !errors.Is(err, ErrPaymentGateway) {
		t.Fatalf("expected gateway error, got %v", err)
	}
	stored := store.order("ord_a")
	if stored.Status != domain.OrderStatusShipped || stored.Refund != nil || stored.PaymentStatus != domain.PaymentStatusSuccess {
		t.Fatalf("expected order untouched, got %+v", stored)
	}

	svc.gateway.refundFn = nil
	if _, err := svc.returns.RefundOrder(context.Background(), RefundOrderCommand{OrderID: "ord_a", Amount: 1000}); err != nil {
		t.Fatalf("expected retry after gateway failure to succeed, got %v", err)
	}
}

func TestReturnService_ConcurrentRefundsReachGatewayOnce(t *testing.T) {
	store := seededStore()
	store.putOrder(paidOrder("ord_a", domain.OrderStatusDelivered, domain.PaymentMethodRazorpay))
	svc := newTestServices(t, store)

	entered := make(chan struct{})
	release := make(chan struct{})
	svc.gateway.refundFn = func(_ payments.PaymentContext, req payments.RefundRequest) (payments.RefundResult, error) {
		close(entered)
		<-release
		return payments.RefundResult{RefundID: "rfnd_1", Status: payments.StatusRefunded, Amount: req.Amount}, nil
	}

	firstErr := make(chan error, 1)
	go func() {
		_, err := svc.returns.RefundOrder(context.Background(), RefundOrderCommand{OrderID: "ord_a", Amount: 105000})
		firstErr <- err
	}()
	<-entered

	if got := store.order("ord_a").PaymentStatus; got != domain.PaymentStatusRefundPending {
		t.Fatalf("expected refund reserved while gateway call is in flight, got %s", got)
	}
	_, err := svc.returns.RefundOrder(context.Background(), RefundOrderCommand{OrderID: "ord_a", Amount: 105000})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected concurrent refund rejected, got %v", err)
	}

	close(release)
	if err := <-firstErr; err != nil {
		t.Fatalf("first refund: %v", err)
	}
	if n := svc.gateway.refundCount(); n != 1 {
		t.Fatalf("expected one gateway refund, got %d", n)
	}
	stored := store.order("ord_a")
	if stored.Status != domain.OrderStatusRefunded || stored.PaymentStatus != domain.PaymentStatusRefunded {
		t.Fatalf("unexpected order after refund %+v", stored)
	}
	if len(svc.notifier.ofType(EventOrderRefunded)) != 1 {
		t.Fatalf("expected a single order.refunded event")
	}
}

func TestReturnService_RefundRejectsTerminalOrders(t *testing.T) {
	store := seededStore()
	cancelled := paidOrder("ord_c", domain.OrderStatusCancelled, domain.PaymentMethodRazorpay)
	store.putOrder(cancelled)
	svc := newTestServices(t, store)

	_, err := svc.returns.RefundOrder(context.Background(), RefundOrderCommand{OrderID: "ord_c", Amount: 1000})
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected invalid transition, got %v", err)
	}
	if svc.gateway.refundCount() != 0 {
		t.Fatalf("expected gateway untouched")
	}
}

func TestReturnService_RequestReturnRules(t *testing.T) {
	store := seededStore()
	store.putOrder(paidOrder("ord_delivered", domain.OrderStatusDelivered, domain.PaymentMethodRazorpay))
	store.putOrder(paidOrder("ord_shipped", domain.OrderStatusShipped, domain.PaymentMethodRazorpay))
	svc := newTestServices(t, store)
	ctx := context.Background()

	if _, err := svc.returns.RequestReturn(ctx, RequestReturnCommand{OrderID: "ord_shipped", CustomerID: "cust_1", Reason: "too big"}); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected shipped order rejected, got %v", err)
	}
	if _, err := svc.returns.RequestReturn(ctx, RequestReturnCommand{OrderID: "ord_delivered", CustomerID: "cust_1"}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected missing reason rejected, got %v", err)
	}
	if _, err := svc.returns.RequestReturn(ctx, RequestReturnCommand{OrderID: "ord_delivered", CustomerID: "cust_2", Reason: "x"}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected foreign order hidden, got %v", err)
	}
	tooMany := make([]string, 11)
	for i := range tooMany {
		tooMany[i] = "https://cdn.example.com/p" + strings.Repeat("x", i) + ".jpg"
	}
	if _, err := svc.returns.RequestReturn(ctx, RequestReturnCommand{OrderID: "ord_delivered", CustomerID: "cust_1", Reason: "x", Photos: tooMany}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected photo limit enforced, got %v", err)
	}

	request, err := svc.returns.RequestReturn(ctx, RequestReturnCommand{
		OrderID:    "ord_delivered",
		CustomerID: "cust_1",
		Reason:     "Stone is loose",
		Photos:     []string{" https://cdn.example.com/a.jpg ", ""},
	})
	if err != nil {
		t.Fatalf("request return: %v", err)
	}
	if request.IsApproved || len(request.Photos) != 1 || request.Photos[0] != "https://cdn.example.com/a.jpg" {
		t.Fatalf("unexpected request %+v", request)
	}
	if got := store.order("ord_delivered").Status; got != domain.OrderStatusReturnRequested {
		t.Fatalf("expected RETURN_REQUESTED, got %s", got)
	}

	_, err = svc.returns.RequestReturn(ctx, RequestReturnCommand{OrderID: "ord_delivered", CustomerID: "cust_1", Reason: "again"})
	if !errors.Is(err, ErrReturnAlreadyRequested) {
		t.Fatalf("expected duplicate request rejected, got %v", err)
	}
}

func TestReturnService_ApproveReturnIsIdempotent(t *testing.T) {
	store := seededStore()
	store.putOrder(paidOrder("ord_a", domain.OrderStatusReturnRequested, domain.PaymentMethodRazorpay))
	store.putReturn(domain.ReturnRequest{ID: "ret_1", OrderID: "ord_a", CustomerID: "cust_1", Reason: "loose stone"})
	svc := newTestServices(t, store)
	ctx := context.Background()

	request, err := svc.returns.ApproveReturn(ctx, ApproveReturnCommand{ReturnRequestID: "ret_1", OrderID: "ord_a"})
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if !request.IsApproved || request.ApprovedAt == nil {
		t.Fatalf("expected approved request, got %+v", request)
	}
	if got := store.order("ord_a").Status; got != domain.OrderStatusReturnApproved {
		t.Fatalf("expected RETURN_APPROVED, got %s", got)
	}

	if _, err := svc.returns.ApproveReturn(ctx, ApproveReturnCommand{ReturnRequestID: "ret_1", OrderID: "ord_a"}); err != nil {
		t.Fatalf("repeat approve: %v", err)
	}
	if n := len(store.historyFor("ord_a")); n != 1 {
		t.Fatalf("expected one history row after repeat approval, got %d", n)
	}
	if n := len(svc.notifier.ofType(EventOrderStatusChanged)); n != 1 {
		t.Fatalf("expected a single status event, got %d", n)
	}
}

func TestReturnService_ApproveReturnChecksOrder(t *testing.T) {
	store := seededStore()
	store.putOrder(paidOrder("ord_a", domain.OrderStatusReturnRequested, domain.PaymentMethodRazorpay))
	store.putOrder(paidOrder("ord_b", domain.OrderStatusReturnRequested, domain.PaymentMethodRazorpay))
	store.putReturn(domain.ReturnRequest{ID: "ret_1", OrderID: "ord_a", CustomerID: "cust_1"})
	svc := newTestServices(t, store)

	_, err := svc.returns.ApproveReturn(context.Background(), ApproveReturnCommand{ReturnRequestID: "ret_1", OrderID: "ord_b"})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found for mismatched order, got %v", err)
	}
	if store.returnRequest("ret_1").IsApproved {
		t.Fatalf("expected request left pending")
	}
}

func TestReturnService_CompleteReturnRestocks(t *testing.T) {
	store := seededStore()
	store.putVariant(ringVariant("var_ring", 1))
	order := paidOrder("ord_a", domain.OrderStatusReturnApproved, domain.PaymentMethodRazorpay)
	order.Items[0].Quantity = 2
	store.putOrder(order)
	svc := newTestServices(t, store)
	ctx := context.Background()

	returned, err := svc.returns.CompleteReturn(ctx, "ord_a")
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if returned.Status != domain.OrderStatusReturned || returned.Items[0].Status != domain.OrderItemStatusReturned {
		t.Fatalf("unexpected order %+v", returned)
	}
	if got := store.stock("var_ring"); got != 3 {
		t.Fatalf("expected stock 3, got %d", got)
	}

	if _, err := svc.returns.CompleteReturn(ctx, "ord_a"); err != nil {
		t.Fatalf("repeat complete: %v", err)
	}
	if got := store.stock("var_ring"); got != 3 {
		t.Fatalf("expected no double restock, got %d", got)
	}

	store.putOrder(paidOrder("ord_b", domain.OrderStatusDelivered, domain.PaymentMethodRazorpay))
	if _, err := svc.returns.CompleteReturn(ctx, "ord_b"); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected unapproved return rejected, got %v", err)
	}
}
