package services

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	domain "github.com/Gautam0104/jupi-diamond-sub005/internal/domain"
	"github.com/Gautam0104/jupi-diamond-sub005/internal/payments"
)

var fixedNow = time.Date(2024, 11, 5, 10, 30, 0, 0, time.UTC)

func mustDecimal(value string) decimal.Decimal {
	return decimal.RequireFromString(value)
}

func fixedClock() time.Time { return fixedNow }

func sequenceIDs() func() string {
	var n atomic.Int64
	return func() string {
		return fmt.Sprintf("%06d", n.Add(1))
	}
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []NotificationEvent
	err    error
}

func (r *recordingNotifier) Notify(_ context.Context, event NotificationEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return r.err
}

func (r *recordingNotifier) ofType(eventType string) []NotificationEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []NotificationEvent
	for _, e := range r.events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

type stubGateway struct {
	mu          sync.Mutex
	chargeFn    func(payments.PaymentContext, payments.ChargeRequest) (payments.Charge, error)
	confirmFn   func(payments.PaymentContext, payments.ConfirmRequest) (payments.PaymentDetails, error)
	refundFn    func(payments.PaymentContext, payments.RefundRequest) (payments.RefundResult, error)
	charges     []payments.ChargeRequest
	refunds     []payments.RefundRequest
	confirmCall int
}

func (s *stubGateway) CreateCharge(_ context.Context, pc payments.PaymentContext, req payments.ChargeRequest) (payments.Charge, error) {
	s.mu.Lock()
	s.charges = append(s.charges, req)
	s.mu.Unlock()
	if s.chargeFn != nil {
		return s.chargeFn(pc, req)
	}
	return payments.Charge{
		Provider:       pc.PreferredProvider,
		GatewayOrderID: "order_gw_" + req.OrderID,
		Status:         payments.StatusPending,
		Amount:         req.Amount,
		Currency:       req.Currency,
	}, nil
}

func (s *stubGateway) ConfirmPayment(_ context.Context, pc payments.PaymentContext, req payments.ConfirmRequest) (payments.PaymentDetails, error) {
	s.mu.Lock()
	s.confirmCall++
	s.mu.Unlock()
	if s.confirmFn != nil {
		return s.confirmFn(pc, req)
	}
	return payments.PaymentDetails{
		Provider:         pc.PreferredProvider,
		GatewayOrderID:   req.GatewayOrderID,
		GatewayPaymentID: req.GatewayPaymentID,
		Status:           payments.StatusSucceeded,
	}, nil
}

func (s *stubGateway) Refund(_ context.Context, pc payments.PaymentContext, req payments.RefundRequest) (payments.RefundResult, error) {
	s.mu.Lock()
	s.refunds = append(s.refunds, req)
	s.mu.Unlock()
	if s.refundFn != nil {
		return s.refundFn(pc, req)
	}
	return payments.RefundResult{RefundID: "rfnd_1", Status: payments.StatusRefunded, Amount: req.Amount}, nil
}

func (s *stubGateway) refundCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.refunds)
}

// ringVariant is priced at 1000.00 INR with 50.00 GST per unit.
func ringVariant(id string, stock int) domain.ProductVariant {
	return domain.ProductVariant{
		ID:          id,
		ProductID:   "prod_ring",
		ProductName: "Solitaire Ring",
		SKU:         "SKU-" + id,
		JewelryType: "RING",
		FinalPrice:  100000,
		GST:         5000,
		Stock:       stock,
		Metal:       domain.Metal{Type: "GOLD", Purity: "18K", Color: "YELLOW", Weight: mustDecimal("3.20")},
		Options: []domain.VariantOption{
			{Kind: domain.OptionKindSize, ID: "size_12", Label: "12"},
		},
	}
}

func seededStore() *memStore {
	store := newMemStore()
	store.putRate("INR", "1")
	store.putRate("USD", "0.012")
	store.putVariant(ringVariant("var_ring", 10))
	store.putAddress(domain.Address{
		ID:         "addr_1",
		CustomerID: "cust_1",
		FullName:   "Asha Rao",
		Phone:      "+919800000000",
		Line1:      "12 MG Road",
		City:       "Bengaluru",
		State:      "KA",
		PostalCode: "560001",
		Country:    "IN",
	})
	return store
}

type testServices struct {
	store     *memStore
	notifier  *recordingNotifier
	gateway   *stubGateway
	inventory InventoryService
	payments  PaymentService
	returns   ReturnService
	orders    OrderService
}

func newTestServices(t *testing.T, store *memStore) testServices {
	t.Helper()
	return newTestServicesAt(t, store, fixedClock)
}

func newTestServicesAt(t *testing.T, store *memStore, clock func() time.Time) testServices {
	t.Helper()
	notifier := &recordingNotifier{}
	gateway := &stubGateway{}
	ids := sequenceIDs()

	inventory, err := NewInventoryService(InventoryServiceDeps{LowStockThreshold: 2})
	if err != nil {
		t.Fatalf("new inventory service: %v", err)
	}
	paymentSvc, err := NewPaymentService(PaymentServiceDeps{
		Repositories: store,
		UnitOfWork:   store,
		Gateway:      gateway,
		Notifier:     notifier,
		Clock:        clock,
		IDGenerator:  ids,
	})
	if err != nil {
		t.Fatalf("new payment service: %v", err)
	}
	returnSvc, err := NewReturnService(ReturnServiceDeps{
		Repositories: store,
		UnitOfWork:   store,
		Inventory:    inventory,
		Gateway:      gateway,
		Notifier:     notifier,
		Clock:        clock,
		IDGenerator:  ids,
	})
	if err != nil {
		t.Fatalf("new return service: %v", err)
	}
	orderSvc, err := NewOrderService(OrderServiceDeps{
		Repositories: store,
		UnitOfWork:   store,
		Inventory:    inventory,
		Payments:     paymentSvc,
		Returns:      returnSvc,
		Notifier:     notifier,
		Clock:        clock,
		IDGenerator:  ids,
	})
	if err != nil {
		t.Fatalf("new order service: %v", err)
	}
	return testServices{
		store:     store,
		notifier:  notifier,
		gateway:   gateway,
		inventory: inventory,
		payments:  paymentSvc,
		returns:   returnSvc,
		orders:    orderSvc,
	}
}

func codOrderCommand(quantity int, final string) CreateOrderCommand {
	return CreateOrderCommand{
		CustomerID:    "cust_1",
		AddressID:     "addr_1",
		PaymentMethod: domain.PaymentMethodCOD,
		Currency:      "INR",
		FinalAmount:   mustDecimal(final),
		Items:         []OrderLineInput{{VariantID: "var_ring", Quantity: quantity}},
	}
}

// placedOrder stores an order in the given state without going through checkout.
func placedOrder(id string, status domain.OrderStatus, method domain.PaymentMethod, quantity int) domain.Order {
	final := int64(quantity) * 105000
	return domain.Order{
		ID:               id,
		OrderNumber:      "ORD-01730802600000-abcde",
		CustomerID:       "cust_1",
		Status:           status,
		PaymentStatus:    domain.PaymentStatusPending,
		PaymentMethod:    method,
		Currency:         "INR",
		Amounts:          domain.OrderAmounts{Total: final, GST: int64(quantity) * 5000, Final: final},
		GatewayOrderID:   "order_gw_" + id,
		GatewayPaymentID: "pay_gw_" + id,
		CreatedAt:        fixedNow.Add(-2 * time.Hour),
		UpdatedAt:        fixedNow.Add(-2 * time.Hour),
		Items: []domain.OrderItem{{
			ID:              "itm_" + id,
			OrderID:         id,
			VariantID:       "var_ring",
			Quantity:        quantity,
			PriceAtPurchase: 100000,
			GST:             int64(quantity) * 5000,
			Total:           final,
			Status:          domain.OrderItemStatusActive,
		}},
	}
}

func paidOrder(id string, status domain.OrderStatus, method domain.PaymentMethod) domain.Order {
	order := placedOrder(id, status, method, 1)
	paidAt := fixedNow.Add(-time.Hour)
	order.IsPaid = true
	order.PaymentStatus = domain.PaymentStatusSuccess
	order.PaidAt = &paidAt
	return order
}
