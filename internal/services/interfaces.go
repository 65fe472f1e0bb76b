package services

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	domain "github.com/Gautam0104/jupi-diamond-sub005/internal/domain"
	"github.com/Gautam0104/jupi-diamond-sub005/internal/payments"
	"github.com/Gautam0104/jupi-diamond-sub005/internal/repositories"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Order              = domain.Order
	OrderItem          = domain.OrderItem
	OrderStatus        = domain.OrderStatus
	Cart               = domain.Cart
	CartItem           = domain.CartItem
	ReturnRequest      = domain.ReturnRequest
	PricingBreakdown   = domain.PricingBreakdown
	SystemHealthReport = domain.SystemHealthReport
	OrderListFilter    = repositories.OrderListFilter
)

// Logger is the structured logging hook shared by every service.
type Logger func(ctx context.Context, event string, fields map[string]any)

// NotificationSink receives best-effort domain notifications. Failures are logged by the caller
// and never fail the operation that produced the event.
type NotificationSink interface {
	Notify(ctx context.Context, event NotificationEvent) error
}

// Notification event types.
const (
	EventOrderCreated       = "order.created"
	EventOrderStatusChanged = "order.status.changed"
	EventPaymentSucceeded   = "order.payment.succeeded"
	EventPaymentFailed      = "order.payment.failed"
	EventOrderRefunded      = "order.refunded"
	EventPaymentUnmatched   = "order.payment.unmatched"
	EventLowStock           = "inventory.low_stock"
)

// NotificationEvent is the payload handed to a NotificationSink.
type NotificationEvent struct {
	Type           string         `json:"type"`
	OrderID        string         `json:"orderId,omitempty"`
	OrderNumber    string         `json:"orderNumber,omitempty"`
	CustomerID     string         `json:"customerId,omitempty"`
	PreviousStatus string         `json:"previousStatus,omitempty"`
	CurrentStatus  string         `json:"currentStatus,omitempty"`
	VariantID      string         `json:"variantId,omitempty"`
	Stock          *int           `json:"stock,omitempty"`
	OccurredAt     time.Time      `json:"occurredAt"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// OrderService creates orders and drives the status state machine.
type OrderService interface {
	CreateOrder(ctx context.Context, cmd CreateOrderCommand) (CreateOrderResult, error)
	GetOrder(ctx context.Context, query GetOrderQuery) (Order, error)
	ListOrders(ctx context.Context, filter OrderListFilter) (domain.CursorPage[Order], error)
	TransitionStatus(ctx context.Context, cmd TransitionStatusCommand) (Order, error)
	Cancel(ctx context.Context, cmd CancelOrderCommand) (Order, error)
}

// InventoryService reserves and restores variant stock inside a caller-owned transaction.
type InventoryService interface {
	Reserve(ctx context.Context, tx repositories.Registry, lines []ReservationLine) (Reservation, error)
	Restore(ctx context.Context, tx repositories.Registry, items []OrderItem) error
}

// PaymentService dispatches orders to the payment gateways and records attempts.
type PaymentService interface {
	CreateCharge(ctx context.Context, order Order) (payments.Charge, error)
	RetryCharge(ctx context.Context, cmd RetryChargeCommand) (CreateOrderResult, error)
	ConfirmPayment(ctx context.Context, cmd ConfirmPaymentCommand) (Order, error)
	HandleRazorpayWebhook(ctx context.Context, body []byte, signature string) error
}

// ReturnService owns refunds and the return workflow.
type ReturnService interface {
	RefundOrder(ctx context.Context, cmd RefundOrderCommand) (RefundOutcome, error)
	RequestReturn(ctx context.Context, cmd RequestReturnCommand) (ReturnRequest, error)
	ApproveReturn(ctx context.Context, cmd ApproveReturnCommand) (ReturnRequest, error)
	CompleteReturn(ctx context.Context, orderID string) (Order, error)
}

// CartService manages the per-customer basket and its coupon.
type CartService interface {
	GetCart(ctx context.Context, customerID string) (Cart, error)
	AddItem(ctx context.Context, cmd AddCartItemCommand) (Cart, error)
	UpdateItemQuantity(ctx context.Context, cmd UpdateCartItemCommand) (Cart, error)
	RemoveItem(ctx context.Context, customerID, itemID string) (Cart, error)
	ApplyCoupon(ctx context.Context, customerID, code string) (Cart, error)
	RemoveCoupon(ctx context.Context, customerID string) (Cart, error)
	Clear(ctx context.Context, customerID string) (Cart, error)
}

// ReconciliationService cancels gateway orders whose payment never completed.
type ReconciliationService interface {
	SweepStalePending(ctx context.Context) (SweepResult, error)
}

// SystemService exposes operational metadata.
type SystemService interface {
	HealthReport(ctx context.Context) (SystemHealthReport, error)
}

// OrderLineInput is one requested line of a new order.
type OrderLineInput struct {
	VariantID string
	Quantity  int
	Option    *domain.VariantOption
}

// CreateOrderCommand carries the checkout request. TotalAmount and FinalAmount are the client's
// major-unit figures in Currency; FinalAmount must match the server computation, and so must
// TotalAmount when it is sent.
type CreateOrderCommand struct {
	CustomerID    string
	AddressID     string
	PaymentMethod domain.PaymentMethod
	Currency      string
	TotalAmount   decimal.Decimal
	FinalAmount   decimal.Decimal
	Items         []OrderLineInput
	CouponID      string
	GiftCardID    string
}

// CreateOrderResult pairs the stored order with the gateway response, if any.
type CreateOrderResult struct {
	Order       Order
	OrderDetail *payments.Charge
}

// GetOrderQuery reads one order. A non-empty CustomerID restricts the read to that owner.
type GetOrderQuery struct {
	OrderID    string
	CustomerID string
}

// TransitionStatusCommand is the admin status update.
type TransitionStatusCommand struct {
	OrderID string
	Target  OrderStatus
	Reason  string
}

// CancelOrderCommand cancels an order. A non-empty CustomerID restricts it to that owner.
type CancelOrderCommand struct {
	OrderID    string
	CustomerID string
	Reason     string
	// OnlyUnpaid restricts the cancel to PENDING orders that are still unpaid when locked.
	OnlyUnpaid bool
}

// ReservationLine is one variant quantity to take from stock.
type ReservationLine struct {
	VariantID string
	Quantity  int
}

// Reservation returns the locked variants and the low-stock alerts raised by the decrement.
type Reservation struct {
	Variants map[string]domain.ProductVariant
	LowStock []LowStockAlert
}

// LowStockAlert records a variant whose stock fell to or below the threshold.
type LowStockAlert struct {
	VariantID string
	SKU       string
	Stock     int
}

// RetryChargeCommand opens a new gateway attempt for a pending order.
type RetryChargeCommand struct {
	OrderID    string
	CustomerID string
}

// ConfirmPaymentCommand carries the client-side checkout result.
type ConfirmPaymentCommand struct {
	OrderID          string
	CustomerID       string
	GatewayPaymentID string
	Signature        string
}

// RefundOrderCommand refunds a paid order. Amount is in minor units of the order currency.
type RefundOrderCommand struct {
	OrderID string
	Amount  int64
	Reason  string
}

// RefundOutcome is the admin-facing refund result.
type RefundOutcome struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Order   Order  `json:"-"`
}

// RequestReturnCommand opens a return for a delivered order.
type RequestReturnCommand struct {
	OrderID    string
	CustomerID string
	Reason     string
	Photos     []string
}

// ApproveReturnCommand approves a return request belonging to OrderID.
type ApproveReturnCommand struct {
	ReturnRequestID string
	OrderID         string
}

// AddCartItemCommand adds a variant (and optional option) to the cart.
type AddCartItemCommand struct {
	CustomerID string
	VariantID  string
	Option     *domain.VariantOption
	Quantity   int
}

// UpdateCartItemCommand sets the quantity of an existing cart line.
type UpdateCartItemCommand struct {
	CustomerID string
	ItemID     string
	Quantity   int
}

// SweepResult summarises one reconciliation pass.
type SweepResult struct {
	Scanned   int
	Cancelled int
	Failed    int
}
