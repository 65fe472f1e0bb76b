package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Pagination defines standard cursor-based paging inputs for list operations.
type Pagination struct {
	PageSize  int
	PageToken string
}

// RangeQuery represents inclusive range filters for numeric or timestamp fields.
type RangeQuery[T comparable] struct {
	From *T
	To   *T
}

// CursorPage packages list results with an encoded next token.
type CursorPage[T any] struct {
	Items         []T
	NextPageToken string
}

// OrderStatus enumerates the lifecycle states of an order.
type OrderStatus string

const (
	OrderStatusPending         OrderStatus = "PENDING"
	OrderStatusConfirmed       OrderStatus = "CONFIRMED"
	OrderStatusShipped         OrderStatus = "SHIPPED"
	OrderStatusDelivered       OrderStatus = "DELIVERED"
	OrderStatusCancelled       OrderStatus = "CANCELLED"
	OrderStatusReturnRequested OrderStatus = "RETURN_REQUESTED"
	OrderStatusReturnApproved  OrderStatus = "RETURN_APPROVED"
	OrderStatusReturned        OrderStatus = "RETURNED"
	OrderStatusRefunded        OrderStatus = "REFUNDED"
)

// IsTerminal reports whether no further transitions are allowed from the status.
func (s OrderStatus) IsTerminal() bool {
	switch s {
	case OrderStatusCancelled, OrderStatusReturned, OrderStatusRefunded:
		return true
	default:
		return false
	}
}

// PaymentStatus tracks the settlement state of an order.
type PaymentStatus string

const (
	PaymentStatusPending  PaymentStatus = "PENDING"
	PaymentStatusSuccess  PaymentStatus = "SUCCESS"
	PaymentStatusFailed   PaymentStatus = "FAILED"
	PaymentStatusRefunded PaymentStatus = "REFUNDED"
	// PaymentStatusRefundPending holds the order while a gateway refund is in flight.
	PaymentStatusRefundPending PaymentStatus = "REFUND_PENDING"
)

// PaymentMethod selects the gateway used to collect payment.
type PaymentMethod string

const (
	PaymentMethodRazorpay PaymentMethod = "RAZORPAY"
	PaymentMethodPayPal   PaymentMethod = "PAYPAL"
	PaymentMethodCOD      PaymentMethod = "COD"
)

// UsesGateway reports whether the method is settled through an external gateway.
func (m PaymentMethod) UsesGateway() bool {
	return m == PaymentMethodRazorpay || m == PaymentMethodPayPal
}

// OrderItemStatus tracks per-line state after creation.
type OrderItemStatus string

const (
	OrderItemStatusActive    OrderItemStatus = "ACTIVE"
	OrderItemStatusCancelled OrderItemStatus = "CANCELLED"
	OrderItemStatusReturned  OrderItemStatus = "RETURNED"
)

// DiscountType describes how a coupon or standing discount value is interpreted.
type DiscountType string

const (
	DiscountTypePercentage DiscountType = "PERCENTAGE"
	DiscountTypeFixed      DiscountType = "FIXED"
)

// OptionKind tags the mutually exclusive variant selection options.
type OptionKind string

const (
	OptionKindSize  OptionKind = "SIZE"
	OptionKindScrew OptionKind = "SCREW"
)

// VariantOption is the optional size or screw selection attached to a cart or order line.
type VariantOption struct {
	Kind  OptionKind `json:"kind"`
	ID    string     `json:"id"`
	Label string     `json:"label"`
}

// Metal describes the metal composition of a variant.
type Metal struct {
	Type   string
	Purity string
	Color  string
	Weight decimal.Decimal
}

// Gemstone describes the optional stone set in a variant.
type Gemstone struct {
	Name          string          `json:"name"`
	Shape         string          `json:"shape"`
	Clarity       string          `json:"clarity"`
	Cut           string          `json:"cut"`
	Color         string          `json:"color"`
	Certification string          `json:"certification"`
	CaratWeight   decimal.Decimal `json:"caratWeight"`
	Count         int             `json:"count"`
}

// GlobalDiscount is a standing per-unit discount attached to a variant.
type GlobalDiscount struct {
	ID        string
	Name      string
	Type      DiscountType
	Value     decimal.Decimal
	Active    bool
	ValidFrom *time.Time
	ValidTo   *time.Time
}

// ProductVariant is the priced, stocked catalog unit.
type ProductVariant struct {
	ID             string
	ProductID      string
	ProductName    string
	SKU            string
	JewelryType    string
	Collection     string
	ImageURL       string
	FinalPrice     int64
	GST            int64
	MakingCharge   int64
	GrossWeight    decimal.Decimal
	NetWeight      decimal.Decimal
	Stock          int
	Metal          Metal
	Gemstone       *Gemstone
	GlobalDiscount *GlobalDiscount
	Options        []VariantOption
	UpdatedAt      time.Time
}

// Address is a customer-owned shipping address.
type Address struct {
	ID         string
	CustomerID string
	FullName   string
	Phone      string
	Line1      string
	Line2      string
	Landmark   string
	City       string
	State      string
	PostalCode string
	Country    string
}

// AddressSnapshot is the frozen copy of an address embedded on an order.
type AddressSnapshot struct {
	AddressID  string `json:"addressId"`
	FullName   string `json:"fullName"`
	Phone      string `json:"phone"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	Landmark   string `json:"landmark,omitempty"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postalCode"`
	Country    string `json:"country"`
}

// SnapshotAddress freezes the address for storage on an order.
func SnapshotAddress(addr Address) AddressSnapshot {
	return AddressSnapshot{
		AddressID:  addr.ID,
		FullName:   addr.FullName,
		Phone:      addr.Phone,
		Line1:      addr.Line1,
		Line2:      addr.Line2,
		Landmark:   addr.Landmark,
		City:       addr.City,
		State:      addr.State,
		PostalCode: addr.PostalCode,
		Country:    addr.Country,
	}
}

// OrderAmounts groups the aggregate monetary fields of an order in one currency.
type OrderAmounts struct {
	Total    int64
	GST      int64
	Discount int64
	Final    int64
}

// AppliedCoupon is the denormalised copy of a coupon stored on an order.
type AppliedCoupon struct {
	CouponID      string          `json:"couponId"`
	Code          string          `json:"code"`
	DiscountType  DiscountType    `json:"discountType"`
	DiscountValue decimal.Decimal `json:"discountValue"`
	Amount        int64           `json:"amount"`
}

// AppliedGiftCard is the denormalised copy of a redeemed gift card.
type AppliedGiftCard struct {
	GiftCardID string `json:"giftCardId"`
	Code       string `json:"code"`
	Amount     int64  `json:"amount"`
}

// Refund captures the outcome of a completed refund.
type Refund struct {
	Amount     int64
	RefundID   string
	Reason     string
	RefundedAt time.Time
}

// Order is the immutable record of a single checkout.
type Order struct {
	ID               string
	OrderNumber      string
	CustomerID       string
	Status           OrderStatus
	PaymentStatus    PaymentStatus
	PaymentMethod    PaymentMethod
	IsPaid           bool
	Currency         string
	Amounts          OrderAmounts
	AmountsINR       OrderAmounts
	AmountsUSD       OrderAmounts
	Address          AddressSnapshot
	Coupon           *AppliedCoupon
	GiftCard         *AppliedGiftCard
	GatewayOrderID   string
	GatewayPaymentID string
	Refund           *Refund
	CancelReason     string
	Items            []OrderItem
	StatusHistory    []OrderStatusHistory
	Payments         []PaymentHistory
	ReturnRequest    *ReturnRequest
	PaidAt           *time.Time
	CancelledAt      *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// OrderItem is one purchased line.
type OrderItem struct {
	ID              string
	OrderID         string
	VariantID       string
	Quantity        int
	PriceAtPurchase int64
	GST             int64
	DiscountValue   int64
	Total           int64
	Status          OrderItemStatus
	Snapshot        OrderItemSnapshot
}

// OrderStatusHistory is one audit row per status reached by an order.
type OrderStatusHistory struct {
	ID        string
	OrderID   string
	Status    OrderStatus
	Note      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// PaymentAttemptStatus tracks a single gateway attempt.
type PaymentAttemptStatus string

const (
	PaymentAttemptCreated PaymentAttemptStatus = "CREATED"
	PaymentAttemptSuccess PaymentAttemptStatus = "SUCCESS"
	PaymentAttemptFailed  PaymentAttemptStatus = "FAILED"
)

// PaymentHistory is one row per payment attempt against an order.
type PaymentHistory struct {
	ID               string
	OrderID          string
	TransactionID    string
	AttemptNumber    int
	Provider         PaymentMethod
	Status           PaymentAttemptStatus
	Amount           int64
	Currency         string
	GatewayOrderID   string
	GatewayPaymentID string
	Payload          map[string]any
	FailureReason    string
	Refunded         bool
	RefundedAt       *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// ReturnRequest is a customer request to return a delivered order.
type ReturnRequest struct {
	ID         string
	OrderID    string
	CustomerID string
	Reason     string
	Photos     []string
	IsApproved bool
	ApprovedAt *time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Coupon is a code-based discount source.
type Coupon struct {
	ID               string
	Code             string
	DiscountType     DiscountType
	Value            decimal.Decimal
	MinCartValue     int64
	MaxDiscount      *int64
	ValidFrom        *time.Time
	ValidTo          *time.Time
	Active           bool
	UsageLimit       *int
	UsedCount        int
	PerCustomerLimit int
}

// CouponRedemption records a coupon consumed by an order.
type CouponRedemption struct {
	ID         string
	CouponID   string
	CustomerID string
	OrderID    string
	CreatedAt  time.Time
}

// GiftCard is a single-use, customer-bound discount source.
type GiftCard struct {
	ID              string
	Code            string
	Value           int64
	ExpiresAt       *time.Time
	IsRedeemed      bool
	AssignedToID    string
	RedeemedOrderID string
	RedeemedAt      *time.Time
}

// Cart is the per-customer basket prior to checkout.
type Cart struct {
	ID              string
	CustomerID      string
	Items           []CartItem
	AppliedCouponID string
	TotalAmount     int64
	DiscountAmount  int64
	FinalAmount     int64
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// CartItem is one line in a cart.
type CartItem struct {
	ID        string
	VariantID string
	Option    *VariantOption
	Quantity  int
	// PriceAtAddition is the line figure, unit final price times quantity, when last changed.
	PriceAtAddition int64
	AddedAt         time.Time
}

// SameSelection reports whether the item refers to the same variant and option.
func (i CartItem) SameSelection(variantID string, option *VariantOption) bool {
	if i.VariantID != variantID {
		return false
	}
	if i.Option == nil || option == nil {
		return i.Option == nil && option == nil
	}
	return i.Option.Kind == option.Kind && i.Option.ID == option.ID
}
