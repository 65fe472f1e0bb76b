package repositories

import (
	"context"
	"time"

	domain "github.com/Gautam0104/jupi-diamond-sub005/internal/domain"
)

// Registry exposes typed repository accessors. The root registry runs each call on its own
// connection; the registry handed to a UnitOfWork callback runs every call inside that transaction.
type Registry interface {
	Variants() VariantRepository
	Addresses() AddressRepository
	Rates() CurrencyRateRepository
	Coupons() CouponRepository
	GiftCards() GiftCardRepository
	Orders() OrderRepository
	StatusHistory() OrderStatusHistoryRepository
	Payments() PaymentHistoryRepository
	Returns() ReturnRequestRepository
	Carts() CartRepository
}

// Store is the process-wide persistence handle wired by the DI container.
type Store interface {
	Registry
	UnitOfWork
	Health() HealthRepository
	Close(ctx context.Context) error
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// UnitOfWork groups repository operations in one transaction. The callback receives the
// transaction-scoped registry and must use it for every read and write that belongs to the unit.
// Returning an error rolls everything back.
type UnitOfWork interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context, tx Registry) error) error
}

// VariantRepository reads catalog variants and mutates their stock.
type VariantRepository interface {
	FindByID(ctx context.Context, variantID string) (domain.ProductVariant, error)
	FindByIDs(ctx context.Context, variantIDs []string) ([]domain.ProductVariant, error)
	// LockForUpdate row-locks the variants in ascending id order and returns them keyed by id.
	// Missing ids are simply absent from the map.
	LockForUpdate(ctx context.Context, variantIDs []string) (map[string]domain.ProductVariant, error)
	// AdjustStock applies delta to the variant stock and returns the new level. A result below
	// zero fails with an InventoryError carrying InventoryErrorInsufficientStock.
	AdjustStock(ctx context.Context, variantID string, delta int) (int, error)
}

// AddressRepository reads customer shipping addresses.
type AddressRepository interface {
	FindByID(ctx context.Context, addressID string) (domain.Address, error)
}

// CurrencyRateRepository lists the exchange rate table.
type CurrencyRateRepository interface {
	List(ctx context.Context) ([]domain.CurrencyRate, error)
}

// CouponRepository reads coupons and records redemptions.
type CouponRepository interface {
	FindByID(ctx context.Context, couponID string) (domain.Coupon, error)
	FindByCode(ctx context.Context, code string) (domain.Coupon, error)
	LockByID(ctx context.Context, couponID string) (domain.Coupon, error)
	CountRedemptions(ctx context.Context, couponID, customerID string) (int, error)
	// Redeem inserts the redemption row and increments the coupon usage counter.
	Redeem(ctx context.Context, redemption domain.CouponRedemption) error
	// ReleaseRedemptions deletes the order's redemption rows and gives the usage back.
	ReleaseRedemptions(ctx context.Context, orderID string) (int, error)
}

// GiftCardRepository reads gift cards and marks them redeemed.
type GiftCardRepository interface {
	FindByID(ctx context.Context, giftCardID string) (domain.GiftCard, error)
	LockByID(ctx context.Context, giftCardID string) (domain.GiftCard, error)
	MarkRedeemed(ctx context.Context, giftCardID, orderID string, redeemedAt time.Time) error
	// Release clears the redemption if the card is still held by orderID.
	Release(ctx context.Context, giftCardID, orderID string) error
}

// OrderRepository persists order headers and their items.
type OrderRepository interface {
	Insert(ctx context.Context, order domain.Order) error
	// FindByID loads the order with items, status history, payments and the latest return request.
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	// LockByID row-locks the order header and loads its items.
	LockByID(ctx context.Context, orderID string) (domain.Order, error)
	FindByGatewayOrderID(ctx context.Context, gatewayOrderID string) (domain.Order, error)
	// Update writes the mutable header fields.
	Update(ctx context.Context, order domain.Order) error
	UpdateItemStatus(ctx context.Context, orderID string, status domain.OrderItemStatus) error
	List(ctx context.Context, filter OrderListFilter) (domain.CursorPage[domain.Order], error)
	ListStalePending(ctx context.Context, createdBefore time.Time, limit int) ([]domain.Order, error)
}

// OrderStatusHistoryRepository keeps one row per (order, status).
type OrderStatusHistoryRepository interface {
	// Upsert inserts the row or, when the status was already reached, refreshes updated_at.
	Upsert(ctx context.Context, entry domain.OrderStatusHistory) (domain.OrderStatusHistory, error)
	ListByOrder(ctx context.Context, orderID string) ([]domain.OrderStatusHistory, error)
}

// PaymentHistoryRepository stores gateway attempts.
type PaymentHistoryRepository interface {
	Insert(ctx context.Context, payment domain.PaymentHistory) error
	Update(ctx context.Context, payment domain.PaymentHistory) error
	CountByOrder(ctx context.Context, orderID string) (int, error)
	ListByOrder(ctx context.Context, orderID string) ([]domain.PaymentHistory, error)
	// MarkRefunded flips refunded on every not-yet-refunded row of the order and returns the count.
	MarkRefunded(ctx context.Context, orderID string, refundedAt time.Time) (int, error)
}

// ReturnRequestRepository stores customer return requests.
type ReturnRequestRepository interface {
	Insert(ctx context.Context, request domain.ReturnRequest) error
	FindByID(ctx context.Context, returnRequestID string) (domain.ReturnRequest, error)
	FindLatestByOrder(ctx context.Context, orderID string) (domain.ReturnRequest, error)
	Update(ctx context.Context, request domain.ReturnRequest) error
}

// CartRepository owns the cart header and its items.
type CartRepository interface {
	Get(ctx context.Context, customerID string) (domain.Cart, error)
	// Save upserts the header and replaces the items.
	Save(ctx context.Context, cart domain.Cart) (domain.Cart, error)
	RemoveVariants(ctx context.Context, customerID string, variantIDs []string) error
}

// HealthRepository reports dependency health for readiness checks.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}

// OrderListFilter narrows order listings.
type OrderListFilter struct {
	CustomerID    string
	Status        []domain.OrderStatus
	PaymentStatus []domain.PaymentStatus
	DateRange     domain.RangeQuery[time.Time]
	Pagination    domain.Pagination
}
