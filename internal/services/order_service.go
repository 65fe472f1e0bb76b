package services

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	domain "github.com/Gautam0104/jupi-diamond-sub005/internal/domain"
	"github.com/Gautam0104/jupi-diamond-sub005/internal/platform/textutil"
	"github.com/Gautam0104/jupi-diamond-sub005/internal/repositories"
)

const (
	defaultMaxItemQuantity = 10
	reasonMaxLength        = 500
)

// OrderServiceDeps bundles collaborators required to construct the order service.
type OrderServiceDeps struct {
	Repositories    repositories.Registry
	UnitOfWork      repositories.UnitOfWork
	Inventory       InventoryService
	Pricing         *PricingCalculator
	Payments        PaymentService
	Returns         ReturnService
	Notifier        NotificationSink
	MaxItemQuantity int
	Clock           func() time.Time
	IDGenerator     func() string
	Logger          Logger
}

type orderService struct {
	repos      repositories.Registry
	unitOfWork repositories.UnitOfWork
	inventory  InventoryService
	pricing    *PricingCalculator
	payments   PaymentService
	returns    ReturnService
	maxQty     int
	lifecycle
}

var _ OrderService = (*orderService)(nil)

// NewOrderService wires dependencies into a concrete OrderService implementation.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Repositories == nil {
		return nil, errors.New("order service: repositories are required")
	}
	if deps.Inventory == nil {
		return nil, errors.New("order service: inventory service is required")
	}
	pricing := deps.Pricing
	if pricing == nil {
		pricing = NewPricingCalculator()
	}
	maxQty := deps.MaxItemQuantity
	if maxQty <= 0 {
		maxQty = defaultMaxItemQuantity
	}
	return &orderService{
		repos:      deps.Repositories,
		unitOfWork: resolveUnitOfWork(deps.UnitOfWork, deps.Repositories),
		inventory:  deps.Inventory,
		pricing:    pricing,
		payments:   deps.Payments,
		returns:    deps.Returns,
		maxQty:     maxQty,
		lifecycle:  newLifecycle(deps.Clock, deps.IDGenerator, deps.Notifier, deps.Logger),
	}, nil
}

func (s *orderService) CreateOrder(ctx context.Context, cmd CreateOrderCommand) (CreateOrderResult, error) {
	if err := s.validateCreate(&cmd); err != nil {
		return CreateOrderResult{}, err
	}

	var (
		order    Order
		lowStock []LowStockAlert
	)
	err := s.unitOfWork.RunInTx(ctx, func(ctx context.Context, tx repositories.Registry) error {
		now := s.now()

		rates, err := tx.Rates().List(ctx)
		if err != nil {
			return mapRepositoryError(err, nil)
		}
		table := domain.NewRateTable(rates)
		if err := validateCurrency(cmd.Currency, table); err != nil {
			return err
		}

		address, err := tx.Addresses().FindByID(ctx, cmd.AddressID)
		if err != nil {
			return mapRepositoryError(err, ErrAddressNotFound)
		}
		if address.CustomerID != cmd.CustomerID {
			return fmt.Errorf("%w: %s", ErrAddressNotFound, cmd.AddressID)
		}

		lines := make([]ReservationLine, 0, len(cmd.Items))
		for _, item := range cmd.Items {
			lines = append(lines, ReservationLine{VariantID: item.VariantID, Quantity: item.Quantity})
		}
		reservation, err := s.inventory.Reserve(ctx, tx, lines)
		if err != nil {
			return err
		}
		lowStock = reservation.LowStock

		coupon, err := s.lockCoupon(ctx, tx, cmd.CouponID, cmd.CustomerID)
		if err != nil {
			return err
		}
		giftCard, err := s.lockGiftCard(ctx, tx, cmd.GiftCardID)
		if err != nil {
			return err
		}

		pricingLines := make([]PricingLine, 0, len(cmd.Items))
		for _, item := range cmd.Items {
			variant, ok := reservation.Variants[item.VariantID]
			if !ok {
				return fmt.Errorf("%w: %s", ErrVariantNotFound, item.VariantID)
			}
			pricingLines = append(pricingLines, PricingLine{Variant: &variant, Quantity: item.Quantity})
		}
		priced, err := s.pricing.Calculate(PricingInput{
			Lines:      pricingLines,
			Coupon:     coupon,
			GiftCard:   giftCard,
			CustomerID: cmd.CustomerID,
			Currency:   cmd.Currency,
			Rates:      table,
			Now:        now,
		})
		if err != nil {
			return err
		}
		if expected := domain.DecimalToMinor(cmd.FinalAmount); expected != priced.Converted.FinalAmount {
			return fmt.Errorf("%w: client %s, server %s %s", ErrAmountMismatch,
				cmd.FinalAmount.StringFixed(2), domain.MinorToDecimal(priced.Converted.FinalAmount).StringFixed(2), priced.Converted.Currency)
		}
		if !cmd.TotalAmount.IsZero() && domain.DecimalToMinor(cmd.TotalAmount) != priced.Converted.TotalAmount {
			return fmt.Errorf("%w: client total %s, server total %s %s", ErrAmountMismatch,
				cmd.TotalAmount.StringFixed(2), domain.MinorToDecimal(priced.Converted.TotalAmount).StringFixed(2), priced.Converted.Currency)
		}

		order = s.buildOrder(cmd, address, reservation, priced, now)
		if err := tx.Orders().Insert(ctx, order); err != nil {
			return mapRepositoryError(err, nil)
		}
		entry, err := tx.StatusHistory().Upsert(ctx, domain.OrderStatusHistory{
			ID:        historyIDPrefix + s.newID(),
			OrderID:   order.ID,
			Status:    domain.OrderStatusPending,
			CreatedAt: now,
			UpdatedAt: now,
		})
		if err != nil {
			return mapRepositoryError(err, nil)
		}
		order.StatusHistory = []domain.OrderStatusHistory{entry}

		if coupon != nil {
			if err := tx.Coupons().Redeem(ctx, domain.CouponRedemption{
				ID:         redemptionIDPrefix + s.newID(),
				CouponID:   coupon.ID,
				CustomerID: cmd.CustomerID,
				OrderID:    order.ID,
				CreatedAt:  now,
			}); err != nil {
				return mapRepositoryError(err, nil)
			}
		}
		if giftCard != nil {
			if err := tx.GiftCards().MarkRedeemed(ctx, giftCard.ID, order.ID, now); err != nil {
				if errors.Is(mapRepositoryError(err, nil), ErrConflict) {
					return fmt.Errorf("%w: gift card %s already redeemed", ErrGiftCardNotApplicable, giftCard.Code)
				}
				return mapRepositoryError(err, nil)
			}
		}

		variantIDs := make([]string, 0, len(cmd.Items))
		for _, item := range cmd.Items {
			variantIDs = append(variantIDs, item.VariantID)
		}
		if err := tx.Carts().RemoveVariants(ctx, cmd.CustomerID, variantIDs); err != nil && !isRepoNotFound(err) {
			return mapRepositoryError(err, nil)
		}
		return nil
	})
	if err != nil {
		s.logger(ctx, "order.create.failed", map[string]any{
			"customer": cmd.CustomerID,
			"code":     CodeOf(err),
			"error":    err.Error(),
		})
		return CreateOrderResult{}, err
	}

	for _, alert := range lowStock {
		stock := alert.Stock
		s.publish(ctx, NotificationEvent{
			Type:       EventLowStock,
			OrderID:    order.ID,
			VariantID:  alert.VariantID,
			Stock:      &stock,
			OccurredAt: order.CreatedAt,
			Metadata:   map[string]any{"sku": alert.SKU},
		})
	}
	s.publish(ctx, NotificationEvent{
		Type:          EventOrderCreated,
		OrderID:       order.ID,
		OrderNumber:   order.OrderNumber,
		CustomerID:    order.CustomerID,
		CurrentStatus: string(order.Status),
		OccurredAt:    order.CreatedAt,
		Metadata: map[string]any{
			"paymentMethod": string(order.PaymentMethod),
			"currency":      order.Currency,
			"finalAmount":   order.Amounts.Final,
		},
	})
	s.logger(ctx, "order.created", map[string]any{
		"order":       order.ID,
		"orderNumber": order.OrderNumber,
		"customer":    order.CustomerID,
		"items":       len(order.Items),
		"final":       order.Amounts.Final,
		"currency":    order.Currency,
	})

	result := CreateOrderResult{Order: order}
	if !order.PaymentMethod.UsesGateway() || s.payments == nil {
		return result, nil
	}
	charge, err := s.payments.CreateCharge(ctx, order)
	if err != nil {
		return result, err
	}
	result.OrderDetail = &charge
	result.Order.GatewayOrderID = charge.GatewayOrderID
	return result, nil
}

func (s *orderService) validateCreate(cmd *CreateOrderCommand) error {
	cmd.CustomerID = strings.TrimSpace(cmd.CustomerID)
	cmd.AddressID = strings.TrimSpace(cmd.AddressID)
	cmd.CouponID = strings.TrimSpace(cmd.CouponID)
	cmd.GiftCardID = strings.TrimSpace(cmd.GiftCardID)
	cmd.Currency = domain.NormalizeCurrency(cmd.Currency)
	cmd.PaymentMethod = domain.PaymentMethod(strings.ToUpper(strings.TrimSpace(string(cmd.PaymentMethod))))

	switch {
	case cmd.CustomerID == "":
		return fmt.Errorf("%w: customer id is required", ErrInvalidInput)
	case cmd.AddressID == "":
		return fmt.Errorf("%w: address id is required", ErrInvalidInput)
	case len(cmd.Items) == 0:
		return fmt.Errorf("%w: at least one order item is required", ErrInvalidInput)
	case cmd.FinalAmount.IsNegative(), cmd.TotalAmount.IsNegative():
		return fmt.Errorf("%w: amounts must not be negative", ErrInvalidInput)
	}
	if cmd.Currency == "" {
		cmd.Currency = domain.BaseCurrency
	}
	switch cmd.PaymentMethod {
	case domain.PaymentMethodRazorpay, domain.PaymentMethodPayPal, domain.PaymentMethodCOD:
	default:
		return fmt.Errorf("%w: unsupported payment method %q", ErrInvalidInput, cmd.PaymentMethod)
	}

	seen := make(map[string]struct{}, len(cmd.Items))
	for i := range cmd.Items {
		item := &cmd.Items[i]
		item.VariantID = strings.TrimSpace(item.VariantID)
		if item.VariantID == "" {
			return fmt.Errorf("%w: items[%d].productVariantId is required", ErrInvalidInput, i)
		}
		if item.Quantity <= 0 {
			return fmt.Errorf("%w: items[%d].quantity must be positive", ErrInvalidInput, i)
		}
		if item.Quantity > s.maxQty {
			return fmt.Errorf("%w: items[%d].quantity exceeds %d", ErrQuantityLimit, i, s.maxQty)
		}
		key := item.VariantID
		if item.Option != nil {
			key += "|" + string(item.Option.Kind) + "|" + item.Option.ID
		}
		if _, dup := seen[key]; dup {
			return fmt.Errorf("%w: duplicate line for variant %s", ErrInvalidInput, item.VariantID)
		}
		seen[key] = struct{}{}
	}
	return nil
}

func (s *orderService) lockCoupon(ctx context.Context, tx repositories.Registry, couponID, customerID string) (*domain.Coupon, error) {
	if couponID == "" {
		return nil, nil
	}
	coupon, err := tx.Coupons().LockByID(ctx, couponID)
	if err != nil {
		if isRepoNotFound(err) {
			return nil, fmt.Errorf("%w: %s", ErrCouponNotFound, couponID)
		}
		return nil, mapRepositoryError(err, nil)
	}
	if coupon.UsageLimit != nil && coupon.UsedCount >= *coupon.UsageLimit {
		return nil, fmt.Errorf("%w: %s", ErrCouponAlreadyUsed, coupon.Code)
	}
	if coupon.PerCustomerLimit > 0 {
		used, err := tx.Coupons().CountRedemptions(ctx, coupon.ID, customerID)
		if err != nil {
			return nil, mapRepositoryError(err, nil)
		}
		if used >= coupon.PerCustomerLimit {
			return nil, fmt.Errorf("%w: %s already used by customer", ErrCouponAlreadyUsed, coupon.Code)
		}
	}
	return &coupon, nil
}

func (s *orderService) lockGiftCard(ctx context.Context, tx repositories.Registry, giftCardID string) (*domain.GiftCard, error) {
	if giftCardID == "" {
		return nil, nil
	}
	card, err := tx.GiftCards().LockByID(ctx, giftCardID)
	if err != nil {
		if isRepoNotFound(err) {
			return nil, fmt.Errorf("%w: %s", ErrGiftCardNotFound, giftCardID)
		}
		return nil, mapRepositoryError(err, nil)
	}
	return &card, nil
}

func (s *orderService) buildOrder(cmd CreateOrderCommand, address domain.Address, reservation Reservation, priced PricingResult, now time.Time) Order {
	order := Order{
		ID:            orderIDPrefix + s.newID(),
		OrderNumber:   newOrderNumber(now),
		CustomerID:    cmd.CustomerID,
		Status:        domain.OrderStatusPending,
		PaymentStatus: domain.PaymentStatusPending,
		PaymentMethod: cmd.PaymentMethod,
		Currency:      priced.Converted.Currency,
		Amounts:       priced.Converted.Amounts(),
		AmountsINR:    priced.INR.Amounts(),
		AmountsUSD:    priced.USD,
		Address:       domain.SnapshotAddress(address),
		Coupon:        priced.Coupon,
		GiftCard:      priced.GiftCard,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	for i, item := range cmd.Items {
		line := priced.Converted.Items[i]
		order.Items = append(order.Items, OrderItem{
			ID:              itemIDPrefix + s.newID(),
			OrderID:         order.ID,
			VariantID:       item.VariantID,
			Quantity:        item.Quantity,
			PriceAtPurchase: line.UnitPrice,
			GST:             line.GST,
			DiscountValue:   line.Discount,
			Total:           line.LineTotal,
			Status:          domain.OrderItemStatusActive,
			Snapshot:        domain.NewOrderItemSnapshot(reservation.Variants[item.VariantID], item.Option),
		})
	}
	return order
}

func (s *orderService) GetOrder(ctx context.Context, query GetOrderQuery) (Order, error) {
	orderID := strings.TrimSpace(query.OrderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrInvalidInput)
	}
	order, err := s.repos.Orders().FindByID(ctx, orderID)
	if err != nil {
		return Order{}, mapRepositoryError(err, nil)
	}
	if !ownedBy(order, strings.TrimSpace(query.CustomerID)) {
		return Order{}, fmt.Errorf("%w: %s", ErrNotFound, orderID)
	}
	return order, nil
}

func (s *orderService) ListOrders(ctx context.Context, filter OrderListFilter) (domain.CursorPage[Order], error) {
	page, err := s.repos.Orders().List(ctx, filter)
	if err != nil {
		return domain.CursorPage[Order]{}, mapRepositoryError(err, nil)
	}
	return page, nil
}

func (s *orderService) TransitionStatus(ctx context.Context, cmd TransitionStatusCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	target := OrderStatus(strings.ToUpper(strings.TrimSpace(string(cmd.Target))))
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrInvalidInput)
	}

	switch target {
	case "":
		return Order{}, fmt.Errorf("%w: target status is required", ErrInvalidInput)
	case domain.OrderStatusCancelled:
		return s.Cancel(ctx, CancelOrderCommand{OrderID: orderID, Reason: cmd.Reason})
	case domain.OrderStatusRefunded:
		return Order{}, fmt.Errorf("%w: use the refund workflow to refund an order", ErrInvalidInput)
	case domain.OrderStatusReturnRequested:
		return Order{}, fmt.Errorf("%w: returns are requested by the customer", ErrInvalidInput)
	case domain.OrderStatusReturnApproved:
		return s.approveLatestReturn(ctx, orderID)
	case domain.OrderStatusReturned:
		if s.returns == nil {
			return Order{}, errors.New("order service: return service not configured")
		}
		return s.returns.CompleteReturn(ctx, orderID)
	case domain.OrderStatusPending, domain.OrderStatusConfirmed, domain.OrderStatusShipped, domain.OrderStatusDelivered:
	default:
		return Order{}, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, target)
	}

	var (
		order Order
		prev  OrderStatus
	)
	err := s.unitOfWork.RunInTx(ctx, func(ctx context.Context, tx repositories.Registry) error {
		var err error
		order, err = tx.Orders().LockByID(ctx, orderID)
		if err != nil {
			return mapRepositoryError(err, nil)
		}
		if target == domain.OrderStatusDelivered && order.PaymentMethod == domain.PaymentMethodCOD && !order.IsPaid {
			now := s.now()
			order.IsPaid = true
			order.PaymentStatus = domain.PaymentStatusSuccess
			order.PaidAt = &now
		}
		prev, err = s.advance(ctx, tx, &order, target, textutil.CleanText(cmd.Reason, reasonMaxLength))
		return err
	})
	if err != nil {
		return Order{}, err
	}

	metadata := map[string]any{}
	if reason := strings.TrimSpace(cmd.Reason); reason != "" {
		metadata["reason"] = textutil.CleanText(reason, reasonMaxLength)
	}
	s.statusChanged(ctx, order, prev, metadata)
	return order, nil
}

func (s *orderService) approveLatestReturn(ctx context.Context, orderID string) (Order, error) {
	if s.returns == nil {
		return Order{}, errors.New("order service: return service not configured")
	}
	request, err := s.repos.Returns().FindLatestByOrder(ctx, orderID)
	if err != nil {
		if isRepoNotFound(err) {
			return Order{}, fmt.Errorf("%w: order %s has no return request", ErrInvalidTransition, orderID)
		}
		return Order{}, mapRepositoryError(err, nil)
	}
	if _, err := s.returns.ApproveReturn(ctx, ApproveReturnCommand{ReturnRequestID: request.ID, OrderID: orderID}); err != nil {
		return Order{}, err
	}
	return s.GetOrder(ctx, GetOrderQuery{OrderID: orderID})
}

// Cancel releases stock and cancels an order still in PENDING or CONFIRMED. Cancelling an already
// cancelled order only refreshes its history row.
func (s *orderService) Cancel(ctx context.Context, cmd CancelOrderCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrInvalidInput)
	}
	reason := textutil.CleanText(cmd.Reason, reasonMaxLength)
	if reason == "" {
		reason = defaultCancelReason
	}
	customerID := strings.TrimSpace(cmd.CustomerID)

	var (
		order Order
		prev  OrderStatus
	)
	err := s.unitOfWork.RunInTx(ctx, func(ctx context.Context, tx repositories.Registry) error {
		var err error
		order, err = tx.Orders().LockByID(ctx, orderID)
		if err != nil {
			return mapRepositoryError(err, nil)
		}
		if !ownedBy(order, customerID) {
			return fmt.Errorf("%w: %s", ErrNotFound, orderID)
		}
		if cmd.OnlyUnpaid && (order.IsPaid || order.Status != domain.OrderStatusPending) {
			return fmt.Errorf("%w: order %s is %s and paid=%t", ErrConflict, order.OrderNumber, order.Status, order.IsPaid)
		}
		switch order.Status {
		case domain.OrderStatusCancelled:
			prev, err = s.advance(ctx, tx, &order, domain.OrderStatusCancelled, order.CancelReason)
			return err
		case domain.OrderStatusPending, domain.OrderStatusConfirmed:
		default:
			return fmt.Errorf("%w: order in status %s cannot be cancelled", ErrInvalidTransition, order.Status)
		}

		if err := s.inventory.Restore(ctx, tx, order.Items); err != nil {
			return err
		}
		if err := releasePromotions(ctx, tx, order); err != nil {
			return err
		}
		if err := tx.Orders().UpdateItemStatus(ctx, order.ID, domain.OrderItemStatusCancelled); err != nil {
			return mapRepositoryError(err, nil)
		}
		for i := range order.Items {
			order.Items[i].Status = domain.OrderItemStatusCancelled
		}
		order.CancelReason = reason
		prev, err = s.advance(ctx, tx, &order, domain.OrderStatusCancelled, reason)
		return err
	})
	if err != nil {
		return Order{}, err
	}

	s.statusChanged(ctx, order, prev, map[string]any{"reason": order.CancelReason})
	return order, nil
}

// releasePromotions hands back the coupon usage and gift card held by an order that never shipped.
func releasePromotions(ctx context.Context, tx repositories.Registry, order Order) error {
	if order.Coupon != nil {
		if _, err := tx.Coupons().ReleaseRedemptions(ctx, order.ID); err != nil {
			return mapRepositoryError(err, nil)
		}
	}
	if order.GiftCard != nil && order.GiftCard.GiftCardID != "" {
		if err := tx.GiftCards().Release(ctx, order.GiftCard.GiftCardID, order.ID); err != nil {
			return mapRepositoryError(err, nil)
		}
	}
	return nil
}

const base36Alphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// newOrderNumber renders ORD-<last 14 digits of unix millis>-<5 base36 chars>.
func newOrderNumber(now time.Time) string {
	return fmt.Sprintf("ORD-%s-%s", timestampDigits(now), randomString(base36Alphabet, 5))
}

// newTransactionID renders TXN-<14 digit timestamp>-<6 random chars>.
func newTransactionID(now time.Time) string {
	return fmt.Sprintf("TXN-%s-%s", timestampDigits(now), strings.ToUpper(randomString(base36Alphabet, 6)))
}

func timestampDigits(now time.Time) string {
	return fmt.Sprintf("%014d", now.UnixMilli()%100_000_000_000_000)
}

func randomString(alphabet string, n int) string {
	out := make([]byte, n)
	limit := big.NewInt(int64(len(alphabet)))
	for i := range out {
		idx, err := rand.Int(rand.Reader, limit)
		if err != nil {
			panic(fmt.Sprintf("crypto/rand failed: %v", err))
		}
		out[i] = alphabet[idx.Int64()]
	}
	return string(out)
}
