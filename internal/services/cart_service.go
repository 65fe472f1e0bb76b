package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	domain "github.com/Gautam0104/jupi-diamond-sub005/internal/domain"
	"github.com/Gautam0104/jupi-diamond-sub005/internal/repositories"
)

// CartServiceDeps bundles collaborators required to construct the cart service.
type CartServiceDeps struct {
	Repositories    repositories.Registry
	UnitOfWork      repositories.UnitOfWork
	Pricing         *PricingCalculator
	MaxItemQuantity int
	Clock           func() time.Time
	IDGenerator     func() string
	Logger          Logger
}

type cartService struct {
	repos      repositories.Registry
	unitOfWork repositories.UnitOfWork
	pricing    *PricingCalculator
	maxQty     int
	lifecycle
}

var _ CartService = (*cartService)(nil)

// NewCartService constructs the cart service.
func NewCartService(deps CartServiceDeps) (CartService, error) {
	if deps.Repositories == nil {
		return nil, errors.New("cart service: repositories are required")
	}
	pricing := deps.Pricing
	if pricing == nil {
		pricing = NewPricingCalculator()
	}
	maxQty := deps.MaxItemQuantity
	if maxQty <= 0 {
		maxQty = defaultMaxItemQuantity
	}
	return &cartService{
		repos:      deps.Repositories,
		unitOfWork: resolveUnitOfWork(deps.UnitOfWork, deps.Repositories),
		pricing:    pricing,
		maxQty:     maxQty,
		lifecycle:  newLifecycle(deps.Clock, deps.IDGenerator, nil, deps.Logger),
	}, nil
}

func (s *cartService) GetCart(ctx context.Context, customerID string) (Cart, error) {
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return Cart{}, fmt.Errorf("%w: customer id is required", ErrInvalidInput)
	}
	return s.load(ctx, s.repos, customerID)
}

func (s *cartService) AddItem(ctx context.Context, cmd AddCartItemCommand) (Cart, error) {
	variantID := strings.TrimSpace(cmd.VariantID)
	if variantID == "" {
		return Cart{}, fmt.Errorf("%w: variant id is required", ErrInvalidInput)
	}
	if cmd.Quantity <= 0 {
		return Cart{}, fmt.Errorf("%w: quantity must be positive", ErrInvalidInput)
	}
	return s.mutate(ctx, cmd.CustomerID, func(ctx context.Context, tx repositories.Registry, cart *Cart) error {
		variant, err := tx.Variants().FindByID(ctx, variantID)
		if err != nil {
			return mapRepositoryError(err, ErrVariantNotFound)
		}
		option, err := resolveOption(variant, cmd.Option)
		if err != nil {
			return err
		}

		idx := slices.IndexFunc(cart.Items, func(item CartItem) bool {
			return item.SameSelection(variantID, option)
		})
		quantity := cmd.Quantity
		if idx >= 0 {
			quantity += cart.Items[idx].Quantity
		}
		if err := s.checkQuantity(variant, quantity); err != nil {
			return err
		}
		if idx >= 0 {
			cart.Items[idx].Quantity = quantity
			cart.Items[idx].PriceAtAddition = variant.FinalPrice * int64(quantity)
			return nil
		}
		cart.Items = append(cart.Items, CartItem{
			ID:              cartItemPrefix + s.newID(),
			VariantID:       variantID,
			Option:          option,
			Quantity:        quantity,
			PriceAtAddition: variant.FinalPrice * int64(quantity),
			AddedAt:         s.now(),
		})
		return nil
	})
}

func (s *cartService) UpdateItemQuantity(ctx context.Context, cmd UpdateCartItemCommand) (Cart, error) {
	itemID := strings.TrimSpace(cmd.ItemID)
	if itemID == "" {
		return Cart{}, fmt.Errorf("%w: item id is required", ErrInvalidInput)
	}
	if cmd.Quantity < 0 {
		return Cart{}, fmt.Errorf("%w: quantity must not be negative", ErrInvalidInput)
	}
	return s.mutate(ctx, cmd.CustomerID, func(ctx context.Context, tx repositories.Registry, cart *Cart) error {
		idx := slices.IndexFunc(cart.Items, func(item CartItem) bool { return item.ID == itemID })
		if idx < 0 {
			return fmt.Errorf("%w: cart item %s", ErrNotFound, itemID)
		}
		if cmd.Quantity == 0 {
			cart.Items = slices.Delete(cart.Items, idx, idx+1)
			return nil
		}
		variant, err := tx.Variants().FindByID(ctx, cart.Items[idx].VariantID)
		if err != nil {
			return mapRepositoryError(err, ErrVariantNotFound)
		}
		if err := s.checkQuantity(variant, cmd.Quantity); err != nil {
			return err
		}
		cart.Items[idx].Quantity = cmd.Quantity
		cart.Items[idx].PriceAtAddition = variant.FinalPrice * int64(cmd.Quantity)
		return nil
	})
}

func (s *cartService) RemoveItem(ctx context.Context, customerID, itemID string) (Cart, error) {
	itemID = strings.TrimSpace(itemID)
	if itemID == "" {
		return Cart{}, fmt.Errorf("%w: item id is required", ErrInvalidInput)
	}
	return s.mutate(ctx, customerID, func(_ context.Context, _ repositories.Registry, cart *Cart) error {
		idx := slices.IndexFunc(cart.Items, func(item CartItem) bool { return item.ID == itemID })
		if idx < 0 {
			return fmt.Errorf("%w: cart item %s", ErrNotFound, itemID)
		}
		cart.Items = slices.Delete(cart.Items, idx, idx+1)
		return nil
	})
}

// ApplyCoupon attaches the coupon after checking it against the current cart value.
func (s *cartService) ApplyCoupon(ctx context.Context, customerID, code string) (Cart, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return Cart{}, fmt.Errorf("%w: coupon code is required", ErrInvalidInput)
	}
	customerID = strings.TrimSpace(customerID)
	return s.mutate(ctx, customerID, func(ctx context.Context, tx repositories.Registry, cart *Cart) error {
		if len(cart.Items) == 0 {
			return fmt.Errorf("%w: cart is empty", ErrCouponNotApplicable)
		}
		coupon, err := tx.Coupons().FindByCode(ctx, code)
		if err != nil {
			if isRepoNotFound(err) {
				return fmt.Errorf("%w: %s", ErrCouponNotFound, code)
			}
			return mapRepositoryError(err, nil)
		}
		if coupon.UsageLimit != nil && coupon.UsedCount >= *coupon.UsageLimit {
			return fmt.Errorf("%w: %s", ErrCouponAlreadyUsed, coupon.Code)
		}
		if coupon.PerCustomerLimit > 0 {
			used, err := tx.Coupons().CountRedemptions(ctx, coupon.ID, customerID)
			if err != nil {
				return mapRepositoryError(err, nil)
			}
			if used >= coupon.PerCustomerLimit {
				return fmt.Errorf("%w: %s already used by customer", ErrCouponAlreadyUsed, coupon.Code)
			}
		}
		variants, err := s.variantsFor(ctx, tx, *cart)
		if err != nil {
			return err
		}
		if _, err := s.price(*cart, variants, &coupon); err != nil {
			return err
		}
		cart.AppliedCouponID = coupon.ID
		return nil
	})
}

func (s *cartService) RemoveCoupon(ctx context.Context, customerID string) (Cart, error) {
	return s.mutate(ctx, customerID, func(_ context.Context, _ repositories.Registry, cart *Cart) error {
		cart.AppliedCouponID = ""
		return nil
	})
}

func (s *cartService) Clear(ctx context.Context, customerID string) (Cart, error) {
	return s.mutate(ctx, customerID, func(_ context.Context, _ repositories.Registry, cart *Cart) error {
		cart.Items = nil
		cart.AppliedCouponID = ""
		return nil
	})
}

func (s *cartService) checkQuantity(variant domain.ProductVariant, quantity int) error {
	if quantity > s.maxQty {
		return fmt.Errorf("%w: at most %d per item", ErrQuantityLimit, s.maxQty)
	}
	if quantity > variant.Stock {
		return &StockError{VariantID: variant.ID, Requested: quantity, Available: variant.Stock}
	}
	return nil
}

// resolveOption validates the requested option against the variant and returns the catalog copy.
func resolveOption(variant domain.ProductVariant, requested *domain.VariantOption) (*domain.VariantOption, error) {
	if requested == nil {
		return nil, nil
	}
	kind := domain.OptionKind(strings.ToUpper(strings.TrimSpace(string(requested.Kind))))
	id := strings.TrimSpace(requested.ID)
	for _, option := range variant.Options {
		if option.Kind == kind && option.ID == id {
			found := option
			return &found, nil
		}
	}
	return nil, fmt.Errorf("%w: option %s %s is not offered for variant %s", ErrInvalidInput, kind, id, variant.ID)
}

// mutate loads the cart inside a transaction, applies fn, recomputes totals and saves.
func (s *cartService) mutate(ctx context.Context, customerID string, fn func(context.Context, repositories.Registry, *Cart) error) (Cart, error) {
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return Cart{}, fmt.Errorf("%w: customer id is required", ErrInvalidInput)
	}
	var saved Cart
	err := s.unitOfWork.RunInTx(ctx, func(ctx context.Context, tx repositories.Registry) error {
		cart, err := s.fetch(ctx, tx, customerID)
		if err != nil {
			return err
		}
		if err := fn(ctx, tx, &cart); err != nil {
			return err
		}
		if err := s.refreshTotals(ctx, tx, &cart); err != nil {
			return err
		}
		cart.UpdatedAt = s.now()
		saved, err = tx.Carts().Save(ctx, cart)
		return mapRepositoryError(err, nil)
	})
	if err != nil {
		return Cart{}, err
	}
	return saved, nil
}

func (s *cartService) load(ctx context.Context, repos repositories.Registry, customerID string) (Cart, error) {
	cart, err := s.fetch(ctx, repos, customerID)
	if err != nil {
		return Cart{}, err
	}
	if err := s.refreshTotals(ctx, repos, &cart); err != nil {
		return Cart{}, err
	}
	return cart, nil
}

func (s *cartService) fetch(ctx context.Context, repos repositories.Registry, customerID string) (Cart, error) {
	cart, err := repos.Carts().Get(ctx, customerID)
	if err == nil {
		return cart, nil
	}
	if !isRepoNotFound(err) {
		return Cart{}, mapRepositoryError(err, nil)
	}
	now := s.now()
	return Cart{ID: cartIDPrefix + s.newID(), CustomerID: customerID, CreatedAt: now, UpdatedAt: now}, nil
}

// refreshTotals re-derives the cached INR totals. A coupon that no longer applies is dropped.
func (s *cartService) refreshTotals(ctx context.Context, repos repositories.Registry, cart *Cart) error {
	variants, err := s.variantsFor(ctx, repos, *cart)
	if err != nil {
		return err
	}
	var coupon *domain.Coupon
	if cart.AppliedCouponID != "" {
		found, err := repos.Coupons().FindByID(ctx, cart.AppliedCouponID)
		switch {
		case err == nil:
			coupon = &found
		case isRepoNotFound(err):
			cart.AppliedCouponID = ""
		default:
			return mapRepositoryError(err, nil)
		}
	}

	priced, err := s.price(*cart, variants, coupon)
	if errors.Is(err, ErrCouponNotApplicable) {
		s.logger(ctx, "cart.coupon.dropped", map[string]any{"cart": cart.ID, "coupon": cart.AppliedCouponID, "reason": err.Error()})
		cart.AppliedCouponID = ""
		priced, err = s.price(*cart, variants, nil)
	}
	if err != nil {
		return err
	}
	cart.TotalAmount = priced.INR.TotalAmount
	cart.DiscountAmount = priced.INR.DiscountAmount
	cart.FinalAmount = priced.INR.FinalAmount
	return nil
}

func (s *cartService) variantsFor(ctx context.Context, repos repositories.Registry, cart Cart) (map[string]domain.ProductVariant, error) {
	if len(cart.Items) == 0 {
		return map[string]domain.ProductVariant{}, nil
	}
	ids := make([]string, 0, len(cart.Items))
	for _, item := range cart.Items {
		ids = append(ids, item.VariantID)
	}
	slices.Sort(ids)
	found, err := repos.Variants().FindByIDs(ctx, slices.Compact(ids))
	if err != nil {
		return nil, mapRepositoryError(err, ErrVariantNotFound)
	}
	byID := make(map[string]domain.ProductVariant, len(found))
	for _, v := range found {
		byID[v.ID] = v
	}
	return byID, nil
}

func (s *cartService) price(cart Cart, variants map[string]domain.ProductVariant, coupon *domain.Coupon) (PricingResult, error) {
	lines := make([]PricingLine, 0, len(cart.Items))
	for _, item := range cart.Items {
		line := PricingLine{Quantity: item.Quantity}
		if v, ok := variants[item.VariantID]; ok {
			line.Variant = &v
		}
		lines = append(lines, line)
	}
	return s.pricing.Calculate(PricingInput{
		Lines:      lines,
		Coupon:     coupon,
		CustomerID: cart.CustomerID,
		Currency:   domain.BaseCurrency,
		Rates:      domain.NewRateTable(nil),
		Now:        s.now(),
	})
}
