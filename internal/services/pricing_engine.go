package services

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"

	domain "github.com/Gautam0104/jupi-diamond-sub005/internal/domain"
)

const usdCurrency = "USD"

var hundred = decimal.NewFromInt(100)

// PricingLine is one priced line. Variant is nil when the catalog lookup found nothing.
type PricingLine struct {
	Variant  *domain.ProductVariant
	Quantity int
}

// PricingInput is everything the calculator needs; it performs no I/O.
type PricingInput struct {
	Lines      []PricingLine
	Coupon     *domain.Coupon
	GiftCard   *domain.GiftCard
	CustomerID string
	Currency   string
	Rates      domain.RateTable
	Now        time.Time
}

// PricingResult carries the INR breakdown, the same breakdown in the requested currency and
// the USD mirror of the aggregates.
type PricingResult struct {
	INR       PricingBreakdown
	Converted PricingBreakdown
	USD       domain.OrderAmounts
	Coupon    *domain.AppliedCoupon
	GiftCard  *domain.AppliedGiftCard
}

// PricingCalculator computes order and cart totals in minor units.
type PricingCalculator struct{}

// NewPricingCalculator returns the calculator.
func NewPricingCalculator() *PricingCalculator {
	return &PricingCalculator{}
}

// Calculate prices the lines in INR, applies line discounts, the coupon and the gift card in that
// order, and converts the result to the requested currency and USD.
func (c *PricingCalculator) Calculate(in PricingInput) (PricingResult, error) {
	target := domain.NormalizeCurrency(in.Currency)
	if target == "" {
		target = domain.BaseCurrency
	}
	if err := validateCurrency(target, in.Rates); err != nil {
		return PricingResult{}, err
	}
	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	inr := PricingBreakdown{Currency: domain.BaseCurrency}
	var lineDiscounts int64
	for _, line := range in.Lines {
		if line.Variant == nil {
			return PricingResult{}, ErrVariantNotFound
		}
		v := line.Variant
		if v.FinalPrice <= 0 {
			return PricingResult{}, fmt.Errorf("%w: %s", ErrPriceNotSet, v.ID)
		}
		if line.Quantity <= 0 {
			return PricingResult{}, fmt.Errorf("%w: quantity must be positive for %s", ErrInvalidInput, v.ID)
		}
		qty := int64(line.Quantity)
		item := domain.ItemPricingBreakdown{
			VariantID: v.ID,
			Quantity:  line.Quantity,
			UnitPrice: v.FinalPrice,
			GST:       v.GST * qty,
			Discount:  globalDiscountPerUnit(v, now) * qty,
		}
		item.LineTotal = v.FinalPrice*qty + item.GST
		inr.Items = append(inr.Items, item)
		inr.TotalAmount += item.LineTotal
		inr.GSTAmount += item.GST
		if item.Discount > 0 {
			lineDiscounts += item.Discount
			inr.Discounts = append(inr.Discounts, domain.DiscountBreakdown{
				Source: domain.DiscountSourceGlobal,
				Ref:    v.GlobalDiscount.ID,
				Amount: item.Discount,
			})
		}
	}

	cartValue := inr.TotalAmount - lineDiscounts
	remaining := max(cartValue, 0)
	result := PricingResult{}

	if in.Coupon != nil {
		amount, err := couponDiscount(*in.Coupon, cartValue, now)
		if err != nil {
			return PricingResult{}, err
		}
		amount = min(amount, remaining)
		remaining -= amount
		result.Coupon = &domain.AppliedCoupon{
			CouponID:      in.Coupon.ID,
			Code:          in.Coupon.Code,
			DiscountType:  in.Coupon.DiscountType,
			DiscountValue: in.Coupon.Value,
			Amount:        amount,
		}
		inr.Discounts = append(inr.Discounts, domain.DiscountBreakdown{
			Source: domain.DiscountSourceCoupon,
			Ref:    in.Coupon.ID,
			Code:   in.Coupon.Code,
			Amount: amount,
		})
	}

	if in.GiftCard != nil {
		card := *in.GiftCard
		if err := checkGiftCard(card, in.CustomerID, now); err != nil {
			return PricingResult{}, err
		}
		amount := min(card.Value, remaining)
		remaining -= amount
		result.GiftCard = &domain.AppliedGiftCard{GiftCardID: card.ID, Code: card.Code, Amount: amount}
		inr.Discounts = append(inr.Discounts, domain.DiscountBreakdown{
			Source: domain.DiscountSourceGiftCard,
			Ref:    card.ID,
			Code:   card.Code,
			Amount: amount,
		})
	}

	for _, d := range inr.Discounts {
		inr.DiscountAmount += d.Amount
	}
	inr.FinalAmount = max(inr.TotalAmount-inr.DiscountAmount, 0)
	result.INR = inr

	converted, err := convertBreakdown(inr, target, in.Rates)
	if err != nil {
		return PricingResult{}, err
	}
	result.Converted = converted

	usd := domain.OrderAmounts{}
	if in.Rates.Supports(usdCurrency) {
		usdBreakdown, err := convertBreakdown(PricingBreakdown{
			TotalAmount:    inr.TotalAmount,
			GSTAmount:      inr.GSTAmount,
			DiscountAmount: inr.DiscountAmount,
			FinalAmount:    inr.FinalAmount,
		}, usdCurrency, in.Rates)
		if err != nil {
			return PricingResult{}, err
		}
		usd = usdBreakdown.Amounts()
	}
	result.USD = usd
	return result, nil
}

// globalDiscountPerUnit returns the standing discount for one unit, never more than the unit price.
func globalDiscountPerUnit(v *domain.ProductVariant, now time.Time) int64 {
	d := v.GlobalDiscount
	if d == nil || !d.Active || !withinWindow(d.ValidFrom, d.ValidTo, now) {
		return 0
	}
	var amount int64
	switch d.Type {
	case domain.DiscountTypePercentage:
		amount = decimal.NewFromInt(v.FinalPrice).Mul(d.Value).Div(hundred).Round(0).IntPart()
	case domain.DiscountTypeFixed:
		amount = domain.DecimalToMinor(d.Value)
	}
	return min(max(amount, 0), v.FinalPrice)
}

func couponDiscount(coupon domain.Coupon, cartValue int64, now time.Time) (int64, error) {
	if !coupon.Active {
		return 0, fmt.Errorf("%w: coupon %s is inactive", ErrCouponNotApplicable, coupon.Code)
	}
	if !withinWindow(coupon.ValidFrom, coupon.ValidTo, now) {
		return 0, fmt.Errorf("%w: coupon %s is outside its validity window", ErrCouponNotApplicable, coupon.Code)
	}
	if cartValue < coupon.MinCartValue {
		return 0, fmt.Errorf("%w: cart value %s below minimum %s", ErrCouponNotApplicable,
			domain.MinorToDecimal(cartValue).StringFixed(2), domain.MinorToDecimal(coupon.MinCartValue).StringFixed(2))
	}
	var amount int64
	switch coupon.DiscountType {
	case domain.DiscountTypePercentage:
		amount = decimal.NewFromInt(cartValue).Mul(coupon.Value).Div(hundred).Round(0).IntPart()
		if coupon.MaxDiscount != nil && amount > *coupon.MaxDiscount {
			amount = *coupon.MaxDiscount
		}
	case domain.DiscountTypeFixed:
		amount = domain.DecimalToMinor(coupon.Value)
	default:
		return 0, fmt.Errorf("%w: unknown discount type %q", ErrCouponNotApplicable, coupon.DiscountType)
	}
	return max(amount, 0), nil
}

func checkGiftCard(card domain.GiftCard, customerID string, now time.Time) error {
	switch {
	case card.IsRedeemed:
		return fmt.Errorf("%w: gift card %s already redeemed", ErrGiftCardNotApplicable, card.Code)
	case card.ExpiresAt != nil && now.After(*card.ExpiresAt):
		return fmt.Errorf("%w: gift card %s expired", ErrGiftCardNotApplicable, card.Code)
	case strings.TrimSpace(customerID) == "" || card.AssignedToID != customerID:
		return fmt.Errorf("%w: gift card %s belongs to another customer", ErrGiftCardNotApplicable, card.Code)
	}
	return nil
}

func withinWindow(from, to *time.Time, now time.Time) bool {
	if from != nil && now.Before(*from) {
		return false
	}
	if to != nil && now.After(*to) {
		return false
	}
	return true
}

// validateCurrency requires a well-formed ISO 4217 code that is present in the rate table.
func validateCurrency(code string, rates domain.RateTable) error {
	if _, err := currency.ParseISO(code); err != nil {
		return fmt.Errorf("%w: %q", ErrUnsupportedCurrency, code)
	}
	if !rates.Supports(code) {
		return fmt.Errorf("%w: %q has no exchange rate", ErrUnsupportedCurrency, code)
	}
	return nil
}

// convertBreakdown converts every line and aggregate independently from INR.
func convertBreakdown(src PricingBreakdown, target string, rates domain.RateTable) (PricingBreakdown, error) {
	conv := func(amount int64) (int64, error) {
		out, err := rates.Convert(amount, domain.BaseCurrency, target)
		if err != nil {
			return 0, fmt.Errorf("%w: %v", ErrUnsupportedCurrency, err)
		}
		return out, nil
	}

	out := PricingBreakdown{Currency: target}
	var err error
	for _, field := range []struct {
		dst *int64
		src int64
	}{
		{&out.TotalAmount, src.TotalAmount},
		{&out.GSTAmount, src.GSTAmount},
		{&out.DiscountAmount, src.DiscountAmount},
		{&out.FinalAmount, src.FinalAmount},
	} {
		if *field.dst, err = conv(field.src); err != nil {
			return PricingBreakdown{}, err
		}
	}
	for _, item := range src.Items {
		converted := item
		if converted.UnitPrice, err = conv(item.UnitPrice); err != nil {
			return PricingBreakdown{}, err
		}
		if converted.GST, err = conv(item.GST); err != nil {
			return PricingBreakdown{}, err
		}
		if converted.Discount, err = conv(item.Discount); err != nil {
			return PricingBreakdown{}, err
		}
		if converted.LineTotal, err = conv(item.LineTotal); err != nil {
			return PricingBreakdown{}, err
		}
		out.Items = append(out.Items, converted)
	}
	for _, d := range src.Discounts {
		converted := d
		if converted.Amount, err = conv(d.Amount); err != nil {
			return PricingBreakdown{}, err
		}
		out.Discounts = append(out.Discounts, converted)
	}
	return out, nil
}
