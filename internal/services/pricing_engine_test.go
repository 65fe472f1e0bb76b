package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	domain "github.com/Gautam0104/jupi-diamond-sub005/internal/domain"
)

func testRates() domain.RateTable {
	return domain.NewRateTable([]domain.CurrencyRate{
		{Code: "INR", ExchangeRate: mustDecimal("1")},
		{Code: "USD", ExchangeRate: mustDecimal("0.012")},
	})
}

func priceVariant(id string, finalPrice, gst int64) *domain.ProductVariant {
	return &domain.ProductVariant{ID: id, FinalPrice: finalPrice, GST: gst, Stock: 10}
}

func TestPricingCalculator_TwoUnitsWithGST(t *testing.T) {
	calc := NewPricingCalculator()

	result, err := calc.Calculate(PricingInput{
		Lines:    []PricingLine{{Variant: priceVariant("var_1", 100000, 5000), Quantity: 2}},
		Currency: "INR",
		Rates:    testRates(),
		Now:      fixedNow,
	})
	require.NoError(t, err)
	require.Equal(t, int64(210000), result.INR.TotalAmount)
	require.Equal(t, int64(10000), result.INR.GSTAmount)
	require.Zero(t, result.INR.DiscountAmount)
	require.Equal(t, int64(210000), result.INR.FinalAmount)
	require.Equal(t, result.INR.Amounts(), result.Converted.Amounts())
	require.Len(t, result.INR.Items, 1)
	require.Equal(t, int64(210000), result.INR.Items[0].LineTotal)

	// 2100.00 INR at 0.012 is 25.20 USD
	require.Equal(t, int64(2520), result.USD.Final)
}

func TestPricingCalculator_ConvertsToRequestedCurrency(t *testing.T) {
	calc := NewPricingCalculator()

	result, err := calc.Calculate(PricingInput{
		Lines:    []PricingLine{{Variant: priceVariant("var_1", 100000, 5000), Quantity: 2}},
		Currency: "usd",
		Rates:    testRates(),
		Now:      fixedNow,
	})
	require.NoError(t, err)
	require.Equal(t, "USD", result.Converted.Currency)
	require.Equal(t, int64(2520), result.Converted.TotalAmount)
	require.Equal(t, int64(120), result.Converted.GSTAmount)
	require.Equal(t, int64(2520), result.Converted.FinalAmount)
	require.Equal(t, int64(1200), result.Converted.Items[0].UnitPrice)
}

func TestPricingCalculator_GlobalDiscount(t *testing.T) {
	calc := NewPricingCalculator()
	from := fixedNow.Add(-time.Hour)
	to := fixedNow.Add(time.Hour)

	percent := priceVariant("var_pct", 100000, 5000)
	percent.GlobalDiscount = &domain.GlobalDiscount{
		ID: "gd_1", Type: domain.DiscountTypePercentage, Value: mustDecimal("10"), Active: true, ValidFrom: &from, ValidTo: &to,
	}
	fixed := priceVariant("var_fix", 50000, 0)
	fixed.GlobalDiscount = &domain.GlobalDiscount{ID: "gd_2", Type: domain.DiscountTypeFixed, Value: mustDecimal("25.50"), Active: true}
	expired := priceVariant("var_old", 50000, 0)
	expired.GlobalDiscount = &domain.GlobalDiscount{ID: "gd_3", Type: domain.DiscountTypeFixed, Value: mustDecimal("100"), Active: true, ValidTo: &from}

	result, err := calc.Calculate(PricingInput{
		Lines: []PricingLine{
			{Variant: percent, Quantity: 1},
			{Variant: fixed, Quantity: 2},
			{Variant: expired, Quantity: 1},
		},
		Currency: "INR",
		Rates:    testRates(),
		Now:      fixedNow,
	})
	require.NoError(t, err)
	require.Equal(t, int64(10000), result.INR.Items[0].Discount)
	require.Equal(t, int64(5100), result.INR.Items[1].Discount)
	require.Zero(t, result.INR.Items[2].Discount)
	require.Equal(t, int64(15100), result.INR.DiscountAmount)
	require.Equal(t, int64(255000-15100), result.INR.FinalAmount)
	require.Len(t, result.INR.Discounts, 2)
}

func TestPricingCalculator_CouponMinimumCartValueBoundary(t *testing.T) {
	calc := NewPricingCalculator()
	coupon := &domain.Coupon{
		ID: "cpn_1", Code: "FLAT10", DiscountType: domain.DiscountTypeFixed, Value: mustDecimal("10"),
		MinCartValue: 10000, Active: true,
	}

	_, err := calc.Calculate(PricingInput{
		Lines:    []PricingLine{{Variant: priceVariant("var_1", 9999, 0), Quantity: 1}},
		Coupon:   coupon,
		Currency: "INR",
		Rates:    testRates(),
		Now:      fixedNow,
	})
	require.ErrorIs(t, err, ErrCouponNotApplicable)

	result, err := calc.Calculate(PricingInput{
		Lines:    []PricingLine{{Variant: priceVariant("var_1", 10000, 0), Quantity: 1}},
		Coupon:   coupon,
		Currency: "INR",
		Rates:    testRates(),
		Now:      fixedNow,
	})
	require.NoError(t, err)
	require.NotNil(t, result.Coupon)
	require.Equal(t, int64(1000), result.Coupon.Amount)
	require.Equal(t, int64(9000), result.INR.FinalAmount)
}

func TestPricingCalculator_CouponRules(t *testing.T) {
	calc := NewPricingCalculator()
	past := fixedNow.Add(-48 * time.Hour)
	future := fixedNow.Add(48 * time.Hour)
	maxDiscount := int64(15000)

	cases := map[string]struct {
		coupon    domain.Coupon
		wantErr   error
		wantCoupo int64
	}{
		"percentage": {
			coupon:    domain.Coupon{Code: "P10", DiscountType: domain.DiscountTypePercentage, Value: mustDecimal("10"), Active: true},
			wantCoupo: 21000,
		},
		"percentage capped": {
			coupon:    domain.Coupon{Code: "P10MAX", DiscountType: domain.DiscountTypePercentage, Value: mustDecimal("10"), Active: true, MaxDiscount: &maxDiscount},
			wantCoupo: 15000,
		},
		"fixed capped at remaining": {
			coupon:    domain.Coupon{Code: "HUGE", DiscountType: domain.DiscountTypeFixed, Value: mustDecimal("5000"), Active: true},
			wantCoupo: 210000,
		},
		"inactive": {
			coupon:  domain.Coupon{Code: "OFF", DiscountType: domain.DiscountTypeFixed, Value: mustDecimal("1"), Active: false},
			wantErr: ErrCouponNotApplicable,
		},
		"expired": {
			coupon:  domain.Coupon{Code: "OLD", DiscountType: domain.DiscountTypeFixed, Value: mustDecimal("1"), Active: true, ValidTo: &past},
			wantErr: ErrCouponNotApplicable,
		},
		"not yet valid": {
			coupon:  domain.Coupon{Code: "SOON", DiscountType: domain.DiscountTypeFixed, Value: mustDecimal("1"), Active: true, ValidFrom: &future},
			wantErr: ErrCouponNotApplicable,
		},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			coupon := tc.coupon
			result, err := calc.Calculate(PricingInput{
				Lines:    []PricingLine{{Variant: priceVariant("var_1", 100000, 5000), Quantity: 2}},
				Coupon:   &coupon,
				Currency: "INR",
				Rates:    testRates(),
				Now:      fixedNow,
			})
			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.wantCoupo, result.Coupon.Amount)
			require.Equal(t, max(210000-tc.wantCoupo, 0), result.INR.FinalAmount)
		})
	}
}

func TestPricingCalculator_GiftCard(t *testing.T) {
	calc := NewPricingCalculator()
	expired := fixedNow.Add(-time.Minute)
	lines := []PricingLine{{Variant: priceVariant("var_1", 100000, 5000), Quantity: 1}}

	result, err := calc.Calculate(PricingInput{
		Lines:      lines,
		GiftCard:   &domain.GiftCard{ID: "gc_1", Code: "GIFT", Value: 500000, AssignedToID: "cust_1"},
		CustomerID: "cust_1",
		Currency:   "INR",
		Rates:      testRates(),
		Now:        fixedNow,
	})
	require.NoError(t, err)
	require.Equal(t, int64(105000), result.GiftCard.Amount)
	require.Zero(t, result.INR.FinalAmount)

	for name, card := range map[string]domain.GiftCard{
		"other customer": {ID: "gc_2", Code: "G2", Value: 100, AssignedToID: "cust_2"},
		"redeemed":       {ID: "gc_3", Code: "G3", Value: 100, AssignedToID: "cust_1", IsRedeemed: true},
		"expired":        {ID: "gc_4", Code: "G4", Value: 100, AssignedToID: "cust_1", ExpiresAt: &expired},
	} {
		t.Run(name, func(t *testing.T) {
			card := card
			_, err := calc.Calculate(PricingInput{
				Lines:      lines,
				GiftCard:   &card,
				CustomerID: "cust_1",
				Currency:   "INR",
				Rates:      testRates(),
				Now:        fixedNow,
			})
			require.ErrorIs(t, err, ErrGiftCardNotApplicable)
		})
	}
}

func TestPricingCalculator_Errors(t *testing.T) {
	calc := NewPricingCalculator()

	_, err := calc.Calculate(PricingInput{Lines: []PricingLine{{Quantity: 1}}, Currency: "INR", Rates: testRates()})
	require.ErrorIs(t, err, ErrVariantNotFound)

	_, err = calc.Calculate(PricingInput{
		Lines: []PricingLine{{Variant: priceVariant("var_free", 0, 0), Quantity: 1}}, Currency: "INR", Rates: testRates(),
	})
	require.ErrorIs(t, err, ErrPriceNotSet)

	_, err = calc.Calculate(PricingInput{
		Lines: []PricingLine{{Variant: priceVariant("var_1", 100, 0), Quantity: 1}}, Currency: "EUR", Rates: testRates(),
	})
	require.ErrorIs(t, err, ErrUnsupportedCurrency)

	_, err = calc.Calculate(PricingInput{
		Lines: []PricingLine{{Variant: priceVariant("var_1", 100, 0), Quantity: 1}}, Currency: "RUPEES", Rates: testRates(),
	})
	require.ErrorIs(t, err, ErrUnsupportedCurrency)
}
