package domain

// PricingBreakdown captures the aggregated monetary results of pricing a set of lines.
// Amounts are in minor units of Currency.
type PricingBreakdown struct {
	Currency       string
	TotalAmount    int64
	GSTAmount      int64
	DiscountAmount int64
	FinalAmount    int64
	Items          []ItemPricingBreakdown
	Discounts      []DiscountBreakdown
}

// Amounts projects the aggregate fields onto an OrderAmounts value.
func (p PricingBreakdown) Amounts() OrderAmounts {
	return OrderAmounts{
		Total:    p.TotalAmount,
		GST:      p.GSTAmount,
		Discount: p.DiscountAmount,
		Final:    p.FinalAmount,
	}
}

// ItemPricingBreakdown stores the per-line pricing outputs.
type ItemPricingBreakdown struct {
	VariantID string
	Quantity  int
	UnitPrice int64
	GST       int64
	Discount  int64
	LineTotal int64
}

// DiscountSource identifies where a discount came from.
type DiscountSource string

const (
	DiscountSourceGlobal   DiscountSource = "GLOBAL_DISCOUNT"
	DiscountSourceCoupon   DiscountSource = "COUPON"
	DiscountSourceGiftCard DiscountSource = "GIFT_CARD"
)

// DiscountBreakdown lists one discount adjustment applied to the total.
type DiscountBreakdown struct {
	Source DiscountSource
	Ref    string
	Code   string
	Amount int64
}
