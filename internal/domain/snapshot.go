package domain

import "github.com/shopspring/decimal"

// OrderItemSnapshot freezes every display and pricing attribute of a variant at
// purchase time. It holds only value fields so copies can never alias catalog
// state; it is produced once by NewOrderItemSnapshot and never re-derived.
type OrderItemSnapshot struct {
	VariantID             string          `json:"variantId"`
	ProductID             string          `json:"productId"`
	ProductName           string          `json:"productName"`
	SKU                   string          `json:"sku"`
	JewelryType           string          `json:"jewelryType,omitempty"`
	Collection            string          `json:"collection,omitempty"`
	ImageURL              string          `json:"imageUrl,omitempty"`
	FinalPrice            int64           `json:"finalPrice"`
	GSTPerUnit            int64           `json:"gstPerUnit"`
	MakingCharge          int64           `json:"makingCharge"`
	GrossWeight           decimal.Decimal `json:"grossWeight"`
	NetWeight             decimal.Decimal `json:"netWeight"`
	MetalType             string          `json:"metalType,omitempty"`
	MetalPurity           string          `json:"metalPurity,omitempty"`
	MetalColor            string          `json:"metalColor,omitempty"`
	MetalWeight           decimal.Decimal `json:"metalWeight"`
	HasGemstone           bool            `json:"hasGemstone"`
	GemstoneName          string          `json:"gemstoneName,omitempty"`
	GemstoneShape         string          `json:"gemstoneShape,omitempty"`
	GemstoneClarity       string          `json:"gemstoneClarity,omitempty"`
	GemstoneCut           string          `json:"gemstoneCut,omitempty"`
	GemstoneColor         string          `json:"gemstoneColor,omitempty"`
	GemstoneCertification string          `json:"gemstoneCertification,omitempty"`
	GemstoneCaratWeight   decimal.Decimal `json:"gemstoneCaratWeight"`
	GemstoneCount         int             `json:"gemstoneCount,omitempty"`
	DiscountName          string          `json:"discountName,omitempty"`
	OptionKind            OptionKind      `json:"optionKind,omitempty"`
	OptionID              string          `json:"optionId,omitempty"`
	OptionLabel           string          `json:"optionLabel,omitempty"`
}

// NewOrderItemSnapshot captures the variant (and the optional selected option) as it
// exists right now.
func NewOrderItemSnapshot(variant ProductVariant, option *VariantOption) OrderItemSnapshot {
	snap := OrderItemSnapshot{
		VariantID:    variant.ID,
		ProductID:    variant.ProductID,
		ProductName:  variant.ProductName,
		SKU:          variant.SKU,
		JewelryType:  variant.JewelryType,
		Collection:   variant.Collection,
		ImageURL:     variant.ImageURL,
		FinalPrice:   variant.FinalPrice,
		GSTPerUnit:   variant.GST,
		MakingCharge: variant.MakingCharge,
		GrossWeight:  variant.GrossWeight,
		NetWeight:    variant.NetWeight,
		MetalType:    variant.Metal.Type,
		MetalPurity:  variant.Metal.Purity,
		MetalColor:   variant.Metal.Color,
		MetalWeight:  variant.Metal.Weight,
	}
	if g := variant.Gemstone; g != nil {
		snap.HasGemstone = true
		snap.GemstoneName = g.Name
		snap.GemstoneShape = g.Shape
		snap.GemstoneClarity = g.Clarity
		snap.GemstoneCut = g.Cut
		snap.GemstoneColor = g.Color
		snap.GemstoneCertification = g.Certification
		snap.GemstoneCaratWeight = g.CaratWeight
		snap.GemstoneCount = g.Count
	}
	if d := variant.GlobalDiscount; d != nil {
		snap.DiscountName = d.Name
	}
	if option != nil {
		snap.OptionKind = option.Kind
		snap.OptionID = option.ID
		snap.OptionLabel = option.Label
	}
	return snap
}
