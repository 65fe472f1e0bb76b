package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	domain "github.com/Gautam0104/jupi-diamond-sub005/internal/domain"
	"github.com/Gautam0104/jupi-diamond-sub005/internal/repositories"
)

const variantColumns = `
	v.id, v.product_id, p.name, v.sku, p.jewelry_type, p.collection, v.image_url,
	v.final_price, v.gst, v.making_charge, v.gross_weight::text, v.net_weight::text, v.stock,
	v.metal_type, v.metal_purity, v.metal_color, v.metal_weight::text,
	v.gemstone, v.options, v.updated_at,
	d.id, d.name, d.discount_type, d.value::text, d.active, d.valid_from, d.valid_to`

const variantFrom = `
	FROM product_variants v
	JOIN products p ON p.id = v.product_id
	LEFT JOIN global_discounts d ON d.id = v.global_discount_id`

type variantRepository struct {
	q querier
}

func (r *variantRepository) FindByID(ctx context.Context, variantID string) (domain.ProductVariant, error) {
	row := r.q.QueryRow(ctx, `SELECT `+variantColumns+variantFrom+` WHERE v.id = $1`, variantID)
	variant, err := scanVariant(row)
	if err != nil {
		return domain.ProductVariant{}, wrapError("find variant", err)
	}
	return variant, nil
}

func (r *variantRepository) FindByIDs(ctx context.Context, variantIDs []string) ([]domain.ProductVariant, error) {
	if len(variantIDs) == 0 {
		return nil, nil
	}
	rows, err := r.q.Query(ctx, `SELECT `+variantColumns+variantFrom+` WHERE v.id = ANY($1) ORDER BY v.id`, variantIDs)
	if err != nil {
		return nil, wrapError("find variants", err)
	}
	defer rows.Close()

	var out []domain.ProductVariant
	for rows.Next() {
		variant, err := scanVariant(rows)
		if err != nil {
			return nil, wrapError("scan variant", err)
		}
		out = append(out, variant)
	}
	return out, wrapError("find variants", rows.Err())
}

func (r *variantRepository) LockForUpdate(ctx context.Context, variantIDs []string) (map[string]domain.ProductVariant, error) {
	ids := slices.Clone(variantIDs)
	slices.Sort(ids)
	ids = slices.Compact(ids)

	// Locking in id order keeps concurrent checkouts touching the same variants deadlock-free.
	rows, err := r.q.Query(ctx, `SELECT `+variantColumns+variantFrom+`
		WHERE v.id = ANY($1)
		ORDER BY v.id
		FOR UPDATE OF v`, ids)
	if err != nil {
		return nil, wrapError("lock variants", err)
	}
	defer rows.Close()

	out := make(map[string]domain.ProductVariant, len(ids))
	for rows.Next() {
		variant, err := scanVariant(rows)
		if err != nil {
			return nil, wrapError("scan variant", err)
		}
		out[variant.ID] = variant
	}
	if err := rows.Err(); err != nil {
		return nil, wrapError("lock variants", err)
	}
	return out, nil
}

func (r *variantRepository) AdjustStock(ctx context.Context, variantID string, delta int) (int, error) {
	var stock int
	err := r.q.QueryRow(ctx, `
		UPDATE product_variants
		SET stock = stock + $2, updated_at = now()
		WHERE id = $1 AND stock + $2 >= 0
		RETURNING stock`, variantID, delta).Scan(&stock)
	if err == nil {
		return stock, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, wrapError("adjust stock", err)
	}

	// The guarded update matched nothing: either the row is missing or stock would go negative.
	var available int
	err = r.q.QueryRow(ctx, `SELECT stock FROM product_variants WHERE id = $1`, variantID).Scan(&available)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return 0, &repositories.InventoryError{
			Op:        "adjust stock",
			Code:      repositories.InventoryErrorVariantNotFound,
			VariantID: variantID,
			Err:       notFound("adjust stock"),
		}
	case err != nil:
		return 0, wrapError("adjust stock", err)
	}
	return 0, &repositories.InventoryError{
		Op:        "adjust stock",
		Code:      repositories.InventoryErrorInsufficientStock,
		VariantID: variantID,
		Available: available,
	}
}

func scanVariant(row pgx.Row) (domain.ProductVariant, error) {
	var (
		v                                      domain.ProductVariant
		gross, net, metalWeight                string
		gemstone, options                      []byte
		discountID, discountName, discountType *string
		discountValue                          *string
		discountActive                         *bool
		discountFrom, discountTo               *time.Time
	)
	err := row.Scan(
		&v.ID, &v.ProductID, &v.ProductName, &v.SKU, &v.JewelryType, &v.Collection, &v.ImageURL,
		&v.FinalPrice, &v.GST, &v.MakingCharge, &gross, &net, &v.Stock,
		&v.Metal.Type, &v.Metal.Purity, &v.Metal.Color, &metalWeight,
		&gemstone, &options, &v.UpdatedAt,
		&discountID, &discountName, &discountType, &discountValue, &discountActive, &discountFrom, &discountTo,
	)
	if err != nil {
		return domain.ProductVariant{}, err
	}

	if v.GrossWeight, err = parseDecimal(gross); err != nil {
		return domain.ProductVariant{}, err
	}
	if v.NetWeight, err = parseDecimal(net); err != nil {
		return domain.ProductVariant{}, err
	}
	if v.Metal.Weight, err = parseDecimal(metalWeight); err != nil {
		return domain.ProductVariant{}, err
	}
	if len(gemstone) > 0 && string(gemstone) != "null" {
		var g domain.Gemstone
		if err := json.Unmarshal(gemstone, &g); err != nil {
			return domain.ProductVariant{}, fmt.Errorf("decode gemstone: %w", err)
		}
		v.Gemstone = &g
	}
	if len(options) > 0 {
		if err := json.Unmarshal(options, &v.Options); err != nil {
			return domain.ProductVariant{}, fmt.Errorf("decode options: %w", err)
		}
	}
	if discountID != nil {
		value, err := parseDecimal(deref(discountValue))
		if err != nil {
			return domain.ProductVariant{}, err
		}
		v.GlobalDiscount = &domain.GlobalDiscount{
			ID:        *discountID,
			Name:      deref(discountName),
			Type:      domain.DiscountType(deref(discountType)),
			Value:     value,
			Active:    discountActive != nil && *discountActive,
			ValidFrom: utcPtr(discountFrom),
			ValidTo:   utcPtr(discountTo),
		}
	}
	v.UpdatedAt = v.UpdatedAt.UTC()
	return v, nil
}

func parseDecimal(raw string) (decimal.Decimal, error) {
	if raw == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse numeric %q: %w", raw, err)
	}
	return d, nil
}

func deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
