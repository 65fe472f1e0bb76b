package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	domain "github.com/Gautam0104/jupi-diamond-sub005/internal/domain"
)

type cartRepository struct {
	q querier
}

func (r *cartRepository) Get(ctx context.Context, customerID string) (domain.Cart, error) {
	var (
		cart     domain.Cart
		couponID *string
	)
	err := r.q.QueryRow(ctx, `
		SELECT id, customer_id, applied_coupon_id, total_amount, discount_amount, final_amount, created_at, updated_at
		FROM carts WHERE customer_id = $1`, customerID).Scan(
		&cart.ID, &cart.CustomerID, &couponID, &cart.TotalAmount, &cart.DiscountAmount, &cart.FinalAmount,
		&cart.CreatedAt, &cart.UpdatedAt)
	if err != nil {
		return domain.Cart{}, wrapError("get cart", err)
	}
	cart.AppliedCouponID = deref(couponID)
	cart.CreatedAt = cart.CreatedAt.UTC()
	cart.UpdatedAt = cart.UpdatedAt.UTC()

	rows, err := r.q.Query(ctx, `
		SELECT id, variant_id, option, quantity, price_at_addition, added_at
		FROM cart_items WHERE cart_id = $1 ORDER BY position`, cart.ID)
	if err != nil {
		return domain.Cart{}, wrapError("list cart items", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			item   domain.CartItem
			option []byte
		)
		if err := rows.Scan(&item.ID, &item.VariantID, &option, &item.Quantity, &item.PriceAtAddition, &item.AddedAt); err != nil {
			return domain.Cart{}, wrapError("scan cart item", err)
		}
		if len(option) > 0 {
			item.Option = &domain.VariantOption{}
			if err := json.Unmarshal(option, item.Option); err != nil {
				return domain.Cart{}, fmt.Errorf("postgres: decode cart option: %w", err)
			}
		}
		item.AddedAt = item.AddedAt.UTC()
		cart.Items = append(cart.Items, item)
	}
	if err := rows.Err(); err != nil {
		return domain.Cart{}, wrapError("list cart items", err)
	}
	return cart, nil
}

func (r *cartRepository) Save(ctx context.Context, cart domain.Cart) (domain.Cart, error) {
	batch := &pgx.Batch{}
	batch.Queue(`
		INSERT INTO carts (id, customer_id, applied_coupon_id, total_amount, discount_amount, final_amount, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (customer_id) DO UPDATE SET
			applied_coupon_id = EXCLUDED.applied_coupon_id,
			total_amount = EXCLUDED.total_amount,
			discount_amount = EXCLUDED.discount_amount,
			final_amount = EXCLUDED.final_amount,
			updated_at = EXCLUDED.updated_at`,
		cart.ID, cart.CustomerID, nullString(cart.AppliedCouponID), cart.TotalAmount, cart.DiscountAmount,
		cart.FinalAmount, cart.CreatedAt, cart.UpdatedAt)
	batch.Queue(`DELETE FROM cart_items WHERE cart_id = $1`, cart.ID)
	for i, item := range cart.Items {
		option, err := marshalNullable(item.Option)
		if err != nil {
			return domain.Cart{}, err
		}
		batch.Queue(`INSERT INTO cart_items (id, cart_id, variant_id, position, option, quantity, price_at_addition, added_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			item.ID, cart.ID, item.VariantID, i, option, item.Quantity, item.PriceAtAddition, item.AddedAt)
	}
	if err := r.q.SendBatch(ctx, batch).Close(); err != nil {
		return domain.Cart{}, wrapError("save cart", err)
	}
	return cart, nil
}

func (r *cartRepository) RemoveVariants(ctx context.Context, customerID string, variantIDs []string) error {
	if len(variantIDs) == 0 {
		return nil
	}
	_, err := r.q.Exec(ctx, `
		DELETE FROM cart_items ci
		USING carts c
		WHERE ci.cart_id = c.id AND c.customer_id = $1 AND ci.variant_id = ANY($2)`, customerID, variantIDs)
	if err != nil {
		return wrapError("remove cart variants", err)
	}
	return nil
}
