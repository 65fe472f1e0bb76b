package postgres

import (
	"context"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	domain "github.com/Gautam0104/jupi-diamond-sub005/internal/domain"
)

const couponColumns = `id, code, discount_type, value::text, min_cart_value, max_discount, valid_from, valid_to,
	active, usage_limit, used_count, per_customer_limit`

type couponRepository struct {
	q querier
}

func (r *couponRepository) FindByID(ctx context.Context, couponID string) (domain.Coupon, error) {
	coupon, err := scanCoupon(r.q.QueryRow(ctx, `SELECT `+couponColumns+` FROM coupons WHERE id = $1`, couponID))
	if err != nil {
		return domain.Coupon{}, wrapError("find coupon", err)
	}
	return coupon, nil
}

func (r *couponRepository) FindByCode(ctx context.Context, code string) (domain.Coupon, error) {
	coupon, err := scanCoupon(r.q.QueryRow(ctx,
		`SELECT `+couponColumns+` FROM coupons WHERE upper(code) = $1`, strings.ToUpper(strings.TrimSpace(code))))
	if err != nil {
		return domain.Coupon{}, wrapError("find coupon by code", err)
	}
	return coupon, nil
}

func (r *couponRepository) LockByID(ctx context.Context, couponID string) (domain.Coupon, error) {
	coupon, err := scanCoupon(r.q.QueryRow(ctx, `SELECT `+couponColumns+` FROM coupons WHERE id = $1 FOR UPDATE`, couponID))
	if err != nil {
		return domain.Coupon{}, wrapError("lock coupon", err)
	}
	return coupon, nil
}

func (r *couponRepository) CountRedemptions(ctx context.Context, couponID, customerID string) (int, error) {
	var count int
	err := r.q.QueryRow(ctx,
		`SELECT count(*) FROM coupon_redemptions WHERE coupon_id = $1 AND customer_id = $2`,
		couponID, customerID).Scan(&count)
	if err != nil {
		return 0, wrapError("count redemptions", err)
	}
	return count, nil
}

func (r *couponRepository) Redeem(ctx context.Context, redemption domain.CouponRedemption) error {
	batch := &pgx.Batch{}
	batch.Queue(`INSERT INTO coupon_redemptions (id, coupon_id, customer_id, order_id, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		redemption.ID, redemption.CouponID, redemption.CustomerID, redemption.OrderID, redemption.CreatedAt)
	batch.Queue(`UPDATE coupons SET used_count = used_count + 1 WHERE id = $1`, redemption.CouponID)
	if err := r.q.SendBatch(ctx, batch).Close(); err != nil {
		return wrapError("redeem coupon", err)
	}
	return nil
}

func (r *couponRepository) ReleaseRedemptions(ctx context.Context, orderID string) (int, error) {
	tag, err := r.q.Exec(ctx, `
		WITH released AS (
			DELETE FROM coupon_redemptions WHERE order_id = $1 RETURNING coupon_id
		)
		UPDATE coupons c
		SET used_count = GREATEST(c.used_count - r.n, 0)
		FROM (SELECT coupon_id, count(*) AS n FROM released GROUP BY coupon_id) r
		WHERE c.id = r.coupon_id`, orderID)
	if err != nil {
		return 0, wrapError("release coupon redemptions", err)
	}
	return int(tag.RowsAffected()), nil
}

func scanCoupon(row pgx.Row) (domain.Coupon, error) {
	var (
		c          domain.Coupon
		value      string
		kind       string
		usageLimit *int32
	)
	err := row.Scan(&c.ID, &c.Code, &kind, &value, &c.MinCartValue, &c.MaxDiscount, &c.ValidFrom, &c.ValidTo,
		&c.Active, &usageLimit, &c.UsedCount, &c.PerCustomerLimit)
	if err != nil {
		return domain.Coupon{}, err
	}
	c.DiscountType = domain.DiscountType(kind)
	if c.Value, err = parseDecimal(value); err != nil {
		return domain.Coupon{}, err
	}
	if usageLimit != nil {
		limit := int(*usageLimit)
		c.UsageLimit = &limit
	}
	c.ValidFrom = utcPtr(c.ValidFrom)
	c.ValidTo = utcPtr(c.ValidTo)
	return c, nil
}

const giftCardColumns = `id, code, value, expires_at, is_redeemed, assigned_to_id, redeemed_order_id, redeemed_at`

type giftCardRepository struct {
	q querier
}

func (r *giftCardRepository) FindByID(ctx context.Context, giftCardID string) (domain.GiftCard, error) {
	card, err := scanGiftCard(r.q.QueryRow(ctx, `SELECT `+giftCardColumns+` FROM gift_cards WHERE id = $1`, giftCardID))
	if err != nil {
		return domain.GiftCard{}, wrapError("find gift card", err)
	}
	return card, nil
}

func (r *giftCardRepository) LockByID(ctx context.Context, giftCardID string) (domain.GiftCard, error) {
	card, err := scanGiftCard(r.q.QueryRow(ctx, `SELECT `+giftCardColumns+` FROM gift_cards WHERE id = $1 FOR UPDATE`, giftCardID))
	if err != nil {
		return domain.GiftCard{}, wrapError("lock gift card", err)
	}
	return card, nil
}

func (r *giftCardRepository) MarkRedeemed(ctx context.Context, giftCardID, orderID string, redeemedAt time.Time) error {
	tag, err := r.q.Exec(ctx, `
		UPDATE gift_cards
		SET is_redeemed = TRUE, redeemed_order_id = $2, redeemed_at = $3
		WHERE id = $1 AND NOT is_redeemed`, giftCardID, orderID, redeemedAt)
	if err != nil {
		return wrapError("redeem gift card", err)
	}
	if tag.RowsAffected() == 0 {
		return &repoError{op: "redeem gift card", err: pgx.ErrNoRows, conflict: true}
	}
	return nil
}

func (r *giftCardRepository) Release(ctx context.Context, giftCardID, orderID string) error {
	_, err := r.q.Exec(ctx, `
		UPDATE gift_cards
		SET is_redeemed = FALSE, redeemed_order_id = NULL, redeemed_at = NULL
		WHERE id = $1 AND redeemed_order_id = $2`, giftCardID, orderID)
	if err != nil {
		return wrapError("release gift card", err)
	}
	return nil
}

func scanGiftCard(row pgx.Row) (domain.GiftCard, error) {
	var (
		g             domain.GiftCard
		redeemedOrder *string
	)
	err := row.Scan(&g.ID, &g.Code, &g.Value, &g.ExpiresAt, &g.IsRedeemed, &g.AssignedToID, &redeemedOrder, &g.RedeemedAt)
	if err != nil {
		return domain.GiftCard{}, err
	}
	g.RedeemedOrderID = deref(redeemedOrder)
	g.ExpiresAt = utcPtr(g.ExpiresAt)
	g.RedeemedAt = utcPtr(g.RedeemedAt)
	return g, nil
}
