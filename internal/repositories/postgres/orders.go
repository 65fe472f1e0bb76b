package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	domain "github.com/Gautam0104/jupi-diamond-sub005/internal/domain"
	"github.com/Gautam0104/jupi-diamond-sub005/internal/platform/pagination"
	"github.com/Gautam0104/jupi-diamond-sub005/internal/repositories"
)

const orderColumns = `id, order_number, customer_id, status, payment_status, payment_method, is_paid, currency,
	total_amount, gst_amount, discount_amount, final_amount,
	total_amount_inr, gst_amount_inr, discount_amount_inr, final_amount_inr,
	total_amount_usd, gst_amount_usd, discount_amount_usd, final_amount_usd,
	address, coupon, gift_card, gateway_order_id, gateway_payment_id,
	refund_amount, refund_id, refund_reason, refunded_at,
	cancel_reason, paid_at, cancelled_at, created_at, updated_at`

const orderItemColumns = `id, order_id, variant_id, quantity, price_at_purchase, gst, discount_value, total, status, snapshot`

type orderRepository struct {
	q querier
}

func (r *orderRepository) Insert(ctx context.Context, order domain.Order) error {
	address, err := json.Marshal(order.Address)
	if err != nil {
		return fmt.Errorf("postgres: encode address: %w", err)
	}
	coupon, err := marshalNullable(order.Coupon)
	if err != nil {
		return err
	}
	giftCard, err := marshalNullable(order.GiftCard)
	if err != nil {
		return err
	}

	batch := &pgx.Batch{}
	batch.Queue(`INSERT INTO orders (`+orderColumns+`) VALUES (
		$1, $2, $3, $4, $5, $6, $7, $8,
		$9, $10, $11, $12,
		$13, $14, $15, $16,
		$17, $18, $19, $20,
		$21, $22, $23, $24, $25,
		$26, $27, $28, $29,
		$30, $31, $32, $33, $34)`,
		order.ID, order.OrderNumber, order.CustomerID, order.Status, order.PaymentStatus, order.PaymentMethod, order.IsPaid, order.Currency,
		order.Amounts.Total, order.Amounts.GST, order.Amounts.Discount, order.Amounts.Final,
		order.AmountsINR.Total, order.AmountsINR.GST, order.AmountsINR.Discount, order.AmountsINR.Final,
		order.AmountsUSD.Total, order.AmountsUSD.GST, order.AmountsUSD.Discount, order.AmountsUSD.Final,
		address, coupon, giftCard, order.GatewayOrderID, order.GatewayPaymentID,
		refundAmount(order.Refund), refundString(order.Refund, false),
		refundString(order.Refund, true), refundedAt(order.Refund),
		order.CancelReason, order.PaidAt, order.CancelledAt, order.CreatedAt, order.UpdatedAt,
	)
	for i, item := range order.Items {
		snapshot, err := json.Marshal(item.Snapshot)
		if err != nil {
			return fmt.Errorf("postgres: encode snapshot: %w", err)
		}
		batch.Queue(`INSERT INTO order_items (id, order_id, variant_id, position, quantity, price_at_purchase,
			gst, discount_value, total, status, snapshot)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
			item.ID, order.ID, item.VariantID, i, item.Quantity, item.PriceAtPurchase,
			item.GST, item.DiscountValue, item.Total, item.Status, snapshot)
	}
	if err := r.q.SendBatch(ctx, batch).Close(); err != nil {
		return wrapError("insert order", err)
	}
	return nil
}

func (r *orderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	order, err := scanOrder(r.q.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, orderID))
	if err != nil {
		return domain.Order{}, wrapError("find order", err)
	}
	return r.loadDetail(ctx, order)
}

func (r *orderRepository) LockByID(ctx context.Context, orderID string) (domain.Order, error) {
	order, err := scanOrder(r.q.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1 FOR UPDATE`, orderID))
	if err != nil {
		return domain.Order{}, wrapError("lock order", err)
	}
	if order.Items, err = r.listItems(ctx, order.ID); err != nil {
		return domain.Order{}, err
	}
	return order, nil
}

func (r *orderRepository) FindByGatewayOrderID(ctx context.Context, gatewayOrderID string) (domain.Order, error) {
	if strings.TrimSpace(gatewayOrderID) == "" {
		return domain.Order{}, notFound("find order by gateway id")
	}
	order, err := scanOrder(r.q.QueryRow(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE gateway_order_id = $1`, gatewayOrderID))
	if err != nil {
		return domain.Order{}, wrapError("find order by gateway id", err)
	}
	return r.loadDetail(ctx, order)
}

func (r *orderRepository) Update(ctx context.Context, order domain.Order) error {
	tag, err := r.q.Exec(ctx, `
		UPDATE orders SET
			status = $2, payment_status = $3, is_paid = $4,
			gateway_order_id = $5, gateway_payment_id = $6,
			refund_amount = $7, refund_id = $8, refund_reason = $9, refunded_at = $10,
			cancel_reason = $11, paid_at = $12, cancelled_at = $13, updated_at = $14
		WHERE id = $1`,
		order.ID, order.Status, order.PaymentStatus, order.IsPaid,
		order.GatewayOrderID, order.GatewayPaymentID,
		refundAmount(order.Refund), refundString(order.Refund, false),
		refundString(order.Refund, true), refundedAt(order.Refund),
		order.CancelReason, order.PaidAt, order.CancelledAt, order.UpdatedAt,
	)
	if err != nil {
		return wrapError("update order", err)
	}
	if tag.RowsAffected() == 0 {
		return notFound("update order")
	}
	return nil
}

func (r *orderRepository) UpdateItemStatus(ctx context.Context, orderID string, status domain.OrderItemStatus) error {
	if _, err := r.q.Exec(ctx, `UPDATE order_items SET status = $2 WHERE order_id = $1`, orderID, status); err != nil {
		return wrapError("update order items", err)
	}
	return nil
}

func (r *orderRepository) List(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	cursor, err := pagination.DecodeToken(filter.Pagination.PageToken)
	if err != nil {
		return domain.CursorPage[domain.Order]{}, err
	}
	size := filter.Pagination.PageSize
	if size <= 0 {
		size = pagination.DefaultPageSize
	}

	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}
	if filter.CustomerID != "" {
		where = append(where, "customer_id = "+arg(filter.CustomerID))
	}
	if len(filter.Status) > 0 {
		statuses := make([]string, len(filter.Status))
		for i, s := range filter.Status {
			statuses[i] = string(s)
		}
		where = append(where, "status = ANY("+arg(statuses)+")")
	}
	if len(filter.PaymentStatus) > 0 {
		statuses := make([]string, len(filter.PaymentStatus))
		for i, s := range filter.PaymentStatus {
			statuses[i] = string(s)
		}
		where = append(where, "payment_status = ANY("+arg(statuses)+")")
	}
	if filter.DateRange.From != nil {
		where = append(where, "created_at >= "+arg(*filter.DateRange.From))
	}
	if filter.DateRange.To != nil {
		where = append(where, "created_at <= "+arg(*filter.DateRange.To))
	}
	if !cursor.IsZero() {
		where = append(where, "(created_at, id) < ("+arg(cursor.CreatedAt)+", "+arg(cursor.ID)+")")
	}

	query := `SELECT ` + orderColumns + ` FROM orders`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC LIMIT " + arg(size+1)

	orders, err := r.queryOrders(ctx, query, args...)
	if err != nil {
		return domain.CursorPage[domain.Order]{}, err
	}

	page := domain.CursorPage[domain.Order]{Items: orders}
	if len(orders) > size {
		page.Items = orders[:size]
		last := page.Items[size-1]
		token, err := pagination.EncodeToken(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
		if err != nil {
			return domain.CursorPage[domain.Order]{}, err
		}
		page.NextPageToken = token
	}
	for i := range page.Items {
		if page.Items[i].Items, err = r.listItems(ctx, page.Items[i].ID); err != nil {
			return domain.CursorPage[domain.Order]{}, err
		}
	}
	return page, nil
}

func (r *orderRepository) ListStalePending(ctx context.Context, createdBefore time.Time, limit int) ([]domain.Order, error) {
	if limit <= 0 {
		limit = 100
	}
	return r.queryOrders(ctx, `SELECT `+orderColumns+` FROM orders
		WHERE status = $1 AND NOT is_paid AND payment_method = ANY($2) AND created_at < $3
		ORDER BY created_at
		LIMIT $4`,
		domain.OrderStatusPending,
		[]string{string(domain.PaymentMethodRazorpay), string(domain.PaymentMethodPayPal)},
		createdBefore, limit)
}

func (r *orderRepository) queryOrders(ctx context.Context, query string, args ...any) ([]domain.Order, error) {
	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, wrapError("list orders", err)
	}
	defer rows.Close()

	var out []domain.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, wrapError("scan order", err)
		}
		out = append(out, order)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapError("list orders", err)
	}
	return out, nil
}

func (r *orderRepository) loadDetail(ctx context.Context, order domain.Order) (domain.Order, error) {
	var err error
	if order.Items, err = r.listItems(ctx, order.ID); err != nil {
		return domain.Order{}, err
	}
	if order.StatusHistory, err = (&statusHistoryRepository{q: r.q}).ListByOrder(ctx, order.ID); err != nil {
		return domain.Order{}, err
	}
	if order.Payments, err = (&paymentRepository{q: r.q}).ListByOrder(ctx, order.ID); err != nil {
		return domain.Order{}, err
	}
	ret, err := (&returnRepository{q: r.q}).FindLatestByOrder(ctx, order.ID)
	switch {
	case err == nil:
		order.ReturnRequest = &ret
	case isNotFound(err):
	default:
		return domain.Order{}, err
	}
	return order, nil
}

func (r *orderRepository) listItems(ctx context.Context, orderID string) ([]domain.OrderItem, error) {
	rows, err := r.q.Query(ctx, `SELECT `+orderItemColumns+` FROM order_items WHERE order_id = $1 ORDER BY position`, orderID)
	if err != nil {
		return nil, wrapError("list order items", err)
	}
	defer rows.Close()

	var items []domain.OrderItem
	for rows.Next() {
		var (
			item     domain.OrderItem
			snapshot []byte
		)
		if err := rows.Scan(&item.ID, &item.OrderID, &item.VariantID, &item.Quantity, &item.PriceAtPurchase,
			&item.GST, &item.DiscountValue, &item.Total, &item.Status, &snapshot); err != nil {
			return nil, wrapError("scan order item", err)
		}
		if err := json.Unmarshal(snapshot, &item.Snapshot); err != nil {
			return nil, fmt.Errorf("postgres: decode snapshot: %w", err)
		}
		items = append(items, item)
	}
	return items, wrapError("list order items", rows.Err())
}

func scanOrder(row pgx.Row) (domain.Order, error) {
	var (
		o                         domain.Order
		address, coupon, giftCard []byte
		refundAmt                 *int64
		refundID, refundReason    string
		refundedAtValue           *time.Time
	)
	err := row.Scan(
		&o.ID, &o.OrderNumber, &o.CustomerID, &o.Status, &o.PaymentStatus, &o.PaymentMethod, &o.IsPaid, &o.Currency,
		&o.Amounts.Total, &o.Amounts.GST, &o.Amounts.Discount, &o.Amounts.Final,
		&o.AmountsINR.Total, &o.AmountsINR.GST, &o.AmountsINR.Discount, &o.AmountsINR.Final,
		&o.AmountsUSD.Total, &o.AmountsUSD.GST, &o.AmountsUSD.Discount, &o.AmountsUSD.Final,
		&address, &coupon, &giftCard, &o.GatewayOrderID, &o.GatewayPaymentID,
		&refundAmt, &refundID, &refundReason, &refundedAtValue,
		&o.CancelReason, &o.PaidAt, &o.CancelledAt, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return domain.Order{}, err
	}
	if err := json.Unmarshal(address, &o.Address); err != nil {
		return domain.Order{}, fmt.Errorf("decode address: %w", err)
	}
	if len(coupon) > 0 {
		o.Coupon = &domain.AppliedCoupon{}
		if err := json.Unmarshal(coupon, o.Coupon); err != nil {
			return domain.Order{}, fmt.Errorf("decode coupon: %w", err)
		}
	}
	if len(giftCard) > 0 {
		o.GiftCard = &domain.AppliedGiftCard{}
		if err := json.Unmarshal(giftCard, o.GiftCard); err != nil {
			return domain.Order{}, fmt.Errorf("decode gift card: %w", err)
		}
	}
	if refundAmt != nil {
		o.Refund = &domain.Refund{Amount: *refundAmt, RefundID: refundID, Reason: refundReason}
		if refundedAtValue != nil {
			o.Refund.RefundedAt = refundedAtValue.UTC()
		}
	}
	o.PaidAt = utcPtr(o.PaidAt)
	o.CancelledAt = utcPtr(o.CancelledAt)
	o.CreatedAt = o.CreatedAt.UTC()
	o.UpdatedAt = o.UpdatedAt.UTC()
	return o, nil
}

func marshalNullable[T any](v *T) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("postgres: encode %T: %w", v, err)
	}
	return data, nil
}

func refundAmount(r *domain.Refund) *int64 {
	if r == nil {
		return nil
	}
	return &r.Amount
}

func refundString(r *domain.Refund, reason bool) string {
	switch {
	case r == nil:
		return ""
	case reason:
		return r.Reason
	default:
		return r.RefundID
	}
}

func refundedAt(r *domain.Refund) *time.Time {
	if r == nil || r.RefundedAt.IsZero() {
		return nil
	}
	return &r.RefundedAt
}

func isNotFound(err error) bool {
	var re *repoError
	return errors.As(err, &re) && re.notFound
}
