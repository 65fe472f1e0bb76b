package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	domain "github.com/Gautam0104/jupi-diamond-sub005/internal/domain"
)

type statusHistoryRepository struct {
	q querier
}

func (r *statusHistoryRepository) Upsert(ctx context.Context, entry domain.OrderStatusHistory) (domain.OrderStatusHistory, error) {
	var out domain.OrderStatusHistory
	err := r.q.QueryRow(ctx, `
		INSERT INTO order_status_history (id, order_id, status, note, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
		ON CONFLICT (order_id, status) DO UPDATE SET updated_at = EXCLUDED.updated_at
		RETURNING id, order_id, status, note, created_at, updated_at`,
		entry.ID, entry.OrderID, entry.Status, entry.Note, entry.UpdatedAt,
	).Scan(&out.ID, &out.OrderID, &out.Status, &out.Note, &out.CreatedAt, &out.UpdatedAt)
	if err != nil {
		return domain.OrderStatusHistory{}, wrapError("upsert status history", err)
	}
	out.CreatedAt = out.CreatedAt.UTC()
	out.UpdatedAt = out.UpdatedAt.UTC()
	return out, nil
}

func (r *statusHistoryRepository) ListByOrder(ctx context.Context, orderID string) ([]domain.OrderStatusHistory, error) {
	rows, err := r.q.Query(ctx, `
		SELECT id, order_id, status, note, created_at, updated_at
		FROM order_status_history WHERE order_id = $1 ORDER BY created_at, id`, orderID)
	if err != nil {
		return nil, wrapError("list status history", err)
	}
	defer rows.Close()

	var out []domain.OrderStatusHistory
	for rows.Next() {
		var h domain.OrderStatusHistory
		if err := rows.Scan(&h.ID, &h.OrderID, &h.Status, &h.Note, &h.CreatedAt, &h.UpdatedAt); err != nil {
			return nil, wrapError("scan status history", err)
		}
		h.CreatedAt = h.CreatedAt.UTC()
		h.UpdatedAt = h.UpdatedAt.UTC()
		out = append(out, h)
	}
	return out, wrapError("list status history", rows.Err())
}

const paymentColumns = `id, order_id, transaction_id, attempt_number, provider, status, amount, currency,
	gateway_order_id, gateway_payment_id, payload, failure_reason, refunded, refunded_at, created_at, updated_at`

type paymentRepository struct {
	q querier
}

func (r *paymentRepository) Insert(ctx context.Context, p domain.PaymentHistory) error {
	payload, err := encodePayload(p.Payload)
	if err != nil {
		return err
	}
	_, err = r.q.Exec(ctx, `INSERT INTO payment_history (`+paymentColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		p.ID, p.OrderID, p.TransactionID, p.AttemptNumber, p.Provider, p.Status, p.Amount, p.Currency,
		p.GatewayOrderID, p.GatewayPaymentID, payload, p.FailureReason, p.Refunded, p.RefundedAt, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return wrapError("insert payment", err)
	}
	return nil
}

func (r *paymentRepository) Update(ctx context.Context, p domain.PaymentHistory) error {
	payload, err := encodePayload(p.Payload)
	if err != nil {
		return err
	}
	tag, err := r.q.Exec(ctx, `
		UPDATE payment_history SET
			status = $2, gateway_order_id = $3, gateway_payment_id = $4, payload = $5,
			failure_reason = $6, refunded = $7, refunded_at = $8, updated_at = $9
		WHERE id = $1`,
		p.ID, p.Status, p.GatewayOrderID, p.GatewayPaymentID, payload,
		p.FailureReason, p.Refunded, p.RefundedAt, p.UpdatedAt)
	if err != nil {
		return wrapError("update payment", err)
	}
	if tag.RowsAffected() == 0 {
		return notFound("update payment")
	}
	return nil
}

func (r *paymentRepository) CountByOrder(ctx context.Context, orderID string) (int, error) {
	var count int
	if err := r.q.QueryRow(ctx, `SELECT count(*) FROM payment_history WHERE order_id = $1`, orderID).Scan(&count); err != nil {
		return 0, wrapError("count payments", err)
	}
	return count, nil
}

func (r *paymentRepository) ListByOrder(ctx context.Context, orderID string) ([]domain.PaymentHistory, error) {
	rows, err := r.q.Query(ctx, `SELECT `+paymentColumns+` FROM payment_history
		WHERE order_id = $1 ORDER BY attempt_number`, orderID)
	if err != nil {
		return nil, wrapError("list payments", err)
	}
	defer rows.Close()

	var out []domain.PaymentHistory
	for rows.Next() {
		var (
			p       domain.PaymentHistory
			payload []byte
		)
		if err := rows.Scan(&p.ID, &p.OrderID, &p.TransactionID, &p.AttemptNumber, &p.Provider, &p.Status, &p.Amount,
			&p.Currency, &p.GatewayOrderID, &p.GatewayPaymentID, &payload, &p.FailureReason, &p.Refunded,
			&p.RefundedAt, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, wrapError("scan payment", err)
		}
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &p.Payload); err != nil {
				return nil, fmt.Errorf("postgres: decode payment payload: %w", err)
			}
		}
		p.RefundedAt = utcPtr(p.RefundedAt)
		p.CreatedAt = p.CreatedAt.UTC()
		p.UpdatedAt = p.UpdatedAt.UTC()
		out = append(out, p)
	}
	return out, wrapError("list payments", rows.Err())
}

func (r *paymentRepository) MarkRefunded(ctx context.Context, orderID string, refundedAt time.Time) (int, error) {
	tag, err := r.q.Exec(ctx, `
		UPDATE payment_history SET refunded = TRUE, refunded_at = $2, updated_at = $2
		WHERE order_id = $1 AND NOT refunded`, orderID, refundedAt)
	if err != nil {
		return 0, wrapError("mark payments refunded", err)
	}
	return int(tag.RowsAffected()), nil
}

func encodePayload(payload map[string]any) ([]byte, error) {
	if payload == nil {
		return []byte("{}"), nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("postgres: encode payment payload: %w", err)
	}
	return data, nil
}
