package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"

	domain "github.com/Gautam0104/jupi-diamond-sub005/internal/domain"
)

const returnColumns = `id, order_id, customer_id, reason, photos, is_approved, approved_at, created_at, updated_at`

type returnRepository struct {
	q querier
}

func (r *returnRepository) Insert(ctx context.Context, req domain.ReturnRequest) error {
	photos := req.Photos
	if photos == nil {
		photos = []string{}
	}
	_, err := r.q.Exec(ctx, `INSERT INTO return_requests (`+returnColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		req.ID, req.OrderID, req.CustomerID, req.Reason, photos, req.IsApproved, req.ApprovedAt, req.CreatedAt, req.UpdatedAt)
	if err != nil {
		return wrapError("insert return request", err)
	}
	return nil
}

func (r *returnRepository) FindByID(ctx context.Context, returnRequestID string) (domain.ReturnRequest, error) {
	req, err := scanReturn(r.q.QueryRow(ctx, `SELECT `+returnColumns+` FROM return_requests WHERE id = $1`, returnRequestID))
	if err != nil {
		return domain.ReturnRequest{}, wrapError("find return request", err)
	}
	return req, nil
}

func (r *returnRepository) FindLatestByOrder(ctx context.Context, orderID string) (domain.ReturnRequest, error) {
	req, err := scanReturn(r.q.QueryRow(ctx, `SELECT `+returnColumns+` FROM return_requests
		WHERE order_id = $1 ORDER BY created_at DESC LIMIT 1`, orderID))
	if err != nil {
		return domain.ReturnRequest{}, wrapError("find return request by order", err)
	}
	return req, nil
}

func (r *returnRepository) Update(ctx context.Context, req domain.ReturnRequest) error {
	tag, err := r.q.Exec(ctx, `
		UPDATE return_requests SET is_approved = $2, approved_at = $3, updated_at = $4
		WHERE id = $1`, req.ID, req.IsApproved, req.ApprovedAt, req.UpdatedAt)
	if err != nil {
		return wrapError("update return request", err)
	}
	if tag.RowsAffected() == 0 {
		return notFound("update return request")
	}
	return nil
}

func scanReturn(row pgx.Row) (domain.ReturnRequest, error) {
	var req domain.ReturnRequest
	if err := row.Scan(&req.ID, &req.OrderID, &req.CustomerID, &req.Reason, &req.Photos,
		&req.IsApproved, &req.ApprovedAt, &req.CreatedAt, &req.UpdatedAt); err != nil {
		return domain.ReturnRequest{}, err
	}
	req.ApprovedAt = utcPtr(req.ApprovedAt)
	req.CreatedAt = req.CreatedAt.UTC()
	req.UpdatedAt = req.UpdatedAt.UTC()
	return req, nil
}
