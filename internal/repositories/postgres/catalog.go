package postgres

import (
	"context"

	domain "github.com/Gautam0104/jupi-diamond-sub005/internal/domain"
)

type addressRepository struct {
	q querier
}

func (r *addressRepository) FindByID(ctx context.Context, addressID string) (domain.Address, error) {
	var a domain.Address
	err := r.q.QueryRow(ctx, `
		SELECT id, customer_id, full_name, phone, line1, line2, landmark, city, state, postal_code, country
		FROM addresses WHERE id = $1`, addressID).Scan(
		&a.ID, &a.CustomerID, &a.FullName, &a.Phone, &a.Line1, &a.Line2, &a.Landmark,
		&a.City, &a.State, &a.PostalCode, &a.Country,
	)
	if err != nil {
		return domain.Address{}, wrapError("find address", err)
	}
	return a, nil
}

type rateRepository struct {
	q querier
}

func (r *rateRepository) List(ctx context.Context) ([]domain.CurrencyRate, error) {
	rows, err := r.q.Query(ctx, `SELECT code, exchange_rate::text FROM currency_rates ORDER BY code`)
	if err != nil {
		return nil, wrapError("list rates", err)
	}
	defer rows.Close()

	var out []domain.CurrencyRate
	for rows.Next() {
		var (
			code string
			raw  string
		)
		if err := rows.Scan(&code, &raw); err != nil {
			return nil, wrapError("scan rate", err)
		}
		rate, err := parseDecimal(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, domain.CurrencyRate{Code: code, ExchangeRate: rate})
	}
	return out, wrapError("list rates", rows.Err())
}
