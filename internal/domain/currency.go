package domain

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// BaseCurrency is the currency every rate in a RateTable is expressed against.
const BaseCurrency = "INR"

// ErrUnknownCurrency is returned when a currency code is missing from the rate table.
var ErrUnknownCurrency = errors.New("currency: code not present in rate table")

// CurrencyRate is one row of the exchange rate table.
type CurrencyRate struct {
	Code         string
	ExchangeRate decimal.Decimal
}

// RateTable maps upper-case ISO codes to their rate relative to BaseCurrency.
type RateTable map[string]decimal.Decimal

// NewRateTable builds a table from stored rows, ignoring non-positive rates.
func NewRateTable(rates []CurrencyRate) RateTable {
	table := make(RateTable, len(rates)+1)
	for _, rate := range rates {
		code := NormalizeCurrency(rate.Code)
		if code == "" || !rate.ExchangeRate.IsPositive() {
			continue
		}
		table[code] = rate.ExchangeRate
	}
	if _, ok := table[BaseCurrency]; !ok {
		table[BaseCurrency] = decimal.NewFromInt(1)
	}
	return table
}

// Supports reports whether the code has a rate.
func (t RateTable) Supports(code string) bool {
	_, ok := t[NormalizeCurrency(code)]
	return ok
}

// Convert converts an amount in minor units from one currency to another:
// amount / rate(from) * rate(to), rounded to two decimal places.
func (t RateTable) Convert(amount int64, from, to string) (int64, error) {
	from = NormalizeCurrency(from)
	to = NormalizeCurrency(to)
	src, ok := t[from]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownCurrency, from)
	}
	dst, ok := t[to]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownCurrency, to)
	}
	if from == to {
		return amount, nil
	}
	major := decimal.New(amount, -2)
	converted := major.Div(src).Mul(dst).Round(2)
	return converted.Shift(2).IntPart(), nil
}

// NormalizeCurrency upper-cases and trims a currency code.
func NormalizeCurrency(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// MinorToDecimal renders a minor-unit amount as a two-place decimal.
func MinorToDecimal(amount int64) decimal.Decimal {
	return decimal.New(amount, -2)
}

// DecimalToMinor converts a major-unit decimal to minor units, rounding to two places.
func DecimalToMinor(value decimal.Decimal) int64 {
	return value.Round(2).Shift(2).IntPart()
}
