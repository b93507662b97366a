package domain

import "github.com/shopspring/decimal"

// MoneyPlaces is the scale of every stored price column.
const MoneyPlaces = 2

// IsCents reports whether d fits a stored price without rounding.
func IsCents(d decimal.Decimal) bool {
	return d.Equal(d.Truncate(MoneyPlaces))
}
