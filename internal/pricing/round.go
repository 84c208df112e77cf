package pricing

import "github.com/shopspring/decimal"

const (
	qtyPlaces  = 3
	ratePlaces = 2
)

// RoundQty rounds a quantity for output (3 decimals, half away from zero).
func RoundQty(v float64) float64 {
	return decimal.NewFromFloat(v).Round(qtyPlaces).InexactFloat64()
}

// RoundRate rounds a monetary value for output (2 decimals, half away from zero).
func RoundRate(v float64) float64 {
	return decimal.NewFromFloat(v).Round(ratePlaces).InexactFloat64()
}

func fmtMoney(v float64) string {
	return decimal.NewFromFloat(v).StringFixed(ratePlaces)
}

func fmtQty(v float64) string {
	return decimal.NewFromFloat(v).StringFixed(qtyPlaces)
}
