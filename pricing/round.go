// Package pricing holds price arithmetic and the simulated price source.
//
// All prices are kept at two decimal places. Rounding is half away from
// zero (19.995 -> 20.00, -0.005 -> -0.01), done on decimal values so that a
// float that prints as 19.995 rounds the same way on every run. Rounding an
// already rounded price returns it unchanged.
package pricing

import "github.com/shopspring/decimal"

const places = 2

// Round2 rounds price to two decimal places, half away from zero.
func Round2(price float64) float64 {
	f, _ := decimal.NewFromFloat(price).Round(places).Float64()
	return f
}

// Less reports whether a is strictly cheaper than b once both are rounded to
// two decimals.
func Less(a, b float64) bool {
	return decimal.NewFromFloat(a).Round(places).LessThan(decimal.NewFromFloat(b).Round(places))
}

// DropAmount returns old-new rounded to two decimals.
func DropAmount(oldPrice, newPrice float64) float64 {
	f, _ := decimal.NewFromFloat(oldPrice).Sub(decimal.NewFromFloat(newPrice)).Round(places).Float64()
	return f
}

// DropPercent returns (old-new)/old*100 rounded to two decimals. A
// non-positive old price yields 0.
func DropPercent(oldPrice, newPrice float64) float64 {
	old := decimal.NewFromFloat(oldPrice)
	if !old.IsPositive() {
		return 0
	}
	pct := old.Sub(decimal.NewFromFloat(newPrice)).Div(old).Mul(decimal.NewFromInt(100))
	f, _ := pct.Round(places).Float64()
	return f
}

// ApplyChange returns price*(1+change) rounded to two decimals.
func ApplyChange(price, change float64) float64 {
	next := decimal.NewFromFloat(price).Mul(decimal.NewFromInt(1).Add(decimal.NewFromFloat(change)))
	f, _ := next.Round(places).Float64()
	return f
}
