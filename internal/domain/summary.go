package domain

import "github.com/shopspring/decimal"

// PriceScale is the number of decimal places carried by catalog prices.
const PriceScale = 2

type Summary struct {
	TotalAmount int
	TotalPrice  decimal.Decimal
}

// LineTotal is price × quantity rounded to the catalog price scale.
func LineTotal(price decimal.Decimal, quantity int) decimal.Decimal {
	return price.Mul(decimal.NewFromInt(int64(quantity))).Round(PriceScale)
}
