package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestValidAmount(t *testing.T) {
	assert.False(t, ValidAmount(0))
	assert.False(t, ValidAmount(-3))
	assert.True(t, ValidAmount(MinAmountProduct))
	assert.True(t, ValidAmount(MaxAmountProduct))
	assert.False(t, ValidAmount(MaxAmountProduct+1))
}

func TestLineTotal_NoFloatDrift(t *testing.T) {
	price := decimal.RequireFromString("0.10")
	total := LineTotal(price, 3)
	assert.Equal(t, "0.30", total.StringFixed(PriceScale))

	total = LineTotal(decimal.RequireFromString("5.50"), 2)
	assert.True(t, total.Equal(decimal.RequireFromString("11.00")))
}
