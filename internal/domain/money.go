package domain

import (
	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
)

type Money struct {
	Amount   decimal.Decimal
	Currency currency.Unit
}

// LineAmount is the pricing input of a single cart or order line.
type LineAmount struct {
	UnitPrice decimal.Decimal
	Quantity  int
}

type Totals struct {
	Subtotal  decimal.Decimal
	Tax       decimal.Decimal
	Total     decimal.Decimal
	ItemCount int
}

// moneyScale is the number of decimal places monetary results are rounded to.
// The same rounding is applied at cart recompute and at checkout, so cart and
// order totals always agree.
const moneyScale = 2

// ComputeTotals derives subtotal, tax, total and item count from the line
// amounts. The taxable base is the subtotal minus discount, clamped to zero:
// a discount larger than the subtotal never produces negative tax. The total
// is clamped to zero as well.
//
// Pure function, no I/O. Callers must re-run it on every mutation so persisted
// totals are never computed from stale inputs.
func ComputeTotals(lines []LineAmount, discount, shippingCost, taxRate decimal.Decimal) Totals {
	subtotal := decimal.Zero
	itemCount := 0

	for _, line := range lines {
		qty := decimal.NewFromInt(int64(line.Quantity))
		subtotal = subtotal.Add(line.UnitPrice.Mul(qty))
		itemCount += line.Quantity
	}

	taxableBase := subtotal.Sub(discount)
	if taxableBase.IsNegative() {
		taxableBase = decimal.Zero
	}

	tax := taxableBase.Mul(taxRate).Round(moneyScale)

	total := taxableBase.Add(tax).Add(shippingCost)
	if total.IsNegative() {
		total = decimal.Zero
	}

	return Totals{
		Subtotal:  subtotal.Round(moneyScale),
		Tax:       tax,
		Total:     total.Round(moneyScale),
		ItemCount: itemCount,
	}
}
