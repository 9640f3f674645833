// Package billing holds invoice arithmetic, numbering and the invoice lifecycle.
package billing

import "github.com/shopspring/decimal"

var (
	hundred = decimal.NewFromInt(100)
	half    = decimal.NewFromFloat(0.5)
)

// LineInput is the arithmetic part of an invoice line.
type LineInput struct {
	Qty  decimal.Decimal `json:"qty"`
	Rate decimal.Decimal `json:"rate"`
}

// Totals is the rounded result of CalculateTotals.
type Totals struct {
	Subtotal decimal.Decimal `json:"subtotal"`
	Tax      decimal.Decimal `json:"tax"`
	Discount decimal.Decimal `json:"discount"`
	Total    decimal.Decimal `json:"total"`
}

// CalculateTotals sums the lines and applies tax and discount.
//
// Tax is taken from the unrounded subtotal and the total from the unrounded
// subtotal and tax; each output is rounded to cents on its own. Inputs are not
// validated, so negative quantities, rates and totals pass through.
func CalculateTotals(lines []LineInput, taxRate, discount decimal.Decimal) Totals {
	subtotal := decimal.Zero
	for _, line := range lines {
		subtotal = subtotal.Add(line.Qty.Mul(line.Rate))
	}
	tax := subtotal.Mul(taxRate.Div(hundred))
	total := subtotal.Add(tax).Sub(discount)

	return Totals{
		Subtotal: RoundCents(subtotal),
		Tax:      RoundCents(tax),
		Discount: RoundCents(discount),
		Total:    RoundCents(total),
	}
}

// LineAmount is the rounded qty*rate of a single line.
func LineAmount(qty, rate decimal.Decimal) decimal.Decimal {
	return RoundCents(qty.Mul(rate))
}

// RoundCents rounds half up toward positive infinity at two decimals.
func RoundCents(d decimal.Decimal) decimal.Decimal {
	return d.Mul(hundred).Add(half).Floor().Div(hundred).Round(2)
}
