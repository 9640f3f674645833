package payments

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Currencies Stripe charges in whole units.
var zeroDecimalCurrencies = map[string]bool{
	"BIF": true, "CLP": true, "DJF": true, "GNF": true, "JPY": true, "KMF": true,
	"KRW": true, "MGA": true, "PYG": true, "RWF": true, "UGX": true, "VND": true,
	"VUV": true, "XAF": true, "XOF": true, "XPF": true,
}

// IsZeroDecimal reports whether currency has no minor unit.
func IsZeroDecimal(currency string) bool {
	return zeroDecimalCurrencies[strings.ToUpper(strings.TrimSpace(currency))]
}

// ToMinorUnits converts an amount to the integer Stripe expects for
// currency: cents for most currencies, whole units for zero-decimal ones.
// Half units round away from zero.
func ToMinorUnits(amount decimal.Decimal, currency string) (int64, error) {
	if !IsZeroDecimal(currency) {
		amount = amount.Mul(decimal.NewFromInt(100))
	}
	rounded := amount.Round(0)
	if !rounded.IsInteger() || rounded.GreaterThan(decimal.NewFromInt(1<<62)) {
		return 0, fmt.Errorf("amount %s %s is out of range", amount.String(), currency)
	}
	return rounded.IntPart(), nil
}
