package money

import (
	"github.com/shopspring/decimal"

	apperrors "github.com/platewise/cartpay/pkg/errors"
)

// Line is the minimal pricing view of a cart line. Unit prices are in
// currency minor units (paise, cents); tax rates are flat percentages.
type Line struct {
	UnitPrice      int64
	Quantity       int
	TaxRatePercent decimal.Decimal
}

// Totals holds the derived cart totals, all in minor units.
type Totals struct {
	Subtotal   int64 `json:"subtotal"`
	TotalTax   int64 `json:"total_tax"`
	GrandTotal int64 `json:"grand_total"`
}

var oneHundred = decimal.NewFromInt(100)

// LineSubtotal returns unitPrice * quantity. Negative price or quantity
// is rejected with InvalidAmount.
func LineSubtotal(unitPrice int64, quantity int) (int64, error) {
	if unitPrice < 0 {
		return 0, apperrors.InvalidAmount("unit price must not be negative")
	}
	if quantity < 0 {
		return 0, apperrors.InvalidAmount("quantity must not be negative")
	}
	return unitPrice * int64(quantity), nil
}

// LineTax returns the tax for one line, rounded half-up to the nearest
// minor unit: unitPrice * quantity * taxRatePercent / 100.
func LineTax(unitPrice int64, quantity int, taxRatePercent decimal.Decimal) (int64, error) {
	subtotal, err := LineSubtotal(unitPrice, quantity)
	if err != nil {
		return 0, err
	}
	if taxRatePercent.IsNegative() {
		return 0, apperrors.InvalidAmount("tax rate must not be negative")
	}

	// decimal.Round rounds half away from zero, which is half-up for the
	// non-negative values permitted here.
	tax := decimal.NewFromInt(subtotal).
		Mul(taxRatePercent).
		Div(oneHundred).
		Round(0)

	return tax.IntPart(), nil
}

// CartTotals folds the given lines into subtotal, total tax, and grand
// total. GrandTotal is always Subtotal + TotalTax.
func CartTotals(lines []Line) (Totals, error) {
	var t Totals
	for _, l := range lines {
		sub, err := LineSubtotal(l.UnitPrice, l.Quantity)
		if err != nil {
			return Totals{}, err
		}
		tax, err := LineTax(l.UnitPrice, l.Quantity, l.TaxRatePercent)
		if err != nil {
			return Totals{}, err
		}
		t.Subtotal += sub
		t.TotalTax += tax
	}
	t.GrandTotal = t.Subtotal + t.TotalTax
	return t, nil
}
