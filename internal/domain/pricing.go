package domain

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var sqMmPerSqM = decimal.NewFromInt(1_000_000)

// Validate checks the mode-specific shape of a line. A line must use exactly
// one pricing mode's fields.
func (l CartLine) Validate() error {
	if l.ProductID == "" {
		return errors.New("cart line requires a product id")
	}
	if l.Quantity <= 0 {
		return fmt.Errorf("cart line quantity must be positive, got %d", l.Quantity)
	}
	switch l.Mode {
	case PricingModeFixed:
		if l.UnitPrice.IsNegative() || l.UnitTax.IsNegative() {
			return errors.New("fixed-mode line requires non-negative unit price and tax")
		}
		if l.HeightMm != 0 || l.LengthMm != 0 || !l.RatePerSqM.IsZero() {
			return errors.New("fixed-mode line must not carry dimension pricing fields")
		}
	case PricingModeVariableDimension:
		if l.HeightMm <= 0 || l.LengthMm <= 0 {
			return errors.New("variable-dimension line requires positive height and length")
		}
		if !l.RatePerSqM.IsPositive() {
			return errors.New("variable-dimension line requires a positive rate per square metre")
		}
		if !l.UnitPrice.IsZero() || !l.UnitTax.IsZero() {
			return errors.New("variable-dimension line must not carry fixed pricing fields")
		}
	default:
		return fmt.Errorf("unknown pricing mode %q", l.Mode)
	}
	return nil
}

// LineAmount is the line's contribution to the subtotal, rounded half-up to
// two places. For variable-dimension lines the per-piece price is rounded
// before multiplying by quantity so the buyer sees the same piece price at any
// quantity.
func (l CartLine) LineAmount() Money {
	switch l.Mode {
	case PricingModeFixed:
		return l.UnitPrice.MulInt(l.Quantity).Round2()
	case PricingModeVariableDimension:
		area := decimal.NewFromInt(l.HeightMm).Mul(decimal.NewFromInt(l.LengthMm)).Div(sqMmPerSqM)
		piece := l.RatePerSqM.MulDecimal(area).Round2()
		return piece.MulInt(l.Quantity).Round2()
	default:
		return ZeroMoney(l.UnitPrice.Currency())
	}
}

// LineTax is the line's contribution to the TAX component. Variable-dimension
// rates already include tax, so those lines contribute nothing here.
func (l CartLine) LineTax() Money {
	if l.Mode != PricingModeFixed {
		return ZeroMoney(l.RatePerSqM.Currency())
	}
	return l.UnitTax.MulInt(l.Quantity).Round2()
}
