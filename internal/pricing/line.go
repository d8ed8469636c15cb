// Package pricing computes line and document totals for sales and purchase
// documents. All amounts are decimal; nothing is rounded until RoundMoney.
package pricing

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// ErrInvalidLine reports a line input outside its accepted ranges.
var ErrInvalidLine = errors.New("pricing: invalid line")

// LineInput holds the editable fields of one document row.
type LineInput struct {
	Quantity           decimal.Decimal `json:"quantity"`
	UnitPrice          decimal.Decimal `json:"unit_price"`
	DiscountPercentage decimal.Decimal `json:"discount_percentage"`
	DiscountAmount     decimal.Decimal `json:"discount_amount"`
	TaxRate            decimal.Decimal `json:"tax_rate"`
}

// LineResult holds the values derived from a LineInput.
// GlobalDiscountShare is zero from ComputeLine; Summarize fills it with the
// line's part of the document discount and reduces TaxableBase by it.
type LineResult struct {
	Subtotal            decimal.Decimal `json:"subtotal"`
	DiscountTotal       decimal.Decimal `json:"discount_total"`
	GlobalDiscountShare decimal.Decimal `json:"global_discount_share"`
	TaxableBase         decimal.Decimal `json:"taxable_base"`
	TaxAmount           decimal.Decimal `json:"tax_amount"`
	LineTotal           decimal.Decimal `json:"line_total"`
}

// ComputeLine derives subtotal, discount, taxable base, tax and total for a line.
// A positive discount percentage takes precedence over the fixed amount. A zero
// or negative tax rate produces no tax. Inputs are not validated here.
func ComputeLine(in LineInput) LineResult {
	subtotal := in.Quantity.Mul(in.UnitPrice)

	discount := in.DiscountAmount
	if in.DiscountPercentage.IsPositive() {
		discount = subtotal.Mul(in.DiscountPercentage).Div(hundred)
	}

	base := subtotal.Sub(discount)
	tax := taxOn(base, in.TaxRate)

	return LineResult{
		Subtotal:      subtotal,
		DiscountTotal: discount,
		TaxableBase:   base,
		TaxAmount:     tax,
		LineTotal:     base.Add(tax),
	}
}

func taxOn(base, rate decimal.Decimal) decimal.Decimal {
	if !rate.IsPositive() {
		return decimal.Zero
	}
	return base.Mul(rate).Div(hundred)
}

// Validate checks the ranges a form layer would enforce before a line is
// accepted for persistence.
func (in LineInput) Validate() error {
	switch {
	case !in.Quantity.IsPositive():
		return fmt.Errorf("%w: quantity must be greater than zero", ErrInvalidLine)
	case in.UnitPrice.IsNegative():
		return fmt.Errorf("%w: unit price must not be negative", ErrInvalidLine)
	case in.DiscountPercentage.IsNegative() || in.DiscountPercentage.GreaterThan(hundred):
		return fmt.Errorf("%w: discount percentage must be between 0 and 100", ErrInvalidLine)
	case in.DiscountAmount.IsNegative():
		return fmt.Errorf("%w: discount amount must not be negative", ErrInvalidLine)
	case in.TaxRate.IsNegative() || in.TaxRate.GreaterThan(hundred):
		return fmt.Errorf("%w: tax rate must be between 0 and 100", ErrInvalidLine)
	}
	return nil
}

// RoundMoney rounds an amount half away from zero to two places. Use it only
// when persisting or displaying.
func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}
