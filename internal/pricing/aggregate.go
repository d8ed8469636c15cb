package pricing

import "github.com/shopspring/decimal"

// Totals is the document-level summary of a set of lines.
type Totals struct {
	Subtotal           decimal.Decimal `json:"subtotal"`
	ItemsDiscountTotal decimal.Decimal `json:"items_discount_total"`
	TaxTotal           decimal.Decimal `json:"tax_total"`
	GlobalDiscount     decimal.Decimal `json:"global_discount"`
	GrandTotal         decimal.Decimal `json:"grand_total"`
}

// TaxableTotal is the pre-tax base after item and global discounts.
func (t Totals) TaxableTotal() decimal.Decimal {
	return t.Subtotal.Sub(t.ItemsDiscountTotal).Sub(t.GlobalDiscount)
}

// Aggregate sums the lines into document totals. The global discount is a
// percentage of the subtotal when the percentage is positive, otherwise the
// fixed amount. It reduces the taxable base before tax is computed.
func Aggregate(items []LineInput, globalDiscountPercentage, globalDiscountAmount decimal.Decimal) Totals {
	_, totals := Summarize(items, globalDiscountPercentage, globalDiscountAmount)
	return totals
}

// Summarize is Aggregate that also returns the per-line results, in input order.
// Each line carries its share of the global discount, and its tax and total are
// computed on the reduced base, so the line results add up to the totals.
func Summarize(items []LineInput, globalDiscountPercentage, globalDiscountAmount decimal.Decimal) ([]LineResult, Totals) {
	lines := make([]LineResult, len(items))
	var totals Totals
	base := decimal.Zero
	for i, item := range items {
		line := ComputeLine(item)
		lines[i] = line
		totals.Subtotal = totals.Subtotal.Add(line.Subtotal)
		totals.ItemsDiscountTotal = totals.ItemsDiscountTotal.Add(line.DiscountTotal)
		base = base.Add(line.TaxableBase)
	}

	totals.GlobalDiscount = globalDiscountAmount
	if globalDiscountPercentage.IsPositive() {
		totals.GlobalDiscount = totals.Subtotal.Mul(globalDiscountPercentage).Div(hundred)
	}

	shares := allocate(lines, base, totals.GlobalDiscount)
	for i := range lines {
		line := &lines[i]
		line.GlobalDiscountShare = shares[i]
		line.TaxableBase = line.TaxableBase.Sub(shares[i])
		line.TaxAmount = taxOn(line.TaxableBase, items[i].TaxRate)
		line.LineTotal = line.TaxableBase.Add(line.TaxAmount)
		totals.TaxTotal = totals.TaxTotal.Add(line.TaxAmount)
	}

	totals.GrandTotal = totals.Subtotal.
		Sub(totals.ItemsDiscountTotal).
		Sub(totals.GlobalDiscount).
		Add(totals.TaxTotal)
	return lines, totals
}

// allocate splits the global discount across lines pro rata to their taxable
// base. The last line absorbs the remainder so the shares sum exactly.
func allocate(lines []LineResult, base, discount decimal.Decimal) []decimal.Decimal {
	shares := make([]decimal.Decimal, len(lines))
	if discount.IsZero() || base.IsZero() {
		return shares
	}
	remaining := discount
	for i, line := range lines {
		if i == len(lines)-1 {
			shares[i] = remaining
			break
		}
		share := discount.Mul(line.TaxableBase).Div(base)
		shares[i] = share
		remaining = remaining.Sub(share)
	}
	return shares
}
