package pricing

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func samplePurchaseLines() []LineInput {
	return []LineInput{
		{Quantity: dec("2"), UnitPrice: dec("850000"), DiscountAmount: dec("50000")},
		{Quantity: dec("3"), UnitPrice: dec("85000")},
		{Quantity: dec("12"), UnitPrice: dec("20000"), DiscountAmount: dec("20000")},
	}
}

func TestAggregateEmpty(t *testing.T) {
	totals := Aggregate(nil, decimal.Zero, decimal.Zero)
	for _, v := range []decimal.Decimal{totals.Subtotal, totals.ItemsDiscountTotal, totals.TaxTotal, totals.GlobalDiscount, totals.GrandTotal} {
		assert.True(t, v.IsZero())
	}
}

func TestAggregatePurchaseSample(t *testing.T) {
	totals := Aggregate(samplePurchaseLines(), decimal.Zero, decimal.Zero)
	assertDecimal(t, "2195000", totals.Subtotal)
	assertDecimal(t, "70000", totals.ItemsDiscountTotal)
	assertDecimal(t, "0", totals.TaxTotal)
	assertDecimal(t, "2125000", totals.GrandTotal)
}

func TestAggregateSubtotalIsSumOfLines(t *testing.T) {
	items := []LineInput{
		{Quantity: dec("1.5"), UnitPrice: dec("10.10"), TaxRate: dec("19")},
		{Quantity: dec("7"), UnitPrice: dec("3.333"), DiscountPercentage: dec("12.5"), TaxRate: dec("5")},
		{Quantity: dec("1"), UnitPrice: dec("99.99"), DiscountAmount: dec("9.99")},
	}
	lines, totals := Summarize(items, decimal.Zero, decimal.Zero)
	require.Len(t, lines, len(items))

	sum, tax := decimal.Zero, decimal.Zero
	for _, l := range lines {
		sum = sum.Add(l.Subtotal)
		tax = tax.Add(l.TaxAmount)
	}
	assert.True(t, sum.Equal(totals.Subtotal))
	assert.True(t, tax.Equal(totals.TaxTotal))
}

func TestAggregateGlobalPercentageReducesTaxBase(t *testing.T) {
	items := []LineInput{{Quantity: dec("1"), UnitPrice: dec("100000"), TaxRate: dec("19")}}
	totals := Aggregate(items, dec("10"), decimal.Zero)
	assertDecimal(t, "10000", totals.GlobalDiscount)
	assertDecimal(t, "90000", totals.TaxableTotal())
	assertDecimal(t, "17100", totals.TaxTotal)
	assertDecimal(t, "107100", totals.GrandTotal)
}

func TestAggregateGlobalPercentageTakesPrecedence(t *testing.T) {
	items := []LineInput{{Quantity: dec("1"), UnitPrice: dec("200")}}
	totals := Aggregate(items, dec("5"), dec("50"))
	assertDecimal(t, "10", totals.GlobalDiscount)
	assertDecimal(t, "190", totals.GrandTotal)
}

func TestAggregateGlobalAmountAllocatedAcrossRates(t *testing.T) {
	items := []LineInput{
		{Quantity: dec("1"), UnitPrice: dec("300"), TaxRate: dec("10")},
		{Quantity: dec("1"), UnitPrice: dec("100"), TaxRate: dec("0")},
	}
	totals := Aggregate(items, decimal.Zero, dec("40"))
	// 30 of the discount lands on the taxed line: (300-30)*10% = 27.
	assertDecimal(t, "27", totals.TaxTotal)
	assertDecimal(t, "387", totals.GrandTotal)
}

func TestAggregateIsIdempotent(t *testing.T) {
	items := samplePurchaseLines()
	first := Aggregate(items, dec("3"), decimal.Zero)
	second := Aggregate(items, dec("3"), decimal.Zero)
	assert.True(t, first.GrandTotal.Equal(second.GrandTotal))
	assert.True(t, first.TaxTotal.Equal(second.TaxTotal))
	assert.True(t, first.GlobalDiscount.Equal(second.GlobalDiscount))
}

func TestAllocateSharesSumExactly(t *testing.T) {
	lines := []LineResult{
		{TaxableBase: dec("1")},
		{TaxableBase: dec("1")},
		{TaxableBase: dec("1")},
	}
	shares := allocate(lines, dec("3"), dec("10"))
	sum := decimal.Zero
	for _, s := range shares {
		sum = sum.Add(s)
	}
	assertDecimal(t, "10", sum)
}

func TestSummarizeLinesCarryGlobalDiscount(t *testing.T) {
	items := []LineInput{{Quantity: dec("1"), UnitPrice: dec("100000"), TaxRate: dec("19")}}
	lines, totals := Summarize(items, dec("10"), decimal.Zero)
	require.Len(t, lines, 1)

	assertDecimal(t, "10000", lines[0].GlobalDiscountShare)
	assertDecimal(t, "90000", lines[0].TaxableBase)
	assertDecimal(t, "17100", lines[0].TaxAmount)
	assertDecimal(t, "107100", lines[0].LineTotal)
	assertDecimal(t, "17100", totals.TaxTotal)
}

func TestSummarizeLineTaxAddsUpWithGlobalDiscount(t *testing.T) {
	items := []LineInput{
		{Quantity: dec("3"), UnitPrice: dec("33.33"), TaxRate: dec("19")},
		{Quantity: dec("1"), UnitPrice: dec("250"), DiscountPercentage: dec("7"), TaxRate: dec("5")},
		{Quantity: dec("2"), UnitPrice: dec("19.99"), DiscountAmount: dec("3")},
	}
	for _, global := range [][2]string{{"12.5", "0"}, {"0", "41.7"}} {
		lines, totals := Summarize(items, dec(global[0]), dec(global[1]))

		tax, lineTotal, shares := decimal.Zero, decimal.Zero, decimal.Zero
		for _, l := range lines {
			tax = tax.Add(l.TaxAmount)
			lineTotal = lineTotal.Add(l.LineTotal)
			shares = shares.Add(l.GlobalDiscountShare)
			assert.True(t, l.Subtotal.Sub(l.DiscountTotal).Sub(l.GlobalDiscountShare).Equal(l.TaxableBase))
		}
		assert.True(t, tax.Equal(totals.TaxTotal), "tax %s vs %s", tax, totals.TaxTotal)
		assert.True(t, lineTotal.Equal(totals.GrandTotal), "lines %s vs %s", lineTotal, totals.GrandTotal)
		assert.True(t, shares.Equal(totals.GlobalDiscount))
	}
}
