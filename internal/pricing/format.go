package pricing

import (
	"fmt"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

// FormatMoney renders an amount with the currency symbol and the grouping and
// decimal separators of lang. The amount is rounded to the currency's standard
// scale. An unparsable lang falls back to English.
func FormatMoney(amount decimal.Decimal, currencyCode, lang string) (string, error) {
	unit, err := currency.ParseISO(currencyCode)
	if err != nil {
		return "", fmt.Errorf("pricing: currency %q: %w", currencyCode, err)
	}
	tag, err := language.Parse(lang)
	if err != nil {
		tag = language.English
	}
	scale, _ := currency.Standard.Rounding(unit)

	p := message.NewPrinter(tag)
	return p.Sprintf("%v %v", currency.Symbol(unit), formatAmount(p, amount, int32(scale))), nil
}

// formatAmount never passes through float64: the whole part is grouped as an
// int64 and the fraction digits come from the decimal itself. Amounts beyond
// int64 are printed without grouping.
func formatAmount(p *message.Printer, amount decimal.Decimal, scale int32) string {
	rounded := amount.Round(scale)
	whole := rounded.Truncate(0)
	if !whole.BigInt().IsInt64() {
		return rounded.StringFixed(scale)
	}
	out := p.Sprint(number.Decimal(whole.IntPart()))
	if rounded.IsNegative() && whole.IsZero() {
		out = "-" + out
	}
	if scale <= 0 {
		return out
	}
	// "0.50" -> "50"
	fraction := rounded.Sub(whole).Abs().StringFixed(scale)[2:]
	return out + decimalSeparator(p) + fraction
}

// decimalSeparator reads the locale separator off a formatted 1.5.
func decimalSeparator(p *message.Printer) string {
	r := []rune(p.Sprint(number.Decimal(1.5, number.Scale(1))))
	if len(r) < 3 {
		return "."
	}
	return string(r[1 : len(r)-1])
}
