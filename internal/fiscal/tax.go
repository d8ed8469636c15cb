package fiscal

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

// Breakdown splits an amount into its net and tax parts.
type Breakdown struct {
	Net   decimal.Decimal `json:"net"`
	Tax   decimal.Decimal `json:"tax"`
	Total decimal.Decimal `json:"total"`
}

// CalculateTax splits amount at rate percent. In INCLUDED mode the amount
// already contains the tax and is split; in EXCLUDED mode tax is added on
// top. When IVA is disabled the amount passes through untaxed.
func CalculateTax(amount, rate decimal.Decimal, mode TaxMode, enabled bool) Breakdown {
	if !enabled {
		return Breakdown{Net: amount, Tax: decimal.Zero, Total: amount}
	}
	if mode == TaxModeIncluded {
		divisor := decimal.NewFromInt(1).Add(rate.Div(hundred))
		if divisor.IsZero() {
			return Breakdown{Net: amount, Tax: decimal.Zero, Total: amount}
		}
		net := amount.Div(divisor)
		return Breakdown{Net: net, Tax: amount.Sub(net), Total: amount}
	}
	tax := amount.Mul(rate).Div(hundred)
	return Breakdown{Net: amount, Tax: tax, Total: amount.Add(tax)}
}
