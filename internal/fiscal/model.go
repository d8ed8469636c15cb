// Package fiscal resolves a tenant's tax and price rounding configuration.
package fiscal

import (
	"time"

	"github.com/shopspring/decimal"
)

// TaxMode states whether prices already contain tax.
type TaxMode string

const (
	TaxModeIncluded TaxMode = "INCLUDED"
	TaxModeExcluded TaxMode = "EXCLUDED"
)

// RoundingRule names a price rounding convention.
type RoundingRule string

const (
	RoundingExact       RoundingRule = "EXACT"
	RoundingNearestUnit RoundingRule = "NEAREST_UNIT"
	RoundingNearest10   RoundingRule = "NEAREST_10"
	RoundingNearest50   RoundingRule = "NEAREST_50"
	RoundingNearest100  RoundingRule = "NEAREST_100"
	RoundingNearest1000 RoundingRule = "NEAREST_1000"
	RoundingTo90        RoundingRule = "TO_90"
	RoundingTo990       RoundingRule = "TO_990"
)

// DefaultIVARate applies to tenants that never stored a configuration.
var DefaultIVARate = decimal.NewFromInt(19)

// Config is a tenant's fiscal configuration.
type Config struct {
	CompanyID    int64           `json:"company_id"`
	IVARate      decimal.Decimal `json:"iva_rate"`
	IVAEnabled   bool            `json:"iva_enabled"`
	TaxMode      TaxMode         `json:"tax_calculation_mode"`
	RoundingRule RoundingRule    `json:"price_rounding_rule"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// DefaultConfig returns the configuration used until a tenant saves its own.
func DefaultConfig(companyID int64) Config {
	return Config{
		CompanyID:    companyID,
		IVARate:      DefaultIVARate,
		IVAEnabled:   true,
		TaxMode:      TaxModeExcluded,
		RoundingRule: RoundingExact,
	}
}

// CalculateTax splits amount according to the tenant configuration.
func (c Config) CalculateTax(amount decimal.Decimal) Breakdown {
	return CalculateTax(amount, c.IVARate, c.TaxMode, c.IVAEnabled)
}

// Round applies the tenant rounding rule to a final price.
func (c Config) Round(price decimal.Decimal) decimal.Decimal {
	return ApplyPriceRounding(price, c.RoundingRule)
}

// LineTaxRate returns the rate a document line should carry. A nil rate falls
// back to the tenant rate; a disabled IVA always yields zero.
func (c Config) LineTaxRate(rate *decimal.Decimal) decimal.Decimal {
	if !c.IVAEnabled {
		return decimal.Zero
	}
	if rate == nil {
		return c.IVARate
	}
	return *rate
}

// NetUnitPrice converts a unit price into the pre-tax price the line
// calculator expects. Only tax-inclusive tenants with IVA enabled change it.
func (c Config) NetUnitPrice(price, rate decimal.Decimal) decimal.Decimal {
	if !c.IVAEnabled || c.TaxMode != TaxModeIncluded {
		return price
	}
	return CalculateTax(price, rate, TaxModeIncluded, true).Net
}
