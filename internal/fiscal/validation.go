package fiscal

import (
	"github.com/odyssey-erp/tally/internal/platform/httpx"
)

// Validate checks a configuration before it is stored.
func (c Config) Validate() error {
	fields := httpx.FieldErrors{}
	if c.CompanyID <= 0 {
		fields["company_id"] = "is required"
	}
	if c.IVARate.IsNegative() || c.IVARate.GreaterThan(hundred) {
		fields["iva_rate"] = "must be between 0 and 100"
	}
	if c.TaxMode != TaxModeIncluded && c.TaxMode != TaxModeExcluded {
		fields["tax_calculation_mode"] = "must be one of INCLUDED EXCLUDED"
	}
	if _, err := LookupRounding(c.RoundingRule); err != nil {
		fields["price_rounding_rule"] = err.Error()
	}
	if len(fields) > 0 {
		return fields
	}
	return nil
}
