package documents

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/tally/internal/pricing"
)

// LineRequest is one line of a save or preview request.
type LineRequest struct {
	Key                string           `json:"key,omitempty" validate:"omitempty,uuid"`
	ProductID          int64            `json:"product_id" validate:"gte=0"`
	Description        string           `json:"description" validate:"max=500"`
	Quantity           decimal.Decimal  `json:"quantity"`
	UnitPrice          decimal.Decimal  `json:"unit_price"`
	DiscountPercentage decimal.Decimal  `json:"discount_percentage"`
	DiscountAmount     decimal.Decimal  `json:"discount_amount"`
	TaxRate            *decimal.Decimal `json:"tax_rate,omitempty"`
}

// SaveRequest creates, updates or previews a document.
type SaveRequest struct {
	PartyID                  *int64          `json:"party_id,omitempty" validate:"omitempty,gt=0"`
	Currency                 string          `json:"currency,omitempty" validate:"omitempty,len=3"`
	IssueDate                *time.Time      `json:"issue_date,omitempty"`
	Notes                    string          `json:"notes,omitempty" validate:"max=2000"`
	GlobalDiscountPercentage decimal.Decimal `json:"global_discount_percentage"`
	GlobalDiscountAmount     decimal.Decimal `json:"global_discount_amount"`
	Lines                    []LineRequest   `json:"lines" validate:"required,min=1,max=500,dive"`
}

// TransitionRequest asks for a status change.
type TransitionRequest struct {
	Status Status `json:"status" validate:"required"`
}

// ListFilter narrows a document listing.
type ListFilter struct {
	CompanyID int64
	Kind      Kind
	Status    *Status
	Limit     int
	Offset    int
}

// Summary is a document row in a listing, built from the stored totals.
type Summary struct {
	ID           int64           `json:"id"`
	Kind         Kind            `json:"kind"`
	Number       string          `json:"number"`
	PartyID      *int64          `json:"party_id,omitempty"`
	Currency     string          `json:"currency"`
	Status       Status          `json:"status"`
	IssueDate    time.Time       `json:"issue_date"`
	GrandTotal   decimal.Decimal `json:"grand_total"`
	PayableTotal decimal.Decimal `json:"payable_total"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// Display carries locale formatted amounts for a document response.
type Display struct {
	Subtotal           string   `json:"subtotal"`
	ItemsDiscountTotal string   `json:"items_discount_total"`
	GlobalDiscount     string   `json:"global_discount"`
	TaxTotal           string   `json:"tax_total"`
	GrandTotal         string   `json:"grand_total"`
	PayableTotal       string   `json:"payable_total"`
	RoundingAdjustment string   `json:"rounding_adjustment"`
	LineTotals         []string `json:"line_totals"`
}

// DocumentResponse pairs a document with its display strings. Display is
// omitted when the amounts cannot be formatted.
type DocumentResponse struct {
	Document Document `json:"document"`
	Display  *Display `json:"display,omitempty"`
}

// NewDisplay formats the document totals for currency and lang.
func NewDisplay(doc Document, lang string) (Display, error) {
	totals := doc.Totals()
	amounts := []decimal.Decimal{
		totals.Subtotal,
		totals.ItemsDiscountTotal,
		totals.GlobalDiscount,
		totals.TaxTotal,
		totals.GrandTotal,
		doc.Payable(),
		doc.RoundingAdjustment(),
	}
	formatted := make([]string, len(amounts))
	for i, amount := range amounts {
		s, err := pricing.FormatMoney(amount, doc.Currency, lang)
		if err != nil {
			return Display{}, err
		}
		formatted[i] = s
	}

	lines := doc.Lines()
	lineTotals := make([]string, len(lines))
	for i, l := range lines {
		s, err := pricing.FormatMoney(l.Result.LineTotal, doc.Currency, lang)
		if err != nil {
			return Display{}, err
		}
		lineTotals[i] = s
	}

	return Display{
		Subtotal:           formatted[0],
		ItemsDiscountTotal: formatted[1],
		GlobalDiscount:     formatted[2],
		TaxTotal:           formatted[3],
		GrandTotal:         formatted[4],
		PayableTotal:       formatted[5],
		RoundingAdjustment: formatted[6],
		LineTotals:         lineTotals,
	}, nil
}
