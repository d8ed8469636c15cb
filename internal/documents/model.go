// Package documents models purchase orders, quotations, invoices and POS
// sales as line collections whose totals are always derived from their lines.
package documents

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/tally/internal/fiscal"
	"github.com/odyssey-erp/tally/internal/pricing"
)

// ErrLineIndex is returned when a line index is out of range.
var ErrLineIndex = errors.New("documents: line index out of range")

// Line is one row of a document. Result is derived by the owning document
// and is overwritten on every recomputation.
type Line struct {
	Key                uuid.UUID          `json:"key"`
	ProductID          int64              `json:"product_id"`
	Description        string             `json:"description,omitempty"`
	Quantity           decimal.Decimal    `json:"quantity"`
	UnitPrice          decimal.Decimal    `json:"unit_price"`
	DiscountPercentage decimal.Decimal    `json:"discount_percentage"`
	DiscountAmount     decimal.Decimal    `json:"discount_amount"`
	TaxRate            *decimal.Decimal   `json:"tax_rate,omitempty"`
	Result             pricing.LineResult `json:"result"`
}

// LinePatch changes selected fields of a line.
type LinePatch struct {
	ProductID          *int64
	Description        *string
	Quantity           *decimal.Decimal
	UnitPrice          *decimal.Decimal
	DiscountPercentage *decimal.Decimal
	DiscountAmount     *decimal.Decimal
	TaxRate            *decimal.Decimal
}

func (p LinePatch) apply(l Line) Line {
	if p.ProductID != nil {
		l.ProductID = *p.ProductID
	}
	if p.Description != nil {
		l.Description = *p.Description
	}
	if p.Quantity != nil {
		l.Quantity = *p.Quantity
	}
	if p.UnitPrice != nil {
		l.UnitPrice = *p.UnitPrice
	}
	if p.DiscountPercentage != nil {
		l.DiscountPercentage = *p.DiscountPercentage
	}
	if p.DiscountAmount != nil {
		l.DiscountAmount = *p.DiscountAmount
	}
	if p.TaxRate != nil {
		rate := *p.TaxRate
		l.TaxRate = &rate
	}
	return l
}

// Document is an immutable value. Every mutating method returns a new
// Document with its totals already recomputed; the receiver is unchanged.
type Document struct {
	ID        int64
	Kind      Kind
	Number    string
	CompanyID int64
	PartyID   *int64
	Currency  string
	Status    Status
	IssueDate time.Time
	Notes     string
	CreatedBy int64
	CreatedAt time.Time
	UpdatedAt time.Time

	globalPct    decimal.Decimal
	globalAmount decimal.Decimal
	lines        []Line
	fiscal       *fiscal.Config
	totals       pricing.Totals
}

// New returns an empty draft document.
func New(kind Kind, companyID int64, currency string) Document {
	return Document{
		Kind:      kind,
		CompanyID: companyID,
		Currency:  currency,
		Status:    StatusDraft,
	}
}

// AddItem appends a line. A line without a key gets a new one.
func (d Document) AddItem(line Line) Document {
	next := d.clone()
	if line.Key == uuid.Nil {
		line.Key = uuid.New()
	}
	line.TaxRate = copyRate(line.TaxRate)
	next.lines = append(next.lines, line)
	return next.recompute()
}

// RemoveItem drops the line at index.
func (d Document) RemoveItem(index int) (Document, error) {
	if index < 0 || index >= len(d.lines) {
		return d, ErrLineIndex
	}
	next := d.clone()
	next.lines = append(next.lines[:index], next.lines[index+1:]...)
	return next.recompute(), nil
}

// UpdateItem applies patch to the line at index.
func (d Document) UpdateItem(index int, patch LinePatch) (Document, error) {
	if index < 0 || index >= len(d.lines) {
		return d, ErrLineIndex
	}
	next := d.clone()
	next.lines[index] = patch.apply(next.lines[index])
	return next.recompute(), nil
}

// WithItems replaces every line at once.
func (d Document) WithItems(lines []Line) Document {
	next := d
	next.lines = make([]Line, len(lines))
	copy(next.lines, lines)
	for i := range next.lines {
		if next.lines[i].Key == uuid.Nil {
			next.lines[i].Key = uuid.New()
		}
		next.lines[i].TaxRate = copyRate(next.lines[i].TaxRate)
	}
	return next.recompute()
}

// SetGlobalDiscount sets the document discount. A positive percentage takes
// precedence over the amount. Under a tax-inclusive configuration the amount
// is read as tax-inclusive, like unit prices and line discount amounts.
func (d Document) SetGlobalDiscount(percentage, amount decimal.Decimal) Document {
	next := d.clone()
	next.globalPct = percentage
	next.globalAmount = amount
	return next.recompute()
}

// WithFiscal prices the document under a tenant configuration: default tax
// rates, tax-inclusive prices and the final rounding rule.
func (d Document) WithFiscal(cfg fiscal.Config) Document {
	next := d.clone()
	next.fiscal = &cfg
	return next.recompute()
}

// WithStatus moves the document to status if its workflow allows it.
func (d Document) WithStatus(status Status) (Document, error) {
	if !CanTransition(d.Kind, d.Status, status) {
		return d, ErrInvalidStatus
	}
	next := d.clone()
	next.Status = status
	return next, nil
}

// Lines returns a copy of the document lines.
func (d Document) Lines() []Line {
	out := make([]Line, len(d.lines))
	copy(out, d.lines)
	for i := range out {
		out[i].TaxRate = copyRate(out[i].TaxRate)
	}
	return out
}

// Len is the number of lines.
func (d Document) Len() int { return len(d.lines) }

// GlobalDiscount returns the configured document discount.
func (d Document) GlobalDiscount() (percentage, amount decimal.Decimal) {
	return d.globalPct, d.globalAmount
}

// Fiscal returns the configuration the document is priced under, if any.
func (d Document) Fiscal() (fiscal.Config, bool) {
	if d.fiscal == nil {
		return fiscal.Config{}, false
	}
	return *d.fiscal, true
}

// Totals is the aggregation of the current lines.
func (d Document) Totals() pricing.Totals {
	return d.totals
}

// Payable is the grand total after the tenant price rounding rule.
func (d Document) Payable() decimal.Decimal {
	if d.fiscal == nil {
		return d.totals.GrandTotal
	}
	return d.fiscal.Round(d.totals.GrandTotal)
}

// RoundingAdjustment is Payable minus the grand total.
func (d Document) RoundingAdjustment() decimal.Decimal {
	return d.Payable().Sub(d.totals.GrandTotal)
}

// IsValid reports whether the document may be saved: it has lines, a
// positive grand total and a tenant.
func (d Document) IsValid() bool {
	return len(d.lines) > 0 && d.totals.GrandTotal.IsPositive() && d.CompanyID > 0
}

// Inputs returns the calculator inputs after tenant rules are applied.
func (d Document) Inputs() []pricing.LineInput {
	inputs := make([]pricing.LineInput, len(d.lines))
	for i, l := range d.lines {
		inputs[i] = d.input(l)
	}
	return inputs
}

func (d Document) input(l Line) pricing.LineInput {
	in := pricing.LineInput{
		Quantity:           l.Quantity,
		UnitPrice:          l.UnitPrice,
		DiscountPercentage: l.DiscountPercentage,
		DiscountAmount:     l.DiscountAmount,
	}
	if d.fiscal == nil {
		if l.TaxRate != nil {
			in.TaxRate = *l.TaxRate
		}
		return in
	}
	in.TaxRate = d.fiscal.LineTaxRate(l.TaxRate)
	in.UnitPrice = d.fiscal.NetUnitPrice(l.UnitPrice, in.TaxRate)
	in.DiscountAmount = d.fiscal.NetUnitPrice(l.DiscountAmount, in.TaxRate)
	return in
}

// netGlobalAmount converts a fixed document discount entered tax-inclusive
// into its pre-tax value. The gross amount is split across lines by their
// gross base and each share loses that line's tax.
func (d Document) netGlobalAmount(inputs []pricing.LineInput) decimal.Decimal {
	if d.fiscal == nil || len(inputs) == 0 || d.globalPct.IsPositive() || d.globalAmount.IsZero() {
		return d.globalAmount
	}
	if !d.fiscal.IVAEnabled || d.fiscal.TaxMode != fiscal.TaxModeIncluded {
		return d.globalAmount
	}
	gross := make([]pricing.LineInput, len(inputs))
	for i, in := range inputs {
		gross[i] = in
		gross[i].UnitPrice = d.lines[i].UnitPrice
		gross[i].DiscountAmount = d.lines[i].DiscountAmount
	}
	shares, _ := pricing.Summarize(gross, decimal.Zero, d.globalAmount)
	net := decimal.Zero
	for i, share := range shares {
		net = net.Add(d.fiscal.NetUnitPrice(share.GlobalDiscountShare, inputs[i].TaxRate))
	}
	return net
}

func (d Document) recompute() Document {
	inputs := d.Inputs()
	results, totals := pricing.Summarize(inputs, d.globalPct, d.netGlobalAmount(inputs))
	for i := range d.lines {
		d.lines[i].Result = results[i]
	}
	d.totals = totals
	return d
}

// clone copies the line slice so the result never aliases the receiver.
func (d Document) clone() Document {
	next := d
	next.lines = d.Lines()
	return next
}

func copyRate(rate *decimal.Decimal) *decimal.Decimal {
	if rate == nil {
		return nil
	}
	r := *rate
	return &r
}

type documentJSON struct {
	ID                       int64           `json:"id,omitempty"`
	Kind                     Kind            `json:"kind"`
	Number                   string          `json:"number,omitempty"`
	CompanyID                int64           `json:"company_id"`
	PartyID                  *int64          `json:"party_id,omitempty"`
	Currency                 string          `json:"currency"`
	Status                   Status          `json:"status"`
	IssueDate                time.Time       `json:"issue_date"`
	Notes                    string          `json:"notes,omitempty"`
	GlobalDiscountPercentage decimal.Decimal `json:"global_discount_percentage"`
	GlobalDiscountAmount     decimal.Decimal `json:"global_discount_amount"`
	Lines                    []Line          `json:"lines"`
	Totals                   pricing.Totals  `json:"totals"`
	Payable                  decimal.Decimal `json:"payable_total"`
	RoundingAdjustment       decimal.Decimal `json:"rounding_adjustment"`
	Valid                    bool            `json:"valid"`
	CreatedBy                int64           `json:"created_by,omitempty"`
	CreatedAt                time.Time       `json:"created_at"`
	UpdatedAt                time.Time       `json:"updated_at"`
}

// MarshalJSON exposes the derived totals next to the stored fields.
func (d Document) MarshalJSON() ([]byte, error) {
	return json.Marshal(documentJSON{
		ID:                       d.ID,
		Kind:                     d.Kind,
		Number:                   d.Number,
		CompanyID:                d.CompanyID,
		PartyID:                  d.PartyID,
		Currency:                 d.Currency,
		Status:                   d.Status,
		IssueDate:                d.IssueDate,
		Notes:                    d.Notes,
		GlobalDiscountPercentage: d.globalPct,
		GlobalDiscountAmount:     d.globalAmount,
		Lines:                    d.Lines(),
		Totals:                   d.totals,
		Payable:                  d.Payable(),
		RoundingAdjustment:       d.RoundingAdjustment(),
		Valid:                    d.IsValid(),
		CreatedBy:                d.CreatedBy,
		CreatedAt:                d.CreatedAt,
		UpdatedAt:                d.UpdatedAt,
	})
}
