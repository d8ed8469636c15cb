package documents

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"

	"github.com/odyssey-erp/tally/internal/fiscal"
	"github.com/odyssey-erp/tally/internal/platform/httpx"
	"github.com/odyssey-erp/tally/internal/pricing"
	"github.com/odyssey-erp/tally/internal/shared"
)

var (
	// ErrNotDraft is returned when a non-draft document is edited.
	ErrNotDraft = fmt.Errorf("only DRAFT documents can be updated: %w", httpx.ErrConflict)
	// ErrInvalidDocument is returned when a document fails IsValid on save.
	ErrInvalidDocument = fmt.Errorf("document needs lines, a positive total and a company: %w", httpx.ErrValidation)
	// ErrUnknownKind is returned for an unsupported document kind.
	ErrUnknownKind = fmt.Errorf("unknown document kind: %w", httpx.ErrNotFound)
)

// FiscalSource provides the fiscal configuration documents are priced with.
type FiscalSource interface {
	ConfigFor(ctx context.Context, companyID int64) (fiscal.Config, error)
}

// AuditRecorder stores document changes.
type AuditRecorder interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Observer is notified whenever a document is priced.
type Observer interface {
	DocumentPriced(kind Kind)
}

// ServiceConfig holds document defaults.
type ServiceConfig struct {
	DefaultCurrency string
}

// Service prices, stores and moves documents through their workflows.
type Service struct {
	repo     Repository
	configs  FiscalSource
	audit    AuditRecorder
	observer Observer
	logger   *slog.Logger
	currency string
	now      func() time.Time
}

// NewService wires the document service. audit and observer may be nil.
func NewService(repo Repository, configs FiscalSource, audit AuditRecorder, observer Observer, logger *slog.Logger, cfg ServiceConfig) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	code := strings.ToUpper(cfg.DefaultCurrency)
	if code == "" {
		code = "USD"
	}
	return &Service{
		repo:     repo,
		configs:  configs,
		audit:    audit,
		observer: observer,
		logger:   logger,
		currency: code,
		now:      time.Now,
	}
}

// Preview prices a request without storing it. Incomplete documents are
// priced as they are.
func (s *Service) Preview(ctx context.Context, tenant shared.Tenant, kind Kind, req SaveRequest) (Document, error) {
	if !kind.Valid() {
		return Document{}, ErrUnknownKind
	}
	cfg, err := s.configs.ConfigFor(ctx, tenant.CompanyID)
	if err != nil {
		return Document{}, fmt.Errorf("load fiscal config: %w", err)
	}
	doc, err := s.build(New(kind, tenant.CompanyID, s.currency), req, cfg)
	if err != nil {
		return Document{}, err
	}
	s.priced(kind)
	return doc, nil
}

// Create prices, numbers and stores a new draft.
func (s *Service) Create(ctx context.Context, tenant shared.Tenant, kind Kind, req SaveRequest) (Document, error) {
	if !kind.Valid() {
		return Document{}, ErrUnknownKind
	}
	if err := validateSave(req); err != nil {
		return Document{}, err
	}
	cfg, err := s.configs.ConfigFor(ctx, tenant.CompanyID)
	if err != nil {
		return Document{}, fmt.Errorf("load fiscal config: %w", err)
	}
	base := New(kind, tenant.CompanyID, s.currency)
	base.CreatedBy = tenant.UserID
	doc, err := s.build(base, req, cfg)
	if err != nil {
		return Document{}, err
	}
	if !doc.IsValid() {
		return Document{}, ErrInvalidDocument
	}

	var saved Document
	err = s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		number, err := repo.NextNumber(ctx, tenant.CompanyID, kind, doc.IssueDate)
		if err != nil {
			return fmt.Errorf("generate doc number: %w", err)
		}
		doc.Number = number
		saved, err = repo.Create(ctx, doc)
		if err != nil {
			return fmt.Errorf("create document: %w", err)
		}
		return nil
	})
	if err != nil {
		return Document{}, err
	}
	s.priced(kind)
	s.record(ctx, tenant, "document.create", saved, nil)
	return saved, nil
}

// Update replaces the lines and header of a draft and reprices it with the
// current tenant configuration.
func (s *Service) Update(ctx context.Context, tenant shared.Tenant, kind Kind, id int64, req SaveRequest) (Document, error) {
	if !kind.Valid() {
		return Document{}, ErrUnknownKind
	}
	if err := validateSave(req); err != nil {
		return Document{}, err
	}
	cfg, err := s.configs.ConfigFor(ctx, tenant.CompanyID)
	if err != nil {
		return Document{}, fmt.Errorf("load fiscal config: %w", err)
	}

	var saved Document
	err = s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		existing, err := repo.Get(ctx, tenant.CompanyID, kind, id)
		if err != nil {
			return err
		}
		if existing.Status != StatusDraft {
			return ErrNotDraft
		}
		doc, err := s.build(existing, req, cfg)
		if err != nil {
			return err
		}
		if !doc.IsValid() {
			return ErrInvalidDocument
		}
		saved, err = repo.Update(ctx, doc)
		if err != nil {
			return fmt.Errorf("update document: %w", err)
		}
		return nil
	})
	if err != nil {
		return Document{}, err
	}
	s.priced(kind)
	s.record(ctx, tenant, "document.update", saved, nil)
	return saved, nil
}

// Get loads a document of the tenant.
func (s *Service) Get(ctx context.Context, tenant shared.Tenant, kind Kind, id int64) (Document, error) {
	if !kind.Valid() {
		return Document{}, ErrUnknownKind
	}
	return s.repo.Get(ctx, tenant.CompanyID, kind, id)
}

// List returns a page of document summaries.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Summary, shared.Pagination, error) {
	if !filter.Kind.Valid() {
		return nil, shared.Pagination{}, ErrUnknownKind
	}
	filter.Limit, filter.Offset = shared.ClampPage(filter.Limit, filter.Offset)
	items, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, shared.Pagination{}, fmt.Errorf("list documents: %w", err)
	}
	return items, shared.NewPagination(filter.Limit, filter.Offset, total), nil
}

// Transition moves a document to status when its workflow allows it.
func (s *Service) Transition(ctx context.Context, tenant shared.Tenant, kind Kind, id int64, status Status) (Document, error) {
	if !kind.Valid() {
		return Document{}, ErrUnknownKind
	}
	if !ValidStatus(kind, status) {
		return Document{}, httpx.FieldErrors{"status": "is not a " + string(kind) + " status"}
	}

	var (
		moved Document
		from  Status
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		doc, err := repo.Get(ctx, tenant.CompanyID, kind, id)
		if err != nil {
			return err
		}
		from = doc.Status
		moved, err = doc.WithStatus(status)
		if err != nil {
			return fmt.Errorf("%w: %s to %s", err, from, status)
		}
		return repo.UpdateStatus(ctx, tenant.CompanyID, id, from, status)
	})
	if err != nil {
		return Document{}, err
	}
	s.record(ctx, tenant, "document.status", moved, map[string]any{"from": from, "to": status})
	return moved, nil
}

// RepriceDrafts recomputes every draft of a company with its current fiscal
// configuration and stores those whose figures changed. It returns the number
// of documents rewritten.
func (s *Service) RepriceDrafts(ctx context.Context, companyID int64) (int, error) {
	cfg, err := s.configs.ConfigFor(ctx, companyID)
	if err != nil {
		return 0, fmt.Errorf("load fiscal config: %w", err)
	}
	var updated int
	err = s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		drafts, err := repo.ListDrafts(ctx, companyID)
		if err != nil {
			return fmt.Errorf("list drafts: %w", err)
		}
		for _, draft := range drafts {
			repriced := draft.WithFiscal(cfg)
			if samePricing(draft, repriced) {
				continue
			}
			if _, err := repo.Update(ctx, repriced); err != nil {
				return fmt.Errorf("reprice document %d: %w", draft.ID, err)
			}
			s.priced(draft.Kind)
			updated++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	s.logger.Info("drafts repriced", slog.Int64("company_id", companyID), slog.Int("updated", updated))
	return updated, nil
}

func (s *Service) build(base Document, req SaveRequest, cfg fiscal.Config) (Document, error) {
	doc := base
	doc.PartyID = req.PartyID
	if req.Currency != "" {
		code := strings.ToUpper(req.Currency)
		if _, err := currency.ParseISO(code); err != nil {
			return Document{}, httpx.FieldErrors{"currency": "must be an ISO 4217 code"}
		}
		doc.Currency = code
	}
	if doc.Currency == "" {
		doc.Currency = s.currency
	}
	switch {
	case req.IssueDate != nil:
		doc.IssueDate = *req.IssueDate
	case doc.IssueDate.IsZero():
		doc.IssueDate = s.now()
	}
	doc.Notes = req.Notes

	lines := make([]Line, len(req.Lines))
	for i, lr := range req.Lines {
		line := Line{
			ProductID:          lr.ProductID,
			Description:        lr.Description,
			Quantity:           lr.Quantity,
			UnitPrice:          lr.UnitPrice,
			DiscountPercentage: lr.DiscountPercentage,
			DiscountAmount:     lr.DiscountAmount,
			TaxRate:            copyRate(lr.TaxRate),
		}
		if lr.Key != "" {
			key, err := uuid.Parse(lr.Key)
			if err != nil {
				return Document{}, httpx.FieldErrors{fmt.Sprintf("lines[%d].key", i): "must be a valid UUID"}
			}
			line.Key = key
		}
		lines[i] = line
	}

	doc.fiscal = &cfg
	doc.globalPct = req.GlobalDiscountPercentage
	doc.globalAmount = req.GlobalDiscountAmount
	return doc.WithItems(lines), nil
}

func validateSave(req SaveRequest) error {
	fields := httpx.FieldErrors{}
	if len(req.Lines) == 0 {
		fields["lines"] = "is required"
	}
	for i, lr := range req.Lines {
		in := pricing.LineInput{
			Quantity:           lr.Quantity,
			UnitPrice:          lr.UnitPrice,
			DiscountPercentage: lr.DiscountPercentage,
			DiscountAmount:     lr.DiscountAmount,
		}
		if lr.TaxRate != nil {
			in.TaxRate = *lr.TaxRate
		}
		if err := in.Validate(); err != nil {
			fields[fmt.Sprintf("lines[%d]", i)] = strings.TrimPrefix(err.Error(), pricing.ErrInvalidLine.Error()+": ")
		}
	}
	if req.Currency != "" {
		if _, err := currency.ParseISO(req.Currency); err != nil {
			fields["currency"] = "must be an ISO 4217 code"
		}
	}
	if req.GlobalDiscountPercentage.IsNegative() || req.GlobalDiscountPercentage.GreaterThan(decimal.NewFromInt(100)) {
		fields["global_discount_percentage"] = "must be between 0 and 100"
	}
	if req.GlobalDiscountAmount.IsNegative() {
		fields["global_discount_amount"] = "must not be negative"
	}
	if len(fields) > 0 {
		return fields
	}
	return nil
}

// samePricing reports whether two versions of a document carry the same
// fiscal snapshot and figures.
func samePricing(a, b Document) bool {
	fa, _ := a.Fiscal()
	fb, _ := b.Fiscal()
	if !fa.IVARate.Equal(fb.IVARate) || fa.IVAEnabled != fb.IVAEnabled ||
		fa.TaxMode != fb.TaxMode || fa.RoundingRule != fb.RoundingRule {
		return false
	}
	ta, tb := a.Totals(), b.Totals()
	return ta.Subtotal.Equal(tb.Subtotal) &&
		ta.ItemsDiscountTotal.Equal(tb.ItemsDiscountTotal) &&
		ta.GlobalDiscount.Equal(tb.GlobalDiscount) &&
		ta.TaxTotal.Equal(tb.TaxTotal) &&
		ta.GrandTotal.Equal(tb.GrandTotal) &&
		a.Payable().Equal(b.Payable())
}

func (s *Service) priced(kind Kind) {
	if s.observer != nil {
		s.observer.DocumentPriced(kind)
	}
}

func (s *Service) record(ctx context.Context, tenant shared.Tenant, action string, doc Document, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if meta == nil {
		meta = map[string]any{}
	}
	meta["kind"] = doc.Kind
	meta["number"] = doc.Number
	meta["payable_total"] = pricing.RoundMoney(doc.Payable()).String()
	err := s.audit.Record(ctx, shared.AuditLog{
		CompanyID: tenant.CompanyID,
		ActorID:   tenant.UserID,
		Action:    action,
		Entity:    "document",
		EntityID:  strconv.FormatInt(doc.ID, 10),
		Meta:      meta,
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Warn("document audit", slog.Int64("company_id", tenant.CompanyID), slog.String("action", action), slog.Any("error", err))
	}
}
