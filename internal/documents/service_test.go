package documents

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/tally/internal/fiscal"
	"github.com/odyssey-erp/tally/internal/platform/httpx"
	"github.com/odyssey-erp/tally/internal/shared"
	_ "github.com/odyssey-erp/tally/testing"
)

type memoryRepo struct {
	mu     sync.Mutex
	nextID int64
	docs   map[int64]Document
	seqs   map[string]int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{docs: make(map[int64]Document), seqs: make(map[string]int64)}
}

func (m *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, Repository) error) error {
	return fn(ctx, m)
}

func (m *memoryRepo) Get(ctx context.Context, companyID int64, kind Kind, id int64) (Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[id]
	if !ok || doc.CompanyID != companyID || doc.Kind != kind {
		return Document{}, ErrNotFound
	}
	return doc, nil
}

func (m *memoryRepo) List(ctx context.Context, filter ListFilter) ([]Summary, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var all []Summary
	for _, d := range m.docs {
		if d.CompanyID != filter.CompanyID || d.Kind != filter.Kind {
			continue
		}
		if filter.Status != nil && d.Status != *filter.Status {
			continue
		}
		all = append(all, Summary{ID: d.ID, Kind: d.Kind, Number: d.Number, Status: d.Status, Currency: d.Currency,
			GrandTotal: d.Totals().GrandTotal, PayableTotal: d.Payable()})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	total := len(all)
	if filter.Offset >= total {
		return nil, total, nil
	}
	end := filter.Offset + filter.Limit
	if end > total {
		end = total
	}
	return all[filter.Offset:end], total, nil
}

func (m *memoryRepo) Create(ctx context.Context, doc Document) (Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	doc.ID = m.nextID
	doc.CreatedAt = time.Now()
	doc.UpdatedAt = doc.CreatedAt
	m.docs[doc.ID] = doc
	return doc, nil
}

func (m *memoryRepo) Update(ctx context.Context, doc Document) (Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.docs[doc.ID]; !ok {
		return Document{}, ErrNotFound
	}
	doc.UpdatedAt = time.Now()
	m.docs[doc.ID] = doc
	return doc, nil
}

func (m *memoryRepo) UpdateStatus(ctx context.Context, companyID, id int64, from, to Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[id]
	if !ok || doc.CompanyID != companyID || doc.Status != from {
		return ErrInvalidStatus
	}
	doc.Status = to
	m.docs[id] = doc
	return nil
}

func (m *memoryRepo) NextNumber(ctx context.Context, companyID int64, kind Kind, date time.Time) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := fmt.Sprintf("%d:%s:%s", companyID, kind.NumberPrefix(), date.Format("200601"))
	m.seqs[key]++
	return fmt.Sprintf("%s-%s-%04d", kind.NumberPrefix(), date.Format("0601"), m.seqs[key]), nil
}

func (m *memoryRepo) ListDrafts(ctx context.Context, companyID int64) ([]Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Document
	for _, d := range m.docs {
		if d.CompanyID == companyID && d.Status == StatusDraft {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memoryRepo) stored(id int64) Document {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.docs[id]
}

type staticFiscal struct {
	mu      sync.Mutex
	configs map[int64]fiscal.Config
}

func (s *staticFiscal) ConfigFor(ctx context.Context, companyID int64) (fiscal.Config, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cfg, ok := s.configs[companyID]; ok {
		return cfg, nil
	}
	return fiscal.DefaultConfig(companyID), nil
}

func (s *staticFiscal) set(cfg fiscal.Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.configs == nil {
		s.configs = make(map[int64]fiscal.Config)
	}
	s.configs[cfg.CompanyID] = cfg
}

type recordingAudit struct {
	logs []shared.AuditLog
}

func (r *recordingAudit) Record(ctx context.Context, log shared.AuditLog) error {
	r.logs = append(r.logs, log)
	return nil
}

type countingObserver struct {
	mu     sync.Mutex
	priced map[Kind]int
}

func (c *countingObserver) DocumentPriced(kind Kind) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.priced == nil {
		c.priced = make(map[Kind]int)
	}
	c.priced[kind]++
}

type serviceFixture struct {
	svc      *Service
	repo     *memoryRepo
	fiscal   *staticFiscal
	audit    *recordingAudit
	observer *countingObserver
}

var fixedNow = time.Date(2026, time.October, 19, 9, 0, 0, 0, time.UTC)

func newServiceFixture(t *testing.T) serviceFixture {
	t.Helper()
	f := serviceFixture{
		repo:     newMemoryRepo(),
		fiscal:   &staticFiscal{},
		audit:    &recordingAudit{},
		observer: &countingObserver{},
	}
	f.svc = NewService(f.repo, f.fiscal, f.audit, f.observer, slog.Default(), ServiceConfig{DefaultCurrency: "cop"})
	f.svc.now = func() time.Time { return fixedNow }
	return f
}

var testTenant = shared.Tenant{CompanyID: 3, UserID: 11}

func saveRequest(lines ...LineRequest) SaveRequest {
	return SaveRequest{Lines: lines}
}

func lineRequest(qty, price string) LineRequest {
	return LineRequest{ProductID: 1, Quantity: dec(qty), UnitPrice: dec(price)}
}

func TestServiceCreatePricesWithTenantConfig(t *testing.T) {
	f := newServiceFixture(t)

	doc, err := f.svc.Create(context.Background(), testTenant, KindInvoice, saveRequest(lineRequest("1", "100000")))
	require.NoError(t, err)

	assert.Equal(t, "INV-2610-0001", doc.Number)
	assert.Equal(t, "COP", doc.Currency)
	assert.Equal(t, StatusDraft, doc.Status)
	assert.Equal(t, testTenant.UserID, doc.CreatedBy)
	assert.Equal(t, fixedNow, doc.IssueDate)
	assertDecimal(t, "19000", doc.Totals().TaxTotal)
	assertDecimal(t, "119000", doc.Totals().GrandTotal)

	cfg, ok := doc.Fiscal()
	require.True(t, ok)
	assert.Equal(t, fiscal.TaxModeExcluded, cfg.TaxMode)

	require.Len(t, f.audit.logs, 1)
	assert.Equal(t, "document.create", f.audit.logs[0].Action)
	assert.Equal(t, 1, f.observer.priced[KindInvoice])

	second, err := f.svc.Create(context.Background(), testTenant, KindInvoice, saveRequest(lineRequest("1", "5")))
	require.NoError(t, err)
	assert.Equal(t, "INV-2610-0002", second.Number)
}

func TestServiceCreateRejectsInvalidLines(t *testing.T) {
	f := newServiceFixture(t)

	_, err := f.svc.Create(context.Background(), testTenant, KindQuotation, saveRequest(lineRequest("0", "10")))
	require.ErrorIs(t, err, httpx.ErrValidation)
	var fields httpx.FieldErrors
	require.ErrorAs(t, err, &fields)
	assert.Equal(t, "quantity must be greater than zero", fields["lines[0]"])

	req := saveRequest(lineRequest("1", "10"))
	req.Currency = "ZZZ"
	_, err = f.svc.Create(context.Background(), testTenant, KindQuotation, req)
	require.ErrorAs(t, err, &fields)
	assert.Contains(t, fields, "currency")
}

func TestServiceCreateRequiresPositiveTotal(t *testing.T) {
	f := newServiceFixture(t)
	_, err := f.svc.Create(context.Background(), testTenant, KindPOSSale, saveRequest(lineRequest("1", "0")))
	require.ErrorIs(t, err, ErrInvalidDocument)
	assert.Empty(t, f.repo.docs)
}

func TestServicePreviewDoesNotPersist(t *testing.T) {
	f := newServiceFixture(t)

	empty, err := f.svc.Preview(context.Background(), testTenant, KindQuotation, SaveRequest{})
	require.NoError(t, err)
	assertDecimal(t, "0", empty.Totals().GrandTotal)
	assert.False(t, empty.IsValid())

	req := saveRequest(lineRequest("1", "100000"))
	req.GlobalDiscountPercentage = dec("10")
	doc, err := f.svc.Preview(context.Background(), testTenant, KindQuotation, req)
	require.NoError(t, err)
	assertDecimal(t, "107100", doc.Totals().GrandTotal)
	assert.Empty(t, f.repo.docs)
}

func TestServiceUpdateOnlyDrafts(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	doc, err := f.svc.Create(ctx, testTenant, KindPurchaseOrder, saveRequest(lineRequest("2", "10")))
	require.NoError(t, err)
	key := doc.Lines()[0].Key

	req := saveRequest(lineRequest("3", "10"))
	req.Lines[0].Key = key.String()
	updated, err := f.svc.Update(ctx, testTenant, KindPurchaseOrder, doc.ID, req)
	require.NoError(t, err)
	assert.Equal(t, key, updated.Lines()[0].Key)
	assertDecimal(t, "35.7", updated.Totals().GrandTotal)
	assert.Equal(t, doc.Number, updated.Number)

	_, err = f.svc.Transition(ctx, testTenant, KindPurchaseOrder, doc.ID, StatusSent)
	require.NoError(t, err)

	_, err = f.svc.Update(ctx, testTenant, KindPurchaseOrder, doc.ID, req)
	require.ErrorIs(t, err, ErrNotDraft)
	require.ErrorIs(t, err, httpx.ErrConflict)
}

func TestServiceUpdateUnknownDocument(t *testing.T) {
	f := newServiceFixture(t)
	_, err := f.svc.Update(context.Background(), testTenant, KindInvoice, 99, saveRequest(lineRequest("1", "1")))
	require.ErrorIs(t, err, httpx.ErrNotFound)
}

func TestServiceTransition(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	doc, err := f.svc.Create(ctx, testTenant, KindQuotation, saveRequest(lineRequest("1", "10")))
	require.NoError(t, err)

	_, err = f.svc.Transition(ctx, testTenant, KindQuotation, doc.ID, StatusAccepted)
	require.ErrorIs(t, err, ErrInvalidStatus)

	_, err = f.svc.Transition(ctx, testTenant, KindQuotation, doc.ID, StatusPaid)
	require.ErrorIs(t, err, httpx.ErrValidation)

	sent, err := f.svc.Transition(ctx, testTenant, KindQuotation, doc.ID, StatusSent)
	require.NoError(t, err)
	assert.Equal(t, StatusSent, sent.Status)
	assert.Equal(t, StatusSent, f.repo.stored(doc.ID).Status)

	last := f.audit.logs[len(f.audit.logs)-1]
	assert.Equal(t, "document.status", last.Action)
	assert.Equal(t, StatusDraft, last.Meta["from"])

	_, err = f.svc.Transition(ctx, shared.Tenant{CompanyID: 99, UserID: 1}, KindQuotation, doc.ID, StatusAccepted)
	require.ErrorIs(t, err, httpx.ErrNotFound)
}

func TestServiceList(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := f.svc.Create(ctx, testTenant, KindInvoice, saveRequest(lineRequest("1", "10")))
		require.NoError(t, err)
	}
	_, err := f.svc.Create(ctx, testTenant, KindQuotation, saveRequest(lineRequest("1", "10")))
	require.NoError(t, err)

	items, page, err := f.svc.List(ctx, ListFilter{CompanyID: testTenant.CompanyID, Kind: KindInvoice, Limit: 2})
	require.NoError(t, err)
	assert.Len(t, items, 2)
	assert.Equal(t, 3, page.Total)
	assert.Equal(t, 2, page.TotalPages)

	draft := StatusDraft
	items, _, err = f.svc.List(ctx, ListFilter{CompanyID: testTenant.CompanyID, Kind: KindQuotation, Status: &draft})
	require.NoError(t, err)
	assert.Len(t, items, 1)
}

func TestServiceRepriceDrafts(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	draft, err := f.svc.Create(ctx, testTenant, KindInvoice, saveRequest(lineRequest("1", "100")))
	require.NoError(t, err)
	issued, err := f.svc.Create(ctx, testTenant, KindInvoice, saveRequest(lineRequest("1", "100")))
	require.NoError(t, err)
	_, err = f.svc.Transition(ctx, testTenant, KindInvoice, issued.ID, StatusIssued)
	require.NoError(t, err)

	n, err := f.svc.RepriceDrafts(ctx, testTenant.CompanyID)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	cfg := fiscal.DefaultConfig(testTenant.CompanyID)
	cfg.IVAEnabled = false
	f.fiscal.set(cfg)

	n, err = f.svc.RepriceDrafts(ctx, testTenant.CompanyID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assertDecimal(t, "100", f.repo.stored(draft.ID).Totals().GrandTotal)
	assertDecimal(t, "119", f.repo.stored(issued.ID).Totals().GrandTotal)

	stored, _ := f.repo.stored(draft.ID).Fiscal()
	assert.False(t, stored.IVAEnabled)
}

func TestServiceRepriceDraftsStoresNewRoundingRule(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	draft, err := f.svc.Create(ctx, testTenant, KindPOSSale, saveRequest(lineRequest("1", "100")))
	require.NoError(t, err)

	cfg := fiscal.DefaultConfig(testTenant.CompanyID)
	cfg.RoundingRule = fiscal.RoundingNearest10
	f.fiscal.set(cfg)

	n, err := f.svc.RepriceDrafts(ctx, testTenant.CompanyID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	stored, _ := f.repo.stored(draft.ID).Fiscal()
	assert.Equal(t, fiscal.RoundingNearest10, stored.RoundingRule)
	assertDecimal(t, "120", f.repo.stored(draft.ID).Payable())
}

func TestServiceRejectsUnknownKind(t *testing.T) {
	f := newServiceFixture(t)
	_, err := f.svc.Create(context.Background(), testTenant, Kind("RECEIPT"), saveRequest(lineRequest("1", "1")))
	require.ErrorIs(t, err, ErrUnknownKind)
}
