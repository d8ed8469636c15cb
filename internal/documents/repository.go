package documents

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/tally/internal/fiscal"
	"github.com/odyssey-erp/tally/internal/platform/db"
	"github.com/odyssey-erp/tally/internal/platform/httpx"
	"github.com/odyssey-erp/tally/internal/pricing"
)

var (
	// ErrNotFound indicates the document does not exist for the tenant.
	ErrNotFound = fmt.Errorf("document %w", httpx.ErrNotFound)
	// ErrDuplicate indicates a unique constraint, typically the document number.
	ErrDuplicate = fmt.Errorf("document %w", httpx.ErrConflict)
)

// Repository persists documents and their lines.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, Repository) error) error
	Get(ctx context.Context, companyID int64, kind Kind, id int64) (Document, error)
	List(ctx context.Context, filter ListFilter) ([]Summary, int, error)
	Create(ctx context.Context, doc Document) (Document, error)
	Update(ctx context.Context, doc Document) (Document, error)
	UpdateStatus(ctx context.Context, companyID, id int64, from, to Status) error
	NextNumber(ctx context.Context, companyID int64, kind Kind, date time.Time) (string, error)
	ListDrafts(ctx context.Context, companyID int64) ([]Document, error)
}

type dbtx interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
	SendBatch(context.Context, *pgx.Batch) pgx.BatchResults
}

type repository struct {
	db   dbtx
	pool *pgxpool.Pool
}

// NewRepository returns a pgx backed Repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{db: pool, pool: pool}
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, Repository) error) error {
	if _, ok := r.db.(pgx.Tx); ok {
		return fn(ctx, r)
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &repository{db: tx, pool: r.pool})
	})
}

const documentColumns = `d.id, d.kind, d.number, d.company_id, d.party_id, d.currency, d.status, d.issue_date, d.notes,
	d.global_discount_pct, d.global_discount_amount,
	d.fiscal_iva_rate, d.fiscal_iva_enabled, d.fiscal_tax_mode, d.fiscal_rounding_rule,
	d.created_by, d.created_at, d.updated_at`

func (r *repository) Get(ctx context.Context, companyID int64, kind Kind, id int64) (Document, error) {
	row := r.db.QueryRow(ctx, `SELECT `+documentColumns+`
		FROM documents d WHERE d.id = $1 AND d.company_id = $2 AND d.kind = $3`, id, companyID, string(kind))
	h, err := scanHeader(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Document{}, ErrNotFound
		}
		return Document{}, err
	}
	lines, err := r.lines(ctx, h.doc.ID)
	if err != nil {
		return Document{}, err
	}
	return h.restore(lines), nil
}

func (r *repository) List(ctx context.Context, filter ListFilter) ([]Summary, int, error) {
	conditions := []string{"company_id = $1", "kind = $2"}
	args := []interface{}{filter.CompanyID, string(filter.Kind)}
	if filter.Status != nil {
		args = append(args, string(*filter.Status))
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}
	where := "WHERE " + strings.Join(conditions, " AND ")

	var total int
	if err := r.db.QueryRow(ctx, "SELECT COUNT(*) FROM documents "+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(`SELECT id, kind, number, party_id, currency, status, issue_date, grand_total, payable_total, updated_at
		FROM documents %s
		ORDER BY issue_date DESC, id DESC
		LIMIT $%d OFFSET $%d`, where, len(args)+1, len(args)+2)
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var (
			s            Summary
			kind, status string
			partyID      pgtype.Int8
			grand, pay   pgtype.Numeric
		)
		if err := rows.Scan(&s.ID, &kind, &s.Number, &partyID, &s.Currency, &status, &s.IssueDate, &grand, &pay, &s.UpdatedAt); err != nil {
			return nil, 0, err
		}
		s.Kind = Kind(kind)
		s.Status = Status(status)
		if partyID.Valid {
			s.PartyID = &partyID.Int64
		}
		s.GrandTotal = db.Decimal(grand)
		s.PayableTotal = db.Decimal(pay)
		out = append(out, s)
	}
	return out, total, rows.Err()
}

func (r *repository) Create(ctx context.Context, doc Document) (Document, error) {
	cfg, _ := doc.Fiscal()
	pct, amount := doc.GlobalDiscount()
	totals := doc.Totals()
	err := r.db.QueryRow(ctx, `INSERT INTO documents (
			kind, number, company_id, party_id, currency, status, issue_date, notes,
			global_discount_pct, global_discount_amount,
			fiscal_iva_rate, fiscal_iva_enabled, fiscal_tax_mode, fiscal_rounding_rule,
			subtotal, items_discount_total, global_discount, tax_total, grand_total, payable_total,
			created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, NOW(), NOW())
		RETURNING id, created_at, updated_at`,
		string(doc.Kind), doc.Number, doc.CompanyID, doc.PartyID, doc.Currency, string(doc.Status), doc.IssueDate, doc.Notes,
		db.Numeric(pct), db.Numeric(amount),
		db.Numeric(cfg.IVARate), cfg.IVAEnabled, string(cfg.TaxMode), string(cfg.RoundingRule),
		money(totals.Subtotal), money(totals.ItemsDiscountTotal), money(totals.GlobalDiscount),
		money(totals.TaxTotal), money(totals.GrandTotal), money(doc.Payable()),
		doc.CreatedBy,
	).Scan(&doc.ID, &doc.CreatedAt, &doc.UpdatedAt)
	if err != nil {
		return Document{}, mapWriteError(err)
	}
	if err := r.insertLines(ctx, doc); err != nil {
		return Document{}, err
	}
	return doc, nil
}

func (r *repository) Update(ctx context.Context, doc Document) (Document, error) {
	cfg, _ := doc.Fiscal()
	pct, amount := doc.GlobalDiscount()
	totals := doc.Totals()
	tag, err := r.db.Exec(ctx, `UPDATE documents SET
			party_id = $3, currency = $4, issue_date = $5, notes = $6,
			global_discount_pct = $7, global_discount_amount = $8,
			fiscal_iva_rate = $9, fiscal_iva_enabled = $10, fiscal_tax_mode = $11, fiscal_rounding_rule = $12,
			subtotal = $13, items_discount_total = $14, global_discount = $15, tax_total = $16,
			grand_total = $17, payable_total = $18, updated_at = NOW()
		WHERE id = $1 AND company_id = $2`,
		doc.ID, doc.CompanyID, doc.PartyID, doc.Currency, doc.IssueDate, doc.Notes,
		db.Numeric(pct), db.Numeric(amount),
		db.Numeric(cfg.IVARate), cfg.IVAEnabled, string(cfg.TaxMode), string(cfg.RoundingRule),
		money(totals.Subtotal), money(totals.ItemsDiscountTotal), money(totals.GlobalDiscount),
		money(totals.TaxTotal), money(totals.GrandTotal), money(doc.Payable()),
	)
	if err != nil {
		return Document{}, mapWriteError(err)
	}
	if tag.RowsAffected() == 0 {
		return Document{}, ErrNotFound
	}
	if _, err := r.db.Exec(ctx, `DELETE FROM document_lines WHERE document_id = $1`, doc.ID); err != nil {
		return Document{}, err
	}
	if err := r.insertLines(ctx, doc); err != nil {
		return Document{}, err
	}
	doc.UpdatedAt = time.Now()
	return doc, nil
}

func (r *repository) UpdateStatus(ctx context.Context, companyID, id int64, from, to Status) error {
	tag, err := r.db.Exec(ctx, `UPDATE documents SET status = $4, updated_at = NOW()
		WHERE id = $1 AND company_id = $2 AND status = $3`, id, companyID, string(from), string(to))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrInvalidStatus
	}
	return nil
}

func (r *repository) NextNumber(ctx context.Context, companyID int64, kind Kind, date time.Time) (string, error) {
	// {PREFIX}-{YY}{MM}-{SEQ}
	var seq int64
	err := r.db.QueryRow(ctx, `
		INSERT INTO document_sequences (company_id, doc_type, period, seq)
		VALUES ($1, $2, $3, 1)
		ON CONFLICT (company_id, doc_type, period)
		DO UPDATE SET seq = document_sequences.seq + 1
		RETURNING seq
	`, companyID, kind.NumberPrefix(), date.Format("200601")).Scan(&seq)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s-%s-%04d", kind.NumberPrefix(), date.Format("0601"), seq), nil
}

func (r *repository) ListDrafts(ctx context.Context, companyID int64) ([]Document, error) {
	rows, err := r.db.Query(ctx, `SELECT `+documentColumns+`
		FROM documents d WHERE d.company_id = $1 AND d.status = $2 ORDER BY d.id`, companyID, string(StatusDraft))
	if err != nil {
		return nil, err
	}
	var headers []header
	for rows.Next() {
		h, err := scanHeader(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		headers = append(headers, h)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	docs := make([]Document, 0, len(headers))
	for _, h := range headers {
		lines, err := r.lines(ctx, h.doc.ID)
		if err != nil {
			return nil, err
		}
		docs = append(docs, h.restore(lines))
	}
	return docs, nil
}

func (r *repository) insertLines(ctx context.Context, doc Document) error {
	batch := &pgx.Batch{}
	for i, l := range doc.Lines() {
		var rate pgtype.Numeric
		if l.TaxRate != nil {
			rate = db.Numeric(*l.TaxRate)
		}
		batch.Queue(`INSERT INTO document_lines (
				document_id, line_no, line_key, product_id, description,
				quantity, unit_price, discount_pct, discount_amount, tax_rate,
				subtotal, discount_total, global_discount_share, taxable_base, tax_amount, line_total)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
			doc.ID, i+1, pgtype.UUID{Bytes: [16]byte(l.Key), Valid: true}, l.ProductID, l.Description,
			db.Numeric(l.Quantity), db.Numeric(l.UnitPrice), db.Numeric(l.DiscountPercentage), db.Numeric(l.DiscountAmount), rate,
			money(l.Result.Subtotal), money(l.Result.DiscountTotal), money(l.Result.GlobalDiscountShare), money(l.Result.TaxableBase),
			money(l.Result.TaxAmount), money(l.Result.LineTotal),
		)
	}
	if batch.Len() == 0 {
		return nil
	}
	results := r.db.SendBatch(ctx, batch)
	defer results.Close()
	for i := 0; i < batch.Len(); i++ {
		if _, err := results.Exec(); err != nil {
			return mapWriteError(err)
		}
	}
	return nil
}

func (r *repository) lines(ctx context.Context, documentID int64) ([]Line, error) {
	rows, err := r.db.Query(ctx, `SELECT line_key, product_id, description, quantity, unit_price, discount_pct, discount_amount, tax_rate
		FROM document_lines WHERE document_id = $1 ORDER BY line_no`, documentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Line
	for rows.Next() {
		var (
			l                    Line
			key                  pgtype.UUID
			qty, price, pct, amt pgtype.Numeric
			rate                 pgtype.Numeric
		)
		if err := rows.Scan(&key, &l.ProductID, &l.Description, &qty, &price, &pct, &amt, &rate); err != nil {
			return nil, err
		}
		l.Key = uuid.UUID(key.Bytes)
		l.Quantity = db.Decimal(qty)
		l.UnitPrice = db.Decimal(price)
		l.DiscountPercentage = db.Decimal(pct)
		l.DiscountAmount = db.Decimal(amt)
		if rate.Valid {
			v := db.Decimal(rate)
			l.TaxRate = &v
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// header is a scanned documents row awaiting its lines.
type header struct {
	doc    Document
	pct    pgtype.Numeric
	amount pgtype.Numeric
	cfg    fiscal.Config
}

func (h header) restore(lines []Line) Document {
	doc := h.doc
	doc.globalPct = db.Decimal(h.pct)
	doc.globalAmount = db.Decimal(h.amount)
	cfg := h.cfg
	doc.fiscal = &cfg
	return doc.WithItems(lines)
}

func scanHeader(row pgx.Row) (header, error) {
	var (
		h            header
		kind, status string
		partyID      pgtype.Int8
		rate         pgtype.Numeric
		mode, rule   string
	)
	err := row.Scan(
		&h.doc.ID, &kind, &h.doc.Number, &h.doc.CompanyID, &partyID, &h.doc.Currency, &status, &h.doc.IssueDate, &h.doc.Notes,
		&h.pct, &h.amount,
		&rate, &h.cfg.IVAEnabled, &mode, &rule,
		&h.doc.CreatedBy, &h.doc.CreatedAt, &h.doc.UpdatedAt,
	)
	if err != nil {
		return header{}, err
	}
	h.doc.Kind = Kind(kind)
	h.doc.Status = Status(status)
	if partyID.Valid {
		h.doc.PartyID = &partyID.Int64
	}
	h.cfg.CompanyID = h.doc.CompanyID
	h.cfg.IVARate = db.Decimal(rate)
	h.cfg.TaxMode = fiscal.TaxMode(mode)
	h.cfg.RoundingRule = fiscal.RoundingRule(rule)
	return h, nil
}

func money(v decimal.Decimal) pgtype.Numeric {
	return db.Numeric(pricing.RoundMoney(v))
}

func mapWriteError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("%w: %s", ErrDuplicate, pgErr.ConstraintName)
	}
	return err
}
