package fiscal

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/tally/internal/platform/db"
	"github.com/odyssey-erp/tally/internal/platform/httpx"
)

// ErrNotFound indicates the tenant has no stored configuration.
var ErrNotFound = fmt.Errorf("fiscal config %w", httpx.ErrNotFound)

// Repository persists tenant fiscal configurations.
type Repository interface {
	Get(ctx context.Context, companyID int64) (Config, error)
	Upsert(ctx context.Context, cfg Config) (Config, error)
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository returns a pgx backed Repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

const selectConfig = `SELECT company_id, iva_rate, iva_enabled, tax_mode, rounding_rule, updated_at
FROM tenant_fiscal_configs WHERE company_id = $1`

func (r *repository) Get(ctx context.Context, companyID int64) (Config, error) {
	cfg, err := scanConfig(r.pool.QueryRow(ctx, selectConfig, companyID))
	if errors.Is(err, pgx.ErrNoRows) {
		return Config{}, ErrNotFound
	}
	return cfg, err
}

const upsertConfig = `INSERT INTO tenant_fiscal_configs (company_id, iva_rate, iva_enabled, tax_mode, rounding_rule, updated_at)
VALUES ($1, $2, $3, $4, $5, NOW())
ON CONFLICT (company_id) DO UPDATE SET
	iva_rate = EXCLUDED.iva_rate,
	iva_enabled = EXCLUDED.iva_enabled,
	tax_mode = EXCLUDED.tax_mode,
	rounding_rule = EXCLUDED.rounding_rule,
	updated_at = NOW()
RETURNING company_id, iva_rate, iva_enabled, tax_mode, rounding_rule, updated_at`

func (r *repository) Upsert(ctx context.Context, cfg Config) (Config, error) {
	return scanConfig(r.pool.QueryRow(ctx, upsertConfig,
		cfg.CompanyID, db.Numeric(cfg.IVARate), cfg.IVAEnabled, string(cfg.TaxMode), string(cfg.RoundingRule)))
}

func scanConfig(row pgx.Row) (Config, error) {
	var (
		cfg  Config
		rate pgtype.Numeric
		mode string
		rule string
	)
	if err := row.Scan(&cfg.CompanyID, &rate, &cfg.IVAEnabled, &mode, &rule, &cfg.UpdatedAt); err != nil {
		return Config{}, err
	}
	cfg.IVARate = db.Decimal(rate)
	cfg.TaxMode = TaxMode(mode)
	cfg.RoundingRule = RoundingRule(rule)
	return cfg, nil
}
