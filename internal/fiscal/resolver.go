package fiscal

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/tally/internal/shared"
)

// Loader fetches a tenant configuration.
type Loader interface {
	Get(ctx context.Context, companyID int64) (Config, error)
}

// Resolver holds one tenant's configuration in memory and answers tax and
// rounding questions synchronously. It changes only through Load or Reload.
type Resolver struct {
	loader    Loader
	companyID int64
	maxAge    time.Duration
	observer  Observer
	now       func() time.Time

	seq      shared.Sequence
	mu       sync.RWMutex
	cfg      Config
	loadedAt time.Time
}

// NewResolver creates an empty resolver. maxAge of zero keeps the first load
// until an explicit Reload.
func NewResolver(loader Loader, companyID int64, maxAge time.Duration, observer Observer) *Resolver {
	return &Resolver{
		loader:    loader,
		companyID: companyID,
		maxAge:    maxAge,
		observer:  observer,
		now:       time.Now,
	}
}

// Load populates the resolver unless it already holds a fresh configuration.
func (r *Resolver) Load(ctx context.Context) error {
	r.mu.RLock()
	fresh := !r.loadedAt.IsZero() && (r.maxAge <= 0 || r.now().Sub(r.loadedAt) < r.maxAge)
	r.mu.RUnlock()
	if fresh {
		return nil
	}
	return r.Reload(ctx)
}

// Reload fetches the configuration again. A response that arrives after a
// newer reload has been applied is discarded.
func (r *Resolver) Reload(ctx context.Context) error {
	token := r.seq.Next()
	cfg, err := r.loader.Get(ctx, r.companyID)
	if err != nil {
		return err
	}
	applied := r.seq.Apply(token, func() {
		r.mu.Lock()
		r.cfg = cfg
		r.loadedAt = r.now()
		r.mu.Unlock()
	})
	if !applied && r.observer != nil {
		r.observer.FiscalReloadDropped()
	}
	return nil
}

// Config returns a copy of the current configuration.
func (r *Resolver) Config() Config {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cfg
}

// CalculateTax splits amount with the current configuration.
func (r *Resolver) CalculateTax(amount decimal.Decimal) Breakdown {
	return r.Config().CalculateTax(amount)
}

// Round applies the current rounding rule.
func (r *Resolver) Round(price decimal.Decimal) decimal.Decimal {
	return r.Config().Round(price)
}
