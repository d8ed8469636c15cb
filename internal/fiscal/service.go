package fiscal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/odyssey-erp/tally/internal/shared"
)

// RepriceEnqueuer schedules recalculation of a tenant's draft documents.
type RepriceEnqueuer interface {
	EnqueueRepriceDrafts(ctx context.Context, companyID int64) error
}

// AuditRecorder stores configuration changes.
type AuditRecorder interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Observer receives cache and reload events for metrics.
type Observer interface {
	FiscalCacheLookup(hit bool)
	FiscalReloadDropped()
}

// ServiceConfig tunes the in-process resolver lifetime.
type ServiceConfig struct {
	ResolverMaxAge time.Duration
}

// Service loads and updates tenant fiscal configurations.
type Service struct {
	repo     Repository
	cache    *Cache
	enqueuer RepriceEnqueuer
	audit    AuditRecorder
	observer Observer
	logger   *slog.Logger
	maxAge   time.Duration

	group       singleflight.Group
	mu          sync.Mutex
	resolvers   map[int64]*Resolver
	generations map[int64]uint64
}

// NewService wires the fiscal service. enqueuer, audit and observer may be nil.
func NewService(repo Repository, cache *Cache, enqueuer RepriceEnqueuer, audit AuditRecorder, observer Observer, logger *slog.Logger, cfg ServiceConfig) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:        repo,
		cache:       cache,
		enqueuer:    enqueuer,
		audit:       audit,
		observer:    observer,
		logger:      logger,
		maxAge:      cfg.ResolverMaxAge,
		resolvers:   make(map[int64]*Resolver),
		generations: make(map[int64]uint64),
	}
}

// Get returns the tenant configuration, reading through the Redis cache.
// Tenants without a stored configuration get DefaultConfig.
func (s *Service) Get(ctx context.Context, companyID int64) (Config, error) {
	if companyID <= 0 {
		return Config{}, shared.ErrNoTenant
	}
	cfg, hit, err := s.cache.Get(ctx, companyID)
	if err != nil {
		s.logger.Warn("fiscal cache get", slog.Int64("company_id", companyID), slog.Any("error", err))
	}
	s.observeCache(hit)
	if hit {
		return cfg, nil
	}

	v, err, _ := s.group.Do(flightKey(companyID), func() (interface{}, error) {
		gen := s.generation(companyID)
		cfg, err := s.repo.Get(ctx, companyID)
		if errors.Is(err, ErrNotFound) {
			return DefaultConfig(companyID), nil
		}
		if err != nil {
			return Config{}, fmt.Errorf("load fiscal config: %w", err)
		}
		// An Update that landed while the row was read owns the cache entry.
		if s.generation(companyID) != gen {
			return cfg, nil
		}
		if err := s.cache.Set(ctx, cfg); err != nil {
			s.logger.Warn("fiscal cache set", slog.Int64("company_id", companyID), slog.Any("error", err))
		}
		return cfg, nil
	})
	if err != nil {
		return Config{}, err
	}
	return v.(Config), nil
}

// Update validates and stores a configuration, then refreshes every cached
// copy and schedules draft repricing. Loads already in flight for the tenant
// are detached so neither the cache nor the resolver can pick up their result.
func (s *Service) Update(ctx context.Context, cfg Config, actorID int64) (Config, error) {
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	saved, err := s.repo.Upsert(ctx, cfg)
	if err != nil {
		return Config{}, fmt.Errorf("save fiscal config: %w", err)
	}
	s.bumpGeneration(saved.CompanyID)
	s.group.Forget(flightKey(saved.CompanyID))
	if err := s.cache.Set(ctx, saved); err != nil {
		s.logger.Warn("fiscal cache set", slog.Int64("company_id", saved.CompanyID), slog.Any("error", err))
		if err := s.cache.Invalidate(ctx, saved.CompanyID); err != nil {
			s.logger.Warn("fiscal cache invalidate", slog.Int64("company_id", saved.CompanyID), slog.Any("error", err))
		}
	}

	if r := s.cachedResolver(saved.CompanyID); r != nil {
		if err := r.Reload(ctx); err != nil {
			s.logger.Warn("fiscal resolver reload", slog.Int64("company_id", saved.CompanyID), slog.Any("error", err))
		}
	}

	if s.audit != nil {
		if err := s.audit.Record(ctx, shared.AuditLog{
			CompanyID: saved.CompanyID,
			ActorID:   actorID,
			Action:    "fiscal_config.update",
			Entity:    "tenant_fiscal_config",
			EntityID:  strconv.FormatInt(saved.CompanyID, 10),
			Meta: map[string]any{
				"iva_rate":      saved.IVARate.String(),
				"iva_enabled":   saved.IVAEnabled,
				"tax_mode":      saved.TaxMode,
				"rounding_rule": saved.RoundingRule,
			},
		}); err != nil {
			s.logger.Warn("fiscal audit", slog.Int64("company_id", saved.CompanyID), slog.Any("error", err))
		}
	}

	if s.enqueuer != nil {
		if err := s.enqueuer.EnqueueRepriceDrafts(ctx, saved.CompanyID); err != nil {
			s.logger.Error("enqueue reprice drafts", slog.Int64("company_id", saved.CompanyID), slog.Any("error", err))
		}
	}
	return saved, nil
}

// Resolver returns the loaded in-process resolver for a tenant.
func (s *Service) Resolver(ctx context.Context, companyID int64) (*Resolver, error) {
	if companyID <= 0 {
		return nil, shared.ErrNoTenant
	}
	s.mu.Lock()
	r, ok := s.resolvers[companyID]
	if !ok {
		r = NewResolver(s, companyID, s.maxAge, s.observer)
		s.resolvers[companyID] = r
	}
	s.mu.Unlock()

	if err := r.Load(ctx); err != nil {
		return nil, err
	}
	return r, nil
}

func (s *Service) generation(companyID int64) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generations[companyID]
}

func (s *Service) bumpGeneration(companyID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generations[companyID]++
}

func flightKey(companyID int64) string {
	return strconv.FormatInt(companyID, 10)
}

func (s *Service) cachedResolver(companyID int64) *Resolver {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resolvers[companyID]
}

func (s *Service) observeCache(hit bool) {
	if s.observer != nil {
		s.observer.FiscalCacheLookup(hit)
	}
}

// ConfigFor returns the tenant configuration held by its in-process resolver.
func (s *Service) ConfigFor(ctx context.Context, companyID int64) (Config, error) {
	r, err := s.Resolver(ctx, companyID)
	if err != nil {
		return Config{}, err
	}
	return r.Config(), nil
}

// Fresh bypasses the in-process resolvers and reads through the shared cache.
// Background workers use it so they see updates made by other processes.
type Fresh struct {
	Service *Service
}

// ConfigFor returns the current tenant configuration.
func (f Fresh) ConfigFor(ctx context.Context, companyID int64) (Config, error) {
	return f.Service.Get(ctx, companyID)
}
