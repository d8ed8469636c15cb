package fiscal

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/tally/internal/shared"
)

type memoryRepo struct {
	mu      sync.Mutex
	configs map[int64]Config
	gets    int
	getErr  error
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{configs: make(map[int64]Config)}
}

func (m *memoryRepo) Get(ctx context.Context, companyID int64) (Config, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gets++
	if m.getErr != nil {
		return Config{}, m.getErr
	}
	cfg, ok := m.configs[companyID]
	if !ok {
		return Config{}, ErrNotFound
	}
	return cfg, nil
}

func (m *memoryRepo) Upsert(ctx context.Context, cfg Config) (Config, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cfg.UpdatedAt = time.Now().UTC()
	m.configs[cfg.CompanyID] = cfg
	return cfg, nil
}

func (m *memoryRepo) getCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.gets
}

// gatedRepo holds its first Get until release is closed, after the row has
// been read.
type gatedRepo struct {
	*memoryRepo
	once    sync.Once
	started chan struct{}
	release chan struct{}
}

func newGatedRepo(repo *memoryRepo) *gatedRepo {
	return &gatedRepo{memoryRepo: repo, started: make(chan struct{}), release: make(chan struct{})}
}

func (g *gatedRepo) Get(ctx context.Context, companyID int64) (Config, error) {
	cfg, err := g.memoryRepo.Get(ctx, companyID)
	first := false
	g.once.Do(func() { first = true })
	if first {
		close(g.started)
		<-g.release
	}
	return cfg, err
}

type recordingEnqueuer struct {
	companies []int64
	err       error
}

func (r *recordingEnqueuer) EnqueueRepriceDrafts(ctx context.Context, companyID int64) error {
	r.companies = append(r.companies, companyID)
	return r.err
}

type recordingAudit struct {
	logs []shared.AuditLog
}

func (r *recordingAudit) Record(ctx context.Context, log shared.AuditLog) error {
	r.logs = append(r.logs, log)
	return nil
}

type countingObserver struct {
	mu      sync.Mutex
	hits    int
	misses  int
	dropped int
}

func (o *countingObserver) FiscalCacheLookup(hit bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if hit {
		o.hits++
	} else {
		o.misses++
	}
}

func (o *countingObserver) FiscalReloadDropped() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.dropped++
}

type serviceFixture struct {
	svc      *Service
	repo     *memoryRepo
	enqueuer *recordingEnqueuer
	audit    *recordingAudit
	observer *countingObserver
}

func newServiceFixture(t *testing.T) serviceFixture {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	f := serviceFixture{
		repo:     newMemoryRepo(),
		enqueuer: &recordingEnqueuer{},
		audit:    &recordingAudit{},
		observer: &countingObserver{},
	}
	f.svc = NewService(f.repo, NewCache(client, time.Minute), f.enqueuer, f.audit, f.observer, nil, ServiceConfig{})
	return f
}

func TestServiceGetDefaultsWhenMissing(t *testing.T) {
	f := newServiceFixture(t)
	cfg, err := f.svc.Get(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(42), cfg)
}

func TestServiceGetRejectsMissingTenant(t *testing.T) {
	f := newServiceFixture(t)
	_, err := f.svc.Get(context.Background(), 0)
	require.ErrorIs(t, err, shared.ErrNoTenant)
}

func TestServiceGetReadsThroughCache(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	f.repo.configs[7] = Config{CompanyID: 7, IVARate: dec("8"), IVAEnabled: true, TaxMode: TaxModeIncluded, RoundingRule: RoundingTo990}

	first, err := f.svc.Get(ctx, 7)
	require.NoError(t, err)
	second, err := f.svc.Get(ctx, 7)
	require.NoError(t, err)

	assert.True(t, first.IVARate.Equal(second.IVARate))
	assert.Equal(t, RoundingTo990, second.RoundingRule)
	assert.Equal(t, 1, f.repo.getCount())
	assert.Equal(t, 1, f.observer.hits)
	assert.Equal(t, 1, f.observer.misses)
}

func TestServiceGetPropagatesRepositoryErrors(t *testing.T) {
	f := newServiceFixture(t)
	f.repo.getErr = errors.New("db down")
	_, err := f.svc.Get(context.Background(), 3)
	require.Error(t, err)
}

func TestServiceUpdateRefreshesCacheAndResolver(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	resolver, err := f.svc.Resolver(ctx, 5)
	require.NoError(t, err)
	assert.True(t, resolver.Config().IVAEnabled)

	updated := Config{CompanyID: 5, IVARate: dec("19"), IVAEnabled: false, TaxMode: TaxModeExcluded, RoundingRule: RoundingTo90}
	_, err = f.svc.Update(ctx, updated, 11)
	require.NoError(t, err)

	assert.False(t, resolver.Config().IVAEnabled)
	assert.Equal(t, RoundingTo90, resolver.Config().RoundingRule)

	cfg, err := f.svc.Get(ctx, 5)
	require.NoError(t, err)
	assert.False(t, cfg.IVAEnabled)

	assert.Equal(t, []int64{5}, f.enqueuer.companies)
	require.Len(t, f.audit.logs, 1)
	assert.Equal(t, int64(11), f.audit.logs[0].ActorID)
	assert.Equal(t, "fiscal_config.update", f.audit.logs[0].Action)
}

func TestServiceUpdateRejectsInvalidConfig(t *testing.T) {
	f := newServiceFixture(t)
	_, err := f.svc.Update(context.Background(), Config{CompanyID: 5, TaxMode: "X", RoundingRule: RoundingExact}, 1)
	require.Error(t, err)
	assert.Empty(t, f.enqueuer.companies)
}

func TestServiceUpdateSurvivesEnqueueFailure(t *testing.T) {
	f := newServiceFixture(t)
	f.enqueuer.err = errors.New("redis unavailable")
	_, err := f.svc.Update(context.Background(), DefaultConfig(9), 1)
	require.NoError(t, err)
}

func TestServiceUpdateWinsOverInFlightLoad(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	f.repo.configs[7] = Config{
		CompanyID: 7, IVARate: dec("19"), IVAEnabled: true,
		TaxMode: TaxModeExcluded, RoundingRule: RoundingExact,
		UpdatedAt: time.Now().Add(-time.Hour).UTC(),
	}
	gated := newGatedRepo(f.repo)
	f.svc.repo = gated

	var resolver *Resolver
	done := make(chan error, 1)
	go func() {
		r, err := f.svc.Resolver(ctx, 7)
		resolver = r
		done <- err
	}()
	<-gated.started

	updated := Config{CompanyID: 7, IVARate: dec("10"), IVAEnabled: true, TaxMode: TaxModeExcluded, RoundingRule: RoundingExact}
	_, err := f.svc.Update(ctx, updated, 1)
	require.NoError(t, err)
	close(gated.release)
	require.NoError(t, <-done)

	assert.True(t, dec("10").Equal(resolver.Config().IVARate), "resolver rate %s", resolver.Config().IVARate)

	cached, hit, err := f.svc.cache.Get(ctx, 7)
	require.NoError(t, err)
	require.True(t, hit)
	assert.True(t, dec("10").Equal(cached.IVARate), "cache rate %s", cached.IVARate)

	fresh, err := Fresh{Service: f.svc}.ConfigFor(ctx, 7)
	require.NoError(t, err)
	assert.True(t, dec("10").Equal(fresh.IVARate))
	assert.Equal(t, 1, f.observer.dropped)
}
