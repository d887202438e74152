package usecase

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/macrolens/productcheck/internal/domain"
	"github.com/macrolens/productcheck/internal/infrastructure/cache"
)

// fakeCatalog is an in-memory domain.InternalSource. Search returns products
// whose name contains the query; Verify delegates to verifyFn.
type fakeCatalog struct {
	products  []domain.CatalogProduct
	searchErr error
	verifyFn  func(ctx context.Context, query string) (*domain.InternalVerdict, error)
	// gate, when set, blocks Search until closed or ctx is done
	gate chan struct{}

	searchCalls atomic.Int32
	verifyCalls atomic.Int32
}

func (f *fakeCatalog) Search(ctx context.Context, query string, filters domain.SearchFilters) ([]domain.CatalogProduct, error) {
	f.searchCalls.Add(1)
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	var out []domain.CatalogProduct
	for _, p := range f.products {
		if strings.Contains(strings.ToLower(p.Name), query) && filters.Matches(p) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeCatalog) Verify(ctx context.Context, query, userID string, filters domain.SearchFilters) (*domain.InternalVerdict, error) {
	f.verifyCalls.Add(1)
	if f.verifyFn == nil {
		return &domain.InternalVerdict{Result: domain.VerdictNotFound}, nil
	}
	return f.verifyFn(ctx, query)
}

// fakeDatabase is a scriptable domain.ProductDatabase
type fakeDatabase struct {
	searchFn func(ctx context.Context, query string) ([]domain.ExternalProduct, error)
	lookupFn func(ctx context.Context, identifier, name string) (*domain.VerificationResult, error)

	searchCalls atomic.Int32
	lookupCalls atomic.Int32
}

func (f *fakeDatabase) Search(ctx context.Context, query string) ([]domain.ExternalProduct, error) {
	f.searchCalls.Add(1)
	if f.searchFn == nil {
		return nil, nil
	}
	return f.searchFn(ctx, query)
}

func (f *fakeDatabase) Lookup(ctx context.Context, identifier, name string) (*domain.VerificationResult, error) {
	f.lookupCalls.Add(1)
	if f.lookupFn == nil {
		return nil, domain.ErrProductNotFound
	}
	return f.lookupFn(ctx, identifier, name)
}

// recordingMetrics keeps every source observation
type recordingMetrics struct {
	domain.NopMetrics
	mu       sync.Mutex
	outcomes []string
}

func (m *recordingMetrics) ObserveSource(source, op, outcome string, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcomes = append(m.outcomes, source+"/"+op+"/"+outcome)
}

func (m *recordingMetrics) seen() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.outcomes...)
}

func returnProducts(products ...domain.ExternalProduct) func(context.Context, string) ([]domain.ExternalProduct, error) {
	return func(context.Context, string) ([]domain.ExternalProduct, error) {
		return products, nil
	}
}

// blockUntilDone waits for ctx and reports its error
func blockUntilDone(ctx context.Context, _ string) ([]domain.ExternalProduct, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func foundResult(name string, confidence float64, verified bool) func(context.Context, string, string) (*domain.VerificationResult, error) {
	return func(context.Context, string, string) (*domain.VerificationResult, error) {
		return &domain.VerificationResult{
			Found:      true,
			Verified:   verified,
			Confidence: confidence,
			Product:    &domain.Product{Name: name},
		}, nil
	}
}

func verdict(result domain.Verdict, p *domain.CatalogProduct) func(context.Context, string) (*domain.InternalVerdict, error) {
	return func(context.Context, string) (*domain.InternalVerdict, error) {
		return &domain.InternalVerdict{Result: result, Product: p}, nil
	}
}

func catalogOf(names ...string) *fakeCatalog {
	c := &fakeCatalog{}
	for i, n := range names {
		c.products = append(c.products, domain.CatalogProduct{
			ID:     string(rune('a' + i)),
			Name:   n,
			Status: domain.StatusApproved,
		})
	}
	return c
}

type fixture struct {
	catalog    *fakeCatalog
	databases  []*fakeDatabase
	cache      *cache.SuggestionCache
	aggregator *Aggregator
	verifier   *Verifier
}

// newFixture wires an aggregator and verifier over catalog and one external
// source per database, each with the given timeout budget
func newFixture(catalog *fakeCatalog, timeout time.Duration, dbs ...*fakeDatabase) *fixture {
	logger := zerolog.Nop()
	internal := NewInternalAdapter(catalog, logger, nil)

	externals := make([]*ExternalSource, len(dbs))
	for i, db := range dbs {
		id := []string{"openfoodfacts", "usda", "third"}[i]
		externals[i] = NewExternalSource(domain.SourceDescriptor{ID: id, Timeout: timeout}, db, logger, nil)
	}

	c := cache.NewSuggestionCache(cache.Config{})
	return &fixture{
		catalog:    catalog,
		databases:  dbs,
		cache:      c,
		aggregator: NewAggregator(internal, externals, c, AggregatorConfig{}, logger, nil),
		verifier:   NewVerifier(internal, externals, VerifierConfig{}, logger, nil),
	}
}
