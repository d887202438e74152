package usecase

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/macrolens/productcheck/internal/domain"
	"github.com/macrolens/productcheck/internal/infrastructure/cache"
)

// Aggregator defaults
const (
	DefaultInternalThreshold = 3
	DefaultMaxSuggestions    = 10
)

// Suggestion outcomes used as metric labels
const (
	suggestRejected = "rejected"
	suggestCacheHit = "cache_hit"
	suggestInternal = "internal_only"
	suggestExternal = "with_external"
)

// AggregatorConfig holds suggestion policy settings
type AggregatorConfig struct {
	MinQueryLength int
	// InternalThreshold is the internal result count below which external sources are consulted
	InternalThreshold int
	MaxSuggestions    int
	// DedupeExternal drops external products whose normalized name matches an internal suggestion
	DedupeExternal bool
}

// SuggestionSet is a merged suggestion result. Internal names occupy indices
// [0, len(Suggestions)); external products follow them.
type SuggestionSet struct {
	Query            string                   `json:"query"`
	Suggestions      []string                 `json:"suggestions"`
	ExternalProducts []domain.ExternalProduct `json:"externalProducts"`
	IsLoading        bool                     `json:"isLoading"`
	FromCache        bool                     `json:"fromCache"`
}

// EmptySuggestions returns the neutral result for query
func EmptySuggestions(query string) SuggestionSet {
	return SuggestionSet{
		Query:            query,
		Suggestions:      []string{},
		ExternalProducts: []domain.ExternalProduct{},
	}
}

// Len returns the number of addressable items
func (s SuggestionSet) Len() int {
	return len(s.Suggestions) + len(s.ExternalProducts)
}

// At returns the item at index i of the combined list
func (s SuggestionSet) At(i int) (Suggestion, bool) {
	switch {
	case i < 0 || i >= s.Len():
		return Suggestion{}, false
	case i < len(s.Suggestions):
		return Suggestion{Name: s.Suggestions[i]}, true
	default:
		p := s.ExternalProducts[i-len(s.Suggestions)]
		return Suggestion{Name: p.Name, External: &p}, true
	}
}

func (s SuggestionSet) clone() SuggestionSet {
	s.Suggestions = slices.Clone(s.Suggestions)
	s.ExternalProducts = slices.Clone(s.ExternalProducts)
	if s.Suggestions == nil {
		s.Suggestions = []string{}
	}
	if s.ExternalProducts == nil {
		s.ExternalProducts = []domain.ExternalProduct{}
	}
	return s
}

// Suggestion is one selectable item: a catalog name, or an external product
type Suggestion struct {
	Name     string                  `json:"name"`
	External *domain.ExternalProduct `json:"externalProduct,omitempty"`
}

// IsExternal reports whether the item originated from an external source
func (s Suggestion) IsExternal() bool { return s.External != nil }

// Aggregator decides which sources to call for a query and merges their output
type Aggregator struct {
	internal  *InternalAdapter
	externals []*ExternalSource
	cache     *cache.SuggestionCache
	cfg       AggregatorConfig
	flights   singleflight.Group
	logger    zerolog.Logger
	metrics   domain.Metrics
}

// NewAggregator creates an aggregator over the given sources and cache
func NewAggregator(
	internal *InternalAdapter,
	externals []*ExternalSource,
	suggestionCache *cache.SuggestionCache,
	cfg AggregatorConfig,
	logger zerolog.Logger,
	metrics domain.Metrics,
) *Aggregator {
	if cfg.MinQueryLength <= 0 {
		cfg.MinQueryLength = domain.DefaultMinQueryLength
	}
	if cfg.InternalThreshold <= 0 {
		cfg.InternalThreshold = DefaultInternalThreshold
	}
	if cfg.MaxSuggestions <= 0 {
		cfg.MaxSuggestions = DefaultMaxSuggestions
	}
	if metrics == nil {
		metrics = domain.NopMetrics{}
	}
	return &Aggregator{
		internal:  internal,
		externals: externals,
		cache:     suggestionCache,
		cfg:       cfg,
		logger:    logger,
		metrics:   metrics,
	}
}

// MinQueryLength returns the configured minimum query length
func (a *Aggregator) MinQueryLength() int { return a.cfg.MinQueryLength }

// Suggest returns merged suggestions for q. On a cache miss, onInternal
// (when non-nil) receives the internal matches with IsLoading set before
// external sources are consulted. Concurrent calls for the same key share
// one fetch; only the caller that started it sees onInternal.
//
// A canceled ctx returns ctx.Err() and caches nothing.
func (a *Aggregator) Suggest(ctx context.Context, q domain.Query, filters domain.SearchFilters, onInternal func(SuggestionSet)) (SuggestionSet, error) {
	if utf8.RuneCountInString(q.Key) < a.cfg.MinQueryLength {
		a.metrics.Suggestion(suggestRejected)
		return EmptySuggestions(q.Raw), domain.ErrQueryTooShort
	}

	key := cacheKey(q, filters)

	for {
		if entry, ok := a.cache.Get(key); ok {
			a.metrics.CacheLookup(true)
			a.metrics.Suggestion(suggestCacheHit)
			set := SuggestionSet{
				Query:            q.Raw,
				Suggestions:      entry.Suggestions,
				ExternalProducts: entry.ExternalProducts,
				FromCache:        true,
			}
			return set.clone(), nil
		}
		a.metrics.CacheLookup(false)

		ch := a.flights.DoChan(key, func() (any, error) {
			return a.fetch(ctx, q, filters, key, onInternal)
		})

		select {
		case <-ctx.Done():
			return SuggestionSet{}, ctx.Err()
		case res := <-ch:
			if res.Err != nil {
				// The fetch we joined belonged to a superseded caller; run our own
				if errors.Is(res.Err, context.Canceled) && ctx.Err() == nil {
					continue
				}
				return SuggestionSet{}, res.Err
			}
			set := res.Val.(SuggestionSet).clone()
			set.Query = q.Raw
			return set, nil
		}
	}
}

// fetch performs the uncached path: internal first, external only if the
// catalog answered with fewer than InternalThreshold matches.
func (a *Aggregator) fetch(ctx context.Context, q domain.Query, filters domain.SearchFilters, key string, onInternal func(SuggestionSet)) (SuggestionSet, error) {
	internalOK := true
	products, err := a.internal.Search(ctx, q.Key, filters)
	if err != nil {
		if ctx.Err() != nil {
			return SuggestionSet{}, ctx.Err()
		}
		// Suggestions absorb failures; the user just sees fewer matches
		a.logger.Warn().Err(err).Str("query", q.Key).Msg("internal search failed")
		internalOK = false
		products = nil
	}

	names := make([]string, 0, min(len(products), a.cfg.MaxSuggestions))
	for _, p := range products {
		if len(names) == a.cfg.MaxSuggestions {
			break
		}
		names = append(names, p.Name)
	}

	set := SuggestionSet{
		Query:            q.Raw,
		Suggestions:      names,
		ExternalProducts: []domain.ExternalProduct{},
	}

	callExternal := len(names) < a.cfg.InternalThreshold && len(a.externals) > 0
	if !callExternal {
		a.metrics.Suggestion(suggestInternal)
	} else {
		if onInternal != nil {
			partial := set.clone()
			partial.IsLoading = true
			onInternal(partial)
		}
		set.ExternalProducts = a.searchExternal(ctx, q)
		a.metrics.Suggestion(suggestExternal)
	}

	if ctx.Err() != nil {
		return SuggestionSet{}, ctx.Err()
	}

	if a.cfg.DedupeExternal {
		set.ExternalProducts = dedupeExternal(set.Suggestions, set.ExternalProducts)
	}

	// A failed catalog call would pin an incomplete answer for the whole TTL
	if internalOK {
		a.cache.Set(key, cache.Entry{
			Suggestions:      set.Suggestions,
			ExternalProducts: set.ExternalProducts,
		})
		a.metrics.CacheSize(a.cache.Size())
	}

	return set, nil
}

// searchExternal queries every external source concurrently and concatenates
// their results in registration order
func (a *Aggregator) searchExternal(ctx context.Context, q domain.Query) []domain.ExternalProduct {
	results := make([][]domain.ExternalProduct, len(a.externals))

	var wg sync.WaitGroup
	for i, src := range a.externals {
		wg.Add(1)
		go func(i int, src *ExternalSource) {
			defer wg.Done()
			results[i] = src.QuickSearch(ctx, q.Raw)
		}(i, src)
	}
	wg.Wait()

	merged := []domain.ExternalProduct{}
	for _, r := range results {
		merged = append(merged, r...)
	}
	return merged
}

// dedupeExternal drops external products whose normalized name equals an internal suggestion
func dedupeExternal(names []string, products []domain.ExternalProduct) []domain.ExternalProduct {
	seen := make(map[string]bool, len(names))
	for _, n := range names {
		seen[domain.NormalizeKey(n)] = true
	}
	out := make([]domain.ExternalProduct, 0, len(products))
	for _, p := range products {
		if seen[domain.NormalizeKey(p.Name)] {
			continue
		}
		out = append(out, p)
	}
	return out
}

// cacheKey is the normalized query, extended with any filters in use
func cacheKey(q domain.Query, f domain.SearchFilters) string {
	if f.Category == "" && f.Country == "" && f.State == "" && len(f.NutriScore) == 0 {
		return q.Key
	}
	grades := make([]string, len(f.NutriScore))
	for i, g := range f.NutriScore {
		grades[i] = strings.ToLower(g)
	}
	sort.Strings(grades)
	return fmt.Sprintf("%s|c=%s|n=%s|co=%s|s=%s",
		q.Key,
		strings.ToLower(f.Category),
		strings.Join(grades, ","),
		strings.ToLower(f.Country),
		strings.ToLower(f.State),
	)
}
