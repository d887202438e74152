package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/macrolens/productcheck/internal/domain"
)

const (
	// InternalSourceID names the internal catalog in results and metrics
	InternalSourceID = "internal"

	// DefaultExternalTimeout is the timeout budget of an external source call
	DefaultExternalTimeout = 3 * time.Second
)

// Source call outcomes used as metric labels
const (
	outcomeOK       = "ok"
	outcomeEmpty    = "empty"
	outcomeTimeout  = "timeout"
	outcomeError    = "error"
	outcomeCanceled = "canceled"
)

// InternalAdapter exposes the catalog with the same error and metrics
// treatment as external sources. The catalog has no timeout budget of its own;
// it lives as long as the caller's request.
type InternalAdapter struct {
	source  domain.InternalSource
	logger  zerolog.Logger
	metrics domain.Metrics
}

// NewInternalAdapter wraps an internal catalog
func NewInternalAdapter(source domain.InternalSource, logger zerolog.Logger, metrics domain.Metrics) *InternalAdapter {
	if metrics == nil {
		metrics = domain.NopMetrics{}
	}
	return &InternalAdapter{
		source:  source,
		logger:  logger.With().Str("source", InternalSourceID).Logger(),
		metrics: metrics,
	}
}

// Search returns approved catalog entries matching query
func (a *InternalAdapter) Search(ctx context.Context, query string, filters domain.SearchFilters) ([]domain.CatalogProduct, error) {
	start := time.Now()
	products, err := a.source.Search(ctx, query, filters)
	a.metrics.ObserveSource(InternalSourceID, "search", classify(ctx, err, len(products)), time.Since(start))
	if err != nil {
		if isCancellation(ctx, err) {
			return nil, ctx.Err()
		}
		return nil, &domain.SourceError{SourceID: InternalSourceID, Op: "search", Err: err}
	}
	return products, nil
}

// Verify asks the catalog for a verdict on query
func (a *InternalAdapter) Verify(ctx context.Context, query, userID string, filters domain.SearchFilters) (*domain.InternalVerdict, error) {
	start := time.Now()
	verdict, err := a.source.Verify(ctx, query, userID, filters)
	n := 0
	if verdict != nil && verdict.Result != domain.VerdictNotFound {
		n = 1
	}
	a.metrics.ObserveSource(InternalSourceID, "verify", classify(ctx, err, n), time.Since(start))
	if err != nil {
		if isCancellation(ctx, err) {
			return nil, ctx.Err()
		}
		return nil, &domain.SourceError{SourceID: InternalSourceID, Op: "verify", Err: err}
	}
	if verdict == nil {
		return &domain.InternalVerdict{Result: domain.VerdictNotFound}, nil
	}
	return verdict, nil
}

// ExternalSource wraps a ProductDatabase with its timeout budget.
// QuickSearch degrades silently; Validate reports failures.
type ExternalSource struct {
	desc    domain.SourceDescriptor
	db      domain.ProductDatabase
	logger  zerolog.Logger
	metrics domain.Metrics
}

// NewExternalSource wraps db under desc. A zero timeout uses DefaultExternalTimeout.
func NewExternalSource(desc domain.SourceDescriptor, db domain.ProductDatabase, logger zerolog.Logger, metrics domain.Metrics) *ExternalSource {
	if desc.Timeout <= 0 {
		desc.Timeout = DefaultExternalTimeout
	}
	desc.Kind = domain.SourceExternal
	if metrics == nil {
		metrics = domain.NopMetrics{}
	}
	return &ExternalSource{
		desc:    desc,
		db:      db,
		logger:  logger.With().Str("source", desc.ID).Logger(),
		metrics: metrics,
	}
}

// ID returns the source id
func (s *ExternalSource) ID() string { return s.desc.ID }

// Descriptor returns the static source configuration
func (s *ExternalSource) Descriptor() domain.SourceDescriptor { return s.desc }

// QuickSearch returns products matching query, tagged with this source's id.
// Timeouts, failures and cancellation all yield an empty list.
func (s *ExternalSource) QuickSearch(ctx context.Context, query string) []domain.ExternalProduct {
	start := time.Now()
	products, err := withBudget(ctx, s.desc.Timeout, func(ctx context.Context) ([]domain.ExternalProduct, error) {
		return s.db.Search(ctx, query)
	})
	if errors.Is(err, domain.ErrProductNotFound) {
		products, err = nil, nil
	}
	outcome := classify(ctx, err, len(products))
	s.metrics.ObserveSource(s.desc.ID, "search", outcome, time.Since(start))

	switch outcome {
	case outcomeCanceled:
		return nil
	case outcomeTimeout:
		s.logger.Debug().Str("query", query).Dur("budget", s.desc.Timeout).Msg("quick search timed out")
		return nil
	case outcomeError:
		s.logger.Warn().Err(err).Str("query", query).Msg("quick search failed")
		return nil
	}

	out := make([]domain.ExternalProduct, 0, len(products))
	for _, p := range products {
		p.Source = s.desc.ID
		p.Confidence = domain.ClampConfidence(p.Confidence)
		out = append(out, p)
	}
	return out
}

// Validate checks identifier (barcode or name) against the database.
// Not-found is a successful answer; timeouts and failures return a *domain.SourceError.
func (s *ExternalSource) Validate(ctx context.Context, identifier, name string) (*domain.VerificationResult, error) {
	start := time.Now()
	result, err := withBudget(ctx, s.desc.Timeout, func(ctx context.Context) (*domain.VerificationResult, error) {
		return s.db.Lookup(ctx, identifier, name)
	})
	if errors.Is(err, domain.ErrProductNotFound) {
		result, err = nil, nil
	}

	found := 0
	if result != nil && result.Found {
		found = 1
	}
	outcome := classify(ctx, err, found)
	s.metrics.ObserveSource(s.desc.ID, "validate", outcome, time.Since(start))

	switch outcome {
	case outcomeCanceled:
		return nil, ctx.Err()
	case outcomeTimeout:
		s.logger.Info().Str("identifier", identifier).Dur("budget", s.desc.Timeout).Msg("validate timed out")
		return nil, &domain.SourceError{SourceID: s.desc.ID, Op: "validate", Timeout: true, Err: err}
	case outcomeError:
		s.logger.Warn().Err(err).Str("identifier", identifier).Msg("validate failed")
		return nil, &domain.SourceError{SourceID: s.desc.ID, Op: "validate", Err: err}
	}

	out := result.Clone()
	if out == nil {
		out = &domain.VerificationResult{}
	}
	out.Source = s.desc.ID
	out.Confidence = domain.ClampConfidence(out.Confidence)
	out.ConfidencePercent = domain.ConfidencePercent(out.Confidence)
	if out.Product != nil {
		out.Product.Origin = domain.Origin{Kind: domain.OriginExternal, SourceID: s.desc.ID}
	}
	for i := range out.Alternatives {
		out.Alternatives[i].Origin = domain.Origin{Kind: domain.OriginExternal, SourceID: s.desc.ID}
	}
	return out, nil
}

// withBudget runs fn under a deadline of budget and returns as soon as the
// deadline passes, even if fn ignores its context.
func withBudget[T any](ctx context.Context, budget time.Duration, fn func(context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	type result struct {
		val T
		err error
	}
	done := make(chan result, 1)
	go func() {
		v, err := fn(ctx)
		done <- result{val: v, err: err}
	}()

	select {
	case r := <-done:
		if r.err != nil && ctx.Err() != nil {
			var zero T
			return zero, ctx.Err()
		}
		return r.val, r.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// classify maps a call result to a metric outcome. parent is the caller's
// context: its cancellation means supersession, not failure.
func classify(parent context.Context, err error, n int) string {
	switch {
	case err == nil && n == 0:
		return outcomeEmpty
	case err == nil:
		return outcomeOK
	case isCancellation(parent, err):
		return outcomeCanceled
	case errors.Is(err, context.DeadlineExceeded):
		return outcomeTimeout
	default:
		return outcomeError
	}
}

// isCancellation reports whether err stems from the caller abandoning the request
func isCancellation(parent context.Context, err error) bool {
	return errors.Is(err, context.Canceled) && parent.Err() != nil
}
