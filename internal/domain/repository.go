package domain

import (
	"context"
	"time"
)

// InternalSource is the authoritative product catalog
type InternalSource interface {
	// Search returns approved catalog entries whose name matches query, in catalog order
	Search(ctx context.Context, query string, filters SearchFilters) ([]CatalogProduct, error)
	// Verify looks up query (a name or barcode) and reports the catalog's verdict
	Verify(ctx context.Context, query, userID string, filters SearchFilters) (*InternalVerdict, error)
}

// ProductDatabase is an external product database reached over the network.
// Implementations return raw errors; timeout budgets and degrade policy are
// applied by the caller.
type ProductDatabase interface {
	Search(ctx context.Context, query string) ([]ExternalProduct, error)
	// Lookup validates identifier (barcode or name); name is an optional hint
	Lookup(ctx context.Context, identifier, name string) (*VerificationResult, error)
}

// SourceKind distinguishes the internal catalog from external databases
type SourceKind string

const (
	SourceInternal SourceKind = "internal"
	SourceExternal SourceKind = "external"
)

// SourceDescriptor is static configuration for a registered source
type SourceDescriptor struct {
	ID      string
	Kind    SourceKind
	Timeout time.Duration
}

// Metrics receives operational events from the core
type Metrics interface {
	ObserveSource(source, op, outcome string, elapsed time.Duration)
	CacheLookup(hit bool)
	CacheSize(n int)
	Suggestion(outcome string)
	Verification(mode Mode, state SessionState)
}

// NopMetrics discards all events
type NopMetrics struct{}

func (NopMetrics) ObserveSource(string, string, string, time.Duration) {}
func (NopMetrics) CacheLookup(bool)                                   {}
func (NopMetrics) CacheSize(int)                                      {}
func (NopMetrics) Suggestion(string)                                  {}
func (NopMetrics) Verification(Mode, SessionState)                    {}
