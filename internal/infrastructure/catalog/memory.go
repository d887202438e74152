// Package catalog implements domain.InternalSource, the authoritative
// product catalog, in memory and on PostgreSQL.
package catalog

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/macrolens/productcheck/internal/domain"
	"github.com/macrolens/productcheck/internal/matching"
)

// fuzzyVerifyScore is the match score a non-exact name needs to get a verdict
const fuzzyVerifyScore = 85

type seedFile struct {
	Products []domain.CatalogProduct `yaml:"products"`
}

// ParseSeed reads catalog entries from YAML of the form
//
//	products:
//	  - id: p-1
//	    name: Nutella
//	    manufacturer: Ferrero
//	    status: approved
func ParseSeed(r io.Reader) ([]domain.CatalogProduct, error) {
	var seed seedFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&seed); err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, fmt.Errorf("decode seed: %w", err)
	}

	seen := make(map[string]bool, len(seed.Products))
	for i, p := range seed.Products {
		if strings.TrimSpace(p.Name) == "" {
			return nil, fmt.Errorf("seed product %d: name is required", i)
		}
		if p.ID == "" {
			seed.Products[i].ID = fmt.Sprintf("seed-%d", i+1)
		}
		if seen[seed.Products[i].ID] {
			return nil, fmt.Errorf("seed product %d: duplicate id %q", i, seed.Products[i].ID)
		}
		seen[seed.Products[i].ID] = true

		switch p.Status {
		case "":
			seed.Products[i].Status = domain.StatusApproved
		case domain.StatusApproved, domain.StatusPending, domain.StatusRejected, domain.StatusCounterfeit:
		default:
			return nil, fmt.Errorf("seed product %d: unknown status %q", i, p.Status)
		}
		if p.Barcode != "" && !domain.ValidBarcode(p.Barcode) {
			return nil, fmt.Errorf("seed product %d: %w %q", i, domain.ErrInvalidBarcode, p.Barcode)
		}
	}
	return seed.Products, nil
}

// LoadSeed reads a YAML seed file
func LoadSeed(path string) ([]domain.CatalogProduct, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open seed: %w", err)
	}
	defer f.Close()
	return ParseSeed(f)
}

// Memory is an in-memory catalog. Search returns approved entries in
// insertion order; Verify reports counterfeit over approved when both match.
type Memory struct {
	mu       sync.RWMutex
	products []domain.CatalogProduct
	matcher  *matching.Matcher
	logger   zerolog.Logger
}

// NewMemory creates a catalog holding products
func NewMemory(products []domain.CatalogProduct, logger zerolog.Logger) *Memory {
	return &Memory{
		products: append([]domain.CatalogProduct(nil), products...),
		matcher:  matching.New(matching.Config{EnableFuzzy: true}),
		logger:   logger,
	}
}

// Add appends an entry to the catalog
func (m *Memory) Add(p domain.CatalogProduct) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.products = append(m.products, p)
}

// Len returns the number of entries
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.products)
}

// Search returns approved entries whose name matches query and that pass filters
func (m *Memory) Search(ctx context.Context, query string, filters domain.SearchFilters) ([]domain.CatalogProduct, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []domain.CatalogProduct
	for _, p := range m.products {
		if p.Status != domain.StatusApproved || !filters.Matches(p) {
			continue
		}
		if m.matcher.Matches(query, p.Name) || m.matcher.Matches(query, p.ManufacturerName+" "+p.Name) {
			out = append(out, p)
		}
	}
	return out, nil
}

// Verify looks query up by barcode or exact name, then by close name match
func (m *Memory) Verify(ctx context.Context, query, userID string, filters domain.SearchFilters) (*domain.InternalVerdict, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	query = strings.TrimSpace(query)
	byBarcode := domain.LooksLikeBarcode(query)
	key := domain.NormalizeKey(query)

	var exact []domain.CatalogProduct
	for _, p := range m.products {
		if !filters.Matches(p) {
			continue
		}
		if (byBarcode && p.Barcode == query) || (!byBarcode && domain.NormalizeKey(p.Name) == key) {
			exact = append(exact, p)
		}
	}
	if v := verdictOf(exact); v != nil {
		m.logger.Debug().Str("query", query).Str("user_id", userID).Str("verdict", string(v.Result)).Msg("catalog verify")
		return v, nil
	}

	if !byBarcode {
		var near []domain.CatalogProduct
		for _, p := range m.products {
			if !filters.Matches(p) {
				continue
			}
			if score, _ := m.matcher.Score(query, p.ManufacturerName, p.Name); score >= fuzzyVerifyScore {
				near = append(near, p)
			}
		}
		if v := verdictOf(near); v != nil {
			return v, nil
		}
	}

	return &domain.InternalVerdict{Result: domain.VerdictNotFound}, nil
}

// verdictOf reduces matching entries to a verdict: any counterfeit entry
// wins, then the first approved one. Pending and rejected entries never verify.
func verdictOf(matches []domain.CatalogProduct) *domain.InternalVerdict {
	var approved *domain.CatalogProduct
	for i := range matches {
		switch matches[i].Status {
		case domain.StatusCounterfeit:
			p := matches[i]
			return &domain.InternalVerdict{Result: domain.VerdictCounterfeit, Product: &p}
		case domain.StatusApproved:
			if approved == nil {
				p := matches[i]
				approved = &p
			}
		}
	}
	if approved == nil {
		return nil
	}
	return &domain.InternalVerdict{Result: domain.VerdictVerified, Product: approved}
}
