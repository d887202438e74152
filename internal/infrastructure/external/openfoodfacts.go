package external

import (
	"context"
	"errors"
	"net/url"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/macrolens/productcheck/internal/domain"
	"github.com/macrolens/productcheck/internal/matching"
)

// DefaultOpenFoodFactsURL is the public Open Food Facts API
const DefaultOpenFoodFactsURL = "https://world.openfoodfacts.org"

const offFields = "code,product_name,brands,image_front_small_url,nutriscore_grade"

// OpenFoodFacts is a domain.ProductDatabase backed by the Open Food Facts API
type OpenFoodFacts struct {
	*baseClient
	scorer scorer
}

// NewOpenFoodFacts creates an Open Food Facts client. Open Food Facts asks
// for no more than about 10 search requests per minute per client.
func NewOpenFoodFacts(cfg ClientConfig, logger zerolog.Logger) *OpenFoodFacts {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultOpenFoodFactsURL
	}
	return &OpenFoodFacts{
		baseClient: newBaseClient(cfg, 10.0/60, 5, logger),
		scorer:     newScorer(cfg.VerifiedThreshold),
	}
}

// Search returns products whose name matches query, best first as ranked by the API
func (c *OpenFoodFacts) Search(ctx context.Context, query string) ([]domain.ExternalProduct, error) {
	params := url.Values{}
	params.Set("search_terms", matching.CleanQuery(query))
	params.Set("search_simple", "1")
	params.Set("action", "process")
	params.Set("json", "1")
	params.Set("page_size", strconv.Itoa(c.pageSize))
	params.Set("fields", offFields)

	var resp offSearchResponse
	if err := c.getJSON(ctx, "/cgi/search.pl", params, &resp); err != nil {
		return nil, err
	}

	products := make([]domain.ExternalProduct, 0, len(resp.Products))
	for _, p := range resp.Products {
		if strings.TrimSpace(p.ProductName) == "" {
			continue
		}
		ep := c.toExternal(p)
		c.scorer.score(query, &ep)
		products = append(products, ep)
	}
	c.logger.Debug().Str("query", query).Int("results", len(products)).Msg("search done")
	return products, nil
}

// Lookup resolves a barcode through the product endpoint, or a name through search
func (c *OpenFoodFacts) Lookup(ctx context.Context, identifier, name string) (*domain.VerificationResult, error) {
	identifier = strings.TrimSpace(identifier)
	if !domain.LooksLikeBarcode(identifier) {
		products, err := c.Search(ctx, identifier)
		if err != nil {
			return nil, err
		}
		return resolveByName(products), nil
	}

	params := url.Values{}
	params.Set("fields", offFields)

	var resp offProductResponse
	err := c.getJSON(ctx, "/api/v2/product/"+url.PathEscape(identifier)+".json", params, &resp)
	switch {
	case errors.Is(err, domain.ErrProductNotFound):
		return c.lookupName(ctx, name)
	case err != nil:
		return nil, err
	case resp.Status != 1:
		return c.lookupName(ctx, name)
	}

	if resp.Product.Code == "" {
		resp.Product.Code = resp.Code
	}
	return barcodeHit(c.toExternal(resp.Product)), nil
}

// lookupName falls back to a name search when the barcode is unknown and a name hint exists
func (c *OpenFoodFacts) lookupName(ctx context.Context, name string) (*domain.VerificationResult, error) {
	if strings.TrimSpace(name) == "" {
		return nil, domain.ErrProductNotFound
	}
	products, err := c.Search(ctx, name)
	if err != nil {
		return nil, err
	}
	return resolveByName(products), nil
}

func (c *OpenFoodFacts) toExternal(p offProduct) domain.ExternalProduct {
	brand := p.Brands
	// Brands is a comma-separated list; the first one is the owner
	if i := strings.Index(brand, ","); i >= 0 {
		brand = brand[:i]
	}
	return domain.ExternalProduct{
		ID:         p.Code,
		Name:       strings.TrimSpace(p.ProductName),
		Brand:      strings.TrimSpace(brand),
		ImageURL:   p.ImageURL,
		NutriScore: strings.ToUpper(p.NutriscoreGrade),
		Barcode:    p.Code,
	}
}
