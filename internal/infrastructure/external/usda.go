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

// DefaultUSDAURL is the FoodData Central API root
const DefaultUSDAURL = "https://api.nal.usda.gov/fdc"

// USDA is a domain.ProductDatabase backed by USDA FoodData Central.
// Only branded foods carry a UPC, so barcode lookups search that data type.
type USDA struct {
	*baseClient
	scorer scorer
}

// NewUSDA creates a FoodData Central client. The API allows 1000 requests
// per hour per key.
func NewUSDA(cfg ClientConfig, logger zerolog.Logger) *USDA {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultUSDAURL
	}
	return &USDA{
		baseClient: newBaseClient(cfg, 1000.0/3600, 10, logger),
		scorer:     newScorer(cfg.VerifiedThreshold),
	}
}

// Search returns branded and survey foods matching query
func (c *USDA) Search(ctx context.Context, query string) ([]domain.ExternalProduct, error) {
	foods, err := c.search(ctx, matching.CleanQuery(query), "Branded,Survey (FNDDS),Foundation")
	if err != nil {
		return nil, err
	}

	products := make([]domain.ExternalProduct, 0, len(foods))
	for _, f := range foods {
		ep := toExternalFood(f)
		c.scorer.score(query, &ep)
		products = append(products, ep)
	}
	return products, nil
}

// Lookup resolves a UPC among branded foods, or a name through search
func (c *USDA) Lookup(ctx context.Context, identifier, name string) (*domain.VerificationResult, error) {
	identifier = strings.TrimSpace(identifier)
	if !domain.LooksLikeBarcode(identifier) {
		products, err := c.Search(ctx, identifier)
		if err != nil {
			return nil, err
		}
		return resolveByName(products), nil
	}

	foods, err := c.search(ctx, identifier, "Branded")
	if err != nil && !errors.Is(err, domain.ErrProductNotFound) {
		return nil, err
	}
	for _, f := range foods {
		if sameBarcode(f.GtinUpc, identifier) {
			return barcodeHit(toExternalFood(f)), nil
		}
	}

	if strings.TrimSpace(name) == "" {
		return nil, domain.ErrProductNotFound
	}
	products, err := c.Search(ctx, name)
	if err != nil {
		return nil, err
	}
	return resolveByName(products), nil
}

func (c *USDA) search(ctx context.Context, query, dataTypes string) ([]usdaFood, error) {
	params := url.Values{}
	params.Set("query", query)
	params.Set("api_key", c.apiKey)
	params.Set("dataType", dataTypes)
	params.Set("pageSize", strconv.Itoa(c.pageSize))

	var resp usdaSearchResponse
	if err := c.getJSON(ctx, "/v1/foods/search", params, &resp); err != nil {
		return nil, err
	}
	c.logger.Debug().Str("query", query).Int("hits", resp.TotalHits).Msg("search done")
	if len(resp.Foods) == 0 {
		return nil, domain.ErrProductNotFound
	}
	return resp.Foods, nil
}

func toExternalFood(f usdaFood) domain.ExternalProduct {
	brand := f.BrandName
	if brand == "" {
		brand = f.BrandOwner
	}
	return domain.ExternalProduct{
		ID:      strconv.Itoa(f.FdcID),
		Name:    strings.TrimSpace(f.Description),
		Brand:   strings.TrimSpace(brand),
		Barcode: f.GtinUpc,
	}
}
