package external

import (
	"sort"
	"strings"

	"github.com/macrolens/productcheck/internal/domain"
	"github.com/macrolens/productcheck/internal/matching"
)

// Name lookups below this confidence are reported as not found
const matchFloor = 0.4

const maxAlternatives = 4

// scorer turns raw hits into scored ExternalProducts
type scorer struct {
	matcher           *matching.Matcher
	verifiedThreshold float64
}

func newScorer(threshold float64) scorer {
	if threshold <= 0 || threshold > 1 {
		threshold = 0.8
	}
	return scorer{
		matcher:           matching.New(matching.Config{EnableFuzzy: true}),
		verifiedThreshold: threshold,
	}
}

// score sets Confidence and Verified on p from how well its name answers query
func (s scorer) score(query string, p *domain.ExternalProduct) {
	candidate := p.Name
	if p.Brand != "" && !strings.Contains(strings.ToLower(candidate), strings.ToLower(p.Brand)) {
		candidate = p.Brand + " " + candidate
	}
	pts, _ := s.matcher.Score(query, "", candidate)
	p.Confidence = domain.ClampConfidence(pts / 100)
	p.Verified = p.Confidence >= s.verifiedThreshold
}

// barcodeHit marks a product found by exact barcode
func barcodeHit(p domain.ExternalProduct) *domain.VerificationResult {
	p.Confidence = 1
	p.Verified = true
	product := p.Product()
	return &domain.VerificationResult{
		Found:             true,
		Verified:          true,
		Confidence:        1,
		ConfidencePercent: 100,
		Product:           &product,
		Alternatives:      []domain.Product{},
	}
}

// resolveByName picks the best scored product. The runners-up at or above
// matchFloor become alternatives.
func resolveByName(products []domain.ExternalProduct) *domain.VerificationResult {
	ranked := make([]domain.ExternalProduct, 0, len(products))
	for _, p := range products {
		if p.Confidence >= matchFloor {
			ranked = append(ranked, p)
		}
	}
	if len(ranked) == 0 {
		return &domain.VerificationResult{Alternatives: []domain.Product{}}
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Confidence > ranked[j].Confidence })

	best := ranked[0].Product()
	result := &domain.VerificationResult{
		Found:             true,
		Verified:          ranked[0].Verified,
		Confidence:        ranked[0].Confidence,
		ConfidencePercent: domain.ConfidencePercent(ranked[0].Confidence),
		Product:           &best,
		Alternatives:      []domain.Product{},
	}
	for _, p := range ranked[1:] {
		if len(result.Alternatives) == maxAlternatives {
			break
		}
		result.Alternatives = append(result.Alternatives, p.Product())
	}
	return result
}

// sameBarcode compares GTINs ignoring leading zero padding
func sameBarcode(a, b string) bool {
	a = strings.TrimLeft(strings.TrimSpace(a), "0")
	b = strings.TrimLeft(strings.TrimSpace(b), "0")
	return a != "" && a == b
}
