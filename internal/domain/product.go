package domain

import "strings"

// OriginKind distinguishes catalog products from products found in external databases
type OriginKind string

const (
	OriginInternal OriginKind = "internal"
	OriginExternal OriginKind = "external"
)

// Origin identifies where a Product came from. SourceID is set for external origins.
type Origin struct {
	Kind     OriginKind `json:"kind"`
	SourceID string     `json:"sourceId,omitempty"`
}

// Product is the normalized view of a product regardless of origin.
// Name, Verified and Confidence are always populated; the remaining fields
// are optional and depend on what the origin provides.
type Product struct {
	Origin     Origin  `json:"origin"`
	ID         string  `json:"id,omitempty"`
	Name       string  `json:"name"`
	Verified   bool    `json:"verified"`
	Confidence float64 `json:"confidence"`

	Brand              string `json:"brand,omitempty"`
	Manufacturer       string `json:"manufacturer,omitempty"`
	RegistrationNumber string `json:"registrationNumber,omitempty"`
	Certification      string `json:"certification,omitempty"`
	Barcode            string `json:"barcode,omitempty"`
	Category           string `json:"category,omitempty"`
	NutriScore         string `json:"nutriScore,omitempty"`
	ImageURL           string `json:"imageUrl,omitempty"`
}

// IsExternal reports whether the product originated from an external database
func (p Product) IsExternal() bool {
	return p.Origin.Kind == OriginExternal
}

// ExternalProduct is a product returned by an external database.
// Treat as immutable once returned by a source.
type ExternalProduct struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	Brand      string  `json:"brand,omitempty"`
	Source     string  `json:"source"`
	Confidence float64 `json:"confidence"`
	Verified   bool    `json:"verified"`
	ImageURL   string  `json:"imageUrl,omitempty"`
	NutriScore string  `json:"nutriScore,omitempty"`
	Barcode    string  `json:"barcode,omitempty"`
}

// Product converts the external product into the normalized Product variant
func (e ExternalProduct) Product() Product {
	return Product{
		Origin:     Origin{Kind: OriginExternal, SourceID: e.Source},
		ID:         e.ID,
		Name:       e.Name,
		Verified:   e.Verified,
		Confidence: ClampConfidence(e.Confidence),
		Brand:      e.Brand,
		Barcode:    e.Barcode,
		NutriScore: e.NutriScore,
		ImageURL:   e.ImageURL,
	}
}

// CatalogStatus is the review state of a catalog entry
type CatalogStatus string

const (
	StatusApproved    CatalogStatus = "approved"
	StatusPending     CatalogStatus = "pending"
	StatusRejected    CatalogStatus = "rejected"
	StatusCounterfeit CatalogStatus = "counterfeit"
)

// CatalogProduct is an entry of the internal, authoritative catalog
type CatalogProduct struct {
	ID                 string        `json:"id" yaml:"id"`
	Name               string        `json:"name" yaml:"name"`
	ManufacturerName   string        `json:"manufacturerName,omitempty" yaml:"manufacturer"`
	RegistrationNumber string        `json:"registrationNumber,omitempty" yaml:"registration_number"`
	Certification      string        `json:"certification,omitempty" yaml:"certification"`
	Barcode            string        `json:"barcode,omitempty" yaml:"barcode"`
	Category           string        `json:"category,omitempty" yaml:"category"`
	NutriScore         string        `json:"nutriScore,omitempty" yaml:"nutri_score"`
	Country            string        `json:"country,omitempty" yaml:"country"`
	State              string        `json:"state,omitempty" yaml:"state"`
	ImageURL           string        `json:"imageUrl,omitempty" yaml:"image_url"`
	Status             CatalogStatus `json:"status" yaml:"status"`
}

// Product converts the catalog entry into the normalized Product variant.
// Approved catalog entries are verified with full confidence.
func (c CatalogProduct) Product() Product {
	verified := c.Status == StatusApproved
	confidence := 0.0
	if verified {
		confidence = 1
	}
	return Product{
		Origin:             Origin{Kind: OriginInternal},
		ID:                 c.ID,
		Name:               c.Name,
		Verified:           verified,
		Confidence:         confidence,
		Manufacturer:       c.ManufacturerName,
		RegistrationNumber: c.RegistrationNumber,
		Certification:      c.Certification,
		Barcode:            c.Barcode,
		Category:           c.Category,
		NutriScore:         c.NutriScore,
		ImageURL:           c.ImageURL,
	}
}

// SearchFilters narrows internal catalog searches. Zero values mean no filter.
type SearchFilters struct {
	Category   string   `json:"category,omitempty" form:"category"`
	NutriScore []string `json:"nutriScore,omitempty" form:"nutri_score"`
	Country    string   `json:"country,omitempty" form:"country"`
	State      string   `json:"state,omitempty" form:"state"`
}

// Matches reports whether a catalog entry passes the filters
func (f SearchFilters) Matches(p CatalogProduct) bool {
	if f.Category != "" && !strings.EqualFold(f.Category, p.Category) {
		return false
	}
	if f.Country != "" && !strings.EqualFold(f.Country, p.Country) {
		return false
	}
	if f.State != "" && !strings.EqualFold(f.State, p.State) {
		return false
	}
	if len(f.NutriScore) > 0 {
		for _, grade := range f.NutriScore {
			if strings.EqualFold(grade, p.NutriScore) {
				return true
			}
		}
		return false
	}
	return true
}

// ClampConfidence bounds a source confidence to [0,1]
func ClampConfidence(c float64) float64 {
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}
