package domain

import (
	"fmt"
	"math"
	"strings"
)

// Mode selects which sources a verification consults
type Mode string

const (
	ModeInternal Mode = "internal"
	ModeExternal Mode = "external"
	ModeCombined Mode = "combined"
)

// ParseMode parses a verification mode, defaulting to combined when empty
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeCombined:
		return ModeCombined, nil
	case ModeInternal:
		return ModeInternal, nil
	case ModeExternal:
		return ModeExternal, nil
	}
	return "", fmt.Errorf("%w: unknown verification mode %q", ErrInvalidRequest, s)
}

// SessionState is the state of a verification session.
// IDLE -> SEARCHING -> {RESOLVED | PARTIAL | FAILED}
type SessionState string

const (
	StateIdle      SessionState = "idle"
	StateSearching SessionState = "searching"
	StateResolved  SessionState = "resolved"
	StatePartial   SessionState = "partial"
	StateFailed    SessionState = "failed"
)

// Verdict is the internal catalog's answer for a verification query
type Verdict string

const (
	VerdictVerified    Verdict = "verified"
	VerdictNotFound    Verdict = "not_found"
	VerdictCounterfeit Verdict = "counterfeit"
)

// InternalVerdict is returned by InternalSource.Verify
type InternalVerdict struct {
	Result  Verdict
	Product *CatalogProduct
}

// SourceOutcome is the per-source status recorded in a verification result
type SourceOutcome string

const (
	OutcomeFound       SourceOutcome = "found"
	OutcomeNotFound    SourceOutcome = "not_found"
	OutcomeCounterfeit SourceOutcome = "counterfeit"
	OutcomePending     SourceOutcome = "pending"
	OutcomeTimeout     SourceOutcome = "timeout"
	OutcomeFailed      SourceOutcome = "failed"
)

// Succeeded reports whether the source produced a definitive answer
func (o SourceOutcome) Succeeded() bool {
	return o == OutcomeFound || o == OutcomeNotFound || o == OutcomeCounterfeit
}

// SourceStatus is one source's contribution to a verification
type SourceStatus struct {
	Name       string        `json:"name"`
	Status     SourceOutcome `json:"status"`
	Verified   bool          `json:"verified"`
	Confidence float64       `json:"confidence"`
	Error      string        `json:"error,omitempty"`
}

// Placeholders used when a catalog entry lacks the field
const (
	UnknownManufacturer = "Unknown"
	NotAvailable        = "N/A"
)

// InternalBranch is the internal catalog's side of a verification
type InternalBranch struct {
	Verdict            Verdict  `json:"verdict,omitempty"`
	IsVerified         bool     `json:"isVerified"`
	Manufacturer       string   `json:"manufacturer,omitempty"`
	RegistrationNumber string   `json:"registrationNumber,omitempty"`
	Certification      string   `json:"certification,omitempty"`
	Product            *Product `json:"product,omitempty"`
	Error              string   `json:"error,omitempty"`
	Err                error    `json:"-"`
}

// Succeeded reports whether the branch produced a verdict
func (b *InternalBranch) Succeeded() bool {
	return b != nil && b.Err == nil && b.Verdict != ""
}

// ExternalBranch is the external databases' side of a verification
type ExternalBranch struct {
	Found             bool      `json:"found"`
	Verified          bool      `json:"verified"`
	Confidence        float64   `json:"confidence"`
	ConfidencePercent int       `json:"confidencePercent"`
	Source            string    `json:"source,omitempty"`
	Product           *Product  `json:"product,omitempty"`
	Alternatives      []Product `json:"alternatives,omitempty"`
	Error             string    `json:"error,omitempty"`
	Err               error     `json:"-"`
}

// Succeeded reports whether the branch produced an answer
func (b *ExternalBranch) Succeeded() bool {
	return b != nil && b.Err == nil
}

// VerificationResult is the unified verdict of a verification session.
// A result is never mutated once published; a new one replaces it.
type VerificationResult struct {
	SessionID         string          `json:"sessionId,omitempty"`
	Mode              Mode            `json:"mode"`
	State             SessionState    `json:"state"`
	Found             bool            `json:"found"`
	Verified          bool            `json:"verified"`
	Confidence        float64         `json:"confidence"`
	ConfidencePercent int             `json:"confidencePercent"`
	Source            string          `json:"source,omitempty"`
	Product           *Product        `json:"product,omitempty"`
	Alternatives      []Product       `json:"alternatives"`
	Sources           []SourceStatus  `json:"sources"`
	Internal          *InternalBranch `json:"internal,omitempty"`
	External          *ExternalBranch `json:"external,omitempty"`
}

// Clone returns a copy whose slices and branches can be changed without
// affecting the original
func (r *VerificationResult) Clone() *VerificationResult {
	if r == nil {
		return nil
	}
	out := *r
	out.Alternatives = append([]Product{}, r.Alternatives...)
	out.Sources = append([]SourceStatus{}, r.Sources...)
	if r.Product != nil {
		p := *r.Product
		out.Product = &p
	}
	if r.Internal != nil {
		b := *r.Internal
		out.Internal = &b
	}
	if r.External != nil {
		b := *r.External
		b.Alternatives = append([]Product(nil), r.External.Alternatives...)
		out.External = &b
	}
	return &out
}

// ConfidencePercent converts a [0,1] confidence into a displayable percentage
func ConfidencePercent(c float64) int {
	return int(math.Round(ClampConfidence(c) * 100))
}
