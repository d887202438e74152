package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/macrolens/productcheck/internal/domain"
)

var errNoExternalSources = errors.New("no external sources configured")

// VerificationRequest is the input of a verification session
type VerificationRequest struct {
	Query   string
	Barcode string
	UserID  string
	Filters domain.SearchFilters
}

// identifier returns what external databases should look up: the barcode
// when present, with the search text as a name hint, else the search text.
func (r VerificationRequest) identifier() (string, string) {
	query := strings.TrimSpace(r.Query)
	if r.Barcode != "" {
		return r.Barcode, query
	}
	return query, ""
}

// catalogQuery returns what the internal catalog should look up
func (r VerificationRequest) catalogQuery() string {
	if r.Barcode != "" {
		return r.Barcode
	}
	return strings.TrimSpace(r.Query)
}

// VerifierConfig holds verification input policy
type VerifierConfig struct {
	// MinQueryLength is the shortest name query accepted without a barcode
	MinQueryLength int
}

// Verifier runs internal, external or combined verification over the same
// adapters and reconciles their answers into one VerificationResult.
type Verifier struct {
	internal  *InternalAdapter
	externals []*ExternalSource
	cfg       VerifierConfig
	logger    zerolog.Logger
	metrics   domain.Metrics
	newID     func() string
}

// NewVerifier creates a verifier over the given sources
func NewVerifier(internal *InternalAdapter, externals []*ExternalSource, cfg VerifierConfig, logger zerolog.Logger, metrics domain.Metrics) *Verifier {
	if cfg.MinQueryLength <= 0 {
		cfg.MinQueryLength = domain.DefaultMinQueryLength
	}
	if metrics == nil {
		metrics = domain.NopMetrics{}
	}
	return &Verifier{
		internal:  internal,
		externals: externals,
		cfg:       cfg,
		logger:    logger,
		metrics:   metrics,
		newID:     uuid.NewString,
	}
}

// Verify runs a verification in mode. The returned result is never nil once
// the request passed validation; a FAILED result comes with an error wrapping
// domain.ErrVerificationFailed.
func (v *Verifier) Verify(ctx context.Context, req VerificationRequest, mode domain.Mode) (*domain.VerificationResult, error) {
	if req.Barcode == "" {
		if strings.TrimSpace(req.Query) == "" {
			return nil, fmt.Errorf("%w: query or barcode is required", domain.ErrInvalidRequest)
		}
		if _, err := domain.ParseQuery(req.Query, v.cfg.MinQueryLength); err != nil {
			return nil, fmt.Errorf("%w: %w", domain.ErrInvalidRequest, err)
		}
	}

	var result *domain.VerificationResult
	switch mode {
	case domain.ModeInternal:
		result = v.verifyInternal(ctx, req)
	case domain.ModeExternal:
		result = v.verifyExternal(ctx, req)
	case domain.ModeCombined:
		result = v.verifyCombined(ctx, req)
	default:
		return nil, fmt.Errorf("%w: unknown verification mode %q", domain.ErrInvalidRequest, mode)
	}

	result.SessionID = v.newID()
	v.metrics.Verification(mode, result.State)

	if result.State == domain.StateFailed {
		if ctx.Err() == nil {
			v.logger.Warn().
				Str("session_id", result.SessionID).
				Str("mode", string(mode)).
				Str("identifier", req.catalogQuery()).
				Msg("verification failed on every source")
		}
		return result, fmt.Errorf("%w: %s", domain.ErrVerificationFailed, failureSummary(result))
	}
	return result, nil
}

// verifyInternal asks the catalog. If the catalog errors, external
// verification runs once as a fallback before failure is reported.
func (v *Verifier) verifyInternal(ctx context.Context, req VerificationRequest) *domain.VerificationResult {
	ib := v.internalBranch(ctx, req)
	result := &domain.VerificationResult{
		Mode:         domain.ModeInternal,
		Internal:     ib,
		Alternatives: []domain.Product{},
		Sources:      []domain.SourceStatus{internalStatus(ib)},
	}

	if ib.Succeeded() {
		applyInternalHeadline(result, ib)
		result.State = domain.StateResolved
		return result
	}

	if ctx.Err() != nil || len(v.externals) == 0 {
		result.State = domain.StateFailed
		return result
	}

	v.logger.Info().Err(ib.Err).Msg("internal verification failed, falling back to external sources")
	eb, statuses := v.externalBranch(ctx, req)
	result.External = eb
	result.Sources = append(result.Sources, statuses...)
	if eb.Succeeded() {
		applyExternalHeadline(result, eb)
		result.State = domain.StatePartial
		return result
	}
	result.State = domain.StateFailed
	return result
}

// verifyExternal asks the external databases only
func (v *Verifier) verifyExternal(ctx context.Context, req VerificationRequest) *domain.VerificationResult {
	eb, statuses := v.externalBranch(ctx, req)
	result := &domain.VerificationResult{
		Mode:         domain.ModeExternal,
		External:     eb,
		Alternatives: []domain.Product{},
		Sources:      statuses,
	}
	if eb.Succeeded() {
		applyExternalHeadline(result, eb)
		result.State = domain.StateResolved
		return result
	}
	result.State = domain.StateFailed
	return result
}

// verifyCombined runs both branches concurrently and waits for both to
// settle. Neither branch cancels the other. Both verdicts are kept; the
// headline fields follow combinedHeadline.
func (v *Verifier) verifyCombined(ctx context.Context, req VerificationRequest) *domain.VerificationResult {
	var (
		wg       sync.WaitGroup
		ib       *domain.InternalBranch
		eb       *domain.ExternalBranch
		statuses []domain.SourceStatus
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		ib = v.internalBranch(ctx, req)
	}()
	go func() {
		defer wg.Done()
		eb, statuses = v.externalBranch(ctx, req)
	}()
	wg.Wait()

	result := &domain.VerificationResult{
		Mode:         domain.ModeCombined,
		Internal:     ib,
		External:     eb,
		Alternatives: []domain.Product{},
		Sources:      append([]domain.SourceStatus{internalStatus(ib)}, statuses...),
	}

	switch {
	case ib.Succeeded() && eb.Succeeded():
		result.State = domain.StateResolved
	case ib.Succeeded() || eb.Succeeded():
		result.State = domain.StatePartial
	default:
		result.State = domain.StateFailed
		return result
	}

	combinedHeadline(result, ib, eb)
	return result
}

// combinedHeadline picks which branch fills the top-level fields:
// a catalog counterfeit or verified verdict first, then an external hit,
// then whichever branch answered at all.
func combinedHeadline(result *domain.VerificationResult, ib *domain.InternalBranch, eb *domain.ExternalBranch) {
	switch {
	case ib.Succeeded() && ib.Verdict != domain.VerdictNotFound:
		applyInternalHeadline(result, ib)
	case eb.Succeeded() && eb.Found:
		applyExternalHeadline(result, eb)
	case ib.Succeeded():
		applyInternalHeadline(result, ib)
	default:
		applyExternalHeadline(result, eb)
	}
	// With the catalog in the headline, external hits stay visible as alternatives
	if result.Source == InternalSourceID && eb.Succeeded() {
		if eb.Found && eb.Product != nil {
			result.Alternatives = append(result.Alternatives, *eb.Product)
		}
		result.Alternatives = append(result.Alternatives, eb.Alternatives...)
	}
}

// FromExternalSelection builds the immediate result for an external product
// picked from the suggestion list. No source is called; the internal branch
// is reported as pending until Enrich runs.
func (v *Verifier) FromExternalSelection(p domain.ExternalProduct) *domain.VerificationResult {
	product := p.Product()
	confidence := domain.ClampConfidence(p.Confidence)
	eb := &domain.ExternalBranch{
		Found:             true,
		Verified:          p.Verified,
		Confidence:        confidence,
		ConfidencePercent: domain.ConfidencePercent(confidence),
		Source:            p.Source,
		Product:           &product,
	}

	result := &domain.VerificationResult{
		SessionID:    v.newID(),
		Mode:         domain.ModeCombined,
		State:        domain.StatePartial,
		External:     eb,
		Alternatives: []domain.Product{},
		Sources: []domain.SourceStatus{
			{Name: InternalSourceID, Status: domain.OutcomePending},
			{Name: p.Source, Status: domain.OutcomeFound, Verified: p.Verified, Confidence: confidence},
		},
	}
	applyExternalHeadline(result, eb)
	return result
}

// Enrich corroborates an external-derived result with the internal catalog.
// It returns a new result; the headline never degrades to not-found. A
// catalog match fills in missing product fields and can confirm verification;
// a counterfeit verdict withdraws it.
func (v *Verifier) Enrich(ctx context.Context, base *domain.VerificationResult, req VerificationRequest) *domain.VerificationResult {
	ib := v.internalBranch(ctx, req)

	out := base.Clone()
	out.Internal = ib
	replaced := false
	for i := range out.Sources {
		if out.Sources[i].Name == InternalSourceID {
			out.Sources[i] = internalStatus(ib)
			replaced = true
		}
	}
	if !replaced {
		out.Sources = append([]domain.SourceStatus{internalStatus(ib)}, out.Sources...)
	}

	if !ib.Succeeded() {
		out.State = domain.StatePartial
		v.metrics.Verification(out.Mode, out.State)
		return out
	}
	out.State = domain.StateResolved

	switch ib.Verdict {
	case domain.VerdictCounterfeit:
		out.Verified = false
	case domain.VerdictVerified:
		out.Verified = true
		if out.Product != nil && ib.Product != nil {
			supplementProduct(out.Product, ib.Product)
		}
	}
	v.metrics.Verification(out.Mode, out.State)
	return out
}

// internalBranch calls the catalog and extracts the display fields
func (v *Verifier) internalBranch(ctx context.Context, req VerificationRequest) *domain.InternalBranch {
	verdict, err := v.internal.Verify(ctx, req.catalogQuery(), req.UserID, req.Filters)
	if err != nil {
		return &domain.InternalBranch{Err: err, Error: err.Error()}
	}

	ib := &domain.InternalBranch{
		Verdict:            verdict.Result,
		IsVerified:         verdict.Result == domain.VerdictVerified,
		Manufacturer:       domain.UnknownManufacturer,
		RegistrationNumber: domain.NotAvailable,
		Certification:      domain.NotAvailable,
	}
	if p := verdict.Product; p != nil {
		ib.Manufacturer = orDefault(p.ManufacturerName, domain.UnknownManufacturer)
		ib.RegistrationNumber = orDefault(p.RegistrationNumber, domain.NotAvailable)
		ib.Certification = orDefault(p.Certification, domain.NotAvailable)
		product := p.Product()
		product.Verified = ib.IsVerified
		ib.Product = &product
	}
	return ib
}

type validation struct {
	result *domain.VerificationResult
	err    error
}

// externalBranch validates against every external source concurrently. The
// first source in registration order that found the product becomes the
// answer; products found by the others become alternatives.
func (v *Verifier) externalBranch(ctx context.Context, req VerificationRequest) (*domain.ExternalBranch, []domain.SourceStatus) {
	if len(v.externals) == 0 {
		return &domain.ExternalBranch{Err: errNoExternalSources, Error: errNoExternalSources.Error()}, nil
	}

	identifier, name := req.identifier()
	results := make([]validation, len(v.externals))

	var wg sync.WaitGroup
	for i, src := range v.externals {
		wg.Add(1)
		go func(i int, src *ExternalSource) {
			defer wg.Done()
			r, err := src.Validate(ctx, identifier, name)
			results[i] = validation{result: r, err: err}
		}(i, src)
	}
	wg.Wait()

	statuses := make([]domain.SourceStatus, len(v.externals))
	var (
		answer       *domain.VerificationResult
		firstOK      *domain.VerificationResult
		alternatives []domain.Product
		errs         []error
	)
	for i, r := range results {
		statuses[i] = externalStatus(v.externals[i].ID(), r)
		if r.err != nil {
			errs = append(errs, r.err)
			continue
		}
		if firstOK == nil {
			firstOK = r.result
		}
		if !r.result.Found {
			continue
		}
		if answer == nil {
			answer = r.result
			alternatives = append(alternatives, r.result.Alternatives...)
			continue
		}
		if r.result.Product != nil {
			alternatives = append(alternatives, *r.result.Product)
		}
	}

	if answer == nil {
		answer = firstOK
	}
	if answer == nil {
		err := errors.Join(errs...)
		return &domain.ExternalBranch{Err: err, Error: err.Error()}, statuses
	}

	confidence := domain.ClampConfidence(answer.Confidence)
	return &domain.ExternalBranch{
		Found:             answer.Found,
		Verified:          answer.Found && answer.Verified,
		Confidence:        confidence,
		ConfidencePercent: domain.ConfidencePercent(confidence),
		Source:            answer.Source,
		Product:           answer.Product,
		Alternatives:      alternatives,
	}, statuses
}

func applyInternalHeadline(result *domain.VerificationResult, ib *domain.InternalBranch) {
	result.Found = ib.Verdict != domain.VerdictNotFound
	result.Verified = ib.IsVerified
	result.Confidence = 0
	if result.Found {
		result.Confidence = 1
	}
	result.ConfidencePercent = domain.ConfidencePercent(result.Confidence)
	result.Source = InternalSourceID
	result.Product = ib.Product
}

func applyExternalHeadline(result *domain.VerificationResult, eb *domain.ExternalBranch) {
	result.Found = eb.Found
	result.Verified = eb.Verified
	result.Confidence = eb.Confidence
	result.ConfidencePercent = eb.ConfidencePercent
	result.Source = eb.Source
	result.Product = eb.Product
	result.Alternatives = append([]domain.Product{}, eb.Alternatives...)
}

func internalStatus(ib *domain.InternalBranch) domain.SourceStatus {
	st := domain.SourceStatus{Name: InternalSourceID}
	if !ib.Succeeded() {
		st.Status = domain.OutcomeFailed
		st.Error = ib.Error
		return st
	}
	switch ib.Verdict {
	case domain.VerdictVerified:
		st.Status = domain.OutcomeFound
		st.Verified = true
		st.Confidence = 1
	case domain.VerdictCounterfeit:
		st.Status = domain.OutcomeCounterfeit
		st.Confidence = 1
	default:
		st.Status = domain.OutcomeNotFound
	}
	return st
}

func externalStatus(sourceID string, r validation) domain.SourceStatus {
	st := domain.SourceStatus{Name: sourceID}
	switch {
	case errors.Is(r.err, domain.ErrSourceTimeout):
		st.Status = domain.OutcomeTimeout
		st.Error = r.err.Error()
	case r.err != nil:
		st.Status = domain.OutcomeFailed
		st.Error = r.err.Error()
	case r.result.Found:
		st.Status = domain.OutcomeFound
		st.Verified = r.result.Verified
		st.Confidence = r.result.Confidence
	default:
		st.Status = domain.OutcomeNotFound
	}
	return st
}

// supplementProduct copies catalog fields into p where p lacks them
func supplementProduct(p *domain.Product, c *domain.Product) {
	if p.Manufacturer == "" {
		p.Manufacturer = c.Manufacturer
	}
	if p.RegistrationNumber == "" {
		p.RegistrationNumber = c.RegistrationNumber
	}
	if p.Certification == "" {
		p.Certification = c.Certification
	}
	if p.Category == "" {
		p.Category = c.Category
	}
	if p.Barcode == "" {
		p.Barcode = c.Barcode
	}
	if p.NutriScore == "" {
		p.NutriScore = c.NutriScore
	}
	if p.ImageURL == "" {
		p.ImageURL = c.ImageURL
	}
}

func failureSummary(r *domain.VerificationResult) string {
	parts := make([]string, 0, len(r.Sources))
	for _, s := range r.Sources {
		if s.Error != "" {
			parts = append(parts, s.Error)
		}
	}
	if len(parts) == 0 {
		return "no source answered"
	}
	return strings.Join(parts, "; ")
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}
