package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/macrolens/productcheck/internal/domain"
)

var nutellaEntry = &domain.CatalogProduct{
	ID:               "p-1",
	Name:             "Nutella",
	ManufacturerName: "Ferrero",
	Barcode:          "3017620422003",
	Category:         "spreads",
	Status:           domain.StatusApproved,
}

func failingVerify(context.Context, string) (*domain.InternalVerdict, error) {
	return nil, errors.New("catalog unavailable")
}

func failingLookup(context.Context, string, string) (*domain.VerificationResult, error) {
	return nil, errors.New("upstream 500")
}

func sourceStatus(t *testing.T, r *domain.VerificationResult, name string) domain.SourceStatus {
	t.Helper()
	for _, s := range r.Sources {
		if s.Name == name {
			return s
		}
	}
	t.Fatalf("no status for source %q in %+v", name, r.Sources)
	return domain.SourceStatus{}
}

func TestVerifier_RejectsEmptyRequest(t *testing.T) {
	f := newFixture(&fakeCatalog{}, time.Second, &fakeDatabase{})

	result, err := f.verifier.Verify(context.Background(), VerificationRequest{Query: "   "}, domain.ModeCombined)
	require.ErrorIs(t, err, domain.ErrInvalidRequest)
	assert.Nil(t, result)
	assert.Zero(t, f.catalog.verifyCalls.Load())
}

func TestVerifier_RejectsShortQuery(t *testing.T) {
	db := &fakeDatabase{}
	f := newFixture(&fakeCatalog{}, time.Second, db)

	for _, mode := range []domain.Mode{domain.ModeInternal, domain.ModeExternal, domain.ModeCombined} {
		result, err := f.verifier.Verify(context.Background(), VerificationRequest{Query: " a "}, mode)
		require.ErrorIs(t, err, domain.ErrInvalidRequest, mode)
		require.ErrorIs(t, err, domain.ErrQueryTooShort, mode)
		assert.Nil(t, result)
	}
	assert.Zero(t, f.catalog.verifyCalls.Load())
	assert.Zero(t, db.lookupCalls.Load())

	// A barcode needs no name
	_, err := f.verifier.Verify(context.Background(), VerificationRequest{Barcode: "3017620422003"}, domain.ModeCombined)
	require.NoError(t, err)
	assert.Equal(t, int32(1), f.catalog.verifyCalls.Load())
}

func TestVerifier_MinQueryLengthIsConfigurable(t *testing.T) {
	catalog := &fakeCatalog{}
	internal := NewInternalAdapter(catalog, zerolog.Nop(), nil)
	v := NewVerifier(internal, nil, VerifierConfig{MinQueryLength: 4}, zerolog.Nop(), nil)

	_, err := v.Verify(context.Background(), VerificationRequest{Query: "nut"}, domain.ModeInternal)
	require.ErrorIs(t, err, domain.ErrQueryTooShort)

	_, err = v.Verify(context.Background(), VerificationRequest{Query: "nuts"}, domain.ModeInternal)
	require.NoError(t, err)
	assert.Equal(t, int32(1), catalog.verifyCalls.Load())
}

func TestVerifier_InternalMode(t *testing.T) {
	ctx := context.Background()

	t.Run("verified", func(t *testing.T) {
		db := &fakeDatabase{}
		f := newFixture(&fakeCatalog{verifyFn: verdict(domain.VerdictVerified, nutellaEntry)}, time.Second, db)

		result, err := f.verifier.Verify(ctx, VerificationRequest{Query: "Nutella"}, domain.ModeInternal)
		require.NoError(t, err)
		assert.Equal(t, domain.StateResolved, result.State)
		assert.True(t, result.Found)
		assert.True(t, result.Verified)
		assert.Equal(t, 100, result.ConfidencePercent)
		assert.Equal(t, InternalSourceID, result.Source)
		assert.NotEmpty(t, result.SessionID)

		require.NotNil(t, result.Internal)
		assert.Equal(t, "Ferrero", result.Internal.Manufacturer)
		assert.Equal(t, domain.NotAvailable, result.Internal.RegistrationNumber)
		assert.Equal(t, domain.NotAvailable, result.Internal.Certification)
		assert.Nil(t, result.External)
		assert.Zero(t, db.lookupCalls.Load())
	})

	t.Run("not found is resolved", func(t *testing.T) {
		f := newFixture(&fakeCatalog{}, time.Second)

		result, err := f.verifier.Verify(ctx, VerificationRequest{Query: "unknown"}, domain.ModeInternal)
		require.NoError(t, err)
		assert.Equal(t, domain.StateResolved, result.State)
		assert.False(t, result.Found)
		assert.Equal(t, domain.UnknownManufacturer, result.Internal.Manufacturer)
	})

	t.Run("failure falls back to external", func(t *testing.T) {
		db := &fakeDatabase{lookupFn: foundResult("Nutella 400g", 0.85, true)}
		f := newFixture(&fakeCatalog{verifyFn: failingVerify}, time.Second, db)

		result, err := f.verifier.Verify(ctx, VerificationRequest{Query: "Nutella"}, domain.ModeInternal)
		require.NoError(t, err)
		assert.Equal(t, domain.StatePartial, result.State)
		assert.Equal(t, "openfoodfacts", result.Source)
		assert.True(t, result.Found)
		assert.Equal(t, domain.OutcomeFailed, sourceStatus(t, result, InternalSourceID).Status)
		assert.Equal(t, domain.OutcomeFound, sourceStatus(t, result, "openfoodfacts").Status)
	})

	t.Run("failure without fallback fails", func(t *testing.T) {
		f := newFixture(&fakeCatalog{verifyFn: failingVerify}, time.Second)

		result, err := f.verifier.Verify(ctx, VerificationRequest{Query: "Nutella"}, domain.ModeInternal)
		require.ErrorIs(t, err, domain.ErrVerificationFailed)
		require.NotNil(t, result)
		assert.Equal(t, domain.StateFailed, result.State)
		assert.NotEmpty(t, result.Internal.Error)
	})
}

func TestVerifier_ExternalMode(t *testing.T) {
	ctx := context.Background()

	t.Run("found", func(t *testing.T) {
		db := &fakeDatabase{lookupFn: foundResult("Nutella", 0.914, true)}
		f := newFixture(&fakeCatalog{}, time.Second, db)

		result, err := f.verifier.Verify(ctx, VerificationRequest{Barcode: "3017620422003"}, domain.ModeExternal)
		require.NoError(t, err)
		assert.Equal(t, domain.StateResolved, result.State)
		assert.Equal(t, 91, result.ConfidencePercent)
		assert.Nil(t, result.Internal)
		assert.Zero(t, f.catalog.verifyCalls.Load())
	})

	t.Run("not found is resolved", func(t *testing.T) {
		f := newFixture(&fakeCatalog{}, time.Second, &fakeDatabase{})

		result, err := f.verifier.Verify(ctx, VerificationRequest{Query: "nothing"}, domain.ModeExternal)
		require.NoError(t, err)
		assert.Equal(t, domain.StateResolved, result.State)
		assert.False(t, result.Found)
	})

	t.Run("timeout fails with status", func(t *testing.T) {
		db := &fakeDatabase{lookupFn: func(ctx context.Context, _, _ string) (*domain.VerificationResult, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		}}
		f := newFixture(&fakeCatalog{}, 15*time.Millisecond, db)

		result, err := f.verifier.Verify(ctx, VerificationRequest{Query: "Nutella"}, domain.ModeExternal)
		require.ErrorIs(t, err, domain.ErrVerificationFailed)
		assert.Equal(t, domain.StateFailed, result.State)
		assert.Equal(t, domain.OutcomeTimeout, sourceStatus(t, result, "openfoodfacts").Status)
	})

	t.Run("first source that found wins", func(t *testing.T) {
		off := &fakeDatabase{}
		usda := &fakeDatabase{lookupFn: foundResult("NUTELLA", 0.7, false)}
		third := &fakeDatabase{lookupFn: foundResult("Nutella Spread", 0.6, false)}
		f := newFixture(&fakeCatalog{}, time.Second, off, usda, third)

		result, err := f.verifier.Verify(ctx, VerificationRequest{Query: "Nutella"}, domain.ModeExternal)
		require.NoError(t, err)
		assert.Equal(t, "usda", result.Source)
		require.Len(t, result.Alternatives, 1)
		assert.Equal(t, "Nutella Spread", result.Alternatives[0].Name)
		assert.Equal(t, domain.OutcomeNotFound, sourceStatus(t, result, "openfoodfacts").Status)
	})

	t.Run("one failing source does not fail the branch", func(t *testing.T) {
		off := &fakeDatabase{lookupFn: failingLookup}
		usda := &fakeDatabase{lookupFn: foundResult("NUTELLA", 0.7, false)}
		f := newFixture(&fakeCatalog{}, time.Second, off, usda)

		result, err := f.verifier.Verify(ctx, VerificationRequest{Query: "Nutella"}, domain.ModeExternal)
		require.NoError(t, err)
		assert.Equal(t, domain.StateResolved, result.State)
		assert.Equal(t, "usda", result.Source)
		assert.Equal(t, domain.OutcomeFailed, sourceStatus(t, result, "openfoodfacts").Status)
	})
}

func TestVerifier_CombinedMode(t *testing.T) {
	ctx := context.Background()

	t.Run("both branches succeed", func(t *testing.T) {
		db := &fakeDatabase{lookupFn: foundResult("Nutella 400g", 0.8, true)}
		f := newFixture(&fakeCatalog{verifyFn: verdict(domain.VerdictVerified, nutellaEntry)}, time.Second, db)

		result, err := f.verifier.Verify(ctx, VerificationRequest{Query: "Nutella"}, domain.ModeCombined)
		require.NoError(t, err)
		assert.Equal(t, domain.StateResolved, result.State)
		assert.Equal(t, InternalSourceID, result.Source)
		require.NotNil(t, result.Internal)
		require.NotNil(t, result.External)
		assert.True(t, result.External.Found)
		require.Len(t, result.Alternatives, 1)
		assert.Equal(t, "Nutella 400g", result.Alternatives[0].Name)
		assert.Len(t, result.Sources, 2)
	})

	t.Run("counterfeit verdict leads the headline", func(t *testing.T) {
		fake := *nutellaEntry
		fake.Status = domain.StatusCounterfeit
		db := &fakeDatabase{lookupFn: foundResult("Nutella", 0.95, true)}
		f := newFixture(&fakeCatalog{verifyFn: verdict(domain.VerdictCounterfeit, &fake)}, time.Second, db)

		result, err := f.verifier.Verify(ctx, VerificationRequest{Query: "Nutella"}, domain.ModeCombined)
		require.NoError(t, err)
		assert.Equal(t, InternalSourceID, result.Source)
		assert.True(t, result.Found)
		assert.False(t, result.Verified)
		assert.Equal(t, domain.OutcomeCounterfeit, sourceStatus(t, result, InternalSourceID).Status)
	})

	t.Run("external hit leads when catalog has nothing", func(t *testing.T) {
		db := &fakeDatabase{lookupFn: foundResult("Nutella 400g", 0.8, true)}
		f := newFixture(&fakeCatalog{}, time.Second, db)

		result, err := f.verifier.Verify(ctx, VerificationRequest{Query: "Nutella"}, domain.ModeCombined)
		require.NoError(t, err)
		assert.Equal(t, domain.StateResolved, result.State)
		assert.Equal(t, "openfoodfacts", result.Source)
		assert.Equal(t, domain.VerdictNotFound, result.Internal.Verdict)
	})

	t.Run("catalog miss and external hit keep both branches", func(t *testing.T) {
		db := &fakeDatabase{lookupFn: foundResult("Nutella 400g", 0.92, true)}
		logger := zerolog.Nop()
		internal := NewInternalAdapter(&fakeCatalog{}, logger, nil)
		ext := NewExternalSource(domain.SourceDescriptor{ID: "ext1", Timeout: time.Second}, db, logger, nil)
		v := NewVerifier(internal, []*ExternalSource{ext}, VerifierConfig{}, logger, nil)

		result, err := v.Verify(ctx, VerificationRequest{Query: "Nutella"}, domain.ModeCombined)
		require.NoError(t, err)
		assert.Equal(t, domain.StateResolved, result.State)

		require.NotNil(t, result.Internal)
		assert.Equal(t, domain.VerdictNotFound, result.Internal.Verdict)
		assert.False(t, result.Internal.IsVerified)

		require.NotNil(t, result.External)
		assert.True(t, result.External.Found)
		assert.True(t, result.External.Verified)
		assert.InDelta(t, 0.92, result.External.Confidence, 1e-9)
		assert.Equal(t, 92, result.External.ConfidencePercent)
		assert.Equal(t, "ext1", result.External.Source)

		assert.True(t, result.Found)
		assert.True(t, result.Verified)
		assert.Equal(t, "ext1", result.Source)
	})

	t.Run("one branch failing is partial", func(t *testing.T) {
		db := &fakeDatabase{lookupFn: failingLookup}
		f := newFixture(&fakeCatalog{verifyFn: verdict(domain.VerdictVerified, nutellaEntry)}, time.Second, db)

		result, err := f.verifier.Verify(ctx, VerificationRequest{Query: "Nutella"}, domain.ModeCombined)
		require.NoError(t, err)
		assert.Equal(t, domain.StatePartial, result.State)
		assert.True(t, result.Verified)
		assert.NotEmpty(t, result.External.Error)
	})

	t.Run("both failing is failed", func(t *testing.T) {
		db := &fakeDatabase{lookupFn: failingLookup}
		f := newFixture(&fakeCatalog{verifyFn: failingVerify}, time.Second, db)

		result, err := f.verifier.Verify(ctx, VerificationRequest{Query: "Nutella"}, domain.ModeCombined)
		require.ErrorIs(t, err, domain.ErrVerificationFailed)
		assert.Equal(t, domain.StateFailed, result.State)
	})

	t.Run("waits for the slower branch", func(t *testing.T) {
		slow := func(ctx context.Context, _ string) (*domain.InternalVerdict, error) {
			time.Sleep(40 * time.Millisecond)
			return &domain.InternalVerdict{Result: domain.VerdictVerified, Product: nutellaEntry}, nil
		}
		db := &fakeDatabase{lookupFn: foundResult("Nutella 400g", 0.8, true)}
		f := newFixture(&fakeCatalog{verifyFn: slow}, time.Second, db)

		result, err := f.verifier.Verify(ctx, VerificationRequest{Query: "Nutella"}, domain.ModeCombined)
		require.NoError(t, err)
		assert.True(t, result.Internal.Succeeded())
		assert.True(t, result.External.Succeeded())
	})

	t.Run("barcode goes to catalog and external lookup", func(t *testing.T) {
		var gotIdentifier, gotName string
		db := &fakeDatabase{lookupFn: func(_ context.Context, identifier, name string) (*domain.VerificationResult, error) {
			gotIdentifier, gotName = identifier, name
			return nil, domain.ErrProductNotFound
		}}
		var gotQuery string
		catalog := &fakeCatalog{verifyFn: func(_ context.Context, q string) (*domain.InternalVerdict, error) {
			gotQuery = q
			return nil, nil
		}}
		f := newFixture(catalog, time.Second, db)

		_, err := f.verifier.Verify(ctx, VerificationRequest{Query: "Nutella", Barcode: "3017620422003"}, domain.ModeCombined)
		require.NoError(t, err)
		assert.Equal(t, "3017620422003", gotQuery)
		assert.Equal(t, "3017620422003", gotIdentifier)
		assert.Equal(t, "Nutella", gotName)
	})
}

func TestVerifier_ExternalSelection(t *testing.T) {
	selected := domain.ExternalProduct{
		ID:         "3017620422003",
		Name:       "Nutella",
		Brand:      "Ferrero",
		Source:     "openfoodfacts",
		Confidence: 0.75,
		Barcode:    "3017620422003",
	}

	t.Run("immediate result calls nothing", func(t *testing.T) {
		db := &fakeDatabase{}
		f := newFixture(&fakeCatalog{}, time.Second, db)

		result := f.verifier.FromExternalSelection(selected)
		assert.Equal(t, domain.StatePartial, result.State)
		assert.True(t, result.Found)
		assert.Equal(t, 75, result.ConfidencePercent)
		assert.Equal(t, "openfoodfacts", result.Source)
		assert.Equal(t, domain.OutcomePending, sourceStatus(t, result, InternalSourceID).Status)
		assert.Zero(t, db.lookupCalls.Load())
		assert.Zero(t, f.catalog.verifyCalls.Load())
	})

	t.Run("enrichment confirms and supplements", func(t *testing.T) {
		entry := *nutellaEntry
		entry.RegistrationNumber = "REG-42"
		f := newFixture(&fakeCatalog{verifyFn: verdict(domain.VerdictVerified, &entry)}, time.Second)

		base := f.verifier.FromExternalSelection(selected)
		enriched := f.verifier.Enrich(context.Background(), base, VerificationRequest{Query: "Nutella", Barcode: selected.Barcode})

		assert.Equal(t, domain.StateResolved, enriched.State)
		assert.True(t, enriched.Verified)
		assert.Equal(t, "REG-42", enriched.Product.RegistrationNumber)
		assert.Equal(t, domain.OutcomeFound, sourceStatus(t, enriched, InternalSourceID).Status)
		// base is left untouched
		assert.False(t, base.Verified)
		assert.Equal(t, domain.OutcomePending, sourceStatus(t, base, InternalSourceID).Status)
	})

	t.Run("catalog miss keeps the external answer", func(t *testing.T) {
		f := newFixture(&fakeCatalog{}, time.Second)

		base := f.verifier.FromExternalSelection(selected)
		enriched := f.verifier.Enrich(context.Background(), base, VerificationRequest{Query: "Nutella"})
		assert.True(t, enriched.Found)
		assert.Equal(t, "openfoodfacts", enriched.Source)
		assert.Equal(t, domain.StateResolved, enriched.State)
	})

	t.Run("counterfeit verdict withdraws verification", func(t *testing.T) {
		fake := *nutellaEntry
		fake.Status = domain.StatusCounterfeit
		f := newFixture(&fakeCatalog{verifyFn: verdict(domain.VerdictCounterfeit, &fake)}, time.Second)

		trusted := selected
		trusted.Verified = true
		base := f.verifier.FromExternalSelection(trusted)
		require.True(t, base.Verified)

		enriched := f.verifier.Enrich(context.Background(), base, VerificationRequest{Query: "Nutella", Barcode: trusted.Barcode})
		assert.Equal(t, domain.StateResolved, enriched.State)
		assert.True(t, enriched.Found)
		assert.False(t, enriched.Verified)
		assert.Equal(t, domain.VerdictCounterfeit, enriched.Internal.Verdict)
		assert.Equal(t, domain.OutcomeCounterfeit, sourceStatus(t, enriched, InternalSourceID).Status)
	})

	t.Run("catalog failure stays partial", func(t *testing.T) {
		f := newFixture(&fakeCatalog{verifyFn: failingVerify}, time.Second)

		base := f.verifier.FromExternalSelection(selected)
		enriched := f.verifier.Enrich(context.Background(), base, VerificationRequest{Query: "Nutella"})
		assert.Equal(t, domain.StatePartial, enriched.State)
		assert.True(t, enriched.Found)
	})
}
