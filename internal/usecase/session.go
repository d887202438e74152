package usecase

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/macrolens/productcheck/internal/domain"
)

// State is the latest resolved, caller-visible state of a session
type State struct {
	Suggestions       SuggestionSet              `json:"suggestions"`
	Verification      *domain.VerificationResult `json:"verification,omitempty"`
	VerificationState domain.SessionState        `json:"verificationState"`
	UpdatedAt         time.Time                  `json:"updatedAt"`
}

// SessionConfig holds per-session timing
type SessionConfig struct {
	TypingDebounce  time.Duration
	BarcodeDebounce time.Duration
}

// Session is one consumer's view of the core: it debounces input, makes
// newer requests supersede older ones, and publishes only results of
// current requests to subscribers.
type Session struct {
	id         string
	aggregator *Aggregator
	verifier   *Verifier
	logger     zerolog.Logger

	suggestReqs *RequestCoordinator
	verifyReqs  *RequestCoordinator
	typing      *Debouncer[string]
	scanning    *Debouncer[string]

	ctx    context.Context
	cancel context.CancelFunc
	bg     sync.WaitGroup

	mu          sync.RWMutex
	state       State
	filters     domain.SearchFilters
	subscribers map[uint64]chan State
	nextSubID   uint64
	lastActive  time.Time
	closed      bool
	now         func() time.Time
}

// NewSession creates a session with its own request coordinators and debouncers
func NewSession(id string, aggregator *Aggregator, verifier *Verifier, cfg SessionConfig, logger zerolog.Logger) *Session {
	if cfg.TypingDebounce <= 0 {
		cfg.TypingDebounce = DefaultTypingDebounce
	}
	if cfg.BarcodeDebounce <= 0 {
		cfg.BarcodeDebounce = DefaultBarcodeDebounce
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		id:          id,
		aggregator:  aggregator,
		verifier:    verifier,
		logger:      logger.With().Str("session_id", id).Logger(),
		suggestReqs: NewRequestCoordinator(),
		verifyReqs:  NewRequestCoordinator(),
		ctx:         ctx,
		cancel:      cancel,
		subscribers: make(map[uint64]chan State),
		now:         time.Now,
	}
	s.state = State{Suggestions: EmptySuggestions(""), VerificationState: domain.StateIdle}
	s.lastActive = s.now()

	s.typing = NewDebouncer(cfg.TypingDebounce, func(raw string) {
		if _, err := s.GetSuggestions(s.ctx, raw); err != nil && !errors.Is(err, domain.ErrSuperseded) && s.ctx.Err() == nil {
			s.logger.Warn().Err(err).Msg("debounced suggestions failed")
		}
	})
	s.scanning = NewDebouncer(cfg.BarcodeDebounce, func(code string) {
		_, err := s.VerifyProduct(s.ctx, VerificationRequest{Barcode: code}, domain.ModeCombined)
		if err != nil && !errors.Is(err, domain.ErrSuperseded) && s.ctx.Err() == nil {
			s.logger.Info().Err(err).Str("barcode", code).Msg("scan verification did not resolve")
		}
	})
	return s
}

// ID returns the session id
func (s *Session) ID() string { return s.id }

// SetFilters sets the catalog filters applied to subsequent suggestion requests
func (s *Session) SetFilters(f domain.SearchFilters) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.filters = f
}

// Type feeds a keystroke; suggestions are fetched once typing pauses
func (s *Session) Type(raw string) {
	s.touch()
	s.typing.Trigger(raw)
}

// Scan feeds barcode scanner input; a combined verification runs once input pauses
func (s *Session) Scan(code string) {
	s.touch()
	s.scanning.Trigger(code)
}

// GetSuggestions fetches suggestions for raw and publishes them if this is
// still the newest suggestion request. Queries below the minimum length
// publish an empty result without calling any source. Returns
// domain.ErrSuperseded when a newer request replaced this one.
func (s *Session) GetSuggestions(ctx context.Context, raw string) (SuggestionSet, error) {
	s.touch()
	tok, reqCtx := s.suggestReqs.BeginRequest(ctx)
	defer s.suggestReqs.Finish(tok)

	q, err := domain.ParseQuery(raw, s.aggregator.MinQueryLength())
	if err != nil {
		empty := EmptySuggestions(raw)
		if !s.commitSuggestions(tok, empty) {
			return SuggestionSet{}, domain.ErrSuperseded
		}
		return empty, nil
	}

	s.mu.RLock()
	filters := s.filters
	s.mu.RUnlock()

	set, err := s.aggregator.Suggest(reqCtx, q, filters, func(partial SuggestionSet) {
		s.commitSuggestions(tok, partial)
	})
	if err != nil {
		if errors.Is(err, context.Canceled) {
			if ctx.Err() != nil {
				return SuggestionSet{}, ctx.Err()
			}
			return SuggestionSet{}, domain.ErrSuperseded
		}
		return SuggestionSet{}, err
	}

	set.IsLoading = false
	if !s.commitSuggestions(tok, set) {
		return SuggestionSet{}, domain.ErrSuperseded
	}
	return set, nil
}

// VerifyProduct runs a verification and publishes it if no newer
// verification started meanwhile
func (s *Session) VerifyProduct(ctx context.Context, req VerificationRequest, mode domain.Mode) (*domain.VerificationResult, error) {
	s.touch()
	tok, reqCtx := s.verifyReqs.BeginRequest(ctx)
	defer s.verifyReqs.Finish(tok)

	if req.Filters.Category == "" && req.Filters.Country == "" && req.Filters.State == "" && len(req.Filters.NutriScore) == 0 {
		s.mu.RLock()
		req.Filters = s.filters
		s.mu.RUnlock()
	}

	s.commitVerification(tok, nil, domain.StateSearching)

	result, err := s.verifier.Verify(reqCtx, req, mode)
	if result == nil {
		// Rejected before any source was called
		s.commitVerification(tok, nil, domain.StateIdle)
		return nil, err
	}
	if !s.commitVerification(tok, result, result.State) {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, domain.ErrSuperseded
	}
	return result, err
}

// SelectSuggestion verifies a picked suggestion. External items resolve
// immediately from the product's own fields while the catalog is consulted
// in the background; the enriched result is published when it arrives.
// Catalog names run a combined verification.
func (s *Session) SelectSuggestion(ctx context.Context, item Suggestion) (*domain.VerificationResult, error) {
	if !item.IsExternal() {
		return s.VerifyProduct(ctx, VerificationRequest{Query: item.Name}, domain.ModeCombined)
	}

	s.touch()
	product := *item.External

	// Enrichment outlives the caller's request, so it hangs off the session
	tok, reqCtx := s.verifyReqs.BeginRequest(s.ctx)
	immediate := s.verifier.FromExternalSelection(product)
	if !s.commitVerification(tok, immediate, immediate.State) {
		s.verifyReqs.Finish(tok)
		return nil, domain.ErrSuperseded
	}

	req := VerificationRequest{Query: product.Name}
	if domain.ValidBarcode(product.Barcode) {
		req.Barcode = product.Barcode
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		s.verifyReqs.Finish(tok)
		return nil, domain.ErrSuperseded
	}
	req.Filters = s.filters
	s.bg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.bg.Done()
		defer s.verifyReqs.Finish(tok)
		enriched := s.verifier.Enrich(reqCtx, immediate, req)
		s.commitVerification(tok, enriched, enriched.State)
	}()

	return immediate, nil
}

// Latest returns the most recently published state
func (s *Session) Latest() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Subscribe returns a channel receiving every published state. The channel
// holds only the newest state; a slow reader skips intermediate ones.
// The returned func unsubscribes and closes the channel.
func (s *Session) Subscribe() (<-chan State, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := make(chan State, 1)
	if s.closed {
		close(ch)
		return ch, func() {}
	}
	id := s.nextSubID
	s.nextSubID++
	s.subscribers[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if sub, ok := s.subscribers[id]; ok {
				delete(s.subscribers, id)
				close(sub)
			}
		})
	}
}

// LastActive returns when the session last received input
func (s *Session) LastActive() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastActive
}

// Close stops debouncers, cancels in-flight work, waits for background
// enrichment and closes all subscriptions
func (s *Session) Close() {
	// closed is set before Wait so no enrichment can be added after it
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.typing.Stop()
	s.scanning.Stop()
	s.suggestReqs.Close()
	s.verifyReqs.Close()
	s.cancel()
	s.bg.Wait()

	s.mu.Lock()
	defer s.mu.Unlock()
	for id, ch := range s.subscribers {
		delete(s.subscribers, id)
		close(ch)
	}
}

func (s *Session) commitSuggestions(tok RequestToken, set SuggestionSet) bool {
	return s.suggestReqs.Commit(tok, func() {
		s.publish(func(st *State) { st.Suggestions = set })
	})
}

func (s *Session) commitVerification(tok RequestToken, result *domain.VerificationResult, state domain.SessionState) bool {
	return s.verifyReqs.Commit(tok, func() {
		s.publish(func(st *State) {
			st.Verification = result
			st.VerificationState = state
		})
	})
}

// publish applies change to the state and fans the snapshot out
func (s *Session) publish(change func(*State)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	change(&s.state)
	s.state.UpdatedAt = s.now()
	snapshot := s.state

	for _, ch := range s.subscribers {
		// Drop the stale pending state, keep the newest
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- snapshot:
		default:
		}
	}
}

func (s *Session) touch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastActive = s.now()
}
