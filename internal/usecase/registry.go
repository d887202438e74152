package usecase

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/macrolens/productcheck/internal/domain"
)

// DefaultSessionIdleTTL is how long a session survives without input
const DefaultSessionIdleTTL = 10 * time.Minute

// SessionRegistry owns the live sessions of a process keyed by client id
type SessionRegistry struct {
	aggregator *Aggregator
	verifier   *Verifier
	cfg        SessionConfig
	idleTTL    time.Duration
	logger     zerolog.Logger

	mu       sync.Mutex
	sessions map[string]*Session
	closed   bool
	now      func() time.Time
}

// NewSessionRegistry creates an empty registry
func NewSessionRegistry(aggregator *Aggregator, verifier *Verifier, cfg SessionConfig, idleTTL time.Duration, logger zerolog.Logger) *SessionRegistry {
	if idleTTL <= 0 {
		idleTTL = DefaultSessionIdleTTL
	}
	return &SessionRegistry{
		aggregator: aggregator,
		verifier:   verifier,
		cfg:        cfg,
		idleTTL:    idleTTL,
		logger:     logger,
		sessions:   make(map[string]*Session),
		now:        time.Now,
	}
}

// GetOrCreate returns the session for id, creating it if needed.
// An empty id gets a fresh random one.
func (r *SessionRegistry) GetOrCreate(id string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, domain.ErrSessionNotFound
	}
	if id == "" {
		id = uuid.NewString()
	}
	if s, ok := r.sessions[id]; ok {
		return s, nil
	}

	s := NewSession(id, r.aggregator, r.verifier, r.cfg, r.logger)
	r.sessions[id] = s
	r.logger.Debug().Str("session_id", id).Int("sessions", len(r.sessions)).Msg("session created")
	return s, nil
}

// Get returns an existing session
func (r *SessionRegistry) Get(id string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return s, nil
}

// Len returns the number of live sessions
func (r *SessionRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Sweep closes sessions idle for longer than the idle TTL and returns how many were closed
func (r *SessionRegistry) Sweep() int {
	cutoff := r.now().Add(-r.idleTTL)

	r.mu.Lock()
	var idle []*Session
	for id, s := range r.sessions {
		if s.LastActive().Before(cutoff) {
			idle = append(idle, s)
			delete(r.sessions, id)
		}
	}
	r.mu.Unlock()

	// Close outside the lock; it waits for background enrichment
	for _, s := range idle {
		s.Close()
	}
	if len(idle) > 0 {
		r.logger.Debug().Int("closed", len(idle)).Msg("idle sessions reaped")
	}
	return len(idle)
}

// Run sweeps periodically until ctx is done
func (r *SessionRegistry) Run(ctx context.Context) {
	interval := r.idleTTL / 2
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep()
		}
	}
}

// Close closes every session; later GetOrCreate calls fail
func (r *SessionRegistry) Close() {
	r.mu.Lock()
	r.closed = true
	sessions := r.sessions
	r.sessions = make(map[string]*Session)
	r.mu.Unlock()

	for _, s := range sessions {
		s.Close()
	}
}
