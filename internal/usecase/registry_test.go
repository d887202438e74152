package usecase

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/macrolens/productcheck/internal/domain"
)

func newTestRegistry(ttl time.Duration) *SessionRegistry {
	f := newFixture(&fakeCatalog{}, time.Second)
	return NewSessionRegistry(f.aggregator, f.verifier, SessionConfig{}, ttl, zerolog.Nop())
}

func TestSessionRegistry_GetOrCreate(t *testing.T) {
	r := newTestRegistry(time.Minute)
	defer r.Close()

	a, err := r.GetOrCreate("client-1")
	require.NoError(t, err)
	b, err := r.GetOrCreate("client-1")
	require.NoError(t, err)
	assert.Same(t, a, b)

	anon, err := r.GetOrCreate("")
	require.NoError(t, err)
	assert.NotEmpty(t, anon.ID())
	assert.NotEqual(t, "client-1", anon.ID())
	assert.Equal(t, 2, r.Len())

	got, err := r.Get(anon.ID())
	require.NoError(t, err)
	assert.Same(t, anon, got)

	_, err = r.Get("missing")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestSessionRegistry_SweepClosesIdle(t *testing.T) {
	r := newTestRegistry(time.Minute)
	defer r.Close()

	s, err := r.GetOrCreate("idle")
	require.NoError(t, err)
	updates, _ := s.Subscribe()

	assert.Zero(t, r.Sweep())

	r.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	assert.Equal(t, 1, r.Sweep())
	assert.Zero(t, r.Len())

	_, open := <-updates
	assert.False(t, open)
}

func TestSessionRegistry_Close(t *testing.T) {
	r := newTestRegistry(time.Minute)
	_, err := r.GetOrCreate("a")
	require.NoError(t, err)

	r.Close()
	assert.Zero(t, r.Len())
	_, err = r.GetOrCreate("b")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}
