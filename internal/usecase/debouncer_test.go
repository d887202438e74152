package usecase

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type firedValues struct {
	mu   sync.Mutex
	vals []string
}

func (f *firedValues) add(v string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.vals = append(f.vals, v)
}

func (f *firedValues) get() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.vals...)
}

func TestDebouncer_BurstFiresOnceWithLatest(t *testing.T) {
	fired := &firedValues{}
	d := NewDebouncer(30*time.Millisecond, fired.add)

	for _, v := range []string{"n", "nu", "nut", "nute"} {
		d.Trigger(v)
		time.Sleep(5 * time.Millisecond)
	}
	assert.True(t, d.Pending())

	require.Eventually(t, func() bool { return len(fired.get()) == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, []string{"nute"}, fired.get())
	assert.False(t, d.Pending())
}

func TestDebouncer_SeparateBurstsFireSeparately(t *testing.T) {
	fired := &firedValues{}
	d := NewDebouncer(10*time.Millisecond, fired.add)

	d.Trigger("first")
	require.Eventually(t, func() bool { return len(fired.get()) == 1 }, time.Second, 2*time.Millisecond)
	d.Trigger("second")
	require.Eventually(t, func() bool { return len(fired.get()) == 2 }, time.Second, 2*time.Millisecond)

	assert.Equal(t, []string{"first", "second"}, fired.get())
}

func TestDebouncer_Stop(t *testing.T) {
	fired := &firedValues{}
	d := NewDebouncer(10*time.Millisecond, fired.add)

	d.Trigger("dropped")
	d.Stop()
	d.Trigger("ignored")

	time.Sleep(40 * time.Millisecond)
	assert.Empty(t, fired.get())
	assert.False(t, d.Pending())
}
