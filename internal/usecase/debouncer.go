package usecase

import (
	"sync"
	"time"
)

// Default quiescence windows
const (
	DefaultTypingDebounce  = 150 * time.Millisecond
	DefaultBarcodeDebounce = 500 * time.Millisecond
)

// Debouncer collapses bursts of Trigger calls into a single call of fire
// with the latest value, once window elapses without a further Trigger.
type Debouncer[T any] struct {
	window time.Duration
	fire   func(T)

	mu      sync.Mutex
	timer   *time.Timer
	gen     uint64
	latest  T
	stopped bool
}

// NewDebouncer creates a debouncer that calls fire after window of quiescence
func NewDebouncer[T any](window time.Duration, fire func(T)) *Debouncer[T] {
	return &Debouncer[T]{window: window, fire: fire}
}

// Trigger records v as the latest value and restarts the countdown
func (d *Debouncer[T]) Trigger(v T) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}

	d.latest = v
	d.gen++
	gen := d.gen

	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.window, func() { d.flush(gen) })
}

// flush fires only if no Trigger happened since the timer for gen was armed.
// A timer that already fired before Stop could still reach here, hence the check.
func (d *Debouncer[T]) flush(gen uint64) {
	d.mu.Lock()
	if d.stopped || gen != d.gen {
		d.mu.Unlock()
		return
	}
	v := d.latest
	d.timer = nil
	d.mu.Unlock()

	d.fire(v)
}

// Pending reports whether a fire is scheduled
func (d *Debouncer[T]) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.timer != nil
}

// Stop cancels any pending fire; later Triggers are ignored
func (d *Debouncer[T]) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}
