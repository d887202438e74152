package usecase

import (
	"context"
	"strconv"
	"sync"
)

// RequestToken identifies one triggered request. Tokens are ordered by issuance.
type RequestToken struct {
	seq uint64
}

func (t RequestToken) String() string {
	return "req-" + strconv.FormatUint(t.seq, 10)
}

// RequestCoordinator tracks which request is current. Beginning a request
// supersedes the previous one and cancels its context so adapters can abort
// their network calls. Visible state must only change through Commit, which
// is a no-op for superseded tokens.
type RequestCoordinator struct {
	mu     sync.Mutex
	seq    uint64
	cancel context.CancelFunc
	closed bool
}

// NewRequestCoordinator creates a coordinator with no current request
func NewRequestCoordinator() *RequestCoordinator {
	return &RequestCoordinator{}
}

// BeginRequest issues a new current token and a context tied to it.
// The previous token stops being current and its context is canceled.
func (c *RequestCoordinator) BeginRequest(parent context.Context) (RequestToken, context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}

	ctx, cancel := context.WithCancel(parent)
	if c.closed {
		cancel()
		return RequestToken{}, ctx
	}

	c.seq++
	c.cancel = cancel
	return RequestToken{seq: c.seq}, ctx
}

// IsCurrent reports whether t is the most recently issued token
func (c *RequestCoordinator) IsCurrent(t RequestToken) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.isCurrentLocked(t)
}

func (c *RequestCoordinator) isCurrentLocked(t RequestToken) bool {
	return !c.closed && t.seq != 0 && t.seq == c.seq
}

// Commit runs write only if t is still current, and reports whether it ran.
// No new request can be issued while write runs, so a superseded write can
// never land after a newer one. write must not call back into the coordinator.
func (c *RequestCoordinator) Commit(t RequestToken, write func()) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.isCurrentLocked(t) {
		return false
	}
	write()
	return true
}

// Finish releases the context of t once its work is done. Superseded tokens
// were already canceled by BeginRequest.
func (c *RequestCoordinator) Finish(t RequestToken) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.isCurrentLocked(t) && c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
}

// Close cancels the current request; no token is current afterwards
func (c *RequestCoordinator) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closed = true
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
}
