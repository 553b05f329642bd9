// Package sessiongate decides whether protected content may render for a
// client whose credential may still be restoring from local storage.
package sessiongate

import (
	"sync"
	"time"
)

type View int

const (
	ViewLoading View = iota
	ViewProtected
	// ViewPending means unauthenticated with a redirect scheduled but not yet fired.
	ViewPending
)

func (v View) String() string {
	switch v {
	case ViewLoading:
		return "loading"
	case ViewProtected:
		return "protected"
	case ViewPending:
		return "pending"
	default:
		return "unknown"
	}
}

const (
	// PersistedDebounce gives an in-flight restore time to finish.
	PersistedDebounce = 800 * time.Millisecond
	// FreshDebounce applies when nothing is persisted at all.
	FreshDebounce = 200 * time.Millisecond
)

// Signal is the live authentication state the gate reads.
type Signal interface {
	Initialized() bool
	Authenticated() bool
}

// Timer is the subset of *time.Timer the gate needs.
type Timer interface {
	Stop() bool
}

// AfterFunc schedules f after d.
type AfterFunc func(d time.Duration, f func()) Timer

func realAfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

type Option func(*Gate)

// WithAfterFunc replaces the timer source, for deterministic tests.
func WithAfterFunc(fn AfterFunc) Option {
	return func(g *Gate) { g.afterFunc = fn }
}

// Gate guards one protected view. Evaluate is called whenever the signal may
// have changed; at most one redirect is pending at a time.
type Gate struct {
	signal    Signal
	persisted func() bool
	redirect  func()
	afterFunc AfterFunc

	mu      sync.Mutex
	pending Timer
	gen     uint64
}

// New returns a gate. persisted reports whether a credential blob exists in
// local storage; redirect sends the user to the login entry point.
func New(signal Signal, persisted func() bool, redirect func(), opts ...Option) *Gate {
	g := &Gate{
		signal:    signal,
		persisted: persisted,
		redirect:  redirect,
		afterFunc: realAfterFunc,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *Gate) Evaluate() View {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.signal.Initialized() {
		g.cancelLocked()
		return ViewLoading
	}
	if g.signal.Authenticated() {
		g.cancelLocked()
		return ViewProtected
	}

	if g.pending == nil {
		g.scheduleLocked()
	}
	return ViewPending
}

// Close cancels any pending redirect.
func (g *Gate) Close() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cancelLocked()
}

func (g *Gate) scheduleLocked() {
	delay := FreshDebounce
	if g.persisted != nil && g.persisted() {
		delay = PersistedDebounce
	}

	g.gen++
	gen := g.gen
	g.pending = g.afterFunc(delay, func() { g.fire(gen) })
}

func (g *Gate) cancelLocked() {
	if g.pending == nil {
		return
	}
	g.pending.Stop()
	g.pending = nil
	g.gen++
}

func (g *Gate) fire(gen uint64) {
	g.mu.Lock()
	if gen != g.gen || g.pending == nil {
		g.mu.Unlock()
		return
	}
	g.pending = nil
	// Restoration may have finished while the timer ran.
	stillOut := g.signal.Initialized() && !g.signal.Authenticated()
	g.mu.Unlock()

	if stillOut {
		g.redirect()
	}
}
