package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// DefaultLogoutDelay lets the failing request finish its own error handling
// before the page is replaced.
const DefaultLogoutDelay = 100 * time.Millisecond

// Navigator performs a full-page navigation that discards in-memory state.
type Navigator interface {
	Reload(location string)
}

// NavigatorFunc adapts a function to Navigator.
type NavigatorFunc func(location string)

func (f NavigatorFunc) Reload(location string) { f(location) }

// ExpirerOption configures an Expirer.
type ExpirerOption func(*Expirer)

// WithClock sets the clock used to schedule the redirect.
func WithClock(c clockwork.Clock) ExpirerOption {
	return func(e *Expirer) { e.clock = c }
}

// WithDelay sets the redirect delay.
func WithDelay(d time.Duration) ExpirerOption {
	return func(e *Expirer) {
		if d > 0 {
			e.delay = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) ExpirerOption {
	return func(e *Expirer) { e.logger = l }
}

// WithOnExpire registers a hook run each time a logout sequence starts.
func WithOnExpire(fn func()) ExpirerOption {
	return func(e *Expirer) { e.onExpire = fn }
}

// Expirer runs the forced-logout sequence after an authentication failure:
// clear the credentials, then reload "/" after a short delay. While a
// sequence is pending, further failures are ignored, so a burst of parallel
// 401 responses produces exactly one logout.
type Expirer struct {
	sess     *Session
	nav      Navigator
	clock    clockwork.Clock
	delay    time.Duration
	logger   *slog.Logger
	onExpire func()

	mu      sync.Mutex
	pending clockwork.Timer
	done    chan struct{}
	gen     uint64
}

// NewExpirer creates an Expirer for sess that reloads through nav.
func NewExpirer(sess *Session, nav Navigator, opts ...ExpirerOption) *Expirer {
	e := &Expirer{
		sess:   sess,
		nav:    nav,
		clock:  clockwork.NewRealClock(),
		delay:  DefaultLogoutDelay,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Expire starts the logout sequence unless one is already in progress.
// It reports whether this call started it.
func (e *Expirer) Expire() bool {
	e.mu.Lock()
	if e.pending != nil {
		e.mu.Unlock()
		return false
	}
	e.gen++
	gen := e.gen
	e.done = make(chan struct{})
	e.pending = e.clock.AfterFunc(e.delay, func() { e.fire(gen) })
	e.mu.Unlock()

	e.logger.Warn("authentication failed, logging out")
	if err := e.sess.Clear(); err != nil {
		e.logger.Error("clear credentials failed", slog.String("error", err.Error()))
	}
	if e.onExpire != nil {
		e.onExpire()
	}
	return true
}

func (e *Expirer) fire(gen uint64) {
	e.mu.Lock()
	if e.gen != gen || e.pending == nil {
		e.mu.Unlock()
		return
	}
	e.mu.Unlock()

	e.nav.Reload("/")

	e.mu.Lock()
	if e.gen == gen {
		e.pending = nil
		close(e.done)
	}
	e.mu.Unlock()
}

// InProgress reports whether a logout sequence is pending.
func (e *Expirer) InProgress() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pending != nil
}

// Stop cancels a pending redirect and resets the in-progress flag.
// It reports whether a pending redirect was cancelled.
func (e *Expirer) Stop() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.pending == nil {
		return false
	}
	e.pending.Stop()
	e.pending = nil
	close(e.done)
	e.gen++
	return true
}

// Wait blocks until a pending logout sequence has reloaded or been
// stopped, or ctx is done. It returns at once when nothing is pending.
func (e *Expirer) Wait(ctx context.Context) error {
	e.mu.Lock()
	if e.pending == nil {
		e.mu.Unlock()
		return nil
	}
	done := e.done
	e.mu.Unlock()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
