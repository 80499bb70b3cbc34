package browser

import (
	"context"
	"errors"
	"time"
)

// ErrPoolExhausted means no browser could be acquired within the wait
// window. Callers surface it as a retryable resource error.
var ErrPoolExhausted = errors.New("browser pool exhausted")

// ErrChallengeUnresolved means an anti-bot interstitial did not clear within
// the challenge window.
var ErrChallengeUnresolved = errors.New("challenge not resolved")

// Tab is one automation tab bound to a single extraction job.
type Tab interface {
	// Navigate loads url with the given referer and waits for the load
	// event.
	Navigate(ctx context.Context, url, referer string) error
	// HTML returns the current serialized document.
	HTML(ctx context.Context) (string, error)
	// Eval runs script in the page and returns its JSON-stringified result.
	Eval(ctx context.Context, script string) (string, error)
	// WaitResponse blocks until a network response whose URL contains
	// substr is observed, or the timeout elapses.
	WaitResponse(ctx context.Context, substr string, timeout time.Duration) (string, bool)
	// MoveMouse moves the pointer along a humanlike path.
	MoveMouse(x, y float64, steps int) error
	// Click presses the left button at the current pointer position.
	Click() error
	// Close tears the tab down and flushes its origin cookie jar.
	Close()
}

// Session is an acquired browser slot bound to one fingerprint bucket.
// Release must be called on every exit path.
type Session interface {
	Fingerprint() Fingerprint
	NewTab(ctx context.Context, url, referer string) (Tab, error)
	Release()
}

// Driver hands out stealth browser sessions. It is the only impure seam of
// the extraction engine; tests substitute a fake.
type Driver interface {
	Acquire(ctx context.Context) (Session, error)
	// Stats reports pool occupancy for health reporting.
	Stats() (active, pooled int)
	Shutdown()
}
