// Package cancel provides the cooperative cancellation primitive threaded
// through every long-running phase of a push session: a monotonic
// not-cancelled-to-cancelled flag, checked at phase boundaries and inside
// long loops (per ref in policy, per MiB in pack read, every 64 nodes of
// an ancestry walk).
//
// Cancellation is the interface-with-noop-injection form: production
// code depends on the Flag interface, and callers that don't want
// cancellation inject Noop.
package cancel

import (
	"context"
	"errors"
	"sync/atomic"
)

// ErrCancelled is returned (often wrapped) by any phase that observes a
// requested cancellation mid-flight.
var ErrCancelled = errors.New("cancel: session cancelled")

// Flag is a cooperative cancellation handle: Request() is idempotent and
// safe to call concurrently with IsRequested() from any goroutine.
type Flag interface {
	// Request moves the flag from not-cancelled to cancelled. Calling it
	// more than once, or from multiple goroutines, is safe and has no
	// additional effect.
	Request()
	// IsRequested reports whether Request has been called.
	IsRequested() bool
}

// atomicFlag is the production Flag: a single atomic bool, settable once
// from false to true (further calls are no-ops).
type atomicFlag struct {
	requested atomic.Bool
}

// New returns a fresh, not-yet-cancelled Flag.
func New() Flag {
	return &atomicFlag{}
}

func (f *atomicFlag) Request() {
	f.requested.Store(true)
}

func (f *atomicFlag) IsRequested() bool {
	return f.requested.Load()
}

// noopFlag never reports cancellation. Injected as the default so callers
// that never touch cancellation don't need nil-checks.
type noopFlag struct{}

// Noop is a Flag that can never be cancelled.
var Noop Flag = noopFlag{}

func (noopFlag) Request()          {}
func (noopFlag) IsRequested() bool { return false }

// flagKey is the context key cancel.Flag is injected under, following the
// same context-value idiom the rest of this module uses for pluggable
// collaborators (ancestry.Store, log.Logger).
type flagKey struct{}

// ToContext attaches flag to ctx.
func ToContext(ctx context.Context, flag Flag) context.Context {
	return context.WithValue(ctx, flagKey{}, flag)
}

// FromContext retrieves the Flag attached to ctx, or nil if none was set.
func FromContext(ctx context.Context) Flag {
	flag, _ := ctx.Value(flagKey{}).(Flag)
	return flag
}

// FromContextOrNoop returns the Flag attached to ctx, or Noop if none was
// set, so callers never need to nil-check.
func FromContextOrNoop(ctx context.Context) Flag {
	if flag := FromContext(ctx); flag != nil {
		return flag
	}
	return Noop
}
