package resilience

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrExhausted is returned by [Availability.Do] when the remote tier is marked
// exhausted and no probe is due.
var ErrExhausted = errors.New("remote service exhausted")

// AvailabilityState is the coarse health of a remote service as seen by the
// callers sharing one [Availability].
type AvailabilityState int

const (
	// Available means remote calls should be attempted.
	Available AvailabilityState = iota

	// Exhausted means the last remote call failed; callers skip the remote
	// tier until a call succeeds again.
	Exhausted
)

// String returns "available" or "exhausted".
func (s AvailabilityState) String() string {
	if s == Exhausted {
		return "exhausted"
	}
	return "available"
}

// AvailabilityOption configures an [Availability].
type AvailabilityOption func(*Availability)

// WithProbeInterval lets one call through every interval while exhausted, so
// a recovered service is noticed without a restart. Zero (the default)
// disables probing: the flag only returns to available when an in-flight
// call that started before the outage succeeds, or on [Availability.Reset].
func WithProbeInterval(d time.Duration) AvailabilityOption {
	return func(a *Availability) {
		a.probeInterval = d
	}
}

// WithStateListener registers fn to be called after every state change. fn is
// invoked outside the lock and must not block.
func WithStateListener(fn func(name string, to AvailabilityState)) AvailabilityOption {
	return func(a *Availability) {
		a.listeners = append(a.listeners, fn)
	}
}

// Availability is the shared service-availability flag. It behaves like a
// [CircuitBreaker] that trips on the first failure and closes on the first
// success, except that a success from any caller restores it immediately.
type Availability struct {
	name      string
	listeners []func(string, AvailabilityState)
	now       func() time.Time

	mu            sync.Mutex
	probeInterval time.Duration
	state         AvailabilityState
	exhaustedAt   time.Time
	probing       bool
}

// NewAvailability returns an [Availability] in the available state.
func NewAvailability(name string, opts ...AvailabilityOption) *Availability {
	a := &Availability{name: name, now: time.Now}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Name returns the service name given to [NewAvailability].
func (a *Availability) Name() string { return a.name }

// SetProbeInterval changes the probe interval at runtime. See
// [WithProbeInterval].
func (a *Availability) SetProbeInterval(d time.Duration) {
	a.mu.Lock()
	a.probeInterval = d
	a.mu.Unlock()
}

// State returns the current state.
func (a *Availability) State() AvailabilityState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Allow reports whether a remote call should be attempted. While exhausted it
// returns true for at most one probe per probe interval.
func (a *Availability) Allow() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state == Available {
		return true
	}
	if a.probeInterval <= 0 || a.probing || a.now().Sub(a.exhaustedAt) < a.probeInterval {
		return false
	}
	a.probing = true
	slog.Info("availability probe", "name", a.name)
	return true
}

// MarkSuccess records a successful remote call.
func (a *Availability) MarkSuccess() {
	a.set(Available)
}

// MarkFailure records a failed remote call.
func (a *Availability) MarkFailure(err error) {
	if errors.Is(err, context.Canceled) {
		a.mu.Lock()
		a.probing = false
		a.mu.Unlock()
		return
	}
	a.set(Exhausted)
}

// Reset forces the state back to available.
func (a *Availability) Reset() {
	a.set(Available)
}

// Do runs fn if [Availability.Allow] permits it and records the outcome.
// Cancellation of the caller's context is not recorded as a failure.
func (a *Availability) Do(fn func() error) error {
	if !a.Allow() {
		return ErrExhausted
	}
	err := fn()
	if err != nil {
		a.MarkFailure(err)
		return err
	}
	a.MarkSuccess()
	return nil
}

func (a *Availability) set(to AvailabilityState) {
	a.mu.Lock()
	a.probing = false
	if to == Exhausted {
		a.exhaustedAt = a.now()
	}
	changed := a.state != to
	a.state = to
	listeners := a.listeners
	a.mu.Unlock()

	if !changed {
		return
	}
	if to == Exhausted {
		slog.Warn("remote service marked exhausted", "name", a.name)
	} else {
		slog.Info("remote service available again", "name", a.name)
	}
	for _, fn := range listeners {
		fn(a.name, to)
	}
}
