// Package breaker tracks consecutive delivery failures per subscription and
// temporarily stops dispatch to destinations that keep failing.
//
// The circuit for a subscription opens once consecutive failures reach the
// threshold and stays open until the cooldown expires on its own; there is
// no half-open probe step. A success at any point fully resets the circuit.
package breaker

import (
	"sync"
	"time"
)

// Breaker holds the failure state for a single subscription.
type Breaker struct {
	mu        sync.Mutex
	failures  int       // consecutive failures
	openUntil time.Time // zero when the circuit is closed
}

// Registry manages breakers keyed by subscription id. Breakers are created
// lazily on first failure lookup, each with its own lock, so unrelated
// subscriptions never contend.
type Registry struct {
	mu        sync.RWMutex
	breakers  map[string]*Breaker
	threshold int
	cooldown  time.Duration
	now       func() time.Time
}

// NewRegistry creates a registry. Threshold and cooldown fall back to the
// defaults (5 failures, 15 minutes) when non-positive.
func NewRegistry(threshold int, cooldown time.Duration) *Registry {
	if threshold <= 0 {
		threshold = 5
	}
	if cooldown <= 0 {
		cooldown = 15 * time.Minute
	}
	return &Registry{
		breakers:  make(map[string]*Breaker),
		threshold: threshold,
		cooldown:  cooldown,
		now:       time.Now,
	}
}

// WithClock replaces the registry clock. Intended for tests.
func (r *Registry) WithClock(now func() time.Time) *Registry {
	r.now = now
	return r
}

func (r *Registry) get(key string) *Breaker {
	r.mu.RLock()
	b, ok := r.breakers[key]
	r.mu.RUnlock()
	if ok {
		return b
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	// Double-check after acquiring the write lock
	if b, ok = r.breakers[key]; ok {
		return b
	}
	b = &Breaker{}
	r.breakers[key] = b
	return b
}

// IsOpen reports whether the circuit for subscriptionID is currently open.
func (r *Registry) IsOpen(subscriptionID string) bool {
	r.mu.RLock()
	b, ok := r.breakers[subscriptionID]
	r.mu.RUnlock()
	if !ok {
		return false
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	return !b.openUntil.IsZero() && b.openUntil.After(r.now())
}

// RecordSuccess clears the failure state for subscriptionID.
func (r *Registry) RecordSuccess(subscriptionID string) {
	b := r.get(subscriptionID)
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
	b.openUntil = time.Time{}
}

// RecordFailure increments the consecutive-failure count. Once the count
// reaches the threshold the circuit opens for the cooldown period; the
// counter is left as-is so a failure right after the cooldown re-opens the
// circuit immediately. Returns true when this call transitioned the circuit
// from closed to open.
func (r *Registry) RecordFailure(subscriptionID string) bool {
	b := r.get(subscriptionID)
	b.mu.Lock()
	defer b.mu.Unlock()

	now := r.now()
	wasOpen := !b.openUntil.IsZero() && b.openUntil.After(now)

	b.failures++
	if b.failures >= r.threshold {
		b.openUntil = now.Add(r.cooldown)
		return !wasOpen
	}
	return false
}

// Failures returns the consecutive-failure count for subscriptionID.
func (r *Registry) Failures(subscriptionID string) int {
	r.mu.RLock()
	b, ok := r.breakers[subscriptionID]
	r.mu.RUnlock()
	if !ok {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures
}

// OpenUntil returns when the circuit for subscriptionID closes, and whether
// it is currently open.
func (r *Registry) OpenUntil(subscriptionID string) (time.Time, bool) {
	r.mu.RLock()
	b, ok := r.breakers[subscriptionID]
	r.mu.RUnlock()
	if !ok {
		return time.Time{}, false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.openUntil.IsZero() || !b.openUntil.After(r.now()) {
		return time.Time{}, false
	}
	return b.openUntil, true
}
