package breaker

import (
	"sync"
	"testing"
	"time"
)

// fakeClock is a mutable clock for driving cooldown expiry in tests.
type fakeClock struct {
	mu  sync.Mutex
	t   time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func TestOpensAtThreshold(t *testing.T) {
	clock := newFakeClock()
	r := NewRegistry(5, 15*time.Minute).WithClock(clock.Now)

	for i := 1; i <= 4; i++ {
		if opened := r.RecordFailure("sub-1"); opened {
			t.Errorf("RecordFailure() #%d opened circuit before threshold", i)
		}
		if r.IsOpen("sub-1") {
			t.Errorf("IsOpen() = true after %d failures, threshold is 5", i)
		}
	}

	if opened := r.RecordFailure("sub-1"); !opened {
		t.Error("RecordFailure() #5 did not report open transition")
	}
	if !r.IsOpen("sub-1") {
		t.Error("IsOpen() = false after reaching threshold")
	}
	if got := r.Failures("sub-1"); got != 5 {
		t.Errorf("Failures() = %d, want 5", got)
	}
}

func TestClosesAfterCooldown(t *testing.T) {
	clock := newFakeClock()
	r := NewRegistry(5, 15*time.Minute).WithClock(clock.Now)

	for i := 0; i < 5; i++ {
		r.RecordFailure("sub-1")
	}
	if !r.IsOpen("sub-1") {
		t.Fatal("circuit should be open")
	}

	clock.Advance(14 * time.Minute)
	if !r.IsOpen("sub-1") {
		t.Error("IsOpen() = false before cooldown elapsed")
	}

	clock.Advance(2 * time.Minute)
	if r.IsOpen("sub-1") {
		t.Error("IsOpen() = true after cooldown elapsed")
	}

	// Counter was left as-is, so the next failure re-opens immediately.
	if opened := r.RecordFailure("sub-1"); !opened {
		t.Error("RecordFailure() after cooldown did not re-open circuit")
	}
	if !r.IsOpen("sub-1") {
		t.Error("IsOpen() = false after post-cooldown failure")
	}
}

func TestSuccessResets(t *testing.T) {
	clock := newFakeClock()
	r := NewRegistry(5, 15*time.Minute).WithClock(clock.Now)

	for i := 0; i < 5; i++ {
		r.RecordFailure("sub-1")
	}
	r.RecordSuccess("sub-1")

	if r.IsOpen("sub-1") {
		t.Error("IsOpen() = true after RecordSuccess")
	}
	if got := r.Failures("sub-1"); got != 0 {
		t.Errorf("Failures() = %d after RecordSuccess, want 0", got)
	}

	// Interleaved success keeps the circuit from ever opening.
	for i := 0; i < 4; i++ {
		r.RecordFailure("sub-2")
	}
	r.RecordSuccess("sub-2")
	r.RecordFailure("sub-2")
	if r.IsOpen("sub-2") {
		t.Error("IsOpen() = true, success should have reset the counter")
	}
}

func TestSubscriptionsAreIndependent(t *testing.T) {
	r := NewRegistry(5, 15*time.Minute)

	for i := 0; i < 5; i++ {
		r.RecordFailure("failing")
	}
	if !r.IsOpen("failing") {
		t.Error("IsOpen(failing) = false")
	}
	if r.IsOpen("healthy") {
		t.Error("IsOpen(healthy) = true, breakers must be independent")
	}
	if got := r.Failures("healthy"); got != 0 {
		t.Errorf("Failures(healthy) = %d, want 0", got)
	}
}

func TestOpenUntil(t *testing.T) {
	clock := newFakeClock()
	r := NewRegistry(2, 10*time.Minute).WithClock(clock.Now)

	if _, open := r.OpenUntil("sub-1"); open {
		t.Error("OpenUntil() open = true for untouched subscription")
	}

	r.RecordFailure("sub-1")
	r.RecordFailure("sub-1")

	until, open := r.OpenUntil("sub-1")
	if !open {
		t.Fatal("OpenUntil() open = false after threshold")
	}
	want := clock.Now().Add(10 * time.Minute)
	if !until.Equal(want) {
		t.Errorf("OpenUntil() = %v, want %v", until, want)
	}
}

func TestConcurrentRecording(t *testing.T) {
	r := NewRegistry(5, time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			key := "sub-a"
			if n%2 == 0 {
				key = "sub-b"
			}
			r.RecordFailure(key)
			r.IsOpen(key)
			r.RecordSuccess(key)
		}(i)
	}
	wg.Wait()

	// After every goroutine finishes with a success, both circuits are closed.
	if r.IsOpen("sub-a") || r.IsOpen("sub-b") {
		t.Error("circuit left open after concurrent success resets")
	}
}
