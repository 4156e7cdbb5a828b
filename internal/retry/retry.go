// Package retry decides what happens to a delivery after an attempt:
// success, schedule another attempt with exponential backoff, or give up.
package retry

import (
	"math/rand"
	"time"

	"github.com/betofilippi/plataforma-hooks/internal/delivery"
)

// Decision is the scheduling outcome for one attempt result.
type Decision struct {
	Status        delivery.Status
	NextAttemptAt time.Time // set only for retry_scheduled
}

// Policy computes retry decisions. It is a pure function of its inputs plus
// the injected clock, which keeps backoff timing testable.
type Policy struct {
	Base              time.Duration // backoff unit, doubled per attempt
	MaxDelay          time.Duration // cap on a single delay
	JitterPercent     float64       // +/- jitter fraction, 0 disables
	RetryClientErrors bool          // when false, permanent 4xx fail immediately
	Now               func() time.Time
}

// NewPolicy returns the reference policy: 1 minute base, 24 hour cap, no
// jitter, and 4xx responses retried like any other failure.
func NewPolicy() *Policy {
	return &Policy{
		Base:              time.Minute,
		MaxDelay:          24 * time.Hour,
		RetryClientErrors: true,
		Now:               time.Now,
	}
}

// Decide maps an attempt result to the delivery's next status. The caller
// must have already incremented d.AttemptCount for the attempt res describes.
func (p *Policy) Decide(d *delivery.Delivery, res delivery.Result) Decision {
	if res.Success {
		return Decision{Status: delivery.StatusSucceeded}
	}
	if !p.RetryClientErrors && permanentClientError(res.StatusCode) {
		return Decision{Status: delivery.StatusFailedFinal}
	}
	if d.AttemptCount >= d.MaxAttempts {
		return Decision{Status: delivery.StatusFailedFinal}
	}
	return Decision{
		Status:        delivery.StatusRetryScheduled,
		NextAttemptAt: p.now().Add(p.Delay(d.AttemptCount)),
	}
}

// Delay returns the backoff before attempt+1: base * 2^(attempt-1), capped
// at MaxDelay, with optional jitter.
func (p *Policy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	base := p.Base
	if base <= 0 {
		base = time.Minute
	}
	maximum := p.MaxDelay
	if maximum <= 0 {
		maximum = 24 * time.Hour
	}

	delay := base
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= maximum {
			delay = maximum
			break
		}
	}
	if delay > maximum {
		delay = maximum
	}

	if p.JitterPercent > 0 {
		j := 1 + (rand.Float64()*2-1)*p.JitterPercent
		if j < 0.1 {
			j = 0.1
		}
		delay = time.Duration(float64(delay) * j)
	}
	return delay
}

func (p *Policy) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}

// permanentClientError reports whether a status is a 4xx that retrying will
// not fix. 408 and 429 stay retryable.
func permanentClientError(status int) bool {
	if status < 400 || status >= 500 {
		return false
	}
	return status != 408 && status != 429
}
