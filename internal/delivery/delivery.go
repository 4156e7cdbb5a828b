// Package delivery holds the domain model of the webhook delivery engine and
// the attempter that performs a single outbound HTTP delivery.
package delivery

import (
	"time"
)

// Status is the lifecycle state of a Delivery.
type Status string

const (
	StatusPending        Status = "pending"
	StatusInFlight       Status = "in_flight"
	StatusSucceeded      Status = "succeeded"
	StatusRetryScheduled Status = "retry_scheduled"
	StatusFailedFinal    Status = "failed_final"
	StatusCancelled      Status = "cancelled"
)

// Terminal reports whether s admits no further transitions.
func (s Status) Terminal() bool {
	switch s {
	case StatusSucceeded, StatusFailedFinal, StatusCancelled:
		return true
	}
	return false
}

// Valid reports whether s is a known status value.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusInFlight, StatusSucceeded,
		StatusRetryScheduled, StatusFailedFinal, StatusCancelled:
		return true
	}
	return false
}

// Result captures the outcome of one delivery attempt. StatusCode is 0 for
// network-level failures (connect error, timeout, DNS failure).
type Result struct {
	Success        bool   `json:"success"`
	StatusCode     int    `json:"status_code,omitempty"`
	ResponseTimeMs int64  `json:"response_time_ms"`
	Body           string `json:"body,omitempty"` // truncated response body
	Error          string `json:"error,omitempty"`
	Reason         string `json:"reason,omitempty"` // failure classification
}

// Delivery is one tracked attempt-sequence of sending an event to a
// subscription. The payload and max_attempts are copied from the
// subscription at enqueue time so later subscription edits don't
// retroactively change in-flight deliveries.
type Delivery struct {
	ID             string         `json:"id"`
	SubscriptionID string         `json:"subscription_id"`
	EventID        string         `json:"event_id"`
	EventType      string         `json:"event_type"`
	Payload        map[string]any `json:"payload"`
	AttemptCount   int            `json:"attempt_count"`
	MaxAttempts    int            `json:"max_attempts"`
	Status         Status         `json:"status"`
	NextAttemptAt  time.Time      `json:"next_attempt_at"`
	LastResult     *Result        `json:"last_result,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// Clone returns a deep-enough copy: the payload map is copied one level down
// so callers can't mutate a stored record through the returned value.
func (d *Delivery) Clone() *Delivery {
	cp := *d
	if d.Payload != nil {
		cp.Payload = make(map[string]any, len(d.Payload))
		for k, v := range d.Payload {
			cp.Payload[k] = v
		}
	}
	if d.LastResult != nil {
		res := *d.LastResult
		cp.LastResult = &res
	}
	return &cp
}
