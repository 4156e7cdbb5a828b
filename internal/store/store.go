// Package store is the durable record of every delivery and its state
// transitions. The claim operation is a compare-and-set on status so that
// concurrent workers racing the same due scan can never double-attempt a
// delivery.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/betofilippi/plataforma-hooks/internal/delivery"
)

// ErrNotFound is returned when a delivery id does not exist.
var ErrNotFound = errors.New("delivery not found")

// ErrTerminal is returned on an attempt to mutate a terminal delivery.
var ErrTerminal = errors.New("delivery is in a terminal state")

// ListFilter narrows List results. Zero values mean "any".
type ListFilter struct {
	SubscriptionID string
	Status         delivery.Status
	Limit          int
}

// Store persists deliveries.
//
// Claim must be atomic: of any number of concurrent callers for the same id,
// at most one observes ok=true, and only while the delivery is pending or
// retry_scheduled. Complete and Release only apply to in_flight deliveries.
type Store interface {
	// Enqueue inserts the batch inside one logical transaction; either every
	// delivery is recorded or none are.
	Enqueue(ctx context.Context, ds []*delivery.Delivery) error

	// Due returns deliveries in pending or retry_scheduled whose
	// next_attempt_at is not after now, soonest first.
	Due(ctx context.Context, now time.Time, limit int) ([]*delivery.Delivery, error)

	// Claim transitions pending|retry_scheduled → in_flight. ok is false when
	// the delivery is in any other state (lost race, terminal, cancelled).
	Claim(ctx context.Context, id string) (d *delivery.Delivery, ok bool, err error)

	// Release transitions in_flight → retry_scheduled without touching the
	// attempt count. Used when the circuit is open at attempt time.
	Release(ctx context.Context, id string, nextAttemptAt time.Time) error

	// Complete transitions in_flight → status, recording the attempt count
	// and, unless the result is discarded (nil), the last result.
	Complete(ctx context.Context, id string, status delivery.Status, attemptCount int, nextAttemptAt time.Time, res *delivery.Result) error

	// CancelBySubscription transitions every pending|retry_scheduled delivery
	// of a subscription to cancelled, returning how many were cancelled.
	CancelBySubscription(ctx context.Context, subscriptionID string) (int, error)

	Get(ctx context.Context, id string) (*delivery.Delivery, error)
	List(ctx context.Context, f ListFilter) ([]*delivery.Delivery, error)

	// CountDue reports the current due backlog, for observability.
	CountDue(ctx context.Context, now time.Time) (int, error)
}
