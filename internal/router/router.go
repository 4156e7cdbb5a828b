// Package router fans an incoming event out to its matching subscriptions,
// enqueueing one pending delivery per match.
package router

import (
	"context"
	"fmt"
	"maps"
	"time"

	"github.com/google/uuid"

	"github.com/betofilippi/plataforma-hooks/internal/breaker"
	"github.com/betofilippi/plataforma-hooks/internal/delivery"
	"github.com/betofilippi/plataforma-hooks/internal/logging"
	"github.com/betofilippi/plataforma-hooks/internal/metrics"
	"github.com/betofilippi/plataforma-hooks/internal/store"
	"github.com/betofilippi/plataforma-hooks/internal/subscriptions"
	"github.com/betofilippi/plataforma-hooks/internal/tracing"
)

type Router struct {
	subs    subscriptions.Source
	store   store.Store
	breaker *breaker.Registry
	logger  *logging.Logger

	defaultMaxAttempts int
	now                func() time.Time
}

func New(subs subscriptions.Source, st store.Store, reg *breaker.Registry, logger *logging.Logger, defaultMaxAttempts int) *Router {
	return &Router{
		subs:               subs,
		store:              st,
		breaker:            reg,
		logger:             logger,
		defaultMaxAttempts: defaultMaxAttempts,
		now:                time.Now,
	}
}

// WithClock overrides the timestamp source. Test hook.
func (r *Router) WithClock(now func() time.Time) *Router {
	r.now = now
	return r
}

// Route enqueues one delivery per matching active subscription and returns the
// new delivery ids. Subscriptions whose circuit is open at route time are
// skipped outright: no delivery row is created for them.
func (r *Router) Route(ctx context.Context, ev delivery.Event) ([]string, error) {
	ctx, span := tracing.StartSpan(ctx, "router.Route")
	defer span.End()

	if ev.ID == "" || ev.Type == "" {
		return nil, fmt.Errorf("route: event id and type are required")
	}

	log := r.logger.WithContext(ctx).WithEvent(ev.ID).WithEventType(ev.Type)

	subs, err := r.subs.ForEventType(ctx, ev.Type)
	if err != nil {
		return nil, fmt.Errorf("route: lookup subscriptions: %w", err)
	}

	now := r.now().UTC()
	var ds []*delivery.Delivery
	for _, sub := range subs {
		if !sub.MatchesFilter(ev.Payload) {
			continue
		}
		if len(sub.Secret) == 0 {
			log.WithSubscription(sub.ID).Warn("skipping subscription without a signing secret")
			continue
		}
		if r.breaker.IsOpen(sub.ID) {
			metrics.RecordBreakerSkip("route")
			log.WithSubscription(sub.ID).Info("circuit open, skipping fanout")
			continue
		}
		maxAttempts := sub.MaxAttempts
		if maxAttempts <= 0 {
			maxAttempts = r.defaultMaxAttempts
		}
		ds = append(ds, &delivery.Delivery{
			ID:             uuid.NewString(),
			SubscriptionID: sub.ID,
			EventID:        ev.ID,
			EventType:      ev.Type,
			Payload:        maps.Clone(ev.Payload),
			MaxAttempts:    maxAttempts,
			Status:         delivery.StatusPending,
			NextAttemptAt:  now,
		})
	}

	if len(ds) > 0 {
		if err := r.store.Enqueue(ctx, ds); err != nil {
			return nil, fmt.Errorf("route: enqueue deliveries: %w", err)
		}
	}

	metrics.RecordEventRouted()
	ids := make([]string, 0, len(ds))
	for _, d := range ds {
		ids = append(ids, d.ID)
	}
	log.WithField("fanout", len(ids)).Info("event routed")
	return ids, nil
}
