// Package orchestrator runs the delivery loop: scan the store for due
// deliveries, claim each one, attempt it, and record the outcome. A bounded
// worker pool makes attempts in parallel; the claim CAS guarantees no
// delivery is attempted by two workers at once.
package orchestrator

import (
	"context"
	"time"

	"github.com/betofilippi/plataforma-hooks/internal/breaker"
	"github.com/betofilippi/plataforma-hooks/internal/delivery"
	"github.com/betofilippi/plataforma-hooks/internal/logging"
	"github.com/betofilippi/plataforma-hooks/internal/metrics"
	"github.com/betofilippi/plataforma-hooks/internal/retry"
	"github.com/betofilippi/plataforma-hooks/internal/store"
	"github.com/betofilippi/plataforma-hooks/internal/subscriptions"
	"github.com/betofilippi/plataforma-hooks/internal/tracing"
)

// Config sizes the delivery loop.
type Config struct {
	PoolSize     int           // concurrent attempt workers
	ScanInterval time.Duration // ticker period for the due scan
	BatchSize    int           // max deliveries per scan
	BreakerDelay time.Duration // re-check delay when the circuit is open at attempt time
}

type Orchestrator struct {
	store     store.Store
	subs      subscriptions.Source
	attempter *delivery.Attempter
	policy    *retry.Policy
	breaker   *breaker.Registry
	logger    *logging.Logger
	cfg       Config
	now       func() time.Time
}

func New(st store.Store, subs subscriptions.Source, att *delivery.Attempter, pol *retry.Policy, reg *breaker.Registry, logger *logging.Logger, cfg Config) *Orchestrator {
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = 8
	}
	if cfg.ScanInterval <= 0 {
		cfg.ScanInterval = 5 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.BreakerDelay <= 0 {
		cfg.BreakerDelay = 30 * time.Second
	}
	return &Orchestrator{
		store:     st,
		subs:      subs,
		attempter: att,
		policy:    pol,
		breaker:   reg,
		logger:    logger,
		cfg:       cfg,
		now:       time.Now,
	}
}

// WithClock overrides the timestamp source. Test hook.
func (o *Orchestrator) WithClock(now func() time.Time) *Orchestrator {
	o.now = now
	return o
}

// Run scans for due deliveries until ctx is cancelled. Workers drain in-flight
// attempts before Run returns.
func (o *Orchestrator) Run(ctx context.Context) {
	jobs := make(chan *delivery.Delivery)
	done := make(chan struct{})
	for i := 0; i < o.cfg.PoolSize; i++ {
		go func() {
			defer func() { done <- struct{}{} }()
			for d := range jobs {
				o.process(ctx, d)
			}
		}()
	}

	ticker := time.NewTicker(o.cfg.ScanInterval)
	defer ticker.Stop()

	o.logger.Plain().WithField("pool_size", o.cfg.PoolSize).Info("delivery loop started")
	for {
		select {
		case <-ctx.Done():
			close(jobs)
			for i := 0; i < o.cfg.PoolSize; i++ {
				<-done
			}
			o.logger.Plain().Info("delivery loop stopped")
			return
		case <-ticker.C:
			due, err := o.store.Due(ctx, o.now().UTC(), o.cfg.BatchSize)
			if err != nil {
				o.logger.Plain().WithError(err).Error("due scan failed")
				continue
			}
		distribute:
			for _, d := range due {
				select {
				case jobs <- d:
				case <-ctx.Done():
					break distribute
				}
			}
		}
	}
}

// RunOnce performs a single due scan and processes the batch sequentially.
// Used by tests and the drain path.
func (o *Orchestrator) RunOnce(ctx context.Context) error {
	due, err := o.store.Due(ctx, o.now().UTC(), o.cfg.BatchSize)
	if err != nil {
		return err
	}
	for _, d := range due {
		o.process(ctx, d)
	}
	return nil
}

// process drives one delivery through a single attempt. Any claim lost to a
// concurrent worker is silently dropped; the winner owns the delivery.
//
// The delivery runs to completion even when the run context is cancelled:
// during shutdown the pool drains instead of aborting requests mid-flight,
// which would record a phantom failure against a destination that never saw
// the request.
func (o *Orchestrator) process(ctx context.Context, due *delivery.Delivery) {
	ctx = context.WithoutCancel(ctx)
	ctx, span := tracing.StartSpan(ctx, "orchestrator.process")
	defer span.End()

	d, ok, err := o.store.Claim(ctx, due.ID)
	if err != nil {
		o.logger.WithContext(ctx).WithDelivery(due.ID).WithError(err).Error("claim failed")
		return
	}
	if !ok {
		return
	}

	log := o.logger.WithContext(ctx).WithDelivery(d.ID).WithSubscription(d.SubscriptionID).
		WithEvent(d.EventID).WithEventType(d.EventType)

	sub, found, err := o.subs.Get(ctx, d.SubscriptionID)
	if err != nil {
		// Transient lookup failure; put the delivery back without counting an attempt.
		log.WithError(err).Error("subscription lookup failed")
		o.release(ctx, d.ID, o.now().Add(o.cfg.BreakerDelay))
		return
	}
	if !found || !sub.Active {
		o.cancel(ctx, d, log)
		return
	}

	if o.breaker.IsOpen(sub.ID) {
		metrics.RecordBreakerSkip("attempt")
		log.Info("circuit open, deferring attempt")
		o.release(ctx, d.ID, o.now().Add(o.cfg.BreakerDelay))
		return
	}

	res := o.attempter.Attempt(ctx, d, sub)

	// Deactivation during the attempt discards the result: the attempt is not
	// counted and the breaker is left untouched.
	cur, found, err := o.subs.Get(ctx, d.SubscriptionID)
	if err == nil && (!found || !cur.Active) {
		o.cancel(ctx, d, log)
		return
	}

	if res.Success {
		o.breaker.RecordSuccess(sub.ID)
	} else if o.breaker.RecordFailure(sub.ID) {
		metrics.RecordBreakerOpen()
		log.WithField("failures", o.breaker.Failures(sub.ID)).Warn("circuit opened")
	}

	d.AttemptCount++
	dec := o.policy.Decide(d, res)
	if err := o.store.Complete(ctx, d.ID, dec.Status, d.AttemptCount, dec.NextAttemptAt, &res); err != nil {
		log.WithError(err).Error("record outcome failed")
		return
	}

	metrics.RecordDelivery(string(dec.Status), time.Duration(res.ResponseTimeMs)*time.Millisecond)
	switch dec.Status {
	case delivery.StatusSucceeded:
		log.WithField("attempt", d.AttemptCount).Info("delivery succeeded")
	case delivery.StatusRetryScheduled:
		metrics.RecordRetry(res.Reason)
		log.WithFields(map[string]any{
			"attempt":         d.AttemptCount,
			"reason":          res.Reason,
			"next_attempt_at": dec.NextAttemptAt.UTC().Format(time.RFC3339),
		}).Warn("delivery failed, retry scheduled")
	case delivery.StatusFailedFinal:
		log.WithFields(map[string]any{
			"attempt": d.AttemptCount,
			"reason":  res.Reason,
		}).Error("delivery failed permanently")
	}
}

func (o *Orchestrator) cancel(ctx context.Context, d *delivery.Delivery, log *logging.LogEntry) {
	if err := o.store.Complete(ctx, d.ID, delivery.StatusCancelled, d.AttemptCount, time.Time{}, nil); err != nil {
		log.WithError(err).Error("cancel failed")
		return
	}
	metrics.RecordDelivery(string(delivery.StatusCancelled), 0)
	log.Info("delivery cancelled, subscription inactive")
}

func (o *Orchestrator) release(ctx context.Context, id string, next time.Time) {
	if err := o.store.Release(ctx, id, next); err != nil {
		o.logger.WithContext(ctx).WithDelivery(id).WithError(err).Error("release failed")
	}
}
