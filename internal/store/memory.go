package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/betofilippi/plataforma-hooks/internal/delivery"
)

// Memory is an in-process Store used by tests and the single-node dev setup.
type Memory struct {
	mu         sync.Mutex
	deliveries map[string]*delivery.Delivery
	now        func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		deliveries: make(map[string]*delivery.Delivery),
		now:        time.Now,
	}
}

// WithClock overrides the timestamp source. Test hook.
func (m *Memory) WithClock(now func() time.Time) *Memory {
	m.now = now
	return m
}

func (m *Memory) Enqueue(_ context.Context, ds []*delivery.Delivery) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range ds {
		if _, exists := m.deliveries[d.ID]; exists {
			return fmt.Errorf("enqueue: duplicate delivery id %s", d.ID)
		}
	}
	ts := m.now().UTC()
	for _, d := range ds {
		c := d.Clone()
		if c.Status == "" {
			c.Status = delivery.StatusPending
		}
		if c.CreatedAt.IsZero() {
			c.CreatedAt = ts
		}
		c.UpdatedAt = ts
		m.deliveries[c.ID] = c
	}
	return nil
}

func (m *Memory) Due(_ context.Context, now time.Time, limit int) ([]*delivery.Delivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var due []*delivery.Delivery
	for _, d := range m.deliveries {
		if claimable(d.Status) && !d.NextAttemptAt.After(now) {
			due = append(due, d.Clone())
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].NextAttemptAt.Before(due[j].NextAttemptAt) })
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

func (m *Memory) Claim(_ context.Context, id string) (*delivery.Delivery, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.deliveries[id]
	if !ok {
		return nil, false, ErrNotFound
	}
	if !claimable(d.Status) {
		return nil, false, nil
	}
	d.Status = delivery.StatusInFlight
	d.UpdatedAt = m.now().UTC()
	return d.Clone(), true, nil
}

func (m *Memory) Release(_ context.Context, id string, nextAttemptAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.deliveries[id]
	if !ok {
		return ErrNotFound
	}
	if d.Status != delivery.StatusInFlight {
		return fmt.Errorf("release: delivery %s is %s, not %s", id, d.Status, delivery.StatusInFlight)
	}
	d.Status = delivery.StatusRetryScheduled
	// next_attempt_at only moves forward
	if nextAttemptAt.After(d.NextAttemptAt) {
		d.NextAttemptAt = nextAttemptAt
	}
	d.UpdatedAt = m.now().UTC()
	return nil
}

func (m *Memory) Complete(_ context.Context, id string, status delivery.Status, attemptCount int, nextAttemptAt time.Time, res *delivery.Result) error {
	if status != delivery.StatusSucceeded && status != delivery.StatusRetryScheduled &&
		status != delivery.StatusFailedFinal && status != delivery.StatusCancelled {
		return fmt.Errorf("complete: invalid target status %q", status)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.deliveries[id]
	if !ok {
		return ErrNotFound
	}
	if d.Status.Terminal() {
		return ErrTerminal
	}
	if d.Status != delivery.StatusInFlight {
		return fmt.Errorf("complete: delivery %s is %s, not %s", id, d.Status, delivery.StatusInFlight)
	}
	if attemptCount > d.MaxAttempts {
		return fmt.Errorf("complete: attempt count %d exceeds max %d", attemptCount, d.MaxAttempts)
	}
	d.Status = status
	d.AttemptCount = attemptCount
	if status == delivery.StatusRetryScheduled && nextAttemptAt.After(d.NextAttemptAt) {
		d.NextAttemptAt = nextAttemptAt
	}
	if res != nil {
		r := *res
		d.LastResult = &r
	}
	d.UpdatedAt = m.now().UTC()
	return nil
}

func (m *Memory) CancelBySubscription(_ context.Context, subscriptionID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	ts := m.now().UTC()
	for _, d := range m.deliveries {
		if d.SubscriptionID == subscriptionID && claimable(d.Status) {
			d.Status = delivery.StatusCancelled
			d.UpdatedAt = ts
			n++
		}
	}
	return n, nil
}

func (m *Memory) Get(_ context.Context, id string) (*delivery.Delivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.deliveries[id]
	if !ok {
		return nil, ErrNotFound
	}
	return d.Clone(), nil
}

func (m *Memory) List(_ context.Context, f ListFilter) ([]*delivery.Delivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*delivery.Delivery
	for _, d := range m.deliveries {
		if f.SubscriptionID != "" && d.SubscriptionID != f.SubscriptionID {
			continue
		}
		if f.Status != "" && d.Status != f.Status {
			continue
		}
		out = append(out, d.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (m *Memory) CountDue(_ context.Context, now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, d := range m.deliveries {
		if claimable(d.Status) && !d.NextAttemptAt.After(now) {
			n++
		}
	}
	return n, nil
}

func claimable(s delivery.Status) bool {
	return s == delivery.StatusPending || s == delivery.StatusRetryScheduled
}
