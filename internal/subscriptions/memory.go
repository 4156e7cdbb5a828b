package subscriptions

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/betofilippi/plataforma-hooks/internal/delivery"
)

// Memory is an in-process Source for tests and single-node dev setups.
type Memory struct {
	mu   sync.RWMutex
	subs map[string]delivery.Subscription
}

func NewMemory() *Memory {
	return &Memory{subs: make(map[string]delivery.Subscription)}
}

// Add registers or replaces a subscription.
func (m *Memory) Add(sub delivery.Subscription) error {
	if sub.ID == "" {
		return fmt.Errorf("subscription id is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subs[sub.ID] = sub
	return nil
}

func (m *Memory) ForEventType(_ context.Context, eventType string) ([]delivery.Subscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []delivery.Subscription
	for _, sub := range m.subs {
		if sub.Active && sub.Subscribed(eventType) {
			out = append(out, sub)
		}
	}
	// Deterministic fanout order keeps logs and tests readable.
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) Get(_ context.Context, id string) (delivery.Subscription, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sub, ok := m.subs[id]
	return sub, ok, nil
}

func (m *Memory) Deactivate(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sub, ok := m.subs[id]
	if !ok {
		return fmt.Errorf("subscription %s not found", id)
	}
	sub.Active = false
	m.subs[id] = sub
	return nil
}
