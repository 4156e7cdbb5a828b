package subscriptions

import (
	"context"
	"testing"

	"github.com/betofilippi/plataforma-hooks/internal/delivery"
)

func TestMemoryForEventType(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	subs := []delivery.Subscription{
		{ID: "sub-b", URL: "https://b.example.com", EventTypes: []string{"order.created"}, Active: true},
		{ID: "sub-a", URL: "https://a.example.com", EventTypes: []string{"order.created", "order.paid"}, Active: true},
		{ID: "sub-c", URL: "https://c.example.com", EventTypes: []string{"order.created"}, Active: false},
		{ID: "sub-d", URL: "https://d.example.com", EventTypes: []string{"invoice.issued"}, Active: true},
	}
	for _, s := range subs {
		if err := m.Add(s); err != nil {
			t.Fatalf("Add(%s): %v", s.ID, err)
		}
	}

	got, err := m.ForEventType(ctx, "order.created")
	if err != nil {
		t.Fatalf("ForEventType: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d subscriptions, want 2", len(got))
	}
	// Sorted by id; inactive sub-c excluded.
	if got[0].ID != "sub-a" || got[1].ID != "sub-b" {
		t.Errorf("got order %s,%s; want sub-a,sub-b", got[0].ID, got[1].ID)
	}
}

func TestMemoryAddRequiresID(t *testing.T) {
	if err := NewMemory().Add(delivery.Subscription{URL: "https://x"}); err == nil {
		t.Fatal("expected error for subscription without id")
	}
}

func TestMemoryGetAndDeactivate(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	if err := m.Add(delivery.Subscription{ID: "sub-a", URL: "https://a", EventTypes: []string{"x"}, Active: true}); err != nil {
		t.Fatalf("Add: %v", err)
	}

	if _, ok, _ := m.Get(ctx, "missing"); ok {
		t.Error("Get returned ok for unknown id")
	}

	if err := m.Deactivate(ctx, "sub-a"); err != nil {
		t.Fatalf("Deactivate: %v", err)
	}
	sub, ok, err := m.Get(ctx, "sub-a")
	if err != nil || !ok {
		t.Fatalf("Get after deactivate: ok=%v err=%v", ok, err)
	}
	if sub.Active {
		t.Error("subscription still active after Deactivate")
	}

	// Deactivated subscriptions no longer receive fanout.
	got, err := m.ForEventType(ctx, "x")
	if err != nil {
		t.Fatalf("ForEventType: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("deactivated subscription still routed: %+v", got)
	}

	if err := m.Deactivate(ctx, "missing"); err == nil {
		t.Error("expected error deactivating unknown id")
	}
}
