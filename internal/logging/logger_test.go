package logging

import (
	"errors"
	"testing"
)

func TestLogEntryFluentFields(t *testing.T) {
	l := New("test-service")

	entry := l.Plain().
		WithDelivery("dlv-1").
		WithSubscription("sub-1").
		WithEvent("evt-1").
		WithEventType("order.shipped").
		WithField("attempt", 2)

	if entry.Service != "test-service" {
		t.Errorf("Service = %q, want %q", entry.Service, "test-service")
	}
	if entry.DeliveryID != "dlv-1" {
		t.Errorf("DeliveryID = %q, want %q", entry.DeliveryID, "dlv-1")
	}
	if entry.SubscriptionID != "sub-1" {
		t.Errorf("SubscriptionID = %q, want %q", entry.SubscriptionID, "sub-1")
	}
	if entry.EventID != "evt-1" {
		t.Errorf("EventID = %q, want %q", entry.EventID, "evt-1")
	}
	if entry.EventType != "order.shipped" {
		t.Errorf("EventType = %q, want %q", entry.EventType, "order.shipped")
	}
	if got := entry.Fields["attempt"]; got != 2 {
		t.Errorf("Fields[attempt] = %v, want 2", got)
	}
}

func TestWithError(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		wantSet bool
	}{
		{name: "non-nil error", err: errors.New("boom"), wantSet: true},
		{name: "nil error", err: nil, wantSet: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entry := New("svc").Plain().WithError(tt.err)
			_, ok := entry.Fields["error"]
			if ok != tt.wantSet {
				t.Errorf("error field set = %v, want %v", ok, tt.wantSet)
			}
			if tt.wantSet && entry.Fields["error"] != "boom" {
				t.Errorf("error field = %v, want %q", entry.Fields["error"], "boom")
			}
		})
	}
}

func TestWithFieldsMerges(t *testing.T) {
	entry := New("svc").
		WithFields(map[string]any{"a": 1}).
		WithFields(map[string]any{"b": 2})

	if entry.Fields["a"] != 1 || entry.Fields["b"] != 2 {
		t.Errorf("merged fields = %v, want a=1 b=2", entry.Fields)
	}
}
