package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMustRegister(t *testing.T) {
	reg := prometheus.NewRegistry()
	MustRegister(reg)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() error: %v", err)
	}
	// Counters without observations don't show up until incremented; the
	// gauge and histogram should be present immediately.
	names := make(map[string]bool, len(families))
	for _, f := range families {
		names[f.GetName()] = true
	}
	if !names["hooks_due_backlog"] {
		t.Error("hooks_due_backlog not registered")
	}
	if !names["hooks_delivery_duration_seconds"] {
		t.Error("hooks_delivery_duration_seconds not registered")
	}
}

func TestRecordDelivery(t *testing.T) {
	before := testutil.ToFloat64(DeliveriesTotal.WithLabelValues("succeeded"))
	RecordDelivery("succeeded", 120*time.Millisecond)
	after := testutil.ToFloat64(DeliveriesTotal.WithLabelValues("succeeded"))
	if after != before+1 {
		t.Errorf("DeliveriesTotal{succeeded} = %v, want %v", after, before+1)
	}
}

func TestRecordRetryAndBreaker(t *testing.T) {
	beforeRetry := testutil.ToFloat64(RetriesTotal.WithLabelValues("http_5xx"))
	RecordRetry("http_5xx")
	if got := testutil.ToFloat64(RetriesTotal.WithLabelValues("http_5xx")); got != beforeRetry+1 {
		t.Errorf("RetriesTotal{http_5xx} = %v, want %v", got, beforeRetry+1)
	}

	beforeOpen := testutil.ToFloat64(BreakerOpenedTotal)
	RecordBreakerOpen()
	if got := testutil.ToFloat64(BreakerOpenedTotal); got != beforeOpen+1 {
		t.Errorf("BreakerOpenedTotal = %v, want %v", got, beforeOpen+1)
	}

	beforeSkip := testutil.ToFloat64(BreakerSkipsTotal.WithLabelValues("route"))
	RecordBreakerSkip("route")
	if got := testutil.ToFloat64(BreakerSkipsTotal.WithLabelValues("route")); got != beforeSkip+1 {
		t.Errorf("BreakerSkipsTotal{route} = %v, want %v", got, beforeSkip+1)
	}
}

func TestUpdateDueBacklog(t *testing.T) {
	UpdateDueBacklog(42)
	if got := testutil.ToFloat64(DueBacklog); got != 42 {
		t.Errorf("DueBacklog = %v, want 42", got)
	}
	UpdateDueBacklog(0)
	if got := testutil.ToFloat64(DueBacklog); got != 0 {
		t.Errorf("DueBacklog = %v, want 0", got)
	}
}
