package delivery

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/betofilippi/plataforma-hooks/internal/signature"
)

func testDelivery() *Delivery {
	return &Delivery{
		ID:        "dlv-1",
		EventID:   "evt-1",
		EventType: "order.shipped",
		Payload:   map[string]any{"order_id": "ord_1", "total": 100},
	}
}

func testSubscription(url string) Subscription {
	return Subscription{
		ID:          "sub-1",
		URL:         url,
		Secret:      []byte("shh"),
		MaxAttempts: 3,
		Timeout:     5 * time.Second,
		Active:      true,
	}
}

func TestAttemptSuccess(t *testing.T) {
	var gotBody []byte
	var gotHeader http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		gotHeader = r.Header.Clone()
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	d := testDelivery()
	sub := testSubscription(srv.URL)
	res := NewAttempter("plataforma-hooks/test").Attempt(context.Background(), d, sub)

	if !res.Success {
		t.Fatalf("Attempt() success = false, error=%q", res.Error)
	}
	if res.StatusCode != http.StatusOK {
		t.Errorf("StatusCode = %d, want 200", res.StatusCode)
	}
	if res.Body != "ok" {
		t.Errorf("Body = %q, want %q", res.Body, "ok")
	}

	// The signature must verify against the exact bytes sent on the wire.
	if !signature.Verify(sub.Secret, gotBody, gotHeader.Get(SignatureHeader)) {
		t.Error("signature does not verify over the received body")
	}

	var sent map[string]any
	if err := json.Unmarshal(gotBody, &sent); err != nil {
		t.Fatalf("body is not JSON: %v", err)
	}
	if sent["order_id"] != "ord_1" {
		t.Errorf("payload order_id = %v, want ord_1", sent["order_id"])
	}

	if got := gotHeader.Get(EventHeader); got != "order.shipped" {
		t.Errorf("%s = %q, want %q", EventHeader, got, "order.shipped")
	}
	if got := gotHeader.Get(DeliveryHeader); got != "dlv-1" {
		t.Errorf("%s = %q, want %q", DeliveryHeader, got, "dlv-1")
	}
	if gotHeader.Get(TimestampHeader) == "" {
		t.Errorf("%s missing", TimestampHeader)
	}
	if _, err := time.Parse(time.RFC3339, gotHeader.Get(TimestampHeader)); err != nil {
		t.Errorf("%s not RFC3339: %v", TimestampHeader, err)
	}
	if got := gotHeader.Get("User-Agent"); got != "plataforma-hooks/test" {
		t.Errorf("User-Agent = %q, want %q", got, "plataforma-hooks/test")
	}
	if got := gotHeader.Get("Content-Type"); got != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", got)
	}
}

func TestAttemptAuthHeaders(t *testing.T) {
	tests := []struct {
		name       string
		auth       Auth
		wantHeader string
		wantValue  string
	}{
		{name: "bearer", auth: BearerAuth{Token: "tok-1"}, wantHeader: "Authorization", wantValue: "Bearer tok-1"},
		{name: "api key", auth: APIKeyAuth{Header: "X-Api-Key", Value: "key-1"}, wantHeader: "X-Api-Key", wantValue: "key-1"},
		{name: "none", auth: nil, wantHeader: "Authorization", wantValue: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got string
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				got = r.Header.Get(tt.wantHeader)
				w.WriteHeader(http.StatusNoContent)
			}))
			defer srv.Close()

			sub := testSubscription(srv.URL)
			sub.Auth = tt.auth
			res := NewAttempter("").Attempt(context.Background(), testDelivery(), sub)
			if !res.Success {
				t.Fatalf("Attempt() success = false: %s", res.Error)
			}
			if got != tt.wantValue {
				t.Errorf("%s = %q, want %q", tt.wantHeader, got, tt.wantValue)
			}
		})
	}
}

func TestAttemptNon2xxIsFailure(t *testing.T) {
	tests := []struct {
		status     int
		wantReason string
	}{
		{http.StatusInternalServerError, "http_5xx"},
		{http.StatusServiceUnavailable, "http_5xx"},
		{http.StatusBadRequest, "http_4xx"},
		{http.StatusUnauthorized, "http_4xx"},
		{http.StatusTooManyRequests, "http_429"},
	}

	for _, tt := range tests {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "nope", tt.status)
		}))

		res := NewAttempter("").Attempt(context.Background(), testDelivery(), testSubscription(srv.URL))
		srv.Close()

		if res.Success {
			t.Errorf("status %d: success = true, want false", tt.status)
		}
		if res.StatusCode != tt.status {
			t.Errorf("status %d: StatusCode = %d", tt.status, res.StatusCode)
		}
		if res.Reason != tt.wantReason {
			t.Errorf("status %d: Reason = %q, want %q", tt.status, res.Reason, tt.wantReason)
		}
		if res.Error == "" {
			t.Errorf("status %d: Error empty, want captured error string", tt.status)
		}
	}
}

func TestAttemptNetworkFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // refuse connections

	res := NewAttempter("").Attempt(context.Background(), testDelivery(), testSubscription(srv.URL))
	if res.Success {
		t.Error("success = true for unreachable destination")
	}
	if res.StatusCode != 0 {
		t.Errorf("StatusCode = %d, want 0 for network error", res.StatusCode)
	}
	if res.Error == "" {
		t.Error("Error empty for network failure")
	}
	if res.Reason != "connection_refused" && res.Reason != "network" {
		t.Errorf("Reason = %q, want connection_refused or network", res.Reason)
	}
}

func TestAttemptTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	sub := testSubscription(srv.URL)
	sub.Timeout = 50 * time.Millisecond

	start := time.Now()
	res := NewAttempter("").Attempt(context.Background(), testDelivery(), sub)
	elapsed := time.Since(start)

	if res.Success {
		t.Error("success = true for timed-out attempt")
	}
	if res.Reason != "timeout" {
		t.Errorf("Reason = %q, want timeout", res.Reason)
	}
	// A stuck attempt must not exceed timeout plus small overhead.
	if elapsed > 250*time.Millisecond {
		t.Errorf("attempt took %v, should be bounded near the 50ms timeout", elapsed)
	}
}

func TestAttemptDefaultTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	// No per-subscription timeout: the attempter's configured default applies.
	sub := testSubscription(srv.URL)
	sub.Timeout = 0

	res := NewAttempter("").WithDefaultTimeout(50 * time.Millisecond).Attempt(context.Background(), testDelivery(), sub)
	if res.Success {
		t.Error("success = true for attempt exceeding the default timeout")
	}
	if res.Reason != "timeout" {
		t.Errorf("Reason = %q, want timeout", res.Reason)
	}
}

func TestAttemptBoundedRedirects(t *testing.T) {
	var mux http.ServeMux
	srv := httptest.NewServer(&mux)
	defer srv.Close()
	mux.HandleFunc("/loop", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, srv.URL+"/loop", http.StatusTemporaryRedirect)
	})

	sub := testSubscription(srv.URL + "/loop")
	res := NewAttempter("").Attempt(context.Background(), testDelivery(), sub)
	if res.Success {
		t.Error("success = true for redirect loop")
	}
	if !strings.Contains(res.Error, "redirect") {
		t.Errorf("Error = %q, want redirect limit error", res.Error)
	}
}

func TestAttemptMissingSecret(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("request sent despite missing secret")
	}))
	defer srv.Close()

	sub := testSubscription(srv.URL)
	sub.Secret = nil
	res := NewAttempter("").Attempt(context.Background(), testDelivery(), sub)
	if res.Success {
		t.Error("success = true with missing secret")
	}
	if res.Reason != "no_secret" {
		t.Errorf("Reason = %q, want no_secret", res.Reason)
	}
}

func TestAttemptTruncatesResponseBody(t *testing.T) {
	big := strings.Repeat("x", 4096)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(big))
	}))
	defer srv.Close()

	res := NewAttempter("").Attempt(context.Background(), testDelivery(), testSubscription(srv.URL))
	if len(res.Body) != maxBodyBytes {
		t.Errorf("Body length = %d, want truncated to %d", len(res.Body), maxBodyBytes)
	}
}
