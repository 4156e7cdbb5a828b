package health

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

type mockPinger struct {
	pingError error
}

func (m *mockPinger) Ping(ctx context.Context) error {
	return m.pingError
}

func TestHTTPHandler(t *testing.T) {
	tests := []struct {
		name               string
		pinger             Pinger
		expectedStatusCode int
		expectedStatus     Status
	}{
		{
			name:               "healthy with nil pool",
			pinger:             nil,
			expectedStatusCode: http.StatusOK,
			expectedStatus:     Status{OK: true, Message: "ok", Database: true},
		},
		{
			name:               "healthy with working database",
			pinger:             &mockPinger{},
			expectedStatusCode: http.StatusOK,
			expectedStatus:     Status{OK: true, Message: "ok", Database: true},
		},
		{
			name:               "unhealthy with database ping failure",
			pinger:             &mockPinger{pingError: context.DeadlineExceeded},
			expectedStatusCode: http.StatusServiceUnavailable,
			expectedStatus:     Status{OK: false, Message: "db ping failed", Database: false},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/healthz", nil)
			w := httptest.NewRecorder()

			HTTPHandler(tt.pinger)(w, req)

			if w.Code != tt.expectedStatusCode {
				t.Errorf("status = %d, want %d", w.Code, tt.expectedStatusCode)
			}
			if ct := w.Header().Get("Content-Type"); ct != "application/json" {
				t.Errorf("content type = %q, want application/json", ct)
			}

			var got Status
			if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
				t.Fatalf("decode body: %v", err)
			}
			if got != tt.expectedStatus {
				t.Errorf("status body = %+v, want %+v", got, tt.expectedStatus)
			}
		})
	}
}
