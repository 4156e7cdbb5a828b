package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/betofilippi/plataforma-hooks/internal/signature"
)

// Outbound wire protocol headers.
const (
	SignatureHeader = "X-Webhook-Signature" // sha256=<hex>
	EventHeader     = "X-Webhook-Event"
	DeliveryHeader  = "X-Webhook-Delivery"
	TimestampHeader = "X-Webhook-Timestamp" // RFC3339
)

const (
	maxRedirects = 3
	maxBodyBytes = 1024 // how much of the response body last_result retains
	defaultUA    = "plataforma-hooks/1.0"
)

// Attempter performs one HTTP delivery attempt. It is a pure function of
// (delivery, subscription) → Result and never mutates delivery state; state
// transitions are the orchestrator's job.
type Attempter struct {
	client         *http.Client
	userAgent      string
	defaultTimeout time.Duration
	now            func() time.Time
}

// NewAttempter builds an attempter with a redirect-bounded HTTP client.
// Per-attempt timeouts come from the subscription, not the client.
func NewAttempter(userAgent string) *Attempter {
	if userAgent == "" {
		userAgent = defaultUA
	}
	return &Attempter{
		client: &http.Client{
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= maxRedirects {
					return fmt.Errorf("stopped after %d redirects", maxRedirects)
				}
				return nil
			},
		},
		userAgent:      userAgent,
		defaultTimeout: 30 * time.Second,
		now:            time.Now,
	}
}

// WithClock replaces the attempter clock. Intended for tests.
func (a *Attempter) WithClock(now func() time.Time) *Attempter {
	a.now = now
	return a
}

// WithDefaultTimeout overrides the fallback used when a subscription does not
// set its own timeout.
func (a *Attempter) WithDefaultTimeout(d time.Duration) *Attempter {
	if d > 0 {
		a.defaultTimeout = d
	}
	return a
}

// Attempt serializes the payload once, signs those exact bytes, and POSTs
// them to the subscription's destination under its timeout. Any 2xx response
// is success; any other status or network-level failure is a failure with
// the reason classified for metrics.
func (a *Attempter) Attempt(ctx context.Context, d *Delivery, sub Subscription) Result {
	if len(sub.Secret) == 0 {
		return Result{Success: false, Error: "subscription secret missing", Reason: "no_secret"}
	}

	body, err := json.Marshal(d.Payload)
	if err != nil {
		return Result{Success: false, Error: fmt.Sprintf("marshal payload: %v", err), Reason: "bad_payload"}
	}

	timeout := sub.Timeout
	if timeout <= 0 {
		timeout = a.defaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, sub.URL, bytes.NewReader(body))
	if err != nil {
		return Result{Success: false, Error: err.Error(), Reason: "bad_request"}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(SignatureHeader, signature.Header(sub.Secret, body))
	req.Header.Set(EventHeader, d.EventType)
	req.Header.Set(DeliveryHeader, d.ID)
	req.Header.Set(TimestampHeader, a.now().UTC().Format(time.RFC3339))
	req.Header.Set("User-Agent", a.userAgent)
	switch auth := sub.Auth.(type) {
	case BearerAuth:
		req.Header.Set("Authorization", "Bearer "+auth.Token)
	case APIKeyAuth:
		req.Header.Set(auth.Header, auth.Value)
	}

	start := a.now()
	resp, doErr := a.client.Do(req)
	latency := a.now().Sub(start)

	res := Result{ResponseTimeMs: latency.Milliseconds()}
	if doErr != nil {
		res.Error = doErr.Error()
		res.Reason = classifyReason(doErr, 0)
		return res
	}
	defer resp.Body.Close()

	res.StatusCode = resp.StatusCode
	trunc, _ := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	res.Body = string(trunc)

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		res.Success = true
		return res
	}

	res.Error = fmt.Sprintf("destination returned status %d", resp.StatusCode)
	res.Reason = classifyReason(nil, resp.StatusCode)
	return res
}

func classifyReason(doErr error, status int) string {
	if doErr != nil {
		errLower := strings.ToLower(doErr.Error())
		if strings.Contains(errLower, "deadline exceeded") || strings.Contains(errLower, "timeout") {
			return "timeout"
		}
		if strings.Contains(errLower, "connection refused") {
			return "connection_refused"
		}
		if strings.Contains(errLower, "no such host") || strings.Contains(errLower, "dns") {
			return "dns_error"
		}
		return "network"
	}
	if status >= 500 {
		return "http_5xx"
	}
	if status == 429 {
		return "http_429"
	}
	if status >= 400 {
		return "http_4xx"
	}
	return "other"
}
