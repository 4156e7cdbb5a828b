package delivery

import (
	"strings"
	"time"
)

// Auth is the destination authentication configuration of a subscription.
// A nil Auth means no extra auth header is sent.
type Auth interface {
	isAuth()
}

// BearerAuth sends "Authorization: Bearer <token>".
type BearerAuth struct {
	Token string
}

func (BearerAuth) isAuth() {}

// APIKeyAuth sends the key value in an arbitrary header.
type APIKeyAuth struct {
	Header string
	Value  string
}

func (APIKeyAuth) isAuth() {}

// Subscription is an external endpoint's registration to receive certain
// event types. Owned by the management surface; the engine only reads it.
type Subscription struct {
	ID          string
	URL         string
	Secret      []byte
	EventTypes  []string
	Filter      map[string]any // dotted-path equality predicate over the payload
	MaxAttempts int
	Timeout     time.Duration
	Auth        Auth
	Active      bool
}

// Subscribed reports whether the subscription's event set contains eventType.
func (s Subscription) Subscribed(eventType string) bool {
	for _, t := range s.EventTypes {
		if t == eventType {
			return true
		}
	}
	return false
}

// MatchesFilter evaluates the subscription's filter predicate against an
// event payload. Every filter entry must equal the payload value at its
// dotted path; an empty filter matches everything.
func (s Subscription) MatchesFilter(payload map[string]any) bool {
	for path, want := range s.Filter {
		got, ok := lookupPath(payload, path)
		if !ok || got != want {
			return false
		}
	}
	return true
}

func lookupPath(payload map[string]any, path string) (any, bool) {
	parts := strings.Split(path, ".")
	var cur any = payload
	for _, p := range parts {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[p]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}
