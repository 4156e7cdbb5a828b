// Package subscriptions provides read access to webhook subscriptions for
// routing and delivery. The engine treats the subscription catalog as managed
// elsewhere; it only needs lookup by event type, lookup by id, and
// deactivation.
package subscriptions

import (
	"context"

	"github.com/betofilippi/plataforma-hooks/internal/delivery"
)

// Source resolves subscriptions at route time and attempt time.
type Source interface {
	// ForEventType returns every active subscription subscribed to eventType.
	ForEventType(ctx context.Context, eventType string) ([]delivery.Subscription, error)

	// Get returns the subscription whether active or not; ok is false when the
	// id is unknown.
	Get(ctx context.Context, id string) (sub delivery.Subscription, ok bool, err error)
}

// Deactivator marks a subscription inactive. Sources backed by read-only
// catalogs do not implement it.
type Deactivator interface {
	Deactivate(ctx context.Context, id string) error
}
