package delivery

import "time"

// Event is a business event raised somewhere in the ERP. Immutable once
// raised; the engine only reads it.
type Event struct {
	ID        string            `json:"id"`
	Type      string            `json:"type"`
	Payload   map[string]any    `json:"payload"`
	EmittedAt time.Time         `json:"emitted_at"`
	Context   map[string]string `json:"context,omitempty"`
}
