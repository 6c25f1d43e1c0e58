// Package webhook delivers best-effort event notifications. Delivery is
// never part of a saga's rollback guarantee unless a caller explicitly
// wraps it as a compensable step.
package webhook

import (
	"context"
	"time"
)

// Event is the minimal envelope sent to org endpoints.
type Event struct {
	Type       string         `json:"type"`
	OrgID      string         `json:"org_id"`
	ActorID    string         `json:"actor_id"`
	ObjectType string         `json:"object_type"`
	ObjectID   string         `json:"object_id"`
	At         time.Time      `json:"at"`
	Payload    map[string]any `json:"payload,omitempty"`
}

// Dispatcher hands an event off for delivery. Implementations are
// best-effort: an error means the event could not be queued, not that
// delivery failed.
type Dispatcher interface {
	Notify(ctx context.Context, event Event) error
}

// NopDispatcher discards events. Used in tests and when no queue is
// configured.
type NopDispatcher struct{}

// Notify discards the event.
func (NopDispatcher) Notify(ctx context.Context, event Event) error { return nil }
