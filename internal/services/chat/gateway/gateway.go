// Package gateway declares the external collaborators the chat view-model
// consumes: the object stream, the identity resolver and the naming service.
//
// Implementations live outside the chat packages; the in-process hub and the
// websocket client in the objects service both satisfy these contracts.
package gateway

import (
	"context"

	"github.com/designftw/graffiti-chat/internal/services/chat/object"
)

// EventKind distinguishes stream notifications.
type EventKind int

const (
	// EventPut carries an inserted or updated object.
	EventPut EventKind = iota + 1
	// EventRemove carries the id of an object that left the context.
	EventRemove
)

func (k EventKind) String() string {
	switch k {
	case EventPut:
		return "put"
	case EventRemove:
		return "remove"
	default:
		return "unknown"
	}
}

// Event is one live-update notification, delivered in store emission order.
type Event struct {
	Kind   EventKind
	Object object.Raw
	// ID identifies the removed object for EventRemove.
	ID string
}

// Subscription is a live subscription handle.
type Subscription interface {
	// Close stops delivery. No events are delivered after Close returns.
	Close() error
}

// ObjectStream subscribes to contexts and writes objects. Writes return once
// the request is handed to the store; acknowledgment is never awaited.
type ObjectStream interface {
	Subscribe(ctx context.Context, contextIDs []string, deliver func(Event)) (Subscription, error)
	Create(ctx context.Context, obj object.Raw) error
	Update(ctx context.Context, obj object.Raw) error
	Remove(ctx context.Context, id string) error
}

// IdentityResolver maps handles to actor ids and back. found is false when
// the lookup completed without a match.
type IdentityResolver interface {
	UsernameToActor(ctx context.Context, handle string) (actorID string, found bool, err error)
	ActorToUsername(ctx context.Context, actorID string) (handle string, found bool, err error)
}

// ClaimResult is the naming service response.
type ClaimResult struct {
	// Success is false when the handle is bound to another actor.
	Success bool
}

// NameClaimer binds handles to the calling actor.
type NameClaimer interface {
	RequestUsername(ctx context.Context, handle string) (ClaimResult, error)
}

// SubscriptionFunc adapts a function to Subscription.
type SubscriptionFunc func() error

// Close calls f.
func (f SubscriptionFunc) Close() error {
	if f == nil {
		return nil
	}
	return f()
}
