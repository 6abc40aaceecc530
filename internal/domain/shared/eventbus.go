package shared

import "context"

// EventHandler reacts to checkout lifecycle events after the state change
// that raised them has been stored. A handler error is logged by the bus
// and never undoes the change.
type EventHandler interface {
	Handle(ctx context.Context, event DomainEvent) error
	// EventTypes lists the types the handler wants; empty means all
	EventTypes() []string
}

// EventPublisher is what the checkout service depends on
type EventPublisher interface {
	Publish(ctx context.Context, events ...DomainEvent) error
}

// EventSubscriber registers handlers. Passing no types falls back to the
// handler's own EventTypes.
type EventSubscriber interface {
	Subscribe(handler EventHandler, eventTypes ...string)
	Unsubscribe(handler EventHandler)
}

// EventBus is the in-process bus wired by the server
type EventBus interface {
	EventPublisher
	EventSubscriber
	Start(ctx context.Context) error
	// Stop waits for in-flight deliveries or until ctx is done
	Stop(ctx context.Context) error
}
