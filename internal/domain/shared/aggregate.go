package shared

// EventRecorder collects domain events raised by an aggregate until the
// application layer publishes them.
type EventRecorder struct {
	domainEvents []DomainEvent
}

// AddDomainEvent adds a domain event to be published
func (r *EventRecorder) AddDomainEvent(event DomainEvent) {
	r.domainEvents = append(r.domainEvents, event)
}

// GetDomainEvents returns all pending domain events
func (r *EventRecorder) GetDomainEvents() []DomainEvent {
	return r.domainEvents
}

// ClearDomainEvents clears the pending domain events
func (r *EventRecorder) ClearDomainEvents() {
	r.domainEvents = nil
}
