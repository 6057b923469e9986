package service

// Broadcaster fans a state-change event out to dashboard subscribers.
// Delivery is best-effort and must never block the caller.
type Broadcaster interface {
	Publish(eventType string, data any)
}

// NopBroadcaster discards all events. Used in tests and during wiring.
type NopBroadcaster struct{}

func (NopBroadcaster) Publish(string, any) {}
