package jsonrpc2ws

import "sync"

// Subscription is a per-subscription stream of server-push notifications
// (§4.5). It wraps the receive end of the active-subscription channel; the
// connection task is the only writer, and closes the channel when the
// subscription ends (drop, backpressure, explicit unsubscribe, or engine
// termination).
//
// Subscription does not send an unsubscribe request when the caller stops
// reading from it -- server-side subscription lifetime is the caller's
// responsibility via an explicit Client.Unsubscribe call (§4.5, §9 open
// question, resolved in DESIGN.md).
type Subscription struct {
	id Id
	ch chan SubscriptionNotification

	mu     sync.Mutex
	closed bool
}

func newSubscription(id Id, ch chan SubscriptionNotification) *Subscription {
	return &Subscription{id: id, ch: ch}
}

// ID returns the server-assigned subscription id.
func (s *Subscription) ID() Id {
	return s.id
}

// Notifications returns the channel of incoming notifications. It is
// closed when the subscription ends; a closed, drained channel yields the
// zero value and false, mirroring the distilled spec's next() -> None.
func (s *Subscription) Notifications() <-chan SubscriptionNotification {
	return s.ch
}

// Close marks this handle closed. It never talks to the server and does not
// stop delivery: the engine keeps the subscription active and keeps sending
// into the notification channel until the subscription ends. It never
// panics, even if called more than once or after the channel has already
// been closed by the engine (§8 property 5, idempotent drop).
func (s *Subscription) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
}
