package port

import "context"

// RelayChannel is a room-scoped broadcast pub/sub. Delivery is at-least-once
// to current subscribers, unordered across senders, and without history.
// Publishers receive their own messages.
type RelayChannel interface {
	// Subscribe returns once the subscription is confirmed. onMessage is
	// invoked for every delivery until Unsubscribe is called; it may block
	// the relay's delivery goroutine but never the publisher.
	Subscribe(ctx context.Context, topic string, onMessage func(payload []byte)) (Subscription, error)
	Publish(ctx context.Context, topic string, payload []byte) error
}

type Subscription interface {
	Unsubscribe() error
}
