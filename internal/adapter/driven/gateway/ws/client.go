package ws

// Client is one hub connection. Send must not block; a client that cannot
// keep up reports an error and is dropped.
type Client interface {
	ID() string
	// CanSubscribe reports whether the client is allowed on topic.
	CanSubscribe(topic string) bool
	Send(f Frame) error
	Close() error
}
