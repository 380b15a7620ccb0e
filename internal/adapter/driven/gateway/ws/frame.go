package ws

const (
	OpSubscribe   = "subscribe"
	OpSubscribed  = "subscribed"
	OpUnsubscribe = "unsubscribe"
	OpPublish     = "publish"
	OpMessage     = "message"
	OpError       = "error"
)

// Frame is the JSON envelope exchanged between hub clients and the hub.
// Payload is opaque to the hub and travels base64 encoded.
type Frame struct {
	Op      string `json:"op"`
	Topic   string `json:"topic,omitempty"`
	Payload []byte `json:"payload,omitempty"`
	Error   string `json:"error,omitempty"`
}
