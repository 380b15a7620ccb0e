package domain

type PeerEventType string

const (
	PeerConnected    PeerEventType = "peer_connected"
	PeerDisconnected PeerEventType = "peer_disconnected"
	PeerStateChanged PeerEventType = "peer_state_changed"
)

// PeerEvent is delivered on the router's output queue.
type PeerEvent struct {
	Type   PeerEventType
	PeerID ParticipantID
	State  SessionState
	// Stream is set for PeerConnected.
	Stream *RemoteStream
}
