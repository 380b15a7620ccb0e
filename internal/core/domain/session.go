package domain

// Role is the negotiation role a session plays toward its remote peer.
type Role int

const (
	RoleInitiator Role = iota
	RoleResponder
)

func (r Role) String() string {
	switch r {
	case RoleInitiator:
		return "initiator"
	case RoleResponder:
		return "responder"
	default:
		return "unknown"
	}
}

type SessionState int

const (
	StateNew SessionState = iota
	StateOffering
	StateAnswering
	StateConnecting
	StateConnected
	StateDisconnected
	StateClosed
)

func (s SessionState) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateOffering:
		return "offering"
	case StateAnswering:
		return "answering"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// TransportState is the connectivity signal reported by a peer transport.
type TransportState int

const (
	TransportNew TransportState = iota
	TransportConnecting
	TransportConnected
	TransportDisconnected
	TransportFailed
	TransportClosed
)

func (s TransportState) String() string {
	switch s {
	case TransportNew:
		return "new"
	case TransportConnecting:
		return "connecting"
	case TransportConnected:
		return "connected"
	case TransportDisconnected:
		return "disconnected"
	case TransportFailed:
		return "failed"
	case TransportClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// ICEServer is a STUN/TURN descriptor handed to every peer transport.
type ICEServer struct {
	URLs       []string
	Username   string
	Credential string
}
