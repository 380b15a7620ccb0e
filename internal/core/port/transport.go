package port

import "github.com/Wyydra/yamesh/internal/core/domain"

// TransportHandlers are invoked from transport-owned goroutines. They must
// not call back into the transport synchronously.
type TransportHandlers struct {
	OnICECandidate func(c domain.ICECandidate)
	OnStateChange  func(s domain.TransportState)
	OnRemoteStream func(s domain.RemoteStream)
}

// PeerTransport is one pairwise media connection and its negotiation
// primitive.
type PeerTransport interface {
	CreateOffer() (domain.SessionDescription, error)
	CreateAnswer() (domain.SessionDescription, error)
	SetLocalDescription(desc domain.SessionDescription) error
	SetRemoteDescription(desc domain.SessionDescription) error
	// Rollback discards a local offer that has not been answered.
	Rollback() error
	AddICECandidate(c domain.ICECandidate) error
	// SetLocalTracks replaces every outgoing track with the tracks of
	// stream. A renegotiation is required for the remote to observe it.
	SetLocalTracks(stream *domain.LocalStream) error
	Close() error
}

type TransportFactory interface {
	NewTransport(remote domain.ParticipantID, iceServers []domain.ICEServer, h TransportHandlers) (PeerTransport, error)
}
