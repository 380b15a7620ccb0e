package service

import (
	"github.com/Wyydra/yamesh/internal/core/domain"
	"github.com/Wyydra/yamesh/internal/core/port"
	"github.com/rs/zerolog"
)

// SessionInfo is a read-only view of one peer session.
type SessionInfo struct {
	RemoteID            domain.ParticipantID
	Role                domain.Role
	State               domain.SessionState
	PendingCandidates   int
	LocalTracksAttached bool
	RemoteStream        *domain.RemoteStream
}

// peerSession owns the negotiation with one remote participant. Every method
// runs on the room's actor goroutine.
type peerSession struct {
	remoteID  domain.ParticipantID
	role      domain.Role
	state     domain.SessionState
	transport port.PeerTransport
	pending   []domain.ICECandidate

	localTracksAttached bool
	remoteDescSet       bool
	awaitingAnswer      bool
	negotiationPending  bool
	// negotiated is set once one offer/answer round has completed.
	negotiated bool

	remoteStream  *domain.RemoteStream
	disconnectGen int
	closed        bool

	stats *counters
	log   zerolog.Logger
}

func newPeerSession(remoteID domain.ParticipantID, role domain.Role, stats *counters, l zerolog.Logger) *peerSession {
	return &peerSession{
		remoteID: remoteID,
		role:     role,
		state:    domain.StateNew,
		stats:    stats,
		log:      l.With().Str("peer", remoteID.String()).Logger(),
	}
}

func (s *peerSession) setState(state domain.SessionState) bool {
	if s.state == state {
		return false
	}
	s.log.Debug().Str("from", s.state.String()).Str("to", state.String()).Msg("Session state changed")
	s.state = state
	if state == domain.StateDisconnected {
		s.disconnectGen++
	}
	return true
}

func (s *peerSession) attach(stream *domain.LocalStream) error {
	if err := s.transport.SetLocalTracks(stream); err != nil {
		s.stats.transportErrors.Add(1)
		return domain.NewPeerError("attach tracks", s.remoteID, err)
	}
	s.localTracksAttached = stream.Len() > 0
	return nil
}

// offer starts a negotiation round. When a round is already outstanding it
// reports false and the offer is sent after the answer arrives.
func (s *peerSession) offer() (domain.SessionDescription, bool, error) {
	if s.awaitingAnswer {
		s.negotiationPending = true
		return domain.SessionDescription{}, false, nil
	}

	desc, err := s.transport.CreateOffer()
	if err != nil {
		s.stats.transportErrors.Add(1)
		return domain.SessionDescription{}, false, domain.NewPeerError("create offer", s.remoteID, err)
	}
	if err := s.transport.SetLocalDescription(desc); err != nil {
		s.stats.transportErrors.Add(1)
		return domain.SessionDescription{}, false, domain.NewPeerError("set local description", s.remoteID, err)
	}

	s.awaitingAnswer = true
	if s.state == domain.StateNew {
		s.setState(domain.StateOffering)
	}
	return desc, true, nil
}

// renegotiate asks for a fresh round after the local tracks changed. A
// responder that has not seen its first offer yet stays quiet: the pending
// offer from the initiator will pick up the new tracks.
func (s *peerSession) renegotiate() (domain.SessionDescription, bool, error) {
	if !s.negotiated && !s.awaitingAnswer {
		return domain.SessionDescription{}, false, nil
	}
	return s.offer()
}

// rollback withdraws our unanswered offer so the remote one can be accepted.
func (s *peerSession) rollback() error {
	if err := s.transport.Rollback(); err != nil {
		s.stats.transportErrors.Add(1)
		return domain.NewPeerError("rollback", s.remoteID, err)
	}
	s.awaitingAnswer = false
	if s.negotiated {
		s.negotiationPending = true
	}
	if s.state == domain.StateOffering {
		s.role = domain.RoleResponder
		s.setState(domain.StateAnswering)
	}
	return nil
}

// acceptOffer applies a remote offer and returns the answer to publish.
func (s *peerSession) acceptOffer(desc domain.SessionDescription) (domain.SessionDescription, error) {
	if s.state == domain.StateNew {
		s.setState(domain.StateAnswering)
	}

	if err := s.transport.SetRemoteDescription(desc); err != nil {
		s.stats.transportErrors.Add(1)
		return domain.SessionDescription{}, domain.NewPeerError("set remote description", s.remoteID, err)
	}
	s.remoteDescSet = true
	s.flushCandidates()

	answer, err := s.transport.CreateAnswer()
	if err != nil {
		s.stats.transportErrors.Add(1)
		return domain.SessionDescription{}, domain.NewPeerError("create answer", s.remoteID, err)
	}
	if err := s.transport.SetLocalDescription(answer); err != nil {
		s.stats.transportErrors.Add(1)
		return domain.SessionDescription{}, domain.NewPeerError("set local description", s.remoteID, err)
	}

	s.negotiated = true
	if s.state == domain.StateAnswering || s.state == domain.StateOffering {
		s.setState(domain.StateConnecting)
	}
	return answer, nil
}

func (s *peerSession) acceptAnswer(desc domain.SessionDescription) error {
	if !s.awaitingAnswer {
		return domain.NewPeerError("apply answer", s.remoteID, domain.ErrUnexpectedAnswer)
	}
	if err := s.transport.SetRemoteDescription(desc); err != nil {
		s.stats.transportErrors.Add(1)
		return domain.NewPeerError("set remote description", s.remoteID, err)
	}

	s.awaitingAnswer = false
	s.remoteDescSet = true
	s.negotiated = true
	s.flushCandidates()

	if s.state == domain.StateOffering {
		s.setState(domain.StateConnecting)
	}
	return nil
}

// takePending reports and clears a queued renegotiation request.
func (s *peerSession) takePending() bool {
	if !s.negotiationPending || s.awaitingAnswer {
		return false
	}
	s.negotiationPending = false
	return true
}

// addCandidate applies c, or buffers it until a remote description is set.
func (s *peerSession) addCandidate(c domain.ICECandidate) (buffered bool) {
	if !s.remoteDescSet {
		s.pending = append(s.pending, c)
		return true
	}
	s.applyCandidate(c)
	return false
}

func (s *peerSession) applyCandidate(c domain.ICECandidate) {
	if err := s.transport.AddICECandidate(c); err != nil {
		s.stats.transportErrors.Add(1)
		s.log.Warn().Err(err).Str("candidate", c.Candidate).Msg("Failed to add ICE candidate")
	}
}

func (s *peerSession) flushCandidates() {
	if len(s.pending) == 0 {
		return
	}
	s.log.Debug().Int("count", len(s.pending)).Msg("Flushing buffered ICE candidates")
	pending := s.pending
	s.pending = nil
	for _, c := range pending {
		s.applyCandidate(c)
	}
}

// onTransportState folds a connectivity signal into the session state and
// reports whether the state changed.
func (s *peerSession) onTransportState(ts domain.TransportState) bool {
	if s.closed {
		return false
	}
	switch ts {
	case domain.TransportConnected:
		return s.setState(domain.StateConnected)
	case domain.TransportDisconnected, domain.TransportFailed, domain.TransportClosed:
		if s.state == domain.StateConnected || s.state == domain.StateConnecting {
			return s.setState(domain.StateDisconnected)
		}
	}
	return false
}

func (s *peerSession) close() {
	if s.closed {
		return
	}
	s.closed = true
	s.pending = nil
	s.setState(domain.StateClosed)
	if s.transport == nil {
		return
	}
	if err := s.transport.Close(); err != nil {
		s.log.Warn().Err(err).Msg("Error closing peer transport")
	}
}

func (s *peerSession) info() SessionInfo {
	return SessionInfo{
		RemoteID:            s.remoteID,
		Role:                s.role,
		State:               s.state,
		PendingCandidates:   len(s.pending),
		LocalTracksAttached: s.localTracksAttached,
		RemoteStream:        s.remoteStream,
	}
}
