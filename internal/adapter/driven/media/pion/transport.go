package pion

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Wyydra/yamesh/internal/core/domain"
	"github.com/Wyydra/yamesh/internal/core/port"
	"github.com/pion/rtcp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const pliInterval = 3 * time.Second

// Track is a local track the pion transport can send.
type Track interface {
	domain.LocalTrack
	TrackLocal() webrtc.TrackLocal
}

// transport wraps one PeerConnection. Callbacks are suppressed once Close
// has been called, so closing from the signaling goroutine never re-enters
// it.
type transport struct {
	remote domain.ParticipantID
	pc     *webrtc.PeerConnection
	h      port.TransportHandlers
	log    zerolog.Logger

	mu       sync.Mutex
	closed   bool
	streamID string
	senders  map[domain.TrackKind][]*webrtc.RTPSender
	streams map[string]*domain.RemoteStream
	done    chan struct{}
}

func newTransport(remote domain.ParticipantID, pc *webrtc.PeerConnection, h port.TransportHandlers) (*transport, error) {
	t := &transport{
		remote:  remote,
		pc:      pc,
		h:       h,
		log:     log.With().Str("peer", remote.String()).Logger(),
		senders: make(map[domain.TrackKind][]*webrtc.RTPSender),
		streams: make(map[string]*domain.RemoteStream),
		done:    make(chan struct{}),
	}

	// Receive audio and video even when we have nothing to send. AddTrack
	// reuses these transceivers before the first negotiation.
	for _, kind := range []webrtc.RTPCodecType{webrtc.RTPCodecTypeAudio, webrtc.RTPCodecTypeVideo} {
		if _, err := pc.AddTransceiverFromKind(kind, webrtc.RTPTransceiverInit{
			Direction: webrtc.RTPTransceiverDirectionRecvonly,
		}); err != nil {
			return nil, err
		}
	}

	pc.OnICECandidate(t.onICECandidate)
	pc.OnConnectionStateChange(t.onConnectionState)
	pc.OnTrack(t.onTrack)
	return t, nil
}

func (t *transport) isClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

func (t *transport) onICECandidate(c *webrtc.ICECandidate) {
	if c == nil || t.isClosed() || t.h.OnICECandidate == nil {
		return
	}
	init := c.ToJSON()
	t.h.OnICECandidate(domain.ICECandidate{
		Candidate:        init.Candidate,
		SDPMid:           init.SDPMid,
		SDPMLineIndex:    init.SDPMLineIndex,
		UsernameFragment: init.UsernameFragment,
	})
}

func (t *transport) onConnectionState(s webrtc.PeerConnectionState) {
	t.log.Debug().Str("state", s.String()).Msg("Peer connection state changed")
	if t.isClosed() || t.h.OnStateChange == nil {
		return
	}
	t.h.OnStateChange(toTransportState(s))
}

func (t *transport) onTrack(remote *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
	kind := domain.TrackKindAudio
	if remote.Kind() == webrtc.RTPCodecTypeVideo {
		kind = domain.TrackKindVideo
	}
	t.log.Debug().Str("kind", string(kind)).Str("stream_id", remote.StreamID()).Msg("Received remote track")

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	rs, ok := t.streams[remote.StreamID()]
	if !ok {
		rs = &domain.RemoteStream{ID: remote.StreamID()}
		t.streams[remote.StreamID()] = rs
	}
	rs.Tracks = append(rs.Tracks, domain.RemoteTrack{ID: remote.ID(), Kind: kind})
	snapshot := domain.RemoteStream{ID: rs.ID, Tracks: append([]domain.RemoteTrack(nil), rs.Tracks...)}
	t.mu.Unlock()

	go t.drainRTP(remote)
	if kind == domain.TrackKindVideo {
		go t.requestKeyframes(remote)
	}

	if t.h.OnRemoteStream != nil {
		t.h.OnRemoteStream(snapshot)
	}
}

// drainRTP consumes inbound packets; rendering is outside this module.
func (t *transport) drainRTP(remote *webrtc.TrackRemote) {
	buf := make([]byte, 1500)
	for {
		if _, _, err := remote.Read(buf); err != nil {
			return
		}
	}
}

// requestKeyframes sends a PLI right away and then periodically so the
// remote encoder produces a keyframe.
func (t *transport) requestKeyframes(remote *webrtc.TrackRemote) {
	sendPLI := func() bool {
		err := t.pc.WriteRTCP([]rtcp.Packet{
			&rtcp.PictureLossIndication{MediaSSRC: uint32(remote.SSRC())},
		})
		return err == nil
	}
	if !sendPLI() {
		return
	}

	ticker := time.NewTicker(pliInterval)
	defer ticker.Stop()
	for {
		select {
		case <-t.done:
			return
		case <-ticker.C:
			if !sendPLI() {
				return
			}
		}
	}
}

// drainRTCP reads sender reports so interceptors keep working.
func drainRTCP(sender *webrtc.RTPSender) {
	buf := make([]byte, 1500)
	for {
		if _, _, err := sender.Read(buf); err != nil {
			return
		}
	}
}

func (t *transport) CreateOffer() (domain.SessionDescription, error) {
	offer, err := t.pc.CreateOffer(nil)
	if err != nil {
		return domain.SessionDescription{}, err
	}
	return fromPion(offer), nil
}

func (t *transport) CreateAnswer() (domain.SessionDescription, error) {
	answer, err := t.pc.CreateAnswer(nil)
	if err != nil {
		return domain.SessionDescription{}, err
	}
	return fromPion(answer), nil
}

func (t *transport) SetLocalDescription(desc domain.SessionDescription) error {
	sd, err := toPion(desc)
	if err != nil {
		return err
	}
	return t.pc.SetLocalDescription(sd)
}

func (t *transport) SetRemoteDescription(desc domain.SessionDescription) error {
	sd, err := toPion(desc)
	if err != nil {
		return err
	}
	return t.pc.SetRemoteDescription(sd)
}

func (t *transport) Rollback() error {
	pending := t.pc.PendingLocalDescription()
	if pending == nil {
		return errors.New("no local offer to roll back")
	}
	return t.pc.SetLocalDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeRollback,
		SDP:  pending.SDP,
	})
}

func (t *transport) AddICECandidate(c domain.ICECandidate) error {
	return t.pc.AddICECandidate(webrtc.ICECandidateInit{
		Candidate:        c.Candidate,
		SDPMid:           c.SDPMid,
		SDPMLineIndex:    c.SDPMLineIndex,
		UsernameFragment: c.UsernameFragment,
	})
}

// SetLocalTracks binds the stream's tracks to senders. Tracks of the bound
// stream reuse their senders through ReplaceTrack and surplus senders go
// silent. A different stream replaces every sender, so the next offer
// carries fresh msid and SSRC lines and the remote side sees new tracks.
func (t *transport) SetLocalTracks(stream *domain.LocalStream) error {
	byKind := make(map[domain.TrackKind][]webrtc.TrackLocal)
	if stream != nil {
		for _, lt := range stream.Tracks {
			pt, ok := lt.(Track)
			if !ok {
				return fmt.Errorf("track %s cannot be sent by pion", lt.ID())
			}
			byKind[lt.Kind()] = append(byKind[lt.Kind()], pt.TrackLocal())
		}
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return domain.ErrClosed
	}

	if stream.Len() > 0 && stream.ID != t.streamID {
		if err := t.removeSenders(); err != nil {
			return err
		}
		t.streamID = stream.ID
	}

	for _, kind := range []domain.TrackKind{domain.TrackKindAudio, domain.TrackKindVideo} {
		tracks := byKind[kind]
		senders := t.senders[kind]
		for i, tl := range tracks {
			if i < len(senders) {
				if err := senders[i].ReplaceTrack(tl); err != nil {
					return err
				}
				continue
			}
			sender, err := t.pc.AddTrack(tl)
			if err != nil {
				return err
			}
			go drainRTCP(sender)
			senders = append(senders, sender)
		}
		for i := len(tracks); i < len(senders); i++ {
			if err := senders[i].ReplaceTrack(nil); err != nil {
				return err
			}
		}
		t.senders[kind] = senders
	}
	return nil
}

// removeSenders stops every sender and releases its transceiver for
// sending. Callers hold t.mu.
func (t *transport) removeSenders() error {
	for kind, senders := range t.senders {
		for _, sender := range senders {
			if err := t.pc.RemoveTrack(sender); err != nil {
				return fmt.Errorf("remove %s sender: %w", kind, err)
			}
		}
		delete(t.senders, kind)
	}
	return nil
}

func (t *transport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	close(t.done)
	t.mu.Unlock()

	return t.pc.Close()
}

func toTransportState(s webrtc.PeerConnectionState) domain.TransportState {
	switch s {
	case webrtc.PeerConnectionStateConnecting:
		return domain.TransportConnecting
	case webrtc.PeerConnectionStateConnected:
		return domain.TransportConnected
	case webrtc.PeerConnectionStateDisconnected:
		return domain.TransportDisconnected
	case webrtc.PeerConnectionStateFailed:
		return domain.TransportFailed
	case webrtc.PeerConnectionStateClosed:
		return domain.TransportClosed
	default:
		return domain.TransportNew
	}
}

func fromPion(sd webrtc.SessionDescription) domain.SessionDescription {
	return domain.SessionDescription{Type: domain.SDPType(sd.Type.String()), SDP: sd.SDP}
}

func toPion(desc domain.SessionDescription) (webrtc.SessionDescription, error) {
	var typ webrtc.SDPType
	switch desc.Type {
	case domain.SDPTypeOffer:
		typ = webrtc.SDPTypeOffer
	case domain.SDPTypeAnswer:
		typ = webrtc.SDPTypeAnswer
	case domain.SDPTypePranswer:
		typ = webrtc.SDPTypePranswer
	case domain.SDPTypeRollback:
		typ = webrtc.SDPTypeRollback
	default:
		return webrtc.SessionDescription{}, fmt.Errorf("unknown sdp type %q", desc.Type)
	}
	return webrtc.SessionDescription{Type: typ, SDP: desc.SDP}, nil
}
