package pion

import (
	"github.com/Wyydra/yamesh/internal/core/domain"
	"github.com/Wyydra/yamesh/internal/core/port"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

// NewAPI builds a pion API with the default codecs and pion logging routed
// through zerolog. Tests pass a SettingEngine bound to a virtual network.
func NewAPI(se webrtc.SettingEngine) (*webrtc.API, error) {
	m := &webrtc.MediaEngine{}
	if err := m.RegisterDefaultCodecs(); err != nil {
		return nil, err
	}
	se.LoggerFactory = newLoggerFactory(log.Logger)

	return webrtc.NewAPI(
		webrtc.WithMediaEngine(m),
		webrtc.WithSettingEngine(se),
	), nil
}

// Factory creates one PeerConnection per remote participant.
type Factory struct {
	api        *webrtc.API
	forceRelay bool
}

var _ port.TransportFactory = (*Factory)(nil)

type FactoryOption func(*Factory)

// WithForceRelay restricts ICE to TURN relay candidates.
func WithForceRelay(force bool) FactoryOption {
	return func(f *Factory) { f.forceRelay = force }
}

func NewFactory(api *webrtc.API, opts ...FactoryOption) *Factory {
	f := &Factory{api: api}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func (f *Factory) NewTransport(remote domain.ParticipantID, iceServers []domain.ICEServer, h port.TransportHandlers) (port.PeerTransport, error) {
	policy := webrtc.ICETransportPolicyAll
	if f.forceRelay {
		policy = webrtc.ICETransportPolicyRelay
	}

	pc, err := f.api.NewPeerConnection(webrtc.Configuration{
		ICEServers:         toICEServers(iceServers),
		ICETransportPolicy: policy,
	})
	if err != nil {
		return nil, domain.NewPeerError("create peer connection", remote, err)
	}

	t, err := newTransport(remote, pc, h)
	if err != nil {
		pc.Close()
		return nil, domain.NewPeerError("create peer connection", remote, err)
	}
	return t, nil
}

func toICEServers(servers []domain.ICEServer) []webrtc.ICEServer {
	out := make([]webrtc.ICEServer, 0, len(servers))
	for _, s := range servers {
		srv := webrtc.ICEServer{URLs: s.URLs}
		if s.Username != "" || s.Credential != "" {
			srv.Username = s.Username
			srv.Credential = s.Credential
		}
		out = append(out, srv)
	}
	return out
}
