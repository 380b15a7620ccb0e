package codec

import (
	"fmt"

	"github.com/Wyydra/yamesh/internal/core/domain"
	"github.com/Wyydra/yamesh/internal/core/port"
)

const (
	typeJoined    = "user-joined"
	typeLeft      = "user-left"
	typeOffer     = "offer"
	typeAnswer    = "answer"
	typeCandidate = "ice-candidate"
)

// message is the flat wire envelope shared by every codec.
type message struct {
	Type      string        `json:"type" msgpack:"type"`
	UserID    string        `json:"userId,omitempty" msgpack:"userId,omitempty"`
	From      string        `json:"from,omitempty" msgpack:"from,omitempty"`
	To        string        `json:"to,omitempty" msgpack:"to,omitempty"`
	SDP       *sdp          `json:"sdp,omitempty" msgpack:"sdp,omitempty"`
	Candidate *iceCandidate `json:"candidate,omitempty" msgpack:"candidate,omitempty"`
}

type sdp struct {
	Type string `json:"type" msgpack:"type"`
	SDP  string `json:"sdp" msgpack:"sdp"`
}

type iceCandidate struct {
	Candidate        string  `json:"candidate" msgpack:"candidate"`
	SDPMid           *string `json:"sdpMid,omitempty" msgpack:"sdpMid,omitempty"`
	SDPMLineIndex    *uint16 `json:"sdpMLineIndex,omitempty" msgpack:"sdpMLineIndex,omitempty"`
	UsernameFragment *string `json:"usernameFragment,omitempty" msgpack:"usernameFragment,omitempty"`
}

// New returns the codec registered under name ("json" or "msgpack").
func New(name string) (port.SignalCodec, error) {
	switch name {
	case "", "json":
		return JSON{}, nil
	case "msgpack":
		return MsgPack{}, nil
	default:
		return nil, fmt.Errorf("unknown codec %q", name)
	}
}

func toWire(sig domain.Signal) (*message, error) {
	switch s := sig.(type) {
	case domain.Joined:
		return &message{Type: typeJoined, UserID: s.ParticipantID.String()}, nil
	case domain.Left:
		return &message{Type: typeLeft, UserID: s.ParticipantID.String()}, nil
	case domain.Offer:
		return &message{Type: typeOffer, From: s.From.String(), To: s.To.String(), SDP: toSDP(s.Description)}, nil
	case domain.Answer:
		return &message{Type: typeAnswer, From: s.From.String(), To: s.To.String(), SDP: toSDP(s.Description)}, nil
	case domain.Candidate:
		c := s.Candidate
		return &message{
			Type: typeCandidate,
			From: s.From.String(),
			To:   s.To.String(),
			Candidate: &iceCandidate{
				Candidate:        c.Candidate,
				SDPMid:           c.SDPMid,
				SDPMLineIndex:    c.SDPMLineIndex,
				UsernameFragment: c.UsernameFragment,
			},
		}, nil
	default:
		return nil, fmt.Errorf("unsupported signal %T", sig)
	}
}

func toSDP(d domain.SessionDescription) *sdp {
	return &sdp{Type: string(d.Type), SDP: d.SDP}
}

// fromWire validates m and converts it. Every failure wraps
// domain.ErrMalformedSignal.
func fromWire(m *message) (domain.Signal, error) {
	switch m.Type {
	case typeJoined, typeLeft:
		if m.UserID == "" {
			return nil, malformed(m.Type, "missing userId")
		}
		id := domain.ParticipantID(m.UserID)
		if m.Type == typeJoined {
			return domain.Joined{ParticipantID: id}, nil
		}
		return domain.Left{ParticipantID: id}, nil

	case typeOffer, typeAnswer:
		if err := requireRoute(m); err != nil {
			return nil, err
		}
		if m.SDP == nil || m.SDP.SDP == "" {
			return nil, malformed(m.Type, "missing sdp")
		}
		desc := domain.SessionDescription{Type: domain.SDPType(m.SDP.Type), SDP: m.SDP.SDP}
		from, to := domain.ParticipantID(m.From), domain.ParticipantID(m.To)
		if m.Type == typeOffer {
			if desc.Type != domain.SDPTypeOffer {
				return nil, malformed(m.Type, "sdp type "+m.SDP.Type)
			}
			return domain.Offer{From: from, To: to, Description: desc}, nil
		}
		if desc.Type != domain.SDPTypeAnswer && desc.Type != domain.SDPTypePranswer {
			return nil, malformed(m.Type, "sdp type "+m.SDP.Type)
		}
		return domain.Answer{From: from, To: to, Description: desc}, nil

	case typeCandidate:
		if err := requireRoute(m); err != nil {
			return nil, err
		}
		if m.Candidate == nil {
			return nil, malformed(m.Type, "missing candidate")
		}
		return domain.Candidate{
			From: domain.ParticipantID(m.From),
			To:   domain.ParticipantID(m.To),
			Candidate: domain.ICECandidate{
				Candidate:        m.Candidate.Candidate,
				SDPMid:           m.Candidate.SDPMid,
				SDPMLineIndex:    m.Candidate.SDPMLineIndex,
				UsernameFragment: m.Candidate.UsernameFragment,
			},
		}, nil

	default:
		return nil, malformed(m.Type, "unknown type")
	}
}

func requireRoute(m *message) error {
	if m.From == "" || m.To == "" {
		return malformed(m.Type, "missing from/to")
	}
	return nil
}

func malformed(kind, details string) error {
	return domain.WrapError("decode "+kind, domain.ErrMalformedSignal, details)
}
