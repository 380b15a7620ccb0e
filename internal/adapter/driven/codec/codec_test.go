package codec

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/Wyydra/yamesh/internal/core/domain"
	"github.com/Wyydra/yamesh/internal/core/port"
)

func TestJSONWireFormat(t *testing.T) {
	t.Parallel()

	mid := "0"
	idx := uint16(0)
	tests := []struct {
		name string
		sig  domain.Signal
		want string
	}{
		{
			name: "joined",
			sig:  domain.Joined{ParticipantID: "alice"},
			want: `{"type":"user-joined","userId":"alice"}`,
		},
		{
			name: "left",
			sig:  domain.Left{ParticipantID: "bob"},
			want: `{"type":"user-left","userId":"bob"}`,
		},
		{
			name: "offer",
			sig: domain.Offer{From: "a", To: "b", Description: domain.SessionDescription{
				Type: domain.SDPTypeOffer, SDP: "v=0",
			}},
			want: `{"type":"offer","from":"a","to":"b","sdp":{"type":"offer","sdp":"v=0"}}`,
		},
		{
			name: "candidate",
			sig: domain.Candidate{From: "a", To: "b", Candidate: domain.ICECandidate{
				Candidate: "candidate:1 1 udp 1 10.0.0.1 5000 typ host", SDPMid: &mid, SDPMLineIndex: &idx,
			}},
			want: `{"type":"ice-candidate","from":"a","to":"b","candidate":{"candidate":"candidate:1 1 udp 1 10.0.0.1 5000 typ host","sdpMid":"0","sdpMLineIndex":0}}`,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := JSON{}.Encode(tt.sig)
			if err != nil {
				t.Fatalf("Encode: %v", err)
			}
			if string(got) != tt.want {
				t.Fatalf("Encode = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestDecodeBrowserPayload(t *testing.T) {
	t.Parallel()

	raw := `{"type":"ice-candidate","from":"a","to":"b","candidate":{"candidate":"c1","sdpMid":"audio","sdpMLineIndex":1,"usernameFragment":"uf"}}`
	sig, err := JSON{}.Decode([]byte(raw))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	c, ok := sig.(domain.Candidate)
	if !ok {
		t.Fatalf("Decode returned %T, want domain.Candidate", sig)
	}
	if c.From != "a" || c.To != "b" || c.Candidate.Candidate != "c1" {
		t.Fatalf("unexpected candidate %+v", c)
	}
	if c.Candidate.SDPMid == nil || *c.Candidate.SDPMid != "audio" {
		t.Fatalf("sdpMid = %v, want audio", c.Candidate.SDPMid)
	}
	if c.Candidate.SDPMLineIndex == nil || *c.Candidate.SDPMLineIndex != 1 {
		t.Fatalf("sdpMLineIndex = %v, want 1", c.Candidate.SDPMLineIndex)
	}
	if c.Candidate.UsernameFragment == nil || *c.Candidate.UsernameFragment != "uf" {
		t.Fatalf("usernameFragment = %v, want uf", c.Candidate.UsernameFragment)
	}
}

func TestDecodeRejectsMalformed(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"not json":          `{`,
		"unknown type":      `{"type":"chat","userId":"a"}`,
		"joined without id": `{"type":"user-joined"}`,
		"offer without to":  `{"type":"offer","from":"a","sdp":{"type":"offer","sdp":"v=0"}}`,
		"offer without sdp": `{"type":"offer","from":"a","to":"b"}`,
		"wrong sdp type":    `{"type":"offer","from":"a","to":"b","sdp":{"type":"answer","sdp":"v=0"}}`,
		"bare candidate":    `{"type":"ice-candidate","from":"a","to":"b"}`,
	}

	for name, raw := range tests {
		name, raw := name, raw
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			_, err := JSON{}.Decode([]byte(raw))
			if !errors.Is(err, domain.ErrMalformedSignal) {
				t.Fatalf("Decode(%s) error = %v, want ErrMalformedSignal", raw, err)
			}
		})
	}
}

func TestMsgPackCarriesSameFields(t *testing.T) {
	t.Parallel()

	idx := uint16(2)
	sig := domain.Candidate{From: "a", To: "b", Candidate: domain.ICECandidate{Candidate: "c", SDPMLineIndex: &idx}}

	payload, err := MsgPack{}.Encode(sig)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if json.Valid(payload) {
		t.Fatalf("msgpack payload unexpectedly valid JSON: %q", payload)
	}
	got, err := MsgPack{}.Decode(payload)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	c := got.(domain.Candidate)
	if c.From != "a" || c.To != "b" || c.Candidate.Candidate != "c" || *c.Candidate.SDPMLineIndex != 2 {
		t.Fatalf("unexpected candidate %+v", c)
	}

	if _, err := (MsgPack{}).Decode([]byte{0xc1}); !errors.Is(err, domain.ErrMalformedSignal) {
		t.Fatalf("Decode(garbage) error = %v, want ErrMalformedSignal", err)
	}
}

func TestNew(t *testing.T) {
	t.Parallel()

	for name, want := range map[string]port.SignalCodec{"": JSON{}, "json": JSON{}, "msgpack": MsgPack{}} {
		got, err := New(name)
		if err != nil {
			t.Fatalf("New(%q): %v", name, err)
		}
		if got != want {
			t.Fatalf("New(%q) = %T, want %T", name, got, want)
		}
	}
	if _, err := New("xml"); err == nil {
		t.Fatal("New(xml) succeeded, want error")
	}
}
