package ui

import (
	"strings"
	"testing"

	"github.com/Wyydra/yamesh/internal/core/domain"
	"github.com/Wyydra/yamesh/internal/core/service"
)

func TestEventLine(t *testing.T) {
	t.Parallel()

	tests := []struct {
		ev   domain.PeerEvent
		want []string
	}{
		{
			ev: domain.PeerEvent{Type: domain.PeerConnected, PeerID: "bob", Stream: &domain.RemoteStream{
				ID:     "cam",
				Tracks: []domain.RemoteTrack{{ID: "a", Kind: domain.TrackKindAudio}, {ID: "v", Kind: domain.TrackKindVideo}},
			}},
			want: []string{"bob", "cam", "audio+video"},
		},
		{
			ev:   domain.PeerEvent{Type: domain.PeerDisconnected, PeerID: "carol"},
			want: []string{"carol", "left"},
		},
		{
			ev:   domain.PeerEvent{Type: domain.PeerStateChanged, PeerID: "dave", State: domain.StateDisconnected},
			want: []string{"dave", "disconnected"},
		},
	}

	for _, tt := range tests {
		line := EventLine(tt.ev)
		for _, w := range tt.want {
			if !strings.Contains(line, w) {
				t.Fatalf("EventLine(%v) = %q, missing %q", tt.ev.Type, line, w)
			}
		}
	}
}

func TestMeshTableView(t *testing.T) {
	t.Parallel()

	view := MeshTableView("alice", []service.SessionInfo{
		{RemoteID: "bob", Role: domain.RoleInitiator, State: domain.StateConnected,
			RemoteStream: &domain.RemoteStream{Tracks: []domain.RemoteTrack{{Kind: domain.TrackKindAudio}}}},
		{RemoteID: "carol", Role: domain.RoleResponder, State: domain.StateConnecting, PendingCandidates: 2},
	})
	for _, w := range []string{"alice", "bob", "initiator", "connected", "audio", "carol", "responder", "connecting"} {
		if !strings.Contains(view, w) {
			t.Fatalf("table missing %q:\n%s", w, view)
		}
	}

	if empty := MeshTableView("alice", nil); !strings.Contains(empty, "No peers") {
		t.Fatalf("empty table = %q", empty)
	}
}

func TestStatsView(t *testing.T) {
	t.Parallel()

	if got := StatsView(service.Stats{}); !strings.Contains(got, "No dropped signals") {
		t.Fatalf("StatsView(zero) = %q", got)
	}
	got := StatsView(service.Stats{Glare: 3, Malformed: 1})
	if !strings.Contains(got, "glare") || !strings.Contains(got, "malformed") || strings.Contains(got, "self echo") {
		t.Fatalf("StatsView = %q", got)
	}
}
