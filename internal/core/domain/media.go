package domain

type TrackKind string

const (
	TrackKindAudio TrackKind = "audio"
	TrackKindVideo TrackKind = "video"
)

// LocalTrack is a capture track shared by every peer session. Toggling
// Enabled affects all sessions at once.
type LocalTrack interface {
	ID() string
	Kind() TrackKind
	Enabled() bool
	SetEnabled(enabled bool)
}

// LocalStream is the local capture stream. A nil or empty stream is valid:
// the participant then only receives.
type LocalStream struct {
	ID     string
	Tracks []LocalTrack
}

func (s *LocalStream) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Tracks)
}

// TrackIDs lists the ids of the stream's tracks in order.
func (s *LocalStream) TrackIDs() []string {
	if s == nil {
		return nil
	}
	ids := make([]string, 0, len(s.Tracks))
	for _, t := range s.Tracks {
		ids = append(ids, t.ID())
	}
	return ids
}

// MediaConstraints selects which kinds a media source should capture.
type MediaConstraints struct {
	Audio bool
	Video bool
}

type RemoteTrack struct {
	ID   string
	Kind TrackKind
}

// RemoteStream is the media a peer is sending us, as seen by the transport.
type RemoteStream struct {
	ID     string
	Tracks []RemoteTrack
}
