package pion

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Wyydra/yamesh/internal/core/domain"
	"github.com/Wyydra/yamesh/internal/core/port"
	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	"github.com/rs/zerolog/log"
)

const (
	audioFrame = 20 * time.Millisecond
	videoFrame = 33 * time.Millisecond
)

var (
	// Opus silence frame.
	silence = []byte{0xf8, 0xff, 0xfe}
	// Placeholder VP8 payload; receivers here never decode it.
	blank = []byte{0x10, 0x02, 0x00, 0x9d, 0x01, 0x2a}
)

// SampleTrack is a synthetic capture track. While enabled it writes a
// fixed payload at the frame rate of its kind; disabled it stays bound but
// sends nothing.
type SampleTrack struct {
	track   *webrtc.TrackLocalStaticSample
	kind    domain.TrackKind
	enabled atomic.Bool
	stop    chan struct{}
	once    sync.Once
}

var _ Track = (*SampleTrack)(nil)

func NewSampleTrack(kind domain.TrackKind, streamID string) (*SampleTrack, error) {
	capability := webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2}
	if kind == domain.TrackKindVideo {
		capability = webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8, ClockRate: 90000}
	}
	track, err := webrtc.NewTrackLocalStaticSample(capability, string(kind)+"-"+uuid.NewString()[:8], streamID)
	if err != nil {
		return nil, err
	}
	t := &SampleTrack{track: track, kind: kind, stop: make(chan struct{})}
	t.enabled.Store(true)
	go t.pump()
	return t, nil
}

func (t *SampleTrack) ID() string                    { return t.track.ID() }
func (t *SampleTrack) Kind() domain.TrackKind        { return t.kind }
func (t *SampleTrack) Enabled() bool                 { return t.enabled.Load() }
func (t *SampleTrack) SetEnabled(enabled bool)       { t.enabled.Store(enabled) }
func (t *SampleTrack) TrackLocal() webrtc.TrackLocal { return t.track }

func (t *SampleTrack) Stop() {
	t.once.Do(func() { close(t.stop) })
}

func (t *SampleTrack) pump() {
	frame, payload := audioFrame, silence
	if t.kind == domain.TrackKindVideo {
		frame, payload = videoFrame, blank
	}
	ticker := time.NewTicker(frame)
	defer ticker.Stop()

	for {
		select {
		case <-t.stop:
			return
		case <-ticker.C:
			if !t.enabled.Load() {
				continue
			}
			if err := t.track.WriteSample(media.Sample{Data: payload, Duration: frame}); err != nil {
				log.Debug().Err(err).Str("track", t.ID()).Msg("Failed to write sample")
			}
		}
	}
}

// Source hands out synthetic tracks for the kinds it has "devices" for.
type Source struct {
	available domain.MediaConstraints

	mu     sync.Mutex
	tracks []*SampleTrack
}

var _ port.MediaSource = (*Source)(nil)

// NewSource returns a source that can capture the kinds set in available.
func NewSource(available domain.MediaConstraints) *Source {
	return &Source{available: available}
}

func (s *Source) GetLocalMedia(ctx context.Context, c domain.MediaConstraints) (*domain.LocalStream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if (c.Audio && !s.available.Audio) || (c.Video && !s.available.Video) {
		return nil, domain.WrapError("get local media", domain.ErrNoMedia, describe(c))
	}

	stream := &domain.LocalStream{ID: "yamesh-" + uuid.NewString()[:8]}
	var kinds []domain.TrackKind
	if c.Audio {
		kinds = append(kinds, domain.TrackKindAudio)
	}
	if c.Video {
		kinds = append(kinds, domain.TrackKindVideo)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, kind := range kinds {
		t, err := NewSampleTrack(kind, stream.ID)
		if err != nil {
			for _, lt := range stream.Tracks {
				lt.(*SampleTrack).Stop()
			}
			return nil, domain.NewError("get local media", err)
		}
		s.tracks = append(s.tracks, t)
		stream.Tracks = append(stream.Tracks, t)
	}
	return stream, nil
}

// Close stops every track handed out.
func (s *Source) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.tracks {
		t.Stop()
	}
	s.tracks = nil
}

func describe(c domain.MediaConstraints) string {
	switch {
	case c.Audio && c.Video:
		return "audio+video"
	case c.Audio:
		return "audio"
	case c.Video:
		return "video"
	default:
		return "none"
	}
}
