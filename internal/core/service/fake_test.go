package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Wyydra/yamesh/internal/adapter/driven/codec"
	"github.com/Wyydra/yamesh/internal/core/domain"
	"github.com/Wyydra/yamesh/internal/core/port"
)

// fakeTrack is a local track with no media behind it.
type fakeTrack struct {
	id      string
	kind    domain.TrackKind
	enabled atomic.Bool
}

func newFakeTrack(id string, kind domain.TrackKind) *fakeTrack {
	t := &fakeTrack{id: id, kind: kind}
	t.enabled.Store(true)
	return t
}

func (t *fakeTrack) ID() string              { return t.id }
func (t *fakeTrack) Kind() domain.TrackKind  { return t.kind }
func (t *fakeTrack) Enabled() bool           { return t.enabled.Load() }
func (t *fakeTrack) SetEnabled(enabled bool) { t.enabled.Store(enabled) }

func newStream(id string, kinds ...domain.TrackKind) *domain.LocalStream {
	s := &domain.LocalStream{ID: id}
	for _, k := range kinds {
		s.Tracks = append(s.Tracks, newFakeTrack(id+"-"+string(k), k))
	}
	return s
}

// fakeTransport follows the offer/answer signaling states of a real peer
// connection. Its SDP is "fake:<stream>:<track,...>", so the remote side
// can report which stream it receives. It connects as soon as a round
// completes and emits one host candidate after the first local description.
type fakeTransport struct {
	remote domain.ParticipantID
	h      port.TransportHandlers

	mu           sync.Mutex
	signaling    string
	local        *domain.LocalStream
	remoteSet    bool
	applied      []domain.ICECandidate
	rollbacks    int
	offers       int
	closed       bool
	connected    bool
	gathered     bool
	remoteStream string
}

func (t *fakeTransport) describe(typ domain.SDPType) domain.SessionDescription {
	id := ""
	if t.local != nil {
		id = t.local.ID
	}
	return domain.SessionDescription{
		Type: typ,
		SDP:  "fake:" + id + ":" + strings.Join(t.local.TrackIDs(), ","),
	}
}

func (t *fakeTransport) CreateOffer() (domain.SessionDescription, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return domain.SessionDescription{}, domain.ErrClosed
	}
	t.offers++
	return t.describe(domain.SDPTypeOffer), nil
}

func (t *fakeTransport) CreateAnswer() (domain.SessionDescription, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.signaling != "have-remote-offer" {
		return domain.SessionDescription{}, fmt.Errorf("create answer in %s", t.signaling)
	}
	return t.describe(domain.SDPTypeAnswer), nil
}

func (t *fakeTransport) SetLocalDescription(d domain.SessionDescription) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return domain.ErrClosed
	}
	switch d.Type {
	case domain.SDPTypeOffer:
		if t.signaling != "stable" {
			return fmt.Errorf("set local offer in %s", t.signaling)
		}
		t.signaling = "have-local-offer"
	case domain.SDPTypeAnswer:
		if t.signaling != "have-remote-offer" {
			return fmt.Errorf("set local answer in %s", t.signaling)
		}
		t.signaling = "stable"
		t.maybeConnect()
	}
	if !t.gathered {
		t.gathered = true
		c := domain.ICECandidate{Candidate: "candidate:fake 1 udp 1 10.0.0.1 9 typ host"}
		go t.h.OnICECandidate(c)
	}
	return nil
}

func (t *fakeTransport) SetRemoteDescription(d domain.SessionDescription) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return domain.ErrClosed
	}
	switch d.Type {
	case domain.SDPTypeOffer:
		if t.signaling != "stable" {
			return fmt.Errorf("set remote offer in %s", t.signaling)
		}
		t.signaling = "have-remote-offer"
	case domain.SDPTypeAnswer:
		if t.signaling != "have-local-offer" {
			return fmt.Errorf("set remote answer in %s", t.signaling)
		}
		t.signaling = "stable"
	default:
		return fmt.Errorf("unsupported sdp type %s", d.Type)
	}
	t.remoteSet = true
	t.maybeConnect()

	parts := strings.SplitN(d.SDP, ":", 3)
	if len(parts) == 3 && parts[2] != "" && parts[1]+parts[2] != t.remoteStream {
		t.remoteStream = parts[1] + parts[2]
		rs := domain.RemoteStream{ID: parts[1]}
		for _, id := range strings.Split(parts[2], ",") {
			kind := domain.TrackKindAudio
			if strings.HasSuffix(id, string(domain.TrackKindVideo)) {
				kind = domain.TrackKindVideo
			}
			rs.Tracks = append(rs.Tracks, domain.RemoteTrack{ID: id, Kind: kind})
		}
		go t.h.OnRemoteStream(rs)
	}
	return nil
}

func (t *fakeTransport) maybeConnect() {
	if t.connected || !t.remoteSet || t.signaling != "stable" {
		return
	}
	t.connected = true
	go t.h.OnStateChange(domain.TransportConnected)
}

func (t *fakeTransport) Rollback() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.signaling != "have-local-offer" {
		return fmt.Errorf("rollback in %s", t.signaling)
	}
	t.signaling = "stable"
	t.rollbacks++
	return nil
}

func (t *fakeTransport) AddICECandidate(c domain.ICECandidate) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.remoteSet {
		return errors.New("remote description not set")
	}
	t.applied = append(t.applied, c)
	return nil
}

func (t *fakeTransport) SetLocalTracks(stream *domain.LocalStream) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.local = stream
	return nil
}

func (t *fakeTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	return nil
}

func (t *fakeTransport) emitState(s domain.TransportState) {
	go t.h.OnStateChange(s)
}

func (t *fakeTransport) snapshot() (applied []string, rollbacks, offers int, closed bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, c := range t.applied {
		applied = append(applied, c.Candidate)
	}
	return applied, t.rollbacks, t.offers, t.closed
}

func (t *fakeTransport) localStream() *domain.LocalStream {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.local
}

type fakeFactory struct {
	mu         sync.Mutex
	transports map[domain.ParticipantID][]*fakeTransport
	err        error
}

func newFakeFactory() *fakeFactory {
	return &fakeFactory{transports: make(map[domain.ParticipantID][]*fakeTransport)}
}

func (f *fakeFactory) NewTransport(remote domain.ParticipantID, _ []domain.ICEServer, h port.TransportHandlers) (port.PeerTransport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	t := &fakeTransport{remote: remote, h: h, signaling: "stable"}
	f.transports[remote] = append(f.transports[remote], t)
	return t, nil
}

// latest returns the most recent transport created toward remote.
func (f *fakeFactory) latest(remote domain.ParticipantID) *fakeTransport {
	f.mu.Lock()
	defer f.mu.Unlock()
	ts := f.transports[remote]
	if len(ts) == 0 {
		return nil
	}
	return ts[len(ts)-1]
}

func (f *fakeFactory) count(remote domain.ParticipantID) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.transports[remote])
}

// recordingRelay captures publishes and lets a test inject deliveries.
// It does not echo publishes back.
type recordingRelay struct {
	codec port.SignalCodec

	mu           sync.Mutex
	topic        string
	onMessage    func([]byte)
	published    []domain.Signal
	subscribeErr error
	publishErr   error
	unsubscribed int

	// beforePublish runs outside the lock at the start of every Publish.
	beforePublish func()
}

type recordingSub struct {
	r *recordingRelay
}

func (s recordingSub) Unsubscribe() error {
	s.r.mu.Lock()
	defer s.r.mu.Unlock()
	s.r.unsubscribed++
	s.r.onMessage = nil
	return nil
}

func newRecordingRelay() *recordingRelay {
	return &recordingRelay{codec: codec.JSON{}}
}

func (r *recordingRelay) Subscribe(_ context.Context, topic string, onMessage func([]byte)) (port.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.subscribeErr != nil {
		return nil, r.subscribeErr
	}
	r.topic = topic
	r.onMessage = onMessage
	return recordingSub{r: r}, nil
}

func (r *recordingRelay) Publish(_ context.Context, _ string, payload []byte) error {
	r.mu.Lock()
	hook := r.beforePublish
	r.mu.Unlock()
	if hook != nil {
		hook()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.publishErr != nil {
		return r.publishErr
	}
	sig, err := r.codec.Decode(payload)
	if err != nil {
		return err
	}
	r.published = append(r.published, sig)
	return nil
}

func (r *recordingRelay) setPublishErr(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.publishErr = err
}

func (r *recordingRelay) deliver(t *testing.T, sig domain.Signal) {
	t.Helper()
	payload, err := r.codec.Encode(sig)
	if err != nil {
		t.Fatalf("encode %T: %v", sig, err)
	}
	r.deliverRaw(payload)
}

func (r *recordingRelay) deliverRaw(payload []byte) {
	r.mu.Lock()
	fn := r.onMessage
	r.mu.Unlock()
	if fn != nil {
		fn(payload)
	}
}

func (r *recordingRelay) sent() []domain.Signal {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.Signal(nil), r.published...)
}

// offersTo counts published offers addressed to id.
func (r *recordingRelay) offersTo(id domain.ParticipantID) []domain.Offer {
	var out []domain.Offer
	for _, s := range r.sent() {
		if o, ok := s.(domain.Offer); ok && o.To == id {
			out = append(out, o)
		}
	}
	return out
}

func (r *recordingRelay) answersTo(id domain.ParticipantID) []domain.Answer {
	var out []domain.Answer
	for _, s := range r.sent() {
		if a, ok := s.(domain.Answer); ok && a.To == id {
			out = append(out, a)
		}
	}
	return out
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// eventLog drains a service's event channel for the life of the test.
type eventLog struct {
	mu     sync.Mutex
	events []domain.PeerEvent
}

func collectEvents(t *testing.T, svc *CallService) *eventLog {
	t.Helper()
	l := &eventLog{}
	done := make(chan struct{})
	t.Cleanup(func() { close(done) })
	go func() {
		for {
			select {
			case <-done:
				return
			case ev := <-svc.Events():
				l.mu.Lock()
				l.events = append(l.events, ev)
				l.mu.Unlock()
			}
		}
	}()
	return l
}

func (l *eventLog) find(typ domain.PeerEventType, peer domain.ParticipantID) []domain.PeerEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []domain.PeerEvent
	for _, ev := range l.events {
		if ev.Type == typ && ev.PeerID == peer {
			out = append(out, ev)
		}
	}
	return out
}

func sessions(t *testing.T, svc *CallService) map[domain.ParticipantID]SessionInfo {
	t.Helper()
	list, err := svc.Sessions(context.Background())
	if err != nil {
		t.Fatalf("Sessions: %v", err)
	}
	out := make(map[domain.ParticipantID]SessionInfo, len(list))
	for _, s := range list {
		out[s.RemoteID] = s
	}
	return out
}
