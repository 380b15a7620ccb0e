package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Wyydra/yamesh/internal/core/domain"
	"github.com/Wyydra/yamesh/internal/core/port"
	"github.com/rs/zerolog"
)

const (
	taskQueueSize = 256

	// Lifecycle events that find the event queue full wait in a backlog
	// of at most maxEventBacklog entries and are retried every
	// eventRetryInterval.
	maxEventBacklog    = 1024
	eventRetryInterval = 20 * time.Millisecond
)

// room is the signaling state of one local participant in one room. All of
// its fields except the channels are confined to the run goroutine; relay
// deliveries, transport callbacks and API calls reach it through tasks.
type room struct {
	id    domain.RoomID
	topic string
	self  domain.ParticipantID

	relay    port.RelayChannel
	codec    port.SignalCodec
	registry *registry
	opts     options
	events   chan<- domain.PeerEvent
	stats    *counters
	log      zerolog.Logger

	local      *domain.LocalStream
	departed   *departures
	stopping   bool
	backlog    []domain.PeerEvent
	retryArmed bool
	sub        port.Subscription

	tasks     chan func()
	quit      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

func newRoom(id domain.RoomID, self domain.ParticipantID, local *domain.LocalStream, relay port.RelayChannel, factory port.TransportFactory, codec port.SignalCodec, opts options, events chan<- domain.PeerEvent, stats *counters) *room {
	l := opts.logger.With().Str("room", id.String()).Str("self", self.String()).Logger()
	r := &room{
		id:       id,
		topic:    id.Topic(),
		self:     self,
		relay:    relay,
		codec:    codec,
		opts:     opts,
		events:   events,
		stats:    stats,
		log:      l,
		local:    local,
		departed: newDepartures(),
		tasks:    make(chan func(), taskQueueSize),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	r.registry = newRegistry(factory, opts.iceServers, opts.maxPeers, stats, l)
	r.registry.hooks = r.transportHandlers
	return r
}

func (r *room) run() {
	defer close(r.done)
	for {
		select {
		case <-r.quit:
			r.log.Debug().Msg("Room loop stopped")
			return
		case task := <-r.tasks:
			task()
		}
	}
}

// post queues a task. It reports false once the loop has exited.
func (r *room) post(task func()) bool {
	select {
	case r.tasks <- task:
		return true
	case <-r.done:
		return false
	}
}

// call runs fn on the loop and waits for its result.
func (r *room) call(ctx context.Context, fn func() error) error {
	reply := make(chan error, 1)
	if !r.post(func() { reply <- fn() }) {
		return domain.ErrClosed
	}
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-r.done:
		select {
		case err := <-reply:
			return err
		default:
			return domain.ErrClosed
		}
	}
}

// wait runs fn on the loop and blocks until it has run, ignoring
// cancellation. Used by shutdown, which must always complete.
func (r *room) wait(fn func()) {
	finished := make(chan struct{})
	if !r.post(func() { fn(); close(finished) }) {
		return
	}
	select {
	case <-finished:
	case <-r.done:
	}
}

func (r *room) close() {
	r.closeOnce.Do(func() {
		close(r.quit)
		<-r.done
	})
}

// deliver is the relay subscription callback.
func (r *room) deliver(payload []byte) {
	r.post(func() { r.dispatch(payload) })
}

func (r *room) publish(ctx context.Context, sig domain.Signal) error {
	payload, err := r.codec.Encode(sig)
	if err != nil {
		return domain.NewError("encode "+domain.Kind(sig), err)
	}
	if r.opts.publishTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.opts.publishTimeout)
		defer cancel()
	}
	if err := r.relay.Publish(ctx, r.topic, payload); err != nil {
		return domain.NewError("publish "+domain.Kind(sig), fmt.Errorf("%w: %w", domain.ErrRelay, err))
	}
	return nil
}

// send publishes from inside a handler, where relay failures are only logged.
func (r *room) send(sig domain.Signal) {
	if err := r.publish(context.Background(), sig); err != nil {
		r.log.Error().Err(err).Str("type", domain.Kind(sig)).Msg("Failed to publish signal")
	}
}

// emit queues ev without blocking the loop. State changes are shed when the
// queue is full; connect and disconnect notifications are held back and
// delivered in order once the consumer catches up.
func (r *room) emit(ev domain.PeerEvent) {
	r.flushEvents()
	lifecycle := ev.Type != domain.PeerStateChanged
	if len(r.backlog) == 0 {
		select {
		case r.events <- ev:
			return
		default:
		}
	}
	if !lifecycle || len(r.backlog) >= maxEventBacklog {
		r.stats.eventsDropped.Add(1)
		r.log.Warn().Str("peer", ev.PeerID.String()).Str("event", string(ev.Type)).Msg("Event queue full, dropping event")
		return
	}
	r.backlog = append(r.backlog, ev)
	r.armEventRetry()
}

// flushEvents moves backlogged events to the queue while there is room.
func (r *room) flushEvents() {
	for len(r.backlog) > 0 {
		select {
		case r.events <- r.backlog[0]:
			r.backlog[0] = domain.PeerEvent{}
			r.backlog = r.backlog[1:]
		default:
			return
		}
	}
	r.backlog = nil
}

func (r *room) armEventRetry() {
	if r.retryArmed {
		return
	}
	r.retryArmed = true
	time.AfterFunc(eventRetryInterval, func() {
		r.post(func() {
			r.retryArmed = false
			r.flushEvents()
			if len(r.backlog) > 0 {
				r.armEventRetry()
			}
		})
	})
}

func (r *room) announce(ctx context.Context) error {
	if err := r.publish(ctx, domain.Joined{ParticipantID: r.self}); err != nil {
		return err
	}
	r.log.Info().Msg("Announced presence")
	return nil
}

// shutdown leaves the room: Left is published best-effort, then every
// session is closed. Later deliveries are ignored.
func (r *room) shutdown(ctx context.Context) {
	r.stopping = true
	if err := r.publish(ctx, domain.Left{ParticipantID: r.self}); err != nil {
		r.log.Warn().Err(err).Msg("Failed to announce departure")
	}
	n := r.registry.removeAll()
	r.log.Info().Int("sessions", n).Msg("Left room")
}

// abandon closes sessions opened by deliveries that raced a failed Start.
func (r *room) abandon() {
	r.stopping = true
	if n := r.registry.removeAll(); n > 0 {
		r.log.Debug().Int("sessions", n).Msg("Closed sessions of abandoned start")
	}
}

func (r *room) dispatch(payload []byte) {
	if r.stopping {
		return
	}

	sig, err := r.codec.Decode(payload)
	if err != nil {
		r.stats.malformed.Add(1)
		r.log.Warn().Err(err).Msg("Dropping malformed signal")
		return
	}

	switch m := sig.(type) {
	case domain.Joined:
		r.handleJoined(m)
	case domain.Left:
		r.handleLeft(m)
	case domain.Offer:
		if r.addressed(m) {
			r.handleOffer(m)
		}
	case domain.Answer:
		if r.addressed(m) {
			r.handleAnswer(m)
		}
	case domain.Candidate:
		if r.addressed(m) {
			r.handleCandidate(m)
		}
	}
}

// addressed applies the self-echo filter and drops signals meant for others.
func (r *room) addressed(m domain.Targeted) bool {
	if m.Sender() == r.self {
		r.stats.selfEcho.Add(1)
		return false
	}
	if m.Recipient() != r.self {
		r.stats.notAddressed.Add(1)
		return false
	}
	return true
}

func (r *room) handleJoined(m domain.Joined) {
	id := m.ParticipantID
	if id == r.self {
		r.stats.selfEcho.Add(1)
		return
	}
	r.departed.clear(id)

	s, created, err := r.registry.getOrCreate(id, roleOnJoin(), r.local)
	if err != nil {
		r.log.Warn().Err(err).Msg("Cannot open session toward joined peer")
		return
	}
	if !created {
		r.stats.duplicateJoin.Add(1)
		r.log.Debug().Str("peer", id.String()).Msg("Ignoring repeated join")
		return
	}
	r.negotiate(s)
}

func (r *room) handleLeft(m domain.Left) {
	id := m.ParticipantID
	if id == r.self {
		r.stats.selfEcho.Add(1)
		return
	}
	r.departed.mark(id)
	r.teardown(id)
}

func (r *room) handleOffer(m domain.Offer) {
	if r.departed.has(m.From) {
		r.stats.departedPeer.Add(1)
		r.log.Debug().Err(domain.NewPeerError("accept offer", m.From, domain.ErrDeparted)).Msg("Dropping offer")
		return
	}

	s, _, err := r.registry.getOrCreate(m.From, roleOnOffer(), r.local)
	if err != nil {
		r.log.Warn().Err(err).Msg("Cannot open session for offer")
		return
	}

	if s.awaitingAnswer {
		if !polite(r.self, m.From) {
			r.stats.glare.Add(1)
			r.log.Debug().Str("peer", m.From.String()).Msg("Ignoring colliding offer")
			return
		}
		if err := s.rollback(); err != nil {
			r.log.Warn().Err(err).Msg("Cannot yield to colliding offer")
			return
		}
		r.log.Debug().Str("peer", m.From.String()).Msg("Yielded to colliding offer")
	}

	answer, err := s.acceptOffer(m.Description)
	if err != nil {
		r.log.Warn().Err(err).Msg("Failed to answer offer")
		return
	}
	r.send(domain.Answer{From: r.self, To: m.From, Description: answer})

	if s.takePending() {
		r.negotiate(s)
	}
}

func (r *room) handleAnswer(m domain.Answer) {
	s := r.registry.get(m.From)
	if s == nil {
		r.stats.unknownSession.Add(1)
		r.log.Debug().Err(domain.NewPeerError("apply answer", m.From, domain.ErrUnknownSession)).Msg("Dropping answer")
		return
	}

	if err := s.acceptAnswer(m.Description); err != nil {
		if errors.Is(err, domain.ErrUnexpectedAnswer) {
			r.stats.unexpectedReply.Add(1)
			r.log.Debug().Err(err).Msg("Dropping answer")
			return
		}
		r.log.Warn().Err(err).Msg("Failed to apply answer")
		return
	}

	if s.takePending() {
		r.negotiate(s)
	}
}

func (r *room) handleCandidate(m domain.Candidate) {
	s := r.registry.get(m.From)
	if s == nil {
		r.stats.unknownSession.Add(1)
		r.log.Debug().Err(domain.NewPeerError("add candidate", m.From, domain.ErrUnknownSession)).Msg("Dropping candidate")
		return
	}
	if s.addCandidate(m.Candidate) {
		r.log.Debug().Str("peer", m.From.String()).Int("pending", len(s.pending)).Msg("Buffered early ICE candidate")
	}
}

// negotiate sends an offer for s unless one is already outstanding.
func (r *room) negotiate(s *peerSession) {
	desc, sent, err := s.offer()
	if err != nil {
		r.log.Warn().Err(err).Msg("Failed to create offer")
		return
	}
	if sent {
		r.send(domain.Offer{From: r.self, To: s.remoteID, Description: desc})
	}
}

func (r *room) teardown(id domain.ParticipantID) {
	if r.registry.remove(id) {
		r.emit(domain.PeerEvent{Type: domain.PeerDisconnected, PeerID: id, State: domain.StateClosed})
	}
}

func (r *room) transportHandlers(s *peerSession) port.TransportHandlers {
	return port.TransportHandlers{
		OnICECandidate: func(c domain.ICECandidate) {
			r.post(func() { r.onLocalCandidate(s, c) })
		},
		OnStateChange: func(ts domain.TransportState) {
			r.post(func() { r.onTransportState(s, ts) })
		},
		OnRemoteStream: func(rs domain.RemoteStream) {
			r.post(func() { r.onRemoteStream(s, rs) })
		},
	}
}

func (r *room) onLocalCandidate(s *peerSession, c domain.ICECandidate) {
	if r.stopping || !r.registry.current(s) {
		return
	}
	r.send(domain.Candidate{From: r.self, To: s.remoteID, Candidate: c})
}

func (r *room) onTransportState(s *peerSession, ts domain.TransportState) {
	if r.stopping || !r.registry.current(s) {
		return
	}
	if !s.onTransportState(ts) {
		return
	}
	r.emit(domain.PeerEvent{Type: domain.PeerStateChanged, PeerID: s.remoteID, State: s.state})

	if s.state == domain.StateDisconnected && r.opts.disconnectTimeout > 0 {
		r.scheduleReap(s, s.disconnectGen)
	}
}

// scheduleReap tears s down if it is still disconnected after the
// configured timeout.
func (r *room) scheduleReap(s *peerSession, gen int) {
	time.AfterFunc(r.opts.disconnectTimeout, func() {
		r.post(func() {
			if r.stopping || !r.registry.current(s) {
				return
			}
			if s.state != domain.StateDisconnected || s.disconnectGen != gen {
				return
			}
			r.log.Info().Str("peer", s.remoteID.String()).Dur("timeout", r.opts.disconnectTimeout).Msg("Reaping disconnected peer")
			r.teardown(s.remoteID)
		})
	})
}

func (r *room) onRemoteStream(s *peerSession, rs domain.RemoteStream) {
	if r.stopping || !r.registry.current(s) {
		return
	}
	stream := rs
	s.remoteStream = &stream
	r.emit(domain.PeerEvent{Type: domain.PeerConnected, PeerID: s.remoteID, State: s.state, Stream: &stream})
}

// replaceLocalMedia swaps the shared stream on every session and
// renegotiates each one. Only relay failures are returned.
func (r *room) replaceLocalMedia(ctx context.Context, stream *domain.LocalStream) error {
	r.local = stream
	var errs []error
	for _, s := range r.registry.ordered() {
		if err := s.attach(stream); err != nil {
			r.log.Warn().Err(err).Msg("Failed to replace tracks")
			continue
		}
		desc, sent, err := s.renegotiate()
		if err != nil {
			r.log.Warn().Err(err).Msg("Failed to renegotiate")
			continue
		}
		if !sent {
			continue
		}
		if err := r.publish(ctx, domain.Offer{From: r.self, To: s.remoteID, Description: desc}); err != nil {
			errs = append(errs, err)
		}
	}
	r.log.Info().Int("sessions", r.registry.len()).Int("tracks", stream.Len()).Msg("Replaced local media")
	return errors.Join(errs...)
}

func (r *room) setTrackEnabled(kind domain.TrackKind, enabled bool) error {
	found := false
	if r.local != nil {
		for _, t := range r.local.Tracks {
			if t.Kind() == kind {
				t.SetEnabled(enabled)
				found = true
			}
		}
	}
	if !found {
		return domain.WrapError("toggle track", domain.ErrNoMedia, string(kind))
	}
	return nil
}
