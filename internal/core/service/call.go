package service

import (
	"context"
	"sync"
	"time"

	"github.com/Wyydra/yamesh/internal/core/domain"
	"github.com/Wyydra/yamesh/internal/core/port"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	DefaultPublishTimeout = 5 * time.Second
	DefaultEventBuffer    = 64
)

type options struct {
	iceServers        []domain.ICEServer
	publishTimeout    time.Duration
	disconnectTimeout time.Duration
	maxPeers          int
	eventBuffer       int
	logger            zerolog.Logger
}

type Option func(*options)

func WithICEServers(servers []domain.ICEServer) Option {
	return func(o *options) { o.iceServers = servers }
}

// WithPublishTimeout bounds every relay publish. Zero disables the bound.
func WithPublishTimeout(d time.Duration) Option {
	return func(o *options) { o.publishTimeout = d }
}

// WithDisconnectTimeout tears down sessions that stay disconnected for d.
// Zero keeps them until the peer leaves.
func WithDisconnectTimeout(d time.Duration) Option {
	return func(o *options) { o.disconnectTimeout = d }
}

// WithMaxPeers caps the number of concurrent sessions. Zero means no cap.
func WithMaxPeers(n int) Option {
	return func(o *options) { o.maxPeers = n }
}

func WithEventBuffer(n int) Option {
	return func(o *options) { o.eventBuffer = n }
}

func WithLogger(l zerolog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// CallService is the signaling router of one local participant. It joins at
// most one room at a time.
type CallService struct {
	relay   port.RelayChannel
	factory port.TransportFactory
	codec   port.SignalCodec
	opts    options

	events chan domain.PeerEvent
	stats  counters

	mu   sync.Mutex
	room *room
	sub  port.Subscription
}

func NewCallService(relay port.RelayChannel, factory port.TransportFactory, codec port.SignalCodec, opts ...Option) *CallService {
	o := options{
		publishTimeout: DefaultPublishTimeout,
		eventBuffer:    DefaultEventBuffer,
		logger:         log.Logger,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.eventBuffer <= 0 {
		o.eventBuffer = DefaultEventBuffer
	}
	return &CallService{
		relay:   relay,
		factory: factory,
		codec:   codec,
		opts:    o,
		events:  make(chan domain.PeerEvent, o.eventBuffer),
	}
}

// Start joins roomID as selfID. It returns once the relay subscription is
// confirmed and Joined has been published.
func (c *CallService) Start(ctx context.Context, roomID domain.RoomID, selfID domain.ParticipantID, local *domain.LocalStream) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.room != nil {
		return domain.NewError("start", domain.ErrAlreadyStarted)
	}

	r := newRoom(roomID, selfID, local, c.relay, c.factory, c.codec, c.opts, c.events, &c.stats)
	go r.run()

	sub, err := c.relay.Subscribe(ctx, r.topic, r.deliver)
	if err != nil {
		r.close()
		return domain.WrapError("subscribe", domain.ErrRelay, err.Error())
	}

	if err := r.call(ctx, func() error { return r.announce(ctx) }); err != nil {
		if uerr := sub.Unsubscribe(); uerr != nil {
			r.log.Warn().Err(uerr).Msg("Failed to release subscription")
		}
		r.wait(r.abandon)
		r.close()
		return err
	}

	c.room = r
	c.sub = sub
	r.log.Info().Str("topic", r.topic).Int("tracks", local.Len()).Msg("Signaling started")
	return nil
}

// Stop leaves the current room. It is a no-op when not started.
func (c *CallService) Stop(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	r := c.room
	if r == nil {
		return nil
	}
	c.room = nil

	r.wait(func() { r.shutdown(ctx) })

	var err error
	if c.sub != nil {
		if uerr := c.sub.Unsubscribe(); uerr != nil {
			err = domain.WrapError("unsubscribe", domain.ErrRelay, uerr.Error())
		}
		c.sub = nil
	}
	r.close()
	r.log.Info().Msg("Signaling stopped")
	return err
}

func (c *CallService) current() (*room, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.room == nil {
		return nil, domain.ErrNotStarted
	}
	return c.room, nil
}

// ReplaceLocalMedia swaps the shared local stream and renegotiates every
// session. It returns after every offer has been handed to the relay.
func (c *CallService) ReplaceLocalMedia(ctx context.Context, stream *domain.LocalStream) error {
	r, err := c.current()
	if err != nil {
		return domain.NewError("replace media", err)
	}
	return r.call(ctx, func() error { return r.replaceLocalMedia(ctx, stream) })
}

// SetTrackEnabled toggles every local track of the given kind.
func (c *CallService) SetTrackEnabled(ctx context.Context, kind domain.TrackKind, enabled bool) error {
	r, err := c.current()
	if err != nil {
		return domain.NewError("toggle track", err)
	}
	return r.call(ctx, func() error { return r.setTrackEnabled(kind, enabled) })
}

// Sessions returns the sessions of the current room ordered by peer id.
func (c *CallService) Sessions(ctx context.Context) ([]SessionInfo, error) {
	r, err := c.current()
	if err != nil {
		return nil, err
	}
	var out []SessionInfo
	err = r.call(ctx, func() error {
		out = r.registry.snapshot()
		return nil
	})
	return out, err
}

// Events delivers peer lifecycle events. The channel is shared across
// restarts and never closed.
func (c *CallService) Events() <-chan domain.PeerEvent {
	return c.events
}

func (c *CallService) Stats() Stats {
	return c.stats.snapshot()
}
