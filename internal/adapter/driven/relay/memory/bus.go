package memory

import (
	"context"
	"sync"

	"github.com/Wyydra/yamesh/internal/core/domain"
	"github.com/Wyydra/yamesh/internal/core/port"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const queueSize = 256

type envelope struct {
	topic   string
	payload []byte
}

type subscription struct {
	id        string
	topic     string
	onMessage func([]byte)
	queue     chan []byte
	done      chan struct{}
	bus       *Bus
	once      sync.Once
}

type subscribeRequest struct {
	sub *subscription
	ack chan struct{}
}

// Bus is an in-process relay. A single goroutine owns the topic table;
// every subscriber has its own bounded queue and delivery goroutine, and a
// full queue drops the message. Publishers receive their own messages.
type Bus struct {
	topics      map[string]map[*subscription]bool
	subscribe   chan subscribeRequest
	unsubscribe chan *subscription
	publish     chan envelope
	quit        chan struct{}
	done        chan struct{}
	stopOnce    sync.Once
}

var _ port.RelayChannel = (*Bus)(nil)

func NewBus() *Bus {
	return &Bus{
		topics:      make(map[string]map[*subscription]bool),
		subscribe:   make(chan subscribeRequest),
		unsubscribe: make(chan *subscription),
		publish:     make(chan envelope, queueSize),
		quit:        make(chan struct{}),
		done:        make(chan struct{}),
	}
}

func (b *Bus) Run() {
	defer close(b.done)
	for {
		select {
		case <-b.quit:
			for topic, subs := range b.topics {
				for sub := range subs {
					close(sub.queue)
				}
				delete(b.topics, topic)
			}
			return

		case req := <-b.subscribe:
			subs, ok := b.topics[req.sub.topic]
			if !ok {
				subs = make(map[*subscription]bool)
				b.topics[req.sub.topic] = subs
			}
			subs[req.sub] = true
			close(req.ack)
			log.Debug().Str("topic", req.sub.topic).Str("sub_id", req.sub.id).Msg("Subscriber registered")

		case sub := <-b.unsubscribe:
			if subs, ok := b.topics[sub.topic]; ok && subs[sub] {
				delete(subs, sub)
				close(sub.queue)
				if len(subs) == 0 {
					delete(b.topics, sub.topic)
				}
				log.Debug().Str("topic", sub.topic).Str("sub_id", sub.id).Msg("Subscriber removed")
			}

		case env := <-b.publish:
			for sub := range b.topics[env.topic] {
				select {
				case sub.queue <- env.payload:
				default:
					log.Warn().Str("topic", env.topic).Str("sub_id", sub.id).Msg("Subscriber queue full, dropping message")
				}
			}
		}
	}
}

func (b *Bus) Stop() {
	b.stopOnce.Do(func() { close(b.quit) })
	<-b.done
}

func (b *Bus) Subscribe(ctx context.Context, topic string, onMessage func([]byte)) (port.Subscription, error) {
	sub := &subscription{
		id:        uuid.NewString(),
		topic:     topic,
		onMessage: onMessage,
		queue:     make(chan []byte, queueSize),
		done:      make(chan struct{}),
		bus:       b,
	}
	req := subscribeRequest{sub: sub, ack: make(chan struct{})}

	select {
	case b.subscribe <- req:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-b.done:
		return nil, domain.ErrClosed
	}
	<-req.ack

	go sub.deliver()
	return sub, nil
}

func (b *Bus) Publish(ctx context.Context, topic string, payload []byte) error {
	select {
	case <-b.done:
		return domain.ErrClosed
	default:
	}

	msg := make([]byte, len(payload))
	copy(msg, payload)

	select {
	case b.publish <- envelope{topic: topic, payload: msg}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-b.done:
		return domain.ErrClosed
	}
}

func (s *subscription) deliver() {
	defer close(s.done)
	for payload := range s.queue {
		s.onMessage(payload)
	}
}

// Unsubscribe stops delivery. Once it returns no further callbacks run.
// It must not be called from onMessage.
func (s *subscription) Unsubscribe() error {
	s.once.Do(func() {
		select {
		case s.bus.unsubscribe <- s:
		case <-s.bus.done:
		}
	})
	<-s.done
	return nil
}
