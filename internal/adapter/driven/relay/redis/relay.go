package redis

import (
	"context"
	"fmt"
	"sync"

	"github.com/Wyydra/yamesh/internal/core/port"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

type Config struct {
	Addr     string
	Password string
	DB       int
}

// Relay carries room topics over Redis Pub/Sub. Redis gives the same
// guarantees the signaling layer expects: no history, fan-out to current
// subscribers, and echo to the publisher when it is subscribed.
type Relay struct {
	client *redis.Client
}

var _ port.RelayChannel = (*Relay)(nil)

// Connect dials Redis and checks the connection.
func Connect(ctx context.Context, cfg Config) (*Relay, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return New(client), nil
}

func New(client *redis.Client) *Relay {
	return &Relay{client: client}
}

func (r *Relay) Close() error {
	return r.client.Close()
}

func (r *Relay) Publish(ctx context.Context, topic string, payload []byte) error {
	return r.client.Publish(ctx, topic, payload).Err()
}

func (r *Relay) Subscribe(ctx context.Context, topic string, onMessage func([]byte)) (port.Subscription, error) {
	ps := r.client.Subscribe(ctx, topic)
	// The first reply confirms the subscription.
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return nil, fmt.Errorf("subscribe %s: %w", topic, err)
	}

	sub := &subscription{ps: ps, topic: topic, done: make(chan struct{})}
	go sub.deliver(onMessage)
	log.Debug().Str("topic", topic).Msg("Redis subscription confirmed")
	return sub, nil
}

type subscription struct {
	ps    *redis.PubSub
	topic string
	done  chan struct{}
	once  sync.Once
	err   error
}

func (s *subscription) deliver(onMessage func([]byte)) {
	defer close(s.done)
	for msg := range s.ps.Channel() {
		onMessage([]byte(msg.Payload))
	}
}

func (s *subscription) Unsubscribe() error {
	s.once.Do(func() {
		s.err = s.ps.Close()
	})
	<-s.done
	return s.err
}
