package ws

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	hub "github.com/Wyydra/yamesh/internal/adapter/driven/gateway/ws"
	"github.com/Wyydra/yamesh/internal/core/domain"
	"github.com/Wyydra/yamesh/internal/core/port"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

var ErrAlreadySubscribed = errors.New("topic already subscribed")

// Client is a relay channel backed by a hub server connection.
type Client struct {
	conn     *websocket.Conn
	outgoing chan hub.Frame
	done     chan struct{}
	closed   chan struct{}

	mu      sync.Mutex
	subs    map[string]*subscription
	waiters map[string]chan error

	closeOnce sync.Once
}

var _ port.RelayChannel = (*Client)(nil)

// Dial connects to the hub at url. A non-empty token is sent as a bearer
// credential.
func Dial(ctx context.Context, url, token string) (*Client, error) {
	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}

	c := &Client{
		conn:     conn,
		outgoing: make(chan hub.Frame, 64),
		done:     make(chan struct{}),
		closed:   make(chan struct{}),
		subs:     make(map[string]*subscription),
		waiters:  make(map[string]chan error),
	}
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	go c.readPump()
	go c.writePump()

	log.Debug().Str("url", url).Msg("Connected to relay hub")
	return c, nil
}

func (c *Client) Subscribe(ctx context.Context, topic string, onMessage func([]byte)) (port.Subscription, error) {
	sub := &subscription{client: c, topic: topic, onMessage: onMessage, active: true}
	ack := make(chan error, 1)

	c.mu.Lock()
	if _, ok := c.subs[topic]; ok {
		c.mu.Unlock()
		return nil, ErrAlreadySubscribed
	}
	c.subs[topic] = sub
	c.waiters[topic] = ack
	c.mu.Unlock()

	fail := func(err error) (port.Subscription, error) {
		c.mu.Lock()
		delete(c.subs, topic)
		delete(c.waiters, topic)
		c.mu.Unlock()
		return nil, err
	}

	if err := c.send(ctx, hub.Frame{Op: hub.OpSubscribe, Topic: topic}); err != nil {
		return fail(err)
	}

	select {
	case err := <-ack:
		if err != nil {
			return fail(fmt.Errorf("subscribe %s: %w", topic, err))
		}
		return sub, nil
	case <-ctx.Done():
		return fail(ctx.Err())
	case <-c.closed:
		return fail(domain.ErrClosed)
	}
}

func (c *Client) Publish(ctx context.Context, topic string, payload []byte) error {
	return c.send(ctx, hub.Frame{Op: hub.OpPublish, Topic: topic, Payload: payload})
}

func (c *Client) send(ctx context.Context, f hub.Frame) error {
	select {
	case <-c.closed:
		return domain.ErrClosed
	case <-c.done:
		return domain.ErrClosed
	default:
	}
	select {
	case c.outgoing <- f:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-c.closed:
		return domain.ErrClosed
	}
}

// Close sends a close frame and waits for the connection to shut down.
func (c *Client) Close() error {
	c.closeOnce.Do(func() { close(c.done) })
	<-c.closed
	return nil
}

// Done is closed once the connection is gone.
func (c *Client) Done() <-chan struct{} {
	return c.closed
}

func (c *Client) readPump() {
	defer func() {
		c.conn.Close()
		close(c.closed)
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))

	for {
		var f hub.Frame
		if err := c.conn.ReadJSON(&f); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Msg("Relay hub connection lost")
			}
			return
		}
		c.handle(f)
	}
}

func (c *Client) handle(f hub.Frame) {
	switch f.Op {
	case hub.OpSubscribed:
		c.resolve(f.Topic, nil)
	case hub.OpError:
		log.Warn().Str("topic", f.Topic).Str("error", f.Error).Msg("Relay hub error")
		c.resolve(f.Topic, errors.New(f.Error))
	case hub.OpMessage:
		c.mu.Lock()
		sub := c.subs[f.Topic]
		c.mu.Unlock()
		if sub != nil {
			sub.dispatch(f.Payload)
		}
	}
}

func (c *Client) resolve(topic string, err error) {
	c.mu.Lock()
	ack, ok := c.waiters[topic]
	delete(c.waiters, topic)
	c.mu.Unlock()
	if ok {
		ack <- err
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case f := <-c.outgoing:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(f); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return

		case <-c.closed:
			return
		}
	}
}

type subscription struct {
	client    *Client
	topic     string
	onMessage func([]byte)

	mu     sync.Mutex
	active bool
}

func (s *subscription) dispatch(payload []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active {
		s.onMessage(payload)
	}
}

// Unsubscribe stops delivery. Once it returns no further callbacks run.
func (s *subscription) Unsubscribe() error {
	s.mu.Lock()
	wasActive := s.active
	s.active = false
	s.mu.Unlock()
	if !wasActive {
		return nil
	}

	c := s.client
	c.mu.Lock()
	if c.subs[s.topic] == s {
		delete(c.subs, s.topic)
	}
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), writeWait)
	defer cancel()
	if err := c.send(ctx, hub.Frame{Op: hub.OpUnsubscribe, Topic: s.topic}); err != nil && !errors.Is(err, domain.ErrClosed) {
		return err
	}
	return nil
}
