package ws

import (
	"errors"

	"github.com/rs/zerolog/log"
)

var ErrHubStopped = errors.New("hub stopped")

type subscribeRequest struct {
	client Client
	topic  string
}

type publishRequest struct {
	sender  Client
	topic   string
	payload []byte
}

// Hub fans published payloads out to every client subscribed to the topic,
// sender included. It keeps no history.
type Hub struct {
	clients     map[Client]map[string]bool
	topics      map[string]map[Client]bool
	register    chan Client
	unregister  chan Client
	subscribe   chan subscribeRequest
	unsubscribe chan subscribeRequest
	publish     chan publishRequest
	quit        chan struct{}
	done        chan struct{}
}

func NewHub() *Hub {
	return &Hub{
		clients:     make(map[Client]map[string]bool),
		topics:      make(map[string]map[Client]bool),
		register:    make(chan Client),
		unregister:  make(chan Client),
		subscribe:   make(chan subscribeRequest),
		unsubscribe: make(chan subscribeRequest),
		publish:     make(chan publishRequest, 256),
		quit:        make(chan struct{}),
		done:        make(chan struct{}),
	}
}

func (h *Hub) Run() {
	defer close(h.done)
	for {
		select {
		case <-h.quit:
			for client := range h.clients {
				client.Close()
				h.drop(client)
			}
			return

		case client := <-h.register:
			h.clients[client] = make(map[string]bool)
			log.Info().Str("client_id", client.ID()).Msg("Client registered")

		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				h.drop(client)
				client.Close()
				log.Info().Str("client_id", client.ID()).Msg("Client unregistered")
			}

		case req := <-h.subscribe:
			h.handleSubscribe(req)

		case req := <-h.unsubscribe:
			if subs, ok := h.clients[req.client]; ok {
				delete(subs, req.topic)
				h.leave(req.client, req.topic)
			}

		case msg := <-h.publish:
			h.handlePublish(msg)
		}
	}
}

func (h *Hub) handleSubscribe(req subscribeRequest) {
	subs, ok := h.clients[req.client]
	if !ok {
		return
	}
	if !req.client.CanSubscribe(req.topic) {
		log.Warn().Str("client_id", req.client.ID()).Str("topic", req.topic).Msg("Subscription refused")
		h.send(req.client, Frame{Op: OpError, Topic: req.topic, Error: "forbidden topic"})
		return
	}

	subs[req.topic] = true
	members, ok := h.topics[req.topic]
	if !ok {
		members = make(map[Client]bool)
		h.topics[req.topic] = members
	}
	members[req.client] = true
	log.Debug().Str("client_id", req.client.ID()).Str("topic", req.topic).Int("members", len(members)).Msg("Client subscribed")

	h.send(req.client, Frame{Op: OpSubscribed, Topic: req.topic})
}

func (h *Hub) handlePublish(msg publishRequest) {
	if subs, ok := h.clients[msg.sender]; !ok || !subs[msg.topic] {
		h.send(msg.sender, Frame{Op: OpError, Topic: msg.topic, Error: "not subscribed"})
		return
	}
	for client := range h.topics[msg.topic] {
		h.send(client, Frame{Op: OpMessage, Topic: msg.topic, Payload: msg.payload})
	}
}

// send drops clients that cannot accept a frame.
func (h *Hub) send(client Client, f Frame) {
	if _, ok := h.clients[client]; !ok {
		return
	}
	if err := client.Send(f); err != nil {
		log.Error().Err(err).Str("client_id", client.ID()).Msg("Error sending frame")
		h.drop(client)
		client.Close()
	}
}

func (h *Hub) drop(client Client) {
	for topic := range h.clients[client] {
		h.leave(client, topic)
	}
	delete(h.clients, client)
}

func (h *Hub) leave(client Client, topic string) {
	members := h.topics[topic]
	delete(members, client)
	if len(members) == 0 {
		delete(h.topics, topic)
	}
}

func (h *Hub) Register(c Client) {
	select {
	case h.register <- c:
	case <-h.done:
	}
}

func (h *Hub) Unregister(c Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

func (h *Hub) Subscribe(c Client, topic string) {
	select {
	case h.subscribe <- subscribeRequest{client: c, topic: topic}:
	case <-h.done:
	}
}

func (h *Hub) Unsubscribe(c Client, topic string) {
	select {
	case h.unsubscribe <- subscribeRequest{client: c, topic: topic}:
	case <-h.done:
	}
}

func (h *Hub) Publish(c Client, topic string, payload []byte) error {
	select {
	case <-h.done:
		return ErrHubStopped
	default:
	}
	select {
	case h.publish <- publishRequest{sender: c, topic: topic, payload: payload}:
		return nil
	case <-h.done:
		return ErrHubStopped
	}
}

func (h *Hub) Stop() {
	select {
	case <-h.quit:
	default:
		close(h.quit)
	}
	<-h.done
}
