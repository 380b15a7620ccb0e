package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/Wyydra/yamesh/internal/adapter/driven/gateway/ws"
	"github.com/Wyydra/yamesh/internal/core/domain"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	sendBufferSize = 256
)

var errSendBufferFull = errors.New("send buffer full")

// WSClient is one hub connection. Frames are queued on send and written by
// writePump.
type WSClient struct {
	id   string
	room string
	conn *websocket.Conn
	send chan []byte
	log  zerolog.Logger

	mu     sync.Mutex
	closed bool
}

func (c *WSClient) ID() string {
	return c.id
}

func (c *WSClient) CanSubscribe(topic string) bool {
	return c.room == "" || topic == domain.RoomID(c.room).Topic()
}

func (c *WSClient) Send(f ws.Frame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return websocket.ErrCloseSent
	}
	select {
	case c.send <- data:
		return nil
	default:
		return errSendBufferFull
	}
}

// Close stops writePump, which sends a close frame and closes the socket.
func (c *WSClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
	return nil
}

// HTTP handler
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	id, room := uuid.NewString(), ""
	if claims := claimsFrom(r.Context()); claims != nil {
		id, room = claims.ParticipantID, claims.Room
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("Error while upgrading ws")
		return
	}

	client := &WSClient{
		id:   id,
		room: room,
		conn: conn,
		send: make(chan []byte, sendBufferSize),
		log:  log.With().Str("client_id", id).Logger(),
	}
	client.log.Info().Str("remote", r.RemoteAddr).Msg("New client connected")

	h.Hub.Register(client)
	go client.writePump()
	client.readPump(h.Hub)
}

func (c *WSClient) readPump(hub *ws.Hub) {
	defer func() {
		c.log.Info().Msg("Client disconnected")
		hub.Unregister(c)
		c.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var f ws.Frame
		if err := c.conn.ReadJSON(&f); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				c.log.Error().Err(err).Msg("Unexpected close error")
			}
			return
		}

		switch f.Op {
		case ws.OpSubscribe:
			hub.Subscribe(c, f.Topic)
		case ws.OpUnsubscribe:
			hub.Unsubscribe(c, f.Topic)
		case ws.OpPublish:
			if err := hub.Publish(c, f.Topic, f.Payload); err != nil {
				return
			}
		default:
			c.log.Warn().Str("op", f.Op).Msg("Unknown frame op")
			c.Send(ws.Frame{Op: ws.OpError, Error: "unknown op " + f.Op})
		}
	}
}

func (c *WSClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.log.Error().Err(err).Msg("Failed to write message")
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
