package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/typerace/internal/room"
)

// Hub owns every live WebSocket connection, keyed by participant id. It is
// the transport side of the room.Broadcaster contract: delivery is
// best-effort and never blocks the caller, with slow consumers disconnected
// rather than backpressured.
type Hub struct {
	mu    sync.RWMutex
	conns map[string]*conn

	upgrader websocket.Upgrader
	config   Config

	broadcastCh chan broadcast
}

// conn is one participant's WebSocket connection.
type conn struct {
	participantID string
	ws            *websocket.Conn
	send          chan []byte
	done          chan struct{}
	hub           *Hub

	connectedAt time.Time
	lastPong    time.Time

	onMessage func(participantID string, raw []byte)
	onClose   func(participantID string)
	closeOnce sync.Once
}

// Config holds connection tuning for the hub.
type Config struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	CheckOrigin     func(r *http.Request) bool
}

// broadcast is one queued outbound frame with its target set.
type broadcast struct {
	all  bool
	one  string
	ids  []string
	data []byte
}

// DefaultConfig returns the connection tuning used in production.
func DefaultConfig() Config {
	return Config{
		WriteTimeout: 10 * time.Second,
		ReadTimeout:  60 * time.Second,
		PingInterval: 30 * time.Second,
		// Large enough for a full typing snapshot plus envelope overhead.
		MaxMessageSize:  16 * 1024,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			// Allow all origins in development - restrict in production
			return true
		},
	}
}

// NewHub creates a hub with the given connection tuning.
func NewHub(config Config) *Hub {
	return &Hub{
		conns: make(map[string]*conn),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config:      config,
		broadcastCh: make(chan broadcast, 1000),
	}
}

// Start processes queued broadcasts until the context is cancelled.
func (h *Hub) Start(ctx context.Context) {
	log.Info().Msg("websocket hub started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("websocket hub shutting down")
			h.closeAll()
			return
		case msg := <-h.broadcastCh:
			h.deliver(msg)
		}
	}
}

// ToAll implements room.Broadcaster.
func (h *Hub) ToAll(evt room.Event) {
	h.enqueue(broadcast{all: true, data: encodeEvent(evt)})
}

// ToParticipants implements room.Broadcaster.
func (h *Hub) ToParticipants(ids []string, evt room.Event) {
	if len(ids) == 0 {
		return
	}
	h.enqueue(broadcast{ids: ids, data: encodeEvent(evt)})
}

// To implements room.Broadcaster.
func (h *Hub) To(id string, evt room.Event) {
	h.enqueue(broadcast{one: id, data: encodeEvent(evt)})
}

func (h *Hub) enqueue(msg broadcast) {
	if msg.data == nil {
		return
	}
	select {
	case h.broadcastCh <- msg:
	default:
		log.Warn().Msg("broadcast channel full, dropping message")
	}
}

// encodeEvent wraps a room event in the wire envelope and marshals it once,
// shared across every target connection.
func encodeEvent(evt room.Event) []byte {
	payload, err := json.Marshal(evt.Data)
	if err != nil {
		log.Error().Err(err).Str("event_type", evt.Type).Msg("failed to marshal event payload")
		return nil
	}
	frame, err := json.Marshal(Envelope{Type: evt.Type, Timestamp: time.Now(), Data: payload})
	if err != nil {
		log.Error().Err(err).Str("event_type", evt.Type).Msg("failed to marshal envelope")
		return nil
	}
	return frame
}

// deliver fans one frame out to its target connections.
func (h *Hub) deliver(msg broadcast) {
	h.mu.RLock()
	var targets []*conn
	switch {
	case msg.all:
		targets = make([]*conn, 0, len(h.conns))
		for _, c := range h.conns {
			targets = append(targets, c)
		}
	case msg.one != "":
		if c, ok := h.conns[msg.one]; ok {
			targets = []*conn{c}
		}
	default:
		targets = make([]*conn, 0, len(msg.ids))
		for _, id := range msg.ids {
			if c, ok := h.conns[id]; ok {
				targets = append(targets, c)
			}
		}
	}
	h.mu.RUnlock()

	for _, c := range targets {
		select {
		case c.send <- msg.data:
		default:
			log.Warn().
				Str("participant_id", c.participantID).
				Msg("connection send buffer full, closing connection")
			c.close()
		}
	}
}

// Session is an accepted connection whose pumps are not yet running. The
// split lets the caller finish registering the participant with its own
// collaborators before any close path can fire: onClose never runs before
// Start.
type Session struct {
	c *conn
}

// Start runs the session's read and write pumps. Must be called exactly
// once per accepted session.
func (s *Session) Start() {
	go s.c.writePump()
	go s.c.readPump()
}

// Accept upgrades the request and registers the connection under
// participantID. onMessage receives every raw inbound frame; onClose fires
// exactly once when the connection dies for any reason after Start.
func (h *Hub) Accept(
	w http.ResponseWriter,
	r *http.Request,
	participantID string,
	onMessage func(participantID string, raw []byte),
	onClose func(participantID string),
) (*Session, error) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("failed to upgrade websocket connection")
		return nil, err
	}

	c := &conn{
		participantID: participantID,
		ws:            ws,
		send:          make(chan []byte, 256),
		done:          make(chan struct{}),
		hub:           h,
		connectedAt:   time.Now(),
		lastPong:      time.Now(),
		onMessage:     onMessage,
		onClose:       onClose,
	}

	h.mu.Lock()
	// A second connection under the same participant id replaces the first.
	if prev, ok := h.conns[participantID]; ok {
		prev.close()
	}
	h.conns[participantID] = c
	total := len(h.conns)
	h.mu.Unlock()

	log.Info().
		Str("participant_id", participantID).
		Int("total_connections", total).
		Msg("websocket connection established")
	return &Session{c: c}, nil
}

// ConnectionCount reports the number of live connections, for the health
// endpoint.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

func (h *Hub) closeAll() {
	h.mu.RLock()
	conns := make([]*conn, 0, len(h.conns))
	for _, c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	for _, c := range conns {
		c.close()
	}
}

// close tears a connection down exactly once: it is unregistered, its
// socket closed, and the close callback invoked.
func (c *conn) close() {
	c.closeOnce.Do(func() {
		c.hub.mu.Lock()
		if current, ok := c.hub.conns[c.participantID]; ok && current == c {
			delete(c.hub.conns, c.participantID)
		}
		c.hub.mu.Unlock()

		// The send channel is never closed; writePump exits via done so a
		// concurrent broadcast can never hit a closed channel.
		close(c.done)
		c.ws.Close()

		log.Info().Str("participant_id", c.participantID).Msg("websocket connection closed")
		if c.onClose != nil {
			c.onClose(c.participantID)
		}
	})
}

func (c *conn) writePump() {
	ticker := time.NewTicker(c.hub.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case <-c.done:
			c.ws.SetWriteDeadline(time.Now().Add(c.hub.config.WriteTimeout))
			c.ws.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case message := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(c.hub.config.WriteTimeout))
			if err := c.ws.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Error().
					Err(err).
					Str("participant_id", c.participantID).
					Msg("failed to write message to websocket")
				return
			}

		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(c.hub.config.WriteTimeout))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *conn) readPump() {
	defer c.close()

	c.ws.SetReadLimit(c.hub.config.MaxMessageSize)
	c.ws.SetReadDeadline(time.Now().Add(c.hub.config.ReadTimeout))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(c.hub.config.ReadTimeout))
		c.lastPong = time.Now()
		return nil
	})

	for {
		_, message, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Error().
					Err(err).
					Str("participant_id", c.participantID).
					Msg("unexpected websocket close error")
			}
			return
		}

		if c.onMessage != nil {
			c.onMessage(c.participantID, message)
		}
		c.ws.SetReadDeadline(time.Now().Add(c.hub.config.ReadTimeout))
	}
}
