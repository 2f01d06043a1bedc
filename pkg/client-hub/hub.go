package clienthub

import (
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// Hub is the registry of page clients currently connected to the
// worker. It is the broadcast target for worker->page messages and the
// dispatch point for page->worker messages. Nothing is persisted; a
// client exists exactly as long as its connection.
type Hub struct {
	log      zerolog.Logger
	upgrader websocket.Upgrader

	mutex   sync.RWMutex
	clients map[string]*client

	// onClearUpdates is invoked when a page acknowledges an update
	// notification and asks for stale generations to be purged.
	onClearUpdates func() error
}

type client struct {
	id   string
	conn *websocket.Conn
	// gorilla/websocket permits at most one concurrent writer per connection
	writeMutex sync.Mutex
}

func (c *client) send(msg Message) error {
	c.writeMutex.Lock()
	defer c.writeMutex.Unlock()
	return c.conn.WriteJSON(msg)
}

// NewHub creates a hub. onClearUpdates may be nil, in which case
// CLEAR_UPDATES messages are dropped.
func NewHub(logger zerolog.Logger, onClearUpdates func() error) *Hub {
	return &Hub{
		log: logger,
		upgrader: websocket.Upgrader{
			// pages are served from the same origin as the worker
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients:        make(map[string]*client),
		onClearUpdates: onClearUpdates,
	}
}

// ServeHTTP implements the http.Handler interface.
// It upgrades the connection, greets the page, and runs the read loop
// until the page disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("Could not upgrade client connection")
		return
	}
	c := &client{id: uuid.NewString(), conn: conn}
	h.register(c)
	defer h.unregister(c)

	if err := c.send(Message{Type: MsgReady}); err != nil {
		h.log.Error().Err(err).Str("client", c.id).Msg("Could not send ready message")
		return
	}

	for {
		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.log.Debug().Err(err).Str("client", c.id).Msg("Client connection closed")
			}
			return
		}
		h.dispatch(c, msg)
	}
}

// Broadcast sends the message to every connected client.
// Send failures are logged per client and do not stop the broadcast.
func (h *Hub) Broadcast(msg Message) {
	h.mutex.RLock()
	clients := make([]*client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mutex.RUnlock()

	for _, c := range clients {
		if err := c.send(msg); err != nil {
			h.log.Error().Err(err).Str("client", c.id).Str("type", string(msg.Type)).Msg("Could not send broadcast")
		}
	}
}

// Count returns the number of connected clients.
func (h *Hub) Count() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

// dispatch handles a single page->worker message.
// The message set is closed: unknown kinds are logged and dropped.
func (h *Hub) dispatch(c *client, msg Message) {
	switch msg.Type {
	case MsgPing:
		pong := Message{
			Type:      MsgPong,
			Message:   "offline worker alive",
			Timestamp: time.Now().Unix(),
		}
		if err := c.send(pong); err != nil {
			h.log.Error().Err(err).Str("client", c.id).Msg("Could not send pong")
		}
	case MsgClearUpdates:
		if h.onClearUpdates == nil {
			return
		}
		if err := h.onClearUpdates(); err != nil {
			h.log.Error().Err(err).Str("client", c.id).Msg("Could not clear stale generations")
		}
	case MsgNetworkStatus:
		// diagnostic only, no state change
		online := msg.IsOnline != nil && *msg.IsOnline
		h.log.Debug().Bool("online", online).Str("client", c.id).Msg("Client network status")
	default:
		h.log.Debug().Str("type", string(msg.Type)).Str("client", c.id).Msg("Ignoring unknown message")
	}
}

func (h *Hub) register(c *client) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.clients[c.id] = c
}

func (h *Hub) unregister(c *client) {
	h.mutex.Lock()
	delete(h.clients, c.id)
	h.mutex.Unlock()
	c.conn.Close()
}
