package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/papertrade/session-engine/internal/metrics"
)

// ErrHubFull is returned when the broadcast buffer is full and a message was
// dropped.
var ErrHubFull = errors.New("broadcast: hub buffer full, message dropped")

const (
	writeWait  = 5 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
)

// WSMessage is a JSON message sent to websocket clients.
type WSMessage struct {
	Type    string `json:"type"`
	GroupID string `json:"group_id,omitempty"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// clientCommand is a JSON message received from websocket clients.
type clientCommand struct {
	Event   string `json:"event"` // join_group | leave_group
	GroupID string `json:"group_id"`
}

// client wraps one connection. gorilla/websocket allows one concurrent
// writer, so every write goes through mu.
type client struct {
	conn   *websocket.Conn
	mu     sync.Mutex
	topics map[string]bool // owned by the hub loop
}

func (c *client) write(msgType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(msgType, data)
}

type envelope struct {
	topic string
	data  []byte
}

type subscription struct {
	client  *client
	groupID string
	join    bool
}

// Hub manages websocket connections grouped into per-session rooms and
// broadcasts market updates to the room of the publishing session.
type Hub struct {
	clients    map[*client]bool
	broadcast  chan envelope
	register   chan *client
	unregister chan *client
	subscribe  chan subscription
	done       chan struct{}
	mu         sync.RWMutex
	log        *slog.Logger
}

// NewHub creates a websocket hub. Run must be started before use.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		clients:    make(map[*client]bool),
		broadcast:  make(chan envelope, 256),
		register:   make(chan *client),
		unregister: make(chan *client),
		subscribe:  make(chan subscription),
		done:       make(chan struct{}),
		log:        logger,
	}
}

// Run is the hub's event loop. It returns when ctx is done, closing every
// connection.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			close(h.done)
			h.mu.Lock()
			for c := range h.clients {
				c.conn.Close()
				delete(h.clients, c)
			}
			h.mu.Unlock()
			metrics.WebSocketClients.Set(0)
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			total := len(h.clients)
			h.mu.Unlock()
			metrics.WebSocketClients.Set(float64(total))
			h.log.Info("ws client connected", "total", total)

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				c.conn.Close()
			}
			total := len(h.clients)
			h.mu.Unlock()
			metrics.WebSocketClients.Set(float64(total))

		case sub := <-h.subscribe:
			h.mu.Lock()
			_, ok := h.clients[sub.client]
			if ok {
				if sub.join {
					sub.client.topics[Topic(sub.groupID)] = true
				} else {
					delete(sub.client.topics, Topic(sub.groupID))
				}
			}
			h.mu.Unlock()
			if ok {
				h.ack(sub)
			}

		case env := <-h.broadcast:
			h.mu.Lock()
			for c := range h.clients {
				if !c.topics[env.topic] {
					continue
				}
				if err := c.write(websocket.TextMessage, env.data); err != nil {
					c.conn.Close()
					delete(h.clients, c)
				}
			}
			metrics.WebSocketClients.Set(float64(len(h.clients)))
			h.mu.Unlock()
		}
	}
}

func (h *Hub) ack(sub subscription) {
	verb := "joined"
	if !sub.join {
		verb = "left"
	}
	data, _ := json.Marshal(WSMessage{
		Type:    "my_response",
		GroupID: sub.groupID,
		Message: "Successfully " + verb + " room " + sub.groupID,
	})
	if err := sub.client.write(websocket.TextMessage, data); err != nil {
		h.log.Warn("ws ack failed", "group", sub.groupID, "err", err)
	}
}

// Publish queues payload for the clients subscribed to topic. It never
// blocks: when the buffer is full the message is dropped.
func (h *Hub) Publish(_ context.Context, topic string, payload any) error {
	groupID := strings.TrimSuffix(strings.TrimPrefix(topic, "session:"), ":market")
	data, err := json.Marshal(WSMessage{Type: "market_update", GroupID: groupID, Data: payload})
	if err != nil {
		return err
	}
	select {
	case h.broadcast <- envelope{topic: topic, data: data}:
		return nil
	default:
		return ErrHubFull
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		return true // Allow all origins during development.
	},
}

// HandleWS upgrades GET /api/v1/ws. An optional ?group_id= joins that room
// immediately; clients may also send {"event":"join_group","group_id":...}
// and {"event":"leave_group",...}.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Error("ws upgrade failed", "err", err)
		return
	}

	c := &client{conn: conn, topics: make(map[string]bool)}
	if !h.send(h.register, c) {
		conn.Close()
		return
	}
	if g := r.URL.Query().Get("group_id"); g != "" {
		h.sendSub(subscription{client: c, groupID: g, join: true})
	}

	// Read pump: handles room commands and detects disconnects.
	go func() {
		defer h.send(h.unregister, c)
		conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			conn.SetReadDeadline(time.Now().Add(pongWait))
			return nil
		})
		for {
			_, raw, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var cmd clientCommand
			if json.Unmarshal(raw, &cmd) != nil || cmd.GroupID == "" {
				continue
			}
			switch cmd.Event {
			case "join_group":
				h.log.Info("client asked to join group", "group", cmd.GroupID)
				h.sendSub(subscription{client: c, groupID: cmd.GroupID, join: true})
			case "leave_group":
				h.log.Info("client asked to leave group", "group", cmd.GroupID)
				h.sendSub(subscription{client: c, groupID: cmd.GroupID, join: false})
			}
		}
	}()

	// Ping ticker to keep connection alive through proxies.
	go func() {
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		for range ticker.C {
			h.mu.RLock()
			_, ok := h.clients[c]
			h.mu.RUnlock()
			if !ok {
				return
			}
			if err := c.write(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}()
}

// send hands c to the hub loop unless the hub has stopped.
func (h *Hub) send(ch chan *client, c *client) bool {
	select {
	case ch <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) sendSub(sub subscription) {
	select {
	case h.subscribe <- sub:
	case <-h.done:
	}
}
