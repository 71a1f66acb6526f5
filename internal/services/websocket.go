package services

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/jimmy058910/replitballgame-sub015/internal/sim"
)

// WebSocketHub fans bus traffic out to browser clients. Clients pick their
// topics with subscribe/unsubscribe commands; match tick frames additionally
// carry a per-client playback decision, so two viewers of the same match can
// watch at different speeds.
type WebSocketHub struct {
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	mu         sync.RWMutex
	log        *logrus.Logger
}

// Client is one websocket connection and its playback state.
type Client struct {
	hub      *WebSocketHub
	conn     *websocket.Conn
	send     chan []byte
	id       string
	teamID   uint // 0 for anonymous viewers
	playback *sim.PlaybackController
	playhead atomic.Int64 // -1 tracks the live tick

	topicsMu sync.RWMutex
	topics   map[string]bool
}

// WebSocketMessage is the outbound frame envelope.
type WebSocketMessage struct {
	Type      string                `json:"type"`
	Topic     string                `json:"topic"`
	Data      json.RawMessage       `json:"data"`
	Playback  *sim.PlaybackDecision `json:"playback,omitempty"`
	Timestamp time.Time             `json:"timestamp"`
}

// ClientCommand is the inbound frame. Actions: "subscribe" / "unsubscribe"
// with Topics, "speed" with Speed, "auto" to resume automatic playback,
// "seek" with Tick (negative Tick returns to live).
type ClientCommand struct {
	Action string   `json:"action"`
	Topics []string `json:"topics,omitempty"`
	Speed  int      `json:"speed,omitempty"`
	Tick   int      `json:"tick,omitempty"`
}

func NewWebSocketHub(log *logrus.Logger) *WebSocketHub {
	return &WebSocketHub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		log:        log,
	}
}

// Run owns the client set. It runs for the life of the process.
func (h *WebSocketHub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			h.log.WithFields(logrus.Fields{
				"client_id": client.id,
				"team_id":   client.teamID,
			}).Info("WebSocket client connected")

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
			h.log.WithField("client_id", client.id).Info("WebSocket client disconnected")
		}
	}
}

// Register adds a new client to the hub.
func (h *WebSocketHub) Register(client *Client) {
	h.register <- client
}

// ClientCount reports connected clients, for the health endpoint.
func (h *WebSocketHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast sends one shared frame to every client subscribed to the topic.
// Slow clients are skipped, never waited on.
func (h *WebSocketHub) Broadcast(topic, messageType string, data interface{}) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}
	frame, err := json.Marshal(WebSocketMessage{
		Type:      messageType,
		Topic:     topic,
		Data:      jsonData,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		return err
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients {
		if !client.IsSubscribedTo(topic) {
			continue
		}
		select {
		case client.send <- frame:
		default:
			// Buffer full; the client catches up from later frames.
		}
	}
	return nil
}

// BroadcastTick relays one match tick. Frames are built per client because
// each subscriber's playback controller decides its own speed and visuals.
func (h *WebSocketHub) BroadcastTick(topic string, env sim.TickEnvelope) {
	jsonData, err := json.Marshal(env)
	if err != nil {
		h.log.WithError(err).WithField("match_id", env.MatchID).Error("Could not encode tick frame")
		return
	}
	now := time.Now().UTC()

	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients {
		if !client.IsSubscribedTo(topic) {
			continue
		}
		if env.Event != nil {
			client.playback.Observe(*env.Event)
		}
		playhead := env.Tick
		if ph := client.playhead.Load(); ph >= 0 {
			playhead = int(ph)
		}
		decision := client.playback.Decision(playhead)

		frame, err := json.Marshal(WebSocketMessage{
			Type:      "MATCH_TICK",
			Topic:     topic,
			Data:      jsonData,
			Playback:  &decision,
			Timestamp: now,
		})
		if err != nil {
			continue
		}
		select {
		case client.send <- frame:
		default:
		}
	}
}

func NewClient(hub *WebSocketHub, conn *websocket.Conn, teamID uint) *Client {
	c := &Client{
		hub:      hub,
		conn:     conn,
		send:     make(chan []byte, 256),
		id:       uuid.NewString(),
		teamID:   teamID,
		playback: sim.NewPlaybackController(),
		topics:   make(map[string]bool),
	}
	c.playhead.Store(-1)
	return c
}

// IsSubscribedTo reports whether the client wants the topic. "*" subscribes
// to everything.
func (c *Client) IsSubscribedTo(topic string) bool {
	c.topicsMu.RLock()
	defer c.topicsMu.RUnlock()
	return c.topics[topic] || c.topics["*"]
}

func (c *Client) setTopics(topics []string, subscribed bool) {
	c.topicsMu.Lock()
	defer c.topicsMu.Unlock()
	for _, topic := range topics {
		if subscribed {
			c.topics[topic] = true
		} else {
			delete(c.topics, topic)
		}
	}
}

// handle applies one inbound command.
func (c *Client) handle(cmd ClientCommand) {
	switch cmd.Action {
	case "subscribe":
		c.setTopics(cmd.Topics, true)
	case "unsubscribe":
		c.setTopics(cmd.Topics, false)
	case "speed":
		if err := c.playback.SetOverride(cmd.Speed); err != nil {
			c.hub.log.WithError(err).WithField("client_id", c.id).Warn("Rejected playback speed")
		}
	case "auto":
		c.playback.ClearOverride()
	case "seek":
		if cmd.Tick < 0 {
			c.playhead.Store(-1)
		} else {
			c.playhead.Store(int64(cmd.Tick))
		}
		c.playback.Clear()
	default:
		c.hub.log.WithFields(logrus.Fields{
			"client_id": c.id,
			"action":    cmd.Action,
		}).Warn("Unknown websocket command")
	}
}

// ReadPump consumes inbound commands until the connection drops, then
// unregisters the client.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		var cmd ClientCommand
		if err := c.conn.ReadJSON(&cmd); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.log.WithError(err).WithField("client_id", c.id).Warn("WebSocket read failed")
			}
			break
		}
		c.handle(cmd)
	}
}

// WritePump drains the send buffer onto the wire and keeps the connection
// alive with pings. Queued frames are coalesced into one write.
func (c *Client) WritePump() {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.send)
			}

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
