package prompt

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/dagbolade/clipboard-guardian/internal/approval"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxMessageSize = 64 * 1024
	sendBuffer     = 64
)

const (
	TypePrompt        = "prompt"
	TypePendingUpdate = "pending_update"
	TypeDecision      = "decision"
	TypeError         = "error"
)

// ErrNoApprover means no approver client is connected to receive a prompt.
var ErrNoApprover = errors.New("prompt: no approver connected")

// Message is the JSON frame exchanged with approver clients.
type Message struct {
	Type      string             `json:"type"`
	Request   *approval.Request  `json:"request,omitempty"`
	RequestID string             `json:"request_id,omitempty"`
	Verdict   approval.Verdict   `json:"verdict,omitempty"`
	Pending   []approval.Request `json:"pending,omitempty"`
	Error     string             `json:"error,omitempty"`
}

// Resolver is the side of the decision channel the prompt surfaces need.
type Resolver interface {
	Resolve(id string, v approval.Verdict) error
	Pending() []approval.Request
	NotifyChannel() <-chan struct{}
}

type client struct {
	id       string
	conn     *websocket.Conn
	send     chan Message
	hub      *Hub
	closedMu sync.Mutex
	closed   bool
}

// Hub fans prompts out to every connected approver and feeds their answers
// back into the decision channel.
type Hub struct {
	resolver Resolver
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[*client]bool

	broadcast  chan Message
	register   chan *client
	unregister chan *client

	ctx          context.Context
	cancel       context.CancelFunc
	shutdownOnce sync.Once
}

func NewHub(resolver Resolver) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	h := &Hub{
		resolver:   resolver,
		clients:    make(map[*client]bool),
		broadcast:  make(chan Message, 256),
		register:   make(chan *client),
		unregister: make(chan *client),
		ctx:        ctx,
		cancel:     cancel,
		upgrader: websocket.Upgrader{
			// Callers authenticate before the upgrade.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	go h.run()
	go h.watchPending()
	return h
}

// Prompt broadcasts req to all approvers. It fails when nobody is listening
// so the request can be denied at once instead of waiting for the timeout.
func (h *Hub) Prompt(ctx context.Context, req approval.Request) error {
	if h.Clients() == 0 {
		return ErrNoApprover
	}

	msg := Message{Type: TypePrompt, Request: &req}
	select {
	case h.broadcast <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-h.ctx.Done():
		return ErrNoApprover
	}
}

func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeWS upgrades the connection and runs the client until it disconnects.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, approverID string) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("websocket upgrade failed")
		return err
	}

	c := &client{
		id:   approverID + "-" + time.Now().Format("20060102150405.000"),
		conn: conn,
		send: make(chan Message, sendBuffer),
		hub:  h,
	}

	// Initial snapshot goes out before the client becomes visible to Prompt.
	c.send <- Message{Type: TypePendingUpdate, Pending: h.resolver.Pending()}

	select {
	case h.register <- c:
	case <-h.ctx.Done():
		c.safeClose()
		return nil
	}

	go c.writePump()
	go c.readPump()
	return nil
}

func (h *Hub) Shutdown() {
	h.shutdownOnce.Do(func() {
		log.Info().Msg("shutting down prompt hub")
		h.cancel()

		h.mu.Lock()
		for c := range h.clients {
			delete(h.clients, c)
			c.safeClose()
		}
		h.mu.Unlock()
	})
}

func (h *Hub) run() {
	for {
		select {
		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			total := len(h.clients)
			h.mu.Unlock()
			log.Info().Str("client_id", c.id).Int("total", total).Msg("approver connected")

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				c.safeClose()
			}
			total := len(h.clients)
			h.mu.Unlock()
			log.Info().Str("client_id", c.id).Int("total", total).Msg("approver disconnected")

		case msg := <-h.broadcast:
			h.mu.RLock()
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					log.Warn().Str("client_id", c.id).Msg("approver too slow, disconnecting")
					go h.drop(c)
				}
			}
			h.mu.RUnlock()

		case <-h.ctx.Done():
			return
		}
	}
}

func (h *Hub) drop(c *client) {
	select {
	case h.unregister <- c:
	case <-h.ctx.Done():
	}
}

// watchPending pushes the pending list whenever the channel changes.
func (h *Hub) watchPending() {
	notifyCh := h.resolver.NotifyChannel()
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case _, ok := <-notifyCh:
			if !ok {
				return
			}
			h.broadcastPending()
		case <-ticker.C:
			h.broadcastPending()
		case <-h.ctx.Done():
			return
		}
	}
}

func (h *Hub) broadcastPending() {
	if h.Clients() == 0 {
		return
	}
	msg := Message{Type: TypePendingUpdate, Pending: h.resolver.Pending()}
	select {
	case h.broadcast <- msg:
	case <-h.ctx.Done():
	}
}

func (h *Hub) handleFrame(c *client, data []byte) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		c.reply(Message{Type: TypeError, Error: "malformed message"})
		return
	}
	if msg.Type != TypeDecision {
		c.reply(Message{Type: TypeError, Error: "unsupported message type"})
		return
	}

	v, err := approval.ParseVerdict(string(msg.Verdict))
	if err != nil {
		c.reply(Message{Type: TypeError, RequestID: msg.RequestID, Error: err.Error()})
		return
	}

	if err := h.resolver.Resolve(msg.RequestID, v); err != nil {
		c.reply(Message{Type: TypeError, RequestID: msg.RequestID, Error: err.Error()})
		return
	}
	log.Info().Str("client_id", c.id).Str("id", msg.RequestID).Str("verdict", string(v)).Msg("verdict received over websocket")
}

func (c *client) reply(msg Message) {
	c.closedMu.Lock()
	defer c.closedMu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.send <- msg:
	default:
	}
}

func (c *client) safeClose() {
	c.closedMu.Lock()
	defer c.closedMu.Unlock()

	if c.closed {
		return
	}
	c.closed = true

	close(c.send)
	_ = c.conn.Close()
}

func (c *client) readPump() {
	defer c.hub.drop(c)

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Warn().Err(err).Str("client_id", c.id).Msg("websocket read error")
			}
			return
		}
		c.hub.handleFrame(c, data)
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
