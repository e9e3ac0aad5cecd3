package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/nvandessel/solirona/internal/ratelimit"
	"github.com/nvandessel/solirona/internal/simulation"
)

const (
	// sendBuffer is the per-client frame queue; frames beyond it are dropped.
	sendBuffer     = 16
	writeWait      = 10 * time.Second
	maxMessageSize = 64 << 10
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  4096,
	WriteBufferSize: 64 * 1024,
}

// Message is a server-to-client frame.
type Message struct {
	Type     string               `json:"type"` // session, state or error
	ClientID string               `json:"client_id,omitempty"`
	State    *simulation.Snapshot `json:"state,omitempty"`
	Stats    *simulation.Stats    `json:"stats,omitempty"`
	Action   string               `json:"action,omitempty"`
	Error    string               `json:"error,omitempty"`
}

// Request is a client-to-server command frame.
type Request struct {
	Action           string   `json:"action"`
	Count            *int     `json:"count,omitempty"`
	ConnectProb      *float64 `json:"connect_prob,omitempty"`
	CollapseChance   *float64 `json:"collapse_chance,omitempty"`
	InterferenceGain *float64 `json:"interference_gain,omitempty"`
	Angle            *float64 `json:"angle,omitempty"`
}

type client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
}

// enqueue queues msg without blocking and reports whether it fit.
func (cl *client) enqueue(msg []byte) bool {
	select {
	case cl.send <- msg:
		return true
	default:
		return false
	}
}

// Hub tracks WebSocket clients, applies their commands to the engine and
// pushes a fresh state frame to every client after each engine event.
type Hub struct {
	engine   *simulation.Engine
	limiter  *ratelimit.Limiter
	interval time.Duration
	logger   *slog.Logger

	mu      sync.Mutex
	clients map[string]*client
	closed  bool

	unsubscribe func()
}

// NewHub subscribes a hub to e. limiter may be nil to disable throttling.
func NewHub(e *simulation.Engine, limiter *ratelimit.Limiter, interval time.Duration, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Hub{
		engine:   e,
		limiter:  limiter,
		interval: interval,
		logger:   logger,
		clients:  make(map[string]*client),
	}
	h.unsubscribe = e.Subscribe(func(simulation.Event) { h.Broadcast() })
	return h
}

// Len returns the number of connected clients.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close unsubscribes from the engine and disconnects every client. It is
// safe to call more than once.
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	for _, cl := range h.clients {
		cl.conn.Close()
	}
	h.mu.Unlock()
	h.unsubscribe()
}

// Broadcast sends the current state to every client. Clients whose queue is
// full miss this frame.
func (h *Hub) Broadcast() {
	if h.Len() == 0 {
		return
	}
	msg, err := h.stateMessage()
	if err != nil {
		h.logger.Error("encoding state frame", "error", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for _, cl := range h.clients {
		if !cl.enqueue(msg) {
			h.logger.Debug("dropping frame for slow client", "client", cl.id)
		}
	}
}

func (h *Hub) stateMessage() ([]byte, error) {
	snap := h.engine.State()
	stats := h.engine.Stats()
	return json.Marshal(Message{Type: "state", State: &snap, Stats: &stats})
}

// ServeWS upgrades the request and serves one client until it disconnects.
func (h *Hub) ServeWS(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("failed to upgrade the websocket", "error", err)
		return
	}

	cl := &client{id: uuid.New().String(), conn: conn, send: make(chan []byte, sendBuffer)}
	if !h.register(cl) {
		conn.Close()
		return
	}
	h.logger.Info("websocket client connected", "client", cl.id)

	done := make(chan struct{})
	go h.writePump(cl, done)

	h.reply(cl, Message{Type: "session", ClientID: cl.id})
	if msg, err := h.stateMessage(); err == nil {
		cl.enqueue(msg)
	}

	h.readPump(cl)
	h.unregister(cl)
	<-done
	h.logger.Info("websocket client disconnected", "client", cl.id)
}

func (h *Hub) register(cl *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[cl.id] = cl
	return true
}

// unregister removes cl and closes its queue, which stops its writer.
func (h *Hub) unregister(cl *client) {
	h.mu.Lock()
	if _, ok := h.clients[cl.id]; ok {
		delete(h.clients, cl.id)
		close(cl.send)
	}
	h.mu.Unlock()

	if h.limiter != nil {
		h.limiter.ForgetPrefix(cl.id + "|")
	}
}

func (h *Hub) writePump(cl *client, done chan<- struct{}) {
	defer close(done)
	defer cl.conn.Close()
	for msg := range cl.send {
		cl.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := cl.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			h.logger.Warn("failed to write websocket frame", "client", cl.id, "error", err)
			return
		}
	}
	cl.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
}

func (h *Hub) readPump(cl *client) {
	cl.conn.SetReadLimit(maxMessageSize)
	for {
		var req Request
		if err := cl.conn.ReadJSON(&req); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("websocket read", "client", cl.id, "error", err)
			}
			return
		}
		if err := h.handle(cl, req); err != nil {
			h.logger.Debug("websocket command rejected", "client", cl.id, "action", req.Action, "error", err)
			h.reply(cl, Message{Type: "error", Action: req.Action, Error: err.Error()})
		}
	}
}

func (h *Hub) reply(cl *client, m Message) {
	msg, err := json.Marshal(m)
	if err != nil {
		h.logger.Error("encoding reply", "error", err)
		return
	}
	cl.enqueue(msg)
}

// handle applies one client command. Successful commands are reported back
// through the state broadcast their engine event triggers.
func (h *Hub) handle(cl *client, req Request) error {
	if h.limiter != nil {
		if err := h.limiter.Check(cl.id + "|" + req.Action); err != nil {
			return err
		}
	}

	switch req.Action {
	case "state":
		msg, err := h.stateMessage()
		if err != nil {
			return err
		}
		cl.enqueue(msg)
		return nil
	case "step":
		count := 1
		if req.Count != nil {
			count = *req.Count
		}
		return h.engine.Tick(count)
	case "set_node_count":
		if req.Count == nil {
			return missing("count")
		}
		_, _, err := h.engine.SetPopulation(*req.Count)
		return err
	case "reconnect":
		if req.ConnectProb == nil {
			return missing("connect_prob")
		}
		return h.engine.Reconnect(*req.ConnectProb)
	case "add_node":
		_, err := h.engine.AddEntity()
		return err
	case "remove_node":
		h.engine.RemoveEntity()
		return nil
	case "rotate_phase_all":
		return h.engine.RotateAll(req.Angle)
	case "set_params":
		u := simulation.ParamUpdate{
			ConnectProb:      req.ConnectProb,
			CollapseChance:   req.CollapseChance,
			InterferenceGain: req.InterferenceGain,
		}
		if u.Empty() {
			return fmt.Errorf("%w: no parameters given", simulation.ErrInvalidParameter)
		}
		return h.engine.SetParameters(u)
	case "pause":
		h.engine.Stop()
		return nil
	case "resume":
		h.engine.Start(h.interval)
		return nil
	default:
		return fmt.Errorf("%w: unknown action %q", simulation.ErrInvalidParameter, req.Action)
	}
}

func missing(field string) error {
	return fmt.Errorf("%w: %s is required", simulation.ErrInvalidParameter, field)
}
