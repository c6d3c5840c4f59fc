package ws

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"InsiderSignals/internal/domain/models"
	domrepo "InsiderSignals/internal/domain/repository"
	xlogger "InsiderSignals/pkg/logger"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

// ClientMessage changes the tickers a connection receives. An empty
// subscription receives every signal.
type ClientMessage struct {
	Type    string   `json:"type"`
	Tickers []string `json:"tickers"`
}

// RunEvent is pushed to every subscriber after a run commits, and as the
// daily digest with Type "daily_digest".
type RunEvent struct {
	Type       string             `json:"type"`
	RunID      string             `json:"run_id,omitempty"`
	AsOf       time.Time          `json:"as_of"`
	Scope      string             `json:"scope,omitempty"`
	CashPct    float64            `json:"cash_pct"`
	Signals    []models.Signal    `json:"signals"`
	Allocation *models.Allocation `json:"allocation,omitempty"`
}

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
	sendBuffer = 16
)

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type client struct {
	conn *websocket.Conn
	send chan RunEvent

	mu      sync.RWMutex
	tickers map[string]struct{}
}

func (c *client) wants(ticker string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.tickers) == 0 {
		return true
	}
	_, ok := c.tickers[ticker]
	return ok
}

func (c *client) setTickers(tickers []string) {
	m := make(map[string]struct{}, len(tickers))
	for _, t := range tickers {
		if t = strings.ToUpper(strings.TrimSpace(t)); t != "" {
			m[t] = struct{}{}
		}
	}
	c.mu.Lock()
	c.tickers = m
	c.mu.Unlock()
}

// Hub fans committed runs out to WebSocket subscribers. A subscriber whose
// buffer is full is disconnected rather than blocking the run.
type Hub struct {
	mu      sync.RWMutex
	clients map[*client]struct{}
	l       *xlogger.Logger
}

func NewHub(l *xlogger.Logger) *Hub {
	if l == nil {
		l = xlogger.Nop()
	}
	return &Hub{clients: make(map[*client]struct{}), l: l}
}

func (h *Hub) RegisterRoutes(e *echo.Echo) {
	e.GET("/ws/signals", h.Serve)
}

// Clients reports the number of connected subscribers.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) Serve(c echo.Context) error {
	conn, err := wsUpgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		h.l.Warn("ws upgrade failed", xlogger.Error(err))
		return nil
	}
	cl := &client{conn: conn, send: make(chan RunEvent, sendBuffer)}
	if t := c.QueryParam("tickers"); t != "" {
		cl.setTickers(strings.Split(t, ","))
	}

	h.mu.Lock()
	h.clients[cl] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.l.Debug("ws client connected", xlogger.String("remote", c.RealIP()), xlogger.Int("clients", n))

	go h.writePump(cl)
	h.readPump(cl)
	return nil
}

func (h *Hub) remove(cl *client) {
	h.mu.Lock()
	if _, ok := h.clients[cl]; ok {
		delete(h.clients, cl)
		close(cl.send)
	}
	h.mu.Unlock()
}

func (h *Hub) readPump(cl *client) {
	defer func() {
		h.remove(cl)
		_ = cl.conn.Close()
	}()
	cl.conn.SetReadLimit(4096)
	_ = cl.conn.SetReadDeadline(time.Now().Add(pongWait))
	cl.conn.SetPongHandler(func(string) error {
		return cl.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		var msg ClientMessage
		if err := cl.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.l.Debug("ws read error", xlogger.Error(err))
			}
			return
		}
		switch msg.Type {
		case "subscribe":
			cl.setTickers(msg.Tickers)
		case "unsubscribe":
			cl.setTickers(nil)
		}
	}
}

func (h *Hub) writePump(cl *client) {
	ping := time.NewTicker(pingPeriod)
	defer func() {
		ping.Stop()
		_ = cl.conn.Close()
	}()
	for {
		select {
		case ev, ok := <-cl.send:
			_ = cl.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = cl.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			if err := cl.conn.WriteJSON(ev); err != nil {
				return
			}
		case <-ping.C:
			_ = cl.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := cl.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// NotifyRun implements repository.Notifier.
func (h *Hub) NotifyRun(_ context.Context, run *models.RunResult) error {
	h.broadcast(RunEvent{
		Type:    "signal_run",
		RunID:   run.RunID,
		AsOf:    run.AsOf,
		Scope:   run.Scope,
		CashPct: run.Allocation.CashPct,
	}, run.Signals)
	return nil
}

// PublishDigest implements repository.DigestPublisher.
func (h *Hub) PublishDigest(_ context.Context, d *models.Digest) error {
	alloc := d.Allocation
	h.broadcast(RunEvent{
		Type:       "daily_digest",
		AsOf:       d.AsOf,
		CashPct:    alloc.CashPct,
		Allocation: &alloc,
	}, d.Top)
	return nil
}

// broadcast sends base with each client's share of signals.
func (h *Hub) broadcast(base RunEvent, signals []models.Signal) {
	h.mu.RLock()
	var slow []*client
	for cl := range h.clients {
		ev := base
		ev.Signals = make([]models.Signal, 0, len(signals))
		for _, s := range signals {
			if cl.wants(s.Ticker) {
				ev.Signals = append(ev.Signals, s)
			}
		}
		select {
		case cl.send <- ev:
		default:
			slow = append(slow, cl)
		}
	}
	h.mu.RUnlock()

	for _, cl := range slow {
		h.l.Warn("ws client too slow, disconnecting", xlogger.String("event", base.Type))
		h.remove(cl)
	}
}

// Close disconnects every subscriber.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for cl := range h.clients {
		delete(h.clients, cl)
		close(cl.send)
	}
}

var (
	_ domrepo.Notifier        = (*Hub)(nil)
	_ domrepo.DigestPublisher = (*Hub)(nil)
)
