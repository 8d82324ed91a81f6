package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	diag "github.com/coreman2200/funtimes-scorelight/internal/diagnostics"
	"github.com/coreman2200/funtimes-scorelight/internal/keyboard"
	"github.com/coreman2200/funtimes-scorelight/internal/layout"
	"github.com/coreman2200/funtimes-scorelight/internal/led"
	"github.com/coreman2200/funtimes-scorelight/internal/session"
	"github.com/coreman2200/funtimes-scorelight/internal/tests"
)

const (
	writeWait  = 200 * time.Millisecond
	sendBuffer = 64
)

var upgrader = websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}

// Playhead is what the redraw loop reads. It never writes.
type Playhead interface {
	Position() float64
	Progress() float64
}

// client owns one connection. Messages go through a buffered queue drained
// by writeLoop; a full queue drops the message instead of blocking the sender.
type client struct {
	mu     sync.Mutex
	conn   *websocket.Conn
	send   chan []byte
	closed bool
}

func newClient(conn *websocket.Conn) *client {
	c := &client{conn: conn, send: make(chan []byte, sendBuffer)}
	go c.writeLoop()
	return c
}

func (c *client) writeLoop() {
	for b := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, b); err != nil {
			log.Debug().Err(err).Msg("ws write")
			c.conn.Close()
			for range c.send {
			}
			return
		}
	}
}

// offer queues b without blocking. It reports false when b was dropped.
func (c *client) offer(b []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- b:
		return true
	default:
		return false
	}
}

func (c *client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// Hub serves browser keyboards. It is a lighting collaborator: lit keys
// are pushed to every connected /ws/keys client.
type Hub struct {
	mu      sync.RWMutex
	FPS     int
	Session *session.Session
	Input   *keyboard.Input
	Head    Playhead

	// Strip and Keyboard back the runTest control; Strip may be nil.
	Strip    led.Driver
	Keyboard layout.Keyboard

	lit       map[int]bool
	frameID   uint64
	startTime time.Time
	clients   map[*client]bool
	testing   bool
}

func NewHub(sess *session.Session, in *keyboard.Input, head Playhead, fps int) *Hub {
	return &Hub{
		FPS:       fps,
		Session:   sess,
		Input:     in,
		Head:      head,
		lit:       map[int]bool{},
		startTime: time.Now(),
		clients:   map[*client]bool{},
	}
}

type keysMsg struct {
	Type    string `json:"type"`
	Indices []int  `json:"indices"`
}

type playheadMsg struct {
	Type     string  `json:"type"`
	FrameID  uint64  `json:"frame_id"`
	Beat     float64 `json:"beat"`
	Progress float64 `json:"progress"`
}

func (h *Hub) Light(indices []int) { h.setLit(indices, true) }
func (h *Hub) Dim(indices []int)   { h.setLit(indices, false) }

// setLit updates the lit set and queues the change under one lock, so
// clients see changes in the order they were applied.
func (h *Hub) setLit(indices []int, on bool) {
	typ := "dim"
	if on {
		typ = "light"
	}
	b, _ := json.Marshal(keysMsg{Type: typ, Indices: indices})
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, i := range indices {
		if on {
			h.lit[i] = true
		} else {
			delete(h.lit, i)
		}
	}
	h.offerAll(b)
}

// Lit returns the lit indices in ascending order.
func (h *Hub) Lit() []int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.litLocked()
}

func (h *Hub) litLocked() []int {
	out := make([]int, 0, len(h.lit))
	for i := range h.lit {
		out = append(out, i)
	}
	sort.Ints(out)
	return out
}

func (h *Hub) broadcast(b []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	h.offerAll(b)
}

// offerAll never blocks; a client that has fallen behind loses b. Caller
// holds h.mu.
func (h *Hub) offerAll(b []byte) {
	for c := range h.clients {
		if !c.offer(b) {
			log.Debug().Msg("keys client behind, message dropped")
		}
	}
}

// RunRedrawLoop pushes the playhead at FPS while it moves.
func (h *Hub) RunRedrawLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Second / time.Duration(max(1, h.FPS)))
	defer ticker.Stop()
	last := -1.0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if h.Head == nil {
			continue
		}
		beat := h.Head.Position()
		if beat == last {
			continue
		}
		last = beat
		h.mu.Lock()
		h.frameID++
		id := h.frameID
		h.mu.Unlock()
		b, _ := json.Marshal(playheadMsg{Type: "playhead", FrameID: id, Beat: beat, Progress: h.Head.Progress()})
		h.broadcast(b)
	}
}

func (h *Hub) HandleKeysWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	c := newClient(conn)
	hello := h.hello()
	h.mu.Lock()
	hello["lit"] = h.litLocked()
	b, _ := json.Marshal(hello)
	c.offer(b)
	h.clients[c] = true
	h.mu.Unlock()

	go func() {
		defer func() {
			h.mu.Lock()
			delete(h.clients, c)
			h.mu.Unlock()
			c.close()
			conn.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// hello describes the keyboard. The lit set is added under the hub lock so
// no light or dim can slip between it and the client's registration.
func (h *Hub) hello() map[string]any {
	hello := map[string]any{"type": "hello"}
	if h.Session != nil {
		km := h.Session.Keymap()
		hello["keymap"] = km
		hello["leftmost_index"] = km.Window.LeftmostIndex(km.Base)
		hello["keys"] = km.Window.Keys()
	}
	return hello
}

func (h *Hub) HandleDiagWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	c := newClient(conn)
	recent, ch, cancel := h.Session.Diagnostics().Subscribe()
	for _, d := range recent {
		b, _ := json.Marshal(d)
		c.offer(b)
	}
	go func() {
		for d := range ch {
			b, _ := json.Marshal(d)
			if !c.offer(b) {
				log.Debug().Str("code", d.Code).Msg("diag client behind, message dropped")
			}
		}
	}()
	go func() {
		defer func() {
			cancel()
			c.close()
			conn.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (h *Hub) HandleHealth(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	resp := map[string]any{
		"frame_id": h.frameID,
		"uptime_s": time.Since(h.startTime).Seconds(),
		"clients":  len(h.clients),
		"fps":      h.FPS,
		"lit":      len(h.lit),
	}
	h.mu.RUnlock()
	if h.Session != nil {
		resp["state"] = h.Session.Status().State
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func (h *Hub) pushDiag(d diag.Diagnostic) {
	if h.Session != nil {
		h.Session.Diagnostics().Push(d)
	}
}

// runTest plays a light test pattern on the strip in the background.
func (h *Hub) runTest(name string) {
	kind, err := tests.ParseKind(name)
	if err != nil {
		h.pushDiag(diag.Diagnostic{
			Severity: diag.Warn, Code: "TEST.UNKNOWN", Summary: "Unknown test name",
			Evidence: map[string]any{"name": name},
		})
		return
	}
	h.mu.Lock()
	if h.Strip == nil || h.testing {
		busy := h.testing
		h.mu.Unlock()
		h.pushDiag(diag.Diagnostic{Severity: diag.Warn, Code: "TEST.UNAVAILABLE", Summary: "No strip to test or a test is running",
			Evidence: map[string]any{"busy": busy}})
		return
	}
	h.testing = true
	drv, kb := h.Strip, h.Keyboard
	h.mu.Unlock()

	h.pushDiag(diag.Diagnostic{Severity: diag.Info, Code: "TEST.RUNNING", Summary: "Running test", Detail: name})
	go func() {
		err := tests.Run(context.Background(), drv, kb, tests.Plan{Kind: kind}, 60*time.Millisecond)
		h.mu.Lock()
		h.testing = false
		h.mu.Unlock()
		if err != nil {
			h.pushDiag(diag.Diagnostic{Severity: diag.Err, Code: "TEST.FAILED", Summary: "Test failed", Detail: err.Error()})
			return
		}
		h.pushDiag(diag.Diagnostic{Severity: diag.Info, Code: "TEST.DONE", Summary: "Test complete"})
	}()
}
