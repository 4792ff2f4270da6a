package handlers

import (
	"net/http"
	"time"

	"cauldronwatch/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// Send/receive timing configuration and message size limits.
const (
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingPeriod   = (pongWait * 9) / 10
	maxMsgSize   = 1 << 12 // 4 KB
	pushDebounce = 100 * time.Millisecond
)

// Envelope used for WebSocket messages.
type wsEnvelope struct {
	Type  string      `json:"type"`
	Data  interface{} `json:"data,omitempty"`
	Error string      `json:"error,omitempty"`
}

// statePayload is the downstream push body: current cauldrons, alerts and
// the synthesized live history column.
type statePayload struct {
	Cauldrons  interface{} `json:"cauldrons"`
	Alerts     interface{} `json:"alerts"`
	Live       interface{} `json:"live"`
	LastUpdate int64       `json:"last_update"`
	Degraded   bool        `json:"degraded"`
}

// Upgrader for HTTP -> WebSocket. Consider tightening CheckOrigin in production.
var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsConnect pushes store state to the client. Pushes are driven by store
// change notifications, debounced so update bursts collapse into one frame.
func (h *Handler) wsConnect(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		if h.log != nil {
			h.log.Errorw("ws_upgrade_failed", "err", err)
		}
		return
	}
	defer func() { _ = conn.Close() }()

	conn.SetReadLimit(maxMsgSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	// Reader goroutine to handle control frames and detect disconnects.
	done := make(chan struct{})
	go h.startReader(conn, done)

	// Store changes arrive coalesced on notify; the debouncer adds the
	// trailing quiet period before a push.
	notify, cancel := h.store.Subscribe()
	defer cancel()

	push := make(chan struct{}, 1)
	deb := store.NewDebouncer(pushDebounce, func() {
		select {
		case push <- struct{}{}:
		default:
		}
	})
	defer deb.Stop()

	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	// Send initial state immediately.
	if err := h.sendState(conn); err != nil {
		if h.log != nil {
			h.log.Infow("ws_write_failed_initial", "err", err)
		}
		return
	}

	for {
		select {
		case <-done:
			return
		case <-c.Request.Context().Done():
			return
		case <-notify:
			deb.Trigger()
		case <-push:
			if err := h.sendState(conn); err != nil {
				if h.log != nil {
					h.log.Infow("ws_write_failed", "err", err)
				}
				return
			}
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				if h.log != nil {
					h.log.Infow("ws_ping_failed", "err", err)
				}
				return
			}
		}
	}
}

// Helper: startReader drains incoming messages to handle control frames and detect closure.
func (h *Handler) startReader(conn *websocket.Conn, done chan<- struct{}) {
	defer close(done)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if h.log != nil {
				h.log.Infow("ws_read_closed", "err", err)
			}
			return
		}
	}
}

// Helper: sendState snapshots the store and writes it with a write deadline.
func (h *Handler) sendState(conn *websocket.Conn) error {
	payload := statePayload{
		Cauldrons:  h.store.Cauldrons(),
		Alerts:     h.store.Alerts(),
		Live:       h.store.LiveSnapshot(),
		LastUpdate: h.store.LastUpdate(),
		Degraded:   h.store.Degraded(),
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(wsEnvelope{Type: "state", Data: payload})
}
