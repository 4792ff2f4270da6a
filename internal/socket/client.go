// Package socket maintains the persistent connection to the backend event
// stream and translates wire frames into typed domain events. Parsing is
// independent of any HTTP framework so it can be tested in isolation.
package socket

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"cauldronwatch"
	"cauldronwatch/internal/api"
	"cauldronwatch/internal/logger"

	"github.com/gorilla/websocket"
)

// EventType discriminates the domain events produced by the client.
type EventType string

const (
	EventLevelsUpdate EventType = "levels_update"
	EventDrain        EventType = "drain_event"
	EventDiscrepancy  EventType = "discrepancy"
	EventConnected    EventType = "connected"
)

// LevelItem is one normalized cauldron reading from a levels frame.
// Level is in liters; Capacity is already precedence-resolved.
type LevelItem struct {
	CauldronID string
	Name       string
	Level      float64
	Capacity   float64
}

// Event is a parsed inbound frame.
type Event struct {
	Type        EventType
	Levels      []LevelItem
	Drain       *cauldronwatch.DrainEvent
	Discrepancy *cauldronwatch.Discrepancy
}

// Handler receives every parsed event, in arrival order.
type Handler func(Event)

// Conn is the subset of *websocket.Conn the client needs; injectable in
// tests.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	Close() error
}

// Dialer opens a connection to the given URL.
type Dialer func(ctx context.Context, url string) (Conn, error)

// Reconnect tuning. Delays double from the base up to the ceiling; after
// maxReconnects consecutive failures the client surfaces a persistent
// unavailable state and stops (manual reload required).
const (
	defaultBaseDelay = 1 * time.Second
	defaultMaxDelay  = 30 * time.Second
	maxReconnects    = 5
)

// Client owns one logical connection to the backend event stream.
type Client struct {
	url     string
	dial    Dialer
	handler Handler
	onDown  func()
	log     *logger.Logger

	baseDelay time.Duration
	maxDelay  time.Duration

	mu     sync.Mutex
	conn   Conn
	closed bool
	quit   chan struct{}
}

// NewClient builds a client. handler receives every parsed event; onDown
// fires once when reconnect attempts are exhausted. Neither may be nil.
func NewClient(url string, handler Handler, onDown func(), log *logger.Logger) *Client {
	return &Client{
		url:       url,
		dial:      gorillaDial,
		handler:   handler,
		onDown:    onDown,
		log:       log,
		baseDelay: defaultBaseDelay,
		maxDelay:  defaultMaxDelay,
		quit:      make(chan struct{}),
	}
}

func gorillaDial(ctx context.Context, url string) (Conn, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// Run connects and pumps events until the context is canceled, Close is
// called, or reconnect attempts are exhausted. Run blocks; start it on its
// own goroutine.
func (c *Client) Run(ctx context.Context) {
	attempt := 0
	for {
		if c.isClosed() || ctx.Err() != nil {
			return
		}

		conn, err := c.dial(ctx, c.url)
		if err != nil {
			c.log.Warnw("ws_connect_failed", "err", err, "attempt", attempt)
		} else {
			c.setConn(conn)
			c.log.Infow("ws_connected", "url", c.url)
			if c.readLoop(conn) {
				// A connection that delivered traffic restarts the
				// consecutive-failure count.
				attempt = 0
			}
			c.clearConn()
		}

		if c.isClosed() || ctx.Err() != nil {
			return
		}

		attempt++
		if attempt > maxReconnects {
			c.log.Errorw("ws_reconnect_exhausted", "attempts", maxReconnects)
			c.onDown()
			return
		}
		delay := reconnectDelay(c.baseDelay, c.maxDelay, attempt)
		c.log.Warnw("ws_reconnecting", "attempt", attempt, "delay", delay)
		if !c.wait(ctx, delay) {
			return
		}
	}
}

// Close cancels any pending reconnect wait and closes the active
// connection. No handler callbacks fire after Close returns.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.quit)
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
}

// reconnectDelay doubles from base per attempt, capped at max.
func reconnectDelay(base, max time.Duration, attempt int) time.Duration {
	d := base << (attempt - 1)
	if d > max || d <= 0 {
		return max
	}
	return d
}

// readLoop pumps frames until the connection drops; it reports whether at
// least one frame was read, distinguishing a working connection that later
// closed from a dial that never produced anything.
func (c *Client) readLoop(conn Conn) bool {
	read := false
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if !c.isClosed() {
				c.log.Warnw("ws_read_closed", "err", err)
			}
			return read
		}
		read = true
		ev, ok, err := c.parseFrame(data)
		if err != nil {
			// One bad frame never terminates the connection.
			c.log.Warnw("ws_bad_frame_skipped", "err", err)
			continue
		}
		if !ok {
			continue // ping or other ignorable frame
		}
		if c.isClosed() {
			return read
		}
		c.handler(ev)
	}
}

// wire frame shapes, matching the backend's JSON text frames.
type frame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type wireLevel struct {
	CauldronID string  `json:"cauldron_id"`
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	Level      float64 `json:"level"`
	MaxVolume  float64 `json:"max_volume"`
	Capacity   float64 `json:"capacity"`
}

type wireCauldronUpdate struct {
	Cauldrons []wireLevel `json:"cauldrons"`
}

type wireDrain struct {
	CauldronID    string    `json:"cauldron_id"`
	StartTime     time.Time `json:"start_time"`
	VolumeDrained float64   `json:"volume_drained"`
}

type wireDiscrepancy struct {
	TicketID           string  `json:"ticket_id"`
	CauldronID         string  `json:"cauldron_id"`
	Severity           string  `json:"severity"`
	DiscrepancyPercent float64 `json:"discrepancy_percent"`
}

// parseFrame maps a wire frame to a domain event. ok is false for frames
// that carry nothing to forward (ping, unknown types).
func (c *Client) parseFrame(data []byte) (Event, bool, error) {
	var f frame
	if err := json.Unmarshal(data, &f); err != nil {
		return Event{}, false, fmt.Errorf("decode frame: %w", err)
	}

	switch f.Type {
	case "cauldron_update":
		var upd wireCauldronUpdate
		if err := json.Unmarshal(f.Data, &upd); err != nil {
			return Event{}, false, fmt.Errorf("decode cauldron_update: %w", err)
		}
		items := make([]LevelItem, 0, len(upd.Cauldrons))
		for _, w := range upd.Cauldrons {
			id := api.PickID(w.CauldronID, w.ID)
			if id == "" {
				c.log.Warnw("ws_level_missing_id_skipped", "name", w.Name)
				continue
			}
			items = append(items, LevelItem{
				CauldronID: id,
				Name:       w.Name,
				Level:      w.Level,
				Capacity:   api.PickCapacity(w.MaxVolume, w.Capacity),
			})
		}
		return Event{Type: EventLevelsUpdate, Levels: items}, true, nil

	case "drain_event":
		var w wireDrain
		if err := json.Unmarshal(f.Data, &w); err != nil {
			return Event{}, false, fmt.Errorf("decode drain_event: %w", err)
		}
		return Event{Type: EventDrain, Drain: &cauldronwatch.DrainEvent{
			CauldronID:    w.CauldronID,
			StartTime:     w.StartTime,
			VolumeDrained: w.VolumeDrained,
		}}, true, nil

	case "discrepancy":
		var w wireDiscrepancy
		if err := json.Unmarshal(f.Data, &w); err != nil {
			return Event{}, false, fmt.Errorf("decode discrepancy: %w", err)
		}
		return Event{Type: EventDiscrepancy, Discrepancy: &cauldronwatch.Discrepancy{
			TicketID:           w.TicketID,
			CauldronID:         w.CauldronID,
			Severity:           w.Severity,
			DiscrepancyPercent: w.DiscrepancyPercent,
		}}, true, nil

	case "connected":
		return Event{Type: EventConnected}, true, nil

	case "ping":
		return Event{}, false, nil

	default:
		return Event{}, false, nil
	}
}

func (c *Client) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Client) setConn(conn Conn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		_ = conn.Close()
		return
	}
	c.conn = conn
}

func (c *Client) clearConn() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn = nil
}

// wait sleeps for d, returning false if the client closed or the context
// was canceled first.
func (c *Client) wait(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-c.quit:
		return false
	case <-ctx.Done():
		return false
	}
}
