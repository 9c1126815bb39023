package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"chartdesk/internal/chart"
	"chartdesk/internal/indicator"
	"chartdesk/internal/model"
	"chartdesk/internal/panesync"

	"github.com/gorilla/websocket"
)

const (
	sendQueueSize = 256
	writeWait     = 10 * time.Second
	pongWait      = 60 * time.Second
	pingPeriod    = 30 * time.Second
	maxMessage    = 4096
)

// Client is one browser connection. It is the chart.Host of its session:
// sinks, layout, range and status updates become WebSocket frames.
type Client struct {
	conn    *websocket.Conn
	hub     *Hub
	session *chart.Session
	prefKey string

	sendMu sync.Mutex
	send   chan []byte
	closed bool
	held   map[string][]byte // newest SET_DATA per sink that did not fit in send

	prefMu sync.Mutex
	prefs  Preferences

	pendingMu sync.Mutex
	pending   time.Time // oldest unanswered command
}

func newClient(h *Hub, conn *websocket.Conn, prefKey string) *Client {
	return &Client{
		conn:    conn,
		hub:     h,
		prefKey: prefKey,
		send:    make(chan []byte, sendQueueSize),
		held:    make(map[string][]byte),
	}
}

// Session returns the client's chart session.
func (c *Client) Session() *chart.Session { return c.session }

// ── chart.Host ──

func (c *Client) NewSink(spec chart.SinkSpec) chart.Sink {
	return &wsSink{client: c, spec: spec}
}

func (c *Client) Layout(heights []panesync.Height) {
	c.sendJSON(LayoutMsg{Type: OutLayout, Panes: heights})
}

func (c *Client) SyncRanges(updates []panesync.Update) {
	c.sendJSON(RangeMsg{Type: OutRange, Updates: updates})
}

func (c *Client) Status(snap chart.Snapshot) {
	c.pendingMu.Lock()
	if !c.pending.IsZero() && snap.State != chart.StateLoading {
		c.hub.Latency.Record(time.Since(c.pending))
		c.pending = time.Time{}
	}
	c.pendingMu.Unlock()
	c.sendJSON(StatusMsg{Type: OutStatus, Status: snap})
}

// ── outbound ──

func (c *Client) sendJSON(v any) {
	if msg, ok := marshalFrame(v); ok {
		c.enqueue(msg)
	}
}

func marshalFrame(v any) ([]byte, bool) {
	msg, err := json.Marshal(v)
	if err != nil {
		log.Printf("[gateway] marshal %T: %v", v, err)
		return nil, false
	}
	return msg, true
}

// enqueue never blocks the session loop: a full queue drops the frame.
func (c *Client) enqueue(msg []byte) bool {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- msg:
		if c.hub.prom != nil {
			c.hub.prom.WSMessagesSent.Inc()
		}
		return true
	default:
		if c.hub.prom != nil {
			c.hub.prom.WSDrops.Inc()
		}
		return false
	}
}

// enqueueData queues a SET_DATA frame for sink. When the queue is full the
// frame is held instead, replacing any older held frame for the same sink, and
// the write pump sends it once the queue drains.
func (c *Client) enqueueData(sink string, msg []byte) {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.send <- msg:
		delete(c.held, sink)
		if c.hub.prom != nil {
			c.hub.prom.WSMessagesSent.Inc()
		}
	default:
		c.held[sink] = msg
		if c.hub.prom != nil {
			c.hub.prom.WSDrops.Inc()
		}
	}
}

// release discards the held frame of a disposed sink.
func (c *Client) release(sink string) {
	c.sendMu.Lock()
	delete(c.held, sink)
	c.sendMu.Unlock()
}

// takeHeld returns and clears the held SET_DATA frames.
func (c *Client) takeHeld() [][]byte {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if len(c.held) == 0 {
		return nil
	}
	out := make([][]byte, 0, len(c.held))
	for sink, msg := range c.held {
		out = append(out, msg)
		delete(c.held, sink)
	}
	return out
}

func (c *Client) closeSend() {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

func (c *Client) sendError(reqID, format string, args ...any) {
	c.sendJSON(ErrorMsg{Type: OutError, ReqID: reqID, Error: fmt.Sprintf(format, args...)})
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			// coalesce queued frames, newline separated
			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(msg)
			n := len(c.send)
			for i := 0; i < n; i++ {
				next, ok := <-c.send
				if !ok {
					break
				}
				w.Write([]byte{'\n'})
				w.Write(next)
			}
			for _, held := range c.takeHeld() {
				w.Write([]byte{'\n'})
				w.Write(held)
			}
			if err := w.Close(); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.RemoveClient(c)
		c.conn.Close()
		log.Printf("[gateway] ws client disconnected session=%s", c.session.ID())
	}()

	c.conn.SetReadLimit(maxMessage)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var msg InboundMsg
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.sendError("", "invalid message: %v", err)
			continue
		}
		c.handle(msg)
	}
}

// handle dispatches one browser message to the session.
func (c *Client) handle(msg InboundMsg) {
	switch msg.Type {
	case MsgSetSymbol:
		sym := strings.ToUpper(strings.TrimSpace(msg.Symbol))
		if sym == "" {
			c.sendError(msg.ReqID, "symbol is required")
			return
		}
		c.markPending()
		c.session.SetSymbol(sym)
		c.updatePrefs(func(p *Preferences) { p.Symbol = sym })

	case MsgSetInterval:
		c.markPending()
		c.session.SetInterval(msg.Interval)
		c.updatePrefs(func(p *Preferences) { p.Interval = msg.Interval })

	case MsgSetStyle:
		st, err := chart.ParseStyle(msg.Style)
		if err != nil {
			c.sendError(msg.ReqID, "%v", err)
			return
		}
		c.markPending()
		c.session.SetChartStyle(st)
		c.updatePrefs(func(p *Preferences) { p.Style = string(st) })

	case MsgSetIndicators:
		ids := make([]indicator.ID, 0, len(msg.Indicators))
		names := make([]string, 0, len(msg.Indicators))
		for _, name := range msg.Indicators {
			id, err := indicator.ParseID(name)
			if err != nil {
				c.sendError(msg.ReqID, "%v", err)
				continue
			}
			ids = append(ids, id)
			names = append(names, string(id))
		}
		c.markPending()
		c.session.SetActiveIndicators(ids)
		c.updatePrefs(func(p *Preferences) { p.Indicators = names })

	case MsgVisibleRange:
		pane := msg.Pane
		if pane == "" {
			pane = panesync.Primary
		}
		c.session.VisibleRangeChanged(pane, model.Range{From: msg.From, To: msg.To})

	case MsgCrosshair:
		c.session.Crosshair(msg.Time)

	case MsgClick:
		c.session.Click(msg.Pane, msg.X)

	case MsgRefresh:
		c.session.Refresh()

	default:
		if msg.Ping > 0 {
			c.sendJSON(map[string]any{"type": "pong", "ping": msg.Ping, "server_ts": time.Now().UnixMilli()})
			return
		}
		c.sendError(msg.ReqID, "unknown message type %q", msg.Type)
	}
}

func (c *Client) markPending() {
	c.pendingMu.Lock()
	if c.pending.IsZero() {
		c.pending = time.Now()
	}
	c.pendingMu.Unlock()
}

func (c *Client) updatePrefs(fn func(*Preferences)) {
	if c.prefKey == "" {
		return
	}
	c.prefMu.Lock()
	fn(&c.prefs)
	p := c.prefs
	c.prefMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	c.hub.prefs.Save(ctx, c.prefKey, p)
}
