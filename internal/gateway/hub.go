// Package gateway serves charts over WebSocket: each connection gets its own
// chart session, and the connection is that session's host.
package gateway

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"chartdesk/internal/chart"
	"chartdesk/internal/indicator"
	"chartdesk/internal/markethours"
	"chartdesk/internal/metrics"

	"github.com/gorilla/websocket"
)

// HubConfig wires a Hub.
type HubConfig struct {
	Fetcher chart.Fetcher
	Prefs   *PrefStore
	Metrics *metrics.Metrics
	Health  *metrics.HealthStatus
}

// Hub tracks connected browsers and their sessions.
type Hub struct {
	fetcher chart.Fetcher
	prefs   *PrefStore
	prom    *metrics.Metrics
	health  *metrics.HealthStatus

	mu      sync.RWMutex
	clients map[*Client]bool

	Latency *LatencyTracker
}

// NewHub creates a Hub. Prefs defaults to an in-memory store.
func NewHub(cfg HubConfig) *Hub {
	if cfg.Prefs == nil {
		cfg.Prefs = NewPrefStore(nil, Preferences{})
	}
	return &Hub{
		fetcher: cfg.Fetcher,
		prefs:   cfg.Prefs,
		prom:    cfg.Metrics,
		health:  cfg.Health,
		clients: make(map[*Client]bool),
		Latency: NewLatencyTracker(4096),
	}
}

// HandleWSRequest attaches a chart session to an upgraded connection.
// prefKey identifies the browser for preference restore; empty disables it.
func (h *Hub) HandleWSRequest(conn *websocket.Conn, prefKey string) *Client {
	c := newClient(h, conn, prefKey)
	p := h.prefs.Load(context.Background(), prefKey)
	c.prefs = p

	style, err := chart.ParseStyle(p.Style)
	if err != nil {
		style = chart.DefaultStyle
	}
	var ids []indicator.ID
	for _, name := range p.Indicators {
		if id, err := indicator.ParseID(name); err == nil {
			ids = append(ids, id)
		}
	}

	c.session = chart.NewSession(chart.Config{
		Fetcher:    h.fetcher,
		Host:       c,
		Metrics:    h.prom,
		Symbol:     p.Symbol,
		Interval:   p.Interval,
		Style:      style,
		Indicators: ids,
	})
	c.session.OnCrosshairMove(func(ch chart.Crosshair) {
		c.sendJSON(CrosshairMsg{Type: OutCrosshair, Crosshair: ch})
	})
	c.session.OnPaneClick(func(cl chart.Click) {
		c.sendJSON(ClickMsg{Type: OutClick, Click: cl})
	})

	conn.EnableWriteCompression(true)

	h.mu.Lock()
	h.clients[c] = true
	count := len(h.clients)
	h.mu.Unlock()
	if h.health != nil {
		h.health.SetSessions(count)
	}

	log.Printf("[gateway] ws client connected session=%s (%d total)", c.session.ID(), count)

	go c.writePump()
	go c.readPump()
	return c
}

// RemoveClient closes the client's session and its send queue.
func (h *Hub) RemoveClient(c *Client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	count := len(h.clients)
	h.mu.Unlock()
	if !ok {
		return
	}
	if h.health != nil {
		h.health.SetSessions(count)
	}
	c.session.Close()
	c.closeSend()
}

// ClientCount returns the number of connected browsers.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) snapshotClients() []*Client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		out = append(out, c)
	}
	return out
}

// Sessions returns a snapshot of every live session.
func (h *Hub) Sessions() []chart.Snapshot {
	clients := h.snapshotClients()
	out := make([]chart.Snapshot, 0, len(clients))
	for _, c := range clients {
		out = append(out, c.session.Snapshot())
	}
	return out
}

// RefreshAll asks every live session to pull its newest bars. Returns the
// number of sessions asked.
func (h *Hub) RefreshAll() int {
	return h.RefreshWhere(nil)
}

// RefreshWhere refreshes the sessions whose symbol satisfies keep; nil keeps
// all. Sessions without a symbol are skipped.
func (h *Hub) RefreshWhere(keep func(symbol string) bool) int {
	n := 0
	for _, c := range h.snapshotClients() {
		sym := c.session.Snapshot().Symbol
		if sym == "" || (keep != nil && !keep(sym)) {
			continue
		}
		c.session.Refresh()
		n++
	}
	return n
}

// Close disconnects every client.
func (h *Hub) Close() {
	for _, c := range h.snapshotClients() {
		c.conn.Close()
		h.RemoveClient(c)
	}
}

// Stats returns the current server stats.
func (h *Hub) Stats(start time.Time) ServerStats {
	s := collectStats(start)
	now := time.Now()
	s.Sessions = h.ClientCount()
	s.LatencyP50, s.LatencyP95, s.LatencyP99 = h.Latency.Percentiles()
	s.MarketOpen = markethours.IsMarketOpen(now)
	s.Market = markethours.StatusString(now)
	return s
}

// StartStatsBroadcast sends server stats to every browser every interval
// until ctx is cancelled.
func (h *Hub) StartStatsBroadcast(ctx context.Context, start time.Time, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			msg, err := json.Marshal(map[string]any{"type": OutStats, "stats": h.Stats(start)})
			if err != nil {
				continue
			}
			for _, c := range h.snapshotClients() {
				c.enqueue(msg)
			}
		}
	}
}
