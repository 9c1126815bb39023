package gateway

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"time"

	"chartdesk/internal/chart"
	"chartdesk/internal/datasource"
	"chartdesk/internal/indicator"
	"chartdesk/internal/model"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin:       func(r *http.Request) bool { return true },
	EnableCompression: true,
}

// SetCORS sets CORS headers for REST endpoints.
func SetCORS(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	SetCORS(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[gateway] encode response: %v", err)
	}
}

// RegisterRoutes registers the WebSocket and REST endpoints on mux. journal
// may be nil when the fetch journal is disabled.
func RegisterRoutes(mux *http.ServeMux, hub *Hub, journal model.JournalReader, processStart time.Time) {
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("[gateway] ws upgrade error: %v", err)
			return
		}
		hub.HandleWSRequest(conn, r.URL.Query().Get("client"))
	})

	mux.HandleFunc("/api/intervals", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, datasource.Resolutions())
	})

	mux.HandleFunc("/api/styles", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, chart.Styles())
	})

	mux.HandleFunc("/api/indicators", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, indicator.All())
	})

	mux.HandleFunc("/api/sessions", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, hub.Sessions())
	})

	mux.HandleFunc("/api/stats", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, hub.Stats(processStart))
	})

	// GET /api/provenance?since=24h        per-symbol real vs synthetic counts
	// GET /api/provenance?recent=50        latest fetch records
	mux.HandleFunc("/api/provenance", func(w http.ResponseWriter, r *http.Request) {
		if journal == nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "fetch journal disabled"})
			return
		}
		q := r.URL.Query()

		if v := q.Get("recent"); v != "" {
			limit, err := strconv.Atoi(v)
			if err != nil || limit <= 0 || limit > 1000 {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "recent must be 1..1000"})
				return
			}
			recs, err := journal.Recent(r.Context(), limit)
			if err != nil {
				writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
				return
			}
			writeJSON(w, http.StatusOK, recs)
			return
		}

		window := 24 * time.Hour
		if v := q.Get("since"); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil || d <= 0 {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "since must be a positive duration"})
				return
			}
			window = d
		}
		sum, err := journal.Summary(r.Context(), time.Now().Add(-window))
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, sum)
	})

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"status":     "ok",
			"ws_clients": hub.ClientCount(),
			"uptime_sec": int64(time.Since(processStart).Seconds()),
			"ts":         time.Now().UTC().Format(time.RFC3339Nano),
		})
	})
}
