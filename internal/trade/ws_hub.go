// Package trade — WebSocket hub for live candle streaming.
package trade

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tradelab/sim-engine/internal/metrics"
	"github.com/tradelab/sim-engine/internal/model"
	"github.com/tradelab/sim-engine/internal/session"
)

// WSMessage is a JSON message sent to WebSocket clients. Candle carries the
// current in-progress aggregate-timeframe bar, delivered at the session's
// emit cadence rather than on every tick.
type WSMessage struct {
	Type          string       `json:"type"`
	InstrumentKey string       `json:"instrument_key"`
	Timeframe     string       `json:"timeframe"`
	Candle        model.Candle `json:"candle"`
}

// wsClient serializes writes to one connection: candle pushes and pings
// come from different goroutines.
type wsClient struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *wsClient) writeJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(v)
}

func (c *wsClient) writeControl(messageType int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteMessage(messageType, nil)
}

// WSHub upgrades WebSocket requests and bridges session candle
// subscriptions onto connections.
type WSHub struct {
	sessions *session.Manager

	mu      sync.Mutex
	clients map[*wsClient]func() // client → unsubscribe
}

// NewWSHub creates a new WebSocket hub.
func NewWSHub(sessions *session.Manager) *WSHub {
	return &WSHub{
		sessions: sessions,
		clients:  make(map[*wsClient]func()),
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		return true // Allow all origins during development.
	},
}

// HandleWS handles WebSocket upgrade requests at GET /api/v1/ws.
// Query parameters: user_id, instrument.
func (h *WSHub) HandleWS(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	instrument := r.URL.Query().Get("instrument")
	if userID == "" || instrument == "" {
		writeError(w, "user_id and instrument are required", http.StatusBadRequest)
		return
	}

	sess, err := h.sessions.Session(r.Context(), userID)
	if err != nil {
		writeError(w, err.Error(), statusFor(err))
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("ws upgrade failed", "err", err)
		return
	}

	client := &wsClient{conn: conn}
	unsubscribe, err := sess.Subscribe(instrument, func(bar model.Candle) {
		msg := WSMessage{
			Type:          "candle",
			InstrumentKey: instrument,
			Timeframe:     sess.Timeframe().String(),
			Candle:        bar,
		}
		if err := client.writeJSON(msg); err != nil {
			h.drop(client)
		}
	})
	if err != nil {
		conn.WriteJSON(map[string]string{"error": err.Error()})
		conn.Close()
		return
	}

	h.mu.Lock()
	h.clients[client] = unsubscribe
	total := len(h.clients)
	h.mu.Unlock()
	metrics.WebSocketClients.Inc()
	slog.Info("ws client connected", "user", userID, "instrument", instrument, "total", total)

	// Read pump: keep connection alive and detect disconnects.
	go func() {
		defer h.drop(client)
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		conn.SetPongHandler(func(string) error {
			conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			return nil
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
	}()

	// Ping ticker to keep connection alive through proxies.
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for range ticker.C {
			h.mu.Lock()
			_, ok := h.clients[client]
			h.mu.Unlock()
			if !ok {
				return
			}
			if err := client.writeControl(websocket.PingMessage); err != nil {
				h.drop(client)
				return
			}
		}
	}()
}

// drop unsubscribes and closes a client. Idempotent.
func (h *WSHub) drop(client *wsClient) {
	h.mu.Lock()
	unsubscribe, ok := h.clients[client]
	if ok {
		delete(h.clients, client)
	}
	h.mu.Unlock()

	if !ok {
		return
	}
	unsubscribe()
	client.conn.Close()
	metrics.WebSocketClients.Dec()
}
