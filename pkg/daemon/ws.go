package daemon

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/charlie0129/hxstat/pkg/events"
)

// wsMessage is one websocket frame.
type wsMessage struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
	At    time.Time       `json:"at"`
}

// wsHub broadcasts events to websocket clients.
type wsHub struct {
	upgrader websocket.Upgrader
	// replay returns the events sent to every new client first.
	replay func() []events.Event

	mu      sync.Mutex
	clients map[*wsClient]struct{}
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

func newWSHub(replay func() []events.Event) *wsHub {
	return &wsHub{
		replay: replay,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(_ *http.Request) bool {
				// Only reachable through the unix socket.
				return true
			},
		},
		clients: map[*wsClient]struct{}{},
	}
}

func (h *wsHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logrus.WithError(err).Debug("websocket upgrade failed")
		return
	}

	c := &wsClient{conn: conn, send: make(chan []byte, 16)}
	if h.replay != nil {
		for _, e := range h.replay() {
			if b, err := encodeWS(e); err == nil {
				c.send <- b
			}
		}
	}
	h.addClient(c)

	go h.writePump(c)
	h.readPump(c)
}

// broadcast is a broker subscriber, so it must not block. Slow clients are
// dropped.
func (h *wsHub) broadcast(e events.Event) {
	b, err := encodeWS(e)
	if err != nil {
		logrus.WithError(err).Error("failed to encode event")
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- b:
		default:
			logrus.Warn("websocket client too slow, dropping it")
			h.dropLocked(c)
		}
	}
}

func encodeWS(e events.Event) ([]byte, error) {
	m, err := events.Encode(e)
	if err != nil {
		return nil, err
	}
	return json.Marshal(wsMessage{Event: m.Name, Data: m.Data, At: time.Now().UTC()})
}

func (h *wsHub) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *wsHub) addClient(c *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = struct{}{}
	logrus.WithField("clients", len(h.clients)).Debug("websocket client connected")
}

func (h *wsHub) removeClient(c *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.dropLocked(c)
}

func (h *wsHub) dropLocked(c *wsClient) {
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
		_ = c.conn.Close()
	}
}

func (h *wsHub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		h.dropLocked(c)
	}
}

func (h *wsHub) readPump(c *wsClient) {
	defer h.removeClient(c)
	c.conn.SetReadLimit(1024)
	_ = c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	})

	// Clients have nothing to say; reading only processes control frames.
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *wsHub) writePump(c *wsClient) {
	ticker := time.NewTicker(25 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
