// Package relay implements the local broadcast relay: a websocket hub that
// forwards every frame to every other connected agent. The hub never parses
// frames; protocol semantics live entirely in the agents.
package relay

import (
	"context"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
)

// writeTimeout bounds how long a slow agent can hold up a broadcast before
// being dropped.
const writeTimeout = 5 * time.Second

type Hub struct {
	logger *zap.Logger

	mu    sync.Mutex
	conns map[*websocket.Conn]struct{}
}

func NewHub(logger *zap.Logger) *Hub {
	return &Hub{logger: logger, conns: make(map[*websocket.Conn]struct{})}
}

// ServeHTTP upgrades the request and pumps frames until the agent leaves.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		// The relay binds to loopback; agents are not browsers, so origin
		// checks do not apply.
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.logger.Warn("websocket accept failed", zap.Error(err))
		return
	}

	h.register(conn)
	defer h.unregister(conn)

	h.logger.Info("agent connected", zap.Int("agents", h.Len()))

	ctx := r.Context()
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			h.logger.Info("agent disconnected", zap.Int("agents", h.Len()-1))
			return
		}
		h.broadcast(ctx, conn, typ, data)
	}
}

// broadcast forwards one frame to every connection except the sender.
// A connection that cannot be written to within writeTimeout is closed;
// its read loop then unregisters it.
func (h *Hub) broadcast(ctx context.Context, from *websocket.Conn, typ websocket.MessageType, data []byte) {
	h.mu.Lock()
	targets := make([]*websocket.Conn, 0, len(h.conns))
	for c := range h.conns {
		if c != from {
			targets = append(targets, c)
		}
	}
	h.mu.Unlock()

	for _, c := range targets {
		writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
		err := c.Write(writeCtx, typ, data)
		cancel()
		if err != nil {
			h.logger.Warn("dropping unresponsive agent", zap.Error(err))
			_ = c.Close(websocket.StatusPolicyViolation, "write timeout")
		}
	}
}

func (h *Hub) register(c *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.conns[c] = struct{}{}
}

func (h *Hub) unregister(c *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.conns, c)
}

// Len returns the number of connected agents.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}
