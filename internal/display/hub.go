package display

import (
	"context"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"go.uber.org/zap"
)

const (
	messageSnapshot = "snapshot"
	messageCreated  = "created"
	messageRenamed  = "renamed"
	messageDeleted  = "deleted"
)

type message struct {
	Type  string `json:"type"`
	Label Label  `json:"label"`
}

type client struct {
	conn   *websocket.Conn
	send   chan message
	logger *zap.Logger
}

type hub struct {
	mu      sync.RWMutex
	clients map[*client]struct{}
	logger  *zap.Logger
}

func newHub(logger *zap.Logger) *hub {
	return &hub{clients: make(map[*client]struct{}), logger: logger}
}

func (h *hub) register(c *client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	h.logger.Debug("board_client_connected")
}

// unregister closes the client's send channel.
func (h *hub) unregister(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
	h.logger.Debug("board_client_disconnected")
}

func (h *hub) broadcast(msg message) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			h.logger.Warn("board_client_buffer_full")
		}
	}
}

func (h *hub) count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (c *client) writePump(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-c.send:
			if !ok {
				return
			}
			wctx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := wsjson.Write(wctx, c.conn, msg)
			cancel()
			if err != nil {
				c.logger.Debug("board_ws_write_error", zap.Error(err))
				return
			}
		}
	}
}

// readPump drains the connection until the client goes away.
func (c *client) readPump(ctx context.Context) {
	for {
		if _, _, err := c.conn.Read(ctx); err != nil {
			return
		}
	}
}
