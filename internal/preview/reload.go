package preview

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"

	"github.com/dreamware/liveserver/internal/workspace"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// reloadClient is one connected browser tab.
type reloadClient struct {
	id   string
	send chan string
}

// reloadHub forwards the workspace signal to every connected browser.
type reloadHub struct {
	clients map[*reloadClient]struct{}
	mu      sync.Mutex
	logger  *slog.Logger
}

func newReloadHub(logger *slog.Logger) *reloadHub {
	return &reloadHub{
		clients: make(map[*reloadClient]struct{}),
		logger:  logger,
	}
}

// run consumes the signal until ctx is cancelled.
func (h *reloadHub) run(ctx context.Context, sig *workspace.Signal) {
	for {
		select {
		case p := <-sig.C():
			h.broadcast(p)
		case <-ctx.Done():
			return
		}
	}
}

func (h *reloadHub) add(c *reloadClient) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
}

func (h *reloadHub) remove(c *reloadClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}

func (h *reloadHub) broadcast(p string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.logger.Debug("reload", "path", p, "clients", len(h.clients))
	for c := range h.clients {
		select {
		case c.send <- p:
		default:
			// Failed to send, remove client
			delete(h.clients, c)
			close(c.send)
		}
	}
}

func (h *reloadHub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
}

func (st *site) handleReload(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	// Join the hub before the handshake completes so that a reload raised
	// right after the client connects is not missed.
	c := &reloadClient{id: uuid.NewString(), send: make(chan string, 8)}
	st.hub.add(c)
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		st.hub.remove(c)
		st.logger.Error("reload websocket upgrade failed", "err", err)
		return
	}

	go func() {
		defer st.hub.remove(c)
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
		st.logger.Debug("reload client disconnected", "id", c.id)
	}()
	for {
		select {
		case p, ok := <-c.send:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, []byte(p)); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
