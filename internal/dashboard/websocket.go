package dashboard

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"

	"github.com/dreamware/liveserver/internal/coordinator"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Inbound frames are discarded, so they are kept small.
	maxMessageSize = 1024
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // the loopback guard already ran
	},
}

// handleWebSocket upgrades the request and streams every change event from a
// fresh subscription as a JSON text frame until either side goes away.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "err", err)
		return
	}

	sub := s.events.Subscribe()
	s.logger.Debug("dashboard subscriber connected", "id", sub.ID, "remote", r.RemoteAddr)

	go s.readPump(conn, sub)
	s.writePump(conn, sub)
}

// readPump discards everything the client sends. A read error means the
// peer is gone, which closes the subscription and stops writePump.
func (s *Server) readPump(conn *websocket.Conn, sub *coordinator.Subscription) {
	defer sub.Close()

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Debug("dashboard subscriber read error", "id", sub.ID, "err", err)
			}
			return
		}
	}
}

func (s *Server) writePump(conn *websocket.Conn, sub *coordinator.Subscription) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		sub.Close()
		conn.Close()
		s.logger.Debug("dashboard subscriber disconnected", "id", sub.ID)
	}()

	for {
		select {
		case ev := <-sub.C():
			data, err := json.Marshal(ev)
			if err != nil {
				s.logger.Error("failed to marshal change event", "err", err)
				continue
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-sub.Done():
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}
