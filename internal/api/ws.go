package api

import (
	"net/http"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/acreleads/realtime-lead-engine/internal/broadcast"
	"github.com/acreleads/realtime-lead-engine/internal/metrics"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Viewers connect from a separately hosted frontend.
	CheckOrigin: func(*http.Request) bool { return true },
}

// handleWS upgrades the connection and registers it with the broadcast hub.
// The read loop only drains inbound frames (viewer heartbeats); a read error
// deregisters the viewer.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	viewer := broadcast.NewWSConn(conn)
	s.hub.Register(viewer)
	metrics.IncConnectedViewers()
	defer func() {
		s.hub.Unregister(viewer)
		metrics.DecConnectedViewers()
		_ = viewer.Close()
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn("websocket read error", zap.Error(err))
			}
			return
		}
	}
}
