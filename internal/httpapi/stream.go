package httpapi

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	streamWriteWait  = 10 * time.Second
	streamPingPeriod = 30 * time.Second
)

// handleStream upgrades to a websocket and forwards bus events as JSON
// until the client disconnects or the bus closes. The read pump only
// watches for the close; inbound frames are discarded.
func (s *Server) handleStream(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	events, cancel := s.bus.Subscribe()
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					s.logger.Debug().Err(err).Msg("websocket closed")
				}
				return
			}
		}
	}()

	ping := time.NewTicker(streamPingPeriod)
	defer ping.Stop()

	for {
		select {
		case <-done:
			return
		case ev, open := <-events:
			if !open {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
