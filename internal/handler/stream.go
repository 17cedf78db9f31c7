package handler

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/dushixiang/gleam/internal/service"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// access is gated by the listen address and the token middleware
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Stream pushes every new tick to a websocket client.
// GET /api/ws
func (h *MonitorHandler) Stream(poll time.Duration) echo.HandlerFunc {
	return func(c echo.Context) error {
		conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
		if err != nil {
			h.logger.Debug("websocket upgrade failed", zap.Error(err))
			return nil
		}
		defer conn.Close()

		closed := make(chan struct{})
		go h.readPump(conn, closed)

		ticker := time.NewTicker(poll)
		defer ticker.Stop()
		ping := time.NewTicker(pingPeriod)
		defer ping.Stop()

		var last *service.State
		for {
			select {
			case <-closed:
				return nil
			case <-c.Request().Context().Done():
				return nil
			case <-ping.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
					return nil
				}
			case <-ticker.C:
				state := h.monitor.State()
				if state == nil || state == last {
					continue
				}
				last = state
				_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := conn.WriteJSON(state); err != nil {
					h.logger.Debug("websocket write failed", zap.Error(err))
					return nil
				}
			}
		}
	}
}

// readPump drains client frames so pongs and close frames are processed.
func (h *MonitorHandler) readPump(conn *websocket.Conn, closed chan<- struct{}) {
	defer close(closed)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("websocket closed", zap.Error(err))
			}
			return
		}
	}
}
