package gateway

import (
	"context"
	"net/http"
	"slices"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
)

// WebsocketHandler upgrades GET /ws and pumps frames between the socket and
// the gateway.
type WebsocketHandler struct {
	gateway  *Gateway
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

// NewWebsocketHandler accepts cross-origin upgrades only from allowedOrigins;
// "*" allows any origin. With no origins configured only same-origin
// requests are accepted.
func NewWebsocketHandler(gateway *Gateway, allowedOrigins []string, logger *zap.Logger) *WebsocketHandler {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
	}

	if len(allowedOrigins) > 0 {
		upgrader.CheckOrigin = func(r *http.Request) bool {
			if slices.Contains(allowedOrigins, "*") {
				return true
			}
			return slices.Contains(allowedOrigins, r.Header.Get("Origin"))
		}
	}

	return &WebsocketHandler{
		gateway:  gateway,
		upgrader: upgrader,
		logger:   logger,
	}
}

func (h *WebsocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already replied with an HTTP error.
		h.logger.Info("failed to upgrade connection", zap.Error(err))
		return
	}

	session := h.gateway.Connect()

	go h.writePump(conn, session)
	h.readPump(r.Context(), conn, session)
}

func (h *WebsocketHandler) readPump(ctx context.Context, conn *websocket.Conn, session *Session) {
	defer func() {
		h.gateway.Disconnect(context.WithoutCancel(ctx), session)
		_ = conn.Close()
	}()

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				session.logger.Info("connection closed unexpectedly", zap.Error(err))
			}
			return
		}

		h.gateway.Handle(ctx, session, message)
	}
}

func (h *WebsocketHandler) writePump(conn *websocket.Conn, session *Session) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = conn.Close()
	}()

	for {
		select {
		case frame, ok := <-session.Outbound():
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				session.logger.Info("failed to write frame", zap.Error(err))
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
