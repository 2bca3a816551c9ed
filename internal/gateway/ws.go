// Package gateway bridges the NATS notification stream to websocket
// clients: one authenticated connection, one room per user.
//
// Delivery is best-effort by contract. A slow or dead client is dropped;
// clients recover by polling /events/:id/queue/me.
package gateway

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/pgkim42/ticket-queue/internal/auth"
	"github.com/pgkim42/ticket-queue/internal/notify"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second

	// sendBuffer bounds per-client backlog; overflow drops the client.
	sendBuffer = 32
)

// Hub upgrades connections and routes each user's NATS subject to their
// socket.
type Hub struct {
	nc       *nats.Conn
	tokens   *auth.TokenManager
	logger   *zap.Logger
	upgrader websocket.Upgrader
}

func NewHub(nc *nats.Conn, tokens *auth.TokenManager, logger *zap.Logger) *Hub {
	return &Hub{
		nc:     nc,
		tokens: tokens,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// ServeHTTP handles GET /ws?token=<accessToken>.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	claims, err := h.tokens.Verify(token)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("gateway: upgrade", zap.Error(err))
		return
	}

	userID := claims.Subject
	// send is never closed: Unsubscribe does not wait for an in-flight
	// handler callback, so a close here could race a send and panic. The
	// buffered non-blocking send below simply starts dropping once the
	// write loop is gone.
	send := make(chan []byte, sendBuffer)
	sub, err := h.nc.Subscribe(notify.UserSubject(userID), func(msg *nats.Msg) {
		select {
		case send <- msg.Data:
		default:
			// Client cannot keep up; dropping is within the best-effort
			// contract.
		}
	})
	if err != nil {
		h.logger.Warn("gateway: subscribe", zap.String("user_id", userID), zap.Error(err))
		_ = conn.Close()
		return
	}

	done := make(chan struct{})
	go h.writeLoop(conn, send, done, userID)
	h.readLoop(conn, userID)

	_ = sub.Unsubscribe()
	close(done)
	_ = conn.Close()
}

// readLoop discards client frames and detects disconnect.
func (h *Hub) readLoop(conn *websocket.Conn, userID string) {
	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("gateway: read", zap.String("user_id", userID), zap.Error(err))
			}
			return
		}
	}
}

func (h *Hub) writeLoop(conn *websocket.Conn, send <-chan []byte, done <-chan struct{}, userID string) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = conn.Close()
	}()

	for {
		select {
		case <-done:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = conn.WriteMessage(websocket.CloseMessage, nil)
			return
		case payload := <-send:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				h.logger.Debug("gateway: write", zap.String("user_id", userID), zap.Error(err))
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
