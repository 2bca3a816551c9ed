package gateway

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// A notification callback may fire at any point relative to connection
// teardown; a late one must be dropped, never panic the process.
func TestClientPumpSurvivesLateNotifications(t *testing.T) {
	h := &Hub{
		logger: zap.NewNop(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}

	var wg sync.WaitGroup
	stop := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := h.upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		send := make(chan []byte, sendBuffer)
		done := make(chan struct{})

		// Stands in for the subscription handler: it outlives the
		// connection and keeps publishing into the room.
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				select {
				case send <- []byte(`{"event":"queue:position"}`):
				default:
				}
				time.Sleep(time.Millisecond)
			}
		}()

		go h.writeLoop(conn, send, done, "u1")
		h.readLoop(conn, "u1")
		close(done)
		_ = conn.Close()
	}))
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)

	for range 5 {
		_, payload, err := conn.ReadMessage()
		require.NoError(t, err)
		assert.Contains(t, string(payload), "queue:position")
	}
	require.NoError(t, conn.Close())

	// The publisher keeps firing after the client is gone; every send must
	// fall into the drop branch.
	time.Sleep(50 * time.Millisecond)
	close(stop)
	wg.Wait()
}
