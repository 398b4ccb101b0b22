package broadcast

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// The API listens on loopback for the UI shell; origins are checked by
	// the CORS middleware for plain requests.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Stream upgrades the request to a WebSocket and writes first, then every
// value received on sub, as a JSON text message. It returns when the client
// goes away or sub is closed, and closes sub on return.
func Stream[T any](w http.ResponseWriter, r *http.Request, sub *Subscription[T], first T, logger *zap.Logger) {
	stream(w, r, sub, &first, logger)
}

// Follow is Stream without an initial value: nothing is written until sub
// delivers.
func Follow[T any](w http.ResponseWriter, r *http.Request, sub *Subscription[T], logger *zap.Logger) {
	stream(w, r, sub, nil, logger)
}

func stream[T any](w http.ResponseWriter, r *http.Request, sub *Subscription[T], first *T, logger *zap.Logger) {
	defer sub.Close()
	if logger == nil {
		logger = zap.NewNop()
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	gone := make(chan struct{})
	go readPump(conn, gone, logger)

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	send := func(v T) bool {
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(v); err != nil {
			logger.Debug("WebSocket write failed", zap.Error(err))
			return false
		}
		return true
	}
	if first != nil && !send(*first) {
		return
	}

	for {
		select {
		case v, ok := <-sub.C:
			if !ok {
				conn.SetWriteDeadline(time.Now().Add(writeWait))
				conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "stream closed"))
				return
			}
			if !send(v) {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-gone:
			return
		}
	}
}

// readPump discards client messages and closes gone when the peer
// disconnects or stops answering pings.
func readPump(conn *websocket.Conn, gone chan<- struct{}, logger *zap.Logger) {
	defer close(gone)
	conn.SetReadLimit(512)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Debug("WebSocket read error", zap.Error(err))
			}
			return
		}
	}
}
