package progress

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const writeWait = 10 * time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
}

// wsEndpoint serializes writes; gorilla connections allow one writer.
type wsEndpoint struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (e *wsEndpoint) Send(ev Event) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return e.conn.WriteJSON(ev)
}

func (e *wsEndpoint) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.conn.Close()
}

// ServeWS upgrades the request and registers the connection for session.
// It blocks, discarding inbound messages, until the client disconnects.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, session string) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "session", session, "error", err)
		return
	}

	ep := &wsEndpoint{conn: conn}
	h.Register(session, ep)
	h.logger.Debug("progress observer connected", "session", session)

	defer func() {
		if h.release(session, ep) {
			ep.Close()
		}
		h.logger.Debug("progress observer disconnected", "session", session)
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
