package hub

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/livedesk-ai/livedesk/pkg/protocol"
)

// WSClient adapts a gorilla websocket connection to the Observer interface.
// Writes are serialized with a mutex; gorilla allows at most one concurrent
// writer per connection.
type WSClient struct {
	id   string
	conn *websocket.Conn

	writeMu sync.Mutex
}

func NewWSClient(conn *websocket.Conn) *WSClient {
	return &WSClient{
		id:   uuid.Must(uuid.NewV7()).String(),
		conn: conn,
	}
}

func (c *WSClient) ID() string { return c.id }

// Send writes one text frame.
func (c *WSClient) Send(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// Close tears down the underlying connection.
func (c *WSClient) Close() error {
	return c.conn.Close()
}

// ReadLoop consumes client frames until the connection dies, then removes
// the observer from the hub. The only frame clients may send is
// {"type":"ping"}, answered with a pong; everything else is ignored.
func (c *WSClient) ReadLoop(h *Hub) {
	defer func() {
		h.Disconnect(c.id)
		c.conn.Close()
	}()

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Warn("observer read error", "observer_id", c.id, "error", err)
			}
			return
		}

		var frame struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(data, &frame); err != nil {
			continue
		}
		if frame.Type == protocol.EventPing {
			if data, err := protocol.Pong().Marshal(); err == nil {
				if err := c.Send(data); err != nil {
					return
				}
			}
		}
	}
}
