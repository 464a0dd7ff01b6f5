// Package websocket adapts gorilla/websocket connections to the subhub
// Binder. One Conn wraps one physical connection; all writes go through a
// single pump goroutine, and a closed peer triggers the onClose callback so
// the caller can run the socket-close cleanup.
package websocket

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/coregx/subhub"
	"github.com/coregx/subhub/model"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 4096

	// Outbound buffer; SendMessage blocks when full.
	sendBuffer = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Conn implements subhub.Conn over a gorilla websocket connection.
type Conn struct {
	ws      *websocket.Conn
	key     string
	send    chan model.TopicMessage
	onClose func(connKey string)
	logger  subhub.Logger

	closeOnce sync.Once
	closed    chan struct{}
}

// Upgrade upgrades the HTTP request to a websocket connection and starts the
// read and write pumps. onClose runs exactly once when the connection dies,
// with the connection key; callers use it to trigger unbind and
// unsubscribe-on-close handling.
func Upgrade(w http.ResponseWriter, r *http.Request, onClose func(connKey string), logger subhub.Logger) (*Conn, error) {
	if logger == nil {
		logger = &subhub.NoopLogger{}
	}

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, subhub.NewErrorWithCause(subhub.ErrCodeConfiguration, "websocket upgrade failed", err)
	}

	c := &Conn{
		ws:      ws,
		key:     "wsx." + uuid.NewString(),
		send:    make(chan model.TopicMessage, sendBuffer),
		onClose: onClose,
		logger:  logger,
		closed:  make(chan struct{}),
	}

	go c.writePump()
	go c.readPump()
	return c, nil
}

// Key returns the stable identifier of this physical connection.
func (c *Conn) Key() string {
	return c.key
}

// SendMessage queues one message for the write pump. It fails once the
// connection is closed or the context expires.
func (c *Conn) SendMessage(ctx context.Context, m model.TopicMessage) error {
	select {
	case <-c.closed:
		return subhub.NewError(subhub.ErrCodeDelivery, "connection "+c.key+" is closed")
	case <-ctx.Done():
		return ctx.Err()
	case c.send <- m:
		return nil
	}
}

// Close tears the connection down. Safe to call multiple times.
func (c *Conn) Close() error {
	c.shutdown()
	return nil
}

func (c *Conn) shutdown() {
	c.closeOnce.Do(func() {
		close(c.closed)
		_ = c.ws.Close()
		if c.onClose != nil {
			c.onClose(c.key)
		}
	})
}

// readPump discards inbound frames but keeps the read side alive for pong
// handling and close detection. Subscribe traffic arrives over the HTTP API,
// not the socket.
func (c *Conn) readPump() {
	defer c.shutdown()

	c.ws.SetReadLimit(maxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.ws.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warnf("Connection %s closed unexpectedly: %v", c.key, err)
			}
			return
		}
	}
}

// writePump serializes all writes to the peer: queued messages and pings.
func (c *Conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.shutdown()
	}()

	for {
		select {
		case <-c.closed:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.ws.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case m := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteJSON(m); err != nil {
				c.logger.Warnf("Write to connection %s failed: %v", c.key, err)
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
