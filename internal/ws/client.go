// Observer connection handling: the gorilla/websocket read and write pumps
// for a single connected client, plus the Gin handler that upgrades an HTTP
// request into an observer registration.
package ws

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	// writeWait bounds how long a single frame write may take.
	writeWait = 10 * time.Second
	// pongWait is how long we wait for a pong before declaring the peer dead.
	pongWait = 60 * time.Second
	// pingPeriod must be shorter than pongWait.
	pingPeriod = (pongWait * 9) / 10
	// maxInboundBytes caps inbound frames; observers are consumers and have
	// nothing meaningful to send.
	maxInboundBytes = 512
)

// upgrader accepts any origin: the API already serves CORS * and observers
// connect from arbitrary dashboard hosts.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// Client is one connected observer. Its only identity is the connection
// handle plus a correlation id for logs; nothing about it is persisted.
type Client struct {
	id   string
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

// newClient wires a client to its hub with a bounded send queue.
func newClient(hub *Hub, conn *websocket.Conn, queueSize int) *Client {
	if queueSize <= 0 {
		queueSize = 32
	}
	return &Client{
		id:   uuid.NewString(),
		hub:  hub,
		conn: conn,
		send: make(chan []byte, queueSize),
	}
}

// enqueue attempts a non-blocking push onto the send queue and reports
// whether it fit. Called only from the hub run loop.
func (c *Client) enqueue(frame []byte) bool {
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

// readPump drains (and discards) inbound frames so pings/pongs and close
// frames are processed, and unregisters the client when the peer goes away.
func (c *Client) readPump() {
	defer func() {
		c.hub.forget(c)
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxInboundBytes)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// writePump ships queued frames to the peer and keeps the connection alive
// with periodic pings. It exits when the hub closes the send queue or a
// write fails.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case frame, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Serve returns a Gin handler that upgrades the request to a websocket,
// registers the observer with the hub (triggering the state replay), and
// starts the connection pumps. queueSize bounds the per-observer send queue.
func Serve(hub *Hub, queueSize int) gin.HandlerFunc {
	return func(c *gin.Context) {
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			// Upgrade already wrote the HTTP error response.
			hub.log.Warn().Err(err).Msg("websocket upgrade failed")
			return
		}
		client := newClient(hub, conn, queueSize)
		hub.register <- client

		go client.writePump()
		go client.readPump()
	}
}
