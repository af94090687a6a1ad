package ws

import (
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/mmuslimabdulj/secret-santa/internal/domain"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10
)

// Client represents a single websocket subscription to a room
type Client struct {
	ID   string
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	maxMessageSize int64
}

// NewClient creates a new Client
func NewClient(hub *Hub, conn *websocket.Conn, buffer int) *Client {
	if buffer <= 0 {
		buffer = domain.SubscriberBuffer
	}
	return &Client{
		ID:             uuid.New().String(),
		hub:            hub,
		conn:           conn,
		send:           make(chan []byte, buffer),
		maxMessageSize: domain.MaxMessageSize,
	}
}

// Attach binds the websocket connection to a client registered without one.
// It must be called before the pumps start.
func (c *Client) Attach(conn *websocket.Conn) {
	c.conn = conn
}

// ReadPump keeps the connection alive and detects disconnects. Subscribers
// never send commands over the socket; anything they send is discarded.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(c.maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			break
		}
	}
}

// WritePump pumps events from the hub to the websocket connection, one
// event per text frame
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "resubscribe"))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Unsubscribe detaches the client from its hub
func (c *Client) Unsubscribe() {
	c.hub.Unregister(c)
}
