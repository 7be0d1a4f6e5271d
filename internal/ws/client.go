package ws

import (
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 30 * time.Second
	pingPeriod = 25 * time.Second

	sendBuffer = 16
)

// Client is one /ws/usage subscriber. Admins receive every active task's
// row; everybody else only their own.
type Client struct {
	UserID uuid.UUID
	Admin  bool
	Conn   *websocket.Conn
	Send   chan []byte

	hub  *Hub
	log  *slog.Logger
	Done chan struct{}
}

func NewClient(userID uuid.UUID, admin bool, conn *websocket.Conn, hub *Hub) *Client {
	return &Client{
		UserID: userID,
		Admin:  admin,
		Conn:   conn,
		Send:   make(chan []byte, sendBuffer),
		hub:    hub,
		log:    hub.log.With("user_id", userID),
		Done:   make(chan struct{}),
	}
}

// Run registers the client, pushes the current snapshot and blocks until
// the peer goes away.
func (c *Client) Run() {
	go c.writePump()
	c.hub.Register(c)
	c.readPump()
}

func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister(c)
		_ = c.Conn.Close()
		close(c.Done)
	}()

	c.Conn.SetReadLimit(4096)
	_ = c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		return c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	// the feed is push-only; reads exist to notice close and pongs
	for {
		if _, _, err := c.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.log.Debug("usage feed read error", "error", err)
			}
			return
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.Conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.Send:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.log.Warn("usage feed write failed", "error", err)
				return
			}

		case <-ticker.C:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
