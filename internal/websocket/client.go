package websocket

import (
	"context"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/askwhyharsh/liveradar/pkg/logger"
)

// MessageHandler consumes decoded client messages on the read goroutine.
type MessageHandler interface {
	HandleMessage(client *Client, msg *IncomingMessage)
}

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1024
	sendBuffer     = 64
)

type Client struct {
	hub       *Hub
	conn      *websocket.Conn
	send      chan *Message
	sessionID string
	userID    string
	logger    logger.Logger
	ctx       context.Context
	cancel    context.CancelFunc
	handler   MessageHandler
}

func NewClient(hub *Hub, conn *websocket.Conn, sessionID, userID string, handler MessageHandler, log logger.Logger) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		hub:       hub,
		conn:      conn,
		send:      make(chan *Message, sendBuffer),
		sessionID: sessionID,
		userID:    userID,
		logger:    log,
		ctx:       ctx,
		cancel:    cancel,
		handler:   handler,
	}
}

func (c *Client) SessionID() string {
	return c.sessionID
}

func (c *Client) UserID() string {
	return c.userID
}

// Context is cancelled when the connection goes away.
func (c *Client) Context() context.Context {
	return c.ctx
}

// ReadPump blocks until the connection fails or is closed.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.Unregister(c)
		c.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Warn("Websocket read failed", "session_id", c.sessionID, "error", err)
			}
			return
		}

		var msg IncomingMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.SendError("Invalid message format", "INVALID_FORMAT")
			continue
		}

		if c.handler != nil {
			c.handler.HandleMessage(c, &msg)
		}
	}
}

func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			data, err := json.Marshal(message)
			if err != nil {
				c.logger.Error("Failed to marshal message", "type", message.Type, "error", err)
				continue
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.Close()
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}

		case <-c.ctx.Done():
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}

// Send queues msg without blocking. A full buffer drops the message.
func (c *Client) Send(msg *Message) bool {
	select {
	case <-c.ctx.Done():
		return false
	default:
	}

	select {
	case c.send <- msg:
		return true
	default:
		c.logger.Warn("Dropping message for slow client", "session_id", c.sessionID, "type", msg.Type)
		return false
	}
}

func (c *Client) SendError(errMsg string, code string) {
	c.Send(NewErrorMessage(errMsg, code))
}

// Close is idempotent.
func (c *Client) Close() {
	c.cancel()
	c.conn.Close()
}
