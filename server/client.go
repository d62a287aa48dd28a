package server

import (
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
	"github.com/room4-2/omnistream/messages"
	"github.com/rs/zerolog"
)

const (
	writeBufferSize = 256
	writeTimeout    = 10 * time.Second
	maxMessageSize  = 8 << 20 // video start frames arrive inline
)

// Client is one dashboard connection. All writes go through writePump.
type Client struct {
	ID   string
	conn *websocket.Conn
	log  zerolog.Logger

	writeChan chan *messages.ServerMessage
	keepAlive time.Duration

	mu           sync.RWMutex
	closed       bool
	lastActivity time.Time
	CloseChan    chan struct{}
}

func newClient(id string, conn *websocket.Conn, keepAlive time.Duration, log zerolog.Logger) *Client {
	conn.SetReadLimit(maxMessageSize)
	c := &Client{
		ID:           id,
		conn:         conn,
		log:          log,
		writeChan:    make(chan *messages.ServerMessage, writeBufferSize),
		keepAlive:    keepAlive,
		lastActivity: time.Now(),
		CloseChan:    make(chan struct{}),
	}
	// a pong answers our keepalive ping, so it counts as activity
	conn.SetPongHandler(func(string) error {
		c.touch()
		return nil
	})
	return c
}

// writePump handles all outgoing messages in a single goroutine
func (c *Client) writePump() {
	var ping <-chan time.Time
	if c.keepAlive > 0 {
		t := time.NewTicker(c.keepAlive)
		defer t.Stop()
		ping = t.C
	}

	defer func() {
		c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		c.conn.WriteMessage(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		)
		c.conn.Close()
	}()

	for {
		select {
		case <-c.CloseChan:
			return
		case <-ping:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case msg := <-c.writeChan:
			if err := c.write(msg); err != nil {
				c.log.Debug().Err(err).Msg("write failed")
				c.Close()
				return
			}

			n := len(c.writeChan)
			for i := 0; i < n; i++ {
				if err := c.write(<-c.writeChan); err != nil {
					c.Close()
					return
				}
			}
		}
	}
}

func (c *Client) write(msg *messages.ServerMessage) error {
	data, err := sonic.Marshal(msg)
	if err != nil {
		c.log.Error().Err(err).Str("type", msg.Type).Msg("❌ Failed to encode message")
		return nil
	}
	c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// queueMessage adds a message to the write queue (non-blocking)
func (c *Client) queueMessage(msg *messages.ServerMessage) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return
	}
	select {
	case c.writeChan <- msg:
	default:
		c.log.Warn().Str("type", msg.Type).Msg("⚠️ Write queue full, dropping message")
	}
}

// readLoop decodes client messages until the connection fails or the
// client is closed.
func (c *Client) readLoop(handle func(*messages.ClientMessage)) {
	defer c.Close()
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if !c.IsClosed() && websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.log.Warn().Err(err).Msg("❌ WebSocket read error")
			}
			return
		}

		c.touch()

		var msg messages.ClientMessage
		if err := sonic.Unmarshal(data, &msg); err != nil {
			c.queueMessage(messages.NewErrorMessage("", messages.ErrCodeInvalidMessage, "malformed JSON"))
			continue
		}
		handle(&msg)
	}
}

func (c *Client) touch() {
	c.mu.Lock()
	c.lastActivity = time.Now()
	c.mu.Unlock()
}

// LastActivity is when the client last sent a message or answered a ping.
func (c *Client) LastActivity() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastActivity
}

func (c *Client) IsClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}

// Close stops the write pump, which closes the connection.
func (c *Client) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()
	close(c.CloseChan)
}
