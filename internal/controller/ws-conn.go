package controller

import (
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var errConnNotReady = errors.New("websocket not upgraded")

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10

	// events buffered per connection before new ones are dropped
	wsQueueSize = 64
)

type Output struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// wsConn serializes writes to a websocket; gorilla allows one concurrent
// writer.
type wsConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *wsConn) writeJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return errConnNotReady
	}
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}

	return c.conn.WriteJSON(v)
}

func (c *wsConn) ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}
