package network

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const writeWait = 10 * time.Second

// ErrMalformedMessage is returned by ReadMessage for frames that are not a
// JSON envelope. The connection stays usable.
var ErrMalformedMessage = errors.New("malformed message")

type Connection interface {
	Send(msg *Message) error
	Close() error
	RemoteAddr() net.Addr
	SetHeartbeat(interval time.Duration)
	ReadMessage() (*Message, error)
}

// WSConnection 基于 gorilla/websocket 的连接，一帧一个 JSON 信封
type WSConnection struct {
	conn      *websocket.Conn
	sendMutex sync.Mutex
	heartbeat time.Duration
	closeOnce sync.Once
	done      chan struct{}
}

func NewWSConnection(conn *websocket.Conn, maxMessageBytes int64) *WSConnection {
	if maxMessageBytes > 0 {
		conn.SetReadLimit(maxMessageBytes)
	}
	return &WSConnection{conn: conn, done: make(chan struct{})}
}

func (c *WSConnection) Send(msg *Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	c.sendMutex.Lock()
	defer c.sendMutex.Unlock()

	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *WSConnection) ReadMessage() (*Message, error) {
	for {
		msgType, data, err := c.conn.ReadMessage()
		if err != nil {
			return nil, err
		}
		if msgType != websocket.TextMessage {
			continue
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil || msg.Event == "" {
			return nil, fmt.Errorf("%w: %q", ErrMalformedMessage, truncate(data, 64))
		}
		return &msg, nil
	}
}

// SetHeartbeat 启动 ping，两个周期内没有收到任何帧（含 pong）则读超时
func (c *WSConnection) SetHeartbeat(interval time.Duration) {
	if interval <= 0 {
		return
	}
	c.heartbeat = interval
	c.conn.SetReadDeadline(time.Now().Add(interval * 2))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.heartbeat * 2))
	})

	go c.pingLoop(interval)
}

func (c *WSConnection) pingLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.sendMutex.Lock()
			err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
			c.sendMutex.Unlock()
			if err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

func (c *WSConnection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		err = c.conn.Close()
	})
	return err
}

func (c *WSConnection) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

func truncate(b []byte, n int) []byte {
	if len(b) > n {
		return b[:n]
	}
	return b
}
