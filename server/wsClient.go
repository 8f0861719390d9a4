package server

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mbocsi/blockyspot/proto"
	"github.com/mbocsi/blockyspot/queue"
)

const (
	DefaultWriteTimeout = 10 * time.Second
	DefaultPingInterval = 30 * time.Second
)

type WSClient struct {
	ClientMetadata
	conn     *websocket.Conn
	outbound *queue.Queue[proto.Outbound]

	writeTimeout time.Duration
	pingInterval time.Duration

	closeOnce  sync.Once
	writerDone chan struct{}
}

func NewWSClient(conn *websocket.Conn, t Transport) *WSClient {
	c := &WSClient{
		conn:         conn,
		outbound:     queue.New[proto.Outbound](),
		writeTimeout: DefaultWriteTimeout,
		pingInterval: DefaultPingInterval,
		writerDone:   make(chan struct{}),
	}
	c.ClientMetadata = ClientMetadata{
		Id:          generateClientId("ws"),
		ConnectedAt: time.Now(),
		Transport:   t,
	}
	return c
}

// Send queues msg for the writer goroutine.
func (c *WSClient) Send(msg proto.Outbound) error {
	return c.outbound.Send(msg)
}

// Closed reports whether the outbound queue has been closed.
func (c *WSClient) Closed() bool {
	return c.outbound.Closed()
}

func (c *WSClient) Meta() *ClientMetadata {
	return &c.ClientMetadata
}

// Close stops the outbound queue and the underlying connection.
func (c *WSClient) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.outbound.Close()
		if c.conn != nil {
			err = c.conn.Close()
		}
	})
	return err
}

// writeLoop drains the outbound queue in order and keeps the connection alive
// with pings. It returns when the queue is closed or a write fails.
func (c *WSClient) writeLoop() {
	defer close(c.writerDone)

	ticker := time.NewTicker(c.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-c.outbound.Out():
			if !ok {
				c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
				c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}

			data, err := json.Marshal(msg)
			if err != nil {
				slog.Error("Failed to marshal outbound message", "conn", c.Id, "type", msg.MessageType(), "error", err)
				continue
			}

			c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				slog.Warn("WebSocket write failed", "conn", c.Id, "error", err)
				c.Close()
				return
			}
			slog.Debug("Sent WebSocket message", "conn", c.Id, "type", msg.MessageType(), "size", len(data))

		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.writeTimeout)); err != nil {
				slog.Warn("WebSocket ping failed", "conn", c.Id, "error", err)
				c.Close()
				return
			}
		}
	}
}
