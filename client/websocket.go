package client

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/mbocsi/blockyspot/proto"
)

const defaultPath = "/ws"

type WebSocketTransport struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func NewWebSocketTransport() *WebSocketTransport {
	return &WebSocketTransport{}
}

// Connect accepts a full ws:// URL or a bare host:port, which is dialled at
// the default path.
func (t *WebSocketTransport) Connect(addr string) error {
	target, err := gatewayURL(addr)
	if err != nil {
		return err
	}

	conn, _, err := websocket.DefaultDialer.Dial(target, nil)
	if err != nil {
		return fmt.Errorf("failed to connect to WebSocket server: %w", err)
	}

	t.conn = conn
	return nil
}

func gatewayURL(addr string) (string, error) {
	if !strings.Contains(addr, "://") {
		addr = "ws://" + addr
	}
	u, err := url.Parse(addr)
	if err != nil {
		return "", fmt.Errorf("invalid WebSocket URL: %w", err)
	}

	switch u.Scheme {
	case "ws", "wss":
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Path == "" || u.Path == "/" {
		u.Path = defaultPath
	}
	return u.String(), nil
}

func (t *WebSocketTransport) Send(msg proto.CommandMessage) error {
	if t.conn == nil {
		return fmt.Errorf("transport is not connected")
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	t.writeMu.Lock()
	err = t.conn.WriteMessage(websocket.TextMessage, data)
	t.writeMu.Unlock()
	if err != nil {
		return fmt.Errorf("failed to send WebSocket message: %w", err)
	}

	slog.Debug("Sent WebSocket Message", "command_type", msg.CommandType, "device_id", msg.DeviceID, "size", len(data))
	return nil
}

func (t *WebSocketTransport) Read() (Frame, error) {
	if t.conn == nil {
		return Frame{}, fmt.Errorf("transport is not connected")
	}

	_, messageBytes, err := t.conn.ReadMessage()
	if err != nil {
		if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
			return Frame{}, fmt.Errorf("WebSocket connection error: %w", err)
		}
		return Frame{}, fmt.Errorf("connection closed: %w", err)
	}

	var env proto.Envelope
	if err := json.Unmarshal(messageBytes, &env); err != nil {
		return Frame{}, fmt.Errorf("invalid JSON: %w", err)
	}

	return Frame{Envelope: env, Raw: messageBytes}, nil
}

func (t *WebSocketTransport) Close() error {
	if t.conn == nil {
		return nil
	}

	t.writeMu.Lock()
	err := t.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	t.writeMu.Unlock()
	if err != nil {
		// Still close the connection below.
		slog.Debug("Failed to send close message", "error", err)
	}

	return t.conn.Close()
}
