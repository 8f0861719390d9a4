package client

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mbocsi/blockyspot/proto"
)

var ErrConnectionClosed = errors.New("connection closed")

// CommandError is returned when the gateway answers with success=false.
type CommandError struct {
	DeviceID string
	Message  string
}

func (e *CommandError) Error() string {
	if e.DeviceID == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.DeviceID, e.Message)
}

// Audio is one decoded audio_data message.
type Audio struct {
	DeviceID   string
	Format     string // "pcm_s16le" or "passthrough"
	PacketType string
	Data       []byte
}

type Client struct {
	transport       Transport
	connected       atomic.Bool
	ProtocolVersion string
	AckTimeout      time.Duration

	// Handlers
	handlerMu            sync.RWMutex
	audioFormatHandler   func(proto.AudioFormatMessage)
	audioHandler         func(Audio)
	streamStoppedHandler func(deviceID string)
	playerEventHandler   func(proto.PlayerEventMessage)
	sinkEventHandler     func(proto.SinkEventMessage)

	// Responses arrive in request order, so waiters are kept FIFO.
	resMu   sync.Mutex
	pending []chan proto.Response

	done    chan struct{}
	errOnce sync.Once
	err     error
}

func NewClient(t Transport) *Client {
	return &Client{
		transport:  t,
		AckTimeout: 5 * time.Second,
		done:       make(chan struct{}),
	}
}

// Start connects, waits for the connection ack and then processes incoming
// messages in the background until the connection ends.
func (c *Client) Start(addr string) error {
	if err := c.transport.Connect(addr); err != nil {
		return err
	}

	ackCh := make(chan error, 1)
	go func() { ackCh <- c.readAck() }()

	select {
	case err := <-ackCh:
		if err != nil {
			c.transport.Close()
			return err
		}
	case <-time.After(c.AckTimeout):
		c.transport.Close()
		return fmt.Errorf("timeout waiting for connection ack")
	}

	c.connected.Store(true)
	go c.readLoop()
	return nil
}

func (c *Client) readAck() error {
	frame, err := c.transport.Read()
	if err != nil {
		return err
	}
	if frame.Type != proto.TypeConnection {
		return fmt.Errorf("expected %s message, got %q", proto.TypeConnection, frame.Type)
	}

	var ack proto.ConnectionAck
	if err := json.Unmarshal(frame.Raw, &ack); err != nil {
		return fmt.Errorf("invalid connection ack: %w", err)
	}
	if ack.ProtocolVersion != proto.ProtocolVersion {
		slog.Warn("Gateway speaks a different protocol version", "gateway", ack.ProtocolVersion, "client", proto.ProtocolVersion)
	}
	c.ProtocolVersion = ack.ProtocolVersion
	slog.Info("Connected to gateway", "status", ack.Status, "protocol_version", ack.ProtocolVersion)
	return nil
}

func (c *Client) readLoop() {
	defer c.finish(ErrConnectionClosed)

	for {
		frame, err := c.transport.Read()
		if err != nil {
			slog.Debug("Read loop stopped", "error", err)
			c.finish(fmt.Errorf("%w: %v", ErrConnectionClosed, err))
			return
		}
		slog.Debug("Message Received", "type", frame.Type, "device_id", frame.DeviceID, "size", len(frame.Raw))

		if err := c.dispatch(frame); err != nil {
			slog.Warn("Failed to handle message", "type", frame.Type, "error", err)
		}
	}
}

func (c *Client) dispatch(frame Frame) error {
	c.handlerMu.RLock()
	defer c.handlerMu.RUnlock()

	switch frame.Type {
	case proto.TypeCommandResponse:
		var resp proto.Response
		if err := json.Unmarshal(frame.Raw, &resp); err != nil {
			return err
		}
		c.resolve(resp)

	case proto.TypeAudioFormat:
		var msg proto.AudioFormatMessage
		if err := json.Unmarshal(frame.Raw, &msg); err != nil {
			return err
		}
		if c.audioFormatHandler != nil {
			c.audioFormatHandler(msg)
		}

	case proto.TypeAudioData:
		if c.audioHandler == nil {
			return nil
		}
		var msg proto.AudioDataMessage
		if err := json.Unmarshal(frame.Raw, &msg); err != nil {
			return err
		}
		data, err := base64.StdEncoding.DecodeString(msg.Data.Encoded)
		if err != nil {
			return fmt.Errorf("invalid audio payload: %w", err)
		}
		c.audioHandler(Audio{DeviceID: msg.DeviceID, Format: msg.Data.Format, PacketType: msg.Data.PacketType, Data: data})

	case proto.TypeAudioStreamStopped:
		if c.streamStoppedHandler != nil {
			c.streamStoppedHandler(frame.DeviceID)
		}

	case proto.TypePlayerEvent:
		var msg proto.PlayerEventMessage
		if err := json.Unmarshal(frame.Raw, &msg); err != nil {
			return err
		}
		if c.playerEventHandler != nil {
			c.playerEventHandler(msg)
		}

	case proto.TypeSinkEvent:
		var msg proto.SinkEventMessage
		if err := json.Unmarshal(frame.Raw, &msg); err != nil {
			return err
		}
		if c.sinkEventHandler != nil {
			c.sinkEventHandler(msg)
		}

	case proto.TypeConnection:
		slog.Warn("Received unexpected connection ack")

	default:
		slog.Warn("Unhandled message", "type", frame.Type)
	}
	return nil
}

func (c *Client) resolve(resp proto.Response) {
	c.resMu.Lock()
	defer c.resMu.Unlock()

	if len(c.pending) == 0 {
		slog.Warn("Received a response with no pending command", "device_id", resp.DeviceID, "message", resp.Message)
		return
	}
	ch := c.pending[0]
	c.pending = c.pending[1:]
	ch <- resp // buffered
}

func (c *Client) finish(err error) {
	c.errOnce.Do(func() {
		c.connected.Store(false)
		c.err = err
		close(c.done)
	})
}

// Do sends cmd and waits for its response. A response with success=false is
// returned together with a *CommandError.
func (c *Client) Do(ctx context.Context, deviceID string, cmd proto.Command) (proto.Response, error) {
	if !c.connected.Load() {
		return proto.Response{}, ErrConnectionClosed
	}

	respCh := make(chan proto.Response, 1)

	// Hold the lock across Send so the waiter order matches the wire order.
	c.resMu.Lock()
	c.pending = append(c.pending, respCh)
	if err := c.transport.Send(proto.ToMessage(deviceID, cmd)); err != nil {
		c.pending = c.pending[:len(c.pending)-1]
		c.resMu.Unlock()
		return proto.Response{}, err
	}
	c.resMu.Unlock()

	select {
	case resp := <-respCh:
		if !resp.Success {
			return resp, &CommandError{DeviceID: resp.DeviceID, Message: resp.Message}
		}
		return resp, nil
	case <-ctx.Done():
		return proto.Response{}, ctx.Err()
	case <-c.done:
		return proto.Response{}, c.err
	}
}

// CreateDevice creates a virtual device and returns its id.
func (c *Client) CreateDevice(ctx context.Context, token, name string) (string, error) {
	cmd := proto.CreateDevice{Token: token}
	if name != "" {
		cmd.DeviceName = &name
	}

	resp, err := c.Do(ctx, "", cmd)
	if err != nil {
		return "", err
	}
	if resp.DeviceID != "" {
		return resp.DeviceID, nil
	}
	if data, ok := resp.Data.(map[string]any); ok {
		if id, ok := data["device_id"].(string); ok {
			return id, nil
		}
	}
	return "", fmt.Errorf("gateway did not return a device id")
}

func (c *Client) OnAudioFormat(fn func(proto.AudioFormatMessage)) {
	c.handlerMu.Lock()
	c.audioFormatHandler = fn
	c.handlerMu.Unlock()
}

func (c *Client) OnAudio(fn func(Audio)) {
	c.handlerMu.Lock()
	c.audioHandler = fn
	c.handlerMu.Unlock()
}

func (c *Client) OnStreamStopped(fn func(deviceID string)) {
	c.handlerMu.Lock()
	c.streamStoppedHandler = fn
	c.handlerMu.Unlock()
}

func (c *Client) OnPlayerEvent(fn func(proto.PlayerEventMessage)) {
	c.handlerMu.Lock()
	c.playerEventHandler = fn
	c.handlerMu.Unlock()
}

func (c *Client) OnSinkEvent(fn func(proto.SinkEventMessage)) {
	c.handlerMu.Lock()
	c.sinkEventHandler = fn
	c.handlerMu.Unlock()
}

func (c *Client) Connected() bool {
	return c.connected.Load()
}

// Done is closed when the connection ends.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Err reports why the connection ended, or nil while it is open.
func (c *Client) Err() error {
	select {
	case <-c.done:
		return c.err
	default:
		return nil
	}
}

func (c *Client) Close() error {
	err := c.transport.Close()
	c.finish(ErrConnectionClosed)
	return err
}

func SetupLogger(level slog.Level) {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	slog.SetDefault(slog.New(handler))
}
