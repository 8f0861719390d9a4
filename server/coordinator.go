package server

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/mbocsi/blockyspot/proto"
	"golang.org/x/sync/errgroup"
)

// Service is a long-running component started alongside the transports, such
// as the admin API or the mDNS advertiser. Run returns when ctx is done.
type Service interface {
	Name() string
	Run(ctx context.Context) error
}

type Coordinator struct {
	Registry   *DeviceRegistry
	Dispatcher *Dispatcher
	Transports []Transport
	Services   []Service
}

func NewCoordinator(registry *DeviceRegistry) *Coordinator {
	return &Coordinator{Registry: registry, Dispatcher: NewDispatcher(registry)}
}

// Start runs every transport and service until ctx is cancelled or one of
// them fails, then shuts everything down and removes all devices.
func (c *Coordinator) Start(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	for _, t := range c.Transports {
		g.Go(t.Start)
	}
	for _, s := range c.Services {
		s := s
		g.Go(func() error {
			slog.Info("Starting service", "service", s.Name())
			if err := s.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("Service stopped with error", "service", s.Name(), "error", err)
				return err
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("Shutting down transports and server")
		for _, t := range c.Transports {
			if err := t.Shutdown(); err != nil {
				slog.Error("There was an error when shutting down transport server", "error", err.Error())
			}
		}
		return nil
	})

	err := g.Wait()
	c.Registry.Close()
	return err
}

func (c *Coordinator) RegisterTransport(t Transport) {
	t.OnMessage(c.Handle)
	t.OnConnect(c.RegisterClient)
	t.OnDisconnect(c.UnregisterClient)
	c.Transports = append(c.Transports, t)
}

func (c *Coordinator) AddService(s Service) {
	c.Services = append(c.Services, s)
}

func (c *Coordinator) RegisterClient(client Client) error {
	slog.Info("Registered client", "conn", client.Meta().Id, "addr", client.Meta().RemoteAddr)
	return nil
}

// UnregisterClient tears down every device the connection created.
func (c *Coordinator) UnregisterClient(client Client) {
	removed := c.Registry.RemoveOwned(client.Meta().Id)
	slog.Info("Unregistered client", "conn", client.Meta().Id, "devices_removed", removed)
}

// Handle processes one inbound text frame and queues exactly one response.
func (c *Coordinator) Handle(client Client, raw []byte) {
	resp := c.HandleFrame(context.Background(), client.Meta().Id, client, raw)
	if err := client.Send(resp); err != nil {
		slog.Debug("Dropped response for closed connection", "conn", client.Meta().Id, "error", err)
	}
}

// HandleFrame parses, validates and dispatches raw. Protocol errors become
// failure responses; they never close the connection.
func (c *Coordinator) HandleFrame(ctx context.Context, connID string, out Outbox, raw []byte) proto.Response {
	msg, err := proto.ParseCommandMessage(raw)
	if err != nil {
		protocolErrorsTotal.Inc()
		detail := strings.TrimPrefix(err.Error(), proto.ErrMalformed.Error()+": ")
		slog.Warn("Invalid JSON message received", "conn", connID, "error", err)
		return proto.Failure("Invalid JSON format: " + detail)
	}

	deviceID, cmd, err := proto.Translate(msg)
	if err != nil {
		protocolErrorsTotal.Inc()
		slog.Warn("Invalid command received", "conn", connID, "command_type", msg.CommandType, "error", err)
		resp := proto.Failure("Invalid command: " + err.Error())
		if msg.DeviceID != "" {
			resp = resp.WithDevice(msg.DeviceID)
		}
		return resp
	}

	return c.Dispatcher.Dispatch(ctx, Request{
		ConnID:   connID,
		DeviceID: deviceID,
		Command:  cmd,
		Outbound: out,
	})
}
