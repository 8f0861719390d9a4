package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mbocsi/blockyspot/engine"
	"github.com/mbocsi/blockyspot/proto"
)

var errNoOutbound = errors.New("devices can only be created from a streaming connection")

type Request struct {
	ConnID   string // empty for administrative callers
	DeviceID string
	Command  proto.Command
	Outbound Outbox
}

// Dispatcher routes typed commands to the registry and the device engines.
type Dispatcher struct {
	registry *DeviceRegistry
}

func NewDispatcher(registry *DeviceRegistry) *Dispatcher {
	return &Dispatcher{registry: registry}
}

// Dispatch executes one command and returns its response. Every command other
// than CreateDevice makes exactly one engine call.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) proto.Response {
	resp := d.dispatch(ctx, req)

	result := "ok"
	if !resp.Success {
		result = "error"
	}
	commandsTotal.WithLabelValues(req.Command.CommandType(), result).Inc()
	return resp
}

func (d *Dispatcher) dispatch(ctx context.Context, req Request) proto.Response {
	switch cmd := req.Command.(type) {
	case proto.CreateDevice:
		return d.handleCreateDevice(ctx, req, cmd)

	case proto.Play:
		return d.handleEngineCall(req, "play", "Playback started", engine.Engine.Play)
	case proto.PlayPause:
		return d.handleEngineCall(req, "play_pause", "Playback toggled", engine.Engine.PlayPause)
	case proto.Pause:
		return d.handleEngineCall(req, "pause", "Playback paused", engine.Engine.Pause)
	case proto.Prev:
		return d.handleEngineCall(req, "prev", "Previous track", engine.Engine.Prev)
	case proto.Next:
		return d.handleEngineCall(req, "next", "Next track", engine.Engine.Next)
	case proto.VolumeUp:
		return d.handleEngineCall(req, "volume_up", "Volume increased", engine.Engine.VolumeUp)
	case proto.VolumeDown:
		return d.handleEngineCall(req, "volume_down", "Volume decreased", engine.Engine.VolumeDown)
	case proto.Activate:
		return d.handleEngineCall(req, "activate", "Device activated", engine.Engine.Activate)

	case proto.Shuffle:
		return d.handleEngineCall(req, "set shuffle", toggled("Shuffle", cmd.State), func(e engine.Engine) error {
			return e.Shuffle(cmd.State)
		})
	case proto.Repeat:
		return d.handleEngineCall(req, "set repeat", toggled("Repeat", cmd.State), func(e engine.Engine) error {
			return e.Repeat(cmd.State)
		})
	case proto.RepeatTrack:
		return d.handleEngineCall(req, "set track repeat", toggled("Track repeat", cmd.State), func(e engine.Engine) error {
			return e.RepeatTrack(cmd.State)
		})
	case proto.SetPosition:
		return d.handleEngineCall(req, "set position", "Position updated", func(e engine.Engine) error {
			return e.SetPositionMs(cmd.PositionMs)
		})
	case proto.SetVolume:
		return d.handleEngineCall(req, "set volume", "Volume updated", func(e engine.Engine) error {
			return e.SetVolume(cmd.Volume)
		})

	// Both end the session once the engine call succeeds.
	case proto.Shutdown:
		return d.handleTeardown(req, "shutdown", "Device shutdown", engine.Engine.Shutdown)
	case proto.Disconnect:
		return d.handleTeardown(req, "disconnect", "Device disconnected", func(e engine.Engine) error {
			return e.Disconnect(cmd.Pause)
		})

	default:
		// Unreachable while proto.Command stays closed.
		return proto.Failure(fmt.Sprintf("Invalid command: unsupported command %T", cmd))
	}
}

func (d *Dispatcher) handleCreateDevice(ctx context.Context, req Request, cmd proto.CreateDevice) proto.Response {
	if req.Outbound == nil || req.ConnID == "" {
		return proto.Failure(fmt.Sprintf("Failed to connect: %v", errNoOutbound))
	}

	name := ""
	if cmd.DeviceName != nil {
		name = *cmd.DeviceName
	}

	session, err := d.registry.Create(ctx, CreateParams{
		Token:    cmd.Token,
		Name:     name,
		Owner:    req.ConnID,
		Outbound: req.Outbound,
	})
	if err != nil {
		slog.Warn("Device creation failed", "conn", req.ConnID, "error", err)
		return proto.Failure(fmt.Sprintf("Failed to connect: %v", err))
	}

	return proto.Success("Connected to Spotify", map[string]string{"device_id": session.ID}).WithDevice(session.ID)
}

// lookup resolves the addressed session. Devices owned by another connection
// are reported exactly like missing ones.
func (d *Dispatcher) lookup(req Request) (*DeviceSession, bool) {
	session, err := d.registry.Get(req.DeviceID)
	if err != nil {
		return nil, false
	}
	if req.ConnID != "" && session.Owner != req.ConnID {
		return nil, false
	}
	return session, true
}

func (d *Dispatcher) handleEngineCall(req Request, op, success string, call func(engine.Engine) error) proto.Response {
	session, ok := d.lookup(req)
	if !ok {
		return proto.Failure("Device not found").WithDevice(req.DeviceID)
	}

	if err := session.Do(call); err != nil {
		slog.Warn("Engine call failed", "device_id", session.ID, "op", op, "error", err)
		return proto.Failure(fmt.Sprintf("Failed to %s: %v", op, err)).WithDevice(session.ID)
	}

	slog.Debug("Command executed", "device_id", session.ID, "op", op, "conn", req.ConnID)
	return proto.Success(success, nil).WithDevice(session.ID)
}

func (d *Dispatcher) handleTeardown(req Request, op, success string, call func(engine.Engine) error) proto.Response {
	resp := d.handleEngineCall(req, op, success, call)
	if !resp.Success {
		return resp
	}

	if session, err := d.registry.Get(req.DeviceID); err == nil {
		session.MarkDisconnected()
		d.registry.Remove(session.ID)
	}
	return resp
}

func toggled(subject string, state bool) string {
	if state {
		return subject + " enabled"
	}
	return subject + " disabled"
}
