package server

import (
	"context"
	"log/slog"

	"github.com/mbocsi/blockyspot/engine"
	"github.com/mbocsi/blockyspot/proto"
	"github.com/mbocsi/blockyspot/queue"
)

// EventForwarder relays a session's engine events and sink status changes to
// its connection's outbound queue.
type EventForwarder struct {
	deviceID string
	out      Outbox
	statuses *queue.Queue[engine.SinkStatus]
}

func NewEventForwarder(deviceID string, out Outbox) *EventForwarder {
	return &EventForwarder{
		deviceID: deviceID,
		out:      out,
		statuses: queue.New[engine.SinkStatus](),
	}
}

// ReportSinkStatus never blocks; it is called from the engine's audio path.
func (f *EventForwarder) ReportSinkStatus(status engine.SinkStatus) {
	if err := f.statuses.Send(status); err != nil {
		slog.Debug("Sink status after forwarder stopped", "device_id", f.deviceID, "status", status.String())
	}
}

// Close releases the status queue of a forwarder whose Run never started.
// Run closes it on its own.
func (f *EventForwarder) Close() {
	f.statuses.Close()
}

// Run blocks until events is closed or ctx is cancelled. Events still in
// flight at cancellation are dropped.
func (f *EventForwarder) Run(ctx context.Context, events <-chan engine.Event) {
	defer f.statuses.Close()
	slog.Debug("Event forwarder started", "device_id", f.deviceID)
	defer slog.Debug("Event forwarder stopped", "device_id", f.deviceID)

	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-events:
			if !ok {
				return
			}
			if !f.send(playerEvent(f.deviceID, ev)) {
				return
			}

		case status := <-f.statuses.Out():
			msg := proto.SinkEventMessage{
				Type:     proto.TypeSinkEvent,
				DeviceID: f.deviceID,
				Data:     proto.SinkStatusInfo{Status: status.String()},
			}
			if !f.send(msg) {
				return
			}
		}
	}
}

func (f *EventForwarder) send(msg proto.Outbound) bool {
	if err := f.out.Send(msg); err != nil {
		slog.Debug("Outbound queue closed, stopping event forwarder", "device_id", f.deviceID, "error", err)
		return false
	}
	eventsForwardedTotal.WithLabelValues(msg.MessageType()).Inc()
	return true
}

func playerEvent(deviceID string, ev engine.Event) proto.PlayerEventMessage {
	msg := proto.PlayerEventMessage{
		Type:     proto.TypePlayerEvent,
		DeviceID: deviceID,
		Event:    string(ev.Kind),
	}
	if ev.HasDetail() {
		msg.Data = &proto.PlayerEventDetail{
			RequestID:  ev.RequestID,
			TrackID:    ev.TrackID,
			PositionMs: ev.PositionMs,
			DurationMs: ev.DurationMs,
			Volume:     ev.Volume,
			Value:      ev.Value,
		}
	}
	return msg
}
