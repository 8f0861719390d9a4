// Package engine describes the playback engine the gateway drives. The
// gateway never decodes audio itself; an Engine pushes decoded packets into a
// Sink and reports player events on its own channel.
package engine

import (
	"context"
	"errors"
)

var ErrClosed = errors.New("engine closed")

type Engine interface {
	Play() error
	PlayPause() error
	Pause() error
	Prev() error
	Next() error
	VolumeUp() error
	VolumeDown() error
	Shutdown() error
	Activate() error
	Shuffle(state bool) error
	Repeat(state bool) error
	RepeatTrack(state bool) error
	SetVolume(volume uint16) error
	SetPositionMs(positionMs uint32) error
	Disconnect(pause bool) error

	// Events is closed when the engine stops producing events.
	Events() <-chan Event

	// Close releases the engine. Further calls return ErrClosed.
	Close() error
}

type Config struct {
	Token      string
	DeviceName string
	DeviceID   string
	Format     AudioFormat

	// Sink receives audio from the engine's own playback goroutine.
	Sink Sink

	// OnSinkStatus is invoked on sink status transitions. May be nil.
	OnSinkStatus func(SinkStatus)
}

// Factory creates engines. New corresponds to connecting a device to the
// streaming service with the caller's access token.
type Factory interface {
	New(ctx context.Context, cfg Config) (Engine, error)
}

type FactoryFunc func(ctx context.Context, cfg Config) (Engine, error)

func (f FactoryFunc) New(ctx context.Context, cfg Config) (Engine, error) { return f(ctx, cfg) }

// Sink is the push-based audio output an engine writes to.
type Sink interface {
	Start() error
	Stop() error
	Write(packet AudioPacket) error
}

// AudioPacket is either interleaved float samples in [-1, 1] or an opaque
// raw payload. Exactly one of the fields is set.
type AudioPacket struct {
	Samples []float64
	Raw     []byte
}

func SamplesPacket(samples []float64) AudioPacket { return AudioPacket{Samples: samples} }

func RawPacket(raw []byte) AudioPacket { return AudioPacket{Raw: raw} }

func (p AudioPacket) IsRaw() bool { return p.Raw != nil }

type SinkStatus int

const (
	SinkRunning SinkStatus = iota
	SinkTemporarilyClosed
	SinkClosed
)

func (s SinkStatus) String() string {
	switch s {
	case SinkRunning:
		return "running"
	case SinkTemporarilyClosed:
		return "temporarily_closed"
	case SinkClosed:
		return "closed"
	default:
		return "unknown"
	}
}
