// Package tone is a playback engine that synthesises a sine tone instead of
// streaming from a remote service. It behaves like a Connect device: it keeps
// a small playlist, honours transport commands, emits player events and feeds
// its sink from a dedicated real-time goroutine.
package tone

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/mbocsi/blockyspot/engine"
	"github.com/mbocsi/blockyspot/queue"
)

const (
	DefaultSampleRate   = 44100
	DefaultChannels     = 2
	DefaultFrequency    = 440.0 // A4
	DefaultPacketFrames = 1024
	DefaultTrackLength  = 3 * time.Minute
	DefaultTracks       = 8

	// librespot uses 64 volume steps.
	volumeStep    = math.MaxUint16 / 64
	defaultVolume = math.MaxUint16 / 2

	// Prev restarts the current track instead when past this point.
	prevRestartThreshold = 3 * time.Second
)

var (
	ErrInvalidToken = errors.New("invalid access token")
	ErrNoSink       = errors.New("no audio sink configured")
	ErrInactive     = errors.New("device is not active")
)

type Options struct {
	SampleRate   int
	Channels     int
	Frequency    float64
	PacketFrames int
	TrackLength  time.Duration
	Tracks       int
}

func (o Options) withDefaults() Options {
	if o.SampleRate <= 0 {
		o.SampleRate = DefaultSampleRate
	}
	if o.Channels <= 0 {
		o.Channels = DefaultChannels
	}
	if o.Frequency <= 0 {
		o.Frequency = DefaultFrequency
	}
	if o.PacketFrames <= 0 {
		o.PacketFrames = DefaultPacketFrames
	}
	if o.TrackLength <= 0 {
		o.TrackLength = DefaultTrackLength
	}
	if o.Tracks <= 0 {
		o.Tracks = DefaultTracks
	}
	return o
}

type Factory struct {
	opts Options
}

func NewFactory(opts Options) *Factory {
	return &Factory{opts: opts.withDefaults()}
}

func (f *Factory) New(ctx context.Context, cfg engine.Config) (engine.Engine, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, ErrInvalidToken
	}
	if cfg.Sink == nil {
		return nil, ErrNoSink
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	e := &Engine{
		opts:   f.opts,
		cfg:    cfg,
		events: queue.New[engine.Event](),
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
		volume: defaultVolume,
		active: true,
		log:    slog.With("device_id", cfg.DeviceID, "engine", "tone"),
	}
	e.emit(engine.Event{Kind: engine.EventSessionConnected})
	go e.run()

	e.log.Info("Tone engine started", "name", cfg.DeviceName, "frequency", f.opts.Frequency)
	return e, nil
}

type Engine struct {
	opts Options
	cfg  engine.Config
	log  *slog.Logger

	events *queue.Queue[engine.Event]
	quit   chan struct{}
	done   chan struct{}
	once   sync.Once

	mu          sync.Mutex
	closed      bool
	active      bool
	playing     bool
	sinkOpen    bool
	track       int
	frame       uint64 // position within the current track
	volume      uint16
	shuffle     bool
	repeat      bool
	repeatTrack bool
	requestID   uint64
}

func (e *Engine) Events() <-chan engine.Event { return e.events.Out() }

func (e *Engine) Play() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.usable(); err != nil {
		return err
	}
	return e.startLocked()
}

func (e *Engine) PlayPause() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.usable(); err != nil {
		return err
	}
	if e.playing {
		return e.pauseLocked()
	}
	return e.startLocked()
}

func (e *Engine) Pause() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.usable(); err != nil {
		return err
	}
	return e.pauseLocked()
}

func (e *Engine) Prev() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.usable(); err != nil {
		return err
	}
	if e.positionLocked() <= prevRestartThreshold && e.track > 0 {
		e.track--
	}
	e.frame = 0
	e.loadLocked()
	return nil
}

func (e *Engine) Next() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.usable(); err != nil {
		return err
	}
	e.track = (e.track + 1) % e.opts.Tracks
	e.frame = 0
	e.loadLocked()
	return nil
}

func (e *Engine) VolumeUp() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.usable(); err != nil {
		return err
	}
	v := int(e.volume) + volumeStep
	if v > math.MaxUint16 {
		v = math.MaxUint16
	}
	e.setVolumeLocked(uint16(v))
	return nil
}

func (e *Engine) VolumeDown() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.usable(); err != nil {
		return err
	}
	v := int(e.volume) - volumeStep
	if v < 0 {
		v = 0
	}
	e.setVolumeLocked(uint16(v))
	return nil
}

func (e *Engine) SetVolume(volume uint16) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.usable(); err != nil {
		return err
	}
	e.setVolumeLocked(volume)
	return nil
}

func (e *Engine) SetPositionMs(positionMs uint32) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.usable(); err != nil {
		return err
	}
	pos := time.Duration(positionMs) * time.Millisecond
	if pos > e.opts.TrackLength {
		return fmt.Errorf("position %dms is beyond the end of the track (%dms)", positionMs, e.opts.TrackLength.Milliseconds())
	}
	e.frame = uint64(pos.Seconds() * float64(e.opts.SampleRate))
	e.emit(engine.Event{
		Kind:       engine.EventSeeked,
		TrackID:    e.trackID(),
		PositionMs: u32(positionMs),
	})
	return nil
}

func (e *Engine) Shuffle(state bool) error {
	return e.setFlag(&e.shuffle, state, engine.EventShuffleChanged)
}

func (e *Engine) Repeat(state bool) error {
	return e.setFlag(&e.repeat, state, engine.EventRepeatChanged)
}

func (e *Engine) RepeatTrack(state bool) error {
	return e.setFlag(&e.repeatTrack, state, engine.EventRepeatTrackChanged)
}

func (e *Engine) Activate() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return engine.ErrClosed
	}
	if !e.active {
		e.active = true
		e.emit(engine.Event{Kind: engine.EventSessionConnected})
	}
	return nil
}

func (e *Engine) Disconnect(pause bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return engine.ErrClosed
	}
	if pause && e.playing {
		if err := e.pauseLocked(); err != nil {
			return err
		}
	}
	e.active = false
	e.emit(engine.Event{Kind: engine.EventSessionDisconnected})
	return nil
}

// Shutdown stops playback and releases the engine.
func (e *Engine) Shutdown() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return engine.ErrClosed
	}
	if e.playing {
		e.playing = false
		e.emit(engine.Event{Kind: engine.EventStopped, TrackID: e.trackID()})
	}
	e.stopSinkLocked()
	e.mu.Unlock()

	if e.cfg.OnSinkStatus != nil {
		e.cfg.OnSinkStatus(engine.SinkClosed)
	}
	return e.Close()
}

func (e *Engine) Close() error {
	e.once.Do(func() {
		e.mu.Lock()
		e.closed = true
		e.playing = false
		e.mu.Unlock()

		close(e.quit)
		<-e.done
		e.events.Close()
		e.log.Info("Tone engine closed")
	})
	return nil
}

func (e *Engine) setFlag(flag *bool, state bool, kind engine.EventKind) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.usable(); err != nil {
		return err
	}
	*flag = state
	e.emit(engine.Event{Kind: kind, Value: &state})
	return nil
}

func (e *Engine) usable() error {
	if e.closed {
		return engine.ErrClosed
	}
	if !e.active {
		return ErrInactive
	}
	return nil
}

func (e *Engine) startLocked() error {
	if !e.sinkOpen {
		if err := e.cfg.Sink.Start(); err != nil {
			return fmt.Errorf("start sink: %w", err)
		}
		e.sinkOpen = true
	}
	e.requestID++
	e.playing = true
	e.emit(engine.Event{
		Kind:       engine.EventPlaying,
		RequestID:  u64(e.requestID),
		TrackID:    e.trackID(),
		PositionMs: u32(uint32(e.positionLocked().Milliseconds())),
	})
	return nil
}

func (e *Engine) pauseLocked() error {
	e.playing = false
	e.emit(engine.Event{
		Kind:       engine.EventPaused,
		RequestID:  u64(e.requestID),
		TrackID:    e.trackID(),
		PositionMs: u32(uint32(e.positionLocked().Milliseconds())),
	})
	if e.sinkOpen {
		e.sinkOpen = false
		if err := e.cfg.Sink.Stop(); err != nil {
			return fmt.Errorf("stop sink: %w", err)
		}
	}
	return nil
}

func (e *Engine) stopSinkLocked() {
	if !e.sinkOpen {
		return
	}
	e.sinkOpen = false
	if err := e.cfg.Sink.Stop(); err != nil {
		e.log.Warn("Failed to stop sink", "error", err)
	}
}

func (e *Engine) loadLocked() {
	e.requestID++
	e.emit(engine.Event{
		Kind:       engine.EventLoading,
		RequestID:  u64(e.requestID),
		TrackID:    e.trackID(),
		PositionMs: u32(0),
	})
	e.emit(engine.Event{
		Kind:       engine.EventTrackChanged,
		TrackID:    e.trackID(),
		DurationMs: u32(uint32(e.opts.TrackLength.Milliseconds())),
	})
	if e.playing {
		e.emit(engine.Event{
			Kind:       engine.EventPlaying,
			RequestID:  u64(e.requestID),
			TrackID:    e.trackID(),
			PositionMs: u32(0),
		})
	}
}

func (e *Engine) setVolumeLocked(v uint16) {
	e.volume = v
	e.emit(engine.Event{Kind: engine.EventVolumeChanged, Volume: &v})
}

func (e *Engine) positionLocked() time.Duration {
	return time.Duration(float64(e.frame) / float64(e.opts.SampleRate) * float64(time.Second))
}

func (e *Engine) trackID() string {
	return fmt.Sprintf("tone:track:%d", e.track)
}

func (e *Engine) emit(ev engine.Event) {
	if err := e.events.Send(ev); err != nil {
		e.log.Debug("Dropped event after close", "event", ev.Kind)
	}
}

// run produces one packet per tick while playing. Sink writes happen outside
// the engine lock since the sink may block to pace output.
func (e *Engine) run() {
	defer close(e.done)

	period := time.Duration(float64(e.opts.PacketFrames) / float64(e.opts.SampleRate) * float64(time.Second))
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-e.quit:
			return
		case <-ticker.C:
		}

		samples, ok := e.nextPacket()
		if !ok {
			continue
		}
		if err := e.cfg.Sink.Write(engine.SamplesPacket(samples)); err != nil {
			e.log.Warn("Sink write failed, stopping playback", "error", err)
			e.mu.Lock()
			if e.playing {
				e.playing = false
				e.sinkOpen = false
				e.emit(engine.Event{Kind: engine.EventStopped, TrackID: e.trackID()})
			}
			e.mu.Unlock()
		}
	}
}

func (e *Engine) nextPacket() ([]float64, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.playing || e.closed {
		return nil, false
	}

	// Each track is a semitone above the previous one.
	freq := e.opts.Frequency * math.Pow(2, float64(e.track)/12)
	amp := 0.5 * float64(e.volume) / math.MaxUint16

	samples := make([]float64, e.opts.PacketFrames*e.opts.Channels)
	for i := 0; i < e.opts.PacketFrames; i++ {
		t := float64(e.frame+uint64(i)) / float64(e.opts.SampleRate)
		v := amp * math.Sin(2*math.Pi*freq*t)
		for c := 0; c < e.opts.Channels; c++ {
			samples[i*e.opts.Channels+c] = v
		}
	}
	e.frame += uint64(e.opts.PacketFrames)

	if e.positionLocked() >= e.opts.TrackLength {
		e.endOfTrackLocked()
	}
	return samples, true
}

func (e *Engine) endOfTrackLocked() {
	e.emit(engine.Event{Kind: engine.EventEndOfTrack, RequestID: u64(e.requestID), TrackID: e.trackID()})
	e.frame = 0

	switch {
	case e.repeatTrack:
	case e.track+1 < e.opts.Tracks:
		e.track++
	case e.repeat:
		e.track = 0
	default:
		e.playing = false
		e.emit(engine.Event{Kind: engine.EventStopped, TrackID: e.trackID()})
		e.stopSinkLocked()
		return
	}
	e.loadLocked()
}

func u32(v uint32) *uint32 { return &v }
func u64(v uint64) *uint64 { return &v }
